package certid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	testCases := []struct {
		raw      string
		expected string
	}{
		{raw: "96098359", expected: "96098359"},
		{raw: "PSA# 96,098,359", expected: "96098359"},
		{raw: "  cert 1234-5678\n", expected: "12345678"},
		{raw: "０１２3", expected: "3"},
	}

	for _, test := range testCases {
		id, err := Normalize(test.raw)
		require.NoError(t, err, test.raw)
		require.Equal(t, test.expected, id, test.raw)
	}
}

func TestNormalizeInvalid(t *testing.T) {
	for _, raw := range []string{"", "abc", "PSA#", "  \t"} {
		_, err := Normalize(raw)
		require.ErrorIs(t, err, ErrInvalidIdentifier, raw)
	}
}
