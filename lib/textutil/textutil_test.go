package textutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContainsAny(t *testing.T) {
	require.True(t, ContainsAny("https://cdn/Site-LOGO.png", []string{"logo"}))
	require.True(t, ContainsAny("table image", []string{"tableimage"}))
	require.False(t, ContainsAny("https://cdn/cert/1/front.jpg", []string{"logo", "icon"}))
}

func TestCollapseSpace(t *testing.T) {
	require.Equal(t, "PSA Cert 123 - Verify", CollapseSpace("\n\t PSA Cert   123 -\n Verify  \u0007"))
	require.Equal(t, "", CollapseSpace("  \n "))
	require.Equal(t, "a b", CollapseSpace("a\tb"))
}
