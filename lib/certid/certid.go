package certid

import (
	"errors"
	"strings"
	"unicode"
)

var ErrInvalidIdentifier = errors.New("certificate number must contain at least one digit")

// Normalize strips everything but ASCII digits from raw user input,
// "PSA# 96,098,359" becomes "96098359".
func Normalize(raw string) (string, error) {
	id := strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && unicode.IsDigit(r) {
			return r
		}
		return -1
	}, raw)
	if id == "" {
		return "", ErrInvalidIdentifier
	}
	return id, nil
}
