package certimages

import (
	"fmt"
	"strings"

	"certimages-backend/lib/imageurl"
)

type Mode string

const (
	// Preview favors showing something, scoping may fall back to a few
	// unscoped candidates.
	Preview Mode = "preview"
	// Download only ever returns images provably of the certificate.
	Download Mode = "download"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case Preview:
		return Preview, nil
	case Download, "":
		return Download, nil
	}
	return "", fmt.Errorf("unknown mode %q, expected preview or download", s)
}

type ImageRecord struct {
	URL        string
	Tier       imageurl.Tier
	Identifier string
	Filename   string
}

type BatchResult struct {
	// Input is the identifier as given by the caller.
	Input      string
	Identifier string
	Title      string
	Images     []ImageRecord
	Err        error
}
