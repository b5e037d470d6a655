package imageurl

import (
	"fmt"
	"regexp"
	"strings"
)

// Tier is a resolution class served by the image CDN. Every tier but
// Original is a path segment between the certificate number and the
// filename.
type Tier string

const (
	Original Tier = "original"
	Large    Tier = "large"
	Medium   Tier = "medium"
	Small    Tier = "small"
)

var Tiers = []Tier{Original, Large, Medium, Small}

func ParseTier(s string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case Original, "":
		return Original, nil
	case Large:
		return Large, nil
	case Medium:
		return Medium, nil
	case Small, "thumb":
		return Small, nil
	}
	return "", fmt.Errorf("unknown image tier %q", s)
}

func (t Tier) segment() string {
	if t == Original || t == "" {
		return ""
	}
	return string(t)
}

var (
	tieredShape   = regexp.MustCompile(`(?i)(https?://[^/]+/cert/\d+)/(small|large|medium|thumb)/([^/?\\]+\.(?:jpg|jpeg|png|webp))`)
	originalShape = regexp.MustCompile(`(?i)(https?://[^/]+/cert/\d+)/([^/?\\]+\.(?:jpg|jpeg|png|webp))`)
	tierSegment   = regexp.MustCompile(`(?i)/(?:small|large|medium|thumb)/`)
)

// Trim removes surrounding whitespace and the trailing slashes and
// backslashes left behind by escaped markup.
func Trim(url string) string {
	return strings.TrimRight(strings.TrimSpace(url), `\/`)
}

func build(base string, tier Tier, filename string) string {
	filename = strings.Trim(filename, `\/`)
	if seg := tier.segment(); seg != "" {
		return base + "/" + seg + "/" + filename
	}
	return base + "/" + filename
}

// ToTier rewrites a CDN image url of the shape .../cert/<n>/[<tier>/]<file>
// to the requested tier. It reports false when the url does not have
// that shape.
func ToTier(url string, tier Tier) (string, bool) {
	url = Trim(url)
	if m := tieredShape.FindStringSubmatch(url); m != nil {
		return build(m[1], tier, m[3]), true
	}
	if m := originalShape.FindStringSubmatch(url); m != nil {
		return build(m[1], tier, m[2]), true
	}
	return "", false
}

// TierOf reads the tier segment of a CDN image url, urls without one
// are Original.
func TierOf(url string) Tier {
	m := tieredShape.FindStringSubmatch(Trim(url))
	if m == nil {
		return Original
	}
	tier, err := ParseTier(m[2])
	if err != nil {
		return Original
	}
	return tier
}

// GuessTier is TierOf for CDN urls and a keyword guess for everything else.
func GuessTier(url string) Tier {
	if _, ok := ToTier(url, Original); ok {
		return TierOf(url)
	}
	lower := strings.ToLower(url)
	switch {
	case strings.Contains(lower, "thumb") || strings.Contains(lower, "small"):
		return Small
	case strings.Contains(lower, "medium"):
		return Medium
	case strings.Contains(lower, "large"):
		return Large
	}
	return Original
}

// StripTier removes every known tier segment from the url.
func StripTier(url string) string {
	return tierSegment.ReplaceAllString(Trim(url), "/")
}

// Normalize returns the canonical spelling of a url, CDN urls are
// rebuilt from their base, tier and filename.
func Normalize(url string) string {
	if out, ok := ToTier(url, TierOf(url)); ok {
		return out
	}
	return Trim(url)
}

// Filename is the last path element of the url without its query.
func Filename(url string) string {
	p := url
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if i := strings.Index(p, "://"); i >= 0 {
		p = p[i+3:]
		slash := strings.Index(p, "/")
		if slash < 0 {
			return ""
		}
		p = p[slash:]
	}
	if i := strings.LastIndex(p, "/"); i >= 0 {
		p = p[i+1:]
	}
	return strings.TrimRight(p, `\/`)
}
