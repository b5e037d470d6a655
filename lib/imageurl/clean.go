package imageurl

import (
	"strings"

	"certimages-backend/lib/textutil"
)

var noiseKeywords = []string{
	"table-image",
	"certified",
	"logo",
	"icon",
	"button",
	"badge",
	"avatar",
	"spinner",
	"loading",
	"placeholder",
	"og-meta",
	"meta",
	"og-image",
	"social",
	"share",
}

var noiseDirs = []string{"/meta/", "/social/", "/share/"}

// IsNoise reports whether the url names a site asset rather than a
// photograph of the item.
func IsNoise(url string) bool {
	if textutil.ContainsAny(Filename(url), noiseKeywords) {
		return true
	}
	lower := strings.ToLower(url)
	for _, d := range noiseDirs {
		if strings.Contains(lower, d) {
			return true
		}
	}
	return false
}

// Dedup keeps the first url for every filename. urls without a
// filename are always kept.
func Dedup(urls []string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, u := range urls {
		name := Filename(u)
		if name == "" {
			out = append(out, u)
			continue
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, u)
	}
	return out
}

// Clean drops noise and then collapses urls sharing a filename.
func Clean(urls []string) []string {
	kept := []string{}
	for _, u := range urls {
		if IsNoise(u) {
			continue
		}
		kept = append(kept, u)
	}
	return Dedup(kept)
}
