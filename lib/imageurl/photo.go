package imageurl

import (
	"strings"

	"certimages-backend/lib/textutil"
)

var (
	nonPhotoKeywords = []string{"logo", "icon", "avatar", "button", "badge", "flag", "spinner"}
	imageExtensions  = []string{".jpg", ".jpeg", ".png", ".webp"}
	highResKeywords  = []string{
		"highres", "high-res", "high_res", "large", "original", "full",
		"hd", "high", "big", "max", "cert",
	}
	photoPathKeywords = []string{"/cert/", "card", "image"}
)

// HasImageExtension reports whether the url mentions one of the
// supported image extensions.
func HasImageExtension(url string) bool {
	return textutil.ContainsAny(url, imageExtensions)
}

// IsLikelyPhotograph rejects well known site assets, requires an image
// extension and accepts urls with a resolution hint or a photo-like
// path.
func IsLikelyPhotograph(url string) bool {
	if textutil.ContainsAny(url, nonPhotoKeywords) {
		return false
	}
	if !HasImageExtension(url) {
		return false
	}
	if textutil.ContainsAny(url, highResKeywords) {
		return true
	}
	return textutil.ContainsAny(url, photoPathKeywords)
}

// Priority ranks urls for presentation, lower comes first.
//
//	0: highres / high-res
//	1: large / original
//	2: everything else
//	3: thumb / small
func Priority(url string) int {
	lower := strings.ToLower(url)
	switch {
	case strings.Contains(lower, "highres") || strings.Contains(lower, "high-res"):
		return 0
	case strings.Contains(lower, "large") || strings.Contains(lower, "original"):
		return 1
	case strings.Contains(lower, "thumb") || strings.Contains(lower, "small"):
		return 3
	}
	return 2
}
