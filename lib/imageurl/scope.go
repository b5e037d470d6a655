package imageurl

import (
	"regexp"
	"strings"
)

var certSegment = regexp.MustCompile(`/cert/(\d+)`)

// CertNumber returns the number in the url's first /cert/<n> segment.
func CertNumber(url string) (string, bool) {
	m := certSegment.FindStringSubmatch(url)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// BelongsTo reports whether url provably belongs to certificate id.
// A /cert/<n> segment decides on its own, otherwise id must appear as
// a delimited path component or a filename token.
func BelongsTo(url, id string) bool {
	if n, ok := CertNumber(url); ok {
		return n == id
	}
	return strings.Contains(url, "/"+id+"/") ||
		strings.HasSuffix(url, "/"+id) ||
		strings.Contains(url, "/"+id+"_") ||
		strings.Contains(url, "_"+id+".")
}

// Scope keeps the urls that belong to certificate id, in input order.
func Scope(urls []string, id string) []string {
	out := []string{}
	for _, u := range urls {
		if u == "" {
			continue
		}
		if BelongsTo(u, id) {
			out = append(out, u)
		}
	}
	return out
}

// WithoutCertSegment keeps the urls that carry no /cert/<n> segment.
func WithoutCertSegment(urls []string) []string {
	out := []string{}
	for _, u := range urls {
		if _, ok := CertNumber(u); !ok {
			out = append(out, u)
		}
	}
	return out
}

// CertNumbers lists the distinct certificate numbers referenced by urls
// in first-seen order.
func CertNumbers(urls []string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, u := range urls {
		n, ok := CertNumber(u)
		if !ok || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
