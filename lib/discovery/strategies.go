package discovery

import (
	"net/url"
	"regexp"
	"strings"

	"certimages-backend/lib/htmlutil"
	"certimages-backend/lib/imageurl"

	"github.com/PuerkitoBio/goquery"
)

var hintAttributes = []string{
	"data-highres",
	"data-large",
	"data-original",
	"data-full",
	"data-hires",
	"data-src-large",
}

var sourceAttributes = []string{"src", "data-src", "data-lazy-src"}

// thumbnail markers of sites other than the CDN
var thumbnailKeywords = []string{"thumb", "_s.", "_m."}

func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "data:") {
		return ""
	}
	if base == nil {
		return imageurl.Trim(ref)
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return imageurl.Trim(base.ResolveReference(parsed).String())
}

// HintAttributes accepts every url named by a full-size hint attribute
// on an img element.
func HintAttributes(doc *goquery.Document, base *url.URL) []Candidate {
	out := []Candidate{}
	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		for _, attr := range hintAttributes {
			val, ok := img.Attr(attr)
			if !ok {
				continue
			}
			if u := resolve(base, val); u != "" {
				out = append(out, newCandidate(u, StrategyHintAttribute))
			}
		}
	})
	return out
}

// SourceAttributes collects ordinary img sources. CDN shaped urls are
// always kept, everything else has to look like a photograph.
func SourceAttributes(doc *goquery.Document, base *url.URL) []Candidate {
	out := []Candidate{}
	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		for _, attr := range sourceAttributes {
			val, ok := img.Attr(attr)
			if !ok {
				continue
			}
			u := resolve(base, val)
			if u == "" {
				continue
			}
			if _, cdnShaped := imageurl.ToTier(u, imageurl.Original); cdnShaped {
				out = append(out, newCandidate(u, StrategySourceAttribute))
				continue
			}
			lower := strings.ToLower(u)
			skip := false
			for _, k := range thumbnailKeywords {
				if strings.Contains(lower, k) {
					skip = true
					break
				}
			}
			if skip || !imageurl.IsLikelyPhotograph(u) {
				continue
			}
			out = append(out, newCandidate(u, StrategySourceAttribute))
		}
	})
	return out
}

var (
	photoContainerClass = regexp.MustCompile(`(?i)image|photo|card`)
	cssURL              = regexp.MustCompile(`url\(["']?([^"'()]+)["']?\)`)
)

// BackgroundStyles reads css url(...) references from the inline style
// of div and section elements whose class suggests a photo container.
func BackgroundStyles(doc *goquery.Document, base *url.URL) []Candidate {
	out := []Candidate{}
	doc.Find("div[class], section[class]").Each(func(_ int, el *goquery.Selection) {
		if !photoContainerClass.MatchString(el.AttrOr("class", "")) {
			return
		}
		style := el.AttrOr("style", "")
		for _, m := range cssURL.FindAllStringSubmatch(style, -1) {
			u := resolve(base, m[1])
			if u == "" || !imageurl.IsLikelyPhotograph(u) {
				continue
			}
			out = append(out, newCandidate(u, StrategyBackgroundStyle))
		}
	})
	return out
}

var quotedImageURL = regexp.MustCompile(`(?i)["'](https?://[^"']+\.(?:jpg|jpeg|png|webp)[^"']*)["']`)

// ScriptData scans script bodies for quoted absolute image urls.
func ScriptData(doc *goquery.Document) []Candidate {
	out := []Candidate{}
	for _, script := range doc.Find("script").Nodes {
		text := unescapeSlashes(htmlutil.GetText(script))
		for _, m := range quotedImageURL.FindAllStringSubmatch(text, -1) {
			u := imageurl.Trim(m[1])
			if !imageurl.IsLikelyPhotograph(u) {
				continue
			}
			out = append(out, newCandidate(u, StrategyScriptData))
		}
	}
	return out
}

func unescapeSlashes(s string) string {
	return strings.ReplaceAll(s, `\/`, "/")
}

// CDNPattern matches tiered image urls served from hosts ending with
// host, e.g. cloudfront.net.
func CDNPattern(host string) *regexp.Regexp {
	return regexp.MustCompile(
		`(?i)https?://[^/"'\s<>]*` + regexp.QuoteMeta(host) +
			`/cert/\d+/(?:small|large|medium)/[^"'>\s]+\.(?:jpg|jpeg|png|webp)`,
	)
}

// CDNScan runs pattern over the raw markup, catching urls embedded
// outside tag attributes such as serialized json.
func CDNScan(markup string, pattern *regexp.Regexp) []Candidate {
	out := []Candidate{}
	for _, m := range pattern.FindAllString(unescapeSlashes(markup), -1) {
		if u := imageurl.Trim(m); u != "" {
			out = append(out, newCandidate(u, StrategyCDNScan))
		}
	}
	return out
}
