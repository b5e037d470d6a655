package discovery

import (
	"slices"

	"certimages-backend/lib/imageurl"
)

type Strategy string

const (
	StrategyHintAttribute   Strategy = "hint_attribute"
	StrategySourceAttribute Strategy = "source_attribute"
	StrategyBackgroundStyle Strategy = "background_style"
	StrategyScriptData      Strategy = "script_data"
	StrategyCDNScan         Strategy = "cdn_scan"
	StrategyProbing         Strategy = "probing"
)

// Candidate is an image url found in a page that has not been scoped,
// transformed or deduplicated yet.
type Candidate struct {
	URL      string
	Strategy Strategy
	Tier     imageurl.Tier
}

func newCandidate(url string, strategy Strategy) Candidate {
	return Candidate{
		URL:      url,
		Strategy: strategy,
		Tier:     imageurl.GuessTier(url),
	}
}

// Union merges candidate sets by exact url, the first set to name a url
// keeps its strategy tag.
func Union(sets ...[]Candidate) []Candidate {
	seen := map[string]bool{}
	out := []Candidate{}
	for _, set := range sets {
		for _, c := range set {
			if c.URL == "" || seen[c.URL] {
				continue
			}
			seen[c.URL] = true
			out = append(out, c)
		}
	}
	return out
}

// SortCandidates orders candidates by imageurl.Priority, keeping
// discovery order within a priority.
func SortCandidates(cs []Candidate) {
	slices.SortStableFunc(cs, func(a, b Candidate) int {
		return imageurl.Priority(a.URL) - imageurl.Priority(b.URL)
	})
}

func URLs(cs []Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.URL
	}
	return out
}
