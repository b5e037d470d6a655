package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"certimages-backend/lib/imageurl"
	"certimages-backend/lib/transport"

	"go.opentelemetry.io/otel/attribute"
)

type Prober interface {
	Probe(ctx context.Context, url string) (transport.ProbeResult, error)
}

type ProbeOptions struct {
	// PageURL is the url the markup came from, its host is used for the
	// front/back api paths.
	PageURL string
	// CDNBaseURL is the scheme and host of the image CDN, e.g.
	// https://d1htnxwo4o0jhw.cloudfront.net. It is only needed by
	// ProbeCommonPatterns.
	CDNBaseURL string
}

func isImage(res transport.ProbeResult) bool {
	return res.Status == http.StatusOK &&
		strings.HasPrefix(strings.ToLower(strings.TrimSpace(res.ContentType)), "image/")
}

func probeAll(ctx context.Context, p Prober, urls []string, known map[string]bool) []Candidate {
	out := []Candidate{}
	for _, u := range urls {
		if ctx.Err() != nil {
			return out
		}
		if known[u] {
			continue
		}
		known[u] = true

		res, err := p.Probe(ctx, u)
		if err != nil {
			slog.DebugContext(ctx, "probe failed", "url", u, "err", err)
			continue
		}
		if !isImage(res) {
			continue
		}
		out = append(out, newCandidate(u, StrategyProbing))
	}
	return out
}

func pageOrigin(pageURL string) string {
	parsed, err := url.Parse(pageURL)
	if err != nil || parsed.Host == "" {
		return ""
	}
	scheme := parsed.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return scheme + "://" + parsed.Host
}

// Enrich speculatively probes the siblings of every CDN url among the
// candidates: the same filename under every other tier and under the
// original path. Responses that are images are appended. Nothing is
// probed when candidates is empty.
func Enrich(ctx context.Context, p Prober, candidates []Candidate, opts ProbeOptions) []Candidate {
	if len(candidates) == 0 {
		return candidates
	}

	ctx, span := tracer.Start(ctx, "Enrich")
	defer span.End()

	known := map[string]bool{}
	for _, c := range candidates {
		known[c.URL] = true
	}

	var speculative []string
	queued := map[string]bool{}
	queue := func(u string) {
		if queued[u] {
			return
		}
		queued[u] = true
		speculative = append(speculative, u)
	}

	for _, c := range candidates {
		if _, ok := imageurl.ToTier(c.URL, imageurl.Original); !ok {
			continue
		}
		for _, tier := range imageurl.Tiers {
			sibling, _ := imageurl.ToTier(c.URL, tier)
			queue(sibling)
		}
	}

	if origin := pageOrigin(opts.PageURL); origin != "" {
		for _, n := range imageurl.CertNumbers(URLs(candidates)) {
			for _, side := range []string{"front", "back"} {
				queue(fmt.Sprintf("%s/api/cert/%s/%s", origin, n, side))
				queue(fmt.Sprintf("%s/cert/%s/%s", origin, n, side))
			}
		}
	}

	found := probeAll(ctx, p, speculative, known)
	span.SetAttributes(
		attribute.Int("probed", len(speculative)),
		attribute.Int("found", len(found)),
	)

	out := Union(candidates, found)
	SortCandidates(out)
	return out
}

// ProbeCommonPatterns guesses the usual front/back image locations of
// certificate id when the page itself yielded nothing.
func ProbeCommonPatterns(ctx context.Context, p Prober, id string, opts ProbeOptions) []Candidate {
	ctx, span := tracer.Start(ctx, "ProbeCommonPatterns")
	defer span.End()

	var urls []string
	if cdn := strings.TrimRight(opts.CDNBaseURL, "/"); cdn != "" {
		for _, tier := range []imageurl.Tier{imageurl.Large, imageurl.Small, imageurl.Medium} {
			for _, side := range []string{"front", "back"} {
				urls = append(urls, fmt.Sprintf("%s/cert/%s/%s/%s.jpg", cdn, id, tier, side))
			}
		}
	}
	if origin := pageOrigin(opts.PageURL); origin != "" {
		for _, side := range []string{"front", "back"} {
			urls = append(urls,
				fmt.Sprintf("%s/cert/%s/%s", origin, id, side),
				fmt.Sprintf("%s/api/cert/%s/%s", origin, id, side),
			)
		}
	}

	found := probeAll(ctx, p, urls, map[string]bool{})
	span.SetAttributes(attribute.Int("found", len(found)))
	SortCandidates(found)
	return found
}
