package certpage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"certimages-backend/lib/htmlutil"
	"certimages-backend/lib/transport"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("certimages.lib.scrapers.certpage")

const (
	DefaultPrimaryBaseURL = "https://www.psacard.com"
	DefaultMirrorBaseURL  = "https://www.psacard.co.jp"

	endpointPauseMin = 800 * time.Millisecond
	endpointPauseMax = 1600 * time.Millisecond
)

// Doer is the part of *transport.Transport the fetcher needs.
type Doer interface {
	Fetch(ctx context.Context, url string, headers map[string]string, useProxy bool) (transport.Response, error)
	Sleep(ctx context.Context, d time.Duration) error
	Jitter(min, max time.Duration) time.Duration
}

type Options struct {
	// PrimaryBaseURL is tried with both the plain and the /psa path,
	// defaults to DefaultPrimaryBaseURL.
	PrimaryBaseURL string
	// Mirrors are tried in order after the primary, defaults to
	// DefaultMirrorBaseURL. An empty non-nil slice disables mirrors.
	Mirrors []string
	// DirectConnection skips the proxy pool for page requests.
	DirectConnection bool
}

type Page struct {
	Identifier string
	// URL is the page's final url after redirects, relative image
	// references resolve against it.
	URL string
	// Endpoint is the endpoint url that answered.
	Endpoint string
	Markup   string
	Title    string
}

// Fetcher walks the endpoint list for a certificate page. It remembers
// which endpoint last answered and tries it first next time. That
// memory is a hint, concurrent lookups may race on it harmlessly.
type Fetcher struct {
	doer      Doer
	primary   string
	mirrors   []string
	useProxy  bool
	preferred atomic.Int32
}

func trimBase(base string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	return strings.TrimSuffix(base, "/cert")
}

func NewFetcher(doer Doer, opts Options) *Fetcher {
	primary := opts.PrimaryBaseURL
	if primary == "" {
		primary = DefaultPrimaryBaseURL
	}
	mirrors := opts.Mirrors
	if mirrors == nil {
		mirrors = []string{DefaultMirrorBaseURL}
	}

	f := &Fetcher{
		doer:     doer,
		primary:  trimBase(primary),
		useProxy: !opts.DirectConnection,
	}
	for _, m := range mirrors {
		m = trimBase(m)
		if m == "" || m == f.primary {
			continue
		}
		f.mirrors = append(f.mirrors, m)
	}
	return f
}

// Endpoints lists every url the page for id can be reached at, in
// their fixed priority order.
func (f *Fetcher) Endpoints(id string) []string {
	out := []string{
		fmt.Sprintf("%s/cert/%s", f.primary, id),
		fmt.Sprintf("%s/cert/%s/psa", f.primary, id),
	}
	for _, m := range f.mirrors {
		out = append(out, fmt.Sprintf("%s/cert/%s", m, id))
	}
	return out
}

// order puts the preferred endpoint first, keeping the rest in
// priority order.
func (f *Fetcher) order(endpoints []string) []int {
	preferred := int(f.preferred.Load())
	if preferred < 0 || preferred >= len(endpoints) {
		preferred = 0
	}
	out := make([]int, 0, len(endpoints))
	out = append(out, preferred)
	for i := range endpoints {
		if i != preferred {
			out = append(out, i)
		}
	}
	return out
}

// Preferred returns the endpoint index tried first.
func (f *Fetcher) Preferred() int {
	return int(f.preferred.Load())
}

func pageTitle(id, markup string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err == nil {
		title := htmlutil.Title(doc)
		if title != "" {
			return title
		}
	}
	return fmt.Sprintf("PSA Certificate %s", id)
}

// GetPage fetches the certificate page for an already normalized id.
// It returns an *UnreachableError when every endpoint failed and the
// context error when ctx ends first.
func (f *Fetcher) GetPage(ctx context.Context, id string) (Page, error) {
	ctx, span := tracer.Start(ctx, "GetPage")
	defer span.End()
	span.SetAttributes(attribute.String("identifier", id))

	endpoints := f.Endpoints(id)
	var attempted []string
	var lastErr error

	for n, idx := range f.order(endpoints) {
		err := ctx.Err()
		if err != nil {
			span.SetStatus(codes.Error, "canceled")
			return Page{}, err
		}
		if n > 0 {
			err = f.doer.Sleep(ctx, f.doer.Jitter(endpointPauseMin, endpointPauseMax))
			if err != nil {
				span.SetStatus(codes.Error, "canceled")
				return Page{}, err
			}
		}

		endpoint := endpoints[idx]
		attempted = append(attempted, endpoint)
		slog.DebugContext(ctx, "fetching certificate page", "endpoint", endpoint)

		res, err := f.doer.Fetch(ctx, endpoint, map[string]string{"Referer": endpoint}, f.useProxy)
		if err != nil {
			if ctx.Err() != nil {
				span.SetStatus(codes.Error, "canceled")
				return Page{}, ctx.Err()
			}
			slog.WarnContext(ctx, "endpoint failed", "endpoint", endpoint, "err", err)
			lastErr = err
			continue
		}

		if int(f.preferred.Swap(int32(idx))) != idx {
			slog.InfoContext(ctx, "preferring endpoint", "endpoint", endpoint)
		}

		markup := string(res.Body)
		finalURL := res.FinalURL
		if finalURL == "" {
			finalURL = endpoint
		}
		span.SetAttributes(attribute.String("endpoint", endpoint))
		return Page{
			Identifier: id,
			URL:        finalURL,
			Endpoint:   endpoint,
			Markup:     markup,
			Title:      pageTitle(id, markup),
		}, nil
	}

	err := &UnreachableError{
		Identifier: id,
		Attempted:  attempted,
		Cause:      lastErr,
		Refused:    transport.IsConnectionRefused(lastErr),
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, "unreachable")
	return Page{}, err
}
