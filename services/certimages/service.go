package certimages

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"certimages-backend/lib/certid"
	"certimages-backend/lib/discovery"
	"certimages-backend/lib/imageurl"
	"certimages-backend/lib/scrapers/certpage"
	"certimages-backend/lib/transport"
	"certimages-backend/services/certimages/db"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultCDNBaseURL           = "https://d1htnxwo4o0jhw.cloudfront.net"
	DefaultPreviewFallbackLimit = 2
)

type Options struct {
	Transport transport.Options
	Page      certpage.Options

	// CDNHost is the host suffix scanned for in raw markup, defaults to
	// discovery.DefaultCDNHost.
	CDNHost string
	// CDNBaseURL is where common image locations are guessed when a
	// page yields nothing, defaults to DefaultCDNBaseURL.
	CDNBaseURL string
	// DisableProbing turns off every speculative HEAD request.
	DisableProbing bool
	// PreviewFallbackLimit caps the unscoped candidates returned in
	// preview mode when scoping removed everything. Zero means
	// DefaultPreviewFallbackLimit, a negative value disables the
	// fallback.
	PreviewFallbackLimit int
	// MaxImages keeps at most this many images, front and back first.
	// Zero keeps everything.
	MaxImages int
}

type Service struct {
	transport *transport.Transport
	fetcher   *certpage.Fetcher
	db        *sql.DB
	makeTx    db.MakeTx
	now       func() time.Time

	Options
}

// NewService builds a service with its own transport. database may be
// nil, otherwise every lookup is recorded in it.
func NewService(database *sql.DB, options Options) (*Service, error) {
	if options.CDNHost == "" {
		options.CDNHost = discovery.DefaultCDNHost
	}
	if options.CDNBaseURL == "" {
		options.CDNBaseURL = DefaultCDNBaseURL
	}
	if options.PreviewFallbackLimit == 0 {
		options.PreviewFallbackLimit = DefaultPreviewFallbackLimit
	}

	tr, err := transport.New(options.Transport)
	if err != nil {
		return nil, err
	}

	s := &Service{
		transport: tr,
		fetcher:   certpage.NewFetcher(tr, options.Page),
		db:        database,
		now:       time.Now,
		Options:   options,
	}
	if database != nil {
		s.makeTx = db.NewMakeTx(database)
	}
	return s, nil
}

func (s *Service) Transport() *transport.Transport {
	return s.transport
}

func (s *Service) Fetcher() *certpage.Fetcher {
	return s.fetcher
}

// DiscoverImages finds the photographs of certificate rawID at tier.
// A reachable page without photographs yields no records and a nil
// error. The page title is returned alongside the records.
func (s *Service) DiscoverImages(ctx context.Context, rawID string, tier imageurl.Tier, mode Mode) ([]ImageRecord, string, error) {
	ctx, span := tracer.Start(ctx, "DiscoverImages")
	defer span.End()
	span.SetAttributes(
		attribute.String("input", rawID),
		attribute.String("tier", string(tier)),
		attribute.String("mode", string(mode)),
	)

	id, err := certid.Normalize(rawID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid identifier")
		lookupCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "invalid")))
		return nil, "", err
	}
	span.SetAttributes(attribute.String("identifier", id))

	records, title, err := s.discover(ctx, id, tier, mode)
	s.record(ctx, id, title, tier, mode, records, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup failed")
		lookupCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "failed")))
		return nil, "", err
	}

	outcome := "found"
	if len(records) == 0 {
		outcome = "empty"
	}
	lookupCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	span.SetAttributes(attribute.Int("images", len(records)))
	return records, title, nil
}

func (s *Service) discover(ctx context.Context, id string, tier imageurl.Tier, mode Mode) ([]ImageRecord, string, error) {
	page, err := s.fetcher.GetPage(ctx, id)
	if err != nil {
		return nil, "", err
	}

	candidates := discovery.Discover(ctx, page.Markup, page.URL, discovery.Options{CDNHost: s.CDNHost})
	probeOpts := discovery.ProbeOptions{PageURL: page.URL, CDNBaseURL: s.CDNBaseURL}
	if !s.DisableProbing {
		if len(candidates) > 0 {
			candidates = discovery.Enrich(ctx, s.transport, candidates, probeOpts)
		} else if mode == Download {
			candidates = discovery.ProbeCommonPatterns(ctx, s.transport, id, probeOpts)
		}
	}

	urls := s.scope(ctx, discovery.URLs(candidates), id, tier, mode)
	urls = s.transform(ctx, urls, tier)
	urls = imageurl.Clean(urls)
	if s.MaxImages > 0 {
		urls = imageurl.SelectFaces(urls, s.MaxImages)
	}

	records := make([]ImageRecord, len(urls))
	for i, u := range urls {
		records[i] = ImageRecord{
			URL:        u,
			Tier:       tier,
			Identifier: id,
			Filename:   imageurl.Filename(u),
		}
	}
	if len(records) == 0 {
		slog.InfoContext(ctx, "no images found", "identifier", id, "candidates", len(candidates))
	}
	return records, page.Title, nil
}

// scope narrows urls to certificate id. In preview mode a scope that
// removed everything falls back to a few unscoped urls that can be
// mapped to tier, preferring the ones that name no certificate at all.
func (s *Service) scope(ctx context.Context, urls []string, id string, tier imageurl.Tier, mode Mode) []string {
	scoped := imageurl.Scope(urls, id)
	if len(scoped) > 0 || len(urls) == 0 || mode != Preview || s.PreviewFallbackLimit < 0 {
		return scoped
	}

	var mappable []string
	for _, u := range urls {
		if mapsTo(u, tier) {
			mappable = append(mappable, u)
		}
	}
	fallback := imageurl.WithoutCertSegment(mappable)
	if len(fallback) == 0 {
		fallback = mappable
	}
	if len(fallback) > s.PreviewFallbackLimit {
		fallback = fallback[:s.PreviewFallbackLimit]
	}
	slog.WarnContext(ctx, "no candidate matched the certificate, previewing unscoped images",
		"identifier", id,
		"candidates", len(urls),
		"kept", len(fallback),
	)
	return fallback
}

// mapsTo reports whether transform keeps u for tier.
func mapsTo(u string, tier imageurl.Tier) bool {
	if tier == imageurl.Original {
		return true
	}
	if _, ok := imageurl.ToTier(u, tier); ok {
		return true
	}
	_, ok := imageurl.ToTier(imageurl.StripTier(u), tier)
	return ok
}

// transform rewrites urls to tier. urls that cannot be mapped are
// logged and dropped.
func (s *Service) transform(ctx context.Context, urls []string, tier imageurl.Tier) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if mapped, ok := imageurl.ToTier(u, tier); ok {
			out = append(out, mapped)
			continue
		}

		stripped := imageurl.StripTier(u)
		if tier == imageurl.Original {
			out = append(out, imageurl.Normalize(stripped))
			continue
		}
		if mapped, ok := imageurl.ToTier(stripped, tier); ok {
			out = append(out, mapped)
			continue
		}

		partialTransformCounter.Add(ctx, 1)
		slog.WarnContext(ctx, "dropping url that cannot be mapped to tier", "url", u, "tier", tier)
	}
	return out
}

func (s *Service) record(ctx context.Context, id, title string, tier imageurl.Tier, mode Mode, records []ImageRecord, lookupErr error) {
	if s.makeTx == nil {
		return
	}
	err := s.saveLookup(ctx, id, title, tier, mode, records, lookupErr)
	if err != nil {
		slog.WarnContext(ctx, "failed to record lookup", "identifier", id, "err", err)
	}
}

func (s *Service) saveLookup(ctx context.Context, id, title string, tier imageurl.Tier, mode Mode, records []ImageRecord, lookupErr error) error {
	tx, discard, commit, err := s.makeTx()
	if err != nil {
		return err
	}
	defer discard()

	errText := ""
	if lookupErr != nil {
		errText = lookupErr.Error()
	}
	lookupID, err := tx.CreateLookup(ctx, db.CreateLookupParams{
		Identifier: id,
		Title:      title,
		Tier:       string(tier),
		Mode:       string(mode),
		Error:      errText,
		LookedUpAt: s.now().Unix(),
	})
	if err != nil {
		return err
	}
	for i, r := range records {
		err = tx.AddImage(ctx, db.AddImageParams{
			LookupID: lookupID,
			Position: int64(i),
			Url:      r.URL,
			Tier:     string(r.Tier),
			Filename: r.Filename,
		})
		if err != nil {
			return err
		}
	}
	return commit()
}

// Batch looks up every identifier with at most workers lookups in
// flight. Lookups share the transport and the preferred endpoint,
// one failing does not stop the others. Results keep input order.
func (s *Service) Batch(ctx context.Context, rawIDs []string, tier imageurl.Tier, mode Mode, workers int) []BatchResult {
	ctx, span := tracer.Start(ctx, "Batch")
	defer span.End()
	span.SetAttributes(attribute.Int("count", len(rawIDs)), attribute.Int("workers", workers))

	if workers <= 0 {
		workers = 1
	}

	results := make([]BatchResult, len(rawIDs))
	group := errgroup.Group{}
	group.SetLimit(workers)
	for i, raw := range rawIDs {
		i, raw := i, raw
		group.Go(func() error {
			result := BatchResult{Input: raw}
			result.Identifier, _ = certid.Normalize(raw)
			result.Images, result.Title, result.Err = s.DiscoverImages(ctx, raw, tier, mode)
			results[i] = result
			return nil
		})
	}
	group.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	span.SetAttributes(attribute.Int("failed", failed))
	return results
}

// BatchErr joins the errors of every failed lookup, nil when all
// lookups succeeded.
func BatchErr(results []BatchResult) error {
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Input, r.Err))
		}
	}
	return errors.Join(errs...)
}
