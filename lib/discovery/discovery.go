package discovery

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

var tracer = otel.Tracer("certimages.lib.discovery")
var meter = otel.Meter("certimages.lib.discovery")

var candidateCounter, _ = meter.Int64Counter(
	"discovery.candidates",
	metric.WithDescription("image candidates found per strategy"),
)

const DefaultCDNHost = "cloudfront.net"

type Options struct {
	// CDNHost is the host suffix of the image CDN, defaults to
	// cloudfront.net.
	CDNHost string
}

// Discover runs the markup based strategies over a page and unions
// their results. The result is sorted with SortCandidates.
func Discover(ctx context.Context, markup, baseURL string, opts Options) []Candidate {
	ctx, span := tracer.Start(ctx, "Discover")
	defer span.End()

	if opts.CDNHost == "" {
		opts.CDNHost = DefaultCDNHost
	}

	var base *url.URL
	if baseURL != "" {
		parsed, err := url.Parse(baseURL)
		if err != nil {
			span.RecordError(err)
		} else {
			base = parsed
		}
	}

	var sets [][]Candidate
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse markup, falling back to raw scan")
		slog.WarnContext(ctx, "failed to parse page markup", "err", err)
	} else {
		sets = append(sets,
			HintAttributes(doc, base),
			SourceAttributes(doc, base),
			BackgroundStyles(doc, base),
			ScriptData(doc),
		)
	}
	sets = append(sets, CDNScan(markup, CDNPattern(opts.CDNHost)))

	for _, set := range sets {
		if len(set) == 0 {
			continue
		}
		candidateCounter.Add(ctx, int64(len(set)), metric.WithAttributes(
			attribute.String("strategy", string(set[0].Strategy)),
		))
	}

	out := Union(sets...)
	SortCandidates(out)

	span.SetAttributes(attribute.Int("candidates", len(out)))
	slog.DebugContext(ctx, "discovered image candidates", "count", len(out))
	return out
}
