package certimages

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"testing"
	"time"

	"certimages-backend/lib/certid"
	"certimages-backend/lib/imageurl"
	"certimages-backend/lib/scrapers/certpage"
	"certimages-backend/lib/testutil"
	"certimages-backend/lib/transport"
	"certimages-backend/services/certimages/db"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const id = "96098359"

type fixture struct {
	page *testutil.Site
	cdn  *testutil.Site
}

func newFixture(t *testing.T) fixture {
	return fixture{
		page: testutil.NewSite(t),
		cdn:  testutil.NewSite(t),
	}
}

func (f fixture) options() Options {
	return Options{
		Transport: transport.Options{
			ThrottleInterval: -1,
			Rand:             rand.New(rand.NewSource(1)),
			Sleep: func(ctx context.Context, d time.Duration) error {
				return ctx.Err()
			},
		},
		Page: certpage.Options{
			PrimaryBaseURL: f.page.URL,
			Mirrors:        []string{},
		},
		CDNHost:    strings.TrimPrefix(f.cdn.URL, "http://"),
		CDNBaseURL: f.cdn.URL,
	}
}

func (f fixture) image(cert, tier, name string) string {
	if tier == "" {
		return fmt.Sprintf("%s/cert/%s/%s", f.cdn.URL, cert, name)
	}
	return fmt.Sprintf("%s/cert/%s/%s/%s", f.cdn.URL, cert, tier, name)
}

func (f fixture) servePage(cert string, imgs ...string) {
	var b strings.Builder
	b.WriteString("<html><head><title>PSA Cert " + cert + "</title></head><body>")
	b.WriteString(`<img src="/static/psa-logo.png">`)
	for _, img := range imgs {
		fmt.Fprintf(&b, `<img src="%s">`, img)
	}
	b.WriteString("</body></html>")
	f.page.Handle("/cert/"+cert, testutil.HTML(b.String()))
}

func newService(t *testing.T, f fixture, mutate ...func(*Options)) *Service {
	t.Helper()
	opts := f.options()
	for _, m := range mutate {
		m(&opts)
	}
	s, err := NewService(nil, opts)
	require.NoError(t, err)
	return s
}

func urlsOf(records []ImageRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.URL
	}
	return out
}

func TestDiscoverImagesUpgradesThumbnails(t *testing.T) {
	f := newFixture(t)
	f.servePage(id, f.image(id, "small", "front.jpg"), f.image(id, "small", "back.jpg"))
	f.cdn.Handle("/cert/"+id+"/large/front.jpg", testutil.Image())
	f.cdn.Handle("/cert/"+id+"/large/back.jpg", testutil.Image())

	s := newService(t, f)
	records, title, err := s.DiscoverImages(context.Background(), "PSA "+id, imageurl.Large, Download)
	require.NoError(t, err)
	require.Equal(t, "PSA Cert "+id, title)
	require.Empty(t, cmp.Diff([]ImageRecord{
		{URL: f.image(id, "large", "front.jpg"), Tier: imageurl.Large, Identifier: id, Filename: "front.jpg"},
		{URL: f.image(id, "large", "back.jpg"), Tier: imageurl.Large, Identifier: id, Filename: "back.jpg"},
	}, records))

	// tier siblings were probed
	require.Equal(t, 1, f.cdn.Hits("/cert/"+id+"/large/front.jpg"))
	require.Equal(t, http.MethodHead, f.cdn.Requests("/cert/"+id+"/large/front.jpg")[0].Method)
}

func TestDiscoverImagesWithoutProbing(t *testing.T) {
	f := newFixture(t)
	f.servePage(id, f.image(id, "small", "front.jpg"), f.image(id, "small", "back.jpg"))

	s := newService(t, f, func(o *Options) { o.DisableProbing = true })
	records, _, err := s.DiscoverImages(context.Background(), id, imageurl.Original, Download)
	require.NoError(t, err)
	require.Equal(t, []string{
		f.image(id, "", "front.jpg"),
		f.image(id, "", "back.jpg"),
	}, urlsOf(records))
	require.Equal(t, 0, f.cdn.TotalHits())
}

func TestDiscoverImagesDropsOtherCertificates(t *testing.T) {
	f := newFixture(t)
	f.servePage(id,
		f.image(id, "large", "front.jpg"),
		f.image("11111111", "large", "front.jpg"),
		f.image("11111111", "large", "other.jpg"),
	)

	s := newService(t, f, func(o *Options) { o.DisableProbing = true })
	records, _, err := s.DiscoverImages(context.Background(), id, imageurl.Medium, Download)
	require.NoError(t, err)
	require.Equal(t, []string{f.image(id, "medium", "front.jpg")}, urlsOf(records))
}

func TestDiscoverImagesNothingFound(t *testing.T) {
	f := newFixture(t)
	f.servePage(id, f.image("11111111", "large", "front.jpg"))

	s := newService(t, f, func(o *Options) { o.DisableProbing = true })
	records, title, err := s.DiscoverImages(context.Background(), id, imageurl.Large, Download)
	require.NoError(t, err)
	require.Empty(t, records)
	require.Equal(t, "PSA Cert "+id, title)
}

func TestDiscoverImagesPreviewFallback(t *testing.T) {
	t.Run("other certificates", func(t *testing.T) {
		f := newFixture(t)
		f.servePage(id,
			f.image("11111111", "large", "a.jpg"),
			f.image("11111111", "large", "b.jpg"),
			f.image("11111111", "large", "c.jpg"),
		)

		s := newService(t, f, func(o *Options) { o.DisableProbing = true })
		records, _, err := s.DiscoverImages(context.Background(), id, imageurl.Small, Preview)
		require.NoError(t, err)
		require.Equal(t, []string{
			f.image("11111111", "small", "a.jpg"),
			f.image("11111111", "small", "b.jpg"),
		}, urlsOf(records))
	})

	t.Run("prefers urls without a certificate", func(t *testing.T) {
		f := newFixture(t)
		f.servePage(id,
			f.image("11111111", "large", "a.jpg"),
			f.cdn.URL+"/gallery/card_large.jpg",
		)

		s := newService(t, f, func(o *Options) {
			o.DisableProbing = true
			o.PreviewFallbackLimit = 1
		})
		records, _, err := s.DiscoverImages(context.Background(), id, imageurl.Original, Preview)
		require.NoError(t, err)
		require.Equal(t, []string{f.cdn.URL + "/gallery/card_large.jpg"}, urlsOf(records))
	})

	t.Run("skips urls the tier cannot map", func(t *testing.T) {
		f := newFixture(t)
		f.servePage(id,
			f.image("11111111", "small", "front.jpg"),
			f.image("11111111", "small", "back.jpg"),
			f.cdn.URL+"/gallery/card_large.jpg",
		)

		s := newService(t, f, func(o *Options) { o.DisableProbing = true })
		records, _, err := s.DiscoverImages(context.Background(), id, imageurl.Large, Preview)
		require.NoError(t, err)
		require.Equal(t, []string{
			f.image("11111111", "large", "front.jpg"),
			f.image("11111111", "large", "back.jpg"),
		}, urlsOf(records))
	})

	t.Run("disabled", func(t *testing.T) {
		f := newFixture(t)
		f.servePage(id, f.image("11111111", "large", "a.jpg"))

		s := newService(t, f, func(o *Options) {
			o.DisableProbing = true
			o.PreviewFallbackLimit = -1
		})
		records, _, err := s.DiscoverImages(context.Background(), id, imageurl.Large, Preview)
		require.NoError(t, err)
		require.Empty(t, records)
	})
}

func TestDiscoverImagesProbesCommonPatterns(t *testing.T) {
	f := newFixture(t)
	f.servePage(id)
	f.cdn.Handle("/cert/"+id+"/large/front.jpg", testutil.Image())
	f.cdn.Handle("/cert/"+id+"/large/back.jpg", testutil.Image())

	s := newService(t, f)
	records, _, err := s.DiscoverImages(context.Background(), id, imageurl.Small, Download)
	require.NoError(t, err)
	require.Equal(t, []string{
		f.image(id, "small", "front.jpg"),
		f.image(id, "small", "back.jpg"),
	}, urlsOf(records))

	// preview mode never guesses
	hits := f.cdn.TotalHits()
	records, _, err = s.DiscoverImages(context.Background(), id, imageurl.Small, Preview)
	require.NoError(t, err)
	require.Empty(t, records)
	require.Equal(t, hits, f.cdn.TotalHits())
}

func TestDiscoverImagesMaxImages(t *testing.T) {
	f := newFixture(t)
	f.servePage(id,
		f.image(id, "large", "slab.jpg"),
		f.image(id, "large", "reverse.jpg"),
		f.image(id, "large", "obverse.jpg"),
	)

	s := newService(t, f, func(o *Options) {
		o.DisableProbing = true
		o.MaxImages = 2
	})
	records, _, err := s.DiscoverImages(context.Background(), id, imageurl.Large, Download)
	require.NoError(t, err)
	require.Equal(t, []string{
		f.image(id, "large", "obverse.jpg"),
		f.image(id, "large", "reverse.jpg"),
	}, urlsOf(records))
}

func TestDiscoverImagesErrors(t *testing.T) {
	f := newFixture(t)
	s := newService(t, f)

	_, _, err := s.DiscoverImages(context.Background(), "no digits", imageurl.Large, Download)
	require.ErrorIs(t, err, certid.ErrInvalidIdentifier)
	require.Equal(t, 0, f.page.TotalHits())

	_, _, err = s.DiscoverImages(context.Background(), id, imageurl.Large, Download)
	require.ErrorIs(t, err, certpage.ErrUnreachable)
}

func TestDiscoverImagesRecordsHistory(t *testing.T) {
	res, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "services/certimages",
		DbSchema: db.Schema,
	})
	defer cleanup()

	f := newFixture(t)
	f.servePage(id, f.image(id, "large", "front.jpg"), f.image(id, "large", "back.jpg"))

	opts := f.options()
	opts.DisableProbing = true
	s, err := NewService(res.DB, opts)
	require.NoError(t, err)
	s.now = func() time.Time { return time.Unix(1700000000, 0) }

	_, _, err = s.DiscoverImages(context.Background(), id, imageurl.Large, Download)
	require.NoError(t, err)
	_, _, err = s.DiscoverImages(context.Background(), "42", imageurl.Large, Preview)
	require.Error(t, err)

	qry := db.New(res.DB)
	lookups, err := qry.GetLookups(context.Background(), db.GetLookupsParams{Identifier: id, Limit: 5})
	require.NoError(t, err)
	require.Len(t, lookups, 1)
	require.Equal(t, "PSA Cert "+id, lookups[0].Title)
	require.Equal(t, int64(1700000000), lookups[0].LookedUpAt)

	images, err := qry.GetImages(context.Background(), lookups[0].ID)
	require.NoError(t, err)
	require.Len(t, images, 2)
	require.Equal(t, "front.jpg", images[0].Filename)

	failed, err := qry.GetLookups(context.Background(), db.GetLookupsParams{Identifier: "42", Limit: 5})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.Contains(t, failed[0].Error, "could not reach")
}

func TestBatch(t *testing.T) {
	f := newFixture(t)
	f.servePage(id, f.image(id, "large", "front.jpg"))
	f.servePage("12345678", f.image("12345678", "large", "back.jpg"))

	s := newService(t, f, func(o *Options) { o.DisableProbing = true })
	results := s.Batch(context.Background(), []string{id, "n/a", "#12345678"}, imageurl.Large, Download, 2)
	require.Len(t, results, 3)

	require.NoError(t, results[0].Err)
	require.Equal(t, []string{f.image(id, "large", "front.jpg")}, urlsOf(results[0].Images))

	require.ErrorIs(t, results[1].Err, certid.ErrInvalidIdentifier)
	require.Equal(t, "n/a", results[1].Input)

	require.NoError(t, results[2].Err)
	require.Equal(t, "12345678", results[2].Identifier)
	require.Equal(t, []string{f.image("12345678", "large", "back.jpg")}, urlsOf(results[2].Images))

	err := BatchErr(results)
	require.ErrorIs(t, err, certid.ErrInvalidIdentifier)
	require.Contains(t, err.Error(), "n/a")
	require.NoError(t, BatchErr(results[:1]))
}

func TestParseMode(t *testing.T) {
	mode, err := ParseMode(" Preview ")
	require.NoError(t, err)
	require.Equal(t, Preview, mode)

	mode, err = ParseMode("")
	require.NoError(t, err)
	require.Equal(t, Download, mode)

	_, err = ParseMode("zip")
	require.Error(t, err)
}
