package certpage

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"certimages-backend/lib/testutil"
	"certimages-backend/lib/transport"

	"github.com/stretchr/testify/require"
)

func noSleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

func newTransport(t *testing.T) *transport.Transport {
	t.Helper()
	tr, err := transport.New(transport.Options{
		ThrottleInterval: -1,
		Rand:             rand.New(rand.NewSource(1)),
		Sleep:            noSleep,
	})
	require.NoError(t, err)
	return tr
}

const page = `<html><head><title>
	PSA Cert   96098359
</title></head><body></body></html>`

func TestGetPagePrimary(t *testing.T) {
	primary := testutil.NewSite(t)
	primary.Handle("/cert/96098359", testutil.HTML(page))

	f := NewFetcher(newTransport(t), Options{PrimaryBaseURL: primary.URL, Mirrors: []string{}})
	res, err := f.GetPage(context.Background(), "96098359")
	require.NoError(t, err)
	require.Equal(t, page, res.Markup)
	require.Equal(t, "PSA Cert 96098359", res.Title)
	require.Equal(t, primary.Link("/cert/96098359"), res.URL)
	require.Equal(t, primary.Link("/cert/96098359"), res.Endpoint)

	reqs := primary.Requests("/cert/96098359")
	require.Len(t, reqs, 1)
	require.Equal(t, primary.Link("/cert/96098359"), reqs[0].Header.Get("Referer"))
}

func TestGetPageFallsBackToMirrorAndRemembersIt(t *testing.T) {
	primary := testutil.NewSite(t)
	primary.Handle("/cert/1", testutil.Status(503))
	mirror := testutil.NewSite(t)
	mirror.Handle("/cert/1", testutil.HTML("<html><title>mirror</title></html>"))

	f := NewFetcher(newTransport(t), Options{
		PrimaryBaseURL: primary.URL,
		Mirrors:        []string{mirror.URL},
	})

	res, err := f.GetPage(context.Background(), "1")
	require.NoError(t, err)
	require.Equal(t, "mirror", res.Title)
	require.Equal(t, 3, primary.Hits("/cert/1"))
	// the /psa variant is unknown to the primary and answers 404 once
	require.Equal(t, 1, primary.Hits("/cert/1/psa"))
	require.Equal(t, 1, mirror.Hits("/cert/1"))
	require.Equal(t, 2, f.Preferred())

	_, err = f.GetPage(context.Background(), "1")
	require.NoError(t, err)
	require.Equal(t, 3, primary.Hits("/cert/1"))
	require.Equal(t, 2, mirror.Hits("/cert/1"))
}

func TestGetPageUnreachable(t *testing.T) {
	primary := testutil.NewSite(t)
	mirror := testutil.NewSite(t)

	f := NewFetcher(newTransport(t), Options{
		PrimaryBaseURL: primary.URL + "/cert/",
		Mirrors:        []string{mirror.URL},
	})
	_, err := f.GetPage(context.Background(), "42")
	require.ErrorIs(t, err, ErrUnreachable)
	require.NotErrorIs(t, err, ErrConnectionRefused)
	require.NotErrorIs(t, err, transport.ErrBlocked)

	var unreachable *UnreachableError
	require.ErrorAs(t, err, &unreachable)
	require.Equal(t, []string{
		primary.Link("/cert/42"),
		primary.Link("/cert/42/psa"),
		mirror.Link("/cert/42"),
	}, unreachable.Attempted)
	require.Contains(t, err.Error(), mirror.Link("/cert/42"))

	var status *transport.StatusError
	require.ErrorAs(t, err, &status)
	require.Equal(t, 404, status.Status)
}

func TestGetPageBlockedEverywhere(t *testing.T) {
	primary := testutil.NewSite(t)
	primary.Handle("/cert/7", testutil.Status(429))
	primary.Handle("/cert/7/psa", testutil.Status(403))

	f := NewFetcher(newTransport(t), Options{PrimaryBaseURL: primary.URL, Mirrors: []string{}})
	_, err := f.GetPage(context.Background(), "7")
	require.ErrorIs(t, err, ErrUnreachable)
	require.ErrorIs(t, err, transport.ErrBlocked)
}

func TestGetPageConnectionRefused(t *testing.T) {
	// nothing listens on port 1
	f := NewFetcher(newTransport(t), Options{PrimaryBaseURL: "http://127.0.0.1:1", Mirrors: []string{}})
	_, err := f.GetPage(context.Background(), "7")
	require.ErrorIs(t, err, ErrUnreachable)
	require.ErrorIs(t, err, ErrConnectionRefused)
	require.Contains(t, err.Error(), "firewall")
}

type cancelingDoer struct {
	cancel context.CancelFunc
	calls  int
}

func (d *cancelingDoer) Fetch(ctx context.Context, url string, headers map[string]string, useProxy bool) (transport.Response, error) {
	d.calls++
	d.cancel()
	return transport.Response{}, errors.New("connection reset")
}

func (d *cancelingDoer) Sleep(ctx context.Context, dur time.Duration) error {
	return ctx.Err()
}

func (d *cancelingDoer) Jitter(min, max time.Duration) time.Duration {
	return min
}

func TestGetPageStopsWhenCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	doer := &cancelingDoer{cancel: cancel}

	f := NewFetcher(doer, Options{})
	_, err := f.GetPage(ctx, "7")
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, ErrUnreachable)
	require.Equal(t, 1, doer.calls)
}

func TestEndpoints(t *testing.T) {
	f := NewFetcher(nil, Options{})
	require.Equal(t, []string{
		"https://www.psacard.com/cert/5",
		"https://www.psacard.com/cert/5/psa",
		"https://www.psacard.co.jp/cert/5",
	}, f.Endpoints("5"))

	f = NewFetcher(nil, Options{
		PrimaryBaseURL: "https://www.psacard.com/cert",
		Mirrors:        []string{"https://www.psacard.com", "https://mirror.example/"},
	})
	require.Equal(t, []string{
		"https://www.psacard.com/cert/5",
		"https://www.psacard.com/cert/5/psa",
		"https://mirror.example/cert/5",
	}, f.Endpoints("5"))
}

func TestPageTitleFallback(t *testing.T) {
	require.Equal(t, "PSA Certificate 12", pageTitle("12", "<html><body>no title</body></html>"))
	require.Equal(t, "PSA Certificate 12", pageTitle("12", "<html><title>  </title></html>"))
}
