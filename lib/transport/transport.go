package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"certimages-backend/lib/restyutil"
	"certimages-backend/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

// SleepFunc waits for d or until ctx is done, whichever comes first.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type Options struct {
	// Proxies are proxy urls (http, https or socks5). Unparseable entries
	// are skipped.
	Proxies []string
	// UserAgents defaults to DefaultUserAgents.
	UserAgents []string
	// InsecureTransport disables certificate verification from the start.
	// Without it verification is only disabled after a request fails
	// purely because of a certificate error.
	InsecureTransport bool

	// MaxAttempts per Fetch call, defaults to 3.
	MaxAttempts int
	// RetryDelay is the base of the exponential backoff, defaults to 1s.
	// Blocked responses back off 1.5 times longer.
	RetryDelay time.Duration
	// ThrottleInterval is the minimum spacing between requests, defaults
	// to 600ms. A negative value disables throttling.
	ThrottleInterval time.Duration

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	ProbeTimeout   time.Duration

	// Rand drives identity rotation and jitter, seeded from the clock
	// when nil.
	Rand *rand.Rand
	// Sleep replaces backoff and jitter sleeps, mostly for tests.
	Sleep SleepFunc
	// InstrumentOutput receives request dumps while debug logging.
	InstrumentOutput restyutil.InstrumentOutput
}

func (o *Options) setDefaults() {
	if len(o.UserAgents) == 0 {
		o.UserAgents = DefaultUserAgents
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = time.Second
	}
	if o.ThrottleInterval == 0 {
		o.ThrottleInterval = 600 * time.Millisecond
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 30 * time.Second
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = 3 * time.Second
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if o.Sleep == nil {
		o.Sleep = sleepContext
	}
}

var defaultHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.9",
	"Accept-Encoding":           "gzip, deflate, br",
	"Upgrade-Insecure-Requests": "1",
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "none",
	"DNT":                       "1",
}

const (
	throttleJitterMin = 50 * time.Millisecond
	throttleJitterMax = 200 * time.Millisecond
)

// Transport is a long lived http client that spaces out requests,
// rotates its identity and retries transient failures. It is safe for
// concurrent use.
type Transport struct {
	secure   *resty.Client
	insecure *resty.Client
	state    *TransportState
	limiter  *rate.Limiter
	sleep    SleepFunc

	maxAttempts  int
	retryDelay   time.Duration
	probeTimeout time.Duration
}

type Response struct {
	Status   int
	Body     []byte
	FinalURL string
}

type ProbeResult struct {
	Status      int
	ContentType string
}

type proxyContextKey struct{}

func proxyFromContext(req *http.Request) (*url.URL, error) {
	proxy, _ := req.Context().Value(proxyContextKey{}).(*url.URL)
	return proxy, nil
}

func parseProxies(raw []string) []*url.URL {
	var out []*url.URL
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		parsed, err := url.Parse(p)
		if err != nil || parsed.Host == "" {
			slog.Warn("skipping invalid proxy", "proxy", p, "err", err)
			continue
		}
		switch strings.ToLower(parsed.Scheme) {
		case "http", "https", "socks5", "socks5h":
			out = append(out, parsed)
		default:
			slog.Warn("skipping proxy with unsupported scheme", "proxy", parsed.Redacted())
		}
	}
	return out
}

func newClient(opts Options, jar http.CookieJar, insecure bool) *resty.Client {
	dialer := &net.Dialer{
		Timeout:   opts.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}
	base := &http.Transport{
		Proxy:                 proxyFromContext,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   opts.ConnectTimeout,
		ResponseHeaderTimeout: opts.ReadTimeout,
	}
	roundTripper := cloudflarebp.AddCloudFlareByPass(base)
	// the bypass replaces the tls config, so verification is set after it
	if base.TLSClientConfig == nil {
		base.TLSClientConfig = &tls.Config{}
	}
	base.TLSClientConfig.InsecureSkipVerify = insecure

	client := resty.New()
	client.SetTransport(decodingTransport{inner: roundTripper})
	client.SetCookieJar(jar)
	client.SetTimeout(opts.ConnectTimeout + opts.ReadTimeout)
	client.SetHeaders(defaultHeaders)

	telemetry.InstrumentResty(client, "certimages.lib.transport/http")
	restyutil.InstrumentClient(client, opts.InstrumentOutput)
	return client
}

func New(opts Options) (*Transport, error) {
	opts.setDefaults()

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}

	limit := rate.Inf
	if opts.ThrottleInterval > 0 {
		limit = rate.Every(opts.ThrottleInterval)
	}

	return &Transport{
		secure:       newClient(opts, jar, false),
		insecure:     newClient(opts, jar, true),
		state:        newTransportState(opts.Rand, opts.UserAgents, parseProxies(opts.Proxies), opts.InsecureTransport),
		limiter:      rate.NewLimiter(limit, 1),
		sleep:        opts.Sleep,
		maxAttempts:  opts.MaxAttempts,
		retryDelay:   opts.RetryDelay,
		probeTimeout: opts.ProbeTimeout,
	}, nil
}

func (t *Transport) State() StateSnapshot {
	return t.state.Snapshot()
}

// Sleep waits like the transport's backoff does, honoring ctx.
func (t *Transport) Sleep(ctx context.Context, d time.Duration) error {
	return t.sleep(ctx, d)
}

// Jitter draws a duration in [min, max) from the transport's random
// source.
func (t *Transport) Jitter(min, max time.Duration) time.Duration {
	return t.state.Uniform(min, max)
}

func (t *Transport) throttle(ctx context.Context) error {
	err := t.limiter.Wait(ctx)
	if err != nil {
		return err
	}
	return t.sleep(ctx, t.state.Uniform(throttleJitterMin, throttleJitterMax))
}

func (t *Transport) do(ctx context.Context, method, rawURL string, headers map[string]string, id Identity) (*resty.Response, error) {
	client := t.secure
	if t.state.Insecure() {
		client = t.insecure
	}
	if id.Proxy != nil {
		ctx = context.WithValue(ctx, proxyContextKey{}, id.Proxy)
	}

	requestCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("method", method)))

	req := client.R().SetContext(ctx)
	if id.UserAgent != "" {
		req.SetHeader("User-Agent", id.UserAgent)
	}
	req.SetHeaders(headers)
	return req.Execute(method, rawURL)
}

func (t *Transport) newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.retryDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = 30 * t.retryDelay
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// backoffDelay is base * 2^n plus jitter, where n counts the retries of
// the current call. Blocked responses use a 1.5x base and less jitter.
func (t *Transport) backoffDelay(b *backoff.ExponentialBackOff, blocked bool) time.Duration {
	delay := b.NextBackOff()
	if blocked {
		return delay*3/2 + t.state.Uniform(300*time.Millisecond, 900*time.Millisecond)
	}
	return delay + t.state.Uniform(500*time.Millisecond, time.Second)
}

// Fetch GETs rawURL, retrying connection errors, 5xx responses and
// blocks. It returns a *BlockedError when the final attempt was still
// blocked, a *StatusError for non transient statuses, and the last
// transport error otherwise.
func (t *Transport) Fetch(ctx context.Context, rawURL string, headers map[string]string, useProxy bool) (Response, error) {
	ctx, span := tracer.Start(ctx, "Transport:Fetch")
	defer span.End()
	span.SetAttributes(attribute.String("url", rawURL))

	delays := t.newBackoff()
	proxyRetried := false
	certRetried := false

	var lastErr error
	attempt := 0
	for attempt < t.maxAttempts {
		err := t.throttle(ctx)
		if err != nil {
			span.SetStatus(codes.Error, "canceled while throttling")
			return Response{}, err
		}
		if attempt > 0 {
			t.state.Rotate(false)
		}
		id := t.state.Identity(useProxy)

		res, err := t.do(ctx, http.MethodGet, rawURL, headers, id)
		blocked := false
		switch {
		case err != nil && isCanceled(ctx, err):
			span.RecordError(err)
			span.SetStatus(codes.Error, "canceled")
			return Response{}, ctx.Err()

		case err != nil && id.Proxy != nil && isProxyError(err) && !proxyRetried:
			proxyRetried = true
			t.state.Rotate(true)
			if t.state.DisableProxy() {
				fallbackCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "proxy")))
				slog.WarnContext(ctx, "proxy failed, continuing without proxies", "proxy", id.ProxyString(), "err", err)
			}
			lastErr = err
			continue

		case err != nil && isCertificateError(err) && !t.state.Insecure() && !certRetried:
			certRetried = true
			t.state.SetInsecure()
			fallbackCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "insecure")))
			slog.WarnContext(ctx, "certificate verification failed, retrying without verification", "url", rawURL, "err", err)
			lastErr = err
			continue

		case err != nil:
			lastErr = err

		default:
			status := res.StatusCode()
			success := status >= 200 && status < 300
			switch {
			case status == http.StatusTooManyRequests || status == http.StatusForbidden ||
				(success && isChallengePage(res.Body())):
				blocked = true
				blockedCounter.Add(ctx, 1)
				lastErr = &BlockedError{URL: rawURL, Status: status, Attempts: attempt + 1}
			case success:
				finalURL := rawURL
				if res.RawResponse != nil && res.RawResponse.Request != nil {
					finalURL = res.RawResponse.Request.URL.String()
				}
				span.SetAttributes(attribute.Int("status", status), attribute.Int("attempts", attempt+1))
				return Response{
					Status:   status,
					Body:     res.Body(),
					FinalURL: finalURL,
				}, nil
			case status >= 500:
				lastErr = &StatusError{URL: rawURL, Status: status}
			default:
				err := &StatusError{URL: rawURL, Status: status}
				span.RecordError(err)
				span.SetStatus(codes.Error, "unexpected status")
				return Response{}, err
			}
		}

		attempt++
		if attempt >= t.maxAttempts {
			break
		}
		if blocked {
			t.state.Rotate(true)
		}

		delay := t.backoffDelay(delays, blocked)
		retryCounter.Add(ctx, 1)
		slog.WarnContext(
			ctx, "retrying request",
			"url", rawURL,
			"attempt", attempt+1,
			"max_attempts", t.maxAttempts,
			"blocked", blocked,
			"delay", delay,
			"err", lastErr,
		)
		err = t.sleep(ctx, delay)
		if err != nil {
			span.SetStatus(codes.Error, "canceled during backoff")
			return Response{}, err
		}
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "attempts exhausted")
	return Response{}, lastErr
}

// Probe issues a single HEAD request with the short probe timeout.
func (t *Transport) Probe(ctx context.Context, rawURL string) (ProbeResult, error) {
	ctx, span := tracer.Start(ctx, "Transport:Probe")
	defer span.End()
	span.SetAttributes(attribute.String("url", rawURL))

	err := t.throttle(ctx)
	if err != nil {
		return ProbeResult{}, err
	}

	probeCtx, cancel := context.WithTimeout(ctx, t.probeTimeout)
	defer cancel()

	id := t.state.Identity(true)
	res, err := t.do(probeCtx, http.MethodHead, rawURL, nil, id)
	if err != nil {
		if id.Proxy != nil && isProxyError(err) && t.state.DisableProxy() {
			fallbackCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "proxy")))
			slog.WarnContext(ctx, "proxy failed while probing, continuing without proxies", "proxy", id.ProxyString())
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "probe failed")
		return ProbeResult{}, fmt.Errorf("probe %s: %w", rawURL, err)
	}

	result := ProbeResult{
		Status:      res.StatusCode(),
		ContentType: res.Header().Get("Content-Type"),
	}
	span.SetAttributes(
		attribute.Int("status", result.Status),
		attribute.String("content_type", result.ContentType),
	)
	return result, nil
}
