package transport

import (
	"math/rand"
	"net/url"
	"sync"
	"time"
)

var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_6_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:124.0) Gecko/20100101 Firefox/124.0",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Linux; Android 14; Pixel 7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Mobile Safari/537.36",
}

// Identity is what a single request presents to the remote site.
// A nil Proxy means a direct connection.
type Identity struct {
	UserAgent string
	Proxy     *url.URL
}

func (i Identity) ProxyString() string {
	if i.Proxy == nil {
		return ""
	}
	return i.Proxy.Redacted()
}

type rotationChance struct {
	userAgent float64
	proxy     float64
}

var defaultRotationChance = rotationChance{userAgent: 0.35, proxy: 0.25}

type identityIndex struct {
	userAgent int
	// -1 when the proxy pool is empty
	proxy int
}

// rotateIdentity draws a new identity with replacement. Forced
// rotation swaps every pool, otherwise each pool is swapped with its
// own probability. It consumes no randomness for empty pools.
func rotateIdentity(r *rand.Rand, cur identityIndex, userAgents, proxies int, force bool, chance rotationChance) identityIndex {
	next := cur
	if userAgents > 0 && (force || r.Float64() < chance.userAgent) {
		next.userAgent = r.Intn(userAgents)
	}
	if proxies > 0 && (force || r.Float64() < chance.proxy) {
		next.proxy = r.Intn(proxies)
	}
	return next
}

func initialIdentity(r *rand.Rand, userAgents, proxies int) identityIndex {
	idx := identityIndex{proxy: -1}
	if userAgents > 0 {
		idx.userAgent = r.Intn(userAgents)
	}
	if proxies > 0 {
		idx.proxy = r.Intn(proxies)
	}
	return idx
}

// TransportState is the mutable part of a Transport shared by every
// request: the current identity, whether proxies were abandoned, whether
// certificate verification was disabled and the random source driving
// rotation and jitter. It is safe for concurrent use.
type TransportState struct {
	mu            sync.Mutex
	rng           *rand.Rand
	chance        rotationChance
	userAgents    []string
	proxies       []*url.URL
	current       identityIndex
	proxyDisabled bool
	insecure      bool
}

func newTransportState(rng *rand.Rand, userAgents []string, proxies []*url.URL, insecure bool) *TransportState {
	return &TransportState{
		rng:        rng,
		chance:     defaultRotationChance,
		userAgents: userAgents,
		proxies:    proxies,
		current:    initialIdentity(rng, len(userAgents), len(proxies)),
		insecure:   insecure,
	}
}

// Identity returns the identity for the next request. useProxy=false or
// an abandoned proxy pool yields a direct connection.
func (s *TransportState) Identity(useProxy bool) Identity {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := Identity{}
	if len(s.userAgents) > 0 {
		id.UserAgent = s.userAgents[s.current.userAgent]
	}
	if useProxy && !s.proxyDisabled && s.current.proxy >= 0 {
		id.Proxy = s.proxies[s.current.proxy]
	}
	return id
}

func (s *TransportState) Rotate(force bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = rotateIdentity(s.rng, s.current, len(s.userAgents), len(s.proxies), force, s.chance)
}

// DisableProxy switches every later request to direct connections. It
// reports whether this call made the switch.
func (s *TransportState) DisableProxy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proxyDisabled {
		return false
	}
	s.proxyDisabled = true
	return true
}

func (s *TransportState) SetInsecure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insecure = true
}

func (s *TransportState) Insecure() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insecure
}

// Uniform draws a duration in [min, max).
func (s *TransportState) Uniform(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return min + time.Duration(s.rng.Int63n(int64(max-min)))
}

type StateSnapshot struct {
	UserAgent     string
	Proxy         string
	ProxyDisabled bool
	Insecure      bool
}

func (s *TransportState) Snapshot() StateSnapshot {
	id := s.Identity(true)
	s.mu.Lock()
	defer s.mu.Unlock()
	return StateSnapshot{
		UserAgent:     id.UserAgent,
		Proxy:         id.ProxyString(),
		ProxyDisabled: s.proxyDisabled,
		Insecure:      s.insecure,
	}
}
