package testutil

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// Reply is one scripted answer of a Site.
type Reply struct {
	Status  int
	Body    string
	Headers map[string]string
}

func HTML(body string) Reply {
	return Reply{
		Status:  http.StatusOK,
		Body:    body,
		Headers: map[string]string{"Content-Type": "text/html; charset=utf-8"},
	}
}

func Image() Reply {
	return Reply{
		Status:  http.StatusOK,
		Body:    "\x89PNG",
		Headers: map[string]string{"Content-Type": "image/png"},
	}
}

func Status(status int) Reply {
	return Reply{Status: status}
}

// Site is an httptest server answering each path from a queue of
// replies. The last reply of a queue repeats, unknown paths get 404.
type Site struct {
	*httptest.Server

	mu       sync.Mutex
	replies  map[string][]Reply
	hits     map[string]int
	requests map[string][]*http.Request
}

func newSite() *Site {
	return &Site{
		replies:  map[string][]Reply{},
		hits:     map[string]int{},
		requests: map[string][]*http.Request{},
	}
}

func NewSite(t testing.TB) *Site {
	s := newSite()
	s.Server = httptest.NewServer(s)
	t.Cleanup(s.Close)
	return s
}

// NewTLSSite is NewSite served over https with a self signed
// certificate that clients do not trust by default.
func NewTLSSite(t testing.TB) *Site {
	s := newSite()
	s.Server = httptest.NewTLSServer(s)
	t.Cleanup(s.Close)
	return s
}

func (s *Site) Handle(path string, replies ...Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies[path] = append(s.replies[path], replies...)
}

func (s *Site) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *Site) TotalHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.hits {
		total += n
	}
	return total
}

// Requests returns the requests received on path, in order.
func (s *Site) Requests(path string) []*http.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*http.Request(nil), s.requests[path]...)
}

func (s *Site) Link(path string) string {
	return s.URL + path
}

func (s *Site) next(path string) (Reply, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue, ok := s.replies[path]
	if !ok || len(queue) == 0 {
		return Reply{}, false
	}
	reply := queue[0]
	if len(queue) > 1 {
		s.replies[path] = queue[1:]
	}
	return reply, true
}

func (s *Site) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.hits[r.URL.Path]++
	s.requests[r.URL.Path] = append(s.requests[r.URL.Path], r.Clone(r.Context()))
	s.mu.Unlock()

	reply, ok := s.next(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	for k, v := range reply.Headers {
		w.Header().Set(k, v)
	}
	status := reply.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if r.Method != http.MethodHead {
		w.Write([]byte(reply.Body))
	}
}
