package metadata

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// Response is a canned reply from the fake MDQ server.
type Response struct {
	Status int
	Header http.Header
	Body   []byte

	// Delay holds the reply back, for timeout tests.
	Delay time.Duration
}

// Server is a fake MDQ service that counts requests per path. Paths are
// matched in escaped form, e.g. "/entities/%7Bsha1%7D...".
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	responses map[string]Response
	hits      map[string]int
	last      *http.Request
}

// NewServer starts a fake MDQ server that is closed when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		responses: make(map[string]Response),
		hits:      make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// NewTLSServer is NewServer over TLS with a self-signed certificate.
func NewTLSServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		responses: make(map[string]Response),
		hits:      make(map[string]int),
	}
	s.Server = httptest.NewTLSServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// Handle sets the reply for path.
func (s *Server) Handle(path string, r Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.Status == 0 {
		r.Status = http.StatusOK
	}
	s.responses[path] = r
}

// Redirect makes path answer with a 302 to location.
func (s *Server) Redirect(path, location string) {
	s.Handle(path, Response{
		Status: http.StatusFound,
		Header: http.Header{"Location": {location}},
	})
}

// Hits returns how many requests path has received.
func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// TotalHits returns how many requests the server has received.
func (s *Server) TotalHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.hits {
		total += n
	}
	return total
}

// LastRequest returns a copy of the most recent request, or nil.
func (s *Server) LastRequest() *http.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	path := r.URL.EscapedPath()

	s.mu.Lock()
	s.hits[path]++
	s.last = r.Clone(r.Context())
	resp, ok := s.responses[path]
	s.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}

	for name, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}

	if etag := w.Header().Get("ETag"); etag != "" && r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	if lm := w.Header().Get("Last-Modified"); lm != "" && r.Header.Get("If-None-Match") == "" && r.Header.Get("If-Modified-Since") == lm {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	if w.Header().Get("Content-Type") == "" && len(resp.Body) > 0 {
		w.Header().Set("Content-Type", "application/samlmetadata+xml")
	}
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}
