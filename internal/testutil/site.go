// Package testutil provides testing utilities for freeze navigation.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/Sternrassler/freeze-cache/internal/demo"
)

// Site is a fixture web site serving the demo pages, with request tracking.
type Site struct {
	server   *httptest.Server
	pages    *demo.Pages
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc
	requests map[string]int
}

// NewSite starts a fixture site.
func NewSite() *Site {
	site := &Site{
		pages:    &demo.Pages{},
		handlers: make(map[string]http.HandlerFunc),
		requests: make(map[string]int),
	}
	fallback := site.pages.Handler()

	site.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		site.mu.Lock()
		site.requests[r.URL.Path]++
		handler, exists := site.handlers[r.URL.Path]
		site.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}
		fallback.ServeHTTP(w, r)
	}))

	return site
}

// URL returns the site URL joined with path.
func (s *Site) URL(path string) string {
	return s.server.URL + path
}

// Close shuts down the site.
func (s *Site) Close() {
	s.server.Close()
}

// SetHandler overrides the handler for a path.
func (s *Site) SetHandler(path string, handler http.HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[path] = handler
}

// SetPage serves markup for path.
func (s *Site) SetPage(path, markup string) {
	s.SetHandler(path, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(markup))
	})
}

// Requests returns how many requests were made for path.
func (s *Site) Requests(path string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.requests[path]
}

// Reset clears the request counters.
func (s *Site) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = make(map[string]int)
}
