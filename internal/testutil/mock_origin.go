// Package testutil provides testing utilities for the HTML edge cache.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/Sternrassler/html-edge-cache/pkg/directive"
)

// MockResponse defines the behavior for a mock origin path.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockOrigin is a configurable origin server for testing.
type MockOrigin struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc
	fallback MockResponse

	// Tracking
	requestCount      int
	advertisedCount   int
	pathCounts        map[string]int
	lastRequestHeader http.Header
}

// NewMockOrigin creates a mock origin that answers unknown paths with a
// cacheable HTML page.
func NewMockOrigin() *MockOrigin {
	mock := &MockOrigin{
		handlers:   make(map[string]http.HandlerFunc),
		pathCounts: make(map[string]int),
		fallback:   NewHTMLResponse("<html><body>default</body></html>", ""),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount++
		mock.pathCounts[r.URL.Path]++
		mock.lastRequestHeader = r.Header.Clone()
		if r.Header.Get(directive.HeaderName) == directive.Capabilities {
			mock.advertisedCount++
		}
		handler, exists := mock.handlers[r.URL.Path]
		fallback := mock.fallback
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}
		writeMockResponse(w, fallback)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockOrigin) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockOrigin) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockOrigin) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.advertisedCount = 0
	m.pathCounts = make(map[string]int)
	m.lastRequestHeader = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockOrigin) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockOrigin) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		writeMockResponse(w, resp)
	})
}

// SetSequence answers a path with each response in turn, repeating the
// last one once the sequence is exhausted.
func (m *MockOrigin) SetSequence(path string, responses ...MockResponse) {
	var (
		mu   sync.Mutex
		next int
	)
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		resp := responses[next]
		if next < len(responses)-1 {
			next++
		}
		mu.Unlock()
		writeMockResponse(w, resp)
	})
}

// RequestCount returns the number of requests made to the server.
func (m *MockOrigin) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// PathCount returns the number of requests made for path.
func (m *MockOrigin) PathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pathCounts[path]
}

// AdvertisedCount returns how many requests carried the edge capability header.
func (m *MockOrigin) AdvertisedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.advertisedCount
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockOrigin) LastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastRequestHeader.Clone()
}

func writeMockResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// NewHTMLResponse creates a 200 HTML response carrying the given edge
// directive. An empty directive sends no directive header.
func NewHTMLResponse(body, edgeDirective string) MockResponse {
	headers := map[string]string{
		"Content-Type":  "text/html; charset=UTF-8",
		"Cache-Control": "no-cache, must-revalidate, max-age=0",
	}
	if edgeDirective != "" {
		headers[directive.HeaderName] = edgeDirective
	}
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers:    headers,
	}
}

// NewPurgeResponse creates a response asking the edge to purge everything,
// as a CMS does after content changes.
func NewPurgeResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"saved":true}`,
		Headers: map[string]string{
			"Content-Type":       "application/json",
			directive.HeaderName: directive.Directive{Purge: true}.String(),
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       "<html><body>error</body></html>",
		Headers: map[string]string{
			"Content-Type": "text/html",
		},
	}
}
