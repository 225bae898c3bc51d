// Package testutil provides testing utilities for the CRM digest client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
)

// MockResponse defines the behavior for one mock CRM endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
}

// MockCRM is a configurable mock CRM API server for testing.
type MockCRM struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount int
	PathCounts   map[string]int
	LastQuery    url.Values
}

// NewMockCRM creates a new mock CRM server.
func NewMockCRM() *MockCRM {
	mock := &MockCRM{
		handlers:   make(map[string]func(w http.ResponseWriter, r *http.Request)),
		PathCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.PathCounts[r.URL.Path]++
		mock.LastQuery = r.URL.Query()
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		// Unregistered paths answer 404 so fallback logic is exercised
		// by simply not registering the versioned endpoint.
		writeDefaultHeaders(w)
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"success":false,"error":"Not Found"}`)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockCRM) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockCRM) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockCRM) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.PathCounts = make(map[string]int)
	m.LastQuery = nil
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockCRM) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetPathCount returns the number of requests made to one path.
func (m *MockCRM) GetPathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.PathCounts[path]
}

// SetHandler sets a custom handler for a specific path.
func (m *MockCRM) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockCRM) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		writeDefaultHeaders(w)
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			fmt.Fprint(w, resp.Body)
		}
	})
}

// SetData configures a path to answer with a success envelope wrapping
// the given data payload.
func (m *MockCRM) SetData(path string, data any) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		writeDefaultHeaders(w)
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    data,
		})
	})
}

// SetCursorPages configures a versioned listing path to serve pages
// from items, honoring the limit and cursor query parameters. Cursors
// are item offsets encoded as strings.
func (m *MockCRM) SetCursorPages(path string, items []any) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		start := 0
		if cursor := r.URL.Query().Get("cursor"); cursor != "" {
			start, _ = strconv.Atoi(cursor)
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit <= 0 {
			limit = 100
		}

		end := min(start+limit, len(items))
		page := items[start:end]

		additional := map[string]any{}
		if end < len(items) {
			additional["next_cursor"] = strconv.Itoa(end)
		}

		writeDefaultHeaders(w)
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success":         true,
			"data":            page,
			"additional_data": additional,
		})
	})
}

// SetOffsetPages configures a legacy listing path to serve pages from
// items with the offset-style pagination block.
func (m *MockCRM) SetOffsetPages(path string, items []any) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		start, _ := strconv.Atoi(r.URL.Query().Get("start"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit <= 0 {
			limit = 100
		}

		end := min(start+limit, len(items))
		page := items[start:end]

		pagination := map[string]any{
			"start":                    start,
			"limit":                    limit,
			"more_items_in_collection": end < len(items),
		}
		if end < len(items) {
			pagination["next_start"] = end
		}

		writeDefaultHeaders(w)
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success":         true,
			"data":            page,
			"additional_data": map[string]any{"pagination": pagination},
		})
	})
}

// SetBulk configures a path to answer bulk id lookups from the given
// entities, matching the ids query parameter against each entity's
// "id" key.
func (m *MockCRM) SetBulk(path string, entities []map[string]any) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		wanted := map[string]bool{}
		for _, id := range splitIDs(r.URL.Query().Get("ids")) {
			wanted[id] = true
		}

		var matched []map[string]any
		for _, e := range entities {
			if id, ok := e["id"]; ok && wanted[fmt.Sprint(id)] {
				matched = append(matched, e)
			}
		}

		writeDefaultHeaders(w)
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    matched,
		})
	})
}

// NewServerErrorResponse creates a 500 response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"success":false,"error":"Internal server error"}`,
	}
}

// NewRateLimitResponse creates a 429 response with a drained budget.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"success":false,"error":"Rate limit exceeded"}`,
		Headers: map[string]string{
			"x-ratelimit-remaining": "0",
			"x-ratelimit-reset":     "2",
		},
	}
}

func writeDefaultHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("x-ratelimit-remaining", "38")
	w.Header().Set("x-ratelimit-reset", "10")
}

func splitIDs(raw string) []string {
	if raw == "" {
		return nil
	}
	var ids []string
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == ',' {
			if i > start {
				ids = append(ids, raw[start:i])
			}
			start = i + 1
		}
	}
	return ids
}
