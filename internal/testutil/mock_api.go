// Package testutil provides testing utilities for the Clavis export job.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
)

// MockAPIResponse defines a canned response for a mock endpoint.
type MockAPIResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
}

// RecordedRequest is a snapshot of a request received by MockAPI.
type RecordedRequest struct {
	Method        string
	Path          string
	Authorization string
	Params        url.Values
}

// MockAPI is a configurable mock Clavis API server for testing.
type MockAPI struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc
	requests []RecordedRequest
}

// NewMockAPI creates a new mock API server. Without configuration every path
// answers 404.
func NewMockAPI() *MockAPI {
	mock := &MockAPI{
		handlers: make(map[string]http.HandlerFunc),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()

		path := strings.TrimPrefix(r.URL.Path, "/")

		mock.mu.Lock()
		mock.requests = append(mock.requests, RecordedRequest{
			Method:        r.Method,
			Path:          path,
			Authorization: r.Header.Get("Authorization"),
			Params:        cloneValues(r.Form),
		})
		handler, exists := mock.handlers[path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		http.NotFound(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// SetHandler sets a custom handler for a path (without leading slash).
func (m *MockAPI) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[strings.TrimPrefix(path, "/")] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockAPI) SetResponse(path string, resp MockAPIResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetToken makes the token endpoint hand out token.
func (m *MockAPI) SetToken(token string) {
	m.SetResponse("token", NewTokenResponse(token))
}

// Requests returns a copy of all recorded requests.
func (m *MockAPI) Requests() []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RecordedRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// RequestsTo returns the recorded requests for one path.
func (m *MockAPI) RequestsTo(path string) []RecordedRequest {
	var out []RecordedRequest
	for _, req := range m.Requests() {
		if req.Path == path {
			out = append(out, req)
		}
	}
	return out
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockAPI) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// Reset clears recorded requests.
func (m *MockAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}

// Dataset serves a report endpoint from a fixed number of records, slicing by
// the offset and page_size request parameters.
type Dataset struct {
	// Total is reported as meta.total_record_count.
	Total int

	// FailAtOffset answers 500 for this offset when set.
	FailAtOffset *int

	// TotalAt overrides the reported total for given offsets.
	TotalAt map[int]int

	// Token is the expected bearer token. Empty disables the check.
	Token string
}

// SetDataset serves ds on path.
func (m *MockAPI) SetDataset(path string, ds Dataset) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if ds.Token != "" && r.Header.Get("Authorization") != "Token token="+ds.Token {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"invalid token"}`))
			return
		}

		offset, err := strconv.Atoi(r.Form.Get("offset"))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		pageSize, err := strconv.Atoi(r.Form.Get("page_size"))
		if err != nil || pageSize <= 0 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		if ds.FailAtOffset != nil && *ds.FailAtOffset == offset {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":"internal server error"}`))
			return
		}

		total := ds.Total
		if override, ok := ds.TotalAt[offset]; ok {
			total = override
		}

		end := offset + pageSize
		if end > ds.Total {
			end = ds.Total
		}
		data := make([]map[string]int, 0)
		for i := offset; i < end; i++ {
			data = append(data, map[string]int{"id": i})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"data": data,
			"meta": map[string]int{"total_record_count": total},
		})
	})
}

// NewTokenResponse creates a token endpoint response.
func NewTokenResponse(token string) MockAPIResponse {
	return MockAPIResponse{
		StatusCode: http.StatusOK,
		Body:       fmt.Sprintf(`{"data":{"token":%q}}`, token),
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewUnauthorizedResponse creates a 401 response.
func NewUnauthorizedResponse() MockAPIResponse {
	return MockAPIResponse{
		StatusCode: http.StatusUnauthorized,
		Body:       `{"error": "unauthorized"}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockAPIResponse {
	return MockAPIResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for key, values := range v {
		out[key] = append([]string(nil), values...)
	}
	return out
}
