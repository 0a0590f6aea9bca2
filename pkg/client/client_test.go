package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Sternrassler/clavis-export/internal/testutil"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
		errorMsg    string
	}{
		{
			name:   "valid config",
			config: DefaultConfig("https://api.example.com/v2"),
		},
		{
			name:        "empty base url",
			config:      Config{},
			expectError: true,
			errorMsg:    "base url is required",
		},
		{
			name:        "relative base url",
			config:      Config{BaseURL: "api/v2"},
			expectError: true,
			errorMsg:    `base url must be absolute (got "api/v2")`,
		},
		{
			name:        "unsupported method",
			config:      Config{BaseURL: "https://api.example.com", Method: "put"},
			expectError: true,
			errorMsg:    "method must be GET or POST (got PUT)",
		},
		{
			name:   "lowercase post",
			config: Config{BaseURL: "https://api.example.com", Method: "post"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.config)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got nil")
					return
				}
				if tt.errorMsg != "" && err.Error() != tt.errorMsg {
					t.Errorf("Error message = %q, want %q", err.Error(), tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
				return
			}
			if c == nil {
				t.Error("Client is nil")
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("https://api.example.com")

	if cfg.Method != http.MethodGet {
		t.Errorf("Method = %q, want GET", cfg.Method)
	}
	if cfg.Timeout <= 0 {
		t.Errorf("Timeout = %v, should be > 0", cfg.Timeout)
	}
	if cfg.StaticAuth != nil {
		t.Error("StaticAuth should be nil by default")
	}
}

func TestDo_AuthModes(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("kpi", testutil.MockAPIResponse{StatusCode: http.StatusOK, Body: `{}`})

	cfg := DefaultConfig(mock.URL())
	cfg.StaticAuth = &StaticCredentials{Username: "user", Password: "secret"}
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		name     string
		auth     AuthMode
		token    string
		expected string
	}{
		{name: "none strips static credentials", auth: AuthNone, expected: ""},
		{name: "static", auth: AuthStatic, expected: "Basic dXNlcjpzZWNyZXQ="},
		{name: "bearer", auth: AuthBearer, token: "abc", expected: "Token token=abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock.Reset()
			_, err := c.Do(context.Background(), &Request{Endpoint: "kpi", Auth: tt.auth, Token: tt.token})
			if err != nil {
				t.Fatalf("Do() error = %v", err)
			}
			reqs := mock.Requests()
			if len(reqs) != 1 {
				t.Fatalf("requests = %d, want 1", len(reqs))
			}
			if reqs[0].Authorization != tt.expected {
				t.Errorf("Authorization = %q, want %q", reqs[0].Authorization, tt.expected)
			}
		})
	}
}

func TestDo_BearerWithoutToken(t *testing.T) {
	c, err := New(DefaultConfig("https://api.example.com"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = c.Do(context.Background(), &Request{Endpoint: "kpi", Auth: AuthBearer})
	if err == nil {
		t.Fatal("expected error for bearer request without token")
	}
}

func TestDo_ParamsSerialization(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodPost} {
		t.Run(method, func(t *testing.T) {
			mock := testutil.NewMockAPI()
			defer mock.Close()
			mock.SetResponse("products", testutil.MockAPIResponse{StatusCode: http.StatusOK, Body: `{}`})

			cfg := DefaultConfig(mock.URL())
			cfg.Method = method
			c, err := New(cfg)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}

			params := map[string][]string{"offset": {"20000"}, "brand": {"a,b"}}
			if _, err := c.Do(context.Background(), &Request{Endpoint: "products", Params: params}); err != nil {
				t.Fatalf("Do() error = %v", err)
			}

			req := mock.Requests()[0]
			if req.Method != method {
				t.Errorf("Method = %q, want %q", req.Method, method)
			}
			if got := req.Params.Get("offset"); got != "20000" {
				t.Errorf("offset = %q, want 20000", got)
			}
			if got := req.Params.Get("brand"); got != "a,b" {
				t.Errorf("brand = %q, want a,b", got)
			}
		})
	}
}

func TestDo_HTTPErrors(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		expected   ErrorClass
	}{
		{name: "client error 401", statusCode: 401, expected: ErrorClassClient},
		{name: "client error 404", statusCode: 404, expected: ErrorClassClient},
		{name: "server error 500", statusCode: 500, expected: ErrorClassServer},
		{name: "server error 503", statusCode: 503, expected: ErrorClassServer},
		{name: "redirect without location", statusCode: 302, expected: ErrorClassUnexpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			c, err := New(DefaultConfig(server.URL))
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}

			_, err = c.Do(context.Background(), &Request{Endpoint: "kpi"})
			var httpErr *HTTPError
			if !errors.As(err, &httpErr) {
				t.Fatalf("error = %v, want *HTTPError", err)
			}
			if httpErr.StatusCode != tt.statusCode {
				t.Errorf("StatusCode = %d, want %d", httpErr.StatusCode, tt.statusCode)
			}
			if httpErr.ErrorClass != tt.expected {
				t.Errorf("ErrorClass = %q, want %q", httpErr.ErrorClass, tt.expected)
			}
			if httpErr.Endpoint != "kpi" {
				t.Errorf("Endpoint = %q, want kpi", httpErr.Endpoint)
			}
		})
	}
}

func TestDo_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	c, err := New(DefaultConfig(url))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = c.Do(context.Background(), &Request{Endpoint: "token"})
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("error = %v, want *HTTPError", err)
	}
	if httpErr.ErrorClass != ErrorClassNetwork {
		t.Errorf("ErrorClass = %q, want network", httpErr.ErrorClass)
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	c, err := New(DefaultConfig(mock.URL()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Do(ctx, &Request{Endpoint: "token"}); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestResponse_DecodeJSON(t *testing.T) {
	var v map[string]any

	resp := &Response{Body: []byte(`{"data":{"token":"x"}}`)}
	if err := resp.DecodeJSON(&v); err != nil {
		t.Fatalf("DecodeJSON() error = %v", err)
	}

	resp = &Response{Body: []byte(`<html>oops</html>`)}
	if err := resp.DecodeJSON(&v); !errors.Is(err, ErrInvalidJSON) {
		t.Errorf("DecodeJSON() error = %v, want ErrInvalidJSON", err)
	}
}

func TestBaseURLWithPath(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c, err := New(DefaultConfig(server.URL + "/v2/"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := c.Do(context.Background(), &Request{Endpoint: "/search_terms"}); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if gotPath != "/v2/search_terms" {
		t.Errorf("path = %q, want /v2/search_terms", gotPath)
	}
}

func TestBaseURLWithQuery(t *testing.T) {
	var gotQuery map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c, err := New(DefaultConfig(server.URL + "/v2?api_key=k&offset=7"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	params := map[string][]string{"offset": {"20000"}, "page_size": {"20000"}}
	if _, err := c.Do(context.Background(), &Request{Endpoint: "kpi", Params: params}); err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	expected := map[string]string{"api_key": "k", "offset": "20000", "page_size": "20000"}
	for k, want := range expected {
		if got := gotQuery[k]; len(got) != 1 || got[0] != want {
			t.Errorf("query %s = %v, want [%s]", k, got, want)
		}
	}
}
