// Package client provides the Clavis API transport: one request per call,
// per-request authentication and JSON response decoding.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for API client operations.
var (
	clavisRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clavis_requests_total",
		Help: "Total Clavis API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	clavisRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clavis_request_duration_seconds",
		Help:    "Clavis API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"endpoint"})

	clavisErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clavis_errors_total",
		Help: "Total Clavis API errors by class",
	}, []string{"class"})
)

// Client issues single requests against the Clavis API.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	config     Config
	logger     zerolog.Logger
}

// StaticCredentials are the connection-level credentials stored with the API
// connection. They are only sent for requests using AuthStatic.
type StaticCredentials struct {
	Username string
	Password string
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the API, e.g. "https://api.clavisinsight.com/v2".
	BaseURL string

	// StaticAuth is the optional connection credential.
	StaticAuth *StaticCredentials

	// Method is GET (params in query) or POST (params as form body).
	Method string

	// Timeout per request. Zero leaves the transport default.
	Timeout time.Duration

	UserAgent string

	// HTTPClient overrides the underlying client (for testing).
	HTTPClient *http.Client
}

// DefaultConfig returns a default configuration for the given base URL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:   baseURL,
		Method:    http.MethodGet,
		Timeout:   30 * time.Second,
		UserAgent: "clavis-export/1.0",
	}
}

// New creates a new API client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if !base.IsAbs() {
		return nil, fmt.Errorf("base url must be absolute (got %q)", cfg.BaseURL)
	}

	if cfg.Method == "" {
		cfg.Method = http.MethodGet
	}
	cfg.Method = strings.ToUpper(cfg.Method)
	if cfg.Method != http.MethodGet && cfg.Method != http.MethodPost {
		return nil, fmt.Errorf("method must be GET or POST (got %s)", cfg.Method)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    base,
		config:     cfg,
		logger:     log.With().Str("component", "api-client").Logger(),
	}, nil
}

// Request describes a single API call.
type Request struct {
	// Endpoint is the path below the base URL, e.g. "token" or "kpi".
	Endpoint string

	// Params are serialized into the query (GET) or form body (POST).
	Params url.Values

	// Auth selects the authentication for this call only.
	Auth AuthMode

	// Token is the bearer token used with AuthBearer.
	Token string
}

// Response is a fully read API response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// DecodeJSON unmarshals the response body into v.
func (r *Response) DecodeJSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return nil
}

// Do performs one request. It never retries: any transport failure or non-2xx
// status is returned as *HTTPError.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, fmt.Errorf("request is nil")
	}

	endpoint := strings.Trim(req.Endpoint, "/")
	startTime := time.Now()
	defer func() {
		clavisRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	httpReq, err := c.newHTTPRequest(ctx, endpoint, req)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", httpReq.Method).
		Str("auth", req.Auth.String()).
		Msg("Executing API request")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		clavisErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		clavisRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
		return nil, &HTTPError{
			Endpoint:   endpoint,
			ErrorClass: ErrorClassNetwork,
			Message:    "request failed",
			Err:        err,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		clavisErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &HTTPError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    "read response body",
			Err:        err,
		}
	}

	status := strconv.Itoa(resp.StatusCode)
	clavisRequestsTotal.WithLabelValues(endpoint, status).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		class := classifyStatus(resp.StatusCode)
		clavisErrorsTotal.WithLabelValues(string(class)).Inc()
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("API request error")
		return nil, &HTTPError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			ErrorClass: class,
			Message:    resp.Status,
			Body:       truncate(body, 512),
		}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// newHTTPRequest builds the request for endpoint, serializing params for the
// configured method and applying only the requested authentication.
func (c *Client) newHTTPRequest(ctx context.Context, endpoint string, req *Request) (*http.Request, error) {
	target := c.baseURL.JoinPath(endpoint)

	// Request params are merged over any query carried by the base URL.
	var body io.Reader
	if c.config.Method == http.MethodGet {
		query := target.Query()
		for k, vs := range req.Params {
			query[k] = vs
		}
		target.RawQuery = query.Encode()
	} else if len(req.Params) > 0 {
		body = bytes.NewBufferString(req.Params.Encode())
	}

	httpReq, err := http.NewRequestWithContext(ctx, c.config.Method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	httpReq.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.config.UserAgent)
	}

	if err := req.Auth.apply(httpReq, c.config.StaticAuth, req.Token); err != nil {
		return nil, err
	}

	return httpReq, nil
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
