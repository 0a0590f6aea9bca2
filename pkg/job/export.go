// Package job runs one Clavis export: authenticate, fetch every page of a
// report endpoint and write the result to blob storage.
package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Sternrassler/clavis-export/pkg/auth"
	"github.com/Sternrassler/clavis-export/pkg/logging"
	"github.com/Sternrassler/clavis-export/pkg/pagination"
	"github.com/Sternrassler/clavis-export/pkg/runstate"
	"github.com/Sternrassler/clavis-export/pkg/storage"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for export runs.
var (
	clavisJobRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clavis_job_runs_total",
		Help: "Export runs by endpoint and outcome",
	}, []string{"endpoint", "status"})

	clavisJobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clavis_job_duration_seconds",
		Help:    "Export run duration in seconds by endpoint",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	}, []string{"endpoint"})

	clavisJobRecords = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "clavis_job_records",
		Help: "Records written by the last successful run by endpoint",
	}, []string{"endpoint"})
)

// ErrInvalidParams is returned when run parameters are incomplete.
var ErrInvalidParams = errors.New("invalid run parameters")

// Format selects the object layout.
type Format string

const (
	// FormatJSON writes one JSON array holding every record.
	FormatJSON Format = "json"

	// FormatNDJSON streams one record per line while pages arrive.
	FormatNDJSON Format = "ndjson"
)

// Authenticator obtains a fresh token.
type Authenticator interface {
	Authenticate(ctx context.Context) (auth.Token, error)
}

// PageStreamer fetches all pages of an endpoint into a sink.
type PageStreamer interface {
	Stream(ctx context.Context, endpoint pagination.Endpoint, payload pagination.Payload, token auth.Token, sink pagination.Sink) (pagination.Stats, error)
}

// Ledger records runs and guards destinations.
type Ledger interface {
	Acquire(ctx context.Context, dest runstate.Destination, runID string, ttl time.Duration) error
	Release(ctx context.Context, dest runstate.Destination, runID string) error
	Record(ctx context.Context, rec runstate.RunRecord) error
}

// Config holds the exporter's collaborators.
type Config struct {
	Authenticator Authenticator
	Fetcher       PageStreamer
	Storage       storage.Writer

	// Ledger is optional.
	Ledger Ledger

	// LockTTL bounds how long a crashed run blocks its destination.
	LockTTL time.Duration
}

// DefaultConfig returns a configuration with default timings.
func DefaultConfig() Config {
	return Config{
		LockTTL: 2 * time.Hour,
	}
}

// Params are the per-run invocation parameters.
type Params struct {
	Endpoint string
	Payload  pagination.Payload
	Bucket   string
	Key      string
	Format   Format
}

// Result summarizes a successful run.
type Result struct {
	RunID            string
	Endpoint         pagination.Endpoint
	Bucket           string
	Key              string
	Format           Format
	Pages            int
	Records          int
	TotalRecordCount int
	Duration         time.Duration
}

// Exporter runs export jobs.
type Exporter struct {
	config Config
	logger zerolog.Logger
}

// New creates an exporter.
func New(cfg Config) (*Exporter, error) {
	if cfg.Authenticator == nil {
		return nil, fmt.Errorf("authenticator is required")
	}
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if cfg.Storage == nil {
		return nil, fmt.Errorf("storage writer is required")
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultConfig().LockTTL
	}

	return &Exporter{
		config: cfg,
		logger: logging.NewLogger("exporter"),
	}, nil
}

// Run executes one export. Either every page is fetched and the object is
// written, or nothing is written and the first error is returned.
func (e *Exporter) Run(ctx context.Context, params Params) (*Result, error) {
	start := time.Now()

	endpoint, format, err := validate(params)
	if err != nil {
		clavisJobRunsTotal.WithLabelValues(params.Endpoint, "invalid").Inc()
		return nil, err
	}

	runID := uuid.NewString()
	dest := runstate.Destination{Bucket: params.Bucket, Key: params.Key}
	logger := logging.ForRun(e.logger, runID, string(endpoint)).With().
		Str("bucket", params.Bucket).
		Str("key", params.Key).
		Logger()

	if e.config.Ledger != nil {
		if err := e.config.Ledger.Acquire(ctx, dest, runID, e.config.LockTTL); err != nil {
			clavisJobRunsTotal.WithLabelValues(string(endpoint), "locked").Inc()
			return nil, err
		}
		defer func() {
			if err := e.config.Ledger.Release(context.WithoutCancel(ctx), dest, runID); err != nil {
				logger.Warn().Err(err).Msg("Failed to release destination lock")
			}
		}()
	}

	rec := runstate.RunRecord{
		RunID:     runID,
		Endpoint:  string(endpoint),
		Bucket:    params.Bucket,
		Key:       params.Key,
		Status:    runstate.StatusRunning,
		StartedAt: start.UTC(),
	}
	e.record(ctx, logger, rec)

	logger.Info().Str("format", string(format)).Msg("Export started")

	stats, err := e.execute(ctx, endpoint, format, params)

	rec.Pages = stats.Pages
	rec.Records = stats.Records
	rec.FinishedAt = time.Now().UTC()
	clavisJobDuration.WithLabelValues(string(endpoint)).Observe(time.Since(start).Seconds())

	if err != nil {
		rec.Status = runstate.StatusFailed
		rec.Error = err.Error()
		e.record(ctx, logger, rec)
		clavisJobRunsTotal.WithLabelValues(string(endpoint), outcome(err)).Inc()
		logger.Error().Err(err).Str("outcome", outcome(err)).Msg("Export failed")
		return nil, err
	}

	rec.Status = runstate.StatusSucceeded
	e.record(ctx, logger, rec)
	clavisJobRunsTotal.WithLabelValues(string(endpoint), "succeeded").Inc()
	clavisJobRecords.WithLabelValues(string(endpoint)).Set(float64(stats.Records))

	result := &Result{
		RunID:            runID,
		Endpoint:         endpoint,
		Bucket:           params.Bucket,
		Key:              params.Key,
		Format:           format,
		Pages:            stats.Pages,
		Records:          stats.Records,
		TotalRecordCount: stats.TotalRecordCount,
		Duration:         time.Since(start),
	}

	logger.Info().
		Int("pages", result.Pages).
		Int("records", result.Records).
		Dur("duration", result.Duration).
		Msg("Export complete")

	return result, nil
}

func (e *Exporter) execute(ctx context.Context, endpoint pagination.Endpoint, format Format, params Params) (pagination.Stats, error) {
	token, err := e.config.Authenticator.Authenticate(ctx)
	if err != nil {
		return pagination.Stats{}, err
	}

	if format == FormatNDJSON {
		return e.streamNDJSON(ctx, endpoint, params, token)
	}

	sink := pagination.NewMemorySink()
	stats, err := e.config.Fetcher.Stream(ctx, endpoint, params.Payload, token, sink)
	if err != nil {
		return stats, err
	}

	if err := storage.WriteJSON(ctx, e.config.Storage, params.Bucket, params.Key, sink.Records()); err != nil {
		return stats, err
	}
	return stats, nil
}

// streamNDJSON uploads records while pages are fetched. A failed fetch aborts
// the upload through the pipe so no object is created.
func (e *Exporter) streamNDJSON(ctx context.Context, endpoint pagination.Endpoint, params Params, token auth.Token) (pagination.Stats, error) {
	pr, pw := io.Pipe()
	uploaded := make(chan error, 1)

	go func() {
		err := e.config.Storage.PutObject(ctx, params.Bucket, params.Key, pr, -1, storage.ContentTypeNDJSON)
		pr.CloseWithError(err)
		uploaded <- err
	}()

	stats, err := e.config.Fetcher.Stream(ctx, endpoint, params.Payload, token, pagination.NewNDJSONSink(pw))
	if err != nil {
		pw.CloseWithError(err)
		uploadErr := <-uploaded

		var sinkErr *pagination.SinkError
		if errors.As(err, &sinkErr) && uploadErr != nil {
			return stats, &storage.StorageWriteError{Bucket: params.Bucket, Key: params.Key, Err: uploadErr}
		}
		return stats, err
	}

	pw.Close()
	if err := <-uploaded; err != nil {
		return stats, &storage.StorageWriteError{Bucket: params.Bucket, Key: params.Key, Err: err}
	}
	return stats, nil
}

// record stores rec in the ledger. Ledger failures never fail the run.
func (e *Exporter) record(ctx context.Context, logger zerolog.Logger, rec runstate.RunRecord) {
	if e.config.Ledger == nil {
		return
	}
	if err := e.config.Ledger.Record(context.WithoutCancel(ctx), rec); err != nil {
		logger.Warn().Err(err).Str("status", string(rec.Status)).Msg("Failed to record run")
	}
}

// validate rejects bad parameters before any request is made.
func validate(params Params) (pagination.Endpoint, Format, error) {
	endpoint, err := pagination.ParseEndpoint(params.Endpoint)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if _, err := pagination.NewPageRequest(endpoint, params.Payload); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if params.Bucket == "" {
		return "", "", fmt.Errorf("%w: bucket is required", ErrInvalidParams)
	}
	if params.Key == "" {
		return "", "", fmt.Errorf("%w: key is required", ErrInvalidParams)
	}

	format := params.Format
	if format == "" {
		format = FormatJSON
	}
	if format != FormatJSON && format != FormatNDJSON {
		return "", "", fmt.Errorf("%w: unknown format %q", ErrInvalidParams, format)
	}
	return endpoint, format, nil
}

// outcome maps an error onto the status label of clavis_job_runs_total.
func outcome(err error) string {
	var (
		authErr      *auth.AuthError
		fetchErr     *pagination.FetchError
		malformedErr *pagination.MalformedResponseError
		writeErr     *storage.StorageWriteError
	)
	switch {
	case errors.As(err, &authErr):
		return "auth_error"
	case errors.As(err, &malformedErr):
		return "malformed_response"
	case errors.As(err, &fetchErr):
		return "fetch_error"
	case errors.As(err, &writeErr):
		return "storage_error"
	default:
		return "failed"
	}
}
