// Package metrics documents the Prometheus metrics of the Clavis export job
// and pushes them to a Pushgateway at the end of a run.
// All metrics are defined in their respective packages (client, pagination,
// job, runstate) to maintain modularity and avoid circular dependencies.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// PushConfig configures a Pushgateway push.
type PushConfig struct {
	// URL is the Pushgateway base URL, e.g. "http://pushgateway:9091".
	URL string

	// Job is the job label of the pushed group.
	Job string

	// Grouping adds labels to the group key, e.g. {"endpoint": "kpi"}.
	Grouping map[string]string

	// Gatherer defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// Timeout bounds the push request (default: 10s).
	Timeout time.Duration
}

// DefaultPushConfig returns a push configuration for the given gateway.
func DefaultPushConfig(url string) PushConfig {
	return PushConfig{
		URL:      url,
		Job:      "clavis_export",
		Gatherer: prometheus.DefaultGatherer,
		Timeout:  10 * time.Second,
	}
}

// Push replaces the metric group of this job on the Pushgateway.
func Push(ctx context.Context, cfg PushConfig) error {
	if cfg.URL == "" {
		return fmt.Errorf("pushgateway url is required")
	}
	if cfg.Job == "" {
		return fmt.Errorf("push job name is required")
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	pusher := push.New(cfg.URL, cfg.Job).
		Gatherer(cfg.Gatherer).
		Client(&http.Client{Timeout: cfg.Timeout})
	for name, value := range cfg.Grouping {
		pusher = pusher.Grouping(name, value)
	}

	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", cfg.URL, err)
	}
	return nil
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - clavis_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - clavis_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - clavis_errors_total{class} (Counter): Errors by class (client, server, network, unexpected)
//
// Pagination Metrics (pkg/pagination):
//   - clavis_pages_fetched_total{endpoint} (Counter): Pages fetched
//   - clavis_records_fetched_total{endpoint} (Counter): Records fetched
//   - clavis_total_count_drift_total{endpoint} (Counter): Pages whose total_record_count
//     differed from the first page
//
// Job Metrics (pkg/job):
//   - clavis_job_runs_total{endpoint, status} (Counter): Runs by outcome (succeeded,
//     auth_error, fetch_error, malformed_response, storage_error, locked, invalid, failed)
//   - clavis_job_duration_seconds{endpoint} (Histogram): Run duration
//   - clavis_job_records{endpoint} (Gauge): Records written by the last successful run
//
// Run Ledger Metrics (pkg/runstate):
//   - clavis_run_lock_conflicts_total (Counter): Runs rejected by a held destination lock
//   - clavis_run_ledger_errors_total{operation} (Counter): Redis errors by operation
//
// Example Prometheus Queries:
//
//   # Failed runs in the last day
//   sum by (endpoint, status) (increase(clavis_job_runs_total{status!="succeeded"}[1d]))
//
//   # Records exported per endpoint
//   clavis_job_records
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(clavis_request_duration_seconds_bucket[5m]))
//
//   # Unstable totals during pagination
//   increase(clavis_total_count_drift_total[1d]) > 0
