package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Sternrassler/clavis-export/pkg/auth"
	"github.com/Sternrassler/clavis-export/pkg/client"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for page fetching.
var (
	clavisPagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clavis_pages_fetched_total",
		Help: "Total report pages fetched by endpoint",
	}, []string{"endpoint"})

	clavisRecordsFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clavis_records_fetched_total",
		Help: "Total report records fetched by endpoint",
	}, []string{"endpoint"})

	clavisTotalCountDriftTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clavis_total_count_drift_total",
		Help: "Pages whose total_record_count differed from the first page",
	}, []string{"endpoint"})
)

// Config holds fetcher configuration.
type Config struct {
	// ProgressEvery logs progress every N pages.
	ProgressEvery int
}

// DefaultConfig returns the default fetcher configuration.
func DefaultConfig() Config {
	return Config{
		ProgressEvery: 10,
	}
}

// Doer is the request capability the fetcher needs. *client.Client
// implements it.
type Doer interface {
	Do(ctx context.Context, req *client.Request) (*client.Response, error)
}

// Stats summarizes a completed fetch.
type Stats struct {
	Pages            int
	Records          int
	TotalRecordCount int
	Offsets          []int
}

// Fetcher walks all pages of a report endpoint sequentially.
type Fetcher struct {
	api    Doer
	config Config
	logger zerolog.Logger
}

// NewFetcher creates a new fetcher.
func NewFetcher(api Doer, config Config) *Fetcher {
	if config.ProgressEvery <= 0 {
		config.ProgressEvery = 10
	}

	return &Fetcher{
		api:    api,
		config: config,
		logger: log.With().Str("component", "fetcher").Logger(),
	}
}

// FetchAll fetches every page and returns the concatenated records in offset
// order. The result is never nil.
func (f *Fetcher) FetchAll(ctx context.Context, endpoint Endpoint, payload Payload, token auth.Token) ([]json.RawMessage, error) {
	sink := NewMemorySink()
	if _, err := f.Stream(ctx, endpoint, payload, token, sink); err != nil {
		return nil, err
	}
	return sink.Records(), nil
}

// Stream fetches every page and hands each one to sink before requesting the
// next. The first failure aborts the fetch.
func (f *Fetcher) Stream(ctx context.Context, endpoint Endpoint, payload Payload, token auth.Token, sink Sink) (Stats, error) {
	start := time.Now()

	req, err := NewPageRequest(endpoint, payload)
	if err != nil {
		return Stats{}, err
	}

	logger := f.logger.With().Str("endpoint", string(endpoint)).Logger()
	logger.Info().Int("page_size", req.PageSize()).Msg("Starting paginated fetch")

	var stats Stats
	firstTotal := -1

	for pageNum := 1; ; pageNum++ {
		page, err := f.fetchPage(ctx, logger, req, token, pageNum)
		if err != nil {
			logger.Error().
				Err(err).
				Int("page", pageNum).
				Int("offset", req.Offset()).
				Msg("Page fetch failed")
			return stats, err
		}

		total := *page.Meta.TotalRecordCount
		if firstTotal < 0 {
			firstTotal = total
		} else if total != firstTotal {
			clavisTotalCountDriftTotal.WithLabelValues(string(endpoint)).Inc()
			logger.Warn().
				Int("page", pageNum).
				Int("first_total", firstTotal).
				Int("total", total).
				Msg("total_record_count changed during pagination")
		}

		info := PageInfo{
			Endpoint:         endpoint,
			Page:             pageNum,
			Offset:           req.Offset(),
			TotalRecordCount: total,
		}
		if err := sink.WritePage(ctx, info, page.Data); err != nil {
			return stats, &SinkError{Endpoint: endpoint, Offset: req.Offset(), Page: pageNum, Err: err}
		}

		clavisPagesFetchedTotal.WithLabelValues(string(endpoint)).Inc()
		clavisRecordsFetchedTotal.WithLabelValues(string(endpoint)).Add(float64(len(page.Data)))

		stats.Pages++
		stats.Records += len(page.Data)
		stats.TotalRecordCount = total
		stats.Offsets = append(stats.Offsets, req.Offset())

		if pageNum%f.config.ProgressEvery == 0 {
			logger.Info().
				Int("fetched", stats.Records).
				Int("total", total).
				Int("pages", stats.Pages).
				Msg("Fetch progress")
		}

		req = req.Next()
		if req.Offset() >= total {
			break
		}
	}

	logger.Info().
		Int("pages", stats.Pages).
		Int("records", stats.Records).
		Int("total", stats.TotalRecordCount).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return stats, nil
}

// PageMeta is the meta object of a report response.
type PageMeta struct {
	TotalRecordCount *int `json:"total_record_count"`
}

// Page is one decoded report response.
type Page struct {
	Data []json.RawMessage
	Meta PageMeta
}

// fetchPage issues one bearer-authenticated request and validates the page
// envelope.
func (f *Fetcher) fetchPage(ctx context.Context, logger zerolog.Logger, req PageRequest, token auth.Token, pageNum int) (*Page, error) {
	logger.Debug().Str("request", req.String()).Int("page", pageNum).Msg("Fetching page")

	resp, err := f.api.Do(ctx, &client.Request{
		Endpoint: string(req.Endpoint()),
		Params:   req.Values(),
		Auth:     client.AuthBearer,
		Token:    string(token),
	})
	if err != nil {
		return nil, &FetchError{Endpoint: req.Endpoint(), Offset: req.Offset(), Page: pageNum, Err: err}
	}

	var envelope map[string]json.RawMessage
	if err := resp.DecodeJSON(&envelope); err != nil {
		return nil, &FetchError{Endpoint: req.Endpoint(), Offset: req.Offset(), Page: pageNum, Err: err}
	}

	malformed := func(missing string, err error) error {
		return &MalformedResponseError{
			Endpoint: req.Endpoint(),
			Offset:   req.Offset(),
			Page:     pageNum,
			Missing:  missing,
			Err:      err,
		}
	}

	page := &Page{}

	rawData, ok := envelope["data"]
	if !ok || isNull(rawData) {
		return nil, malformed("data", nil)
	}
	if err := json.Unmarshal(rawData, &page.Data); err != nil {
		return nil, malformed("data", err)
	}

	rawMeta, ok := envelope["meta"]
	if !ok || isNull(rawMeta) {
		return nil, malformed("meta.total_record_count", nil)
	}
	if err := json.Unmarshal(rawMeta, &page.Meta); err != nil {
		return nil, malformed("meta.total_record_count", err)
	}
	if page.Meta.TotalRecordCount == nil {
		return nil, malformed("meta.total_record_count", nil)
	}
	if *page.Meta.TotalRecordCount < 0 {
		return nil, malformed("meta.total_record_count", errors.New("negative count"))
	}

	return page, nil
}

func isNull(raw json.RawMessage) bool {
	return string(raw) == "null"
}
