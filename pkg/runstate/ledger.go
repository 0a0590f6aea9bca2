package runstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	// ErrRunInProgress is returned when another run holds the destination lock.
	ErrRunInProgress = errors.New("another run is writing this destination")

	// ErrNoRun is returned when no run has been recorded for a destination.
	ErrNoRun = errors.New("no run recorded")
)

var (
	clavisLockConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clavis_run_lock_conflicts_total",
		Help: "Runs rejected because the destination was locked",
	})

	clavisLedgerErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clavis_run_ledger_errors_total",
		Help: "Run ledger operation errors",
	}, []string{"operation"})
)

// releaseScript deletes the lock only when it still belongs to the caller.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Ledger stores run records and destination locks in Redis.
type Ledger struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewLedger creates a ledger backed by redisClient.
func NewLedger(redisClient *redis.Client, logger zerolog.Logger) *Ledger {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Ledger{
		redis:  redisClient,
		logger: logger,
	}
}

// Acquire locks dest for runID. The lock expires after ttl so a crashed run
// cannot block the destination forever.
func (l *Ledger) Acquire(ctx context.Context, dest Destination, runID string, ttl time.Duration) error {
	ok, err := l.redis.SetNX(ctx, dest.lockKey(), runID, ttl).Result()
	if err != nil {
		clavisLedgerErrorsTotal.WithLabelValues("acquire").Inc()
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		holder, _ := l.redis.Get(ctx, dest.lockKey()).Result()
		clavisLockConflictsTotal.Inc()
		l.logger.Warn().
			Str("destination", dest.String()).
			Str("holder", holder).
			Msg("Destination locked by another run")
		return fmt.Errorf("%w: %s (held by %s)", ErrRunInProgress, dest, holder)
	}

	l.logger.Debug().Str("destination", dest.String()).Str("run_id", runID).Msg("Lock acquired")
	return nil
}

// Release drops the lock on dest if runID still holds it.
func (l *Ledger) Release(ctx context.Context, dest Destination, runID string) error {
	if err := releaseScript.Run(ctx, l.redis, []string{dest.lockKey()}, runID).Err(); err != nil {
		clavisLedgerErrorsTotal.WithLabelValues("release").Inc()
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// Record stores rec as the latest run for its destination.
func (l *Ledger) Record(ctx context.Context, rec RunRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}

	if err := l.redis.Set(ctx, rec.Destination().lastKey(), data, 0).Err(); err != nil {
		clavisLedgerErrorsTotal.WithLabelValues("record").Inc()
		return fmt.Errorf("store run record: %w", err)
	}

	l.logger.Debug().
		Str("run_id", rec.RunID).
		Str("status", string(rec.Status)).
		Msg("Run recorded")
	return nil
}

// Last returns the latest run for dest.
func (l *Ledger) Last(ctx context.Context, dest Destination) (*RunRecord, error) {
	data, err := l.redis.Get(ctx, dest.lastKey()).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNoRun
		}
		clavisLedgerErrorsTotal.WithLabelValues("last").Inc()
		return nil, fmt.Errorf("get run record: %w", err)
	}

	var rec RunRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse run record: %w", err)
	}
	return &rec, nil
}
