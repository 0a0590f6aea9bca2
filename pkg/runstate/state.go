// Package runstate records export runs in Redis and prevents two runs from
// writing the same destination object at once.
package runstate

import (
	"fmt"
	"strings"
	"time"
)

// Redis key prefixes.
const (
	RedisKeyLockPrefix = "clavis:run:lock"
	RedisKeyLastPrefix = "clavis:run:last"
)

// Status of an export run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Destination identifies the object a run writes.
type Destination struct {
	Bucket string
	Key    string
}

// String returns "bucket/key".
func (d Destination) String() string {
	return d.Bucket + "/" + strings.TrimPrefix(d.Key, "/")
}

func (d Destination) lockKey() string {
	return fmt.Sprintf("%s:%s", RedisKeyLockPrefix, d.String())
}

func (d Destination) lastKey() string {
	return fmt.Sprintf("%s:%s", RedisKeyLastPrefix, d.String())
}

// RunRecord describes one export run.
type RunRecord struct {
	RunID      string    `json:"run_id"`
	Endpoint   string    `json:"endpoint"`
	Bucket     string    `json:"bucket"`
	Key        string    `json:"key"`
	Status     Status    `json:"status"`
	Pages      int       `json:"pages"`
	Records    int       `json:"records"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Destination returns the record's destination.
func (r *RunRecord) Destination() Destination {
	return Destination{Bucket: r.Bucket, Key: r.Key}
}

// Duration returns the run duration, or 0 while running.
func (r *RunRecord) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
