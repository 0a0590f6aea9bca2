package pagination

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// PageInfo describes the page handed to a Sink.
type PageInfo struct {
	Endpoint         Endpoint
	Page             int
	Offset           int
	TotalRecordCount int
}

// Sink receives the records of each page in fetch order.
type Sink interface {
	WritePage(ctx context.Context, info PageInfo, records []json.RawMessage) error
}

// MemorySink accumulates all records in memory.
type MemorySink struct {
	records []json.RawMessage
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{records: make([]json.RawMessage, 0)}
}

// WritePage appends the page's records.
func (s *MemorySink) WritePage(_ context.Context, _ PageInfo, records []json.RawMessage) error {
	s.records = append(s.records, records...)
	return nil
}

// Records returns the accumulated records. It is never nil.
func (s *MemorySink) Records() []json.RawMessage {
	if s.records == nil {
		return make([]json.RawMessage, 0)
	}
	return s.records
}

// NDJSONSink writes each record as one compact JSON line.
type NDJSONSink struct {
	w       *bufio.Writer
	buf     bytes.Buffer
	written int
}

// NewNDJSONSink creates a sink writing newline-delimited JSON to w.
func NewNDJSONSink(w io.Writer) *NDJSONSink {
	return &NDJSONSink{w: bufio.NewWriter(w)}
}

// WritePage writes the page's records and flushes them to the underlying
// writer.
func (s *NDJSONSink) WritePage(ctx context.Context, info PageInfo, records []json.RawMessage) error {
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.buf.Reset()
		if err := json.Compact(&s.buf, rec); err != nil {
			return fmt.Errorf("record %d at offset %d: %w", i, info.Offset, err)
		}
		s.buf.WriteByte('\n')
		if _, err := s.w.Write(s.buf.Bytes()); err != nil {
			return err
		}
		s.written++
	}
	return s.w.Flush()
}

// Written returns the number of records written.
func (s *NDJSONSink) Written() int {
	return s.written
}
