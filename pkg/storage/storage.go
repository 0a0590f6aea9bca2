// Package storage writes export results to S3-compatible blob storage.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
)

// ContentTypeJSON and ContentTypeNDJSON are the content types of export objects.
const (
	ContentTypeJSON   = "application/json"
	ContentTypeNDJSON = "application/x-ndjson"
)

// ErrObjectNotFound is returned by readers when a key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// Writer stores a single object, replacing any existing object at key.
type Writer interface {
	// PutObject uploads r. A size of -1 streams with an unknown length.
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error

	// Close releases the storage connection.
	Close() error
}

// StorageWriteError is returned when the final object write fails.
type StorageWriteError struct {
	Bucket string
	Key    string
	Err    error
}

// Error implements the error interface.
func (e *StorageWriteError) Error() string {
	return fmt.Sprintf("write s3://%s/%s: %v", e.Bucket, e.Key, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *StorageWriteError) Unwrap() error {
	return e.Err
}

// WriteJSON marshals v and writes it as one JSON object. A nil slice is
// written as [].
func WriteJSON(ctx context.Context, w Writer, bucket, key string, v any) error {
	if err := validateTarget(bucket, key); err != nil {
		return &StorageWriteError{Bucket: bucket, Key: key, Err: err}
	}

	if isNilSlice(v) {
		v = []any{}
	}

	data, err := json.Marshal(v)
	if err != nil {
		return &StorageWriteError{Bucket: bucket, Key: key, Err: fmt.Errorf("marshal: %w", err)}
	}

	if err := w.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), ContentTypeJSON); err != nil {
		return &StorageWriteError{Bucket: bucket, Key: key, Err: err}
	}
	return nil
}

func validateTarget(bucket, key string) error {
	if bucket == "" {
		return errors.New("bucket is required")
	}
	if key == "" {
		return errors.New("object key is required")
	}
	return nil
}

func isNilSlice(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Slice && rv.IsNil()
}
