package pagination

import "fmt"

// FetchError is returned when a page request fails: transport error, non-2xx
// status or a body that is not JSON.
type FetchError struct {
	Endpoint Endpoint
	Offset   int
	Page     int
	Err      error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s page %d (offset %d): %v", e.Endpoint, e.Page, e.Offset, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// MalformedResponseError is returned when a page lacks data or
// meta.total_record_count.
type MalformedResponseError struct {
	Endpoint Endpoint
	Offset   int
	Page     int
	Missing  string
	Err      error
}

// Error implements the error interface.
func (e *MalformedResponseError) Error() string {
	msg := fmt.Sprintf("malformed %s response on page %d (offset %d): missing or invalid %s",
		e.Endpoint, e.Page, e.Offset, e.Missing)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// SinkError is returned when a sink rejects a page.
type SinkError struct {
	Endpoint Endpoint
	Offset   int
	Page     int
	Err      error
}

// Error implements the error interface.
func (e *SinkError) Error() string {
	return fmt.Sprintf("write %s page %d (offset %d): %v", e.Endpoint, e.Page, e.Offset, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *SinkError) Unwrap() error {
	return e.Err
}
