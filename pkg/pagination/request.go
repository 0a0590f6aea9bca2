package pagination

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultPageSize is the number of records requested per page.
const DefaultPageSize = 20000

// Request parameter names.
const (
	ParamOffset     = "offset"
	ParamPageSize   = "page_size"
	ParamReportDate = "report_date"
	ParamStartDate  = "start_date"
	ParamEndDate    = "end_date"
)

// DateLayout is the wire format for date parameters (e.g. 2017-04-10).
const DateLayout = "2006-01-02"

// Payload holds free-form request parameters: dates, comma separated filter
// lists, integers.
type Payload map[string]any

// Clone returns a shallow copy of the payload.
func (p Payload) Clone() Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// PageRequest is an immutable request for one page. Use WithOffset to derive
// the request for another page.
type PageRequest struct {
	endpoint Endpoint
	params   map[string]string
	offset   int
	pageSize int
}

// NewPageRequest builds the first page request for endpoint. The payload is
// merged over {page_size: 20000, offset: 0}; the offset always starts at 0 and
// a caller page_size is kept when it is a positive integer. The endpoint's
// payload transform runs before merging.
func NewPageRequest(endpoint Endpoint, payload Payload) (PageRequest, error) {
	transform, err := endpoint.Transform()
	if err != nil {
		return PageRequest{}, err
	}

	transformed := transform(payload)

	pageSize := DefaultPageSize
	if raw, ok := transformed[ParamPageSize]; ok {
		n, err := strconv.Atoi(formatValue(raw))
		if err != nil || n <= 0 {
			return PageRequest{}, fmt.Errorf("page_size must be a positive integer (got %v)", raw)
		}
		pageSize = n
	}

	params := make(map[string]string, len(transformed))
	for k, v := range transformed {
		if k == ParamOffset || k == ParamPageSize {
			continue
		}
		params[k] = formatValue(v)
	}

	return PageRequest{
		endpoint: endpoint,
		params:   params,
		offset:   0,
		pageSize: pageSize,
	}, nil
}

// WithOffset returns a copy of the request positioned at offset.
func (r PageRequest) WithOffset(offset int) PageRequest {
	r.offset = offset
	return r
}

// Next returns the request for the following page.
func (r PageRequest) Next() PageRequest {
	return r.WithOffset(r.offset + r.pageSize)
}

func (r PageRequest) Endpoint() Endpoint { return r.endpoint }
func (r PageRequest) Offset() int        { return r.offset }
func (r PageRequest) PageSize() int      { return r.pageSize }

// Values renders the parameters sent on the wire.
func (r PageRequest) Values() url.Values {
	v := make(url.Values, len(r.params)+2)
	for k, val := range r.params {
		v.Set(k, val)
	}
	v.Set(ParamPageSize, strconv.Itoa(r.pageSize))
	v.Set(ParamOffset, strconv.Itoa(r.offset))
	return v
}

// String returns a deterministic description used in logs.
func (r PageRequest) String() string {
	keys := make([]string, 0, len(r.params))
	for k := range r.params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := []string{string(r.endpoint)}
	for _, k := range keys {
		parts = append(parts, k+"="+r.params[k])
	}
	parts = append(parts, fmt.Sprintf("offset=%d", r.offset), fmt.Sprintf("page_size=%d", r.pageSize))
	return strings.Join(parts, ":")
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case time.Time:
		return val.Format(DateLayout)
	case *time.Time:
		if val == nil {
			return ""
		}
		return val.Format(DateLayout)
	case bool:
		if val {
			return "1"
		}
		return "0"
	case []string:
		return strings.Join(val, ",")
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}
