package pagination

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownEndpoint is returned for endpoint names outside the known set.
var ErrUnknownEndpoint = errors.New("unknown endpoint")

// Endpoint is one of the Clavis report endpoints.
type Endpoint string

const (
	EndpointKPI         Endpoint = "kpi"
	EndpointProducts    Endpoint = "products"
	EndpointSearchTerms Endpoint = "search_terms"
	EndpointContent     Endpoint = "content"
)

// Transform rewrites an invocation payload before the first request.
// Implementations must not modify their argument.
type Transform func(Payload) Payload

var endpointTransforms = map[Endpoint]Transform{
	EndpointKPI:         collapseReportDate,
	EndpointProducts:    identity,
	EndpointSearchTerms: identity,
	EndpointContent:     identity,
}

// Endpoints returns the supported endpoints.
func Endpoints() []Endpoint {
	return []Endpoint{EndpointKPI, EndpointProducts, EndpointSearchTerms, EndpointContent}
}

// ParseEndpoint validates an endpoint name.
func ParseEndpoint(name string) (Endpoint, error) {
	e := Endpoint(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := endpointTransforms[e]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownEndpoint, name)
	}
	return e, nil
}

// Transform returns the payload transform for the endpoint.
func (e Endpoint) Transform() (Transform, error) {
	t, ok := endpointTransforms[e]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEndpoint, string(e))
	}
	return t, nil
}

// String implements fmt.Stringer.
func (e Endpoint) String() string {
	return string(e)
}

func identity(p Payload) Payload {
	return p.Clone()
}

// collapseReportDate maps report_date onto a single-day start_date/end_date
// range. Applying it twice is a no-op.
func collapseReportDate(p Payload) Payload {
	out := p.Clone()
	date, ok := out[ParamReportDate]
	if !ok {
		return out
	}
	delete(out, ParamReportDate)
	out[ParamStartDate] = date
	out[ParamEndDate] = date
	return out
}
