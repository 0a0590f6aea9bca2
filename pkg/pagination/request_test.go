package pagination

import (
	"errors"
	"testing"
	"time"
)

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		input     string
		expected  Endpoint
		expectErr bool
	}{
		{input: "kpi", expected: EndpointKPI},
		{input: "products", expected: EndpointProducts},
		{input: " Search_Terms ", expected: EndpointSearchTerms},
		{input: "content", expected: EndpointContent},
		{input: "token", expectErr: true},
		{input: "", expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseEndpoint(tt.input)
			if tt.expectErr {
				if !errors.Is(err, ErrUnknownEndpoint) {
					t.Errorf("ParseEndpoint(%q) error = %v, want ErrUnknownEndpoint", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseEndpoint(%q) error = %v", tt.input, err)
			}
			if got != tt.expected {
				t.Errorf("ParseEndpoint(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestEndpoints_AllHaveTransforms(t *testing.T) {
	for _, e := range Endpoints() {
		if _, err := e.Transform(); err != nil {
			t.Errorf("endpoint %s has no transform: %v", e, err)
		}
	}
}

func TestKPITransform(t *testing.T) {
	transform, err := EndpointKPI.Transform()
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}

	in := Payload{ParamReportDate: "2017-04-10", "brand": "acme"}
	out := transform(in)

	if out[ParamStartDate] != "2017-04-10" || out[ParamEndDate] != "2017-04-10" {
		t.Errorf("dates = %v/%v, want 2017-04-10", out[ParamStartDate], out[ParamEndDate])
	}
	if _, ok := out[ParamReportDate]; ok {
		t.Error("report_date should be removed")
	}
	if out["brand"] != "acme" {
		t.Error("other fields should be kept")
	}
	if _, ok := in[ParamStartDate]; ok {
		t.Error("input payload must not be modified")
	}

	twice := transform(out)
	if len(twice) != len(out) {
		t.Fatalf("second application changed payload: %v -> %v", out, twice)
	}
	for k, v := range out {
		if twice[k] != v {
			t.Errorf("second application changed %s: %v -> %v", k, v, twice[k])
		}
	}
}

func TestIdentityTransforms(t *testing.T) {
	for _, e := range []Endpoint{EndpointProducts, EndpointSearchTerms, EndpointContent} {
		transform, _ := e.Transform()
		out := transform(Payload{ParamReportDate: "2017-04-10"})
		if out[ParamReportDate] != "2017-04-10" {
			t.Errorf("%s should keep report_date", e)
		}
		if _, ok := out[ParamStartDate]; ok {
			t.Errorf("%s should not add start_date", e)
		}
	}
}

func TestNewPageRequest_Defaults(t *testing.T) {
	req, err := NewPageRequest(EndpointProducts, Payload{"brand": "a,b"})
	if err != nil {
		t.Fatalf("NewPageRequest() error = %v", err)
	}

	if req.Offset() != 0 {
		t.Errorf("Offset() = %d, want 0", req.Offset())
	}
	if req.PageSize() != DefaultPageSize {
		t.Errorf("PageSize() = %d, want %d", req.PageSize(), DefaultPageSize)
	}

	v := req.Values()
	if v.Get(ParamOffset) != "0" || v.Get(ParamPageSize) != "20000" || v.Get("brand") != "a,b" {
		t.Errorf("Values() = %v", v)
	}
}

func TestNewPageRequest_PageSize(t *testing.T) {
	tests := []struct {
		name      string
		value     any
		expected  int
		expectErr bool
	}{
		{name: "int", value: 500, expected: 500},
		{name: "string", value: "250", expected: 250},
		{name: "float from json", value: float64(100), expected: 100},
		{name: "zero", value: 0, expectErr: true},
		{name: "negative", value: -5, expectErr: true},
		{name: "garbage", value: "lots", expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := NewPageRequest(EndpointContent, Payload{ParamPageSize: tt.value})
			if tt.expectErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewPageRequest() error = %v", err)
			}
			if req.PageSize() != tt.expected {
				t.Errorf("PageSize() = %d, want %d", req.PageSize(), tt.expected)
			}
		})
	}
}

func TestPageRequest_WithOffsetIsImmutable(t *testing.T) {
	first, err := NewPageRequest(EndpointProducts, Payload{})
	if err != nil {
		t.Fatalf("NewPageRequest() error = %v", err)
	}

	second := first.Next()
	third := second.Next()

	if first.Offset() != 0 {
		t.Errorf("first.Offset() = %d, want 0", first.Offset())
	}
	if second.Offset() != 20000 || third.Offset() != 40000 {
		t.Errorf("offsets = %d, %d, want 20000, 40000", second.Offset(), third.Offset())
	}
	if first.Values().Get(ParamOffset) != "0" {
		t.Error("first request values changed")
	}
	if got := first.WithOffset(7).Offset(); got != 7 {
		t.Errorf("WithOffset(7).Offset() = %d", got)
	}
}

func TestFormatValue(t *testing.T) {
	date := time.Date(2017, 4, 10, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		value    any
		expected string
	}{
		{name: "string", value: "amazon", expected: "amazon"},
		{name: "int", value: 1, expected: "1"},
		{name: "bool true", value: true, expected: "1"},
		{name: "bool false", value: false, expected: "0"},
		{name: "date", value: date, expected: "2017-04-10"},
		{name: "date pointer", value: &date, expected: "2017-04-10"},
		{name: "list", value: []string{"a", "b"}, expected: "a,b"},
		{name: "float", value: 1.5, expected: "1.5"},
		{name: "nil", value: nil, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatValue(tt.value); got != tt.expected {
				t.Errorf("formatValue(%v) = %q, want %q", tt.value, got, tt.expected)
			}
		})
	}
}

func TestPageRequest_String(t *testing.T) {
	req, _ := NewPageRequest(EndpointKPI, Payload{ParamReportDate: "2017-04-10"})
	expected := "kpi:end_date=2017-04-10:start_date=2017-04-10:offset=0:page_size=20000"
	if req.String() != expected {
		t.Errorf("String() = %q, want %q", req.String(), expected)
	}
}
