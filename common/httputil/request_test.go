package httputil

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		remote   string
		expected string
	}{
		{
			name:     "x-forwarded-for single",
			headers:  map[string]string{"X-Forwarded-For": "203.0.113.195"},
			remote:   "10.0.0.1:1234",
			expected: "203.0.113.195",
		},
		{
			name:     "x-forwarded-for chain takes first",
			headers:  map[string]string{"X-Forwarded-For": "203.0.113.195, 70.41.3.18"},
			remote:   "10.0.0.1:1234",
			expected: "203.0.113.195",
		},
		{
			name:     "x-real-ip fallback",
			headers:  map[string]string{"X-Real-IP": "198.51.100.7"},
			remote:   "10.0.0.1:1234",
			expected: "198.51.100.7",
		},
		{
			name:     "remote addr fallback",
			remote:   "10.0.0.1:1234",
			expected: "10.0.0.1:1234",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/events", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := GetClientIP(r); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		expected string
	}{
		{name: "valid bearer", header: "Bearer abc123", expected: "abc123"},
		{name: "lowercase scheme", header: "bearer abc123", expected: "abc123"},
		{name: "empty header", header: "", expected: ""},
		{name: "wrong scheme", header: "Basic abc123", expected: ""},
		{name: "bearer only", header: "Bearer ", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractBearerToken(tt.header); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestParseTimeParam(t *testing.T) {
	ts := "2026-01-02T15:04:05Z"
	got := ParseTimeParam(ts)
	want, _ := time.Parse(time.RFC3339, ts)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	if !ParseTimeParam("").IsZero() {
		t.Error("empty param should return zero time")
	}
	if !ParseTimeParam("yesterday").IsZero() {
		t.Error("invalid param should return zero time")
	}
}

func TestParseListWindow(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantOffset int
	}{
		{name: "defaults", query: "", wantLimit: 50, wantOffset: 0},
		{name: "explicit limit", query: "limit=10", wantLimit: 10, wantOffset: 0},
		{name: "limit capped", query: "limit=5000", wantLimit: 100, wantOffset: 0},
		{name: "cursor offset", query: "cursor=40", wantLimit: 50, wantOffset: 40},
		{name: "bad cursor ignored", query: "cursor=xyz", wantLimit: 50, wantOffset: 0},
		{name: "negative limit reset", query: "limit=-1", wantLimit: 50, wantOffset: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/inbox?"+tt.query, nil)
			w := ParseListWindow(r, 50, 100)
			if w.Limit != tt.wantLimit {
				t.Errorf("limit: expected %d, got %d", tt.wantLimit, w.Limit)
			}
			if w.Offset != tt.wantOffset {
				t.Errorf("offset: expected %d, got %d", tt.wantOffset, w.Offset)
			}
		})
	}
}

func TestListWindow_NextCursor(t *testing.T) {
	w := ListWindow{Limit: 25, Offset: 50}
	if w.NextCursor() != "75" {
		t.Errorf("expected cursor 75, got %q", w.NextCursor())
	}
}
