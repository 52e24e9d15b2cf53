package httputil

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// GetClientIP extracts the real client IP address from request headers.
// It handles proxy scenarios by checking headers in this order:
//  1. X-Forwarded-For (extracts first/client IP from comma-separated list)
//  2. X-Real-IP (single IP from reverse proxy)
//  3. RemoteAddr (direct connection)
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

// ExtractBearerToken pulls the credential out of an Authorization header.
// Returns "" when the header is absent or not a Bearer scheme.
func ExtractBearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

// ParseIntParam parses an integer query parameter with a default value.
// Returns defaultVal if the parameter is empty or invalid.
func ParseIntParam(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return defaultVal
}

// ParseTimeParam parses an RFC3339 query parameter.
// Returns the zero time when the parameter is empty or invalid.
func ParseTimeParam(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// ListWindow represents cursor-based pagination for list endpoints.
// The cursor is an opaque offset token handed back to the client as-is.
type ListWindow struct {
	Limit  int
	Offset int
}

// ParseListWindow extracts limit/cursor parameters from the query string,
// enforcing a default and maximum limit to prevent abuse.
func ParseListWindow(r *http.Request, defaultLimit, maxLimit int) ListWindow {
	limit := ParseIntParam(r.URL.Query().Get("limit"), defaultLimit)
	if limit > maxLimit {
		limit = maxLimit
	}
	if limit < 1 {
		limit = defaultLimit
	}

	offset := 0
	if cursor := r.URL.Query().Get("cursor"); cursor != "" {
		if v, err := strconv.Atoi(cursor); err == nil && v > 0 {
			offset = v
		}
	}

	return ListWindow{Limit: limit, Offset: offset}
}

// NextCursor returns the cursor for the page after this window.
func (w ListWindow) NextCursor() string {
	return strconv.Itoa(w.Offset + w.Limit)
}
