// Package signing computes HMAC-SHA256 signatures over outbound webhook
// bodies so receivers can verify that a delivery came from us and was not
// modified in transit.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// Header carries the payload signature on outbound webhook requests.
const Header = "X-Relaywire-Signature"

// Signer signs webhook bodies with a shared secret.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign returns the header value for a body sent at ts. The signed input is
// the unix timestamp, a dot, and the raw body, so a receiver can reject
// replayed signatures by checking the timestamp.
func (s *Signer) Sign(ts time.Time, body []byte) string {
	unix := strconv.FormatInt(ts.Unix(), 10)
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(unix))
	h.Write([]byte("."))
	h.Write(body)
	return fmt.Sprintf("t=%s,v1=%s", unix, hex.EncodeToString(h.Sum(nil)))
}

// Verify checks a header value against the body. Timestamp tolerance is the
// caller's concern; Verify only proves the signature matches.
func (s *Signer) Verify(header string, body []byte) bool {
	ts, ok := parseTimestamp(header)
	if !ok {
		return false
	}
	expected := s.Sign(time.Unix(ts, 0), body)
	return hmac.Equal([]byte(expected), []byte(header))
}

func parseTimestamp(header string) (int64, bool) {
	var unix string
	for start := 0; start < len(header); {
		end := start
		for end < len(header) && header[end] != ',' {
			end++
		}
		part := header[start:end]
		if len(part) > 2 && part[:2] == "t=" {
			unix = part[2:]
		}
		start = end + 1
	}
	if unix == "" {
		return 0, false
	}
	ts, err := strconv.ParseInt(unix, 10, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}
