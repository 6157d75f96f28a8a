package control

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultToleranceSeconds bounds signed-request timestamp skew.
	DefaultToleranceSeconds = 300

	// MinAdminSecretLen guards against trivially short admin tokens.
	MinAdminSecretLen = 32
)

var (
	ErrAuthFailed       = errors.New("authentication failed")
	ErrStaleTimestamp   = errors.New("request timestamp outside tolerance")
	ErrAdminSecretShort = errors.New("admin secret shorter than 32 bytes")
)

// VerifyBearer checks an Authorization header against a shared secret in
// constant time. An empty secret disables bearer auth entirely.
func VerifyBearer(header, secret string) bool {
	if secret == "" {
		return false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1
}

// VerifyAdminBearer is VerifyBearer with the minimum-length rule for the
// admin secret. A short secret fails closed.
func VerifyAdminBearer(header, secret string) error {
	if len(secret) < MinAdminSecretLen {
		return ErrAdminSecretShort
	}
	if !VerifyBearer(header, secret) {
		return ErrAuthFailed
	}
	return nil
}

// VerifySignature checks a signed-request envelope: HMAC-SHA256 over
// timestamp + "." + body keyed by secret, signature given as hex or
// base64. The timestamp is epoch seconds and must be within tolerance of
// now.
func VerifySignature(secret, timestamp, signature string, body []byte, tolerance time.Duration, now time.Time) error {
	if secret == "" || timestamp == "" || signature == "" {
		return ErrAuthFailed
	}
	if tolerance <= 0 {
		tolerance = DefaultToleranceSeconds * time.Second
	}

	ts, err := strconv.ParseInt(strings.TrimSpace(timestamp), 10, 64)
	if err != nil {
		return ErrAuthFailed
	}
	skew := now.Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > tolerance {
		return ErrStaleTimestamp
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := mac.Sum(nil)

	provided, err := decodeSignature(strings.TrimSpace(signature))
	if err != nil {
		return ErrAuthFailed
	}
	if !hmac.Equal(provided, expected) {
		return ErrAuthFailed
	}
	return nil
}

// decodeSignature accepts hex first, then standard base64. A common
// "sha256=" prefix is tolerated.
func decodeSignature(sig string) ([]byte, error) {
	sig = strings.TrimPrefix(sig, "sha256=")
	if raw, err := hex.DecodeString(sig); err == nil {
		return raw, nil
	}
	if raw, err := base64.StdEncoding.DecodeString(sig); err == nil {
		return raw, nil
	}
	return nil, ErrAuthFailed
}
