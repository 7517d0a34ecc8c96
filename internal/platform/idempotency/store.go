// Package idempotency replays the stored response of a mutating request when a client retries it
// with the same Idempotency-Key.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL is how long completed responses stay replayable.
const DefaultTTL = 24 * time.Hour

// State is the lifecycle of a stored key.
type State string

const (
	StateInFlight  State = "in_flight"
	StateCompleted State = "completed"
)

// Entry is the stored record for one scoped key.
type Entry struct {
	Key         string
	Fingerprint string
	State       State
	Status      int
	Headers     map[string][]string
	Body        []byte
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Claim is the result of Begin. Fresh is true when the caller owns the key and must run the
// request; otherwise Entry holds the existing record.
type Claim struct {
	Fresh bool
	Entry Entry
}

// Store persists idempotency entries. Begin must be atomic per key.
type Store interface {
	Begin(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Claim, error)
	Complete(ctx context.Context, key string, resp CapturedResponse, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

// CapturedResponse is the response recorded for replay.
type CapturedResponse struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// ErrFingerprintMismatch is returned when a key is reused for a different request.
var ErrFingerprintMismatch = errors.New("idempotency: key already used for a different request")

func documentID(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

func newEntry(key, fingerprint string, now time.Time, ttl time.Duration) Entry {
	return Entry{
		Key:         key,
		Fingerprint: fingerprint,
		State:       StateInFlight,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
}

// resolveClaim decides what an existing entry means for a new request.
func resolveClaim(existing Entry, fingerprint string, now time.Time) (Claim, bool, error) {
	if !existing.ExpiresAt.IsZero() && !now.Before(existing.ExpiresAt) {
		return Claim{}, true, nil
	}
	if existing.Fingerprint != fingerprint {
		return Claim{}, false, ErrFingerprintMismatch
	}
	return Claim{Entry: existing}, false, nil
}

var hopHeaders = map[string]struct{}{
	"Connection": {}, "Content-Length": {}, "Date": {}, "Keep-Alive": {}, "Transfer-Encoding": {},
	"Set-Cookie": {}, "Trailer": {}, "Upgrade": {},
}

func storableHeaders(h http.Header) map[string][]string {
	out := make(map[string][]string, len(h))
	for name, values := range h {
		name = http.CanonicalHeaderKey(name)
		if _, skip := hopHeaders[name]; skip {
			continue
		}
		out[name] = append([]string(nil), values...)
	}
	return out
}
