package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps entries in process memory. Suitable for tests and single-instance
// SQLite deployments.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

// Begin implements Store.
func (s *MemoryStore) Begin(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := documentID(key)
	if existing, ok := s.entries[id]; ok {
		claim, expired, err := resolveClaim(existing, fingerprint, now)
		if err != nil || !expired {
			return claim, err
		}
	}
	entry := newEntry(key, fingerprint, now, ttl)
	s.entries[id] = entry
	return Claim{Fresh: true, Entry: entry}, nil
}

// Complete implements Store.
func (s *MemoryStore) Complete(_ context.Context, key string, resp CapturedResponse, now time.Time, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := documentID(key)
	entry, ok := s.entries[id]
	if !ok {
		entry = Entry{Key: key, CreatedAt: now}
	}
	entry.State = StateCompleted
	entry.Status = resp.Status
	entry.Headers = storableHeaders(resp.Headers)
	entry.Body = append([]byte(nil), resp.Body...)
	entry.ExpiresAt = now.Add(ttl)
	s.entries[id] = entry
	return nil
}

// Release implements Store.
func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, documentID(key))
	return nil
}
