package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type sqlEntry struct {
	ID          string `gorm:"primaryKey;size:64"`
	Key         string
	Fingerprint string `gorm:"size:64"`
	State       string `gorm:"size:16"`
	Status      int
	Headers     []byte
	Body        []byte
	CreatedAt   time.Time
	ExpiresAt   time.Time `gorm:"index"`
}

func (sqlEntry) TableName() string { return "idempotency_keys" }

// SQLStore keeps entries in the relational database used by the SQL repositories.
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore creates the table when missing.
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if err := db.AutoMigrate(&sqlEntry{}); err != nil {
		return nil, err
	}
	return &SQLStore{db: db}, nil
}

// Begin implements Store. The row is locked for the duration of the transaction on Postgres.
func (s *SQLStore) Begin(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Claim, error) {
	var claim Claim
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row sqlEntry
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", documentID(key)).Take(&row).Error
		switch {
		case err == nil:
			existing, expired, err := resolveClaim(row.entry(), fingerprint, now)
			if err != nil {
				return err
			}
			if !expired {
				claim = existing
				return nil
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}
		entry := newEntry(key, fingerprint, now.UTC(), ttl)
		claim = Claim{Fresh: true, Entry: entry}
		return tx.Save(&sqlEntry{
			ID:          documentID(key),
			Key:         key,
			Fingerprint: fingerprint,
			State:       string(entry.State),
			CreatedAt:   entry.CreatedAt,
			ExpiresAt:   entry.ExpiresAt,
		}).Error
	})
	return claim, err
}

// Complete implements Store.
func (s *SQLStore) Complete(ctx context.Context, key string, resp CapturedResponse, now time.Time, ttl time.Duration) error {
	headers, err := json.Marshal(storableHeaders(resp.Headers))
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&sqlEntry{}).Where("id = ?", documentID(key)).Updates(map[string]any{
		"state":      string(StateCompleted),
		"status":     resp.Status,
		"headers":    headers,
		"body":       resp.Body,
		"expires_at": now.UTC().Add(ttl),
	}).Error
}

// Release implements Store.
func (s *SQLStore) Release(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Delete(&sqlEntry{}, "id = ?", documentID(key)).Error
}

func (r sqlEntry) entry() Entry {
	var headers map[string][]string
	_ = json.Unmarshal(r.Headers, &headers)
	return Entry{
		Key:         r.Key,
		Fingerprint: r.Fingerprint,
		State:       State(r.State),
		Status:      r.Status,
		Headers:     headers,
		Body:        r.Body,
		CreatedAt:   r.CreatedAt,
		ExpiresAt:   r.ExpiresAt,
	}
}
