package idempotency

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const defaultCollection = "idempotency_keys"

// FirestoreStore keeps entries in a Firestore collection. A TTL policy on expires_at removes
// stale documents.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreStore constructs the store. An empty collection uses "idempotency_keys".
func NewFirestoreStore(client *firestore.Client, collection string) *FirestoreStore {
	if collection == "" {
		collection = defaultCollection
	}
	return &FirestoreStore{client: client, collection: collection}
}

type firestoreEntry struct {
	Key         string              `firestore:"key"`
	Fingerprint string              `firestore:"fingerprint"`
	State       string              `firestore:"state"`
	Status      int                 `firestore:"status"`
	Headers     map[string][]string `firestore:"headers,omitempty"`
	Body        []byte              `firestore:"body,omitempty"`
	CreatedAt   time.Time           `firestore:"created_at"`
	ExpiresAt   time.Time           `firestore:"expires_at"`
}

func (d firestoreEntry) entry() Entry {
	return Entry{
		Key:         d.Key,
		Fingerprint: d.Fingerprint,
		State:       State(d.State),
		Status:      d.Status,
		Headers:     d.Headers,
		Body:        d.Body,
		CreatedAt:   d.CreatedAt,
		ExpiresAt:   d.ExpiresAt,
	}
}

func toFirestoreEntry(e Entry) firestoreEntry {
	return firestoreEntry{
		Key:         e.Key,
		Fingerprint: e.Fingerprint,
		State:       string(e.State),
		Status:      e.Status,
		Headers:     e.Headers,
		Body:        e.Body,
		CreatedAt:   e.CreatedAt,
		ExpiresAt:   e.ExpiresAt,
	}
}

// Begin implements Store inside a transaction so concurrent retries see one winner.
func (s *FirestoreStore) Begin(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Claim, error) {
	ref := s.client.Collection(s.collection).Doc(documentID(key))
	var claim Claim
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if err == nil {
			var doc firestoreEntry
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
			existing, expired, err := resolveClaim(doc.entry(), fingerprint, now)
			if err != nil {
				return err
			}
			if !expired {
				claim = existing
				return nil
			}
		}
		entry := newEntry(key, fingerprint, now.UTC(), ttl)
		claim = Claim{Fresh: true, Entry: entry}
		return tx.Set(ref, toFirestoreEntry(entry))
	})
	return claim, err
}

// Complete implements Store.
func (s *FirestoreStore) Complete(ctx context.Context, key string, resp CapturedResponse, now time.Time, ttl time.Duration) error {
	ref := s.client.Collection(s.collection).Doc(documentID(key))
	_, err := ref.Update(ctx, []firestore.Update{
		{Path: "state", Value: string(StateCompleted)},
		{Path: "status", Value: resp.Status},
		{Path: "headers", Value: storableHeaders(resp.Headers)},
		{Path: "body", Value: resp.Body},
		{Path: "expires_at", Value: now.UTC().Add(ttl)},
	})
	return err
}

// Release implements Store.
func (s *FirestoreStore) Release(ctx context.Context, key string) error {
	_, err := s.client.Collection(s.collection).Doc(documentID(key)).Delete(ctx)
	if status.Code(err) == codes.NotFound {
		return nil
	}
	return err
}
