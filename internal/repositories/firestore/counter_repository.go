package firestore

import (
	"context"
	"errors"
	"time"

	pfirestore "github.com/acrylicworks/api/internal/platform/firestore"
	"github.com/acrylicworks/api/internal/repositories"
)

const countersCollection = "counters"

type counterDocument struct {
	CurrentValue int64     `firestore:"currentValue"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

// CounterRepository implements repositories.CounterRepository backed by Firestore transactions.
type CounterRepository struct {
	provider *pfirestore.Provider
	counters *pfirestore.BaseRepository[counterDocument]
}

// NewCounterRepository constructs a Firestore-backed counter repository.
func NewCounterRepository(provider *pfirestore.Provider) (*CounterRepository, error) {
	if provider == nil {
		return nil, errors.New("counter repository requires firestore provider")
	}
	return &CounterRepository{
		provider: provider,
		counters: pfirestore.NewBaseRepository[counterDocument](provider, countersCollection),
	}, nil
}

// Next atomically increments the counter and returns the new value. When ctx carries a
// transaction the increment joins it, so the caller must invoke Next before any write.
func (r *CounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("counter repository not initialised")
	}
	id, step, err := repositories.NormalizeCounterRequest(counterID, step)
	if err != nil {
		return 0, err
	}

	var next int64
	err = r.provider.RunInTx(ctx, func(txCtx context.Context) error {
		doc, err := r.counters.Get(txCtx, id)
		switch {
		case err == nil:
			next = doc.Data.CurrentValue + step
		case pfirestore.IsNotFound(err):
			next = step
		default:
			return err
		}
		return r.counters.Set(txCtx, id, counterDocument{CurrentValue: next, UpdatedAt: time.Now().UTC()})
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}
