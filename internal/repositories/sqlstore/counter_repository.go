package sqlstore

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/acrylicworks/api/internal/repositories"
)

// CounterRepository issues sequence numbers with an upsert-and-read inside one transaction.
type CounterRepository struct {
	store *Store
}

func (r *CounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	id, step, err := repositories.NormalizeCounterRequest(counterID, step)
	if err != nil {
		return 0, err
	}

	var value int64
	err = r.store.RunInTx(ctx, func(txCtx context.Context) error {
		db := r.store.conn(txCtx)
		now := time.Now().UTC()
		err := db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"value":      gorm.Expr("counters.value + ?", step),
				"updated_at": now,
			}),
		}).Create(&counterModel{ID: id, Value: step, UpdatedAt: now}).Error
		if err != nil {
			return err
		}
		var model counterModel
		if err := db.Where("id = ?", id).First(&model).Error; err != nil {
			return err
		}
		value = model.Value
		return nil
	})
	if err != nil {
		return 0, wrapError("counters.next", err)
	}
	return value, nil
}
