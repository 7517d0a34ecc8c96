package sqlstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm/clause"

	domain "github.com/acrylicworks/api/internal/domain"
)

// CartRepository stores one row per user with the line items serialised as JSON.
type CartRepository struct {
	store *Store
}

func (r *CartRepository) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}
	var models []cartModel
	if err := r.store.conn(ctx).Where("user_id = ?", userID).Limit(1).Find(&models).Error; err != nil {
		return domain.Cart{}, wrapError("carts.get", err)
	}
	if len(models) == 0 {
		return domain.Cart{UserID: userID}, nil
	}
	return domain.Cart{
		UserID:    models[0].UserID,
		Currency:  models[0].Currency,
		Items:     models[0].Items,
		UpdatedAt: models[0].UpdatedAt.UTC(),
	}, nil
}

func (r *CartRepository) SaveCart(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if strings.TrimSpace(cart.UserID) == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}
	if cart.UpdatedAt.IsZero() {
		cart.UpdatedAt = time.Now().UTC()
	}
	model := cartModel{
		UserID:    strings.TrimSpace(cart.UserID),
		Currency:  strings.ToUpper(strings.TrimSpace(cart.Currency)),
		Items:     cart.Items,
		UpdatedAt: cart.UpdatedAt.UTC(),
	}
	err := r.store.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"currency", "items", "updated_at"}),
	}).Create(&model).Error
	if err != nil {
		return domain.Cart{}, wrapError("carts.save", err)
	}
	cart.UserID = model.UserID
	cart.Currency = model.Currency
	cart.UpdatedAt = model.UpdatedAt
	return cart, nil
}

func (r *CartRepository) ClearCart(ctx context.Context, userID string) error {
	return wrapError("carts.clear", r.store.conn(ctx).Delete(&cartModel{}, "user_id = ?", strings.TrimSpace(userID)).Error)
}
