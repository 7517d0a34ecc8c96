package sqlstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm/clause"

	domain "github.com/acrylicworks/api/internal/domain"
	"github.com/acrylicworks/api/internal/platform/pagination"
	"github.com/acrylicworks/api/internal/repositories"
)

// CustomerRepository implements repositories.CustomerRepository with gorm.
type CustomerRepository struct {
	store *Store
}

// Upsert inserts or refreshes the profile. The original created_at is preserved on conflict.
func (r *CustomerRepository) Upsert(ctx context.Context, customer domain.Customer) (domain.Customer, error) {
	if strings.TrimSpace(customer.ID) == "" {
		return domain.Customer{}, errors.New("customer repository: customer id is required")
	}
	if customer.UpdatedAt.IsZero() {
		customer.UpdatedAt = time.Now().UTC()
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = customer.UpdatedAt
	}
	customer.Email = strings.ToLower(strings.TrimSpace(customer.Email))
	model := customerFromDomain(customer)
	err := r.store.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "display_name", "phone", "addresses", "disabled", "updated_at"}),
	}).Create(&model).Error
	if err != nil {
		return domain.Customer{}, wrapError("customers.upsert", err)
	}
	return r.FindByID(ctx, customer.ID)
}

func (r *CustomerRepository) FindByID(ctx context.Context, customerID string) (domain.Customer, error) {
	var model customerModel
	if err := r.store.conn(ctx).Where("id = ?", strings.TrimSpace(customerID)).First(&model).Error; err != nil {
		return domain.Customer{}, wrapError("customers.find", err)
	}
	return model.toDomain(), nil
}

func (r *CustomerRepository) List(ctx context.Context, filter repositories.CustomerListFilter) (domain.CursorPage[domain.Customer], error) {
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Customer]{}, err
	}
	pageSize := pagination.Normalize(filter.Pagination.PageSize)

	query := r.store.conn(ctx).Model(&customerModel{})
	if email := strings.ToLower(strings.TrimSpace(filter.Email)); email != "" {
		query = query.Where("email = ?", email)
	}
	query = applyCursor(query, cursor)

	var models []customerModel
	if err := query.Order("created_at DESC").Order("id DESC").Limit(pageSize).Find(&models).Error; err != nil {
		return domain.CursorPage[domain.Customer]{}, wrapError("customers.list", err)
	}
	items := make([]domain.Customer, 0, len(models))
	for _, model := range models {
		items = append(items, model.toDomain())
	}
	return domain.CursorPage[domain.Customer]{
		Items: items,
		NextPageToken: pagination.NextToken(items, pageSize, func(c domain.Customer) (time.Time, string) {
			return c.CreatedAt, c.ID
		}),
	}, nil
}

func (r *CustomerRepository) Count(ctx context.Context) (int, error) {
	var count int64
	if err := r.store.conn(ctx).Model(&customerModel{}).Count(&count).Error; err != nil {
		return 0, wrapError("customers.count", err)
	}
	return int(count), nil
}
