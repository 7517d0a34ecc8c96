package sqlstore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/acrylicworks/api/internal/domain"
	"github.com/acrylicworks/api/internal/platform/pagination"
	"github.com/acrylicworks/api/internal/repositories"
)

// OrderRepository implements repositories.OrderRepository with gorm.
type OrderRepository struct {
	store *Store
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order repository: order id is required")
	}
	model := orderFromDomain(order)
	return wrapError("orders.insert", r.store.conn(ctx).Create(&model).Error)
}

func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order repository: order id is required")
	}
	model := orderFromDomain(order)
	res := r.store.conn(ctx).Model(&orderModel{ID: model.ID}).Select("*").Updates(&model)
	if res.Error != nil {
		return wrapError("orders.update", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("orders.update", "order "+order.ID)
	}
	return nil
}

// FindByID loads the order, locking the row when called inside a Postgres transaction.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	var model orderModel
	if err := r.store.forUpdate(ctx).Where("id = ?", strings.TrimSpace(orderID)).First(&model).Error; err != nil {
		return domain.Order{}, wrapError("orders.find", err)
	}
	return model.toDomain(), nil
}

func (r *OrderRepository) FindByPaymentIntent(ctx context.Context, intentID string) (domain.Order, error) {
	var model orderModel
	if err := r.store.forUpdate(ctx).Where("payment_intent_id = ?", strings.TrimSpace(intentID)).First(&model).Error; err != nil {
		return domain.Order{}, wrapError("orders.findByPaymentIntent", err)
	}
	return model.toDomain(), nil
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	pageSize := pagination.Normalize(filter.Pagination.PageSize)

	query := r.store.conn(ctx).Model(&orderModel{})
	if userID := strings.TrimSpace(filter.UserID); userID != "" {
		query = query.Where("user_id = ?", userID)
	}
	if len(filter.Status) > 0 {
		values := make([]string, 0, len(filter.Status))
		for _, status := range filter.Status {
			values = append(values, string(status))
		}
		query = query.Where("status IN ?", values)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at >= ?", filter.CreatedAfter.UTC())
	}
	query = applyCursor(query, cursor)

	var models []orderModel
	if err := query.Order("created_at DESC").Order("id DESC").Limit(pageSize).Find(&models).Error; err != nil {
		return domain.CursorPage[domain.Order]{}, wrapError("orders.list", err)
	}
	items := make([]domain.Order, 0, len(models))
	for _, model := range models {
		items = append(items, model.toDomain())
	}
	return domain.CursorPage[domain.Order]{
		Items: items,
		NextPageToken: pagination.NextToken(items, pageSize, func(o domain.Order) (time.Time, string) {
			return o.CreatedAt, o.ID
		}),
	}, nil
}

func (r *OrderRepository) CountByStatus(ctx context.Context) (map[domain.OrderStatus]int, error) {
	var rows []struct {
		Status string
		Count  int
	}
	if err := r.store.conn(ctx).Model(&orderModel{}).Select("status, COUNT(*) AS count").Group("status").Scan(&rows).Error; err != nil {
		return nil, wrapError("orders.countByStatus", err)
	}
	counts := make(map[domain.OrderStatus]int, len(rows))
	for _, row := range rows {
		status, ok := domain.ParseOrderStatus(row.Status)
		if !ok {
			status = domain.OrderStatus(row.Status)
		}
		counts[status] += row.Count
	}
	return counts, nil
}
