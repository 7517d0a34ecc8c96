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

// ProductRepository implements repositories.ProductRepository with gorm.
type ProductRepository struct {
	store *Store
}

func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	if strings.TrimSpace(product.ID) == "" {
		return errors.New("product repository: product id is required")
	}
	model := productFromDomain(product)
	return wrapError("products.insert", r.store.conn(ctx).Create(&model).Error)
}

func (r *ProductRepository) Update(ctx context.Context, product domain.Product) error {
	model := productFromDomain(product)
	res := r.store.conn(ctx).Model(&productModel{ID: model.ID}).Select("*").Updates(&model)
	if res.Error != nil {
		return wrapError("products.update", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("products.update", "product "+product.ID)
	}
	return nil
}

func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	var model productModel
	if err := r.store.conn(ctx).Where("id = ?", strings.TrimSpace(productID)).First(&model).Error; err != nil {
		return domain.Product{}, wrapError("products.find", err)
	}
	return model.toDomain(), nil
}

func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}
	pageSize := pagination.Normalize(filter.Pagination.PageSize)

	query := r.store.conn(ctx).Model(&productModel{})
	if category := strings.TrimSpace(filter.Category); category != "" {
		query = query.Where("category = ?", category)
	}
	if filter.ActiveOnly {
		query = query.Where("active = ?", true)
	}
	query = applyCursor(query, cursor)

	var models []productModel
	if err := query.Order("created_at DESC").Order("id DESC").Limit(pageSize).Find(&models).Error; err != nil {
		return domain.CursorPage[domain.Product]{}, wrapError("products.list", err)
	}
	items := make([]domain.Product, 0, len(models))
	for _, model := range models {
		items = append(items, model.toDomain())
	}
	return domain.CursorPage[domain.Product]{
		Items: items,
		NextPageToken: pagination.NextToken(items, pageSize, func(p domain.Product) (time.Time, string) {
			return p.CreatedAt, p.ID
		}),
	}, nil
}

func (r *ProductRepository) Delete(ctx context.Context, productID string) error {
	res := r.store.conn(ctx).Delete(&productModel{}, "id = ?", strings.TrimSpace(productID))
	if res.Error != nil {
		return wrapError("products.delete", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("products.delete", "product "+productID)
	}
	return nil
}
