package sqlstore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/acrylicworks/api/internal/domain"
	"github.com/acrylicworks/api/internal/repositories"
)

const defaultUploadLimit = 200

// UploadRepository implements repositories.UploadRepository with gorm.
type UploadRepository struct {
	store *Store
}

func (r *UploadRepository) Insert(ctx context.Context, upload domain.Upload) error {
	if strings.TrimSpace(upload.ID) == "" {
		return errors.New("upload repository: upload id is required")
	}
	model := uploadFromDomain(upload)
	return wrapError("uploads.insert", r.store.conn(ctx).Create(&model).Error)
}

func (r *UploadRepository) Update(ctx context.Context, upload domain.Upload) error {
	model := uploadFromDomain(upload)
	res := r.store.conn(ctx).Model(&uploadModel{ID: model.ID}).Select("*").Updates(&model)
	if res.Error != nil {
		return wrapError("uploads.update", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("uploads.update", "upload "+upload.ID)
	}
	return nil
}

func (r *UploadRepository) FindByID(ctx context.Context, uploadID string) (domain.Upload, error) {
	var model uploadModel
	if err := r.store.forUpdate(ctx).Where("id = ?", strings.TrimSpace(uploadID)).First(&model).Error; err != nil {
		return domain.Upload{}, wrapError("uploads.find", err)
	}
	return model.toDomain(), nil
}

func (r *UploadRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Upload, error) {
	var models []uploadModel
	err := r.store.conn(ctx).
		Where("order_id = ?", strings.TrimSpace(orderID)).
		Order("order_item_id ASC").Order("quantity_index ASC").Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, wrapError("uploads.listByOrder", err)
	}
	return uploadsToDomain(models), nil
}

func (r *UploadRepository) ListByUser(ctx context.Context, userID string) ([]domain.Upload, error) {
	var models []uploadModel
	err := r.store.conn(ctx).
		Where("user_id = ?", strings.TrimSpace(userID)).
		Order("created_at DESC").Limit(defaultUploadLimit).
		Find(&models).Error
	if err != nil {
		return nil, wrapError("uploads.listByUser", err)
	}
	return uploadsToDomain(models), nil
}

func (r *UploadRepository) ListByStatus(ctx context.Context, statuses []domain.UploadStatus, limit int) ([]domain.Upload, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultUploadLimit
	}
	values := make([]string, 0, len(statuses))
	for _, status := range statuses {
		values = append(values, string(status))
	}
	var models []uploadModel
	if err := r.store.conn(ctx).Where("status IN ?", values).Order("created_at ASC").Limit(limit).Find(&models).Error; err != nil {
		return nil, wrapError("uploads.listByStatus", err)
	}
	return uploadsToDomain(models), nil
}

func (r *UploadRepository) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Upload, error) {
	if limit <= 0 {
		limit = defaultUploadLimit
	}
	var models []uploadModel
	err := r.store.conn(ctx).
		Where("status = ? AND created_at < ?", string(domain.UploadStatusPending), createdBefore.UTC()).
		Order("created_at ASC").Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, wrapError("uploads.listStalePending", err)
	}
	return uploadsToDomain(models), nil
}

func (r *UploadRepository) LinkToOrderItem(ctx context.Context, link repositories.UploadLink) error {
	updatedAt := link.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	res := r.store.conn(ctx).Model(&uploadModel{}).Where("id = ?", strings.TrimSpace(link.UploadID)).Updates(map[string]any{
		"order_id":       strings.TrimSpace(link.OrderID),
		"order_item_id":  strings.TrimSpace(link.OrderItemID),
		"quantity_index": link.QuantityIndex,
		"status":         string(link.Status),
		"updated_at":     updatedAt,
	})
	if res.Error != nil {
		return wrapError("uploads.link", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("uploads.link", "upload "+link.UploadID)
	}
	return nil
}

func (r *UploadRepository) Delete(ctx context.Context, uploadID string) error {
	res := r.store.conn(ctx).Delete(&uploadModel{}, "id = ?", strings.TrimSpace(uploadID))
	if res.Error != nil {
		return wrapError("uploads.delete", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("uploads.delete", "upload "+uploadID)
	}
	return nil
}

func uploadsToDomain(models []uploadModel) []domain.Upload {
	uploads := make([]domain.Upload, 0, len(models))
	for _, model := range models {
		uploads = append(uploads, model.toDomain())
	}
	return uploads
}
