package sqlstore

import (
	"context"
	"errors"
	"strings"

	domain "github.com/acrylicworks/api/internal/domain"
)

// AdminRepository implements repositories.AdminRepository with gorm.
type AdminRepository struct {
	store *Store
}

func (r *AdminRepository) Insert(ctx context.Context, admin domain.Admin) error {
	if strings.TrimSpace(admin.ID) == "" {
		return errors.New("admin repository: admin id is required")
	}
	admin.Email = strings.ToLower(strings.TrimSpace(admin.Email))
	model := adminFromDomain(admin)
	return wrapError("admins.insert", r.store.conn(ctx).Create(&model).Error)
}

func (r *AdminRepository) Update(ctx context.Context, admin domain.Admin) error {
	admin.Email = strings.ToLower(strings.TrimSpace(admin.Email))
	model := adminFromDomain(admin)
	res := r.store.conn(ctx).Model(&adminModel{ID: model.ID}).Select("*").Updates(&model)
	if res.Error != nil {
		return wrapError("admins.update", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("admins.update", "admin "+admin.ID)
	}
	return nil
}

func (r *AdminRepository) FindByID(ctx context.Context, adminID string) (domain.Admin, error) {
	var model adminModel
	if err := r.store.conn(ctx).Where("id = ?", strings.TrimSpace(adminID)).First(&model).Error; err != nil {
		return domain.Admin{}, wrapError("admins.find", err)
	}
	return model.toDomain(), nil
}

func (r *AdminRepository) FindByEmail(ctx context.Context, email string) (domain.Admin, error) {
	var model adminModel
	if err := r.store.conn(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&model).Error; err != nil {
		return domain.Admin{}, wrapError("admins.findByEmail", err)
	}
	return model.toDomain(), nil
}

func (r *AdminRepository) List(ctx context.Context) ([]domain.Admin, error) {
	var models []adminModel
	if err := r.store.conn(ctx).Order("email ASC").Find(&models).Error; err != nil {
		return nil, wrapError("admins.list", err)
	}
	admins := make([]domain.Admin, 0, len(models))
	for _, model := range models {
		admins = append(admins, model.toDomain())
	}
	return admins, nil
}

func (r *AdminRepository) Delete(ctx context.Context, adminID string) error {
	res := r.store.conn(ctx).Delete(&adminModel{}, "id = ?", strings.TrimSpace(adminID))
	if res.Error != nil {
		return wrapError("admins.delete", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("admins.delete", "admin "+adminID)
	}
	return nil
}
