package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/acrylicworks/api/internal/domain"
	pfirestore "github.com/acrylicworks/api/internal/platform/firestore"
)

const adminsCollection = "admins"

type adminDocument struct {
	Email        string     `firestore:"email"`
	Name         string     `firestore:"name"`
	Role         string     `firestore:"role"`
	PasswordHash string     `firestore:"passwordHash"`
	Active       bool       `firestore:"active"`
	LastLoginAt  *time.Time `firestore:"lastLoginAt,omitempty"`
	CreatedAt    time.Time  `firestore:"createdAt"`
	UpdatedAt    time.Time  `firestore:"updatedAt"`
}

// AdminRepository stores back office accounts.
type AdminRepository struct {
	base *pfirestore.BaseRepository[adminDocument]
}

// NewAdminRepository constructs a Firestore-backed admin repository.
func NewAdminRepository(provider *pfirestore.Provider) (*AdminRepository, error) {
	if provider == nil {
		return nil, errors.New("admin repository requires firestore provider")
	}
	return &AdminRepository{
		base: pfirestore.NewBaseRepository[adminDocument](provider, adminsCollection),
	}, nil
}

func (r *AdminRepository) Insert(ctx context.Context, admin domain.Admin) error {
	id := strings.TrimSpace(admin.ID)
	if id == "" {
		return errors.New("admin repository: admin id is required")
	}
	return r.base.Create(ctx, id, adminToDocument(admin))
}

func (r *AdminRepository) Update(ctx context.Context, admin domain.Admin) error {
	id := strings.TrimSpace(admin.ID)
	if id == "" {
		return errors.New("admin repository: admin id is required")
	}
	return r.base.Set(ctx, id, adminToDocument(admin))
}

func (r *AdminRepository) FindByID(ctx context.Context, adminID string) (domain.Admin, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(adminID))
	if err != nil {
		return domain.Admin{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *AdminRepository) FindByEmail(ctx context.Context, email string) (domain.Admin, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("email", "==", email).Limit(1)
	})
	if err != nil {
		return domain.Admin{}, err
	}
	if len(docs) == 0 {
		return domain.Admin{}, pfirestore.NewNotFound("admins.findByEmail", "admin "+email)
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

func (r *AdminRepository) List(ctx context.Context) ([]domain.Admin, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("email", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	admins := make([]domain.Admin, 0, len(docs))
	for _, doc := range docs {
		admins = append(admins, doc.Data.toDomain(doc.ID))
	}
	return admins, nil
}

func (r *AdminRepository) Delete(ctx context.Context, adminID string) error {
	return r.base.Delete(ctx, strings.TrimSpace(adminID))
}

func adminToDocument(admin domain.Admin) adminDocument {
	return adminDocument{
		Email:        strings.ToLower(strings.TrimSpace(admin.Email)),
		Name:         strings.TrimSpace(admin.Name),
		Role:         string(admin.Role),
		PasswordHash: admin.PasswordHash,
		Active:       admin.Active,
		LastLoginAt:  utcPtr(admin.LastLoginAt),
		CreatedAt:    admin.CreatedAt.UTC(),
		UpdatedAt:    admin.UpdatedAt.UTC(),
	}
}

func (d adminDocument) toDomain(id string) domain.Admin {
	return domain.Admin{
		ID:           id,
		Email:        d.Email,
		Name:         d.Name,
		Role:         domain.AdminRole(d.Role),
		PasswordHash: d.PasswordHash,
		Active:       d.Active,
		LastLoginAt:  d.LastLoginAt,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}
