package firestore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/acrylicworks/api/internal/domain"
	pfirestore "github.com/acrylicworks/api/internal/platform/firestore"
	"github.com/acrylicworks/api/internal/repositories"
)

const (
	uploadsCollection  = "uploads"
	defaultUploadLimit = 200
)

type uploadDocument struct {
	UserID        string     `firestore:"userId"`
	OrderID       *string    `firestore:"orderId,omitempty"`
	OrderItemID   *string    `firestore:"orderItemId,omitempty"`
	QuantityIndex int        `firestore:"quantityIndex"`
	FileName      string     `firestore:"fileName"`
	StorageKey    string     `firestore:"storageKey"`
	URL           string     `firestore:"url,omitempty"`
	MimeType      string     `firestore:"mimeType"`
	Size          int64      `firestore:"size"`
	UploadType    string     `firestore:"uploadType,omitempty"`
	Status        string     `firestore:"status"`
	AdminNotes    *string    `firestore:"adminNotes,omitempty"`
	ReviewerID    *string    `firestore:"reviewerId,omitempty"`
	ReviewedAt    *time.Time `firestore:"reviewedAt,omitempty"`
	CreatedAt     time.Time  `firestore:"createdAt"`
	UpdatedAt     time.Time  `firestore:"updatedAt"`
}

// UploadRepository stores customer uploads in a flat collection keyed by upload id.
type UploadRepository struct {
	base *pfirestore.BaseRepository[uploadDocument]
}

// NewUploadRepository constructs a Firestore-backed upload repository.
func NewUploadRepository(provider *pfirestore.Provider) (*UploadRepository, error) {
	if provider == nil {
		return nil, errors.New("upload repository requires firestore provider")
	}
	return &UploadRepository{
		base: pfirestore.NewBaseRepository[uploadDocument](provider, uploadsCollection),
	}, nil
}

func (r *UploadRepository) Insert(ctx context.Context, upload domain.Upload) error {
	id := strings.TrimSpace(upload.ID)
	if id == "" {
		return errors.New("upload repository: upload id is required")
	}
	return r.base.Create(ctx, id, uploadToDocument(upload))
}

func (r *UploadRepository) Update(ctx context.Context, upload domain.Upload) error {
	id := strings.TrimSpace(upload.ID)
	if id == "" {
		return errors.New("upload repository: upload id is required")
	}
	return r.base.Set(ctx, id, uploadToDocument(upload))
}

func (r *UploadRepository) FindByID(ctx context.Context, uploadID string) (domain.Upload, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(uploadID))
	if err != nil {
		return domain.Upload{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// ListByOrder returns every upload linked to the order ordered by item and quantity index.
func (r *UploadRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Upload, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, errors.New("upload repository: order id is required")
	}
	uploads, err := r.query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", orderID)
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(uploads, func(i, j int) bool {
		a, b := deref(uploads[i].OrderItemID), deref(uploads[j].OrderItemID)
		if a != b {
			return a < b
		}
		if uploads[i].QuantityIndex != uploads[j].QuantityIndex {
			return uploads[i].QuantityIndex < uploads[j].QuantityIndex
		}
		return uploads[i].ID < uploads[j].ID
	})
	return uploads, nil
}

// ListByUser returns the user's uploads newest first.
func (r *UploadRepository) ListByUser(ctx context.Context, userID string) ([]domain.Upload, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("upload repository: user id is required")
	}
	return r.query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("userId", "==", userID).OrderBy("createdAt", firestore.Desc).Limit(defaultUploadLimit)
	})
}

// ListByStatus returns uploads in any of the statuses, oldest first so review queues drain in order.
func (r *UploadRepository) ListByStatus(ctx context.Context, statuses []domain.UploadStatus, limit int) ([]domain.Upload, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	values := make([]string, 0, len(statuses))
	for _, status := range statuses {
		values = append(values, string(status))
	}
	if limit <= 0 {
		limit = defaultUploadLimit
	}
	return r.query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("status", "in", values).OrderBy("createdAt", firestore.Asc).Limit(limit)
	})
}

// ListStalePending returns uploads never linked to an order and created before the cutoff.
func (r *UploadRepository) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Upload, error) {
	if limit <= 0 {
		limit = defaultUploadLimit
	}
	return r.query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("status", "==", string(domain.UploadStatusPending)).
			Where("createdAt", "<", createdBefore.UTC()).
			OrderBy("createdAt", firestore.Asc).
			Limit(limit)
	})
}

// LinkToOrderItem attaches the upload to an order item with a partial update.
func (r *UploadRepository) LinkToOrderItem(ctx context.Context, link repositories.UploadLink) error {
	id := strings.TrimSpace(link.UploadID)
	if id == "" {
		return errors.New("upload repository: upload id is required")
	}
	updatedAt := link.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	return r.base.Update(ctx, id, []firestore.Update{
		{Path: "orderId", Value: strings.TrimSpace(link.OrderID)},
		{Path: "orderItemId", Value: strings.TrimSpace(link.OrderItemID)},
		{Path: "quantityIndex", Value: link.QuantityIndex},
		{Path: "status", Value: string(link.Status)},
		{Path: "updatedAt", Value: updatedAt},
	})
}

func (r *UploadRepository) Delete(ctx context.Context, uploadID string) error {
	return r.base.Delete(ctx, strings.TrimSpace(uploadID))
}

func (r *UploadRepository) query(ctx context.Context, build pfirestore.QueryBuilder) ([]domain.Upload, error) {
	docs, err := r.base.Query(ctx, build)
	if err != nil {
		return nil, err
	}
	uploads := make([]domain.Upload, 0, len(docs))
	for _, doc := range docs {
		uploads = append(uploads, doc.Data.toDomain(doc.ID))
	}
	return uploads, nil
}

func uploadToDocument(upload domain.Upload) uploadDocument {
	return uploadDocument{
		UserID:        strings.TrimSpace(upload.UserID),
		OrderID:       trimPtr(upload.OrderID),
		OrderItemID:   trimPtr(upload.OrderItemID),
		QuantityIndex: upload.QuantityIndex,
		FileName:      upload.FileName,
		StorageKey:    upload.StorageKey,
		URL:           upload.URL,
		MimeType:      upload.MimeType,
		Size:          upload.Size,
		UploadType:    upload.UploadType,
		Status:        string(upload.Status),
		AdminNotes:    upload.AdminNotes,
		ReviewerID:    trimPtr(upload.ReviewerID),
		ReviewedAt:    utcPtr(upload.ReviewedAt),
		CreatedAt:     upload.CreatedAt.UTC(),
		UpdatedAt:     upload.UpdatedAt.UTC(),
	}
}

func (d uploadDocument) toDomain(id string) domain.Upload {
	return domain.Upload{
		ID:            id,
		UserID:        d.UserID,
		OrderID:       d.OrderID,
		OrderItemID:   d.OrderItemID,
		QuantityIndex: d.QuantityIndex,
		FileName:      d.FileName,
		StorageKey:    d.StorageKey,
		URL:           d.URL,
		MimeType:      d.MimeType,
		Size:          d.Size,
		UploadType:    d.UploadType,
		Status:        domain.UploadStatus(d.Status),
		AdminNotes:    d.AdminNotes,
		ReviewerID:    d.ReviewerID,
		ReviewedAt:    d.ReviewedAt,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
