package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/acrylicworks/api/internal/domain"
	pfirestore "github.com/acrylicworks/api/internal/platform/firestore"
	"github.com/acrylicworks/api/internal/platform/pagination"
	"github.com/acrylicworks/api/internal/repositories"
)

const productsCollection = "products"

type productDocument struct {
	SKU            string         `firestore:"sku"`
	Name           string         `firestore:"name"`
	Description    string         `firestore:"description,omitempty"`
	Category       string         `firestore:"category,omitempty"`
	Price          int64          `firestore:"price"`
	Currency       string         `firestore:"currency"`
	RequiresUpload bool           `firestore:"requiresUpload"`
	Active         bool           `firestore:"active"`
	Stock          *int           `firestore:"stock,omitempty"`
	ImageURLs      []string       `firestore:"imageUrls,omitempty"`
	Attributes     map[string]any `firestore:"attributes,omitempty"`
	CreatedAt      time.Time      `firestore:"createdAt"`
	UpdatedAt      time.Time      `firestore:"updatedAt"`
}

// ProductRepository stores catalog entries.
type ProductRepository struct {
	base *pfirestore.BaseRepository[productDocument]
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		base: pfirestore.NewBaseRepository[productDocument](provider, productsCollection),
	}, nil
}

func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	id := strings.TrimSpace(product.ID)
	if id == "" {
		return errors.New("product repository: product id is required")
	}
	return r.base.Create(ctx, id, productToDocument(product))
}

func (r *ProductRepository) Update(ctx context.Context, product domain.Product) error {
	id := strings.TrimSpace(product.ID)
	if id == "" {
		return errors.New("product repository: product id is required")
	}
	if _, err := r.base.Get(ctx, id); err != nil {
		return err
	}
	return r.base.Set(ctx, id, productToDocument(product))
}

func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(productID))
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List returns products newest first.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}
	pageSize := pagination.Normalize(filter.Pagination.PageSize)

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if category := strings.TrimSpace(filter.Category); category != "" {
			q = q.Where("category", "==", category)
		}
		if filter.ActiveOnly {
			q = q.Where("active", "==", true)
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if !cursor.IsZero() {
			q = q.StartAfter(cursor.After, cursor.ID)
		}
		return q.Limit(pageSize)
	})
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}
	items := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.Data.toDomain(doc.ID))
	}
	return domain.CursorPage[domain.Product]{
		Items: items,
		NextPageToken: pagination.NextToken(items, pageSize, func(p domain.Product) (time.Time, string) {
			return p.CreatedAt, p.ID
		}),
	}, nil
}

func (r *ProductRepository) Delete(ctx context.Context, productID string) error {
	return r.base.Delete(ctx, strings.TrimSpace(productID))
}

func productToDocument(product domain.Product) productDocument {
	return productDocument{
		SKU:            strings.TrimSpace(product.SKU),
		Name:           strings.TrimSpace(product.Name),
		Description:    product.Description,
		Category:       strings.TrimSpace(product.Category),
		Price:          product.Price,
		Currency:       strings.ToUpper(strings.TrimSpace(product.Currency)),
		RequiresUpload: product.RequiresUpload,
		Active:         product.Active,
		Stock:          product.Stock,
		ImageURLs:      cloneStrings(product.ImageURLs),
		Attributes:     cloneAnyMap(product.Attributes),
		CreatedAt:      product.CreatedAt.UTC(),
		UpdatedAt:      product.UpdatedAt.UTC(),
	}
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:             id,
		SKU:            d.SKU,
		Name:           d.Name,
		Description:    d.Description,
		Category:       d.Category,
		Price:          d.Price,
		Currency:       d.Currency,
		RequiresUpload: d.RequiresUpload,
		Active:         d.Active,
		Stock:          d.Stock,
		ImageURLs:      cloneStrings(d.ImageURLs),
		Attributes:     cloneAnyMap(d.Attributes),
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}
