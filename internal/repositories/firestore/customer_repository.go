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

const customersCollection = "users"

type customerDocument struct {
	Email       string            `firestore:"email"`
	DisplayName string            `firestore:"displayName,omitempty"`
	Phone       *string           `firestore:"phone,omitempty"`
	Addresses   []addressDocument `firestore:"addresses,omitempty"`
	Disabled    bool              `firestore:"disabled"`
	CreatedAt   time.Time         `firestore:"createdAt"`
	UpdatedAt   time.Time         `firestore:"updatedAt"`
}

// CustomerRepository stores storefront profiles keyed by Firebase uid.
type CustomerRepository struct {
	base *pfirestore.BaseRepository[customerDocument]
}

// NewCustomerRepository constructs a Firestore-backed customer repository.
func NewCustomerRepository(provider *pfirestore.Provider) (*CustomerRepository, error) {
	if provider == nil {
		return nil, errors.New("customer repository requires firestore provider")
	}
	return &CustomerRepository{
		base: pfirestore.NewBaseRepository[customerDocument](provider, customersCollection),
	}, nil
}

// Upsert writes the profile, keeping the original creation time when the profile already exists.
func (r *CustomerRepository) Upsert(ctx context.Context, customer domain.Customer) (domain.Customer, error) {
	id := strings.TrimSpace(customer.ID)
	if id == "" {
		return domain.Customer{}, errors.New("customer repository: customer id is required")
	}
	existing, err := r.base.Get(ctx, id)
	switch {
	case err == nil:
		customer.CreatedAt = existing.Data.CreatedAt
	case pfirestore.IsNotFound(err):
	default:
		return domain.Customer{}, err
	}
	if customer.UpdatedAt.IsZero() {
		customer.UpdatedAt = time.Now().UTC()
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = customer.UpdatedAt
	}
	doc := customerToDocument(customer)
	if err := r.base.Set(ctx, id, doc); err != nil {
		return domain.Customer{}, err
	}
	return doc.toDomain(id), nil
}

func (r *CustomerRepository) FindByID(ctx context.Context, customerID string) (domain.Customer, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(customerID))
	if err != nil {
		return domain.Customer{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List returns customers newest first, optionally filtered by exact email.
func (r *CustomerRepository) List(ctx context.Context, filter repositories.CustomerListFilter) (domain.CursorPage[domain.Customer], error) {
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Customer]{}, err
	}
	pageSize := pagination.Normalize(filter.Pagination.PageSize)

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if email := strings.ToLower(strings.TrimSpace(filter.Email)); email != "" {
			q = q.Where("email", "==", email)
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if !cursor.IsZero() {
			q = q.StartAfter(cursor.After, cursor.ID)
		}
		return q.Limit(pageSize)
	})
	if err != nil {
		return domain.CursorPage[domain.Customer]{}, err
	}
	items := make([]domain.Customer, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.Data.toDomain(doc.ID))
	}
	return domain.CursorPage[domain.Customer]{
		Items: items,
		NextPageToken: pagination.NextToken(items, pageSize, func(c domain.Customer) (time.Time, string) {
			return c.CreatedAt, c.ID
		}),
	}, nil
}

// Count returns the number of stored profiles.
func (r *CustomerRepository) Count(ctx context.Context) (int, error) {
	coll, err := r.base.CollectionRef(ctx)
	if err != nil {
		return 0, err
	}
	result, err := coll.NewAggregationQuery().WithCount("count").Get(ctx)
	if err != nil {
		return 0, pfirestore.WrapError("users.count", err)
	}
	return aggregateCount(result, "count")
}

func customerToDocument(customer domain.Customer) customerDocument {
	doc := customerDocument{
		Email:       strings.ToLower(strings.TrimSpace(customer.Email)),
		DisplayName: strings.TrimSpace(customer.DisplayName),
		Phone:       trimPtr(customer.Phone),
		Disabled:    customer.Disabled,
		CreatedAt:   customer.CreatedAt.UTC(),
		UpdatedAt:   customer.UpdatedAt.UTC(),
	}
	for _, addr := range customer.Addresses {
		doc.Addresses = append(doc.Addresses, addressToDocument(addr))
	}
	return doc
}

func (d customerDocument) toDomain(id string) domain.Customer {
	customer := domain.Customer{
		ID:          id,
		Email:       d.Email,
		DisplayName: d.DisplayName,
		Phone:       d.Phone,
		Disabled:    d.Disabled,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
	for _, addr := range d.Addresses {
		customer.Addresses = append(customer.Addresses, addr.toDomain())
	}
	return customer
}
