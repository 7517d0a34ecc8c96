package repositories

import (
	"context"
	"time"

	domain "github.com/acrylicworks/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Uploads() UploadRepository
	Products() ProductRepository
	Carts() CartRepository
	Customers() CustomerRepository
	Admins() AdminRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
// Repository calls made with the ctx handed to fn join the same transaction.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository persists order headers and line items.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByPaymentIntent(ctx context.Context, intentID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	CountByStatus(ctx context.Context) (map[domain.OrderStatus]int, error)
}

// UploadRepository persists customer uploads and their review state.
type UploadRepository interface {
	Insert(ctx context.Context, upload domain.Upload) error
	Update(ctx context.Context, upload domain.Upload) error
	FindByID(ctx context.Context, uploadID string) (domain.Upload, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.Upload, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Upload, error)
	ListByStatus(ctx context.Context, statuses []domain.UploadStatus, limit int) ([]domain.Upload, error)
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Upload, error)
	LinkToOrderItem(ctx context.Context, link UploadLink) error
	Delete(ctx context.Context, uploadID string) error
}

// ProductRepository stores catalog products.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	Update(ctx context.Context, product domain.Product) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) (domain.CursorPage[domain.Product], error)
	Delete(ctx context.Context, productID string) error
}

// CartRepository owns per-user cart persistence.
type CartRepository interface {
	GetCart(ctx context.Context, userID string) (domain.Cart, error)
	SaveCart(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	ClearCart(ctx context.Context, userID string) error
}

// CustomerRepository stores storefront user profiles.
type CustomerRepository interface {
	Upsert(ctx context.Context, customer domain.Customer) (domain.Customer, error)
	FindByID(ctx context.Context, customerID string) (domain.Customer, error)
	List(ctx context.Context, filter CustomerListFilter) (domain.CursorPage[domain.Customer], error)
	Count(ctx context.Context) (int, error)
}

// AdminRepository stores back office accounts.
type AdminRepository interface {
	Insert(ctx context.Context, admin domain.Admin) error
	Update(ctx context.Context, admin domain.Admin) error
	FindByID(ctx context.Context, adminID string) (domain.Admin, error)
	FindByEmail(ctx context.Context, email string) (domain.Admin, error)
	List(ctx context.Context) ([]domain.Admin, error)
	Delete(ctx context.Context, adminID string) error
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// Filter DTOs shared across repositories ------------------------------------

type OrderListFilter struct {
	UserID       string
	Status       []domain.OrderStatus
	CreatedAfter *time.Time
	Pagination   domain.Pagination
}

type ProductListFilter struct {
	Category   string
	ActiveOnly bool
	Pagination domain.Pagination
}

type CustomerListFilter struct {
	Email      string
	Pagination domain.Pagination
}

// UploadLink attaches an upload to an order item and moves it to Status.
type UploadLink struct {
	UploadID      string
	OrderID       string
	OrderItemID   string
	QuantityIndex int
	Status        domain.UploadStatus
	UpdatedAt     time.Time
}
