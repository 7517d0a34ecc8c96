package services

import (
	"context"
	"time"

	domain "github.com/acrylicworks/api/internal/domain"
	"github.com/acrylicworks/api/internal/payments"
	"github.com/acrylicworks/api/internal/platform/auth"
	"github.com/acrylicworks/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderTotals        = domain.OrderTotals
	OrderStatus        = domain.OrderStatus
	Upload             = domain.Upload
	UploadStatus       = domain.UploadStatus
	Product            = domain.Product
	Cart               = domain.Cart
	CartItem           = domain.CartItem
	Address            = domain.Address
	Customer           = domain.Customer
	Admin              = domain.Admin
	AdminRole          = domain.AdminRole
	DashboardSummary   = domain.DashboardSummary
	SystemHealthReport = domain.SystemHealthReport
)

// OrderService exposes the order lifecycle: reads, validated status transitions and the
// operational commands built on top of them.
type OrderService interface {
	GetOrder(ctx context.Context, orderID string, opts OrderReadOptions) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error)
	MarkPaid(ctx context.Context, cmd MarkOrderPaidCommand) (Order, error)
	Ship(ctx context.Context, cmd ShipOrderCommand) (Order, error)
	Deliver(ctx context.Context, cmd DeliverOrderCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	UpdateAdminNotes(ctx context.Context, cmd UpdateAdminNotesCommand) (Order, error)
}

// UploadService owns customer uploads and their review workflow.
type UploadService interface {
	RequestUpload(ctx context.Context, cmd RequestUploadCommand) (UploadTicket, error)
	Link(ctx context.Context, cmd LinkUploadsCommand) (LinkUploadsResult, error)
	StartReview(ctx context.Context, cmd ReviewUploadCommand) (Upload, error)
	Approve(ctx context.Context, cmd ReviewUploadCommand) (UploadReviewResult, error)
	Reject(ctx context.Context, cmd ReviewUploadCommand) (UploadReviewResult, error)
	Resubmit(ctx context.Context, cmd ResubmitUploadCommand) (UploadResubmission, error)
	Delete(ctx context.Context, cmd DeleteUploadCommand) error
	DownloadURL(ctx context.Context, cmd UploadDownloadCommand) (SignedURL, error)
	ListOrderUploads(ctx context.Context, orderID string) ([]Upload, error)
	ListMyUploads(ctx context.Context, userID string) ([]Upload, error)
	ListReviewQueue(ctx context.Context, limit int) ([]Upload, error)
	PurgeStalePending(ctx context.Context, cmd PurgeStaleUploadsCommand) (int, error)
}

// UploadReviewCoordinator keeps order status consistent with the aggregate state of its uploads.
// Every method reads before it writes so it can run inside a Firestore transaction, and callers
// pass the upload in its new in-memory state before persisting it.
type UploadReviewCoordinator interface {
	AfterApprove(ctx context.Context, upload Upload) (CoordinatorOutcome, error)
	AfterReject(ctx context.Context, upload Upload) (CoordinatorOutcome, error)
	AfterResubmit(ctx context.Context, upload Upload) (CoordinatorOutcome, error)
	AfterLink(ctx context.Context, orderID string, linked []Upload) (CoordinatorOutcome, error)
	OnPaid(ctx context.Context, order *Order) (CoordinatorOutcome, error)
}

// PaymentEventHandler applies verified PSP webhook events to orders.
type PaymentEventHandler interface {
	Handle(ctx context.Context, event payments.Event) (PaymentEventResult, error)
}

// CheckoutService converts a cart into an order awaiting payment.
type CheckoutService interface {
	Checkout(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error)
}

// CartService manages the per-user shopping cart.
type CartService interface {
	GetCart(ctx context.Context, userID string) (Cart, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error)
	UpdateItem(ctx context.Context, cmd UpdateCartItemCommand) (Cart, error)
	RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error)
	Clear(ctx context.Context, userID string) error
}

// CatalogService serves public product reads and back office product management.
type CatalogService interface {
	ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error)
	GetProduct(ctx context.Context, productID string, includeInactive bool) (Product, error)
	SearchProducts(ctx context.Context, query ProductSearchQuery) ([]Product, error)
	CreateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error)
	UpdateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error)
	DeleteProduct(ctx context.Context, productID string) error
}

// CustomerService manages storefront user profiles.
type CustomerService interface {
	EnsureCustomer(ctx context.Context, cmd EnsureCustomerCommand) (Customer, error)
	GetCustomer(ctx context.Context, customerID string) (Customer, error)
	ListCustomers(ctx context.Context, filter CustomerListFilter) (domain.CursorPage[Customer], error)
}

// AdminService manages back office accounts and sessions.
type AdminService interface {
	Login(ctx context.Context, cmd AdminLoginCommand) (AdminSession, error)
	ListAdmins(ctx context.Context) ([]Admin, error)
	GetAdmin(ctx context.Context, adminID string) (Admin, error)
	CreateAdmin(ctx context.Context, cmd CreateAdminCommand) (Admin, error)
	UpdateAdmin(ctx context.Context, cmd UpdateAdminCommand) (Admin, error)
	DeleteAdmin(ctx context.Context, cmd DeleteAdminCommand) error
}

// DashboardService aggregates back office metrics.
type DashboardService interface {
	Summary(ctx context.Context) (DashboardSummary, error)
}

// SystemService reports service health for probes.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	OrderNumber    string
	UserID         string
	PreviousStatus string
	CurrentStatus  string
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// OrderNotifier delivers customer facing order messages.
type OrderNotifier interface {
	SendOrderConfirmation(ctx context.Context, msg OrderConfirmation) error
}

// OrderConfirmation is the payload handed to an OrderNotifier once payment succeeds.
type OrderConfirmation struct {
	Order         Order
	CustomerEmail string
	CustomerName  string
}

// ProductSearcher queries an external full-text index for products.
type ProductSearcher interface {
	SearchProductIDs(ctx context.Context, query string, limit int) ([]string, error)
	IndexProduct(ctx context.Context, product Product) error
	RemoveProduct(ctx context.Context, productID string) error
}

// AdminTokenIssuer signs back office session tokens.
type AdminTokenIssuer interface {
	IssueAdminToken(admin Admin) (token string, expiresAt time.Time, err error)
}

// Order commands ------------------------------------------------------------

type OrderListFilter = repositories.OrderListFilter

// OrderReadOptions scopes reads. A non-empty OwnerID hides orders owned by anyone else.
type OrderReadOptions struct {
	OwnerID string
}

type OrderStatusTransitionCommand struct {
	OrderID        string
	TargetStatus   OrderStatus
	ActorID        string
	Reason         string
	ExpectedStatus *OrderStatus
}

type MarkOrderPaidCommand struct {
	OrderID  string
	IntentID string
	ActorID  string
}

type ShipOrderCommand struct {
	OrderID        string
	TrackingNumber string
	Carrier        string
	ActorID        string
}

type DeliverOrderCommand struct {
	OrderID string
	ActorID string
}

// CancelOrderCommand cancels an order. OwnerID restricts the call to the order owner.
type CancelOrderCommand struct {
	OrderID        string
	OwnerID        string
	ActorID        string
	Reason         string
	ExpectedStatus *OrderStatus
}

type UpdateAdminNotesCommand struct {
	OrderID string
	Notes   string
	ActorID string
}

// Upload commands -----------------------------------------------------------

type RequestUploadCommand struct {
	UserID     string
	FileName   string
	MimeType   string
	Size       int64
	UploadType string
}

// SignedURL is a presigned storage URL along with the headers the client must send.
type SignedURL struct {
	URL       string
	Method    string
	Headers   map[string]string
	ExpiresAt time.Time
}

// UploadTicket pairs a pending upload record with the URL the client uploads the file to.
type UploadTicket struct {
	Upload Upload
	Target SignedURL
}

// LinkUploadsCommand attaches pending uploads to an order. QuantityIndex is the zero-based unit of
// a multi-quantity item the files belong to and must be zero when no item is named.
type LinkUploadsCommand struct {
	UserID        string
	UploadIDs     []string
	OrderID       string
	OrderItemID   string
	QuantityIndex int
}

// LinkUploadsResult reports how many uploads moved to submitted and the order side effect.
type LinkUploadsResult struct {
	Linked  int
	Skipped []string
	Outcome CoordinatorOutcome
}

type ReviewUploadCommand struct {
	AdminID  string
	UploadID string
	Notes    string
}

// UploadReviewResult is the reviewed upload plus whatever happened to its order.
type UploadReviewResult struct {
	Upload  Upload
	Outcome CoordinatorOutcome
}

type ResubmitUploadCommand struct {
	UserID   string
	UploadID string
	FileName string
	MimeType string
	Size     int64
}

// UploadResubmission carries the URL for the replacement file and the order side effect.
type UploadResubmission struct {
	Ticket  UploadTicket
	Outcome CoordinatorOutcome
}

type DeleteUploadCommand struct {
	UserID   string
	UploadID string
}

type UploadDownloadCommand struct {
	UploadID string
	Identity *auth.Identity
}

type PurgeStaleUploadsCommand struct {
	OlderThan time.Duration
	Limit     int
}

// CoordinatorOutcome describes whether an upload review event moved its order.
type CoordinatorOutcome struct {
	OrderID        string
	OrderNumber    string
	PreviousStatus OrderStatus
	NewStatus      OrderStatus
	Advanced       bool
}

// Payment results -----------------------------------------------------------

// PaymentOutcome enumerates how a webhook event was applied.
type PaymentOutcome string

const (
	PaymentOutcomeApplied          PaymentOutcome = "applied"
	PaymentOutcomeAlreadyProcessed PaymentOutcome = "already_processed"
	PaymentOutcomeLogged           PaymentOutcome = "logged"
	PaymentOutcomeIgnored          PaymentOutcome = "ignored"
)

// PaymentEventResult is returned to the webhook endpoint after an event is handled.
type PaymentEventResult struct {
	Outcome  PaymentOutcome
	OrderID  string
	Status   OrderStatus
	Routing  CoordinatorOutcome
	Notified bool
}

// Checkout, cart and catalog commands ---------------------------------------

type CheckoutCommand struct {
	UserID          string
	Email           string
	ShippingAddress Address
	PaymentMethod   string
	Notes           string
	IdempotencyKey  string
}

// CheckoutResult is the created order plus what the client needs to confirm payment.
type CheckoutResult struct {
	Order        Order
	ClientSecret string
	LinkedFiles  int
}

type AddCartItemCommand struct {
	UserID    string
	ProductID string
	Quantity  int
	UploadIDs []string
	Options   map[string]any
}

type UpdateCartItemCommand struct {
	UserID    string
	ItemID    string
	Quantity  int
	UploadIDs []string
}

type RemoveCartItemCommand struct {
	UserID string
	ItemID string
}

type ProductListFilter = repositories.ProductListFilter

type ProductSearchQuery struct {
	Query string
	Limit int
}

type UpsertProductCommand struct {
	Product Product
	ActorID string
}

// Customer and admin commands -----------------------------------------------

type CustomerListFilter = repositories.CustomerListFilter

type EnsureCustomerCommand struct {
	UserID      string
	Email       string
	DisplayName string
}

type AdminLoginCommand struct {
	Email    string
	Password string
}

// AdminSession is a signed back office token.
type AdminSession struct {
	Token     string
	ExpiresAt time.Time
	Admin     Admin
}

type CreateAdminCommand struct {
	Email    string
	Name     string
	Role     AdminRole
	Password string
	ActorID  string
}

type UpdateAdminCommand struct {
	AdminID  string
	Name     *string
	Role     *AdminRole
	Password *string
	Active   *bool
	ActorID  string
}

type DeleteAdminCommand struct {
	AdminID string
	ActorID string
}
