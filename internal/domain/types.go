package domain

import (
	"strings"
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// CursorPage wraps paginated results with the token for the next page.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// Address is a postal address snapshot.
type Address struct {
	Recipient  string
	Line1      string
	Line2      *string
	City       string
	State      *string
	PostalCode string
	Country    string
	Phone      *string
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order was created at checkout.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusAwaitingPayment indicates a payment intent exists and the PSP has not confirmed it yet.
	OrderStatusAwaitingPayment OrderStatus = "awaiting_payment"
	// OrderStatusPaid indicates payment succeeded.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusRevisionRequired indicates the order waits for customer data or a corrected upload.
	OrderStatusRevisionRequired OrderStatus = "revision_required"
	// OrderStatusReviewing indicates staff are reviewing the uploads attached to the order.
	OrderStatusReviewing OrderStatus = "reviewing"
	// OrderStatusConfirmed indicates every requirement is satisfied and production may start.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusProcessing indicates the order is in production.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates the order was handed to a carrier.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the order reached the customer.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was cancelled.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// legacyOrderStatuses maps values written by the earlier data-review workflow.
var legacyOrderStatuses = map[string]OrderStatus{
	"awaiting_data":  OrderStatusRevisionRequired,
	"data_reviewing": OrderStatusReviewing,
}

// AllOrderStatuses lists every status in lifecycle order.
func AllOrderStatuses() []OrderStatus {
	return []OrderStatus{
		OrderStatusPending,
		OrderStatusAwaitingPayment,
		OrderStatusPaid,
		OrderStatusRevisionRequired,
		OrderStatusReviewing,
		OrderStatusConfirmed,
		OrderStatusProcessing,
		OrderStatusShipped,
		OrderStatusDelivered,
		OrderStatusCancelled,
	}
}

// ParseOrderStatus normalises a stored or user supplied status value.
func ParseOrderStatus(value string) (OrderStatus, bool) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if legacy, ok := legacyOrderStatuses[normalized]; ok {
		return legacy, true
	}
	for _, status := range AllOrderStatuses() {
		if string(status) == normalized {
			return status, true
		}
	}
	return "", false
}

// IsTerminal reports whether no further transitions are possible.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// Order captures order headers and line items.
type Order struct {
	ID              string
	OrderNumber     string
	UserID          string
	Status          OrderStatus
	Currency        string
	Totals          OrderTotals
	Items           []OrderItem
	ShippingAddress *Address
	PaymentMethod   string
	PaymentIntentID string
	TrackingNumber  *string
	Carrier         *string
	Notes           *string
	AdminNotes      *string
	CancelReason    *string
	Metadata        map[string]any
	CreatedAt       time.Time
	UpdatedAt       time.Time
	PaidAt          *time.Time
	ConfirmedAt     *time.Time
	ShippedAt       *time.Time
	DeliveredAt     *time.Time
	CancelledAt     *time.Time
}

// RequiresUploads reports whether any line item needs customer artwork.
func (o Order) RequiresUploads() bool {
	for _, item := range o.Items {
		if item.RequiresUpload {
			return true
		}
	}
	return false
}

// OrderTotals holds rolled-up monetary fields in the smallest currency unit.
type OrderTotals struct {
	Subtotal    int64
	Tax         int64
	ShippingFee int64
	Total       int64
}

// Valid reports whether Total equals Subtotal + Tax + ShippingFee.
func (t OrderTotals) Valid() bool {
	return t.Total == t.Subtotal+t.Tax+t.ShippingFee
}

// OrderItem is an immutable snapshot of a purchased product.
type OrderItem struct {
	ID             string
	ProductID      string
	ProductName    string
	UnitPrice      int64
	Quantity       int
	Subtotal       int64
	RequiresUpload bool
	Options        map[string]any
}

// UploadStatus enumerates review states for customer uploads.
type UploadStatus string

const (
	// UploadStatusPending indicates the file is stored but not linked to an order.
	UploadStatusPending UploadStatus = "pending"
	// UploadStatusSubmitted indicates the upload was linked to an order item.
	UploadStatusSubmitted UploadStatus = "submitted"
	// UploadStatusReviewing indicates staff started reviewing the upload.
	UploadStatusReviewing UploadStatus = "reviewing"
	// UploadStatusApproved indicates the upload passed review.
	UploadStatusApproved UploadStatus = "approved"
	// UploadStatusRejected indicates the upload failed review and needs resubmission.
	UploadStatusRejected UploadStatus = "rejected"
)

// Upload is a customer supplied file attached to an order item.
type Upload struct {
	ID            string
	UserID        string
	OrderID       *string
	OrderItemID   *string
	QuantityIndex int
	FileName      string
	StorageKey    string
	URL           string
	MimeType      string
	Size          int64
	UploadType    string
	Status        UploadStatus
	AdminNotes    *string
	ReviewerID    *string
	ReviewedAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// LinkedTo reports whether the upload belongs to the given order.
func (u Upload) LinkedTo(orderID string) bool {
	return u.OrderID != nil && *u.OrderID == orderID
}

// Product is a catalog entry.
type Product struct {
	ID             string
	SKU            string
	Name           string
	Description    string
	Category       string
	Price          int64
	Currency       string
	RequiresUpload bool
	Active         bool
	Stock          *int
	ImageURLs      []string
	Attributes     map[string]any
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Cart aggregates the mutable shopping cart state for a user.
type Cart struct {
	UserID    string
	Currency  string
	Items     []CartItem
	UpdatedAt time.Time
}

// CartItem represents a single product line in the cart.
type CartItem struct {
	ID        string
	ProductID string
	Quantity  int
	UploadIDs []string
	Options   map[string]any
	AddedAt   time.Time
	UpdatedAt time.Time
}

// Customer is a storefront user profile keyed by the identity provider uid.
type Customer struct {
	ID          string
	Email       string
	DisplayName string
	Phone       *string
	Addresses   []Address
	Disabled    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AdminRole enumerates back office permission levels.
type AdminRole string

const (
	// AdminRoleStaff can review uploads and manage orders.
	AdminRoleStaff AdminRole = "staff"
	// AdminRoleSuper can additionally manage admins and products.
	AdminRoleSuper AdminRole = "super"
)

// Admin is a back office account.
type Admin struct {
	ID           string
	Email        string
	Name         string
	Role         AdminRole
	PasswordHash string
	Active       bool
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DashboardSummary aggregates back office metrics.
type DashboardSummary struct {
	OrdersByStatus        map[OrderStatus]int
	PaidRevenue           int64
	Currency              string
	UploadsAwaitingReview int
	CustomerCount         int
	GeneratedAt           time.Time
}

const (
	// HealthStatusOK reports a healthy dependency.
	HealthStatusOK = "ok"
	// HealthStatusDegraded reports a dependency answering with errors.
	HealthStatusDegraded = "degraded"
	// HealthStatusError reports an unreachable dependency.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for readiness endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
