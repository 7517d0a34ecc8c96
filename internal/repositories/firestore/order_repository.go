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

const ordersCollection = "orders"

type orderDocument struct {
	OrderNumber     string              `firestore:"orderNumber"`
	UserID          string              `firestore:"userId"`
	Status          string              `firestore:"status"`
	Currency        string              `firestore:"currency"`
	Totals          orderTotalsDocument `firestore:"totals"`
	Items           []orderItemDocument `firestore:"items"`
	ShippingAddress *addressDocument    `firestore:"shippingAddress,omitempty"`
	PaymentMethod   string              `firestore:"paymentMethod,omitempty"`
	PaymentIntentID string              `firestore:"paymentIntentId,omitempty"`
	TrackingNumber  *string             `firestore:"trackingNumber,omitempty"`
	Carrier         *string             `firestore:"carrier,omitempty"`
	Notes           *string             `firestore:"notes,omitempty"`
	AdminNotes      *string             `firestore:"adminNotes,omitempty"`
	CancelReason    *string             `firestore:"cancelReason,omitempty"`
	Metadata        map[string]any      `firestore:"metadata,omitempty"`
	CreatedAt       time.Time           `firestore:"createdAt"`
	UpdatedAt       time.Time           `firestore:"updatedAt"`
	PaidAt          *time.Time          `firestore:"paidAt,omitempty"`
	ConfirmedAt     *time.Time          `firestore:"confirmedAt,omitempty"`
	ShippedAt       *time.Time          `firestore:"shippedAt,omitempty"`
	DeliveredAt     *time.Time          `firestore:"deliveredAt,omitempty"`
	CancelledAt     *time.Time          `firestore:"cancelledAt,omitempty"`
}

type orderTotalsDocument struct {
	Subtotal    int64 `firestore:"subtotal"`
	Tax         int64 `firestore:"tax"`
	ShippingFee int64 `firestore:"shippingFee"`
	Total       int64 `firestore:"total"`
}

type orderItemDocument struct {
	ID             string         `firestore:"id"`
	ProductID      string         `firestore:"productId"`
	ProductName    string         `firestore:"productName"`
	UnitPrice      int64          `firestore:"unitPrice"`
	Quantity       int            `firestore:"quantity"`
	Subtotal       int64          `firestore:"subtotal"`
	RequiresUpload bool           `firestore:"requiresUpload"`
	Options        map[string]any `firestore:"options,omitempty"`
}

// OrderRepository persists orders with embedded line items.
type OrderRepository struct {
	base *pfirestore.BaseRepository[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		base: pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection),
	}, nil
}

// Insert creates the order document and fails if the id is already taken.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}
	return r.base.Create(ctx, id, orderToDocument(order))
}

// Update overwrites the order document.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}
	return r.base.Set(ctx, id, orderToDocument(order))
}

// FindByID loads the order. Inside a transaction the read is registered for conflict detection.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByPaymentIntent resolves the order holding the given PSP payment intent.
func (r *OrderRepository) FindByPaymentIntent(ctx context.Context, intentID string) (domain.Order, error) {
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return domain.Order{}, errors.New("order repository: payment intent id is required")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("paymentIntentId", "==", intentID).Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, pfirestore.NewNotFound("orders.findByPaymentIntent", "order for payment intent "+intentID)
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

// List returns orders newest first, filtered by owner and status.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	pageSize := pagination.Normalize(filter.Pagination.PageSize)

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if userID := strings.TrimSpace(filter.UserID); userID != "" {
			q = q.Where("userId", "==", userID)
		}
		if len(filter.Status) == 1 {
			q = q.Where("status", "==", string(filter.Status[0]))
		} else if len(filter.Status) > 1 {
			values := make([]string, 0, len(filter.Status))
			for _, status := range filter.Status {
				values = append(values, string(status))
			}
			q = q.Where("status", "in", values)
		}
		if filter.CreatedAfter != nil {
			q = q.Where("createdAt", ">=", filter.CreatedAfter.UTC())
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if !cursor.IsZero() {
			q = q.StartAfter(cursor.After, cursor.ID)
		}
		return q.Limit(pageSize)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	items := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.Data.toDomain(doc.ID))
	}
	return domain.CursorPage[domain.Order]{
		Items: items,
		NextPageToken: pagination.NextToken(items, pageSize, func(o domain.Order) (time.Time, string) {
			return o.CreatedAt, o.ID
		}),
	}, nil
}

// CountByStatus aggregates order counts per status using server-side count queries.
func (r *OrderRepository) CountByStatus(ctx context.Context) (map[domain.OrderStatus]int, error) {
	coll, err := r.base.CollectionRef(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[domain.OrderStatus]int)
	for _, status := range domain.AllOrderStatuses() {
		query := coll.Where("status", "==", string(status))
		result, err := query.NewAggregationQuery().WithCount("count").Get(ctx)
		if err != nil {
			return nil, pfirestore.WrapError("orders.countByStatus", err)
		}
		n, err := aggregateCount(result, "count")
		if err != nil {
			return nil, err
		}
		if n > 0 {
			counts[status] = n
		}
	}
	return counts, nil
}

func orderToDocument(order domain.Order) orderDocument {
	doc := orderDocument{
		OrderNumber:     strings.TrimSpace(order.OrderNumber),
		UserID:          strings.TrimSpace(order.UserID),
		Status:          string(order.Status),
		Currency:        strings.ToUpper(strings.TrimSpace(order.Currency)),
		Totals:          orderTotalsDocument(order.Totals),
		PaymentMethod:   strings.TrimSpace(order.PaymentMethod),
		PaymentIntentID: strings.TrimSpace(order.PaymentIntentID),
		TrackingNumber:  trimPtr(order.TrackingNumber),
		Carrier:         trimPtr(order.Carrier),
		Notes:           trimPtr(order.Notes),
		AdminNotes:      trimPtr(order.AdminNotes),
		CancelReason:    trimPtr(order.CancelReason),
		Metadata:        cloneAnyMap(order.Metadata),
		CreatedAt:       order.CreatedAt.UTC(),
		UpdatedAt:       order.UpdatedAt.UTC(),
		PaidAt:          utcPtr(order.PaidAt),
		ConfirmedAt:     utcPtr(order.ConfirmedAt),
		ShippedAt:       utcPtr(order.ShippedAt),
		DeliveredAt:     utcPtr(order.DeliveredAt),
		CancelledAt:     utcPtr(order.CancelledAt),
	}
	if order.ShippingAddress != nil {
		addr := addressToDocument(*order.ShippingAddress)
		doc.ShippingAddress = &addr
	}
	doc.Items = make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		doc.Items = append(doc.Items, orderItemDocument{
			ID:             item.ID,
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			UnitPrice:      item.UnitPrice,
			Quantity:       item.Quantity,
			Subtotal:       item.Subtotal,
			RequiresUpload: item.RequiresUpload,
			Options:        cloneAnyMap(item.Options),
		})
	}
	return doc
}

func (d orderDocument) toDomain(id string) domain.Order {
	status, ok := domain.ParseOrderStatus(d.Status)
	if !ok {
		status = domain.OrderStatus(d.Status)
	}
	order := domain.Order{
		ID:              id,
		OrderNumber:     d.OrderNumber,
		UserID:          d.UserID,
		Status:          status,
		Currency:        d.Currency,
		Totals:          domain.OrderTotals(d.Totals),
		PaymentMethod:   d.PaymentMethod,
		PaymentIntentID: d.PaymentIntentID,
		TrackingNumber:  d.TrackingNumber,
		Carrier:         d.Carrier,
		Notes:           d.Notes,
		AdminNotes:      d.AdminNotes,
		CancelReason:    d.CancelReason,
		Metadata:        cloneAnyMap(d.Metadata),
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
		PaidAt:          d.PaidAt,
		ConfirmedAt:     d.ConfirmedAt,
		ShippedAt:       d.ShippedAt,
		DeliveredAt:     d.DeliveredAt,
		CancelledAt:     d.CancelledAt,
	}
	if d.ShippingAddress != nil {
		addr := d.ShippingAddress.toDomain()
		order.ShippingAddress = &addr
	}
	for _, item := range d.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ID:             item.ID,
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			UnitPrice:      item.UnitPrice,
			Quantity:       item.Quantity,
			Subtotal:       item.Subtotal,
			RequiresUpload: item.RequiresUpload,
			Options:        cloneAnyMap(item.Options),
		})
	}
	return order
}
