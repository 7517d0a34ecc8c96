package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/acrylicworks/api/internal/domain"
	"github.com/acrylicworks/api/internal/platform/auth"
	"github.com/acrylicworks/api/internal/platform/httpx"
	"github.com/acrylicworks/api/internal/services"
)

const (
	defaultOrderPageSize   = 20
	maxOrderPageSize       = 100
	maxOrderCancelBodySize = 4 * 1024
)

type cancelOrderRequest struct {
	Reason         string `json:"reason"`
	ExpectedStatus string `json:"expectedStatus"`
}

// OrderHandlers exposes the signed-in customer's orders.
type OrderHandlers struct {
	authn  *auth.CustomerAuthenticator
	orders services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.CustomerAuthenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes registers the order endpoints on the /me group.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = r.With(h.authn.RequireCustomer())
	}
	group.Get("/orders", h.listOrders)
	group.Get("/orders/{orderID}", h.getOrder)
	group.Post("/orders/{orderID}:cancel", h.cancelOrder)
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireCustomerIdentity(w, r)
	if !ok {
		return
	}
	filter, err := parseOrderListFilter(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	filter.UserID = identity.UID

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderListResponse(page, buildCustomerOrderPayload))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireCustomerIdentity(w, r)
	if !ok {
		return
	}
	order, err := h.orders.GetOrder(ctx, chi.URLParam(r, "orderID"), services.OrderReadOptions{OwnerID: identity.UID})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCustomerOrderPayload(order))
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireCustomerIdentity(w, r)
	if !ok {
		return
	}
	var req cancelOrderRequest
	if !decodeJSONBody(w, r, maxOrderCancelBodySize, true, &req) {
		return
	}
	expected, ok := parseExpectedStatus(w, r, req.ExpectedStatus)
	if !ok {
		return
	}

	order, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		OrderID:        chi.URLParam(r, "orderID"),
		OwnerID:        identity.UID,
		ActorID:        identity.UID,
		Reason:         req.Reason,
		ExpectedStatus: expected,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCustomerOrderPayload(order))
}

// parseOrderListFilter reads status, page_size and page_token. Unknown statuses are rejected
// rather than silently matching nothing.
func parseOrderListFilter(r *http.Request) (services.OrderListFilter, error) {
	query := r.URL.Query()
	pageSize, err := parsePageSize(query.Get("page_size"), defaultOrderPageSize, maxOrderPageSize)
	if err != nil {
		return services.OrderListFilter{}, err
	}
	filter := services.OrderListFilter{
		Pagination: services.Pagination{PageSize: pageSize, PageToken: strings.TrimSpace(query.Get("page_token"))},
	}
	for _, raw := range parseFilterValues(query["status"]) {
		status, ok := domain.ParseOrderStatus(raw)
		if !ok {
			return services.OrderListFilter{}, fmt.Errorf("unknown order status %q", raw)
		}
		filter.Status = append(filter.Status, status)
	}
	return filter, nil
}

func parseExpectedStatus(w http.ResponseWriter, r *http.Request, raw string) (*services.OrderStatus, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, true
	}
	status, ok := domain.ParseOrderStatus(raw)
	if !ok {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "expectedStatus is not a known order status", http.StatusBadRequest))
		return nil, false
	}
	return &status, true
}

type orderTotalsPayload struct {
	Subtotal    int64 `json:"subtotal"`
	Tax         int64 `json:"tax"`
	ShippingFee int64 `json:"shippingFee"`
	Total       int64 `json:"total"`
}

type orderItemPayload struct {
	ID             string         `json:"id"`
	ProductID      string         `json:"productId"`
	ProductName    string         `json:"productName"`
	UnitPrice      int64          `json:"unitPrice"`
	Quantity       int            `json:"quantity"`
	Subtotal       int64          `json:"subtotal"`
	RequiresUpload bool           `json:"requiresUpload"`
	Options        map[string]any `json:"options,omitempty"`
}

type orderPayload struct {
	ID              string             `json:"id"`
	OrderNumber     string             `json:"orderNumber"`
	UserID          string             `json:"userId"`
	Status          string             `json:"status"`
	Currency        string             `json:"currency"`
	Totals          orderTotalsPayload `json:"totals"`
	Items           []orderItemPayload `json:"items"`
	ShippingAddress *addressPayload    `json:"shippingAddress,omitempty"`
	PaymentMethod   string             `json:"paymentMethod,omitempty"`
	TrackingNumber  string             `json:"trackingNumber,omitempty"`
	Carrier         string             `json:"carrier,omitempty"`
	Notes           string             `json:"notes,omitempty"`
	AdminNotes      string             `json:"adminNotes,omitempty"`
	CancelReason    string             `json:"cancelReason,omitempty"`
	CreatedAt       string             `json:"createdAt,omitempty"`
	UpdatedAt       string             `json:"updatedAt,omitempty"`
	PaidAt          string             `json:"paidAt,omitempty"`
	ConfirmedAt     string             `json:"confirmedAt,omitempty"`
	ShippedAt       string             `json:"shippedAt,omitempty"`
	DeliveredAt     string             `json:"deliveredAt,omitempty"`
	CancelledAt     string             `json:"cancelledAt,omitempty"`
}

type orderListResponse struct {
	Items         []orderPayload `json:"items"`
	NextPageToken string         `json:"nextPageToken,omitempty"`
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Status:      string(order.Status),
		Currency:    order.Currency,
		Totals: orderTotalsPayload{
			Subtotal:    order.Totals.Subtotal,
			Tax:         order.Totals.Tax,
			ShippingFee: order.Totals.ShippingFee,
			Total:       order.Totals.Total,
		},
		Items:           make([]orderItemPayload, 0, len(order.Items)),
		ShippingAddress: buildAddressPayload(order.ShippingAddress),
		PaymentMethod:   order.PaymentMethod,
		TrackingNumber:  derefString(order.TrackingNumber),
		Carrier:         derefString(order.Carrier),
		Notes:           derefString(order.Notes),
		AdminNotes:      derefString(order.AdminNotes),
		CancelReason:    derefString(order.CancelReason),
		CreatedAt:       formatTime(order.CreatedAt),
		UpdatedAt:       formatTime(order.UpdatedAt),
		PaidAt:          formatTimePtr(order.PaidAt),
		ConfirmedAt:     formatTimePtr(order.ConfirmedAt),
		ShippedAt:       formatTimePtr(order.ShippedAt),
		DeliveredAt:     formatTimePtr(order.DeliveredAt),
		CancelledAt:     formatTimePtr(order.CancelledAt),
	}
	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			ID:             item.ID,
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			UnitPrice:      item.UnitPrice,
			Quantity:       item.Quantity,
			Subtotal:       item.Subtotal,
			RequiresUpload: item.RequiresUpload,
			Options:        item.Options,
		})
	}
	return payload
}

// buildCustomerOrderPayload hides staff-only fields from the storefront.
func buildCustomerOrderPayload(order services.Order) orderPayload {
	payload := buildOrderPayload(order)
	payload.AdminNotes = ""
	return payload
}

func buildOrderListResponse(page domain.CursorPage[services.Order], build func(services.Order) orderPayload) orderListResponse {
	items := make([]orderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, build(order))
	}
	return orderListResponse{Items: items, NextPageToken: page.NextPageToken}
}
