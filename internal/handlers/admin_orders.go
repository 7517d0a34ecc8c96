package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/acrylicworks/api/internal/domain"
	"github.com/acrylicworks/api/internal/platform/auth"
	"github.com/acrylicworks/api/internal/platform/httpx"
	"github.com/acrylicworks/api/internal/services"
)

const maxAdminOrderBody = 8 * 1024

// AdminOrderHandlers exposes back office order operations.
type AdminOrderHandlers struct {
	sessions *auth.AdminSessions
	orders   services.OrderService
	uploads  services.UploadService
}

// NewAdminOrderHandlers constructs staff order handlers. uploads may be nil, in which case the
// per-order upload listing reports unavailable.
func NewAdminOrderHandlers(sessions *auth.AdminSessions, orders services.OrderService, uploads services.UploadService) *AdminOrderHandlers {
	return &AdminOrderHandlers{sessions: sessions, orders: orders, uploads: uploads}
}

// Routes registers /orders on the /admin group.
func (h *AdminOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.sessions != nil {
		group = r.With(h.sessions.RequireAdmin(auth.RoleStaff))
	}
	group.Get("/orders", h.listOrders)
	group.Get("/orders/{orderID}", h.getOrder)
	group.Get("/orders/{orderID}/uploads", h.listOrderUploads)
	group.Post("/orders/{orderID}:transition", h.transitionOrder)
	group.Post("/orders/{orderID}:ship", h.shipOrder)
	group.Post("/orders/{orderID}:deliver", h.deliverOrder)
	group.Post("/orders/{orderID}:cancel", h.cancelOrder)
	group.Patch("/orders/{orderID}/notes", h.updateNotes)
}

type transitionOrderRequest struct {
	Status         string `json:"status"`
	Reason         string `json:"reason"`
	ExpectedStatus string `json:"expectedStatus"`
}

type shipOrderRequest struct {
	TrackingNumber string `json:"trackingNumber"`
	Carrier        string `json:"carrier"`
}

type updateNotesRequest struct {
	Notes string `json:"notes"`
}

func (h *AdminOrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	filter, err := parseOrderListFilter(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	query := r.URL.Query()
	filter.UserID = strings.TrimSpace(query.Get("user_id"))
	if raw := strings.TrimSpace(query.Get("created_after")); raw != "" {
		after, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_after must be RFC3339", http.StatusBadRequest))
			return
		}
		after = after.UTC()
		filter.CreatedAfter = &after
	}

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderListResponse(page, buildOrderPayload))
}

func (h *AdminOrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	order, err := h.orders.GetOrder(ctx, chi.URLParam(r, "orderID"), services.OrderReadOptions{})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *AdminOrderHandlers) listOrderUploads(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.uploads == nil {
		httpx.WriteError(ctx, w, httpx.NewError("upload_service_unavailable", "upload service is unavailable", http.StatusServiceUnavailable))
		return
	}
	uploads, err := h.uploads.ListOrderUploads(ctx, chi.URLParam(r, "orderID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildUploadList(uploads))
}

func (h *AdminOrderHandlers) transitionOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	actor, ok := requireStaffIdentity(w, r)
	if !ok {
		return
	}
	var req transitionOrderRequest
	if !decodeJSONBody(w, r, maxAdminOrderBody, false, &req) {
		return
	}
	target, valid := domain.ParseOrderStatus(req.Status)
	if !valid {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status is not a known order status", http.StatusBadRequest))
		return
	}
	expected, ok := parseExpectedStatus(w, r, req.ExpectedStatus)
	if !ok {
		return
	}

	order, err := h.orders.TransitionStatus(ctx, services.OrderStatusTransitionCommand{
		OrderID:        chi.URLParam(r, "orderID"),
		TargetStatus:   target,
		ActorID:        actor.UID,
		Reason:         req.Reason,
		ExpectedStatus: expected,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *AdminOrderHandlers) shipOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	actor, ok := requireStaffIdentity(w, r)
	if !ok {
		return
	}
	var req shipOrderRequest
	if !decodeJSONBody(w, r, maxAdminOrderBody, false, &req) {
		return
	}

	order, err := h.orders.Ship(ctx, services.ShipOrderCommand{
		OrderID:        chi.URLParam(r, "orderID"),
		TrackingNumber: req.TrackingNumber,
		Carrier:        req.Carrier,
		ActorID:        actor.UID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *AdminOrderHandlers) deliverOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	actor, ok := requireStaffIdentity(w, r)
	if !ok {
		return
	}
	order, err := h.orders.Deliver(ctx, services.DeliverOrderCommand{
		OrderID: chi.URLParam(r, "orderID"),
		ActorID: actor.UID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *AdminOrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	actor, ok := requireStaffIdentity(w, r)
	if !ok {
		return
	}
	var req cancelOrderRequest
	if !decodeJSONBody(w, r, maxAdminOrderBody, true, &req) {
		return
	}
	expected, ok := parseExpectedStatus(w, r, req.ExpectedStatus)
	if !ok {
		return
	}

	order, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		OrderID:        chi.URLParam(r, "orderID"),
		ActorID:        actor.UID,
		Reason:         req.Reason,
		ExpectedStatus: expected,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *AdminOrderHandlers) updateNotes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	actor, ok := requireStaffIdentity(w, r)
	if !ok {
		return
	}
	var req updateNotesRequest
	if !decodeJSONBody(w, r, maxAdminOrderBody, false, &req) {
		return
	}

	order, err := h.orders.UpdateAdminNotes(ctx, services.UpdateAdminNotesCommand{
		OrderID: chi.URLParam(r, "orderID"),
		Notes:   req.Notes,
		ActorID: actor.UID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}
