package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/acrylicworks/api/internal/platform/auth"
	"github.com/acrylicworks/api/internal/platform/httpx"
	"github.com/acrylicworks/api/internal/services"
)

const (
	defaultCustomerPageSize = 50
	maxCustomerPageSize     = 200
)

// AdminCustomerHandlers exposes read-only customer lookups for staff.
type AdminCustomerHandlers struct {
	sessions  *auth.AdminSessions
	customers services.CustomerService
}

// NewAdminCustomerHandlers constructs customer lookup handlers.
func NewAdminCustomerHandlers(sessions *auth.AdminSessions, customers services.CustomerService) *AdminCustomerHandlers {
	return &AdminCustomerHandlers{sessions: sessions, customers: customers}
}

// Routes registers /customers on the /admin group.
func (h *AdminCustomerHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.sessions != nil {
		group = r.With(h.sessions.RequireAdmin(auth.RoleStaff))
	}
	group.Get("/customers", h.listCustomers)
	group.Get("/customers/{customerID}", h.getCustomer)
}

type customerPayload struct {
	ID          string           `json:"id"`
	Email       string           `json:"email"`
	DisplayName string           `json:"displayName,omitempty"`
	Phone       string           `json:"phone,omitempty"`
	Addresses   []addressPayload `json:"addresses,omitempty"`
	Disabled    bool             `json:"disabled"`
	CreatedAt   string           `json:"createdAt,omitempty"`
	UpdatedAt   string           `json:"updatedAt,omitempty"`
}

type customerListResponse struct {
	Items         []customerPayload `json:"items"`
	NextPageToken string            `json:"nextPageToken,omitempty"`
}

func buildCustomerPayload(customer services.Customer) customerPayload {
	payload := customerPayload{
		ID:          customer.ID,
		Email:       customer.Email,
		DisplayName: customer.DisplayName,
		Phone:       derefString(customer.Phone),
		Disabled:    customer.Disabled,
		CreatedAt:   formatTime(customer.CreatedAt),
		UpdatedAt:   formatTime(customer.UpdatedAt),
	}
	for i := range customer.Addresses {
		payload.Addresses = append(payload.Addresses, *buildAddressPayload(&customer.Addresses[i]))
	}
	return payload
}

func (h *AdminCustomerHandlers) listCustomers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.customers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("customer_service_unavailable", "customer service unavailable", http.StatusServiceUnavailable))
		return
	}
	query := r.URL.Query()
	pageSize, err := parsePageSize(query.Get("page_size"), defaultCustomerPageSize, maxCustomerPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	page, err := h.customers.ListCustomers(ctx, services.CustomerListFilter{
		Email:      strings.ToLower(strings.TrimSpace(query.Get("email"))),
		Pagination: services.Pagination{PageSize: pageSize, PageToken: strings.TrimSpace(query.Get("page_token"))},
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	items := make([]customerPayload, 0, len(page.Items))
	for _, customer := range page.Items {
		items = append(items, buildCustomerPayload(customer))
	}
	writeJSONResponse(w, http.StatusOK, customerListResponse{Items: items, NextPageToken: page.NextPageToken})
}

func (h *AdminCustomerHandlers) getCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.customers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("customer_service_unavailable", "customer service unavailable", http.StatusServiceUnavailable))
		return
	}
	customer, err := h.customers.GetCustomer(ctx, chi.URLParam(r, "customerID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCustomerPayload(customer))
}
