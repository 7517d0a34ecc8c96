package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/acrylicworks/api/internal/platform/auth"
	"github.com/acrylicworks/api/internal/platform/httpx"
	"github.com/acrylicworks/api/internal/platform/requestctx"
	"github.com/acrylicworks/api/internal/services"
	"go.uber.org/zap"
)

const (
	maxCheckoutRequestBody = 8 * 1024
	idempotencyKeyHeader   = "Idempotency-Key"
)

// CheckoutHandlers exposes checkout for authenticated users.
type CheckoutHandlers struct {
	authn       *auth.CustomerAuthenticator
	checkout    services.CheckoutService
	customers   services.CustomerService
	idempotency func(http.Handler) http.Handler
}

// CheckoutOption customises checkout handler construction.
type CheckoutOption func(*CheckoutHandlers)

// WithCheckoutCustomers syncs the customer profile from the token before checkout so order
// confirmations have an address to go to.
func WithCheckoutCustomers(customers services.CustomerService) CheckoutOption {
	return func(h *CheckoutHandlers) {
		h.customers = customers
	}
}

// WithCheckoutIdempotency replays responses for repeated Idempotency-Key headers.
func WithCheckoutIdempotency(mw func(http.Handler) http.Handler) CheckoutOption {
	return func(h *CheckoutHandlers) {
		h.idempotency = mw
	}
}

// NewCheckoutHandlers constructs checkout handlers guarded by Firebase authentication.
func NewCheckoutHandlers(authn *auth.CustomerAuthenticator, checkout services.CheckoutService, opts ...CheckoutOption) *CheckoutHandlers {
	h := &CheckoutHandlers{
		authn:    authn,
		checkout: checkout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the checkout endpoint on the /me group. Authentication runs before the
// idempotency middleware so stored responses are scoped per user.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.RequireCustomer())
	}
	if h.idempotency != nil {
		group = group.With(h.idempotency)
	}
	group.Post("/checkout", h.checkoutCart)
}

type addressPayload struct {
	Recipient  string  `json:"recipient"`
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city"`
	State      *string `json:"state,omitempty"`
	PostalCode string  `json:"postalCode"`
	Country    string  `json:"country"`
	Phone      *string `json:"phone,omitempty"`
}

func (a addressPayload) toAddress() services.Address {
	return services.Address{
		Recipient:  a.Recipient,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		Phone:      a.Phone,
	}
}

func buildAddressPayload(addr *services.Address) *addressPayload {
	if addr == nil {
		return nil
	}
	return &addressPayload{
		Recipient:  addr.Recipient,
		Line1:      addr.Line1,
		Line2:      addr.Line2,
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
		Phone:      addr.Phone,
	}
}

type checkoutRequest struct {
	ShippingAddress *addressPayload `json:"shippingAddress"`
	PaymentMethod   string          `json:"paymentMethod"`
	Notes           string          `json:"notes"`
}

type checkoutResponse struct {
	Order        orderPayload `json:"order"`
	ClientSecret string       `json:"clientSecret"`
	LinkedFiles  int          `json:"linkedFiles"`
}

func (h *CheckoutHandlers) checkoutCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireCustomerIdentity(w, r)
	if !ok {
		return
	}
	var req checkoutRequest
	if !decodeJSONBody(w, r, maxCheckoutRequestBody, false, &req) {
		return
	}
	if req.ShippingAddress == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "shippingAddress is required", http.StatusBadRequest))
		return
	}

	if h.customers != nil {
		if _, err := h.customers.EnsureCustomer(ctx, services.EnsureCustomerCommand{
			UserID:      identity.UID,
			Email:       identity.Email,
			DisplayName: identity.Name,
		}); err != nil {
			requestctx.Logger(ctx).Warn("checkout: customer sync failed", zap.String("userId", identity.UID), zap.Error(err))
		}
	}

	result, err := h.checkout.Checkout(ctx, services.CheckoutCommand{
		UserID:          identity.UID,
		Email:           identity.Email,
		ShippingAddress: req.ShippingAddress.toAddress(),
		PaymentMethod:   strings.TrimSpace(req.PaymentMethod),
		Notes:           req.Notes,
		IdempotencyKey:  strings.TrimSpace(r.Header.Get(idempotencyKeyHeader)),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, checkoutResponse{
		Order:        buildCustomerOrderPayload(result.Order),
		ClientSecret: result.ClientSecret,
		LinkedFiles:  result.LinkedFiles,
	})
}
