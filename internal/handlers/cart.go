package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/acrylicworks/api/internal/platform/auth"
	"github.com/acrylicworks/api/internal/platform/httpx"
	"github.com/acrylicworks/api/internal/services"
)

// CartHandlers exposes authenticated cart endpoints for the current user.
type CartHandlers struct {
	authn *auth.CustomerAuthenticator
	carts services.CartService
}

const maxCartBodySize = 16 * 1024

// NewCartHandlers constructs handlers enforcing Firebase authentication before invoking the cart service.
func NewCartHandlers(authn *auth.CustomerAuthenticator, carts services.CartService) *CartHandlers {
	return &CartHandlers{
		authn: authn,
		carts: carts,
	}
}

// Routes wires the cart endpoints onto the /me group.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = r.With(h.authn.RequireCustomer())
	}
	group.Get("/cart", h.getCart)
	group.Delete("/cart", h.clearCart)
	group.Post("/cart/items", h.addItem)
	group.Patch("/cart/items/{itemID}", h.updateItem)
	group.Delete("/cart/items/{itemID}", h.removeItem)
}

type cartItemPayload struct {
	ID        string         `json:"id"`
	ProductID string         `json:"productId"`
	Quantity  int            `json:"quantity"`
	UploadIDs []string       `json:"uploadIds,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
	AddedAt   string         `json:"addedAt,omitempty"`
	UpdatedAt string         `json:"updatedAt,omitempty"`
}

type cartPayload struct {
	UserID    string            `json:"userId"`
	Currency  string            `json:"currency"`
	Items     []cartItemPayload `json:"items"`
	ItemCount int               `json:"itemCount"`
	UpdatedAt string            `json:"updatedAt,omitempty"`
}

type addCartItemRequest struct {
	ProductID string         `json:"productId"`
	Quantity  int            `json:"quantity"`
	UploadIDs []string       `json:"uploadIds"`
	Options   map[string]any `json:"options"`
}

type updateCartItemRequest struct {
	Quantity  *int     `json:"quantity"`
	UploadIDs []string `json:"uploadIds"`
}

func buildCartPayload(cart services.Cart) cartPayload {
	payload := cartPayload{
		UserID:    cart.UserID,
		Currency:  cart.Currency,
		Items:     make([]cartItemPayload, 0, len(cart.Items)),
		UpdatedAt: formatTime(cart.UpdatedAt),
	}
	for _, item := range cart.Items {
		payload.ItemCount += item.Quantity
		payload.Items = append(payload.Items, cartItemPayload{
			ID:        item.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UploadIDs: item.UploadIDs,
			Options:   item.Options,
			AddedAt:   formatTime(item.AddedAt),
			UpdatedAt: formatTime(item.UpdatedAt),
		})
	}
	return payload
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireCustomerIdentity(w, r)
	if !ok {
		return
	}
	cart, err := h.carts.GetCart(ctx, identity.UID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartPayload(cart))
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireCustomerIdentity(w, r)
	if !ok {
		return
	}
	if err := h.carts.Clear(ctx, identity.UID); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireCustomerIdentity(w, r)
	if !ok {
		return
	}
	var req addCartItemRequest
	if !decodeJSONBody(w, r, maxCartBodySize, false, &req) {
		return
	}
	if strings.TrimSpace(req.ProductID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "productId is required", http.StatusBadRequest))
		return
	}

	cart, err := h.carts.AddItem(ctx, services.AddCartItemCommand{
		UserID:    identity.UID,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		UploadIDs: req.UploadIDs,
		Options:   req.Options,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildCartPayload(cart))
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireCustomerIdentity(w, r)
	if !ok {
		return
	}
	var req updateCartItemRequest
	if !decodeJSONBody(w, r, maxCartBodySize, false, &req) {
		return
	}
	if req.Quantity == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "quantity is required", http.StatusBadRequest))
		return
	}

	cart, err := h.carts.UpdateItem(ctx, services.UpdateCartItemCommand{
		UserID:    identity.UID,
		ItemID:    chi.URLParam(r, "itemID"),
		Quantity:  *req.Quantity,
		UploadIDs: req.UploadIDs,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartPayload(cart))
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireCustomerIdentity(w, r)
	if !ok {
		return
	}
	cart, err := h.carts.RemoveItem(ctx, services.RemoveCartItemCommand{
		UserID: identity.UID,
		ItemID: chi.URLParam(r, "itemID"),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartPayload(cart))
}
