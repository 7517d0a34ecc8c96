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
	maxCatalogRequestBody       = 256 * 1024
	defaultAdminProductPageSize = 50
)

// AdminCatalogHandlers exposes back office product management.
type AdminCatalogHandlers struct {
	sessions *auth.AdminSessions
	catalog  services.CatalogService
}

// NewAdminCatalogHandlers constructs admin catalog handlers. Staff may read, super admins may write.
func NewAdminCatalogHandlers(sessions *auth.AdminSessions, catalog services.CatalogService) *AdminCatalogHandlers {
	return &AdminCatalogHandlers{sessions: sessions, catalog: catalog}
}

// Routes registers /products on the /admin group.
func (h *AdminCatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	readers, writers := r, r
	if h.sessions != nil {
		readers = r.With(h.sessions.RequireAdmin(auth.RoleStaff))
		writers = r.With(h.sessions.RequireAdmin(auth.RoleAdmin))
	}
	readers.Get("/products", h.listProducts)
	readers.Get("/products/{productID}", h.getProduct)
	writers.Post("/products", h.createProduct)
	writers.Patch("/products/{productID}", h.updateProduct)
	writers.Delete("/products/{productID}", h.deleteProduct)
}

type productRequest struct {
	ID             *string         `json:"id"`
	SKU            *string         `json:"sku"`
	Name           *string         `json:"name"`
	Description    *string         `json:"description"`
	Category       *string         `json:"category"`
	Price          *int64          `json:"price"`
	Currency       *string         `json:"currency"`
	RequiresUpload *bool           `json:"requiresUpload"`
	Active         *bool           `json:"active"`
	Stock          *int            `json:"stock"`
	ImageURLs      *[]string       `json:"imageUrls"`
	Attributes     *map[string]any `json:"attributes"`
}

// applyTo overlays the fields present in the request onto product.
func (req productRequest) applyTo(product services.Product) services.Product {
	if req.SKU != nil {
		product.SKU = *req.SKU
	}
	if req.Name != nil {
		product.Name = *req.Name
	}
	if req.Description != nil {
		product.Description = *req.Description
	}
	if req.Category != nil {
		product.Category = *req.Category
	}
	if req.Price != nil {
		product.Price = *req.Price
	}
	if req.Currency != nil {
		product.Currency = *req.Currency
	}
	if req.RequiresUpload != nil {
		product.RequiresUpload = *req.RequiresUpload
	}
	if req.Active != nil {
		product.Active = *req.Active
	}
	if req.Stock != nil {
		stock := *req.Stock
		product.Stock = &stock
	}
	if req.ImageURLs != nil {
		product.ImageURLs = *req.ImageURLs
	}
	if req.Attributes != nil {
		product.Attributes = *req.Attributes
	}
	return product
}

func (h *AdminCatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}
	query := r.URL.Query()
	pageSize, err := parsePageSize(query.Get("page_size"), defaultAdminProductPageSize, maxProductPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	page, err := h.catalog.ListProducts(ctx, services.ProductListFilter{
		Category:   strings.ToLower(strings.TrimSpace(query.Get("category"))),
		ActiveOnly: strings.EqualFold(strings.TrimSpace(query.Get("active")), "true"),
		Pagination: services.Pagination{PageSize: pageSize, PageToken: strings.TrimSpace(query.Get("page_token"))},
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, productListResponse{
		Items:         buildProductList(page.Items),
		NextPageToken: page.NextPageToken,
	})
}

func (h *AdminCatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}
	product, err := h.catalog.GetProduct(ctx, chi.URLParam(r, "productID"), true)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildProductPayload(product))
}

func (h *AdminCatalogHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}
	actor, ok := requireStaffIdentity(w, r)
	if !ok {
		return
	}
	var req productRequest
	if !decodeJSONBody(w, r, maxCatalogRequestBody, false, &req) {
		return
	}

	product := req.applyTo(services.Product{Active: true})
	if req.ID != nil {
		product.ID = strings.TrimSpace(*req.ID)
	}
	created, err := h.catalog.CreateProduct(ctx, services.UpsertProductCommand{Product: product, ActorID: actor.UID})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildProductPayload(created))
}

func (h *AdminCatalogHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}
	actor, ok := requireStaffIdentity(w, r)
	if !ok {
		return
	}
	var req productRequest
	if !decodeJSONBody(w, r, maxCatalogRequestBody, false, &req) {
		return
	}
	productID := chi.URLParam(r, "productID")
	if req.ID != nil && strings.TrimSpace(*req.ID) != productID {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "id does not match path", http.StatusBadRequest))
		return
	}

	existing, err := h.catalog.GetProduct(ctx, productID, true)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	updated, err := h.catalog.UpdateProduct(ctx, services.UpsertProductCommand{
		Product: req.applyTo(existing),
		ActorID: actor.UID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildProductPayload(updated))
}

func (h *AdminCatalogHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}
	if _, ok := requireStaffIdentity(w, r); !ok {
		return
	}
	if err := h.catalog.DeleteProduct(ctx, chi.URLParam(r, "productID")); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
