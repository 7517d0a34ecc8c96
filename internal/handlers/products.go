package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/acrylicworks/api/internal/platform/httpx"
	"github.com/acrylicworks/api/internal/services"
)

const (
	defaultProductPageSize = 24
	maxProductPageSize     = 100
)

// ProductHandlers serves the public catalog.
type ProductHandlers struct {
	catalog services.CatalogService
}

// NewProductHandlers constructs unauthenticated catalog handlers.
func NewProductHandlers(catalog services.CatalogService) *ProductHandlers {
	return &ProductHandlers{catalog: catalog}
}

// Routes registers /products endpoints. The search route is registered before the id route so
// chi does not treat "search" as a product id.
func (h *ProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listProducts)
	r.Get("/search", h.searchProducts)
	r.Get("/{productID}", h.getProduct)
}

type productPayload struct {
	ID             string         `json:"id"`
	SKU            string         `json:"sku"`
	Name           string         `json:"name"`
	Description    string         `json:"description,omitempty"`
	Category       string         `json:"category,omitempty"`
	Price          int64          `json:"price"`
	Currency       string         `json:"currency"`
	RequiresUpload bool           `json:"requiresUpload"`
	Active         bool           `json:"active"`
	Stock          *int           `json:"stock,omitempty"`
	ImageURLs      []string       `json:"imageUrls,omitempty"`
	Attributes     map[string]any `json:"attributes,omitempty"`
	CreatedAt      string         `json:"createdAt,omitempty"`
	UpdatedAt      string         `json:"updatedAt,omitempty"`
}

type productListResponse struct {
	Items         []productPayload `json:"items"`
	NextPageToken string           `json:"nextPageToken,omitempty"`
}

func buildProductPayload(product services.Product) productPayload {
	return productPayload{
		ID:             product.ID,
		SKU:            product.SKU,
		Name:           product.Name,
		Description:    product.Description,
		Category:       product.Category,
		Price:          product.Price,
		Currency:       product.Currency,
		RequiresUpload: product.RequiresUpload,
		Active:         product.Active,
		Stock:          product.Stock,
		ImageURLs:      product.ImageURLs,
		Attributes:     product.Attributes,
		CreatedAt:      formatTime(product.CreatedAt),
		UpdatedAt:      formatTime(product.UpdatedAt),
	}
}

func buildProductList(products []services.Product) []productPayload {
	items := make([]productPayload, 0, len(products))
	for _, product := range products {
		items = append(items, buildProductPayload(product))
	}
	return items
}

func (h *ProductHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}
	query := r.URL.Query()
	pageSize, err := parsePageSize(query.Get("page_size"), defaultProductPageSize, maxProductPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.catalog.ListProducts(ctx, services.ProductListFilter{
		Category:   strings.ToLower(strings.TrimSpace(query.Get("category"))),
		ActiveOnly: true,
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

func (h *ProductHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}
	product, err := h.catalog.GetProduct(ctx, chi.URLParam(r, "productID"), false)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildProductPayload(product))
}

func (h *ProductHandlers) searchProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}
	query := r.URL.Query()
	q := strings.TrimSpace(query.Get("q"))
	if q == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "q is required", http.StatusBadRequest))
		return
	}
	limit := 0
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "limit must be an integer", http.StatusBadRequest))
			return
		}
		limit = parsed
	}

	products, err := h.catalog.SearchProducts(ctx, services.ProductSearchQuery{Query: q, Limit: limit})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, productListResponse{Items: buildProductList(products)})
}
