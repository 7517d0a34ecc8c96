package handlers

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	domain "github.com/acrylicworks/api/internal/domain"
	"github.com/acrylicworks/api/internal/services"
)

func TestProductHandlersListOnlyActive(t *testing.T) {
	created := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
	var captured services.ProductListFilter
	catalog := &stubCatalogService{
		listFunc: func(ctx context.Context, filter services.ProductListFilter) (domain.CursorPage[services.Product], error) {
			captured = filter
			return domain.CursorPage[services.Product]{
				Items:         []services.Product{{ID: "prd_1", SKU: "PLATE-A4", Name: "A4 plate", Price: 3200, Currency: "JPY", Active: true, CreatedAt: created}},
				NextPageToken: "next",
			}, nil
		},
	}

	rr := serve(t, "/products", NewProductHandlers(catalog).Routes, nil, http.MethodGet, "/products?category=Plates&page_size=500&page_token=abc", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !captured.ActiveOnly || captured.Category != "plates" {
		t.Fatalf("unexpected filter %#v", captured)
	}
	if captured.Pagination.PageSize != maxProductPageSize || captured.Pagination.PageToken != "abc" {
		t.Fatalf("unexpected pagination %#v", captured.Pagination)
	}
	resp := decodeBody[productListResponse](t, rr)
	if len(resp.Items) != 1 || resp.Items[0].SKU != "PLATE-A4" || resp.NextPageToken != "next" {
		t.Fatalf("unexpected response %#v", resp)
	}
	if resp.Items[0].CreatedAt != "2025-02-03T04:05:06Z" {
		t.Fatalf("unexpected createdAt %q", resp.Items[0].CreatedAt)
	}
}

func TestProductHandlersGetHidesInactive(t *testing.T) {
	catalog := &stubCatalogService{
		getFunc: func(ctx context.Context, productID string, includeInactive bool) (services.Product, error) {
			if includeInactive {
				t.Fatalf("public reads must not include inactive products")
			}
			return services.Product{}, fmt.Errorf("%w: %s", services.ErrCatalogProductNotFound, productID)
		},
	}
	rr := serve(t, "/products", NewProductHandlers(catalog).Routes, nil, http.MethodGet, "/products/prd_9", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if code := errorCode(t, rr); code != "product_not_found" {
		t.Fatalf("expected product_not_found, got %q", code)
	}
}

func TestProductHandlersSearch(t *testing.T) {
	catalog := &stubCatalogService{
		searchFunc: func(ctx context.Context, query services.ProductSearchQuery) ([]services.Product, error) {
			if query.Query != "acrylic stand" || query.Limit != 5 {
				t.Fatalf("unexpected query %#v", query)
			}
			return []services.Product{{ID: "prd_2", Name: "Acrylic stand"}}, nil
		},
	}
	routes := NewProductHandlers(catalog).Routes

	rr := serve(t, "/products", routes, nil, http.MethodGet, "/products/search?q=acrylic+stand&limit=5", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if resp := decodeBody[productListResponse](t, rr); len(resp.Items) != 1 {
		t.Fatalf("expected one result, got %#v", resp)
	}

	for _, target := range []string{"/products/search", "/products/search?q=x&limit=many"} {
		rr = serve(t, "/products", routes, nil, http.MethodGet, target, nil)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, rr.Code)
		}
	}
}

func TestProductHandlersServiceUnavailable(t *testing.T) {
	rr := serve(t, "/products", NewProductHandlers(nil).Routes, nil, http.MethodGet, "/products", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
