package services

import (
	"context"
	"errors"
	"slices"
	"testing"

	domain "github.com/acrylicworks/api/internal/domain"
)

func newCatalogHarness(t *testing.T, searcher ProductSearcher) (*memStore, *captureLogger, CatalogService) {
	t.Helper()
	store := newMemStore()
	logs := &captureLogger{}
	svc, err := NewCatalogService(CatalogServiceDeps{
		Products:    store.Products(),
		Searcher:    searcher,
		Clock:       fixedClock,
		IDGenerator: sequentialIDs("01P"),
		Logger:      logs.log,
	})
	if err != nil {
		t.Fatalf("NewCatalogService: %v", err)
	}
	store.putProduct(domain.Product{ID: "prd_a", SKU: "KEY-01", Name: "Acrylic keychain", Category: "keychains", Price: 900, Currency: "JPY", Active: true})
	store.putProduct(domain.Product{ID: "prd_b", SKU: "STAND-S", Name: "Acrylic stand", Category: "stands", Price: 2500, Currency: "JPY", Active: true})
	store.putProduct(domain.Product{ID: "prd_c", SKU: "KEY-OLD", Name: "Vintage keychain", Category: "keychains", Price: 700, Currency: "JPY"})
	return store, logs, svc
}

func productIDs(products []Product) []string {
	ids := make([]string, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}
	return ids
}

func TestCatalogSearchUsesIndex(t *testing.T) {
	searcher := &stubSearcher{ids: []string{"prd_b", "prd_deleted", "prd_c", "prd_a"}}
	_, _, svc := newCatalogHarness(t, searcher)

	got, err := svc.SearchProducts(context.Background(), ProductSearchQuery{Query: "acrylic"})
	if err != nil {
		t.Fatalf("SearchProducts: %v", err)
	}
	// index order is kept; deleted and inactive hits are dropped
	if want := []string{"prd_b", "prd_a"}; !slices.Equal(productIDs(got), want) {
		t.Fatalf("expected %v, got %v", want, productIDs(got))
	}
}

func TestCatalogSearchFallsBackToScan(t *testing.T) {
	searcher := &stubSearcher{err: errors.New("elasticsearch: 503")}
	_, logs, svc := newCatalogHarness(t, searcher)

	got, err := svc.SearchProducts(context.Background(), ProductSearchQuery{Query: "KEYCHAIN"})
	if err != nil {
		t.Fatalf("SearchProducts: %v", err)
	}
	if want := []string{"prd_a"}; !slices.Equal(productIDs(got), want) {
		t.Fatalf("expected %v, got %v", want, productIDs(got))
	}
	if !logs.has("catalog.search.index_failed") {
		t.Fatalf("expected index failure to be logged")
	}
}

func TestCatalogSearchWithoutIndex(t *testing.T) {
	_, _, svc := newCatalogHarness(t, nil)

	got, err := svc.SearchProducts(context.Background(), ProductSearchQuery{Query: "stand-s"})
	if err != nil {
		t.Fatalf("SearchProducts: %v", err)
	}
	if want := []string{"prd_b"}; !slices.Equal(productIDs(got), want) {
		t.Fatalf("expected %v, got %v", want, productIDs(got))
	}

	_, err = svc.SearchProducts(context.Background(), ProductSearchQuery{Query: "  "})
	requireErrorIs(t, err, ErrCatalogInvalidInput)
}

func TestCatalogCreateNormalizesAndIndexes(t *testing.T) {
	searcher := &stubSearcher{}
	store, _, svc := newCatalogHarness(t, searcher)

	created, err := svc.CreateProduct(context.Background(), UpsertProductCommand{ActorID: "adm_1", Product: Product{
		SKU:       " plate-a4 ",
		Name:      "<i>Acrylic plate</i> A4",
		Category:  " Plates ",
		Price:     3200,
		Currency:  "jpy",
		Active:    true,
		ImageURLs: []string{"https://cdn.example.com/plate.png", " "},
	}})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	if created.ID != "prd_01P001" || created.SKU != "PLATE-A4" || created.Category != "plates" || created.Name != "Acrylic plate A4" {
		t.Fatalf("unexpected normalised product %+v", created)
	}
	if len(created.ImageURLs) != 1 || !created.CreatedAt.Equal(testNow) {
		t.Fatalf("unexpected product %+v", created)
	}
	if _, ok := store.products[created.ID]; !ok {
		t.Fatalf("expected product stored")
	}
	if !slices.Equal(searcher.indexed, []string{created.ID}) {
		t.Fatalf("expected product indexed, got %v", searcher.indexed)
	}
}

func TestCatalogUpdateDeactivationRemovesFromIndex(t *testing.T) {
	searcher := &stubSearcher{}
	_, _, svc := newCatalogHarness(t, searcher)

	updated, err := svc.UpdateProduct(context.Background(), UpsertProductCommand{Product: Product{ID: "prd_a", SKU: "KEY-01", Name: "Acrylic keychain", Price: 900}})
	if err != nil {
		t.Fatalf("UpdateProduct: %v", err)
	}
	if updated.Active || !updated.UpdatedAt.Equal(testNow) {
		t.Fatalf("unexpected update %+v", updated)
	}
	if !slices.Equal(searcher.removed, []string{"prd_a"}) || len(searcher.indexed) != 0 {
		t.Fatalf("expected removal from index, got removed=%v indexed=%v", searcher.removed, searcher.indexed)
	}
}

func TestCatalogValidation(t *testing.T) {
	testCases := []struct {
		name    string
		product Product
		want    error
	}{
		{name: "missing name", product: Product{SKU: "A"}, want: ErrCatalogInvalidInput},
		{name: "missing sku", product: Product{Name: "Plate"}, want: ErrCatalogInvalidInput},
		{name: "negative price", product: Product{Name: "Plate", SKU: "A", Price: -1}, want: ErrCatalogInvalidInput},
		{name: "foreign currency", product: Product{Name: "Plate", SKU: "A", Currency: "USD"}, want: ErrCatalogInvalidInput},
		{name: "bad image url", product: Product{Name: "Plate", SKU: "A", ImageURLs: []string{"ftp://cdn/plate.png"}}, want: ErrCatalogInvalidInput},
		{name: "duplicate id", product: Product{ID: "prd_a", Name: "Plate", SKU: "A"}, want: ErrCatalogConflict},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, svc := newCatalogHarness(t, nil)
			_, err := svc.CreateProduct(context.Background(), UpsertProductCommand{Product: tc.product})
			requireErrorIs(t, err, tc.want)
		})
	}
}

func TestCatalogGetProductHidesInactive(t *testing.T) {
	_, _, svc := newCatalogHarness(t, nil)
	ctx := context.Background()

	_, err := svc.GetProduct(ctx, "prd_c", false)
	requireErrorIs(t, err, ErrCatalogProductNotFound)
	if _, err := svc.GetProduct(ctx, "prd_c", true); err != nil {
		t.Fatalf("admins can read inactive products: %v", err)
	}
	_, err = svc.GetProduct(ctx, "prd_missing", true)
	requireErrorIs(t, err, ErrCatalogProductNotFound)
}

func TestCatalogDeleteRemovesFromIndex(t *testing.T) {
	searcher := &stubSearcher{}
	store, _, svc := newCatalogHarness(t, searcher)

	if err := svc.DeleteProduct(context.Background(), "prd_b"); err != nil {
		t.Fatalf("DeleteProduct: %v", err)
	}
	if _, ok := store.products["prd_b"]; ok {
		t.Fatalf("expected product deleted")
	}
	if !slices.Equal(searcher.removed, []string{"prd_b"}) {
		t.Fatalf("expected index removal, got %v", searcher.removed)
	}
	err := svc.DeleteProduct(context.Background(), "prd_b")
	requireErrorIs(t, err, ErrCatalogProductNotFound)
}
