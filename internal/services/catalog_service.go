package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/text/cases"

	domain "github.com/acrylicworks/api/internal/domain"
	"github.com/acrylicworks/api/internal/platform/textutil"
	"github.com/acrylicworks/api/internal/repositories"
)

const (
	productIDPrefix        = "prd_"
	defaultSearchLimit     = 20
	maxSearchLimit         = 100
	fallbackSearchPageSize = 100
	fallbackSearchMaxPages = 10
)

var (
	// ErrCatalogInvalidInput indicates the caller supplied invalid data to a catalog mutation.
	ErrCatalogInvalidInput = errors.New("catalog service: invalid input")
	// ErrCatalogProductNotFound indicates the product does not exist or is hidden from the caller.
	ErrCatalogProductNotFound = errors.New("catalog service: product not found")
	// ErrCatalogConflict indicates a product with the same id already exists.
	ErrCatalogConflict = errors.New("catalog service: conflict")
)

// CatalogServiceDeps bundles constructor inputs for the catalog service.
type CatalogServiceDeps struct {
	Products    repositories.ProductRepository
	Searcher    ProductSearcher
	Currency    string
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	products repositories.ProductRepository
	searcher ProductSearcher
	currency string
	clock    func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

// NewCatalogService constructs the catalog service with the supplied dependencies. Without a
// searcher, product search scans active products from the repository.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, fmt.Errorf("catalog service: product repository is required")
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "JPY"
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &catalogService{
		products: deps.Products,
		searcher: deps.Searcher,
		currency: currency,
		clock:    func() time.Time { return clock().UTC() },
		newID:    idGen,
		logger:   logger,
	}, nil
}

func (s *catalogService) ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error) {
	filter.Category = strings.TrimSpace(filter.Category)
	filter.Pagination.PageToken = strings.TrimSpace(filter.Pagination.PageToken)
	page, err := s.products.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Product]{}, mapRepositoryError(err, nil, nil)
	}
	return page, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string, includeInactive bool) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, mapRepositoryError(err, ErrCatalogProductNotFound, nil)
	}
	if !product.Active && !includeInactive {
		return Product{}, fmt.Errorf("%w: %s", ErrCatalogProductNotFound, productID)
	}
	return product, nil
}

// SearchProducts resolves matches through the search index and falls back to scanning the
// repository when the index is not configured or fails.
func (s *catalogService) SearchProducts(ctx context.Context, query ProductSearchQuery) ([]Product, error) {
	q := strings.TrimSpace(query.Query)
	if q == "" {
		return nil, fmt.Errorf("%w: query is required", ErrCatalogInvalidInput)
	}
	limit := query.Limit
	switch {
	case limit <= 0:
		limit = defaultSearchLimit
	case limit > maxSearchLimit:
		limit = maxSearchLimit
	}

	if s.searcher != nil {
		ids, err := s.searcher.SearchProductIDs(ctx, q, limit)
		if err == nil {
			return s.loadActive(ctx, ids)
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		s.logger(ctx, "catalog.search.index_failed", map[string]any{
			"query": q,
			"error": err.Error(),
		})
	}
	return s.scan(ctx, q, limit)
}

func (s *catalogService) CreateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error) {
	product, err := s.normalizeProduct(cmd.Product)
	if err != nil {
		return Product{}, err
	}
	if product.ID == "" {
		product.ID = productIDPrefix + s.newID()
	}
	now := s.clock()
	product.CreatedAt = now
	product.UpdatedAt = now

	if err := s.products.Insert(ctx, product); err != nil {
		return Product{}, mapRepositoryError(err, nil, ErrCatalogConflict)
	}
	s.index(ctx, product)
	s.logger(ctx, "catalog.product.created", map[string]any{
		"productId": product.ID,
		"actorId":   strings.TrimSpace(cmd.ActorID),
	})
	return product, nil
}

func (s *catalogService) UpdateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error) {
	product, err := s.normalizeProduct(cmd.Product)
	if err != nil {
		return Product{}, err
	}
	if product.ID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	existing, err := s.products.FindByID(ctx, product.ID)
	if err != nil {
		return Product{}, mapRepositoryError(err, ErrCatalogProductNotFound, nil)
	}
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = s.clock()

	if err := s.products.Update(ctx, product); err != nil {
		return Product{}, mapRepositoryError(err, ErrCatalogProductNotFound, ErrCatalogConflict)
	}
	s.index(ctx, product)
	s.logger(ctx, "catalog.product.updated", map[string]any{
		"productId": product.ID,
		"actorId":   strings.TrimSpace(cmd.ActorID),
		"active":    product.Active,
	})
	return product, nil
}

func (s *catalogService) DeleteProduct(ctx context.Context, productID string) error {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	if err := s.products.Delete(ctx, productID); err != nil {
		return mapRepositoryError(err, ErrCatalogProductNotFound, nil)
	}
	if s.searcher != nil {
		if err := s.searcher.RemoveProduct(ctx, productID); err != nil {
			s.logger(ctx, "catalog.search.remove_failed", map[string]any{
				"productId": productID,
				"error":     err.Error(),
			})
		}
	}
	return nil
}

func (s *catalogService) loadActive(ctx context.Context, ids []string) ([]Product, error) {
	products := make([]Product, 0, len(ids))
	for _, id := range ids {
		product, err := s.products.FindByID(ctx, id)
		if err != nil {
			mapped := mapRepositoryError(err, ErrCatalogProductNotFound, nil)
			if errors.Is(mapped, ErrCatalogProductNotFound) {
				// the index lags behind deletes
				continue
			}
			return nil, mapped
		}
		if product.Active {
			products = append(products, product)
		}
	}
	return products, nil
}

func (s *catalogService) scan(ctx context.Context, q string, limit int) ([]Product, error) {
	fold := cases.Fold()
	needle := fold.String(q)
	var (
		matches []Product
		token   string
	)
	for page := 0; page < fallbackSearchMaxPages; page++ {
		result, err := s.products.List(ctx, ProductListFilter{
			ActiveOnly: true,
			Pagination: domain.Pagination{PageSize: fallbackSearchPageSize, PageToken: token},
		})
		if err != nil {
			return nil, mapRepositoryError(err, nil, nil)
		}
		for _, product := range result.Items {
			haystack := fold.String(strings.Join([]string{product.Name, product.SKU, product.Category, product.Description}, " "))
			if strings.Contains(haystack, needle) {
				matches = append(matches, product)
				if len(matches) == limit {
					return matches, nil
				}
			}
		}
		if result.NextPageToken == "" {
			break
		}
		token = result.NextPageToken
	}
	return matches, nil
}

func (s *catalogService) index(ctx context.Context, product Product) {
	if s.searcher == nil {
		return
	}
	var err error
	if product.Active {
		err = s.searcher.IndexProduct(ctx, product)
	} else {
		err = s.searcher.RemoveProduct(ctx, product.ID)
	}
	if err != nil {
		s.logger(ctx, "catalog.search.index_failed", map[string]any{
			"productId": product.ID,
			"error":     err.Error(),
		})
	}
}

func (s *catalogService) normalizeProduct(product Product) (Product, error) {
	product.ID = strings.TrimSpace(product.ID)
	product.SKU = strings.ToUpper(strings.TrimSpace(product.SKU))
	product.Name = textutil.SanitizePlainText(product.Name)
	product.Description = textutil.SanitizePlainText(product.Description)
	product.Category = strings.ToLower(strings.TrimSpace(product.Category))
	product.Currency = strings.ToUpper(strings.TrimSpace(product.Currency))
	if product.Currency == "" {
		product.Currency = s.currency
	}
	product.Attributes = maps.Clone(product.Attributes)

	switch {
	case product.Name == "":
		return Product{}, fmt.Errorf("%w: name is required", ErrCatalogInvalidInput)
	case product.SKU == "":
		return Product{}, fmt.Errorf("%w: sku is required", ErrCatalogInvalidInput)
	case product.Price < 0:
		return Product{}, fmt.Errorf("%w: price must not be negative", ErrCatalogInvalidInput)
	case product.Currency != s.currency:
		return Product{}, fmt.Errorf("%w: currency must be %s", ErrCatalogInvalidInput, s.currency)
	case product.Stock != nil && *product.Stock < 0:
		return Product{}, fmt.Errorf("%w: stock must not be negative", ErrCatalogInvalidInput)
	}

	images := make([]string, 0, len(product.ImageURLs))
	for _, raw := range product.ImageURLs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parsed, err := url.Parse(raw)
		if err != nil || (parsed.Scheme != "https" && parsed.Scheme != "http") || parsed.Host == "" {
			return Product{}, fmt.Errorf("%w: invalid image url %q", ErrCatalogInvalidInput, raw)
		}
		images = append(images, parsed.String())
	}
	product.ImageURLs = images
	return product, nil
}
