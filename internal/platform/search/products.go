// Package search keeps an Elasticsearch index of active products for storefront search.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v9"

	domain "github.com/acrylicworks/api/internal/domain"
	"github.com/acrylicworks/api/internal/platform/config"
)

const defaultIndex = "products"

// ProductIndex implements services.ProductSearcher on top of Elasticsearch.
type ProductIndex struct {
	client *elasticsearch.Client
	index  string
}

// NewClient builds an Elasticsearch client from configuration.
func NewClient(cfg config.SearchConfig) (*elasticsearch.Client, error) {
	if len(cfg.Addresses) == 0 {
		return nil, errors.New("search: at least one address is required")
	}
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("search: create client: %w", err)
	}
	return client, nil
}

// NewProductIndex wraps client for the given index name.
func NewProductIndex(client *elasticsearch.Client, index string) (*ProductIndex, error) {
	if client == nil {
		return nil, errors.New("search: client is required")
	}
	if strings.TrimSpace(index) == "" {
		index = defaultIndex
	}
	return &ProductIndex{client: client, index: strings.TrimSpace(index)}, nil
}

type productDocument struct {
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Price       int64  `json:"price"`
	Currency    string `json:"currency"`
	Active      bool   `json:"active"`
}

// SearchProductIDs runs a fuzzy multi-field query over active products and returns matching
// ids ordered by relevance.
func (p *ProductIndex) SearchProductIDs(ctx context.Context, query string, limit int) ([]string, error) {
	body := map[string]any{
		"size":    limit,
		"_source": false,
		"query": map[string]any{
			"bool": map[string]any{
				"must": map[string]any{
					"multi_match": map[string]any{
						"query":     query,
						"fields":    []string{"name^3", "sku^2", "category", "description"},
						"fuzziness": "AUTO",
					},
				},
				"filter": map[string]any{
					"term": map[string]any{"active": true},
				},
			},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("search: encode query: %w", err)
	}

	res, err := p.client.Search(
		p.client.Search.WithContext(ctx),
		p.client.Search.WithIndex(p.index),
		p.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("search: query products: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, responseError("query products", res.StatusCode, res.Body)
	}

	var decoded struct {
		Hits struct {
			Hits []struct {
				ID string `json:"_id"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("search: decode response: %w", err)
	}
	ids := make([]string, 0, len(decoded.Hits.Hits))
	for _, hit := range decoded.Hits.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// IndexProduct upserts the product document.
func (p *ProductIndex) IndexProduct(ctx context.Context, product domain.Product) error {
	data, err := json.Marshal(productDocument{
		SKU:         product.SKU,
		Name:        product.Name,
		Description: product.Description,
		Category:    product.Category,
		Price:       product.Price,
		Currency:    product.Currency,
		Active:      product.Active,
	})
	if err != nil {
		return fmt.Errorf("search: encode product: %w", err)
	}
	res, err := p.client.Index(p.index, bytes.NewReader(data),
		p.client.Index.WithContext(ctx),
		p.client.Index.WithDocumentID(product.ID),
	)
	if err != nil {
		return fmt.Errorf("search: index product: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("index product", res.StatusCode, res.Body)
	}
	return nil
}

// RemoveProduct deletes the product document. Missing documents are not an error.
func (p *ProductIndex) RemoveProduct(ctx context.Context, productID string) error {
	res, err := p.client.Delete(p.index, productID, p.client.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("search: delete product: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil
	}
	if res.IsError() {
		return responseError("delete product", res.StatusCode, res.Body)
	}
	return nil
}

func responseError(op string, status int, body io.Reader) error {
	snippet, _ := io.ReadAll(io.LimitReader(body, 512))
	return fmt.Errorf("search: %s: status %d: %s", op, status, strings.TrimSpace(string(snippet)))
}
