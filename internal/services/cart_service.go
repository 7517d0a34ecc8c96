package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/acrylicworks/api/internal/repositories"
)

const (
	cartItemIDPrefix = "ci_"
	maxCartItems     = 50
)

var (
	// ErrCartInvalidInput indicates the cart command failed validation.
	ErrCartInvalidInput = errors.New("cart: invalid input")
	// ErrCartItemNotFound indicates the referenced cart line does not exist.
	ErrCartItemNotFound = errors.New("cart: item not found")
	// ErrCartProductUnavailable indicates the product is missing or inactive.
	ErrCartProductUnavailable = errors.New("cart: product unavailable")
)

// CartServiceDeps wires the cart service collaborators.
type CartServiceDeps struct {
	Carts       repositories.CartRepository
	Products    repositories.ProductRepository
	Currency    string
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type cartService struct {
	carts    repositories.CartRepository
	products repositories.ProductRepository
	currency string
	now      func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

// NewCartService constructs the per-user cart service.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("cart service: product repository is required")
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
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &cartService{
		carts:    deps.Carts,
		products: deps.Products,
		currency: currency,
		now: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *cartService) GetCart(ctx context.Context, userID string) (Cart, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	cart, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		return Cart{}, mapRepositoryError(err, nil, nil)
	}
	if cart.Currency == "" {
		cart.Currency = s.currency
	}
	return cart, nil
}

// AddItem appends a line, merging it into an existing line for the same product and options
// when neither carries uploads.
func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Cart{}, fmt.Errorf("%w: product id is required", ErrCartInvalidInput)
	}
	qty := cmd.Quantity
	if qty == 0 {
		qty = 1
	}
	if err := validateCartQuantity(qty); err != nil {
		return Cart{}, err
	}
	if _, err := s.activeProduct(ctx, productID); err != nil {
		return Cart{}, err
	}

	cart, err := s.GetCart(ctx, cmd.UserID)
	if err != nil {
		return Cart{}, err
	}
	now := s.now()
	uploadIDs := uniqueIDs(cmd.UploadIDs)

	merged := false
	if len(uploadIDs) == 0 {
		for i := range cart.Items {
			item := &cart.Items[i]
			if item.ProductID != productID || len(item.UploadIDs) > 0 || !sameOptions(item.Options, cmd.Options) {
				continue
			}
			if err := validateCartQuantity(item.Quantity + qty); err != nil {
				return Cart{}, err
			}
			item.Quantity += qty
			item.UpdatedAt = now
			merged = true
			break
		}
	}
	if !merged {
		if len(cart.Items) >= maxCartItems {
			return Cart{}, fmt.Errorf("%w: cart holds at most %d lines", ErrCartInvalidInput, maxCartItems)
		}
		cart.Items = append(cart.Items, CartItem{
			ID:        cartItemIDPrefix + s.newID(),
			ProductID: productID,
			Quantity:  qty,
			UploadIDs: uploadIDs,
			Options:   maps.Clone(cmd.Options),
			AddedAt:   now,
			UpdatedAt: now,
		})
	}

	saved, err := s.save(ctx, cart, now)
	if err != nil {
		return Cart{}, err
	}
	s.logger(ctx, "cart.item.added", map[string]any{
		"userId":    cart.UserID,
		"productId": productID,
		"quantity":  qty,
		"merged":    merged,
	})
	return saved, nil
}

// UpdateItem sets the quantity of a line. A nil UploadIDs slice keeps the attached uploads.
func (s *cartService) UpdateItem(ctx context.Context, cmd UpdateCartItemCommand) (Cart, error) {
	itemID := strings.TrimSpace(cmd.ItemID)
	if itemID == "" {
		return Cart{}, fmt.Errorf("%w: item id is required", ErrCartInvalidInput)
	}
	if err := validateCartQuantity(cmd.Quantity); err != nil {
		return Cart{}, err
	}
	cart, err := s.GetCart(ctx, cmd.UserID)
	if err != nil {
		return Cart{}, err
	}
	idx := slices.IndexFunc(cart.Items, func(item CartItem) bool { return item.ID == itemID })
	if idx < 0 {
		return Cart{}, fmt.Errorf("%w: %s", ErrCartItemNotFound, itemID)
	}

	now := s.now()
	cart.Items[idx].Quantity = cmd.Quantity
	if cmd.UploadIDs != nil {
		cart.Items[idx].UploadIDs = uniqueIDs(cmd.UploadIDs)
	}
	cart.Items[idx].UpdatedAt = now
	return s.save(ctx, cart, now)
}

func (s *cartService) RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error) {
	itemID := strings.TrimSpace(cmd.ItemID)
	if itemID == "" {
		return Cart{}, fmt.Errorf("%w: item id is required", ErrCartInvalidInput)
	}
	cart, err := s.GetCart(ctx, cmd.UserID)
	if err != nil {
		return Cart{}, err
	}
	before := len(cart.Items)
	cart.Items = slices.DeleteFunc(cart.Items, func(item CartItem) bool { return item.ID == itemID })
	if len(cart.Items) == before {
		return Cart{}, fmt.Errorf("%w: %s", ErrCartItemNotFound, itemID)
	}
	return s.save(ctx, cart, s.now())
}

func (s *cartService) Clear(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	if err := s.carts.ClearCart(ctx, userID); err != nil {
		return mapRepositoryError(err, nil, nil)
	}
	return nil
}

func (s *cartService) activeProduct(ctx context.Context, productID string) (Product, error) {
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		mapped := mapRepositoryError(err, ErrCartProductUnavailable, nil)
		if errors.Is(mapped, ErrCartProductUnavailable) {
			return Product{}, fmt.Errorf("%w: %s", ErrCartProductUnavailable, productID)
		}
		return Product{}, mapped
	}
	if !product.Active {
		return Product{}, fmt.Errorf("%w: %s", ErrCartProductUnavailable, productID)
	}
	return product, nil
}

func (s *cartService) save(ctx context.Context, cart Cart, now time.Time) (Cart, error) {
	cart.UpdatedAt = now
	if cart.Currency == "" {
		cart.Currency = s.currency
	}
	saved, err := s.carts.SaveCart(ctx, cart)
	if err != nil {
		return Cart{}, mapRepositoryError(err, nil, nil)
	}
	return saved, nil
}

func validateCartQuantity(qty int) error {
	if qty < 1 || qty > maxCartItemQty {
		return fmt.Errorf("%w: quantity must be between 1 and %d", ErrCartInvalidInput, maxCartItemQty)
	}
	return nil
}

func sameOptions(a, b map[string]any) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}
