package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/acrylicworks/api/internal/domain"
	"github.com/acrylicworks/api/internal/payments"
	"github.com/acrylicworks/api/internal/platform/textutil"
	"github.com/acrylicworks/api/internal/repositories"
)

const (
	orderIDPrefix      = "ord_"
	orderItemIDPrefix  = "itm_"
	orderNumberCounter = "orders"
	maxCartItemQty     = 99
)

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid input parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutEmptyCart indicates there is nothing to order.
	ErrCheckoutEmptyCart = errors.New("checkout: cart is empty")
	// ErrCheckoutProductUnavailable indicates a cart product is inactive, missing or out of stock.
	ErrCheckoutProductUnavailable = errors.New("checkout: product unavailable")
	// ErrCheckoutPaymentFailed indicates the PSP payment intent could not be created.
	ErrCheckoutPaymentFailed = errors.New("checkout: payment failed")
)

// PricingPolicy holds the monetary rules applied when a cart becomes an order.
type PricingPolicy struct {
	Currency              string
	TaxRateBasisPoints    int64
	ShippingFee           int64
	FreeShippingThreshold int64
}

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Carts       repositories.CartRepository
	Products    repositories.ProductRepository
	Orders      repositories.OrderRepository
	Uploads     repositories.UploadRepository
	Counters    repositories.CounterRepository
	Payments    payments.Provider
	Pricing     PricingPolicy
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	carts      repositories.CartRepository
	products   repositories.ProductRepository
	orders     repositories.OrderRepository
	uploads    repositories.UploadRepository
	counters   repositories.CounterRepository
	payments   payments.Provider
	pricing    PricingPolicy
	unitOfWork repositories.UnitOfWork
	now        func() time.Time
	newID      func() string
	events     orderEventEmitter
	logger     func(context.Context, string, map[string]any)
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	switch {
	case deps.Carts == nil:
		return nil, errors.New("checkout service: cart repository is required")
	case deps.Products == nil:
		return nil, errors.New("checkout service: product repository is required")
	case deps.Orders == nil:
		return nil, errors.New("checkout service: order repository is required")
	case deps.Uploads == nil:
		return nil, errors.New("checkout service: upload repository is required")
	case deps.Counters == nil:
		return nil, errors.New("checkout service: counter repository is required")
	case deps.Payments == nil:
		return nil, errors.New("checkout service: payment provider is required")
	}

	pricing := deps.Pricing
	pricing.Currency = strings.ToUpper(strings.TrimSpace(pricing.Currency))
	if pricing.Currency == "" {
		pricing.Currency = "JPY"
	}
	if pricing.TaxRateBasisPoints < 0 || pricing.ShippingFee < 0 || pricing.FreeShippingThreshold < 0 {
		return nil, errors.New("checkout service: pricing values must not be negative")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
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

	return &checkoutService{
		carts:      deps.Carts,
		products:   deps.Products,
		orders:     deps.Orders,
		uploads:    deps.Uploads,
		counters:   deps.Counters,
		payments:   deps.Payments,
		pricing:    pricing,
		unitOfWork: unit,
		now: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: orderEventEmitter{publisher: deps.Events, logger: logger},
		logger: logger,
	}, nil
}

// Checkout prices the cart, creates the payment intent and stores the order as awaiting payment.
// The intent is created before anything is written so a PSP failure leaves the cart intact; an
// intent orphaned by a failed write is never confirmed and expires on the PSP side.
func (s *checkoutService) Checkout(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return CheckoutResult{}, fmt.Errorf("%w: user id is required", ErrCheckoutInvalidInput)
	}
	address, err := normalizeShippingAddress(cmd.ShippingAddress)
	if err != nil {
		return CheckoutResult{}, err
	}

	cart, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		return CheckoutResult{}, mapRepositoryError(err, nil, nil)
	}
	if len(cart.Items) == 0 {
		return CheckoutResult{}, ErrCheckoutEmptyCart
	}

	now := s.now()
	orderID := orderIDPrefix + s.newID()
	items, err := s.priceItems(ctx, cart)
	if err != nil {
		return CheckoutResult{}, err
	}
	totals := s.computeTotals(items)

	order := Order{
		ID:              orderID,
		UserID:          userID,
		Status:          domain.OrderStatusPending,
		Currency:        s.pricing.Currency,
		Totals:          totals,
		Items:           items,
		ShippingAddress: &address,
		PaymentMethod:   strings.TrimSpace(cmd.PaymentMethod),
		Notes:           textutil.SanitizeOptional(optionalString(cmd.Notes)),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if order.PaymentMethod == "" {
		order.PaymentMethod = "card"
	}

	intent, err := s.payments.CreatePaymentIntent(ctx, payments.PaymentIntentRequest{
		Amount:         totals.Total,
		Currency:       order.Currency,
		OrderID:        orderID,
		CustomerEmail:  strings.TrimSpace(cmd.Email),
		Description:    fmt.Sprintf("Order %s", orderID),
		IdempotencyKey: s.idempotencyKey(cmd, cart, totals),
	})
	if err != nil {
		s.logger(ctx, "checkout.payment_intent.failed", map[string]any{
			"userId":  userID,
			"orderId": orderID,
			"amount":  totals.Total,
			"error":   err.Error(),
		})
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return CheckoutResult{}, err
		}
		return CheckoutResult{}, fmt.Errorf("%w: %v", ErrCheckoutPaymentFailed, err)
	}

	var linked int
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		linked = 0
		links, err := s.collectUploadLinks(txCtx, userID, order, cart, now)
		if err != nil {
			return err
		}
		seq, err := s.counters.Next(txCtx, orderNumberCounter, 1)
		if err != nil {
			return mapRepositoryError(err, nil, nil)
		}
		order.OrderNumber = FormatOrderNumber(now, seq)
		order.PaymentIntentID = intent.ID
		if _, err := applyOrderTransition(&order, domain.OrderStatusAwaitingPayment, now); err != nil {
			return err
		}

		if err := s.orders.Insert(txCtx, order); err != nil {
			return mapRepositoryError(err, nil, ErrOrderConflict)
		}
		for _, link := range links {
			if err := s.uploads.LinkToOrderItem(txCtx, link); err != nil {
				return mapRepositoryError(err, ErrUploadNotFound, ErrUploadConflict)
			}
		}
		if err := s.carts.ClearCart(txCtx, userID); err != nil {
			return mapRepositoryError(err, nil, nil)
		}
		linked = len(links)
		return nil
	})
	if err != nil {
		s.logger(ctx, "checkout.persist.failed", map[string]any{
			"userId":   userID,
			"orderId":  orderID,
			"intentId": intent.ID,
			"error":    err.Error(),
		})
		return CheckoutResult{}, err
	}

	s.events.publish(ctx, OrderEvent{
		Type:          "order.created",
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		CurrentStatus: string(domain.OrderStatusPending),
		ActorID:       userID,
		OccurredAt:    now,
		Metadata: map[string]any{
			"total":    totals.Total,
			"currency": order.Currency,
			"items":    len(order.Items),
		},
	})
	s.events.statusChanged(ctx, order, domain.OrderStatusPending, domain.OrderStatusAwaitingPayment, userID, now, map[string]any{
		"paymentIntentId": intent.ID,
	})
	s.logger(ctx, "checkout.completed", map[string]any{
		"userId":      userID,
		"orderId":     order.ID,
		"orderNumber": order.OrderNumber,
		"total":       totals.Total,
		"linkedFiles": linked,
	})

	return CheckoutResult{
		Order:        order,
		ClientSecret: intent.ClientSecret,
		LinkedFiles:  linked,
	}, nil
}

// priceItems snapshots every cart line against the current catalog.
func (s *checkoutService) priceItems(ctx context.Context, cart Cart) ([]OrderItem, error) {
	items := make([]OrderItem, 0, len(cart.Items))
	for idx, line := range cart.Items {
		if line.Quantity <= 0 || line.Quantity > maxCartItemQty {
			return nil, fmt.Errorf("%w: item %s has invalid quantity %d", ErrCheckoutInvalidInput, line.ID, line.Quantity)
		}
		product, err := s.products.FindByID(ctx, line.ProductID)
		if err != nil {
			mapped := mapRepositoryError(err, ErrCheckoutProductUnavailable, nil)
			if errors.Is(mapped, ErrCheckoutProductUnavailable) {
				return nil, fmt.Errorf("%w: %s", ErrCheckoutProductUnavailable, line.ProductID)
			}
			return nil, mapped
		}
		if !product.Active {
			return nil, fmt.Errorf("%w: %s is no longer sold", ErrCheckoutProductUnavailable, product.ID)
		}
		if !strings.EqualFold(product.Currency, s.pricing.Currency) {
			return nil, fmt.Errorf("%w: %s is priced in %s", ErrCheckoutProductUnavailable, product.ID, product.Currency)
		}
		if product.Stock != nil && *product.Stock < line.Quantity {
			return nil, fmt.Errorf("%w: %s has %d in stock", ErrCheckoutProductUnavailable, product.ID, *product.Stock)
		}

		itemID := line.ID
		if strings.TrimSpace(itemID) == "" {
			itemID = fmt.Sprintf("%s%02d", orderItemIDPrefix, idx+1)
		}
		items = append(items, OrderItem{
			ID:             itemID,
			ProductID:      product.ID,
			ProductName:    product.Name,
			UnitPrice:      product.Price,
			Quantity:       line.Quantity,
			Subtotal:       product.Price * int64(line.Quantity),
			RequiresUpload: product.RequiresUpload,
			Options:        maps.Clone(line.Options),
		})
	}
	return items, nil
}

func (s *checkoutService) computeTotals(items []OrderItem) OrderTotals {
	var subtotal int64
	for _, item := range items {
		subtotal += item.Subtotal
	}
	tax := (subtotal*s.pricing.TaxRateBasisPoints + 5000) / 10000
	shipping := s.pricing.ShippingFee
	if s.pricing.FreeShippingThreshold > 0 && subtotal >= s.pricing.FreeShippingThreshold {
		shipping = 0
	}
	return OrderTotals{
		Subtotal:    subtotal,
		Tax:         tax,
		ShippingFee: shipping,
		Total:       subtotal + tax + shipping,
	}
}

// collectUploadLinks reads every upload referenced by the cart. Uploads owned by someone else
// abort the checkout; uploads that already left pending are skipped. The n-th file of a line is
// assigned to unit n of the item, and surplus files share the last unit.
func (s *checkoutService) collectUploadLinks(ctx context.Context, userID string, order Order, cart Cart, now time.Time) ([]repositories.UploadLink, error) {
	var links []repositories.UploadLink
	seen := make(map[string]bool)
	for idx, line := range cart.Items {
		item := order.Items[idx]
		unit := 0
		for _, uploadID := range uniqueIDs(line.UploadIDs) {
			if seen[uploadID] {
				continue
			}
			seen[uploadID] = true
			upload, err := s.uploads.FindByID(ctx, uploadID)
			if err != nil {
				return nil, mapRepositoryError(err, ErrUploadNotFound, nil)
			}
			ok, err := checkLinkable(upload, userID)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			links = append(links, repositories.UploadLink{
				UploadID:      upload.ID,
				OrderID:       order.ID,
				OrderItemID:   item.ID,
				QuantityIndex: min(unit, max(item.Quantity-1, 0)),
				Status:        domain.UploadStatusSubmitted,
				UpdatedAt:     now,
			})
			unit++
		}
	}
	return links, nil
}

// idempotencyKey prefers the client supplied key and otherwise derives one from the cart revision.
func (s *checkoutService) idempotencyKey(cmd CheckoutCommand, cart Cart, totals OrderTotals) string {
	if key := strings.TrimSpace(cmd.IdempotencyKey); key != "" {
		return "checkout:" + key
	}
	base := fmt.Sprintf("%s|%s|%d", cart.UserID, cart.UpdatedAt.UTC().Format(time.RFC3339Nano), totals.Total)
	sum := sha256.Sum256([]byte(base))
	return "checkout:" + hex.EncodeToString(sum[:])
}

func (s *checkoutService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

// FormatOrderNumber renders the customer facing order number for a sequence value.
func FormatOrderNumber(at time.Time, seq int64) string {
	return fmt.Sprintf("AC-%04d-%06d", at.UTC().Year(), seq)
}

func normalizeShippingAddress(addr Address) (Address, error) {
	out := Address{
		Recipient:  textutil.SanitizePlainText(addr.Recipient),
		Line1:      textutil.SanitizePlainText(addr.Line1),
		Line2:      textutil.SanitizeOptional(addr.Line2),
		City:       textutil.SanitizePlainText(addr.City),
		State:      textutil.SanitizeOptional(addr.State),
		PostalCode: strings.TrimSpace(addr.PostalCode),
		Country:    strings.ToUpper(strings.TrimSpace(addr.Country)),
		Phone:      textutil.SanitizeOptional(addr.Phone),
	}
	var missing []string
	if out.Recipient == "" {
		missing = append(missing, "recipient")
	}
	if out.Line1 == "" {
		missing = append(missing, "line1")
	}
	if out.City == "" {
		missing = append(missing, "city")
	}
	if out.PostalCode == "" {
		missing = append(missing, "postalCode")
	}
	if len(out.Country) != 2 {
		missing = append(missing, "country")
	}
	if len(missing) > 0 {
		return Address{}, fmt.Errorf("%w: shipping address missing %s", ErrCheckoutInvalidInput, strings.Join(missing, ", "))
	}
	return out, nil
}
