package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/acrylicworks/api/internal/domain"
	"github.com/acrylicworks/api/internal/platform/auth"
	"github.com/acrylicworks/api/internal/platform/idempotency"
	"github.com/acrylicworks/api/internal/services"
)

var checkoutBody = map[string]any{
	"shippingAddress": map[string]any{
		"recipient":  "Mika Tanaka",
		"line1":      "1-2-3 Jingumae",
		"city":       "Shibuya",
		"postalCode": "150-0001",
		"country":    "JP",
	},
	"paymentMethod": "card",
	"notes":         "leave at door",
}

func checkoutOrder() services.Order {
	note := "internal"
	return services.Order{
		ID:          "ord_1",
		OrderNumber: "AC-2025-000001",
		UserID:      "user-1",
		Status:      domain.OrderStatusAwaitingPayment,
		Currency:    "JPY",
		Totals:      services.OrderTotals{Subtotal: 4900, Tax: 490, ShippingFee: 500, Total: 5890},
		AdminNotes:  &note,
		CreatedAt:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestCheckoutHandlersCheckout(t *testing.T) {
	var captured services.CheckoutCommand
	checkout := &stubCheckoutService{
		checkoutFunc: func(ctx context.Context, cmd services.CheckoutCommand) (services.CheckoutResult, error) {
			captured = cmd
			return services.CheckoutResult{Order: checkoutOrder(), ClientSecret: "pi_1_secret", LinkedFiles: 2}, nil
		},
	}
	var ensured services.EnsureCustomerCommand
	customers := &stubCustomerService{
		ensureFunc: func(ctx context.Context, cmd services.EnsureCustomerCommand) (services.Customer, error) {
			ensured = cmd
			return services.Customer{ID: cmd.UserID}, nil
		},
	}
	routes := NewCheckoutHandlers(nil, checkout, WithCheckoutCustomers(customers)).Routes

	router := chi.NewRouter()
	router.Route("/me", routes)
	raw, _ := json.Marshal(checkoutBody)
	req := httptest.NewRequest(http.MethodPost, "/me/checkout", bytes.NewReader(raw))
	req.Header.Set(idempotencyKeyHeader, " key-1 ")
	req = req.WithContext(auth.WithIdentity(req.Context(), customerIdentity))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.UserID != "user-1" || captured.Email != "mika@example.com" || captured.IdempotencyKey != "key-1" {
		t.Fatalf("unexpected command %#v", captured)
	}
	if captured.ShippingAddress.PostalCode != "150-0001" || captured.PaymentMethod != "card" {
		t.Fatalf("unexpected address or method %#v", captured)
	}
	if ensured.UserID != "user-1" || ensured.DisplayName != "Mika" {
		t.Fatalf("expected customer sync from token, got %#v", ensured)
	}
	resp := decodeBody[checkoutResponse](t, rr)
	if resp.ClientSecret != "pi_1_secret" || resp.LinkedFiles != 2 || resp.Order.Totals.Total != 5890 {
		t.Fatalf("unexpected response %#v", resp)
	}
	if resp.Order.AdminNotes != "" {
		t.Fatalf("admin notes must not reach the storefront")
	}
}

func TestCheckoutHandlersCustomerSyncFailureDoesNotBlock(t *testing.T) {
	checkout := &stubCheckoutService{
		checkoutFunc: func(ctx context.Context, cmd services.CheckoutCommand) (services.CheckoutResult, error) {
			return services.CheckoutResult{Order: checkoutOrder()}, nil
		},
	}
	customers := &stubCustomerService{
		ensureFunc: func(ctx context.Context, cmd services.EnsureCustomerCommand) (services.Customer, error) {
			return services.Customer{}, services.ErrServiceUnavailable
		},
	}
	rr := serve(t, "/me", NewCheckoutHandlers(nil, checkout, WithCheckoutCustomers(customers)).Routes, customerIdentity, http.MethodPost, "/me/checkout", checkoutBody)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
}

func TestCheckoutHandlersErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     any
		svcErr   error
		wantCode int
		wantErr  string
	}{
		{name: "missing address", body: map[string]any{"paymentMethod": "card"}, wantCode: http.StatusBadRequest, wantErr: "invalid_request"},
		{name: "empty cart", body: checkoutBody, svcErr: services.ErrCheckoutEmptyCart, wantCode: http.StatusConflict, wantErr: "cart_empty"},
		{name: "invalid address", body: checkoutBody, svcErr: errors.Join(services.ErrCheckoutInvalidInput, errors.New("line1")), wantCode: http.StatusBadRequest, wantErr: "invalid_request"},
		{name: "psp failure", body: checkoutBody, svcErr: services.ErrCheckoutPaymentFailed, wantCode: http.StatusBadGateway, wantErr: "payment_failed"},
		{name: "foreign upload", body: checkoutBody, svcErr: services.ErrUploadPermissionDenied, wantCode: http.StatusForbidden, wantErr: "permission_denied"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			checkout := &stubCheckoutService{
				checkoutFunc: func(ctx context.Context, cmd services.CheckoutCommand) (services.CheckoutResult, error) {
					return services.CheckoutResult{}, tc.svcErr
				},
			}
			rr := serve(t, "/me", NewCheckoutHandlers(nil, checkout).Routes, customerIdentity, http.MethodPost, "/me/checkout", tc.body)
			if rr.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d", tc.wantCode, rr.Code)
			}
			if code := errorCode(t, rr); code != tc.wantErr {
				t.Fatalf("expected %s, got %q", tc.wantErr, code)
			}
		})
	}
}

func TestCheckoutHandlersReplaysIdempotentRequest(t *testing.T) {
	calls := 0
	checkout := &stubCheckoutService{
		checkoutFunc: func(ctx context.Context, cmd services.CheckoutCommand) (services.CheckoutResult, error) {
			calls++
			return services.CheckoutResult{Order: checkoutOrder(), ClientSecret: "pi_1_secret"}, nil
		},
	}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mw := idempotency.Middleware(idempotency.NewMemoryStore(), idempotency.WithClock(func() time.Time { return now }))
	handler := NewCheckoutHandlers(nil, checkout, WithCheckoutIdempotency(mw))

	router := chi.NewRouter()
	// identity is injected ahead of the handler's own middleware, as the authenticator would
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), customerIdentity)))
		})
	})
	router.Route("/me", handler.Routes)

	raw, _ := json.Marshal(checkoutBody)
	var bodies []string
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/me/checkout", bytes.NewReader(raw))
		req.Header.Set(idempotencyKeyHeader, "key-1")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusCreated {
			t.Fatalf("attempt %d: expected 201, got %d: %s", i+1, rr.Code, rr.Body.String())
		}
		bodies = append(bodies, rr.Body.String())
	}
	if calls != 1 {
		t.Fatalf("expected a single checkout, got %d", calls)
	}
	if bodies[0] != bodies[1] {
		t.Fatalf("expected replayed body to match")
	}
}
