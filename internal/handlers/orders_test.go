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

func TestOrderHandlersListScopesToOwner(t *testing.T) {
	var captured services.OrderListFilter
	orders := &stubOrderService{
		listFunc: func(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
			captured = filter
			return domain.CursorPage[services.Order]{Items: []services.Order{checkoutOrder()}, NextPageToken: "n2"}, nil
		},
	}
	routes := NewOrderHandlers(nil, orders).Routes

	rr := serve(t, "/me", routes, customerIdentity, http.MethodGet, "/me/orders?status=paid,awaiting_data&status=paid&page_size=5", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.UserID != "user-1" || captured.Pagination.PageSize != 5 {
		t.Fatalf("unexpected filter %#v", captured)
	}
	// legacy values map onto the unified vocabulary and duplicates collapse
	want := []services.OrderStatus{domain.OrderStatusPaid, domain.OrderStatusRevisionRequired}
	if len(captured.Status) != len(want) || captured.Status[0] != want[0] || captured.Status[1] != want[1] {
		t.Fatalf("expected statuses %v, got %v", want, captured.Status)
	}
	resp := decodeBody[orderListResponse](t, rr)
	if len(resp.Items) != 1 || resp.Items[0].AdminNotes != "" || resp.NextPageToken != "n2" {
		t.Fatalf("unexpected response %#v", resp)
	}

	rr = serve(t, "/me", routes, customerIdentity, http.MethodGet, "/me/orders?status=teleported", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rr.Code)
	}
}

func TestOrderHandlersGetUsesOwnerScope(t *testing.T) {
	orders := &stubOrderService{
		getFunc: func(ctx context.Context, orderID string, opts services.OrderReadOptions) (services.Order, error) {
			if opts.OwnerID != "user-1" {
				t.Fatalf("expected owner scope, got %#v", opts)
			}
			if orderID == "ord_other" {
				return services.Order{}, fmt.Errorf("%w: %s", services.ErrOrderNotFound, orderID)
			}
			paid := time.Date(2025, 6, 1, 12, 5, 0, 0, time.UTC)
			order := checkoutOrder()
			order.Status = domain.OrderStatusPaid
			order.PaidAt = &paid
			return order, nil
		},
	}
	routes := NewOrderHandlers(nil, orders).Routes

	rr := serve(t, "/me", routes, customerIdentity, http.MethodGet, "/me/orders/ord_1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	resp := decodeBody[orderPayload](t, rr)
	if resp.Status != "paid" || resp.PaidAt != "2025-06-01T12:05:00Z" {
		t.Fatalf("unexpected payload %#v", resp)
	}

	rr = serve(t, "/me", routes, customerIdentity, http.MethodGet, "/me/orders/ord_other", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another user's order, got %d", rr.Code)
	}
}

func TestOrderHandlersCancel(t *testing.T) {
	var captured services.CancelOrderCommand
	orders := &stubOrderService{
		cancelFunc: func(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
			captured = cmd
			if cmd.OrderID == "ord_shipped" {
				return services.Order{}, fmt.Errorf("%w: order status %q cannot be cancelled", services.ErrOrderInvalidTransition, "shipped")
			}
			order := checkoutOrder()
			order.Status = domain.OrderStatusCancelled
			return order, nil
		},
	}
	routes := NewOrderHandlers(nil, orders).Routes

	rr := serve(t, "/me", routes, customerIdentity, http.MethodPost, "/me/orders/ord_1:cancel", map[string]any{"reason": "changed my mind", "expectedStatus": "awaiting_payment"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_1" || captured.OwnerID != "user-1" || captured.ActorID != "user-1" {
		t.Fatalf("unexpected command %#v", captured)
	}
	if captured.ExpectedStatus == nil || *captured.ExpectedStatus != domain.OrderStatusAwaitingPayment {
		t.Fatalf("expected status precondition, got %#v", captured.ExpectedStatus)
	}

	// body is optional
	rr = serve(t, "/me", routes, customerIdentity, http.MethodPost, "/me/orders/ord_shipped:cancel", nil)
	if rr.Code != http.StatusConflict || errorCode(t, rr) != "invalid_transition" {
		t.Fatalf("expected 409 invalid_transition, got %d %s", rr.Code, rr.Body.String())
	}

	rr = serve(t, "/me", routes, customerIdentity, http.MethodPost, "/me/orders/ord_1:cancel", map[string]any{"expectedStatus": "bogus"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown expected status, got %d", rr.Code)
	}
}
