package services

import (
	"context"
	"slices"
	"testing"
	"time"

	domain "github.com/acrylicworks/api/internal/domain"
)

type orderHarness struct {
	store       *memStore
	events      *captureOrderEvents
	coordinator UploadReviewCoordinator
	svc         OrderService
}

func newOrderHarness(t *testing.T) *orderHarness {
	t.Helper()
	store := newMemStore()
	events := &captureOrderEvents{}
	coordinator, err := NewUploadReviewCoordinator(UploadReviewCoordinatorDeps{
		Orders:  store.Orders(),
		Uploads: store.Uploads(),
		Clock:   fixedClock,
	})
	if err != nil {
		t.Fatalf("NewUploadReviewCoordinator: %v", err)
	}
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:      store.Orders(),
		Coordinator: coordinator,
		UnitOfWork:  store,
		Clock:       fixedClock,
		Events:      events,
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	return &orderHarness{store: store, events: events, coordinator: coordinator, svc: svc}
}

func TestNewOrderServiceRequiresRepository(t *testing.T) {
	if _, err := NewOrderService(OrderServiceDeps{}); err == nil {
		t.Fatalf("expected error without order repository")
	}
}

// The allowed edges are listed literally so a change to the table shows up as a test failure.
func TestOrderTransitionTableAcceptsOnlyListedEdges(t *testing.T) {
	allowed := map[OrderStatus][]OrderStatus{
		domain.OrderStatusPending:          {domain.OrderStatusAwaitingPayment, domain.OrderStatusCancelled},
		domain.OrderStatusAwaitingPayment:  {domain.OrderStatusPaid, domain.OrderStatusCancelled},
		domain.OrderStatusPaid:             {domain.OrderStatusRevisionRequired, domain.OrderStatusReviewing, domain.OrderStatusConfirmed, domain.OrderStatusCancelled},
		domain.OrderStatusRevisionRequired: {domain.OrderStatusReviewing},
		domain.OrderStatusReviewing:        {domain.OrderStatusConfirmed, domain.OrderStatusRevisionRequired},
		domain.OrderStatusConfirmed:        {domain.OrderStatusProcessing},
		domain.OrderStatusProcessing:       {domain.OrderStatusShipped},
		domain.OrderStatusShipped:          {domain.OrderStatusDelivered},
	}

	for _, from := range domain.AllOrderStatuses() {
		for _, to := range domain.AllOrderStatuses() {
			want := slices.Contains(allowed[from], to)
			order := newOrderFixture("ord_1", from)
			before := order

			_, err := applyOrderTransition(&order, to, testNow)
			if want && err != nil {
				t.Fatalf("%s -> %s: expected allowed, got %v", from, to, err)
			}
			if !want {
				requireErrorIs(t, err, ErrOrderInvalidTransition)
				if order.Status != before.Status || !order.UpdatedAt.Equal(before.UpdatedAt) {
					t.Fatalf("%s -> %s: rejected transition mutated the order", from, to)
				}
			}
		}
	}
}

func TestOrderTransitionStampsTimestamps(t *testing.T) {
	order := newOrderFixture("ord_1", domain.OrderStatusAwaitingPayment)
	if _, err := applyOrderTransition(&order, domain.OrderStatusPaid, testNow); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if order.PaidAt == nil || !order.PaidAt.Equal(testNow) {
		t.Fatalf("expected paidAt stamped, got %v", order.PaidAt)
	}
	if !order.UpdatedAt.Equal(testNow) {
		t.Fatalf("expected updatedAt %s, got %s", testNow, order.UpdatedAt)
	}
}

func TestTerminalStatusesHaveNoOutgoingEdges(t *testing.T) {
	for _, status := range domain.AllOrderStatuses() {
		if !status.IsTerminal() {
			continue
		}
		for _, target := range domain.AllOrderStatuses() {
			if canTransition(status, target) {
				t.Fatalf("terminal status %s allows %s", status, target)
			}
		}
	}
}

func TestOrderServiceTransitionStatusPersistsAndPublishes(t *testing.T) {
	h := newOrderHarness(t)
	h.store.putOrder(newOrderFixture("ord_1", domain.OrderStatusConfirmed))

	order, err := h.svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID:      "ord_1",
		TargetStatus: domain.OrderStatusProcessing,
		ActorID:      "adm_1",
		Reason:       " <b>press booked</b> ",
	})
	if err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}
	if order.Status != domain.OrderStatusProcessing {
		t.Fatalf("expected processing, got %s", order.Status)
	}
	if stored := h.store.order("ord_1"); stored.Status != domain.OrderStatusProcessing {
		t.Fatalf("expected stored status processing, got %s", stored.Status)
	}
	if got := h.events.transitions(); !slices.Equal(got, []string{"confirmed->processing"}) {
		t.Fatalf("unexpected events %v", got)
	}
	event := h.events.events[0]
	if event.ActorID != "adm_1" || event.Metadata["reason"] != "press booked" {
		t.Fatalf("unexpected event payload %+v", event)
	}
}

func TestOrderServiceTransitionRejectsSameStatusAndLeavesOrder(t *testing.T) {
	h := newOrderHarness(t)
	h.store.putOrder(newOrderFixture("ord_1", domain.OrderStatusReviewing))

	_, err := h.svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID:      "ord_1",
		TargetStatus: domain.OrderStatusReviewing,
	})
	requireErrorIs(t, err, ErrOrderInvalidTransition)
	if stored := h.store.order("ord_1"); stored.Status != domain.OrderStatusReviewing || !stored.UpdatedAt.Equal(testNow.Add(-time.Hour)) {
		t.Fatalf("order must be unchanged, got %+v", stored)
	}
	if len(h.events.events) != 0 {
		t.Fatalf("expected no events, got %d", len(h.events.events))
	}
}

func TestOrderServiceTransitionValidation(t *testing.T) {
	h := newOrderHarness(t)
	h.store.putOrder(newOrderFixture("ord_1", domain.OrderStatusProcessing))
	ctx := context.Background()

	testCases := []struct {
		name string
		cmd  OrderStatusTransitionCommand
		want error
	}{
		{name: "unknown status", cmd: OrderStatusTransitionCommand{OrderID: "ord_1", TargetStatus: "lost"}, want: ErrOrderInvalidInput},
		{name: "shipping needs tracking", cmd: OrderStatusTransitionCommand{OrderID: "ord_1", TargetStatus: domain.OrderStatusShipped}, want: ErrOrderInvalidInput},
		{name: "missing order id", cmd: OrderStatusTransitionCommand{TargetStatus: domain.OrderStatusDelivered}, want: ErrOrderInvalidInput},
		{name: "unknown order", cmd: OrderStatusTransitionCommand{OrderID: "ord_missing", TargetStatus: domain.OrderStatusDelivered}, want: ErrOrderNotFound},
		{name: "skipping ahead", cmd: OrderStatusTransitionCommand{OrderID: "ord_1", TargetStatus: domain.OrderStatusDelivered}, want: ErrOrderInvalidTransition},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.TransitionStatus(ctx, tc.cmd)
			requireErrorIs(t, err, tc.want)
		})
	}
}

func TestOrderServiceExpectedStatusConflict(t *testing.T) {
	h := newOrderHarness(t)
	h.store.putOrder(newOrderFixture("ord_1", domain.OrderStatusConfirmed))

	_, err := h.svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID:        "ord_1",
		TargetStatus:   domain.OrderStatusProcessing,
		ExpectedStatus: valuePtr(domain.OrderStatusReviewing),
	})
	requireErrorIs(t, err, ErrOrderConflict)
}

func TestOrderServiceMarkPaidRoutesThroughCoordinator(t *testing.T) {
	testCases := []struct {
		name    string
		items   []OrderItem
		uploads []domain.Upload
		want    OrderStatus
	}{
		{
			name: "nothing to review confirms",
			want: domain.OrderStatusConfirmed,
		},
		{
			name:  "missing artwork requires revision",
			items: []OrderItem{uploadItem("itm_01")},
			want:  domain.OrderStatusRevisionRequired,
		},
		{
			name:    "linked artwork goes to review",
			items:   []OrderItem{uploadItem("itm_01")},
			uploads: []domain.Upload{newUploadFixture("upl_1", "ord_1", "itm_01", domain.UploadStatusSubmitted)},
			want:    domain.OrderStatusReviewing,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := newOrderHarness(t)
			h.store.putOrder(newOrderFixture("ord_1", domain.OrderStatusAwaitingPayment, tc.items...))
			for _, upload := range tc.uploads {
				h.store.putUpload(upload)
			}

			order, err := h.svc.MarkPaid(context.Background(), MarkOrderPaidCommand{OrderID: "ord_1", IntentID: "pi_1", ActorID: "adm_1"})
			if err != nil {
				t.Fatalf("MarkPaid: %v", err)
			}
			if order.Status != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, order.Status)
			}
			if order.PaidAt == nil || order.PaymentIntentID != "pi_1" {
				t.Fatalf("expected paid stamp and intent id, got %+v", order)
			}
			want := []string{"awaiting_payment->paid", "paid->" + string(tc.want)}
			if got := h.events.transitions(); !slices.Equal(got, want) {
				t.Fatalf("expected events %v, got %v", want, got)
			}
		})
	}
}

func TestOrderServiceShipFromConfirmedPassesThroughProcessing(t *testing.T) {
	h := newOrderHarness(t)
	h.store.putOrder(newOrderFixture("ord_1", domain.OrderStatusConfirmed))

	order, err := h.svc.Ship(context.Background(), ShipOrderCommand{OrderID: "ord_1", TrackingNumber: " JP123 ", Carrier: "yamato", ActorID: "adm_1"})
	if err != nil {
		t.Fatalf("Ship: %v", err)
	}
	if order.Status != domain.OrderStatusShipped || order.TrackingNumber == nil || *order.TrackingNumber != "JP123" {
		t.Fatalf("unexpected shipped order %+v", order)
	}
	if order.ShippedAt == nil {
		t.Fatalf("expected shippedAt")
	}
	if got := h.events.transitions(); !slices.Equal(got, []string{"confirmed->processing", "processing->shipped"}) {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestOrderServiceShipRejectsEarlyOrders(t *testing.T) {
	h := newOrderHarness(t)
	h.store.putOrder(newOrderFixture("ord_1", domain.OrderStatusReviewing))

	_, err := h.svc.Ship(context.Background(), ShipOrderCommand{OrderID: "ord_1", TrackingNumber: "JP123"})
	requireErrorIs(t, err, ErrOrderInvalidTransition)

	_, err = h.svc.Ship(context.Background(), ShipOrderCommand{OrderID: "ord_1"})
	requireErrorIs(t, err, ErrOrderInvalidInput)
}

func TestOrderServiceDeliver(t *testing.T) {
	h := newOrderHarness(t)
	h.store.putOrder(newOrderFixture("ord_1", domain.OrderStatusShipped))

	order, err := h.svc.Deliver(context.Background(), DeliverOrderCommand{OrderID: "ord_1"})
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if order.Status != domain.OrderStatusDelivered || order.DeliveredAt == nil {
		t.Fatalf("unexpected order %+v", order)
	}
}

func TestOrderServiceCancel(t *testing.T) {
	testCases := []struct {
		status OrderStatus
		want   error
	}{
		{status: domain.OrderStatusPending},
		{status: domain.OrderStatusAwaitingPayment},
		{status: domain.OrderStatusPaid},
		{status: domain.OrderStatusReviewing, want: ErrOrderInvalidTransition},
		{status: domain.OrderStatusShipped, want: ErrOrderInvalidTransition},
		{status: domain.OrderStatusCancelled, want: ErrOrderInvalidTransition},
	}
	for _, tc := range testCases {
		t.Run(string(tc.status), func(t *testing.T) {
			h := newOrderHarness(t)
			h.store.putOrder(newOrderFixture("ord_1", tc.status))

			order, err := h.svc.Cancel(context.Background(), CancelOrderCommand{OrderID: "ord_1", OwnerID: "user-1", ActorID: "user-1", Reason: "changed my mind"})
			if tc.want != nil {
				requireErrorIs(t, err, tc.want)
				if stored := h.store.order("ord_1"); stored.Status != tc.status {
					t.Fatalf("rejected cancel changed status to %s", stored.Status)
				}
				return
			}
			if err != nil {
				t.Fatalf("Cancel: %v", err)
			}
			if order.Status != domain.OrderStatusCancelled || order.CancelledAt == nil {
				t.Fatalf("unexpected order %+v", order)
			}
			if order.CancelReason == nil || *order.CancelReason != "changed my mind" {
				t.Fatalf("expected cancel reason, got %v", order.CancelReason)
			}
		})
	}
}

func TestOrderServiceCancelHidesForeignOrders(t *testing.T) {
	h := newOrderHarness(t)
	h.store.putOrder(newOrderFixture("ord_1", domain.OrderStatusPending))

	_, err := h.svc.Cancel(context.Background(), CancelOrderCommand{OrderID: "ord_1", OwnerID: "user-2"})
	requireErrorIs(t, err, ErrOrderNotFound)
	if stored := h.store.order("ord_1"); stored.Status != domain.OrderStatusPending {
		t.Fatalf("foreign cancel must not change the order")
	}
}

func TestOrderServiceGetOrderOwnerScoping(t *testing.T) {
	h := newOrderHarness(t)
	h.store.putOrder(newOrderFixture("ord_1", domain.OrderStatusPaid))
	ctx := context.Background()

	if _, err := h.svc.GetOrder(ctx, "ord_1", OrderReadOptions{OwnerID: "user-1"}); err != nil {
		t.Fatalf("owner read: %v", err)
	}
	if _, err := h.svc.GetOrder(ctx, "ord_1", OrderReadOptions{}); err != nil {
		t.Fatalf("admin read: %v", err)
	}
	_, err := h.svc.GetOrder(ctx, "ord_1", OrderReadOptions{OwnerID: "user-2"})
	requireErrorIs(t, err, ErrOrderNotFound)
}

func TestOrderServiceListOrdersFiltersByUser(t *testing.T) {
	h := newOrderHarness(t)
	h.store.putOrder(newOrderFixture("ord_1", domain.OrderStatusPaid))
	other := newOrderFixture("ord_2", domain.OrderStatusPaid)
	other.UserID = "user-2"
	h.store.putOrder(other)

	page, err := h.svc.ListOrders(context.Background(), OrderListFilter{UserID: " user-2 "})
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "ord_2" {
		t.Fatalf("unexpected page %+v", page.Items)
	}
}

func TestOrderServiceUpdateAdminNotes(t *testing.T) {
	h := newOrderHarness(t)
	h.store.putOrder(newOrderFixture("ord_1", domain.OrderStatusProcessing))

	order, err := h.svc.UpdateAdminNotes(context.Background(), UpdateAdminNotesCommand{OrderID: "ord_1", Notes: "<b>use</b> matte film", ActorID: "adm_1"})
	if err != nil {
		t.Fatalf("UpdateAdminNotes: %v", err)
	}
	if order.AdminNotes == nil || *order.AdminNotes != "use matte film" {
		t.Fatalf("expected sanitized notes, got %v", order.AdminNotes)
	}
	if order.Status != domain.OrderStatusProcessing {
		t.Fatalf("notes must not change status")
	}
	if len(h.events.events) != 1 || h.events.events[0].Type != orderEventNotesUpdated {
		t.Fatalf("expected notes event, got %+v", h.events.events)
	}
}

func TestOrderServiceMapsUnavailableRepository(t *testing.T) {
	h := newOrderHarness(t)
	h.store.putOrder(newOrderFixture("ord_1", domain.OrderStatusConfirmed))
	h.store.failWith("orders.Update", errUnavailable)

	_, err := h.svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{OrderID: "ord_1", TargetStatus: domain.OrderStatusProcessing})
	requireErrorIs(t, err, ErrServiceUnavailable)
	if len(h.events.events) != 0 {
		t.Fatalf("failed writes must not publish events")
	}
}

func TestOrderEventPublishFailureDoesNotFailCommand(t *testing.T) {
	h := newOrderHarness(t)
	h.store.putOrder(newOrderFixture("ord_1", domain.OrderStatusConfirmed))
	h.events.err = errUnavailable
	logs := &captureLogger{}
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:     h.store.Orders(),
		UnitOfWork: h.store,
		Clock:      fixedClock,
		Events:     h.events,
		Logger:     logs.log,
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	if _, err := svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{OrderID: "ord_1", TargetStatus: domain.OrderStatusProcessing}); err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}
	if !logs.has("order.event.publish.failed") {
		t.Fatalf("expected publish failure to be logged, got %v", logs.events)
	}
}
