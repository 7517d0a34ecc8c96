package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	domain "github.com/acrylicworks/api/internal/domain"
	"github.com/acrylicworks/api/internal/platform/textutil"
	"github.com/acrylicworks/api/internal/repositories"
)

const (
	orderEventStatusChanged = "order.status.changed"
	orderEventNotesUpdated  = "order.admin_notes.updated"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidTransition indicates the requested status change is not permitted.
	ErrOrderInvalidTransition = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates optimistic concurrency conflicts or duplicates.
	ErrOrderConflict = errors.New("order: conflict")
)

var orderStateTransitions = map[OrderStatus][]OrderStatus{
	domain.OrderStatusPending:          {domain.OrderStatusAwaitingPayment, domain.OrderStatusCancelled},
	domain.OrderStatusAwaitingPayment:  {domain.OrderStatusPaid, domain.OrderStatusCancelled},
	domain.OrderStatusPaid:             {domain.OrderStatusRevisionRequired, domain.OrderStatusReviewing, domain.OrderStatusConfirmed, domain.OrderStatusCancelled},
	domain.OrderStatusRevisionRequired: {domain.OrderStatusReviewing},
	domain.OrderStatusReviewing:        {domain.OrderStatusConfirmed, domain.OrderStatusRevisionRequired},
	domain.OrderStatusConfirmed:        {domain.OrderStatusProcessing},
	domain.OrderStatusProcessing:       {domain.OrderStatusShipped},
	domain.OrderStatusShipped:          {domain.OrderStatusDelivered},
}

var cancellableStatuses = []OrderStatus{
	domain.OrderStatusPending,
	domain.OrderStatusAwaitingPayment,
	domain.OrderStatusPaid,
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Coordinator UploadReviewCoordinator
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders      repositories.OrderRepository
	coordinator UploadReviewCoordinator
	unitOfWork  repositories.UnitOfWork
	clock       func() time.Time
	events      orderEventEmitter
	logger      func(context.Context, string, map[string]any)
}

var _ OrderService = (*orderService)(nil)

// orderStatusChange records one applied edge of the transition table.
type orderStatusChange struct {
	from OrderStatus
	to   OrderStatus
}

// orderMutation edits a freshly loaded order inside the transaction and reports the status
// edges it applied.
type orderMutation func(ctx context.Context, order *Order, now time.Time) ([]orderStatusChange, error)

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}

	return &orderService{
		orders:      deps.Orders,
		coordinator: deps.Coordinator,
		unitOfWork:  unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		events: orderEventEmitter{publisher: deps.Events, logger: logger},
		logger: logger,
	}, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string, opts OrderReadOptions) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if owner := strings.TrimSpace(opts.OwnerID); owner != "" && order.UserID != owner {
		return Order{}, fmt.Errorf("%w: order %s", ErrOrderNotFound, orderID)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	filter.UserID = strings.TrimSpace(filter.UserID)
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error) {
	target, ok := domain.ParseOrderStatus(string(cmd.TargetStatus))
	if !ok {
		return Order{}, fmt.Errorf("%w: unknown target status %q", ErrOrderInvalidInput, cmd.TargetStatus)
	}

	switch target {
	case domain.OrderStatusShipped:
		return Order{}, fmt.Errorf("%w: shipping requires a tracking number, use ship", ErrOrderInvalidInput)
	case domain.OrderStatusCancelled:
		return s.Cancel(ctx, CancelOrderCommand{
			OrderID:        cmd.OrderID,
			ActorID:        cmd.ActorID,
			Reason:         cmd.Reason,
			ExpectedStatus: cmd.ExpectedStatus,
		})
	case domain.OrderStatusPaid:
		return s.markPaid(ctx, MarkOrderPaidCommand{OrderID: cmd.OrderID, ActorID: cmd.ActorID}, cmd.ExpectedStatus)
	}

	metadata := map[string]any{}
	if reason := textutil.SanitizePlainText(cmd.Reason); reason != "" {
		metadata["reason"] = reason
	}

	return s.mutate(ctx, cmd.OrderID, "", cmd.ExpectedStatus, cmd.ActorID, metadata,
		func(_ context.Context, order *Order, now time.Time) ([]orderStatusChange, error) {
			prev, err := applyOrderTransition(order, target, now)
			if err != nil {
				return nil, err
			}
			return []orderStatusChange{{from: prev, to: target}}, nil
		})
}

// MarkPaid records a payment and immediately routes the order through the upload review gate.
func (s *orderService) MarkPaid(ctx context.Context, cmd MarkOrderPaidCommand) (Order, error) {
	return s.markPaid(ctx, cmd, nil)
}

func (s *orderService) markPaid(ctx context.Context, cmd MarkOrderPaidCommand, expected *OrderStatus) (Order, error) {
	intentID := strings.TrimSpace(cmd.IntentID)
	metadata := map[string]any{"source": "manual"}
	if intentID != "" {
		metadata["paymentIntentId"] = intentID
	}

	return s.mutate(ctx, cmd.OrderID, "", expected, cmd.ActorID, metadata,
		func(txCtx context.Context, order *Order, now time.Time) ([]orderStatusChange, error) {
			return markOrderPaid(txCtx, s.coordinator, order, intentID, now)
		})
}

func (s *orderService) Ship(ctx context.Context, cmd ShipOrderCommand) (Order, error) {
	tracking := textutil.SanitizePlainText(cmd.TrackingNumber)
	if tracking == "" {
		return Order{}, fmt.Errorf("%w: tracking number is required", ErrOrderInvalidInput)
	}
	carrier := textutil.SanitizePlainText(cmd.Carrier)

	metadata := map[string]any{"trackingNumber": tracking}
	if carrier != "" {
		metadata["carrier"] = carrier
	}

	return s.mutate(ctx, cmd.OrderID, "", nil, cmd.ActorID, metadata,
		func(_ context.Context, order *Order, now time.Time) ([]orderStatusChange, error) {
			var changes []orderStatusChange
			switch order.Status {
			case domain.OrderStatusConfirmed:
				if _, err := applyOrderTransition(order, domain.OrderStatusProcessing, now); err != nil {
					return nil, err
				}
				changes = append(changes, orderStatusChange{from: domain.OrderStatusConfirmed, to: domain.OrderStatusProcessing})
			case domain.OrderStatusProcessing:
			default:
				return nil, fmt.Errorf("%w: ship requires confirmed or processing, order is %s", ErrOrderInvalidTransition, order.Status)
			}

			order.TrackingNumber = &tracking
			order.Carrier = optionalString(carrier)
			if _, err := applyOrderTransition(order, domain.OrderStatusShipped, now); err != nil {
				return nil, err
			}
			return append(changes, orderStatusChange{from: domain.OrderStatusProcessing, to: domain.OrderStatusShipped}), nil
		})
}

func (s *orderService) Deliver(ctx context.Context, cmd DeliverOrderCommand) (Order, error) {
	return s.mutate(ctx, cmd.OrderID, "", nil, cmd.ActorID, nil,
		func(_ context.Context, order *Order, now time.Time) ([]orderStatusChange, error) {
			prev, err := applyOrderTransition(order, domain.OrderStatusDelivered, now)
			if err != nil {
				return nil, err
			}
			return []orderStatusChange{{from: prev, to: domain.OrderStatusDelivered}}, nil
		})
}

func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	reason := textutil.SanitizePlainText(cmd.Reason)
	metadata := map[string]any{}
	if reason != "" {
		metadata["reason"] = reason
	}

	return s.mutate(ctx, cmd.OrderID, cmd.OwnerID, cmd.ExpectedStatus, cmd.ActorID, metadata,
		func(_ context.Context, order *Order, now time.Time) ([]orderStatusChange, error) {
			if !slices.Contains(cancellableStatuses, order.Status) {
				return nil, fmt.Errorf("%w: order status %q cannot be cancelled", ErrOrderInvalidTransition, order.Status)
			}
			order.CancelReason = optionalString(reason)
			prev, err := applyOrderTransition(order, domain.OrderStatusCancelled, now)
			if err != nil {
				return nil, err
			}
			return []orderStatusChange{{from: prev, to: domain.OrderStatusCancelled}}, nil
		})
}

func (s *orderService) UpdateAdminNotes(ctx context.Context, cmd UpdateAdminNotesCommand) (Order, error) {
	notes := textutil.SanitizePlainText(cmd.Notes)
	order, err := s.mutate(ctx, cmd.OrderID, "", nil, cmd.ActorID, nil,
		func(_ context.Context, order *Order, now time.Time) ([]orderStatusChange, error) {
			order.AdminNotes = optionalString(notes)
			order.UpdatedAt = now
			return nil, nil
		})
	if err != nil {
		return Order{}, err
	}
	s.events.publish(ctx, OrderEvent{
		Type:          orderEventNotesUpdated,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		CurrentStatus: string(order.Status),
		ActorID:       strings.TrimSpace(cmd.ActorID),
		OccurredAt:    order.UpdatedAt,
	})
	return order, nil
}

// mutate loads the order inside a transaction, applies fn and persists the result with a single
// write. Status change events are published after the transaction commits.
func (s *orderService) mutate(ctx context.Context, orderID, ownerID string, expected *OrderStatus, actorID string, metadata map[string]any, fn orderMutation) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	ownerID = strings.TrimSpace(ownerID)

	now := s.now()
	var (
		updated Order
		changes []orderStatusChange
	)
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if ownerID != "" && order.UserID != ownerID {
			return fmt.Errorf("%w: order %s", ErrOrderNotFound, orderID)
		}
		if expected != nil && order.Status != *expected {
			return fmt.Errorf("%w: expected status %q but was %q", ErrOrderConflict, *expected, order.Status)
		}

		applied, err := fn(txCtx, &order, now)
		if err != nil {
			return err
		}
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		updated = order
		changes = applied
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	actor := strings.TrimSpace(actorID)
	for _, change := range changes {
		s.events.statusChanged(ctx, updated, change.from, change.to, actor, now, metadata)
		s.logger(ctx, "order.status.transition", map[string]any{
			"orderId": updated.ID,
			"from":    string(change.from),
			"to":      string(change.to),
			"actorId": actor,
		})
	}
	return updated, nil
}

func (s *orderService) mapRepositoryError(err error) error {
	return mapRepositoryError(err, ErrOrderNotFound, ErrOrderConflict)
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

// markOrderPaid moves an order to paid and lets the coordinator route it onwards. The order is
// only mutated in memory; the caller persists it.
func markOrderPaid(ctx context.Context, coordinator UploadReviewCoordinator, order *Order, intentID string, now time.Time) ([]orderStatusChange, error) {
	prev, err := applyOrderTransition(order, domain.OrderStatusPaid, now)
	if err != nil {
		return nil, err
	}
	if intentID != "" && order.PaymentIntentID == "" {
		order.PaymentIntentID = intentID
	}
	changes := []orderStatusChange{{from: prev, to: domain.OrderStatusPaid}}
	if coordinator == nil {
		return changes, nil
	}

	outcome, err := coordinator.OnPaid(ctx, order)
	if err != nil {
		return nil, err
	}
	if outcome.Advanced {
		changes = append(changes, orderStatusChange{from: outcome.PreviousStatus, to: outcome.NewStatus})
	}
	return changes, nil
}

// applyOrderTransition validates target against the transition table, then updates the status and
// its timestamp. The order is left untouched when the transition is rejected.
func applyOrderTransition(order *Order, target OrderStatus, now time.Time) (OrderStatus, error) {
	current := order.Status
	if !canTransition(current, target) {
		return current, fmt.Errorf("%w: %s -> %s", ErrOrderInvalidTransition, current, target)
	}

	order.Status = target
	order.UpdatedAt = now
	stampStatusTimestamp(order, target, now)
	return current, nil
}

func stampStatusTimestamp(order *Order, status OrderStatus, now time.Time) {
	switch status {
	case domain.OrderStatusPaid:
		order.PaidAt = &now
	case domain.OrderStatusConfirmed:
		order.ConfirmedAt = &now
	case domain.OrderStatusShipped:
		order.ShippedAt = &now
	case domain.OrderStatusDelivered:
		order.DeliveredAt = &now
	case domain.OrderStatusCancelled:
		if order.CancelledAt == nil {
			order.CancelledAt = &now
		}
	}
}

func canTransition(current, target OrderStatus) bool {
	next, ok := orderStateTransitions[current]
	if !ok {
		return false
	}
	return slices.Contains(next, target)
}

// orderEventEmitter publishes order events on a best-effort basis; failures are logged.
type orderEventEmitter struct {
	publisher OrderEventPublisher
	logger    func(context.Context, string, map[string]any)
}

func (e orderEventEmitter) statusChanged(ctx context.Context, order Order, from, to OrderStatus, actorID string, at time.Time, metadata map[string]any) {
	e.publish(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		UserID:         order.UserID,
		PreviousStatus: string(from),
		CurrentStatus:  string(to),
		ActorID:        actorID,
		OccurredAt:     at,
		Metadata:       metadata,
	})
}

func (e orderEventEmitter) outcome(ctx context.Context, outcome CoordinatorOutcome, userID, actorID string, at time.Time) {
	if !outcome.Advanced {
		return
	}
	e.publish(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        outcome.OrderID,
		OrderNumber:    outcome.OrderNumber,
		UserID:         userID,
		PreviousStatus: string(outcome.PreviousStatus),
		CurrentStatus:  string(outcome.NewStatus),
		ActorID:        actorID,
		OccurredAt:     at,
		Metadata:       map[string]any{"source": "upload_review"},
	})
}

func (e orderEventEmitter) publish(ctx context.Context, event OrderEvent) {
	if e.publisher == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := e.publisher.PublishOrderEvent(ctx, event); err != nil && e.logger != nil {
		e.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	ref := v
	return &ref
}

func valuePtr[T any](v T) *T {
	return &v
}
