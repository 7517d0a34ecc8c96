package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/acrylicworks/api/internal/domain"
	"github.com/acrylicworks/api/internal/payments"
	"github.com/acrylicworks/api/internal/repositories"
)

// ErrPaymentEventInvalid indicates a webhook event lacks the identifiers needed to locate an order.
var ErrPaymentEventInvalid = errors.New("payment: invalid event")

// PaymentEventHandlerDeps bundles collaborators for the webhook event handler.
type PaymentEventHandlerDeps struct {
	Orders      repositories.OrderRepository
	Customers   repositories.CustomerRepository
	Coordinator UploadReviewCoordinator
	Notifier    OrderNotifier
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type paymentEventHandler struct {
	orders      repositories.OrderRepository
	customers   repositories.CustomerRepository
	coordinator UploadReviewCoordinator
	notifier    OrderNotifier
	unitOfWork  repositories.UnitOfWork
	clock       func() time.Time
	events      orderEventEmitter
	logger      func(context.Context, string, map[string]any)
}

var _ PaymentEventHandler = (*paymentEventHandler)(nil)

// NewPaymentEventHandler constructs the handler applying PSP events to orders.
func NewPaymentEventHandler(deps PaymentEventHandlerDeps) (PaymentEventHandler, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment event handler: order repository is required")
	}
	if deps.Coordinator == nil {
		return nil, errors.New("payment event handler: coordinator is required")
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
	return &paymentEventHandler{
		orders:      deps.Orders,
		customers:   deps.Customers,
		coordinator: deps.Coordinator,
		notifier:    deps.Notifier,
		unitOfWork:  unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		events: orderEventEmitter{publisher: deps.Events, logger: logger},
		logger: logger,
	}, nil
}

func (h *paymentEventHandler) Handle(ctx context.Context, event payments.Event) (PaymentEventResult, error) {
	switch e := event.(type) {
	case payments.PaymentSucceeded:
		return h.handleSucceeded(ctx, e)
	case payments.PaymentFailed:
		h.logger(ctx, "payments.webhook.payment_failed", map[string]any{
			"eventId":  e.ID,
			"intentId": e.IntentID,
			"orderId":  e.OrderID,
			"amount":   e.Amount,
			"currency": e.Currency,
			"failure":  e.FailureMessage,
		})
		return PaymentEventResult{Outcome: PaymentOutcomeLogged, OrderID: e.OrderID}, nil
	case payments.PaymentRefunded:
		h.logger(ctx, "payments.webhook.refunded", map[string]any{
			"eventId":  e.ID,
			"chargeId": e.ChargeID,
			"intentId": e.IntentID,
			"orderId":  e.OrderID,
			"amount":   e.AmountRefunded,
			"currency": e.Currency,
		})
		return PaymentEventResult{Outcome: PaymentOutcomeLogged, OrderID: e.OrderID}, nil
	case payments.IgnoredEvent:
		h.logger(ctx, "payments.webhook.ignored", map[string]any{
			"eventId": e.ID,
			"type":    e.Type,
		})
		return PaymentEventResult{Outcome: PaymentOutcomeIgnored}, nil
	case nil:
		return PaymentEventResult{}, fmt.Errorf("%w: event is required", ErrPaymentEventInvalid)
	default:
		return PaymentEventResult{}, fmt.Errorf("%w: unsupported event %T", ErrPaymentEventInvalid, event)
	}
}

// handleSucceeded marks the order paid and routes it. Redelivered events for orders that already
// left awaiting payment are acknowledged without writes or notifications.
func (h *paymentEventHandler) handleSucceeded(ctx context.Context, event payments.PaymentSucceeded) (PaymentEventResult, error) {
	orderID := strings.TrimSpace(event.OrderID)
	intentID := strings.TrimSpace(event.IntentID)
	if orderID == "" && intentID == "" {
		return PaymentEventResult{}, fmt.Errorf("%w: order id and payment intent id are missing", ErrPaymentEventInvalid)
	}

	now := h.clock()
	var (
		result  PaymentEventResult
		order   Order
		changes []orderStatusChange
	)
	err := h.runInTx(ctx, func(txCtx context.Context) error {
		changes = nil
		found, err := h.findOrder(txCtx, orderID, intentID)
		if err != nil {
			return err
		}
		if alreadyPaid(found.Status) {
			order = found
			result = PaymentEventResult{
				Outcome: PaymentOutcomeAlreadyProcessed,
				OrderID: found.ID,
				Status:  found.Status,
			}
			return nil
		}

		var applied []orderStatusChange
		if found.Status == domain.OrderStatusPending {
			// the webhook can overtake the checkout step that records the intent
			if _, err := applyOrderTransition(&found, domain.OrderStatusAwaitingPayment, now); err != nil {
				return err
			}
			applied = append(applied, orderStatusChange{from: domain.OrderStatusPending, to: domain.OrderStatusAwaitingPayment})
		}
		paid, err := markOrderPaid(txCtx, h.coordinator, &found, intentID, now)
		if err != nil {
			return err
		}
		applied = append(applied, paid...)
		if err := h.orders.Update(txCtx, found); err != nil {
			return mapRepositoryError(err, ErrOrderNotFound, ErrOrderConflict)
		}

		order = found
		changes = applied
		result = PaymentEventResult{
			Outcome: PaymentOutcomeApplied,
			OrderID: found.ID,
			Status:  found.Status,
		}
		if last := applied[len(applied)-1]; last.from == domain.OrderStatusPaid {
			result.Routing = CoordinatorOutcome{
				OrderID:        found.ID,
				OrderNumber:    found.OrderNumber,
				PreviousStatus: last.from,
				NewStatus:      last.to,
				Advanced:       true,
			}
		}
		return nil
	})
	if err != nil {
		return PaymentEventResult{}, err
	}

	if result.Outcome == PaymentOutcomeAlreadyProcessed {
		h.logger(ctx, "payments.webhook.already_processed", map[string]any{
			"eventId":  event.ID,
			"orderId":  order.ID,
			"intentId": intentID,
			"status":   string(order.Status),
		})
		return result, nil
	}

	metadata := map[string]any{
		"source":          "webhook",
		"paymentIntentId": intentID,
		"amount":          event.Amount,
		"currency":        event.Currency,
	}
	for _, change := range changes {
		h.events.statusChanged(ctx, order, change.from, change.to, "", now, metadata)
	}
	h.logger(ctx, "payments.webhook.applied", map[string]any{
		"eventId":  event.ID,
		"orderId":  order.ID,
		"intentId": intentID,
		"status":   string(order.Status),
	})

	result.Notified = h.notify(ctx, order)
	return result, nil
}

func (h *paymentEventHandler) findOrder(ctx context.Context, orderID, intentID string) (Order, error) {
	if orderID != "" {
		order, err := h.orders.FindByID(ctx, orderID)
		if err == nil {
			return order, nil
		}
		mapped := mapRepositoryError(err, ErrOrderNotFound, ErrOrderConflict)
		if !errors.Is(mapped, ErrOrderNotFound) || intentID == "" {
			return Order{}, mapped
		}
	}
	order, err := h.orders.FindByPaymentIntent(ctx, intentID)
	if err != nil {
		return Order{}, mapRepositoryError(err, ErrOrderNotFound, ErrOrderConflict)
	}
	return order, nil
}

// notify sends the confirmation message. Errors are logged and never undo the payment.
func (h *paymentEventHandler) notify(ctx context.Context, order Order) bool {
	if h.notifier == nil {
		return false
	}

	msg := OrderConfirmation{Order: order}
	if h.customers != nil {
		customer, err := h.customers.FindByID(ctx, order.UserID)
		if err != nil {
			h.logger(ctx, "notifications.order_confirmation.failed", map[string]any{
				"orderId": order.ID,
				"stage":   "customer_lookup",
				"error":   err.Error(),
			})
			return false
		}
		msg.CustomerEmail = customer.Email
		msg.CustomerName = customer.DisplayName
	}

	if err := h.notifier.SendOrderConfirmation(ctx, msg); err != nil {
		h.logger(ctx, "notifications.order_confirmation.failed", map[string]any{
			"orderId": order.ID,
			"stage":   "send",
			"error":   err.Error(),
		})
		return false
	}
	return true
}

func (h *paymentEventHandler) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if h.unitOfWork == nil {
		return fn(ctx)
	}
	return h.unitOfWork.RunInTx(ctx, fn)
}

// alreadyPaid reports whether a succeeded event has nothing left to apply to an order in status.
func alreadyPaid(status OrderStatus) bool {
	switch status {
	case domain.OrderStatusPending, domain.OrderStatusAwaitingPayment:
		return false
	default:
		return true
	}
}
