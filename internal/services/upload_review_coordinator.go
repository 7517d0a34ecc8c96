package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/acrylicworks/api/internal/domain"
	"github.com/acrylicworks/api/internal/repositories"
)

// UploadReviewCoordinatorDeps bundles collaborators for the coordinator.
type UploadReviewCoordinatorDeps struct {
	Orders  repositories.OrderRepository
	Uploads repositories.UploadRepository
	Clock   func() time.Time
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

type uploadReviewCoordinator struct {
	orders  repositories.OrderRepository
	uploads repositories.UploadRepository
	clock   func() time.Time
	logger  func(context.Context, string, map[string]any)
}

var _ UploadReviewCoordinator = (*uploadReviewCoordinator)(nil)

// NewUploadReviewCoordinator constructs the coordinator linking upload review results to orders.
func NewUploadReviewCoordinator(deps UploadReviewCoordinatorDeps) (UploadReviewCoordinator, error) {
	if deps.Orders == nil {
		return nil, errors.New("upload review coordinator: order repository is required")
	}
	if deps.Uploads == nil {
		return nil, errors.New("upload review coordinator: upload repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &uploadReviewCoordinator{
		orders:  deps.Orders,
		uploads: deps.Uploads,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// AfterApprove confirms a reviewing order once every one of its uploads is approved. The upload set
// is re-read on every call so out-of-order approvals converge on the same answer.
func (c *uploadReviewCoordinator) AfterApprove(ctx context.Context, upload Upload) (CoordinatorOutcome, error) {
	return c.evaluate(ctx, upload, func(order Order, uploads []Upload) (OrderStatus, bool) {
		if order.Status != domain.OrderStatusReviewing {
			return "", false
		}
		if !allUploadsApproved(uploads) {
			return "", false
		}
		return domain.OrderStatusConfirmed, true
	})
}

// AfterReject sends a reviewing order back for revision. A single rejection wins over any number of
// approvals.
func (c *uploadReviewCoordinator) AfterReject(ctx context.Context, upload Upload) (CoordinatorOutcome, error) {
	return c.evaluate(ctx, upload, func(order Order, _ []Upload) (OrderStatus, bool) {
		if order.Status != domain.OrderStatusReviewing {
			return "", false
		}
		return domain.OrderStatusRevisionRequired, true
	})
}

// AfterResubmit returns an order to review once none of its uploads remain rejected.
func (c *uploadReviewCoordinator) AfterResubmit(ctx context.Context, upload Upload) (CoordinatorOutcome, error) {
	return c.evaluate(ctx, upload, func(order Order, uploads []Upload) (OrderStatus, bool) {
		if order.Status != domain.OrderStatusRevisionRequired {
			return "", false
		}
		if !readyForReview(order, uploads) {
			return "", false
		}
		return domain.OrderStatusReviewing, true
	})
}

// AfterLink moves an order waiting for customer files to review once every item that needs a file
// has one and nothing is rejected.
func (c *uploadReviewCoordinator) AfterLink(ctx context.Context, orderID string, linked []Upload) (CoordinatorOutcome, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" || len(linked) == 0 {
		return CoordinatorOutcome{}, nil
	}
	return c.evaluateOrder(ctx, orderID, linked, func(order Order, uploads []Upload) (OrderStatus, bool) {
		if order.Status != domain.OrderStatusRevisionRequired {
			return "", false
		}
		if !readyForReview(order, uploads) {
			return "", false
		}
		return domain.OrderStatusReviewing, true
	})
}

// OnPaid routes a freshly paid order. Files may already have been reviewed while the order awaited
// payment, so their statuses count: a rejected file or an item without one sends the order to
// revision_required, files still under review send it to reviewing, and orders whose files are all
// approved (or that need none) are confirmed. The order is mutated in memory only; the caller
// persists it.
func (c *uploadReviewCoordinator) OnPaid(ctx context.Context, order *Order) (CoordinatorOutcome, error) {
	if order == nil {
		return CoordinatorOutcome{}, errors.New("upload review coordinator: order is required")
	}
	outcome := CoordinatorOutcome{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		PreviousStatus: order.Status,
		NewStatus:      order.Status,
	}
	if order.Status != domain.OrderStatusPaid {
		return outcome, nil
	}

	uploads, err := c.uploads.ListByOrder(ctx, order.ID)
	if err != nil {
		return CoordinatorOutcome{}, mapRepositoryError(err, ErrUploadNotFound, nil)
	}

	target := routeAfterPayment(*order, uploads)

	if _, err := applyOrderTransition(order, target, c.clock()); err != nil {
		return CoordinatorOutcome{}, err
	}
	outcome.NewStatus = target
	outcome.Advanced = true
	c.logger(ctx, "orders.routed_after_payment", map[string]any{
		"orderId": order.ID,
		"status":  string(target),
		"uploads": len(uploads),
	})
	return outcome, nil
}

type routingRule func(order Order, uploads []Upload) (OrderStatus, bool)

func (c *uploadReviewCoordinator) evaluate(ctx context.Context, upload Upload, rule routingRule) (CoordinatorOutcome, error) {
	if upload.OrderID == nil || strings.TrimSpace(*upload.OrderID) == "" {
		return CoordinatorOutcome{}, nil
	}
	return c.evaluateOrder(ctx, strings.TrimSpace(*upload.OrderID), []Upload{upload}, rule)
}

// evaluateOrder reads the order and its uploads, overlays the in-memory upload changes that the
// caller has not written yet, and persists the order when rule asks for a transition.
func (c *uploadReviewCoordinator) evaluateOrder(ctx context.Context, orderID string, pending []Upload, rule routingRule) (CoordinatorOutcome, error) {
	order, err := c.orders.FindByID(ctx, orderID)
	if err != nil {
		return CoordinatorOutcome{}, mapRepositoryError(err, ErrOrderNotFound, ErrOrderConflict)
	}
	stored, err := c.uploads.ListByOrder(ctx, orderID)
	if err != nil {
		return CoordinatorOutcome{}, mapRepositoryError(err, ErrUploadNotFound, nil)
	}
	uploads := overlayUploads(stored, pending, orderID)

	outcome := CoordinatorOutcome{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		PreviousStatus: order.Status,
		NewStatus:      order.Status,
	}
	target, ok := rule(order, uploads)
	if !ok {
		return outcome, nil
	}

	if _, err := applyOrderTransition(&order, target, c.clock()); err != nil {
		return CoordinatorOutcome{}, err
	}
	if err := c.orders.Update(ctx, order); err != nil {
		return CoordinatorOutcome{}, mapRepositoryError(err, ErrOrderNotFound, ErrOrderConflict)
	}

	outcome.NewStatus = target
	outcome.Advanced = true
	c.logger(ctx, "orders.advanced_by_upload_review", map[string]any{
		"orderId": order.ID,
		"from":    string(outcome.PreviousStatus),
		"to":      string(target),
		"uploads": len(uploads),
	})
	return outcome, nil
}

// overlayUploads replaces stored uploads with their pending in-memory versions and appends pending
// uploads that are not stored against the order yet.
func overlayUploads(stored, pending []Upload, orderID string) []Upload {
	result := make([]Upload, 0, len(stored)+len(pending))
	replaced := make(map[string]bool, len(pending))
	byID := make(map[string]Upload, len(pending))
	for _, upload := range pending {
		byID[upload.ID] = upload
	}
	for _, upload := range stored {
		if next, ok := byID[upload.ID]; ok {
			replaced[upload.ID] = true
			if next.LinkedTo(orderID) {
				result = append(result, next)
			}
			continue
		}
		result = append(result, upload)
	}
	for _, upload := range pending {
		if !replaced[upload.ID] && upload.LinkedTo(orderID) {
			result = append(result, upload)
		}
	}
	return result
}

func routeAfterPayment(order Order, uploads []Upload) OrderStatus {
	if len(missingUploadItems(order, uploads)) > 0 || anyUploadRejected(uploads) {
		return domain.OrderStatusRevisionRequired
	}
	if len(uploads) == 0 || allUploadsApproved(uploads) {
		return domain.OrderStatusConfirmed
	}
	return domain.OrderStatusReviewing
}

func anyUploadRejected(uploads []Upload) bool {
	for _, upload := range uploads {
		if upload.Status == domain.UploadStatusRejected {
			return true
		}
	}
	return false
}

func allUploadsApproved(uploads []Upload) bool {
	if len(uploads) == 0 {
		return false
	}
	for _, upload := range uploads {
		if upload.Status != domain.UploadStatusApproved {
			return false
		}
	}
	return true
}

func readyForReview(order Order, uploads []Upload) bool {
	if len(uploads) == 0 {
		return false
	}
	for _, upload := range uploads {
		if upload.Status == domain.UploadStatusRejected || upload.Status == domain.UploadStatusPending {
			return false
		}
	}
	return len(missingUploadItems(order, uploads)) == 0
}

// missingUploadItems lists the ids of items that need a customer file and have none linked.
// Uploads linked to the order without an item id count towards every item.
func missingUploadItems(order Order, uploads []Upload) []string {
	covered := make(map[string]bool, len(uploads))
	orderLevel := false
	for _, upload := range uploads {
		if upload.OrderItemID == nil || strings.TrimSpace(*upload.OrderItemID) == "" {
			orderLevel = true
			continue
		}
		covered[strings.TrimSpace(*upload.OrderItemID)] = true
	}

	var missing []string
	for _, item := range order.Items {
		if !item.RequiresUpload {
			continue
		}
		if orderLevel || covered[item.ID] {
			continue
		}
		missing = append(missing, item.ID)
	}
	return missing
}

func (o CoordinatorOutcome) String() string {
	if !o.Advanced {
		return fmt.Sprintf("order %s unchanged (%s)", o.OrderID, o.PreviousStatus)
	}
	return fmt.Sprintf("order %s %s -> %s", o.OrderID, o.PreviousStatus, o.NewStatus)
}
