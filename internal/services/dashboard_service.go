package services

import (
	"context"
	"errors"
	"time"

	domain "github.com/acrylicworks/api/internal/domain"
	"github.com/acrylicworks/api/internal/repositories"
)

const (
	revenuePageSize       = 200
	revenueMaxPages       = 50
	reviewBacklogScanSize = 1000
)

// paidOrderStatuses are the statuses an order can only reach after payment succeeded.
var paidOrderStatuses = []OrderStatus{
	domain.OrderStatusPaid,
	domain.OrderStatusRevisionRequired,
	domain.OrderStatusReviewing,
	domain.OrderStatusConfirmed,
	domain.OrderStatusProcessing,
	domain.OrderStatusShipped,
	domain.OrderStatusDelivered,
}

// DashboardServiceDeps wires the back office metrics service.
type DashboardServiceDeps struct {
	Orders    repositories.OrderRepository
	Uploads   repositories.UploadRepository
	Customers repositories.CustomerRepository
	Currency  string
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type dashboardService struct {
	orders    repositories.OrderRepository
	uploads   repositories.UploadRepository
	customers repositories.CustomerRepository
	currency  string
	clock     func() time.Time
	logger    func(context.Context, string, map[string]any)
}

// NewDashboardService constructs the metrics service.
func NewDashboardService(deps DashboardServiceDeps) (DashboardService, error) {
	if deps.Orders == nil || deps.Uploads == nil || deps.Customers == nil {
		return nil, errors.New("dashboard service: order, upload and customer repositories are required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &dashboardService{
		orders:    deps.Orders,
		uploads:   deps.Uploads,
		customers: deps.Customers,
		currency:  deps.Currency,
		clock:     func() time.Time { return clock().UTC() },
		logger:    logger,
	}, nil
}

func (s *dashboardService) Summary(ctx context.Context) (DashboardSummary, error) {
	counts, err := s.orders.CountByStatus(ctx)
	if err != nil {
		return DashboardSummary{}, mapRepositoryError(err, nil, nil)
	}
	byStatus := make(map[OrderStatus]int, len(domain.AllOrderStatuses()))
	for _, status := range domain.AllOrderStatuses() {
		byStatus[status] = counts[status]
	}

	revenue, err := s.paidRevenue(ctx)
	if err != nil {
		return DashboardSummary{}, err
	}

	backlog, err := s.uploads.ListByStatus(ctx, []UploadStatus{domain.UploadStatusSubmitted, domain.UploadStatusReviewing}, reviewBacklogScanSize)
	if err != nil {
		return DashboardSummary{}, mapRepositoryError(err, nil, nil)
	}

	customers, err := s.customers.Count(ctx)
	if err != nil {
		return DashboardSummary{}, mapRepositoryError(err, nil, nil)
	}

	return DashboardSummary{
		OrdersByStatus:        byStatus,
		PaidRevenue:           revenue,
		Currency:              s.currency,
		UploadsAwaitingReview: len(backlog),
		CustomerCount:         customers,
		GeneratedAt:           s.clock(),
	}, nil
}

// paidRevenue sums order totals for every order that has been paid and not cancelled.
func (s *dashboardService) paidRevenue(ctx context.Context) (int64, error) {
	var (
		total int64
		token string
	)
	for page := 0; page < revenueMaxPages; page++ {
		result, err := s.orders.List(ctx, OrderListFilter{
			Status:     paidOrderStatuses,
			Pagination: domain.Pagination{PageSize: revenuePageSize, PageToken: token},
		})
		if err != nil {
			return 0, mapRepositoryError(err, nil, nil)
		}
		for _, order := range result.Items {
			total += order.Totals.Total
		}
		if result.NextPageToken == "" {
			return total, nil
		}
		token = result.NextPageToken
	}
	s.logger(ctx, "dashboard.revenue.truncated", map[string]any{"pages": revenueMaxPages})
	return total, nil
}
