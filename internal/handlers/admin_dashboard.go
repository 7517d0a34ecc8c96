package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/acrylicworks/api/internal/domain"
	"github.com/acrylicworks/api/internal/platform/auth"
	"github.com/acrylicworks/api/internal/platform/httpx"
	"github.com/acrylicworks/api/internal/services"
)

// AdminDashboardHandlers serves the back office summary.
type AdminDashboardHandlers struct {
	sessions  *auth.AdminSessions
	dashboard services.DashboardService
}

func NewAdminDashboardHandlers(sessions *auth.AdminSessions, dashboard services.DashboardService) *AdminDashboardHandlers {
	return &AdminDashboardHandlers{sessions: sessions, dashboard: dashboard}
}

func (h *AdminDashboardHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.sessions != nil {
		group = r.With(h.sessions.RequireAdmin(auth.RoleStaff))
	}
	group.Get("/dashboard", h.summary)
}

type dashboardResponse struct {
	OrdersByStatus        map[string]int `json:"ordersByStatus"`
	PaidRevenue           int64          `json:"paidRevenue"`
	Currency              string         `json:"currency"`
	UploadsAwaitingReview int            `json:"uploadsAwaitingReview"`
	CustomerCount         int            `json:"customerCount"`
	GeneratedAt           string         `json:"generatedAt"`
}

func (h *AdminDashboardHandlers) summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.dashboard == nil {
		httpx.WriteError(ctx, w, httpx.NewError("dashboard_unavailable", "dashboard service unavailable", http.StatusServiceUnavailable))
		return
	}
	summary, err := h.dashboard.Summary(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	// every status is present so the UI can render empty columns
	counts := make(map[string]int, len(domain.AllOrderStatuses()))
	for _, status := range domain.AllOrderStatuses() {
		counts[string(status)] = summary.OrdersByStatus[status]
	}
	writeJSONResponse(w, http.StatusOK, dashboardResponse{
		OrdersByStatus:        counts,
		PaidRevenue:           summary.PaidRevenue,
		Currency:              summary.Currency,
		UploadsAwaitingReview: summary.UploadsAwaitingReview,
		CustomerCount:         summary.CustomerCount,
		GeneratedAt:           formatTime(summary.GeneratedAt),
	})
}
