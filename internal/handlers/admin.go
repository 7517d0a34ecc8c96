package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	domain "github.com/acrylicworks/api/internal/domain"
	"github.com/acrylicworks/api/internal/platform/auth"
	"github.com/acrylicworks/api/internal/platform/httpx"
	"github.com/acrylicworks/api/internal/platform/requestctx"
	"github.com/acrylicworks/api/internal/services"
)

const (
	maxAdminRequestBody     = 8 * 1024
	defaultLoginAttempts    = 5
	defaultLoginAttemptsTTL = 15 * time.Minute
)

// AdminHandlers serves back office login and admin account management.
type AdminHandlers struct {
	sessions *auth.AdminSessions
	admins   services.AdminService
	byIP     *loginThrottle
	byEmail  *loginThrottle
}

// AdminOption customises admin handler construction.
type AdminOption func(*AdminHandlers)

// WithLoginThrottle sets the number of login attempts allowed per client IP and per email
// within window. A non-positive limit disables throttling.
func WithLoginThrottle(limit int, window time.Duration, clock func() time.Time) AdminOption {
	return func(h *AdminHandlers) {
		h.byIP = newLoginThrottle(limit, window, clock)
		h.byEmail = newLoginThrottle(limit, window, clock)
	}
}

// NewAdminHandlers constructs admin account handlers. Managing accounts requires a super admin.
func NewAdminHandlers(sessions *auth.AdminSessions, admins services.AdminService, opts ...AdminOption) *AdminHandlers {
	h := &AdminHandlers{
		sessions: sessions,
		admins:   admins,
		byIP:     newLoginThrottle(defaultLoginAttempts, defaultLoginAttemptsTTL, nil),
		byEmail:  newLoginThrottle(defaultLoginAttempts, defaultLoginAttemptsTTL, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers /auth/login and /admins on the /admin group.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/auth/login", h.login)

	group := r
	if h.sessions != nil {
		group = r.With(h.sessions.RequireAdmin(auth.RoleAdmin))
	}
	group.Get("/admins", h.listAdmins)
	group.Post("/admins", h.createAdmin)
	group.Get("/admins/{adminID}", h.getAdmin)
	group.Patch("/admins/{adminID}", h.updateAdmin)
	group.Delete("/admins/{adminID}", h.deleteAdmin)
}

type adminLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type adminPayload struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	Active      bool   `json:"active"`
	LastLoginAt string `json:"lastLoginAt,omitempty"`
	CreatedAt   string `json:"createdAt,omitempty"`
	UpdatedAt   string `json:"updatedAt,omitempty"`
}

type adminLoginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt string       `json:"expiresAt"`
	Admin     adminPayload `json:"admin"`
}

type createAdminRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	Password string `json:"password"`
}

type updateAdminRequest struct {
	Name     *string `json:"name"`
	Role     *string `json:"role"`
	Password *string `json:"password"`
	Active   *bool   `json:"active"`
}

type adminListResponse struct {
	Items []adminPayload `json:"items"`
}

func buildAdminPayload(admin services.Admin) adminPayload {
	return adminPayload{
		ID:          admin.ID,
		Email:       admin.Email,
		Name:        admin.Name,
		Role:        string(admin.Role),
		Active:      admin.Active,
		LastLoginAt: formatTimePtr(admin.LastLoginAt),
		CreatedAt:   formatTime(admin.CreatedAt),
		UpdatedAt:   formatTime(admin.UpdatedAt),
	}
}

func (h *AdminHandlers) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.admins == nil {
		httpx.WriteError(ctx, w, httpx.NewError("admin_service_unavailable", "admin service unavailable", http.StatusServiceUnavailable))
		return
	}
	var req adminLoginRequest
	if !decodeJSONBody(w, r, maxAdminRequestBody, false, &req) {
		return
	}

	ip := clientIP(r)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	allowedIP, waitIP := h.byIP.Allow(ip)
	allowedEmail, waitEmail := h.byEmail.Allow(email)
	if !allowedIP || !allowedEmail {
		wait := max(waitIP, waitEmail)
		requestctx.Logger(ctx).Warn("admin login throttled", zap.String("ip", ip), zap.String("email", email))
		w.Header().Set("Retry-After", strconv.Itoa(int(wait.Round(time.Second)/time.Second)))
		httpx.WriteError(ctx, w, httpx.NewError("too_many_attempts", "too many login attempts, try again later", http.StatusTooManyRequests))
		return
	}

	session, err := h.admins.Login(ctx, services.AdminLoginCommand{Email: email, Password: req.Password})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	h.byEmail.Reset(email)
	writeJSONResponse(w, http.StatusOK, adminLoginResponse{
		Token:     session.Token,
		ExpiresAt: formatTime(session.ExpiresAt),
		Admin:     buildAdminPayload(session.Admin),
	})
}

func (h *AdminHandlers) listAdmins(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.admins == nil {
		httpx.WriteError(ctx, w, httpx.NewError("admin_service_unavailable", "admin service unavailable", http.StatusServiceUnavailable))
		return
	}
	admins, err := h.admins.ListAdmins(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	items := make([]adminPayload, 0, len(admins))
	for _, admin := range admins {
		items = append(items, buildAdminPayload(admin))
	}
	writeJSONResponse(w, http.StatusOK, adminListResponse{Items: items})
}

func (h *AdminHandlers) getAdmin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.admins == nil {
		httpx.WriteError(ctx, w, httpx.NewError("admin_service_unavailable", "admin service unavailable", http.StatusServiceUnavailable))
		return
	}
	admin, err := h.admins.GetAdmin(ctx, chi.URLParam(r, "adminID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildAdminPayload(admin))
}

func (h *AdminHandlers) createAdmin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.admins == nil {
		httpx.WriteError(ctx, w, httpx.NewError("admin_service_unavailable", "admin service unavailable", http.StatusServiceUnavailable))
		return
	}
	actor, ok := requireStaffIdentity(w, r)
	if !ok {
		return
	}
	var req createAdminRequest
	if !decodeJSONBody(w, r, maxAdminRequestBody, false, &req) {
		return
	}

	admin, err := h.admins.CreateAdmin(ctx, services.CreateAdminCommand{
		Email:    req.Email,
		Name:     req.Name,
		Role:     domain.AdminRole(strings.ToLower(strings.TrimSpace(req.Role))),
		Password: req.Password,
		ActorID:  actor.UID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildAdminPayload(admin))
}

func (h *AdminHandlers) updateAdmin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.admins == nil {
		httpx.WriteError(ctx, w, httpx.NewError("admin_service_unavailable", "admin service unavailable", http.StatusServiceUnavailable))
		return
	}
	actor, ok := requireStaffIdentity(w, r)
	if !ok {
		return
	}
	var req updateAdminRequest
	if !decodeJSONBody(w, r, maxAdminRequestBody, false, &req) {
		return
	}

	cmd := services.UpdateAdminCommand{
		AdminID:  chi.URLParam(r, "adminID"),
		Name:     req.Name,
		Password: req.Password,
		Active:   req.Active,
		ActorID:  actor.UID,
	}
	if req.Role != nil {
		role := domain.AdminRole(strings.ToLower(strings.TrimSpace(*req.Role)))
		cmd.Role = &role
	}
	admin, err := h.admins.UpdateAdmin(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildAdminPayload(admin))
}

func (h *AdminHandlers) deleteAdmin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.admins == nil {
		httpx.WriteError(ctx, w, httpx.NewError("admin_service_unavailable", "admin service unavailable", http.StatusServiceUnavailable))
		return
	}
	actor, ok := requireStaffIdentity(w, r)
	if !ok {
		return
	}
	if err := h.admins.DeleteAdmin(ctx, services.DeleteAdminCommand{
		AdminID: chi.URLParam(r, "adminID"),
		ActorID: actor.UID,
	}); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// requireStaffIdentity returns the back office identity set by the session middleware.
func requireStaffIdentity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	if !identity.IsStaff() {
		httpx.WriteError(r.Context(), w, httpx.NewError("insufficient_role", "staff access required", http.StatusForbidden))
		return nil, false
	}
	return identity, true
}
