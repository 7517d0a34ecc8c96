package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/acrylicworks/api/internal/platform/auth"
	"github.com/acrylicworks/api/internal/platform/httpx"
	"github.com/acrylicworks/api/internal/services"
)

const maxReviewRequestBody = 8 * 1024

// AdminUploadHandlers exposes the staff upload review queue.
type AdminUploadHandlers struct {
	sessions *auth.AdminSessions
	uploads  services.UploadService
}

// NewAdminUploadHandlers constructs review handlers guarded by staff sessions.
func NewAdminUploadHandlers(sessions *auth.AdminSessions, uploads services.UploadService) *AdminUploadHandlers {
	return &AdminUploadHandlers{sessions: sessions, uploads: uploads}
}

// Routes registers /uploads on the /admin group.
func (h *AdminUploadHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.sessions != nil {
		group = r.With(h.sessions.RequireAdmin(auth.RoleStaff))
	}
	group.Get("/uploads", h.reviewQueue)
	group.Get("/uploads/{uploadID}/download", h.download)
	group.Post("/uploads/{uploadID}:review", h.startReview)
	group.Post("/uploads/{uploadID}:approve", h.approve)
	group.Post("/uploads/{uploadID}:reject", h.reject)
}

type reviewUploadRequest struct {
	Notes string `json:"notes"`
}

type uploadReviewResponse struct {
	Upload uploadPayload        `json:"upload"`
	Order  *orderRoutingPayload `json:"order,omitempty"`
}

func (h *AdminUploadHandlers) reviewQueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.uploads == nil {
		httpx.WriteError(ctx, w, httpx.NewError("upload_service_unavailable", "upload service is unavailable", http.StatusServiceUnavailable))
		return
	}
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "limit must be an integer", http.StatusBadRequest))
			return
		}
		limit = parsed
	}
	uploads, err := h.uploads.ListReviewQueue(ctx, limit)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildUploadList(uploads))
}

func (h *AdminUploadHandlers) download(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.uploads == nil {
		httpx.WriteError(ctx, w, httpx.NewError("upload_service_unavailable", "upload service is unavailable", http.StatusServiceUnavailable))
		return
	}
	actor, ok := requireStaffIdentity(w, r)
	if !ok {
		return
	}
	writeUploadDownload(w, r, h.uploads, actor)
}

func (h *AdminUploadHandlers) startReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.uploads == nil {
		httpx.WriteError(ctx, w, httpx.NewError("upload_service_unavailable", "upload service is unavailable", http.StatusServiceUnavailable))
		return
	}
	cmd, ok := decodeReviewCommand(w, r)
	if !ok {
		return
	}
	upload, err := h.uploads.StartReview(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, uploadReviewResponse{Upload: buildUploadPayload(upload)})
}

func (h *AdminUploadHandlers) approve(w http.ResponseWriter, r *http.Request) {
	if h.uploads == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("upload_service_unavailable", "upload service is unavailable", http.StatusServiceUnavailable))
		return
	}
	h.decide(w, r, h.uploads.Approve)
}

func (h *AdminUploadHandlers) reject(w http.ResponseWriter, r *http.Request) {
	if h.uploads == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("upload_service_unavailable", "upload service is unavailable", http.StatusServiceUnavailable))
		return
	}
	h.decide(w, r, h.uploads.Reject)
}

func (h *AdminUploadHandlers) decide(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, cmd services.ReviewUploadCommand) (services.UploadReviewResult, error)) {
	ctx := r.Context()
	cmd, ok := decodeReviewCommand(w, r)
	if !ok {
		return
	}
	result, err := apply(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, uploadReviewResponse{
		Upload: buildUploadPayload(result.Upload),
		Order:  buildRoutingPayload(result.Outcome),
	})
}

func decodeReviewCommand(w http.ResponseWriter, r *http.Request) (services.ReviewUploadCommand, bool) {
	actor, ok := requireStaffIdentity(w, r)
	if !ok {
		return services.ReviewUploadCommand{}, false
	}
	var req reviewUploadRequest
	if !decodeJSONBody(w, r, maxReviewRequestBody, true, &req) {
		return services.ReviewUploadCommand{}, false
	}
	return services.ReviewUploadCommand{
		AdminID:  actor.UID,
		UploadID: chi.URLParam(r, "uploadID"),
		Notes:    req.Notes,
	}, true
}
