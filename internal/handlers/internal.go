package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/acrylicworks/api/internal/platform/auth"
	"github.com/acrylicworks/api/internal/platform/httpx"
	"github.com/acrylicworks/api/internal/platform/requestctx"
	"github.com/acrylicworks/api/internal/services"
)

const maxInternalRequestBody = 4 * 1024

// InternalJobHandlers exposes maintenance endpoints invoked by Cloud Scheduler. Callers are
// authenticated by the OIDC middleware on the /internal group.
type InternalJobHandlers struct {
	uploads services.UploadService
}

func NewInternalJobHandlers(uploads services.UploadService) *InternalJobHandlers {
	return &InternalJobHandlers{uploads: uploads}
}

func (h *InternalJobHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/uploads/purge", h.purgeStaleUploads)
}

type purgeUploadsRequest struct {
	// OlderThan is a Go duration string such as "24h".
	OlderThan string `json:"olderThan"`
	Limit     int    `json:"limit"`
}

type purgeUploadsResponse struct {
	Purged int `json:"purged"`
}

func (h *InternalJobHandlers) purgeStaleUploads(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.uploads == nil {
		httpx.WriteError(ctx, w, httpx.NewError("upload_service_unavailable", "upload service is unavailable", http.StatusServiceUnavailable))
		return
	}
	var req purgeUploadsRequest
	if !decodeJSONBody(w, r, maxInternalRequestBody, true, &req) {
		return
	}
	var olderThan time.Duration
	if req.OlderThan != "" {
		parsed, err := time.ParseDuration(req.OlderThan)
		if err != nil || parsed <= 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "olderThan must be a positive duration", http.StatusBadRequest))
			return
		}
		olderThan = parsed
	}

	purged, err := h.uploads.PurgeStalePending(ctx, services.PurgeStaleUploadsCommand{
		OlderThan: olderThan,
		Limit:     req.Limit,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	logger := requestctx.Logger(ctx)
	if caller, ok := auth.ServiceIdentityFromContext(ctx); ok && caller != nil {
		logger = logger.With(zap.String("caller", caller.Email))
	}
	logger.Info("stale uploads purged", zap.Int("purged", purged))
	writeJSONResponse(w, http.StatusOK, purgeUploadsResponse{Purged: purged})
}
