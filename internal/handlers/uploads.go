package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/acrylicworks/api/internal/platform/auth"
	"github.com/acrylicworks/api/internal/platform/httpx"
	"github.com/acrylicworks/api/internal/services"
)

const maxUploadRequestBody = 4 * 1024

// UploadHandlers exposes customer file uploads: presigning, linking to orders and resubmission.
type UploadHandlers struct {
	authn   *auth.CustomerAuthenticator
	uploads services.UploadService
}

// NewUploadHandlers constructs handlers enforcing Firebase authentication.
func NewUploadHandlers(authn *auth.CustomerAuthenticator, uploads services.UploadService) *UploadHandlers {
	return &UploadHandlers{
		authn:   authn,
		uploads: uploads,
	}
}

// Routes registers the upload endpoints on the /me group.
func (h *UploadHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.RequireCustomer())
	}
	group.Post("/uploads", h.requestUpload)
	group.Get("/uploads", h.listUploads)
	group.Post("/uploads:link", h.linkUploads)
	group.Delete("/uploads/{uploadID}", h.deleteUpload)
	group.Post("/uploads/{uploadID}:resubmit", h.resubmitUpload)
	group.Get("/uploads/{uploadID}/download", h.downloadUpload)
}

type uploadFileRequest struct {
	FileName   string `json:"fileName"`
	MimeType   string `json:"mimeType"`
	Size       int64  `json:"size"`
	UploadType string `json:"uploadType"`
}

type linkUploadsRequest struct {
	UploadIDs     []string `json:"uploadIds"`
	OrderID       string   `json:"orderId"`
	OrderItemID   string   `json:"orderItemId"`
	QuantityIndex int      `json:"quantityIndex"`
}

type uploadPayload struct {
	ID            string `json:"id"`
	UserID        string `json:"userId"`
	OrderID       string `json:"orderId,omitempty"`
	OrderItemID   string `json:"orderItemId,omitempty"`
	QuantityIndex int    `json:"quantityIndex"`
	FileName      string `json:"fileName"`
	MimeType      string `json:"mimeType"`
	Size          int64  `json:"size"`
	UploadType    string `json:"uploadType,omitempty"`
	Status        string `json:"status"`
	AdminNotes    string `json:"adminNotes,omitempty"`
	ReviewerID    string `json:"reviewerId,omitempty"`
	ReviewedAt    string `json:"reviewedAt,omitempty"`
	CreatedAt     string `json:"createdAt,omitempty"`
	UpdatedAt     string `json:"updatedAt,omitempty"`
}

type signedURLPayload struct {
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers,omitempty"`
	ExpiresAt string            `json:"expiresAt"`
}

type uploadTicketResponse struct {
	Upload uploadPayload    `json:"upload"`
	Target signedURLPayload `json:"target"`
}

type orderRoutingPayload struct {
	OrderID        string `json:"orderId"`
	PreviousStatus string `json:"previousStatus,omitempty"`
	NewStatus      string `json:"newStatus,omitempty"`
	Advanced       bool   `json:"advanced"`
}

type linkUploadsResponse struct {
	Linked  int                  `json:"linked"`
	Skipped []string             `json:"skipped,omitempty"`
	Order   *orderRoutingPayload `json:"order,omitempty"`
}

type resubmitUploadResponse struct {
	uploadTicketResponse
	Order *orderRoutingPayload `json:"order,omitempty"`
}

type uploadListResponse struct {
	Items []uploadPayload `json:"items"`
}

func buildUploadPayload(upload services.Upload) uploadPayload {
	return uploadPayload{
		ID:            upload.ID,
		UserID:        upload.UserID,
		OrderID:       derefString(upload.OrderID),
		OrderItemID:   derefString(upload.OrderItemID),
		QuantityIndex: upload.QuantityIndex,
		FileName:      upload.FileName,
		MimeType:      upload.MimeType,
		Size:          upload.Size,
		UploadType:    upload.UploadType,
		Status:        string(upload.Status),
		AdminNotes:    derefString(upload.AdminNotes),
		ReviewerID:    derefString(upload.ReviewerID),
		ReviewedAt:    formatTimePtr(upload.ReviewedAt),
		CreatedAt:     formatTime(upload.CreatedAt),
		UpdatedAt:     formatTime(upload.UpdatedAt),
	}
}

func buildUploadList(uploads []services.Upload) uploadListResponse {
	items := make([]uploadPayload, 0, len(uploads))
	for _, upload := range uploads {
		items = append(items, buildUploadPayload(upload))
	}
	return uploadListResponse{Items: items}
}

func buildSignedURLPayload(signed services.SignedURL) signedURLPayload {
	return signedURLPayload{
		URL:       signed.URL,
		Method:    signed.Method,
		Headers:   signed.Headers,
		ExpiresAt: formatTime(signed.ExpiresAt),
	}
}

func buildTicketResponse(ticket services.UploadTicket) uploadTicketResponse {
	return uploadTicketResponse{
		Upload: buildUploadPayload(ticket.Upload),
		Target: buildSignedURLPayload(ticket.Target),
	}
}

// buildRoutingPayload returns nil when the event did not touch an order.
func buildRoutingPayload(outcome services.CoordinatorOutcome) *orderRoutingPayload {
	if strings.TrimSpace(outcome.OrderID) == "" {
		return nil
	}
	return &orderRoutingPayload{
		OrderID:        outcome.OrderID,
		PreviousStatus: string(outcome.PreviousStatus),
		NewStatus:      string(outcome.NewStatus),
		Advanced:       outcome.Advanced,
	}
}

func (h *UploadHandlers) requestUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.uploads == nil {
		httpx.WriteError(ctx, w, httpx.NewError("upload_service_unavailable", "upload service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireCustomerIdentity(w, r)
	if !ok {
		return
	}
	var req uploadFileRequest
	if !decodeJSONBody(w, r, maxUploadRequestBody, false, &req) {
		return
	}

	ticket, err := h.uploads.RequestUpload(ctx, services.RequestUploadCommand{
		UserID:     identity.UID,
		FileName:   req.FileName,
		MimeType:   req.MimeType,
		Size:       req.Size,
		UploadType: req.UploadType,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildTicketResponse(ticket))
}

func (h *UploadHandlers) listUploads(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.uploads == nil {
		httpx.WriteError(ctx, w, httpx.NewError("upload_service_unavailable", "upload service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireCustomerIdentity(w, r)
	if !ok {
		return
	}
	uploads, err := h.uploads.ListMyUploads(ctx, identity.UID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildUploadList(uploads))
}

func (h *UploadHandlers) linkUploads(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.uploads == nil {
		httpx.WriteError(ctx, w, httpx.NewError("upload_service_unavailable", "upload service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireCustomerIdentity(w, r)
	if !ok {
		return
	}
	var req linkUploadsRequest
	if !decodeJSONBody(w, r, maxUploadRequestBody, false, &req) {
		return
	}

	result, err := h.uploads.Link(ctx, services.LinkUploadsCommand{
		UserID:        identity.UID,
		UploadIDs:     req.UploadIDs,
		OrderID:       req.OrderID,
		OrderItemID:   req.OrderItemID,
		QuantityIndex: req.QuantityIndex,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, linkUploadsResponse{
		Linked:  result.Linked,
		Skipped: result.Skipped,
		Order:   buildRoutingPayload(result.Outcome),
	})
}

func (h *UploadHandlers) deleteUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.uploads == nil {
		httpx.WriteError(ctx, w, httpx.NewError("upload_service_unavailable", "upload service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireCustomerIdentity(w, r)
	if !ok {
		return
	}
	if err := h.uploads.Delete(ctx, services.DeleteUploadCommand{
		UserID:   identity.UID,
		UploadID: chi.URLParam(r, "uploadID"),
	}); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UploadHandlers) resubmitUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.uploads == nil {
		httpx.WriteError(ctx, w, httpx.NewError("upload_service_unavailable", "upload service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireCustomerIdentity(w, r)
	if !ok {
		return
	}
	var req uploadFileRequest
	if !decodeJSONBody(w, r, maxUploadRequestBody, false, &req) {
		return
	}

	result, err := h.uploads.Resubmit(ctx, services.ResubmitUploadCommand{
		UserID:   identity.UID,
		UploadID: chi.URLParam(r, "uploadID"),
		FileName: req.FileName,
		MimeType: req.MimeType,
		Size:     req.Size,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, resubmitUploadResponse{
		uploadTicketResponse: buildTicketResponse(result.Ticket),
		Order:                buildRoutingPayload(result.Outcome),
	})
}

func (h *UploadHandlers) downloadUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.uploads == nil {
		httpx.WriteError(ctx, w, httpx.NewError("upload_service_unavailable", "upload service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireCustomerIdentity(w, r)
	if !ok {
		return
	}
	writeUploadDownload(w, r, h.uploads, identity)
}

// writeUploadDownload is shared with the admin review endpoints; the service decides whether
// the identity may read the file.
func writeUploadDownload(w http.ResponseWriter, r *http.Request, uploads services.UploadService, identity *auth.Identity) {
	ctx := r.Context()
	signed, err := uploads.DownloadURL(ctx, services.UploadDownloadCommand{
		UploadID: chi.URLParam(r, "uploadID"),
		Identity: identity,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildSignedURLPayload(signed))
}
