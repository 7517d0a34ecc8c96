package handlers

import (
	"context"
	"net/http"
	"testing"

	domain "github.com/acrylicworks/api/internal/domain"
	"github.com/acrylicworks/api/internal/services"
)

func TestAdminUploadHandlersApproveReportsRouting(t *testing.T) {
	var captured services.ReviewUploadCommand
	uploads := &stubUploadService{
		approveFunc: func(ctx context.Context, cmd services.ReviewUploadCommand) (services.UploadReviewResult, error) {
			captured = cmd
			upload := pendingUpload()
			upload.Status = domain.UploadStatusApproved
			return services.UploadReviewResult{
				Upload:  upload,
				Outcome: services.CoordinatorOutcome{OrderID: "ord_1", PreviousStatus: domain.OrderStatusReviewing, NewStatus: domain.OrderStatusConfirmed, Advanced: true},
			}, nil
		},
	}
	rr := serve(t, "/admin", NewAdminUploadHandlers(nil, uploads).Routes, staffIdentity, http.MethodPost, "/admin/uploads/upl_1:approve", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.AdminID != "adm_staff" || captured.UploadID != "upl_1" {
		t.Fatalf("unexpected command %#v", captured)
	}
	resp := decodeBody[uploadReviewResponse](t, rr)
	if resp.Upload.Status != "approved" || resp.Order == nil || resp.Order.NewStatus != "confirmed" {
		t.Fatalf("unexpected response %#v", resp)
	}
}

func TestAdminUploadHandlersReject(t *testing.T) {
	uploads := &stubUploadService{
		rejectFunc: func(ctx context.Context, cmd services.ReviewUploadCommand) (services.UploadReviewResult, error) {
			if cmd.Notes != "resolution too low" {
				t.Fatalf("expected notes, got %#v", cmd)
			}
			if cmd.UploadID == "upl_done" {
				return services.UploadReviewResult{}, services.ErrUploadInvalidTransition
			}
			upload := pendingUpload()
			upload.Status = domain.UploadStatusRejected
			upload.AdminNotes = &cmd.Notes
			// a stand-alone upload has no order to route
			return services.UploadReviewResult{Upload: upload}, nil
		},
	}
	routes := NewAdminUploadHandlers(nil, uploads).Routes
	body := map[string]any{"notes": "resolution too low"}

	rr := serve(t, "/admin", routes, staffIdentity, http.MethodPost, "/admin/uploads/upl_1:reject", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	resp := decodeBody[uploadReviewResponse](t, rr)
	if resp.Upload.AdminNotes != "resolution too low" || resp.Order != nil {
		t.Fatalf("unexpected response %#v", resp)
	}

	rr = serve(t, "/admin", routes, staffIdentity, http.MethodPost, "/admin/uploads/upl_done:reject", body)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestAdminUploadHandlersQueue(t *testing.T) {
	var gotLimit int
	uploads := &stubUploadService{
		queueFunc: func(ctx context.Context, limit int) ([]services.Upload, error) {
			gotLimit = limit
			return []services.Upload{pendingUpload()}, nil
		},
	}
	routes := NewAdminUploadHandlers(nil, uploads).Routes

	rr := serve(t, "/admin", routes, staffIdentity, http.MethodGet, "/admin/uploads?limit=25", nil)
	if rr.Code != http.StatusOK || gotLimit != 25 {
		t.Fatalf("expected 200 with limit 25, got %d %d", rr.Code, gotLimit)
	}
	rr = serve(t, "/admin", routes, staffIdentity, http.MethodGet, "/admin/uploads?limit=many", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestAdminUploadHandlersUnavailable(t *testing.T) {
	rr := serve(t, "/admin", NewAdminUploadHandlers(nil, nil).Routes, staffIdentity, http.MethodPost, "/admin/uploads/upl_1:approve", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
