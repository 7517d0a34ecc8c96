package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/acrylicworks/api/internal/payments"
	"github.com/acrylicworks/api/internal/services"
)

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{err: services.ErrOrderInvalidTransition, wantStatus: http.StatusConflict, wantCode: "invalid_transition"},
		{err: fmt.Errorf("%w: rejected -> approved", services.ErrUploadInvalidTransition), wantStatus: http.StatusConflict, wantCode: "invalid_transition"},
		{err: services.ErrUploadNotDeletable, wantStatus: http.StatusConflict, wantCode: "upload_not_deletable"},
		{err: services.ErrUploadPermissionDenied, wantStatus: http.StatusForbidden, wantCode: "permission_denied"},
		{err: services.ErrOrderNotFound, wantStatus: http.StatusNotFound, wantCode: "order_not_found"},
		{err: services.ErrUploadNotFound, wantStatus: http.StatusNotFound, wantCode: "upload_not_found"},
		{err: services.ErrAdminInvalidCredentials, wantStatus: http.StatusUnauthorized, wantCode: "invalid_credentials"},
		{err: services.ErrOrderConflict, wantStatus: http.StatusConflict, wantCode: "conflict"},
		{err: services.ErrCheckoutEmptyCart, wantStatus: http.StatusConflict, wantCode: "cart_empty"},
		{err: services.ErrCheckoutPaymentFailed, wantStatus: http.StatusBadGateway, wantCode: "payment_failed"},
		{err: payments.ErrSignatureVerificationFailed, wantStatus: http.StatusBadRequest, wantCode: "signature_verification_failed"},
		{err: services.ErrPaymentEventInvalid, wantStatus: http.StatusBadRequest, wantCode: "invalid_event"},
		{err: errors.Join(services.ErrCatalogInvalidInput, errors.New("price must be positive")), wantStatus: http.StatusBadRequest, wantCode: "invalid_request"},
		{err: services.ErrServiceUnavailable, wantStatus: http.StatusServiceUnavailable, wantCode: "service_unavailable"},
		{err: context.DeadlineExceeded, wantStatus: http.StatusGatewayTimeout, wantCode: "timeout"},
		{err: errors.New("disk on fire"), wantStatus: http.StatusInternalServerError, wantCode: "internal_error"},
	}
	for _, tc := range tests {
		t.Run(tc.wantCode+"/"+tc.err.Error(), func(t *testing.T) {
			rr := httptest.NewRecorder()
			writeServiceError(context.Background(), rr, tc.err)
			if rr.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, rr.Code)
			}
			if code := errorCode(t, rr); code != tc.wantCode {
				t.Fatalf("expected %s, got %q", tc.wantCode, code)
			}
		})
	}
}

func TestWriteServiceErrorHidesSensitiveMessages(t *testing.T) {
	rr := httptest.NewRecorder()
	writeServiceError(context.Background(), rr, fmt.Errorf("%w: stripe: card_declined for pi_123", services.ErrCheckoutPaymentFailed))
	if strings.Contains(rr.Body.String(), "pi_123") {
		t.Fatalf("psp details leaked: %s", rr.Body.String())
	}

	rr = httptest.NewRecorder()
	writeServiceError(context.Background(), rr, errors.New("dial tcp 10.0.0.3:5432"))
	if strings.Contains(rr.Body.String(), "10.0.0.3") {
		t.Fatalf("internal error text leaked: %s", rr.Body.String())
	}
}
