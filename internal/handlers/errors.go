package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/acrylicworks/api/internal/payments"
	"github.com/acrylicworks/api/internal/platform/httpx"
	"github.com/acrylicworks/api/internal/platform/requestctx"
	"github.com/acrylicworks/api/internal/services"
)

type errorMapping struct {
	targets []error
	code    string
	status  int
	// message replaces err.Error() when set, for errors whose text should not reach clients.
	message string
}

var serviceErrorMappings = []errorMapping{
	{targets: []error{services.ErrOrderInvalidTransition, services.ErrUploadInvalidTransition}, code: "invalid_transition", status: http.StatusConflict},
	{targets: []error{services.ErrUploadNotDeletable}, code: "upload_not_deletable", status: http.StatusConflict},
	{targets: []error{services.ErrUploadPermissionDenied}, code: "permission_denied", status: http.StatusForbidden},
	{targets: []error{services.ErrOrderNotFound}, code: "order_not_found", status: http.StatusNotFound},
	{targets: []error{services.ErrUploadNotFound}, code: "upload_not_found", status: http.StatusNotFound},
	{targets: []error{services.ErrCatalogProductNotFound}, code: "product_not_found", status: http.StatusNotFound},
	{targets: []error{services.ErrCartItemNotFound}, code: "cart_item_not_found", status: http.StatusNotFound},
	{targets: []error{services.ErrCustomerNotFound}, code: "customer_not_found", status: http.StatusNotFound},
	{targets: []error{services.ErrAdminNotFound}, code: "admin_not_found", status: http.StatusNotFound},
	{targets: []error{services.ErrAdminInvalidCredentials}, code: "invalid_credentials", status: http.StatusUnauthorized, message: "email or password is incorrect"},
	{targets: []error{services.ErrOrderConflict, services.ErrUploadConflict, services.ErrCatalogConflict, services.ErrAdminConflict}, code: "conflict", status: http.StatusConflict},
	{targets: []error{services.ErrCheckoutEmptyCart}, code: "cart_empty", status: http.StatusConflict},
	{targets: []error{services.ErrCheckoutProductUnavailable, services.ErrCartProductUnavailable}, code: "product_unavailable", status: http.StatusConflict},
	{targets: []error{services.ErrCheckoutPaymentFailed}, code: "payment_failed", status: http.StatusBadGateway, message: "payment could not be initiated"},
	{targets: []error{payments.ErrSignatureVerificationFailed}, code: "signature_verification_failed", status: http.StatusBadRequest, message: "webhook signature verification failed"},
	{targets: []error{payments.ErrMalformedEvent, services.ErrPaymentEventInvalid}, code: "invalid_event", status: http.StatusBadRequest},
	{
		targets: []error{
			services.ErrOrderInvalidInput, services.ErrUploadInvalidInput, services.ErrCheckoutInvalidInput,
			services.ErrCartInvalidInput, services.ErrCatalogInvalidInput, services.ErrCustomerInvalidInput,
			services.ErrAdminInvalidInput,
		},
		code:   "invalid_request",
		status: http.StatusBadRequest,
	},
	{targets: []error{services.ErrServiceUnavailable}, code: "service_unavailable", status: http.StatusServiceUnavailable, message: "a backing service is temporarily unavailable"},
	{targets: []error{context.DeadlineExceeded}, code: "timeout", status: http.StatusGatewayTimeout, message: "request timed out"},
}

// writeServiceError translates service sentinels into the JSON error envelope.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	for _, mapping := range serviceErrorMappings {
		for _, target := range mapping.targets {
			if !errors.Is(err, target) {
				continue
			}
			message := mapping.message
			if message == "" {
				message = err.Error()
			}
			httpx.WriteError(ctx, w, httpx.NewError(mapping.code, message, mapping.status))
			return
		}
	}

	requestctx.Logger(ctx).Error("unmapped service error", zap.Error(err))
	httpx.WriteError(ctx, w, httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError))
}
