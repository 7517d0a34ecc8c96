package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/acrylicworks/api/internal/payments"
	"github.com/acrylicworks/api/internal/platform/httpx"
	"github.com/acrylicworks/api/internal/platform/requestctx"
	"github.com/acrylicworks/api/internal/services"
)

const (
	stripeSignatureHeader = "Stripe-Signature"
	// Stripe caps event payloads well below this.
	maxWebhookBodySize = 512 * 1024
)

// EventParser verifies a raw webhook payload against its signature header.
type EventParser interface {
	Parse(payload []byte, signatureHeader string) (payments.Event, error)
}

// PaymentWebhookHandlers receives PSP notifications.
type PaymentWebhookHandlers struct {
	parser  EventParser
	handler services.PaymentEventHandler
}

// NewPaymentWebhookHandlers constructs the Stripe webhook endpoint.
func NewPaymentWebhookHandlers(parser EventParser, handler services.PaymentEventHandler) *PaymentWebhookHandlers {
	return &PaymentWebhookHandlers{parser: parser, handler: handler}
}

// Routes registers /stripe on the /webhooks group.
func (h *PaymentWebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/stripe", h.receiveStripe)
}

type webhookResponse struct {
	Received bool   `json:"received"`
	Outcome  string `json:"outcome"`
	OrderID  string `json:"orderId,omitempty"`
	Status   string `json:"status,omitempty"`
}

func (h *PaymentWebhookHandlers) receiveStripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.parser == nil || h.handler == nil {
		httpx.WriteError(ctx, w, httpx.NewError("webhook_unavailable", "payment webhooks are not configured", http.StatusServiceUnavailable))
		return
	}
	payload, err := readLimitedBody(r, maxWebhookBodySize)
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		return
	case err != nil:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	event, err := h.parser.Parse(payload, r.Header.Get(stripeSignatureHeader))
	if err != nil {
		requestctx.Logger(ctx).Warn("stripe webhook rejected", zap.Error(err))
		writeServiceError(ctx, w, err)
		return
	}

	result, err := h.handler.Handle(ctx, event)
	if err != nil {
		// non-2xx makes Stripe redeliver, which the handler tolerates
		requestctx.Logger(ctx).Error("stripe webhook failed",
			zap.String("eventId", event.EventID()),
			zap.String("kind", string(event.Kind())),
			zap.Error(err),
		)
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, webhookResponse{
		Received: true,
		Outcome:  string(result.Outcome),
		OrderID:  result.OrderID,
		Status:   string(result.Status),
	})
}
