package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

// ErrSignatureVerificationFailed is returned when a webhook payload is not signed by the PSP.
var ErrSignatureVerificationFailed = errors.New("payments: webhook signature verification failed")

// ErrMalformedEvent is returned when a verified payload cannot be decoded.
var ErrMalformedEvent = errors.New("payments: malformed webhook event")

// EventKind tags the variants of Event.
type EventKind string

const (
	EventKindSucceeded EventKind = "succeeded"
	EventKindFailed    EventKind = "failed"
	EventKindRefunded  EventKind = "refunded"
	EventKindIgnored   EventKind = "ignored"
)

// Event is a verified PSP notification. Concrete types are PaymentSucceeded,
// PaymentFailed, PaymentRefunded and IgnoredEvent.
type Event interface {
	Kind() EventKind
	EventID() string
}

// PaymentSucceeded reports a captured payment intent.
type PaymentSucceeded struct {
	ID         string
	IntentID   string
	OrderID    string
	Amount     int64
	Currency   string
	OccurredAt time.Time
}

// PaymentFailed reports a payment attempt the PSP declined.
type PaymentFailed struct {
	ID             string
	IntentID       string
	OrderID        string
	Amount         int64
	Currency       string
	FailureMessage string
	OccurredAt     time.Time
}

// PaymentRefunded reports a full or partial refund of a charge.
type PaymentRefunded struct {
	ID             string
	ChargeID       string
	IntentID       string
	OrderID        string
	AmountRefunded int64
	Currency       string
	OccurredAt     time.Time
}

// IgnoredEvent is any verified event type the service does not act on.
type IgnoredEvent struct {
	ID   string
	Type string
}

func (PaymentSucceeded) Kind() EventKind   { return EventKindSucceeded }
func (PaymentFailed) Kind() EventKind      { return EventKindFailed }
func (PaymentRefunded) Kind() EventKind    { return EventKindRefunded }
func (IgnoredEvent) Kind() EventKind       { return EventKindIgnored }
func (e PaymentSucceeded) EventID() string { return e.ID }
func (e PaymentFailed) EventID() string    { return e.ID }
func (e PaymentRefunded) EventID() string  { return e.ID }
func (e IgnoredEvent) EventID() string     { return e.ID }

// WebhookVerifier checks Stripe signatures and decodes the events the service handles.
type WebhookVerifier struct {
	secret    string
	tolerance time.Duration
}

// NewWebhookVerifier constructs a verifier for the endpoint signing secret.
func NewWebhookVerifier(secret string) (*WebhookVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("payments: webhook secret is required")
	}
	return &WebhookVerifier{secret: secret, tolerance: webhook.DefaultTolerance}, nil
}

// Parse verifies payload against the Stripe-Signature header and maps it to an Event.
func (v *WebhookVerifier) Parse(payload []byte, signatureHeader string) (Event, error) {
	if v == nil {
		return nil, errors.New("payments: webhook verifier is nil")
	}
	raw, err := webhook.ConstructEventWithOptions(payload, signatureHeader, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureVerificationFailed, err)
	}
	return decodeEvent(raw)
}

func decodeEvent(raw stripe.Event) (Event, error) {
	occurred := time.Unix(raw.Created, 0).UTC()
	switch raw.Type {
	case "payment_intent.succeeded":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(raw.Data.Raw, &intent); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		return PaymentSucceeded{
			ID:         raw.ID,
			IntentID:   intent.ID,
			OrderID:    strings.TrimSpace(intent.Metadata[MetadataOrderID]),
			Amount:     intent.AmountReceived,
			Currency:   strings.ToUpper(string(intent.Currency)),
			OccurredAt: occurred,
		}, nil
	case "payment_intent.payment_failed":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(raw.Data.Raw, &intent); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		failure := ""
		if intent.LastPaymentError != nil {
			failure = intent.LastPaymentError.Msg
		}
		return PaymentFailed{
			ID:             raw.ID,
			IntentID:       intent.ID,
			OrderID:        strings.TrimSpace(intent.Metadata[MetadataOrderID]),
			Amount:         intent.Amount,
			Currency:       strings.ToUpper(string(intent.Currency)),
			FailureMessage: failure,
			OccurredAt:     occurred,
		}, nil
	case "charge.refunded":
		var charge stripe.Charge
		if err := json.Unmarshal(raw.Data.Raw, &charge); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		intentID := ""
		if charge.PaymentIntent != nil {
			intentID = charge.PaymentIntent.ID
		}
		return PaymentRefunded{
			ID:             raw.ID,
			ChargeID:       charge.ID,
			IntentID:       intentID,
			OrderID:        strings.TrimSpace(charge.Metadata[MetadataOrderID]),
			AmountRefunded: charge.AmountRefunded,
			Currency:       strings.ToUpper(string(charge.Currency)),
			OccurredAt:     occurred,
		}, nil
	default:
		return IgnoredEvent{ID: raw.ID, Type: string(raw.Type)}, nil
	}
}
