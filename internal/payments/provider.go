package payments

import (
	"context"
	"time"
)

// Status enumerates the normalised payment states shared across providers.
type Status string

const (
	// StatusPending indicates the payment is awaiting customer action or PSP confirmation.
	StatusPending Status = "pending"
	// StatusSucceeded indicates the PSP reports the payment as successfully captured.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the PSP reports a failure and no further action is possible.
	StatusFailed Status = "failed"
	// StatusRefunded indicates the payment has been refunded (partially or fully).
	StatusRefunded Status = "refunded"
)

// MetadataOrderID is the intent metadata key carrying the order id.
const MetadataOrderID = "order_id"

// PaymentIntentRequest captures what checkout needs to open a payment with the PSP.
type PaymentIntentRequest struct {
	Amount         int64
	Currency       string
	OrderID        string
	OrderNumber    string
	CustomerEmail  string
	Description    string
	IdempotencyKey string
	Metadata       map[string]string
}

// PaymentIntent is the PSP handle returned to the client to complete payment.
type PaymentIntent struct {
	ID           string
	Provider     string
	ClientSecret string
	Status       Status
	Amount       int64
	Currency     string
	OrderID      string
	CreatedAt    time.Time
}

// Provider defines the contract for PSP adapters to implement.
type Provider interface {
	CreatePaymentIntent(ctx context.Context, req PaymentIntentRequest) (PaymentIntent, error)
	RetrievePaymentIntent(ctx context.Context, intentID string) (PaymentIntent, error)
}
