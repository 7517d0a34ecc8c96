// Package events publishes order lifecycle events to the configured broker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/acrylicworks/api/internal/services"
)

// Envelope is the JSON body published for every order event.
type Envelope struct {
	Type           string         `json:"type"`
	OrderID        string         `json:"orderId"`
	OrderNumber    string         `json:"orderNumber,omitempty"`
	UserID         string         `json:"userId,omitempty"`
	PreviousStatus string         `json:"previousStatus,omitempty"`
	CurrentStatus  string         `json:"currentStatus,omitempty"`
	ActorID        string         `json:"actorId,omitempty"`
	OccurredAt     time.Time      `json:"occurredAt"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

func encode(event services.OrderEvent) ([]byte, map[string]string, error) {
	if strings.TrimSpace(event.Type) == "" || strings.TrimSpace(event.OrderID) == "" {
		return nil, nil, fmt.Errorf("events: type and order id are required")
	}
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	data, err := json.Marshal(Envelope{
		Type:           event.Type,
		OrderID:        event.OrderID,
		OrderNumber:    event.OrderNumber,
		UserID:         event.UserID,
		PreviousStatus: event.PreviousStatus,
		CurrentStatus:  event.CurrentStatus,
		ActorID:        event.ActorID,
		OccurredAt:     occurred.UTC(),
		Metadata:       event.Metadata,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("events: marshal order event: %w", err)
	}

	attrs := map[string]string{}
	setAttr(attrs, "eventType", event.Type)
	setAttr(attrs, "orderId", event.OrderID)
	setAttr(attrs, "orderNumber", event.OrderNumber)
	setAttr(attrs, "status", event.CurrentStatus)
	return data, attrs, nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}

// Noop discards events. It is used when no broker is configured.
type Noop struct{}

// PublishOrderEvent implements services.OrderEventPublisher.
func (Noop) PublishOrderEvent(context.Context, services.OrderEvent) error { return nil }

var _ services.OrderEventPublisher = Noop{}
