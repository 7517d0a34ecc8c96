package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/acrylicworks/api/internal/services"
)

const kafkaWriteTimeout = 10 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes order events to a Kafka topic keyed by order id, so every event of
// one order lands on the same partition.
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher builds a synchronous writer that waits for all in-sync replicas.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	var addrs []string
	for _, broker := range brokers {
		if b := strings.TrimSpace(broker); b != "" {
			addrs = append(addrs, b)
		}
	}
	if len(addrs) == 0 || strings.TrimSpace(topic) == "" {
		return nil, errors.New("kafka publisher: brokers and topic are required")
	}
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(addrs...),
		Topic:                  strings.TrimSpace(topic),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		WriteTimeout:           kafkaWriteTimeout,
		AllowAutoTopicCreation: false,
	}}, nil
}

// PublishOrderEvent implements services.OrderEventPublisher.
func (p *KafkaPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	if p == nil || p.writer == nil {
		return errors.New("kafka publisher: not initialised")
	}
	data, attrs, err := encode(event)
	if err != nil {
		return err
	}
	headers := make([]kafka.Header, 0, len(attrs))
	for key, value := range attrs {
		headers = append(headers, kafka.Header{Key: key, Value: []byte(value)})
	}
	msg := kafka.Message{
		Key:     []byte(event.OrderID),
		Value:   data,
		Headers: headers,
		Time:    event.OccurredAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka publish order event: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

var _ services.OrderEventPublisher = (*KafkaPublisher)(nil)
