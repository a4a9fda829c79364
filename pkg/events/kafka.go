// Package events publishes payment lifecycle events to a Kafka topic so
// downstream systems (settlement, reporting) can react to portal activity.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// PaymentEvent is the message body written to the topic.
type PaymentEvent struct {
	Type      string  `json:"type"`
	PaymentID string  `json:"paymentId"`
	UserID    string  `json:"userId"`
	Amount    float64 `json:"amount,omitempty"`
	Currency  string  `json:"currency,omitempty"`
	Status    string  `json:"status,omitempty"`
	At        string  `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, evt PaymentEvent) error
	Close() error
}

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer kafkaWriter
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, b := range cfg.Brokers {
		trimmed := strings.TrimSpace(b)
		if trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, fmt.Errorf("kafka topic required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: 5 * time.Second,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaPublisher{writer: w}, nil
}

// Publish writes the event keyed by payment id so per-payment ordering is
// preserved within a partition.
func (p *KafkaPublisher) Publish(ctx context.Context, evt PaymentEvent) error {
	if p == nil || p.writer == nil {
		return fmt.Errorf("kafka publisher not initialized")
	}
	if evt.At == "" {
		evt.At = time.Now().UTC().Format(time.RFC3339Nano)
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.PaymentID),
		Value: body,
	})
}

func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, PaymentEvent) error { return nil }
func (NopPublisher) Close() error                                { return nil }
