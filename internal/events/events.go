package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Event types published on the order-notification topic. Consumers (mailers,
// SMS senders) key their templates off event_type.
const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
	EventOrderCancelled  = "order.cancelled"
	EventStatusChanged   = "order.status_changed"
	EventRefundInitiated = "refund.initiated"
	EventRefundCompleted = "refund.completed"
	EventRefundFailed    = "refund.failed"
	EventReturnRequested = "return.requested"
	EventReturnDecided   = "return.decided"
	EventOTPIssued       = "otp.issued"
)

// Notification is the wire payload. Identifier is the customer's email or
// phone, whichever the order was placed with.
type Notification struct {
	OrderID    string    `json:"order_id"`
	Identifier string    `json:"identifier"`
	Status     string    `json:"status,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Notifier publishes order lifecycle notifications. Delivery is best-effort:
// callers never fail an order transition because a notification did not go
// out.
type Notifier interface {
	Notify(ctx context.Context, eventType string, n Notification) error
}

type KafkaNotifier struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewKafkaNotifier(topic string, logger *zap.Logger, brokers ...string) *KafkaNotifier {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return &KafkaNotifier{writer: w, logger: logger}
}

func (k *KafkaNotifier) Notify(ctx context.Context, eventType string, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(n.OrderID), // per-order ordering
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
		},
	}

	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		k.logger.Error("failed to publish notification",
			zap.String("event_type", eventType),
			zap.String("order_id", n.OrderID),
			zap.Error(err))
		return err
	}
	return nil
}

func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}

// LogNotifier stands in for Kafka in local runs and tests.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(_ context.Context, eventType string, n Notification) error {
	l.logger.Info("notification",
		zap.String("event_type", eventType),
		zap.String("order_id", n.OrderID),
		zap.String("status", n.Status))
	return nil
}
