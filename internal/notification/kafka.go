package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer used for publishing.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaNotifier writes events to the audit topic keyed by user id, keeping a user's events
// on one partition.
type KafkaNotifier struct {
	writer MessageWriter
}

// NewKafkaNotifier constructs a Kafka publisher.
func NewKafkaNotifier(writer MessageWriter) *KafkaNotifier {
	return &KafkaNotifier{writer: writer}
}

// Notify writes the event.
func (n *KafkaNotifier) Notify(ctx context.Context, event BalanceChanged) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(event.UserID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(event.Kind)},
			{Key: "transaction_id", Value: []byte(event.Transaction.ID)},
		},
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write kafka message: %w", err)
	}
	return nil
}
