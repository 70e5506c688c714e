package infra

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// NewKafkaWriter builds a writer for the balance event topic. It returns nil when no brokers
// are configured so callers can skip the Kafka leg entirely.
func NewKafkaWriter(brokers []string, topic string, logger *slog.Logger) *kafka.Writer {
	if len(brokers) == 0 {
		return nil
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Warn("kafka writer", slog.String("detail", fmt.Sprintf(msg, args...)))
		}),
	}
}
