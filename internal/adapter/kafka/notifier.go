package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/hydro-etl/internal/config"
	"github.com/couchcryptid/hydro-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Notifier announces committed products on a Kafka topic.
// It implements domain.ProductNotifier.
type Notifier struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewNotifier creates a Kafka producer for the configured product topic.
func NewNotifier(cfg *config.Config, logger *slog.Logger) *Notifier {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Notifier{writer: w, logger: logger}
}

// NotifyProduct publishes one product event keyed by its output path.
func (n *Notifier) NotifyProduct(ctx context.Context, p domain.Product) error {
	msg, err := serializeToMessage(p)
	if err != nil {
		return err
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", p.Path, err)
	}
	n.logger.Debug("product published", "kind", p.Kind, "path", p.Path, "topic", n.writer.Topic)
	return nil
}

func (n *Notifier) Close() error {
	return n.writer.Close()
}

// serializeToMessage marshals a Product into a Kafka message.
func serializeToMessage(p domain.Product) (kafkago.Message, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize product: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(p.Path),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "kind", Value: []byte(p.Kind)},
			{Key: "created_at", Value: []byte(p.CreatedAt.Format(time.RFC3339))},
		},
	}, nil
}
