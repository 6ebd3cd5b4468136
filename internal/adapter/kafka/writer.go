package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/crowd-evac-service/internal/config"
	"github.com/couchcryptid/crowd-evac-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer hands notifications to a downstream push worker via a Kafka topic.
// It implements domain.NotificationGateway.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
	now    func() time.Time
}

// NewWriter creates a Kafka producer for the configured notification topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaNotifyTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger, now: time.Now}
}

// Dispatch publishes the notification as a single message. Every token counts
// as delivered once the broker acknowledges the write.
func (w *Writer) Dispatch(ctx context.Context, n domain.Notification) (int, error) {
	if len(n.Tokens) == 0 {
		return 0, nil
	}
	msg, err := serializeToMessage(n, w.now())
	if err != nil {
		return 0, err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return 0, fmt.Errorf("publish notification: %w", err)
	}
	w.logger.Debug("notification published", "topic", w.writer.Topic, "recipients", len(n.Tokens))
	return len(n.Tokens), nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a Notification into a Kafka message keyed by
// its notification type so one kind stays ordered on a partition.
func serializeToMessage(n domain.Notification, at time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize notification: %w", err)
	}
	kind, _ := n.Data["type"].(string)
	return kafkago.Message{
		Key:   []byte(kind),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "notification_type", Value: []byte(kind)},
			{Key: "priority", Value: []byte(n.Priority)},
			{Key: "recipients", Value: []byte(strconv.Itoa(len(n.Tokens)))},
			{Key: "published_at", Value: []byte(at.UTC().Format(time.RFC3339))},
		},
	}, nil
}
