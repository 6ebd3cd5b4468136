//go:build integration

package integration_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/couchcryptid/crowd-evac-service/internal/adapter/kafka"
	"github.com/couchcryptid/crowd-evac-service/internal/config"
	"github.com/couchcryptid/crowd-evac-service/internal/domain"
	"github.com/couchcryptid/crowd-evac-service/internal/notify"
	"github.com/couchcryptid/crowd-evac-service/internal/observability"
	"github.com/couchcryptid/crowd-evac-service/internal/pipeline"
	"github.com/couchcryptid/crowd-evac-service/internal/testutil"
	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAlertsTopic = "test-external-alerts"
	testNotifyTopic = "test-push-notifications"
)

func testConfig(broker, group string) *config.Config {
	return &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaAlertsTopic:   testAlertsTopic,
		KafkaNotifyTopic:   testNotifyTopic,
		KafkaGroupID:       fmt.Sprintf("%s-%d", group, time.Now().UnixNano()),
		BatchFlushInterval: 5 * time.Second,
	}
}

func notifyConsumer(t *testing.T, broker string) *kafkago.Reader {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testNotifyTopic,
		GroupID:     fmt.Sprintf("test-notify-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

// TestKafkaReaderWriter verifies the adapter layer: the Reader extracts a
// crawler alert and the Writer publishes a notification with its headers.
func TestKafkaReaderWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testAlertsTopic)
	createTopic(t, broker, testNotifyTopic)
	cfg := testConfig(broker, "test-reader")

	payload := alertPayload(t, domain.ExternalAlertInput{
		Source:       "twitter",
		SourceID:     "1789",
		Text:         "bridge collapsed near Adyar",
		LocationText: "Adyar",
		Latitude:     ptr(13.0067),
		Longitude:    ptr(80.2573),
		Confidence:   ptr(0.85),
	})
	sentAt := time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC)

	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testAlertsTopic}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte("twitter-1789"),
		Value: payload,
		Time:  sentAt,
	}))

	// Retry because the consumer group may need time to rebalance before
	// partitions are assigned.
	reader := kafka.NewReader(cfg, testutil.DiscardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	var batch []domain.RawEvent
	for {
		var err error
		batch, err = reader.ExtractBatch(ctx, 1)
		require.NoError(t, err)
		if len(batch) > 0 {
			break
		}
		if ctx.Err() != nil {
			t.Fatal("timed out waiting for message from alerts topic")
		}
	}
	require.Len(t, batch, 1)
	raw := batch[0]
	assert.Equal(t, []byte("twitter-1789"), raw.Key)
	assert.Equal(t, payload, raw.Value)
	assert.Equal(t, testAlertsTopic, raw.Topic)
	require.NotNil(t, raw.Commit, "commit callback should be set")
	require.NoError(t, raw.Commit(ctx))

	alert, err := pipeline.NewTransformer(clockwork.NewFakeClockAt(testutil.T0)).Transform(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, domain.ExternalAlertID("twitter", "1789", "bridge collapsed near Adyar"), alert.ID)
	assert.True(t, sentAt.Equal(alert.CreatedAt))

	writer := kafka.NewWriter(cfg, testutil.DiscardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	n, err := writer.Dispatch(ctx, domain.Notification{
		Tokens:   []string{"ExponentPushToken[a]", "ExponentPushToken[b]"},
		Title:    "External Alert Detected",
		Body:     "Potential disaster reported near Adyar. Source: twitter",
		Data:     map[string]any{"type": "external_alert", "alert_id": alert.ID},
		Priority: "high",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got := readPublished(ctx, t, notifyConsumer(t, broker))
	assert.Equal(t, "external_alert", got.Key)
	assert.Equal(t, "external_alert", got.Headers["notification_type"])
	assert.Equal(t, "high", got.Headers["priority"])
	assert.Equal(t, "2", got.Headers["recipients"])
	_, err = time.Parse(time.RFC3339, got.Headers["published_at"])
	assert.NoError(t, err, "published_at should be valid RFC3339")
	assert.Equal(t, []string{"ExponentPushToken[a]", "ExponentPushToken[b]"}, got.Notification.Tokens)
	assert.Equal(t, alert.ID, got.Notification.Data["alert_id"])
}

// TestAlertPipelineEndToEnd wires Reader, Transformer and Ingestor over a real
// store, with the Kafka Writer as the push gateway. Only the confident alert
// is broadcast; the poison pill is skipped and the replay is ignored.
func TestAlertPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testAlertsTopic)
	createTopic(t, broker, testNotifyTopic)
	cfg := testConfig(broker, "test-pipeline")

	confident := alertPayload(t, domain.ExternalAlertInput{
		Source:       "news_rss",
		SourceID:     "flood-42",
		Text:         "Flooding reported in Velachery",
		LocationText: "Velachery",
		Confidence:   ptr(0.9),
	})
	weak := alertPayload(t, domain.ExternalAlertInput{
		Source:     "youtube",
		SourceID:   "clip-7",
		Text:       "heavy rain?",
		Confidence: ptr(0.3),
	})
	sentAt := time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC)

	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testAlertsTopic}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx,
		kafkago.Message{Key: []byte("bad"), Value: []byte("not-json{{{"), Time: sentAt},
		kafkago.Message{Key: []byte("confident"), Value: confident, Time: sentAt},
		kafkago.Message{Key: []byte("weak"), Value: weak, Time: sentAt},
		kafkago.Message{Key: []byte("replay"), Value: confident, Time: sentAt},
	))

	clock := clockwork.NewFakeClockAt(testutil.T0)
	logger := testutil.DiscardLogger()
	metrics := observability.NewMetricsForTesting()
	store := testutil.NewStore(t)
	testutil.SeedDevices(t, store, 3, testutil.T0)

	writer := kafka.NewWriter(cfg, logger)
	t.Cleanup(func() { _ = writer.Close() })
	dispatcher := notify.NewDispatcher(writer, store, store, clock, logger, metrics)
	ingestor := pipeline.NewIngestor(store, dispatcher, clock, logger)

	reader := kafka.NewReader(cfg, logger)
	t.Cleanup(func() { _ = reader.Close() })
	p := pipeline.New(reader, pipeline.NewTransformer(clock), ingestor, logger, metrics, 50)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	consumer := notifyConsumer(t, broker)
	got := readPublished(ctx, t, consumer)
	assert.Equal(t, "external_alert", got.Headers["notification_type"])
	assert.Equal(t, "3", got.Headers["recipients"])
	assert.Equal(t, "Potential disaster reported near Velachery. Source: news_rss", got.Notification.Body)

	// Neither the weak alert nor the replay produces a second notification.
	readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
	_, err := consumer.ReadMessage(readCtx)
	readCancel()
	assert.Error(t, err, "expected no second notification")

	pipelineCancel()
	require.NoError(t, <-errCh)

	alerts, err := store.ListExternalAlerts(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	processed := map[domain.ExternalSource]bool{}
	for _, a := range alerts {
		processed[a.Source] = a.Processed
	}
	assert.Equal(t, map[domain.ExternalSource]bool{"news_rss": true, "youtube": false}, processed)

	logs, err := store.ListAlertLogs(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.AlertKindExternal, logs[0].Kind)
}
