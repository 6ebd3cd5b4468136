package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/couchcryptid/crowd-evac-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapMessageToRawEvent(t *testing.T) {
	now := time.Now()
	msg := kafkago.Message{
		Key:       []byte("tw-1"),
		Value:     []byte(`{"source":"twitter","source_id":"tw-1"}`),
		Topic:     "external-disaster-alerts",
		Partition: 2,
		Offset:    42,
		Time:      now,
		Headers: []kafkago.Header{
			{Key: "crawler", Value: []byte("social-v2")},
		},
	}

	raw := mapMessageToRawEvent(msg)

	assert.Equal(t, []byte("tw-1"), raw.Key)
	assert.JSONEq(t, `{"source":"twitter","source_id":"tw-1"}`, string(raw.Value))
	assert.Equal(t, "external-disaster-alerts", raw.Topic)
	assert.Equal(t, 2, raw.Partition)
	assert.Equal(t, int64(42), raw.Offset)
	assert.Equal(t, now, raw.Timestamp)
	assert.Equal(t, "social-v2", raw.Headers["crawler"])
	assert.Nil(t, raw.Commit)
}

func TestMapMessageToRawEvent_NoHeaders(t *testing.T) {
	raw := mapMessageToRawEvent(kafkago.Message{Value: []byte(`{}`)})
	assert.NotNil(t, raw.Headers)
	assert.Empty(t, raw.Headers)
}

func TestSerializeToMessage(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	n := domain.Notification{
		Tokens:   []string{"ExponentPushToken[a]", "ExponentPushToken[b]"},
		Title:    "EMERGENCY: evacuate Chennai",
		Body:     "Move away from the danger zone.",
		Data:     map[string]any{"type": "emergency_alert", "disaster_id": int64(7)},
		Priority: "high",
	}

	msg, err := serializeToMessage(n, at)
	require.NoError(t, err)

	assert.Equal(t, []byte("emergency_alert"), msg.Key)

	var decoded domain.Notification
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, n.Tokens, decoded.Tokens)
	assert.Equal(t, n.Title, decoded.Title)

	require.Len(t, msg.Headers, 4)
	assert.Equal(t, "notification_type", msg.Headers[0].Key)
	assert.Equal(t, []byte("emergency_alert"), msg.Headers[0].Value)
	assert.Equal(t, []byte("high"), msg.Headers[1].Value)
	assert.Equal(t, []byte("2"), msg.Headers[2].Value)
	assert.Equal(t, []byte(at.Format(time.RFC3339)), msg.Headers[3].Value)
}

func TestSerializeToMessage_UntypedData(t *testing.T) {
	msg, err := serializeToMessage(domain.Notification{Tokens: []string{"t"}, Title: "x"}, time.Unix(0, 0))
	require.NoError(t, err)
	assert.Empty(t, msg.Key)
	assert.Empty(t, msg.Headers[0].Value)
}

func TestSerializeToMessage_UnencodableData(t *testing.T) {
	_, err := serializeToMessage(domain.Notification{Data: map[string]any{"bad": make(chan int)}}, time.Unix(0, 0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "serialize notification")
}
