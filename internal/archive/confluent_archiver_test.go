package archive

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessageKeysByStreamer(t *testing.T) {
	topic := "overlay-events"
	rec := &Record{
		StreamerID: "42",
		Event:      "avatar:spawn",
		Data:       json.RawMessage(`{"userId":"u1"}`),
		Source:     "instance-a",
		Timestamp:  1_700_000_000_000,
	}

	msg, err := newMessage(&topic, rec)
	require.NoError(t, err)

	assert.Equal(t, "overlay-events", *msg.TopicPartition.Topic)
	assert.Equal(t, kafka.PartitionAny, msg.TopicPartition.Partition)
	assert.Equal(t, []byte("42"), msg.Key)
	assert.Equal(t, "avatar:spawn", headerValue(msg.Headers, HeaderEvent))
	assert.Equal(t, "instance-a", headerValue(msg.Headers, HeaderSource))
	assert.Equal(t, time.UnixMilli(1_700_000_000_000), msg.Timestamp)
	assert.JSONEq(t, `{
		"streamerId": "42",
		"event": "avatar:spawn",
		"data": {"userId": "u1"},
		"source": "instance-a",
		"timestamp": 1700000000000
	}`, string(msg.Value))
}

func TestNewMessageRejectsInvalidData(t *testing.T) {
	topic := "overlay-events"
	_, err := newMessage(&topic, &Record{StreamerID: "42", Data: json.RawMessage(`{`)})
	assert.Error(t, err)
}

func TestTopicSpec(t *testing.T) {
	tests := []struct {
		name           string
		cfg            Config
		wantPartitions int
		wantRetention  string
	}{
		{"defaults", Config{Topic: "t"}, 1, ""},
		{"retention", Config{Topic: "t", Partitions: 8, Retention: 7 * 24 * time.Hour}, 8, "604800000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := topicSpec(tt.cfg)
			assert.Equal(t, "t", spec.Topic)
			assert.Equal(t, tt.wantPartitions, spec.NumPartitions)
			assert.Equal(t, "delete", spec.Config["cleanup.policy"])
			assert.Equal(t, tt.wantRetention, spec.Config["retention.ms"])
		})
	}
}

func TestHeaderValueMissing(t *testing.T) {
	assert.Empty(t, headerValue(nil, HeaderEvent))
}
