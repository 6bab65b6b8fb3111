package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/weiawesome/wes-io-live/overlay-service/pkg/log"
)

// Record headers, readable without decoding the value.
const (
	HeaderEvent  = "event"
	HeaderSource = "source"
)

// Config configures the Kafka event archive.
type Config struct {
	Brokers    string
	Topic      string
	Partitions int
	// Retention bounds how long archived events are kept. Zero leaves the
	// broker default.
	Retention time.Duration
}

// ConfluentArchiver produces event records to a Kafka topic, keyed by streamer
// id so one streamer's events stay ordered within a partition.
type ConfluentArchiver struct {
	producer *kafka.Producer
	topic    string
	doneCh   chan struct{}
}

// NewConfluentArchiver creates the producer, creating the topic if needed.
func NewConfluentArchiver(cfg Config) (*ConfluentArchiver, error) {
	l := log.L()
	if err := ensureTopic(cfg); err != nil {
		l.Warn().Err(err).Str("topic", cfg.Topic).Msg("failed to ensure archive topic (may already exist)")
	}

	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Brokers,
		"acks":              "1",
		"linger.ms":         5,
		"compression.type":  "snappy",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	a := &ConfluentArchiver{
		producer: p,
		topic:    cfg.Topic,
		doneCh:   make(chan struct{}),
	}

	go a.deliveryReportHandler()

	return a, nil
}

// topicSpec describes the archive topic: delete-only cleanup, since records
// are an append-only history and never compacted by streamer key.
func topicSpec(cfg Config) kafka.TopicSpecification {
	partitions := cfg.Partitions
	if partitions <= 0 {
		partitions = 1
	}

	spec := kafka.TopicSpecification{
		Topic:             cfg.Topic,
		NumPartitions:     partitions,
		ReplicationFactor: 1,
		Config:            map[string]string{"cleanup.policy": "delete"},
	}
	if cfg.Retention > 0 {
		spec.Config["retention.ms"] = strconv.FormatInt(cfg.Retention.Milliseconds(), 10)
	}
	return spec
}

func ensureTopic(cfg Config) error {
	admin, err := kafka.NewAdminClient(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Brokers,
	})
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results, err := admin.CreateTopics(ctx, []kafka.TopicSpecification{topicSpec(cfg)})
	if err != nil {
		return err
	}

	for _, result := range results {
		if code := result.Error.Code(); code != kafka.ErrNoError && code != kafka.ErrTopicAlreadyExists {
			return fmt.Errorf("failed to create topic %s: %v", result.Topic, result.Error)
		}
	}
	return nil
}

func (a *ConfluentArchiver) deliveryReportHandler() {
	l := log.L()
	for e := range a.producer.Events() {
		ev, ok := e.(*kafka.Message)
		if !ok || ev.TopicPartition.Error == nil {
			continue
		}
		l.Warn().Err(ev.TopicPartition.Error).
			Str(log.FieldStreamerID, string(ev.Key)).
			Str("event", headerValue(ev.Headers, HeaderEvent)).
			Msg("archive delivery failed")
	}
	close(a.doneCh)
}

// newMessage encodes rec for topic. The streamer id is the partition key and
// the record's own timestamp becomes the message timestamp.
func newMessage(topic *string, rec *Record) (*kafka.Message, error) {
	value, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event record: %w", err)
	}

	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     topic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(rec.StreamerID),
		Value: value,
		Headers: []kafka.Header{
			{Key: HeaderEvent, Value: []byte(rec.Event)},
			{Key: HeaderSource, Value: []byte(rec.Source)},
		},
	}
	if rec.Timestamp > 0 {
		msg.Timestamp = time.UnixMilli(rec.Timestamp)
	}
	return msg, nil
}

func headerValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// Archive enqueues the record. Delivery is asynchronous; failures are logged
// by the delivery report handler.
func (a *ConfluentArchiver) Archive(ctx context.Context, rec *Record) error {
	msg, err := newMessage(&a.topic, rec)
	if err != nil {
		return err
	}
	if err := a.producer.Produce(msg, nil); err != nil {
		return fmt.Errorf("failed to produce event record: %w", err)
	}
	return nil
}

// Close flushes outstanding records and stops the producer.
func (a *ConfluentArchiver) Close() error {
	a.producer.Flush(5000)
	a.producer.Close()
	<-a.doneCh
	return nil
}
