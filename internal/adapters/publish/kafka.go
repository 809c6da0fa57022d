package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/okian/crowdpulse/internal/domain/transition"
)

const defaultWriteTimeout = 5 * time.Second

// messageWriter is the part of *kafka.Writer the notifier uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes transitions as JSON, keyed by event id so one
// event's transitions stay ordered within a partition.
type KafkaNotifier struct {
	writer  messageWriter
	topic   string
	timeout time.Duration
}

var _ Notifier = (*KafkaNotifier)(nil)

// NewKafkaNotifier creates a writer for topic on brokers.
func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return newKafkaNotifier(w, topic)
}

func newKafkaNotifier(w messageWriter, topic string) *KafkaNotifier {
	return &KafkaNotifier{writer: w, topic: topic, timeout: defaultWriteTimeout}
}

// Name implements Notifier.
func (k *KafkaNotifier) Name() string { return "kafka" }

// Notify implements Notifier.
func (k *KafkaNotifier) Notify(ctx context.Context, t transition.Transition) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode transition %s: %w", t.EventID, err)
	}
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(t.EventID),
		Value: raw,
		Time:  t.At,
		Headers: []kafka.Header{
			{Key: "stage", Value: []byte(t.To)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write to %s: %w", k.topic, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}
