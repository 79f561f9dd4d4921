package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes call events as JSON, keyed by call id so every update of a
// call lands on the same partition.
type KafkaSink struct {
	writer messageWriter
	kinds  map[EventKind]bool
}

// NewKafkaSink creates a writer for topic on brokers.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
		kinds: kindSet(EventNewCall, EventCallHandled, EventReconnectRequired, EventError),
	}
}

func (k *KafkaSink) Name() string { return "kafka" }

func (k *KafkaSink) Accepts(kind EventKind) bool { return k.kinds[kind] }

func (k *KafkaSink) Send(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:     []byte(ev.Key()),
		Value:   payload,
		Time:    ev.At,
		Headers: []kafka.Header{{Key: "kind", Value: []byte(ev.Kind)}},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (k *KafkaSink) Close() error {
	return k.writer.Close()
}
