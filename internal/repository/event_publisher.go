package repository

import (
	"context"
	"time"

	"SignalBoard/pkg/kafka"
)

// eventEnvelope is the Kafka message value for domain events.
type eventEnvelope struct {
	Kind    string      `json:"kind"`
	At      time.Time   `json:"at"`
	Payload interface{} `json:"payload"`
}

// KafkaEventPublisher publishes domain events to one topic, keyed by cache key.
type KafkaEventPublisher struct {
	producer *kafka.Producer
	topic    string
}

func NewKafkaEventPublisher(producer *kafka.Producer, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, topic: topic}
}

func (p *KafkaEventPublisher) PublishEvent(ctx context.Context, kind, key string, payload interface{}) error {
	return p.producer.Publish(ctx, p.topic, []byte(key), eventEnvelope{
		Kind:    kind,
		At:      time.Now().UTC(),
		Payload: payload,
	})
}

func (p *KafkaEventPublisher) Close() error {
	return p.producer.Close()
}
