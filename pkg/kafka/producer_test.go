package kafka

import (
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestNewProducerValidatesConfig(t *testing.T) {
	cases := []struct {
		name string
		opts []ProducerOption
	}{
		{"no brokers", nil},
		{"bad compression", []ProducerOption{WithBrokers([]string{"localhost:9092"}), WithCompression("brotli")}},
		{"zero attempts", []ProducerOption{WithBrokers([]string{"localhost:9092"}), WithMaxAttempts(0)}},
	}
	for _, tc := range cases {
		if _, err := NewProducer(tc.opts...); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestNewProducerDoesNotDial(t *testing.T) {
	p, err := NewProducer(WithBrokers([]string{"127.0.0.1:1"}), WithHashByKey(true), WithAsync(true))
	if err != nil {
		t.Fatalf("new producer: %v", err)
	}
	if _, ok := p.writer.Balancer.(*kafka.Hash); !ok {
		t.Fatalf("expected hash balancer, got %T", p.writer.Balancer)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestParseCompression(t *testing.T) {
	if parseCompression("zstd") != kafka.Zstd || parseCompression("unknown") != kafka.Gzip {
		t.Fatal("unexpected compression mapping")
	}
}
