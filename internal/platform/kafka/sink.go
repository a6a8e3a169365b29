// Package kafka fans audit entries out to a Kafka topic.
package kafka

import (
	"context"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"nexus/internal/platform/config"
)

// Producer is the subset of *kgo.Client the sink needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// AuditSink publishes every list append as one record on the audit topic.
// The list key becomes the record key so consumers can partition by log.
type AuditSink struct {
	producer Producer
	topic    string
}

func NewAuditSink(producer Producer, topic string) *AuditSink {
	return &AuditSink{producer: producer, topic: topic}
}

// NewClient dials the configured brokers. Returns nil when none are configured.
func NewClient(cfg config.KafkaConfig) (*kgo.Client, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.AuditTopic),
		kgo.ProducerLinger(0),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return client, nil
}

func (s *AuditSink) ListAppend(ctx context.Context, key, value string) error {
	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(key),
		Value: []byte(value),
	}
	if err := s.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", s.topic, err)
	}
	return nil
}
