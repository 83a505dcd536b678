package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/shiftforge/escrow-payout-service/internal/contracts"
)

// KafkaPublisher writes envelopes to Kafka, one topic per event type with the
// envelope partition key as the message key so per-record ordering holds.
type KafkaPublisher struct {
	writer       *kafka.Writer
	topicByEvent map[string]string
	dlqTopic     string
}

func NewKafkaPublisher(brokers []string, topicByEvent map[string]string, dlqTopic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
		},
		topicByEvent: topicByEvent,
		dlqTopic:     dlqTopic,
	}, nil
}

func (p *KafkaPublisher) PublishDomain(ctx context.Context, event contracts.EventEnvelope) error {
	return p.publish(ctx, event)
}

func (p *KafkaPublisher) PublishAnalytics(ctx context.Context, event contracts.EventEnvelope) error {
	return p.publish(ctx, event)
}

func (p *KafkaPublisher) PublishDLQ(ctx context.Context, record contracts.DLQRecord) error {
	if p.dlqTopic == "" {
		return fmt.Errorf("kafka publisher has no dlq topic configured")
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal dlq record: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.dlqTopic,
		Key:   []byte(record.OriginalEvent.EventID),
		Value: payload,
		Time:  time.Now().UTC(),
	})
}

func (p *KafkaPublisher) publish(ctx context.Context, event contracts.EventEnvelope) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	topic := event.EventType
	if mapped, ok := p.topicByEvent[event.EventType]; ok && mapped != "" {
		topic = mapped
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(event.PartitionKey),
		Value: payload,
		Time:  time.Now().UTC(),
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
