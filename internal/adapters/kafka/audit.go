package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"task-tracker/internal/websocket"

	"github.com/IBM/sarama"
)

// AuditProducer publishes denied room actions, keyed by user id so one
// user's attempts stay ordered on a partition.
type AuditProducer struct {
	producer sarama.SyncProducer
	topic    string
}

func NewAuditProducer(producer sarama.SyncProducer, topic string) *AuditProducer {
	return &AuditProducer{producer: producer, topic: topic}
}

func (p *AuditProducer) PublishAudit(ctx context.Context, event websocket.AuditEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic:     p.topic,
		Key:       sarama.StringEncoder(event.UserID),
		Value:     sarama.ByteEncoder(data),
		Timestamp: event.At,
	}
	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("failed to publish audit event: %w", err)
	}
	return nil
}

func (p *AuditProducer) Close() error {
	return p.producer.Close()
}
