package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"task-tracker/internal/websocket"

	kafkago "github.com/segmentio/kafka-go"
)

// MessageReader is the part of *kafka.Reader the consumer drives.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// TaskEventSink applies a decoded task event.
type TaskEventSink interface {
	ApplyTaskEvent(ev websocket.TaskEvent) error
}

// NewTaskEventReader opens a consumer-group reader on the task events topic.
func NewTaskEventReader(brokers []string, topic, groupID string) *kafkago.Reader {
	return kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 1 << 20,
	})
}

const (
	minFetchBackoff = 500 * time.Millisecond
	maxFetchBackoff = 30 * time.Second
)

// TaskEventConsumer feeds task events from Kafka into the hub.
type TaskEventConsumer struct {
	reader MessageReader
	sink   TaskEventSink

	minBackoff time.Duration
	maxBackoff time.Duration
}

func NewTaskEventConsumer(reader MessageReader, sink TaskEventSink) *TaskEventConsumer {
	return &TaskEventConsumer{
		reader:     reader,
		sink:       sink,
		minBackoff: minFetchBackoff,
		maxBackoff: maxFetchBackoff,
	}
}

// Run consumes until ctx is cancelled. Undecodable or invalid events are
// logged and committed so they do not block the partition. Fetch errors are
// retried with exponential backoff.
func (c *TaskEventConsumer) Run(ctx context.Context) error {
	slog.Info("Task event consumer started")
	backoff := c.minBackoff
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("Task event consumer stopped")
				return nil
			}
			slog.Error("Failed to fetch task event, retrying", "backoff", backoff, "error", err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				slog.Info("Task event consumer stopped")
				return nil
			}
			backoff = min(backoff*2, c.maxBackoff)
			continue
		}
		backoff = c.minBackoff

		c.handle(msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("Failed to commit task event", "partition", msg.Partition, "offset", msg.Offset, "error", err)
		}
	}
}

func (c *TaskEventConsumer) handle(msg kafkago.Message) {
	ev, err := DecodeTaskEvent(msg)
	if err != nil {
		slog.Warn("Skipping malformed task event", "partition", msg.Partition, "offset", msg.Offset, "error", err)
		return
	}

	if err := c.sink.ApplyTaskEvent(ev); err != nil {
		if errors.Is(err, websocket.ErrInvalidTaskEvent) {
			slog.Warn("Skipping invalid task event", "offset", msg.Offset, "error", err)
			return
		}
		slog.Error("Failed to apply task event", "taskID", ev.TaskID, "type", ev.Type, "error", err)
		return
	}
	slog.Debug("Task event applied", "taskID", ev.TaskID, "type", ev.Type)
}

// DecodeTaskEvent parses a message value. The message key stands in for a
// missing taskId.
func DecodeTaskEvent(msg kafkago.Message) (websocket.TaskEvent, error) {
	var ev websocket.TaskEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return ev, fmt.Errorf("failed to decode task event: %w", err)
	}
	if ev.TaskID == "" {
		ev.TaskID = string(msg.Key)
	}
	return ev, nil
}

func (c *TaskEventConsumer) Close() error {
	return c.reader.Close()
}
