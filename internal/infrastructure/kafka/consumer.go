package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/example/car-rental-events/internal/infrastructure/store"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

type MessageHandler func(ctx context.Context, key, value []byte) error

type Consumer struct {
	reader *kafka.Reader
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader}
}

// Consume hands every message to handler and commits it afterwards. A
// handler error is logged and the message is still committed so a single
// bad event cannot stall the partition.
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	logger := log.With().Str("component", "kafka-consumer").Str("topic", c.reader.Config().Topic).Logger()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// reader closed
			if errors.Is(err, io.EOF) {
				return err
			}
			logger.Error().Err(err).Msg("error reading message")
			continue
		}

		if err := handler(ctx, msg.Key, msg.Value); err != nil {
			logger.Error().Err(err).
				Str("key", string(msg.Key)).
				Int("partition", msg.Partition).
				Int64("offset", msg.Offset).
				Msg("error handling message")
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			logger.Warn().Err(err).Int64("offset", msg.Offset).Msg("commit failed")
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeEvent turns a message value written by Producer back into an event.
func DecodeEvent(value []byte) (store.Event, error) {
	var event store.Event
	if err := json.Unmarshal(value, &event); err != nil {
		return store.Event{}, fmt.Errorf("decode event: %w", err)
	}
	if event.AggregateID == "" || event.EventType == "" {
		return store.Event{}, fmt.Errorf("decode event: missing aggregate_id or event_type")
	}
	return event, nil
}
