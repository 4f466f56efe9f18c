package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/itsfredrick/vayva-platform-sub007/internal/consent/domain"
)

// messageReader is the part of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer feeds inbound messages from a Kafka topic into a KeywordHandler.
// Offsets are committed after a message is handled, so delivery is at-least-once.
// A message that fails on storage is retried until it succeeds or the consumer stops,
// and its offset is not committed in the meantime.
type Consumer struct {
	reader  messageReader
	handler *KeywordHandler
	logger  *zap.Logger

	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewConsumer returns a consumer reading topic as groupID.
func NewConsumer(brokers []string, topic, groupID string, handler *KeywordHandler, logger *zap.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        time.Second,
		CommitInterval: time.Second,
	})
	return newConsumer(reader, handler, logger)
}

func newConsumer(reader messageReader, handler *KeywordHandler, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{
		reader:         reader,
		handler:        handler,
		logger:         logger,
		initialBackoff: 500 * time.Millisecond,
		maxBackoff:     30 * time.Second,
	}
}

// Run consumes until ctx is cancelled. It returns nil on cancellation.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		m, err := backoff.Retry(ctx, func() (kafka.Message, error) {
			return c.reader.FetchMessage(ctx)
		}, c.retryOptions("inbound: fetch failed, retrying")...)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if !c.process(ctx, m) {
			// Cancelled mid-retry: leave the offset for the next consumer.
			return nil
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.logger.Error("inbound: commit", zap.Int64("offset", m.Offset), zap.Error(err))
		}
	}
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// process handles one Kafka message and reports whether its offset may be committed.
// Storage failures are retried with capped exponential backoff until ctx is cancelled.
// Messages that can never succeed are logged and skipped.
func (c *Consumer) process(ctx context.Context, m kafka.Message) bool {
	var msg Message
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		c.logger.Warn("inbound: undecodable message", zap.Int64("offset", m.Offset), zap.Error(err))
		return true
	}
	outcome, err := backoff.Retry(ctx, func() (Outcome, error) {
		outcome, err := c.handler.Handle(ctx, msg)
		if err != nil && !errors.Is(err, domain.ErrStorageUnavailable) {
			return outcome, backoff.Permanent(err)
		}
		return outcome, err
	}, c.retryOptions("inbound: storage unavailable, retrying", zap.String("message_id", msg.ID), zap.Int64("offset", m.Offset))...)
	switch {
	case err == nil:
		c.logger.Debug("inbound: handled", zap.String("message_id", msg.ID), zap.String("outcome", string(outcome)))
		return true
	case ctx.Err() != nil:
		return false
	default:
		c.logger.Error("inbound: message dropped",
			zap.String("message_id", msg.ID),
			zap.String("merchant_id", msg.MerchantID),
			zap.Error(err))
		return true
	}
}

// retryOptions retries without an elapsed-time limit, logging each failure with fields.
func (c *Consumer) retryOptions(msg string, fields ...zap.Field) []backoff.RetryOption {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialBackoff
	b.MaxInterval = c.maxBackoff
	return []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn(msg, append(fields, zap.Duration("retry_in", next), zap.Error(err))...)
		}),
	}
}
