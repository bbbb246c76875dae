package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/yrcho/time-sale/internal/core/domain"
)

// Producer publishes purchase requests keyed by time-sale id, so one sale's
// requests land on one partition in rough arrival order.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
	}
}

func (p *Producer) Enqueue(ctx context.Context, req *domain.PurchaseRequest) error {
	value, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal purchase request: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(req.TimeSaleID),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("write purchase request: %w", err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// Handler processes one decoded purchase request to a terminal result.
type Handler func(ctx context.Context, req *domain.PurchaseRequest) error

const (
	handleRetryBackoff    = 100 * time.Millisecond
	handleRetryMaxBackoff = 5 * time.Second
)

// Consumer pulls purchase requests for a consumer group and hands them to the
// handler. The offset commits only after the handler returns nil, so delivery
// is at least once and the handler must be idempotent.
type Consumer struct {
	reader  *kafka.Reader
	handler Handler
	logger  zerolog.Logger
}

func NewConsumer(brokers []string, topic, groupID string, handler Handler, logger zerolog.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 10e3,
			MaxBytes: 10e6,
		}),
		handler: handler,
		logger:  logger,
	}
}

// Start consumes until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info().Str("topic", c.reader.Config().Topic).Msg("purchase consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info().Msg("purchase consumer shutting down")
				return nil
			}
			c.logger.Error().Err(err).Msg("failed to fetch message")
			time.Sleep(time.Second)
			continue
		}

		var req domain.PurchaseRequest
		if err := json.Unmarshal(msg.Value, &req); err != nil {
			// malformed payloads commit, a retry can never decode them
			c.logger.Error().Err(err).Msg("skipping malformed purchase request")
		} else if err := handleWithRetry(ctx, c.handler, c.logger, &req); err != nil {
			// shutdown mid-retry: the offset stays uncommitted so the group
			// redelivers the message
			c.logger.Info().Msg("purchase consumer shutting down")
			return nil
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error().Err(err).Msg("failed to commit offset")
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// handleWithRetry runs the handler on one message until it succeeds.
// Committing any later offset on the same partition would mark this message
// consumed, so the consumer must not fetch past a failed one: the message is
// retried in place with capped backoff. Returns non-nil only when ctx ends.
func handleWithRetry(ctx context.Context, handler Handler, logger zerolog.Logger, req *domain.PurchaseRequest) error {
	backoff := handleRetryBackoff
	for attempt := 1; ; attempt++ {
		err := handler(ctx, req)
		if err == nil {
			return nil
		}
		logger.Error().Err(err).
			Str("request_id", req.RequestID).
			Int("attempt", attempt).
			Msg("processing failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > handleRetryMaxBackoff {
			backoff = handleRetryMaxBackoff
		}
	}
}
