package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// SubmissionHandler processes one queued submission.
type SubmissionHandler func(ctx context.Context, s Submission) error

// MessageReader is the subset of *kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaReader builds a consumer-group reader for topic.
func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
}

// Consumer feeds queued submissions to a handler. Messages are committed
// after the handler succeeds or fails permanently; any other failure stops
// the loop uncommitted so the message is redelivered after restart.
type Consumer struct {
	r      MessageReader
	handle SubmissionHandler
	logger zerolog.Logger
}

func NewConsumer(r MessageReader, handle SubmissionHandler, logger zerolog.Logger) *Consumer {
	return &Consumer{r: r, handle: handle, logger: logger}
}

// Run consumes until ctx is cancelled, returning nil in that case.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("fetch submission: %w", err)
		}

		log := c.logger.With().
			Int("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Logger()

		if err := c.process(ctx, msg); err != nil {
			if !IsPermanent(err) {
				log.Error().Err(err).Msg("submission failed, stopping consumer")
				return err
			}
			log.Warn().Err(err).Msg("submission rejected")
		} else {
			log.Info().Msg("submission processed")
		}

		if err := c.r.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit offset %d: %w", msg.Offset, err)
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	s, err := decodeSubmission(msg.Value)
	if err != nil {
		return Permanent(fmt.Errorf("decode submission: %w", err))
	}
	return c.handle(ctx, s)
}

func (c *Consumer) Close() error {
	return c.r.Close()
}
