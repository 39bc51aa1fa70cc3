package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// Publisher emits lead events.
type Publisher interface {
	PublishLeadScored(ctx context.Context, e LeadScored) error
	Close() error
}

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events keyed by lead id so every event for one
// lead lands on the same partition.
type KafkaPublisher struct {
	w      MessageWriter
	logger zerolog.Logger
	now    func() time.Time
}

// NewKafkaWriter builds the writer for topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
}

func NewKafkaPublisher(w MessageWriter, logger zerolog.Logger) *KafkaPublisher {
	return &KafkaPublisher{w: w, logger: logger, now: time.Now}
}

func (p *KafkaPublisher) PublishLeadScored(ctx context.Context, e LeadScored) error {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = p.now().UTC()
	}
	e.Type = TypeLeadScored

	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", e.Type, err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.LeadID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
		},
	}); err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	p.logger.Debug().Str("event_id", e.EventID).Str("lead_id", e.LeadID).Msg("event published")
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// NoopPublisher drops events. It is used when no brokers are configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishLeadScored(context.Context, LeadScored) error { return nil }

func (NoopPublisher) Close() error { return nil }

// MultiPublisher fans an event out to several publishers. Every publisher
// is attempted; failures are joined.
type MultiPublisher []Publisher

func (m MultiPublisher) PublishLeadScored(ctx context.Context, e LeadScored) error {
	var errs []error
	for _, p := range m {
		if err := p.PublishLeadScored(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiPublisher) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
