package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaPublisher_PublishLeadScored(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisher(w, zerolog.Nop())
	fixed := time.Date(2026, 3, 15, 17, 30, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	err := p.PublishLeadScored(context.Background(), LeadScored{
		LeadID: "lead-1",
		Source: "WIDGET",
		Tier:   "HOT",
		Score:  195,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "lead-1" {
		t.Errorf("expected key lead-1, got %s", msg.Key)
	}

	var got LeadScored
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.EventID == "" {
		t.Error("expected event id to be generated")
	}
	if got.Type != TypeLeadScored || got.Tier != "HOT" || got.Score != 195 {
		t.Errorf("unexpected event: %+v", got)
	}
	if !got.OccurredAt.Equal(fixed) {
		t.Errorf("expected occurred_at %s, got %s", fixed, got.OccurredAt)
	}
}

func TestKafkaPublisher_WrapsWriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := NewKafkaPublisher(w, zerolog.Nop())

	if err := p.PublishLeadScored(context.Background(), LeadScored{LeadID: "x"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	if err := p.PublishLeadScored(context.Background(), LeadScored{}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// fakeReader serves queued messages, then blocks until the context ends.
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
	fetchErr  error
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if r.fetchErr != nil {
		r.mu.Unlock()
		return kafka.Message{}, r.fetchErr
	}
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) Committed() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func submissionMessage(offset int64, s string) kafka.Message {
	return kafka.Message{Offset: offset, Value: []byte(s)}
}

func TestConsumer_CommitsProcessedAndRejected(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{
		submissionMessage(1, `{"source":"widget","payload":{"zip_code":"85004"}}`),
		submissionMessage(2, `not json`),
		submissionMessage(3, `{"source":"jotform","payload":{}}`),
		submissionMessage(4, `{"payload":{}}`),
	}}

	var seen []string
	handler := func(_ context.Context, s Submission) error {
		seen = append(seen, s.Source)
		if s.Source == "jotform" {
			return Permanent(errors.New("empty payload"))
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewConsumer(r, handler, zerolog.Nop()).Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for len(r.Committed()) < 4 {
		select {
		case <-deadline:
			t.Fatalf("timed out, committed %v", r.Committed())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("expected nil on cancel, got %v", err)
	}

	if len(seen) != 2 || seen[0] != "widget" || seen[1] != "jotform" {
		t.Errorf("expected handler for widget and jotform, got %v", seen)
	}
}

func TestConsumer_StopsOnTransientError(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{
		submissionMessage(7, `{"source":"widget","payload":{"a":1}}`),
	}}
	handler := func(context.Context, Submission) error {
		return errors.New("database unavailable")
	}

	err := NewConsumer(r, handler, zerolog.Nop()).Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(r.Committed()) != 0 {
		t.Errorf("expected no commits, got %v", r.Committed())
	}
}

func TestConsumer_FetchError(t *testing.T) {
	r := &fakeReader{fetchErr: errors.New("group coordinator not available")}
	if err := NewConsumer(r, nil, zerolog.Nop()).Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestPermanent(t *testing.T) {
	base := errors.New("bad input")
	err := Permanent(base)
	if !IsPermanent(err) {
		t.Error("expected permanent")
	}
	if !errors.Is(err, base) {
		t.Error("expected wrapped error")
	}
	if IsPermanent(base) {
		t.Error("plain error should not be permanent")
	}
	if Permanent(nil) != nil {
		t.Error("expected nil for nil error")
	}
}

type countingPublisher struct {
	calls int
	err   error
}

func (p *countingPublisher) PublishLeadScored(context.Context, LeadScored) error {
	p.calls++
	return p.err
}

func (p *countingPublisher) Close() error { return p.err }

func TestMultiPublisher(t *testing.T) {
	failing := &countingPublisher{err: errors.New("broker down")}
	ok := &countingPublisher{}
	m := MultiPublisher{failing, ok}

	err := m.PublishLeadScored(context.Background(), LeadScored{LeadID: "lead-1"})
	if !errors.Is(err, failing.err) {
		t.Errorf("expected joined broker error, got %v", err)
	}
	if failing.calls != 1 || ok.calls != 1 {
		t.Errorf("expected every publisher to be called, got %d and %d", failing.calls, ok.calls)
	}
	if err := m.Close(); err == nil {
		t.Error("expected close error")
	}
	if err := (MultiPublisher{ok}).PublishLeadScored(context.Background(), LeadScored{}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
