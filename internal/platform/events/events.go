// Package events carries lead pipeline messages over Kafka.
package events

import (
	"encoding/json"
	"errors"
	"time"
)

const TypeLeadScored = "lead.scored"

// LeadScored is published after a lead is persisted. It carries no contact
// data.
type LeadScored struct {
	EventID    string    `json:"event_id"`
	Type       string    `json:"type"`
	LeadID     string    `json:"lead_id"`
	Source     string    `json:"source"`
	Tier       string    `json:"tier"`
	Score      int       `json:"score"`
	Duplicate  bool      `json:"duplicate"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Submission is a raw intake delivered through the submissions topic, for
// channels that push to a queue instead of calling the HTTP API.
type Submission struct {
	Source  string         `json:"source"`
	Payload map[string]any `json:"payload"`
}

func decodeSubmission(data []byte) (Submission, error) {
	var s Submission
	if err := json.Unmarshal(data, &s); err != nil {
		return Submission{}, err
	}
	if s.Source == "" {
		return Submission{}, errors.New("submission has no source")
	}
	return s, nil
}

// PermanentError marks a handler failure that retrying cannot fix. The
// consumer commits the message and moves on.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the consumer will not retry it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err is marked permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
