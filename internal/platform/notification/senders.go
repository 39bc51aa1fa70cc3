package notification

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// LogEmailSender records outbound email in the log instead of delivering it.
// Recipients are never logged.
type LogEmailSender struct {
	logger zerolog.Logger
}

func NewLogEmailSender(logger zerolog.Logger) *LogEmailSender {
	return &LogEmailSender{logger: logger}
}

func (s *LogEmailSender) SendEmail(_ context.Context, _, subject, body string) error {
	s.logger.Info().Str("channel", "email").Str("subject", subject).Int("body_len", len(body)).Msg("confirmation queued")
	return nil
}

// LogSMSSender records outbound SMS in the log instead of delivering it.
type LogSMSSender struct {
	logger zerolog.Logger
}

func NewLogSMSSender(logger zerolog.Logger) *LogSMSSender {
	return &LogSMSSender{logger: logger}
}

func (s *LogSMSSender) SendSMS(_ context.Context, _, body string) error {
	s.logger.Info().Str("channel", "sms").Int("body_len", len(body)).Msg("confirmation queued")
	return nil
}

// EmailCall records a single call to SendEmail.
type EmailCall struct {
	To      string
	Subject string
	Body    string
}

// MockEmailSender is a test double for EmailSender. FailTimes makes the
// first n calls fail.
type MockEmailSender struct {
	mu        sync.Mutex
	calls     []EmailCall
	FailTimes int
}

func (m *MockEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body})
	if len(m.calls) <= m.FailTimes {
		return errors.New("smtp connection refused")
	}
	return nil
}

// Calls returns a copy of recorded email calls.
func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// SMSCall records a single call to SendSMS.
type SMSCall struct {
	To   string
	Body string
}

// MockSMSSender is a test double for SMSSender.
type MockSMSSender struct {
	mu        sync.Mutex
	calls     []SMSCall
	FailTimes int
}

func (m *MockSMSSender) SendSMS(_ context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, SMSCall{To: to, Body: body})
	if len(m.calls) <= m.FailTimes {
		return errors.New("sms gateway unavailable")
	}
	return nil
}

// Calls returns a copy of recorded SMS calls.
func (m *MockSMSSender) Calls() []SMSCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SMSCall, len(m.calls))
	copy(out, m.calls)
	return out
}
