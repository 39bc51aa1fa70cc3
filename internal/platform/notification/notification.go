// Package notification delivers submission confirmations to the channel the
// submitter asked to be contacted on.
package notification

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Channel is the delivery channel for a confirmation.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	// ChannelNone means a coordinator will call; nothing is sent automatically.
	ChannelNone Channel = "none"
)

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSSender is the interface for sending SMS messages.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// Confirmation is one outbound acknowledgement of a submission.
type Confirmation struct {
	Channel   Channel
	To        string
	FirstName string
	Accepted  bool
	// ResponseTime is the promised follow-up window, e.g. "within 1 hour".
	ResponseTime string
	Message      string
}

// Template is a {{key}} substitution template.
type Template struct {
	ID      string
	Subject string
	Body    string
}

const (
	TemplateAccepted = "intake-accepted"
	TemplateDeclined = "intake-declined"
)

// TemplateEngine manages confirmation templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]Template)}
	e.RegisterTemplate(Template{
		ID:      TemplateAccepted,
		Subject: "We received your TMS consultation request",
		Body:    "Hi {{first_name}}, thank you for reaching out. A care coordinator will contact you {{response_time}}. {{message}}",
	})
	e.RegisterTemplate(Template{
		ID:      TemplateDeclined,
		Subject: "About your TMS consultation request",
		Body:    "Hi {{first_name}}, thank you for reaching out. {{message}}",
	})
	return e
}

// RegisterTemplate adds or replaces a template.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = t
}

// Render performs {{key}} replacement. Keys absent from data are left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject, body = t.Subject, t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// Dispatcher renders confirmations and hands them to a sender. It retries a
// failed send once before giving up.
type Dispatcher struct {
	email     EmailSender
	sms       SMSSender
	templates *TemplateEngine
	logger    zerolog.Logger
}

// NewDispatcher wires the senders. Nil senders fall back to the logging
// senders.
func NewDispatcher(email EmailSender, sms SMSSender, tpl *TemplateEngine, logger zerolog.Logger) *Dispatcher {
	if email == nil {
		email = NewLogEmailSender(logger)
	}
	if sms == nil {
		sms = NewLogSMSSender(logger)
	}
	if tpl == nil {
		tpl = NewTemplateEngine()
	}
	return &Dispatcher{email: email, sms: sms, templates: tpl, logger: logger}
}

// Send delivers c. It returns the channel actually used, which is
// ChannelNone when there is nothing to send.
func (d *Dispatcher) Send(ctx context.Context, c Confirmation) (Channel, error) {
	if c.Channel == ChannelNone || c.To == "" {
		return ChannelNone, nil
	}

	templateID := TemplateAccepted
	if !c.Accepted {
		templateID = TemplateDeclined
	}
	name := c.FirstName
	if name == "" {
		name = "there"
	}
	subject, body, err := d.templates.Render(templateID, map[string]string{
		"first_name":    name,
		"response_time": c.ResponseTime,
		"message":       c.Message,
	})
	if err != nil {
		return ChannelNone, fmt.Errorf("render confirmation: %w", err)
	}

	send := func() error {
		switch c.Channel {
		case ChannelEmail:
			return d.email.SendEmail(ctx, c.To, subject, body)
		case ChannelSMS:
			return d.sms.SendSMS(ctx, c.To, body)
		}
		return fmt.Errorf("unsupported channel: %s", c.Channel)
	}

	if err := send(); err != nil {
		if ctx.Err() != nil {
			return c.Channel, err
		}
		d.logger.Warn().Err(err).Str("channel", string(c.Channel)).Msg("confirmation send failed, retrying")
		if err := send(); err != nil {
			return c.Channel, fmt.Errorf("send %s confirmation: %w", c.Channel, err)
		}
	}
	return c.Channel, nil
}
