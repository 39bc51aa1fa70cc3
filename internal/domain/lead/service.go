package lead

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/neuroreach/intake/internal/domain/intake"
	"github.com/neuroreach/intake/internal/domain/response"
	"github.com/neuroreach/intake/internal/domain/scoring"
	"github.com/neuroreach/intake/internal/platform/events"
	"github.com/neuroreach/intake/internal/platform/notification"
)

// Vault protects contact data at rest.
type Vault interface {
	SealJSON(v any, recordID string) (string, error)
	OpenJSON(ciphertext, recordID string, v any) error
	Fingerprints(email, phone string) []string
}

// Notifier delivers the submitter confirmation.
type Notifier interface {
	Send(ctx context.Context, c notification.Confirmation) (notification.Channel, error)
}

// IngestResult is what a submission produces. Only Confirmation is shown to
// the submitter.
type IngestResult struct {
	Lead         *Lead
	Confirmation response.Confirmation
	Duplicate    bool
}

// Preview is a dry run of mapping and scoring.
type Preview struct {
	Intake       intake.Intake         `json:"intake"`
	Breakdown    scoring.Breakdown     `json:"breakdown"`
	Confirmation response.Confirmation `json:"confirmation"`
}

// NewPreview scores in and formats the confirmation it would produce.
func NewPreview(engine *scoring.Engine, in intake.Intake) *Preview {
	b := engine.Score(in)
	return &Preview{Intake: in, Breakdown: b, Confirmation: response.Format(b)}
}

type Service struct {
	repo        Repository
	mapper      *intake.Mapper
	engine      *scoring.Engine
	vault       Vault
	publisher   events.Publisher
	notifier    Notifier
	validate    *validator.Validate
	dedupWindow time.Duration
	now         func() time.Time
	logger      zerolog.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithDedupWindow sets how long a resubmission from the same contact folds
// into the existing lead. Zero disables deduplication.
func WithDedupWindow(d time.Duration) Option {
	return func(s *Service) { s.dedupWindow = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(repo Repository, mapper *intake.Mapper, engine *scoring.Engine, vault Vault,
	publisher events.Publisher, notifier Notifier, opts ...Option) *Service {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	s := &Service{
		repo:        repo,
		mapper:      mapper,
		engine:      engine,
		vault:       vault,
		publisher:   publisher,
		notifier:    notifier,
		validate:    validator.New(),
		dedupWindow: 24 * time.Hour,
		now:         time.Now,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest maps, scores and stores one submission, then publishes the scored
// event and confirms to the submitter. Publishing and confirmation failures
// are logged and never fail the submission.
func (s *Service) Ingest(ctx context.Context, source intake.SourceType, payload map[string]any) (*IngestResult, error) {
	in, err := s.mapper.Map(source, payload)
	if err != nil {
		return nil, err
	}
	contact := s.mapper.Contact(source, payload)
	if err := s.checkContact(contact); err != nil {
		return nil, err
	}
	b := s.engine.Score(in)

	l := &Lead{
		ID:              uuid.New(),
		Source:          source,
		Intake:          in,
		Score:           b.TotalScore,
		Tier:            b.PriorityTier,
		Breakdown:       b,
		Status:          StatusNew,
		SubmissionCount: 1,
		LastSubmittedAt: in.SubmittedAt,
		Fingerprints:    s.vault.Fingerprints(contact.Email, contact.Phone),
	}
	l.ContactCiphertext, err = s.vault.SealJSON(contact, l.ID.String())
	if err != nil {
		return nil, fmt.Errorf("seal contact: %w", err)
	}

	since := in.SubmittedAt.Add(-s.dedupWindow)
	if s.dedupWindow <= 0 || len(l.Fingerprints) == 0 {
		// A cutoff after the submission matches nothing.
		since = in.SubmittedAt.Add(time.Second)
	}
	existing, err := s.repo.CreateOrResubmit(ctx, l, since)
	if err != nil {
		return nil, fmt.Errorf("store lead: %w", err)
	}

	res := &IngestResult{Lead: l, Confirmation: response.Format(b)}
	if existing != nil {
		res.Lead, res.Duplicate = existing, true
		res.Confirmation = response.ForTier(existing.Tier)
	}

	s.publish(ctx, res)
	if !res.Duplicate {
		s.confirm(ctx, in.PreferredContactMethod, contact, res.Confirmation)
	}

	s.logger.Info().
		Str("lead_id", res.Lead.ID.String()).
		Str("source", string(source)).
		Str("tier", string(res.Lead.Tier)).
		Bool("duplicate", res.Duplicate).
		Msg("lead ingested")
	return res, nil
}

func (s *Service) checkContact(c intake.Contact) error {
	err := s.validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	ce := &ContactError{}
	for _, fe := range verrs {
		ce.Fields = append(ce.Fields, fe.Field())
	}
	return ce
}

func (s *Service) publish(ctx context.Context, res *IngestResult) {
	ev := events.LeadScored{
		EventID:    uuid.NewString(),
		Type:       events.TypeLeadScored,
		LeadID:     res.Lead.ID.String(),
		Source:     string(res.Lead.Source),
		Tier:       string(res.Lead.Tier),
		Score:      res.Lead.Score,
		Duplicate:  res.Duplicate,
		OccurredAt: s.now().UTC(),
	}
	if err := s.publisher.PublishLeadScored(ctx, ev); err != nil {
		s.logger.Error().Err(err).Str("lead_id", ev.LeadID).Msg("failed to publish lead.scored")
	}
}

func (s *Service) confirm(ctx context.Context, method intake.ContactMethodType, c intake.Contact, conf response.Confirmation) {
	if s.notifier == nil {
		return
	}
	msg := notification.Confirmation{
		FirstName:    c.FirstName,
		Accepted:     conf.Accepted,
		ResponseTime: conf.EstimatedResponseTime,
		Message:      conf.Message,
	}
	switch {
	case method == intake.ContactEmail && c.Email != "":
		msg.Channel, msg.To = notification.ChannelEmail, c.Email
	case method == intake.ContactText && c.Phone != "":
		msg.Channel, msg.To = notification.ChannelSMS, c.Phone
	default:
		// Phone follow-up is made by a coordinator.
		return
	}
	if _, err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn().Err(err).Str("channel", string(msg.Channel)).Msg("confirmation not delivered")
	}
}

// Preview maps and scores without storing anything.
func (s *Service) Preview(source intake.SourceType, payload map[string]any) (*Preview, error) {
	in, err := s.mapper.Map(source, payload)
	if err != nil {
		return nil, err
	}
	return NewPreview(s.engine, in), nil
}

// GetLead returns the lead with its contact decrypted.
func (s *Service) GetLead(ctx context.Context, id uuid.UUID) (*Lead, error) {
	l, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.ContactCiphertext != "" {
		var c intake.Contact
		if err := s.vault.OpenJSON(l.ContactCiphertext, l.ID.String(), &c); err != nil {
			return nil, fmt.Errorf("open contact: %w", err)
		}
		l.Contact = &c
	}
	return l, nil
}

// ListLeads returns the coordinator queue. Contacts stay encrypted.
func (s *Service) ListLeads(ctx context.Context, f Filter, limit, offset int) ([]*Lead, int, error) {
	return s.repo.List(ctx, f, limit, offset)
}

// UpdateStatus moves a lead through the workflow. A concurrent change
// between the read and the write reports ErrConflict.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, to Status) (*Lead, error) {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == to {
		return current, nil
	}
	if !CanTransition(current.Status, to) {
		return nil, &TransitionError{From: current.Status, To: to}
	}
	updated, err := s.repo.UpdateStatus(ctx, id, current.Status, to)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("lead_id", id.String()).
		Str("from", string(current.Status)).
		Str("to", string(to)).
		Msg("lead status changed")
	return updated, nil
}

// Analytics rolls up lead counts and average scores since the given time.
func (s *Service) Analytics(ctx context.Context, since time.Time) (*Analytics, error) {
	rows, err := s.repo.CountBySourceAndTier(ctx, since)
	if err != nil {
		return nil, err
	}
	a := &Analytics{
		Since:    since.UTC(),
		ByTier:   make(map[scoring.PriorityType]int),
		BySource: make(map[intake.SourceType]*SourceStats),
	}
	sums := make(map[intake.SourceType]int)
	for _, r := range rows {
		a.Total += r.Count
		a.ByTier[r.Tier] += r.Count
		st, ok := a.BySource[r.Source]
		if !ok {
			st = &SourceStats{ByTier: make(map[scoring.PriorityType]int)}
			a.BySource[r.Source] = st
		}
		st.Count += r.Count
		st.ByTier[r.Tier] += r.Count
		sums[r.Source] += r.ScoreSum
	}
	for src, st := range a.BySource {
		if st.Count > 0 {
			st.AverageScore = float64(sums[src]) / float64(st.Count)
		}
	}
	return a, nil
}

// HandleSubmission ingests a queued submission. Errors that a redelivery
// cannot fix are marked permanent.
func (s *Service) HandleSubmission(ctx context.Context, sub events.Submission) error {
	source, ok := intake.ParseSource(sub.Source)
	if !ok {
		return events.Permanent(fmt.Errorf("unknown source %q", sub.Source))
	}
	_, err := s.Ingest(ctx, source, sub.Payload)
	var mErr *intake.MappingError
	var cErr *ContactError
	if errors.As(err, &mErr) || errors.As(err, &cErr) {
		return events.Permanent(err)
	}
	return err
}
