package intake

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Clock supplies the submission timestamp. Tests inject a fixed clock.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// Adapter turns one channel's decoded payload into an Intake.
type Adapter interface {
	Adapt(payload map[string]any, submittedAt time.Time) (Intake, error)
}

// Mapper dispatches submissions to the adapter registered for their source.
type Mapper struct {
	adapters map[SourceType]Adapter
	clock    Clock
	n        *Normalizer
}

// NewMapper registers the built-in adapters. Sources whose payloads are
// already close to canonical shape (referral, manual entry, API, import)
// share the widget adapter.
func NewMapper(n *Normalizer, clock Clock) *Mapper {
	if clock == nil {
		clock = SystemClock
	}
	widget := NewWidgetAdapter(n)
	return &Mapper{
		clock: clock,
		n:     n,
		adapters: map[SourceType]Adapter{
			SourceWidget:    widget,
			SourceReferral:  widget,
			SourceManual:    widget,
			SourceAPI:       widget,
			SourceImport:    widget,
			SourceJotForm:   NewJotFormAdapter(n),
			SourceGoogleAds: NewGoogleAdsAdapter(n),
		},
	}
}

// Register replaces the adapter for source.
func (m *Mapper) Register(source SourceType, a Adapter) {
	m.adapters[source] = a
}

// Map converts payload into an Intake tagged with source. Any failure is a
// *MappingError.
func (m *Mapper) Map(source SourceType, payload map[string]any) (Intake, error) {
	a, ok := m.adapters[source]
	if !ok {
		return Intake{}, &MappingError{Source: source, Field: "source", Reason: "unsupported source"}
	}
	if len(payload) == 0 {
		return Intake{}, &MappingError{Source: source, Reason: "empty payload"}
	}
	in, err := a.Adapt(payload, m.clock.Now().UTC())
	if err != nil {
		var me *MappingError
		if errors.As(err, &me) {
			me.Source = source
			return Intake{}, me
		}
		return Intake{}, &MappingError{Source: source, Reason: "adapter failed", Cause: err}
	}
	in.Source = source
	return in, nil
}

// rawIntake carries the channel values an adapter extracted, before
// normalization.
type rawIntake struct {
	conditions        []any
	conditionsPresent bool
	severity          map[ConditionType]int
	duration          string
	treatments        []string
	tmsInterest       string
	insurance         string
	urgency           string
	zip               string
	dob               any
	age               any
	contactMethod     string
}

// assemble normalizes raw into an Intake. It is shared by every adapter so
// identical clinical facts produce identical intakes regardless of channel.
func (n *Normalizer) assemble(raw rawIntake, submittedAt time.Time) (Intake, error) {
	if !raw.conditionsPresent {
		return Intake{}, &MappingError{Field: "conditions", Reason: "field is required"}
	}
	conditions, err := n.Conditions(raw.conditions)
	if err != nil {
		return Intake{}, &MappingError{Field: "conditions", Reason: "no condition could be normalized", Cause: err}
	}

	zip := ZipCode(raw.zip)
	if zip == "" {
		return Intake{}, &MappingError{Field: "zip_code", Reason: "field is required"}
	}

	in := Intake{
		Conditions:             conditions,
		SymptomDuration:        n.Duration(raw.duration),
		TreatmentHistory:       n.Treatments(raw.treatments),
		TMSInterest:            n.TMSInterest(raw.tmsInterest),
		InsuranceStatus:        n.Insurance(raw.insurance),
		Urgency:                n.Urgency(raw.urgency),
		ZipCode:                zip,
		SubmittedAt:            submittedAt,
		PreferredContactMethod: n.ContactMethod(raw.contactMethod),
	}

	for c, score := range raw.severity {
		if !in.HasCondition(c) {
			continue
		}
		if in.SeverityScores == nil {
			in.SeverityScores = make(map[ConditionType]int)
		}
		in.SeverityScores[c] = score
	}

	// A malformed date of birth or age counts as not provided, so the minor
	// check falls back to whichever of the two parsed.
	if dob, err := parseDate(raw.dob); err == nil {
		in.DateOfBirth = dob
	}
	if age, err := parseAge(raw.age); err == nil {
		in.Age = age
	}
	return in, nil
}

func parseAge(v any) (*int, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return nil, nil
	}
	age, ok := asInt(v)
	if !ok || age < 0 || age > 130 {
		return nil, fmt.Errorf("invalid age %v", v)
	}
	return &age, nil
}

var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"2006/01/02",
	"01-02-2006",
	time.RFC3339,
}

// parseDate accepts the common string layouts and the {month, day, year}
// object form date widgets emit. Blank values mean "not provided".
func parseDate(v any) (*time.Time, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil, nil
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
				return &d, nil
			}
		}
		return nil, fmt.Errorf("unsupported date format %q", s)
	case map[string]any:
		year, okY := asInt(x["year"])
		month, okM := asInt(x["month"])
		day, okD := asInt(x["day"])
		if !okY && !okM && !okD {
			return nil, nil
		}
		if !okY || !okM || !okD || month < 1 || month > 12 || day < 1 || day > 31 {
			return nil, fmt.Errorf("incomplete date %v", x)
		}
		d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		if d.Day() != day {
			return nil, fmt.Errorf("invalid calendar date %v", x)
		}
		return &d, nil
	}
	return nil, fmt.Errorf("unsupported date value of type %T", v)
}
