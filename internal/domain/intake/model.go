// Package intake maps channel-specific submission payloads into the canonical
// intake representation consumed by the scoring engine.
package intake

import (
	"sort"
	"time"
)

// ConditionType is a clinical condition the submitter reports.
type ConditionType string

const (
	ConditionDepression ConditionType = "DEPRESSION"
	ConditionAnxiety    ConditionType = "ANXIETY"
	ConditionOCD        ConditionType = "OCD"
	ConditionPTSD       ConditionType = "PTSD"
	ConditionOther      ConditionType = "OTHER"
)

// AllConditions lists every condition in canonical order.
var AllConditions = []ConditionType{
	ConditionDepression, ConditionAnxiety, ConditionOCD, ConditionPTSD, ConditionOther,
}

// DurationType buckets how long symptoms have been present.
type DurationType string

const (
	DurationLessThan6Months   DurationType = "LESS_THAN_6_MONTHS"
	DurationSixToTwelveMonths DurationType = "SIX_TO_TWELVE_MONTHS"
	DurationMoreThan12Months  DurationType = "MORE_THAN_12_MONTHS"
	DurationUnknown           DurationType = "UNKNOWN"
)

// AllDurations lists every duration bucket.
var AllDurations = []DurationType{
	DurationLessThan6Months, DurationSixToTwelveMonths, DurationMoreThan12Months, DurationUnknown,
}

// TreatmentType is a prior treatment the submitter has tried.
type TreatmentType string

const (
	TreatmentMedication TreatmentType = "MEDICATION"
	TreatmentTherapy    TreatmentType = "THERAPY"
)

// AllTreatments lists every treatment in canonical order.
var AllTreatments = []TreatmentType{TreatmentMedication, TreatmentTherapy}

// TMSType is the TMS protocol the submitter is interested in.
type TMSType string

const (
	TMSDaily       TMSType = "DAILY"
	TMSAccelerated TMSType = "ACCELERATED"
	TMSSaint       TMSType = "SAINT"
	TMSNotSure     TMSType = "NOT_SURE"
)

// AllTMSTypes lists every TMS interest value.
var AllTMSTypes = []TMSType{TMSDaily, TMSAccelerated, TMSSaint, TMSNotSure}

// InsuranceType classifies the submitter's coverage.
type InsuranceType string

const (
	InsuranceInNetwork         InsuranceType = "IN_NETWORK"
	InsuranceOtherOutOfNetwork InsuranceType = "OTHER_OUT_OF_NETWORK"
	InsuranceNone              InsuranceType = "NONE"
)

// AllInsuranceTypes lists every insurance status.
var AllInsuranceTypes = []InsuranceType{InsuranceInNetwork, InsuranceOtherOutOfNetwork, InsuranceNone}

// UrgencyType is how soon the submitter wants to start.
type UrgencyType string

const (
	UrgencyASAP         UrgencyType = "ASAP"
	UrgencyWithin30Days UrgencyType = "WITHIN_30_DAYS"
	UrgencyExploring    UrgencyType = "EXPLORING"
)

// AllUrgencies lists every urgency value.
var AllUrgencies = []UrgencyType{UrgencyASAP, UrgencyWithin30Days, UrgencyExploring}

// ContactMethodType is the submitter's preferred follow-up channel.
type ContactMethodType string

const (
	ContactPhone ContactMethodType = "PHONE"
	ContactEmail ContactMethodType = "EMAIL"
	ContactText  ContactMethodType = "TEXT"
)

// AllContactMethods lists every contact method.
var AllContactMethods = []ContactMethodType{ContactPhone, ContactEmail, ContactText}

// SourceType identifies the channel a submission arrived through. It is
// carried for attribution only.
type SourceType string

const (
	SourceWidget    SourceType = "WIDGET"
	SourceJotForm   SourceType = "JOTFORM"
	SourceGoogleAds SourceType = "GOOGLE_ADS"
	SourceReferral  SourceType = "REFERRAL"
	SourceManual    SourceType = "MANUAL"
	SourceAPI       SourceType = "API"
	SourceImport    SourceType = "IMPORT"
)

// AllSources lists every source.
var AllSources = []SourceType{
	SourceWidget, SourceJotForm, SourceGoogleAds, SourceReferral, SourceManual, SourceAPI, SourceImport,
}

// ParseSource resolves a source name case-insensitively, accepting the
// URL-friendly forms used in routes ("google-ads").
func ParseSource(s string) (SourceType, bool) {
	key := normalizeKey(s)
	for _, src := range AllSources {
		if normalizeKey(string(src)) == key {
			return src, true
		}
	}
	return "", false
}

// Intake is the canonical, channel-independent representation of a
// submission. A value returned by Mapper.Map is treated as immutable.
type Intake struct {
	Conditions             []ConditionType       `json:"conditions"`
	SeverityScores         map[ConditionType]int `json:"severity_scores,omitempty"`
	SymptomDuration        DurationType          `json:"symptom_duration"`
	TreatmentHistory       []TreatmentType       `json:"treatment_history"`
	TMSInterest            TMSType               `json:"tms_interest"`
	InsuranceStatus        InsuranceType         `json:"insurance_status"`
	Urgency                UrgencyType           `json:"urgency"`
	ZipCode                string                `json:"zip_code"`
	DateOfBirth            *time.Time            `json:"date_of_birth,omitempty"`
	Age                    *int                  `json:"age,omitempty"`
	SubmittedAt            time.Time             `json:"submitted_at"`
	PreferredContactMethod ContactMethodType     `json:"preferred_contact_method"`
	Source                 SourceType            `json:"source"`
}

// HasCondition reports whether c is among the selected conditions.
func (in Intake) HasCondition(c ConditionType) bool {
	for _, have := range in.Conditions {
		if have == c {
			return true
		}
	}
	return false
}

// HasTreatment reports whether t is in the treatment history.
func (in Intake) HasTreatment(t TreatmentType) bool {
	for _, have := range in.TreatmentHistory {
		if have == t {
			return true
		}
	}
	return false
}

func conditionRank(c ConditionType) int {
	for i, known := range AllConditions {
		if known == c {
			return i
		}
	}
	return len(AllConditions)
}

// conditionSet collapses duplicates and orders by canonical rank so equal
// sets always compare equal.
func conditionSet(in []ConditionType) []ConditionType {
	seen := make(map[ConditionType]bool, len(in))
	out := make([]ConditionType, 0, len(in))
	for _, c := range in {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return conditionRank(out[i]) < conditionRank(out[j]) })
	return out
}

func treatmentSet(in []TreatmentType) []TreatmentType {
	out := make([]TreatmentType, 0, len(AllTreatments))
	for _, t := range AllTreatments {
		for _, have := range in {
			if have == t {
				out = append(out, t)
				break
			}
		}
	}
	return out
}
