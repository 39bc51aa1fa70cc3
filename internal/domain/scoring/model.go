// Package scoring computes a lead's priority score and tier from its
// canonical intake. Scoring is a pure function of the intake and the
// service-area policy: no clock, no I/O, no shared mutable state.
package scoring

import "strings"

// PriorityType is the coarse tier that orders the coordinator queue.
type PriorityType string

const (
	PriorityHot          PriorityType = "HOT"
	PriorityMedium       PriorityType = "MEDIUM"
	PriorityLow          PriorityType = "LOW"
	PriorityDisqualified PriorityType = "DISQUALIFIED"
)

// AllPriorities lists the tiers from most to least urgent.
var AllPriorities = []PriorityType{PriorityHot, PriorityMedium, PriorityLow, PriorityDisqualified}

// ParseTier resolves a tier name case-insensitively.
func ParseTier(s string) (PriorityType, bool) {
	for _, p := range AllPriorities {
		if strings.EqualFold(string(p), strings.TrimSpace(s)) {
			return p, true
		}
	}
	return "", false
}

// Tier thresholds. A total of exactly zero is disqualified.
const (
	HotThreshold    = 120
	MediumThreshold = 70
)

// Factor names, in breakdown display order.
const (
	FactorCondition   = "condition"
	FactorSeverity    = "severity"
	FactorTMSInterest = "tms_interest"
	FactorDuration    = "duration"
	FactorTreatment   = "treatment"
	FactorInsurance   = "insurance"
	FactorLocation    = "location"
	FactorUrgency     = "urgency"
	FactorAge         = "age"
)

// Contribution is one factor's signed share of the total.
type Contribution struct {
	Factor        string `json:"factor"`
	Delta         int    `json:"delta"`
	Reason        string `json:"reason"`
	Disqualifying bool   `json:"disqualifying,omitempty"`
}

// Breakdown is the full scoring result. It is for coordinators only and
// must never reach the submitter.
type Breakdown struct {
	Contributions []Contribution `json:"contributions"`
	TotalScore    int            `json:"total_score"`
	PriorityTier  PriorityType   `json:"priority_tier"`
}

// Disqualified reports whether any applied rule disqualifies the lead.
func (b Breakdown) Disqualified() bool {
	for _, c := range b.Contributions {
		if c.Disqualifying {
			return true
		}
	}
	return false
}

// Contribution returns the contribution for factor, if it was applied.
func (b Breakdown) Contribution(factor string) (Contribution, bool) {
	for _, c := range b.Contributions {
		if c.Factor == factor {
			return c, true
		}
	}
	return Contribution{}, false
}

// TierFor maps a total to its tier, ignoring disqualifying rules.
func TierFor(total int) PriorityType {
	switch {
	case total >= HotThreshold:
		return PriorityHot
	case total >= MediumThreshold:
		return PriorityMedium
	case total > 0:
		return PriorityLow
	default:
		return PriorityDisqualified
	}
}
