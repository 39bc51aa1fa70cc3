package scoring

import (
	"fmt"

	"github.com/neuroreach/intake/internal/domain/eligibility"
	"github.com/neuroreach/intake/internal/domain/intake"
)

// Point values per factor.
const (
	PointsScreenableCondition = 50
	PointsOtherCondition      = 25

	PointsTMSDaily       = 5
	PointsTMSAccelerated = 10
	PointsTMSSaint       = 15

	PointsDurationOverYear    = 20
	PointsDurationSixToTwelve = 10

	PointsMedication     = 20
	PointsTherapy        = 15
	PointsTreatmentBonus = 10

	PointsInNetwork    = 30
	PointsOutOfNetwork = 20
	PointsNoInsurance  = -20

	PointsInServiceArea = 25
	PointsOutOfArea     = -100

	PointsUrgencyASAP  = 25
	PointsUrgencyMonth = 10

	PointsMinor = -100
)

// Engine scores intakes. It is read-only after construction and safe for
// concurrent use.
type Engine struct {
	policy *eligibility.Policy
	scales map[intake.ConditionType]SeverityScale
}

// NewEngine builds an engine with the default severity instruments.
func NewEngine(policy *eligibility.Policy) *Engine {
	return NewEngineWithScales(policy, DefaultScales())
}

// NewEngineWithScales builds an engine with a custom instrument table. A nil
// policy uses the default service area.
func NewEngineWithScales(policy *eligibility.Policy, scales map[intake.ConditionType]SeverityScale) *Engine {
	if policy == nil {
		policy = eligibility.NewPolicy(nil)
	}
	owned := make(map[intake.ConditionType]SeverityScale, len(scales))
	for c, s := range scales {
		owned[c] = s
	}
	return &Engine{policy: policy, scales: owned}
}

// Score computes the breakdown for in. It never fails and never reads
// in.Source.
func (e *Engine) Score(in intake.Intake) Breakdown {
	contributions := []Contribution{
		e.condition(in),
		e.severity(in),
		tmsInterest(in.TMSInterest),
		duration(in.SymptomDuration),
		treatment(in),
		insurance(in.InsuranceStatus),
		e.location(in.ZipCode),
		urgency(in.Urgency),
	}
	if eligibility.IsMinor(in.DateOfBirth, in.Age, in.SubmittedAt) {
		contributions = append(contributions, Contribution{
			Factor:        FactorAge,
			Delta:         PointsMinor,
			Reason:        "submitter is under 18",
			Disqualifying: true,
		})
	}

	b := Breakdown{Contributions: contributions}
	for _, c := range contributions {
		b.TotalScore += c.Delta
	}
	b.PriorityTier = TierFor(b.TotalScore)
	if b.Disqualified() {
		b.PriorityTier = PriorityDisqualified
	}
	return b
}

func (e *Engine) condition(in intake.Intake) Contribution {
	best := Contribution{Factor: FactorCondition, Reason: "no condition reported"}
	for _, c := range in.Conditions {
		points := PointsScreenableCondition
		if c == intake.ConditionOther {
			points = PointsOtherCondition
		}
		if points > best.Delta {
			best.Delta = points
			best.Reason = fmt.Sprintf("%s is treatable with TMS", c)
			if c == intake.ConditionOther {
				best.Reason = "condition outside the primary TMS indications"
			}
		}
	}
	return best
}

// severity takes the strongest single instrument result so a second mild
// condition cannot dilute a severe one.
func (e *Engine) severity(in intake.Intake) Contribution {
	best := Contribution{Factor: FactorSeverity, Reason: "no screening scores"}
	found := false
	for _, c := range in.Conditions {
		scale, ok := e.scales[c]
		if !ok {
			continue
		}
		raw, ok := in.SeverityScores[c]
		if !ok {
			continue
		}
		points, band := scale.Points(raw)
		if !found || points > best.Delta {
			found = true
			best.Delta = points
			best.Reason = fmt.Sprintf("%s %s score %d (%s)", c, scale.Instrument(), raw, band)
		}
	}
	return best
}

func tmsInterest(t intake.TMSType) Contribution {
	c := Contribution{Factor: FactorTMSInterest}
	switch t {
	case intake.TMSSaint:
		c.Delta, c.Reason = PointsTMSSaint, "interested in SAINT protocol"
	case intake.TMSAccelerated:
		c.Delta, c.Reason = PointsTMSAccelerated, "interested in accelerated TMS"
	case intake.TMSDaily:
		c.Delta, c.Reason = PointsTMSDaily, "interested in daily TMS"
	default:
		c.Reason = "no protocol preference"
	}
	return c
}

func duration(d intake.DurationType) Contribution {
	c := Contribution{Factor: FactorDuration}
	switch d {
	case intake.DurationMoreThan12Months:
		c.Delta, c.Reason = PointsDurationOverYear, "symptoms for more than 12 months"
	case intake.DurationSixToTwelveMonths:
		c.Delta, c.Reason = PointsDurationSixToTwelve, "symptoms for 6 to 12 months"
	case intake.DurationLessThan6Months:
		c.Reason = "symptoms for less than 6 months"
	default:
		c.Reason = "symptom duration unknown"
	}
	return c
}

// treatment awards the higher single treatment plus a bonus when both were
// tried; the two base values are never added together.
func treatment(in intake.Intake) Contribution {
	meds := in.HasTreatment(intake.TreatmentMedication)
	therapy := in.HasTreatment(intake.TreatmentTherapy)
	c := Contribution{Factor: FactorTreatment}
	switch {
	case meds && therapy:
		c.Delta, c.Reason = PointsMedication+PointsTreatmentBonus, "tried medication and therapy"
	case meds:
		c.Delta, c.Reason = PointsMedication, "tried medication"
	case therapy:
		c.Delta, c.Reason = PointsTherapy, "tried therapy"
	default:
		c.Reason = "no prior treatment"
	}
	return c
}

func insurance(i intake.InsuranceType) Contribution {
	c := Contribution{Factor: FactorInsurance}
	switch i {
	case intake.InsuranceInNetwork:
		c.Delta, c.Reason = PointsInNetwork, "in-network insurance"
	case intake.InsuranceOtherOutOfNetwork:
		c.Delta, c.Reason = PointsOutOfNetwork, "out-of-network insurance"
	default:
		c.Delta, c.Reason = PointsNoInsurance, "no insurance"
	}
	return c
}

func (e *Engine) location(zip string) Contribution {
	if e.policy.InServiceArea(zip) {
		return Contribution{Factor: FactorLocation, Delta: PointsInServiceArea, Reason: "inside service area"}
	}
	return Contribution{
		Factor:        FactorLocation,
		Delta:         PointsOutOfArea,
		Reason:        "outside service area",
		Disqualifying: true,
	}
}

func urgency(u intake.UrgencyType) Contribution {
	c := Contribution{Factor: FactorUrgency}
	switch u {
	case intake.UrgencyASAP:
		c.Delta, c.Reason = PointsUrgencyASAP, "wants to start as soon as possible"
	case intake.UrgencyWithin30Days:
		c.Delta, c.Reason = PointsUrgencyMonth, "wants to start within 30 days"
	default:
		c.Reason = "exploring options"
	}
	return c
}
