package intake

import "time"

// WidgetAdapter maps the embedded intake widget's structured payload:
//
//	{
//	  "conditions": ["depression", "anxiety"],
//	  "screening": {"phq2": [2, 1], "gad2": 3},
//	  "symptom_duration": "6_12_months",
//	  "prior_treatments": ["medication"],
//	  "tms_interest": "accelerated",
//	  "insurance_status": "in_network",
//	  "urgency": "asap",
//	  "zip_code": "85004",
//	  "date_of_birth": "1985-03-01",
//	  "preferred_contact_method": "text"
//	}
//
// Screening entries are either item answers or a precomputed total. Totals
// outside the instrument's range are ignored.
type WidgetAdapter struct {
	n *Normalizer
}

func NewWidgetAdapter(n *Normalizer) *WidgetAdapter {
	return &WidgetAdapter{n: n}
}

func (a *WidgetAdapter) Adapt(p map[string]any, submittedAt time.Time) (Intake, error) {
	raw := rawIntake{
		severity:   a.screening(p["screening"]),
		treatments: asStrings(p["prior_treatments"]),
		dob:        p["date_of_birth"],
		age:        p["age"],
	}
	if v, ok := p["conditions"]; ok && v != nil {
		raw.conditions = asList(v)
		raw.conditionsPresent = true
	}
	raw.duration, _ = asString(p["symptom_duration"])
	raw.tmsInterest, _ = asString(p["tms_interest"])
	raw.urgency, _ = asString(p["urgency"])
	raw.zip, _ = asString(p["zip_code"])
	raw.contactMethod, _ = asString(p["preferred_contact_method"])

	if s, ok := asString(p["insurance_status"]); ok && s != "" {
		raw.insurance = s
	} else {
		raw.insurance, _ = asString(p["insurance"])
	}
	return a.n.assemble(raw, submittedAt)
}

func (a *WidgetAdapter) screening(v any) map[ConditionType]int {
	block, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	scores := make(map[ConditionType]int)
	for name, answers := range block {
		inst, ok := a.n.instrumentFor(fieldKey(name))
		if !ok {
			continue
		}
		if total, ok := asInt(answers); ok {
			if total >= 0 && total <= inst.maxTotal {
				scores[inst.condition] = total
			}
			continue
		}
		sum, answered := 0, 0
		for _, item := range asList(answers) {
			if score, ok := a.n.ItemAnswer(inst.scale, item); ok {
				sum += score
				answered++
			}
		}
		if answered > 0 {
			scores[inst.condition] = sum
		}
	}
	return scores
}
