package intake

import (
	"encoding/json"
	"time"
)

// JotFormAdapter maps the third-party form service's flat payload. Keys vary
// with form revisions ("q3_conditions", "conditions", "whatConditions"), so
// every field is resolved through the vocabulary's alias lists, and
// questionnaire items arrive as answer labels rather than numbers.
type JotFormAdapter struct {
	n *Normalizer
}

func NewJotFormAdapter(n *Normalizer) *JotFormAdapter {
	return &JotFormAdapter{n: n}
}

func (a *JotFormAdapter) Adapt(p map[string]any, submittedAt time.Time) (Intake, error) {
	return a.n.assemble(a.n.flatRaw(jotformIndex(p)), submittedAt)
}

func jotformIndex(p map[string]any) map[string]any {
	idx := indexPayload(p)
	// Webhook deliveries carry the answers as a JSON string in rawRequest.
	if rr, ok := p["rawRequest"].(string); ok && rr != "" {
		var inner map[string]any
		if err := json.Unmarshal([]byte(rr), &inner); err == nil {
			for k, v := range indexPayload(inner) {
				if _, exists := idx[k]; !exists {
					idx[k] = v
				}
			}
		}
	}
	return idx
}

// flatRaw extracts raw values from a payload indexed by fieldKey.
func (n *Normalizer) flatRaw(idx map[string]any) rawIntake {
	raw := rawIntake{severity: n.flatSeverity(idx)}
	if v, ok := n.lookup(idx, "conditions"); ok && v != nil {
		raw.conditions = asList(v)
		raw.conditionsPresent = true
	}
	raw.duration = n.lookupString(idx, "symptom_duration")
	if v, ok := n.lookup(idx, "prior_treatments"); ok {
		raw.treatments = asStrings(v)
	}
	raw.tmsInterest = n.lookupString(idx, "tms_interest")
	raw.insurance = n.lookupString(idx, "insurance")
	raw.urgency = n.lookupString(idx, "urgency")
	raw.zip = n.lookupString(idx, "zip_code")
	raw.contactMethod = n.lookupString(idx, "preferred_contact_method")
	if v, ok := n.lookup(idx, "date_of_birth"); ok {
		raw.dob = v
	}
	if v, ok := n.lookup(idx, "age"); ok {
		raw.age = v
	}
	return raw
}

// flatSeverity sums item answers for every instrument with at least one
// recognized answer.
func (n *Normalizer) flatSeverity(idx map[string]any) map[ConditionType]int {
	scores := make(map[ConditionType]int)
	for _, inst := range n.instruments {
		sum, answered := 0, 0
		for _, aliases := range inst.items {
			for _, key := range aliases {
				v, ok := idx[key]
				if !ok {
					continue
				}
				if score, ok := n.ItemAnswer(inst.scale, v); ok {
					sum += score
					answered++
				}
				break
			}
		}
		if answered > 0 {
			scores[inst.condition] = sum
		}
	}
	return scores
}

func (n *Normalizer) lookup(idx map[string]any, logical string) (any, bool) {
	for _, key := range n.fields[logical] {
		if v, ok := idx[key]; ok {
			return v, true
		}
	}
	return nil, false
}

func (n *Normalizer) lookupString(idx map[string]any, logical string) string {
	v, ok := n.lookup(idx, logical)
	if !ok {
		return ""
	}
	s, _ := asString(v)
	return s
}

func indexPayload(p map[string]any) map[string]any {
	idx := make(map[string]any, len(p))
	for k, v := range p {
		idx[fieldKey(k)] = v
	}
	return idx
}
