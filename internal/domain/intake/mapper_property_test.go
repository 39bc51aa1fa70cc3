package intake

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

var frequencyLabels = []string{"Not at all", "Several days", "More than half the days", "Nearly every day"}

// clinicalFacts is one synthetic submitter, rendered into each channel's
// payload shape by the helpers below.
type clinicalFacts struct {
	conditions []ConditionType
	phq2       [2]int
	gad2       [2]int
	duration   DurationType
	treatments []TreatmentType
	tms        TMSType
	insurance  InsuranceType
	urgency    UrgencyType
	zip        string
	age        int
	contact    ContactMethodType
}

func drawFacts(rt *rapid.T) clinicalFacts {
	f := clinicalFacts{
		duration:  rapid.SampledFrom(AllDurations).Draw(rt, "duration"),
		tms:       rapid.SampledFrom(AllTMSTypes).Draw(rt, "tms"),
		insurance: rapid.SampledFrom(AllInsuranceTypes).Draw(rt, "insurance"),
		urgency:   rapid.SampledFrom(AllUrgencies).Draw(rt, "urgency"),
		zip:       rapid.StringMatching(`[0-9]{5}`).Draw(rt, "zip"),
		age:       rapid.IntRange(10, 90).Draw(rt, "age"),
		contact:   rapid.SampledFrom(AllContactMethods).Draw(rt, "contact"),
	}
	for _, c := range AllConditions {
		if rapid.Bool().Draw(rt, "has_"+string(c)) {
			f.conditions = append(f.conditions, c)
		}
	}
	if len(f.conditions) == 0 {
		f.conditions = []ConditionType{rapid.SampledFrom(AllConditions).Draw(rt, "condition")}
	}
	for i := range f.phq2 {
		f.phq2[i] = rapid.IntRange(0, 3).Draw(rt, fmt.Sprintf("phq2_%d", i))
		f.gad2[i] = rapid.IntRange(0, 3).Draw(rt, fmt.Sprintf("gad2_%d", i))
	}
	for _, tr := range AllTreatments {
		if rapid.Bool().Draw(rt, "tried_"+string(tr)) {
			f.treatments = append(f.treatments, tr)
		}
	}
	return f
}

func (f clinicalFacts) widget() map[string]any {
	conditions := make([]any, len(f.conditions))
	for i, c := range f.conditions {
		conditions[i] = strings.ToLower(string(c))
	}
	treatments := make([]any, len(f.treatments))
	for i, tr := range f.treatments {
		treatments[i] = strings.ToLower(string(tr))
	}
	return map[string]any{
		"conditions": conditions,
		"screening":  map[string]any{
			"phq2": []any{f.phq2[0], f.phq2[1]},
			"gad2": []any{f.gad2[0], f.gad2[1]},
		},
		"symptom_duration":         string(f.duration),
		"prior_treatments":         treatments,
		"tms_interest":             string(f.tms),
		"insurance_status":         string(f.insurance),
		"urgency":                  string(f.urgency),
		"zip_code":                 f.zip,
		"age":                      f.age,
		"preferred_contact_method": string(f.contact),
	}
}

func (f clinicalFacts) jotform() map[string]any {
	conditions := make([]string, len(f.conditions))
	for i, c := range f.conditions {
		conditions[i] = string(c)
	}
	treatments := "None"
	if len(f.treatments) > 0 {
		names := make([]string, len(f.treatments))
		for i, tr := range f.treatments {
			names[i] = string(tr)
		}
		treatments = strings.Join(names, ", ")
	}
	return map[string]any{
		"q3_conditions":     strings.Join(conditions, ", "),
		"q5_littleInterest": frequencyLabels[f.phq2[0]],
		"q6_feelingDown":    frequencyLabels[f.phq2[1]],
		"q7_nervous":        frequencyLabels[f.gad2[0]],
		"q8_worrying":       frequencyLabels[f.gad2[1]],
		"q4_howLong":        string(f.duration),
		"q11_treatments":    treatments,
		"q12_tmsType":       string(f.tms),
		"q13_insurance":     string(f.insurance),
		"q14_timeline":      string(f.urgency),
		"q15_zip":           f.zip + "-0001",
		"q17_age":           fmt.Sprint(f.age),
		"q18_contactMethod": string(f.contact),
	}
}

func TestProperty_WidgetAndJotFormAgree(t *testing.T) {
	m := newTestMapper(t)

	rapid.Check(t, func(rt *rapid.T) {
		f := drawFacts(rt)

		widget, err := m.Map(SourceWidget, f.widget())
		if err != nil {
			rt.Fatalf("widget: %v", err)
		}
		jotform, err := m.Map(SourceJotForm, f.jotform())
		if err != nil {
			rt.Fatalf("jotform: %v", err)
		}
		if !reflect.DeepEqual(scoringFields(widget), scoringFields(jotform)) {
			rt.Fatalf("intakes differ:\nwidget:  %+v\njotform: %+v", widget, jotform)
		}
		for c := range widget.SeverityScores {
			if !widget.HasCondition(c) {
				rt.Fatalf("severity for unselected condition %s", c)
			}
		}
	})
}

func TestProperty_NormalizersAreTotal(t *testing.T) {
	n := newTestNormalizer(t)

	rapid.Check(t, func(rt *rapid.T) {
		s := rapid.String().Draw(rt, "raw")

		if d := n.Duration(s); !containsValue(AllDurations, d) {
			rt.Fatalf("Duration(%q) = %q", s, d)
		}
		if u := n.Urgency(s); !containsValue(AllUrgencies, u) {
			rt.Fatalf("Urgency(%q) = %q", s, u)
		}
		if c := n.ContactMethod(s); !containsValue(AllContactMethods, c) {
			rt.Fatalf("ContactMethod(%q) = %q", s, c)
		}
		if tm := n.TMSInterest(s); !containsValue(AllTMSTypes, tm) {
			rt.Fatalf("TMSInterest(%q) = %q", s, tm)
		}
		if i := n.Insurance(s); !containsValue(AllInsuranceTypes, i) {
			rt.Fatalf("Insurance(%q) = %q", s, i)
		}
		if strings.TrimSpace(s) != "" && !strings.ContainsAny(s, ",;|\n") {
			got, err := n.Conditions([]any{s})
			if err != nil || len(got) != 1 {
				rt.Fatalf("Conditions(%q) = %v, %v", s, got, err)
			}
		}
	})
}

func TestProperty_ZipCodeShape(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		s := rapid.String().Draw(rt, "raw")
		zip := ZipCode(s)
		if len(zip) > 5 {
			rt.Fatalf("ZipCode(%q) = %q is longer than 5", s, zip)
		}
		for _, r := range zip {
			if r < '0' || r > '9' {
				rt.Fatalf("ZipCode(%q) = %q contains non-digit", s, zip)
			}
		}
	})
}
