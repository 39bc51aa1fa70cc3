package intake

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed vocabulary.yaml
var defaultVocabularyYAML []byte

// Vocabulary holds the synonym tables that drive normalization. It is loaded
// once at process start and never mutated afterwards.
type Vocabulary struct {
	Conditions     map[ConditionType][]string     `yaml:"conditions"`
	Durations      map[DurationType][]string      `yaml:"durations"`
	Treatments     map[TreatmentType][]string     `yaml:"treatments"`
	NoTreatment    []string                       `yaml:"no_treatment"`
	Urgency        map[UrgencyType][]string       `yaml:"urgency"`
	ContactMethods map[ContactMethodType][]string `yaml:"contact_methods"`
	TMSInterest    map[TMSType][]string           `yaml:"tms_interest"`
	Insurance      InsuranceVocabulary            `yaml:"insurance"`
	AnswerScales   map[string]map[string]int      `yaml:"answer_scales"`
	Instruments    []Instrument                   `yaml:"instruments"`
	// Fields maps a logical field name to the payload keys loosely typed
	// channels may use for it.
	Fields map[string][]string `yaml:"fields"`
}

// InsuranceVocabulary groups the phrases used to classify coverage.
type InsuranceVocabulary struct {
	InNetwork         []string `yaml:"in_network"`
	OutOfNetwork      []string `yaml:"out_of_network"`
	None              []string `yaml:"none"`
	InNetworkCarriers []string `yaml:"in_network_carriers"`
}

// Instrument describes a screening questionnaire whose item answers sum to
// a condition's severity sub-score.
type Instrument struct {
	Name      string        `yaml:"name"`
	Condition ConditionType `yaml:"condition"`
	Scale     string        `yaml:"scale"`
	// Items lists, per questionnaire item, the payload keys it may arrive under.
	Items [][]string `yaml:"items"`
}

// DefaultVocabulary returns the vocabulary embedded in the binary.
func DefaultVocabulary() (*Vocabulary, error) {
	return ParseVocabulary(defaultVocabularyYAML)
}

// LoadVocabulary reads a vocabulary override from path. An empty path
// returns the embedded default.
func LoadVocabulary(path string) (*Vocabulary, error) {
	if path == "" {
		return DefaultVocabulary()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary %s: %w", path, err)
	}
	return ParseVocabulary(data)
}

// ParseVocabulary decodes and validates a YAML vocabulary document.
func ParseVocabulary(data []byte) (*Vocabulary, error) {
	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode vocabulary: %w", err)
	}
	if err := v.validate(); err != nil {
		return nil, err
	}
	return &v, nil
}

func (v *Vocabulary) validate() error {
	for c := range v.Conditions {
		if conditionRank(c) == len(AllConditions) {
			return fmt.Errorf("vocabulary: unknown condition %q", c)
		}
	}
	for d := range v.Durations {
		if !containsValue(AllDurations, d) {
			return fmt.Errorf("vocabulary: unknown duration %q", d)
		}
	}
	for t := range v.Treatments {
		if !containsValue(AllTreatments, t) {
			return fmt.Errorf("vocabulary: unknown treatment %q", t)
		}
	}
	for u := range v.Urgency {
		if !containsValue(AllUrgencies, u) {
			return fmt.Errorf("vocabulary: unknown urgency %q", u)
		}
	}
	for m := range v.ContactMethods {
		if !containsValue(AllContactMethods, m) {
			return fmt.Errorf("vocabulary: unknown contact method %q", m)
		}
	}
	for t := range v.TMSInterest {
		if !containsValue(AllTMSTypes, t) {
			return fmt.Errorf("vocabulary: unknown tms interest %q", t)
		}
	}
	for name, err := range map[string]error{
		"conditions":      uniquePhrases(v.Conditions),
		"durations":       uniquePhrases(v.Durations),
		"treatments":      uniquePhrases(v.Treatments),
		"urgency":         uniquePhrases(v.Urgency),
		"contact_methods": uniquePhrases(v.ContactMethods),
		"tms_interest":    uniquePhrases(v.TMSInterest),
	} {
		if err != nil {
			return fmt.Errorf("vocabulary %s: %w", name, err)
		}
	}
	seen := make(map[ConditionType]bool)
	for _, inst := range v.Instruments {
		if inst.Name == "" {
			return fmt.Errorf("vocabulary: instrument without name")
		}
		if conditionRank(inst.Condition) == len(AllConditions) || inst.Condition == ConditionOther {
			return fmt.Errorf("vocabulary: instrument %s has invalid condition %q", inst.Name, inst.Condition)
		}
		if seen[inst.Condition] {
			return fmt.Errorf("vocabulary: condition %s has more than one instrument", inst.Condition)
		}
		seen[inst.Condition] = true
		if _, ok := v.AnswerScales[inst.Scale]; !ok {
			return fmt.Errorf("vocabulary: instrument %s references unknown scale %q", inst.Name, inst.Scale)
		}
		if len(inst.Items) == 0 {
			return fmt.Errorf("vocabulary: instrument %s has no items", inst.Name)
		}
	}
	return nil
}

func containsValue[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// uniquePhrases rejects a phrase listed under two different values, which
// would make lookups depend on map iteration order.
func uniquePhrases[T ~string](table map[T][]string) error {
	owner := make(map[string]T)
	for value, synonyms := range table {
		for _, syn := range append([]string{string(value)}, synonyms...) {
			key := normalizeKey(syn)
			if prev, ok := owner[key]; ok && prev != value {
				return fmt.Errorf("phrase %q maps to both %s and %s", syn, prev, value)
			}
			owner[key] = value
		}
	}
	return nil
}
