package intake

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// Normalizer maps channel vocabulary onto the canonical enumerations. Every
// method except Conditions is total: unrecognized input degrades to a
// documented default instead of failing. A Normalizer is read-only after
// construction and safe for concurrent use.
type Normalizer struct {
	conditions       map[string]ConditionType
	conditionPhrases []conditionPhrase
	durations        map[string]DurationType
	treatments       map[string]TreatmentType
	noTreatment      map[string]bool
	urgency          map[string]UrgencyType
	contactMethods   map[string]ContactMethodType
	tmsInterest      map[string]TMSType

	insuranceIn    map[string]bool
	insuranceOut   map[string]bool
	insuranceNone  map[string]bool
	carriers       map[string]bool
	carrierPhrases []string

	scales      map[string]map[string]int
	scaleMax    map[string]int
	instruments []compiledInstrument
	fields      map[string][]string
}

type conditionPhrase struct {
	phrase    string
	words     []string
	condition ConditionType
}

type compiledInstrument struct {
	name      string
	condition ConditionType
	scale     string
	items     [][]string
	maxTotal  int
}

// NewNormalizer compiles v into lookup tables.
func NewNormalizer(v *Vocabulary) *Normalizer {
	n := &Normalizer{
		conditions:     compileTable(v.Conditions),
		durations:      compileTable(v.Durations),
		treatments:     compileTable(v.Treatments),
		noTreatment:    compileSet(v.NoTreatment),
		urgency:        compileTable(v.Urgency),
		contactMethods: compileTable(v.ContactMethods),
		tmsInterest:    compileTable(v.TMSInterest),
		insuranceIn:    compileSet(append([]string{string(InsuranceInNetwork)}, v.Insurance.InNetwork...)),
		insuranceOut:   compileSet(append([]string{string(InsuranceOtherOutOfNetwork)}, v.Insurance.OutOfNetwork...)),
		insuranceNone:  compileSet(append([]string{string(InsuranceNone)}, v.Insurance.None...)),
		carriers:       compileSet(v.Insurance.InNetworkCarriers),
		scales:         make(map[string]map[string]int, len(v.AnswerScales)),
		scaleMax:       make(map[string]int, len(v.AnswerScales)),
		fields:         make(map[string][]string, len(v.Fields)),
	}

	for key, syn := range n.conditions {
		if syn == ConditionOther || len(key) < 3 {
			continue
		}
		n.conditionPhrases = append(n.conditionPhrases, conditionPhrase{phrase: key, words: strings.Fields(key), condition: syn})
	}
	// Longest phrase first, then canonical order, so fallback matching is stable.
	sort.Slice(n.conditionPhrases, func(i, j int) bool {
		a, b := n.conditionPhrases[i], n.conditionPhrases[j]
		if len(a.phrase) != len(b.phrase) {
			return len(a.phrase) > len(b.phrase)
		}
		if a.condition != b.condition {
			return conditionRank(a.condition) < conditionRank(b.condition)
		}
		return a.phrase < b.phrase
	})

	for carrier := range n.carriers {
		n.carrierPhrases = append(n.carrierPhrases, carrier)
	}
	sort.Strings(n.carrierPhrases)

	for name, answers := range v.AnswerScales {
		table := make(map[string]int, len(answers))
		for label, score := range answers {
			table[normalizeKey(label)] = score
			if score > n.scaleMax[name] {
				n.scaleMax[name] = score
			}
		}
		n.scales[name] = table
	}

	for _, inst := range v.Instruments {
		ci := compiledInstrument{name: fieldKey(inst.Name), condition: inst.Condition, scale: inst.Scale}
		for _, aliases := range inst.Items {
			keys := make([]string, 0, len(aliases))
			for _, a := range aliases {
				keys = append(keys, fieldKey(a))
			}
			ci.items = append(ci.items, keys)
		}
		ci.maxTotal = len(ci.items) * n.scaleMax[ci.scale]
		n.instruments = append(n.instruments, ci)
	}

	for logical, aliases := range v.Fields {
		keys := make([]string, 0, len(aliases)+1)
		keys = append(keys, fieldKey(logical))
		for _, a := range aliases {
			keys = append(keys, fieldKey(a))
		}
		n.fields[logical] = keys
	}
	return n
}

// Conditions maps raw condition entries to a non-empty condition set.
// Unrecognized entries become OTHER so no clinical input is lost. Entries
// may themselves be delimited lists ("Depression, Anxiety").
func (n *Normalizer) Conditions(raw []any) ([]ConditionType, error) {
	if len(raw) == 0 {
		return nil, &ValidationError{Field: "conditions", Reason: "at least one condition is required"}
	}
	var out []ConditionType
	for i, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, &ValidationError{
				Field:  fmt.Sprintf("conditions[%d]", i),
				Reason: fmt.Sprintf("expected string, got %T", item),
			}
		}
		for _, part := range splitList(s) {
			out = append(out, n.condition(part)...)
		}
	}
	if len(out) == 0 {
		return nil, &ValidationError{Field: "conditions", Reason: "all condition entries are blank"}
	}
	return conditionSet(out), nil
}

// condition maps one entry. An exact synonym wins; otherwise every
// non-overlapping known phrase in the entry counts, so "depression and
// anxiety" yields both. Entries naming nothing known become OTHER.
func (n *Normalizer) condition(raw string) []ConditionType {
	key := normalizeKey(raw)
	if c, ok := n.conditions[key]; ok {
		return []ConditionType{c}
	}
	words := strings.Fields(key)
	used := make([]bool, len(words))
	var found []ConditionType
	for _, p := range n.conditionPhrases {
		if matchPhrase(words, used, p.words) {
			found = append(found, p.condition)
		}
	}
	if len(found) == 0 {
		return []ConditionType{ConditionOther}
	}
	return found
}

// matchPhrase claims the first run of unused words equal to phrase.
func matchPhrase(words []string, used []bool, phrase []string) bool {
	for i := 0; i+len(phrase) <= len(words); i++ {
		match := true
		for j, w := range phrase {
			if used[i+j] || words[i+j] != w {
				match = false
				break
			}
		}
		if match {
			for j := range phrase {
				used[i+j] = true
			}
			return true
		}
	}
	return false
}

// Duration maps a free-text symptom duration to a bucket; UNKNOWN when
// the text is not recognized.
func (n *Normalizer) Duration(raw string) DurationType {
	key := normalizeKey(raw)
	if d, ok := n.durations[key]; ok {
		return d
	}
	return durationFromCount(key)
}

// durationFromCount handles "8 months" and "2 years" style answers. One year
// counts as twelve months and lands in the 6-12 bucket.
func durationFromCount(key string) DurationType {
	parts := strings.Fields(key)
	if len(parts) != 2 {
		return DurationUnknown
	}
	count, err := strconv.Atoi(parts[0])
	if err != nil || count < 0 {
		return DurationUnknown
	}
	months := 0
	switch parts[1] {
	case "month", "months", "mo", "mos":
		months = count
	case "year", "years", "yr", "yrs":
		months = count * 12
	default:
		return DurationUnknown
	}
	switch {
	case months < 6:
		return DurationLessThan6Months
	case months <= 12:
		return DurationSixToTwelveMonths
	default:
		return DurationMoreThan12Months
	}
}

// Treatments maps prior treatment entries, silently dropping the ones it
// does not recognize.
func (n *Normalizer) Treatments(raw []string) []TreatmentType {
	var out []TreatmentType
	for _, entry := range raw {
		for _, part := range splitList(entry) {
			key := normalizeKey(part)
			if n.noTreatment[key] {
				continue
			}
			if t, ok := n.treatments[key]; ok {
				out = append(out, t)
			}
		}
	}
	return treatmentSet(out)
}

// Urgency maps a timeframe phrase; EXPLORING when unmapped.
func (n *Normalizer) Urgency(raw string) UrgencyType {
	if u, ok := n.urgency[normalizeKey(raw)]; ok {
		return u
	}
	return UrgencyExploring
}

// ContactMethod maps a contact preference; PHONE when unmapped.
func (n *Normalizer) ContactMethod(raw string) ContactMethodType {
	if m, ok := n.contactMethods[normalizeKey(raw)]; ok {
		return m
	}
	return ContactPhone
}

// TMSInterest maps a TMS protocol preference; NOT_SURE when unmapped.
func (n *Normalizer) TMSInterest(raw string) TMSType {
	if t, ok := n.tmsInterest[normalizeKey(raw)]; ok {
		return t
	}
	return TMSNotSure
}

// Insurance classifies an insurance answer, which may be a status phrase or
// a carrier name. Blank means no coverage; an unlisted carrier is treated
// as out of network.
func (n *Normalizer) Insurance(raw string) InsuranceType {
	key := normalizeKey(raw)
	switch {
	case key == "" || n.insuranceNone[key]:
		return InsuranceNone
	case n.insuranceIn[key] || n.carriers[key]:
		return InsuranceInNetwork
	case n.insuranceOut[key]:
		return InsuranceOtherOutOfNetwork
	}
	for _, carrier := range n.carrierPhrases {
		if containsPhrase(key, carrier) {
			return InsuranceInNetwork
		}
	}
	return InsuranceOtherOutOfNetwork
}

// ItemAnswer converts a questionnaire answer to its item score using the
// named answer scale. Numeric answers must lie within the scale's range.
func (n *Normalizer) ItemAnswer(scale string, raw any) (int, bool) {
	if v, ok := asInt(raw); ok {
		if v < 0 || v > n.scaleMax[scale] {
			return 0, false
		}
		return v, true
	}
	s, ok := raw.(string)
	if !ok {
		if b, isBool := raw.(bool); isBool {
			if b {
				return 1, true
			}
			return 0, true
		}
		return 0, false
	}
	score, ok := n.scales[scale][normalizeKey(s)]
	return score, ok
}

// ZipCode reduces a postal code to its leading five digits. Inputs with
// fewer digits are returned as the digits found, which never pass the
// service-area check.
func ZipCode(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			if b.Len() == 5 {
				break
			}
		}
		if r == '-' && b.Len() > 0 {
			break
		}
	}
	return b.String()
}

func (n *Normalizer) instrumentFor(name string) (compiledInstrument, bool) {
	for _, inst := range n.instruments {
		if inst.name == name {
			return inst, true
		}
	}
	return compiledInstrument{}, false
}

func compileTable[T ~string](table map[T][]string) map[string]T {
	out := make(map[string]T)
	// Enum names first so an explicit synonym can never be shadowed by them.
	for value := range table {
		out[normalizeKey(string(value))] = value
	}
	for value, synonyms := range table {
		for _, s := range synonyms {
			out[normalizeKey(s)] = value
		}
	}
	return out
}

func compileSet(phrases []string) map[string]bool {
	out := make(map[string]bool, len(phrases))
	for _, p := range phrases {
		out[normalizeKey(p)] = true
	}
	return out
}

// normalizeKey lowercases s and collapses every run of punctuation or
// whitespace into one space. Comparison signs and plus are kept because
// they carry meaning in duration buckets.
func normalizeKey(s string) string {
	var b strings.Builder
	pendingSpace := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '<' || r == '>' || r == '+' {
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
			continue
		}
		if r == '\'' || r == '’' {
			continue
		}
		pendingSpace = true
	}
	return b.String()
}

// fieldKey reduces a payload key to lowercase letters and digits so
// "littleInterest", "little_interest" and "Little Interest" coincide.
func fieldKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func containsPhrase(key, phrase string) bool {
	if key == phrase {
		return true
	}
	return strings.HasPrefix(key, phrase+" ") ||
		strings.HasSuffix(key, " "+phrase) ||
		strings.Contains(key, " "+phrase+" ")
}

func splitList(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == '|' || r == '\n'
	})
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int32:
		return int(x), true
	case int64:
		if x > math.MaxInt32 || x < math.MinInt32 {
			return 0, false
		}
		return int(x), true
	case float64:
		if x != math.Trunc(x) || math.Abs(x) > math.MaxInt32 {
			return 0, false
		}
		return int(x), true
	case json.Number:
		i, err := x.Int64()
		if err != nil || i > math.MaxInt32 || i < math.MinInt32 {
			return 0, false
		}
		return int(i), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

func asString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	}
	return "", false
}

// asList returns v as a slice. A scalar becomes a one-element slice and
// string slices are widened.
func asList(v any) []any {
	switch x := v.(type) {
	case nil:
		return nil
	case []any:
		return x
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out
	}
	return []any{v}
}

func asStrings(v any) []string {
	var out []string
	for _, item := range asList(v) {
		if s, ok := asString(item); ok {
			out = append(out, s)
		}
	}
	return out
}

// FrequencyAnswer scores a PHQ/GAD style answer ("several days" = 1).
func (n *Normalizer) FrequencyAnswer(raw any) (int, bool) {
	return n.ItemAnswer("frequency", raw)
}
