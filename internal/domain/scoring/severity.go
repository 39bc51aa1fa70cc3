package scoring

import "github.com/neuroreach/intake/internal/domain/intake"

// SeverityScale converts a raw screening sub-score into points.
type SeverityScale interface {
	Instrument() string
	Points(raw int) (points int, band string)
}

// Band awards Points to raw scores of at least Min.
type Band struct {
	Min    int
	Points int
	Label  string
}

// ThresholdScale is a SeverityScale defined by descending bands. Scores
// below every band earn nothing.
type ThresholdScale struct {
	Name  string
	Bands []Band
}

func (s ThresholdScale) Instrument() string { return s.Name }

func (s ThresholdScale) Points(raw int) (int, string) {
	for _, b := range s.Bands {
		if raw >= b.Min {
			return b.Points, b.Label
		}
	}
	return 0, "minimal"
}

// Instruments used by the intake questionnaires.
var (
	// PHQ2 depression screen, 0-6.
	PHQ2 = ThresholdScale{Name: "PHQ-2", Bands: []Band{
		{Min: 5, Points: 30, Label: "severe"},
		{Min: 3, Points: 20, Label: "moderate"},
		{Min: 1, Points: 10, Label: "mild"},
	}}
	// GAD2 anxiety screen, 0-6.
	GAD2 = ThresholdScale{Name: "GAD-2", Bands: []Band{
		{Min: 5, Points: 30, Label: "severe"},
		{Min: 3, Points: 20, Label: "moderate"},
		{Min: 1, Points: 10, Label: "mild"},
	}}
	// OCDBrief sums two 0-4 time-occupied items, 0-8.
	OCDBrief = ThresholdScale{Name: "OCD brief", Bands: []Band{
		{Min: 6, Points: 30, Label: "severe"},
		{Min: 4, Points: 20, Label: "moderate"},
		{Min: 1, Points: 10, Label: "mild"},
	}}
	// PCPTSD5 is the primary care PTSD screen, 0-5.
	PCPTSD5 = ThresholdScale{Name: "PC-PTSD-5", Bands: []Band{
		{Min: 4, Points: 30, Label: "probable"},
		{Min: 3, Points: 20, Label: "positive"},
		{Min: 1, Points: 10, Label: "subthreshold"},
	}}
)

// DefaultScales keys each screenable condition to its instrument. OTHER has
// no instrument and never earns severity points. Adding a condition is a
// table entry.
func DefaultScales() map[intake.ConditionType]SeverityScale {
	return map[intake.ConditionType]SeverityScale{
		intake.ConditionDepression: PHQ2,
		intake.ConditionAnxiety:    GAD2,
		intake.ConditionOCD:        OCDBrief,
		intake.ConditionPTSD:       PCPTSD5,
	}
}
