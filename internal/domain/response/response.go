// Package response builds the submitter-facing confirmation. It only ever
// sees the priority tier; scores and breakdown reasons stay internal.
package response

import "github.com/neuroreach/intake/internal/domain/scoring"

// Confirmation is returned to the person who submitted the intake.
type Confirmation struct {
	Accepted              bool   `json:"accepted"`
	EstimatedResponseTime string `json:"estimated_response_time,omitempty"`
	Message               string `json:"message"`
}

const declinedMessage = "Thank you for reaching out. Based on the information you shared, our clinic may not be " +
	"the right fit at this time. We encourage you to speak with your primary care provider or call 988 " +
	"if you need immediate support."

// Format maps a breakdown's tier to a confirmation.
func Format(b scoring.Breakdown) Confirmation {
	return ForTier(b.PriorityTier)
}

// ForTier maps a tier to a confirmation. Unknown tiers get the LOW wording.
func ForTier(tier scoring.PriorityType) Confirmation {
	var eta string
	switch tier {
	case scoring.PriorityDisqualified:
		return Confirmation{Accepted: false, Message: declinedMessage}
	case scoring.PriorityHot:
		eta = "within 1 hour"
	case scoring.PriorityMedium:
		eta = "within 4 hours"
	default:
		eta = "within 24 hours"
	}
	return Confirmation{
		Accepted:              true,
		EstimatedResponseTime: eta,
		Message: "Thank you! We received your information and a patient coordinator will contact you " +
			eta + ".",
	}
}
