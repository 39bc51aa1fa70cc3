package lead

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/neuroreach/intake/internal/domain/intake"
	"github.com/neuroreach/intake/internal/domain/scoring"
)

// Status is the coordinator workflow state of a lead.
type Status string

const (
	StatusNew       Status = "new"
	StatusContacted Status = "contacted"
	StatusScheduled Status = "scheduled"
	StatusConverted Status = "converted"
	StatusLost      Status = "lost"
)

var AllStatuses = []Status{StatusNew, StatusContacted, StatusScheduled, StatusConverted, StatusLost}

// transitions lists the allowed next states. Converted is terminal; a lost
// lead can be picked up again by contacting it.
var transitions = map[Status][]Status{
	StatusNew:       {StatusContacted, StatusLost},
	StatusContacted: {StatusScheduled, StatusLost},
	StatusScheduled: {StatusConverted, StatusContacted, StatusLost},
	StatusLost:      {StatusContacted},
}

func ParseStatus(s string) (Status, bool) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// CanTransition reports whether a lead may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

var (
	ErrNotFound = errors.New("lead not found")
	// ErrConflict means the lead changed between read and write.
	ErrConflict = errors.New("lead was modified concurrently")
)

// TransitionError rejects a status change the workflow does not allow.
type TransitionError struct {
	From, To Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move lead from %s to %s", e.From, e.To)
}

// ContactError rejects a submission whose identity fields are unusable.
type ContactError struct {
	Fields []string
}

func (e *ContactError) Error() string {
	return fmt.Sprintf("invalid contact fields: %v", e.Fields)
}

// Lead maps to the leads table. Contact is only populated on detail reads;
// at rest it exists solely as ContactCiphertext.
type Lead struct {
	ID                uuid.UUID            `db:"id" json:"id"`
	Source            intake.SourceType    `db:"source" json:"source"`
	Contact           *intake.Contact      `db:"-" json:"contact,omitempty"`
	ContactCiphertext string               `db:"contact_ciphertext" json:"-"`
	Fingerprints      []string             `db:"fingerprints" json:"-"`
	Intake            intake.Intake        `db:"intake" json:"intake"`
	Score             int                  `db:"score" json:"score"`
	Tier              scoring.PriorityType `db:"tier" json:"tier"`
	Breakdown         scoring.Breakdown    `db:"breakdown" json:"breakdown"`
	Status            Status               `db:"status" json:"status"`
	SubmissionCount   int                  `db:"submission_count" json:"submission_count"`
	LastSubmittedAt   time.Time            `db:"last_submitted_at" json:"last_submitted_at"`
	CreatedAt         time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time            `db:"updated_at" json:"updated_at"`
}

// Filter narrows the coordinator queue. Empty fields match everything.
type Filter struct {
	Tier   scoring.PriorityType
	Status Status
	Source intake.SourceType
}

// SourceTierCount is one row of the analytics rollup.
type SourceTierCount struct {
	Source   intake.SourceType
	Tier     scoring.PriorityType
	Count    int
	ScoreSum int
}

// SourceStats summarizes one source.
type SourceStats struct {
	Count        int                          `json:"count"`
	AverageScore float64                      `json:"average_score"`
	ByTier       map[scoring.PriorityType]int `json:"by_tier"`
}

// Analytics is the lead mix since a point in time.
type Analytics struct {
	Since    time.Time                          `json:"since"`
	Total    int                                `json:"total"`
	ByTier   map[scoring.PriorityType]int       `json:"by_tier"`
	BySource map[intake.SourceType]*SourceStats `json:"by_source"`
}
