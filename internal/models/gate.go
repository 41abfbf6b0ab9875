package models

import "time"

// GateStatus enumerates readiness gate states.
type GateStatus string

const (
	GateStatusRequired  GateStatus = "REQUIRED"
	GateStatusScheduled GateStatus = "SCHEDULED"
	GateStatusCompleted GateStatus = "COMPLETED"
	GateStatusPassed    GateStatus = "PASSED"
	GateStatusHold      GateStatus = "HOLD"
	GateStatusFailed    GateStatus = "FAILED"
	GateStatusWaived    GateStatus = "WAIVED"
)

// IsTerminal reports whether the status closes the gate to further scheduling.
func (s GateStatus) IsTerminal() bool {
	return s == GateStatusPassed || s == GateStatusWaived
}

// GateOutcome is the reviewer decision recorded on a gate.
type GateOutcome string

const (
	OutcomePass  GateOutcome = "PASS"
	OutcomeHold  GateOutcome = "HOLD"
	OutcomeFail  GateOutcome = "FAIL"
	OutcomeWaive GateOutcome = "WAIVE"
)

// IsValid checks the outcome against the known set.
func (o GateOutcome) IsValid() bool {
	switch o {
	case OutcomePass, OutcomeHold, OutcomeFail, OutcomeWaive:
		return true
	}
	return false
}

// GateStatus maps the outcome to the resulting gate status.
func (o GateOutcome) GateStatus() GateStatus {
	switch o {
	case OutcomePass:
		return GateStatusPassed
	case OutcomeHold:
		return GateStatusHold
	case OutcomeFail:
		return GateStatusFailed
	case OutcomeWaive:
		return GateStatusWaived
	}
	return ""
}

// InstructorInterviewGate tracks an instructor's onboarding interview.
type InstructorInterviewGate struct {
	ID             string       `db:"id" json:"id"`
	InstructorID   string       `db:"instructor_id" json:"instructor_id"`
	InstructorName string       `db:"instructor_name" json:"instructor_name"`
	ChapterID      string       `db:"chapter_id" json:"chapter_id"`
	Status         GateStatus   `db:"status" json:"status"`
	ScheduledAt    *time.Time   `db:"scheduled_at" json:"scheduled_at,omitempty"`
	Outcome        *GateOutcome `db:"outcome" json:"outcome,omitempty"`
	ReviewedBy     *string      `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt     *time.Time   `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ReviewNotes    *string      `db:"review_notes" json:"review_notes,omitempty"`
	CompletedAt    *time.Time   `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at" json:"updated_at"`
}

// GateDecision is written by the outcome resolver.
type GateDecision struct {
	Status      GateStatus
	Outcome     GateOutcome
	ReviewedBy  string
	ReviewedAt  time.Time
	ReviewNotes *string
}

// GateFilter narrows gate listings.
type GateFilter struct {
	ChapterID    string
	InstructorID string
	Statuses     []GateStatus
	Limit        int
}
