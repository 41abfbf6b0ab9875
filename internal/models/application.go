package models

import "time"

// Application is a candidate's application for a chapter position.
type Application struct {
	ID                string     `db:"id" json:"id"`
	PositionID        string     `db:"position_id" json:"position_id"`
	PositionTitle     string     `db:"position_title" json:"position_title"`
	ApplicantID       string     `db:"applicant_id" json:"applicant_id"`
	ApplicantName     string     `db:"applicant_name" json:"applicant_name"`
	ChapterID         string     `db:"chapter_id" json:"chapter_id"`
	InterviewRequired bool       `db:"interview_required" json:"interview_required"`
	DecisionAccepted  *bool      `db:"decision_accepted" json:"decision_accepted,omitempty"`
	DecidedAt         *time.Time `db:"decided_at" json:"decided_at,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// IsDecided reports whether the accept/reject decision has been recorded.
func (a Application) IsDecided() bool {
	return a.DecisionAccepted != nil
}

// NoteKind distinguishes recommendations from free notes.
type NoteKind string

const (
	NoteKindRecommendation NoteKind = "RECOMMENDATION"
	NoteKindNote           NoteKind = "NOTE"
)

// DecisionNote is free text attached to an application.
type DecisionNote struct {
	ID            string    `db:"id" json:"id"`
	ApplicationID string    `db:"application_id" json:"application_id"`
	AuthorID      string    `db:"author_id" json:"author_id"`
	Kind          NoteKind  `db:"kind" json:"kind"`
	Body          string    `db:"body" json:"body"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// ApplicationFilter narrows application listings.
type ApplicationFilter struct {
	ChapterID   string
	ApplicantID string
	Undecided   bool
	Limit       int
}
