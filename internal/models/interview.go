package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// InterviewDomain distinguishes the two lifecycles sharing the slot workflow.
type InterviewDomain string

const (
	DomainHiring    InterviewDomain = "HIRING"
	DomainReadiness InterviewDomain = "READINESS"
)

// ParseInterviewDomain accepts the upper or lower case domain name used in routes.
func ParseInterviewDomain(raw string) (InterviewDomain, error) {
	switch InterviewDomain(strings.ToUpper(strings.TrimSpace(raw))) {
	case DomainHiring:
		return DomainHiring, nil
	case DomainReadiness:
		return DomainReadiness, nil
	}
	return "", fmt.Errorf("unknown interview domain %q", raw)
}

// Slug is the lower case form used in links.
func (d InterviewDomain) Slug() string {
	return strings.ToLower(string(d))
}

// SlotStatus enumerates interview slot states.
type SlotStatus string

const (
	SlotStatusPosted    SlotStatus = "POSTED"
	SlotStatusConfirmed SlotStatus = "CONFIRMED"
	SlotStatusCompleted SlotStatus = "COMPLETED"
	SlotStatusCancelled SlotStatus = "CANCELLED"
)

// SlotSource records who proposed the time.
type SlotSource string

const (
	SlotSourceReviewerPosted      SlotSource = "REVIEWER_POSTED"
	SlotSourceInstructorRequested SlotSource = "INSTRUCTOR_REQUESTED"
)

// InterviewSlot is a concrete proposed or confirmed interview time for one subject.
type InterviewSlot struct {
	ID              string          `db:"id" json:"id"`
	Domain          InterviewDomain `db:"domain" json:"domain"`
	SubjectID       string          `db:"subject_id" json:"subject_id"`
	Status          SlotStatus      `db:"status" json:"status"`
	ScheduledAt     time.Time       `db:"scheduled_at" json:"scheduled_at"`
	DurationMinutes int             `db:"duration_minutes" json:"duration_minutes"`
	Source          SlotSource      `db:"source" json:"source"`
	CreatedBy       string          `db:"created_by" json:"created_by"`
	MeetingLink     *string         `db:"meeting_link" json:"meeting_link,omitempty"`
	Notes           *string         `db:"notes" json:"notes,omitempty"`
	ConfirmedAt     *time.Time      `db:"confirmed_at" json:"confirmed_at,omitempty"`
	CompletedAt     *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
	CancelledAt     *time.Time      `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// RequestStatus enumerates availability request states.
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "PENDING"
	RequestStatusAccepted  RequestStatus = "ACCEPTED"
	RequestStatusDeclined  RequestStatus = "DECLINED"
	RequestStatusCancelled RequestStatus = "CANCELLED"
)

// Review notes written by the workflow itself.
const (
	NoteSiblingAccepted = "A different availability request was accepted."
	NoteGateFinalized   = "Interview gate finalized."
)

// PreferredWindow is one proposed time window.
type PreferredWindow struct {
	Start time.Time  `json:"start"`
	End   *time.Time `json:"end,omitempty"`
}

// PreferredWindows is stored as a JSONB array.
type PreferredWindows []PreferredWindow

// Value implements driver.Valuer.
func (w PreferredWindows) Value() (driver.Value, error) {
	if w == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(w)
}

// Scan implements sql.Scanner.
func (w *PreferredWindows) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*w = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("preferred windows: unsupported type %T", src)
	}
	return json.Unmarshal(raw, w)
}

// AvailabilityRequest is a subject-submitted set of preferred windows awaiting review.
type AvailabilityRequest struct {
	ID             string           `db:"id" json:"id"`
	GateID         string           `db:"gate_id" json:"gate_id"`
	InstructorID   string           `db:"instructor_id" json:"instructor_id"`
	Status         RequestStatus    `db:"status" json:"status"`
	PreferredSlots PreferredWindows `db:"preferred_slots" json:"preferred_slots"`
	Note           *string          `db:"note" json:"note,omitempty"`
	ReviewedBy     *string          `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt     *time.Time       `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ReviewNotes    *string          `db:"review_notes" json:"review_notes,omitempty"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
}

// RequestReview is applied when a request leaves PENDING.
type RequestReview struct {
	Status     RequestStatus
	ReviewedBy *string
	ReviewedAt time.Time
	Notes      *string
}
