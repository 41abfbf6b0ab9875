package dto

import (
	"time"

	"github.com/noah-isme/edu-portal-api/internal/models"
)

// SlotInput describes one reviewer proposed interview time.
type SlotInput struct {
	ScheduledAt     time.Time `json:"scheduledAt" validate:"required"`
	DurationMinutes int       `json:"durationMinutes" validate:"omitempty,min=5,max=480"`
	MeetingLink     *string   `json:"meetingLink,omitempty" validate:"omitempty,url"`
	Notes           *string   `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// PostSlotsRequest captures POST /interviews/:domain/:id/slots payload.
type PostSlotsRequest struct {
	Slots []SlotInput `json:"slots" validate:"required,min=1,dive"`
}

// CompleteSlotRequest optionally captures a hiring recommendation with the completion.
type CompleteSlotRequest struct {
	Recommendation *string `json:"recommendation,omitempty" validate:"omitempty,min=1,max=4000"`
}

// RecommendationRequest captures POST /interviews/hiring/:id/recommendation payload.
type RecommendationRequest struct {
	Body string `json:"body" validate:"required,max=4000"`
}

// PreferredSlotInput is a raw window as typed by the instructor. Timestamps are parsed by the service.
type PreferredSlotInput struct {
	Start string `json:"start"`
	End   string `json:"end,omitempty"`
}

// SubmitAvailabilityRequest captures POST /interviews/readiness/:id/availability payload.
type SubmitAvailabilityRequest struct {
	PreferredSlots []PreferredSlotInput `json:"preferredSlots" validate:"required,min=1"`
	Note           *string              `json:"note,omitempty" validate:"omitempty,max=2000"`
}

// AcceptAvailabilityRequest fixes the confirmed time when accepting a request.
type AcceptAvailabilityRequest struct {
	ScheduledAt     time.Time `json:"scheduledAt" validate:"required"`
	DurationMinutes int       `json:"durationMinutes" validate:"omitempty,min=5,max=480"`
	MeetingLink     *string   `json:"meetingLink,omitempty" validate:"omitempty,url"`
	Notes           *string   `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// DeclineAvailabilityRequest carries the reviewer's reason.
type DeclineAvailabilityRequest struct {
	ReviewNotes *string `json:"reviewNotes,omitempty" validate:"omitempty,max=2000"`
}

// SetOutcomeRequest captures POST /interviews/readiness/:id/outcome payload.
type SetOutcomeRequest struct {
	Outcome     models.GateOutcome `json:"outcome" validate:"required,oneof=PASS HOLD FAIL WAIVE"`
	ReviewNotes *string            `json:"reviewNotes,omitempty" validate:"omitempty,max=2000"`
}

// CompleteWithOutcomeRequest completes the confirmed slot and records the outcome in one step.
type CompleteWithOutcomeRequest struct {
	Outcome     models.GateOutcome `json:"outcome" validate:"required,oneof=PASS HOLD FAIL"`
	ReviewNotes *string            `json:"reviewNotes,omitempty" validate:"omitempty,max=2000"`
}

// TaskQuery mirrors supported task listing filters.
type TaskQuery struct {
	Domain *models.InterviewDomain
	Limit  int
}
