// Package workflow holds the pure rules of the interview lifecycle shared by
// hiring applications and instructor readiness gates. Nothing here performs I/O.
package workflow

import (
	"time"

	"github.com/noah-isme/edu-portal-api/internal/models"
)

// SubjectRef addresses a subject across both domains.
type SubjectRef struct {
	Domain models.InterviewDomain
	ID     string
}

// Key is the stable identifier used for task ids and cache keys.
func (r SubjectRef) Key() string {
	return string(r.Domain) + ":" + r.ID
}

// Subject is what the slot workflow needs to know about a gate or application.
type Subject interface {
	Ref() SubjectRef
	ChapterID() string
	OwnerID() string
	IsTerminal() bool
	// UpdatedAt moves with every interview mutation and with decisions recorded elsewhere.
	UpdatedAt() time.Time
}

// ReadinessSubject adapts an instructor interview gate.
type ReadinessSubject struct {
	Gate models.InstructorInterviewGate
}

func (s ReadinessSubject) Ref() SubjectRef {
	return SubjectRef{Domain: models.DomainReadiness, ID: s.Gate.ID}
}
func (s ReadinessSubject) ChapterID() string { return s.Gate.ChapterID }
func (s ReadinessSubject) OwnerID() string   { return s.Gate.InstructorID }
func (s ReadinessSubject) IsTerminal() bool  { return s.Gate.Status.IsTerminal() }

func (s ReadinessSubject) UpdatedAt() time.Time {
	return s.Gate.UpdatedAt
}

// HiringSubject adapts an application. A recorded decision is terminal.
type HiringSubject struct {
	Application models.Application
}

func (s HiringSubject) Ref() SubjectRef {
	return SubjectRef{Domain: models.DomainHiring, ID: s.Application.ID}
}
func (s HiringSubject) ChapterID() string { return s.Application.ChapterID }
func (s HiringSubject) OwnerID() string   { return s.Application.ApplicantID }
func (s HiringSubject) IsTerminal() bool  { return s.Application.IsDecided() }

func (s HiringSubject) UpdatedAt() time.Time {
	return s.Application.UpdatedAt
}

// SubjectLink is the details page for a subject.
func SubjectLink(ref SubjectRef) string {
	if ref.Domain == models.DomainHiring {
		return "/applications/" + ref.ID
	}
	return "/instructors/gates/" + ref.ID
}

// HasSlotIn reports whether any slot is in status.
func HasSlotIn(slots []models.InterviewSlot, status models.SlotStatus) bool {
	return FindSlot(slots, status) != nil
}

// FindSlot returns the slot in status with the earliest scheduled time.
func FindSlot(slots []models.InterviewSlot, status models.SlotStatus) *models.InterviewSlot {
	var found *models.InterviewSlot
	for i := range slots {
		if slots[i].Status != status {
			continue
		}
		if found == nil || slots[i].ScheduledAt.Before(found.ScheduledAt) {
			found = &slots[i]
		}
	}
	return found
}

// LatestCompleted returns the most recently completed slot.
func LatestCompleted(slots []models.InterviewSlot) *models.InterviewSlot {
	var found *models.InterviewSlot
	for i := range slots {
		if slots[i].Status != models.SlotStatusCompleted {
			continue
		}
		if found == nil || completedAt(slots[i]).After(completedAt(*found)) {
			found = &slots[i]
		}
	}
	return found
}

func completedAt(slot models.InterviewSlot) time.Time {
	if slot.CompletedAt != nil {
		return *slot.CompletedAt
	}
	return slot.ScheduledAt
}

// OldestPending returns the first submitted PENDING request.
func OldestPending(requests []models.AvailabilityRequest) *models.AvailabilityRequest {
	var found *models.AvailabilityRequest
	for i := range requests {
		if requests[i].Status != models.RequestStatusPending {
			continue
		}
		if found == nil || requests[i].CreatedAt.Before(found.CreatedAt) {
			found = &requests[i]
		}
	}
	return found
}

// CountPending counts PENDING requests.
func CountPending(requests []models.AvailabilityRequest) int {
	n := 0
	for _, r := range requests {
		if r.Status == models.RequestStatusPending {
			n++
		}
	}
	return n
}

// LatestRecommendation returns the newest recommendation note, if any.
func LatestRecommendation(notes []models.DecisionNote) *models.DecisionNote {
	var found *models.DecisionNote
	for i := range notes {
		if notes[i].Kind != models.NoteKindRecommendation {
			continue
		}
		if found == nil || notes[i].CreatedAt.After(found.CreatedAt) {
			found = &notes[i]
		}
	}
	return found
}
