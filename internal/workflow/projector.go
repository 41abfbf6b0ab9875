package workflow

import (
	"fmt"
	"time"

	"github.com/noah-isme/edu-portal-api/internal/models"
)

// Blocker codes attached to BLOCKED tasks.
const (
	BlockerAwaitingReviewer     = "AWAITING_REVIEWER"
	BlockerAwaitingConfirmation = "AWAITING_SUBJECT_CONFIRMATION"
	BlockerAwaitingSlot         = "AWAITING_SLOT"
)

const timeLayout = "Mon 02 Jan 2006 15:04 MST"

// Defaults seeds the prefilled values carried by primary actions.
type Defaults struct {
	DurationMinutes   int
	MaxPreferredSlots int
	MaxPostedSlots    int
}

// Snapshot is the persisted state a task is derived from.
type Snapshot struct {
	Subject  Subject
	Slots    []models.InterviewSlot
	Requests []models.AvailabilityRequest
	Notes    []models.DecisionNote
}

// Project derives the single next step for viewer. It never mutates its input.
func Project(snap Snapshot, viewer models.ViewerRole, defaults Defaults) (models.InterviewTask, error) {
	switch subject := snap.Subject.(type) {
	case ReadinessSubject:
		return projectReadiness(subject, snap, viewer, defaults), nil
	case HiringSubject:
		return projectHiring(subject, snap, viewer, defaults), nil
	case nil:
		return models.InterviewTask{}, fmt.Errorf("project: nil subject")
	default:
		return models.InterviewTask{}, fmt.Errorf("project: unsupported subject %T", snap.Subject)
	}
}

type slotView struct {
	posted    *models.InterviewSlot
	confirmed *models.InterviewSlot
	completed *models.InterviewSlot
}

func viewSlots(slots []models.InterviewSlot) slotView {
	return slotView{
		posted:    FindSlot(slots, models.SlotStatusPosted),
		confirmed: FindSlot(slots, models.SlotStatusConfirmed),
		completed: LatestCompleted(slots),
	}
}

func newTask(subject Subject, viewer models.ViewerRole, title, subtitle string) models.InterviewTask {
	ref := subject.Ref()
	return models.InterviewTask{
		ID:             ref.Key(),
		Domain:         ref.Domain,
		SubjectID:      ref.ID,
		ChapterID:      subject.ChapterID(),
		Viewer:         viewer,
		Title:          title,
		Subtitle:       subtitle,
		SecondaryLinks: []models.SecondaryLink{{Label: "Open details", Href: SubjectLink(ref)}},
		Blockers:       []models.TaskBlocker{},
	}
}

func block(task *models.InterviewTask, code, message string) {
	task.Stage = models.StageBlocked
	task.Detail = message
	task.Blockers = append(task.Blockers, models.TaskBlocker{Code: code, Message: message})
}

func meetingLink(task *models.InterviewTask, slot *models.InterviewSlot) {
	if slot != nil && slot.MeetingLink != nil && *slot.MeetingLink != "" {
		task.SecondaryLinks = append(task.SecondaryLinks, models.SecondaryLink{Label: "Join meeting", Href: *slot.MeetingLink})
	}
}

func projectReadiness(subject ReadinessSubject, snap Snapshot, viewer models.ViewerRole, defaults Defaults) models.InterviewTask {
	gate := subject.Gate
	task := newTask(subject, viewer, "Instructor readiness interview", gate.InstructorName)
	slots := viewSlots(snap.Slots)
	pending := OldestPending(snap.Requests)

	task.Timestamps = models.TaskTimestamps{CreatedAt: gate.CreatedAt, UpdatedAt: gate.UpdatedAt, ScheduledAt: gate.ScheduledAt, CompletedAt: gate.CompletedAt}
	if slots.confirmed != nil {
		at := slots.confirmed.ScheduledAt
		task.Timestamps.ScheduledAt = &at
	}
	view := &models.ViewReadinessGate{GateID: gate.ID}

	if subject.IsTerminal() {
		task.Stage = models.StageCompleted
		task.Timestamps.DecidedAt = gate.ReviewedAt
		task.Detail = "Interview passed."
		if gate.Status == models.GateStatusWaived {
			task.Detail = "Interview requirement waived."
		}
		task.PrimaryAction = view
		return task
	}

	// A HOLD or FAIL recorded after the last completed interview closes that round.
	awaitingOutcome := slots.completed != nil && !outcomeRecordedAfter(gate, *slots.completed)
	outcomeOffer := []models.GateOutcome{models.OutcomePass, models.OutcomeHold, models.OutcomeFail}

	if viewer == models.ViewerSubject {
		switch {
		case slots.posted != nil && slots.confirmed == nil:
			task.Stage = models.StageNeedsAction
			task.Detail = "Confirm the interview slot on " + slots.posted.ScheduledAt.UTC().Format(timeLayout) + "."
			task.PrimaryAction = &models.ConfirmReadinessSlot{GateID: gate.ID, SlotID: slots.posted.ID, ScheduledAt: slots.posted.ScheduledAt}
		case slots.confirmed != nil:
			task.Stage = models.StageScheduled
			task.Detail = "Interview scheduled for " + slots.confirmed.ScheduledAt.UTC().Format(timeLayout) + "."
			meetingLink(&task, slots.confirmed)
			task.PrimaryAction = view
		case awaitingOutcome:
			task.Stage = models.StageCompleted
			task.Detail = "Interview completed; awaiting the outcome."
			task.PrimaryAction = view
		case pending != nil:
			block(&task, BlockerAwaitingReviewer, "Waiting for a reviewer to schedule from your availability.")
			task.PrimaryAction = view
		default:
			task.Stage = models.StageNeedsAction
			task.Detail = withPriorOutcome(gate, "Submit your availability for the readiness interview.")
			task.PrimaryAction = &models.SubmitReadinessAvailability{GateID: gate.ID, MaxPreferredSlots: defaults.MaxPreferredSlots}
		}
		return task
	}

	switch {
	case slots.confirmed != nil:
		task.Stage = models.StageNeedsAction
		task.Detail = "Complete the interview held " + slots.confirmed.ScheduledAt.UTC().Format(timeLayout) + " and record the outcome."
		meetingLink(&task, slots.confirmed)
		task.PrimaryAction = &models.CompleteReadinessInterviewAndOutcome{GateID: gate.ID, SlotID: slots.confirmed.ID, Outcomes: outcomeOffer}
	case awaitingOutcome:
		task.Stage = models.StageNeedsAction
		task.Detail = "Interview completed; record the outcome."
		task.PrimaryAction = &models.SetReadinessOutcome{GateID: gate.ID, Outcomes: outcomeOffer}
	case pending != nil:
		task.Stage = models.StageNeedsAction
		task.Detail = fmt.Sprintf("%d pending availability request(s); schedule from the oldest.", CountPending(snap.Requests))
		task.PrimaryAction = acceptFromRequest(gate.ID, *pending, defaults)
	case slots.posted != nil:
		block(&task, BlockerAwaitingConfirmation, "Waiting for the instructor to confirm a posted slot.")
		task.PrimaryAction = view
	default:
		task.Stage = models.StageNeedsAction
		task.Detail = withPriorOutcome(gate, "Post interview slots for the instructor.")
		task.PrimaryAction = &models.PostReadinessSlotsBulk{GateID: gate.ID, DefaultDurationMinutes: defaults.DurationMinutes, MaxSlots: defaults.MaxPostedSlots}
	}
	return task
}

func outcomeRecordedAfter(gate models.InstructorInterviewGate, slot models.InterviewSlot) bool {
	if gate.Outcome == nil || gate.ReviewedAt == nil {
		return false
	}
	return !gate.ReviewedAt.Before(completedAt(slot))
}

func withPriorOutcome(gate models.InstructorInterviewGate, detail string) string {
	switch gate.Status {
	case models.GateStatusHold:
		return "Previous interview put on hold. " + detail
	case models.GateStatusFailed:
		return "Previous interview not passed. " + detail
	}
	return detail
}

func acceptFromRequest(gateID string, req models.AvailabilityRequest, defaults Defaults) *models.AcceptReadinessRequest {
	action := &models.AcceptReadinessRequest{GateID: gateID, RequestID: req.ID, DefaultDurationMinutes: defaults.DurationMinutes}
	if len(req.PreferredSlots) > 0 {
		first := req.PreferredSlots[0]
		action.SuggestedStart = first.Start
		if first.End != nil && first.End.After(first.Start) {
			action.DefaultDurationMinutes = int(first.End.Sub(first.Start) / time.Minute)
		}
	}
	return action
}

func projectHiring(subject HiringSubject, snap Snapshot, viewer models.ViewerRole, defaults Defaults) models.InterviewTask {
	app := subject.Application
	task := newTask(subject, viewer, "Hiring interview: "+app.ApplicantName, app.PositionTitle)
	slots := viewSlots(snap.Slots)
	recommendation := LatestRecommendation(snap.Notes)

	task.Timestamps = models.TaskTimestamps{CreatedAt: app.CreatedAt, UpdatedAt: app.UpdatedAt, DecidedAt: app.DecidedAt}
	if slots.confirmed != nil {
		at := slots.confirmed.ScheduledAt
		task.Timestamps.ScheduledAt = &at
	}
	if slots.completed != nil {
		task.Timestamps.CompletedAt = slots.completed.CompletedAt
	}
	view := &models.ViewHiringApplication{ApplicationID: app.ID}

	if subject.IsTerminal() {
		task.Stage = models.StageCompleted
		task.Detail = "Application rejected."
		if *app.DecisionAccepted {
			task.Detail = "Application accepted."
		}
		task.PrimaryAction = view
		return task
	}

	if viewer == models.ViewerSubject {
		switch {
		case slots.posted != nil && slots.confirmed == nil:
			task.Stage = models.StageNeedsAction
			task.Detail = "Confirm the interview slot on " + slots.posted.ScheduledAt.UTC().Format(timeLayout) + "."
			task.PrimaryAction = &models.ConfirmHiringSlot{ApplicationID: app.ID, SlotID: slots.posted.ID, ScheduledAt: slots.posted.ScheduledAt}
		case slots.confirmed != nil:
			task.Stage = models.StageScheduled
			task.Detail = "Interview scheduled for " + slots.confirmed.ScheduledAt.UTC().Format(timeLayout) + "."
			meetingLink(&task, slots.confirmed)
			task.PrimaryAction = view
		case !app.InterviewRequired || slots.completed != nil:
			task.Stage = models.StageCompleted
			task.Detail = "Awaiting a decision on your application."
			task.PrimaryAction = view
		default:
			block(&task, BlockerAwaitingSlot, "Waiting for a reviewer to post an interview slot.")
			task.PrimaryAction = view
		}
		return task
	}

	switch {
	case !app.InterviewRequired:
		task.Stage = models.StageCompleted
		task.Detail = "No interview required; ready for decision."
		task.PrimaryAction = &models.OpenHiringDecision{ApplicationID: app.ID}
	case slots.confirmed != nil:
		task.Stage = models.StageNeedsAction
		task.Detail = "Complete the interview held " + slots.confirmed.ScheduledAt.UTC().Format(timeLayout) + " and capture a recommendation."
		meetingLink(&task, slots.confirmed)
		task.PrimaryAction = &models.CompleteHiringInterview{ApplicationID: app.ID, SlotID: slots.confirmed.ID, CaptureRecommendation: recommendation == nil}
	case slots.completed != nil && recommendation == nil:
		task.Stage = models.StageNeedsAction
		task.Detail = "Interview completed; add a recommendation."
		task.PrimaryAction = &models.AddHiringRecommendation{ApplicationID: app.ID, SlotID: slots.completed.ID}
	case slots.completed != nil:
		task.Stage = models.StageCompleted
		task.Detail = "Interview and recommendation captured; ready for decision."
		task.PrimaryAction = &models.OpenHiringDecision{ApplicationID: app.ID}
	case slots.posted != nil:
		block(&task, BlockerAwaitingConfirmation, "Waiting for the applicant to confirm a posted slot.")
		task.PrimaryAction = view
	default:
		task.Stage = models.StageNeedsAction
		task.Detail = "Post an interview slot for the applicant."
		task.PrimaryAction = &models.PostHiringSlot{ApplicationID: app.ID, DefaultDurationMinutes: defaults.DurationMinutes}
	}
	return task
}
