package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/edu-portal-api/internal/dto"
	"github.com/noah-isme/edu-portal-api/internal/models"
	"github.com/noah-isme/edu-portal-api/internal/repository"
	"github.com/noah-isme/edu-portal-api/internal/workflow"
	appErrors "github.com/noah-isme/edu-portal-api/pkg/errors"
)

// Layouts accepted for preferred windows. Values without a zone are read as UTC.
var windowLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04"}

// AvailabilityAcceptance is the result of accepting an availability request.
type AvailabilityAcceptance struct {
	Request            models.AvailabilityRequest `json:"request"`
	Slot               models.InterviewSlot       `json:"slot"`
	DeclinedRequestIDs []string                   `json:"declined_request_ids"`
}

func readinessRef(gateID string) workflow.SubjectRef {
	return workflow.SubjectRef{Domain: models.DomainReadiness, ID: gateID}
}

// SubmitAvailability records the instructor's preferred windows for reviewers to pick from.
func (s *InterviewService) SubmitAvailability(ctx context.Context, actor models.ActingUser, gateID string, req dto.SubmitAvailabilityRequest) (*models.AvailabilityRequest, error) {
	const op = "submit_availability"
	ref := readinessRef(gateID)
	if err := s.validate(op, req); err != nil {
		return nil, err
	}
	if len(req.PreferredSlots) > s.cfg.MaxPreferredSlots {
		return nil, s.fail(op, ref, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("at most %d preferred slots are allowed", s.cfg.MaxPreferredSlots)))
	}

	var submitted *models.AvailabilityRequest
	err := s.mutate(ctx, op, actor, ref, workflow.CanActAsSubject, func(c *interviewChange) error {
		requests, err := c.tx.ListRequests(ctx, gateID)
		if err != nil {
			return err
		}
		if workflow.CountPending(requests) >= s.cfg.MaxPendingRequests {
			return appErrors.Clone(appErrors.ErrTooManyPendingRequests,
				fmt.Sprintf("at most %d availability requests may be pending", s.cfg.MaxPendingRequests))
		}
		windows, err := parseWindows(req.PreferredSlots)
		if err != nil {
			return err
		}

		request := &models.AvailabilityRequest{
			ID:             c.newID(),
			GateID:         gateID,
			InstructorID:   actor.ID,
			Status:         models.RequestStatusPending,
			PreferredSlots: windows,
			Note:           req.Note,
			CreatedAt:      c.now,
			UpdatedAt:      c.now,
		}
		if err := c.tx.InsertRequest(ctx, request); err != nil {
			return err
		}

		c.notifyReviewers(models.NotifyAvailabilitySubmit, "Availability submitted",
			fmt.Sprintf("%d preferred interview time(s) are waiting for review.", len(windows)))
		submitted = request
		return nil
	})
	if err != nil {
		return nil, err
	}
	return submitted, nil
}

// CancelAvailability withdraws the instructor's own PENDING request.
func (s *InterviewService) CancelAvailability(ctx context.Context, actor models.ActingUser, gateID, requestID string) (*models.AvailabilityRequest, error) {
	const op = "cancel_availability"
	var cancelled *models.AvailabilityRequest
	err := s.mutate(ctx, op, actor, readinessRef(gateID), workflow.CanActAsSubject, func(c *interviewChange) error {
		if err := c.requirePending(requestID); err != nil {
			return err
		}
		updated, err := c.review(requestID, models.RequestReview{
			Status:     models.RequestStatusCancelled,
			ReviewedAt: c.now,
		})
		if err != nil {
			return err
		}
		cancelled = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

// AcceptAvailability confirms one request as the interview slot and declines the other PENDING ones.
func (s *InterviewService) AcceptAvailability(ctx context.Context, actor models.ActingUser, gateID, requestID string, req dto.AcceptAvailabilityRequest) (*AvailabilityAcceptance, error) {
	const op = "accept_availability"
	if err := s.requireReviewer(op, actor); err != nil {
		return nil, err
	}
	if err := s.requireScheduledAt(op, req.ScheduledAt); err != nil {
		return nil, err
	}
	if err := s.validate(op, req); err != nil {
		return nil, err
	}

	var result *AvailabilityAcceptance
	err := s.mutate(ctx, op, actor, readinessRef(gateID), workflow.CanManage, func(c *interviewChange) error {
		if err := c.requirePending(requestID); err != nil {
			return err
		}
		slots, err := c.tx.ListSlots(ctx, models.DomainReadiness, gateID)
		if err != nil {
			return err
		}
		if workflow.HasSlotIn(slots, models.SlotStatusConfirmed) {
			return appErrors.Clone(appErrors.ErrAlreadyScheduled, "")
		}

		reviewer := actor.ID
		accepted, err := c.review(requestID, models.RequestReview{
			Status:     models.RequestStatusAccepted,
			ReviewedBy: &reviewer,
			ReviewedAt: c.now,
		})
		if err != nil {
			return err
		}

		confirmedAt := c.now
		slot := models.InterviewSlot{
			ID:              c.newID(),
			Domain:          models.DomainReadiness,
			SubjectID:       gateID,
			Status:          models.SlotStatusConfirmed,
			ScheduledAt:     req.ScheduledAt.UTC(),
			DurationMinutes: s.duration(req.DurationMinutes),
			Source:          models.SlotSourceInstructorRequested,
			CreatedBy:       actor.ID,
			MeetingLink:     req.MeetingLink,
			Notes:           req.Notes,
			ConfirmedAt:     &confirmedAt,
			CreatedAt:       c.now,
			UpdatedAt:       c.now,
		}
		if err := c.insertConfirmedSlot(&slot); err != nil {
			return err
		}

		declined, err := c.declineOthers(requestID, models.NoteSiblingAccepted)
		if err != nil {
			return err
		}
		if err := c.markScheduled(slot.ScheduledAt); err != nil {
			return err
		}

		c.notify(c.subject.OwnerID(), models.NotifyAvailabilityAccept, "Availability accepted",
			fmt.Sprintf("Your interview is confirmed for %s.", slot.ScheduledAt.Format(displayTime)))
		result = &AvailabilityAcceptance{Request: *accepted, Slot: slot, DeclinedRequestIDs: declined}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeclineAvailability rejects one PENDING request and asks the instructor to resubmit.
func (s *InterviewService) DeclineAvailability(ctx context.Context, actor models.ActingUser, gateID, requestID string, req dto.DeclineAvailabilityRequest) (*models.AvailabilityRequest, error) {
	const op = "decline_availability"
	if err := s.requireReviewer(op, actor); err != nil {
		return nil, err
	}
	if err := s.validate(op, req); err != nil {
		return nil, err
	}

	var declined *models.AvailabilityRequest
	err := s.mutate(ctx, op, actor, readinessRef(gateID), workflow.CanManage, func(c *interviewChange) error {
		if err := c.requirePending(requestID); err != nil {
			return err
		}
		reviewer := actor.ID
		updated, err := c.review(requestID, models.RequestReview{
			Status:     models.RequestStatusDeclined,
			ReviewedBy: &reviewer,
			ReviewedAt: c.now,
			Notes:      req.ReviewNotes,
		})
		if err != nil {
			return err
		}

		body := "None of the proposed times work. Please submit new availability."
		if req.ReviewNotes != nil && strings.TrimSpace(*req.ReviewNotes) != "" {
			body = fmt.Sprintf("%s Reviewer note: %s", body, strings.TrimSpace(*req.ReviewNotes))
		}
		c.notify(c.subject.OwnerID(), models.NotifyAvailabilityDecline, "Availability declined", body)
		declined = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return declined, nil
}

func (c *interviewChange) requirePending(requestID string) error {
	requests, err := c.tx.ListRequests(c.ctx, c.subject.Ref().ID)
	if err != nil {
		return err
	}
	for _, req := range requests {
		if req.ID != requestID {
			continue
		}
		if req.Status != models.RequestStatusPending {
			return appErrors.Clone(appErrors.ErrNotPending, fmt.Sprintf("availability request is %s", req.Status))
		}
		return nil
	}
	return appErrors.Clone(appErrors.ErrNotFound, "availability request not found")
}

func (c *interviewChange) review(requestID string, review models.RequestReview) (*models.AvailabilityRequest, error) {
	updated, err := c.tx.ReviewRequest(c.ctx, requestID, review)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotPending, "")
		}
		return nil, err
	}
	return updated, nil
}

func (c *interviewChange) insertConfirmedSlot(slot *models.InterviewSlot) error {
	err := c.tx.InsertSlot(c.ctx, slot)
	if errors.Is(err, repository.ErrConfirmedSlotExists) {
		return appErrors.Clone(appErrors.ErrAlreadyScheduled, "")
	}
	return err
}

// declineOthers declines every PENDING request except keepID, which may be empty.
func (c *interviewChange) declineOthers(keepID, note string) ([]string, error) {
	reviewer := c.actor.ID
	return c.tx.DeclinePendingRequests(c.ctx, c.subject.Ref().ID, keepID, models.RequestReview{
		Status:     models.RequestStatusDeclined,
		ReviewedBy: &reviewer,
		ReviewedAt: c.now,
		Notes:      &note,
	})
}

func parseWindows(inputs []dto.PreferredSlotInput) (models.PreferredWindows, error) {
	windows := make(models.PreferredWindows, 0, len(inputs))
	for i, in := range inputs {
		start, err := parseWindowTime(in.Start)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInvalidTimeWindow.Code, appErrors.ErrInvalidTimeWindow.Status,
				fmt.Sprintf("preferred slot %d has an invalid start", i+1))
		}
		window := models.PreferredWindow{Start: start}
		if strings.TrimSpace(in.End) != "" {
			end, err := parseWindowTime(in.End)
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInvalidTimeWindow.Code, appErrors.ErrInvalidTimeWindow.Status,
					fmt.Sprintf("preferred slot %d has an invalid end", i+1))
			}
			if !end.After(start) {
				return nil, appErrors.Clone(appErrors.ErrInvalidTimeWindow, fmt.Sprintf("preferred slot %d ends before it starts", i+1))
			}
			window.End = &end
		}
		windows = append(windows, window)
	}
	return windows, nil
}

func parseWindowTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("timestamp is required")
	}
	var lastErr error
	for _, layout := range windowLayouts {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
