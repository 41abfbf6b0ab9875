package service

import (
	"context"
	"fmt"

	"github.com/noah-isme/edu-portal-api/internal/dto"
	"github.com/noah-isme/edu-portal-api/internal/models"
	"github.com/noah-isme/edu-portal-api/internal/workflow"
	appErrors "github.com/noah-isme/edu-portal-api/pkg/errors"
)

// OutcomeResult is returned when an interview is completed and decided in one step.
type OutcomeResult struct {
	Gate models.InstructorInterviewGate `json:"gate"`
	Slot models.InterviewSlot           `json:"slot"`
}

func outcomeGuard(outcome models.GateOutcome) authorizer {
	return func(user models.ActingUser, subject workflow.Subject) workflow.GuardResult {
		return workflow.CanSetOutcome(user, subject, outcome)
	}
}

// SetOutcome records the reviewer's decision on a readiness gate.
func (s *InterviewService) SetOutcome(ctx context.Context, actor models.ActingUser, gateID string, req dto.SetOutcomeRequest) (*models.InstructorInterviewGate, error) {
	const op = "set_outcome"
	if err := s.requireReviewer(op, actor); err != nil {
		return nil, err
	}
	if err := s.validate(op, req); err != nil {
		return nil, err
	}

	var decided *models.InstructorInterviewGate
	err := s.mutate(ctx, op, actor, readinessRef(gateID), outcomeGuard(req.Outcome), func(c *interviewChange) error {
		if req.Outcome != models.OutcomeWaive {
			slots, err := c.tx.ListSlots(ctx, models.DomainReadiness, gateID)
			if err != nil {
				return err
			}
			if !workflow.HasSlotIn(slots, models.SlotStatusCompleted) {
				return appErrors.Clone(appErrors.ErrInterviewNotCompleted, "the interview must be completed before an outcome is recorded")
			}
		}
		gate, err := c.decide(req.Outcome, req.ReviewNotes)
		if err != nil {
			return err
		}
		decided = gate
		return nil
	})
	if err != nil {
		return nil, err
	}
	return decided, nil
}

// CompleteInterviewWithOutcome completes the CONFIRMED slot and records the outcome atomically.
func (s *InterviewService) CompleteInterviewWithOutcome(ctx context.Context, actor models.ActingUser, gateID, slotID string, req dto.CompleteWithOutcomeRequest) (*OutcomeResult, error) {
	const op = "complete_with_outcome"
	if err := s.requireReviewer(op, actor); err != nil {
		return nil, err
	}
	if err := s.validate(op, req); err != nil {
		return nil, err
	}

	var result *OutcomeResult
	err := s.mutate(ctx, op, actor, readinessRef(gateID), outcomeGuard(req.Outcome), func(c *interviewChange) error {
		slots, err := c.tx.ListSlots(ctx, models.DomainReadiness, gateID)
		if err != nil {
			return err
		}
		slot, err := slotByID(slots, slotID)
		if err != nil {
			return err
		}
		if slot.Status != models.SlotStatusConfirmed {
			return appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("slot is %s, only CONFIRMED slots can be completed", slot.Status))
		}
		completed, err := c.transition(*slot, models.SlotStatusCompleted, models.SlotStatusConfirmed)
		if err != nil {
			return err
		}
		gate, err := c.decide(req.Outcome, req.ReviewNotes)
		if err != nil {
			return err
		}
		result = &OutcomeResult{Gate: *gate, Slot: *completed}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// decide writes the gate decision. PASS and WAIVE close the gate and decline whatever is still pending.
func (c *interviewChange) decide(outcome models.GateOutcome, notes *string) (*models.InstructorInterviewGate, error) {
	subject, ok := c.subject.(workflow.ReadinessSubject)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "outcomes apply to readiness gates only")
	}
	if !outcome.IsValid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown outcome %q", outcome))
	}
	decision := models.GateDecision{
		Status:      outcome.GateStatus(),
		Outcome:     outcome,
		ReviewedBy:  c.actor.ID,
		ReviewedAt:  c.now,
		ReviewNotes: notes,
	}
	if err := c.tx.UpdateGateDecision(c.ctx, subject.Gate.ID, decision); err != nil {
		return nil, err
	}

	if decision.Status.IsTerminal() {
		if _, err := c.declineOthers("", models.NoteGateFinalized); err != nil {
			return nil, err
		}
	}
	if outcome == models.OutcomeWaive {
		if err := c.audit("Interview requirement waived", auditPayload{
			Action:     models.AuditActionInterviewGateWaived,
			SubjectID:  subject.Gate.ID,
			OwnerID:    subject.Gate.InstructorID,
			ReviewerID: c.actor.ID,
			Notes:      notes,
		}); err != nil {
			return nil, err
		}
	}
	c.notify(subject.Gate.InstructorID, models.NotifyGateOutcome, "Interview outcome recorded", outcomeMessage(outcome))

	gate := subject.Gate
	reviewer := c.actor.ID
	at := c.now
	gate.Status = decision.Status
	gate.Outcome = &outcome
	gate.ReviewedBy = &reviewer
	gate.ReviewedAt = &at
	gate.ReviewNotes = notes
	gate.CompletedAt = &at
	gate.UpdatedAt = at
	return &gate, nil
}

func outcomeMessage(outcome models.GateOutcome) string {
	switch outcome {
	case models.OutcomePass:
		return "You passed the readiness interview."
	case models.OutcomeHold:
		return "Your readiness interview is on hold. A reviewer will follow up with next steps."
	case models.OutcomeFail:
		return "Your readiness interview was not passed. You may schedule another interview."
	case models.OutcomeWaive:
		return "Your readiness interview requirement has been waived."
	}
	return "Your readiness interview outcome was recorded."
}
