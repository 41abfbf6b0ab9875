package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/edu-portal-api/internal/models"
)

// InterviewTx is the transactional view of one subject's interview state.
// Lock* must be called first so every later read sees a stable subject.
type InterviewTx interface {
	LockGate(ctx context.Context, id string) (*models.InstructorInterviewGate, error)
	LockApplication(ctx context.Context, id string) (*models.Application, error)

	TouchSubject(ctx context.Context, domain models.InterviewDomain, id string, at time.Time) error

	ListSlots(ctx context.Context, domain models.InterviewDomain, subjectID string) ([]models.InterviewSlot, error)
	InsertSlot(ctx context.Context, slot *models.InterviewSlot) error
	TransitionSlot(ctx context.Context, params SlotTransition) (*models.InterviewSlot, error)

	ListRequests(ctx context.Context, gateID string) ([]models.AvailabilityRequest, error)
	InsertRequest(ctx context.Context, req *models.AvailabilityRequest) error
	ReviewRequest(ctx context.Context, id string, review models.RequestReview) (*models.AvailabilityRequest, error)
	DeclinePendingRequests(ctx context.Context, gateID, exceptID string, review models.RequestReview) ([]string, error)

	UpdateGateProgress(ctx context.Context, params GateProgress) error
	UpdateGateDecision(ctx context.Context, gateID string, decision models.GateDecision) error

	ListNotes(ctx context.Context, applicationID string) ([]models.DecisionNote, error)
	InsertNote(ctx context.Context, note *models.DecisionNote) error

	InsertEvents(ctx context.Context, events []models.InterviewEvent) error
}

// SlotTransition moves a slot from one of From to To. At stamps the matching timestamp column.
type SlotTransition struct {
	ID        string
	Domain    models.InterviewDomain
	SubjectID string
	From      []models.SlotStatus
	To        models.SlotStatus
	At        time.Time
}

// GateProgress records scheduling progress on a gate.
type GateProgress struct {
	GateID      string
	Status      models.GateStatus
	ScheduledAt *time.Time
	CompletedAt *time.Time
	At          time.Time
}

type interviewTx struct {
	tx *sqlx.Tx
}

func (t *interviewTx) LockGate(ctx context.Context, id string) (*models.InstructorInterviewGate, error) {
	var gate models.InstructorInterviewGate
	if err := t.tx.GetContext(ctx, &gate, gateSelect+` WHERE g.id = $1 FOR UPDATE OF g`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("lock interview gate: %w", err)
	}
	return &gate, nil
}

func (t *interviewTx) LockApplication(ctx context.Context, id string) (*models.Application, error) {
	var app models.Application
	if err := t.tx.GetContext(ctx, &app, applicationSelect+` WHERE a.id = $1 FOR UPDATE OF a`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("lock application: %w", err)
	}
	return &app, nil
}

func (t *interviewTx) ListSlots(ctx context.Context, domain models.InterviewDomain, subjectID string) ([]models.InterviewSlot, error) {
	var slots []models.InterviewSlot
	query := `SELECT ` + slotColumns + ` FROM interview_slots WHERE domain = $1 AND subject_id = $2 ORDER BY scheduled_at`
	if err := t.tx.SelectContext(ctx, &slots, query, domain, subjectID); err != nil {
		return nil, fmt.Errorf("list subject slots: %w", err)
	}
	return slots, nil
}

func (t *interviewTx) InsertSlot(ctx context.Context, slot *models.InterviewSlot) error {
	const query = `INSERT INTO interview_slots (id, domain, subject_id, status, scheduled_at, duration_minutes, source, created_by,
meeting_link, notes, confirmed_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := t.tx.ExecContext(ctx, query,
		slot.ID, slot.Domain, slot.SubjectID, slot.Status, slot.ScheduledAt, slot.DurationMinutes, slot.Source, slot.CreatedBy,
		slot.MeetingLink, slot.Notes, slot.ConfirmedAt, slot.CreatedAt, slot.UpdatedAt,
	)
	if err != nil {
		if isConfirmedSlotConflict(err) {
			return ErrConfirmedSlotExists
		}
		return fmt.Errorf("insert interview slot: %w", err)
	}
	return nil
}

// TransitionSlot returns sql.ErrNoRows when the slot is no longer in a From status.
func (t *interviewTx) TransitionSlot(ctx context.Context, params SlotTransition) (*models.InterviewSlot, error) {
	from := make([]string, len(params.From))
	for i, s := range params.From {
		from[i] = string(s)
	}
	query := `UPDATE interview_slots SET
status = $1,
confirmed_at = CASE WHEN $1 = 'CONFIRMED' THEN $2 ELSE confirmed_at END,
completed_at = CASE WHEN $1 = 'COMPLETED' THEN $2 ELSE completed_at END,
cancelled_at = CASE WHEN $1 = 'CANCELLED' THEN $2 ELSE cancelled_at END,
updated_at = $2
WHERE id = $3 AND domain = $4 AND subject_id = $5 AND status = ANY($6)
RETURNING ` + slotColumns

	var slot models.InterviewSlot
	err := t.tx.GetContext(ctx, &slot, query, string(params.To), params.At, params.ID, params.Domain, params.SubjectID, pq.Array(from))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		if isConfirmedSlotConflict(err) {
			return nil, ErrConfirmedSlotExists
		}
		return nil, fmt.Errorf("transition interview slot: %w", err)
	}
	return &slot, nil
}

func (t *interviewTx) ListRequests(ctx context.Context, gateID string) ([]models.AvailabilityRequest, error) {
	var requests []models.AvailabilityRequest
	query := `SELECT ` + requestColumns + ` FROM availability_requests WHERE gate_id = $1 ORDER BY created_at`
	if err := t.tx.SelectContext(ctx, &requests, query, gateID); err != nil {
		return nil, fmt.Errorf("list gate availability requests: %w", err)
	}
	return requests, nil
}

func (t *interviewTx) InsertRequest(ctx context.Context, req *models.AvailabilityRequest) error {
	const query = `INSERT INTO availability_requests (id, gate_id, instructor_id, status, preferred_slots, note, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := t.tx.ExecContext(ctx, query,
		req.ID, req.GateID, req.InstructorID, req.Status, req.PreferredSlots, req.Note, req.CreatedAt, req.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert availability request: %w", err)
	}
	return nil
}

// ReviewRequest moves a PENDING request to review.Status and returns sql.ErrNoRows when it is not pending.
func (t *interviewTx) ReviewRequest(ctx context.Context, id string, review models.RequestReview) (*models.AvailabilityRequest, error) {
	query := `UPDATE availability_requests
SET status = $1, reviewed_by = $2, reviewed_at = $3, review_notes = $4, updated_at = $3
WHERE id = $5 AND status = 'PENDING'
RETURNING ` + requestColumns

	var req models.AvailabilityRequest
	if err := t.tx.GetContext(ctx, &req, query, review.Status, review.ReviewedBy, review.ReviewedAt, review.Notes, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("review availability request: %w", err)
	}
	return &req, nil
}

// DeclinePendingRequests applies review to every other PENDING request of the gate and returns their ids.
func (t *interviewTx) DeclinePendingRequests(ctx context.Context, gateID, exceptID string, review models.RequestReview) ([]string, error) {
	const query = `UPDATE availability_requests
SET status = $1, reviewed_by = $2, reviewed_at = $3, review_notes = $4, updated_at = $3
WHERE gate_id = $5 AND status = 'PENDING' AND ($6 = '' OR id::text <> $6)
RETURNING id`

	var ids []string
	if err := t.tx.SelectContext(ctx, &ids, query, review.Status, review.ReviewedBy, review.ReviewedAt, review.Notes, gateID, exceptID); err != nil {
		return nil, fmt.Errorf("decline pending availability requests: %w", err)
	}
	return ids, nil
}

// TouchSubject bumps the subject row's updated_at so queue order and cached tasks follow interview activity.
func (t *interviewTx) TouchSubject(ctx context.Context, domain models.InterviewDomain, id string, at time.Time) error {
	table := "instructor_interview_gates"
	if domain == models.DomainHiring {
		table = "applications"
	}
	if _, err := t.tx.ExecContext(ctx, `UPDATE `+table+` SET updated_at = GREATEST(updated_at, $1) WHERE id = $2`, at, id); err != nil {
		return fmt.Errorf("touch %s: %w", table, err)
	}
	return nil
}

func (t *interviewTx) UpdateGateProgress(ctx context.Context, params GateProgress) error {
	const query = `UPDATE instructor_interview_gates
SET status = $1, scheduled_at = COALESCE($2, scheduled_at), completed_at = COALESCE($3, completed_at), updated_at = $4
WHERE id = $5`
	if _, err := t.tx.ExecContext(ctx, query, params.Status, params.ScheduledAt, params.CompletedAt, params.At, params.GateID); err != nil {
		return fmt.Errorf("update gate progress: %w", err)
	}
	return nil
}

func (t *interviewTx) UpdateGateDecision(ctx context.Context, gateID string, decision models.GateDecision) error {
	const query = `UPDATE instructor_interview_gates
SET status = $1, outcome = $2, reviewed_by = $3, reviewed_at = $4, review_notes = $5, completed_at = $4, updated_at = $4
WHERE id = $6`
	if _, err := t.tx.ExecContext(ctx, query,
		decision.Status, decision.Outcome, decision.ReviewedBy, decision.ReviewedAt, decision.ReviewNotes, gateID,
	); err != nil {
		return fmt.Errorf("update gate decision: %w", err)
	}
	return nil
}

func (t *interviewTx) ListNotes(ctx context.Context, applicationID string) ([]models.DecisionNote, error) {
	var notes []models.DecisionNote
	query := `SELECT ` + noteColumns + ` FROM application_notes WHERE application_id = $1 ORDER BY created_at`
	if err := t.tx.SelectContext(ctx, &notes, query, applicationID); err != nil {
		return nil, fmt.Errorf("list application notes: %w", err)
	}
	return notes, nil
}

func (t *interviewTx) InsertNote(ctx context.Context, note *models.DecisionNote) error {
	const query = `INSERT INTO application_notes (id, application_id, author_id, kind, body, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := t.tx.ExecContext(ctx, query, note.ID, note.ApplicationID, note.AuthorID, note.Kind, note.Body, note.CreatedAt); err != nil {
		return fmt.Errorf("insert application note: %w", err)
	}
	return nil
}

func (t *interviewTx) InsertEvents(ctx context.Context, events []models.InterviewEvent) error {
	const query = `INSERT INTO interview_events (id, kind, domain, subject_id, recipient_id, chapter_id, actor_id, notification_kind,
title, body, link, payload, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	for _, event := range events {
		payload := event.Payload
		if len(payload) == 0 {
			payload = []byte(`{}`)
		}
		if _, err := t.tx.ExecContext(ctx, query,
			event.ID, event.Kind, event.Domain, event.SubjectID, event.RecipientID, event.ChapterID, event.ActorID, nullableKind(event.NotificationKind),
			event.Title, event.Body, event.Link, payload, event.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert interview event: %w", err)
		}
	}
	return nil
}

func nullableKind(kind models.NotificationKind) *string {
	if kind == "" {
		return nil
	}
	s := string(kind)
	return &s
}
