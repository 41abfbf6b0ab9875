package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/edu-portal-api/internal/models"
)

const (
	gateSelect = `SELECT g.id, g.instructor_id, u.full_name AS instructor_name, g.chapter_id, g.status, g.scheduled_at,
g.outcome, g.reviewed_by, g.reviewed_at, g.review_notes, g.completed_at, g.created_at, g.updated_at
FROM instructor_interview_gates g
JOIN users u ON u.id = g.instructor_id`

	applicationSelect = `SELECT a.id, a.position_id, p.title AS position_title, a.applicant_id, u.full_name AS applicant_name,
a.chapter_id, a.interview_required, a.decision_accepted, a.decided_at, a.created_at, a.updated_at
FROM applications a
JOIN positions p ON p.id = a.position_id
JOIN users u ON u.id = a.applicant_id`

	slotColumns = `id, domain, subject_id, status, scheduled_at, duration_minutes, source, created_by, meeting_link, notes,
confirmed_at, completed_at, cancelled_at, created_at, updated_at`

	requestColumns = `id, gate_id, instructor_id, status, preferred_slots, note, reviewed_by, reviewed_at, review_notes,
created_at, updated_at`

	noteColumns = `id, application_id, author_id, kind, body, created_at`

	// confirmedSlotIndex is the partial unique index allowing one CONFIRMED slot per subject.
	confirmedSlotIndex = "interview_slots_one_confirmed"
)

// ErrConfirmedSlotExists reports a violation of the one-confirmed-slot index.
var ErrConfirmedSlotExists = errors.New("subject already has a confirmed slot")

// InterviewRepository reads interview subjects and runs subject-scoped transactions.
type InterviewRepository struct {
	db *sqlx.DB
}

// NewInterviewRepository creates a new instance of InterviewRepository.
func NewInterviewRepository(db *sqlx.DB) *InterviewRepository {
	return &InterviewRepository{db: db}
}

// GetGate returns a readiness gate by id.
func (r *InterviewRepository) GetGate(ctx context.Context, id string) (*models.InstructorInterviewGate, error) {
	var gate models.InstructorInterviewGate
	if err := r.db.GetContext(ctx, &gate, gateSelect+` WHERE g.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get interview gate: %w", err)
	}
	return &gate, nil
}

// GetApplication returns an application by id.
func (r *InterviewRepository) GetApplication(ctx context.Context, id string) (*models.Application, error) {
	var app models.Application
	if err := r.db.GetContext(ctx, &app, applicationSelect+` WHERE a.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get application: %w", err)
	}
	return &app, nil
}

// ListGates returns gates matching the filter, least recently updated first so a limit keeps the longest waiting.
func (r *InterviewRepository) ListGates(ctx context.Context, filter models.GateFilter) ([]models.InstructorInterviewGate, error) {
	var conditions []string
	var args []interface{}
	if filter.ChapterID != "" {
		args = append(args, filter.ChapterID)
		conditions = append(conditions, fmt.Sprintf("g.chapter_id = $%d", len(args)))
	}
	if filter.InstructorID != "" {
		args = append(args, filter.InstructorID)
		conditions = append(conditions, fmt.Sprintf("g.instructor_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, pq.Array(statuses))
		conditions = append(conditions, fmt.Sprintf("g.status = ANY($%d)", len(args)))
	}

	query := gateSelect + where(conditions) + ` ORDER BY g.updated_at, g.id`
	query, args = withLimit(query, args, filter.Limit)

	var gates []models.InstructorInterviewGate
	if err := r.db.SelectContext(ctx, &gates, query, args...); err != nil {
		return nil, fmt.Errorf("list interview gates: %w", err)
	}
	return gates, nil
}

// ListApplications returns applications matching the filter, least recently updated first.
func (r *InterviewRepository) ListApplications(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, error) {
	var conditions []string
	var args []interface{}
	if filter.ChapterID != "" {
		args = append(args, filter.ChapterID)
		conditions = append(conditions, fmt.Sprintf("a.chapter_id = $%d", len(args)))
	}
	if filter.ApplicantID != "" {
		args = append(args, filter.ApplicantID)
		conditions = append(conditions, fmt.Sprintf("a.applicant_id = $%d", len(args)))
	}
	if filter.Undecided {
		conditions = append(conditions, "a.decision_accepted IS NULL")
	}

	query := applicationSelect + where(conditions) + ` ORDER BY a.updated_at, a.id`
	query, args = withLimit(query, args, filter.Limit)

	var apps []models.Application
	if err := r.db.SelectContext(ctx, &apps, query, args...); err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	return apps, nil
}

// ListSlotsBySubjects returns every slot of the given subjects.
func (r *InterviewRepository) ListSlotsBySubjects(ctx context.Context, domain models.InterviewDomain, subjectIDs []string) ([]models.InterviewSlot, error) {
	if len(subjectIDs) == 0 {
		return nil, nil
	}
	query := `SELECT ` + slotColumns + ` FROM interview_slots WHERE domain = $1 AND subject_id = ANY($2::uuid[]) ORDER BY scheduled_at`
	var slots []models.InterviewSlot
	if err := r.db.SelectContext(ctx, &slots, query, domain, pq.Array(subjectIDs)); err != nil {
		return nil, fmt.Errorf("list interview slots: %w", err)
	}
	return slots, nil
}

// ListRequestsByGates returns every availability request of the given gates.
func (r *InterviewRepository) ListRequestsByGates(ctx context.Context, gateIDs []string) ([]models.AvailabilityRequest, error) {
	if len(gateIDs) == 0 {
		return nil, nil
	}
	query := `SELECT ` + requestColumns + ` FROM availability_requests WHERE gate_id = ANY($1::uuid[]) ORDER BY created_at`
	var requests []models.AvailabilityRequest
	if err := r.db.SelectContext(ctx, &requests, query, pq.Array(gateIDs)); err != nil {
		return nil, fmt.Errorf("list availability requests: %w", err)
	}
	return requests, nil
}

// ListNotesByApplications returns every decision note of the given applications.
func (r *InterviewRepository) ListNotesByApplications(ctx context.Context, applicationIDs []string) ([]models.DecisionNote, error) {
	if len(applicationIDs) == 0 {
		return nil, nil
	}
	query := `SELECT ` + noteColumns + ` FROM application_notes WHERE application_id = ANY($1::uuid[]) ORDER BY created_at`
	var notes []models.DecisionNote
	if err := r.db.SelectContext(ctx, &notes, query, pq.Array(applicationIDs)); err != nil {
		return nil, fmt.Errorf("list application notes: %w", err)
	}
	return notes, nil
}

// InTx runs fn inside one transaction. The transaction commits only when fn returns nil.
func (r *InterviewRepository) InTx(ctx context.Context, fn func(InterviewTx) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin interview transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&interviewTx{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit interview transaction: %w", err)
	}
	return nil
}

func where(conditions []string) string {
	if len(conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conditions, " AND ")
}

func withLimit(query string, args []interface{}, limit int) (string, []interface{}) {
	if limit <= 0 {
		return query, args
	}
	args = append(args, limit)
	return query + fmt.Sprintf(" LIMIT $%d", len(args)), args
}

func isConfirmedSlotConflict(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "23505" && pqErr.Constraint == confirmedSlotIndex
}
