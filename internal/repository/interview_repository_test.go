package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edu-portal-api/internal/models"
)

var gateRowColumns = []string{"id", "instructor_id", "instructor_name", "chapter_id", "status", "scheduled_at", "outcome",
	"reviewed_by", "reviewed_at", "review_notes", "completed_at", "created_at", "updated_at"}

var slotRowColumns = []string{"id", "domain", "subject_id", "status", "scheduled_at", "duration_minutes", "source", "created_by",
	"meeting_link", "notes", "confirmed_at", "completed_at", "cancelled_at", "created_at", "updated_at"}

func TestGetGate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInterviewRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM instructor_interview_gates g JOIN users u ON u.id = g.instructor_id WHERE g.id = $1")).
		WithArgs("gate-1").
		WillReturnRows(sqlmock.NewRows(gateRowColumns).
			AddRow("gate-1", "inst-1", "Ada", "chapter-x", "HOLD", nil, "HOLD", "lead-1", now, "retry later", now, now, now))

	gate, err := repo.GetGate(context.Background(), "gate-1")
	require.NoError(t, err)
	assert.Equal(t, models.GateStatusHold, gate.Status)
	require.NotNil(t, gate.Outcome)
	assert.Equal(t, models.OutcomeHold, *gate.Outcome)
	assert.Equal(t, "Ada", gate.InstructorName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListGatesAppliesFilter(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInterviewRepository(db)

	mock.ExpectQuery(`WHERE g\.chapter_id = \$1 AND g\.status = ANY\(\$2\) ORDER BY g\.updated_at, g\.id LIMIT \$3`).
		WithArgs("chapter-x", sqlmock.AnyArg(), 20).
		WillReturnRows(sqlmock.NewRows(gateRowColumns))

	gates, err := repo.ListGates(context.Background(), models.GateFilter{
		ChapterID: "chapter-x",
		Statuses:  []models.GateStatus{models.GateStatusRequired, models.GateStatusScheduled},
		Limit:     20,
	})
	require.NoError(t, err)
	assert.Empty(t, gates)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListSlotsBySubjectsSkipsEmpty(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInterviewRepository(db)

	slots, err := repo.ListSlotsBySubjects(context.Background(), models.DomainHiring, nil)
	require.NoError(t, err)
	assert.Nil(t, slots)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTxCommitsOnSuccess(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInterviewRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(`WHERE g\.id = \$1 FOR UPDATE OF g`).
		WithArgs("gate-1").
		WillReturnRows(sqlmock.NewRows(gateRowColumns).
			AddRow("gate-1", "inst-1", "Ada", "chapter-x", "REQUIRED", nil, nil, nil, nil, nil, nil, now, now))
	mock.ExpectExec("INSERT INTO interview_slots").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO interview_events").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.InTx(context.Background(), func(tx InterviewTx) error {
		gate, err := tx.LockGate(context.Background(), "gate-1")
		if err != nil {
			return err
		}
		if err := tx.InsertSlot(context.Background(), &models.InterviewSlot{
			ID: "slot-1", Domain: models.DomainReadiness, SubjectID: gate.ID, Status: models.SlotStatusPosted,
			ScheduledAt: now, DurationMinutes: 30, Source: models.SlotSourceReviewerPosted, CreatedBy: "lead-1",
			CreatedAt: now, UpdatedAt: now,
		}); err != nil {
			return err
		}
		return tx.InsertEvents(context.Background(), []models.InterviewEvent{{
			ID: "evt-1", Kind: models.EventKindNotification, Domain: models.DomainReadiness, SubjectID: gate.ID,
			NotificationKind: models.NotifySlotPosted, Title: "Interview slot posted", CreatedAt: now,
		}})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTxRollsBackOnError(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInterviewRepository(db)

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := repo.InTx(context.Background(), func(tx InterviewTx) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTouchSubjectTargetsDomainTable(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInterviewRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE applications SET updated_at = GREATEST\(updated_at, \$1\) WHERE id = \$2`).
		WithArgs(now, "app-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE instructor_interview_gates SET updated_at`).
		WithArgs(now, "gate-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.InTx(context.Background(), func(tx InterviewTx) error {
		if err := tx.TouchSubject(context.Background(), models.DomainHiring, "app-1", now); err != nil {
			return err
		}
		return tx.TouchSubject(context.Background(), models.DomainReadiness, "gate-1", now)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertSlotMapsConfirmedConflict(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInterviewRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO interview_slots").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "interview_slots_one_confirmed"})
	mock.ExpectRollback()

	err := repo.InTx(context.Background(), func(tx InterviewTx) error {
		return tx.InsertSlot(context.Background(), &models.InterviewSlot{ID: "slot-2", Status: models.SlotStatusConfirmed})
	})
	assert.ErrorIs(t, err, ErrConfirmedSlotExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionSlotStaleStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInterviewRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE interview_slots SET").
		WithArgs("CONFIRMED", now, "slot-1", models.DomainHiring, "app-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(slotRowColumns))
	mock.ExpectRollback()

	err := repo.InTx(context.Background(), func(tx InterviewTx) error {
		_, err := tx.TransitionSlot(context.Background(), SlotTransition{
			ID: "slot-1", Domain: models.DomainHiring, SubjectID: "app-1",
			From: []models.SlotStatus{models.SlotStatusPosted}, To: models.SlotStatusConfirmed, At: now,
		})
		return err
	})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeclinePendingRequestsReturnsIDs(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInterviewRepository(db)

	now := time.Now()
	note := models.NoteSiblingAccepted
	reviewer := "lead-1"
	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE availability_requests SET status = \$1`).
		WithArgs(models.RequestStatusDeclined, &reviewer, now, &note, "gate-1", "req-2").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("req-1").AddRow("req-3"))
	mock.ExpectCommit()

	var declined []string
	err := repo.InTx(context.Background(), func(tx InterviewTx) error {
		var err error
		declined, err = tx.DeclinePendingRequests(context.Background(), "gate-1", "req-2", models.RequestReview{
			Status: models.RequestStatusDeclined, ReviewedBy: &reviewer, ReviewedAt: now, Notes: &note,
		})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"req-1", "req-3"}, declined)
	assert.NoError(t, mock.ExpectationsWereMet())
}
