package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/edu-portal-api/internal/models"
)

const eventColumns = `id, kind, domain, subject_id, recipient_id, chapter_id, actor_id, COALESCE(notification_kind, '') AS notification_kind,
title, body, link, payload, attempts, last_error, dispatched_at, created_at`

// EventRepository persists outbox deliveries: notifications and audit records.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository creates a new instance of EventRepository.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// GetEvent fetches an outbox event by id.
func (r *EventRepository) GetEvent(ctx context.Context, id string) (*models.InterviewEvent, error) {
	var event models.InterviewEvent
	if err := r.db.GetContext(ctx, &event, `SELECT `+eventColumns+` FROM interview_events WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get interview event: %w", err)
	}
	return &event, nil
}

// ListPending returns undispatched events, oldest first.
func (r *EventRepository) ListPending(ctx context.Context, limit int) ([]models.InterviewEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + eventColumns + ` FROM interview_events WHERE dispatched_at IS NULL ORDER BY created_at LIMIT $1`
	var events []models.InterviewEvent
	if err := r.db.SelectContext(ctx, &events, query, limit); err != nil {
		return nil, fmt.Errorf("list pending interview events: %w", err)
	}
	return events, nil
}

// MarkDispatched stamps the event as delivered.
func (r *EventRepository) MarkDispatched(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE interview_events SET dispatched_at = $2, attempts = attempts + 1, last_error = NULL WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("mark interview event dispatched: %w", err)
	}
	return nil
}

// RecordFailure keeps the last delivery error for operators.
func (r *EventRepository) RecordFailure(ctx context.Context, id string, cause string) error {
	const query = `UPDATE interview_events SET attempts = attempts + 1, last_error = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, cause); err != nil {
		return fmt.Errorf("record interview event failure: %w", err)
	}
	return nil
}

// InsertNotification stores an in-app notification. Redelivery of the same event is ignored.
func (r *EventRepository) InsertNotification(ctx context.Context, n *models.Notification) error {
	const query = `INSERT INTO notifications (id, event_id, user_id, kind, title, body, link, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (event_id, user_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, n.ID, n.EventID, n.UserID, n.Kind, n.Title, n.Body, n.Link, n.CreatedAt); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// InsertAudit stores an audit record. Redelivery of the same event is ignored.
func (r *EventRepository) InsertAudit(ctx context.Context, log *models.AuditLog) error {
	const query = `INSERT INTO audit_logs (id, event_id, user_id, action, resource, resource_id, new_values, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (event_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query,
		log.ID, log.EventID, log.UserID, log.Action, log.Resource, log.ResourceID, log.NewValues, log.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// ChapterReviewerIDs returns active admins and the chapter's leads.
func (r *EventRepository) ChapterReviewerIDs(ctx context.Context, chapterID string) ([]string, error) {
	const query = `SELECT id FROM users
WHERE active AND ('ADMIN' = ANY(roles) OR ('CHAPTER_LEAD' = ANY(roles) AND chapter_id = $1))
ORDER BY id`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, chapterID); err != nil {
		return nil, fmt.Errorf("list chapter reviewers: %w", err)
	}
	return ids, nil
}

// ListNotifications returns the newest notifications of a user.
func (r *EventRepository) ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `SELECT id, event_id, user_id, kind, title, body, link, read_at, created_at
FROM notifications WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`
	var items []models.Notification
	if err := r.db.SelectContext(ctx, &items, query, userID, limit); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return items, nil
}
