package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/edu-portal-api/internal/models"
	"github.com/noah-isme/edu-portal-api/pkg/jobs"
)

type eventStore interface {
	GetEvent(ctx context.Context, id string) (*models.InterviewEvent, error)
	ListPending(ctx context.Context, limit int) ([]models.InterviewEvent, error)
	MarkDispatched(ctx context.Context, id string, at time.Time) error
	RecordFailure(ctx context.Context, id string, cause string) error
	InsertNotification(ctx context.Context, n *models.Notification) error
	InsertAudit(ctx context.Context, log *models.AuditLog) error
	ChapterReviewerIDs(ctx context.Context, chapterID string) ([]string, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// QueuePublisher hands committed events to the background queue. A job that cannot be
// queued stays undispatched in the outbox until the next recovery pass.
type QueuePublisher struct {
	queue  jobEnqueuer
	logger *zap.Logger
}

// NewQueuePublisher constructs a publisher.
func NewQueuePublisher(queue jobEnqueuer, logger *zap.Logger) *QueuePublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueuePublisher{queue: queue, logger: logger}
}

// Publish enqueues one job per event.
func (p *QueuePublisher) Publish(ctx context.Context, events []models.InterviewEvent) {
	for _, event := range events {
		if err := p.queue.Enqueue(jobs.Job{ID: event.ID, Type: string(event.Kind)}); err != nil {
			p.logger.Warn("failed to enqueue interview event",
				zap.String("event_id", event.ID),
				zap.String("kind", string(event.Kind)),
				zap.Error(err),
			)
		}
	}
}

// DispatchReport summarises a synchronous outbox pass.
type DispatchReport struct {
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

// EventDispatcher delivers outbox events as notifications or audit records.
type EventDispatcher struct {
	store   eventStore
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewEventDispatcher constructs a dispatcher.
func NewEventDispatcher(store eventStore, metrics *MetricsService, logger *zap.Logger) *EventDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventDispatcher{store: store, metrics: metrics, logger: logger, now: time.Now}
}

// Handle processes a queue job carrying an event id.
func (d *EventDispatcher) Handle(ctx context.Context, job jobs.Job) error {
	event, err := d.store.GetEvent(ctx, job.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			d.logger.Warn("interview event vanished before dispatch", zap.String("event_id", job.ID))
			return nil
		}
		return err
	}
	return d.Dispatch(ctx, event)
}

// Dispatch delivers one event. Already dispatched events are skipped.
func (d *EventDispatcher) Dispatch(ctx context.Context, event *models.InterviewEvent) error {
	if event.DispatchedAt != nil {
		return nil
	}

	var err error
	switch event.Kind {
	case models.EventKindNotification:
		err = d.deliverNotification(ctx, event)
	case models.EventKindAudit:
		err = d.recordAudit(ctx, event)
	default:
		err = fmt.Errorf("unknown event kind %q", event.Kind)
	}
	d.metrics.RecordEventDispatch(string(event.Kind), err)
	if err != nil {
		if recordErr := d.store.RecordFailure(ctx, event.ID, err.Error()); recordErr != nil {
			d.logger.Warn("failed to record event failure", zap.String("event_id", event.ID), zap.Error(recordErr))
		}
		return err
	}

	return d.store.MarkDispatched(ctx, event.ID, d.now().UTC())
}

// GiveUp is the queue hook for events that exhausted their retries.
func (d *EventDispatcher) GiveUp(job jobs.Job, err error) {
	d.logger.Error("interview event left undelivered",
		zap.String("event_id", job.ID),
		zap.String("kind", job.Type),
		zap.Int("attempts", job.Attempt),
		zap.Error(err),
	)
}

// DispatchPending delivers undispatched events inline, oldest first.
func (d *EventDispatcher) DispatchPending(ctx context.Context, limit int) (DispatchReport, error) {
	var report DispatchReport
	events, err := d.store.ListPending(ctx, limit)
	if err != nil {
		return report, err
	}
	for i := range events {
		if err := d.Dispatch(ctx, &events[i]); err != nil {
			report.Failed++
			d.logger.Warn("failed to dispatch interview event", zap.String("event_id", events[i].ID), zap.Error(err))
			continue
		}
		report.Delivered++
	}
	return report, nil
}

// RecoverPending republishes undispatched events, e.g. after a restart.
func (d *EventDispatcher) RecoverPending(ctx context.Context, publisher EventPublisher, limit int) int {
	events, err := d.store.ListPending(ctx, limit)
	if err != nil {
		d.logger.Warn("failed to recover pending interview events", zap.Error(err))
		return 0
	}
	publisher.Publish(ctx, events)
	return len(events)
}

func (d *EventDispatcher) deliverNotification(ctx context.Context, event *models.InterviewEvent) error {
	var recipients []string
	switch {
	case event.RecipientID != nil:
		recipients = []string{*event.RecipientID}
	case event.ChapterID != nil:
		ids, err := d.store.ChapterReviewerIDs(ctx, *event.ChapterID)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if event.ActorID != nil && id == *event.ActorID {
				continue
			}
			recipients = append(recipients, id)
		}
	}
	if len(recipients) == 0 {
		d.logger.Info("interview event has no recipients", zap.String("event_id", event.ID))
		return nil
	}

	for _, userID := range recipients {
		eventID := event.ID
		if err := d.store.InsertNotification(ctx, &models.Notification{
			ID:        uuid.NewString(),
			EventID:   &eventID,
			UserID:    userID,
			Kind:      string(event.NotificationKind),
			Title:     event.Title,
			Body:      event.Body,
			Link:      event.Link,
			CreatedAt: d.now().UTC(),
		}); err != nil {
			return err
		}
	}
	return nil
}

func (d *EventDispatcher) recordAudit(ctx context.Context, event *models.InterviewEvent) error {
	var payload auditPayload
	if len(event.Payload) > 0 {
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return fmt.Errorf("decode audit payload: %w", err)
		}
	}

	eventID := event.ID
	subjectID := event.SubjectID
	log := &models.AuditLog{
		ID:         uuid.NewString(),
		EventID:    &eventID,
		Action:     payload.Action,
		Resource:   auditResource(event.Domain),
		ResourceID: &subjectID,
		NewValues:  event.Payload,
		CreatedAt:  event.CreatedAt,
	}
	if payload.ReviewerID != "" {
		reviewer := payload.ReviewerID
		log.UserID = &reviewer
	}
	return d.store.InsertAudit(ctx, log)
}

func auditResource(domain models.InterviewDomain) string {
	if domain == models.DomainHiring {
		return "application"
	}
	return "instructor_interview_gate"
}
