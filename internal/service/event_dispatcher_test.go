package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/edu-portal-api/internal/models"
	"github.com/noah-isme/edu-portal-api/pkg/jobs"
)

type fakeEventStore struct {
	events        map[string]models.InterviewEvent
	reviewers     map[string][]string
	notifications []models.Notification
	audits        []models.AuditLog
	dispatched    []string
	failures      map[string]string
	notifyErr     error
}

func newFakeEventStore(events ...models.InterviewEvent) *fakeEventStore {
	store := &fakeEventStore{
		events:    make(map[string]models.InterviewEvent),
		reviewers: map[string][]string{chapterA: {admin.ID, leadA.ID}},
		failures:  make(map[string]string),
	}
	for _, e := range events {
		store.events[e.ID] = e
	}
	return store
}

func (f *fakeEventStore) GetEvent(ctx context.Context, id string) (*models.InterviewEvent, error) {
	e, ok := f.events[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &e, nil
}

func (f *fakeEventStore) ListPending(ctx context.Context, limit int) ([]models.InterviewEvent, error) {
	var out []models.InterviewEvent
	for _, id := range []string{"evt-1", "evt-2", "evt-3"} {
		if e, ok := f.events[id]; ok && e.DispatchedAt == nil {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEventStore) MarkDispatched(ctx context.Context, id string, at time.Time) error {
	e := f.events[id]
	e.DispatchedAt = &at
	f.events[id] = e
	f.dispatched = append(f.dispatched, id)
	return nil
}

func (f *fakeEventStore) RecordFailure(ctx context.Context, id string, cause string) error {
	f.failures[id] = cause
	return nil
}

func (f *fakeEventStore) InsertNotification(ctx context.Context, n *models.Notification) error {
	if f.notifyErr != nil {
		return f.notifyErr
	}
	f.notifications = append(f.notifications, *n)
	return nil
}

func (f *fakeEventStore) InsertAudit(ctx context.Context, log *models.AuditLog) error {
	f.audits = append(f.audits, *log)
	return nil
}

func (f *fakeEventStore) ChapterReviewerIDs(ctx context.Context, chapterID string) ([]string, error) {
	return f.reviewers[chapterID], nil
}

type fakeQueue struct {
	jobs []jobs.Job
	err  error
}

func (q *fakeQueue) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func notificationTo(id, recipient string) models.InterviewEvent {
	return models.InterviewEvent{
		ID:               id,
		Kind:             models.EventKindNotification,
		Domain:           models.DomainReadiness,
		SubjectID:        gateID,
		RecipientID:      &recipient,
		NotificationKind: models.NotifySlotPosted,
		Title:            "Interview slot posted",
		Body:             "Confirm it from your tasks.",
		Link:             "/instructors/gates/" + gateID,
		CreatedAt:        fixedNow,
	}
}

func TestDispatchDeliversDirectNotification(t *testing.T) {
	store := newFakeEventStore(notificationTo("evt-1", instructorID))
	metrics := NewMetricsService()
	d := NewEventDispatcher(store, metrics, zap.NewNop())

	require.NoError(t, d.Handle(context.Background(), jobs.Job{ID: "evt-1"}))

	require.Len(t, store.notifications, 1)
	n := store.notifications[0]
	assert.Equal(t, instructorID, n.UserID)
	assert.Equal(t, string(models.NotifySlotPosted), n.Kind)
	require.NotNil(t, n.EventID)
	assert.Equal(t, "evt-1", *n.EventID)
	assert.Equal(t, []string{"evt-1"}, store.dispatched)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.eventsDispatched.WithLabelValues("NOTIFICATION", "delivered")))

	// Redelivery of a dispatched event is a no-op.
	require.NoError(t, d.Handle(context.Background(), jobs.Job{ID: "evt-1"}))
	assert.Len(t, store.notifications, 1)
}

func TestDispatchFansOutToChapterReviewers(t *testing.T) {
	chapter := chapterA
	event := notificationTo("evt-1", "")
	event.RecipientID = nil
	event.ChapterID = &chapter
	store := newFakeEventStore(event)
	d := NewEventDispatcher(store, nil, nil)

	require.NoError(t, d.Dispatch(context.Background(), &event))

	require.Len(t, store.notifications, 2)
	assert.Equal(t, admin.ID, store.notifications[0].UserID)
	assert.Equal(t, leadA.ID, store.notifications[1].UserID)
}

func TestDispatchFanOutSkipsActor(t *testing.T) {
	chapter := chapterA
	actor := leadA.ID
	event := notificationTo("evt-1", "")
	event.RecipientID = nil
	event.ChapterID = &chapter
	event.ActorID = &actor
	store := newFakeEventStore(event)
	d := NewEventDispatcher(store, nil, nil)

	require.NoError(t, d.Dispatch(context.Background(), &event))

	require.Len(t, store.notifications, 1)
	assert.Equal(t, admin.ID, store.notifications[0].UserID)
}

func TestQueueDepthGauge(t *testing.T) {
	metrics := NewMetricsService()
	metrics.TrackQueueDepth("interview-events", func() int { return 4 })

	expected := `
# HELP worker_queue_pending Jobs buffered in a worker queue
# TYPE worker_queue_pending gauge
worker_queue_pending{queue="interview-events"} 4
`
	assert.NoError(t, testutil.GatherAndCompare(metrics.Registry(), strings.NewReader(expected), "worker_queue_pending"))

	var disabled *MetricsService
	disabled.TrackQueueDepth("interview-events", func() int { return 1 })
}

func TestDispatchRecordsAudit(t *testing.T) {
	event := models.InterviewEvent{
		ID:        "evt-1",
		Kind:      models.EventKindAudit,
		Domain:    models.DomainReadiness,
		SubjectID: gateID,
		Payload:   types.JSONText(`{"action":"INTERVIEW_GATE_WAIVED","subject_id":"gate-1","owner_id":"inst-1","reviewer_id":"admin-1"}`),
		CreatedAt: fixedNow,
	}
	store := newFakeEventStore(event)
	d := NewEventDispatcher(store, nil, zap.NewNop())

	require.NoError(t, d.Dispatch(context.Background(), &event))

	require.Len(t, store.audits, 1)
	log := store.audits[0]
	assert.Equal(t, models.AuditActionInterviewGateWaived, log.Action)
	assert.Equal(t, "instructor_interview_gate", log.Resource)
	require.NotNil(t, log.UserID)
	assert.Equal(t, admin.ID, *log.UserID)
	require.NotNil(t, log.ResourceID)
	assert.Equal(t, gateID, *log.ResourceID)
}

func TestDispatchFailureIsRecorded(t *testing.T) {
	event := notificationTo("evt-1", instructorID)
	store := newFakeEventStore(event)
	store.notifyErr = errors.New("insert failed")
	metrics := NewMetricsService()
	d := NewEventDispatcher(store, metrics, zap.NewNop())

	err := d.Dispatch(context.Background(), &event)
	require.Error(t, err)
	assert.Equal(t, "insert failed", store.failures["evt-1"])
	assert.Empty(t, store.dispatched)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.eventsDispatched.WithLabelValues("NOTIFICATION", "failed")))
}

func TestHandleSkipsVanishedEvent(t *testing.T) {
	d := NewEventDispatcher(newFakeEventStore(), nil, zap.NewNop())
	assert.NoError(t, d.Handle(context.Background(), jobs.Job{ID: "gone"}))
}

func TestDispatchPendingReportsCounts(t *testing.T) {
	bad := notificationTo("evt-2", instructorID)
	bad.Kind = "CARRIER_PIGEON"
	store := newFakeEventStore(notificationTo("evt-1", instructorID), bad, notificationTo("evt-3", leadA.ID))
	d := NewEventDispatcher(store, nil, zap.NewNop())

	report, err := d.DispatchPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, DispatchReport{Delivered: 2, Failed: 1}, report)
	assert.Contains(t, store.failures["evt-2"], "unknown event kind")
}

func TestRecoverPendingRepublishes(t *testing.T) {
	store := newFakeEventStore(notificationTo("evt-1", instructorID), notificationTo("evt-2", leadA.ID))
	queue := &fakeQueue{}
	d := NewEventDispatcher(store, nil, zap.NewNop())

	n := d.RecoverPending(context.Background(), NewQueuePublisher(queue, zap.NewNop()), 50)
	assert.Equal(t, 2, n)
	require.Len(t, queue.jobs, 2)
	assert.Equal(t, jobs.Job{ID: "evt-1", Type: "NOTIFICATION"}, queue.jobs[0])
}

func TestQueuePublisherSwallowsEnqueueErrors(t *testing.T) {
	queue := &fakeQueue{err: errors.New("queue full")}
	publisher := NewQueuePublisher(queue, zap.NewNop())

	assert.NotPanics(t, func() {
		publisher.Publish(context.Background(), []models.InterviewEvent{notificationTo("evt-1", instructorID)})
	})
	assert.Empty(t, queue.jobs)
}
