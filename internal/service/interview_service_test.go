package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/edu-portal-api/internal/dto"
	"github.com/noah-isme/edu-portal-api/internal/models"
	"github.com/noah-isme/edu-portal-api/internal/workflow"
	"github.com/noah-isme/edu-portal-api/pkg/config"
	appErrors "github.com/noah-isme/edu-portal-api/pkg/errors"
)

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%03d", n)
	}
}

func newInterviewServiceForTest(store *memoryStore, opts ...InterviewServiceOption) (*InterviewService, *recordingPublisher) {
	pub := &recordingPublisher{}
	base := []InterviewServiceOption{
		WithInterviewClock(func() time.Time { return fixedNow }),
		WithInterviewIDs(sequentialIDs()),
	}
	svc := NewInterviewService(store, pub, config.InterviewConfig{}, zap.NewNop(), append(base, opts...)...)
	return svc, pub
}

var (
	gateRef = workflow.SubjectRef{Domain: models.DomainReadiness, ID: gateID}
	appRef  = workflow.SubjectRef{Domain: models.DomainHiring, ID: appID}
)

func slotAt(hours int) dto.SlotInput {
	return dto.SlotInput{ScheduledAt: fixedNow.Add(time.Duration(hours) * time.Hour)}
}

func strPtr(s string) *string { return &s }

func assertKind(t *testing.T, err error, kind *appErrors.Error) {
	t.Helper()
	require.Error(t, err)
	assert.Truef(t, appErrors.Is(err, kind), "expected %s, got %v", kind.Code, err)
}

func TestHiringScenarioPostConfirmCompleteRecommend(t *testing.T) {
	store := seededStore()
	svc, pub := newInterviewServiceForTest(store)
	ctx := context.Background()

	posted, err := svc.PostSlots(ctx, leadA, appRef, dto.PostSlotsRequest{Slots: []dto.SlotInput{slotAt(24), slotAt(48)}})
	require.NoError(t, err)
	require.Len(t, posted, 2)
	assert.Equal(t, models.SlotStatusPosted, posted[0].Status)
	assert.Equal(t, models.SlotSourceReviewerPosted, posted[0].Source)
	assert.Equal(t, 30, posted[0].DurationMinutes)

	confirmed, err := svc.ConfirmSlot(ctx, applicant, appRef, posted[1].ID)
	require.NoError(t, err)
	assert.Equal(t, models.SlotStatusConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.ConfirmedAt)

	_, err = svc.ConfirmSlot(ctx, applicant, appRef, posted[0].ID)
	assertKind(t, err, appErrors.ErrAlreadyScheduled)

	completed, err := svc.CompleteSlot(ctx, leadA, appRef, confirmed.ID, dto.CompleteSlotRequest{Recommendation: strPtr("Strong hire")})
	require.NoError(t, err)
	assert.Equal(t, models.SlotStatusCompleted, completed.Status)

	state := store.snapshot()
	require.Len(t, state.notes, 1)
	assert.Equal(t, models.NoteKindRecommendation, state.notes[0].Kind)
	assert.Equal(t, "Strong hire", state.notes[0].Body)

	note, err := svc.SaveRecommendation(ctx, admin, appID, dto.RecommendationRequest{Body: "Agree"})
	require.NoError(t, err)
	assert.Equal(t, admin.ID, note.AuthorID)

	assert.Equal(t, []models.NotificationKind{
		models.NotifySlotPosted,
		models.NotifySlotConfirmed,
		models.NotifySlotCompleted,
		models.NotifyRecommendation,
	}, pub.kinds())
	assert.Len(t, store.snapshot().events, 4)
}

func TestRecommendationFanOutExcludesAuthor(t *testing.T) {
	svc, pub := newInterviewServiceForTest(seededStore())

	_, err := svc.SaveRecommendation(context.Background(), leadA, appID, dto.RecommendationRequest{Body: "Hire"})
	require.NoError(t, err)

	require.Len(t, pub.events, 1)
	event := pub.events[0]
	assert.Nil(t, event.RecipientID)
	require.NotNil(t, event.ChapterID)
	assert.Equal(t, chapterA, *event.ChapterID)
	require.NotNil(t, event.ActorID)
	assert.Equal(t, leadA.ID, *event.ActorID)
}

func TestPostSlotsRejectsNonReviewerBeforeLookup(t *testing.T) {
	svc, pub := newInterviewServiceForTest(newMemoryStore())

	_, err := svc.PostSlot(context.Background(), applicant, workflow.SubjectRef{Domain: models.DomainHiring, ID: "missing"}, slotAt(1))
	assertKind(t, err, appErrors.ErrUnauthorized)
	assert.Empty(t, pub.kinds())
}

func TestPostSlotsEnforcesChapterScope(t *testing.T) {
	store := seededStore()
	svc, _ := newInterviewServiceForTest(store)

	_, err := svc.PostSlot(context.Background(), leadB, gateRef, slotAt(1))
	assertKind(t, err, appErrors.ErrUnauthorized)
	assert.Empty(t, store.snapshot().slots)
}

func TestPostSlotsLimitsBatchSize(t *testing.T) {
	svc, _ := newInterviewServiceForTest(seededStore())
	slots := []dto.SlotInput{slotAt(1), slotAt(2), slotAt(3), slotAt(4), slotAt(5), slotAt(6)}

	_, err := svc.PostSlots(context.Background(), admin, gateRef, dto.PostSlotsRequest{Slots: slots})
	assertKind(t, err, appErrors.ErrValidation)
}

func TestPostSlotsValidatesPayload(t *testing.T) {
	svc, _ := newInterviewServiceForTest(seededStore())

	_, err := svc.PostSlots(context.Background(), admin, gateRef, dto.PostSlotsRequest{})
	assertKind(t, err, appErrors.ErrValidation)

	_, err = svc.PostSlot(context.Background(), admin, gateRef, dto.SlotInput{ScheduledAt: fixedNow, DurationMinutes: 2})
	assertKind(t, err, appErrors.ErrValidation)
}

func TestMissingScheduledAtIsInvalidTimeWindow(t *testing.T) {
	store := seededStore()
	svc, pub := newInterviewServiceForTest(store)
	ctx := context.Background()

	_, err := svc.PostSlot(ctx, leadA, gateRef, dto.SlotInput{})
	assertKind(t, err, appErrors.ErrInvalidTimeWindow)

	_, err = svc.PostSlots(ctx, leadA, appRef, dto.PostSlotsRequest{Slots: []dto.SlotInput{slotAt(2), {DurationMinutes: 45}}})
	assertKind(t, err, appErrors.ErrInvalidTimeWindow)

	req, err := svc.SubmitAvailability(ctx, instructor, gateID, dto.SubmitAvailabilityRequest{
		PreferredSlots: []dto.PreferredSlotInput{{Start: "2026-03-05T10:00:00Z"}},
	})
	require.NoError(t, err)
	_, err = svc.AcceptAvailability(ctx, leadA, gateID, req.ID, dto.AcceptAvailabilityRequest{})
	assertKind(t, err, appErrors.ErrInvalidTimeWindow)

	assert.Empty(t, store.snapshot().slots)
	assert.Equal(t, []models.NotificationKind{models.NotifyAvailabilitySubmit}, pub.kinds())
}

func TestConfirmSlotUnknownSubjectAndSlot(t *testing.T) {
	store := seededStore()
	svc, _ := newInterviewServiceForTest(store)
	ctx := context.Background()

	_, err := svc.ConfirmSlot(ctx, instructor, workflow.SubjectRef{Domain: models.DomainReadiness, ID: "nope"}, "slot")
	assertKind(t, err, appErrors.ErrNotFound)

	_, err = svc.ConfirmSlot(ctx, instructor, gateRef, "slot")
	assertKind(t, err, appErrors.ErrNotFound)
}

func TestConfirmSlotByOtherUserIsUnauthorized(t *testing.T) {
	store := seededStore()
	svc, _ := newInterviewServiceForTest(store)
	ctx := context.Background()

	slot, err := svc.PostSlot(ctx, admin, gateRef, slotAt(2))
	require.NoError(t, err)

	_, err = svc.ConfirmSlot(ctx, applicant, gateRef, slot.ID)
	assertKind(t, err, appErrors.ErrUnauthorized)

	confirmed, err := svc.ConfirmSlot(ctx, leadA, gateRef, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SlotStatusConfirmed, confirmed.Status)
}

func TestConfirmSlotRejectsCancelledSlot(t *testing.T) {
	store := seededStore()
	svc, _ := newInterviewServiceForTest(store)
	ctx := context.Background()

	slot, err := svc.PostSlot(ctx, admin, gateRef, slotAt(2))
	require.NoError(t, err)
	_, err = svc.CancelSlot(ctx, admin, gateRef, slot.ID)
	require.NoError(t, err)

	_, err = svc.ConfirmSlot(ctx, instructor, gateRef, slot.ID)
	assertKind(t, err, appErrors.ErrInvalidState)
}

func TestConfirmSlotMovesGateToScheduled(t *testing.T) {
	store := seededStore()
	svc, pub := newInterviewServiceForTest(store)
	ctx := context.Background()

	slot, err := svc.PostSlot(ctx, leadA, gateRef, slotAt(3))
	require.NoError(t, err)
	_, err = svc.ConfirmSlot(ctx, instructor, gateRef, slot.ID)
	require.NoError(t, err)

	gate := store.snapshot().gates[gateID]
	assert.Equal(t, models.GateStatusScheduled, gate.Status)
	require.NotNil(t, gate.ScheduledAt)
	assert.True(t, gate.ScheduledAt.Equal(slot.ScheduledAt))

	// The poster hears about the confirmation; the instructor confirmed it themselves.
	pub.mu.Lock()
	last := pub.events[len(pub.events)-1]
	pub.mu.Unlock()
	require.NotNil(t, last.RecipientID)
	assert.Equal(t, leadA.ID, *last.RecipientID)
	assert.Equal(t, "/instructors/gates/"+gateID, last.Link)
}

func TestConcurrentConfirmsLeaveOneConfirmedSlot(t *testing.T) {
	store := seededStore()
	svc, _ := newInterviewServiceForTest(store)
	ctx := context.Background()

	posted, err := svc.PostSlots(ctx, admin, gateRef, dto.PostSlotsRequest{Slots: []dto.SlotInput{slotAt(1), slotAt(2), slotAt(3)}})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, len(posted))
	for i := range posted {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.ConfirmSlot(ctx, instructor, gateRef, posted[i].ID)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assertKind(t, err, appErrors.ErrAlreadyScheduled)
	}
	assert.Equal(t, 1, succeeded)

	confirmed := 0
	for _, slot := range store.snapshot().slots {
		if slot.Status == models.SlotStatusConfirmed {
			confirmed++
		}
	}
	assert.Equal(t, 1, confirmed)
}

func TestCompleteSlotRequiresConfirmedSlot(t *testing.T) {
	store := seededStore()
	svc, _ := newInterviewServiceForTest(store)
	ctx := context.Background()

	slot, err := svc.PostSlot(ctx, admin, gateRef, slotAt(1))
	require.NoError(t, err)

	_, err = svc.CompleteSlot(ctx, admin, gateRef, slot.ID, dto.CompleteSlotRequest{})
	assertKind(t, err, appErrors.ErrInvalidState)

	_, err = svc.CompleteSlot(ctx, admin, gateRef, slot.ID, dto.CompleteSlotRequest{Recommendation: strPtr("x")})
	assertKind(t, err, appErrors.ErrValidation)
}

func TestCompleteSlotMarksGateCompleted(t *testing.T) {
	store := seededStore()
	svc, _ := newInterviewServiceForTest(store)
	ctx := context.Background()

	slot, err := svc.PostSlot(ctx, admin, gateRef, slotAt(1))
	require.NoError(t, err)
	_, err = svc.ConfirmSlot(ctx, instructor, gateRef, slot.ID)
	require.NoError(t, err)
	_, err = svc.CompleteSlot(ctx, admin, gateRef, slot.ID, dto.CompleteSlotRequest{})
	require.NoError(t, err)

	gate := store.snapshot().gates[gateID]
	assert.Equal(t, models.GateStatusCompleted, gate.Status)
	require.NotNil(t, gate.CompletedAt)
}

func TestMutationOnDecidedApplicationIsFinalized(t *testing.T) {
	store := seededStore()
	accepted := true
	app := store.state.apps[appID]
	app.DecisionAccepted = &accepted
	app.DecidedAt = &fixedNow
	store.state.apps[appID] = app
	svc, _ := newInterviewServiceForTest(store)

	_, err := svc.PostSlot(context.Background(), admin, appRef, slotAt(1))
	assertKind(t, err, appErrors.ErrAlreadyFinalized)
}

func TestFinalizedCheckRunsAfterAuthorization(t *testing.T) {
	store := seededStore()
	gate := store.state.gates[gateID]
	gate.Status = models.GateStatusPassed
	store.state.gates[gateID] = gate
	svc, _ := newInterviewServiceForTest(store)

	_, err := svc.PostSlot(context.Background(), leadB, gateRef, slotAt(1))
	assertKind(t, err, appErrors.ErrUnauthorized)
}

func TestReadinessScenarioAvailabilityAccepted(t *testing.T) {
	store := seededStore()
	svc, pub := newInterviewServiceForTest(store)
	ctx := context.Background()

	first, err := svc.SubmitAvailability(ctx, instructor, gateID, dto.SubmitAvailabilityRequest{
		PreferredSlots: []dto.PreferredSlotInput{
			{Start: "2026-03-05T10:00:00Z", End: "2026-03-05T11:00:00Z"},
			{Start: "2026-03-06T14:00"},
		},
		Note: strPtr("mornings preferred"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusPending, first.Status)
	require.Len(t, first.PreferredSlots, 2)
	assert.Nil(t, first.PreferredSlots[1].End)

	second, err := svc.SubmitAvailability(ctx, instructor, gateID, dto.SubmitAvailabilityRequest{
		PreferredSlots: []dto.PreferredSlotInput{{Start: "2026-03-07T09:00:00Z"}},
	})
	require.NoError(t, err)

	scheduledAt := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)
	result, err := svc.AcceptAvailability(ctx, leadA, gateID, first.ID, dto.AcceptAvailabilityRequest{
		ScheduledAt:     scheduledAt,
		DurationMinutes: 45,
		MeetingLink:     strPtr("https://meet.example.com/abc"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusAccepted, result.Request.Status)
	assert.Equal(t, models.SlotStatusConfirmed, result.Slot.Status)
	assert.Equal(t, models.SlotSourceInstructorRequested, result.Slot.Source)
	assert.Equal(t, 45, result.Slot.DurationMinutes)
	assert.Equal(t, []string{second.ID}, result.DeclinedRequestIDs)

	state := store.snapshot()
	for _, req := range state.requests {
		if req.ID == second.ID {
			assert.Equal(t, models.RequestStatusDeclined, req.Status)
			require.NotNil(t, req.ReviewNotes)
			assert.Equal(t, models.NoteSiblingAccepted, *req.ReviewNotes)
		}
	}
	assert.Equal(t, models.GateStatusScheduled, state.gates[gateID].Status)

	assert.Equal(t, []models.NotificationKind{
		models.NotifyAvailabilitySubmit,
		models.NotifyAvailabilitySubmit,
		models.NotifyAvailabilityAccept,
	}, pub.kinds())

	_, err = svc.AcceptAvailability(ctx, leadA, gateID, second.ID, dto.AcceptAvailabilityRequest{ScheduledAt: scheduledAt})
	assertKind(t, err, appErrors.ErrNotPending)
}

func TestAcceptAvailabilityWhenAlreadyScheduled(t *testing.T) {
	store := seededStore()
	svc, _ := newInterviewServiceForTest(store)
	ctx := context.Background()

	req, err := svc.SubmitAvailability(ctx, instructor, gateID, dto.SubmitAvailabilityRequest{
		PreferredSlots: []dto.PreferredSlotInput{{Start: "2026-03-05T10:00:00Z"}},
	})
	require.NoError(t, err)
	slot, err := svc.PostSlot(ctx, admin, gateRef, slotAt(5))
	require.NoError(t, err)
	_, err = svc.ConfirmSlot(ctx, instructor, gateRef, slot.ID)
	require.NoError(t, err)

	_, err = svc.AcceptAvailability(ctx, admin, gateID, req.ID, dto.AcceptAvailabilityRequest{ScheduledAt: fixedNow})
	assertKind(t, err, appErrors.ErrAlreadyScheduled)

	// The failed accept must leave the request untouched.
	for _, r := range store.snapshot().requests {
		assert.Equal(t, models.RequestStatusPending, r.Status)
	}
}

func TestSubmitAvailabilityLimits(t *testing.T) {
	store := seededStore()
	svc, _ := newInterviewServiceForTest(store)
	ctx := context.Background()
	one := dto.SubmitAvailabilityRequest{PreferredSlots: []dto.PreferredSlotInput{{Start: "2026-03-05T10:00:00Z"}}}

	for i := 0; i < 3; i++ {
		_, err := svc.SubmitAvailability(ctx, instructor, gateID, one)
		require.NoError(t, err)
	}
	_, err := svc.SubmitAvailability(ctx, instructor, gateID, one)
	assertKind(t, err, appErrors.ErrTooManyPendingRequests)

	four := dto.SubmitAvailabilityRequest{PreferredSlots: []dto.PreferredSlotInput{
		{Start: "2026-03-05T10:00:00Z"}, {Start: "2026-03-06T10:00:00Z"},
		{Start: "2026-03-07T10:00:00Z"}, {Start: "2026-03-08T10:00:00Z"},
	}}
	_, err = svc.SubmitAvailability(ctx, instructor, gateID, four)
	assertKind(t, err, appErrors.ErrValidation)
}

func TestConfiguredLimitsCannotExceedCeiling(t *testing.T) {
	store := seededStore()
	svc := NewInterviewService(store, &recordingPublisher{}, config.InterviewConfig{MaxPendingRequests: 10, MaxPreferredSlots: 8}, zap.NewNop())
	ctx := context.Background()
	one := dto.SubmitAvailabilityRequest{PreferredSlots: []dto.PreferredSlotInput{{Start: "2026-03-05T10:00:00Z"}}}

	for i := 0; i < config.MaxPendingRequestsCeiling; i++ {
		_, err := svc.SubmitAvailability(ctx, instructor, gateID, one)
		require.NoError(t, err)
	}
	_, err := svc.SubmitAvailability(ctx, instructor, gateID, one)
	assertKind(t, err, appErrors.ErrTooManyPendingRequests)
	assert.Equal(t, config.MaxPreferredSlotsCeiling, svc.cfg.MaxPreferredSlots)
}

func TestSubmitAvailabilityRejectsBadWindows(t *testing.T) {
	cases := map[string]dto.PreferredSlotInput{
		"unparseable start": {Start: "next tuesday"},
		"empty start":       {Start: "  "},
		"bad end":           {Start: "2026-03-05T10:00:00Z", End: "later"},
		"end before start":  {Start: "2026-03-05T10:00:00Z", End: "2026-03-05T09:00:00Z"},
	}
	for name, window := range cases {
		t.Run(name, func(t *testing.T) {
			svc, _ := newInterviewServiceForTest(seededStore())
			_, err := svc.SubmitAvailability(context.Background(), instructor, gateID, dto.SubmitAvailabilityRequest{
				PreferredSlots: []dto.PreferredSlotInput{window},
			})
			assertKind(t, err, appErrors.ErrInvalidTimeWindow)
		})
	}
}

func TestSubmitAvailabilityOnlyBySubject(t *testing.T) {
	svc, _ := newInterviewServiceForTest(seededStore())

	_, err := svc.SubmitAvailability(context.Background(), leadA, gateID, dto.SubmitAvailabilityRequest{
		PreferredSlots: []dto.PreferredSlotInput{{Start: "2026-03-05T10:00:00Z"}},
	})
	assertKind(t, err, appErrors.ErrUnauthorized)
}

func TestCancelAndDeclineAvailability(t *testing.T) {
	store := seededStore()
	svc, _ := newInterviewServiceForTest(store)
	ctx := context.Background()
	one := dto.SubmitAvailabilityRequest{PreferredSlots: []dto.PreferredSlotInput{{Start: "2026-03-05T10:00:00Z"}}}

	first, err := svc.SubmitAvailability(ctx, instructor, gateID, one)
	require.NoError(t, err)
	second, err := svc.SubmitAvailability(ctx, instructor, gateID, one)
	require.NoError(t, err)

	cancelled, err := svc.CancelAvailability(ctx, instructor, gateID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusCancelled, cancelled.Status)

	_, err = svc.CancelAvailability(ctx, instructor, gateID, first.ID)
	assertKind(t, err, appErrors.ErrNotPending)

	declined, err := svc.DeclineAvailability(ctx, leadA, gateID, second.ID, dto.DeclineAvailabilityRequest{ReviewNotes: strPtr("fully booked")})
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusDeclined, declined.Status)
	require.NotNil(t, declined.ReviewedBy)
	assert.Equal(t, leadA.ID, *declined.ReviewedBy)

	_, err = svc.DeclineAvailability(ctx, leadA, gateID, "missing", dto.DeclineAvailabilityRequest{})
	assertKind(t, err, appErrors.ErrNotFound)
}

func TestSetOutcomeRequiresCompletedInterview(t *testing.T) {
	svc, _ := newInterviewServiceForTest(seededStore())

	_, err := svc.SetOutcome(context.Background(), admin, gateID, dto.SetOutcomeRequest{Outcome: models.OutcomePass})
	assertKind(t, err, appErrors.ErrInterviewNotCompleted)
}

func TestReadinessScenarioCompleteWithPassFinalizes(t *testing.T) {
	store := seededStore()
	svc, _ := newInterviewServiceForTest(store)
	ctx := context.Background()

	slot, err := svc.PostSlot(ctx, leadA, gateRef, slotAt(2))
	require.NoError(t, err)
	_, err = svc.ConfirmSlot(ctx, instructor, gateRef, slot.ID)
	require.NoError(t, err)
	pending, err := svc.SubmitAvailability(ctx, instructor, gateID, dto.SubmitAvailabilityRequest{
		PreferredSlots: []dto.PreferredSlotInput{{Start: "2026-03-09T10:00:00Z"}},
	})
	require.NoError(t, err)

	result, err := svc.CompleteInterviewWithOutcome(ctx, leadA, gateID, slot.ID, dto.CompleteWithOutcomeRequest{
		Outcome:     models.OutcomePass,
		ReviewNotes: strPtr("ready to teach"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.SlotStatusCompleted, result.Slot.Status)
	assert.Equal(t, models.GateStatusPassed, result.Gate.Status)
	require.NotNil(t, result.Gate.Outcome)
	assert.Equal(t, models.OutcomePass, *result.Gate.Outcome)

	state := store.snapshot()
	assert.Equal(t, models.GateStatusPassed, state.gates[gateID].Status)
	for _, req := range state.requests {
		if req.ID == pending.ID {
			assert.Equal(t, models.RequestStatusDeclined, req.Status)
			assert.Equal(t, models.NoteGateFinalized, *req.ReviewNotes)
		}
	}

	_, err = svc.PostSlot(ctx, leadA, gateRef, slotAt(10))
	assertKind(t, err, appErrors.ErrAlreadyFinalized)
	_, err = svc.SubmitAvailability(ctx, instructor, gateID, dto.SubmitAvailabilityRequest{
		PreferredSlots: []dto.PreferredSlotInput{{Start: "2026-03-09T10:00:00Z"}},
	})
	assertKind(t, err, appErrors.ErrAlreadyFinalized)
}

func TestReadinessScenarioHoldThenReschedule(t *testing.T) {
	store := seededStore()
	svc, _ := newInterviewServiceForTest(store)
	ctx := context.Background()

	slot, err := svc.PostSlot(ctx, admin, gateRef, slotAt(2))
	require.NoError(t, err)
	_, err = svc.ConfirmSlot(ctx, instructor, gateRef, slot.ID)
	require.NoError(t, err)
	_, err = svc.CompleteSlot(ctx, admin, gateRef, slot.ID, dto.CompleteSlotRequest{})
	require.NoError(t, err)

	gate, err := svc.SetOutcome(ctx, leadA, gateID, dto.SetOutcomeRequest{Outcome: models.OutcomeHold})
	require.NoError(t, err)
	assert.Equal(t, models.GateStatusHold, gate.Status)

	again, err := svc.PostSlot(ctx, leadA, gateRef, slotAt(72))
	require.NoError(t, err)
	_, err = svc.ConfirmSlot(ctx, instructor, gateRef, again.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GateStatusScheduled, store.snapshot().gates[gateID].Status)
}

func TestCompleteWithOutcomeRejectsWaiveAndUnconfirmedSlot(t *testing.T) {
	store := seededStore()
	svc, _ := newInterviewServiceForTest(store)
	ctx := context.Background()

	_, err := svc.CompleteInterviewWithOutcome(ctx, admin, gateID, "slot", dto.CompleteWithOutcomeRequest{Outcome: models.OutcomeWaive})
	assertKind(t, err, appErrors.ErrValidation)

	slot, err := svc.PostSlot(ctx, admin, gateRef, slotAt(2))
	require.NoError(t, err)
	_, err = svc.CompleteInterviewWithOutcome(ctx, admin, gateID, slot.ID, dto.CompleteWithOutcomeRequest{Outcome: models.OutcomeFail})
	assertKind(t, err, appErrors.ErrInvalidState)
}

func TestWaiveRequiresAdmin(t *testing.T) {
	store := seededStore()
	svc, pub := newInterviewServiceForTest(store)
	ctx := context.Background()

	_, err := svc.SetOutcome(ctx, leadA, gateID, dto.SetOutcomeRequest{Outcome: models.OutcomeWaive})
	assertKind(t, err, appErrors.ErrUnauthorized)

	gate, err := svc.SetOutcome(ctx, admin, gateID, dto.SetOutcomeRequest{Outcome: models.OutcomeWaive, ReviewNotes: strPtr("prior experience")})
	require.NoError(t, err)
	assert.Equal(t, models.GateStatusWaived, gate.Status)
	require.NotNil(t, gate.ReviewedBy)
	assert.Equal(t, admin.ID, *gate.ReviewedBy)

	var audits []models.InterviewEvent
	for _, e := range store.snapshot().events {
		if e.Kind == models.EventKindAudit {
			audits = append(audits, e)
		}
	}
	require.Len(t, audits, 1)
	assert.Contains(t, string(audits[0].Payload), models.AuditActionInterviewGateWaived)
	assert.Contains(t, pub.kinds(), models.NotifyGateOutcome)
}

func TestFailedTransactionPublishesNothing(t *testing.T) {
	store := seededStore()
	svc, pub := newInterviewServiceForTest(store)
	ctx := context.Background()

	slot, err := svc.PostSlot(ctx, admin, gateRef, slotAt(2))
	require.NoError(t, err)
	_, err = svc.ConfirmSlot(ctx, instructor, gateRef, slot.ID)
	require.NoError(t, err)
	before := len(pub.kinds())

	store.failOn = "UpdateGateDecision"
	_, err = svc.CompleteInterviewWithOutcome(ctx, admin, gateID, slot.ID, dto.CompleteWithOutcomeRequest{Outcome: models.OutcomePass})
	assertKind(t, err, appErrors.ErrInternal)

	state := store.snapshot()
	assert.Equal(t, models.GateStatusScheduled, state.gates[gateID].Status)
	for _, s := range state.slots {
		assert.Equal(t, models.SlotStatusConfirmed, s.Status)
	}
	assert.Len(t, pub.kinds(), before)
}

func TestMutationMetricsRecordResult(t *testing.T) {
	metrics := NewMetricsService()
	svc, _ := newInterviewServiceForTest(seededStore(), WithInterviewMetrics(metrics))
	ctx := context.Background()

	_, err := svc.PostSlot(ctx, admin, gateRef, slotAt(1))
	require.NoError(t, err)
	_, err = svc.PostSlot(ctx, applicant, gateRef, slotAt(1))
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.interviewMutations.WithLabelValues("post_slots", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.interviewMutations.WithLabelValues("post_slots", appErrors.ErrUnauthorized.Code)))
}

func TestMutationInvalidatesCachedTasks(t *testing.T) {
	repo := newMemoryCache()
	cache := NewCacheService(repo, nil, time.Minute, zap.NewNop(), true)
	svc, _ := newInterviewServiceForTest(seededStore(), WithInterviewCache(cache))
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, TaskKey(gateRef, models.ViewerSubject), "stale", time.Minute))
	require.NoError(t, repo.Set(ctx, TaskKey(appRef, models.ViewerSubject), "other", time.Minute))

	_, err := svc.PostSlot(ctx, admin, gateRef, slotAt(1))
	require.NoError(t, err)

	assert.Equal(t, []string{"tasks:READINESS:gate-1:*"}, repo.deleted)
	assert.NotContains(t, repo.keys(), TaskKey(gateRef, models.ViewerSubject))
	assert.Contains(t, repo.keys(), TaskKey(appRef, models.ViewerSubject))
}
