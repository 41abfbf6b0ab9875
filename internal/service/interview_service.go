package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/edu-portal-api/internal/dto"
	"github.com/noah-isme/edu-portal-api/internal/models"
	"github.com/noah-isme/edu-portal-api/internal/repository"
	"github.com/noah-isme/edu-portal-api/internal/workflow"
	"github.com/noah-isme/edu-portal-api/pkg/config"
	appErrors "github.com/noah-isme/edu-portal-api/pkg/errors"
)

const displayTime = "Mon 02 Jan 2006 15:04 MST"

type interviewStore interface {
	InTx(ctx context.Context, fn func(repository.InterviewTx) error) error
}

// EventPublisher hands committed outbox events over for delivery.
type EventPublisher interface {
	Publish(ctx context.Context, events []models.InterviewEvent)
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, []models.InterviewEvent) {}

// InterviewService runs the slot lifecycle, availability negotiation and outcome
// operations. Each call locks one subject and commits its changes with the outbox
// events they produce.
type InterviewService struct {
	store     interviewStore
	publisher EventPublisher
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	cfg       config.InterviewConfig
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

// InterviewServiceOption configures the service.
type InterviewServiceOption func(*InterviewService)

// WithInterviewCache invalidates projected tasks after each mutation.
func WithInterviewCache(cache *CacheService) InterviewServiceOption {
	return func(s *InterviewService) {
		s.cache = cache
	}
}

// WithInterviewMetrics records mutation outcomes.
func WithInterviewMetrics(metrics *MetricsService) InterviewServiceOption {
	return func(s *InterviewService) {
		s.metrics = metrics
	}
}

// WithInterviewClock overrides the clock.
func WithInterviewClock(now func() time.Time) InterviewServiceOption {
	return func(s *InterviewService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithInterviewIDs overrides id generation.
func WithInterviewIDs(newID func() string) InterviewServiceOption {
	return func(s *InterviewService) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// NewInterviewService constructs the service with defaults.
func NewInterviewService(store interviewStore, publisher EventPublisher, cfg config.InterviewConfig, logger *zap.Logger, opts ...InterviewServiceOption) *InterviewService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = noopPublisher{}
	}
	svc := &InterviewService{
		store:     store,
		publisher: publisher,
		validator: validator.New(),
		cfg:       normalizeInterviewConfig(cfg),
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

func normalizeInterviewConfig(cfg config.InterviewConfig) config.InterviewConfig {
	if cfg.MaxPendingRequests <= 0 || cfg.MaxPendingRequests > config.MaxPendingRequestsCeiling {
		cfg.MaxPendingRequests = config.MaxPendingRequestsCeiling
	}
	if cfg.MaxPreferredSlots <= 0 || cfg.MaxPreferredSlots > config.MaxPreferredSlotsCeiling {
		cfg.MaxPreferredSlots = config.MaxPreferredSlotsCeiling
	}
	if cfg.MaxPostedSlotsPerCall <= 0 {
		cfg.MaxPostedSlotsPerCall = 5
	}
	if cfg.DefaultDurationMinutes <= 0 {
		cfg.DefaultDurationMinutes = 30
	}
	return cfg
}

type authorizer func(models.ActingUser, workflow.Subject) workflow.GuardResult

// interviewChange is the state visible to one operation while the subject row is locked.
type interviewChange struct {
	ctx     context.Context
	tx      repository.InterviewTx
	subject workflow.Subject
	actor   models.ActingUser
	now     time.Time
	newID   func() string
	events  []models.InterviewEvent
}

// mutate locks the subject, authorizes the actor, rejects terminal subjects and runs
// apply. Events are published and cached tasks dropped only after commit.
func (s *InterviewService) mutate(ctx context.Context, op string, actor models.ActingUser, ref workflow.SubjectRef, authorize authorizer, apply func(*interviewChange) error) error {
	var committed []models.InterviewEvent
	err := s.store.InTx(ctx, func(tx repository.InterviewTx) error {
		subject, err := lockSubject(ctx, tx, ref)
		if err != nil {
			return err
		}
		if err := authorize(actor, subject).Err(); err != nil {
			return err
		}
		if err := workflow.EnsureOpen(subject); err != nil {
			return err
		}

		change := &interviewChange{
			ctx:     ctx,
			tx:      tx,
			subject: subject,
			actor:   actor,
			now:     s.now().UTC(),
			newID:   s.newID,
		}
		if err := apply(change); err != nil {
			return err
		}
		if err := tx.TouchSubject(ctx, ref.Domain, ref.ID, change.now); err != nil {
			return err
		}
		if len(change.events) > 0 {
			if err := tx.InsertEvents(ctx, change.events); err != nil {
				return err
			}
		}
		committed = change.events
		return nil
	})
	if err != nil {
		return s.fail(op, ref, err)
	}

	s.metrics.RecordInterviewMutation(op, nil)
	s.cache.InvalidateSubject(ctx, ref)
	s.publisher.Publish(ctx, committed)
	return nil
}

// fail normalizes err, records it and logs unexpected failures.
func (s *InterviewService) fail(op string, ref workflow.SubjectRef, err error) error {
	var appErr *appErrors.Error
	if !errors.As(err, &appErr) {
		appErr = appErrors.Internal(err, fmt.Sprintf("failed to %s", op))
	}
	s.metrics.RecordInterviewMutation(op, appErr)
	if appErr.Status >= 500 {
		s.logger.Error("interview mutation failed",
			zap.String("operation", op),
			zap.String("subject", ref.Key()),
			zap.Error(err),
		)
	}
	return appErr
}

func (s *InterviewService) validate(op string, payload interface{}) error {
	if err := s.validator.Struct(payload); err != nil {
		return s.fail(op, workflow.SubjectRef{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid "+op+" payload"))
	}
	return nil
}

// requireScheduledAt reports a missing slot time as an invalid window rather than a generic payload error.
func (s *InterviewService) requireScheduledAt(op string, times ...time.Time) error {
	for _, at := range times {
		if at.IsZero() {
			return s.fail(op, workflow.SubjectRef{}, appErrors.Clone(appErrors.ErrInvalidTimeWindow, "scheduledAt is required"))
		}
	}
	return nil
}

func (s *InterviewService) requireReviewer(op string, actor models.ActingUser) error {
	if err := workflow.RequireReviewer(actor).Err(); err != nil {
		return s.fail(op, workflow.SubjectRef{}, err)
	}
	return nil
}

func (s *InterviewService) duration(minutes int) int {
	if minutes <= 0 {
		return s.cfg.DefaultDurationMinutes
	}
	return minutes
}

func lockSubject(ctx context.Context, tx repository.InterviewTx, ref workflow.SubjectRef) (workflow.Subject, error) {
	switch ref.Domain {
	case models.DomainReadiness:
		gate, err := tx.LockGate(ctx, ref.ID)
		if err != nil {
			return nil, notFoundOr(err, "interview gate not found")
		}
		return workflow.ReadinessSubject{Gate: *gate}, nil
	case models.DomainHiring:
		app, err := tx.LockApplication(ctx, ref.ID)
		if err != nil {
			return nil, notFoundOr(err, "application not found")
		}
		return workflow.HiringSubject{Application: *app}, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("unknown interview domain %q", ref.Domain))
}

func notFoundOr(err error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, message)
	}
	return err
}

// PostSlots offers one or more explicit times to the subject.
func (s *InterviewService) PostSlots(ctx context.Context, actor models.ActingUser, ref workflow.SubjectRef, req dto.PostSlotsRequest) ([]models.InterviewSlot, error) {
	const op = "post_slots"
	if err := s.requireReviewer(op, actor); err != nil {
		return nil, err
	}
	times := make([]time.Time, 0, len(req.Slots))
	for _, in := range req.Slots {
		times = append(times, in.ScheduledAt)
	}
	if err := s.requireScheduledAt(op, times...); err != nil {
		return nil, err
	}
	if err := s.validate(op, req); err != nil {
		return nil, err
	}
	if len(req.Slots) > s.cfg.MaxPostedSlotsPerCall {
		return nil, s.fail(op, ref, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("at most %d slots can be posted at once", s.cfg.MaxPostedSlotsPerCall)))
	}

	var posted []models.InterviewSlot
	err := s.mutate(ctx, op, actor, ref, workflow.CanManage, func(c *interviewChange) error {
		for _, in := range req.Slots {
			slot := models.InterviewSlot{
				ID:              c.newID(),
				Domain:          ref.Domain,
				SubjectID:       ref.ID,
				Status:          models.SlotStatusPosted,
				ScheduledAt:     in.ScheduledAt.UTC(),
				DurationMinutes: s.duration(in.DurationMinutes),
				Source:          models.SlotSourceReviewerPosted,
				CreatedBy:       actor.ID,
				MeetingLink:     in.MeetingLink,
				Notes:           in.Notes,
				CreatedAt:       c.now,
				UpdatedAt:       c.now,
			}
			if err := c.tx.InsertSlot(ctx, &slot); err != nil {
				return err
			}
			posted = append(posted, slot)
		}

		body := fmt.Sprintf("Interview time proposed for %s. Confirm it from your tasks.", posted[0].ScheduledAt.Format(displayTime))
		if len(posted) > 1 {
			body = fmt.Sprintf("%d interview times were proposed. Confirm one from your tasks.", len(posted))
		}
		c.notify(c.subject.OwnerID(), models.NotifySlotPosted, "Interview slot posted", body)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return posted, nil
}

// PostSlot is the single slot form of PostSlots.
func (s *InterviewService) PostSlot(ctx context.Context, actor models.ActingUser, ref workflow.SubjectRef, in dto.SlotInput) (*models.InterviewSlot, error) {
	slots, err := s.PostSlots(ctx, actor, ref, dto.PostSlotsRequest{Slots: []dto.SlotInput{in}})
	if err != nil {
		return nil, err
	}
	return &slots[0], nil
}

// ConfirmSlot turns a POSTED slot into the subject's single CONFIRMED interview.
func (s *InterviewService) ConfirmSlot(ctx context.Context, actor models.ActingUser, ref workflow.SubjectRef, slotID string) (*models.InterviewSlot, error) {
	const op = "confirm_slot"
	var confirmed *models.InterviewSlot
	err := s.mutate(ctx, op, actor, ref, workflow.CanConfirm, func(c *interviewChange) error {
		slots, err := c.tx.ListSlots(ctx, ref.Domain, ref.ID)
		if err != nil {
			return err
		}
		slot, err := slotByID(slots, slotID)
		if err != nil {
			return err
		}
		if slot.Status != models.SlotStatusPosted {
			return appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("slot is %s, only POSTED slots can be confirmed", slot.Status))
		}
		if workflow.HasSlotIn(slots, models.SlotStatusConfirmed) {
			return appErrors.Clone(appErrors.ErrAlreadyScheduled, "")
		}

		updated, err := c.transition(*slot, models.SlotStatusConfirmed, models.SlotStatusPosted)
		if err != nil {
			return err
		}
		if err := c.markScheduled(updated.ScheduledAt); err != nil {
			return err
		}

		body := fmt.Sprintf("Interview confirmed for %s.", updated.ScheduledAt.Format(displayTime))
		c.notify(updated.CreatedBy, models.NotifySlotConfirmed, "Interview slot confirmed", body)
		if updated.CreatedBy != c.subject.OwnerID() {
			c.notify(c.subject.OwnerID(), models.NotifySlotConfirmed, "Interview slot confirmed", body)
		}
		confirmed = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return confirmed, nil
}

// CompleteSlot marks the CONFIRMED interview as held. Hiring completions may carry a recommendation.
func (s *InterviewService) CompleteSlot(ctx context.Context, actor models.ActingUser, ref workflow.SubjectRef, slotID string, req dto.CompleteSlotRequest) (*models.InterviewSlot, error) {
	const op = "complete_slot"
	if err := s.requireReviewer(op, actor); err != nil {
		return nil, err
	}
	if err := s.validate(op, req); err != nil {
		return nil, err
	}
	if req.Recommendation != nil && ref.Domain != models.DomainHiring {
		return nil, s.fail(op, ref, appErrors.Clone(appErrors.ErrValidation, "recommendations apply to hiring interviews only"))
	}

	var completed *models.InterviewSlot
	err := s.mutate(ctx, op, actor, ref, workflow.CanManage, func(c *interviewChange) error {
		slots, err := c.tx.ListSlots(ctx, ref.Domain, ref.ID)
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

		updated, err := c.transition(*slot, models.SlotStatusCompleted, models.SlotStatusConfirmed)
		if err != nil {
			return err
		}
		if err := c.markCompleted(); err != nil {
			return err
		}
		if req.Recommendation != nil {
			if _, err := c.insertRecommendation(*req.Recommendation); err != nil {
				return err
			}
		}

		c.notify(c.subject.OwnerID(), models.NotifySlotCompleted, "Interview completed",
			"Your interview has been marked as completed. You will be notified about the outcome.")
		completed = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return completed, nil
}

// CancelSlot withdraws a POSTED or CONFIRMED slot. The subject's own status is left as is.
func (s *InterviewService) CancelSlot(ctx context.Context, actor models.ActingUser, ref workflow.SubjectRef, slotID string) (*models.InterviewSlot, error) {
	const op = "cancel_slot"
	if err := s.requireReviewer(op, actor); err != nil {
		return nil, err
	}

	var cancelled *models.InterviewSlot
	err := s.mutate(ctx, op, actor, ref, workflow.CanManage, func(c *interviewChange) error {
		slots, err := c.tx.ListSlots(ctx, ref.Domain, ref.ID)
		if err != nil {
			return err
		}
		slot, err := slotByID(slots, slotID)
		if err != nil {
			return err
		}
		if slot.Status != models.SlotStatusPosted && slot.Status != models.SlotStatusConfirmed {
			return appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("slot is %s and cannot be cancelled", slot.Status))
		}

		updated, err := c.transition(*slot, models.SlotStatusCancelled, models.SlotStatusPosted, models.SlotStatusConfirmed)
		if err != nil {
			return err
		}
		c.notify(c.subject.OwnerID(), models.NotifySlotCancelled, "Interview slot cancelled",
			fmt.Sprintf("The interview time %s was cancelled.", updated.ScheduledAt.Format(displayTime)))
		cancelled = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

// SaveRecommendation attaches a reviewer recommendation to an application.
func (s *InterviewService) SaveRecommendation(ctx context.Context, actor models.ActingUser, applicationID string, req dto.RecommendationRequest) (*models.DecisionNote, error) {
	const op = "save_recommendation"
	if err := s.requireReviewer(op, actor); err != nil {
		return nil, err
	}
	if err := s.validate(op, req); err != nil {
		return nil, err
	}

	ref := workflow.SubjectRef{Domain: models.DomainHiring, ID: applicationID}
	var saved *models.DecisionNote
	err := s.mutate(ctx, op, actor, ref, workflow.CanManage, func(c *interviewChange) error {
		note, err := c.insertRecommendation(req.Body)
		if err != nil {
			return err
		}
		c.notifyReviewers(models.NotifyRecommendation, "Recommendation added",
			"A new interview recommendation is ready for the hiring decision.")
		saved = note
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func slotByID(slots []models.InterviewSlot, id string) (*models.InterviewSlot, error) {
	for i := range slots {
		if slots[i].ID == id {
			return &slots[i], nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "interview slot not found")
}

func (c *interviewChange) transition(slot models.InterviewSlot, to models.SlotStatus, from ...models.SlotStatus) (*models.InterviewSlot, error) {
	updated, err := c.tx.TransitionSlot(c.ctx, repository.SlotTransition{
		ID:        slot.ID,
		Domain:    slot.Domain,
		SubjectID: slot.SubjectID,
		From:      from,
		To:        to,
		At:        c.now,
	})
	switch {
	case err == nil:
		return updated, nil
	case errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "slot changed while the request was processed")
	case errors.Is(err, repository.ErrConfirmedSlotExists):
		return nil, appErrors.Clone(appErrors.ErrAlreadyScheduled, "")
	}
	return nil, err
}

func (c *interviewChange) markScheduled(at time.Time) error {
	subject, ok := c.subject.(workflow.ReadinessSubject)
	if !ok {
		return nil
	}
	return c.tx.UpdateGateProgress(c.ctx, repository.GateProgress{
		GateID:      subject.Gate.ID,
		Status:      models.GateStatusScheduled,
		ScheduledAt: &at,
		At:          c.now,
	})
}

func (c *interviewChange) markCompleted() error {
	subject, ok := c.subject.(workflow.ReadinessSubject)
	if !ok {
		return nil
	}
	now := c.now
	return c.tx.UpdateGateProgress(c.ctx, repository.GateProgress{
		GateID:      subject.Gate.ID,
		Status:      models.GateStatusCompleted,
		CompletedAt: &now,
		At:          c.now,
	})
}

func (c *interviewChange) insertRecommendation(body string) (*models.DecisionNote, error) {
	note := &models.DecisionNote{
		ID:            c.newID(),
		ApplicationID: c.subject.Ref().ID,
		AuthorID:      c.actor.ID,
		Kind:          models.NoteKindRecommendation,
		Body:          body,
		CreatedAt:     c.now,
	}
	if err := c.tx.InsertNote(c.ctx, note); err != nil {
		return nil, err
	}
	return note, nil
}

// notify queues a message to one user. Actors are never notified about their own actions.
func (c *interviewChange) notify(recipient string, kind models.NotificationKind, title, body string) {
	if recipient == "" || recipient == c.actor.ID {
		return
	}
	ref := c.subject.Ref()
	c.events = append(c.events, models.InterviewEvent{
		ID:               c.newID(),
		Kind:             models.EventKindNotification,
		Domain:           ref.Domain,
		SubjectID:        ref.ID,
		RecipientID:      &recipient,
		NotificationKind: kind,
		Title:            title,
		Body:             body,
		Link:             workflow.SubjectLink(ref),
		CreatedAt:        c.now,
	})
}

// notifyReviewers queues a message fanned out to every reviewer of the subject's chapter but the actor.
func (c *interviewChange) notifyReviewers(kind models.NotificationKind, title, body string) {
	ref := c.subject.Ref()
	chapterID := c.subject.ChapterID()
	actorID := c.actor.ID
	c.events = append(c.events, models.InterviewEvent{
		ID:               c.newID(),
		Kind:             models.EventKindNotification,
		Domain:           ref.Domain,
		SubjectID:        ref.ID,
		ChapterID:        &chapterID,
		ActorID:          &actorID,
		NotificationKind: kind,
		Title:            title,
		Body:             body,
		Link:             workflow.SubjectLink(ref),
		CreatedAt:        c.now,
	})
}

func (c *interviewChange) audit(title string, payload auditPayload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	ref := c.subject.Ref()
	c.events = append(c.events, models.InterviewEvent{
		ID:        c.newID(),
		Kind:      models.EventKindAudit,
		Domain:    ref.Domain,
		SubjectID: ref.ID,
		Title:     title,
		Link:      workflow.SubjectLink(ref),
		Payload:   types.JSONText(raw),
		CreatedAt: c.now,
	})
	return nil
}

// auditPayload is the body of an AUDIT outbox event.
type auditPayload struct {
	Action     string  `json:"action"`
	SubjectID  string  `json:"subject_id"`
	OwnerID    string  `json:"owner_id"`
	ReviewerID string  `json:"reviewer_id"`
	Notes      *string `json:"notes,omitempty"`
}
