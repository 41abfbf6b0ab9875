package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/edu-portal-api/internal/models"
	"github.com/noah-isme/edu-portal-api/internal/repository"
)

// memoryState is the whole persisted world of the fake store.
type memoryState struct {
	gates    map[string]models.InstructorInterviewGate
	apps     map[string]models.Application
	slots    []models.InterviewSlot
	requests []models.AvailabilityRequest
	notes    []models.DecisionNote
	events   []models.InterviewEvent
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		gates:    make(map[string]models.InstructorInterviewGate, len(s.gates)),
		apps:     make(map[string]models.Application, len(s.apps)),
		slots:    append([]models.InterviewSlot(nil), s.slots...),
		requests: append([]models.AvailabilityRequest(nil), s.requests...),
		notes:    append([]models.DecisionNote(nil), s.notes...),
		events:   append([]models.InterviewEvent(nil), s.events...),
	}
	for k, v := range s.gates {
		out.gates[k] = v
	}
	for k, v := range s.apps {
		out.apps[k] = v
	}
	return out
}

// memoryStore serializes transactions the way the subject row lock does and only
// keeps a transaction's writes when fn succeeds.
type memoryStore struct {
	mu      sync.Mutex
	state   memoryState
	failOn  string
	commits int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{state: memoryState{
		gates: make(map[string]models.InstructorInterviewGate),
		apps:  make(map[string]models.Application),
	}}
}

func (m *memoryStore) InTx(ctx context.Context, fn func(repository.InterviewTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memoryTx{state: m.state.clone(), failOn: m.failOn}
	if err := fn(tx); err != nil {
		return err
	}
	m.state = tx.state
	m.commits++
	return nil
}

func (m *memoryStore) snapshot() memoryState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

func (m *memoryStore) GetGate(ctx context.Context, id string) (*models.InstructorInterviewGate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gate, ok := m.state.gates[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &gate, nil
}

func (m *memoryStore) GetApplication(ctx context.Context, id string) (*models.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	app, ok := m.state.apps[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &app, nil
}

func (m *memoryStore) ListGates(ctx context.Context, filter models.GateFilter) ([]models.InstructorInterviewGate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.InstructorInterviewGate
	for _, gate := range m.state.gates {
		if filter.ChapterID != "" && gate.ChapterID != filter.ChapterID {
			continue
		}
		if filter.InstructorID != "" && gate.InstructorID != filter.InstructorID {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, gate.Status) {
			continue
		}
		out = append(out, gate)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func containsStatus(statuses []models.GateStatus, status models.GateStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func (m *memoryStore) ListApplications(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Application
	for _, app := range m.state.apps {
		if filter.ChapterID != "" && app.ChapterID != filter.ChapterID {
			continue
		}
		if filter.ApplicantID != "" && app.ApplicantID != filter.ApplicantID {
			continue
		}
		if filter.Undecided && app.IsDecided() {
			continue
		}
		out = append(out, app)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *memoryStore) ListSlotsBySubjects(ctx context.Context, domain models.InterviewDomain, ids []string) ([]models.InterviewSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.InterviewSlot
	for _, slot := range m.state.slots {
		if slot.Domain == domain && containsString(ids, slot.SubjectID) {
			out = append(out, slot)
		}
	}
	return out, nil
}

func (m *memoryStore) ListRequestsByGates(ctx context.Context, ids []string) ([]models.AvailabilityRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AvailabilityRequest
	for _, req := range m.state.requests {
		if containsString(ids, req.GateID) {
			out = append(out, req)
		}
	}
	return out, nil
}

func (m *memoryStore) ListNotesByApplications(ctx context.Context, ids []string) ([]models.DecisionNote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.DecisionNote
	for _, note := range m.state.notes {
		if containsString(ids, note.ApplicationID) {
			out = append(out, note)
		}
	}
	return out, nil
}

func containsString(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

type memoryTx struct {
	state  memoryState
	failOn string
}

func (t *memoryTx) fail(op string) error {
	if t.failOn == op {
		return fmt.Errorf("%s: connection reset", op)
	}
	return nil
}

func (t *memoryTx) LockGate(ctx context.Context, id string) (*models.InstructorInterviewGate, error) {
	gate, ok := t.state.gates[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &gate, nil
}

func (t *memoryTx) LockApplication(ctx context.Context, id string) (*models.Application, error) {
	app, ok := t.state.apps[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &app, nil
}

func (t *memoryTx) TouchSubject(ctx context.Context, domain models.InterviewDomain, id string, at time.Time) error {
	if domain == models.DomainHiring {
		if app, ok := t.state.apps[id]; ok && at.After(app.UpdatedAt) {
			app.UpdatedAt = at
			t.state.apps[id] = app
		}
		return nil
	}
	if gate, ok := t.state.gates[id]; ok && at.After(gate.UpdatedAt) {
		gate.UpdatedAt = at
		t.state.gates[id] = gate
	}
	return nil
}

func (t *memoryTx) ListSlots(ctx context.Context, domain models.InterviewDomain, subjectID string) ([]models.InterviewSlot, error) {
	var out []models.InterviewSlot
	for _, slot := range t.state.slots {
		if slot.Domain == domain && slot.SubjectID == subjectID {
			out = append(out, slot)
		}
	}
	return out, nil
}

func (t *memoryTx) hasConfirmed(domain models.InterviewDomain, subjectID, exceptID string) bool {
	for _, slot := range t.state.slots {
		if slot.Domain == domain && slot.SubjectID == subjectID && slot.ID != exceptID && slot.Status == models.SlotStatusConfirmed {
			return true
		}
	}
	return false
}

func (t *memoryTx) InsertSlot(ctx context.Context, slot *models.InterviewSlot) error {
	if err := t.fail("InsertSlot"); err != nil {
		return err
	}
	if slot.Status == models.SlotStatusConfirmed && t.hasConfirmed(slot.Domain, slot.SubjectID, slot.ID) {
		return repository.ErrConfirmedSlotExists
	}
	t.state.slots = append(t.state.slots, *slot)
	return nil
}

func (t *memoryTx) TransitionSlot(ctx context.Context, params repository.SlotTransition) (*models.InterviewSlot, error) {
	for i := range t.state.slots {
		slot := &t.state.slots[i]
		if slot.ID != params.ID || slot.Domain != params.Domain || slot.SubjectID != params.SubjectID {
			continue
		}
		allowed := false
		for _, from := range params.From {
			if slot.Status == from {
				allowed = true
			}
		}
		if !allowed {
			return nil, sql.ErrNoRows
		}
		if params.To == models.SlotStatusConfirmed && t.hasConfirmed(slot.Domain, slot.SubjectID, slot.ID) {
			return nil, repository.ErrConfirmedSlotExists
		}
		at := params.At
		slot.Status = params.To
		switch params.To {
		case models.SlotStatusConfirmed:
			slot.ConfirmedAt = &at
		case models.SlotStatusCompleted:
			slot.CompletedAt = &at
		case models.SlotStatusCancelled:
			slot.CancelledAt = &at
		}
		slot.UpdatedAt = at
		out := *slot
		return &out, nil
	}
	return nil, sql.ErrNoRows
}

func (t *memoryTx) ListRequests(ctx context.Context, gateID string) ([]models.AvailabilityRequest, error) {
	var out []models.AvailabilityRequest
	for _, req := range t.state.requests {
		if req.GateID == gateID {
			out = append(out, req)
		}
	}
	return out, nil
}

func (t *memoryTx) InsertRequest(ctx context.Context, req *models.AvailabilityRequest) error {
	t.state.requests = append(t.state.requests, *req)
	return nil
}

func (t *memoryTx) applyReview(req *models.AvailabilityRequest, review models.RequestReview) {
	at := review.ReviewedAt
	req.Status = review.Status
	req.ReviewedBy = review.ReviewedBy
	req.ReviewedAt = &at
	req.ReviewNotes = review.Notes
	req.UpdatedAt = at
}

func (t *memoryTx) ReviewRequest(ctx context.Context, id string, review models.RequestReview) (*models.AvailabilityRequest, error) {
	for i := range t.state.requests {
		req := &t.state.requests[i]
		if req.ID != id || req.Status != models.RequestStatusPending {
			continue
		}
		t.applyReview(req, review)
		out := *req
		return &out, nil
	}
	return nil, sql.ErrNoRows
}

func (t *memoryTx) DeclinePendingRequests(ctx context.Context, gateID, exceptID string, review models.RequestReview) ([]string, error) {
	var ids []string
	for i := range t.state.requests {
		req := &t.state.requests[i]
		if req.GateID != gateID || req.Status != models.RequestStatusPending || req.ID == exceptID {
			continue
		}
		t.applyReview(req, review)
		ids = append(ids, req.ID)
	}
	return ids, nil
}

func (t *memoryTx) UpdateGateProgress(ctx context.Context, params repository.GateProgress) error {
	gate := t.state.gates[params.GateID]
	gate.Status = params.Status
	if params.ScheduledAt != nil {
		gate.ScheduledAt = params.ScheduledAt
	}
	if params.CompletedAt != nil {
		gate.CompletedAt = params.CompletedAt
	}
	gate.UpdatedAt = params.At
	t.state.gates[params.GateID] = gate
	return nil
}

func (t *memoryTx) UpdateGateDecision(ctx context.Context, gateID string, decision models.GateDecision) error {
	if err := t.fail("UpdateGateDecision"); err != nil {
		return err
	}
	gate := t.state.gates[gateID]
	outcome := decision.Outcome
	reviewer := decision.ReviewedBy
	at := decision.ReviewedAt
	gate.Status = decision.Status
	gate.Outcome = &outcome
	gate.ReviewedBy = &reviewer
	gate.ReviewedAt = &at
	gate.ReviewNotes = decision.ReviewNotes
	gate.CompletedAt = &at
	gate.UpdatedAt = at
	t.state.gates[gateID] = gate
	return nil
}

func (t *memoryTx) ListNotes(ctx context.Context, applicationID string) ([]models.DecisionNote, error) {
	var out []models.DecisionNote
	for _, note := range t.state.notes {
		if note.ApplicationID == applicationID {
			out = append(out, note)
		}
	}
	return out, nil
}

func (t *memoryTx) InsertNote(ctx context.Context, note *models.DecisionNote) error {
	t.state.notes = append(t.state.notes, *note)
	return nil
}

func (t *memoryTx) InsertEvents(ctx context.Context, events []models.InterviewEvent) error {
	t.state.events = append(t.state.events, events...)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.InterviewEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, events []models.InterviewEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
}

func (p *recordingPublisher) kinds() []models.NotificationKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.NotificationKind, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.NotificationKind)
	}
	return out
}

// Fixture identities and subjects shared by the service tests.
const (
	chapterA     = "chapter-a"
	chapterB     = "chapter-b"
	gateID       = "gate-1"
	instructorID = "inst-1"
	appID        = "app-1"
	applicantID  = "applicant-1"
)

var (
	admin      = models.ActingUser{ID: "admin-1", Roles: []models.UserRole{models.RoleAdmin}}
	leadA      = models.ActingUser{ID: "lead-a", Roles: []models.UserRole{models.RoleChapterLead}, ChapterID: chapterA}
	leadB      = models.ActingUser{ID: "lead-b", Roles: []models.UserRole{models.RoleChapterLead}, ChapterID: chapterB}
	instructor = models.ActingUser{ID: instructorID, Roles: []models.UserRole{models.RoleInstructor}, ChapterID: chapterA}
	applicant  = models.ActingUser{ID: applicantID, Roles: []models.UserRole{models.RoleApplicant}}
	fixedNow   = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
)

func seededStore() *memoryStore {
	store := newMemoryStore()
	store.state.gates[gateID] = models.InstructorInterviewGate{
		ID:             gateID,
		InstructorID:   instructorID,
		InstructorName: "Ada Instructor",
		ChapterID:      chapterA,
		Status:         models.GateStatusRequired,
		CreatedAt:      fixedNow.Add(-48 * time.Hour),
		UpdatedAt:      fixedNow.Add(-48 * time.Hour),
	}
	store.state.apps[appID] = models.Application{
		ID:                appID,
		PositionID:        "pos-1",
		PositionTitle:     "Robotics Mentor",
		ApplicantID:       applicantID,
		ApplicantName:     "Grace Applicant",
		ChapterID:         chapterA,
		InterviewRequired: true,
		CreatedAt:         fixedNow.Add(-72 * time.Hour),
		UpdatedAt:         fixedNow.Add(-72 * time.Hour),
	}
	return store
}
