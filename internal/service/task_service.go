package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/edu-portal-api/internal/dto"
	"github.com/noah-isme/edu-portal-api/internal/models"
	"github.com/noah-isme/edu-portal-api/internal/workflow"
	"github.com/noah-isme/edu-portal-api/pkg/config"
	appErrors "github.com/noah-isme/edu-portal-api/pkg/errors"
	"github.com/noah-isme/edu-portal-api/pkg/export"
)

const defaultQueueLimit = 200

// Gate statuses that still need reviewer attention.
var openGateStatuses = []models.GateStatus{
	models.GateStatusRequired,
	models.GateStatusScheduled,
	models.GateStatusCompleted,
	models.GateStatusHold,
	models.GateStatusFailed,
}

type taskStore interface {
	GetGate(ctx context.Context, id string) (*models.InstructorInterviewGate, error)
	GetApplication(ctx context.Context, id string) (*models.Application, error)
	ListGates(ctx context.Context, filter models.GateFilter) ([]models.InstructorInterviewGate, error)
	ListApplications(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, error)
	ListSlotsBySubjects(ctx context.Context, domain models.InterviewDomain, subjectIDs []string) ([]models.InterviewSlot, error)
	ListRequestsByGates(ctx context.Context, gateIDs []string) ([]models.AvailabilityRequest, error)
	ListNotesByApplications(ctx context.Context, applicationIDs []string) ([]models.DecisionNote, error)
}

type datasetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// TaskExport is a rendered queue download.
type TaskExport struct {
	Filename    string
	ContentType string
	Body        []byte
}

// InterviewTaskService loads subject state and projects it into dashboard tasks.
type InterviewTaskService struct {
	store     taskStore
	cache     *CacheService
	metrics   *MetricsService
	defaults  workflow.Defaults
	renderers map[export.Format]datasetRenderer
	logger    *zap.Logger
	now       func() time.Time
}

// NewInterviewTaskService constructs the task read service.
func NewInterviewTaskService(store taskStore, cache *CacheService, metrics *MetricsService, cfg config.InterviewConfig, logger *zap.Logger) *InterviewTaskService {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = normalizeInterviewConfig(cfg)
	return &InterviewTaskService{
		store:   store,
		cache:   cache,
		metrics: metrics,
		defaults: workflow.Defaults{
			DurationMinutes:   cfg.DefaultDurationMinutes,
			MaxPreferredSlots: cfg.MaxPreferredSlots,
			MaxPostedSlots:    cfg.MaxPostedSlotsPerCall,
		},
		renderers: map[export.Format]datasetRenderer{
			export.FormatCSV: export.NewCSVExporter(),
			export.FormatPDF: export.NewPDFExporter(),
		},
		logger: logger,
		now:    time.Now,
	}
}

// Task projects one subject for the requested view. An empty view means the subject's own
// view when the caller owns it and the reviewer view otherwise.
func (s *InterviewTaskService) Task(ctx context.Context, actor models.ActingUser, ref workflow.SubjectRef, view string) (*models.InterviewTask, error) {
	subject, err := s.loadSubject(ctx, ref)
	if err != nil {
		return nil, err
	}

	viewer := models.ViewerReviewer
	if view != "" {
		viewer, err = models.ParseViewerRole(strings.ToUpper(view))
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
		}
	} else if actor.ID == subject.OwnerID() {
		viewer = models.ViewerSubject
	}

	guard := workflow.CanManage(actor, subject)
	if viewer == models.ViewerSubject {
		guard = workflow.CanActAsSubject(actor, subject)
	}
	if err := guard.Err(); err != nil {
		return nil, err
	}

	if cached, ok := s.cache.GetTask(ctx, ref, viewer, subject.UpdatedAt()); ok {
		return cached, nil
	}

	snaps, err := s.loadSnapshots(ctx, []workflow.Subject{subject})
	if err != nil {
		return nil, err
	}
	task, err := workflow.Project(snaps[0], viewer, s.defaults)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to project interview task")
	}
	s.cache.PutTask(ctx, task)
	return &task, nil
}

// MyTasks lists the caller's own interview tasks.
func (s *InterviewTaskService) MyTasks(ctx context.Context, actor models.ActingUser) ([]models.InterviewTask, error) {
	if actor.ID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "")
	}
	gates, err := s.store.ListGates(ctx, models.GateFilter{InstructorID: actor.ID, Limit: defaultQueueLimit})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load interview gates")
	}
	apps, err := s.store.ListApplications(ctx, models.ApplicationFilter{ApplicantID: actor.ID, Limit: defaultQueueLimit})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load applications")
	}
	return s.projectAll(ctx, subjectsOf(gates, apps), models.ViewerSubject)
}

// Queue lists open subjects a reviewer can act on, most urgent first. Admins see every chapter.
func (s *InterviewTaskService) Queue(ctx context.Context, actor models.ActingUser, query dto.TaskQuery) ([]models.InterviewTask, error) {
	if err := workflow.RequireReviewer(actor).Err(); err != nil {
		return nil, err
	}
	chapterID := ""
	if !actor.HasRole(models.RoleAdmin) {
		if actor.ChapterID == "" {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "chapter lead has no chapter assigned")
		}
		chapterID = actor.ChapterID
	}
	limit := query.Limit
	if limit <= 0 {
		limit = defaultQueueLimit
	}

	var gates []models.InstructorInterviewGate
	var apps []models.Application
	var err error
	if query.Domain == nil || *query.Domain == models.DomainReadiness {
		gates, err = s.store.ListGates(ctx, models.GateFilter{ChapterID: chapterID, Statuses: openGateStatuses, Limit: limit})
		if err != nil {
			return nil, appErrors.Internal(err, "failed to load interview gates")
		}
	}
	if query.Domain == nil || *query.Domain == models.DomainHiring {
		apps, err = s.store.ListApplications(ctx, models.ApplicationFilter{ChapterID: chapterID, Undecided: true, Limit: limit})
		if err != nil {
			return nil, appErrors.Internal(err, "failed to load applications")
		}
	}

	var manageable []workflow.Subject
	for _, subject := range subjectsOf(gates, apps) {
		if workflow.CanManage(actor, subject).Allowed {
			manageable = append(manageable, subject)
		}
	}
	return s.projectAll(ctx, manageable, models.ViewerReviewer)
}

// ExportQueue renders the reviewer queue as CSV or PDF.
func (s *InterviewTaskService) ExportQueue(ctx context.Context, actor models.ActingUser, query dto.TaskQuery, format string) (*TaskExport, error) {
	f := export.Format(strings.ToLower(strings.TrimSpace(format)))
	if f == "" {
		f = export.FormatCSV
	}
	renderer, ok := s.renderers[f]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}

	tasks, err := s.Queue(ctx, actor, query)
	if err != nil {
		return nil, err
	}

	generatedAt := s.now().UTC()
	data := export.Dataset{
		Title:       "Interview queue",
		GeneratedAt: generatedAt,
		Headers:     []string{"Domain", "Subject", "Stage", "Title", "Detail", "Next action", "Updated"},
		Rows:        make([]map[string]string, 0, len(tasks)),
	}
	for _, task := range tasks {
		next := ""
		if task.PrimaryAction != nil {
			next = string(task.PrimaryAction.ActionKind())
		}
		data.Rows = append(data.Rows, map[string]string{
			"Domain":      string(task.Domain),
			"Subject":     task.Subtitle,
			"Stage":       string(task.Stage),
			"Title":       task.Title,
			"Detail":      task.Detail,
			"Next action": next,
			"Updated":     task.Timestamps.UpdatedAt.Format(time.RFC3339),
		})
	}

	body, err := renderer.Render(data)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render interview queue")
	}
	return &TaskExport{
		Filename:    fmt.Sprintf("interview-queue-%s.%s", generatedAt.Format("20060102"), f),
		ContentType: f.ContentType(),
		Body:        body,
	}, nil
}

func (s *InterviewTaskService) loadSubject(ctx context.Context, ref workflow.SubjectRef) (workflow.Subject, error) {
	switch ref.Domain {
	case models.DomainReadiness:
		gate, err := s.store.GetGate(ctx, ref.ID)
		if err != nil {
			return nil, readError(err, "interview gate not found")
		}
		return workflow.ReadinessSubject{Gate: *gate}, nil
	case models.DomainHiring:
		app, err := s.store.GetApplication(ctx, ref.ID)
		if err != nil {
			return nil, readError(err, "application not found")
		}
		return workflow.HiringSubject{Application: *app}, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("unknown interview domain %q", ref.Domain))
}

func readError(err error, notFound string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return appErrors.Internal(err, "failed to load interview subject")
}

func subjectsOf(gates []models.InstructorInterviewGate, apps []models.Application) []workflow.Subject {
	subjects := make([]workflow.Subject, 0, len(gates)+len(apps))
	for _, gate := range gates {
		subjects = append(subjects, workflow.ReadinessSubject{Gate: gate})
	}
	for _, app := range apps {
		subjects = append(subjects, workflow.HiringSubject{Application: app})
	}
	return subjects
}

// loadSnapshots fetches slots, requests and notes for every subject with one query per kind.
func (s *InterviewTaskService) loadSnapshots(ctx context.Context, subjects []workflow.Subject) ([]workflow.Snapshot, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveDBQuery("task_snapshots", time.Since(start)) }()

	var gateIDs, appIDs []string
	for _, subject := range subjects {
		ref := subject.Ref()
		if ref.Domain == models.DomainReadiness {
			gateIDs = append(gateIDs, ref.ID)
		} else {
			appIDs = append(appIDs, ref.ID)
		}
	}

	slots := make(map[string][]models.InterviewSlot)
	requests := make(map[string][]models.AvailabilityRequest)
	notes := make(map[string][]models.DecisionNote)

	gateSlots, err := s.store.ListSlotsBySubjects(ctx, models.DomainReadiness, gateIDs)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load interview slots")
	}
	appSlots, err := s.store.ListSlotsBySubjects(ctx, models.DomainHiring, appIDs)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load interview slots")
	}
	for _, slot := range append(gateSlots, appSlots...) {
		key := workflow.SubjectRef{Domain: slot.Domain, ID: slot.SubjectID}.Key()
		slots[key] = append(slots[key], slot)
	}

	gateRequests, err := s.store.ListRequestsByGates(ctx, gateIDs)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load availability requests")
	}
	for _, req := range gateRequests {
		requests[req.GateID] = append(requests[req.GateID], req)
	}

	appNotes, err := s.store.ListNotesByApplications(ctx, appIDs)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load application notes")
	}
	for _, note := range appNotes {
		notes[note.ApplicationID] = append(notes[note.ApplicationID], note)
	}

	snaps := make([]workflow.Snapshot, 0, len(subjects))
	for _, subject := range subjects {
		ref := subject.Ref()
		snap := workflow.Snapshot{Subject: subject, Slots: slots[ref.Key()]}
		if ref.Domain == models.DomainReadiness {
			snap.Requests = requests[ref.ID]
		} else {
			snap.Notes = notes[ref.ID]
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

func (s *InterviewTaskService) projectAll(ctx context.Context, subjects []workflow.Subject, viewer models.ViewerRole) ([]models.InterviewTask, error) {
	snaps, err := s.loadSnapshots(ctx, subjects)
	if err != nil {
		return nil, err
	}
	tasks := make([]models.InterviewTask, 0, len(snaps))
	for _, snap := range snaps {
		task, err := workflow.Project(snap, viewer, s.defaults)
		if err != nil {
			s.logger.Warn("skipping unprojectable subject", zap.String("subject", snap.Subject.Ref().Key()), zap.Error(err))
			continue
		}
		tasks = append(tasks, task)
	}
	sortTasks(tasks)
	return tasks, nil
}

// sortTasks orders by stage urgency, then oldest activity first.
func sortTasks(tasks []models.InterviewTask) {
	sort.SliceStable(tasks, func(i, j int) bool {
		ri, rj := tasks[i].Stage.Rank(), tasks[j].Stage.Rank()
		if ri != rj {
			return ri < rj
		}
		ui, uj := tasks[i].Timestamps.UpdatedAt, tasks[j].Timestamps.UpdatedAt
		if !ui.Equal(uj) {
			return ui.Before(uj)
		}
		return tasks[i].ID < tasks[j].ID
	})
}
