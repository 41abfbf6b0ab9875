package handler

import (
	"context"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edu-portal-api/internal/dto"
	"github.com/noah-isme/edu-portal-api/internal/models"
	"github.com/noah-isme/edu-portal-api/internal/service"
	"github.com/noah-isme/edu-portal-api/internal/workflow"
	appErrors "github.com/noah-isme/edu-portal-api/pkg/errors"
	"github.com/noah-isme/edu-portal-api/pkg/response"
)

const maxQueueLimit = 500

type taskService interface {
	Task(ctx context.Context, actor models.ActingUser, ref workflow.SubjectRef, view string) (*models.InterviewTask, error)
	MyTasks(ctx context.Context, actor models.ActingUser) ([]models.InterviewTask, error)
	Queue(ctx context.Context, actor models.ActingUser, query dto.TaskQuery) ([]models.InterviewTask, error)
	ExportQueue(ctx context.Context, actor models.ActingUser, query dto.TaskQuery, format string) (*service.TaskExport, error)
}

// TaskHandler serves projected interview tasks.
type TaskHandler struct {
	service taskService
}

// NewTaskHandler constructs the handler.
func NewTaskHandler(svc taskService) *TaskHandler {
	return &TaskHandler{service: svc}
}

// Task godoc
// @Summary Next step for one subject
// @Tags Tasks
// @Produce json
// @Param domain path string true "hiring or readiness"
// @Param id path string true "Application or gate ID"
// @Param view query string false "subject or reviewer"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /interviews/{domain}/{id}/task [get]
func (h *TaskHandler) Task(domain models.InterviewDomain) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actingUser(c)
		if !ok {
			return
		}
		ids, ok := pathIDs(c, "id")
		if !ok {
			return
		}
		task, err := h.service.Task(c.Request.Context(), actor, workflow.SubjectRef{Domain: domain, ID: ids[0]}, c.Query("view"))
		if err != nil {
			response.Error(c, err)
			return
		}
		response.OK(c, task)
	}
}

// MyTasks godoc
// @Summary The caller's own interview tasks
// @Tags Tasks
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /interviews/tasks/me [get]
func (h *TaskHandler) MyTasks(c *gin.Context) {
	actor, ok := actingUser(c)
	if !ok {
		return
	}
	tasks, err := h.service.MyTasks(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, tasks, map[string]interface{}{"total": len(tasks)})
}

// Queue godoc
// @Summary Reviewer queue
// @Description Open subjects the reviewer can act on, most urgent first
// @Tags Tasks
// @Produce json
// @Param domain query string false "hiring or readiness"
// @Param limit query int false "Maximum subjects per domain"
// @Success 200 {object} response.Envelope
// @Router /interviews/tasks/queue [get]
func (h *TaskHandler) Queue(c *gin.Context) {
	actor, ok := actingUser(c)
	if !ok {
		return
	}
	query, err := parseTaskQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	tasks, err := h.service.Queue(c.Request.Context(), actor, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, tasks, map[string]interface{}{"total": len(tasks)})
}

// ExportQueue godoc
// @Summary Download the reviewer queue
// @Tags Tasks
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf"
// @Param domain query string false "hiring or readiness"
// @Success 200 {file} file
// @Router /interviews/tasks/queue/export [get]
func (h *TaskHandler) ExportQueue(c *gin.Context) {
	actor, ok := actingUser(c)
	if !ok {
		return
	}
	query, err := parseTaskQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	out, err := h.service.ExportQueue(c.Request.Context(), actor, query, c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, out.Filename, out.ContentType, out.Body)
}

func parseTaskQuery(c *gin.Context) (dto.TaskQuery, error) {
	var query dto.TaskQuery
	if raw := strings.TrimSpace(c.Query("domain")); raw != "" {
		domain, err := models.ParseInterviewDomain(raw)
		if err != nil {
			return query, appErrors.Clone(appErrors.ErrValidation, err.Error())
		}
		query.Domain = &domain
	}
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxQueueLimit {
			return query, appErrors.Clone(appErrors.ErrValidation, "limit must be between 1 and "+strconv.Itoa(maxQueueLimit))
		}
		query.Limit = limit
	}
	return query, nil
}
