package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edu-portal-api/internal/dto"
	"github.com/noah-isme/edu-portal-api/internal/models"
	"github.com/noah-isme/edu-portal-api/internal/service"
	"github.com/noah-isme/edu-portal-api/internal/workflow"
	"github.com/noah-isme/edu-portal-api/pkg/response"
)

type interviewService interface {
	PostSlots(ctx context.Context, actor models.ActingUser, ref workflow.SubjectRef, req dto.PostSlotsRequest) ([]models.InterviewSlot, error)
	ConfirmSlot(ctx context.Context, actor models.ActingUser, ref workflow.SubjectRef, slotID string) (*models.InterviewSlot, error)
	CompleteSlot(ctx context.Context, actor models.ActingUser, ref workflow.SubjectRef, slotID string, req dto.CompleteSlotRequest) (*models.InterviewSlot, error)
	CancelSlot(ctx context.Context, actor models.ActingUser, ref workflow.SubjectRef, slotID string) (*models.InterviewSlot, error)
	SaveRecommendation(ctx context.Context, actor models.ActingUser, applicationID string, req dto.RecommendationRequest) (*models.DecisionNote, error)
	SubmitAvailability(ctx context.Context, actor models.ActingUser, gateID string, req dto.SubmitAvailabilityRequest) (*models.AvailabilityRequest, error)
	CancelAvailability(ctx context.Context, actor models.ActingUser, gateID, requestID string) (*models.AvailabilityRequest, error)
	AcceptAvailability(ctx context.Context, actor models.ActingUser, gateID, requestID string, req dto.AcceptAvailabilityRequest) (*service.AvailabilityAcceptance, error)
	DeclineAvailability(ctx context.Context, actor models.ActingUser, gateID, requestID string, req dto.DeclineAvailabilityRequest) (*models.AvailabilityRequest, error)
	SetOutcome(ctx context.Context, actor models.ActingUser, gateID string, req dto.SetOutcomeRequest) (*models.InstructorInterviewGate, error)
	CompleteInterviewWithOutcome(ctx context.Context, actor models.ActingUser, gateID, slotID string, req dto.CompleteWithOutcomeRequest) (*service.OutcomeResult, error)
}

// InterviewHandler exposes slot, availability and outcome mutations.
type InterviewHandler struct {
	service interviewService
}

// NewInterviewHandler constructs the handler.
func NewInterviewHandler(svc interviewService) *InterviewHandler {
	return &InterviewHandler{service: svc}
}

// PostSlots godoc
// @Summary Post interview slots
// @Description Offers one or more explicit interview times to the subject
// @Tags Interviews
// @Accept json
// @Produce json
// @Param domain path string true "hiring or readiness"
// @Param id path string true "Application or gate ID"
// @Param payload body dto.PostSlotsRequest true "Slots"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /interviews/{domain}/{id}/slots [post]
func (h *InterviewHandler) PostSlots(domain models.InterviewDomain) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actingUser(c)
		if !ok {
			return
		}
		ids, ok := pathIDs(c, "id")
		if !ok {
			return
		}
		var req dto.PostSlotsRequest
		if !bindJSON(c, &req) {
			return
		}
		slots, err := h.service.PostSlots(c.Request.Context(), actor, workflow.SubjectRef{Domain: domain, ID: ids[0]}, req)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Created(c, slots)
	}
}

// ConfirmSlot godoc
// @Summary Confirm a posted slot
// @Tags Interviews
// @Produce json
// @Param domain path string true "hiring or readiness"
// @Param id path string true "Application or gate ID"
// @Param slotId path string true "Slot ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /interviews/{domain}/{id}/slots/{slotId}/confirm [post]
func (h *InterviewHandler) ConfirmSlot(domain models.InterviewDomain) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actingUser(c)
		if !ok {
			return
		}
		ids, ok := pathIDs(c, "id", "slotId")
		if !ok {
			return
		}
		slot, err := h.service.ConfirmSlot(c.Request.Context(), actor, workflow.SubjectRef{Domain: domain, ID: ids[0]}, ids[1])
		if err != nil {
			response.Error(c, err)
			return
		}
		response.OK(c, slot)
	}
}

// CompleteSlot godoc
// @Summary Complete the confirmed interview
// @Description Hiring completions may carry a recommendation
// @Tags Interviews
// @Accept json
// @Produce json
// @Param domain path string true "hiring or readiness"
// @Param id path string true "Application or gate ID"
// @Param slotId path string true "Slot ID"
// @Param payload body dto.CompleteSlotRequest false "Optional recommendation"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /interviews/{domain}/{id}/slots/{slotId}/complete [post]
func (h *InterviewHandler) CompleteSlot(domain models.InterviewDomain) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actingUser(c)
		if !ok {
			return
		}
		ids, ok := pathIDs(c, "id", "slotId")
		if !ok {
			return
		}
		var req dto.CompleteSlotRequest
		if !bindOptionalJSON(c, &req) {
			return
		}
		slot, err := h.service.CompleteSlot(c.Request.Context(), actor, workflow.SubjectRef{Domain: domain, ID: ids[0]}, ids[1], req)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.OK(c, slot)
	}
}

// CancelSlot godoc
// @Summary Cancel a posted or confirmed slot
// @Tags Interviews
// @Produce json
// @Param domain path string true "hiring or readiness"
// @Param id path string true "Application or gate ID"
// @Param slotId path string true "Slot ID"
// @Success 200 {object} response.Envelope
// @Router /interviews/{domain}/{id}/slots/{slotId}/cancel [post]
func (h *InterviewHandler) CancelSlot(domain models.InterviewDomain) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actingUser(c)
		if !ok {
			return
		}
		ids, ok := pathIDs(c, "id", "slotId")
		if !ok {
			return
		}
		slot, err := h.service.CancelSlot(c.Request.Context(), actor, workflow.SubjectRef{Domain: domain, ID: ids[0]}, ids[1])
		if err != nil {
			response.Error(c, err)
			return
		}
		response.OK(c, slot)
	}
}

// SaveRecommendation godoc
// @Summary Add a hiring recommendation
// @Tags Interviews
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.RecommendationRequest true "Recommendation"
// @Success 201 {object} response.Envelope
// @Router /interviews/hiring/{id}/recommendation [post]
func (h *InterviewHandler) SaveRecommendation(c *gin.Context) {
	actor, ok := actingUser(c)
	if !ok {
		return
	}
	ids, ok := pathIDs(c, "id")
	if !ok {
		return
	}
	var req dto.RecommendationRequest
	if !bindJSON(c, &req) {
		return
	}
	note, err := h.service.SaveRecommendation(c.Request.Context(), actor, ids[0], req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, note)
}

// SubmitAvailability godoc
// @Summary Submit preferred interview times
// @Tags Interviews
// @Accept json
// @Produce json
// @Param id path string true "Gate ID"
// @Param payload body dto.SubmitAvailabilityRequest true "Preferred windows"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /interviews/readiness/{id}/availability [post]
func (h *InterviewHandler) SubmitAvailability(c *gin.Context) {
	actor, ok := actingUser(c)
	if !ok {
		return
	}
	ids, ok := pathIDs(c, "id")
	if !ok {
		return
	}
	var req dto.SubmitAvailabilityRequest
	if !bindJSON(c, &req) {
		return
	}
	request, err := h.service.SubmitAvailability(c.Request.Context(), actor, ids[0], req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, request)
}

// CancelAvailability godoc
// @Summary Withdraw a pending availability request
// @Tags Interviews
// @Produce json
// @Param id path string true "Gate ID"
// @Param requestId path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /interviews/readiness/{id}/availability/{requestId}/cancel [post]
func (h *InterviewHandler) CancelAvailability(c *gin.Context) {
	actor, ok := actingUser(c)
	if !ok {
		return
	}
	ids, ok := pathIDs(c, "id", "requestId")
	if !ok {
		return
	}
	request, err := h.service.CancelAvailability(c.Request.Context(), actor, ids[0], ids[1])
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, request)
}

// AcceptAvailability godoc
// @Summary Accept an availability request
// @Description Creates the confirmed slot and declines the other pending requests
// @Tags Interviews
// @Accept json
// @Produce json
// @Param id path string true "Gate ID"
// @Param requestId path string true "Request ID"
// @Param payload body dto.AcceptAvailabilityRequest true "Confirmed time"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /interviews/readiness/{id}/availability/{requestId}/accept [post]
func (h *InterviewHandler) AcceptAvailability(c *gin.Context) {
	actor, ok := actingUser(c)
	if !ok {
		return
	}
	ids, ok := pathIDs(c, "id", "requestId")
	if !ok {
		return
	}
	var req dto.AcceptAvailabilityRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.service.AcceptAvailability(c.Request.Context(), actor, ids[0], ids[1], req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// DeclineAvailability godoc
// @Summary Decline an availability request
// @Tags Interviews
// @Accept json
// @Produce json
// @Param id path string true "Gate ID"
// @Param requestId path string true "Request ID"
// @Param payload body dto.DeclineAvailabilityRequest false "Reason"
// @Success 200 {object} response.Envelope
// @Router /interviews/readiness/{id}/availability/{requestId}/decline [post]
func (h *InterviewHandler) DeclineAvailability(c *gin.Context) {
	actor, ok := actingUser(c)
	if !ok {
		return
	}
	ids, ok := pathIDs(c, "id", "requestId")
	if !ok {
		return
	}
	var req dto.DeclineAvailabilityRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	request, err := h.service.DeclineAvailability(c.Request.Context(), actor, ids[0], ids[1], req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, request)
}

// SetOutcome godoc
// @Summary Record the readiness interview outcome
// @Tags Interviews
// @Accept json
// @Produce json
// @Param id path string true "Gate ID"
// @Param payload body dto.SetOutcomeRequest true "Outcome"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /interviews/readiness/{id}/outcome [post]
func (h *InterviewHandler) SetOutcome(c *gin.Context) {
	actor, ok := actingUser(c)
	if !ok {
		return
	}
	ids, ok := pathIDs(c, "id")
	if !ok {
		return
	}
	var req dto.SetOutcomeRequest
	if !bindJSON(c, &req) {
		return
	}
	gate, err := h.service.SetOutcome(c.Request.Context(), actor, ids[0], req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gate)
}

// CompleteWithOutcome godoc
// @Summary Complete the interview and record the outcome
// @Tags Interviews
// @Accept json
// @Produce json
// @Param id path string true "Gate ID"
// @Param slotId path string true "Slot ID"
// @Param payload body dto.CompleteWithOutcomeRequest true "Outcome"
// @Success 200 {object} response.Envelope
// @Router /interviews/readiness/{id}/slots/{slotId}/complete-with-outcome [post]
func (h *InterviewHandler) CompleteWithOutcome(c *gin.Context) {
	actor, ok := actingUser(c)
	if !ok {
		return
	}
	ids, ok := pathIDs(c, "id", "slotId")
	if !ok {
		return
	}
	var req dto.CompleteWithOutcomeRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.service.CompleteInterviewWithOutcome(c.Request.Context(), actor, ids[0], ids[1], req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}
