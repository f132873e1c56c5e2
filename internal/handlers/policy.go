// internal/handlers/policy.go
package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/javajoker/partner-engine/internal/i18n"
	"github.com/javajoker/partner-engine/internal/models"
	"github.com/javajoker/partner-engine/internal/repository"
	"github.com/javajoker/partner-engine/internal/services"
	"github.com/javajoker/partner-engine/internal/utils"
)

type PolicyHandler struct {
	policyService *services.PolicyService
}

func NewPolicyHandler(policyService *services.PolicyService) *PolicyHandler {
	return &PolicyHandler{policyService: policyService}
}

type policyStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=draft active inactive scheduled expired"`
}

// POST /v1/admin/policies
func (h *PolicyHandler) Create(c *gin.Context) {
	var req services.PolicyRequest
	if !bindJSON(c, &req) {
		return
	}

	policy, err := h.policyService.Create(c.Request.Context(), &req, actorFrom(c))
	if err != nil {
		respondError(c, err, i18n.KeyResourcePolicy)
		return
	}
	utils.CreatedResponse(c, policy)
}

// GET /v1/admin/policies
func (h *PolicyHandler) List(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	filter := repository.PolicyFilter{
		PaginationParams: params,
		PartnerID:        queryUUID(c, "partner_id"),
	}

	if status := c.Query("status"); status != "" {
		policyStatus := models.PolicyStatus(status)
		filter.Status = &policyStatus
	}
	if policyType := c.Query("policy_type"); policyType != "" {
		t := models.PolicyType(policyType)
		filter.PolicyType = &t
	}
	if approval := c.Query("approval_status"); approval != "" {
		approvalStatus := models.ApprovalStatus(approval)
		filter.ApprovalStatus = &approvalStatus
	}

	policies, total, err := h.policyService.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err, i18n.KeyResourcePolicy)
		return
	}

	result := utils.CreatePaginationResult(policies, total, params)
	utils.PaginatedResponse(c, result)
}

// GET /v1/admin/policies/:id
func (h *PolicyHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	policy, err := h.policyService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, i18n.KeyResourcePolicy)
		return
	}
	utils.SuccessResponse(c, policy)
}

// PUT /v1/admin/policies/:id
func (h *PolicyHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req services.UpdatePolicyRequest
	if !bindJSON(c, &req) {
		return
	}

	policy, err := h.policyService.Update(c.Request.Context(), id, &req, actorFrom(c))
	if err != nil {
		respondError(c, err, i18n.KeyResourcePolicy)
		return
	}
	utils.SuccessResponse(c, policy)
}

// PATCH /v1/admin/policies/:id/status
func (h *PolicyHandler) SetStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req policyStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	policy, err := h.policyService.SetStatus(c.Request.Context(), id, models.PolicyStatus(req.Status), actorFrom(c))
	if err != nil {
		respondError(c, err, i18n.KeyResourcePolicy)
		return
	}
	utils.SuccessResponse(c, policy)
}

// POST /v1/admin/policies/:id/approval/request
func (h *PolicyHandler) RequestApproval(c *gin.Context) {
	h.withNote(c, h.policyService.RequestApproval)
}

// POST /v1/admin/policies/:id/approval/approve
func (h *PolicyHandler) Approve(c *gin.Context) {
	h.withNote(c, h.policyService.Approve)
}

// POST /v1/admin/policies/:id/approval/reject
func (h *PolicyHandler) Reject(c *gin.Context) {
	h.withReason(c, h.policyService.Reject)
}

// POST /v1/admin/policies/:id/approval/revoke
func (h *PolicyHandler) Revoke(c *gin.Context) {
	h.withReason(c, h.policyService.Revoke)
}

// POST /v1/admin/policies/:id/approval/cancel
func (h *PolicyHandler) CancelApproval(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	policy, err := h.policyService.CancelApproval(c.Request.Context(), id, actorFrom(c))
	if err != nil {
		respondError(c, err, i18n.KeyResourcePolicy)
		return
	}
	utils.SuccessResponse(c, policy)
}

type approvalAction func(ctx context.Context, id uuid.UUID, text string, actor services.Actor) (*models.CommissionPolicy, error)

func (h *PolicyHandler) withNote(c *gin.Context, action approvalAction) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	// The note is optional, so an empty body is accepted
	var req noteRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}

	policy, err := action(c.Request.Context(), id, req.Note, actorFrom(c))
	if err != nil {
		respondError(c, err, i18n.KeyResourcePolicy)
		return
	}
	utils.SuccessResponse(c, policy)
}

func (h *PolicyHandler) withReason(c *gin.Context, action approvalAction) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req reasonRequest
	if !bindJSON(c, &req) {
		return
	}

	policy, err := action(c.Request.Context(), id, req.Reason, actorFrom(c))
	if err != nil {
		respondError(c, err, i18n.KeyResourcePolicy)
		return
	}
	utils.SuccessResponse(c, policy)
}
