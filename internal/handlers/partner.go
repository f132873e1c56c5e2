// internal/handlers/partner.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/javajoker/partner-engine/internal/i18n"
	"github.com/javajoker/partner-engine/internal/models"
	"github.com/javajoker/partner-engine/internal/repository"
	"github.com/javajoker/partner-engine/internal/services"
	"github.com/javajoker/partner-engine/internal/utils"
)

type PartnerHandler struct {
	partnerService *services.PartnerService
}

func NewPartnerHandler(partnerService *services.PartnerService) *PartnerHandler {
	return &PartnerHandler{partnerService: partnerService}
}

type changeTierRequest struct {
	Tier   string `json:"tier" validate:"required,oneof=bronze silver gold platinum"`
	Reason string `json:"reason" validate:"max=500"`
}

// POST /v1/admin/partners
func (h *PartnerHandler) Register(c *gin.Context) {
	var req services.RegisterPartnerRequest
	if !bindJSON(c, &req) {
		return
	}

	partner, err := h.partnerService.Register(c.Request.Context(), &req, actorFrom(c))
	if err != nil {
		respondError(c, err, i18n.KeyResourcePartner)
		return
	}
	utils.CreatedResponse(c, partner)
}

// GET /v1/admin/partners
func (h *PartnerHandler) List(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	filter := repository.PartnerFilter{PaginationParams: params}

	if status := c.Query("status"); status != "" {
		partnerStatus := models.PartnerStatus(status)
		filter.Status = &partnerStatus
	}
	if tier := c.Query("tier"); tier != "" {
		partnerTier := models.PartnerTier(tier)
		filter.Tier = &partnerTier
	}

	partners, total, err := h.partnerService.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err, i18n.KeyResourcePartner)
		return
	}

	result := utils.CreatePaginationResult(partners, total, params)
	utils.PaginatedResponse(c, result)
}

// GET /v1/admin/partners/:id
// GET /v1/partner/:partner_id
func (h *PartnerHandler) Get(c *gin.Context) {
	id, ok := partnerParam(c)
	if !ok {
		return
	}

	partner, err := h.partnerService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, i18n.KeyResourcePartner)
		return
	}
	utils.SuccessResponse(c, partner)
}

// PUT /v1/admin/partners/:id
func (h *PartnerHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req services.UpdatePartnerRequest
	if !bindJSON(c, &req) {
		return
	}

	partner, err := h.partnerService.Update(c.Request.Context(), id, &req, actorFrom(c))
	if err != nil {
		respondError(c, err, i18n.KeyResourcePartner)
		return
	}
	utils.SuccessResponse(c, partner)
}

// POST /v1/admin/partners/:id/approve
func (h *PartnerHandler) Approve(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	partner, err := h.partnerService.Approve(c.Request.Context(), id, actorFrom(c))
	if err != nil {
		respondError(c, err, i18n.KeyResourcePartner)
		return
	}
	utils.SuccessResponse(c, partner)
}

// POST /v1/admin/partners/:id/suspend
func (h *PartnerHandler) Suspend(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req reasonRequest
	if !bindJSON(c, &req) {
		return
	}

	partner, err := h.partnerService.Suspend(c.Request.Context(), id, req.Reason, actorFrom(c))
	if err != nil {
		respondError(c, err, i18n.KeyResourcePartner)
		return
	}
	utils.SuccessResponse(c, partner)
}

// POST /v1/admin/partners/:id/reinstate
func (h *PartnerHandler) Reinstate(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	partner, err := h.partnerService.Reinstate(c.Request.Context(), id, actorFrom(c))
	if err != nil {
		respondError(c, err, i18n.KeyResourcePartner)
		return
	}
	utils.SuccessResponse(c, partner)
}

// PUT /v1/admin/partners/:id/tier
func (h *PartnerHandler) ChangeTier(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req changeTierRequest
	if !bindJSON(c, &req) {
		return
	}

	partner, err := h.partnerService.ChangeTier(c.Request.Context(), id, models.PartnerTier(req.Tier), req.Reason, actorFrom(c))
	if err != nil {
		respondError(c, err, i18n.KeyResourcePartner)
		return
	}
	utils.SuccessResponse(c, partner)
}

// GET /v1/admin/partners/:id/stats
// GET /v1/partner/:partner_id/stats
func (h *PartnerHandler) Stats(c *gin.Context) {
	id, ok := partnerParam(c)
	if !ok {
		return
	}

	stats, err := h.partnerService.Stats(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, i18n.KeyResourcePartner)
		return
	}
	utils.SuccessResponse(c, stats)
}

// partnerParam reads the partner id from either the admin or the partner
// route shape.
func partnerParam(c *gin.Context) (uuid.UUID, bool) {
	if c.Param("partner_id") != "" {
		return pathID(c, "partner_id")
	}
	return pathID(c, "id")
}
