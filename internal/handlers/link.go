// internal/handlers/link.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/partner-engine/internal/i18n"
	"github.com/javajoker/partner-engine/internal/models"
	"github.com/javajoker/partner-engine/internal/services"
	"github.com/javajoker/partner-engine/internal/utils"
)

type LinkHandler struct {
	linkService *services.LinkService
}

func NewLinkHandler(linkService *services.LinkService) *LinkHandler {
	return &LinkHandler{linkService: linkService}
}

type linkResponse struct {
	*models.PartnerLink
	ShortURL string `json:"short_url"`
}

type linkStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active paused archived"`
}

func (h *LinkHandler) present(link *models.PartnerLink) linkResponse {
	return linkResponse{PartnerLink: link, ShortURL: h.linkService.ShortURL(link)}
}

// POST /v1/admin/links
// POST /v1/partner/:partner_id/links
func (h *LinkHandler) CreateLink(c *gin.Context) {
	var req services.CreateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		lang := utils.GetLangFromContext(c)
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	// Partner routes always create links for the token's partner
	if c.Param("partner_id") != "" {
		id, ok := pathID(c, "partner_id")
		if !ok {
			return
		}
		req.PartnerID = id
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	link, err := h.linkService.CreateLink(c.Request.Context(), &req, actorFrom(c))
	if err != nil {
		respondError(c, err, i18n.KeyResourceLink)
		return
	}
	utils.CreatedResponse(c, h.present(link))
}

// GET /v1/admin/links/:id
func (h *LinkHandler) GetLink(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	link, err := h.linkService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, i18n.KeyResourceLink)
		return
	}
	utils.SuccessResponse(c, h.present(link))
}

// GET /v1/admin/partners/:id/links
// GET /v1/partner/:partner_id/links
func (h *LinkHandler) ListPartnerLinks(c *gin.Context) {
	partnerID, ok := partnerParam(c)
	if !ok {
		return
	}
	params := utils.GetPaginationParams(c)

	links, total, err := h.linkService.ListByPartner(c.Request.Context(), partnerID, params)
	if err != nil {
		respondError(c, err, i18n.KeyResourceLink)
		return
	}

	presented := make([]linkResponse, 0, len(links))
	for i := range links {
		presented = append(presented, h.present(&links[i]))
	}
	result := utils.CreatePaginationResult(presented, total, params)
	utils.PaginatedResponse(c, result)
}

// PATCH /v1/admin/links/:id/status
func (h *LinkHandler) UpdateStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req linkStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	link, err := h.linkService.UpdateStatus(c.Request.Context(), id, models.LinkStatus(req.Status), actorFrom(c))
	if err != nil {
		respondError(c, err, i18n.KeyResourceLink)
		return
	}
	utils.SuccessResponse(c, h.present(link))
}
