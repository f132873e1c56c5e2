// internal/handlers/commission.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/partner-engine/internal/i18n"
	"github.com/javajoker/partner-engine/internal/models"
	"github.com/javajoker/partner-engine/internal/repository"
	"github.com/javajoker/partner-engine/internal/services"
	"github.com/javajoker/partner-engine/internal/utils"
)

type CommissionHandler struct {
	commissionService  *services.CommissionService
	attributionService *services.AttributionService
}

func NewCommissionHandler(commissionService *services.CommissionService, attributionService *services.AttributionService) *CommissionHandler {
	return &CommissionHandler{
		commissionService:  commissionService,
		attributionService: attributionService,
	}
}

// GET /v1/admin/commissions
// GET /v1/partner/:partner_id/commissions
func (h *CommissionHandler) List(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	filter := repository.CommissionFilter{
		PaginationParams: params,
		PartnerID:        scopedPartnerID(c),
		BatchID:          queryUUID(c, "batch_id"),
	}
	if status := c.Query("status"); status != "" {
		commissionStatus := models.CommissionStatus(status)
		filter.Status = &commissionStatus
	}

	commissions, total, err := h.commissionService.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err, i18n.KeyResourceCommission)
		return
	}

	result := utils.CreatePaginationResult(commissions, total, params)
	utils.PaginatedResponse(c, result)
}

// GET /v1/admin/commissions/:id
func (h *CommissionHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	commission, err := h.commissionService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, i18n.KeyResourceCommission)
		return
	}
	utils.SuccessResponse(c, commission)
}

// GET /v1/admin/commissions/totals?partner_id=
// GET /v1/partner/:partner_id/commissions/totals
func (h *CommissionHandler) Totals(c *gin.Context) {
	partnerID := scopedPartnerID(c)
	if partnerID == nil {
		lang := utils.GetLangFromContext(c)
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "partner_id"), nil)
		return
	}

	totals, err := h.commissionService.Totals(c.Request.Context(), *partnerID)
	if err != nil {
		respondError(c, err, i18n.KeyResourceCommission)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"partner_id": partnerID,
		"totals":     totals,
	})
}

// POST /v1/admin/commissions/:id/confirm
func (h *CommissionHandler) Confirm(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	commission, err := h.commissionService.Confirm(c.Request.Context(), id, actorFrom(c))
	if err != nil {
		respondError(c, err, i18n.KeyResourceCommission)
		return
	}
	utils.SuccessResponse(c, commission)
}

// POST /v1/admin/commissions/:id/cancel
func (h *CommissionHandler) Cancel(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req reasonRequest
	if !bindJSON(c, &req) {
		return
	}

	commission, err := h.commissionService.Cancel(c.Request.Context(), id, req.Reason, actorFrom(c))
	if err != nil {
		respondError(c, err, i18n.KeyResourceCommission)
		return
	}
	utils.SuccessResponse(c, commission)
}

// POST /v1/admin/commissions/:id/adjust
func (h *CommissionHandler) Adjust(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req services.AdjustCommissionRequest
	if !bindJSON(c, &req) {
		return
	}

	commission, err := h.commissionService.Adjust(c.Request.Context(), id, &req, actorFrom(c))
	if err != nil {
		respondError(c, err, i18n.KeyResourceCommission)
		return
	}
	utils.SuccessResponse(c, commission)
}

// GET /v1/admin/conversions
func (h *CommissionHandler) ListConversions(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	filter := repository.ConversionFilter{
		PaginationParams: params,
		PartnerID:        scopedPartnerID(c),
		OrderID:          c.Query("order_id"),
	}
	if status := c.Query("status"); status != "" {
		conversionStatus := models.ConversionStatus(status)
		filter.Status = &conversionStatus
	}

	conversions, total, err := h.attributionService.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err, i18n.KeyResourceConversion)
		return
	}

	result := utils.CreatePaginationResult(conversions, total, params)
	utils.PaginatedResponse(c, result)
}

// GET /v1/admin/conversions/:id
func (h *CommissionHandler) GetConversion(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	conversion, err := h.attributionService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, i18n.KeyResourceConversion)
		return
	}
	utils.SuccessResponse(c, conversion)
}

// POST /v1/admin/conversions/:id/resolve
func (h *CommissionHandler) ResolveConversion(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	commission, err := h.commissionService.ResolveConversion(c.Request.Context(), id, actorFrom(c))
	if err != nil {
		respondError(c, err, i18n.KeyResourceConversion)
		return
	}

	// A nil commission means no policy applied; the conversion says why
	conversion, err := h.attributionService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, i18n.KeyResourceConversion)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"conversion": conversion,
		"commission": commission,
	})
}
