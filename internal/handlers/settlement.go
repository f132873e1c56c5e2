// internal/handlers/settlement.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/partner-engine/internal/i18n"
	"github.com/javajoker/partner-engine/internal/models"
	"github.com/javajoker/partner-engine/internal/repository"
	"github.com/javajoker/partner-engine/internal/services"
	"github.com/javajoker/partner-engine/internal/utils"
)

type SettlementHandler struct {
	settlementService *services.SettlementService
}

func NewSettlementHandler(settlementService *services.SettlementService) *SettlementHandler {
	return &SettlementHandler{settlementService: settlementService}
}

type markPaidRequest struct {
	PayoutRef string `json:"payout_ref" validate:"required,max=255"`
}

// POST /v1/admin/settlements
func (h *SettlementHandler) Open(c *gin.Context) {
	var req services.OpenBatchRequest
	if !bindJSON(c, &req) {
		return
	}

	batch, err := h.settlementService.OpenBatch(c.Request.Context(), &req, actorFrom(c))
	if err != nil {
		respondError(c, err, i18n.KeyResourceSettlement)
		return
	}
	utils.CreatedResponse(c, batch)
}

// GET /v1/admin/settlements
// GET /v1/partner/:partner_id/settlements
func (h *SettlementHandler) List(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	filter := repository.BatchFilter{
		PaginationParams: params,
		PartnerID:        scopedPartnerID(c),
		PeriodKey:        c.Query("period"),
	}
	if status := c.Query("status"); status != "" {
		batchStatus := models.BatchStatus(status)
		filter.Status = &batchStatus
	}

	batches, total, err := h.settlementService.ListBatches(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err, i18n.KeyResourceSettlement)
		return
	}

	result := utils.CreatePaginationResult(batches, total, params)
	utils.PaginatedResponse(c, result)
}

// GET /v1/admin/settlements/:id
func (h *SettlementHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	batch, err := h.settlementService.GetBatch(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, i18n.KeyResourceSettlement)
		return
	}
	utils.SuccessResponse(c, batch)
}

// POST /v1/admin/settlements/:id/close
func (h *SettlementHandler) Close(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	batch, err := h.settlementService.CloseBatch(c.Request.Context(), id, actorFrom(c))
	if err != nil {
		respondError(c, err, i18n.KeyResourceSettlement)
		return
	}
	utils.SuccessResponse(c, batch)
}

// POST /v1/admin/settlements/:id/pay
func (h *SettlementHandler) Pay(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	batch, err := h.settlementService.PayBatch(c.Request.Context(), id, actorFrom(c))
	if err != nil {
		respondError(c, err, i18n.KeyResourceSettlement)
		return
	}
	utils.SuccessResponse(c, batch)
}

// POST /v1/admin/settlements/:id/mark-paid
func (h *SettlementHandler) MarkPaid(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req markPaidRequest
	if !bindJSON(c, &req) {
		return
	}

	batch, err := h.settlementService.MarkPaid(c.Request.Context(), id, req.PayoutRef, actorFrom(c))
	if err != nil {
		respondError(c, err, i18n.KeyResourceSettlement)
		return
	}
	utils.SuccessResponse(c, batch)
}

// POST /v1/admin/settlements/:id/mark-failed
func (h *SettlementHandler) MarkFailed(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req reasonRequest
	if !bindJSON(c, &req) {
		return
	}

	batch, err := h.settlementService.MarkFailed(c.Request.Context(), id, req.Reason, actorFrom(c))
	if err != nil {
		respondError(c, err, i18n.KeyResourceSettlement)
		return
	}
	utils.SuccessResponse(c, batch)
}

// GET /v1/admin/settlements/:id/items
func (h *SettlementHandler) Items(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	batch, items, err := h.settlementService.Items(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, i18n.KeyResourceSettlement)
		return
	}
	utils.SuccessResponseWithMeta(c, items, gin.H{
		"batch_id": batch.ID,
		"status":   batch.Status,
		"total":    batch.TotalAmount,
		"currency": batch.Currency,
		"count":    len(items),
	})
}

// POST /v1/admin/settlements/:id/export
func (h *SettlementHandler) Export(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	upload, err := h.settlementService.Export(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, i18n.KeyResourceSettlement)
		return
	}
	utils.CreatedResponse(c, upload)
}
