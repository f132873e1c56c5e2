// internal/handlers/admin.go
package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/partner-engine/internal/i18n"
	"github.com/javajoker/partner-engine/internal/models"
	"github.com/javajoker/partner-engine/internal/repository"
	"github.com/javajoker/partner-engine/internal/services"
	"github.com/javajoker/partner-engine/internal/utils"
)

// AdminHandler serves the back-office reads and the catalog feed.
type AdminHandler struct {
	catalogService *services.CatalogService
	clickService   *services.ClickService
	auditService   *services.AuditService
}

func NewAdminHandler(catalogService *services.CatalogService, clickService *services.ClickService, auditService *services.AuditService) *AdminHandler {
	return &AdminHandler{
		catalogService: catalogService,
		clickService:   clickService,
		auditService:   auditService,
	}
}

// PUT /v1/admin/catalog
func (h *AdminHandler) UpsertCatalogItem(c *gin.Context) {
	var req services.UpsertCatalogItemRequest
	if !bindJSON(c, &req) {
		return
	}

	item, err := h.catalogService.Upsert(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err, i18n.KeyResourceCatalog)
		return
	}
	utils.SuccessResponse(c, item)
}

// GET /v1/admin/catalog/:target_type/:target_id
func (h *AdminHandler) GetCatalogItem(c *gin.Context) {
	item, err := h.catalogService.Get(c.Request.Context(), models.TargetType(c.Param("target_type")), c.Param("target_id"))
	if err != nil {
		respondError(c, err, i18n.KeyResourceCatalog)
		return
	}
	utils.SuccessResponse(c, item)
}

// GET /v1/admin/clicks
func (h *AdminHandler) ListClicks(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	filter := repository.ClickFilter{
		PaginationParams: params,
		PartnerID:        queryUUID(c, "partner_id"),
		LinkID:           queryUUID(c, "link_id"),
		From:             queryTime(c, "from"),
		To:               queryTime(c, "to"),
	}

	clicks, total, err := h.clickService.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err, i18n.KeyResourceClick)
		return
	}

	result := utils.CreatePaginationResult(clicks, total, params)
	utils.PaginatedResponse(c, result)
}

// GET /v1/admin/audit-logs
func (h *AdminHandler) ListAuditLogs(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	filter := repository.AuditFilter{
		PaginationParams: params,
		SubjectType:      c.Query("subject_type"),
		SubjectID:        queryUUID(c, "subject_id"),
		Actor:            c.Query("actor"),
	}

	entries, total, err := h.auditService.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err, i18n.KeyResourceRecord)
		return
	}

	result := utils.CreatePaginationResult(entries, total, params)
	utils.PaginatedResponse(c, result)
}

func queryTime(c *gin.Context, name string) *time.Time {
	if raw := c.Query(name); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return &t
		}
	}
	return nil
}
