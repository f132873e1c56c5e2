// internal/handlers/order_events.go
package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/partner-engine/internal/events"
	"github.com/javajoker/partner-engine/internal/i18n"
	"github.com/javajoker/partner-engine/internal/utils"
)

const maxEventBody = 1 << 20

type OrderEventHandler struct {
	handler events.OrderEventHandler
}

func NewOrderEventHandler(handler events.OrderEventHandler) *OrderEventHandler {
	return &OrderEventHandler{handler: handler}
}

// POST /v1/internal/order-events
func (h *OrderEventHandler) Ingest(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxEventBody))
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "body"), err.Error())
		return
	}

	eventType, event, err := events.DecodeOrderEvent(raw)
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "event"), err.Error())
		return
	}

	if err := h.handler.HandleOrderEvent(c.Request.Context(), eventType, event); err != nil {
		respondError(c, err, i18n.KeyResourceConversion)
		return
	}

	c.JSON(http.StatusAccepted, utils.APIResponse{
		Success: true,
		Data: gin.H{
			"type":     eventType,
			"order_id": event.OrderID,
		},
	})
}
