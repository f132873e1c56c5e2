// internal/handlers/redirect.go
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/partner-engine/internal/config"
	"github.com/javajoker/partner-engine/internal/services"
	"github.com/javajoker/partner-engine/internal/utils"
)

// clickEnqueuer is the part of the click queue the redirect needs.
type clickEnqueuer interface {
	Enqueue(in services.ClickInput) bool
}

type RedirectHandler struct {
	linkService  *services.LinkService
	clicks       clickEnqueuer
	fingerprints *services.Fingerprinter
	config       config.AttributionConfig
}

func NewRedirectHandler(linkService *services.LinkService, clicks clickEnqueuer, fingerprints *services.Fingerprinter, cfg config.AttributionConfig) *RedirectHandler {
	return &RedirectHandler{
		linkService:  linkService,
		clicks:       clicks,
		fingerprints: fingerprints,
		config:       cfg,
	}
}

// GET /l/:code
func (h *RedirectHandler) Redirect(c *gin.Context) {
	now := time.Now()
	code := c.Param("code")

	link, err := h.linkService.Resolve(c.Request.Context(), code, now)
	if err != nil {
		respondError(c, err, "")
		return
	}

	visitorID, err := c.Cookie(h.config.VisitorCookie)
	if errors.Is(err, http.ErrNoCookie) || visitorID == "" {
		visitorID, err = utils.GenerateVisitorID()
		if err != nil {
			logrus.WithError(err).Error("Failed to generate visitor id")
			utils.InternalErrorResponse(c, "")
			return
		}
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(h.config.VisitorCookie, visitorID, h.config.CookieMaxAge, "/", "", c.Request.TLS != nil, true)
	}

	// The redirect never waits on the click write
	h.clicks.Enqueue(services.ClickInput{
		Code:        link.ShortCode,
		Fingerprint: h.fingerprints.Visitor(visitorID),
		SessionID:   c.Query("sid"),
		IPHash:      h.fingerprints.IP(c.ClientIP()),
		UserAgent:   c.Request.UserAgent(),
		Referrer:    c.Request.Referer(),
		At:          now,
	})

	c.Header("Cache-Control", "no-store")
	c.Redirect(http.StatusFound, link.TargetURL)
}
