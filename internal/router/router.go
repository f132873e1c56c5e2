// internal/router/router.go
package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/javajoker/partner-engine/internal/config"
	"github.com/javajoker/partner-engine/internal/handlers"
	"github.com/javajoker/partner-engine/internal/middleware"
	"github.com/javajoker/partner-engine/internal/services"
)

// Services is everything the HTTP surface calls into.
type Services struct {
	Partners     *services.PartnerService
	Catalog      *services.CatalogService
	Links        *services.LinkService
	Clicks       *services.ClickService
	ClickQueue   *services.ClickQueue
	Fingerprints *services.Fingerprinter
	Attribution  *services.AttributionService
	Commissions  *services.CommissionService
	Policies     *services.PolicyService
	Settlements  *services.SettlementService
	Audit        *services.AuditService
}

func Initialize(svc Services, cfg *config.Config) *gin.Engine {
	// Initialize handlers
	redirectHandler := handlers.NewRedirectHandler(svc.Links, svc.ClickQueue, svc.Fingerprints, cfg.Attribution)
	orderEventHandler := handlers.NewOrderEventHandler(svc.Attribution)
	partnerHandler := handlers.NewPartnerHandler(svc.Partners)
	linkHandler := handlers.NewLinkHandler(svc.Links)
	policyHandler := handlers.NewPolicyHandler(svc.Policies)
	commissionHandler := handlers.NewCommissionHandler(svc.Commissions, svc.Attribution)
	settlementHandler := handlers.NewSettlementHandler(svc.Settlements)
	adminHandler := handlers.NewAdminHandler(svc.Catalog, svc.Clicks, svc.Audit)

	// Initialize Gin router
	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger())
	r.Use(cors.New(corsConfig(cfg.Server.AllowedOrigins)))
	r.Use(middleware.I18nMiddleware())

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	redirectLimit, apiLimit := rateLimits(cfg.RateLimit)

	// Public short links
	r.GET("/l/:code", redirectLimit, redirectHandler.Redirect)

	// API v1 routes
	v1 := r.Group("/v1")
	v1.Use(apiLimit, middleware.AuthRequired())
	{
		// Order system ingestion
		internal := v1.Group("/internal")
		internal.Use(middleware.ServiceOrAdmin())
		{
			internal.POST("/order-events", orderEventHandler.Ingest)
			internal.PUT("/catalog", adminHandler.UpsertCatalogItem)
		}

		admin := v1.Group("/admin")
		admin.Use(middleware.AdminRequired())
		{
			partners := admin.Group("/partners")
			{
				partners.POST("", partnerHandler.Register)
				partners.GET("", partnerHandler.List)
				partners.GET("/:id", partnerHandler.Get)
				partners.PUT("/:id", partnerHandler.Update)
				partners.POST("/:id/approve", partnerHandler.Approve)
				partners.POST("/:id/suspend", partnerHandler.Suspend)
				partners.POST("/:id/reinstate", partnerHandler.Reinstate)
				partners.PUT("/:id/tier", partnerHandler.ChangeTier)
				partners.GET("/:id/stats", partnerHandler.Stats)
				partners.GET("/:id/links", linkHandler.ListPartnerLinks)
			}

			catalog := admin.Group("/catalog")
			{
				catalog.PUT("", adminHandler.UpsertCatalogItem)
				catalog.GET("/:target_type/:target_id", adminHandler.GetCatalogItem)
			}

			links := admin.Group("/links")
			{
				links.POST("", linkHandler.CreateLink)
				links.GET("/:id", linkHandler.GetLink)
				links.PATCH("/:id/status", linkHandler.UpdateStatus)
			}

			admin.GET("/clicks", adminHandler.ListClicks)

			conversions := admin.Group("/conversions")
			{
				conversions.GET("", commissionHandler.ListConversions)
				conversions.GET("/:id", commissionHandler.GetConversion)
				conversions.POST("/:id/resolve", commissionHandler.ResolveConversion)
			}

			policies := admin.Group("/policies")
			{
				policies.POST("", policyHandler.Create)
				policies.GET("", policyHandler.List)
				policies.GET("/:id", policyHandler.Get)
				policies.PUT("/:id", policyHandler.Update)
				policies.PATCH("/:id/status", policyHandler.SetStatus)
				policies.POST("/:id/approval/request", policyHandler.RequestApproval)
				policies.POST("/:id/approval/approve", policyHandler.Approve)
				policies.POST("/:id/approval/reject", policyHandler.Reject)
				policies.POST("/:id/approval/revoke", policyHandler.Revoke)
				policies.POST("/:id/approval/cancel", policyHandler.CancelApproval)
			}

			commissions := admin.Group("/commissions")
			{
				commissions.GET("", commissionHandler.List)
				commissions.GET("/totals", commissionHandler.Totals)
				commissions.GET("/:id", commissionHandler.Get)
				commissions.POST("/:id/confirm", commissionHandler.Confirm)
				commissions.POST("/:id/cancel", commissionHandler.Cancel)
				commissions.POST("/:id/adjust", commissionHandler.Adjust)
			}

			settlements := admin.Group("/settlements")
			{
				settlements.POST("", settlementHandler.Open)
				settlements.GET("", settlementHandler.List)
				settlements.GET("/:id", settlementHandler.Get)
				settlements.POST("/:id/close", settlementHandler.Close)
				settlements.POST("/:id/pay", settlementHandler.Pay)
				settlements.POST("/:id/mark-paid", settlementHandler.MarkPaid)
				settlements.POST("/:id/mark-failed", settlementHandler.MarkFailed)
				settlements.GET("/:id/items", settlementHandler.Items)
				settlements.POST("/:id/export", settlementHandler.Export)
			}

			admin.GET("/audit-logs", adminHandler.ListAuditLogs)
		}

		// Partner self-service, scoped to the token's partner
		partner := v1.Group("/partner/:partner_id")
		partner.Use(middleware.PartnerScope("partner_id"))
		{
			partner.GET("", partnerHandler.Get)
			partner.GET("/stats", partnerHandler.Stats)
			partner.GET("/links", linkHandler.ListPartnerLinks)
			partner.POST("/links", linkHandler.CreateLink)
			partner.GET("/commissions", commissionHandler.List)
			partner.GET("/commissions/totals", commissionHandler.Totals)
			partner.GET("/settlements", settlementHandler.List)
		}
	}

	return r
}

func rateLimits(cfg config.RateLimitConfig) (redirect, api gin.HandlerFunc) {
	if !cfg.Enabled {
		pass := func(c *gin.Context) { c.Next() }
		return pass, pass
	}
	return middleware.RateLimit(cfg.RedirectRate, cfg.RedirectBurst), middleware.RateLimit(cfg.APIRate, cfg.APIBurst)
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Accept-Language", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID", "X-Total-Count", "X-Page", "X-Per-Page", "X-Total-Pages"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, origin := range origins {
		if origin == "*" {
			cfg.AllowAllOrigins = true
			cfg.AllowCredentials = false
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	return cfg
}
