// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/javajoker/partner-engine/internal/cache"
	"github.com/javajoker/partner-engine/internal/commission"
	"github.com/javajoker/partner-engine/internal/config"
	"github.com/javajoker/partner-engine/internal/database"
	"github.com/javajoker/partner-engine/internal/events"
	"github.com/javajoker/partner-engine/internal/i18n"
	"github.com/javajoker/partner-engine/internal/repository/postgres"
	"github.com/javajoker/partner-engine/internal/router"
	"github.com/javajoker/partner-engine/internal/services"
	"github.com/javajoker/partner-engine/internal/utils"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	setupLogging(cfg)

	if err := run(cfg); err != nil {
		logrus.WithError(err).Fatal("Server stopped with error")
	}
	logrus.Info("Server exited")
}

func setupLogging(cfg *config.Config) {
	if cfg.Environment == "production" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		gin.SetMode(gin.ReleaseMode)
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logrus.SetOutput(os.Stdout)
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := i18n.Initialize(cfg.I18n.LocalesPath, cfg.I18n.DefaultLocale); err != nil {
		return fmt.Errorf("failed to initialize i18n: %w", err)
	}
	utils.SetJWTSecret(cfg.JWT.SecretKey)
	for currency, places := range cfg.Commission.CurrencyPrecision {
		commission.SetCurrencyPrecision(currency, places)
	}

	// Initialize database
	db, err := database.Initialize(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close(db)

	if err := database.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if cfg.PolicySeedFile != "" {
		if err := database.SeedPolicies(db, cfg.PolicySeedFile); err != nil {
			return fmt.Errorf("failed to seed policies: %w", err)
		}
	}
	store := postgres.NewStore(db)

	// Optional Redis fast paths
	var deduper services.ClickDeduper
	var locker services.Locker = services.NewLocalLocker()
	if cfg.Redis.Enabled {
		client, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer client.Close()
		deduper = cache.NewClickDeduper(client)
		locker = cache.NewLocker(client)
	}

	// Optional Kafka publisher
	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Kafka.Enabled {
		kafkaPublisher, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic)
		if err != nil {
			return err
		}
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
	}

	var gateway services.PayoutGateway
	if cfg.Payment.StripeSecretKey != "" {
		gateway = services.NewStripePayoutGateway(cfg.Payment)
	}
	storage, err := services.NewStorageService(cfg.AWS)
	if err != nil {
		return fmt.Errorf("failed to initialize export storage: %w", err)
	}

	// Initialize services
	currency := cfg.Commission.DefaultCurrency
	auditService := services.NewAuditService(store)
	notificationService := services.NewNotificationService(cfg.Email)
	fingerprints := services.NewFingerprinter(cfg.Attribution.FingerprintSecret)
	linkService := services.NewLinkService(store, cfg.Links, auditService)
	clickService := services.NewClickService(store, linkService, deduper, cfg.Attribution.DedupWindow)
	clickQueue := services.NewClickQueue(clickService, cfg.ClickQueue.Size, cfg.ClickQueue.Workers)
	commissionService := services.NewCommissionService(store, auditService, publisher, cfg.Commission)
	attributionService := services.NewAttributionService(store, linkService, commissionService, fingerprints, auditService, cfg.Attribution, currency)
	policyService := services.NewPolicyService(store, auditService, notificationService, services.RetryPolicy{
		Attempts:  cfg.Commission.RetryAttempts,
		BaseDelay: cfg.Commission.RetryBaseDelay,
	})
	settlementService := services.NewSettlementService(store, locker, auditService, cfg.Settlement, currency, services.SettlementDeps{
		Publisher: publisher,
		Storage:   storage,
		Gateway:   gateway,
		Notifier:  notificationService,
	})
	scheduler := services.NewScheduler(commissionService, policyService, cfg.Scheduler)

	r := router.Initialize(router.Services{
		Partners:     services.NewPartnerService(store, auditService),
		Catalog:      services.NewCatalogService(store),
		Links:        linkService,
		Clicks:       clickService,
		ClickQueue:   clickQueue,
		Fingerprints: fingerprints,
		Attribution:  attributionService,
		Commissions:  commissionService,
		Policies:     policyService,
		Settlements:  settlementService,
		Audit:        auditService,
	}, cfg)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logrus.WithField("port", cfg.Server.Port).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logrus.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	// Clicks still buffered at shutdown are drained before exit
	g.Go(func() error {
		return clickQueue.Run(gctx)
	})

	g.Go(func() error {
		return scheduler.Run(gctx)
	})

	if cfg.Kafka.Enabled {
		consumer, err := events.NewOrderConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.OrderTopic, attributionService)
		if err != nil {
			stop()
			_ = g.Wait()
			return err
		}
		defer consumer.Close()
		g.Go(func() error {
			return consumer.Run(gctx)
		})
	}

	return g.Wait()
}
