// internal/database/connection.go
package database

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/javajoker/partner-engine/internal/config"
	"github.com/javajoker/partner-engine/internal/models"
)

func Initialize(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger:         logger.Default.LogMode(gormLogLevel(cfg.LogLevel)),
		TranslateError: true,
	}

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.MaxLifetime) * time.Second)

	// Test connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logrus.WithFields(logrus.Fields{"host": cfg.Host, "database": cfg.Database}).Info("Database connection established")
	return db, nil
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		logrus.WithError(err).Error("Error getting underlying sql.DB")
		return
	}

	if err := sqlDB.Close(); err != nil {
		logrus.WithError(err).Error("Error closing database connection")
	} else {
		logrus.Info("Database connection closed")
	}
}

func RunMigrations(db *gorm.DB) error {
	logrus.Info("Running database migrations...")

	// gen_random_uuid lives in pgcrypto before PostgreSQL 13
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS pgcrypto").Error; err != nil {
		return fmt.Errorf("failed to create pgcrypto extension: %w", err)
	}

	err := db.AutoMigrate(
		&models.Partner{},
		&models.CatalogItem{},
		&models.PartnerLink{},
		&models.PartnerClick{},
		&models.PartnerConversion{},
		&models.CommissionPolicy{},
		&models.PolicyUsage{},
		&models.PartnerCommission{},
		&models.CommissionReversal{},
		&models.PartnerSettlementBatch{},
		&models.SettlementItem{},
		&models.AuditLogEntry{},
	)

	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := createIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	logrus.Info("Database migrations completed")
	return nil
}

// uniqueIndexes back the idempotency guarantees and must exist.
var uniqueIndexes = []string{
	"CREATE UNIQUE INDEX IF NOT EXISTS uq_conversions_active_order ON partner_conversions(order_id) WHERE status <> 'cancelled' AND deleted_at IS NULL",
	"CREATE UNIQUE INDEX IF NOT EXISTS uq_commissions_active_conversion ON partner_commissions(conversion_id) WHERE status <> 'cancelled' AND deleted_at IS NULL",
	"CREATE UNIQUE INDEX IF NOT EXISTS uq_batches_open_period ON partner_settlement_batches(partner_id, period_key) WHERE status = 'open' AND deleted_at IS NULL",
}

var lookupIndexes = []string{
	"CREATE INDEX IF NOT EXISTS idx_clicks_link_fingerprint ON partner_clicks(link_id, fingerprint, clicked_at DESC)",
	"CREATE INDEX IF NOT EXISTS idx_clicks_visitor_window ON partner_clicks(fingerprint, clicked_at)",
	"CREATE INDEX IF NOT EXISTS idx_clicks_session_window ON partner_clicks(session_id, clicked_at) WHERE session_id <> ''",
	"CREATE INDEX IF NOT EXISTS idx_policies_active ON commission_policies(status, priority DESC) WHERE deleted_at IS NULL",
	"CREATE INDEX IF NOT EXISTS idx_commissions_settleable ON partner_commissions(partner_id, status, confirmed_at) WHERE settlement_batch_id IS NULL",
	"CREATE INDEX IF NOT EXISTS idx_commissions_due ON partner_commissions(status, confirm_after)",
	"CREATE INDEX IF NOT EXISTS idx_reversals_open ON commission_reversals(partner_id) WHERE applied_batch_id IS NULL",
	"CREATE INDEX IF NOT EXISTS idx_audit_subject ON audit_log_entries(subject_type, subject_id, created_at DESC)",
}

func createIndexes(db *gorm.DB) error {
	for _, index := range uniqueIndexes {
		if err := db.Exec(index).Error; err != nil {
			return fmt.Errorf("%s: %w", index, err)
		}
	}

	for _, index := range lookupIndexes {
		if err := db.Exec(index).Error; err != nil {
			logrus.WithError(err).WithField("index", index).Warn("Failed to create index")
			// Continue with other indexes instead of failing completely
		}
	}

	return nil
}

// Transaction helper
func WithTransaction(db *gorm.DB, fn func(*gorm.DB) error) error {
	tx := db.Begin()
	if tx.Error != nil {
		return tx.Error
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}
