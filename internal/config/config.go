// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment    string
	LogLevel       string
	Server         ServerConfig
	Database       DatabaseConfig
	JWT            JWTConfig
	Redis          RedisConfig
	Kafka          KafkaConfig
	AWS            AWSConfig
	Payment        PaymentConfig
	Email          EmailConfig
	I18n           I18nConfig
	Attribution    AttributionConfig
	Links          LinksConfig
	Commission     CommissionConfig
	Settlement     SettlementConfig
	ClickQueue     ClickQueueConfig
	Scheduler      SchedulerConfig
	RateLimit      RateLimitConfig
	PolicySeedFile string
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     int
	WriteTimeout    int
	IdleTimeout     int
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
	LogLevel     string
}

type JWTConfig struct {
	SecretKey string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
}

func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

type KafkaConfig struct {
	Enabled     bool
	Brokers     []string
	GroupID     string
	OrderTopic  string
	EventsTopic string
}

type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	S3Bucket        string
	ExportPrefix    string
	LocalExportDir  string
}

type PaymentConfig struct {
	StripeSecretKey string
	MinimumPayout   float64
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	FromEmail    string
	FromName     string
	AdminEmail   string
}

type I18nConfig struct {
	DefaultLocale string
	LocalesPath   string
}

type AttributionConfig struct {
	Model             string
	Window            time.Duration
	DedupWindow       time.Duration
	FingerprintSecret string
	VisitorCookie     string
	CookieMaxAge      int
}

type LinksConfig struct {
	BaseURL             string
	CodeLength          int
	MaxRetries          int
	BlockedProductTypes []string
}

type CommissionConfig struct {
	HoldPeriod        time.Duration
	RetryAttempts     int
	RetryBaseDelay    time.Duration
	DefaultCurrency   string
	CurrencyPrecision map[string]int32
}

type SettlementConfig struct {
	LockTTL time.Duration
}

type ClickQueueConfig struct {
	Size    int
	Workers int
}

type SchedulerConfig struct {
	ConfirmInterval time.Duration
	PolicyInterval  time.Duration
	ConfirmBatch    int
}

// RateLimitConfig sets the per-IP token buckets. Rates are requests per
// second.
type RateLimitConfig struct {
	Enabled       bool
	APIRate       float64
	APIBurst      int
	RedirectRate  float64
	RedirectBurst int
}

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	config := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			Host:            getEnv("SERVER_HOST", "localhost"),
			ReadTimeout:     getEnvAsInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout:    getEnvAsInt("SERVER_WRITE_TIMEOUT", 15),
			IdleTimeout:     getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
			AllowedOrigins:  getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "partner_engine"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 300),
			LogLevel:     getEnv("DB_LOG_LEVEL", "warn"),
		},
		JWT: JWTConfig{
			SecretKey: getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Enabled:     getEnvAsBool("KAFKA_ENABLED", false),
			Brokers:     getEnvAsSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			GroupID:     getEnv("KAFKA_GROUP_ID", "partner-engine"),
			OrderTopic:  getEnv("KAFKA_ORDER_TOPIC", "orders.events"),
			EventsTopic: getEnv("KAFKA_EVENTS_TOPIC", "partner.events"),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			S3Bucket:        getEnv("AWS_S3_BUCKET", ""),
			ExportPrefix:    getEnv("SETTLEMENT_EXPORT_PREFIX", "settlements/"),
			LocalExportDir:  getEnv("SETTLEMENT_EXPORT_DIR", "./exports"),
		},
		Payment: PaymentConfig{
			StripeSecretKey: getEnv("STRIPE_SECRET_KEY", ""),
			MinimumPayout:   getEnvAsFloat("MINIMUM_PAYOUT", 0),
		},
		Email: EmailConfig{
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getEnv("SMTP_PORT", "587"),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			FromEmail:    getEnv("FROM_EMAIL", "noreply@partners.example.com"),
			FromName:     getEnv("FROM_NAME", "Partner Program"),
			AdminEmail:   getEnv("ADMIN_EMAIL", ""),
		},
		I18n: I18nConfig{
			DefaultLocale: getEnv("DEFAULT_LOCALE", "en"),
			LocalesPath:   getEnv("LOCALES_PATH", "./internal/i18n/locales"),
		},
		Attribution: AttributionConfig{
			Model:             getEnv("ATTRIBUTION_MODEL", "last_click"),
			Window:            getEnvAsDuration("ATTRIBUTION_WINDOW", 30*24*time.Hour),
			DedupWindow:       getEnvAsDuration("CLICK_DEDUP_WINDOW", 30*time.Minute),
			FingerprintSecret: getEnv("FINGERPRINT_SECRET", "change-me-fingerprint-secret"),
			VisitorCookie:     getEnv("VISITOR_COOKIE", "pe_vid"),
			CookieMaxAge:      getEnvAsInt("VISITOR_COOKIE_MAX_AGE", 60*60*24*365),
		},
		Links: LinksConfig{
			BaseURL:             getEnv("LINK_BASE_URL", "http://localhost:8080/l/"),
			CodeLength:          getEnvAsInt("LINK_CODE_LENGTH", 8),
			MaxRetries:          getEnvAsInt("LINK_CODE_MAX_RETRIES", 5),
			BlockedProductTypes: getEnvAsSlice("LINK_BLOCKED_PRODUCT_TYPES", []string{"alcohol", "tobacco", "medical_device", "prescription"}),
		},
		Commission: CommissionConfig{
			HoldPeriod:        getEnvAsDuration("COMMISSION_HOLD_PERIOD", 14*24*time.Hour),
			RetryAttempts:     getEnvAsInt("COMMISSION_RETRY_ATTEMPTS", 4),
			RetryBaseDelay:    getEnvAsDuration("COMMISSION_RETRY_BASE_DELAY", 20*time.Millisecond),
			DefaultCurrency:   getEnv("DEFAULT_CURRENCY", "KRW"),
			CurrencyPrecision: getEnvAsPrecisionMap("CURRENCY_PRECISION"),
		},
		Settlement: SettlementConfig{
			LockTTL: getEnvAsDuration("SETTLEMENT_LOCK_TTL", 2*time.Minute),
		},
		ClickQueue: ClickQueueConfig{
			Size:    getEnvAsInt("CLICK_QUEUE_SIZE", 10000),
			Workers: getEnvAsInt("CLICK_QUEUE_WORKERS", 4),
		},
		Scheduler: SchedulerConfig{
			ConfirmInterval: getEnvAsDuration("CONFIRM_INTERVAL", 10*time.Minute),
			PolicyInterval:  getEnvAsDuration("POLICY_STATUS_INTERVAL", time.Minute),
			ConfirmBatch:    getEnvAsInt("CONFIRM_BATCH_SIZE", 500),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getEnvAsBool("RATE_LIMIT_ENABLED", true),
			APIRate:       getEnvAsFloat("RATE_LIMIT_API_RPS", 10),
			APIBurst:      getEnvAsInt("RATE_LIMIT_API_BURST", 20),
			RedirectRate:  getEnvAsFloat("RATE_LIMIT_REDIRECT_RPS", 20),
			RedirectBurst: getEnvAsInt("RATE_LIMIT_REDIRECT_BURST", 40),
		},
		PolicySeedFile: getEnv("POLICY_SEED_FILE", ""),
	}

	return config, config.Validate()
}

func (c *Config) Validate() error {
	if c.JWT.SecretKey == "your-secret-key-change-in-production" && c.Environment == "production" {
		return fmt.Errorf("JWT secret key must be changed in production")
	}

	if c.Database.Password == "" && c.Environment == "production" {
		return fmt.Errorf("database password is required in production")
	}

	if c.Attribution.FingerprintSecret == "change-me-fingerprint-secret" && c.Environment == "production" {
		return fmt.Errorf("fingerprint secret must be changed in production")
	}

	switch c.Attribution.Model {
	case "last_click", "first_click":
	default:
		return fmt.Errorf("unsupported attribution model %q", c.Attribution.Model)
	}

	if c.Attribution.Window <= 0 || c.Attribution.DedupWindow <= 0 {
		return fmt.Errorf("attribution and dedup windows must be positive")
	}

	if c.Links.CodeLength < 4 || c.Links.CodeLength > 32 {
		return fmt.Errorf("link code length must be between 4 and 32")
	}

	if c.Links.MaxRetries < 1 {
		return fmt.Errorf("link code retries must be at least 1")
	}

	if c.ClickQueue.Size < 1 || c.ClickQueue.Workers < 1 {
		return fmt.Errorf("click queue size and workers must be at least 1")
	}

	if c.Commission.RetryAttempts < 1 {
		return fmt.Errorf("commission retry attempts must be at least 1")
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.ToLower(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvAsPrecisionMap parses "KRW:0,USD:2,BHD:3".
func getEnvAsPrecisionMap(key string) map[string]int32 {
	out := map[string]int32{}
	for _, pair := range getEnvAsSlice(key, nil) {
		code, places, ok := strings.Cut(pair, ":")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(places))
		if err != nil || n < 0 {
			continue
		}
		out[strings.ToUpper(strings.TrimSpace(code))] = int32(n)
	}
	return out
}
