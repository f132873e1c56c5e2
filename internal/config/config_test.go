// internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "last_click", cfg.Attribution.Model)
	assert.Equal(t, 30*24*time.Hour, cfg.Attribution.Window)
	assert.Equal(t, 30*time.Minute, cfg.Attribution.DedupWindow)
	assert.Equal(t, 8, cfg.Links.CodeLength)
	assert.Contains(t, cfg.Links.BlockedProductTypes, "alcohol")
	assert.False(t, cfg.Redis.Enabled)
	assert.False(t, cfg.Kafka.Enabled)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 20, cfg.RateLimit.APIBurst)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ATTRIBUTION_MODEL", "first_click")
	t.Setenv("ATTRIBUTION_WINDOW", "168h")
	t.Setenv("LINK_BLOCKED_PRODUCT_TYPES", "weapons, tobacco ,")
	t.Setenv("CURRENCY_PRECISION", "krw:0,USD:2,bad,JPY:x")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "first_click", cfg.Attribution.Model)
	assert.Equal(t, 7*24*time.Hour, cfg.Attribution.Window)
	assert.Equal(t, []string{"weapons", "tobacco"}, cfg.Links.BlockedProductTypes)
	assert.Equal(t, map[string]int32{"KRW": 0, "USD": 2}, cfg.Commission.CurrencyPrecision)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestValidate(t *testing.T) {
	t.Setenv("ATTRIBUTION_MODEL", "linear")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("ATTRIBUTION_MODEL", "last_click")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("DB_PASSWORD", "secret")
	_, err = Load()
	assert.Error(t, err, "default JWT secret must be rejected in production")

	t.Setenv("JWT_SECRET", "prod-secret")
	t.Setenv("FINGERPRINT_SECRET", "prod-fingerprint")
	_, err = Load()
	assert.NoError(t, err)
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", Database: "n", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", d.DSN())
}
