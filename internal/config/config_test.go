package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func missingEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(missingEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, CatalogHTTP, cfg.CatalogMode)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.True(t, decimal.NewFromInt(1000).Equal(cfg.FreeDeliveryThreshold))
	assert.True(t, decimal.NewFromInt(200).Equal(cfg.StandardDeliveryFee))
	assert.True(t, decimal.NewFromInt(200).Equal(cfg.MinOrderAmount))
	assert.Equal(t, 30, cfg.MaxCartItems)
	assert.Equal(t, 5*time.Minute, cfg.ValidationInterval)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTimeout)
	assert.Equal(t, time.Minute, cfg.SessionSweepInterval)
	assert.False(t, cfg.Development)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("CATALOG_MODE", "SQLite")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("FREE_DELIVERY_THRESHOLD", "49.99")
	t.Setenv("MAX_CART_ITEMS", "12")
	t.Setenv("VALIDATION_INTERVAL", "90s")
	t.Setenv("DEVELOPMENT", "true")

	cfg, err := Load(missingEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, CatalogSQLite, cfg.CatalogMode)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.True(t, decimal.RequireFromString("49.99").Equal(cfg.FreeDeliveryThreshold))
	assert.Equal(t, 12, cfg.MaxCartItems)
	assert.Equal(t, 90*time.Second, cfg.ValidationInterval)
	assert.True(t, cfg.Development)
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("HTTP_PORT=9999\nMIN_ORDER_AMOUNT=150\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("HTTP_PORT")
		os.Unsetenv("MIN_ORDER_AMOUNT")
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9999", cfg.HTTPPort)
	assert.True(t, decimal.NewFromInt(150).Equal(cfg.MinOrderAmount))
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Setenv("CATALOG_MODE", "carrier-pigeon")
	t.Setenv("MAX_CART_ITEMS", "many")
	t.Setenv("STANDARD_DELIVERY_FEE", "-5")
	t.Setenv("REQUEST_TIMEOUT", "soon")
	t.Setenv("SESSION_IDLE_TIMEOUT", "0s")

	_, err := Load(missingEnvFile(t))
	require.Error(t, err)
	assert.ErrorContains(t, err, "CATALOG_MODE")
	assert.ErrorContains(t, err, "MAX_CART_ITEMS")
	assert.ErrorContains(t, err, "STANDARD_DELIVERY_FEE")
	assert.ErrorContains(t, err, "REQUEST_TIMEOUT")
	assert.ErrorContains(t, err, "SESSION_IDLE_TIMEOUT")
}
