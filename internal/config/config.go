package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	CatalogHTTP   = "http"
	CatalogGRPC   = "grpc"
	CatalogSQLite = "sqlite"
)

type Config struct {
	HTTPPort string

	MongoURI    string
	MongoDBName string

	RedisAddr     string
	RedisPassword string

	KafkaBrokers  []string
	OutboxTopic   string
	EventsTopic   string
	ConsumerGroup string

	CatalogMode       string
	CatalogURL        string
	CatalogGRPCAddr   string
	CatalogSQLitePath string

	SessionSecret string

	FreeDeliveryThreshold decimal.Decimal
	StandardDeliveryFee   decimal.Decimal
	MinOrderAmount        decimal.Decimal
	MaxCartItems          int

	ValidationInterval   time.Duration
	RequestTimeout       time.Duration
	SessionIdleTimeout   time.Duration
	SessionSweepInterval time.Duration

	Development bool
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	var errs []error
	cfg := &Config{
		HTTPPort:          getEnv("HTTP_PORT", "8080"),
		MongoURI:          getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName:       getEnv("MONGO_DB_NAME", "cartdb"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		KafkaBrokers:      splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
		OutboxTopic:       getEnv("KAFKA_OUTBOX_TOPIC", "checkout-outbox"),
		EventsTopic:       getEnv("KAFKA_EVENTS_TOPIC", "cart-events"),
		ConsumerGroup:     getEnv("KAFKA_CONSUMER_GROUP", "cart-engine"),
		CatalogMode:       strings.ToLower(getEnv("CATALOG_MODE", CatalogHTTP)),
		CatalogURL:        getEnv("CATALOG_URL", "http://localhost:8081"),
		CatalogGRPCAddr:   getEnv("CATALOG_GRPC_ADDR", "localhost:50051"),
		CatalogSQLitePath: getEnv("CATALOG_SQLITE_PATH", "catalog.db"),
		SessionSecret:     getEnv("SESSION_SECRET", "dev-session-secret-change-me"),
	}

	cfg.FreeDeliveryThreshold = getDecimal("FREE_DELIVERY_THRESHOLD", "1000", &errs)
	cfg.StandardDeliveryFee = getDecimal("STANDARD_DELIVERY_FEE", "200", &errs)
	cfg.MinOrderAmount = getDecimal("MIN_ORDER_AMOUNT", "200", &errs)
	cfg.MaxCartItems = getInt("MAX_CART_ITEMS", 30, &errs)
	cfg.ValidationInterval = getDuration("VALIDATION_INTERVAL", 5*time.Minute, &errs)
	cfg.RequestTimeout = getDuration("REQUEST_TIMEOUT", 5*time.Second, &errs)
	cfg.SessionIdleTimeout = getDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute, &errs)
	cfg.SessionSweepInterval = getDuration("SESSION_SWEEP_INTERVAL", time.Minute, &errs)
	cfg.Development = getBool("DEVELOPMENT", false, &errs)

	switch cfg.CatalogMode {
	case CatalogHTTP, CatalogGRPC, CatalogSQLite:
	default:
		errs = append(errs, fmt.Errorf("CATALOG_MODE: unknown mode %q", cfg.CatalogMode))
	}
	if cfg.MaxCartItems < 1 {
		errs = append(errs, fmt.Errorf("MAX_CART_ITEMS: must be at least 1"))
	}
	if cfg.SessionIdleTimeout <= 0 || cfg.SessionSweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("SESSION_IDLE_TIMEOUT, SESSION_SWEEP_INTERVAL: must be positive"))
	}
	for name, v := range map[string]decimal.Decimal{
		"FREE_DELIVERY_THRESHOLD": cfg.FreeDeliveryThreshold,
		"STANDARD_DELIVERY_FEE":   cfg.StandardDeliveryFee,
		"MIN_ORDER_AMOUNT":        cfg.MinOrderAmount,
	} {
		if v.IsNegative() {
			errs = append(errs, fmt.Errorf("%s: must not be negative", name))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDecimal(key, defaultValue string, errs *[]error) decimal.Decimal {
	d, err := decimal.NewFromString(getEnv(key, defaultValue))
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
	}
	return d
}

func getInt(key string, defaultValue int, errs *[]error) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return n
}

func getDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return d
}

func getBool(key string, defaultValue bool, errs *[]error) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return b
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
