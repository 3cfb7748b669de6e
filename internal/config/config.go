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
	// Server configuration
	Port        string
	Mode        string
	CORSOrigins []string

	// Database configuration
	DatabaseURL string
	SQLitePath  string

	// Redis configuration; empty disables Redis and uses in-process state
	RedisURL string

	// Access control
	AdminAPIKey  string
	OwnerUserIDs []int64

	// Bitcoin payment verification
	BTCAddress             string
	BlockstreamURL         string
	PriceAPIURL            string
	PriceCacheTTL          time.Duration
	OracleTimeout          time.Duration
	VerifyRateLimitMinutes int

	// License notifications
	WebhookURL    string
	WebhookSecret string

	// Logging
	LogLevel  string
	LogFormat string

	// Background jobs
	LicenseSweepInterval time.Duration
}

// Load reads .env (if present) and the environment into a Config
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	owners, err := parseIDList(getEnv("OWNER_USER_IDS", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid OWNER_USER_IDS: %w", err)
	}

	cfg := &Config{
		Port:                   getEnv("PORT", "8080"),
		Mode:                   getEnv("GIN_MODE", "debug"),
		CORSOrigins:            splitList(getEnv("CORS_ORIGINS", "")),
		DatabaseURL:            getEnv("DATABASE_URL", ""),
		SQLitePath:             getEnv("SQLITE_PATH", "guardian.db"),
		RedisURL:               getEnv("REDIS_URL", ""),
		AdminAPIKey:            getEnv("ADMIN_API_KEY", ""),
		OwnerUserIDs:           owners,
		BTCAddress:             getEnv("BTC_ADDRESS", ""),
		BlockstreamURL:         getEnv("BLOCKSTREAM_URL", "https://blockstream.info/api"),
		PriceAPIURL:            getEnv("PRICE_API_URL", "https://api.coindesk.com/v1/bpi/currentprice.json"),
		PriceCacheTTL:          time.Duration(getEnvInt("PRICE_CACHE_SECONDS", 60)) * time.Second,
		OracleTimeout:          time.Duration(getEnvInt("ORACLE_TIMEOUT_SECONDS", 10)) * time.Second,
		VerifyRateLimitMinutes: getEnvInt("VERIFY_RATE_LIMIT_MINUTES", 1),
		WebhookURL:             getEnv("WEBHOOK_URL", ""),
		WebhookSecret:          getEnv("WEBHOOK_SECRET", ""),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		LogFormat:              getEnv("LOG_FORMAT", "json"),
		LicenseSweepInterval:   time.Duration(getEnvInt("LICENSE_SWEEP_SECONDS", 60)) * time.Second,
	}

	if cfg.AdminAPIKey == "" {
		return nil, fmt.Errorf("ADMIN_API_KEY is not set")
	}

	return cfg, nil
}

// IsOwner reports whether userID is a configured bot owner
func (c *Config) IsOwner(userID int64) bool {
	for _, id := range c.OwnerUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseIDList(value string) ([]int64, error) {
	var ids []int64
	for _, part := range splitList(value) {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
