package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds everything the gateway reads from the environment.
type Config struct {
	ServerPort       string
	ExtractorBaseURL string
	DatabasePath     string
	NCMTablePath     string
	LogLevel         string

	// Remote client behavior.
	HTTPRequestTimeout time.Duration
	MaxRetryAttempts   int
	PolitenessDelay    time.Duration

	// Queue timing.
	DebounceWindow  time.Duration
	RecencyHorizon  time.Duration
	PollInterval    time.Duration
	MaxPollAttempts int
	RemovalDelay    time.Duration

	// Catalog cache.
	MarketCacheTTL time.Duration
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		logrus.Warn("Error loading .env file, using system environment variables")
	}

	return &Config{
		ServerPort:       getEnv("SERVER_PORT", "8080"),
		ExtractorBaseURL: getEnv("EXTRACTOR_BASE_URL", "http://localhost:8000"),
		DatabasePath:     getEnv("DATABASE_PATH", "scan-gateway.db"),
		NCMTablePath:     getEnv("NCM_TABLE_PATH", "data/ncm_table.json"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),

		HTTPRequestTimeout: getEnvDuration("HTTP_REQUEST_TIMEOUT_MS", 30*time.Second),
		MaxRetryAttempts:   getEnvInt("HTTP_MAX_RETRY_ATTEMPTS", 3),
		PolitenessDelay:    getEnvDuration("POLITENESS_DELAY_MS", 250*time.Millisecond),

		DebounceWindow:  getEnvDuration("QUEUE_DEBOUNCE_MS", 3*time.Second),
		RecencyHorizon:  getEnvDuration("QUEUE_RECENCY_HORIZON_MS", 60*time.Second),
		PollInterval:    getEnvDuration("QUEUE_POLL_INTERVAL_MS", 2*time.Second),
		MaxPollAttempts: getEnvInt("QUEUE_MAX_POLL_ATTEMPTS", 60),
		RemovalDelay:    getEnvDuration("QUEUE_REMOVAL_DELAY_MS", 5*time.Second),

		MarketCacheTTL: getEnvDuration("MARKET_CACHE_TTL_MS", 5*time.Minute),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt reads an integer variable, falling back on missing or
// unparseable values.
func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		logrus.Warnf("Invalid %s value: %s, using default %d", key, value, fallback)
		return fallback
	}
	return parsed
}

// getEnvDuration reads a millisecond-valued variable.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	millis, err := strconv.Atoi(value)
	if err != nil || millis < 0 {
		logrus.Warnf("Invalid %s value: %s, using default %s", key, value, fallback)
		return fallback
	}
	return time.Duration(millis) * time.Millisecond
}
