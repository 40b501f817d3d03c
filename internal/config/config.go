package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the bridge process.
type Config struct {
	Token    string // opaque backend credential
	Endpoint string // backend base URL (http[s]://host:port)
	OpsPort  string // local health/metrics listener
	Env      string
	RedisURL string // optional persistent cache backend

	// Message cache bounds
	MessageCacheMax int
	MessageCacheAge time.Duration
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// A missing token always panics: the engine cannot obtain a credential on
// its own.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Token:           os.Getenv("CHATBRIDGE_TOKEN"),
		Endpoint:        getEnv("CHATBRIDGE_ENDPOINT", "http://127.0.0.1:3333"),
		OpsPort:         getEnv("CHATBRIDGE_OPS_PORT", "8080"),
		Env:             getEnv("ENV", "development"),
		RedisURL:        os.Getenv("REDIS_URL"),
		MessageCacheMax: getEnvInt("CHATBRIDGE_MESSAGE_CACHE_MAX", 1000),
		MessageCacheAge: getEnvDuration("CHATBRIDGE_MESSAGE_CACHE_AGE", time.Hour),
	}

	if cfg.Token == "" {
		panic("CHATBRIDGE_TOKEN is required")
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
