// Package config loads engine configuration from the environment and
// jurisdiction profiles from YAML.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds worker configuration.
type Config struct {
	DatabasePath   string
	PostgresURL    string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	LogLevel       string
	ListenAddr     string
	APISigningKey  string
	Jurisdiction   string
	ProfileDir     string
	DrainInterval  time.Duration
	DrainBatchSize int
	LockLease      time.Duration
	NBAInterval    time.Duration

	// Reasoning provider
	AnthropicAPIKey string
	AnthropicModel  string
	PromptVersion   string
	AITimeout       time.Duration

	// Channel provider
	ProviderBaseURL   string
	ProviderAuthToken string
	ProviderFrom      string

	// Observability
	OTLPEndpoint string
	OTelEnabled  bool
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		DatabasePath:   getenv("OUTREACH_DB_PATH", "outreach.db"),
		PostgresURL:    os.Getenv("OUTREACH_POSTGRES_URL"),
		RedisAddr:      getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        getint("REDIS_DB", 0),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		ListenAddr:     getenv("LISTEN_ADDR", ":8080"),
		APISigningKey:  os.Getenv("API_SIGNING_KEY"),
		Jurisdiction:   getenv("JURISDICTION", "md"),
		ProfileDir:     getenv("PROFILE_DIR", "profiles"),
		DrainInterval:  getdur("DRAIN_INTERVAL", 60*time.Second),
		DrainBatchSize: getint("DRAIN_BATCH_SIZE", 10),
		LockLease:      getdur("DRAIN_LOCK_LEASE", 120*time.Second),
		NBAInterval:    getdur("NBA_INTERVAL", 15*time.Minute),

		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:  getenv("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
		PromptVersion:   getenv("AI_PROMPT_VERSION", "v1"),
		AITimeout:       getdur("AI_TIMEOUT", 30*time.Second),

		ProviderBaseURL:   os.Getenv("PROVIDER_BASE_URL"),
		ProviderAuthToken: os.Getenv("PROVIDER_AUTH_TOKEN"),
		ProviderFrom:      os.Getenv("PROVIDER_FROM_NUMBER"),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),
		OTelEnabled:  os.Getenv("OTEL_ENABLED") == "true",
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getdur(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
