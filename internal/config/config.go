package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	DatabaseURL      string
	ServerPort       string
	FrontendURL      string
	RedisURL         string
	RabbitMQURL      string
	RabbitMQPrefetch int

	OpenAIKey               string
	AIProvider              string
	AIModel                 string
	AIBaseURL               string
	EmbeddingModel          string
	EmbeddingQueryPrefix    string
	EmbeddingDocumentPrefix string

	QdrantURL        string
	QdrantAPIKey     string
	QdrantCollection string

	EvolutionAPIURL string
	EvolutionAPIKey string
	WebhookSecret   string

	GoogleClientID        string
	GoogleClientSecret    string
	GoogleTokenURL        string
	GoogleCalendarBaseURL string

	DefaultTimezone    string
	ServiceTokenSecret string
	WebhookRateLimit   string
	EnableHSTS         bool

	TurnTimeout        time.Duration
	ModelTimeout       time.Duration
	ToolTimeout        time.Duration
	MaxConcurrentTurns int
	HistoryWindow      int
	BackfillSchedule   string

	WorkerDebugMode bool
	ServerDebugMode bool
	OTELEnabled     bool
	OTELEndpoint    string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (*Config, error) {
	e := env(getenv)
	cfg := &Config{
		DatabaseURL:      e.str("DATABASE_URL", ""),
		ServerPort:       e.str("SERVER_PORT", "8080"),
		FrontendURL:      e.str("FRONTEND_URL", "http://localhost:3000"),
		RedisURL:         e.str("REDIS_URL", ""),
		RabbitMQURL:      e.str("RABBITMQ_URL", ""),
		RabbitMQPrefetch: e.int("RABBITMQ_PREFETCH", 1),

		OpenAIKey:               e.str("OPENAI_API_KEY", ""),
		AIProvider:              e.str("AI_PROVIDER", "openai"),
		AIModel:                 e.str("AI_MODEL", "gpt-4o-mini"),
		AIBaseURL:               e.str("AI_BASE_URL", ""),
		EmbeddingModel:          e.str("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingQueryPrefix:    e.str("EMBEDDING_QUERY_PREFIX", ""),
		EmbeddingDocumentPrefix: e.str("EMBEDDING_DOCUMENT_PREFIX", ""),

		QdrantURL:        e.str("QDRANT_URL", ""),
		QdrantAPIKey:     e.str("QDRANT_API_KEY", ""),
		QdrantCollection: e.str("QDRANT_COLLECTION", "lead_preferences"),

		EvolutionAPIURL: strings.TrimRight(e.str("EVOLUTION_API_URL", ""), "/"),
		EvolutionAPIKey: e.str("EVOLUTION_API_KEY", ""),
		WebhookSecret:   e.str("WEBHOOK_SECRET", ""),

		GoogleClientID:        e.str("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:    e.str("GOOGLE_CLIENT_SECRET", ""),
		GoogleTokenURL:        e.str("GOOGLE_TOKEN_URL", "https://oauth2.googleapis.com/token"),
		GoogleCalendarBaseURL: strings.TrimRight(e.str("GOOGLE_CALENDAR_BASE_URL", "https://www.googleapis.com/calendar/v3"), "/"),

		DefaultTimezone:    e.str("DEFAULT_TIMEZONE", "America/Argentina/Buenos_Aires"),
		ServiceTokenSecret: e.str("SERVICE_TOKEN_SECRET", ""),
		WebhookRateLimit:   e.str("WEBHOOK_RATE_LIMIT", "20-S"),
		EnableHSTS:         e.bool("ENABLE_HSTS", false),

		TurnTimeout:        e.duration("TURN_TIMEOUT", 90*time.Second),
		ModelTimeout:       e.duration("MODEL_TIMEOUT", 30*time.Second),
		ToolTimeout:        e.duration("TOOL_TIMEOUT", 20*time.Second),
		MaxConcurrentTurns: e.int("MAX_CONCURRENT_TURNS", 32),
		HistoryWindow:      e.int("HISTORY_WINDOW", 15),
		BackfillSchedule:   e.str("BACKFILL_SCHEDULE", "@every 30m"),

		WorkerDebugMode: e.bool("WORKER_DEBUG_MODE", false),
		ServerDebugMode: e.bool("SERVER_DEBUG_MODE", false),
		OTELEnabled:     e.bool("OTEL_ENABLED", false),
		OTELEndpoint:    e.str("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if _, err := time.LoadLocation(cfg.DefaultTimezone); err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_TIMEZONE %q: %w", cfg.DefaultTimezone, err)
	}

	return cfg, nil
}

// RequireQueue reports an error when the job queue is not configured.
// The server and worker need it; the configure CLI mostly does not.
func (c *Config) RequireQueue() error {
	if c.RabbitMQURL == "" {
		return fmt.Errorf("RABBITMQ_URL is required for job queueing (embedding jobs require RabbitMQ)")
	}
	return nil
}

// Location returns the default timezone, falling back to UTC
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type env func(string) string

func (e env) str(key, defaultValue string) string {
	if value := e(key); value != "" {
		return value
	}
	return defaultValue
}

func (e env) bool(key string, defaultValue bool) bool {
	if value := e(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func (e env) int(key string, defaultValue int) int {
	if value := e(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func (e env) duration(key string, defaultValue time.Duration) time.Duration {
	if value := e(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}
