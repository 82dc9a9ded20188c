package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"jobtrack_server/core/service/syncer"
	"jobtrack_server/pkg/apperr"
)

// Store backends for application records.
const (
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

// generateWorkerID creates a unique worker ID using hostname and PID
func generateWorkerID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "worker"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

type Config struct {
	Port        string
	Environment string
	LogLevel    string

	// Storage
	DatabaseURL  string
	RedisURL     string
	MongoDBURL   string
	MongoDBName  string
	StoreBackend string

	// Auth
	JWTSecret     string
	EncryptionKey string

	// OAuth - Google
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// OpenAI (optional field refinement)
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	// Sync
	SyncLookbackDays       int
	SyncMaxResults         int
	SyncMessageConcurrency int
	SyncRunTimeout         time.Duration
	SyncGuardTTL           time.Duration
	GmailRPS               int

	// Worker
	WorkerID           string
	WorkerMax          int
	WorkerQueueSize    int
	WorkerJobTimeout   time.Duration
	WorkerMaxRetries   int
	ConsumerMaxRetries int

	// HTTP
	AllowedOrigins []string
	FrontendURL    string
	SyncRateLimit  int
}

func Load() (*Config, error) {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Storage
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		RedisURL:     getEnv("REDIS_URL", ""),
		MongoDBURL:   getEnv("MONGODB_URL", ""),
		MongoDBName:  getEnv("MONGODB_NAME", "jobtrack"),
		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", StorePostgres)),

		// Auth
		JWTSecret:     getEnv("JWT_SECRET", ""),
		EncryptionKey: getEnv("ENCRYPTION_KEY", ""),

		// OAuth - Google
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", ""),

		// OpenAI
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),

		// Sync
		SyncLookbackDays:       getEnvInt("SYNC_LOOKBACK_DAYS", syncer.DefaultLookbackDays),
		SyncMaxResults:         getEnvInt("SYNC_MAX_RESULTS", int(syncer.DefaultMaxResults)),
		SyncMessageConcurrency: getEnvInt("SYNC_MESSAGE_CONCURRENCY", syncer.DefaultMessageConcurrency),
		SyncRunTimeout:         getEnvDuration("SYNC_RUN_TIMEOUT", syncer.DefaultRunTimeout),
		SyncGuardTTL:           getEnvDuration("SYNC_GUARD_TTL", syncer.DefaultGuardTTL),
		GmailRPS:               getEnvInt("GMAIL_RPS", 10),

		// Worker
		WorkerID:           getEnv("WORKER_ID", generateWorkerID()),
		WorkerMax:          getEnvInt("WORKER_MAX", 4),
		WorkerQueueSize:    getEnvInt("WORKER_QUEUE_SIZE", 100),
		WorkerJobTimeout:   getEnvDuration("WORKER_JOB_TIMEOUT", 6*time.Minute),
		WorkerMaxRetries:   getEnvInt("WORKER_MAX_RETRIES", 3),
		ConsumerMaxRetries: getEnvInt("CONSUMER_MAX_RETRIES", 3),

		// HTTP
		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
		FrontendURL:    getEnv("FRONTEND_URL", "http://localhost:3000"),
		SyncRateLimit:  getEnvInt("SYNC_RATE_LIMIT_PER_MIN", 6),
	}, nil
}

// Validate checks the settings every mode needs. Google OAuth settings are
// not checked here; a missing value is reported by the operations that use it.
func (c *Config) Validate() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.RedisURL == "" {
		missing = append(missing, "REDIS_URL")
	}
	if c.EncryptionKey == "" {
		missing = append(missing, "ENCRYPTION_KEY")
	}
	if c.StoreBackend == StoreMongo && c.MongoDBURL == "" {
		missing = append(missing, "MONGODB_URL")
	}
	if len(missing) > 0 {
		return apperr.ConfigError("missing required configuration: " + strings.Join(missing, ", "))
	}

	switch c.StoreBackend {
	case StorePostgres, StoreMongo:
	default:
		return apperr.ConfigError(fmt.Sprintf("STORE_BACKEND must be %q or %q, got %q", StorePostgres, StoreMongo, c.StoreBackend))
	}
	return nil
}

// ValidateAPI adds the checks only the HTTP server needs.
func (c *Config) ValidateAPI() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.JWTSecret == "" {
		return apperr.ConfigError("missing required configuration: JWT_SECRET")
	}
	return nil
}

// SyncConfig maps the SYNC_* settings onto the orchestrator's config.
func (c *Config) SyncConfig() syncer.Config {
	return syncer.Config{
		LookbackDays:       c.SyncLookbackDays,
		MaxResults:         int64(c.SyncMaxResults),
		MessageConcurrency: c.SyncMessageConcurrency,
		RunTimeout:         c.SyncRunTimeout,
		GuardTTL:           c.SyncGuardTTL,
	}
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

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
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

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
