package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Dedupe       DedupeConfig
	Embedding    EmbeddingConfig
	Moderation   ModerationConfig
	Classifier   ClassifierConfig
	Identity     IdentityConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. When Addr is empty the
// service runs without Redis and keeps the embedding cache in process.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig holds the shared secret for agent tokens.
type AuthConfig struct {
	JWTSecret            string
	AgentTokenTTLMinutes int
}

// DedupeConfig tunes the duplicate-submission check on ticket intake.
type DedupeConfig struct {
	WindowMinutes       int
	SimilarityThreshold float64
	MaxCandidates       int
	MaxCreateAttempts   int
}

// EmbeddingConfig configures the embedding provider. With no APIKey the
// provider always uses the local fallback path.
type EmbeddingConfig struct {
	APIKey          string
	BaseURL         string
	Model           string
	CacheTTLMinutes int
	CooldownMinutes int
}

// ModerationConfig configures the content moderation checker.
// FailMode is "open" (permissive) or "closed" (strict) and applies when
// the remote classifier is unconfigured or unreachable.
type ModerationConfig struct {
	APIKey   string
	BaseURL  string
	FailMode string
}

// ClassifierConfig configures the AI priority classifier.
type ClassifierConfig struct {
	APIKey string
	Model  string
}

// IdentityConfig points at the storefront identity provider.
type IdentityConfig struct {
	BaseURL        string
	APIKey         string
	TimeoutSeconds int
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	EmailFrom  string
	WebhookURL string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "support-intake-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:            getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AgentTokenTTLMinutes: getEnvAsInt("AUTH_AGENT_TOKEN_TTL_MINUTES", 480),
		},
		Dedupe: DedupeConfig{
			WindowMinutes:       getEnvAsInt("DEDUPE_WINDOW_MINUTES", 10),
			SimilarityThreshold: getEnvAsFloat("DEDUPE_SIMILARITY_THRESHOLD", 0.88),
			MaxCandidates:       getEnvAsInt("DEDUPE_MAX_CANDIDATES", 5),
			MaxCreateAttempts:   getEnvAsInt("TICKET_CREATE_MAX_ATTEMPTS", 5),
		},
		Embedding: EmbeddingConfig{
			APIKey:          os.Getenv("EMBEDDING_API_KEY"),
			BaseURL:         getEnv("EMBEDDING_API_BASE_URL", "https://api.openai.com"),
			Model:           getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			CacheTTLMinutes: getEnvAsInt("EMBEDDING_CACHE_TTL_MINUTES", 15),
			CooldownMinutes: getEnvAsInt("EMBEDDING_COOLDOWN_MINUTES", 10),
		},
		Moderation: ModerationConfig{
			APIKey:   os.Getenv("MODERATION_API_KEY"),
			BaseURL:  getEnv("MODERATION_API_BASE_URL", "https://api.openai.com"),
			FailMode: getEnv("MODERATION_FAIL_MODE", "open"),
		},
		Classifier: ClassifierConfig{
			APIKey: os.Getenv("ANTHROPIC_API_KEY"),
			Model:  getEnv("CLASSIFIER_MODEL", "claude-3-5-haiku-20241022"),
		},
		Identity: IdentityConfig{
			BaseURL:        getEnv("IDENTITY_BASE_URL", ""),
			APIKey:         os.Getenv("IDENTITY_API_KEY"),
			TimeoutSeconds: getEnvAsInt("IDENTITY_TIMEOUT_SECONDS", 5),
		},
		Notification: NotificationConfig{
			EmailFrom:  getEnv("NOTIFY_EMAIL_FROM", "support@terratile.example"),
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Window returns the dedupe recency window.
func (d DedupeConfig) Window() time.Duration {
	return time.Duration(d.WindowMinutes) * time.Minute
}

// CacheTTL returns how long cached embeddings stay valid.
func (e EmbeddingConfig) CacheTTL() time.Duration {
	return time.Duration(e.CacheTTLMinutes) * time.Minute
}

// Cooldown returns how long the remote path stays disabled after a
// rate-limit failure.
func (e EmbeddingConfig) Cooldown() time.Duration {
	return time.Duration(e.CooldownMinutes) * time.Minute
}

// FailOpen reports whether moderation defaults to permissive behavior
// when the remote classifier cannot be consulted.
func (m ModerationConfig) FailOpen() bool {
	return m.FailMode != "closed"
}

// AgentTokenTTL returns the lifetime for issued agent tokens.
func (a AuthConfig) AgentTokenTTL() time.Duration {
	return time.Duration(a.AgentTokenTTLMinutes) * time.Minute
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
