// Package config defines configuration parsing and helpers.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	AppEnv string `env:"APP_ENV" envDefault:"dev"`
	Port   int    `env:"PORT" envDefault:"8000"`
	// LogLevel overrides the environment default (debug in dev, info otherwise).
	LogLevel string `env:"LOG_LEVEL"`

	// Chat provider (OpenAI-compatible).
	OpenAIAPIKey        string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL       string        `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	OpenAIModel         string        `env:"OPENAI_MODEL" envDefault:"gpt-5-nano"`
	OpenAIChatModel     string        `env:"OPENAI_CHAT_MODEL" envDefault:"gpt-3.5-turbo"`
	OpenAITimeout       time.Duration `env:"OPENAI_TIMEOUT" envDefault:"60s"`
	ChatMaxPromptTokens int           `env:"CHAT_MAX_PROMPT_TOKENS" envDefault:"8000"`

	// AI detection provider.
	GPTZeroAPIKey     string        `env:"GPTZERO_API_KEY"`
	GPTZeroURL        string        `env:"GPTZERO_URL" envDefault:"https://api.gptzero.me/v2/predict/text"`
	GPTZeroTimeout    time.Duration `env:"GPTZERO_TIMEOUT" envDefault:"60s"`
	GPTZeroMaxElapsed time.Duration `env:"GPTZERO_MAX_ELAPSED" envDefault:"10s"`

	// External humanizer.
	HumanizerAPIKey  string        `env:"HUMANIZER_API_KEY"`
	HumanizerURL     string        `env:"HUMANIZER_URL" envDefault:"https://humanizerpro.ai/api/v1/humanize"`
	HumanizerTimeout time.Duration `env:"HUMANIZER_TIMEOUT" envDefault:"30s"`
	// SimilarityMinLengthDelta is the length difference below which an external
	// rewrite is rejected as too similar to its input.
	SimilarityMinLengthDelta int `env:"SIMILARITY_MIN_LENGTH_DELTA" envDefault:"25"`

	// Optional storage. Empty values disable the feature.
	DBURL          string        `env:"DB_URL"`
	DBMaxConns     int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	RedisURL       string        `env:"REDIS_URL"`
	DetectCacheTTL time.Duration `env:"DETECT_CACHE_TTL" envDefault:"1h"`

	HistoryRetentionDays   int           `env:"HISTORY_RETENTION_DAYS" envDefault:"90"`
	HistoryCleanupInterval time.Duration `env:"HISTORY_CLEANUP_INTERVAL" envDefault:"24h"`

	// FrontendDir is mounted under /static when it exists.
	FrontendDir string `env:"FRONTEND_DIR" envDefault:"../Frontend"`

	OTLPEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	OTELServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"verihuman-api"`
	// TraceSampleRatio in [0,1]; negative selects 0.1 in prod and 1.0 elsewhere.
	TraceSampleRatio float64 `env:"OTEL_TRACES_SAMPLER_ARG" envDefault:"-1"`

	CORSAllowOrigins      string        `env:"CORS_ALLOW_ORIGINS" envDefault:"*"`
	RateLimitPerMin       int           `env:"RATE_LIMIT_PER_MIN" envDefault:"60"`
	MaxBodyMB             int64         `env:"MAX_BODY_MB" envDefault:"5"`
	RequestTimeout        time.Duration `env:"REQUEST_TIMEOUT" envDefault:"90s"`
	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	HTTPReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"120s"`
	HTTPIdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`

	// Circuit breaker applied to the detection and humanizer upstreams.
	BreakerMaxFailures int           `env:"BREAKER_MAX_FAILURES" envDefault:"5"`
	BreakerCooldown    time.Duration `env:"BREAKER_COOLDOWN" envDefault:"30s"`

	// Shared per-provider quotas in requests per minute, enforced through
	// Redis. 0 disables the quota.
	GPTZeroRPM   int `env:"GPTZERO_RPM" envDefault:"0"`
	HumanizerRPM int `env:"HUMANIZER_RPM" envDefault:"0"`
	OpenAIRPM    int `env:"OPENAI_RPM" envDefault:"0"`
}

// Load reads an optional .env file and parses environment variables into a Config.
// Variables already present in the environment take precedence over the file.
func Load(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("op=config.Load: dotenv: %w", err)
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	return cfg, nil
}

// IsDev reports whether the app is running in development mode.
func (c Config) IsDev() bool { return strings.ToLower(c.AppEnv) == "dev" }

// IsProd reports whether the app is running in production mode.
func (c Config) IsProd() bool { return strings.ToLower(c.AppEnv) == "prod" }

// IsTest reports whether the app is running in test mode.
func (c Config) IsTest() bool { return strings.ToLower(c.AppEnv) == "test" }

// HistoryEnabled reports whether operation history is persisted to Postgres.
func (c Config) HistoryEnabled() bool { return strings.TrimSpace(c.DBURL) != "" }

// CacheEnabled reports whether detection results are cached in Redis.
func (c Config) CacheEnabled() bool { return strings.TrimSpace(c.RedisURL) != "" && c.DetectCacheTTL > 0 }

// QuotasEnabled reports whether any upstream quota is configured and Redis is available.
func (c Config) QuotasEnabled() bool {
	return strings.TrimSpace(c.RedisURL) != "" && (c.GPTZeroRPM > 0 || c.HumanizerRPM > 0 || c.OpenAIRPM > 0)
}

// GetDetectBackoffConfig returns retry settings for the detection upstream.
// In test environments the budget is cut down for fast test execution.
func (c Config) GetDetectBackoffConfig() (maxElapsedTime, initialInterval, maxInterval time.Duration) {
	if c.IsTest() {
		return 500 * time.Millisecond, 10 * time.Millisecond, 50 * time.Millisecond
	}
	return c.GPTZeroMaxElapsed, 500 * time.Millisecond, 4 * time.Second
}
