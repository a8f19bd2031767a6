package internal

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Draft store providers.
const (
	DraftStoreLocal = "local"
	DraftStoreR2    = "r2"
	DraftStoreRedis = "redis"
)

type Config struct {
	Env         string
	Port        int
	LogLevel    string
	DatabaseUrl string

	// Public base URL, used for checkout return links
	BaseURL string

	// Quiz draft cache
	DraftStore string // "local", "r2" or "redis"
	DraftPath  string // Base directory for local drafts
	DraftTTL   time.Duration

	// R2 draft storage
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string

	// Redis draft storage
	RedisURL string

	// Backoff for transient store failures
	StoreMaxRetries     uint64
	StoreRetryBaseDelay time.Duration
	StoreRetryMaxDelay  time.Duration

	// Worker Configuration
	WorkerEnabled         bool
	WorkerConcurrency     int
	WorkerPollInterval    time.Duration
	WorkerJobTimeout      time.Duration
	WorkerShutdownTimeout time.Duration

	// AI Provider Configuration
	AIProvider       string // "anthropic" or "mock"
	AnthropicAPIKey  string
	AnthropicModel   string
	AIMaxRetries     int
	AIRetryBaseDelay time.Duration
	AIRequestTimeout time.Duration

	// Stripe billing. The webhook acknowledges and ignores events when the
	// secrets are empty.
	StripeSecretKey     string
	StripeWebhookSecret string

	// Stripe Price IDs for each paid plan
	StripeProMonthlyPriceID string
	StripePro60DayPriceID   string
	StripeProYearlyPriceID  string

	// Per-client request limit on mutating API calls
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint will be unprotected (not recommended)
	MetricsUsername string
	MetricsPassword string
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "debug"),
		BaseURL:  getEnv("BASE_URL", "http://localhost:8080"),

		DraftStore: getEnv("DRAFT_STORE", DraftStoreLocal),
		DraftPath:  getEnv("DRAFT_PATH", "./data/drafts"),
		DraftTTL:   getEnvDuration("DRAFT_TTL", 7*24*time.Hour),

		R2AccountID:       getEnv("R2_ACCOUNT_ID", ""),
		R2AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
		R2SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
		R2BucketName:      getEnv("R2_BUCKET_NAME", ""),

		RedisURL: getEnv("REDIS_URL", ""),

		StoreMaxRetries:     uint64(getEnvInt("STORE_MAX_RETRIES", 4)),
		StoreRetryBaseDelay: getEnvDuration("STORE_RETRY_BASE_DELAY", 50*time.Millisecond),
		StoreRetryMaxDelay:  getEnvDuration("STORE_RETRY_MAX_DELAY", 2*time.Second),

		WorkerEnabled:         getEnvBool("WORKER_ENABLED", true),
		WorkerConcurrency:     getEnvInt("WORKER_CONCURRENCY", 2),
		WorkerPollInterval:    getEnvDuration("WORKER_POLL_INTERVAL", 2*time.Second),
		WorkerJobTimeout:      getEnvDuration("WORKER_JOB_TIMEOUT", 2*time.Minute),
		WorkerShutdownTimeout: getEnvDuration("WORKER_SHUTDOWN_TIMEOUT", 30*time.Second),

		AIProvider:       getEnv("AI_PROVIDER", "mock"),
		AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:   getEnv("ANTHROPIC_MODEL", ""),
		AIMaxRetries:     getEnvInt("AI_MAX_RETRIES", 3),
		AIRetryBaseDelay: getEnvDuration("AI_RETRY_BASE_DELAY", 1*time.Second),
		AIRequestTimeout: getEnvDuration("AI_REQUEST_TIMEOUT", 60*time.Second),

		StripeSecretKey:         getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret:     getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripeProMonthlyPriceID: getEnv("STRIPE_PRO_MONTHLY_PRICE_ID", ""),
		StripePro60DayPriceID:   getEnv("STRIPE_PRO_60DAY_PRICE_ID", ""),
		StripeProYearlyPriceID:  getEnv("STRIPE_PRO_YEARLY_PRICE_ID", ""),

		RateLimitRequests: getEnvInt("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),

		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	// Required
	cfg.DatabaseUrl = os.Getenv("DATABASE_URL")
	if cfg.DatabaseUrl == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks provider choices and the settings each one needs.
func (c *Config) Validate() error {
	switch c.DraftStore {
	case DraftStoreLocal:
		if c.DraftPath == "" {
			return fmt.Errorf("DRAFT_PATH is required when DRAFT_STORE is 'local'")
		}
	case DraftStoreR2:
		if c.R2AccountID == "" {
			return fmt.Errorf("R2_ACCOUNT_ID is required when DRAFT_STORE is 'r2'")
		}
		if c.R2AccessKeyID == "" {
			return fmt.Errorf("R2_ACCESS_KEY_ID is required when DRAFT_STORE is 'r2'")
		}
		if c.R2SecretAccessKey == "" {
			return fmt.Errorf("R2_SECRET_ACCESS_KEY is required when DRAFT_STORE is 'r2'")
		}
		if c.R2BucketName == "" {
			return fmt.Errorf("R2_BUCKET_NAME is required when DRAFT_STORE is 'r2'")
		}
	case DraftStoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when DRAFT_STORE is 'redis'")
		}
		if c.DraftTTL <= 0 {
			return fmt.Errorf("DRAFT_TTL must be positive, got %v", c.DraftTTL)
		}
	default:
		return fmt.Errorf("DRAFT_STORE must be one of 'local', 'r2' or 'redis', got: %s", c.DraftStore)
	}

	if c.AIProvider == "anthropic" {
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is 'anthropic'")
		}
	} else if c.AIProvider != "mock" {
		return fmt.Errorf("AI_PROVIDER must be either 'anthropic' or 'mock', got: %s", c.AIProvider)
	}

	// A webhook secret without an API key would verify events it cannot act on.
	if c.StripeWebhookSecret != "" && c.StripeSecretKey == "" {
		return fmt.Errorf("STRIPE_SECRET_KEY is required when STRIPE_WEBHOOK_SECRET is set")
	}

	if c.RateLimitRequests < 1 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be at least 1, got %d", c.RateLimitRequests)
	}
	if c.RateLimitWindow < time.Second {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be at least 1s, got %v", c.RateLimitWindow)
	}

	return nil
}

// BillingEnabled reports whether Stripe is configured.
func (c *Config) BillingEnabled() bool {
	return c.StripeSecretKey != "" && c.StripeWebhookSecret != ""
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
