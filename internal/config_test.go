package internal

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/talxify")
	t.Setenv("DRAFT_STORE", "")
	t.Setenv("AI_PROVIDER", "")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, DraftStoreLocal, cfg.DraftStore)
	assert.Equal(t, "mock", cfg.AIProvider)
	assert.Equal(t, 7*24*time.Hour, cfg.DraftTTL)
	assert.Equal(t, uint64(4), cfg.StoreMaxRetries)
	assert.False(t, cfg.BillingEnabled())
}

func TestNewConfig_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := NewConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestNewConfig_ParsesOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/talxify")
	t.Setenv("DRAFT_STORE", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("DRAFT_TTL", "36h")
	t.Setenv("STORE_MAX_RETRIES", "2")
	t.Setenv("WORKER_ENABLED", "false")
	t.Setenv("RATE_LIMIT_WINDOW", "not-a-duration")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, DraftStoreRedis, cfg.DraftStore)
	assert.Equal(t, 36*time.Hour, cfg.DraftTTL)
	assert.Equal(t, uint64(2), cfg.StoreMaxRetries)
	assert.False(t, cfg.WorkerEnabled)
	assert.Equal(t, time.Minute, cfg.RateLimitWindow, "unparsable values fall back")
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			DraftStore:        DraftStoreLocal,
			DraftPath:         "./data/drafts",
			DraftTTL:          time.Hour,
			AIProvider:        "mock",
			RateLimitRequests: 10,
			RateLimitWindow:   time.Minute,
		}
	}

	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr string
	}{
		{name: "valid local", modify: func(c *Config) {}},
		{
			name:    "unknown draft store",
			modify:  func(c *Config) { c.DraftStore = "s3" },
			wantErr: "DRAFT_STORE",
		},
		{
			name:    "r2 without bucket",
			modify:  func(c *Config) { c.DraftStore = DraftStoreR2; c.R2AccountID, c.R2AccessKeyID, c.R2SecretAccessKey = "a", "b", "c" },
			wantErr: "R2_BUCKET_NAME",
		},
		{
			name: "r2 complete",
			modify: func(c *Config) {
				c.DraftStore = DraftStoreR2
				c.R2AccountID, c.R2AccessKeyID, c.R2SecretAccessKey, c.R2BucketName = "a", "b", "c", "drafts"
			},
		},
		{
			name:    "redis without url",
			modify:  func(c *Config) { c.DraftStore = DraftStoreRedis },
			wantErr: "REDIS_URL",
		},
		{
			name:    "redis without ttl",
			modify:  func(c *Config) { c.DraftStore = DraftStoreRedis; c.RedisURL = "redis://x"; c.DraftTTL = 0 },
			wantErr: "DRAFT_TTL",
		},
		{
			name:    "anthropic without key",
			modify:  func(c *Config) { c.AIProvider = "anthropic" },
			wantErr: "ANTHROPIC_API_KEY",
		},
		{
			name:    "unknown ai provider",
			modify:  func(c *Config) { c.AIProvider = "openai" },
			wantErr: "AI_PROVIDER",
		},
		{
			name:    "webhook secret without api key",
			modify:  func(c *Config) { c.StripeWebhookSecret = "whsec_x" },
			wantErr: "STRIPE_SECRET_KEY",
		},
		{
			name:    "zero rate limit",
			modify:  func(c *Config) { c.RateLimitRequests = 0 },
			wantErr: "RATE_LIMIT_REQUESTS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewLogger_Levels(t *testing.T) {
	tests := []struct {
		level   string
		debugOn bool
		warnOn  bool
	}{
		{level: "debug", debugOn: true, warnOn: true},
		{level: "info", debugOn: false, warnOn: true},
		{level: "error", debugOn: false, warnOn: false},
		{level: "bogus", debugOn: false, warnOn: true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(&buf, "production", tt.level)
			logger.Debug("d")
			logger.Warn("w")

			out := buf.String()
			assert.Equal(t, tt.debugOn, strings.Contains(out, `"msg":"d"`))
			assert.Equal(t, tt.warnOn, strings.Contains(out, `"msg":"w"`))
			if tt.warnOn {
				assert.Contains(t, out, `"service":"talxify"`)
			}
		})
	}
}
