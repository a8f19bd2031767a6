package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ZaidMomin2003/talxify/internal"
	"github.com/ZaidMomin2003/talxify/internal/ai"
	"github.com/ZaidMomin2003/talxify/internal/ai/anthropic"
	"github.com/ZaidMomin2003/talxify/internal/ai/mock"
	"github.com/ZaidMomin2003/talxify/internal/billing"
	"github.com/ZaidMomin2003/talxify/internal/domain"
	"github.com/ZaidMomin2003/talxify/internal/draft"
	"github.com/ZaidMomin2003/talxify/internal/handler"
	"github.com/ZaidMomin2003/talxify/internal/jobs"
	"github.com/ZaidMomin2003/talxify/internal/metrics"
	"github.com/ZaidMomin2003/talxify/internal/middleware"
	"github.com/ZaidMomin2003/talxify/internal/repository"
	"github.com/ZaidMomin2003/talxify/internal/service"
	"github.com/ZaidMomin2003/talxify/internal/storage"
	"github.com/ZaidMomin2003/talxify/internal/worker"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database connection
	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// Run migrations
	if err := internal.RunMigrations(db); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database ready")

	// ==========================================================================
	// Ledger, drafts and generator
	// ==========================================================================

	store := repository.NewStore(db)

	drafts, closeDrafts, err := newDraftStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("draft store initialization failed: %w", err)
	}
	defer closeDrafts()

	gen, err := newGenerator(cfg, logger)
	if err != nil {
		return fmt.Errorf("ai provider initialization failed: %w", err)
	}

	queue := worker.NewPostgresQueue(db)
	enqueuer := worker.NewEnqueuer(queue)

	// ==========================================================================
	// Services
	// ==========================================================================

	retry := service.RetryConfig{
		MaxRetries: cfg.StoreMaxRetries,
		BaseDelay:  cfg.StoreRetryBaseDelay,
		MaxDelay:   cfg.StoreRetryMaxDelay,
	}
	quota := service.NewQuotaService(store, service.QuotaConfig{Retry: retry}, logger)
	activity := service.NewActivityService(store, retry, nil, logger)
	gate := service.NewGate(quota, activity, gen, enqueuer, logger)
	quiz := service.NewQuizService(quota, activity, drafts, gen, enqueuer, retry, logger)

	// Background worker
	var w *worker.Worker
	if cfg.WorkerEnabled {
		wcfg := worker.DefaultConfig()
		wcfg.Concurrency = cfg.WorkerConcurrency
		wcfg.PollInterval = cfg.WorkerPollInterval
		wcfg.JobTimeout = cfg.WorkerJobTimeout
		wcfg.ShutdownTimeout = cfg.WorkerShutdownTimeout

		w, err = worker.New(queue, wcfg, logger)
		if err != nil {
			return fmt.Errorf("worker initialization failed: %w", err)
		}
		w.Register(jobs.NewGradeQuizHandler(activity, quiz, gen, logger))
		w.Register(jobs.NewAnalyzeInterviewHandler(activity, gen, logger))
		w.Start(ctx)
	} else {
		logger.Warn("Worker disabled, analyses will stay pending")
	}

	// Billing is optional outside production
	var billingService billing.Service
	if cfg.BillingEnabled() {
		billingService = billing.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookSecret, billing.PriceConfig{
			ProMonthlyPriceID: cfg.StripeProMonthlyPriceID,
			Pro60DayPriceID:   cfg.StripePro60DayPriceID,
			ProYearlyPriceID:  cfg.StripeProYearlyPriceID,
		})
		logger.Info("Stripe billing enabled")
	} else {
		logger.Warn("Stripe billing not configured, plan changes need cmd/setplan")
	}

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	handler.NewAPIHandler(quota, activity, gate, quiz, db, logger).RegisterRoutes(mux)
	handler.NewBillingHandler(billingService, quota, cfg.BaseURL, logger).RegisterRoutes(mux)
	handler.NewWebhookHandler(billingService, quota, logger).RegisterRoutes(mux)

	if cfg.MetricsUsername == "" && cfg.MetricsPassword == "" {
		logger.Warn("Metrics endpoint is unprotected, set METRICS_USERNAME and METRICS_PASSWORD")
	}
	metricsAuth := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword)
	mux.Handle("GET /metrics", metricsAuth.Handler(promhttp.Handler()))

	limiter := middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)
	go limiter.Run(ctx)

	isSecure := cfg.Env != "development"
	stack := middleware.Stack(
		middleware.NewRequestLoggingMiddleware(logger).Handler,
		metrics.Middleware,
		middleware.NewSecurityHeadersMiddleware(isSecure).Handler,
		middleware.NewRateLimitMiddleware(limiter, logger).Limit,
	)

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           stack(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Generation calls run inside the request.
		WriteTimeout: cfg.AIRequestTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received, initiating graceful shutdown...")
	case err := <-serverErr:
		logger.Error("Server failed", "error", err)
	}

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}
	if w != nil {
		w.Stop()
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

// newDraftStore builds the configured quiz draft backend and its cleanup.
func newDraftStore(ctx context.Context, cfg *internal.Config, logger *slog.Logger) (domain.DraftStore, func(), error) {
	switch cfg.DraftStore {
	case internal.DraftStoreRedis:
		client, err := draft.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Draft store ready", "provider", cfg.DraftStore, "ttl", cfg.DraftTTL)
		return draft.NewRedisStore(client, cfg.DraftTTL, logger), func() { _ = client.Close() }, nil

	default:
		blobs, err := storage.New(storage.Config{
			Provider: cfg.DraftStore,
			Local:    storage.LocalConfig{BasePath: cfg.DraftPath},
			R2: storage.R2Config{
				AccountID:       cfg.R2AccountID,
				AccessKeyID:     cfg.R2AccessKeyID,
				SecretAccessKey: cfg.R2SecretAccessKey,
				BucketName:      cfg.R2BucketName,
				Region:          "auto",
			},
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Draft store ready", "provider", cfg.DraftStore)
		return draft.NewBlobStore(blobs, logger), func() {}, nil
	}
}

// newGenerator builds the configured AI provider.
func newGenerator(cfg *internal.Config, logger *slog.Logger) (ai.Generator, error) {
	if cfg.AIProvider != "anthropic" {
		logger.Warn("Using mock AI provider")
		return mock.New(logger), nil
	}

	provider, err := anthropic.New(anthropic.Config{
		APIKey: cfg.AnthropicAPIKey,
		Model:  cfg.AnthropicModel,
		ProviderConfig: ai.ProviderConfig{
			MaxRetries:     cfg.AIMaxRetries,
			RetryBaseDelay: cfg.AIRetryBaseDelay,
			RequestTimeout: cfg.AIRequestTimeout,
		},
	}, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("AI provider ready", "provider", "anthropic", "model", cfg.AnthropicModel)
	return provider, nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
