package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/loomstudio/loomstudio/internal/accounts"
	"github.com/loomstudio/loomstudio/internal/app"
	"github.com/loomstudio/loomstudio/internal/billing"
	"github.com/loomstudio/loomstudio/internal/ledger"
	"github.com/loomstudio/loomstudio/internal/observability"
	"github.com/loomstudio/loomstudio/internal/platform/cache"
	"github.com/loomstudio/loomstudio/internal/platform/db"
	"github.com/loomstudio/loomstudio/internal/provider"
	"github.com/loomstudio/loomstudio/internal/shared"
	"github.com/loomstudio/loomstudio/internal/studio"
	"github.com/loomstudio/loomstudio/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, db.Config{
		DSN:             cfg.PGDSN,
		MaxConns:        cfg.PGMaxConns,
		MinConns:        cfg.PGMinConns,
		ConnMaxLifetime: cfg.PGConnMaxLifetime,
	})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cache.Options{
		Addr:        cfg.RedisAddr,
		DB:          cfg.RedisDB,
		DialTimeout: cfg.RedisDialTimeout,
	})
	if err != nil {
		logger.Warn("redis unavailable, plan limits disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	accountsRepo := accounts.NewRepository(pool)
	accountsService := accounts.NewService(accountsRepo, cfg.AdminEmails, logger)
	authenticator := accounts.NewAuthenticator(cfg.AuthTokenSecret, accountsService, logger)

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, metrics, logger)
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	providerClient := provider.New(provider.Config{
		BaseURL:        cfg.ProviderBaseURL,
		APIKey:         cfg.ProviderAPIKey,
		Timeout:        cfg.ProviderTimeout,
		MaxRetries:     cfg.ProviderMaxRetries,
		RetryBaseDelay: cfg.ProviderRetryBaseDelay,
	}, logger)

	studioRepo := studio.NewRepository(pool)
	studioService := studio.NewService(studioRepo, providerClient, ledgerService, metrics, studio.ServiceConfig{
		PromptMinLen:    cfg.PromptMinLen,
		PromptMaxLen:    cfg.PromptMaxLen,
		ContextMessages: cfg.ChatContextMessages,
		ChatModel:       cfg.ChatModel,
		ChatTemperature: cfg.ChatTemperature,
		ChatMaxTokens:   cfg.ChatMaxTokens,
	}, logger)
	studioHandler := studio.NewHandler(logger, studioService)

	var billingHandler *billing.Handler
	if cfg.StripeWebhookSecret != "" {
		billingHandler = billing.NewHandler(logger, ledgerService, billing.Config{
			WebhookSecret:  cfg.StripeWebhookSecret,
			CreditsPerCent: cfg.CreditsPerCent,
		})
	}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, logger)

	planLimiter := shared.NewRateLimiter(redisClient, cfg.PlanRateLimit, cfg.PlanRateLimitWindow)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Authenticator:  authenticator,
		StudioHandler:  studioHandler,
		LedgerHandler:  ledgerHandler,
		BillingHandler: billingHandler,
		JobHandler:     jobHandler,
		PlanLimiter:    planLimiter,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
