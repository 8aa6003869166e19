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
	"github.com/joho/godotenv"

	"github.com/tradedocs/tradedocs/internal/app"
	"github.com/tradedocs/tradedocs/internal/auth"
	"github.com/tradedocs/tradedocs/internal/companies"
	"github.com/tradedocs/tradedocs/internal/documents"
	"github.com/tradedocs/tradedocs/internal/numbering"
	"github.com/tradedocs/tradedocs/internal/observability"
	"github.com/tradedocs/tradedocs/internal/platform/cache"
	"github.com/tradedocs/tradedocs/internal/platform/db"
	"github.com/tradedocs/tradedocs/internal/shared"
	"github.com/tradedocs/tradedocs/jobs"
	"github.com/tradedocs/tradedocs/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	locker := cache.NewLocker(redisClient)

	companyRepo := companies.NewRepository(pool)
	companyService := companies.NewService(companyRepo, redisClient, logger)
	companyHandler := companies.NewHandler(logger, companyService)

	documentRepo := documents.NewRepository(pool)
	generator := numbering.NewGenerator(documentRepo, logger)
	documentService := documents.NewService(documentRepo, companyService, generator, locker, auditLogger, metrics, logger)

	reportClient := report.NewClient(cfg.GotenbergURL, cfg.GotenbergTimeout)
	renderer, err := report.NewRenderer(reportClient)
	if err != nil {
		logger.Error("build renderer", slog.Any("error", err))
		os.Exit(1)
	}
	documentHandler := documents.NewHandler(logger, documentService, renderer, idempotencyStore)

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		AuthService:      authService,
		AuthHandler:      authHandler,
		DocumentsHandler: documentHandler,
		CompaniesHandler: companyHandler,
		JobHandler:       jobHandler,
		Metrics:          metrics,
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
