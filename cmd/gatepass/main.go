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

	"github.com/gatepass-hq/gatepass/internal/admin"
	"github.com/gatepass-hq/gatepass/internal/app"
	"github.com/gatepass-hq/gatepass/internal/auth"
	"github.com/gatepass-hq/gatepass/internal/notify"
	"github.com/gatepass-hq/gatepass/internal/observability"
	"github.com/gatepass-hq/gatepass/internal/org"
	"github.com/gatepass-hq/gatepass/internal/permits"
	"github.com/gatepass-hq/gatepass/internal/platform/cache"
	"github.com/gatepass-hq/gatepass/internal/platform/db"
	"github.com/gatepass-hq/gatepass/internal/shared"
	"github.com/gatepass-hq/gatepass/jobs"
	"github.com/gatepass-hq/gatepass/report"
)

const migrationsDir = "db/migrations"

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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	if err := db.Migrate(ctx, dbpool, migrationsDir); err != nil {
		logger.Error("apply migrations", slog.Any("error", err))
		os.Exit(1)
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "gatepass_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager)

	auditLogger := shared.NewAuditLogger(dbpool)

	orgRepo := org.NewRepository(dbpool)
	orgHandler := org.NewHandler(logger, orgRepo)
	employeeMiddleware := org.Middleware{Resolver: orgRepo, Logger: logger}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq close", slog.Any("error", err))
		}
	}()
	dispatcher := notify.NewDispatcher(logger, asynqClient)

	permitRepo := permits.NewRepository(dbpool)
	permitService := permits.NewService(permitRepo, orgRepo, dispatcher, logger)
	idemStore := shared.NewIdempotencyStore(dbpool)
	permitHandler := permits.NewHandler(logger, permitService, auditLogger, idemStore)

	reportClient := report.NewClient(cfg.GotenbergURL)
	reportHandler := report.NewHandler(reportClient, logger)

	adminHandler := admin.NewHandler(logger, orgRepo, permitRepo, reportClient, auditLogger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		AuthHandler:        authHandler,
		OrgHandler:         orgHandler,
		PermitsHandler:     permitHandler,
		AdminHandler:       adminHandler,
		ReportHandler:      reportHandler,
		JobHandler:         jobHandler,
		EmployeeMiddleware: employeeMiddleware,
		Metrics:            metrics,
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
