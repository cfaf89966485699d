package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/falco-investigation/falco/internal/app"
	"github.com/falco-investigation/falco/internal/auth"
	"github.com/falco-investigation/falco/internal/blob"
	"github.com/falco-investigation/falco/internal/export"
	"github.com/falco-investigation/falco/internal/imageproxy"
	investigationhttp "github.com/falco-investigation/falco/internal/investigation/http"
	"github.com/falco-investigation/falco/internal/observability"
	"github.com/falco-investigation/falco/internal/platform/cache"
	"github.com/falco-investigation/falco/internal/platform/db"
	"github.com/falco-investigation/falco/internal/shared"
	"github.com/falco-investigation/falco/internal/view"
	"github.com/falco-investigation/falco/jobs"
	"github.com/falco-investigation/falco/report"
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

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

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

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	queue := jobs.NewClient(redisOpts)
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	services, err := app.NewServices(cfg, pool, redisClient, queue, metrics, logger)
	if err != nil {
		logger.Error("build services", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := services.Blobs.Close(); err != nil {
			logger.Warn("close blob store", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	authHandler := auth.NewHandler(logger, auth.NewService(auth.NewRepository(pool)), templates, sessionManager, csrfManager, services.Drafts)
	reportHandler := investigationhttp.NewHandler(investigationhttp.Config{
		Drafts:         services.Drafts,
		Photos:         services.Photos,
		Profiles:       services.Profiles,
		Exports:        services.Exports,
		Document:       services.Document,
		Templates:      templates,
		CSRF:           csrfManager,
		City:           cfg.City,
		MaxUploadBytes: cfg.MaxUploadBytes(),
		Logger:         logger,
	})
	proxyHandler := imageproxy.NewHandler(imageproxy.Config{
		RatePerSecond: cfg.ProxyRatePerSecond,
		Burst:         cfg.ProxyBurst,
		AllowedHosts:  cfg.ProxyHosts(),
		Metrics:       metrics,
		Logger:        logger,
	})

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		SessionManager:    sessionManager,
		CSRFManager:       csrfManager,
		Metrics:           metrics,
		AuthHandler:       authHandler,
		ReportHandler:     reportHandler,
		ExportHandler:     export.NewHandler(services.Exports, services.Drafts, logger),
		BlobHandler:       blob.NewHandler(services.Blobs, logger),
		ImageProxyHandler: proxyHandler,
		JobHandler:        jobs.NewHandler(inspector, logger),
		GotenbergHandler:  report.NewHandler(services.Gotenberg, services.BlankReport(cfg.City), logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go services.Drafts.Run(ctx, time.Minute, cfg.SessionTTL)

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	if err := services.Drafts.Shutdown(shutdownCtx); err != nil {
		logger.Error("flush reports", slog.Any("error", err))
	}
}
