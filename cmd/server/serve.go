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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ayush/tasktracker/backend/internal/audit"
	"github.com/ayush/tasktracker/backend/internal/auth"
	"github.com/ayush/tasktracker/backend/internal/config"
	"github.com/ayush/tasktracker/backend/internal/logging"
	"github.com/ayush/tasktracker/backend/internal/middleware"
	"github.com/ayush/tasktracker/backend/internal/ratelimit"
	"github.com/ayush/tasktracker/backend/internal/server"
	"github.com/ayush/tasktracker/backend/internal/store"
	"github.com/ayush/tasktracker/backend/internal/tasks"
)

func runServe(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger := logging.Setup("tasktracker", version, cfg.LogFormat, os.Stderr)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logging.LogError(ctx, logger, "invalid configuration", err, false)
		return err
	}
	diagnostics := !cfg.IsProduction()

	// ── PostgreSQL ────────────────────────────────────────────
	pgPool, err := store.ConnectPostgres(ctx, logger, cfg.PostgresDSN, cfg.ConnectRetries)
	if err != nil {
		logging.LogError(ctx, logger, "postgres connect failed", err, diagnostics)
		return err
	}
	defer pgPool.Close()
	if err := store.Migrate(ctx, cfg.PostgresDSN); err != nil {
		logging.LogError(ctx, logger, "postgres migrate failed", err, diagnostics)
		return err
	}
	users := store.NewPostgresStore(pgPool)

	// ── MongoDB ──────────────────────────────────────────────
	mongoClient, err := store.ConnectMongo(ctx, logger, cfg.MongoURI, cfg.ConnectRetries)
	if err != nil {
		logging.LogError(ctx, logger, "mongo connect failed", err, diagnostics)
		return err
	}
	defer func() { _ = mongoClient.Disconnect(context.Background()) }()
	taskStore := store.NewMongoStore(mongoClient.Database(cfg.MongoDB))
	if err := taskStore.EnsureIndexes(ctx); err != nil {
		logging.LogError(ctx, logger, "mongo index setup failed", err, diagnostics)
		return err
	}

	// ── MinIO ────────────────────────────────────────────────
	minioStore, err := store.NewMinioStore(ctx, logger,
		cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey,
		cfg.MinioBucket, cfg.MinioUseSSL, cfg.ConnectRetries,
	)
	if err != nil {
		logging.LogError(ctx, logger, "minio connect failed", err, diagnostics)
		return err
	}

	// ── Metrics ──────────────────────────────────────────────
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// ── Audit sinks ──────────────────────────────────────────
	fileRecorder, err := audit.NewFileRecorder(cfg.AuditLogPath, logger)
	if err != nil {
		logging.LogError(ctx, logger, "audit log setup failed", err, diagnostics)
		return err
	}
	recorders := audit.Multi{fileRecorder, audit.NewMetricsRecorder(reg)}
	if cfg.NatsURL != "" {
		nc, err := audit.ConnectNats(cfg.NatsURL)
		if err != nil {
			logging.LogError(ctx, logger, "nats connect failed", err, diagnostics)
			return err
		}
		defer nc.Close()
		recorders = append(recorders, audit.NewNatsRecorder(nc, cfg.NatsAuditSubject, logger))
	}

	// ── Rate limiting ────────────────────────────────────────
	var limiter middleware.Limiter
	if cfg.RateLimitPerMinute > 0 {
		rdb, err := store.NewRedisClient(ctx, logger, cfg.RedisAddr, cfg.RedisPassword, cfg.ConnectRetries)
		if err != nil {
			logging.LogError(ctx, logger, "redis connect failed", err, diagnostics)
			return err
		}
		defer rdb.Close()
		limiter = ratelimit.NewRedisLimiter(rdb, cfg.RateLimitPerMinute, time.Minute)
	}

	// ── Auth ─────────────────────────────────────────────────
	tokens, err := auth.NewTokenIssuer([]byte(cfg.JWTSecret), cfg.TokenTTL)
	if err != nil {
		return err
	}
	authSvc, err := auth.NewService(
		users,
		auth.NewBcryptCodec(cfg.BcryptCost),
		tokens,
		recorders,
		auth.NewLogNotifier(logger),
		logger,
		auth.Options{ResetTokenTTL: cfg.ResetTokenTTL, ExposeDiagnostics: diagnostics},
	)
	if err != nil {
		return err
	}

	// ── Router ───────────────────────────────────────────────
	handler := server.NewRouter(server.Deps{
		Logger:              logger,
		Auth:                auth.NewHandler(authSvc, logger),
		Tasks:               tasks.NewHandler(taskStore, minioStore, logger),
		Tokens:              tokens,
		Metrics:             middleware.NewMetrics(reg),
		MetricsHandler:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Limiter:             limiter,
		RecoverEmailEnabled: cfg.RecoverEmailEnabled,
		TrustProxyHeaders:   cfg.TrustProxyHeaders,
		AllowedOrigins:      cfg.AllowedOrigins(),
	})

	// ── Server ───────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("backend listening", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logging.LogError(ctx, logger, "server error", err, diagnostics)
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.LogError(shutdownCtx, logger, "graceful shutdown failed", err, diagnostics)
		return err
	}
	logger.Info("server stopped")
	return nil
}
