// cmd/ethics-api/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"ethics-review/internal/api"
	"ethics-review/internal/common/config"
	"ethics-review/internal/common/database"
	"ethics-review/internal/common/logger"
	"ethics-review/internal/common/observability"
	"ethics-review/internal/common/validation"
	"ethics-review/internal/documents"
	"ethics-review/internal/notify"
	"ethics-review/internal/store"
	"ethics-review/internal/submission"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.FromConfig(cfg.Logging)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	if err := cfg.Require(config.ComponentPostgres, config.ComponentStorage); err != nil {
		zapLog.Fatal("invalid configuration", zap.Error(err))
	}

	zapLog.Info("Starting ethics review API...", zap.String("version", cfg.App.Version))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs := observability.New(cfg.App.Name, log)
	defer obs.Shutdown()

	// --- PostgreSQL ---
	pg, err := database.ConnectPostgres(ctx, cfg.Database.Postgres, log)
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	if cfg.Database.Postgres.Migrate {
		if err := pg.Migrate(ctx); err != nil {
			zapLog.Fatal("migrations failed", zap.Error(err))
		}
		zapLog.Info("Migrations applied")
	}

	readiness := map[string]api.ReadinessCheck{"postgres": pg.Ping}

	// --- Redis aggregate cache (optional) ---
	var cache *store.Cache
	if cfg.Database.Redis.Address != "" {
		rc, err := database.ConnectRedis(ctx, cfg.Database.Redis, log)
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer rc.Close()
		cache = store.NewCache(rc.Client, config.GetDuration(cfg.Database.Redis.CacheTTL), log)
		readiness["redis"] = rc.Ping
	} else {
		zapLog.Info("Redis not configured, aggregate cache disabled")
	}

	s := store.New(pg.DB, cache, log)

	// --- Document storage ---
	s3Client, err := documents.NewS3Client(ctx, cfg.Storage.S3)
	if err != nil {
		zapLog.Fatal("s3 client failed", zap.Error(err))
	}
	docs := documents.NewService(documents.NewS3BlobStore(s3Client, cfg.Storage.S3.Bucket), s.Files, obs, log)

	// --- Submission ---
	notifier, err := notify.NewFromConfig(ctx, cfg.Notifications, log)
	if err != nil {
		zapLog.Fatal("notifier init failed", zap.Error(err))
	}
	gate := submission.NewGate(s, notifier, obs, log)

	validator, err := validation.New()
	if err != nil {
		zapLog.Fatal("schema load failed", zap.Error(err))
	}

	handler := api.New(cfg.Server, api.Deps{
		Store:     s,
		Documents: docs,
		Gate:      gate,
		Validator: validator,
		Logger:    log,
		Readiness: readiness,
	}).Routes()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}

	go func() {
		zapLog.Info("API listening", zap.String("addr", srv.Addr), zap.String("basePath", cfg.Server.BasePath))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Fatal("API server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zapLog.Info("Shutdown signal received, draining requests...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error during server shutdown", zap.Error(err))
	}

	zapLog.Info("API stopped gracefully")
}
