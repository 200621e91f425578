// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"ethics-review/internal/common/camunda"
	"ethics-review/internal/common/config"
	"ethics-review/internal/common/database"
	"ethics-review/internal/common/logger"
	"ethics-review/internal/common/observability"
	"ethics-review/internal/notify"
	"ethics-review/internal/store"
	"ethics-review/internal/submission"

	ns "ethics-review/internal/workers/application/notify-submission"
	sa "ethics-review/internal/workers/application/submit-application"
)

const healthAddr = ":8081"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.FromConfig(cfg.Logging)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	if err := cfg.Require(config.ComponentCamunda, config.ComponentPostgres); err != nil {
		zapLog.Fatal("invalid configuration", zap.Error(err))
	}

	zapLog.Info("Starting worker manager...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs := observability.New("worker-manager", log)
	defer obs.Shutdown()

	// --- Zeebe ---
	zeebe, err := camunda.NewClient(ctx, camunda.ConfigFrom(cfg.Camunda), log)
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	defer zeebe.Close()
	zapLog.Info("Zeebe client connected successfully")

	// --- PostgreSQL ---
	pg, err := database.ConnectPostgres(ctx, cfg.Database.Postgres, log)
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Redis (optional; keeps the API's aggregate cache coherent) ---
	var cache *store.Cache
	if cfg.Database.Redis.Address != "" {
		rc, err := database.ConnectRedis(ctx, cfg.Database.Redis, log)
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer rc.Close()
		cache = store.NewCache(rc.Client, config.GetDuration(cfg.Database.Redis.CacheTTL), log)
		zapLog.Info("Redis connected successfully")
	}

	s := store.New(pg.DB, cache, log)

	notifier, err := notify.NewFromConfig(ctx, cfg.Notifications, log)
	if err != nil {
		zapLog.Fatal("notifier init failed", zap.Error(err))
	}

	// --- Workers ---
	var workers []*camunda.Worker

	// notify-submission sends the messages, so the gate here has no notifier.
	submitCfg := config.GetWorkerConfig(cfg, sa.TaskType)
	submitHandler := sa.NewHandler(sa.LoadConfig(submitCfg), submission.NewGate(s, nil, obs, log), log)
	if w := zeebe.StartWorker(sa.TaskType, submitCfg, submitHandler, log); w != nil {
		workers = append(workers, w)
	}

	notifyCfg := config.GetWorkerConfig(cfg, ns.TaskType)
	notifyHandler := ns.NewHandler(ns.LoadConfig(notifyCfg), s.Applications, notifier, log)
	if w := zeebe.StartWorker(ns.TaskType, notifyCfg, notifyHandler, log); w != nil {
		workers = append(workers, w)
	}

	zapLog.Info("Workers registered", zap.Int("count", len(workers)))

	// --- Health & Metrics Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "healthy", nil)
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		checkCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		checks := map[string]string{"postgres": "ok", "zeebe": "ok"}
		status := http.StatusOK
		if err := pg.Ping(checkCtx); err != nil {
			checks["postgres"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		if err := zeebe.HealthCheck(checkCtx); err != nil {
			checks["zeebe"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		label := "ready"
		if status != http.StatusOK {
			label = "not ready"
		}
		writeStatus(w, status, label, checks)
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: healthAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("addr", healthAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	<-ctx.Done()
	zapLog.Info("Shutdown signal received, stopping workers...")

	for _, w := range workers {
		w.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping health server", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

func writeStatus(w http.ResponseWriter, code int, status string, checks map[string]string) {
	body := map[string]interface{}{
		"status": status,
		"time":   time.Now().Format(time.RFC3339),
	}
	if checks != nil {
		body["checks"] = checks
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
