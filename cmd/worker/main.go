package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vereinshub/stundenhub/internal/config"
	"github.com/vereinshub/stundenhub/internal/db"
	"github.com/vereinshub/stundenhub/internal/notifications"
	"github.com/vereinshub/stundenhub/internal/observability"
	"github.com/vereinshub/stundenhub/internal/queue/worker"
	"github.com/vereinshub/stundenhub/internal/repo/postgres"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := observability.NewLogger(cfg.Env, "stundenhub-worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(cfg.DBURL)

	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}

	defer pool.Close()

	if err := db.EnsureSchema(ctx, pool); err != nil {
		log.Error("schema setup failed", "err", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	prom := observability.NewProm(registry)

	jobsRepo := postgres.NewJobsRepo(pool, prom)

	// the mailer talks to an external provider, so it runs behind a breaker
	mailer := notifications.NewProtectedMailer(
		notifications.NewLogMailer(log),
		notifications.ProtectedMailerConfig{},
	)

	w := worker.New(worker.Config{
		PollInterval: time.Second,
		LockTTL:      60 * time.Second,
		ResetBaseURL: cfg.ResetBaseURL,
	}, jobsRepo, mailer, prom, log)

	// health + metrics sidecar endpoint
	healthAddr := os.Getenv("WORKER_HEALTH_ADDR")

	if healthAddr == "" {
		healthAddr = ":5001"
	}

	mux := http.NewServeMux()
	mux.Handle("/", w.HealthHandler())
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	healthSrv := &http.Server{
		Addr:              healthAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("health endpoint failed", "err", err)
		}
	}()

	log.Info("worker starting", "env", cfg.Env)

	if err := w.Run(ctx); err != nil {
		log.Error("worker stopped with error", "err", err)
	}

	shutdownCtx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("health endpoint shutdown failed", "err", err)
	}

	log.Info("worker shutdown complete")
}
