package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vereinshub/stundenhub/internal/auth"
	"github.com/vereinshub/stundenhub/internal/authflow"
	"github.com/vereinshub/stundenhub/internal/config"
	"github.com/vereinshub/stundenhub/internal/credentials"
	"github.com/vereinshub/stundenhub/internal/dashboard"
	"github.com/vereinshub/stundenhub/internal/db"
	"github.com/vereinshub/stundenhub/internal/directory"
	httpx "github.com/vereinshub/stundenhub/internal/http"
	"github.com/vereinshub/stundenhub/internal/http/handlers"
	"github.com/vereinshub/stundenhub/internal/observability"
	"github.com/vereinshub/stundenhub/internal/queue/redisclient"
	"github.com/vereinshub/stundenhub/internal/repo/postgres"
	"github.com/vereinshub/stundenhub/internal/tokens"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := observability.NewLogger(cfg.Env, "stundenhub-api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.OtelEndpoint != "" {
		shutdown, err := observability.InitTracer(ctx, "stundenhub-api", cfg.OtelEndpoint)

		if err != nil {
			log.Error("tracer init failed", "err", err)
			os.Exit(1)
		}

		defer func() {
			shutdownCtx, cancel := config.WithTimeout(5 * time.Second)
			defer cancel()

			if err := shutdown(shutdownCtx); err != nil {
				log.Error("tracer shutdown failed", "err", err)
			}
		}()
	}

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

	if err := db.EnsureBootstrapCredential(ctx, pool, cfg); err != nil {
		log.Error("bootstrap credential failed", "err", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	prom := observability.NewProm(registry)

	// token store: redis when configured, in-process otherwise (single
	// instance deployments)
	var tokenStore tokens.Store

	if cfg.RedisAddr != "" {
		rc := redisclient.New(redisclient.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

		if err := rc.Ping(ctx); err != nil {
			log.Error("redis connect failed", "err", err)
			os.Exit(1)
		}

		defer rc.Close()

		tokenStore = tokens.NewRedisStore(rc.Raw(), cfg.SelectionTokenTTL, cfg.ResetTokenTTL)
	} else {
		log.Warn("REDIS_ADDR not set, using in-memory token store")
		tokenStore = tokens.NewMemoryStore(cfg.SelectionTokenTTL, cfg.ResetTokenTTL)
	}

	dir := directory.New(directory.Options{
		BaseURL:  cfg.DirectoryBaseURL,
		Token:    cfg.DirectoryToken,
		TableID:  cfg.DirectoryMembersTable,
		CacheTTL: cfg.DirectoryCacheTTL,
		Prom:     prom,
		Logger:   log,
	})

	credsRepo := postgres.NewCredentialsRepo(pool, prom)
	credsSvc, err := credentials.NewService(credsRepo, tokenStore)

	if err != nil {
		log.Error("credentials service init failed", "err", err)
		os.Exit(1)
	}

	jwtManager := auth.NewManager(cfg.JWTSecret, cfg.SessionTTL)
	flow := authflow.NewService(credsSvc, dir, tokenStore, jwtManager)

	workHoursRepo := postgres.NewWorkHoursRepo(pool, prom)
	jobsRepo := postgres.NewJobsRepo(pool, prom)
	dashboardSvc := dashboard.NewService(workHoursRepo, dir)

	router := httpx.NewRouter(httpx.Deps{
		Cfg:       cfg,
		Log:       log,
		Pool:      pool,
		Prom:      prom,
		Registry:  registry,
		Session:   jwtManager,
		Auth:      handlers.NewAuthHandler(flow, dir, credsSvc, tokenStore, jobsRepo, log),
		WorkHours: handlers.NewWorkHoursHandler(workHoursRepo),
		Dashboard: handlers.NewDashboardHandler(dashboardSvc),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.Port, "env", cfg.Env)

		err := srv.ListenAndServe()

		if err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("server shutting down")

	shutdownCtx, cancel := config.WithTimeout(10 * time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "err", err)
		return
	}

	log.Info("shutdown complete")
}
