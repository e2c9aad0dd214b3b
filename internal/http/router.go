package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/vereinshub/stundenhub/internal/config"
	"github.com/vereinshub/stundenhub/internal/http/handlers"
	"github.com/vereinshub/stundenhub/internal/http/middlewares"
	"github.com/vereinshub/stundenhub/internal/observability"
)

// Deps collects everything the router wires together; cmd/api builds it.
type Deps struct {
	Cfg config.Config
	Log *slog.Logger

	Pool *pgxpool.Pool

	Prom     *observability.Prom
	Registry *prometheus.Registry

	Session middlewares.SessionVerifier

	Auth      *handlers.AuthHandler
	WorkHours *handlers.WorkHoursHandler
	Dashboard *handlers.DashboardHandler
}

func NewRouter(d Deps) *gin.Engine {
	if d.Cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(RequestLogger(d.Log))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(d.Cfg.CORSAllowedOrigins))

	if d.Cfg.OtelEndpoint != "" {
		r.Use(otelgin.Middleware("stundenhub-api"))
	}

	if d.Prom != nil {
		r.Use(d.Prom.GinHandleMiddleware())
	}

	r.Use(middlewares.MaxBodyBytes(d.Cfg.MaxBodyBytes))
	r.Use(middlewares.RequireJSON())

	// health + metrics

	ping := func() error {
		if d.Pool == nil {
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		return d.Pool.Ping(ctx)
	}

	health := handlers.NewHealthHandler(ping)
	r.GET("/healthz", health.Healthz)
	r.GET("/readyz", health.Readyz)

	if d.Registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{})))
	}

	// auth endpoints: strict per-address window, no session required

	authLimit := middlewares.NewRateLimiter(d.Cfg.AuthRateLimit, d.Cfg.AuthRateWindow)
	authRL := authLimit.Middleware(middlewares.KeyByIP)

	r.POST("/login", authRL, d.Auth.Login)
	r.POST("/select-member", authRL, d.Auth.SelectMember)
	r.POST("/forgotPassword", authRL, d.Auth.ForgotPassword)
	r.POST("/resetPassword", authRL, d.Auth.ResetPassword)

	// everything below needs a bearer session

	apiLimit := middlewares.NewRateLimiter(d.Cfg.APIRateLimit, d.Cfg.APIRateWindow)
	authMW := middlewares.NewAuthMiddleware(d.Session)

	api := r.Group("/")
	api.Use(authMW.RequireSession())
	api.Use(apiLimit.Middleware(middlewares.KeyByProfileOrIP))

	api.GET("/user", d.Auth.CurrentUser)
	api.GET("/verify-token", d.Auth.CurrentUser)

	api.GET("/dashboard/:year", d.Dashboard.Get)

	api.GET("/arbeitsstunden", d.WorkHours.List)
	api.GET("/arbeitsstunden/:id", d.WorkHours.Get)
	api.POST("/arbeitsstunden", d.WorkHours.Create)
	api.PUT("/arbeitsstunden/:id", d.WorkHours.Update)
	api.DELETE("/arbeitsstunden/:id", d.WorkHours.Delete)

	return r
}
