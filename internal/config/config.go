package config

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env  string
	Port int

	DBURL string

	JWTSecret  string
	SessionTTL time.Duration

	SelectionTokenTTL time.Duration
	ResetTokenTTL     time.Duration

	DirectoryBaseURL      string
	DirectoryToken        string
	DirectoryMembersTable string
	DirectoryCacheTTL     time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	OtelEndpoint string

	CORSAllowedOrigins []string

	// base URL the password reset link points at (frontend route)
	ResetBaseURL string

	BootstrapEmail    string
	BootstrapPassword string

	AuthRateLimit  int
	AuthRateWindow time.Duration
	APIRateLimit   int
	APIRateWindow  time.Duration

	MaxBodyBytes int64
}

func Load() Config {
	return Config{
		Env:   getEnv("APP_ENV", "dev"),
		Port:  getEnvInt("PORT", 5000),
		DBURL: buildDBURL(),

		JWTSecret:  getEnv("JWT_SECRET", "dev-only-secret"),
		SessionTTL: getEnvDuration("SESSION_TTL", 24*time.Hour),

		SelectionTokenTTL: getEnvDuration("SELECTION_TOKEN_TTL", 5*time.Minute),
		ResetTokenTTL:     getEnvDuration("RESET_TOKEN_TTL", 24*time.Hour),

		DirectoryBaseURL:      getEnv("DIRECTORY_BASE_URL", "http://127.0.0.1:8090"),
		DirectoryToken:        getEnv("DIRECTORY_TOKEN", ""),
		DirectoryMembersTable: getEnv("DIRECTORY_MEMBERS_TABLE", "members"),
		DirectoryCacheTTL:     getEnvDuration("DIRECTORY_CACHE_TTL", 30*time.Second),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		OtelEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", ""),

		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173")),

		ResetBaseURL: getEnv("RESET_BASE_URL", "http://localhost:5173/reset-password"),

		BootstrapEmail:    getEnv("BOOTSTRAP_EMAIL", ""),
		BootstrapPassword: getEnv("BOOTSTRAP_PASSWORD", ""),

		AuthRateLimit:  getEnvInt("AUTH_RATE_LIMIT", 5),
		AuthRateWindow: getEnvDuration("AUTH_RATE_WINDOW", time.Minute),
		APIRateLimit:   getEnvInt("API_RATE_LIMIT", 60),
		APIRateWindow:  getEnvDuration("API_RATE_WINDOW", time.Minute),

		MaxBodyBytes: int64(getEnvInt("MAX_BODY_BYTES", 64*1024)),
	}
}

func buildDBURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}

	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "stundenhub")
	pass := getEnv("DB_PASSWORD", "stundenhub")
	name := getEnv("DB_NAME", "stundenhub")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)

		if err != nil {
			return fallback
		}

		return num
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)

		if err != nil {
			return fallback
		}

		return d
	}
	return fallback
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))

	for _, p := range parts {
		p = strings.TrimSpace(p)

		if p != "" {
			out = append(out, p)
		}
	}

	return out
}
