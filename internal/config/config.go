package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds the application configuration.
type Config struct {
	ServerPort     int
	DatabasePath   string
	StaticDir      string // Uploaded images, served under /static
	PublicBaseURL  string // Prefix for image URLs stored by the diagnosis flow
	AppEnv         string
	LogLevel       string
	AllowedOrigins []string

	PredictorURL     string
	PredictorTimeout time.Duration
	MaxUploadBytes   int64 // 0 disables the limit

	JWTSecret   string
	TokenTTL    time.Duration
	RequireAuth bool

	UploadRetention   time.Duration // 0 disables the janitor
	UploadCleanupCron string
}

// Load loads configuration from environment variables or sets defaults.
// A .env file in the working directory is read first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, using environment variables")
	}

	port, err := strconv.Atoi(getEnv("PORT", "5000"))
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	predictorTimeout, err := time.ParseDuration(getEnv("PREDICTOR_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid PREDICTOR_TIMEOUT: %w", err)
	}

	maxUpload, err := strconv.ParseInt(getEnv("MAX_UPLOAD_BYTES", "0"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_UPLOAD_BYTES: %w", err)
	}

	tokenTTL, err := time.ParseDuration(getEnv("TOKEN_TTL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid TOKEN_TTL: %w", err)
	}

	requireAuth, err := strconv.ParseBool(getEnv("REQUIRE_AUTH", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid REQUIRE_AUTH: %w", err)
	}

	retention, err := time.ParseDuration(getEnv("UPLOAD_RETENTION", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid UPLOAD_RETENTION: %w", err)
	}

	return &Config{
		ServerPort:        port,
		DatabasePath:      getEnv("DATABASE_PATH", "./app.db"),
		StaticDir:         getEnv("STATIC_DIR", "./static"),
		PublicBaseURL:     strings.TrimRight(getEnv("PUBLIC_BASE_URL", ""), "/"),
		AppEnv:            getEnv("APP_ENV", "development"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		AllowedOrigins:    splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		PredictorURL:      strings.TrimRight(getEnv("PREDICTOR_URL", "http://127.0.0.1:5001"), "/"),
		PredictorTimeout:  predictorTimeout,
		MaxUploadBytes:    maxUpload,
		JWTSecret:         getEnv("JWT_SECRET", "change-me"),
		TokenTTL:          tokenTTL,
		RequireAuth:       requireAuth,
		UploadRetention:   retention,
		UploadCleanupCron: getEnv("UPLOAD_CLEANUP_CRON", "0 3 * * *"),
	}, nil
}

// IsProduction reports whether APP_ENV is "production".
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Helper to get an environment variable with a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
