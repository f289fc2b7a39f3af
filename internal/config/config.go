// Package config loads process configuration from the environment.
// A .env file in the working directory is read first when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config is shared by cmd/server and cmd/worker.
type Config struct {
	AppEnv   string
	LogLevel string

	Port           string
	AllowedOrigins []string

	Storage     string
	DatabaseURL string
	DBMaxConns  int32

	RedisURL string

	IdempotencyTTL time.Duration

	// JobNumberStart is the first job number for an empty database.
	JobNumberStart int64

	SweepInterval     time.Duration
	ReconcileInterval time.Duration
	ReconcileLookback time.Duration
	ExportDir         string

	Reconcile ReconcileConfig
}

// ReconcileConfig feeds reconcile.Options.
type ReconcileConfig struct {
	DateWindowDays  int
	MinScore        int
	AmountTolerance decimal.Decimal
	Scope           string
}

// Development reports whether APP_ENV is development.
func (c Config) Development() bool {
	return c.AppEnv == "development"
}

// Load reads configuration. Errors name the offending variable.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		AppEnv:            getEnv("APP_ENV", "development"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		Port:              getEnv("SERVER_PORT", "8080"),
		AllowedOrigins:    getEnvList("ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		Storage:           getEnv("STORAGE", StoragePostgres),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		DBMaxConns:        int32(getEnvInt("DB_MAX_CONNS", 20)),
		RedisURL:          os.Getenv("REDIS_URL"),
		IdempotencyTTL:    getEnvDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		JobNumberStart:    int64(getEnvInt("JOB_NUMBER_START", 90000)),
		SweepInterval:     getEnvDuration("SWEEP_INTERVAL", 15*time.Minute),
		ReconcileInterval: getEnvDuration("RECONCILE_INTERVAL", time.Hour),
		ReconcileLookback: getEnvDuration("RECONCILE_LOOKBACK", 31*24*time.Hour),
		ExportDir:         os.Getenv("EXPORT_DIR"),
		Reconcile: ReconcileConfig{
			DateWindowDays: getEnvInt("RECONCILE_DATE_WINDOW_DAYS", 14),
			MinScore:       getEnvInt("RECONCILE_MIN_SCORE", 100),
			Scope:          os.Getenv("RECONCILE_SCOPE"),
		},
	}

	tol, err := decimal.NewFromString(getEnv("RECONCILE_AMOUNT_TOLERANCE", "0.01"))
	if err != nil {
		return Config{}, fmt.Errorf("RECONCILE_AMOUNT_TOLERANCE: %w", err)
	}
	cfg.Reconcile.AmountTolerance = tol

	switch cfg.Storage {
	case StoragePostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL is required when STORAGE=%s", StoragePostgres)
		}
	case StorageMemory:
	default:
		return Config{}, fmt.Errorf("STORAGE: unknown backend %q", cfg.Storage)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.Atoi(value); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
