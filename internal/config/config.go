package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store backends accepted by LEDGER_STORE.
const (
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

type Config struct {
	Port         string        `env:"PORT" envDefault:"8080"`
	Environment  string        `env:"ENVIRONMENT" envDefault:"development"`
	LogLevelName string        `env:"LOG_LEVEL" envDefault:"info"`
	RedisURL     string        `env:"REDIS_URL" envDefault:"redis://localhost:6379"`
	Store        string        `env:"LEDGER_STORE" envDefault:"redis"`
	SQLitePath   string        `env:"LEDGER_SQLITE_PATH" envDefault:"./data/ledger.db"`
	CharacterDir string        `env:"CHARACTER_DIR" envDefault:"./data/characters"`
	WorkerID     string        `env:"WORKER_ID"`
	LockTTL      time.Duration `env:"LOCK_TTL" envDefault:"30s"`
	OTelEnabled  bool          `env:"OTEL_ENABLED" envDefault:"false"`
	DiceSeed     int64         `env:"DICE_SEED"` // 0 picks a random seed

	LogLevel slog.Level // parsed from LogLevelName
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.LogLevel = parseLogLevel(cfg.LogLevelName)
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))

	switch cfg.Store {
	case StoreRedis, StoreSQLite, StoreMemory:
	default:
		return nil, fmt.Errorf("unsupported LEDGER_STORE %q (want redis, sqlite or memory)", cfg.Store)
	}
	if cfg.Store == StoreSQLite && strings.TrimSpace(cfg.SQLitePath) == "" {
		return nil, fmt.Errorf("LEDGER_SQLITE_PATH is required for the sqlite store")
	}
	if cfg.LockTTL <= 0 {
		return nil, fmt.Errorf("LOCK_TTL must be positive, got %s", cfg.LockTTL)
	}
	return &cfg, nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
