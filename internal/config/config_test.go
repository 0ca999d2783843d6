package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("expected port 8080, got %q", cfg.Port)
	}
	if cfg.Environment != "development" {
		t.Errorf("expected development environment, got %q", cfg.Environment)
	}
	if cfg.Store != StoreRedis {
		t.Errorf("expected redis store, got %q", cfg.Store)
	}
	if cfg.LockTTL != 30*time.Second {
		t.Errorf("expected 30s lock ttl, got %s", cfg.LockTTL)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("expected info level, got %s", cfg.LogLevel)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("LOG_LEVEL", "WARNING")
	t.Setenv("LEDGER_STORE", " SQLite ")
	t.Setenv("LEDGER_SQLITE_PATH", "/tmp/ledger.db")
	t.Setenv("LOCK_TTL", "45s")
	t.Setenv("DICE_SEED", "42")
	t.Setenv("OTEL_ENABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Store != StoreSQLite || cfg.SQLitePath != "/tmp/ledger.db" {
		t.Errorf("unexpected store config: %q %q", cfg.Store, cfg.SQLitePath)
	}
	if cfg.LogLevel != slog.LevelWarn {
		t.Errorf("expected warn level, got %s", cfg.LogLevel)
	}
	if cfg.LockTTL != 45*time.Second || cfg.DiceSeed != 42 || !cfg.OTelEnabled {
		t.Errorf("unexpected values: %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{"bad store", "LEDGER_STORE", "postgres", "unsupported LEDGER_STORE"},
		{"bad duration", "LOCK_TTL", "soon", "parse env:"},
		{"zero ttl", "LOCK_TTL", "0s", "LOCK_TTL must be positive"},
		{"bad seed", "DICE_SEED", "lucky", "parse env:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected %q in %v", tt.want, err)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
