package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jwebster45206/combat-ledger/internal/config"
	"github.com/jwebster45206/combat-ledger/internal/storage/sqlite"
	"github.com/jwebster45206/combat-ledger/pkg/storage"
)

// Open returns the flag store selected by cfg.Store
func Open(cfg *config.Config, logger *slog.Logger) (storage.FlagStore, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
		}
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StoreMemory:
		logger.Warn("Using in-memory ledger store; state is lost on exit")
		return storage.NewMockStorage(), nil
	case config.StoreRedis:
		s, err := NewRedisStorage(cfg.RedisURL, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unsupported store %q", cfg.Store)
}
