package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jwebster45206/combat-ledger/pkg/actor"
	"github.com/jwebster45206/combat-ledger/pkg/storage"
)

// ListCharacters returns the IDs of the character sheets in dir
func ListCharacters(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read characters directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".json" {
			ids = append(ids, entry.Name()[:len(entry.Name())-5]) // Remove .json extension
		}
	}
	return ids, nil
}

// SeedCharacters copies the sheets in dir into store. Sheets already in
// the store are left alone. Returns how many were written.
func SeedCharacters(ctx context.Context, store storage.FlagStore, dir string, logger *slog.Logger) (int, error) {
	ids, err := ListCharacters(dir)
	if err != nil {
		return 0, err
	}

	seeded := 0
	for _, id := range ids {
		existing, err := storage.GetCharacterSpec(ctx, store, id)
		if err != nil {
			return seeded, fmt.Errorf("failed to check character %q: %w", id, err)
		}
		if existing != nil {
			continue
		}
		c, err := actor.LoadCharacter(filepath.Join(dir, id+".json"))
		if err != nil {
			logger.Warn("Skipping invalid character sheet", "character_id", id, "error", err)
			continue
		}
		if err := storage.SaveCharacterSpec(ctx, store, c.Spec); err != nil {
			return seeded, fmt.Errorf("failed to save character %q: %w", id, err)
		}
		seeded++
	}
	logger.Info("Character sheets seeded", "dir", dir, "found", len(ids), "seeded", seeded)
	return seeded, nil
}
