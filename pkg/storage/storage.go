package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jwebster45206/combat-ledger/pkg/actor"
)

// ErrNotConfigured is returned by stores used before they were opened.
var ErrNotConfigured = errors.New("storage is not configured")

// FlagStore persists per-actor flag records, one opaque JSON document per
// (actor, namespace). Every call is atomic on its own; SetFlags writes all
// of its namespaces for one actor in a single atomic step.
type FlagStore interface {
	// Health and lifecycle
	Ping(ctx context.Context) error
	Close() error

	// GetFlag returns the raw record, or nil if the flag is not set
	GetFlag(ctx context.Context, actorID, namespace string) ([]byte, error)
	SetFlag(ctx context.Context, actorID, namespace string, data []byte) error
	// SetFlags replaces several namespaces of one actor atomically
	SetFlags(ctx context.Context, actorID string, records map[string][]byte) error
	DeleteFlag(ctx context.Context, actorID string, namespaces ...string) error
}

// CharacterNamespace holds the actor's character sheet.
const CharacterNamespace = "character"

// GetCharacterSpec loads a character sheet from the store.
// Returns nil if the actor has no sheet.
func GetCharacterSpec(ctx context.Context, store FlagStore, actorID string) (*actor.CharacterSpec, error) {
	data, err := store.GetFlag(ctx, actorID, CharacterNamespace)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}

	var spec actor.CharacterSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal character spec: %w", err)
	}
	spec.ID = actorID
	return &spec, nil
}

// SaveCharacterSpec writes a character sheet under its ID.
func SaveCharacterSpec(ctx context.Context, store FlagStore, spec *actor.CharacterSpec) error {
	if spec == nil || spec.ID == "" {
		return errors.New("character spec with an id is required")
	}
	data, err := json.Marshal(spec)
	if err != nil {
		return fmt.Errorf("failed to marshal character spec: %w", err)
	}
	return store.SetFlag(ctx, spec.ID, CharacterNamespace, data)
}
