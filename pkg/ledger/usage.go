package ledger

import (
	"cmp"
	"context"
	"encoding/json"
	"maps"
	"math"
	"slices"

	"github.com/jwebster45206/combat-ledger/pkg/actor"
)

// UsageKey identifies one ability's activations within one turn.
type UsageKey struct {
	Attribute  actor.Attribute `json:"attribute"`
	AbilityKey string          `json:"ability_key"`
	Round      int             `json:"round"`
	Turn       int             `json:"turn"`
}

// Usage counts prior activations per key.
type Usage map[UsageKey]int

type usageEntry struct {
	UsageKey
	Count int `json:"count"`
}

// MarshalJSON writes usage as a sorted list since JSON keys must be strings.
func (u Usage) MarshalJSON() ([]byte, error) {
	entries := make([]usageEntry, 0, len(u))
	for k, n := range u {
		entries = append(entries, usageEntry{UsageKey: k, Count: n})
	}
	slices.SortFunc(entries, func(a, b usageEntry) int {
		return cmp.Or(
			cmp.Compare(a.Round, b.Round),
			cmp.Compare(a.Turn, b.Turn),
			cmp.Compare(a.Attribute, b.Attribute),
			cmp.Compare(a.AbilityKey, b.AbilityKey),
		)
	})
	return json.Marshal(entries)
}

// UnmarshalJSON reads the list form written by MarshalJSON.
func (u *Usage) UnmarshalJSON(data []byte) error {
	var entries []usageEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	out := make(Usage, len(entries))
	for _, e := range entries {
		out[e.UsageKey] = e.Count
	}
	*u = out
	return nil
}

// Increment returns a copy with key's counter raised by one.
func (u Usage) Increment(key UsageKey) Usage {
	out := maps.Clone(u)
	if out == nil {
		out = Usage{}
	}
	out[key]++
	return out
}

// OnlyTurn returns a copy holding just the counters of (round, turn).
func (u Usage) OnlyTurn(round, turn int) Usage {
	out := Usage{}
	for k, n := range u {
		if k.Round == round && k.Turn == turn {
			out[k] = n
		}
	}
	return out
}

// StoneCost is 2^uses: 1, 2, 4, 8 ... for the 1st, 2nd, 3rd, 4th activation.
func StoneCost(uses int) int {
	if uses < 0 {
		return 1
	}
	if uses >= 62 {
		return math.MaxInt
	}
	return 1 << uses
}

// UsageTracker is the StoneUsageTracker: per-turn ability counters.
type UsageTracker struct {
	d *deps
}

// Load returns every counter of an actor.
func (t *UsageTracker) Load(ctx context.Context, actorID string) (Usage, error) {
	if actorID == "" {
		return Usage{}, nil
	}
	usage := Usage{}
	if _, err := t.d.load(ctx, actorID, NamespaceUsage, &usage); err != nil {
		return nil, err
	}
	return usage, nil
}

// Get returns how often key's ability was activated in key's turn.
func (t *UsageTracker) Get(ctx context.Context, actorID string, key UsageKey) (int, error) {
	usage, err := t.Load(ctx, actorID)
	if err != nil {
		return 0, err
	}
	return usage[key], nil
}

// ResetTurn drops every counter not belonging to (round, turn).
func (t *UsageTracker) ResetTurn(ctx context.Context, actorID string, round, turn int) error {
	usage, err := t.Load(ctx, actorID)
	if err != nil {
		return err
	}
	pruned := usage.OnlyTurn(round, turn)
	if len(pruned) == len(usage) {
		return nil
	}
	return t.d.save(ctx, actorID, map[string]any{NamespaceUsage: pruned})
}

// Clear removes all counters of an actor.
func (t *UsageTracker) Clear(ctx context.Context, actorID string) error {
	return t.d.drop(ctx, actorID, NamespaceUsage)
}
