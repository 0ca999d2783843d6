package ledger

import (
	"context"
	"fmt"
	"maps"

	"github.com/jwebster45206/combat-ledger/pkg/actor"
)

// Pool is one attribute's stone pool.
// Invariant: 0 <= Current and Current+Sustained <= Max.
type Pool struct {
	Current   int `json:"current"`
	Max       int `json:"max"`
	Sustained int `json:"sustained,omitempty"`
}

// Headroom is how many stones regeneration may still add.
func (p Pool) Headroom() int {
	return max(0, p.Max-p.Sustained-p.Current)
}

// Spend removes n stones. It fails without change if Current < n.
func (p Pool) Spend(n int) (Pool, error) {
	if n < 0 {
		return p, violation("cannot spend a negative amount", nil)
	}
	if p.Current < n {
		return p, insufficient(
			fmt.Sprintf("need %d stones, have %d", n, p.Current),
			map[string]string{"cost": fmt.Sprint(n), "current": fmt.Sprint(p.Current)},
		)
	}
	p.Current -= n
	return p, nil
}

// Regenerate adds up to n stones, capped at Max minus sustained stones.
func (p Pool) Regenerate(n int) Pool {
	if n <= 0 {
		return p
	}
	p.Current = min(p.Current+n, max(0, p.Max-p.Sustained))
	return p
}

// Restore refills the pool and ends every sustained commitment.
func (p Pool) Restore() Pool {
	p.Current = p.Max
	p.Sustained = 0
	return p
}

// Pools maps each attribute to its stone pool.
type Pools map[actor.Attribute]Pool

// NewPools builds full pools sized by the combatant's attribute ratings.
func NewPools(c Combatant) Pools {
	pools := make(Pools, len(actor.Attributes))
	for _, a := range actor.Attributes {
		rating := max(0, c.Attribute(a))
		pools[a] = Pool{Current: rating, Max: rating}
	}
	return pools
}

// Clone returns an independent copy.
func (p Pools) Clone() Pools {
	return maps.Clone(p)
}

// PoolStore is the AttributePoolStore: persisted stone pools per actor.
type PoolStore struct {
	d *deps
}

// All returns every pool of an actor; a nil map means none were created.
func (s *PoolStore) All(ctx context.Context, actorID string) (Pools, error) {
	if actorID == "" {
		return nil, nil
	}
	var pools Pools
	if _, err := s.d.load(ctx, actorID, NamespacePools, &pools); err != nil {
		return nil, err
	}
	return pools, nil
}

// Get returns one attribute's pool, or the zero Pool if absent.
func (s *PoolStore) Get(ctx context.Context, actorID string, a actor.Attribute) (Pool, error) {
	pools, err := s.All(ctx, actorID)
	if err != nil {
		return Pool{}, err
	}
	return pools[a], nil
}

// Set replaces every pool of an actor.
func (s *PoolStore) Set(ctx context.Context, actorID string, pools Pools) error {
	if actorID == "" {
		return ErrMissingActor
	}
	for a, p := range pools {
		if !a.Valid() {
			return violation(fmt.Sprintf("unknown attribute %q", a), nil)
		}
		if p.Current < 0 || p.Sustained < 0 || p.Current+p.Sustained > p.Max {
			return violation(fmt.Sprintf("%s pool out of range", a), nil)
		}
	}
	return s.d.save(ctx, actorID, map[string]any{NamespacePools: pools})
}

// Initialize creates full pools for an actor that has none yet.
// Existing pools persist across encounters and are returned unchanged.
func (s *PoolStore) Initialize(ctx context.Context, c Combatant) (Pools, error) {
	if err := requireActor(c); err != nil {
		return nil, err
	}
	pools, err := s.All(ctx, c.ID())
	if err != nil {
		return nil, err
	}
	if pools != nil {
		return pools, nil
	}
	pools = NewPools(c)
	if err := s.Set(ctx, c.ID(), pools); err != nil {
		return nil, err
	}
	return pools, nil
}

// Sustain commits n current stones to an ongoing effect.
func (s *PoolStore) Sustain(ctx context.Context, actorID string, a actor.Attribute, n int) (Pool, error) {
	return s.update(ctx, actorID, a, func(p Pool) (Pool, error) {
		if n <= 0 {
			return p, violation("sustained amount must be positive", nil)
		}
		p, err := p.Spend(n)
		if err != nil {
			return p, err
		}
		p.Sustained += n
		return p, nil
	})
}

// ReleaseSustained ends n sustained stones. They become regenerable
// headroom, not current stones.
func (s *PoolStore) ReleaseSustained(ctx context.Context, actorID string, a actor.Attribute, n int) (Pool, error) {
	return s.update(ctx, actorID, a, func(p Pool) (Pool, error) {
		if n <= 0 || n > p.Sustained {
			return p, violation(fmt.Sprintf("cannot release %d of %d sustained stones", n, p.Sustained), nil)
		}
		p.Sustained -= n
		return p, nil
	})
}

func (s *PoolStore) update(ctx context.Context, actorID string, a actor.Attribute, fn func(Pool) (Pool, error)) (Pool, error) {
	if actorID == "" {
		return Pool{}, ErrMissingActor
	}
	if !a.Valid() {
		return Pool{}, violation(fmt.Sprintf("unknown attribute %q", a), nil)
	}
	pools, err := s.All(ctx, actorID)
	if err != nil {
		return Pool{}, err
	}
	next, err := fn(pools[a])
	if err != nil {
		return pools[a], err
	}
	pools = pools.Clone()
	if pools == nil {
		pools = Pools{}
	}
	pools[a] = next
	if err := s.Set(ctx, actorID, pools); err != nil {
		return Pool{}, err
	}
	return next, nil
}
