package ledger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/jwebster45206/combat-ledger/pkg/actor"
)

// Effect adds a stone power's bonus to the round state. It runs on a
// private copy; returning an error aborts the whole activation.
type Effect func(rs *RoundState) error

// SpendResult reports a successful stone activation.
type SpendResult struct {
	Cost       int        `json:"cost"`
	Uses       int        `json:"uses"` // activations of this ability this turn, including this one
	Pool       Pool       `json:"pool"`
	NextCost   int        `json:"next_cost"`
	RoundState RoundState `json:"round_state"`
}

// StoneEngine spends, regenerates and restores stones.
type StoneEngine struct {
	d      *deps
	pools  *PoolStore
	usage  *UsageTracker
	rounds *RoundManager
}

// SpendStoneAbility activates abilityKey from attribute's pool. The cost
// doubles with each repeat of the same ability in the same turn. On any
// failure nothing is written.
func (e *StoneEngine) SpendStoneAbility(ctx context.Context, c Combatant, combat *Combat, attribute actor.Attribute, abilityKey string, effect Effect) (res SpendResult, err error) {
	if err := requireActor(c); err != nil {
		return SpendResult{}, err
	}
	if err := requireCombat(combat); err != nil {
		return SpendResult{}, err
	}
	ctx, span := e.d.start(ctx, "ledger.StoneEngine.SpendStoneAbility", c.ID(), combat)
	defer func() { finish(span, err) }()

	abilityKey = strings.TrimSpace(abilityKey)
	if !attribute.Valid() || abilityKey == "" {
		err := violation(fmt.Sprintf("invalid stone ability %q on %q", abilityKey, attribute), nil)
		e.d.warn(ctx, combat, c.ID(), err)
		return SpendResult{}, err
	}

	key := UsageKey{Attribute: attribute, AbilityKey: abilityKey, Round: combat.Round, Turn: combat.Turn}
	usage, err := e.usage.Load(ctx, c.ID())
	if err != nil {
		return SpendResult{}, err
	}
	uses := usage[key]
	cost := StoneCost(uses)

	pools, err := e.pools.All(ctx, c.ID())
	if err != nil {
		return SpendResult{}, err
	}
	pool, err := pools[attribute].Spend(cost)
	if err != nil {
		e.d.logger.Warn("Insufficient stones",
			"actor_id", c.ID(),
			"attribute", attribute,
			"ability_key", abilityKey,
			"cost", cost,
			"current", pools[attribute].Current,
		)
		e.d.warn(ctx, combat, c.ID(), err)
		return SpendResult{}, err
	}

	rs, err := e.rounds.current(ctx, c, combat)
	if err != nil {
		return SpendResult{}, err
	}
	next := rs.Clone()
	if effect != nil {
		if err := effect(&next); err != nil {
			e.d.warn(ctx, combat, c.ID(), err)
			return SpendResult{}, err
		}
	}
	if err := next.Validate(); err != nil {
		e.d.warn(ctx, combat, c.ID(), err)
		return SpendResult{}, err
	}

	nextPools := pools.Clone()
	nextPools[attribute] = pool
	if err := e.d.save(ctx, c.ID(), map[string]any{
		NamespacePools: nextPools,
		NamespaceUsage: usage.Increment(key),
		NamespaceRound: next,
	}); err != nil {
		return SpendResult{}, err
	}

	e.d.logger.Info("Stone ability activated",
		"actor_id", c.ID(),
		"attribute", attribute,
		"ability_key", abilityKey,
		"cost", cost,
		"remaining", pool.Current,
	)
	e.d.publish(ctx, Notice{
		CombatID: combat.ID,
		ActorID:  c.ID(),
		Level:    NoticeInfo,
		Kind:     "stone_spent",
		Message:  fmt.Sprintf("%s spent %d %s stone(s) on %s", c.ID(), cost, attributeLabel(attribute), abilityKey),
		Data:     map[string]any{"cost": cost, "remaining": pool.Current},
	})

	return SpendResult{
		Cost:       cost,
		Uses:       uses + 1,
		Pool:       pool,
		NextCost:   StoneCost(uses + 1),
		RoundState: next,
	}, nil
}

// NextCost returns what the next activation of abilityKey would cost now.
func (e *StoneEngine) NextCost(ctx context.Context, c Combatant, combat *Combat, attribute actor.Attribute, abilityKey string) int {
	if requireActor(c) != nil || requireCombat(combat) != nil {
		return 0
	}
	uses, err := e.usage.Get(ctx, c.ID(), UsageKey{Attribute: attribute, AbilityKey: abilityKey, Round: combat.Round, Turn: combat.Turn})
	if err != nil {
		return 0
	}
	return StoneCost(uses)
}

// Allocation distributes regenerated stones over attributes.
type Allocation map[actor.Attribute]int

// Total sums the allocation.
func (a Allocation) Total() int {
	n := 0
	for _, v := range a {
		n += v
	}
	return n
}

// AllocationRequest is what the regeneration dialog is shown.
type AllocationRequest struct {
	ActorID string                  `json:"actor_id"`
	Budget  int                     `json:"budget"`
	Caps    map[actor.Attribute]int `json:"caps"`
}

// ErrAllocationSkipped is returned by an Allocator whose player skipped
// regeneration or dismissed the dialog.
var ErrAllocationSkipped = errors.New("allocation skipped")

// Allocator asks a player how to spend their regeneration budget.
type Allocator interface {
	Allocate(ctx context.Context, c Combatant, req AllocationRequest) (Allocation, error)
}

// RegenOutcome is the per-combatant result of end-of-round regeneration.
type RegenOutcome struct {
	ActorID string     `json:"actor_id"`
	Applied Allocation `json:"applied,omitempty"`
	Skipped bool       `json:"skipped,omitempty"`
	Err     error      `json:"-"`
}

// allocationRequest sizes the budget as Mastery Rank, limited by how much
// the pools can actually take.
func allocationRequest(c Combatant, pools Pools) AllocationRequest {
	caps := make(map[actor.Attribute]int, len(pools))
	room := 0
	for _, a := range actor.Attributes {
		p, ok := pools[a]
		if !ok {
			continue
		}
		caps[a] = p.Headroom()
		room += caps[a]
	}
	return AllocationRequest{
		ActorID: c.ID(),
		Budget:  min(max(0, c.MasteryRank()), room),
		Caps:    caps,
	}
}

// Validate checks the allocation against the request's caps and budget.
func (req AllocationRequest) Validate(alloc Allocation) error {
	for a, n := range alloc {
		if n < 0 {
			return violation(fmt.Sprintf("negative allocation to %s", a), nil)
		}
		if n > req.Caps[a] {
			return violation(
				fmt.Sprintf("allocation to %s exceeds cap: %d > %d", a, n, req.Caps[a]),
				map[string]string{"attribute": string(a)},
			)
		}
	}
	if total := alloc.Total(); total != req.Budget {
		return violation(
			fmt.Sprintf("allocation must total exactly %d, got %d", req.Budget, total),
			map[string]string{"budget": fmt.Sprint(req.Budget)},
		)
	}
	return nil
}

// RegenStonesEndOfRound lets every PC distribute Mastery Rank stones across
// their pools. A skipped or invalid allocation changes nothing for that PC.
func (e *StoneEngine) RegenStonesEndOfRound(ctx context.Context, combat *Combat, allocator Allocator) (outcomes []RegenOutcome, err error) {
	if err := requireCombat(combat); err != nil {
		return nil, err
	}
	ctx, span := e.d.start(ctx, "ledger.StoneEngine.RegenStonesEndOfRound", "", combat)
	defer func() { finish(span, err) }()

	var errs []error
	for _, c := range combat.Combatants {
		if c == nil || !c.IsPC() || c.ID() == "" {
			continue
		}
		out := e.regenOne(ctx, c, combat, allocator)
		if out.Err != nil && !errors.Is(out.Err, ErrInvariantViolation) {
			errs = append(errs, out.Err)
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, errors.Join(errs...)
}

func (e *StoneEngine) regenOne(ctx context.Context, c Combatant, combat *Combat, allocator Allocator) RegenOutcome {
	out := RegenOutcome{ActorID: c.ID()}

	pools, err := e.pools.All(ctx, c.ID())
	if err != nil {
		out.Err = err
		return out
	}
	req := allocationRequest(c, pools)
	if req.Budget == 0 || allocator == nil {
		out.Skipped = true
		return out
	}

	// The dialog may block; pools are re-read afterwards.
	alloc, err := allocator.Allocate(ctx, c, req)
	if errors.Is(err, ErrAllocationSkipped) || (err == nil && alloc == nil) {
		out.Skipped = true
		return out
	}
	if err != nil {
		out.Err = err
		out.Skipped = true
		return out
	}

	pools, err = e.pools.All(ctx, c.ID())
	if err != nil {
		out.Err = err
		return out
	}
	req = allocationRequest(c, pools)
	if err := req.Validate(alloc); err != nil {
		e.d.warn(ctx, combat, c.ID(), err)
		out.Err = err
		out.Skipped = true
		return out
	}

	next := pools.Clone()
	attrs := make([]actor.Attribute, 0, len(alloc))
	for a, n := range alloc {
		if n == 0 {
			continue
		}
		next[a] = next[a].Regenerate(n)
		attrs = append(attrs, a)
	}
	slices.Sort(attrs)
	if err := e.pools.Set(ctx, c.ID(), next); err != nil {
		out.Err = err
		return out
	}

	out.Applied = alloc
	e.d.logger.Info("Stones regenerated", "actor_id", c.ID(), "budget", req.Budget, "attributes", attrs)
	e.d.publish(ctx, Notice{
		CombatID: combat.ID,
		ActorID:  c.ID(),
		Level:    NoticeInfo,
		Kind:     "stones_regenerated",
		Message:  fmt.Sprintf("%s regenerated %d stone(s)", c.ID(), req.Budget),
	})
	return out
}

// RestoreStonesAfterCombat refills every pool of every combatant.
func (e *StoneEngine) RestoreStonesAfterCombat(ctx context.Context, combat *Combat) (err error) {
	if combat == nil {
		return ErrMissingCombat
	}
	ctx, span := e.d.start(ctx, "ledger.StoneEngine.RestoreStonesAfterCombat", "", combat)
	defer func() { finish(span, err) }()

	var errs []error
	for _, c := range combat.Combatants {
		if c == nil || c.ID() == "" {
			continue
		}
		pools, err := e.pools.All(ctx, c.ID())
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if pools == nil {
			continue
		}
		next := make(Pools, len(pools))
		for a, p := range pools {
			next[a] = p.Restore()
		}
		if err := e.pools.Set(ctx, c.ID(), next); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
