package ledger

import (
	"context"
	"fmt"
)

// NewRoundState is the encounter-start budget: one action of each kind.
func NewRoundState(c Combatant, combat *Combat) RoundState {
	return RoundState{
		Round:           1,
		Turn:            combat.Turn,
		IsPC:            c.IsPC(),
		MovementActions: ActionBudget{Total: BaseActions},
		AttackActions:   ActionBudget{Total: BaseActions},
		ReactionActions: ActionBudget{Total: BaseActions},
	}
}

// ResetForTurn zeroes every used counter and expires Reactions gained by
// conversion on an earlier turn. Totals are otherwise untouched.
func (rs RoundState) ResetForTurn(round, turn int) RoundState {
	out := rs.Clone()
	out.Turn = turn
	out.AttackActions.Used = 0
	out.MovementActions.Used = 0
	out.ReactionActions.Used = 0
	for i, conv := range out.Conversions {
		if conv.Target != ActionReaction || conv.Expired {
			continue
		}
		if conv.Round == round && conv.Turn == turn {
			continue
		}
		out.ReactionActions.Total = max(0, out.ReactionActions.Total-1)
		out.Conversions[i].Expired = true
	}
	return out
}

// ResetForRound rebuilds the budget for a new round: base actions, no
// stone bonuses, no conversions, then the round's shop purchase.
// The result depends only on its inputs, so repeated calls agree.
func (rs RoundState) ResetForRound(round, turn int, purchase *ShopPurchase) RoundState {
	out := RoundState{
		Round:           round,
		Turn:            turn,
		IsPC:            rs.IsPC,
		MovementActions: ActionBudget{Total: BaseActions},
		AttackActions:   ActionBudget{Total: BaseActions},
		ReactionActions: ActionBudget{Total: BaseActions},
	}
	return out.WithShop(purchase)
}

// Spend uses one action of kind, failing without change if none remain.
func (rs RoundState) Spend(kind ActionKind) (RoundState, error) {
	if !kind.Valid() {
		return rs, violation(fmt.Sprintf("unknown action kind %q", kind), nil)
	}
	out := rs.Clone()
	b := out.Budget(kind)
	if b.Used >= b.Total {
		return rs, insufficient(
			fmt.Sprintf("no %s actions remaining", kind),
			map[string]string{"action": string(kind)},
		)
	}
	b.Used++
	return out, nil
}

// RoundManager owns the persisted RoundState of each combatant.
type RoundManager struct {
	d    *deps
	shop *ShopIntegrator
}

// Initialize writes the encounter-start RoundState for a combatant.
func (m *RoundManager) Initialize(ctx context.Context, c Combatant, combat *Combat) (rs RoundState, err error) {
	if err := requireActor(c); err != nil {
		return RoundState{}, err
	}
	if err := requireCombat(combat); err != nil {
		return RoundState{}, err
	}
	ctx, span := m.d.start(ctx, "ledger.RoundManager.Initialize", c.ID(), combat)
	defer func() { finish(span, err) }()

	rs = NewRoundState(c, combat)
	if err := m.d.save(ctx, c.ID(), map[string]any{NamespaceRound: rs}); err != nil {
		return RoundState{}, err
	}
	m.d.logger.Debug("Round state initialized", "actor_id", c.ID(), "turn", rs.Turn)
	return rs, nil
}

// Get returns the stored RoundState; ok is false if none exists.
func (m *RoundManager) Get(ctx context.Context, actorID string) (RoundState, bool, error) {
	if actorID == "" {
		return RoundState{}, false, nil
	}
	var rs RoundState
	found, err := m.d.load(ctx, actorID, NamespaceRound, &rs)
	if err != nil {
		return RoundState{}, false, err
	}
	return rs, found, nil
}

// current reads the freshest RoundState valid for combat's round. A
// missing record is initialized and a stale one is rolled forward.
func (m *RoundManager) current(ctx context.Context, c Combatant, combat *Combat) (RoundState, error) {
	rs, found, err := m.Get(ctx, c.ID())
	if err != nil {
		return RoundState{}, err
	}
	if !found || rs.Round != combat.Round {
		if !found {
			rs = NewRoundState(c, combat)
		}
		purchase, err := m.shop.Purchase(ctx, c.ID())
		if err != nil {
			return RoundState{}, err
		}
		rs = rs.ResetForRound(combat.Round, combat.Turn, purchase)
	}
	return rs, nil
}

// ResetForTurn starts the combatant's turn.
func (m *RoundManager) ResetForTurn(ctx context.Context, c Combatant, combat *Combat) (rs RoundState, err error) {
	if err := requireActor(c); err != nil {
		return RoundState{}, err
	}
	if err := requireCombat(combat); err != nil {
		return RoundState{}, err
	}
	ctx, span := m.d.start(ctx, "ledger.RoundManager.ResetForTurn", c.ID(), combat)
	defer func() { finish(span, err) }()

	prev, err := m.current(ctx, c, combat)
	if err != nil {
		return RoundState{}, err
	}
	rs = prev.ResetForTurn(combat.Round, combat.Turn)
	if err := m.d.save(ctx, c.ID(), map[string]any{NamespaceRound: rs}); err != nil {
		return RoundState{}, err
	}
	if expired := prev.ReactionActions.Total - rs.ReactionActions.Total; expired > 0 {
		m.d.logger.Info("Converted reactions expired", "actor_id", c.ID(), "count", expired)
	}
	return rs, nil
}

// ResetForRound clears the round's ephemeral bonuses and reapplies the
// round's initiative shop purchase from its persisted record.
func (m *RoundManager) ResetForRound(ctx context.Context, c Combatant, combat *Combat) (rs RoundState, err error) {
	if err := requireActor(c); err != nil {
		return RoundState{}, err
	}
	if err := requireCombat(combat); err != nil {
		return RoundState{}, err
	}
	ctx, span := m.d.start(ctx, "ledger.RoundManager.ResetForRound", c.ID(), combat)
	defer func() { finish(span, err) }()

	prev, _, err := m.Get(ctx, c.ID())
	if err != nil {
		return RoundState{}, err
	}
	prev.IsPC = c.IsPC()
	purchase, err := m.shop.Purchase(ctx, c.ID())
	if err != nil {
		return RoundState{}, err
	}
	rs = prev.ResetForRound(combat.Round, combat.Turn, purchase)
	if err := m.d.save(ctx, c.ID(), map[string]any{NamespaceRound: rs}); err != nil {
		return RoundState{}, err
	}
	m.d.logger.Debug("Round state reset", "actor_id", c.ID(), "round", combat.Round)
	return rs, nil
}

// Spend uses one action of kind.
func (m *RoundManager) Spend(ctx context.Context, c Combatant, combat *Combat, kind ActionKind) (err error) {
	if err := requireActor(c); err != nil {
		return err
	}
	if err := requireCombat(combat); err != nil {
		return err
	}
	ctx, span := m.d.start(ctx, "ledger.RoundManager.Spend", c.ID(), combat)
	defer func() { finish(span, err) }()

	rs, err := m.current(ctx, c, combat)
	if err != nil {
		return err
	}
	next, err := rs.Spend(kind)
	if err != nil {
		m.d.warn(ctx, combat, c.ID(), err)
		return err
	}
	if err := m.d.save(ctx, c.ID(), map[string]any{NamespaceRound: next}); err != nil {
		return err
	}
	m.d.logger.Debug("Action spent", "actor_id", c.ID(), "action", kind, "remaining", next.Budget(kind).Available())
	return nil
}

func (m *RoundManager) SpendAttack(ctx context.Context, c Combatant, combat *Combat) error {
	return m.Spend(ctx, c, combat, ActionAttack)
}

func (m *RoundManager) SpendMovement(ctx context.Context, c Combatant, combat *Combat) error {
	return m.Spend(ctx, c, combat, ActionMovement)
}

func (m *RoundManager) SpendReaction(ctx context.Context, c Combatant, combat *Combat) error {
	return m.Spend(ctx, c, combat, ActionReaction)
}

// Available returns the unspent actions of kind, or 0 when called without
// an actor, outside combat, or when the record cannot be read.
func (m *RoundManager) Available(ctx context.Context, c Combatant, combat *Combat, kind ActionKind) int {
	if requireActor(c) != nil || requireCombat(combat) != nil || !kind.Valid() {
		return 0
	}
	rs, err := m.current(ctx, c, combat)
	if err != nil {
		return 0
	}
	return rs.Budget(kind).Available()
}

func (m *RoundManager) AvailableAttacks(ctx context.Context, c Combatant, combat *Combat) int {
	return m.Available(ctx, c, combat, ActionAttack)
}

func (m *RoundManager) AvailableMovement(ctx context.Context, c Combatant, combat *Combat) int {
	return m.Available(ctx, c, combat, ActionMovement)
}

func (m *RoundManager) AvailableReactions(ctx context.Context, c Combatant, combat *Combat) int {
	return m.Available(ctx, c, combat, ActionReaction)
}

// State returns the RoundState valid for combat without writing it.
func (m *RoundManager) State(ctx context.Context, c Combatant, combat *Combat) (RoundState, error) {
	if requireActor(c) != nil || requireCombat(combat) != nil {
		return RoundState{}, nil
	}
	return m.current(ctx, c, combat)
}
