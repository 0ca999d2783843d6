package ledger

import (
	"context"
	"fmt"
)

// ConversionsThisRound counts conversions made in round, expired or not.
func (rs *RoundState) ConversionsThisRound(round int) int {
	n := 0
	for _, conv := range rs.Conversions {
		if conv.Round == round {
			n++
		}
	}
	return n
}

// Convert trades one unused Attack Action for one Movement or Reaction.
// At least one Attack Action must remain and at most masteryRank
// conversions may be made per round.
func (rs RoundState) Convert(target ActionKind, masteryRank, round, turn int) (RoundState, error) {
	if target != ActionMovement && target != ActionReaction {
		return rs, violation(fmt.Sprintf("cannot convert an attack into %q", target), nil)
	}
	if done := rs.ConversionsThisRound(round); done >= masteryRank {
		return rs, violation(
			fmt.Sprintf("conversion limit reached: %d of %d this round", done, masteryRank),
			map[string]string{"limit": fmt.Sprint(masteryRank)},
		)
	}
	if rs.AttackActions.Total-1 < 1 {
		return rs, violation("at least one attack action must remain", nil)
	}
	if rs.AttackActions.Available() < 1 {
		return rs, insufficient("no unused attack action to convert", map[string]string{"action": string(ActionAttack)})
	}

	out := rs.Clone()
	out.AttackActions.Total--
	out.Budget(target).Total++
	out.Conversions = append(out.Conversions, Conversion{Target: target, Round: round, Turn: turn})
	return out, nil
}

// UndoConversion reverses the latest unexpired conversion into target made
// in (round, turn). The gained action must still be unspent.
func (rs RoundState) UndoConversion(target ActionKind, round, turn int) (RoundState, error) {
	idx := -1
	for i := len(rs.Conversions) - 1; i >= 0; i-- {
		conv := rs.Conversions[i]
		if conv.Target == target && conv.Round == round && conv.Turn == turn && !conv.Expired {
			idx = i
			break
		}
	}
	if idx < 0 {
		return rs, violation(fmt.Sprintf("no %s conversion to undo this turn", target), nil)
	}
	if rs.Budget(target).Available() < 1 {
		return rs, insufficient(
			fmt.Sprintf("converted %s action already used", target),
			map[string]string{"action": string(target)},
		)
	}

	out := rs.Clone()
	out.Budget(target).Total--
	out.AttackActions.Total++
	out.Conversions = append(out.Conversions[:idx], out.Conversions[idx+1:]...)
	return out, nil
}

// ConversionEngine applies action conversions to the persisted RoundState.
type ConversionEngine struct {
	d      *deps
	rounds *RoundManager
}

// Convert turns one Attack Action into target for the current turn.
func (e *ConversionEngine) Convert(ctx context.Context, c Combatant, combat *Combat, target ActionKind) (rs RoundState, err error) {
	return e.apply(ctx, "ledger.ConversionEngine.Convert", c, combat, func(cur RoundState) (RoundState, error) {
		return cur.Convert(target, c.MasteryRank(), combat.Round, combat.Turn)
	})
}

// UndoConversion reverses one conversion made this turn.
func (e *ConversionEngine) UndoConversion(ctx context.Context, c Combatant, combat *Combat, target ActionKind) (rs RoundState, err error) {
	return e.apply(ctx, "ledger.ConversionEngine.UndoConversion", c, combat, func(cur RoundState) (RoundState, error) {
		return cur.UndoConversion(target, combat.Round, combat.Turn)
	})
}

func (e *ConversionEngine) apply(ctx context.Context, name string, c Combatant, combat *Combat, fn func(RoundState) (RoundState, error)) (rs RoundState, err error) {
	if err := requireActor(c); err != nil {
		return RoundState{}, err
	}
	if err := requireCombat(combat); err != nil {
		return RoundState{}, err
	}
	ctx, span := e.d.start(ctx, name, c.ID(), combat)
	defer func() { finish(span, err) }()

	cur, err := e.rounds.current(ctx, c, combat)
	if err != nil {
		return RoundState{}, err
	}
	next, err := fn(cur)
	if err != nil {
		e.d.warn(ctx, combat, c.ID(), err)
		return cur, err
	}
	if err := e.d.save(ctx, c.ID(), map[string]any{NamespaceRound: next}); err != nil {
		return cur, err
	}
	e.d.logger.Info("Action conversion applied",
		"actor_id", c.ID(),
		"operation", name,
		"conversions", next.ConversionsThisRound(combat.Round),
	)
	return next, nil
}
