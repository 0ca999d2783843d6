package ledger

import (
	"context"
	"fmt"
)

// ShopPurchase is the persisted initiative-shop purchase of one round.
type ShopPurchase struct {
	Round          int     `json:"round"`
	ExtraMovement  float64 `json:"extra_movement"` // meters
	InitiativeSwap bool    `json:"initiative_swap"`
	ExtraAttack    bool    `json:"extra_attack"`
}

// Empty reports whether the purchase grants nothing.
func (p ShopPurchase) Empty() bool {
	return p.ExtraMovement == 0 && !p.InitiativeSwap && !p.ExtraAttack
}

// ShopDecision is what the shop dialog yields: a purchase, or a
// cancellation which is recorded as "bought nothing".
type ShopDecision struct {
	Purchase  ShopPurchase
	Cancelled bool
}

// WithShop swaps the state's shop grant for purchase. Only the difference
// between the old and new grant touches the totals, so applying the same
// purchase twice leaves the state as applying it once and spent actions
// stay spent.
func (rs RoundState) WithShop(purchase *ShopPurchase) RoundState {
	out := rs.Clone()
	prevAttack, prevMove := 0, 0.0
	if prev := out.InitiativeShop; prev != nil {
		if prev.ExtraAttack {
			prevAttack = 1
		}
		prevMove = prev.ExtraMovement
	}
	out.InitiativeShop = nil

	nextAttack, nextMove := 0, 0.0
	if purchase != nil && purchase.Round == out.Round && !purchase.Empty() {
		out.InitiativeShop = &InitiativeShopState{
			Round:          purchase.Round,
			ExtraMovement:  purchase.ExtraMovement,
			InitiativeSwap: purchase.InitiativeSwap,
			ExtraAttack:    purchase.ExtraAttack,
		}
		if purchase.ExtraAttack {
			nextAttack = 1
		}
		nextMove = purchase.ExtraMovement
	}

	if delta := nextAttack - prevAttack; delta != 0 {
		out.AttackActions.Total = max(0, out.AttackActions.Total+delta)
		// A withdrawn grant takes its attack with it, spent or not.
		out.AttackActions.Used = min(out.AttackActions.Used, out.AttackActions.Total)
	}
	out.MoveBonusMeters = max(0, out.MoveBonusMeters-prevMove+nextMove)
	return out
}

// ShopIntegrator folds initiative-shop purchases into RoundState.
type ShopIntegrator struct {
	d      *deps
	rounds *RoundManager
}

// Purchase returns the actor's persisted purchase record, or nil.
func (s *ShopIntegrator) Purchase(ctx context.Context, actorID string) (*ShopPurchase, error) {
	var p ShopPurchase
	found, err := s.d.load(ctx, actorID, NamespaceShop, &p)
	if err != nil || !found {
		return nil, err
	}
	return &p, nil
}

// RecordPurchase persists the dialog's decision for the current round and
// applies it. A cancelled dialog records an empty purchase.
func (s *ShopIntegrator) RecordPurchase(ctx context.Context, c Combatant, combat *Combat, decision ShopDecision) (rs RoundState, err error) {
	if err := requireActor(c); err != nil {
		return RoundState{}, err
	}
	if err := requireCombat(combat); err != nil {
		return RoundState{}, err
	}
	ctx, span := s.d.start(ctx, "ledger.ShopIntegrator.RecordPurchase", c.ID(), combat)
	defer func() { finish(span, err) }()

	purchase := ShopPurchase{Round: combat.Round}
	if !decision.Cancelled {
		purchase = decision.Purchase
		purchase.Round = combat.Round
	}
	if purchase.ExtraMovement < 0 {
		err := violation(fmt.Sprintf("extra movement cannot be negative: %v", purchase.ExtraMovement), nil)
		s.d.warn(ctx, combat, c.ID(), err)
		return RoundState{}, err
	}

	existing, err := s.Purchase(ctx, c.ID())
	if err != nil {
		return RoundState{}, err
	}
	if existing != nil && existing.Round == combat.Round {
		err := violation("initiative shop already used this round", map[string]string{"round": fmt.Sprint(combat.Round)})
		s.d.warn(ctx, combat, c.ID(), err)
		return RoundState{}, err
	}

	current, err := s.rounds.current(ctx, c, combat)
	if err != nil {
		return RoundState{}, err
	}
	rs = current.WithShop(&purchase)
	if err := s.d.save(ctx, c.ID(), map[string]any{
		NamespaceShop:  purchase,
		NamespaceRound: rs,
	}); err != nil {
		return RoundState{}, err
	}

	if !purchase.Empty() {
		s.d.publish(ctx, Notice{
			CombatID: combat.ID,
			ActorID:  c.ID(),
			Level:    NoticeInfo,
			Kind:     "initiative_shop",
			Message:  fmt.Sprintf("%s bought from the initiative shop", c.ID()),
			Data: map[string]any{
				"extra_movement":  purchase.ExtraMovement,
				"initiative_swap": purchase.InitiativeSwap,
				"extra_attack":    purchase.ExtraAttack,
			},
		})
	}
	return rs, nil
}

// ApplyInitiativeShopBonuses recomputes the round's shop grant from the
// persisted purchase record. Calling it again in the same round is a no-op.
func (s *ShopIntegrator) ApplyInitiativeShopBonuses(ctx context.Context, c Combatant, combat *Combat) (rs RoundState, err error) {
	if err := requireActor(c); err != nil {
		return RoundState{}, err
	}
	if err := requireCombat(combat); err != nil {
		return RoundState{}, err
	}
	ctx, span := s.d.start(ctx, "ledger.ShopIntegrator.ApplyInitiativeShopBonuses", c.ID(), combat)
	defer func() { finish(span, err) }()

	current, err := s.rounds.current(ctx, c, combat)
	if err != nil {
		return RoundState{}, err
	}
	purchase, err := s.Purchase(ctx, c.ID())
	if err != nil {
		return RoundState{}, err
	}
	rs = current.WithShop(purchase)
	if err := s.d.save(ctx, c.ID(), map[string]any{NamespaceRound: rs}); err != nil {
		return RoundState{}, err
	}
	return rs, nil
}
