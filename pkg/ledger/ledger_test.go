package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/combat-ledger/pkg/actor"
)

func TestNew_RequiresStoreAndRoller(t *testing.T) {
	_, err := New(nil, &scriptedRoller{}, nil, nil)
	assert.Error(t, err)

	tl := newTestLedger(t)
	_, err = New(tl.store, nil, nil, nil)
	assert.Error(t, err)
}

func TestStartCombat_InitializesEveryCombatant(t *testing.T) {
	ctx := context.Background()
	tl := newTestLedger(t)
	kara := newPC("kara", 2, map[actor.Attribute]int{actor.Might: 3, actor.Vitality: 2})
	goblin := &fakeCombatant{id: "goblin", attrs: map[actor.Attribute]int{actor.Agility: 2}}

	tl.startCombat(t, kara, goblin)

	assert.Equal(t, Pool{Current: 3, Max: 3}, tl.pool(t, "kara", actor.Might))
	assert.Equal(t, Pool{Current: 2, Max: 2}, tl.pool(t, "goblin", actor.Agility))

	rs := tl.round(t, "kara")
	assert.Equal(t, 1, rs.Round)
	assert.True(t, rs.IsPC)
	assert.Equal(t, ActionBudget{Total: 1}, rs.AttackActions)
	assert.Equal(t, ActionBudget{Total: 1}, rs.MovementActions)
	assert.Equal(t, ActionBudget{Total: 1}, rs.ReactionActions)
	assert.False(t, tl.round(t, "goblin").IsPC)

	h, found, err := tl.Attrition.Health(ctx, "kara")
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, h.Levels, 7)
	assert.Equal(t, 4, h.Levels[0].Boxes)
	assert.Equal(t, "Incapacitated", h.Levels[6].Name)
}

func TestStartCombat_KeepsExistingPools(t *testing.T) {
	ctx := context.Background()
	tl := newTestLedger(t)
	kara := newPC("kara", 1, map[actor.Attribute]int{actor.Might: 4})
	require.NoError(t, tl.Pools.Set(ctx, "kara", Pools{actor.Might: {Current: 1, Max: 4}}))

	tl.startCombat(t, kara)

	assert.Equal(t, Pool{Current: 1, Max: 4}, tl.pool(t, "kara", actor.Might))
}

func TestSpend_UsedNeverExceedsTotal(t *testing.T) {
	ctx := context.Background()
	tl := newTestLedger(t)
	kara := newPC("kara", 1, nil)
	combat := tl.startCombat(t, kara)

	require.NoError(t, tl.Rounds.SpendAttack(ctx, kara, combat))
	assert.Equal(t, 0, tl.Rounds.AvailableAttacks(ctx, kara, combat))

	err := tl.Rounds.SpendAttack(ctx, kara, combat)
	assert.ErrorIs(t, err, ErrInsufficientResource)

	rs := tl.round(t, "kara")
	assert.Equal(t, ActionBudget{Total: 1, Used: 1}, rs.AttackActions)
	assert.NoError(t, rs.Validate())
	assert.Equal(t, 1, tl.Rounds.AvailableMovement(ctx, kara, combat))
	assert.Equal(t, 1, tl.Rounds.AvailableReactions(ctx, kara, combat))
	assert.Contains(t, tl.notifier.kinds(), "rejected")
}

func TestMissingActorAndCombat(t *testing.T) {
	ctx := context.Background()
	tl := newTestLedger(t)
	kara := newPC("kara", 1, nil)
	combat := tl.startCombat(t, kara)

	assert.ErrorIs(t, tl.Rounds.SpendMovement(ctx, nil, combat), ErrMissingActor)
	assert.ErrorIs(t, tl.Rounds.SpendMovement(ctx, kara, nil), ErrMissingCombat)
	assert.ErrorIs(t, tl.Rounds.SpendMovement(ctx, kara, at(combat, 0, 0)), ErrMissingCombat)
	assert.ErrorIs(t, tl.Rounds.SpendMovement(ctx, &fakeCombatant{}, combat), ErrMissingActor)

	assert.Equal(t, 0, tl.Rounds.AvailableAttacks(ctx, nil, combat))
	assert.Equal(t, 0, tl.Rounds.AvailableAttacks(ctx, kara, nil))
	assert.Equal(t, 0, tl.Stones.NextCost(ctx, kara, nil, actor.Might, "smash"))

	_, err := tl.Stones.SpendStoneAbility(ctx, kara, nil, actor.Might, "smash", nil)
	assert.ErrorIs(t, err, ErrMissingCombat)
	_, err = tl.Conversions.Convert(ctx, nil, combat, ActionMovement)
	assert.ErrorIs(t, err, ErrMissingActor)
}

func TestSpendStoneAbility_CostDoublesPerAbilityPerTurn(t *testing.T) {
	ctx := context.Background()
	tl := newTestLedger(t)
	kara := newPC("kara", 2, map[actor.Attribute]int{actor.Might: 10})
	combat := tl.startCombat(t, kara)

	steps := []struct {
		ability string
		cost    int
		remain  int
	}{
		{"smash", 1, 9},
		{"smash", 2, 7},
		{"cleave", 1, 6},
		{"smash", 4, 2},
	}
	for _, step := range steps {
		res, err := tl.Stones.SpendStoneAbility(ctx, kara, combat, actor.Might, step.ability, nil)
		require.NoError(t, err, step.ability)
		assert.Equal(t, step.cost, res.Cost, step.ability)
		assert.Equal(t, step.remain, res.Pool.Current, step.ability)
		assert.Equal(t, step.cost*2, res.NextCost, step.ability)
	}
	assert.Equal(t, 8, tl.Stones.NextCost(ctx, kara, combat, actor.Might, "smash"))
	assert.Equal(t, 2, tl.Stones.NextCost(ctx, kara, combat, actor.Might, "cleave"))

	// A new turn starts every ability back at one stone.
	next := at(combat, 1, 2)
	_, err := tl.StartTurn(ctx, kara, next)
	require.NoError(t, err)
	assert.Equal(t, 1, tl.Stones.NextCost(ctx, kara, next, actor.Might, "smash"))

	usage, err := tl.Usage.Load(ctx, "kara")
	require.NoError(t, err)
	assert.Empty(t, usage)
}

func TestSpendStoneAbility_SmashTwiceWithTwoStones(t *testing.T) {
	ctx := context.Background()
	tl := newTestLedger(t)
	kara := newPC("kara", 2, map[actor.Attribute]int{actor.Might: 2})
	combat := tl.startCombat(t, kara)
	damage, err := EffectFor(EffectDamage, 1)
	require.NoError(t, err)

	res, err := tl.Stones.SpendStoneAbility(ctx, kara, combat, actor.Might, "smash", damage)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Cost)
	assert.Equal(t, 1, res.Pool.Current)
	require.NotNil(t, res.RoundState.StoneBonuses)
	assert.Equal(t, 1, res.RoundState.StoneBonuses.DamageBonus)

	_, err = tl.Stones.SpendStoneAbility(ctx, kara, combat, actor.Might, "smash", damage)
	assert.ErrorIs(t, err, ErrInsufficientResource)

	assert.Equal(t, Pool{Current: 1, Max: 2}, tl.pool(t, "kara", actor.Might))
	rs := tl.round(t, "kara")
	require.NotNil(t, rs.StoneBonuses)
	assert.Equal(t, 1, rs.StoneBonuses.DamageBonus)
	assert.Equal(t, 2, tl.Stones.NextCost(ctx, kara, combat, actor.Might, "smash"))
}

func TestSpendStoneAbility_RejectsBadAbility(t *testing.T) {
	ctx := context.Background()
	tl := newTestLedger(t)
	kara := newPC("kara", 1, map[actor.Attribute]int{actor.Might: 2})
	combat := tl.startCombat(t, kara)

	_, err := tl.Stones.SpendStoneAbility(ctx, kara, combat, actor.Might, "  ", nil)
	assert.ErrorIs(t, err, ErrInvariantViolation)
	_, err = tl.Stones.SpendStoneAbility(ctx, kara, combat, "luck", "smash", nil)
	assert.ErrorIs(t, err, ErrInvariantViolation)
	assert.Equal(t, 2, tl.pool(t, "kara", actor.Might).Current)
}

func TestSpendStoneAbility_FailingEffectWritesNothing(t *testing.T) {
	ctx := context.Background()
	tl := newTestLedger(t)
	kara := newPC("kara", 1, map[actor.Attribute]int{actor.Might: 3})
	combat := tl.startCombat(t, kara)
	writes := tl.store.Writes()

	_, err := tl.Stones.SpendStoneAbility(ctx, kara, combat, actor.Might, "smash", func(rs *RoundState) error {
		rs.AttackActions.Used = 5
		return nil
	})
	assert.ErrorIs(t, err, ErrInvariantViolation)

	_, err = tl.Stones.SpendStoneAbility(ctx, kara, combat, actor.Might, "smash", func(*RoundState) error {
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)

	assert.Equal(t, writes, tl.store.Writes())
	assert.Equal(t, 3, tl.pool(t, "kara", actor.Might).Current)
}

func TestSpendStoneAbility_PersistenceFailureLeavesNothingWritten(t *testing.T) {
	ctx := context.Background()
	tl := newTestLedger(t)
	kara := newPC("kara", 1, map[actor.Attribute]int{actor.Might: 3})
	combat := tl.startCombat(t, kara)
	before := tl.store.Snapshot("kara")
	extra, err := EffectFor(EffectExtraAttack, 1)
	require.NoError(t, err)

	tl.store.SetWriteError(errBoom)
	_, err = tl.Stones.SpendStoneAbility(ctx, kara, combat, actor.Might, "surge", extra)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, errBoom)
	tl.store.SetWriteError(nil)

	assert.Equal(t, before, tl.store.Snapshot("kara"))
}

func TestSpendStoneAbility_NotifierFailureKeepsMutation(t *testing.T) {
	ctx := context.Background()
	tl := newTestLedger(t)
	tl.notifier.err = errBoom
	kara := newPC("kara", 1, map[actor.Attribute]int{actor.Agility: 2})
	combat := tl.startCombat(t, kara)

	res, err := tl.Stones.SpendStoneAbility(ctx, kara, combat, actor.Agility, "dodge", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pool.Current)
	assert.Equal(t, 1, tl.pool(t, "kara", actor.Agility).Current)
	assert.Contains(t, tl.notifier.kinds(), "stone_spent")
}

func TestSpendStoneAbility_ExtraActionsRaiseTotals(t *testing.T) {
	ctx := context.Background()
	tl := newTestLedger(t)
	kara := newPC("kara", 1, map[actor.Attribute]int{actor.Might: 5, actor.Agility: 5})
	combat := tl.startCombat(t, kara)

	attack, err := EffectFor(EffectExtraAttack, 1)
	require.NoError(t, err)
	move, err := EffectFor(EffectExtraMove, 1.5)
	require.NoError(t, err)

	_, err = tl.Stones.SpendStoneAbility(ctx, kara, combat, actor.Might, "flurry", attack)
	require.NoError(t, err)
	_, err = tl.Stones.SpendStoneAbility(ctx, kara, combat, actor.Agility, "dash", move)
	require.NoError(t, err)

	rs := tl.round(t, "kara")
	assert.Equal(t, 2, rs.AttackActions.Total)
	assert.InDelta(t, 1.5, rs.MoveBonusMeters, 0.001)
	require.NotNil(t, rs.StoneBonuses)
	assert.Equal(t, 1, rs.StoneBonuses.ExtraAttacks)
	assert.Equal(t, 2, tl.Rounds.AvailableAttacks(ctx, kara, combat))
}

func TestConvert_ConservesActionsAndRespectsLimit(t *testing.T) {
	ctx := context.Background()
	tl := newTestLedger(t)
	kara := newPC("kara", 1, map[actor.Attribute]int{actor.Might: 5})
	combat := tl.startCombat(t, kara)

	// With a single attack, none may be converted.
	_, err := tl.Conversions.Convert(ctx, kara, combat, ActionMovement)
	assert.ErrorIs(t, err, ErrInvariantViolation)

	extra, err := EffectFor(EffectExtraAttack, 2)
	require.NoError(t, err)
	_, err = tl.Stones.SpendStoneAbility(ctx, kara, combat, actor.Might, "flurry", extra)
	require.NoError(t, err)
	before := tl.round(t, "kara")
	require.Equal(t, 3, before.AttackActions.Total)

	rs, err := tl.Conversions.Convert(ctx, kara, combat, ActionMovement)
	require.NoError(t, err)
	assert.Equal(t, 2, rs.AttackActions.Total)
	assert.Equal(t, 2, rs.MovementActions.Total)
	assert.Equal(t, before.TotalActions(), rs.TotalActions())

	// Mastery Rank 1 allows one conversion per round.
	_, err = tl.Conversions.Convert(ctx, kara, combat, ActionReaction)
	assert.ErrorIs(t, err, ErrInvariantViolation)

	_, err = tl.Conversions.Convert(ctx, kara, combat, ActionAttack)
	assert.ErrorIs(t, err, ErrInvariantViolation)
	assert.Equal(t, rs, tl.round(t, "kara"))
}

func TestConvert_KeepsOneAttack(t *testing.T) {
	ctx := context.Background()
	tl := newTestLedger(t)
	kara := newPC("kara", 3, nil)
	combat := tl.startCombat(t, kara)
	_, err := tl.Shop.RecordPurchase(ctx, kara, combat, ShopDecision{Purchase: ShopPurchase{ExtraAttack: true}})
	require.NoError(t, err)

	_, err = tl.Conversions.Convert(ctx, kara, combat, ActionMovement)
	require.NoError(t, err)
	_, err = tl.Conversions.Convert(ctx, kara, combat, ActionMovement)
	assert.ErrorIs(t, err, ErrInvariantViolation)
	assert.Equal(t, 1, tl.round(t, "kara").AttackActions.Total)
}

func TestConvert_NeedsUnusedAttack(t *testing.T) {
	ctx := context.Background()
	tl := newTestLedger(t)
	kara := newPC("kara", 2, nil)
	combat := tl.startCombat(t, kara)
	_, err := tl.Shop.RecordPurchase(ctx, kara, combat, ShopDecision{Purchase: ShopPurchase{ExtraAttack: true}})
	require.NoError(t, err)
	require.NoError(t, tl.Rounds.SpendAttack(ctx, kara, combat))
	require.NoError(t, tl.Rounds.SpendAttack(ctx, kara, combat))

	_, err = tl.Conversions.Convert(ctx, kara, combat, ActionReaction)
	assert.ErrorIs(t, err, ErrInsufficientResource)
}

func TestUndoConversion(t *testing.T) {
	ctx := context.Background()
	tl := newTestLedger(t)
	kara := newPC("kara", 1, nil)
	combat := tl.startCombat(t, kara)
	_, err := tl.Shop.RecordPurchase(ctx, kara, combat, ShopDecision{Purchase: ShopPurchase{ExtraAttack: true}})
	require.NoError(t, err)

	_, err = tl.Conversions.UndoConversion(ctx, kara, combat, ActionReaction)
	assert.ErrorIs(t, err, ErrInvariantViolation)

	_, err = tl.Conversions.Convert(ctx, kara, combat, ActionReaction)
	require.NoError(t, err)
	rs, err := tl.Conversions.UndoConversion(ctx, kara, combat, ActionReaction)
	require.NoError(t, err)
	assert.Equal(t, 2, rs.AttackActions.Total)
	assert.Equal(t, 1, rs.ReactionActions.Total)
	assert.Empty(t, rs.Conversions)

	// The undone conversion no longer counts toward the limit.
	_, err = tl.Conversions.Convert(ctx, kara, combat, ActionReaction)
	require.NoError(t, err)
	require.NoError(t, tl.Rounds.SpendReaction(ctx, kara, combat))
	require.NoError(t, tl.Rounds.SpendReaction(ctx, kara, combat))
	_, err = tl.Conversions.UndoConversion(ctx, kara, combat, ActionReaction)
	assert.ErrorIs(t, err, ErrInsufficientResource)
}

func TestStartTurn_ExpiresConvertedReactions(t *testing.T) {
	ctx := context.Background()
	tl := newTestLedger(t)
	kara := newPC("kara", 1, nil)
	combat := tl.startCombat(t, kara)
	_, err := tl.Shop.RecordPurchase(ctx, kara, combat, ShopDecision{Purchase: ShopPurchase{ExtraAttack: true}})
	require.NoError(t, err)
	_, err = tl.Conversions.Convert(ctx, kara, combat, ActionReaction)
	require.NoError(t, err)
	require.NoError(t, tl.Rounds.SpendMovement(ctx, kara, combat))

	// Restarting the same turn keeps the reaction.
	ts, err := tl.StartTurn(ctx, kara, combat)
	require.NoError(t, err)
	assert.Equal(t, 2, ts.RoundState.ReactionActions.Total)
	assert.Equal(t, 0, ts.RoundState.MovementActions.Used)

	next := at(combat, 1, 2)
	ts, err = tl.StartTurn(ctx, kara, next)
	require.NoError(t, err)
	assert.Equal(t, 1, ts.RoundState.ReactionActions.Total)
	require.Len(t, ts.RoundState.Conversions, 1)
	assert.True(t, ts.RoundState.Conversions[0].Expired)
	assert.Nil(t, ts.DeathSave)

	// Expiry happens once.
	ts, err = tl.StartTurn(ctx, kara, next)
	require.NoError(t, err)
	assert.Equal(t, 1, ts.RoundState.ReactionActions.Total)

	// The expired conversion still counts toward this round's limit.
	_, err = tl.Conversions.Convert(ctx, kara, next, ActionMovement)
	assert.ErrorIs(t, err, ErrInvariantViolation)
}

func TestStartRound_ResetsEphemeralState(t *testing.T) {
	ctx := context.Background()
	tl := newTestLedger(t)
	kara := newPC("kara", 2, map[actor.Attribute]int{actor.Might: 5})
	combat := tl.startCombat(t, kara)

	extra, err := EffectFor(EffectExtraAttack, 1)
	require.NoError(t, err)
	_, err = tl.Stones.SpendStoneAbility(ctx, kara, combat, actor.Might, "flurry", extra)
	require.NoError(t, err)
	_, err = tl.Conversions.Convert(ctx, kara, combat, ActionReaction)
	require.NoError(t, err)
	require.NoError(t, tl.Rounds.SpendMovement(ctx, kara, combat))

	round2 := at(combat, 2, 1)
	require.NoError(t, tl.StartRound(ctx, round2))
	first := tl.round(t, "kara")
	assert.Equal(t, 2, first.Round)
	assert.Equal(t, ActionBudget{Total: 1}, first.AttackActions)
	assert.Equal(t, ActionBudget{Total: 1}, first.MovementActions)
	assert.Equal(t, ActionBudget{Total: 1}, first.ReactionActions)
	assert.Nil(t, first.StoneBonuses)
	assert.Empty(t, first.Conversions)

	require.NoError(t, tl.StartRound(ctx, round2))
	assert.Equal(t, first, tl.round(t, "kara"))

	// Pools are not part of the round reset.
	assert.Equal(t, 4, tl.pool(t, "kara", actor.Might).Current)
}

func TestReadsRollStaleRoundForward(t *testing.T) {
	ctx := context.Background()
	tl := newTestLedger(t)
	kara := newPC("kara", 1, nil)
	combat := tl.startCombat(t, kara)
	require.NoError(t, tl.Rounds.SpendAttack(ctx, kara, combat))

	round3 := at(combat, 3, 1)
	assert.Equal(t, 1, tl.Rounds.AvailableAttacks(ctx, kara, round3))
	require.NoError(t, tl.Rounds.SpendAttack(ctx, kara, round3))
	assert.Equal(t, 3, tl.round(t, "kara").Round)
}

func TestInitiativeShop(t *testing.T) {
	ctx := context.Background()
	tl := newTestLedger(t)
	kara := newPC("kara", 1, nil)
	combat := tl.startCombat(t, kara)

	rs, err := tl.Shop.RecordPurchase(ctx, kara, combat, ShopDecision{
		Purchase: ShopPurchase{ExtraAttack: true, ExtraMovement: 3, Round: 99},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, rs.AttackActions.Total)
	assert.InDelta(t, 3.0, rs.MoveBonusMeters, 0.001)
	require.NotNil(t, rs.InitiativeShop)
	assert.Equal(t, 1, rs.InitiativeShop.Round)
	assert.Contains(t, tl.notifier.kinds(), "initiative_shop")

	for range 2 {
		again, err := tl.Shop.ApplyInitiativeShopBonuses(ctx, kara, combat)
		require.NoError(t, err)
		assert.Equal(t, rs, again)
	}

	_, err = tl.Shop.RecordPurchase(ctx, kara, combat, ShopDecision{Purchase: ShopPurchase{ExtraAttack: true}})
	assert.ErrorIs(t, err, ErrInvariantViolation)
	assert.Equal(t, 2, tl.round(t, "kara").AttackActions.Total)

	// Last round's purchase does not carry into round 2.
	round2 := at(combat, 2, 1)
	require.NoError(t, tl.StartRound(ctx, round2))
	rs = tl.round(t, "kara")
	assert.Equal(t, 1, rs.AttackActions.Total)
	assert.Zero(t, rs.MoveBonusMeters)
	assert.Nil(t, rs.InitiativeShop)
}

func TestInitiativeShop_PurchaseBeforeRoundStart(t *testing.T) {
	ctx := context.Background()
	tl := newTestLedger(t)
	kara := newPC("kara", 1, nil)
	combat := tl.startCombat(t, kara)

	round2 := at(combat, 2, 1)
	_, err := tl.Shop.RecordPurchase(ctx, kara, round2, ShopDecision{Purchase: ShopPurchase{ExtraAttack: true}})
	require.NoError(t, err)
	require.NoError(t, tl.StartRound(ctx, round2))
	require.NoError(t, tl.StartRound(ctx, round2))

	rs := tl.round(t, "kara")
	assert.Equal(t, 2, rs.Round)
	assert.Equal(t, 2, rs.AttackActions.Total)
}

func TestInitiativeShop_CancelRecordsEmptyPurchase(t *testing.T) {
	ctx := context.Background()
	tl := newTestLedger(t)
	kara := newPC("kara", 1, nil)
	combat := tl.startCombat(t, kara)

	rs, err := tl.Shop.RecordPurchase(ctx, kara, combat, ShopDecision{
		Purchase:  ShopPurchase{ExtraAttack: true},
		Cancelled: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rs.AttackActions.Total)
	assert.Nil(t, rs.InitiativeShop)

	p, err := tl.Shop.Purchase(ctx, "kara")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.True(t, p.Empty())

	_, err = tl.Shop.RecordPurchase(ctx, kara, combat, ShopDecision{Purchase: ShopPurchase{ExtraAttack: true}})
	assert.ErrorIs(t, err, ErrInvariantViolation)
}

func TestInitiativeShop_ReapplyKeepsSpentAttacks(t *testing.T) {
	ctx := context.Background()
	tl := newTestLedger(t)
	kara := newPC("kara", 1, nil)
	combat := tl.startCombat(t, kara)
	_, err := tl.Shop.RecordPurchase(ctx, kara, combat, ShopDecision{Purchase: ShopPurchase{ExtraAttack: true}})
	require.NoError(t, err)
	require.NoError(t, tl.Rounds.SpendAttack(ctx, kara, combat))
	require.NoError(t, tl.Rounds.SpendAttack(ctx, kara, combat))

	rs, err := tl.Shop.ApplyInitiativeShopBonuses(ctx, kara, combat)
	require.NoError(t, err)
	assert.Equal(t, ActionBudget{Total: 2, Used: 2}, rs.AttackActions)
	assert.Zero(t, tl.Rounds.AvailableAttacks(ctx, kara, combat))
	assert.ErrorIs(t, tl.Rounds.SpendAttack(ctx, kara, combat), ErrInsufficientResource)
}

func TestInitiativeShop_ReapplyAfterConversion(t *testing.T) {
	ctx := context.Background()
	tl := newTestLedger(t)
	kara := newPC("kara", 1, nil)
	combat := tl.startCombat(t, kara)
	_, err := tl.Shop.RecordPurchase(ctx, kara, combat, ShopDecision{Purchase: ShopPurchase{ExtraAttack: true}})
	require.NoError(t, err)
	_, err = tl.Conversions.Convert(ctx, kara, combat, ActionMovement)
	require.NoError(t, err)
	require.NoError(t, tl.Rounds.SpendAttack(ctx, kara, combat))

	rs, err := tl.Shop.ApplyInitiativeShopBonuses(ctx, kara, combat)
	require.NoError(t, err)
	assert.Equal(t, ActionBudget{Total: 1, Used: 1}, rs.AttackActions)
	assert.Equal(t, 2, rs.MovementActions.Total)
}

func TestEndRound_RegeneratesPCStones(t *testing.T) {
	ctx := context.Background()
	tl := newTestLedger(t)
	kara := newPC("kara", 2, map[actor.Attribute]int{actor.Might: 3, actor.Agility: 3})
	goblin := &fakeCombatant{id: "goblin", mastery: 2, attrs: map[actor.Attribute]int{actor.Might: 3}}
	combat := tl.startCombat(t, kara, goblin)

	for _, c := range []Combatant{kara, goblin} {
		for range 2 {
			_, err := tl.Stones.SpendStoneAbility(ctx, c, combat, actor.Might, "smash", nil)
			require.NoError(t, err)
		}
	}
	require.Equal(t, 0, tl.pool(t, "kara", actor.Might).Current)

	var seen AllocationRequest
	outcomes, err := tl.EndRound(ctx, combat, allocatorFunc(func(_ context.Context, _ Combatant, req AllocationRequest) (Allocation, error) {
		seen = req
		return Allocation{actor.Might: 2}, nil
	}))
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "kara", outcomes[0].ActorID)
	assert.Equal(t, Allocation{actor.Might: 2}, outcomes[0].Applied)

	assert.Equal(t, 2, seen.Budget)
	assert.Equal(t, 3, seen.Caps[actor.Might])
	assert.Equal(t, 0, seen.Caps[actor.Agility])
	assert.Equal(t, 2, tl.pool(t, "kara", actor.Might).Current)
	assert.Equal(t, 0, tl.pool(t, "goblin", actor.Might).Current)
}

func TestEndRound_InvalidOrSkippedAllocationChangesNothing(t *testing.T) {
	ctx := context.Background()
	tl := newTestLedger(t)
	kara := newPC("kara", 2, map[actor.Attribute]int{actor.Might: 3, actor.Agility: 3})
	combat := tl.startCombat(t, kara)
	for range 2 {
		_, err := tl.Stones.SpendStoneAbility(ctx, kara, combat, actor.Might, "smash", nil)
		require.NoError(t, err)
	}
	_, err := tl.Stones.SpendStoneAbility(ctx, kara, combat, actor.Agility, "dodge", nil)
	require.NoError(t, err)

	tests := []struct {
		name      string
		allocator Allocator
	}{
		{"under budget", fixedAllocation(Allocation{actor.Might: 1})},
		{"over cap", fixedAllocation(Allocation{actor.Agility: 2})},
		{"negative", fixedAllocation(Allocation{actor.Might: 3, actor.Agility: -1})},
		{"skipped", allocatorFunc(func(context.Context, Combatant, AllocationRequest) (Allocation, error) {
			return nil, ErrAllocationSkipped
		})},
		{"dismissed", fixedAllocation(nil)},
		{"no dialog", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcomes, err := tl.EndRound(ctx, combat, tt.allocator)
			require.NoError(t, err)
			require.Len(t, outcomes, 1)
			assert.True(t, outcomes[0].Skipped)
			assert.Nil(t, outcomes[0].Applied)
			assert.Equal(t, 0, tl.pool(t, "kara", actor.Might).Current)
			assert.Equal(t, 2, tl.pool(t, "kara", actor.Agility).Current)
		})
	}
}

func TestEndRound_BudgetLimitedByHeadroom(t *testing.T) {
	ctx := context.Background()
	tl := newTestLedger(t)
	kara := newPC("kara", 3, map[actor.Attribute]int{actor.Might: 2})
	combat := tl.startCombat(t, kara)
	_, err := tl.Stones.SpendStoneAbility(ctx, kara, combat, actor.Might, "smash", nil)
	require.NoError(t, err)

	outcomes, err := tl.EndRound(ctx, combat, allocatorFunc(func(_ context.Context, _ Combatant, req AllocationRequest) (Allocation, error) {
		assert.Equal(t, 1, req.Budget)
		return Allocation{actor.Might: req.Budget}, nil
	}))
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Skipped)
	assert.Equal(t, 2, tl.pool(t, "kara", actor.Might).Current)

	// Full pools leave nothing to allocate.
	outcomes, err = tl.EndRound(ctx, combat, fixedAllocation(Allocation{actor.Might: 1}))
	require.NoError(t, err)
	assert.True(t, outcomes[0].Skipped)
}

func TestSustainedStones(t *testing.T) {
	ctx := context.Background()
	tl := newTestLedger(t)
	kara := newPC("kara", 2, map[actor.Attribute]int{actor.Resolve: 4})
	combat := tl.startCombat(t, kara)

	p, err := tl.Pools.Sustain(ctx, "kara", actor.Resolve, 2)
	require.NoError(t, err)
	assert.Equal(t, Pool{Current: 2, Max: 4, Sustained: 2}, p)
	assert.Equal(t, 0, p.Headroom())

	_, err = tl.Pools.Sustain(ctx, "kara", actor.Resolve, 3)
	assert.ErrorIs(t, err, ErrInsufficientResource)

	p, err = tl.Pools.ReleaseSustained(ctx, "kara", actor.Resolve, 1)
	require.NoError(t, err)
	assert.Equal(t, Pool{Current: 2, Max: 4, Sustained: 1}, p)
	assert.Equal(t, 1, p.Headroom())

	_, err = tl.Pools.ReleaseSustained(ctx, "kara", actor.Resolve, 5)
	assert.ErrorIs(t, err, ErrInvariantViolation)

	require.NoError(t, tl.EndCombat(ctx, combat))
	assert.Equal(t, Pool{Current: 4, Max: 4}, tl.pool(t, "kara", actor.Resolve))
}

func TestPoolStore_SetValidates(t *testing.T) {
	ctx := context.Background()
	tl := newTestLedger(t)

	assert.ErrorIs(t, tl.Pools.Set(ctx, "kara", Pools{actor.Might: {Current: 3, Max: 2}}), ErrInvariantViolation)
	assert.ErrorIs(t, tl.Pools.Set(ctx, "kara", Pools{"luck": {Current: 1, Max: 1}}), ErrInvariantViolation)
	assert.ErrorIs(t, tl.Pools.Set(ctx, "", Pools{}), ErrMissingActor)
}

func TestEndCombat_RestoresPoolsAndDropsEncounterFlags(t *testing.T) {
	ctx := context.Background()
	tl := newTestLedger(t)
	kara := newPC("kara", 1, map[actor.Attribute]int{actor.Might: 3, actor.Vitality: 1})
	combat := tl.startCombat(t, kara)
	_, err := tl.Stones.SpendStoneAbility(ctx, kara, combat, actor.Might, "smash", nil)
	require.NoError(t, err)
	_, err = tl.Shop.RecordPurchase(ctx, kara, combat, ShopDecision{Cancelled: true})
	require.NoError(t, err)
	_, err = tl.Attrition.ApplyDamage(ctx, kara, combat, 1, false)
	require.NoError(t, err)

	require.NoError(t, tl.EndCombat(ctx, combat))

	assert.Equal(t, Pool{Current: 3, Max: 3}, tl.pool(t, "kara", actor.Might))
	assert.Equal(t, []string{NamespaceDeathSave, NamespaceHealth, NamespacePools}, tl.store.Namespaces("kara"))

	h, _, err := tl.Attrition.Health(ctx, "kara")
	require.NoError(t, err)
	assert.Equal(t, 1, h.Levels[0].DamageBoxes)

	assert.ErrorIs(t, tl.EndCombat(ctx, nil), ErrMissingCombat)
}
