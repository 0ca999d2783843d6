package ledger

import "fmt"

// EffectKind names a stone-power bonus from the effect catalog.
type EffectKind string

const (
	EffectExtraAttack   EffectKind = "extra_attack"
	EffectExtraReaction EffectKind = "extra_reaction"
	EffectExtraMove     EffectKind = "extra_move"
	EffectDamage        EffectKind = "damage"
	EffectArmorPen      EffectKind = "armor_pen"
	EffectEvade         EffectKind = "evade"
	EffectCritRaise     EffectKind = "crit_raise"
	EffectTempArmor     EffectKind = "temp_armor"
	EffectFreeRaise     EffectKind = "free_raise"
	EffectSaveKeep      EffectKind = "save_keep"
	EffectSpellPool     EffectKind = "spell_pool"
	EffectSpellKeep     EffectKind = "spell_keep"
)

// EffectFor builds the Effect that adds amount of kind to the round.
// Extra attacks and reactions also raise the matching action total;
// extra movement adds meters to the round's move bonus.
func EffectFor(kind EffectKind, amount float64) (Effect, error) {
	if amount <= 0 {
		return nil, violation(fmt.Sprintf("effect amount must be positive: %v", amount), nil)
	}
	n := int(amount)
	if kind != EffectExtraMove && float64(n) != amount {
		return nil, violation(fmt.Sprintf("%s takes a whole amount, got %v", kind, amount), nil)
	}

	var apply func(rs *RoundState, b *StoneBonuses)
	switch kind {
	case EffectExtraAttack:
		apply = func(rs *RoundState, b *StoneBonuses) {
			b.ExtraAttacks += n
			rs.AttackActions.Total += n
		}
	case EffectExtraReaction:
		apply = func(rs *RoundState, b *StoneBonuses) {
			b.ExtraReactions += n
			rs.ReactionActions.Total += n
		}
	case EffectExtraMove:
		apply = func(rs *RoundState, b *StoneBonuses) {
			b.ExtraMoveMeters += amount
			rs.MoveBonusMeters += amount
		}
	case EffectDamage:
		apply = func(_ *RoundState, b *StoneBonuses) { b.DamageBonus += n }
	case EffectArmorPen:
		apply = func(_ *RoundState, b *StoneBonuses) { b.ArmorPenetration += n }
	case EffectEvade:
		apply = func(_ *RoundState, b *StoneBonuses) { b.EvadeBonus += n }
	case EffectCritRaise:
		apply = func(_ *RoundState, b *StoneBonuses) { b.CritRaises += n }
	case EffectTempArmor:
		apply = func(_ *RoundState, b *StoneBonuses) { b.TempArmor += n }
	case EffectFreeRaise:
		apply = func(_ *RoundState, b *StoneBonuses) { b.FreeRaises += n }
	case EffectSaveKeep:
		apply = func(_ *RoundState, b *StoneBonuses) { b.SaveKeepBonus += n }
	case EffectSpellPool:
		apply = func(_ *RoundState, b *StoneBonuses) { b.SpellPoolDice += n }
	case EffectSpellKeep:
		apply = func(_ *RoundState, b *StoneBonuses) { b.SpellKeepDice += n }
	default:
		return nil, violation(fmt.Sprintf("unknown stone effect %q", kind), nil)
	}

	return func(rs *RoundState) error {
		apply(rs, rs.Bonuses())
		return nil
	}, nil
}
