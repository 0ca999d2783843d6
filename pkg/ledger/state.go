package ledger

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/jwebster45206/combat-ledger/pkg/actor"
)

// Combatant is the read-only view of an actor the ledger needs.
// *actor.Character satisfies it.
type Combatant interface {
	ID() string
	IsPC() bool
	MasteryRank() int
	Attribute(a actor.Attribute) int
}

var _ Combatant = (*actor.Character)(nil)

// Combat is the host's snapshot of the running encounter.
type Combat struct {
	ID         uuid.UUID
	Round      int // 1-based; 0 means no active encounter
	Turn       int
	Combatants []Combatant
}

// Active reports whether combat describes a running encounter.
func (c *Combat) Active() bool {
	return c != nil && c.Round >= 1
}

// ActionKind names one of the three action budgets.
type ActionKind string

const (
	ActionAttack   ActionKind = "attack"
	ActionMovement ActionKind = "movement"
	ActionReaction ActionKind = "reaction"
)

// Valid reports whether k names an action budget.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionAttack, ActionMovement, ActionReaction:
		return true
	}
	return false
}

// ActionBudget is one action category's allowance.
type ActionBudget struct {
	Total int `json:"total"`
	Used  int `json:"used"`
}

// Available returns the unspent actions.
func (b ActionBudget) Available() int {
	return max(0, b.Total-b.Used)
}

// InitiativeShopState is the resolved shop purchase for one round.
type InitiativeShopState struct {
	Round          int     `json:"round"`
	ExtraMovement  float64 `json:"extra_movement"`
	InitiativeSwap bool    `json:"initiative_swap"`
	ExtraAttack    bool    `json:"extra_attack"`
}

// StoneBonuses accumulates stone-power effects for the current round.
type StoneBonuses struct {
	ExtraAttacks     int     `json:"extra_attacks"`
	ExtraReactions   int     `json:"extra_reactions"`
	ExtraMoveMeters  float64 `json:"extra_move_meters"`
	DamageBonus      int     `json:"damage_bonus,omitempty"`
	ArmorPenetration int     `json:"armor_penetration,omitempty"`
	EvadeBonus       int     `json:"evade_bonus,omitempty"`
	CritRaises       int     `json:"crit_raises,omitempty"`
	TempArmor        int     `json:"temp_armor,omitempty"`
	FreeRaises       int     `json:"free_raises,omitempty"`
	SaveKeepBonus    int     `json:"save_keep_bonus,omitempty"`
	SpellPoolDice    int     `json:"spell_pool_dice,omitempty"`
	SpellKeepDice    int     `json:"spell_keep_dice,omitempty"`
}

// Conversion records one Attack Action converted this round.
type Conversion struct {
	Target  ActionKind `json:"target"`
	Round   int        `json:"round"`
	Turn    int        `json:"turn"`
	Expired bool       `json:"expired,omitempty"`
}

// RoundState is the authoritative action ledger of one actor.
type RoundState struct {
	Round int  `json:"round"`
	Turn  int  `json:"turn"`
	IsPC  bool `json:"is_pc"`

	MovementActions ActionBudget `json:"movement_actions"`
	AttackActions   ActionBudget `json:"attack_actions"`
	ReactionActions ActionBudget `json:"reaction_actions"`

	MoveBonusMeters float64              `json:"move_bonus_meters"`
	InitiativeShop  *InitiativeShopState `json:"initiative_shop,omitempty"`
	StoneBonuses    *StoneBonuses        `json:"stone_bonuses,omitempty"`
	Conversions     []Conversion         `json:"conversions,omitempty"`
}

// BaseActions is the per-category budget every combatant starts a round with.
const BaseActions = 1

// Budget returns the budget for kind, or nil for an unknown kind.
func (rs *RoundState) Budget(kind ActionKind) *ActionBudget {
	switch kind {
	case ActionAttack:
		return &rs.AttackActions
	case ActionMovement:
		return &rs.MovementActions
	case ActionReaction:
		return &rs.ReactionActions
	}
	return nil
}

// Bonuses returns the stone bonus record, creating it on first use.
func (rs *RoundState) Bonuses() *StoneBonuses {
	if rs.StoneBonuses == nil {
		rs.StoneBonuses = &StoneBonuses{}
	}
	return rs.StoneBonuses
}

// Validate checks 0 <= used <= total for every action category.
func (rs *RoundState) Validate() error {
	for _, kind := range []ActionKind{ActionAttack, ActionMovement, ActionReaction} {
		b := rs.Budget(kind)
		if b.Total < 0 || b.Used < 0 || b.Used > b.Total {
			return violation(
				fmt.Sprintf("%s actions out of range: used %d of %d", kind, b.Used, b.Total),
				map[string]string{"action": string(kind)},
			)
		}
	}
	if rs.MoveBonusMeters < 0 {
		return violation("move bonus cannot be negative", nil)
	}
	return nil
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (rs RoundState) Clone() RoundState {
	out := rs
	if rs.InitiativeShop != nil {
		shop := *rs.InitiativeShop
		out.InitiativeShop = &shop
	}
	if rs.StoneBonuses != nil {
		bonuses := *rs.StoneBonuses
		out.StoneBonuses = &bonuses
	}
	out.Conversions = slices.Clone(rs.Conversions)
	return out
}

// TotalActions sums the three category totals.
func (rs *RoundState) TotalActions() int {
	return rs.AttackActions.Total + rs.MovementActions.Total + rs.ReactionActions.Total
}
