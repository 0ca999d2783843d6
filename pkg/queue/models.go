package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CommandType identifies the ledger operation a request asks for
type CommandType string

const (
	// Lifecycle hooks
	CommandCombatStart CommandType = "combat_start"
	CommandRoundStart  CommandType = "round_start"
	CommandTurnStart   CommandType = "turn_start"
	CommandRoundEnd    CommandType = "round_end"
	CommandCombatEnd   CommandType = "combat_end"

	// Actions and stones
	CommandSpendAction    CommandType = "spend_action"
	CommandConvertAction  CommandType = "convert_action"
	CommandUndoConversion CommandType = "undo_conversion"
	CommandActivateStone  CommandType = "activate_stone"
	CommandSustain        CommandType = "sustain"
	CommandReleaseSustain CommandType = "release_sustain"
	CommandShopPurchase   CommandType = "shop_purchase"

	// Attrition
	CommandApplyDamage  CommandType = "apply_damage"
	CommandHeal         CommandType = "heal"
	CommandDeathSave    CommandType = "death_save"
	CommandAddDeathMark CommandType = "add_death_mark" // amount is the number of marks
	CommandRecoverScar  CommandType = "recover_scar"
)

// combatWide commands act on every combatant and need no actor
var combatWide = map[CommandType]bool{
	CommandCombatStart: true,
	CommandRoundStart:  true,
	CommandRoundEnd:    true,
	CommandCombatEnd:   true,
}

var knownCommands = map[CommandType]bool{
	CommandCombatStart:    true,
	CommandRoundStart:     true,
	CommandTurnStart:      true,
	CommandRoundEnd:       true,
	CommandCombatEnd:      true,
	CommandSpendAction:    true,
	CommandConvertAction:  true,
	CommandUndoConversion: true,
	CommandActivateStone:  true,
	CommandSustain:        true,
	CommandReleaseSustain: true,
	CommandShopPurchase:   true,
	CommandApplyDamage:    true,
	CommandHeal:           true,
	CommandDeathSave:      true,
	CommandAddDeathMark:   true,
	CommandRecoverScar:    true,
}

// ShopPurchase is the initiative shop dialog's answer
type ShopPurchase struct {
	ExtraMovement  float64 `json:"extra_movement,omitempty"`
	InitiativeSwap bool    `json:"initiative_swap,omitempty"`
	ExtraAttack    bool    `json:"extra_attack,omitempty"`
	Cancelled      bool    `json:"cancelled,omitempty"`
}

// Request represents one combat command in the queue
type Request struct {
	RequestID string      `json:"request_id"`
	Type      CommandType `json:"type"`
	CombatID  uuid.UUID   `json:"combat_id"`

	// Combat position as tracked by the host
	Round      int      `json:"round"`
	Turn       int      `json:"turn"`
	Combatants []string `json:"combatants,omitempty"`

	// Acting combatant
	Actor string `json:"actor,omitempty"`

	// Command arguments
	Action     string  `json:"action,omitempty"` // attack, movement, reaction
	Attribute  string  `json:"attribute,omitempty"`
	AbilityKey string  `json:"ability_key,omitempty"`
	Effect     string  `json:"effect,omitempty"`
	Amount     float64 `json:"amount,omitempty"`
	Critical   bool    `json:"critical,omitempty"`

	Purchase *ShopPurchase `json:"purchase,omitempty"`

	// Regeneration answers per actor id; a missing actor skips
	Allocations map[string]map[string]int `json:"allocations,omitempty"`

	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Validate checks the request is routable before it is enqueued
func (r *Request) Validate() error {
	if r.RequestID == "" {
		return errors.New("request id is required")
	}
	if !knownCommands[r.Type] {
		return fmt.Errorf("unknown command type %q", r.Type)
	}
	if r.CombatID == uuid.Nil {
		return errors.New("combat id is required")
	}
	if len(r.Combatants) == 0 {
		return errors.New("at least one combatant is required")
	}
	if !combatWide[r.Type] && r.Actor == "" {
		return fmt.Errorf("%s requires an actor", r.Type)
	}
	return nil
}

// CombatWide reports whether the command applies to all combatants
func (r *Request) CombatWide() bool {
	return combatWide[r.Type]
}

// MarshalJSON serializes the request to JSON for Redis storage
func (r *Request) MarshalJSON() ([]byte, error) {
	type Alias Request
	return json.Marshal(&struct {
		CombatID string `json:"combat_id"`
		*Alias
	}{
		CombatID: r.CombatID.String(),
		Alias:    (*Alias)(r),
	})
}

// UnmarshalJSON deserializes the request from JSON in Redis
func (r *Request) UnmarshalJSON(data []byte) error {
	type Alias Request
	aux := &struct {
		CombatID string `json:"combat_id"`
		*Alias
	}{
		Alias: (*Alias)(r),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	combatID, err := uuid.Parse(aux.CombatID)
	if err != nil {
		return err
	}

	r.CombatID = combatID
	return nil
}

// ToJSON converts the request to JSON bytes for Redis
func (r *Request) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// FromJSON parses a request from JSON bytes
func FromJSON(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	return &req, nil
}
