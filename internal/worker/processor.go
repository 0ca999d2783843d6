package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/jwebster45206/combat-ledger/pkg/actor"
	"github.com/jwebster45206/combat-ledger/pkg/ledger"
	"github.com/jwebster45206/combat-ledger/pkg/queue"
	"github.com/jwebster45206/combat-ledger/pkg/storage"
)

// Processor applies one queued command and returns its result payload
type Processor interface {
	Process(ctx context.Context, req *queue.Request) (map[string]any, error)
}

// CommandProcessor maps queued commands onto ledger operations.
// Character sheets are read from the same flag store the ledger writes.
type CommandProcessor struct {
	store  storage.FlagStore
	ledger *ledger.Ledger
	logger *slog.Logger
}

var _ Processor = (*CommandProcessor)(nil)

// NewCommandProcessor creates a new command processor
func NewCommandProcessor(store storage.FlagStore, l *ledger.Ledger, logger *slog.Logger) *CommandProcessor {
	return &CommandProcessor{
		store:  store,
		ledger: l,
		logger: logger,
	}
}

// Process runs req against the ledger
func (p *CommandProcessor) Process(ctx context.Context, req *queue.Request) (map[string]any, error) {
	combat, err := p.loadCombat(ctx, req)
	if err != nil {
		return nil, err
	}

	if req.CombatWide() {
		return p.processCombatWide(ctx, req, combat)
	}

	c, err := findCombatant(combat, req.Actor)
	if err != nil {
		return nil, err
	}
	l := p.ledger

	switch req.Type {
	case queue.CommandTurnStart:
		ts, err := l.StartTurn(ctx, c, combat)
		if err != nil {
			return nil, err
		}
		return map[string]any{"turn": ts}, nil

	case queue.CommandSpendAction:
		kind := ledger.ActionKind(req.Action)
		if err := l.Rounds.Spend(ctx, c, combat, kind); err != nil {
			return nil, err
		}
		return p.roundResult(ctx, c, combat)

	case queue.CommandConvertAction:
		rs, err := l.Conversions.Convert(ctx, c, combat, ledger.ActionKind(req.Action))
		if err != nil {
			return nil, err
		}
		return map[string]any{"round_state": rs}, nil

	case queue.CommandUndoConversion:
		rs, err := l.Conversions.UndoConversion(ctx, c, combat, ledger.ActionKind(req.Action))
		if err != nil {
			return nil, err
		}
		return map[string]any{"round_state": rs}, nil

	case queue.CommandActivateStone:
		var effect ledger.Effect
		if req.Effect != "" {
			effect, err = ledger.EffectFor(ledger.EffectKind(req.Effect), req.Amount)
			if err != nil {
				return nil, err
			}
		}
		res, err := l.Stones.SpendStoneAbility(ctx, c, combat, actor.Attribute(req.Attribute), req.AbilityKey, effect)
		if err != nil {
			return nil, err
		}
		return map[string]any{"spend": res}, nil

	case queue.CommandSustain, queue.CommandReleaseSustain:
		n, err := wholeAmount(req)
		if err != nil {
			return nil, err
		}
		attr := actor.Attribute(req.Attribute)
		if !attr.Valid() {
			return nil, fmt.Errorf("%w: unknown attribute %q", ledger.ErrInvariantViolation, req.Attribute)
		}
		var pool ledger.Pool
		if req.Type == queue.CommandSustain {
			pool, err = l.Pools.Sustain(ctx, c.ID(), attr, n)
		} else {
			pool, err = l.Pools.ReleaseSustained(ctx, c.ID(), attr, n)
		}
		if err != nil {
			return nil, err
		}
		return map[string]any{"pool": pool}, nil

	case queue.CommandShopPurchase:
		if req.Purchase == nil {
			return nil, fmt.Errorf("%w: shop purchase has no decision", ledger.ErrInvariantViolation)
		}
		decision := ledger.ShopDecision{
			Purchase: ledger.ShopPurchase{
				ExtraMovement:  req.Purchase.ExtraMovement,
				InitiativeSwap: req.Purchase.InitiativeSwap,
				ExtraAttack:    req.Purchase.ExtraAttack,
			},
			Cancelled: req.Purchase.Cancelled,
		}
		rs, err := l.Shop.RecordPurchase(ctx, c, combat, decision)
		if err != nil {
			return nil, err
		}
		return map[string]any{"round_state": rs}, nil

	case queue.CommandApplyDamage:
		n, err := wholeAmount(req)
		if err != nil {
			return nil, err
		}
		res, err := l.Attrition.ApplyDamage(ctx, c, combat, n, req.Critical)
		if err != nil {
			return nil, err
		}
		return map[string]any{"damage": res}, nil

	case queue.CommandHeal:
		n, err := wholeAmount(req)
		if err != nil {
			return nil, err
		}
		res, err := l.Attrition.Heal(ctx, c, combat, n)
		if err != nil {
			return nil, err
		}
		return map[string]any{"heal": res}, nil

	case queue.CommandDeathSave:
		res, err := l.Attrition.PerformDeathSave(ctx, c, combat)
		if err != nil {
			return nil, err
		}
		return map[string]any{"death_save": res}, nil

	case queue.CommandAddDeathMark:
		n, err := wholeAmount(req)
		if err != nil {
			return nil, err
		}
		ds, err := l.Attrition.AddDeathMark(ctx, c, combat, n)
		if err != nil {
			return nil, err
		}
		return map[string]any{"death_save": ds, "status": ds.Status()}, nil

	case queue.CommandRecoverScar:
		h, err := l.Attrition.RecoverScar(ctx, c)
		if err != nil {
			return nil, err
		}
		return map[string]any{"health": h, "penalty": h.Penalty()}, nil
	}
	return nil, fmt.Errorf("unknown command type: %s", req.Type)
}

func (p *CommandProcessor) processCombatWide(ctx context.Context, req *queue.Request, combat *ledger.Combat) (map[string]any, error) {
	l := p.ledger
	switch req.Type {
	case queue.CommandCombatStart:
		if err := l.StartCombat(ctx, combat); err != nil {
			return nil, err
		}
	case queue.CommandRoundStart:
		if err := l.StartRound(ctx, combat); err != nil {
			return nil, err
		}
	case queue.CommandRoundEnd:
		outcomes, err := l.EndRound(ctx, combat, StaticAllocator(req.Allocations))
		for _, o := range outcomes {
			if o.Err != nil {
				p.logger.Warn("Regeneration not applied", "actor_id", o.ActorID, "error", o.Err)
			}
		}
		if err != nil {
			return nil, err
		}
		return map[string]any{"regeneration": outcomes}, nil
	case queue.CommandCombatEnd:
		if err := l.EndCombat(ctx, combat); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown command type: %s", req.Type)
	}
	return map[string]any{"round": combat.Round, "combatants": len(combat.Combatants)}, nil
}

func (p *CommandProcessor) roundResult(ctx context.Context, c ledger.Combatant, combat *ledger.Combat) (map[string]any, error) {
	rs, err := p.ledger.Rounds.State(ctx, c, combat)
	if err != nil {
		return nil, err
	}
	return map[string]any{"round_state": rs}, nil
}

// loadCombat builds the combat snapshot from the request and the stored
// character sheets
func (p *CommandProcessor) loadCombat(ctx context.Context, req *queue.Request) (*ledger.Combat, error) {
	combat := &ledger.Combat{
		ID:         req.CombatID,
		Round:      req.Round,
		Turn:       req.Turn,
		Combatants: make([]ledger.Combatant, 0, len(req.Combatants)),
	}
	for _, id := range req.Combatants {
		spec, err := storage.GetCharacterSpec(ctx, p.store, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load character %q: %w", id, err)
		}
		if spec == nil {
			return nil, fmt.Errorf("%w: no character sheet for %q", ledger.ErrMissingActor, id)
		}
		c, err := actor.NewCharacterFromSpec(spec)
		if err != nil {
			return nil, fmt.Errorf("%w: character %q: %v", ledger.ErrInvariantViolation, id, err)
		}
		combat.Combatants = append(combat.Combatants, c)
	}
	return combat, nil
}

func findCombatant(combat *ledger.Combat, id string) (ledger.Combatant, error) {
	for _, c := range combat.Combatants {
		if c.ID() == id {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %q is not in combat %s", ledger.ErrMissingActor, id, combat.ID)
}

func wholeAmount(req *queue.Request) (int, error) {
	if req.Amount != math.Trunc(req.Amount) || math.Abs(req.Amount) > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %s takes a whole amount, got %v", ledger.ErrInvariantViolation, req.Type, req.Amount)
	}
	return int(req.Amount), nil
}

// StaticAllocator answers regeneration from allocations sent with the
// round_end command. Actors without an entry skip.
type StaticAllocator map[string]map[string]int

func (a StaticAllocator) Allocate(_ context.Context, c ledger.Combatant, _ ledger.AllocationRequest) (ledger.Allocation, error) {
	answer, ok := a[c.ID()]
	if !ok || len(answer) == 0 {
		return nil, ledger.ErrAllocationSkipped
	}
	alloc := make(ledger.Allocation, len(answer))
	for name, n := range answer {
		attr := actor.Attribute(name)
		if !attr.Valid() {
			return nil, fmt.Errorf("%w: unknown attribute %q", ledger.ErrInvariantViolation, name)
		}
		alloc[attr] = n
	}
	return alloc, nil
}

// Outcome classifies a processing error for the table.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeRejected  Outcome = "rejected"
	OutcomeFailed    Outcome = "failed"
)

// Classify reports whether err is a rule rejection or a fault, and the
// ledger error code when there is one.
func Classify(err error) (Outcome, string) {
	if err == nil {
		return OutcomeCompleted, ""
	}
	var lerr *ledger.Error
	if !errors.As(err, &lerr) {
		return OutcomeFailed, ""
	}
	switch lerr.Code {
	case ledger.CodeInsufficientResource, ledger.CodeInvariantViolation,
		ledger.CodeMissingActor, ledger.CodeMissingCombat:
		return OutcomeRejected, string(lerr.Code)
	}
	return OutcomeFailed, string(lerr.Code)
}
