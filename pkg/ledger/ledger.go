// Package ledger keeps the authoritative combat resource ledger of every
// actor: action budgets, stone pools, conversions, the initiative shop,
// wounds and death saves. All state lives in per-actor flags of a
// storage.FlagStore and every mutation is written in one atomic call.
package ledger

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/jwebster45206/combat-ledger/pkg/dice"
	"github.com/jwebster45206/combat-ledger/pkg/storage"
)

const tracerName = "github.com/jwebster45206/combat-ledger/pkg/ledger"

// Ledger wires the ledger components over one store.
type Ledger struct {
	Pools       *PoolStore
	Usage       *UsageTracker
	Rounds      *RoundManager
	Conversions *ConversionEngine
	Stones      *StoneEngine
	Shop        *ShopIntegrator
	Attrition   *Attrition

	d *deps
}

// Option configures a Ledger.
type Option func(*deps)

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(d *deps) {
		if t != nil {
			d.tracer = t
		}
	}
}

// New creates a Ledger. A nil notifier logs notices instead.
func New(store storage.FlagStore, roller dice.Roller, notifier Notifier, logger *slog.Logger, opts ...Option) (*Ledger, error) {
	if store == nil {
		return nil, storage.ErrNotConfigured
	}
	if roller == nil {
		return nil, errors.New("ledger requires a dice roller")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}
	d := &deps{
		store:    store,
		roller:   roller,
		notifier: notifier,
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(d)
	}

	pools := &PoolStore{d: d}
	usage := &UsageTracker{d: d}
	rounds := &RoundManager{d: d}
	shop := &ShopIntegrator{d: d, rounds: rounds}
	rounds.shop = shop

	return &Ledger{
		Pools:       pools,
		Usage:       usage,
		Rounds:      rounds,
		Conversions: &ConversionEngine{d: d, rounds: rounds},
		Stones:      &StoneEngine{d: d, pools: pools, usage: usage, rounds: rounds},
		Shop:        shop,
		Attrition:   &Attrition{d: d},
		d:           d,
	}, nil
}

// TurnStart reports what happened when a combatant's turn began.
type TurnStart struct {
	RoundState RoundState       `json:"round_state"`
	DeathSave  *DeathSaveResult `json:"death_save,omitempty"`
}

// StartCombat prepares every combatant: pools and wounds are created if
// missing and any stale shop record is cleared before round state is
// initialized.
func (l *Ledger) StartCombat(ctx context.Context, combat *Combat) (err error) {
	if err := requireCombat(combat); err != nil {
		return err
	}
	ctx, span := l.d.start(ctx, "ledger.StartCombat", "", combat)
	defer func() { finish(span, err) }()

	var errs []error
	for _, c := range combat.Combatants {
		if requireActor(c) != nil {
			continue
		}
		if _, err := l.Pools.Initialize(ctx, c); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := l.Attrition.InitializeHealth(ctx, c); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := l.d.drop(ctx, c.ID(), NamespaceShop, NamespaceUsage); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := l.Rounds.Initialize(ctx, c, combat); err != nil {
			errs = append(errs, err)
		}
	}
	l.d.logger.Info("Combat started", "combat_id", combat.ID.String(), "combatants", len(combat.Combatants))
	return errors.Join(errs...)
}

// StartRound resets every combatant's budget for combat.Round, then starts
// death saves for anyone found incapacitated without a tracker.
func (l *Ledger) StartRound(ctx context.Context, combat *Combat) (err error) {
	if err := requireCombat(combat); err != nil {
		return err
	}
	ctx, span := l.d.start(ctx, "ledger.StartRound", "", combat)
	defer func() { finish(span, err) }()

	var errs []error
	for _, c := range combat.Combatants {
		if requireActor(c) != nil {
			continue
		}
		if _, err := l.Rounds.ResetForRound(ctx, c, combat); err != nil {
			errs = append(errs, err)
		}
	}
	for _, c := range combat.Combatants {
		if requireActor(c) != nil {
			continue
		}
		if _, err := l.Attrition.Evaluate(ctx, c); err != nil {
			errs = append(errs, err)
		}
	}
	l.d.logger.Info("Round started", "combat_id", combat.ID.String(), "round", combat.Round)
	return errors.Join(errs...)
}

// StartTurn begins c's turn: used actions reset, old usage counters are
// pruned and a dying combatant rolls their death save.
func (l *Ledger) StartTurn(ctx context.Context, c Combatant, combat *Combat) (ts TurnStart, err error) {
	if err := requireActor(c); err != nil {
		return TurnStart{}, err
	}
	if err := requireCombat(combat); err != nil {
		return TurnStart{}, err
	}
	ctx, span := l.d.start(ctx, "ledger.StartTurn", c.ID(), combat)
	defer func() { finish(span, err) }()

	rs, err := l.Rounds.ResetForTurn(ctx, c, combat)
	if err != nil {
		return TurnStart{}, err
	}
	ts.RoundState = rs
	if err := l.Usage.ResetTurn(ctx, c.ID(), combat.Round, combat.Turn); err != nil {
		return ts, err
	}

	ds, err := l.Attrition.DeathSave(ctx, c.ID())
	if err != nil {
		return ts, err
	}
	if ds.Status() == DeathSaveActive {
		res, err := l.Attrition.PerformDeathSave(ctx, c, combat)
		if err != nil {
			return ts, err
		}
		ts.DeathSave = &res
	}
	return ts, nil
}

// EndRound runs end-of-round stone regeneration for every PC.
func (l *Ledger) EndRound(ctx context.Context, combat *Combat, allocator Allocator) ([]RegenOutcome, error) {
	return l.Stones.RegenStonesEndOfRound(ctx, combat, allocator)
}

// EndCombat refills every pool and drops the encounter's ephemeral flags.
// Pools and wounds persist; round state, usage and shop records do not.
func (l *Ledger) EndCombat(ctx context.Context, combat *Combat) (err error) {
	if combat == nil {
		return ErrMissingCombat
	}
	ctx, span := l.d.start(ctx, "ledger.EndCombat", "", combat)
	defer func() { finish(span, err) }()

	var errs []error
	if err := l.Stones.RestoreStonesAfterCombat(ctx, combat); err != nil {
		errs = append(errs, err)
	}
	for _, c := range combat.Combatants {
		if requireActor(c) != nil {
			continue
		}
		if err := l.d.drop(ctx, c.ID(), NamespaceRound, NamespaceUsage, NamespaceShop); err != nil {
			errs = append(errs, err)
		}
	}
	l.d.logger.Info("Combat ended", "combat_id", combat.ID.String(), "rounds", combat.Round)
	return errors.Join(errs...)
}
