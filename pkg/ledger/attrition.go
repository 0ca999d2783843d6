package ledger

import (
	"context"
	"fmt"

	"github.com/jwebster45206/combat-ledger/pkg/actor"
	"github.com/jwebster45206/combat-ledger/pkg/dice"
)

// DamageResult reports the outcome of ApplyDamage.
type DamageResult struct {
	Applied             int             `json:"applied"`
	Penalty             int             `json:"penalty"`
	Incapacitated       bool            `json:"incapacitated"`
	BecameIncapacitated bool            `json:"became_incapacitated"`
	MarksAdded          int             `json:"marks_added"`
	DeathSave           *DeathSave      `json:"death_save,omitempty"`
	Status              DeathSaveStatus `json:"status"`
}

// HealResult reports the outcome of Heal.
type HealResult struct {
	Healed       int             `json:"healed"`
	MarksRemoved int             `json:"marks_removed"`
	Penalty      int             `json:"penalty"`
	Revived      bool            `json:"revived"` // back above the incapacitated threshold
	DeathSave    *DeathSave      `json:"death_save,omitempty"`
	Status       DeathSaveStatus `json:"status"`
}

// DeathSaveResult reports one death save roll.
type DeathSaveResult struct {
	Roll      dice.Result     `json:"roll"`
	Success   bool            `json:"success"`
	DeathSave DeathSave       `json:"death_save"`
	Status    DeathSaveStatus `json:"status"`
}

// Attrition runs the WoundLedger and DeathSaveTracker state machines.
type Attrition struct {
	d *deps
}

// Health returns the actor's wound ladder; ok is false if none exists.
func (a *Attrition) Health(ctx context.Context, actorID string) (HealthLevels, bool, error) {
	if actorID == "" {
		return HealthLevels{}, false, nil
	}
	var h HealthLevels
	found, err := a.d.load(ctx, actorID, NamespaceHealth, &h)
	return h, found, err
}

// DeathSave returns the actor's tracker, nil when inactive.
func (a *Attrition) DeathSave(ctx context.Context, actorID string) (*DeathSave, error) {
	if actorID == "" {
		return nil, nil
	}
	var ds *DeathSave
	if _, err := a.d.load(ctx, actorID, NamespaceDeathSave, &ds); err != nil {
		return nil, err
	}
	return ds, nil
}

// InitializeHealth creates the wound ladder from Vitality if missing.
func (a *Attrition) InitializeHealth(ctx context.Context, c Combatant) (HealthLevels, error) {
	if err := requireActor(c); err != nil {
		return HealthLevels{}, err
	}
	h, found, err := a.Health(ctx, c.ID())
	if err != nil || found {
		return h, err
	}
	h = NewHealthLevels(c.Attribute(actor.Vitality))
	if err := a.d.save(ctx, c.ID(), map[string]any{NamespaceHealth: h}); err != nil {
		return HealthLevels{}, err
	}
	return h, nil
}

// health loads the ladder, building a fresh one in memory if missing.
func (a *Attrition) health(ctx context.Context, c Combatant) (HealthLevels, error) {
	h, found, err := a.Health(ctx, c.ID())
	if err != nil {
		return HealthLevels{}, err
	}
	if !found {
		h = NewHealthLevels(c.Attribute(actor.Vitality))
	}
	return h, nil
}

// WoundPenalty is the dice penalty every pool roll of the actor takes.
func (a *Attrition) WoundPenalty(ctx context.Context, actorID string) int {
	h, _, err := a.Health(ctx, actorID)
	if err != nil {
		return 0
	}
	return h.Penalty()
}

// ApplyDamage fills wound boxes. Reaching the last level starts the death
// save tracker; damage taken while it is active adds one automatic mark,
// or two for a critical hit.
func (a *Attrition) ApplyDamage(ctx context.Context, c Combatant, combat *Combat, amount int, critical bool) (res DamageResult, err error) {
	if err := requireActor(c); err != nil {
		return DamageResult{}, err
	}
	ctx, span := a.d.start(ctx, "ledger.Attrition.ApplyDamage", c.ID(), combat)
	defer func() { finish(span, err) }()

	if amount <= 0 {
		err := violation(fmt.Sprintf("damage must be positive: %d", amount), nil)
		a.d.warn(ctx, combat, c.ID(), err)
		return DamageResult{}, err
	}

	h, err := a.health(ctx, c)
	if err != nil {
		return DamageResult{}, err
	}
	ds, err := a.DeathSave(ctx, c.ID())
	if err != nil {
		return DamageResult{}, err
	}

	wasDown := h.Incapacitated()
	next, applied := h.Damage(amount)
	res = DamageResult{Applied: applied, Penalty: next.Penalty(), Incapacitated: next.Incapacitated()}

	switch {
	case wasDown && ds.Status() == DeathSaveActive:
		marks := 1
		if critical {
			marks = 2
		}
		updated := ds.AddMarks(marks)
		res.MarksAdded = updated.DeathMarks - ds.DeathMarks
		ds = &updated
	case !wasDown && next.Incapacitated() && ds == nil:
		ds = &DeathSave{}
		res.BecameIncapacitated = true
	}
	res.DeathSave = ds
	res.Status = ds.Status()

	if err := a.d.save(ctx, c.ID(), map[string]any{
		NamespaceHealth:    next,
		NamespaceDeathSave: ds,
	}); err != nil {
		return DamageResult{}, err
	}

	a.d.logger.Info("Damage applied",
		"actor_id", c.ID(),
		"amount", amount,
		"applied", applied,
		"critical", critical,
		"penalty", res.Penalty,
		"death_save", res.Status,
	)
	if combat != nil && (res.BecameIncapacitated || res.MarksAdded > 0) {
		a.d.publish(ctx, Notice{
			CombatID: combat.ID,
			ActorID:  c.ID(),
			Level:    NoticeWarning,
			Kind:     "incapacitated",
			Message:  deathSaveMessage(c.ID(), res.Status, ds),
		})
	}
	return res, nil
}

// Heal clears wound boxes in the current level and removes one death mark
// per three points. Leaving the incapacitated level resets the tracker.
func (a *Attrition) Heal(ctx context.Context, c Combatant, combat *Combat, amount int) (res HealResult, err error) {
	if err := requireActor(c); err != nil {
		return HealResult{}, err
	}
	ctx, span := a.d.start(ctx, "ledger.Attrition.Heal", c.ID(), combat)
	defer func() { finish(span, err) }()

	if amount <= 0 {
		err := violation(fmt.Sprintf("healing must be positive: %d", amount), nil)
		a.d.warn(ctx, combat, c.ID(), err)
		return HealResult{}, err
	}

	h, err := a.health(ctx, c)
	if err != nil {
		return HealResult{}, err
	}
	ds, err := a.DeathSave(ctx, c.ID())
	if err != nil {
		return HealResult{}, err
	}
	if ds.Status() == DeathSaveDead {
		err := violation("cannot heal a dead actor", nil)
		a.d.warn(ctx, combat, c.ID(), err)
		return HealResult{}, err
	}

	if ds != nil {
		updated, removed := ds.RemoveMarks(amount)
		ds = &updated
		res.MarksRemoved = removed
	}
	next, healed := h.Heal(amount)
	res.Healed = healed
	res.Penalty = next.Penalty()
	if ds != nil && !next.Incapacitated() {
		ds = nil
		res.Revived = true
	}
	res.DeathSave = ds
	res.Status = ds.Status()

	if err := a.d.save(ctx, c.ID(), map[string]any{
		NamespaceHealth:    next,
		NamespaceDeathSave: ds,
	}); err != nil {
		return HealResult{}, err
	}

	a.d.logger.Info("Healing applied",
		"actor_id", c.ID(),
		"amount", amount,
		"healed", healed,
		"marks_removed", res.MarksRemoved,
		"revived", res.Revived,
	)
	return res, nil
}

// RecoverScar applies special recovery to the deepest scarred level.
func (a *Attrition) RecoverScar(ctx context.Context, c Combatant) (HealthLevels, error) {
	if err := requireActor(c); err != nil {
		return HealthLevels{}, err
	}
	h, err := a.health(ctx, c)
	if err != nil {
		return HealthLevels{}, err
	}
	next, ok := h.RecoverScar()
	if !ok {
		return h, violation("no scarred level can be recovered", nil)
	}
	ds, err := a.DeathSave(ctx, c.ID())
	if err != nil {
		return HealthLevels{}, err
	}
	if ds.Status() == DeathSaveDead {
		return h, violation("cannot recover a dead actor", nil)
	}
	if !next.Incapacitated() {
		ds = nil
	}
	if err := a.d.save(ctx, c.ID(), map[string]any{
		NamespaceHealth:    next,
		NamespaceDeathSave: ds,
	}); err != nil {
		return HealthLevels{}, err
	}
	return next, nil
}

// PerformDeathSave rolls Vitality dice keeping Mastery Rank against 20.
// Only an active tracker may roll.
func (a *Attrition) PerformDeathSave(ctx context.Context, c Combatant, combat *Combat) (res DeathSaveResult, err error) {
	if err := requireActor(c); err != nil {
		return DeathSaveResult{}, err
	}
	ctx, span := a.d.start(ctx, "ledger.Attrition.PerformDeathSave", c.ID(), combat)
	defer func() { finish(span, err) }()

	ds, err := a.DeathSave(ctx, c.ID())
	if err != nil {
		return DeathSaveResult{}, err
	}
	if status := ds.Status(); status != DeathSaveActive {
		err := violation(fmt.Sprintf("death save not allowed while %s", status), map[string]string{"status": string(status)})
		a.d.warn(ctx, combat, c.ID(), err)
		return DeathSaveResult{}, err
	}

	numDice := max(1, c.Attribute(actor.Vitality))
	keep := max(1, c.MasteryRank())
	roll, err := a.d.roller.Roll(numDice, keep, DeathSaveTarget)
	if err != nil {
		return DeathSaveResult{}, fmt.Errorf("death save roll: %w", err)
	}

	updated := *ds
	if roll.Success {
		updated = updated.AddSuccess()
	} else {
		updated = updated.AddMarks(1)
	}
	if err := a.d.save(ctx, c.ID(), map[string]any{NamespaceDeathSave: updated}); err != nil {
		return DeathSaveResult{}, err
	}

	res = DeathSaveResult{Roll: roll, Success: roll.Success, DeathSave: updated, Status: updated.Status()}
	a.d.logger.Info("Death save rolled",
		"actor_id", c.ID(),
		"total", roll.Total,
		"success", roll.Success,
		"successes", updated.Successes,
		"death_marks", updated.DeathMarks,
	)
	if combat != nil {
		a.d.publish(ctx, Notice{
			CombatID: combat.ID,
			ActorID:  c.ID(),
			Level:    NoticeInfo,
			Kind:     "death_save",
			Message:  deathSaveMessage(c.ID(), res.Status, &updated),
			Data:     map[string]any{"total": roll.Total, "success": roll.Success},
		})
	}
	return res, nil
}

// AddDeathMark adds n marks to an active tracker without a roll.
func (a *Attrition) AddDeathMark(ctx context.Context, c Combatant, combat *Combat, n int) (ds DeathSave, err error) {
	if err := requireActor(c); err != nil {
		return DeathSave{}, err
	}
	ctx, span := a.d.start(ctx, "ledger.Attrition.AddDeathMark", c.ID(), combat)
	defer func() { finish(span, err) }()

	cur, err := a.DeathSave(ctx, c.ID())
	if err != nil {
		return DeathSave{}, err
	}
	if cur.Status() != DeathSaveActive || n <= 0 {
		err := violation(fmt.Sprintf("cannot add %d death marks while %s", n, cur.Status()), nil)
		a.d.warn(ctx, combat, c.ID(), err)
		return DeathSave{}, err
	}
	ds = cur.AddMarks(n)
	if err := a.d.save(ctx, c.ID(), map[string]any{NamespaceDeathSave: ds}); err != nil {
		return DeathSave{}, err
	}
	return ds, nil
}

// Evaluate starts a tracker for an actor found incapacitated without one,
// which happens when wounds were edited outside ApplyDamage.
func (a *Attrition) Evaluate(ctx context.Context, c Combatant) (DeathSaveStatus, error) {
	if err := requireActor(c); err != nil {
		return DeathSaveInactive, err
	}
	h, found, err := a.Health(ctx, c.ID())
	if err != nil || !found {
		return DeathSaveInactive, err
	}
	ds, err := a.DeathSave(ctx, c.ID())
	if err != nil {
		return DeathSaveInactive, err
	}
	switch {
	case h.Incapacitated() && ds == nil:
		ds = &DeathSave{}
	case !h.Incapacitated() && ds != nil && !ds.Dead:
		ds = nil
	default:
		return ds.Status(), nil
	}
	if err := a.d.save(ctx, c.ID(), map[string]any{NamespaceDeathSave: ds}); err != nil {
		return DeathSaveInactive, err
	}
	return ds.Status(), nil
}

func deathSaveMessage(actorID string, status DeathSaveStatus, ds *DeathSave) string {
	switch status {
	case DeathSaveDead:
		return fmt.Sprintf("%s has died", actorID)
	case DeathSaveStabilized:
		return fmt.Sprintf("%s is stabilized", actorID)
	case DeathSaveActive:
		return fmt.Sprintf("%s is dying: %d success(es), %d death mark(s)", actorID, ds.Successes, ds.DeathMarks)
	default:
		return fmt.Sprintf("%s is no longer dying", actorID)
	}
}
