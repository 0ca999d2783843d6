package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jwebster45206/combat-ledger/pkg/dice"
	"github.com/jwebster45206/combat-ledger/pkg/storage"
)

// Flag namespaces on the actor record.
const (
	NamespacePools     = "stone_pools"
	NamespaceUsage     = "stone_usage"
	NamespaceRound     = "round_state"
	NamespaceShop      = "initiative_shop"
	NamespaceHealth    = "health_levels"
	NamespaceDeathSave = "death_save"
)

// deps is shared by every ledger component.
type deps struct {
	store    storage.FlagStore
	roller   dice.Roller
	notifier Notifier
	logger   *slog.Logger
	tracer   trace.Tracer
}

// load decodes one flag into v. found is false when the flag is unset.
func (d *deps) load(ctx context.Context, actorID, namespace string, v any) (bool, error) {
	data, err := d.store.GetFlag(ctx, actorID, namespace)
	if err != nil {
		d.logger.Error("Failed to read flag", "actor_id", actorID, "namespace", namespace, "error", err)
		return false, persistence("failed to read "+namespace, err)
	}
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		d.logger.Error("Failed to decode flag", "actor_id", actorID, "namespace", namespace, "error", err)
		return false, persistence("failed to decode "+namespace, err)
	}
	return true, nil
}

// save encodes every value and replaces the namespaces in one atomic write.
func (d *deps) save(ctx context.Context, actorID string, values map[string]any) error {
	records := make(map[string][]byte, len(values))
	for ns, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return persistence(fmt.Sprintf("failed to encode %s", ns), err)
		}
		records[ns] = data
	}
	if err := d.store.SetFlags(ctx, actorID, records); err != nil {
		d.logger.Error("Failed to write flags", "actor_id", actorID, "error", err)
		return persistence("failed to write actor record", err)
	}
	return nil
}

func (d *deps) drop(ctx context.Context, actorID string, namespaces ...string) error {
	if err := d.store.DeleteFlag(ctx, actorID, namespaces...); err != nil {
		d.logger.Error("Failed to delete flags", "actor_id", actorID, "namespaces", namespaces, "error", err)
		return persistence("failed to delete actor flags", err)
	}
	return nil
}

// start opens a span tagged with the actor and combat position.
func (d *deps) start(ctx context.Context, name, actorID string, combat *Combat) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("actor.id", actorID)}
	if combat != nil {
		attrs = append(attrs,
			attribute.String("combat.id", combat.ID.String()),
			attribute.Int("combat.round", combat.Round),
			attribute.Int("combat.turn", combat.Turn),
		)
	}
	return d.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// finish records err on the span and ends it.
func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// warn logs a rejected operation and surfaces it to the table.
func (d *deps) warn(ctx context.Context, combat *Combat, actorID string, err error) {
	d.logger.Warn("Ledger operation rejected", "actor_id", actorID, "error", err)
	if combat == nil {
		return
	}
	d.publish(ctx, Notice{
		CombatID: combat.ID,
		ActorID:  actorID,
		Level:    NoticeWarning,
		Kind:     "rejected",
		Message:  err.Error(),
	})
}

// publish is fire-and-forget; a failed notice never undoes a mutation.
func (d *deps) publish(ctx context.Context, n Notice) {
	if err := d.notifier.Notify(ctx, n); err != nil {
		d.logger.Error("Failed to publish notice", "actor_id", n.ActorID, "kind", n.Kind, "error", err)
	}
}

func requireActor(c Combatant) error {
	if c == nil || c.ID() == "" {
		return ErrMissingActor
	}
	return nil
}

func requireCombat(combat *Combat) error {
	if !combat.Active() {
		return ErrMissingCombat
	}
	return nil
}
