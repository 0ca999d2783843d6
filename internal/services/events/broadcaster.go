package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/combat-ledger/pkg/ledger"
)

// EventType represents the type of event being broadcast
type EventType string

const (
	EventTypeCommandQueued     EventType = "command.queued"
	EventTypeCommandProcessing EventType = "command.processing"
	EventTypeCommandCompleted  EventType = "command.completed"
	EventTypeCommandRejected   EventType = "command.rejected"
	EventTypeCommandFailed     EventType = "command.failed"
	EventTypeLedgerNotice      EventType = "ledger.notice"
)

// Event represents a generic event structure
type Event struct {
	Type      EventType      `json:"type"`
	RequestID string         `json:"request_id,omitempty"`
	CombatID  string         `json:"combat_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Channel returns the pub/sub channel for a combat's events
func Channel(combatID uuid.UUID) string {
	return fmt.Sprintf("combat-events:%s", combatID.String())
}

// Broadcaster publishes events to Redis Pub/Sub for the table's clients.
// It also delivers ledger notices.
type Broadcaster struct {
	redisClient *redis.Client
	logger      *slog.Logger
}

var _ ledger.Notifier = (*Broadcaster)(nil)

// NewBroadcaster creates a new event broadcaster
func NewBroadcaster(redisClient *redis.Client, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		redisClient: redisClient,
		logger:      logger,
	}
}

// PublishCommandQueued publishes a command.queued event
func (b *Broadcaster) PublishCommandQueued(ctx context.Context, combatID uuid.UUID, requestID string, commandType string) error {
	event := Event{
		Type:      EventTypeCommandQueued,
		RequestID: requestID,
		CombatID:  combatID.String(),
		Data: map[string]any{
			"status": "queued",
			"type":   commandType,
		},
	}
	return b.publishToCombat(ctx, combatID, event)
}

// PublishCommandProcessing publishes a command.processing event
func (b *Broadcaster) PublishCommandProcessing(ctx context.Context, combatID uuid.UUID, requestID string, commandType string, actorID string) error {
	event := Event{
		Type:      EventTypeCommandProcessing,
		RequestID: requestID,
		CombatID:  combatID.String(),
		Data: map[string]any{
			"status": "processing",
			"type":   commandType,
			"actor":  actorID,
		},
	}
	return b.publishToCombat(ctx, combatID, event)
}

// PublishCommandCompleted publishes a command.completed event
func (b *Broadcaster) PublishCommandCompleted(ctx context.Context, combatID uuid.UUID, requestID string, result map[string]any) error {
	event := Event{
		Type:      EventTypeCommandCompleted,
		RequestID: requestID,
		CombatID:  combatID.String(),
		Data: map[string]any{
			"status": "completed",
			"result": result,
		},
	}
	return b.publishToCombat(ctx, combatID, event)
}

// PublishCommandRejected publishes a command.rejected event. Rejections
// are rule outcomes such as too few stones, not faults.
func (b *Broadcaster) PublishCommandRejected(ctx context.Context, combatID uuid.UUID, requestID string, code string, message string) error {
	event := Event{
		Type:      EventTypeCommandRejected,
		RequestID: requestID,
		CombatID:  combatID.String(),
		Data: map[string]any{
			"status": "rejected",
			"code":   code,
			"error":  message,
		},
	}
	return b.publishToCombat(ctx, combatID, event)
}

// PublishCommandFailed publishes a command.failed event
func (b *Broadcaster) PublishCommandFailed(ctx context.Context, combatID uuid.UUID, requestID string, errorMsg string) error {
	event := Event{
		Type:      EventTypeCommandFailed,
		RequestID: requestID,
		CombatID:  combatID.String(),
		Data: map[string]any{
			"status": "failed",
			"error":  errorMsg,
		},
	}
	return b.publishToCombat(ctx, combatID, event)
}

// Notify publishes a ledger notice to the combat's channel
func (b *Broadcaster) Notify(ctx context.Context, n ledger.Notice) error {
	data := map[string]any{
		"level":   string(n.Level),
		"kind":    n.Kind,
		"message": n.Message,
	}
	if n.ActorID != "" {
		data["actor"] = n.ActorID
	}
	if len(n.Data) > 0 {
		data["details"] = n.Data
	}
	event := Event{
		Type:     EventTypeLedgerNotice,
		CombatID: n.CombatID.String(),
		Data:     data,
	}
	return b.publishToCombat(ctx, n.CombatID, event)
}

// publishToCombat publishes an event to the combat-specific channel
func (b *Broadcaster) publishToCombat(ctx context.Context, combatID uuid.UUID, event Event) error {
	channel := Channel(combatID)

	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("Failed to marshal event", "error", err, "event_type", event.Type)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		b.logger.Error("Failed to publish event", "error", err, "channel", channel)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug("Event published",
		"channel", channel,
		"event_type", event.Type,
		"request_id", event.RequestID,
	)

	return nil
}
