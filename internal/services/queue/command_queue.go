package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/combat-ledger/pkg/queue"
)

// CommandQueue holds combat commands. Each combat keeps its own FIFO list;
// RequestsKey announces which combat has work, one entry per command.
type CommandQueue struct {
	client *Client
}

func NewCommandQueue(client *Client) *CommandQueue {
	return &CommandQueue{
		client: client,
	}
}

// EnqueueRequest validates a request and appends it to its combat's list
func (q *CommandQueue) EnqueueRequest(ctx context.Context, req *queue.Request) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	if req.EnqueuedAt.IsZero() {
		req.EnqueuedAt = time.Now().UTC()
	}
	data, err := req.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize request: %w", err)
	}

	_, err = q.client.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, CombatKey(req.CombatID), data)
		pipe.RPush(ctx, RequestsKey, req.CombatID.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue request: %w", err)
	}
	q.client.logger.Debug("Request enqueued",
		"request_id", req.RequestID,
		"type", req.Type,
		"combat_id", req.CombatID.String(),
	)
	return nil
}

// WaitForCombat blocks up to timeout for a combat with pending work (0
// waits forever). Returns uuid.Nil when the wait times out or ctx ends.
func (q *CommandQueue) WaitForCombat(ctx context.Context, timeout time.Duration) (uuid.UUID, error) {
	result, err := q.client.rdb.BLPop(ctx, timeout, RequestsKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || ctx.Err() != nil {
			return uuid.Nil, nil
		}
		return uuid.Nil, fmt.Errorf("failed to wait for combat: %w", err)
	}

	// BLPop returns [key, value]
	if len(result) != 2 {
		return uuid.Nil, fmt.Errorf("unexpected BLPop result: %v", result)
	}
	combatID, err := uuid.Parse(result[1])
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to parse combat id %q: %w", result[1], err)
	}
	return combatID, nil
}

// RequeueCombat announces the combat again after a worker could not take
// its lock. The combat's commands stay where they are.
func (q *CommandQueue) RequeueCombat(ctx context.Context, combatID uuid.UUID) error {
	if err := q.client.rdb.RPush(ctx, RequestsKey, combatID.String()).Err(); err != nil {
		return fmt.Errorf("failed to re-queue combat: %w", err)
	}
	return nil
}

// PopRequest removes and returns the combat's oldest command. Callers hold
// the combat lock. Returns nil if the combat has nothing pending.
func (q *CommandQueue) PopRequest(ctx context.Context, combatID uuid.UUID) (*queue.Request, error) {
	result, err := q.client.rdb.LPop(ctx, CombatKey(combatID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to dequeue request: %w", err)
	}

	req, err := queue.FromJSON([]byte(result))
	if err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	return req, nil
}

// DequeueRequest pops the next announced combat and its oldest command
// without locking. Returns nil if the queue is empty.
func (q *CommandQueue) DequeueRequest(ctx context.Context) (*queue.Request, error) {
	result, err := q.client.rdb.LPop(ctx, RequestsKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to dequeue combat: %w", err)
	}
	combatID, err := uuid.Parse(result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse combat id %q: %w", result, err)
	}
	return q.PopRequest(ctx, combatID)
}

// Peek returns up to limit of the combat's pending commands without
// removing them (limit <= 0 returns all)
func (q *CommandQueue) Peek(ctx context.Context, combatID uuid.UUID, limit int) ([]*queue.Request, error) {
	end := int64(limit - 1)
	if limit <= 0 {
		end = -1
	}
	items, err := q.client.rdb.LRange(ctx, CombatKey(combatID), 0, end).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to peek requests: %w", err)
	}

	reqs := make([]*queue.Request, 0, len(items))
	for _, item := range items {
		req, err := queue.FromJSON([]byte(item))
		if err != nil {
			return nil, fmt.Errorf("failed to parse request: %w", err)
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// Clear drops every pending command of every announced combat
func (q *CommandQueue) Clear(ctx context.Context) error {
	ids, err := q.client.rdb.LRange(ctx, RequestsKey, 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to list queued combats: %w", err)
	}
	keys := []string{RequestsKey}
	seen := make(map[string]bool)
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			keys = append(keys, combatKeyPrefix+id)
		}
	}
	if err := q.client.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to clear request queue: %w", err)
	}
	return nil
}

// Depth returns the number of pending commands across all combats
func (q *CommandQueue) Depth(ctx context.Context) (int, error) {
	count, err := q.client.rdb.LLen(ctx, RequestsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get request queue depth: %w", err)
	}
	return int(count), nil
}
