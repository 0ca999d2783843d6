package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis keyspace shared by the queue, the worker and the tools.
//
// RequestsKey holds one combat id per pending command. The commands
// themselves wait in that combat's own list, so a combat's commands leave
// the queue in the order they were enqueued.
const (
	RequestsKey      = "combat-requests"
	combatKeyPrefix  = "combat-requests:"
	combatLockPrefix = "combat-lock:"
)

// CombatKey is the list holding one combat's pending commands
func CombatKey(combatID uuid.UUID) string {
	return combatKeyPrefix + combatID.String()
}

// LockKey is the key a worker holds while applying a combat's command
func LockKey(combatID uuid.UUID) string {
	return combatLockPrefix + combatID.String()
}

// Client wraps the Redis client for queue operations
type Client struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewClient connects to redisURL and verifies the connection
func NewClient(redisURL string, logger *slog.Logger) (*Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := redis.NewClient(opt)

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Connected to Redis for command queue", "addr", opt.Addr, "db", opt.DB)

	return &Client{
		rdb:    rdb,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// GetRedisClient returns the connection the worker also uses for combat
// locks and event publishing
func (c *Client) GetRedisClient() *redis.Client {
	return c.rdb
}
