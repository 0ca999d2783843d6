package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/combat-ledger/pkg/storage"
)

// RedisStorage keeps each actor's flags in one Redis hash, one field per
// namespace, so a multi-namespace write is a single HSET.
type RedisStorage struct {
	client *redis.Client
	logger *slog.Logger
}

// Ensure RedisStorage implements FlagStore interface
var _ storage.FlagStore = (*RedisStorage)(nil)

// NewRedisStorage creates a Redis flag store from a redis:// URL
func NewRedisStorage(redisURL string, logger *slog.Logger) (*RedisStorage, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	return NewRedisStorageFromClient(redis.NewClient(opt), logger), nil
}

// NewRedisStorageFromClient wraps an existing client
func NewRedisStorageFromClient(client *redis.Client, logger *slog.Logger) *RedisStorage {
	return &RedisStorage{
		client: client,
		logger: logger,
	}
}

func flagsKey(actorID string) string {
	return "actor:" + actorID + ":flags"
}

// Health and lifecycle methods

func (r *RedisStorage) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *RedisStorage) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}
	r.logger.Info("Redis connection closed")
	return nil
}

// WaitForConnection waits for Redis to become available (used during startup)
func (r *RedisStorage) WaitForConnection(ctx context.Context) error {
	maxRetries := 30
	retryDelay := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		if err := r.Ping(ctx); err != nil {
			r.logger.Debug("Redis not ready yet", "error", err, "attempt", i+1)

			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while waiting for redis: %w", ctx.Err())
			case <-time.After(retryDelay):
				continue
			}
		}

		r.logger.Info("Redis connection established")
		return nil
	}

	return fmt.Errorf("redis did not become available after %d attempts", maxRetries)
}

// Flag operations

func (r *RedisStorage) GetFlag(ctx context.Context, actorID, namespace string) ([]byte, error) {
	data, err := r.client.HGet(ctx, flagsKey(actorID), namespace).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		r.logger.Error("Failed to load flag", "actor_id", actorID, "namespace", namespace, "error", err)
		return nil, fmt.Errorf("failed to load flag %s: %w", namespace, err)
	}
	return data, nil
}

func (r *RedisStorage) SetFlag(ctx context.Context, actorID, namespace string, data []byte) error {
	return r.SetFlags(ctx, actorID, map[string][]byte{namespace: data})
}

func (r *RedisStorage) SetFlags(ctx context.Context, actorID string, records map[string][]byte) error {
	if actorID == "" {
		return errors.New("actor id is required")
	}
	if len(records) == 0 {
		return nil
	}
	values := make(map[string]any, len(records))
	for ns, data := range records {
		values[ns] = data
	}
	if err := r.client.HSet(ctx, flagsKey(actorID), values).Err(); err != nil {
		r.logger.Error("Failed to save flags", "actor_id", actorID, "error", err)
		return fmt.Errorf("failed to save flags: %w", err)
	}
	return nil
}

func (r *RedisStorage) DeleteFlag(ctx context.Context, actorID string, namespaces ...string) error {
	if len(namespaces) == 0 {
		return nil
	}
	if err := r.client.HDel(ctx, flagsKey(actorID), namespaces...).Err(); err != nil {
		r.logger.Error("Failed to delete flags", "actor_id", actorID, "namespaces", namespaces, "error", err)
		return fmt.Errorf("failed to delete flags: %w", err)
	}
	return nil
}
