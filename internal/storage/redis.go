package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Connect opens a Redis client from a redis:// URL and checks it responds
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// RedisHashStore implements HashStore with one Redis hash per namespace
type RedisHashStore struct {
	client *redis.Client
}

// NewRedisHashStore wraps an existing client; the caller owns the client
func NewRedisHashStore(client *redis.Client) *RedisHashStore {
	return &RedisHashStore{client: client}
}

// Get reads one field
func (r *RedisHashStore) Get(ctx context.Context, namespace, key string) (string, error) {
	value, err := r.client.HGet(ctx, namespace, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to get %s field: %w", namespace, err)
	}
	return value, nil
}

// Set writes one field
func (r *RedisHashStore) Set(ctx context.Context, namespace, key, value string) error {
	if err := r.client.HSet(ctx, namespace, key, value).Err(); err != nil {
		return fmt.Errorf("failed to set %s field: %w", namespace, err)
	}
	return nil
}

// SetMany writes all fields in a single HSET
func (r *RedisHashStore) SetMany(ctx context.Context, namespace string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	if err := r.client.HSet(ctx, namespace, values).Err(); err != nil {
		return fmt.Errorf("failed to set %s fields: %w", namespace, err)
	}
	return nil
}

// Delete removes one field and reports whether it existed
func (r *RedisHashStore) Delete(ctx context.Context, namespace, key string) (bool, error) {
	removed, err := r.client.HDel(ctx, namespace, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to delete %s field: %w", namespace, err)
	}
	return removed > 0, nil
}

// GetAll reads every field of the namespace
func (r *RedisHashStore) GetAll(ctx context.Context, namespace string) (map[string]string, error) {
	values, err := r.client.HGetAll(ctx, namespace).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get %s fields: %w", namespace, err)
	}
	return values, nil
}
