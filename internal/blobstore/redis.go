// Package blobstore provides persistence backends for the serialized comment
// blob. A backend stores one opaque text document per context key; saves are
// unconditional overwrites with no concurrency token.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// EmptyBlob is what Load returns before anything has ever been saved.
const EmptyBlob = "{}"

// RedisStore keeps the blob in a single Redis key.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore connects to Redis and verifies the connection. contextKey
// scopes the blob to one deployment of the comment surface.
func NewRedisStore(redisURL, contextKey string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, contextKey), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, contextKey string) *RedisStore {
	return &RedisStore{client: client, key: "blob:" + contextKey}
}

// Load returns the previously saved blob text, or EmptyBlob when no save has
// ever happened for this context.
func (s *RedisStore) Load(ctx context.Context) (string, error) {
	text, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return EmptyBlob, nil
	}
	if err != nil {
		return "", fmt.Errorf("load blob: %w", err)
	}
	return text, nil
}

// Save replaces the stored blob. The blob never expires; it is the single
// source of truth for the comment surface.
func (s *RedisStore) Save(ctx context.Context, blob string) error {
	if err := s.client.Set(ctx, s.key, blob, 0).Err(); err != nil {
		return fmt.Errorf("save blob: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
