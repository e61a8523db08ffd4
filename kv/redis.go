package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on a shared Redis server.
// Every key is namespaced with the store's key prefix so several dashboards
// can share one Redis database.
type RedisStore struct {
	rdb       *redis.Client
	keyPrefix string
}

// NewRedisStore creates a Redis-backed store. keyPrefix may be empty.
func NewRedisStore(opts *redis.Options, keyPrefix string) *RedisStore {
	return &RedisStore{
		rdb:       redis.NewClient(opts),
		keyPrefix: keyPrefix,
	}
}

// Ping verifies Redis connectivity.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (r *RedisStore) Close() error {
	return r.rdb.Close()
}

// Get retrieves the value stored at key.
func (r *RedisStore) Get(ctx context.Context, key string) (json.RawMessage, error) {
	val, err := r.rdb.Get(ctx, r.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s from Redis: %w", key, err)
	}
	return val, nil
}

// Set stores value at key with no expiry.
func (r *RedisStore) Set(ctx context.Context, key string, value json.RawMessage) error {
	if key == "" {
		return fmt.Errorf("empty key")
	}
	if len(value) > MaxValueSize {
		return ErrValueTooLarge
	}
	if err := r.rdb.Set(ctx, r.keyPrefix+key, []byte(value), 0).Err(); err != nil {
		return fmt.Errorf("failed to write %s to Redis: %w", key, err)
	}
	return nil
}

// Delete removes the given keys with a single DEL.
func (r *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.keyPrefix + k
	}
	if err := r.rdb.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("failed to delete keys from Redis: %w", err)
	}
	return nil
}

// ListKeysWithPrefix scans for keys starting with prefix.
// SCAN makes no ordering or uniqueness promise, so results are sorted and
// deduplicated before returning.
func (r *RedisStore) ListKeysWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	match := escapeGlob(r.keyPrefix+prefix) + "*"

	var keys []string
	iter := r.rdb.Scan(ctx, 0, match, 256).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), r.keyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan Redis keys: %w", err)
	}

	slices.Sort(keys)
	return slices.Compact(keys), nil
}

// escapeGlob escapes the characters Redis MATCH treats as pattern syntax.
func escapeGlob(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

var _ Store = (*RedisStore)(nil)
