// Package kv provides the persistent key-value store that backs the dashboard.
//
// Values are JSON documents. Keys are flat strings; widget-private keys carry a
// "widget_<id>_" namespace prefix that is enforced by the storage gateway, not
// by the store itself.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("kv: not found")

// Store is a process-wide key to JSON value map.
// Implementations must be safe for concurrent use and durable once Set returns.
type Store interface {
	// Get returns the value stored at key, or ErrNotFound.
	Get(ctx context.Context, key string) (json.RawMessage, error)

	// Set stores value at key, overwriting any previous value (last write wins).
	Set(ctx context.Context, key string, value json.RawMessage) error

	// Delete removes the given keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error

	// ListKeysWithPrefix returns every key starting with prefix in lexical order.
	ListKeysWithPrefix(ctx context.Context, prefix string) ([]string, error)

	// Close releases the store's resources.
	Close() error
}

// GetJSON reads key and decodes it into dst.
// Returns ErrNotFound if the key does not exist.
func GetJSON(ctx context.Context, s Store, key string, dst any) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}

// SetJSON encodes v and stores it at key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return s.Set(ctx, key, raw)
}

// DeletePrefix removes every key starting with prefix and returns the removed keys.
func DeletePrefix(ctx context.Context, s Store, prefix string) ([]string, error) {
	keys, err := s.ListKeysWithPrefix(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("listing %q: %w", prefix, err)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	if err := s.Delete(ctx, keys...); err != nil {
		return nil, fmt.Errorf("deleting %d keys: %w", len(keys), err)
	}
	return keys, nil
}
