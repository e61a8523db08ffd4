package kv

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/wolfeidau/widgethost/telemetry"
)

// InstrumentedStore wraps a Store with metrics recording.
type InstrumentedStore struct {
	store Store
	name  string
}

// NewInstrumentedStore creates a new instrumented store wrapper.
func NewInstrumentedStore(s Store, name string) *InstrumentedStore {
	return &InstrumentedStore{store: s, name: name}
}

func (is *InstrumentedStore) Get(ctx context.Context, key string) (json.RawMessage, error) {
	start := time.Now()
	val, err := is.store.Get(ctx, key)
	telemetry.RecordKVOp(ctx, is.name, "get", outcomeFromError(err), time.Since(start), int64(len(val)))
	return val, err
}

func (is *InstrumentedStore) Set(ctx context.Context, key string, value json.RawMessage) error {
	start := time.Now()
	err := is.store.Set(ctx, key, value)
	telemetry.RecordKVOp(ctx, is.name, "set", outcomeFromError(err), time.Since(start), int64(len(value)))
	return err
}

func (is *InstrumentedStore) Delete(ctx context.Context, keys ...string) error {
	start := time.Now()
	err := is.store.Delete(ctx, keys...)
	telemetry.RecordKVOp(ctx, is.name, "delete", outcomeFromError(err), time.Since(start), 0)
	return err
}

func (is *InstrumentedStore) ListKeysWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	start := time.Now()
	keys, err := is.store.ListKeysWithPrefix(ctx, prefix)
	telemetry.RecordKVOp(ctx, is.name, "list", outcomeFromError(err), time.Since(start), 0)
	return keys, err
}

func (is *InstrumentedStore) Close() error {
	return is.store.Close()
}

// Unwrap returns the underlying store.
func (is *InstrumentedStore) Unwrap() Store {
	return is.store
}

func outcomeFromError(err error) string {
	if err == nil {
		return "success"
	}
	if errors.Is(err, ErrNotFound) {
		return "not_found"
	}
	return "error"
}

var _ Store = (*InstrumentedStore)(nil)
