package kv

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.etcd.io/bbolt"
)

// bucketValues holds every key; namespacing is encoded in the key itself so
// prefix scans are a single cursor seek.
var bucketValues = []byte("values")

// BoltStore implements Store using bbolt.
type BoltStore struct {
	db     *bbolt.DB
	codec  *Codec
	logger *slog.Logger
	noSync bool // disables fsync per transaction (for testing only)
}

// BoltOption configures a BoltStore instance.
type BoltOption func(*BoltStore)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) BoltOption {
	return func(b *BoltStore) {
		b.logger = logger
	}
}

// WithNoSync disables fsync per transaction.
// WARNING: This improves write performance but risks data loss on crash.
// Use only for testing, never in production.
func WithNoSync(noSync bool) BoltOption {
	return func(b *BoltStore) {
		b.noSync = noSync
	}
}

// OpenBolt opens (creating if needed) the bbolt database at path.
func OpenBolt(path string, opts ...BoltOption) (*BoltStore, error) {
	b := &BoltStore{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{
		Timeout: 1 * time.Second,
		NoSync:  b.noSync,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	b.db = db

	if err := db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketValues); err != nil {
			return fmt.Errorf("creating bucket %s: %w", bucketValues, err)
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}

	codec, err := NewCodec()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating value codec: %w", err)
	}
	b.codec = codec

	b.logger.Debug("opened kv store", "path", path, "noSync", b.noSync)
	return b, nil
}

// Close closes the database and releases resources.
func (b *BoltStore) Close() error {
	if b.codec != nil {
		b.codec.Close()
		b.codec = nil
	}
	if b.db == nil {
		return nil
	}
	b.logger.Debug("closing kv store")
	err := b.db.Close()
	b.db = nil
	return err
}

// Get retrieves the value stored at key.
func (b *BoltStore) Get(_ context.Context, key string) (json.RawMessage, error) {
	var raw []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		val := tx.Bucket(bucketValues).Get([]byte(key))
		if val == nil {
			return ErrNotFound
		}
		raw = make([]byte, len(val))
		copy(raw, val)
		return nil
	})
	if err != nil {
		return nil, err
	}

	value, err := b.codec.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", key, err)
	}
	return value, nil
}

// Set stores value at key.
func (b *BoltStore) Set(_ context.Context, key string, value json.RawMessage) error {
	if key == "" {
		return fmt.Errorf("empty key")
	}
	raw, err := b.codec.Encode(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketValues).Put([]byte(key), raw); err != nil {
			return fmt.Errorf("putting %s: %w", key, err)
		}
		return nil
	})
}

// Delete removes the given keys in a single transaction.
func (b *BoltStore) Delete(_ context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketValues)
		for _, key := range keys {
			if err := bucket.Delete([]byte(key)); err != nil {
				return fmt.Errorf("deleting %s: %w", key, err)
			}
		}
		return nil
	})
}

// ListKeysWithPrefix returns all keys starting with prefix.
func (b *BoltStore) ListKeysWithPrefix(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	p := []byte(prefix)

	err := b.db.View(func(tx *bbolt.Tx) error {
		cursor := tx.Bucket(bucketValues).Cursor()
		for k, _ := cursor.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = cursor.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	return keys, err
}

var _ Store = (*BoltStore)(nil)
