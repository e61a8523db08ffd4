package kv

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a store connected to a miniredis instance.
func setupTestRedis(t *testing.T, keyPrefix string) (*RedisStore, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	s := NewRedisStore(&redis.Options{Addr: mr.Addr()}, keyPrefix)
	t.Cleanup(func() { _ = s.Close() })

	return s, mr
}

func TestRedisStore_Ping(t *testing.T) {
	s, _ := setupTestRedis(t, "")
	require.NoError(t, s.Ping(context.Background()))
}

func TestRedisStore_Operations(t *testing.T) {
	ctx := context.Background()
	s, mr := setupTestRedis(t, "dash:")

	require.NoError(t, s.Set(ctx, "widget_clock-1_foo", json.RawMessage(`42`)))

	// keys are namespaced on the server
	assert.True(t, mr.Exists("dash:widget_clock-1_foo"))

	got, err := s.Get(ctx, "widget_clock-1_foo")
	require.NoError(t, err)
	assert.JSONEq(t, `42`, string(got))

	_, err = s.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Delete(ctx, "widget_clock-1_foo", "missing"))
	_, err = s.Get(ctx, "widget_clock-1_foo")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_ListKeysWithPrefix(t *testing.T) {
	ctx := context.Background()
	s, mr := setupTestRedis(t, "dash:")

	for _, k := range []string{
		"widget_clock-1_b",
		"widget_clock-1_a",
		"widget_clock-10_a",
		"activeWidgets",
	} {
		require.NoError(t, s.Set(ctx, k, json.RawMessage(`1`)))
	}
	// a key outside the store's namespace must not be listed
	require.NoError(t, mr.Set("other:widget_clock-1_x", "1"))

	keys, err := s.ListKeysWithPrefix(ctx, "widget_clock-1_")
	require.NoError(t, err)
	assert.Equal(t, []string{"widget_clock-1_a", "widget_clock-1_b"}, keys)
}

func TestRedisStore_ListEscapesGlobCharacters(t *testing.T) {
	ctx := context.Background()
	s, _ := setupTestRedis(t, "")

	require.NoError(t, s.Set(ctx, "widget_a*_x", json.RawMessage(`1`)))
	require.NoError(t, s.Set(ctx, "widget_ab_x", json.RawMessage(`1`)))

	keys, err := s.ListKeysWithPrefix(ctx, "widget_a*_")
	require.NoError(t, err)
	assert.Equal(t, []string{"widget_a*_x"}, keys)
}

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, `widget_\*\?\[x\]\\_`, escapeGlob(`widget_*?[x]\_`))
	assert.Equal(t, "plain", escapeGlob("plain"))
}
