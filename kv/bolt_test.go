package kv

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBoltStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := OpenBolt(filepath.Join(t.TempDir(), "test.db"), WithNoSync(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBoltStore_Operations(t *testing.T) {
	ctx := context.Background()

	t.Run("Set and Get round-trip", func(t *testing.T) {
		s := newTestBoltStore(t)

		require.NoError(t, s.Set(ctx, "widget_clock-1_timezone", json.RawMessage(`"UTC"`)))

		got, err := s.Get(ctx, "widget_clock-1_timezone")
		require.NoError(t, err)
		assert.JSONEq(t, `"UTC"`, string(got))
	})

	t.Run("Get returns ErrNotFound for missing key", func(t *testing.T) {
		s := newTestBoltStore(t)

		_, err := s.Get(ctx, "nonexistent")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Set overwrites", func(t *testing.T) {
		s := newTestBoltStore(t)

		require.NoError(t, s.Set(ctx, "k", json.RawMessage(`1`)))
		require.NoError(t, s.Set(ctx, "k", json.RawMessage(`2`)))

		got, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.JSONEq(t, `2`, string(got))
	})

	t.Run("Set rejects empty key", func(t *testing.T) {
		s := newTestBoltStore(t)
		require.Error(t, s.Set(ctx, "", json.RawMessage(`1`)))
	})

	t.Run("Delete removes keys and ignores missing ones", func(t *testing.T) {
		s := newTestBoltStore(t)

		require.NoError(t, s.Set(ctx, "a", json.RawMessage(`1`)))
		require.NoError(t, s.Set(ctx, "b", json.RawMessage(`2`)))

		require.NoError(t, s.Delete(ctx, "a", "missing"))

		_, err := s.Get(ctx, "a")
		require.ErrorIs(t, err, ErrNotFound)
		_, err = s.Get(ctx, "b")
		require.NoError(t, err)
	})

	t.Run("large values survive compression", func(t *testing.T) {
		s := newTestBoltStore(t)

		value := json.RawMessage(`"` + strings.Repeat("countdown ", 1000) + `"`)
		require.NoError(t, s.Set(ctx, "widget_countdowns-1_items", value))

		got, err := s.Get(ctx, "widget_countdowns-1_items")
		require.NoError(t, err)
		assert.Equal(t, string(value), string(got))
	})
}

func TestBoltStore_ListKeysWithPrefix(t *testing.T) {
	ctx := context.Background()
	s := newTestBoltStore(t)

	for _, k := range []string{
		"activeWidgets",
		"widget_clock-1_timezone",
		"widget_clock-1_format",
		"widget_clock-10_timezone",
		"widget_links-1_links",
	} {
		require.NoError(t, s.Set(ctx, k, json.RawMessage(`true`)))
	}

	keys, err := s.ListKeysWithPrefix(ctx, "widget_clock-1_")
	require.NoError(t, err)
	assert.Equal(t, []string{"widget_clock-1_format", "widget_clock-1_timezone"}, keys)

	keys, err = s.ListKeysWithPrefix(ctx, "widget_")
	require.NoError(t, err)
	assert.Len(t, keys, 4)

	keys, err = s.ListKeysWithPrefix(ctx, "nothing_")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestBoltStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reopen.db")

	s, err := OpenBolt(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "widget_clock-1_foo", json.RawMessage(`42`)))
	require.NoError(t, s.Close())

	s, err = OpenBolt(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(ctx, "widget_clock-1_foo")
	require.NoError(t, err)
	assert.JSONEq(t, `42`, string(got))
}

func TestHelpers(t *testing.T) {
	ctx := context.Background()
	s := newTestBoltStore(t)

	type placement struct {
		X, Y, W, H int
	}
	layout := map[string]placement{"clock-1": {X: 1, Y: 2, W: 3, H: 2}}
	require.NoError(t, SetJSON(ctx, s, "widgetLayout", layout))

	var got map[string]placement
	require.NoError(t, GetJSON(ctx, s, "widgetLayout", &got))
	assert.Equal(t, layout, got)

	require.ErrorIs(t, GetJSON(ctx, s, "missing", &got), ErrNotFound)

	require.NoError(t, s.Set(ctx, "widget_w_a", json.RawMessage(`1`)))
	require.NoError(t, s.Set(ctx, "widget_w_b", json.RawMessage(`2`)))
	removed, err := DeletePrefix(ctx, s, "widget_w_")
	require.NoError(t, err)
	assert.Equal(t, []string{"widget_w_a", "widget_w_b"}, removed)

	keys, err := s.ListKeysWithPrefix(ctx, "widget_w_")
	require.NoError(t, err)
	assert.Empty(t, keys)
}
