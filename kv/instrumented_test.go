package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInstrumentedStore_Delegates(t *testing.T) {
	ctx := context.Background()
	base := newTestBoltStore(t)
	s := NewInstrumentedStore(base, "bolt")

	require.NoError(t, s.Set(ctx, "widget_x_k", json.RawMessage(`"v"`)))

	got, err := s.Get(ctx, "widget_x_k")
	require.NoError(t, err)
	require.JSONEq(t, `"v"`, string(got))

	keys, err := s.ListKeysWithPrefix(ctx, "widget_x_")
	require.NoError(t, err)
	require.Equal(t, []string{"widget_x_k"}, keys)

	require.NoError(t, s.Delete(ctx, "widget_x_k"))
	_, err = s.Get(ctx, "widget_x_k")
	require.ErrorIs(t, err, ErrNotFound)

	require.Same(t, base, s.Unwrap())
}

func TestOutcomeFromError(t *testing.T) {
	require.Equal(t, "success", outcomeFromError(nil))
	require.Equal(t, "not_found", outcomeFromError(ErrNotFound))
	require.Equal(t, "not_found", outcomeFromError(fmt.Errorf("wrapped: %w", ErrNotFound)))
	require.Equal(t, "error", outcomeFromError(errors.New("boom")))
}
