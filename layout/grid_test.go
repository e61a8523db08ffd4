package layout

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func container(id string) Container {
	return Container{DataAttrs: map[string]string{"widget-id": id}}
}

func TestGrid_PlaceClampsToBounds(t *testing.T) {
	g := NewGrid(GridConfig{})

	tests := []struct {
		name string
		in   Placement
		want Placement
	}{
		{"inside bounds", Placement{X: 2, Y: 1, W: 3, H: 2}, Placement{X: 2, Y: 1, W: 3, H: 2}},
		{"zero size gets default", Placement{X: 0, Y: 0}, Placement{X: 0, Y: 0, W: DefaultWidth, H: DefaultHeight}},
		{"overflows right edge", Placement{X: 23, Y: 0, W: 4, H: 1}, Placement{X: 20, Y: 0, W: 4, H: 1}},
		{"wider than grid", Placement{X: 5, Y: 0, W: 40, H: 1}, Placement{X: 0, Y: 0, W: 24, H: 1}},
		{"negative origin", Placement{X: -3, Y: -1, W: 2, H: 2}, Placement{X: 0, Y: 0, W: 2, H: 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := g.Place(container(tt.name), tt.in, false)
			require.NoError(t, err)

			for _, it := range g.Items() {
				if it.Handle == h {
					assert.Equal(t, tt.want, it.Placement)
					return
				}
			}
			t.Fatal("placed item missing")
		})
	}
}

func TestGrid_AutoPositionFillsFirstFreeSlot(t *testing.T) {
	g := NewGrid(GridConfig{Columns: 6})

	_, err := g.Place(container("a"), Placement{X: 0, Y: 0, W: 3, H: 2}, false)
	require.NoError(t, err)

	hb, err := g.Place(container("b"), Placement{W: 3, H: 2}, true)
	require.NoError(t, err)
	hc, err := g.Place(container("c"), Placement{W: 3, H: 2}, true)
	require.NoError(t, err)

	byHandle := map[Handle]Placement{}
	for _, it := range g.Items() {
		byHandle[it.Handle] = it.Placement
	}
	assert.Equal(t, Placement{X: 3, Y: 0, W: 3, H: 2}, byHandle[hb])
	assert.Equal(t, Placement{X: 0, Y: 2, W: 3, H: 2}, byHandle[hc])
}

func TestGrid_OnChangeEchoesDataAttrs(t *testing.T) {
	g := NewGrid(GridConfig{})

	var mu sync.Mutex
	var last []Item
	g.OnChange(func(items []Item) {
		mu.Lock()
		defer mu.Unlock()
		last = items
	})

	attrs := map[string]string{"widget-id": "clock-1"}
	h, err := g.Place(Container{DataAttrs: attrs}, Placement{W: 3, H: 2}, false)
	require.NoError(t, err)

	// mutating the caller's map must not leak into the host
	attrs["widget-id"] = "tampered"

	mu.Lock()
	require.Len(t, last, 1)
	assert.Equal(t, "clock-1", last[0].DataAttrs["widget-id"])
	mu.Unlock()

	require.NoError(t, g.Remove(h))
	mu.Lock()
	assert.Empty(t, last)
	mu.Unlock()

	require.ErrorIs(t, g.Remove(h), ErrUnknownHandle)
}

func TestGrid_UpdateRespectsEditing(t *testing.T) {
	g := NewGrid(GridConfig{})
	h, err := g.Place(container("clock-1"), Placement{X: 0, Y: 0, W: 3, H: 2}, false)
	require.NoError(t, err)

	changes := 0
	g.OnChange(func([]Item) { changes++ })

	_, err = g.Update(h, Placement{X: 4, Y: 0, W: 3, H: 2})
	require.ErrorIs(t, err, ErrLocked)

	g.EnableMove(true)
	p, err := g.Update(h, Placement{X: 4, Y: 1, W: 3, H: 2})
	require.NoError(t, err)
	assert.Equal(t, Placement{X: 4, Y: 1, W: 3, H: 2}, p)

	_, err = g.Update(h, Placement{X: 4, Y: 1, W: 5, H: 2})
	require.ErrorIs(t, err, ErrLocked)

	g.EnableResize(true)
	move, resize := g.Editable()
	assert.True(t, move)
	assert.True(t, resize)

	p, err = g.Update(h, Placement{X: 30, Y: 1, W: 5, H: 2})
	require.NoError(t, err)
	assert.Equal(t, Placement{X: 19, Y: 1, W: 5, H: 2}, p)

	// no-op update does not notify
	_, err = g.Update(h, p)
	require.NoError(t, err)
	assert.Equal(t, 2, changes)

	_, err = g.Update(Handle(999), p)
	require.ErrorIs(t, err, ErrUnknownHandle)
}

func TestGrid_BoundsAndHitTesting(t *testing.T) {
	g := NewGrid(GridConfig{OriginX: 10, OriginY: 20})
	h, err := g.Place(container("clock-1"), Placement{X: 2, Y: 1, W: 3, H: 2}, false)
	require.NoError(t, err)

	r, ok := g.Bounds(h)
	require.True(t, ok)
	assert.Equal(t, Rect{X: 10 + 2*104, Y: 20 + 104, Width: 3 * 104, Height: 2 * 104}, r)

	got, ok := g.HandleAt(r.X+1, r.Y+1)
	require.True(t, ok)
	assert.Equal(t, h, got)

	_, ok = g.HandleAt(0, 0)
	assert.False(t, ok)

	_, ok = g.Bounds(Handle(42))
	assert.False(t, ok)
}
