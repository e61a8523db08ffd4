package dashboard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/widgethost/interaction"
	"github.com/wolfeidau/widgethost/layout"
)

func labels(items []interaction.MenuItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it.Separator {
			out = append(out, "-")
			continue
		}
		out = append(out, it.Label)
	}
	return out
}

func TestMenuItems(t *testing.T) {
	rt := newRuntime(t, newStore(t), nil, nil)
	inst, err := rt.AddWidget(context.Background(), "links", nil)
	require.NoError(t, err)

	t.Run("widget", func(t *testing.T) {
		items := rt.MenuItems(interaction.Event{Type: interaction.ContextMenu, Target: inst.ID})
		assert.Equal(t, []string{"Enable Editing", "Widget Settings", "-", "Remove Widget"}, labels(items))
		assert.True(t, items[3].Danger)
	})

	t.Run("background", func(t *testing.T) {
		items := rt.MenuItems(interaction.Event{Type: interaction.ContextMenu})
		assert.Equal(t, []string{"Enable Editing", "-", "Add Widget"}, labels(items))
		require.Len(t, items[2].Submenu, len(rt.Registry().Kinds()))
		assert.Equal(t, "Clock", items[2].Submenu[0].Label)
	})

	t.Run("stale target", func(t *testing.T) {
		items := rt.MenuItems(interaction.Event{Type: interaction.ContextMenu, Target: "gone-1"})
		assert.Equal(t, []string{"Enable Editing", "-", "Add Widget"}, labels(items))
	})

	t.Run("editing label follows state", func(t *testing.T) {
		rt.SetEditing(true)
		defer rt.SetEditing(false)
		items := rt.MenuItems(interaction.Event{Type: interaction.ContextMenu})
		assert.Equal(t, "Disable Editing", items[0].Label)
	})
}

func TestAttachMenu(t *testing.T) {
	ctx := context.Background()
	grid := layout.NewGrid(layout.GridConfig{})
	rt := newRuntime(t, newStore(t), nil, grid)

	clock, err := rt.AddWidget(ctx, "clock", nil)
	require.NoError(t, err)

	menu := interaction.NewMenu()
	detach := rt.AttachMenu(menu)
	defer detach()

	// right-click on the widget body, resolved by hit-testing the grid
	rt.DispatchHostEvent(interaction.Event{Type: interaction.ContextMenu, X: 50, Y: 50})
	require.True(t, menu.Visible())
	x, y := menu.Position()
	assert.Equal(t, 50.0, x)
	assert.Equal(t, 50.0, y)
	assert.Contains(t, labels(menu.Items()), "Remove Widget")

	// any click dismisses
	rt.DispatchHostEvent(interaction.Event{Type: interaction.Click, X: 900, Y: 900})
	assert.False(t, menu.Visible())

	// right-click on empty space then add a widget from the submenu
	rt.DispatchHostEvent(interaction.Event{Type: interaction.ContextMenu, X: 2000, Y: 900})
	require.True(t, menu.Visible())
	require.NoError(t, menu.Select("Add Widget", "Date"))
	assert.False(t, menu.Visible())

	instances := rt.Instances()
	require.Len(t, instances, 2)
	assert.Equal(t, "date", instances[1].Kind)

	rt.DispatchHostEvent(interaction.Event{Type: interaction.ContextMenu, X: 50, Y: 50})
	require.NoError(t, menu.Select("Enable Editing"))
	assert.True(t, rt.Editing())

	rt.DispatchHostEvent(interaction.Event{Type: interaction.ContextMenu, X: 50, Y: 50})
	require.NoError(t, menu.Select("Remove Widget"))
	_, ok := rt.Instance(clock.ID)
	assert.False(t, ok)

	require.ErrorIs(t, menu.Select("Remove Widget"), interaction.ErrNoSuchItem)
}

func TestDispatchHostEvent_KeepsExplicitTarget(t *testing.T) {
	rt := newRuntime(t, newStore(t), nil, nil)
	_, err := rt.AddWidget(context.Background(), "clock", nil)
	require.NoError(t, err)

	var got []interaction.Event
	rt.Events().Listen(func(e interaction.Event) { got = append(got, e) })

	rt.DispatchHostEvent(interaction.Event{Type: interaction.Click, X: 10, Y: 10, Target: "other"})
	rt.DispatchHostEvent(interaction.Event{Type: interaction.Click, X: 2000, Y: 2000})

	require.Len(t, got, 2)
	assert.Equal(t, "other", got[0].Target)
	assert.Empty(t, got[1].Target)
}
