package dashboard

import (
	"context"

	"github.com/wolfeidau/widgethost/interaction"
	"github.com/wolfeidau/widgethost/layout"
	"github.com/wolfeidau/widgethost/protocol"
)

// hitTester is implemented by layout hosts that can resolve a screen point
// to the container under it.
type hitTester interface {
	HandleAt(x, y float64) (layout.Handle, bool)
}

// MenuItems builds the context menu for a right-click. A click on a widget
// offers editing, settings and removal; a click on the background offers
// editing and the add-widget submenu.
func (r *Runtime) MenuItems(e interaction.Event) []interaction.MenuItem {
	editLabel := "Enable Editing"
	if r.Editing() {
		editLabel = "Disable Editing"
	}
	items := []interaction.MenuItem{
		{Label: editLabel, Action: func() { r.ToggleEditing() }},
	}

	if _, ok := r.Instance(e.Target); ok && e.Target != "" {
		id := e.Target
		return append(items,
			interaction.MenuItem{Label: "Widget Settings", Action: func() {
				if err := r.OpenSettings(id); err != nil {
					r.logger.Warn("opening settings from menu", "widget", id, "error", err)
				}
			}},
			interaction.Separator(),
			interaction.MenuItem{Label: "Remove Widget", Danger: true, Action: func() {
				if err := r.RemoveWidget(context.Background(), id); err != nil {
					r.logger.Warn("removing widget from menu", "widget", id, "error", err)
				}
			}},
		)
	}

	kinds := r.registry.Kinds()
	submenu := make([]interaction.MenuItem, 0, len(kinds))
	for _, k := range kinds {
		submenu = append(submenu, interaction.MenuItem{Label: k.DisplayName, Action: func() {
			cfg, err := k.Config()
			if err != nil {
				r.logger.Warn("adding widget from menu", "kind", k.Name, "error", err)
				return
			}
			if err := r.HandleBroadcast(context.Background(), protocol.AddWidget{WidgetID: k.Name, Config: cfg}); err != nil {
				r.logger.Warn("adding widget from menu", "kind", k.Name, "error", err)
			}
		}})
	}
	return append(items,
		interaction.Separator(),
		interaction.MenuItem{Label: "Add Widget", Submenu: submenu},
	)
}

// AttachMenu wires menu to the runtime's interaction layer.
func (r *Runtime) AttachMenu(menu *interaction.Menu) func() {
	return menu.Attach(r.events, r.MenuItems)
}

// DispatchHostEvent dispatches a pointer event that happened on the host
// page itself. When the layout host can hit-test, the widget under the
// pointer becomes the event target.
func (r *Runtime) DispatchHostEvent(e interaction.Event) {
	if e.Target == "" {
		if ht, ok := r.layout.(hitTester); ok {
			if h, ok := ht.HandleAt(e.X, e.Y); ok {
				e.Target = r.widgetForHandle(h)
			}
		}
	}
	r.events.Dispatch(e)
}

func (r *Runtime) widgetForHandle(h layout.Handle) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, w := range r.widgets {
		if w.placed && w.handle == h {
			return id
		}
	}
	return ""
}
