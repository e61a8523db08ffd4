package interaction

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrNoSuchItem is returned by Select when the label path does not resolve.
var ErrNoSuchItem = errors.New("interaction: no such menu item")

// MenuItem is one entry of a context menu.
type MenuItem struct {
	Label     string     `json:"label,omitempty"`
	Separator bool       `json:"separator,omitempty"`
	Danger    bool       `json:"danger,omitempty"`
	Submenu   []MenuItem `json:"submenu,omitempty"`
	Action    func()     `json:"-"`
}

// Separator returns a separator item.
func Separator() MenuItem {
	return MenuItem{Separator: true}
}

// MenuBuilder returns the items to show for a right-click.
type MenuBuilder func(e Event) []MenuItem

// Menu is the model of the host context menu.
type Menu struct {
	mu      sync.Mutex
	visible bool
	x, y    float64
	items   []MenuItem
}

// NewMenu creates a hidden menu.
func NewMenu() *Menu {
	return &Menu{}
}

// Show opens the menu at (x, y) with items, replacing anything shown.
func (m *Menu) Show(x, y float64, items []MenuItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.visible = true
	m.x, m.y = x, y
	m.items = slices.Clone(items)
}

// Hide closes the menu.
func (m *Menu) Hide() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.visible = false
	m.items = nil
}

// Visible reports whether the menu is open.
func (m *Menu) Visible() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.visible
}

// Position returns where the menu was last opened.
func (m *Menu) Position() (x, y float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.x, m.y
}

// Items returns the items currently shown.
func (m *Menu) Items() []MenuItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.items)
}

// Select runs the action of the item reached by following labels through
// submenus, then hides the menu.
func (m *Menu) Select(labels ...string) error {
	m.mu.Lock()
	if !m.visible {
		m.mu.Unlock()
		return fmt.Errorf("%w: menu hidden", ErrNoSuchItem)
	}
	item, ok := find(m.items, labels)
	m.mu.Unlock()
	if !ok || item.Action == nil {
		return fmt.Errorf("%w: %q", ErrNoSuchItem, labels)
	}

	m.Hide()
	item.Action()
	return nil
}

func find(items []MenuItem, labels []string) (MenuItem, bool) {
	if len(labels) == 0 {
		return MenuItem{}, false
	}
	for _, it := range items {
		if it.Separator || it.Label != labels[0] {
			continue
		}
		if len(labels) == 1 {
			return it, true
		}
		return find(it.Submenu, labels[1:])
	}
	return MenuItem{}, false
}

// Attach wires the menu to a layer: a right-click opens it with the items
// from build, any click dismisses it. It returns a function that detaches.
func (m *Menu) Attach(layer *Layer, build MenuBuilder) func() {
	return layer.Listen(func(e Event) {
		switch e.Type {
		case ContextMenu:
			m.Show(e.X, e.Y, build(e))
		case Click:
			if m.Visible() {
				m.Hide()
			}
		}
	})
}
