package layout

import (
	"errors"
	"maps"
	"sort"
	"sync"
)

// ErrLocked is returned by Update when the requested change is disabled.
var ErrLocked = errors.New("layout: move or resize disabled")

// GridConfig sizes a Grid.
type GridConfig struct {
	// Columns is the number of grid columns. Default: 24.
	Columns int
	// CellWidth and CellHeight are the pixel size of one cell. Default: 104.
	CellWidth  float64
	CellHeight float64
	// Margin is the pixel gap between cells. Default: 0.
	Margin float64
	// OriginX and OriginY are the grid's on-screen offset.
	OriginX float64
	OriginY float64
}

type gridItem struct {
	attrs map[string]string
	p     Placement
}

// Grid is an in-memory Host with floating placement: items stay where they
// are put and new items fill the first free slot.
type Grid struct {
	cfg GridConfig

	mu        sync.Mutex
	next      Handle
	items     map[Handle]*gridItem
	order     []Handle
	canMove   bool
	canResize bool
	listeners []func([]Item)
}

// NewGrid creates a grid with move and resize disabled.
func NewGrid(cfg GridConfig) *Grid {
	if cfg.Columns <= 0 {
		cfg.Columns = 24
	}
	if cfg.CellWidth <= 0 {
		cfg.CellWidth = 104
	}
	if cfg.CellHeight <= 0 {
		cfg.CellHeight = 104
	}
	return &Grid{
		cfg:   cfg,
		items: make(map[Handle]*gridItem),
	}
}

// Place adds a container.
func (g *Grid) Place(c Container, p Placement, auto bool) (Handle, error) {
	g.mu.Lock()
	p = g.clamp(p)
	if auto {
		p.X, p.Y = g.firstFree(p.W, p.H)
	}
	g.next++
	h := g.next
	g.items[h] = &gridItem{attrs: maps.Clone(c.DataAttrs), p: p}
	g.order = append(g.order, h)
	snapshot, listeners := g.snapshotLocked()
	g.mu.Unlock()

	notify(listeners, snapshot)
	return h, nil
}

// Remove detaches a container.
func (g *Grid) Remove(h Handle) error {
	g.mu.Lock()
	if _, ok := g.items[h]; !ok {
		g.mu.Unlock()
		return ErrUnknownHandle
	}
	delete(g.items, h)
	for i, v := range g.order {
		if v == h {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	snapshot, listeners := g.snapshotLocked()
	g.mu.Unlock()

	notify(listeners, snapshot)
	return nil
}

// Update moves or resizes a container, as a drag or resize gesture would.
// Position changes require move to be enabled, size changes resize.
func (g *Grid) Update(h Handle, p Placement) (Placement, error) {
	g.mu.Lock()
	it, ok := g.items[h]
	if !ok {
		g.mu.Unlock()
		return Placement{}, ErrUnknownHandle
	}
	moved := p.X != it.p.X || p.Y != it.p.Y
	resized := p.W != it.p.W || p.H != it.p.H
	if (moved && !g.canMove) || (resized && !g.canResize) {
		g.mu.Unlock()
		return it.p, ErrLocked
	}
	p = g.clamp(p)
	if p == it.p {
		g.mu.Unlock()
		return p, nil
	}
	it.p = p
	snapshot, listeners := g.snapshotLocked()
	g.mu.Unlock()

	notify(listeners, snapshot)
	return p, nil
}

func (g *Grid) EnableMove(enabled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.canMove = enabled
}

func (g *Grid) EnableResize(enabled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.canResize = enabled
}

// Editable reports whether move and resize are enabled.
func (g *Grid) Editable() (move, resize bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.canMove, g.canResize
}

func (g *Grid) OnChange(fn func([]Item)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listeners = append(g.listeners, fn)
}

// Bounds returns the pixel box of a container.
func (g *Grid) Bounds(h Handle) (Rect, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	it, ok := g.items[h]
	if !ok {
		return Rect{}, false
	}
	return g.rect(it.p), true
}

// Items returns the current items in reading order, top to bottom.
func (g *Grid) Items() []Item {
	g.mu.Lock()
	defer g.mu.Unlock()
	items, _ := g.snapshotLocked()
	return items
}

// HandleAt returns the topmost container under a screen point.
func (g *Grid) HandleAt(x, y float64) (Handle, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := len(g.order) - 1; i >= 0; i-- {
		h := g.order[i]
		if g.rect(g.items[h].p).Contains(x, y) {
			return h, true
		}
	}
	return 0, false
}

func (g *Grid) rect(p Placement) Rect {
	m := g.cfg.Margin
	return Rect{
		X:      g.cfg.OriginX + float64(p.X)*g.cfg.CellWidth + m,
		Y:      g.cfg.OriginY + float64(p.Y)*g.cfg.CellHeight + m,
		Width:  float64(p.W)*g.cfg.CellWidth - 2*m,
		Height: float64(p.H)*g.cfg.CellHeight - 2*m,
	}
}

// clamp keeps p inside the column bounds with a positive size.
func (g *Grid) clamp(p Placement) Placement {
	if p.W <= 0 {
		p.W = DefaultWidth
	}
	if p.H <= 0 {
		p.H = DefaultHeight
	}
	p.W = min(p.W, g.cfg.Columns)
	p.X = max(0, min(p.X, g.cfg.Columns-p.W))
	p.Y = max(0, p.Y)
	return p
}

// firstFree scans rows top to bottom for the first slot of w×h cells that
// overlaps no placed item.
func (g *Grid) firstFree(w, h int) (int, int) {
	for y := 0; ; y++ {
		for x := 0; x+w <= g.cfg.Columns; x++ {
			candidate := Placement{X: x, Y: y, W: w, H: h}
			free := true
			for _, it := range g.items {
				if overlaps(candidate, it.p) {
					free = false
					break
				}
			}
			if free {
				return x, y
			}
		}
	}
}

func overlaps(a, b Placement) bool {
	return a.X < b.X+b.W && b.X < a.X+a.W && a.Y < b.Y+b.H && b.Y < a.Y+a.H
}

func (g *Grid) snapshotLocked() ([]Item, []func([]Item)) {
	items := make([]Item, 0, len(g.order))
	for _, h := range g.order {
		it := g.items[h]
		items = append(items, Item{Handle: h, DataAttrs: maps.Clone(it.attrs), Placement: it.p})
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Placement.Y != items[j].Placement.Y {
			return items[i].Placement.Y < items[j].Placement.Y
		}
		return items[i].Placement.X < items[j].Placement.X
	})
	listeners := make([]func([]Item), len(g.listeners))
	copy(listeners, g.listeners)
	return items, listeners
}

func notify(listeners []func([]Item), items []Item) {
	for _, fn := range listeners {
		fn(items)
	}
}

var _ Host = (*Grid)(nil)
