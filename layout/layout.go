// Package layout defines the contract between the widget runtime and the
// grid that arranges widget containers, and bundles an in-memory grid.
package layout

import "errors"

// ErrUnknownHandle is returned for a handle the host does not hold.
var ErrUnknownHandle = errors.New("layout: unknown handle")

// Default widget size in grid cells.
const (
	DefaultWidth  = 3
	DefaultHeight = 2
)

// Placement is a widget's position and size in grid cells.
type Placement struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Rect is an on-screen bounding box in pixels.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Contains reports whether the point lies inside r.
func (r Rect) Contains(x, y float64) bool {
	return x >= r.X && x < r.X+r.Width && y >= r.Y && y < r.Y+r.Height
}

// Container is the element handed to the host. DataAttrs are echoed back
// unchanged in every change notification.
type Container struct {
	DataAttrs map[string]string
}

// Handle identifies a placed container.
type Handle uint64

// Item is one container's state in a change notification.
type Item struct {
	Handle    Handle
	DataAttrs map[string]string
	Placement Placement
}

// Host arranges containers on a grid.
type Host interface {
	// Place adds a container. When auto is true the host picks the position
	// and only the size of p is used.
	Place(c Container, p Placement, auto bool) (Handle, error)
	Remove(h Handle) error
	EnableMove(enabled bool)
	EnableResize(enabled bool)
	// OnChange registers fn to receive the full item list after every
	// structural change.
	OnChange(fn func([]Item))
	// Bounds returns the container's on-screen bounding box.
	Bounds(h Handle) (Rect, bool)
}
