// Package interaction is the host's global pointer-event layer. Events that
// happen inside a widget's isolated context are re-dispatched here in host
// coordinates, so host-level listeners such as the context menu see them as
// if they happened on the widget's container.
package interaction

import (
	"sync"

	"github.com/wolfeidau/widgethost/layout"
)

// EventType names a pointer event.
type EventType string

const (
	Click       EventType = "click"
	ContextMenu EventType = "contextmenu"
)

// Forwarded lists the event types widget documents are asked to forward.
var Forwarded = []EventType{Click, ContextMenu}

// Event is a host-level pointer event. Target is the id of the widget whose
// container received the event, or empty for the dashboard background.
type Event struct {
	Type   EventType `json:"type"`
	X      float64   `json:"x"`
	Y      float64   `json:"y"`
	Button int       `json:"button"`
	Target string    `json:"target,omitempty"`
}

// Point is a pixel coordinate.
type Point struct {
	X float64
	Y float64
}

// Translate converts a point local to an isolated context into host
// coordinates by adding the container's on-screen origin.
func Translate(local Point, bounds layout.Rect) Point {
	return Point{X: local.X + bounds.X, Y: local.Y + bounds.Y}
}

// Layer fans events out to listeners in registration order.
type Layer struct {
	mu        sync.Mutex
	next      uint64
	listeners []listener
}

type listener struct {
	id uint64
	fn func(Event)
}

// NewLayer creates an empty layer.
func NewLayer() *Layer {
	return &Layer{}
}

// Listen registers fn and returns a function that removes it.
func (l *Layer) Listen(fn func(Event)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next++
	id := l.next
	l.listeners = append(l.listeners, listener{id: id, fn: fn})
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		for i, ln := range l.listeners {
			if ln.id == id {
				l.listeners = append(l.listeners[:i], l.listeners[i+1:]...)
				return
			}
		}
	}
}

// Dispatch delivers e to every listener registered at the time of the call.
func (l *Layer) Dispatch(e Event) {
	l.mu.Lock()
	snapshot := make([]listener, len(l.listeners))
	copy(snapshot, l.listeners)
	l.mu.Unlock()

	for _, ln := range snapshot {
		ln.fn(e)
	}
}
