// Package bridge connects the host to each widget's isolated execution
// context: outbound sends to the frame's live context, and inbound dispatch
// that routes storage traffic to the gateway before any registered handler.
package bridge

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/wolfeidau/widgethost/frame"
	"github.com/wolfeidau/widgethost/interaction"
	"github.com/wolfeidau/widgethost/layout"
	"github.com/wolfeidau/widgethost/protocol"
	"github.com/wolfeidau/widgethost/storage"
	"github.com/wolfeidau/widgethost/telemetry"
)

// HandlerFunc handles one inbound message. source is the execution context
// that sent it.
type HandlerFunc func(ctx context.Context, m protocol.Message, source *frame.Endpoint)

// Bridge is the host side of one widget's message channel.
type Bridge struct {
	widgetID string
	frame    *frame.Frame
	gateway  *storage.Gateway
	logger   *slog.Logger

	mu       sync.RWMutex
	handlers map[protocol.Type]HandlerFunc
	events   *interaction.Layer
	bounds   func() (layout.Rect, bool)
}

// New creates a bridge for widgetID's frame.
func New(widgetID string, f *frame.Frame, gateway *storage.Gateway, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		widgetID: widgetID,
		frame:    f,
		gateway:  gateway,
		logger:   logger.With("component", "bridge", "widget", widgetID),
		handlers: make(map[protocol.Type]HandlerFunc),
	}
}

// WidgetID returns the widget this bridge serves.
func (b *Bridge) WidgetID() string {
	return b.widgetID
}

// Frame returns the bridged frame.
func (b *Bridge) Frame() *frame.Frame {
	return b.frame
}

// SendMessage delivers m to the widget's live execution context.
func (b *Bridge) SendMessage(ctx context.Context, m protocol.Message) error {
	err := b.frame.Send(ctx, m)
	telemetry.RecordBridgeMessage(ctx, string(m.MessageType()), "outbound", sendOutcome(err))
	return err
}

// RegisterHandler sets the handler for a message type, replacing any
// previous one. Storage types never reach handlers.
func (b *Bridge) RegisterHandler(t protocol.Type, fn HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = fn
}

// PropagateEvents re-dispatches pointer events from the widget onto layer.
// bounds reports the container's on-screen box used to translate
// coordinates.
func (b *Bridge) PropagateEvents(layer *interaction.Layer, bounds func() (layout.Rect, bool)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = layer
	b.bounds = bounds
}

// deliver handles a message already attributed to this bridge.
func (b *Bridge) deliver(ctx context.Context, m protocol.Message, source *frame.Endpoint) {
	typ := string(m.MessageType())
	ctx = telemetry.WithWidgetContext(ctx, b.widgetID)

	switch req := m.(type) {
	case protocol.StorageGet:
		b.record(ctx, typ, b.gateway.HandleGet(ctx, req, b.widgetID, source))
		return
	case protocol.StorageSet:
		b.record(ctx, typ, b.gateway.HandleSet(ctx, req, b.widgetID))
		return
	case protocol.StorageList:
		b.record(ctx, typ, b.gateway.HandleList(ctx, req, b.widgetID, source))
		return
	case protocol.PointerEvent:
		if !slices.Contains(interaction.Forwarded, interaction.EventType(req.Event)) {
			b.logger.Debug("dropping pointer event", "event", req.Event)
			telemetry.RecordBridgeMessage(ctx, typ, "inbound", "dropped")
			return
		}
		if b.propagate(req) {
			telemetry.RecordBridgeMessage(ctx, typ, "inbound", "handled")
			return
		}
	}

	b.mu.RLock()
	fn, ok := b.handlers[m.MessageType()]
	b.mu.RUnlock()
	if !ok {
		b.logger.Debug("no handler for message", "type", typ)
		telemetry.RecordBridgeMessage(ctx, typ, "inbound", "unhandled")
		return
	}
	fn(ctx, m, source)
	telemetry.RecordBridgeMessage(ctx, typ, "inbound", "handled")
}

func (b *Bridge) propagate(ev protocol.PointerEvent) bool {
	b.mu.RLock()
	layer, bounds := b.events, b.bounds
	b.mu.RUnlock()
	if layer == nil {
		return false
	}

	var box layout.Rect
	if bounds != nil {
		if r, ok := bounds(); ok {
			box = r
		} else {
			b.logger.Warn("container bounds unavailable, event not translated")
		}
	}
	p := interaction.Translate(interaction.Point{X: ev.ClientX, Y: ev.ClientY}, box)
	layer.Dispatch(interaction.Event{
		Type:   interaction.EventType(ev.Event),
		X:      p.X,
		Y:      p.Y,
		Button: ev.Button,
		Target: b.widgetID,
	})
	return true
}

func (b *Bridge) record(ctx context.Context, typ string, err error) {
	outcome := "handled"
	switch {
	case errors.Is(err, storage.ErrNamespaceViolation):
		outcome = "rejected"
	case err != nil:
		outcome = "error"
	}
	telemetry.RecordBridgeMessage(ctx, typ, "inbound", outcome)
}

func sendOutcome(err error) string {
	switch {
	case err == nil:
		return "sent"
	case errors.Is(err, frame.ErrNotLoaded):
		return "not_loaded"
	default:
		return "error"
	}
}
