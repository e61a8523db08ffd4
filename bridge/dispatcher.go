package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/wolfeidau/widgethost/frame"
	"github.com/wolfeidau/widgethost/protocol"
	"github.com/wolfeidau/widgethost/telemetry"
)

// Dispatcher is the single inbound sink for every frame. It attributes each
// message to the bridge whose frame's live execution context sent it.
type Dispatcher struct {
	logger *slog.Logger

	mu      sync.RWMutex
	bridges map[*frame.Frame]*Bridge
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		logger:  logger.With("component", "dispatcher"),
		bridges: make(map[*frame.Frame]*Bridge),
	}
}

// Register routes messages from b's frame to b.
func (d *Dispatcher) Register(b *Bridge) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bridges[b.frame] = b
}

// Unregister stops routing to b. Messages already in flight from its frame
// are dropped.
func (d *Dispatcher) Unregister(b *Bridge) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bridges[b.frame] == b {
		delete(d.bridges, b.frame)
	}
}

// Len returns the number of registered bridges.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.bridges)
}

// Sink returns the frame.Sink that feeds this dispatcher.
func (d *Dispatcher) Sink() frame.Sink {
	return d.Deliver
}

// Deliver decodes data and hands it to the owning bridge. Messages from an
// unknown frame, from a context its frame has navigated away from, or of an
// unknown type are dropped.
func (d *Dispatcher) Deliver(source *frame.Endpoint, data []byte) {
	if source == nil {
		return
	}
	f := source.Frame()

	d.mu.RLock()
	b, ok := d.bridges[f]
	d.mu.RUnlock()
	if !ok {
		d.logger.Debug("dropping message from unregistered frame", "endpoint", source.String())
		return
	}
	if !f.IsCurrent(source) {
		d.logger.Debug("dropping message from stale context", "endpoint", source.String())
		return
	}

	m, err := protocol.Decode(data)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownType) {
			d.logger.Debug("ignoring message", "widget", b.widgetID, "error", err)
		} else {
			d.logger.Warn("malformed message", "widget", b.widgetID, "error", err)
		}
		telemetry.RecordBridgeMessage(context.Background(), "invalid", "inbound", "dropped")
		return
	}

	b.deliver(context.Background(), m, source)
}
