package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/wolfeidau/widgethost/dashboard"
	"github.com/wolfeidau/widgethost/frame"
	"github.com/wolfeidau/widgethost/interaction"
	"github.com/wolfeidau/widgethost/protocol"
	"github.com/wolfeidau/widgethost/telemetry"
)

// handleFrame accepts the websocket a widget document opens once it has
// loaded. The socket becomes the frame's execution context, which fires the
// load hooks. The optional view query parameter names the document the page
// was loaded as; a page for a document the frame has navigated away from is
// rejected.
func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	telemetry.SetSurface(r, telemetry.SurfaceFrame)
	telemetry.SetEndpoint(r, "attach")
	telemetry.SetWidget(r, id)

	f, ok := s.runtime.Frame(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("%w: %s", dashboard.ErrNotFound, id))
		return
	}

	doc := f.Document()
	if v := r.URL.Query().Get("view"); v != "" {
		doc.View = frame.View(v)
	}

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.config.OriginPatterns})
	if err != nil {
		s.logger.Warn("accepting frame websocket", "widget", id, "error", err)
		return
	}

	ep, err := f.Attach(frame.NewWSConn(c), doc)
	if err != nil {
		s.logger.Info("rejected frame context", "widget", id, "document", doc.String(), "error", err)
		return
	}

	<-ep.Done()
}

// Event stream frame kinds.
const (
	streamEvent     = "event"
	streamBroadcast = "broadcast"
	streamMenu      = "menu"
	streamSelect    = "select"
)

// streamFrame is one message on the host page event stream. Outbound frames
// carry interaction events, runtime broadcasts and context menu state.
// Inbound frames carry pointer events from the host page and menu selections.
type streamFrame struct {
	Kind    string             `json:"kind"`
	Event   *interaction.Event `json:"event,omitempty"`
	Message json.RawMessage    `json:"message,omitempty"`
	Menu    *menuState         `json:"menu,omitempty"`
	Labels  []string           `json:"labels,omitempty"`
}

type menuState struct {
	Visible bool                   `json:"visible"`
	X       float64                `json:"x"`
	Y       float64                `json:"y"`
	Items   []interaction.MenuItem `json:"items,omitempty"`
}

func snapshotMenu(m *interaction.Menu) streamFrame {
	x, y := m.Position()
	return streamFrame{Kind: streamMenu, Menu: &menuState{
		Visible: m.Visible(),
		X:       x,
		Y:       y,
		Items:   m.Items(),
	}}
}

// handleEvents streams the host interaction layer to a dashboard page and
// accepts the page's own pointer events. Each connection owns a context
// menu attached to the layer.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	telemetry.SetSurface(r, telemetry.SurfaceEvents)
	telemetry.SetEndpoint(r, "events")

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.config.OriginPatterns})
	if err != nil {
		s.logger.Warn("accepting events websocket", "error", err)
		return
	}
	defer c.CloseNow() //nolint:errcheck

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	out := make(chan streamFrame, 64)
	push := func(f streamFrame) {
		select {
		case out <- f:
		default:
			s.logger.Warn("dropping event for slow host page", "kind", f.Kind)
		}
	}

	menu := interaction.NewMenu()
	detachMenu := s.runtime.AttachMenu(menu)
	defer detachMenu()

	// registered after the menu, so the menu state is current
	stopEvents := s.runtime.Events().Listen(func(e interaction.Event) {
		push(streamFrame{Kind: streamEvent, Event: &e})
		push(snapshotMenu(menu))
	})
	defer stopEvents()

	broadcasts, unsubscribe := s.runtime.Subscribe(16)
	defer unsubscribe()

	go func() {
		defer cancel()
		for {
			var in streamFrame
			if err := wsjson.Read(ctx, c, &in); err != nil {
				return
			}
			switch in.Kind {
			case streamEvent:
				if in.Event != nil {
					s.runtime.DispatchHostEvent(*in.Event)
				}
			case streamSelect:
				if err := menu.Select(in.Labels...); err != nil {
					s.logger.Debug("menu selection", "labels", in.Labels, "error", err)
				}
				push(snapshotMenu(menu))
			default:
				s.logger.Debug("ignoring event stream frame", "kind", in.Kind)
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = c.Close(websocket.StatusNormalClosure, "")
			return
		case f := <-out:
			if err := wsjson.Write(ctx, c, f); err != nil {
				return
			}
		case m, ok := <-broadcasts:
			if !ok {
				_ = c.Close(websocket.StatusGoingAway, "runtime closed")
				return
			}
			data, err := protocol.Encode(m)
			if err != nil {
				s.logger.Error("encoding broadcast", "type", m.MessageType(), "error", err)
				continue
			}
			if err := wsjson.Write(ctx, c, streamFrame{Kind: streamBroadcast, Message: data}); err != nil {
				return
			}
		}
	}
}
