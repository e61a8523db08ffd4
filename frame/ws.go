package frame

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/coder/websocket"

	"github.com/wolfeidau/widgethost/protocol"
)

// WSConn is the host side of an execution context carried over a websocket
// opened by the widget document.
type WSConn struct {
	c *websocket.Conn
}

// NewWSConn wraps an accepted websocket.
func NewWSConn(c *websocket.Conn) *WSConn {
	return &WSConn{c: c}
}

func (w *WSConn) Send(ctx context.Context, data []byte) error {
	return w.c.Write(ctx, websocket.MessageText, data)
}

func (w *WSConn) Receive(ctx context.Context) ([]byte, error) {
	typ, data, err := w.c.Read(ctx)
	if err != nil {
		return nil, err
	}
	if typ != websocket.MessageText {
		return nil, fmt.Errorf("unexpected websocket message type %v", typ)
	}
	return data, nil
}

func (w *WSConn) Close() error {
	return w.c.Close(websocket.StatusNormalClosure, "context destroyed")
}

// WSPort is the widget side of a websocket execution context.
type WSPort struct {
	c         *websocket.Conn
	listeners listeners
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

// DialPort connects a widget document to the host frame endpoint at url.
// listen functions are registered before the connection starts reading, so
// they see the INIT the host sends on load.
func DialPort(ctx context.Context, url string, logger *slog.Logger, listen ...func(protocol.Message)) (*WSPort, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing frame endpoint: %w", err)
	}
	pctx, cancel := context.WithCancel(context.Background())
	port := &WSPort{c: c, logger: logger, ctx: pctx, cancel: cancel}
	for _, fn := range listen {
		port.listeners.add(fn)
	}
	go port.readLoop()
	return port, nil
}

// PostToHost sends m to the host.
func (wp *WSPort) PostToHost(ctx context.Context, m protocol.Message) error {
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	return wp.c.Write(ctx, websocket.MessageText, data)
}

// Listen registers fn for every message the host sends.
func (wp *WSPort) Listen(fn func(protocol.Message)) func() {
	return wp.listeners.add(fn)
}

// Done is closed when the connection ends.
func (wp *WSPort) Done() <-chan struct{} {
	return wp.ctx.Done()
}

// Close disconnects the document.
func (wp *WSPort) Close() error {
	wp.cancel()
	return wp.c.Close(websocket.StatusNormalClosure, "unloaded")
}

func (wp *WSPort) readLoop() {
	defer wp.cancel()
	for {
		_, data, err := wp.c.Read(wp.ctx)
		if err != nil {
			return
		}
		m, err := protocol.Decode(data)
		if err != nil {
			wp.logger.Debug("ignoring host message", "error", err)
			continue
		}
		wp.listeners.emit(m)
	}
}

var (
	_ Conn = (*WSConn)(nil)
	_ Port = (*WSPort)(nil)
)
