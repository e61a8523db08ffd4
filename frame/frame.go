// Package frame models a widget's isolated rendering context.
//
// A Frame owns navigation state: the document it currently points at. Each
// time a document finishes loading, a new Endpoint becomes the frame's
// execution context. Navigating destroys the current Endpoint; anything still
// holding it observes ErrNotLoaded on send.
package frame

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/wolfeidau/widgethost/protocol"
)

var (
	// ErrNotLoaded is returned when no live execution context can receive a message.
	ErrNotLoaded = errors.New("frame: execution context not loaded")

	// ErrClosed is returned by operations on a closed frame.
	ErrClosed = errors.New("frame: closed")

	// ErrStaleDocument is returned when a context attaches for a document the
	// frame has already navigated away from.
	ErrStaleDocument = errors.New("frame: stale document")
)

// View selects which of a widget kind's documents is shown.
type View string

const (
	ViewDisplay  View = "display"
	ViewSettings View = "settings"
)

// Document identifies a loadable widget document.
type Document struct {
	Kind string `json:"kind"`
	View View   `json:"view"`
}

// Path returns the document path relative to the widgets root.
func (d Document) Path() string {
	if d.View == ViewSettings {
		return "widgets/" + d.Kind + "/settings.html"
	}
	return "widgets/" + d.Kind + "/index.html"
}

func (d Document) String() string {
	return d.Kind + "/" + string(d.View)
}

// Conn is the host side of one execution context's message channel.
type Conn interface {
	Send(ctx context.Context, data []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// Sink receives every inbound message along with the endpoint it came from.
type Sink func(source *Endpoint, data []byte)

// Loader reacts to navigation. It is expected to eventually Attach a Conn
// for the document, which is the frame's load signal.
type Loader interface {
	Load(f *Frame, doc Document)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(f *Frame, doc Document)

func (fn LoaderFunc) Load(f *Frame, doc Document) { fn(f, doc) }

// Option configures a Frame.
type Option func(*Frame)

// WithSink sets the inbound message sink.
func WithSink(s Sink) Option {
	return func(f *Frame) {
		f.sink = s
	}
}

// WithLoader sets the loader invoked on navigation.
func WithLoader(l Loader) Option {
	return func(f *Frame) {
		f.loader = l
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Frame) {
		f.logger = logger
	}
}

// Frame is an isolated rendering context.
type Frame struct {
	id     string
	sink   Sink
	loader Loader
	logger *slog.Logger

	mu      sync.Mutex
	doc     Document
	current *Endpoint
	seq     uint64
	hooks   []func(*Endpoint)
	closed  bool
}

// New creates a frame with no document. Call Navigate to load one.
func New(id string, opts ...Option) *Frame {
	f := &Frame{
		id:     id,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With("frame", id)
	return f
}

// ID returns the frame identifier.
func (f *Frame) ID() string {
	return f.id
}

// Document returns the document the frame currently points at.
func (f *Frame) Document() Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.doc
}

// Current returns the live execution context, or nil if none is loaded.
func (f *Frame) Current() *Endpoint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// IsCurrent reports whether ep is the frame's live execution context.
func (f *Frame) IsCurrent(ep *Endpoint) bool {
	if ep == nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current == ep
}

// OnLoad registers fn to run each time a document finishes loading.
// Hooks run on their own goroutine, in registration order.
func (f *Frame) OnLoad(fn func(*Endpoint)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks = append(f.hooks, fn)
}

// Send delivers m to the live execution context.
func (f *Frame) Send(ctx context.Context, m protocol.Message) error {
	ep := f.Current()
	if ep == nil {
		return ErrNotLoaded
	}
	return ep.Send(ctx, m)
}

// Navigate points the frame at doc. The current execution context is
// destroyed immediately; the loader is asked to load the new document.
func (f *Frame) Navigate(doc Document) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	prev := f.current
	f.current = nil
	f.doc = doc
	loader := f.loader
	f.mu.Unlock()

	if prev != nil {
		prev.close()
	}

	f.logger.Debug("navigating", "document", doc.String())

	if loader != nil {
		loader.Load(f, doc)
	}
	return nil
}

// Attach makes conn the frame's execution context for doc and fires the
// load hooks. conn is closed if the frame has navigated elsewhere.
func (f *Frame) Attach(conn Conn, doc Document) (*Endpoint, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		_ = conn.Close()
		return nil, ErrClosed
	}
	if doc != f.doc {
		current := f.doc
		f.mu.Unlock()
		_ = conn.Close()
		return nil, fmt.Errorf("%w: attaching %s while at %s", ErrStaleDocument, doc, current)
	}
	prev := f.current
	f.seq++
	ep := newEndpoint(f, f.seq, doc, conn)
	f.current = ep
	hooks := slices.Clone(f.hooks)
	f.mu.Unlock()

	if prev != nil {
		prev.close()
	}

	f.logger.Debug("context loaded", "endpoint", ep.String())

	go ep.readLoop(f.sink, f.logger)
	if len(hooks) > 0 {
		go func() {
			for _, h := range hooks {
				h(ep)
			}
		}()
	}
	return ep, nil
}

// Close destroys the execution context. A closed frame cannot navigate.
func (f *Frame) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	prev := f.current
	f.current = nil
	f.mu.Unlock()

	if prev != nil {
		prev.close()
	}
	return nil
}

func (f *Frame) detach(ep *Endpoint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == ep {
		f.current = nil
	}
}

// Endpoint is one loaded execution context of a frame.
type Endpoint struct {
	frame *Frame
	seq   uint64
	doc   Document
	conn  Conn

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func newEndpoint(f *Frame, seq uint64, doc Document, conn Conn) *Endpoint {
	ctx, cancel := context.WithCancel(context.Background())
	return &Endpoint{
		frame:  f,
		seq:    seq,
		doc:    doc,
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Frame returns the owning frame.
func (e *Endpoint) Frame() *Frame {
	return e.frame
}

// Document returns the document this context loaded.
func (e *Endpoint) Document() Document {
	return e.doc
}

// Done is closed when the context is destroyed.
func (e *Endpoint) Done() <-chan struct{} {
	return e.ctx.Done()
}

func (e *Endpoint) String() string {
	return fmt.Sprintf("%s#%d", e.frame.id, e.seq)
}

// Send delivers m to this execution context. It returns ErrNotLoaded once the
// context has been destroyed.
func (e *Endpoint) Send(ctx context.Context, m protocol.Message) error {
	if e.ctx.Err() != nil {
		return ErrNotLoaded
	}
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	if err := e.conn.Send(ctx, data); err != nil {
		if e.ctx.Err() != nil {
			return ErrNotLoaded
		}
		return fmt.Errorf("sending %s to %s: %w", m.MessageType(), e, err)
	}
	return nil
}

func (e *Endpoint) close() {
	e.once.Do(func() {
		e.cancel()
		_ = e.conn.Close()
	})
}

func (e *Endpoint) readLoop(sink Sink, logger *slog.Logger) {
	defer func() {
		e.close()
		e.frame.detach(e)
	}()
	for {
		data, err := e.conn.Receive(e.ctx)
		if err != nil {
			if e.ctx.Err() == nil {
				logger.Debug("context receive ended", "endpoint", e.String(), "error", err)
			}
			return
		}
		if sink != nil {
			sink(e, data)
		}
	}
}
