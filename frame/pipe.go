package frame

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/wolfeidau/widgethost/protocol"
)

const pipeBuffer = 64

var errPipeClosed = errors.New("pipe closed")

type pipe struct {
	toWidget chan []byte
	toHost   chan []byte
	done     chan struct{}
	once     sync.Once
}

func (p *pipe) close() {
	p.once.Do(func() { close(p.done) })
}

func send(ctx context.Context, p *pipe, ch chan<- []byte, data []byte) error {
	select {
	case <-p.done:
		return errPipeClosed
	default:
	}
	select {
	case ch <- data:
		return nil
	case <-p.done:
		return errPipeClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func receive(ctx context.Context, p *pipe, ch <-chan []byte) ([]byte, error) {
	select {
	case data := <-ch:
		return data, nil
	case <-p.done:
		return nil, errPipeClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type pipeConn struct {
	p *pipe
}

func (c *pipeConn) Send(ctx context.Context, data []byte) error {
	return send(ctx, c.p, c.p.toWidget, data)
}

func (c *pipeConn) Receive(ctx context.Context) ([]byte, error) {
	return receive(ctx, c.p, c.p.toHost)
}

func (c *pipeConn) Close() error {
	c.p.close()
	return nil
}

// PipePort is the widget side of an in-process execution context.
type PipePort struct {
	p         *pipe
	listeners listeners
	logger    *slog.Logger
}

// NewPipe returns a connected host Conn and widget Port pair.
func NewPipe(logger *slog.Logger) (Conn, *PipePort) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &pipe{
		toWidget: make(chan []byte, pipeBuffer),
		toHost:   make(chan []byte, pipeBuffer),
		done:     make(chan struct{}),
	}
	port := &PipePort{p: p, logger: logger}
	go port.readLoop()
	return &pipeConn{p: p}, port
}

// PostToHost sends m to the host.
func (pp *PipePort) PostToHost(ctx context.Context, m protocol.Message) error {
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	return send(ctx, pp.p, pp.p.toHost, data)
}

// Listen registers fn for every message the host sends.
func (pp *PipePort) Listen(fn func(protocol.Message)) func() {
	return pp.listeners.add(fn)
}

// Done is closed when the execution context is destroyed.
func (pp *PipePort) Done() <-chan struct{} {
	return pp.p.done
}

// Close destroys the execution context from the widget side.
func (pp *PipePort) Close() error {
	pp.p.close()
	return nil
}

func (pp *PipePort) readLoop() {
	for {
		data, err := receive(context.Background(), pp.p, pp.p.toWidget)
		if err != nil {
			return
		}
		m, err := protocol.Decode(data)
		if err != nil {
			pp.logger.Debug("ignoring host message", "error", err)
			continue
		}
		pp.listeners.emit(m)
	}
}

// Program is a widget document implemented in Go. Like a document's
// top-level script it runs before the load signal fires: it should register
// its listeners and return, leaving long-running work to goroutines. ctx
// ends when the execution context is destroyed.
type Program func(ctx context.Context, port Port)

// PipeLoader loads documents as in-process programs.
type PipeLoader struct {
	logger *slog.Logger

	mu       sync.RWMutex
	programs map[Document]Program
}

// NewPipeLoader creates an empty loader. Documents without a registered
// program still load; they simply never post anything.
func NewPipeLoader(logger *slog.Logger) *PipeLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &PipeLoader{
		logger:   logger,
		programs: make(map[Document]Program),
	}
}

// Register sets the program run when doc loads.
func (l *PipeLoader) Register(doc Document, p Program) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.programs[doc] = p
}

// Load runs doc's program against a fresh pipe, then attaches the pipe to f.
func (l *PipeLoader) Load(f *Frame, doc Document) {
	conn, port := NewPipe(l.logger)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-port.Done()
		cancel()
	}()

	l.mu.RLock()
	prog, ok := l.programs[doc]
	l.mu.RUnlock()
	if ok {
		prog(ctx, port)
	}

	if _, err := f.Attach(conn, doc); err != nil {
		l.logger.Warn("loading document", "frame", f.ID(), "document", doc.String(), "error", err)
	}
}

var (
	_ Port   = (*PipePort)(nil)
	_ Loader = (*PipeLoader)(nil)
)
