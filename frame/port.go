package frame

import (
	"context"
	"sync"

	"github.com/wolfeidau/widgethost/protocol"
)

// Port is the widget document's side of its execution context: it posts to
// the host and observes messages the host sends.
type Port interface {
	PostToHost(ctx context.Context, m protocol.Message) error
	Listen(fn func(protocol.Message)) (remove func())
}

// listeners fans a message out to a snapshot of registered callbacks, so a
// callback may remove itself while being invoked.
type listeners struct {
	mu   sync.Mutex
	next uint64
	fns  map[uint64]func(protocol.Message)
	ids  []uint64
}

func (l *listeners) add(fn func(protocol.Message)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[uint64]func(protocol.Message))
	}
	l.next++
	id := l.next
	l.fns[id] = fn
	l.ids = append(l.ids, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.fns, id)
			for i, v := range l.ids {
				if v == id {
					l.ids = append(l.ids[:i], l.ids[i+1:]...)
					break
				}
			}
		})
	}
}

func (l *listeners) emit(m protocol.Message) {
	l.mu.Lock()
	snapshot := make([]func(protocol.Message), 0, len(l.ids))
	for _, id := range l.ids {
		snapshot = append(snapshot, l.fns[id])
	}
	l.mu.Unlock()

	for _, fn := range snapshot {
		fn(m)
	}
}
