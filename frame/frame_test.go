package frame

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/widgethost/protocol"
)

var (
	clockDisplay  = Document{Kind: "clock", View: ViewDisplay}
	clockSettings = Document{Kind: "clock", View: ViewSettings}
)

type received struct {
	source *Endpoint
	msg    protocol.Message
}

// recordingSink collects decoded inbound messages.
type recordingSink struct {
	ch chan received
}

func newRecordingSink() *recordingSink {
	return &recordingSink{ch: make(chan received, 16)}
}

func (s *recordingSink) sink(source *Endpoint, data []byte) {
	m, err := protocol.Decode(data)
	if err != nil {
		return
	}
	s.ch <- received{source: source, msg: m}
}

func (s *recordingSink) next(t *testing.T) received {
	t.Helper()
	select {
	case r := <-s.ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for inbound message")
		return received{}
	}
}

func TestDocument_Path(t *testing.T) {
	assert.Equal(t, "widgets/clock/index.html", clockDisplay.Path())
	assert.Equal(t, "widgets/clock/settings.html", clockSettings.Path())
	assert.Equal(t, "clock/settings", clockSettings.String())
}

func TestFrame_SendBeforeLoad(t *testing.T) {
	f := New("clock-1")
	err := f.Send(context.Background(), protocol.SettingsSaved{})
	require.ErrorIs(t, err, ErrNotLoaded)
	assert.Nil(t, f.Current())
}

func TestFrame_NavigateLoadsProgram(t *testing.T) {
	ctx := context.Background()
	sink := newRecordingSink()
	loader := NewPipeLoader(nil)

	got := make(chan protocol.Message, 1)
	ready := make(chan struct{})
	loader.Register(clockDisplay, func(ctx context.Context, port Port) {
		port.Listen(func(m protocol.Message) {
			got <- m
			_ = port.PostToHost(ctx, protocol.StorageGet{Key: "widget_clock-1_tz"})
		})
		close(ready)
	})

	f := New("clock-1", WithLoader(loader), WithSink(sink.sink))
	require.NoError(t, f.Navigate(clockDisplay))

	ep := f.Current()
	require.NotNil(t, ep)
	assert.Equal(t, clockDisplay, ep.Document())
	assert.Same(t, f, ep.Frame())

	<-ready
	require.NoError(t, f.Send(ctx, protocol.Init{WidgetID: "clock-1"}))

	select {
	case m := <-got:
		assert.Equal(t, protocol.Init{WidgetID: "clock-1"}, m)
	case <-time.After(2 * time.Second):
		t.Fatal("program never received INIT")
	}

	r := sink.next(t)
	assert.Same(t, ep, r.source)
	assert.Equal(t, protocol.StorageGet{Key: "widget_clock-1_tz"}, r.msg)
}

func TestFrame_NavigationDestroysContext(t *testing.T) {
	ctx := context.Background()
	loader := NewPipeLoader(nil)
	f := New("clock-1", WithLoader(loader))

	require.NoError(t, f.Navigate(clockDisplay))
	first := f.Current()
	require.NotNil(t, first)

	require.NoError(t, f.Navigate(clockSettings))
	second := f.Current()
	require.NotNil(t, second)
	assert.NotSame(t, first, second)
	assert.Equal(t, clockSettings, f.Document())

	select {
	case <-first.Done():
	case <-time.After(time.Second):
		t.Fatal("old context not destroyed")
	}
	require.ErrorIs(t, first.Send(ctx, protocol.SettingsSaved{}), ErrNotLoaded)
	assert.False(t, f.IsCurrent(first))
	assert.True(t, f.IsCurrent(second))
}

func TestFrame_AttachStaleDocument(t *testing.T) {
	f := New("clock-1")
	require.NoError(t, f.Navigate(clockSettings))

	conn, port := NewPipe(nil)
	_, err := f.Attach(conn, clockDisplay)
	require.ErrorIs(t, err, ErrStaleDocument)

	select {
	case <-port.Done():
	case <-time.After(time.Second):
		t.Fatal("stale connection left open")
	}
	assert.Nil(t, f.Current())
}

func TestFrame_OnLoadRunsForEveryLoad(t *testing.T) {
	loader := NewPipeLoader(nil)
	f := New("clock-1", WithLoader(loader))

	var mu sync.Mutex
	var loads []Document
	f.OnLoad(func(ep *Endpoint) {
		mu.Lock()
		defer mu.Unlock()
		loads = append(loads, ep.Document())
	})

	require.NoError(t, f.Navigate(clockDisplay))
	require.NoError(t, f.Navigate(clockSettings))
	require.NoError(t, f.Navigate(clockDisplay))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(loads) == 3
	}, time.Second, 10*time.Millisecond)
	mu.Lock()
	assert.ElementsMatch(t, []Document{clockDisplay, clockSettings, clockDisplay}, loads)
	mu.Unlock()
}

func TestFrame_WidgetCloseDetaches(t *testing.T) {
	f := New("clock-1")
	require.NoError(t, f.Navigate(clockDisplay))

	conn, port := NewPipe(nil)
	ep, err := f.Attach(conn, clockDisplay)
	require.NoError(t, err)

	require.NoError(t, port.Close())

	select {
	case <-ep.Done():
	case <-time.After(time.Second):
		t.Fatal("context not destroyed after widget side closed")
	}
	require.Eventually(t, func() bool { return f.Current() == nil }, time.Second, 10*time.Millisecond)
}

func TestFrame_Close(t *testing.T) {
	loader := NewPipeLoader(nil)
	f := New("clock-1", WithLoader(loader))
	require.NoError(t, f.Navigate(clockDisplay))
	ep := f.Current()

	require.NoError(t, f.Close())
	require.NoError(t, f.Close())

	<-ep.Done()
	require.ErrorIs(t, f.Navigate(clockDisplay), ErrClosed)

	conn, _ := NewPipe(nil)
	_, err := f.Attach(conn, clockDisplay)
	require.ErrorIs(t, err, ErrClosed)
}

func TestListeners_RemoveDuringEmit(t *testing.T) {
	var l listeners
	calls := 0

	var remove func()
	remove = l.add(func(protocol.Message) {
		calls++
		remove()
	})
	second := 0
	l.add(func(protocol.Message) { second++ })

	l.emit(protocol.SettingsSaved{})
	l.emit(protocol.SettingsSaved{})

	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, second)
}
