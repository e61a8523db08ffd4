// Package dashboard is the widget runtime: it creates widgets, places them
// on the layout host, bridges their isolated contexts to shared storage,
// switches them between display and settings, and persists the dashboard.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfeidau/widgethost/bridge"
	"github.com/wolfeidau/widgethost/frame"
	"github.com/wolfeidau/widgethost/interaction"
	"github.com/wolfeidau/widgethost/kv"
	"github.com/wolfeidau/widgethost/layout"
	"github.com/wolfeidau/widgethost/protocol"
	"github.com/wolfeidau/widgethost/registry"
	"github.com/wolfeidau/widgethost/storage"
	"github.com/wolfeidau/widgethost/telemetry"
)

var (
	// ErrUnknownKind is returned when a widget kind is not in the registry.
	ErrUnknownKind = errors.New("dashboard: unknown widget kind")

	// ErrNotFound is returned for an id that is not a live widget.
	ErrNotFound = errors.New("dashboard: widget not found")

	// ErrExists is returned when adding a widget whose id is already live.
	ErrExists = errors.New("dashboard: widget already exists")

	// ErrClosed is returned once the runtime has been closed.
	ErrClosed = errors.New("dashboard: runtime closed")

	// ErrUnsupported is returned when the layout host cannot perform a change.
	ErrUnsupported = errors.New("dashboard: not supported by layout host")

	// ErrInvalidAlignment is returned for an alignment outside the allowed values.
	ErrInvalidAlignment = errors.New("dashboard: invalid alignment")
)

// dataAttrWidgetID is the container data attribute the layout host echoes.
const dataAttrWidgetID = "widget-id"

// Mode is a widget's view state.
type Mode string

const (
	ModeDisplay  Mode = "display"
	ModeSettings Mode = "settings"
)

// Alignment positions a widget's content inside its container.
type Alignment struct {
	Vertical   string `json:"vertical"`
	Horizontal string `json:"horizontal"`
}

// Validate checks the alignment values.
func (a Alignment) Validate() error {
	switch a.Vertical {
	case "top", "center", "bottom":
	default:
		return fmt.Errorf("%w: vertical %q", ErrInvalidAlignment, a.Vertical)
	}
	switch a.Horizontal {
	case "left", "center", "right":
	default:
		return fmt.Errorf("%w: horizontal %q", ErrInvalidAlignment, a.Horizontal)
	}
	return nil
}

// Entry is one element of the persisted Active Widget Set. Config is the
// creation-time seed; widgets keep later changes in their own storage.
type Entry struct {
	ID     string          `json:"id"`
	Kind   string          `json:"kind"`
	Config json.RawMessage `json:"config"`
}

// Instance is a snapshot of a live widget.
type Instance struct {
	ID        string           `json:"id"`
	Kind      string           `json:"kind"`
	Config    json.RawMessage  `json:"config"`
	Mode      Mode             `json:"mode"`
	Document  frame.Document   `json:"document"`
	Placement layout.Placement `json:"placement"`
	Alignment *Alignment       `json:"alignment,omitempty"`
}

// Config holds runtime configuration.
type Config struct {
	// Store persists widget storage and dashboard state. Required.
	Store kv.Store

	// Registry of widget kinds. Default: registry.Builtin().
	Registry *registry.Registry

	// Layout arranges widget containers. Default: a 24 column layout.Grid.
	Layout layout.Host

	// Loader loads widget documents when frames navigate. Nil means
	// documents attach externally, for example over websockets.
	Loader frame.Loader

	// Events is the host interaction layer pointer events are propagated to.
	// Default: a new layer.
	Events *interaction.Layer

	// RetryDelay is how long to wait before retrying a message to a context
	// that is not loaded. Default: 100ms.
	RetryDelay time.Duration

	// Logger for the runtime
	Logger *slog.Logger
}

type widget struct {
	id     string
	kind   registry.Kind
	config json.RawMessage
	frame  *frame.Frame
	bridge *bridge.Bridge

	// guarded by Runtime.mu
	handle    layout.Handle
	placed    bool
	placement layout.Placement
	alignment *Alignment
	mode      Mode
}

// Runtime owns the set of live widgets. All state is reached through its
// methods.
type Runtime struct {
	cfg        Config
	store      kv.Store
	registry   *registry.Registry
	layout     layout.Host
	events     *interaction.Layer
	gateway    *storage.Gateway
	dispatcher *bridge.Dispatcher
	logger     *slog.Logger

	// persistMu serialises read-modify-write of the dashboard keys.
	persistMu sync.Mutex

	mu          sync.Mutex
	widgets     map[string]*widget
	order       []string
	editing     bool
	subscribers map[chan protocol.Message]struct{}
	closed      bool
}

// New creates a runtime.
func New(cfg Config) (*Runtime, error) {
	if cfg.Store == nil {
		return nil, errors.New("dashboard: store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Registry == nil {
		cfg.Registry = registry.Builtin()
	}
	if cfg.Layout == nil {
		cfg.Layout = layout.NewGrid(layout.GridConfig{})
	}
	if cfg.Events == nil {
		cfg.Events = interaction.NewLayer()
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 100 * time.Millisecond
	}

	r := &Runtime{
		cfg:         cfg,
		store:       cfg.Store,
		registry:    cfg.Registry,
		layout:      cfg.Layout,
		events:      cfg.Events,
		gateway:     storage.NewGateway(cfg.Store, cfg.Logger),
		dispatcher:  bridge.NewDispatcher(cfg.Logger),
		logger:      cfg.Logger.With("component", "runtime"),
		widgets:     make(map[string]*widget),
		subscribers: make(map[chan protocol.Message]struct{}),
	}
	r.layout.OnChange(r.onLayoutChange)
	r.layout.EnableMove(false)
	r.layout.EnableResize(false)
	return r, nil
}

// Registry returns the kind registry.
func (r *Runtime) Registry() *registry.Registry {
	return r.registry
}

// Events returns the host interaction layer.
func (r *Runtime) Events() *interaction.Layer {
	return r.events
}

// Layout returns the layout host.
func (r *Runtime) Layout() layout.Host {
	return r.layout
}

// Gateway returns the storage gateway serving widget requests.
func (r *Runtime) Gateway() *storage.Gateway {
	return r.gateway
}

// AddWidget creates a widget of kind and appends it to the Active Widget
// Set. A nil config uses the kind's default.
func (r *Runtime) AddWidget(ctx context.Context, kind string, config json.RawMessage) (Instance, error) {
	return r.addWidget(ctx, Entry{Kind: kind, Config: config}, true)
}

// RestoreAll recreates the widgets of the Active Widget Set in stored order
// without re-persisting them. Entries already live are skipped, as are
// entries that fail; both are logged. It returns the number restored.
func (r *Runtime) RestoreAll(ctx context.Context) (int, error) {
	entries, err := LoadActiveWidgets(ctx, r.store)
	if err != nil {
		r.logger.Error("reading active widgets, starting empty", "error", err)
		return 0, nil
	}

	restored := 0
	for _, e := range entries {
		if e.ID == "" {
			r.logger.Warn("skipping active widget without id", "kind", e.Kind)
			continue
		}
		if _, err := r.addWidget(ctx, e, false); err != nil {
			if errors.Is(err, ErrExists) {
				r.logger.Debug("widget already live", "widget", e.ID)
				continue
			}
			if errors.Is(err, ErrClosed) {
				return restored, err
			}
			r.logger.Error("restoring widget", "widget", e.ID, "kind", e.Kind, "error", err)
			continue
		}
		restored++
	}

	r.logger.Info("restored widgets", "count", restored, "stored", len(entries))
	return restored, nil
}

func (r *Runtime) addWidget(ctx context.Context, e Entry, persist bool) (Instance, error) {
	k, ok := r.registry.Lookup(e.Kind)
	if !ok {
		return Instance{}, fmt.Errorf("%w: %q", ErrUnknownKind, e.Kind)
	}
	if len(e.Config) == 0 || string(e.Config) == "null" {
		cfg, err := k.Config()
		if err != nil {
			return Instance{}, err
		}
		e.Config = cfg
	}
	if e.ID == "" {
		e.ID = newWidgetID(k.Name)
	}
	if err := storage.ValidateWidgetID(e.ID); err != nil {
		return Instance{}, err
	}

	placement, auto := r.savedPlacement(ctx, e.ID)

	w := &widget{
		id:        e.ID,
		kind:      k,
		config:    e.Config,
		mode:      ModeDisplay,
		alignment: r.savedAlignment(ctx, e.ID),
	}
	w.frame = frame.New(e.ID,
		frame.WithSink(r.dispatcher.Sink()),
		frame.WithLoader(r.cfg.Loader),
		frame.WithLogger(r.cfg.Logger),
	)
	w.bridge = bridge.New(e.ID, w.frame, r.gateway, r.cfg.Logger)
	w.bridge.RegisterHandler(protocol.TypeSettingsSaved, func(context.Context, protocol.Message, *frame.Endpoint) {
		r.settingsSaved(w.id)
	})
	w.bridge.RegisterHandler(protocol.TypeAddWidget, func(ctx context.Context, m protocol.Message, _ *frame.Endpoint) {
		if err := r.HandleBroadcast(ctx, m); err != nil {
			r.logger.Warn("widget requested add", "widget", w.id, "error", err)
		}
	})
	w.bridge.PropagateEvents(r.events, func() (layout.Rect, bool) {
		r.mu.Lock()
		h, placed := w.handle, w.placed
		r.mu.Unlock()
		if !placed {
			return layout.Rect{}, false
		}
		return r.layout.Bounds(h)
	})
	w.frame.OnLoad(func(ep *frame.Endpoint) {
		r.onLoad(w, ep)
	})

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = w.frame.Close()
		return Instance{}, ErrClosed
	}
	if _, exists := r.widgets[e.ID]; exists {
		r.mu.Unlock()
		_ = w.frame.Close()
		return Instance{}, fmt.Errorf("%w: %s", ErrExists, e.ID)
	}
	r.widgets[e.ID] = w
	r.order = append(r.order, e.ID)
	r.mu.Unlock()

	r.dispatcher.Register(w.bridge)

	handle, err := r.layout.Place(layout.Container{
		DataAttrs: map[string]string{dataAttrWidgetID: e.ID},
	}, placement, auto)
	if err != nil {
		r.discard(w)
		return Instance{}, fmt.Errorf("placing %s: %w", e.ID, err)
	}

	r.mu.Lock()
	w.handle = handle
	w.placed = true
	if !auto && w.placement == (layout.Placement{}) {
		w.placement = placement
	}
	r.mu.Unlock()

	if persist {
		r.persistMu.Lock()
		err := appendActive(ctx, r.store, e)
		r.persistMu.Unlock()
		if err != nil {
			r.logger.Error("persisting active widget", "widget", e.ID, "error", err)
		}
	}

	if err := w.frame.Navigate(k.DisplayDocument()); err != nil {
		r.logger.Warn("loading widget document", "widget", e.ID, "error", err)
	}

	r.logger.Info("widget added", "widget", e.ID, "kind", k.Name, "restored", !persist)
	telemetry.SetWidgetsLive(ctx, r.liveCount())

	inst, _ := r.Instance(e.ID)
	return inst, nil
}

// discard undoes a partially added widget.
func (r *Runtime) discard(w *widget) {
	r.dispatcher.Unregister(w.bridge)
	_ = w.frame.Close()
	r.mu.Lock()
	delete(r.widgets, w.id)
	r.order = slices.DeleteFunc(r.order, func(id string) bool { return id == w.id })
	r.mu.Unlock()
}

func (r *Runtime) savedPlacement(ctx context.Context, id string) (layout.Placement, bool) {
	saved, err := LoadLayout(ctx, r.store)
	if err != nil {
		r.logger.Warn("reading widget layout, using default placement", "widget", id, "error", err)
		return layout.Placement{W: layout.DefaultWidth, H: layout.DefaultHeight}, true
	}
	if p, ok := saved[id]; ok {
		return p, false
	}
	return layout.Placement{W: layout.DefaultWidth, H: layout.DefaultHeight}, true
}

func (r *Runtime) savedAlignment(ctx context.Context, id string) *Alignment {
	saved, err := LoadAlignments(ctx, r.store)
	if err != nil {
		r.logger.Warn("reading widget alignments", "widget", id, "error", err)
		return nil
	}
	if a, ok := saved[id]; ok {
		return &a
	}
	return nil
}

// onLoad runs the setup every freshly loaded context needs: INIT, event
// propagation and, in display mode, alignment.
func (r *Runtime) onLoad(w *widget, ep *frame.Endpoint) {
	ctx := telemetry.WithWidgetContext(context.Background(), w.id)

	r.mu.Lock()
	alignment := w.alignment
	r.mu.Unlock()

	r.sendWithRetry(ctx, w, "init", protocol.Init{Config: w.config, WidgetID: w.id})

	events := make([]string, 0, len(interaction.Forwarded))
	for _, e := range interaction.Forwarded {
		events = append(events, string(e))
	}
	r.sendWithRetry(ctx, w, "events", protocol.WireEvents{Events: events})

	if ep.Document().View == frame.ViewDisplay && alignment != nil {
		r.sendWithRetry(ctx, w, "alignment", protocol.SetAlignment{
			Vertical:   alignment.Vertical,
			Horizontal: alignment.Horizontal,
		})
	}
}

// sendWithRetry sends m to w's live context. A context that is not loaded
// gets one more attempt after RetryDelay; after that the step is abandoned.
func (r *Runtime) sendWithRetry(ctx context.Context, w *widget, step string, m protocol.Message) {
	err := w.bridge.SendMessage(ctx, m)
	if err == nil {
		return
	}
	if !errors.Is(err, frame.ErrNotLoaded) {
		r.logger.Warn("widget setup failed", "widget", w.id, "step", step, "error", err)
		return
	}

	r.logger.Warn("widget context not loaded, retrying", "widget", w.id, "step", step, "delay", r.cfg.RetryDelay)
	timer := time.NewTimer(r.cfg.RetryDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return
	}

	if err := w.bridge.SendMessage(ctx, m); err != nil {
		telemetry.RecordContextRetry(ctx, step, "failed")
		r.logger.Warn("widget setup abandoned", "widget", w.id, "step", step, "error", err)
		return
	}
	telemetry.RecordContextRetry(ctx, step, "recovered")
}

// OpenSettings switches a widget to its settings document. Kinds without a
// settings view are left untouched.
func (r *Runtime) OpenSettings(id string) error {
	r.mu.Lock()
	w, ok := r.widgets[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !w.kind.HasSettingsView {
		r.mu.Unlock()
		r.logger.Debug("widget has no settings view", "widget", id, "kind", w.kind.Name)
		return nil
	}
	if w.mode == ModeSettings {
		r.mu.Unlock()
		return nil
	}
	w.mode = ModeSettings
	r.mu.Unlock()

	r.logger.Info("opening widget settings", "widget", id)
	return w.frame.Navigate(w.kind.SettingsDocument())
}

// CloseSettings switches a widget back to its display document. Load setup
// runs again on the new context.
func (r *Runtime) CloseSettings(id string) error {
	r.mu.Lock()
	w, ok := r.widgets[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if w.mode != ModeSettings {
		r.mu.Unlock()
		return nil
	}
	w.mode = ModeDisplay
	r.mu.Unlock()

	r.logger.Info("closing widget settings", "widget", id)
	return w.frame.Navigate(w.kind.DisplayDocument())
}

func (r *Runtime) settingsSaved(id string) {
	if err := r.CloseSettings(id); err != nil {
		r.logger.Warn("closing settings after save", "widget", id, "error", err)
	}
}

// RemoveWidget detaches a widget and deletes everything persisted for it,
// then broadcasts WIDGET_REMOVED.
func (r *Runtime) RemoveWidget(ctx context.Context, id string) error {
	r.mu.Lock()
	w, ok := r.widgets[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(r.widgets, id)
	r.order = slices.DeleteFunc(r.order, func(v string) bool { return v == id })
	handle, placed := w.handle, w.placed
	r.mu.Unlock()

	if placed {
		if err := r.layout.Remove(handle); err != nil {
			r.logger.Warn("detaching widget from layout", "widget", id, "error", err)
		}
	}
	r.dispatcher.Unregister(w.bridge)
	_ = w.frame.Close()

	removed, err := r.gateway.DeleteNamespace(ctx, id)
	if err != nil {
		r.logger.Error("deleting widget storage", "widget", id, "error", err)
	}

	r.persistMu.Lock()
	err = forgetWidget(ctx, r.store, id)
	r.persistMu.Unlock()
	if err != nil {
		r.logger.Error("removing widget from dashboard state", "widget", id, "error", err)
	}

	r.logger.Info("widget removed", "widget", id, "keys_deleted", len(removed))
	telemetry.SetWidgetsLive(ctx, r.liveCount())
	r.broadcast(protocol.WidgetRemoved{WidgetID: id})
	return nil
}

// SetAlignment persists a widget's alignment and applies it to the live
// context when the widget is in display mode.
func (r *Runtime) SetAlignment(ctx context.Context, id string, a Alignment) error {
	if err := a.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	w, ok := r.widgets[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	w.alignment = &a
	mode := w.mode
	r.mu.Unlock()

	r.persistMu.Lock()
	err := updateMap(ctx, r.store, KeyWidgetAlignments, func(m map[string]Alignment) bool {
		m[id] = a
		return true
	})
	r.persistMu.Unlock()
	if err != nil {
		r.logger.Error("persisting widget alignment", "widget", id, "error", err)
	}

	if mode == ModeDisplay {
		r.sendWithRetry(ctx, w, "alignment", protocol.SetAlignment{Vertical: a.Vertical, Horizontal: a.Horizontal})
	}
	return nil
}

// placementUpdater is implemented by layout hosts that can apply a drag or
// resize programmatically.
type placementUpdater interface {
	Update(h layout.Handle, p layout.Placement) (layout.Placement, error)
}

// UpdatePlacement moves or resizes a widget through the layout host.
func (r *Runtime) UpdatePlacement(id string, p layout.Placement) (layout.Placement, error) {
	u, ok := r.layout.(placementUpdater)
	if !ok {
		return layout.Placement{}, ErrUnsupported
	}
	r.mu.Lock()
	w, ok := r.widgets[id]
	if !ok || !w.placed {
		r.mu.Unlock()
		return layout.Placement{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	h := w.handle
	r.mu.Unlock()

	return u.Update(h, p)
}

// onLayoutChange records the placement of every tracked widget and persists
// it. Items the runtime does not track are ignored.
func (r *Runtime) onLayoutChange(items []layout.Item) {
	updates := r.trackPlacements(items)
	if len(updates) == 0 {
		return
	}
	r.persistPlacements(context.Background(), updates)
}

type placementUpdate struct {
	w *widget
	p layout.Placement
}

func (r *Runtime) trackPlacements(items []layout.Item) map[string]placementUpdate {
	updates := make(map[string]placementUpdate)
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, it := range items {
		id := it.DataAttrs[dataAttrWidgetID]
		w, ok := r.widgets[id]
		if !ok {
			continue
		}
		w.placement = it.Placement
		updates[id] = placementUpdate{w: w, p: it.Placement}
	}
	return updates
}

// persistPlacements writes updates to widgetLayout. A widget removed since
// its placement was tracked is skipped so its entry is not written back
// after RemoveWidget cleared it.
func (r *Runtime) persistPlacements(ctx context.Context, updates map[string]placementUpdate) {
	r.persistMu.Lock()
	defer r.persistMu.Unlock()
	err := updateMap(ctx, r.store, KeyWidgetLayout, func(m map[string]layout.Placement) bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		changed := false
		for id, u := range updates {
			if r.widgets[id] != u.w {
				continue
			}
			if m[id] != u.p {
				m[id] = u.p
				changed = true
			}
		}
		return changed
	})
	if err != nil {
		r.logger.Error("persisting widget layout", "error", err)
	}
}

// SetEditing enables or disables moving and resizing on the layout host.
func (r *Runtime) SetEditing(enabled bool) {
	r.mu.Lock()
	r.editing = enabled
	r.mu.Unlock()
	r.layout.EnableMove(enabled)
	r.layout.EnableResize(enabled)
	r.logger.Debug("editing toggled", "enabled", enabled)
}

// ToggleEditing flips editing and returns the new state.
func (r *Runtime) ToggleEditing() bool {
	r.mu.Lock()
	enabled := !r.editing
	r.mu.Unlock()
	r.SetEditing(enabled)
	return enabled
}

// Editing reports whether editing is enabled.
func (r *Runtime) Editing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.editing
}

// Instances returns snapshots of the live widgets in creation order.
func (r *Runtime) Instances() []Instance {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Instance, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.snapshotLocked(r.widgets[id]))
	}
	return out
}

// Instance returns a snapshot of one live widget.
func (r *Runtime) Instance(id string) (Instance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.widgets[id]
	if !ok {
		return Instance{}, false
	}
	return r.snapshotLocked(w), true
}

// Frame returns a live widget's frame, used to attach external contexts.
func (r *Runtime) Frame(id string) (*frame.Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.widgets[id]
	if !ok {
		return nil, false
	}
	return w.frame, true
}

func (r *Runtime) snapshotLocked(w *widget) Instance {
	inst := Instance{
		ID:        w.id,
		Kind:      w.kind.Name,
		Config:    w.config,
		Mode:      w.mode,
		Placement: w.placement,
	}
	if w.frame != nil {
		inst.Document = w.frame.Document()
	}
	if w.alignment != nil {
		a := *w.alignment
		inst.Alignment = &a
	}
	return inst
}

func (r *Runtime) liveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.widgets)
}

// Subscribe returns a channel of broadcast messages such as WIDGET_REMOVED.
// Slow subscribers miss messages rather than block the runtime.
func (r *Runtime) Subscribe(buffer int) (<-chan protocol.Message, func()) {
	ch := make(chan protocol.Message, max(buffer, 1))
	r.mu.Lock()
	r.subscribers[ch] = struct{}{}
	r.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subscribers, ch)
			r.mu.Unlock()
		})
	}
}

func (r *Runtime) broadcast(m protocol.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for ch := range r.subscribers {
		select {
		case ch <- m:
		default:
			r.logger.Warn("dropping broadcast for slow subscriber", "type", m.MessageType())
		}
	}
}

// HandleBroadcast acts on a message posted to the host channel. ADD_WIDGET
// creates a widget of the named kind; other types are ignored.
func (r *Runtime) HandleBroadcast(ctx context.Context, m protocol.Message) error {
	switch msg := m.(type) {
	case protocol.AddWidget:
		_, err := r.AddWidget(ctx, msg.WidgetID, msg.Config)
		return err
	default:
		r.logger.Debug("ignoring broadcast", "type", m.MessageType())
		return nil
	}
}

// Close tears down every live context. Persisted state is kept.
func (r *Runtime) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	widgets := make([]*widget, 0, len(r.widgets))
	for _, id := range r.order {
		widgets = append(widgets, r.widgets[id])
	}
	for ch := range r.subscribers {
		delete(r.subscribers, ch)
		close(ch)
	}
	r.mu.Unlock()

	for _, w := range widgets {
		r.dispatcher.Unregister(w.bridge)
		_ = w.frame.Close()
	}
	return nil
}

func newWidgetID(kind string) string {
	return strings.ReplaceAll(kind, "_", "-") + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
