package dashboard

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/wolfeidau/widgethost/kv"
	"github.com/wolfeidau/widgethost/layout"
	"github.com/wolfeidau/widgethost/storage"
)

// Well-known keys of the dashboard's own state.
const (
	KeyActiveWidgets    = "activeWidgets"
	KeyWidgetLayout     = "widgetLayout"
	KeyWidgetAlignments = "widgetAlignments"
)

// LoadActiveWidgets reads the Active Widget Set. A missing key is an empty set.
func LoadActiveWidgets(ctx context.Context, s kv.Store) ([]Entry, error) {
	var entries []Entry
	if err := kv.GetJSON(ctx, s, KeyActiveWidgets, &entries); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading active widgets: %w", err)
	}
	return entries, nil
}

// LoadLayout reads the persisted placement of every widget.
func LoadLayout(ctx context.Context, s kv.Store) (map[string]layout.Placement, error) {
	return loadMap[layout.Placement](ctx, s, KeyWidgetLayout)
}

// LoadAlignments reads the persisted alignment of every widget.
func LoadAlignments(ctx context.Context, s kv.Store) (map[string]Alignment, error) {
	return loadMap[Alignment](ctx, s, KeyWidgetAlignments)
}

func loadMap[V any](ctx context.Context, s kv.Store, key string) (map[string]V, error) {
	m := make(map[string]V)
	if err := kv.GetJSON(ctx, s, key, &m); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return make(map[string]V), nil
		}
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	if m == nil {
		m = make(map[string]V)
	}
	return m, nil
}

func appendActive(ctx context.Context, s kv.Store, e Entry) error {
	entries, err := LoadActiveWidgets(ctx, s)
	if err != nil {
		return err
	}
	if slices.ContainsFunc(entries, func(x Entry) bool { return x.ID == e.ID }) {
		return nil
	}
	return kv.SetJSON(ctx, s, KeyActiveWidgets, append(entries, e))
}

func removeActive(ctx context.Context, s kv.Store, id string) error {
	entries, err := LoadActiveWidgets(ctx, s)
	if err != nil {
		return err
	}
	kept := slices.DeleteFunc(entries, func(x Entry) bool { return x.ID == id })
	if kept == nil {
		kept = []Entry{}
	}
	return kv.SetJSON(ctx, s, KeyActiveWidgets, kept)
}

func updateMap[V any](ctx context.Context, s kv.Store, key string, fn func(map[string]V) bool) error {
	m, err := loadMap[V](ctx, s, key)
	if err != nil {
		return err
	}
	if !fn(m) {
		return nil
	}
	return kv.SetJSON(ctx, s, key, m)
}

// PurgeWidget deletes everything persisted for a widget that is not live:
// its storage namespace, its Active Widget Set entry, and its layout and
// alignment entries. It returns the namespaced keys that were removed.
func PurgeWidget(ctx context.Context, s kv.Store, id string) ([]string, error) {
	if err := storage.ValidateWidgetID(id); err != nil {
		return nil, err
	}
	removed, err := kv.DeletePrefix(ctx, s, storage.Prefix(id))
	if err != nil {
		err = fmt.Errorf("deleting storage namespace: %w", err)
	}
	return removed, errors.Join(err, forgetWidget(ctx, s, id))
}

// forgetWidget removes id from the Active Widget Set and the layout and
// alignment maps. Every step is attempted; the errors are joined.
func forgetWidget(ctx context.Context, s kv.Store, id string) error {
	var errs []error
	if err := removeActive(ctx, s, id); err != nil {
		errs = append(errs, fmt.Errorf("updating active widgets: %w", err))
	}
	if err := updateMap(ctx, s, KeyWidgetLayout, func(m map[string]layout.Placement) bool {
		_, ok := m[id]
		delete(m, id)
		return ok
	}); err != nil {
		errs = append(errs, fmt.Errorf("updating widget layout: %w", err))
	}
	if err := updateMap(ctx, s, KeyWidgetAlignments, func(m map[string]Alignment) bool {
		_, ok := m[id]
		delete(m, id)
		return ok
	}); err != nil {
		errs = append(errs, fmt.Errorf("updating widget alignments: %w", err))
	}
	return errors.Join(errs...)
}
