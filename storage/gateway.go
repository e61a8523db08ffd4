package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wolfeidau/widgethost/kv"
	"github.com/wolfeidau/widgethost/protocol"
	"github.com/wolfeidau/widgethost/telemetry"
)

// Replier delivers a reply to the execution context a request came from.
type Replier interface {
	Send(ctx context.Context, m protocol.Message) error
}

// Gateway validates and executes storage requests from widget contexts.
// It holds no cache: every read goes to the store.
type Gateway struct {
	store  kv.Store
	logger *slog.Logger
}

// NewGateway creates a gateway over store.
func NewGateway(store kv.Store, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		store:  store,
		logger: logger.With("component", "storage_gateway"),
	}
}

// HandleGet reads req.Key and replies with STORAGE_GET_RESULT to reply only.
// A key outside widgetID's namespace is dropped without a reply. A failed
// read is logged and answered as absent.
func (g *Gateway) HandleGet(ctx context.Context, req protocol.StorageGet, widgetID string, reply Replier) error {
	if err := ValidateKey(widgetID, req.Key); err != nil {
		g.violation(ctx, "get", widgetID, req.Key, err)
		return err
	}

	result := protocol.StorageGetResult{Key: req.Key}
	value, err := g.store.Get(ctx, req.Key)
	switch {
	case err == nil:
		result.Value = value
	case errors.Is(err, kv.ErrNotFound):
	default:
		g.logger.Error("storage read failed, replying absent", "widget", widgetID, "key", req.Key, "error", err)
	}

	if err := reply.Send(ctx, result); err != nil {
		// the requesting context may have navigated away; its reply is orphaned
		g.logger.Debug("dropping storage reply", "widget", widgetID, "key", req.Key, "error", err)
	}
	return nil
}

// HandleSet writes req.Value under req.Key. The write completes before
// HandleSet returns but the widget is never notified.
func (g *Gateway) HandleSet(ctx context.Context, req protocol.StorageSet, widgetID string) error {
	if err := ValidateKey(widgetID, req.Key); err != nil {
		g.violation(ctx, "set", widgetID, req.Key, err)
		return err
	}
	if len(req.Value) == 0 {
		err := fmt.Errorf("storage set %q: missing value", req.Key)
		g.logger.Error("dropping storage write", "widget", widgetID, "key", req.Key, "error", err)
		return err
	}

	if err := g.store.Set(ctx, req.Key, req.Value); err != nil {
		g.logger.Error("storage write failed", "widget", widgetID, "key", req.Key, "error", err)
		return fmt.Errorf("writing %q: %w", req.Key, err)
	}
	return nil
}

// HandleList replies with every key under req.Prefix.
func (g *Gateway) HandleList(ctx context.Context, req protocol.StorageList, widgetID string, reply Replier) error {
	if err := ValidatePrefix(widgetID, req.Prefix); err != nil {
		g.violation(ctx, "list", widgetID, req.Prefix, err)
		return err
	}

	keys, err := g.store.ListKeysWithPrefix(ctx, req.Prefix)
	if err != nil {
		g.logger.Error("storage list failed, replying empty", "widget", widgetID, "prefix", req.Prefix, "error", err)
		keys = nil
	}
	if keys == nil {
		keys = []string{}
	}

	if err := reply.Send(ctx, protocol.StorageListResult{Prefix: req.Prefix, Keys: keys}); err != nil {
		g.logger.Debug("dropping storage list reply", "widget", widgetID, "prefix", req.Prefix, "error", err)
	}
	return nil
}

// ListKeysWithPrefix returns every stored key beginning with prefix.
func (g *Gateway) ListKeysWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	keys, err := g.store.ListKeysWithPrefix(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("listing keys with prefix %q: %w", prefix, err)
	}
	return keys, nil
}

// ListWidgetKeys returns the logical keys stored by one widget.
func (g *Gateway) ListWidgetKeys(ctx context.Context, widgetID string) ([]string, error) {
	keys, err := g.ListKeysWithPrefix(ctx, Prefix(widgetID))
	if err != nil {
		return nil, err
	}
	logical := make([]string, 0, len(keys))
	for _, k := range keys {
		if lk, ok := LogicalKey(widgetID, k); ok {
			logical = append(logical, lk)
		}
	}
	return logical, nil
}

// DeleteNamespace removes every key stored by widgetID and returns them.
func (g *Gateway) DeleteNamespace(ctx context.Context, widgetID string) ([]string, error) {
	if err := ValidateWidgetID(widgetID); err != nil {
		return nil, err
	}
	removed, err := kv.DeletePrefix(ctx, g.store, Prefix(widgetID))
	if err != nil {
		return nil, fmt.Errorf("deleting namespace of %s: %w", widgetID, err)
	}
	g.logger.Debug("deleted widget namespace", "widget", widgetID, "keys", len(removed))
	return removed, nil
}

func (g *Gateway) violation(ctx context.Context, op, widgetID, key string, err error) {
	telemetry.RecordNamespaceViolation(ctx, op)
	g.logger.Error("rejected storage request", "op", op, "widget", widgetID, "key", key, "error", err)
}
