package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wolfeidau/widgethost/frame"
	"github.com/wolfeidau/widgethost/protocol"
)

// Client is a widget's view of its own storage partition. It runs inside the
// widget's execution context and talks to the Gateway through its port.
type Client struct {
	widgetID string
	prefix   string
	port     frame.Port
}

// NewClient creates a client for widgetID, usually taken from INIT.
func NewClient(widgetID string, port frame.Port) *Client {
	return &Client{
		widgetID: widgetID,
		prefix:   Prefix(widgetID),
		port:     port,
	}
}

// Prefix returns the namespace prefix applied to every key.
func (c *Client) Prefix() string {
	return c.prefix
}

// Get reads a logical key. It blocks until the matching STORAGE_GET_RESULT
// arrives or ctx ends; there is no internal timeout. found is false when the
// key has never been set. Replies arrive on the port's listener goroutine,
// so Get must not be called from inside a Listen callback.
func (c *Client) Get(ctx context.Context, key string) (value json.RawMessage, found bool, err error) {
	full := c.prefix + key

	result := make(chan protocol.StorageGetResult, 1)
	remove := c.port.Listen(func(m protocol.Message) {
		r, ok := m.(protocol.StorageGetResult)
		if !ok || r.Key != full {
			return
		}
		select {
		case result <- r:
		default:
		}
	})
	defer remove()

	if err := c.port.PostToHost(ctx, protocol.StorageGet{Key: full}); err != nil {
		return nil, false, fmt.Errorf("requesting %s: %w", key, err)
	}

	select {
	case r := <-result:
		return r.Value, r.Found(), nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// GetInto reads a logical key and decodes it into dst.
func (c *Client) GetInto(ctx context.Context, key string, dst any) (bool, error) {
	value, found, err := c.Get(ctx, key)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal(value, dst); err != nil {
		return true, fmt.Errorf("decoding %s: %w", key, err)
	}
	return true, nil
}

// Set writes a logical key. It returns once the request is posted, before
// the host has persisted it.
func (c *Client) Set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if err := c.port.PostToHost(ctx, protocol.StorageSet{Key: c.prefix + key, Value: data}); err != nil {
		return fmt.Errorf("storing %s: %w", key, err)
	}
	return nil
}

// List returns the logical keys beginning with logicalPrefix, in lexical order.
func (c *Client) List(ctx context.Context, logicalPrefix string) ([]string, error) {
	full := c.prefix + logicalPrefix

	result := make(chan protocol.StorageListResult, 1)
	remove := c.port.Listen(func(m protocol.Message) {
		r, ok := m.(protocol.StorageListResult)
		if !ok || r.Prefix != full {
			return
		}
		select {
		case result <- r:
		default:
		}
	})
	defer remove()

	if err := c.port.PostToHost(ctx, protocol.StorageList{Prefix: full}); err != nil {
		return nil, fmt.Errorf("listing %s: %w", logicalPrefix, err)
	}

	select {
	case r := <-result:
		keys := make([]string, 0, len(r.Keys))
		for _, k := range r.Keys {
			if lk, ok := LogicalKey(c.widgetID, k); ok {
				keys = append(keys, lk)
			}
		}
		return keys, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
