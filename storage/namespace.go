// Package storage partitions the shared key-value store per widget.
//
// Every widget-private key has the form widget_<id>_<logicalKey>. The Gateway
// enforces that a widget only reads and writes keys under its own prefix; the
// Client is the widget-side facade that applies the prefix for it.
package storage

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrNamespaceViolation is returned when a key is outside the caller's namespace.
	ErrNamespaceViolation = errors.New("storage: key outside widget namespace")

	// ErrInvalidWidgetID is returned for a widget id that cannot scope a namespace.
	ErrInvalidWidgetID = errors.New("storage: invalid widget id")
)

// Widget ids must not contain the separator, otherwise widget_a_ would be a
// prefix of widget_a_b_'s keys.
var widgetIDPattern = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// ValidateWidgetID checks that id is non-empty and made of letters, digits
// and hyphens only.
func ValidateWidgetID(id string) error {
	if !widgetIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidWidgetID, id)
	}
	return nil
}

// Prefix returns the namespace prefix for a widget.
func Prefix(widgetID string) string {
	return "widget_" + widgetID + "_"
}

// Key returns the namespaced key for a widget's logical key.
func Key(widgetID, logicalKey string) string {
	return Prefix(widgetID) + logicalKey
}

// LogicalKey strips the widget's prefix from key. ok is false when key is
// not in the widget's namespace.
func LogicalKey(widgetID, key string) (string, bool) {
	return strings.CutPrefix(key, Prefix(widgetID))
}

// ValidateKey checks that key belongs to widgetID and names a non-empty
// logical key.
func ValidateKey(widgetID, key string) error {
	if err := ValidateWidgetID(widgetID); err != nil {
		return fmt.Errorf("%w: %w", ErrNamespaceViolation, err)
	}
	prefix := Prefix(widgetID)
	if !strings.HasPrefix(key, prefix) || len(key) <= len(prefix) {
		return fmt.Errorf("%w: %q not under %q", ErrNamespaceViolation, key, prefix)
	}
	return nil
}

// ValidatePrefix checks that a listing prefix stays inside widgetID's
// namespace. The bare namespace prefix itself is allowed.
func ValidatePrefix(widgetID, prefix string) error {
	if err := ValidateWidgetID(widgetID); err != nil {
		return fmt.Errorf("%w: %w", ErrNamespaceViolation, err)
	}
	if !strings.HasPrefix(prefix, Prefix(widgetID)) {
		return fmt.Errorf("%w: prefix %q not under %q", ErrNamespaceViolation, prefix, Prefix(widgetID))
	}
	return nil
}
