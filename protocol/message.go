// Package protocol defines the messages exchanged between the host and a
// widget's isolated execution context.
//
// Every message is a JSON object discriminated by its "type" field:
//
//	{"type":"STORAGE_GET","key":"widget_clock-1_timezone"}
//
// The set of message types is closed. Decode rejects unknown types with
// ErrUnknownType so callers can ignore them without dispatching.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// Type discriminates a message.
type Type string

const (
	TypeInit              Type = "INIT"
	TypeStorageGet        Type = "STORAGE_GET"
	TypeStorageGetResult  Type = "STORAGE_GET_RESULT"
	TypeStorageSet        Type = "STORAGE_SET"
	TypeStorageList       Type = "STORAGE_LIST"
	TypeStorageListResult Type = "STORAGE_LIST_RESULT"
	TypeSettingsSaved     Type = "SETTINGS_SAVED"
	TypeAddWidget         Type = "ADD_WIDGET"
	TypeWidgetRemoved     Type = "WIDGET_REMOVED"
	TypeSetAlignment      Type = "SET_ALIGNMENT"
	TypeWireEvents        Type = "WIRE_EVENTS"
	TypePointerEvent      Type = "POINTER_EVENT"
)

var (
	// ErrUnknownType is returned by Decode for a type outside the closed set.
	ErrUnknownType = errors.New("unknown message type")

	// ErrMalformed is returned by Decode when the payload is not a JSON object
	// with a string "type" field.
	ErrMalformed = errors.New("malformed message")
)

// Message is implemented by every message variant.
type Message interface {
	MessageType() Type
}

// Init is sent host→widget once the widget's document has loaded.
type Init struct {
	Config   json.RawMessage `json:"config,omitempty"`
	WidgetID string          `json:"widgetId"`
}

// StorageGet requests a fresh read of a namespaced key.
type StorageGet struct {
	Key string `json:"key"`
}

// StorageGetResult answers a StorageGet. Value is empty when the key is absent.
type StorageGetResult struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value,omitempty"`
}

// Found reports whether the key had a stored value.
func (m StorageGetResult) Found() bool {
	return len(m.Value) > 0
}

// StorageSet writes a namespaced key. There is no reply.
type StorageSet struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// StorageList requests every key under a namespaced prefix.
type StorageList struct {
	Prefix string `json:"prefix"`
}

// StorageListResult answers a StorageList with full keys in lexical order.
type StorageListResult struct {
	Prefix string   `json:"prefix"`
	Keys   []string `json:"keys"`
}

// SettingsSaved is sent by a settings document after it persisted its changes.
type SettingsSaved struct{}

// AddWidget asks the host to create a widget. WidgetID names the widget kind.
type AddWidget struct {
	WidgetID string          `json:"widgetId"`
	Config   json.RawMessage `json:"config,omitempty"`
}

// WidgetRemoved is broadcast after a widget and its storage were removed.
type WidgetRemoved struct {
	WidgetID string `json:"widgetId"`
}

// SetAlignment positions a widget's content inside its container.
type SetAlignment struct {
	Vertical   string `json:"vertical"`
	Horizontal string `json:"horizontal"`
}

// WireEvents tells a freshly loaded document which pointer events to forward.
type WireEvents struct {
	Events []string `json:"events"`
}

// PointerEvent is a pointer interaction observed inside the widget document,
// in document-local coordinates.
type PointerEvent struct {
	Event   string  `json:"event"`
	ClientX float64 `json:"clientX"`
	ClientY float64 `json:"clientY"`
	Button  int     `json:"button"`
}

func (Init) MessageType() Type              { return TypeInit }
func (StorageGet) MessageType() Type        { return TypeStorageGet }
func (StorageGetResult) MessageType() Type  { return TypeStorageGetResult }
func (StorageSet) MessageType() Type        { return TypeStorageSet }
func (StorageList) MessageType() Type       { return TypeStorageList }
func (StorageListResult) MessageType() Type { return TypeStorageListResult }
func (SettingsSaved) MessageType() Type     { return TypeSettingsSaved }
func (AddWidget) MessageType() Type         { return TypeAddWidget }
func (WidgetRemoved) MessageType() Type     { return TypeWidgetRemoved }
func (SetAlignment) MessageType() Type      { return TypeSetAlignment }
func (WireEvents) MessageType() Type        { return TypeWireEvents }
func (PointerEvent) MessageType() Type      { return TypePointerEvent }

// Encode marshals m with its type discriminator as the first field.
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("encoding message: %w", ErrMalformed)
	}
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", m.MessageType(), err)
	}
	typ, err := json.Marshal(m.MessageType())
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", m.MessageType(), err)
	}

	out := make([]byte, 0, len(body)+len(typ)+9)
	out = append(out, `{"type":`...)
	out = append(out, typ...)
	if len(body) > 2 {
		out = append(out, ',')
		out = append(out, body[1:]...)
	} else {
		out = append(out, '}')
	}
	return out, nil
}

// PeekType returns the type discriminator of an encoded message without
// decoding its payload.
func PeekType(data []byte) (Type, error) {
	if !gjson.ValidBytes(data) {
		return "", ErrMalformed
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return "", ErrMalformed
	}
	t := root.Get("type")
	if t.Type != gjson.String || t.Str == "" {
		return "", ErrMalformed
	}
	return Type(t.Str), nil
}

// Decode parses an encoded message into its concrete variant.
func Decode(data []byte) (Message, error) {
	t, err := PeekType(data)
	if err != nil {
		return nil, err
	}

	var m Message
	switch t {
	case TypeInit:
		m, err = decodeAs[Init](data)
	case TypeStorageGet:
		m, err = decodeAs[StorageGet](data)
	case TypeStorageGetResult:
		m, err = decodeAs[StorageGetResult](data)
	case TypeStorageSet:
		m, err = decodeAs[StorageSet](data)
	case TypeStorageList:
		m, err = decodeAs[StorageList](data)
	case TypeStorageListResult:
		m, err = decodeAs[StorageListResult](data)
	case TypeSettingsSaved:
		m = SettingsSaved{}
	case TypeAddWidget:
		m, err = decodeAs[AddWidget](data)
	case TypeWidgetRemoved:
		m, err = decodeAs[WidgetRemoved](data)
	case TypeSetAlignment:
		m, err = decodeAs[SetAlignment](data)
	case TypeWireEvents:
		m, err = decodeAs[WireEvents](data)
	case TypePointerEvent:
		m, err = decodeAs[PointerEvent](data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", t, err)
	}
	return m, nil
}

func decodeAs[T Message](data []byte) (Message, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
