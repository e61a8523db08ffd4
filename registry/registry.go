// Package registry holds the table of widget kinds the dashboard can host.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/wolfeidau/widgethost/frame"
)

// ErrInvalidKind is returned when a kind definition fails validation.
var ErrInvalidKind = errors.New("registry: invalid kind")

var kindName = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Kind describes one widget implementation.
type Kind struct {
	Name            string         `yaml:"name" json:"name"`
	DisplayName     string         `yaml:"displayName" json:"displayName"`
	DefaultConfig   map[string]any `yaml:"defaultConfig" json:"defaultConfig"`
	HasSettingsView bool           `yaml:"hasSettingsView" json:"hasSettingsView"`
}

// DisplayDocument is the document shown on the dashboard.
func (k Kind) DisplayDocument() frame.Document {
	return frame.Document{Kind: k.Name, View: frame.ViewDisplay}
}

// SettingsDocument is the settings document. Only meaningful when
// HasSettingsView is set.
func (k Kind) SettingsDocument() frame.Document {
	return frame.Document{Kind: k.Name, View: frame.ViewSettings}
}

// Config returns the default config as JSON, "{}" when unset.
func (k Kind) Config() (json.RawMessage, error) {
	if len(k.DefaultConfig) == 0 {
		return json.RawMessage(`{}`), nil
	}
	data, err := json.Marshal(k.DefaultConfig)
	if err != nil {
		return nil, fmt.Errorf("encoding default config of %s: %w", k.Name, err)
	}
	return data, nil
}

func (k Kind) validate() error {
	if !kindName.MatchString(k.Name) {
		return fmt.Errorf("%w: name %q", ErrInvalidKind, k.Name)
	}
	if k.DisplayName == "" {
		return fmt.Errorf("%w: %s has no display name", ErrInvalidKind, k.Name)
	}
	if _, err := k.Config(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKind, err)
	}
	return nil
}

// Registry is a kind table safe for concurrent use. Kinds keep the order in
// which they were first registered.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]Kind
	order []string
}

// New creates a registry holding kinds.
func New(kinds ...Kind) (*Registry, error) {
	r := &Registry{kinds: make(map[string]Kind)}
	for _, k := range kinds {
		if err := r.Register(k); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Builtin returns a registry of the bundled widget kinds.
func Builtin() *Registry {
	r, err := New(builtinKinds()...)
	if err != nil {
		panic(err)
	}
	return r
}

func builtinKinds() []Kind {
	return []Kind{
		{Name: "clock", DisplayName: "Clock", DefaultConfig: map[string]any{"timezone": "UTC"}},
		{Name: "date", DisplayName: "Date"},
		{Name: "countdown", DisplayName: "Countdown"},
		{Name: "us-weather", DisplayName: "Weather", HasSettingsView: true},
		{Name: "links", DisplayName: "Links", HasSettingsView: true},
		{Name: "countdowns", DisplayName: "Countdowns", HasSettingsView: true},
		{Name: "photo-gallery", DisplayName: "Photo Gallery"},
		{Name: "github-heatmap", DisplayName: "Github Heatmap", HasSettingsView: true},
		{Name: "horoscope", DisplayName: "Horoscope", HasSettingsView: true},
		{Name: "lunar-phase", DisplayName: "Lunar Phase", HasSettingsView: true},
		{Name: "weather-forecast", DisplayName: "Weather Forecast"},
		{Name: "btc_usd", DisplayName: "BTC/USD"},
		{Name: "sunrise-sunset", DisplayName: "Sunrise/Sunset", HasSettingsView: true},
		{Name: "daily-counter", DisplayName: "Daily Counter"},
	}
}

// Register adds or replaces a kind.
func (r *Registry) Register(k Kind) error {
	if err := k.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.kinds[k.Name]; !ok {
		r.order = append(r.order, k.Name)
	}
	r.kinds[k.Name] = k
	return nil
}

// Lookup returns the kind registered under name.
func (r *Registry) Lookup(name string) (Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.kinds[name]
	return k, ok
}

// Kinds returns every kind in registration order.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Kind, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.kinds[name])
	}
	return out
}

type file struct {
	Kinds []Kind `yaml:"kinds"`
}

// Load merges the kinds defined in a YAML file into r. A kind with an
// existing name replaces it in place. Nothing is merged if any kind is
// invalid.
func (r *Registry) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading registry file: %w", err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parsing registry file %s: %w", path, err)
	}

	for _, k := range f.Kinds {
		if err := k.validate(); err != nil {
			return fmt.Errorf("registry file %s: %w", path, err)
		}
	}
	for _, k := range f.Kinds {
		if err := r.Register(k); err != nil {
			return err
		}
	}
	return nil
}
