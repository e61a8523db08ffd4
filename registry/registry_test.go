package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/widgethost/frame"
)

func TestBuiltin(t *testing.T) {
	r := Builtin()

	kinds := r.Kinds()
	require.Len(t, kinds, 14)
	assert.Equal(t, "clock", kinds[0].Name)

	clock, ok := r.Lookup("clock")
	require.True(t, ok)
	assert.False(t, clock.HasSettingsView)
	cfg, err := clock.Config()
	require.NoError(t, err)
	assert.JSONEq(t, `{"timezone":"UTC"}`, string(cfg))

	links, ok := r.Lookup("links")
	require.True(t, ok)
	assert.True(t, links.HasSettingsView)
	assert.Equal(t, frame.Document{Kind: "links", View: frame.ViewDisplay}, links.DisplayDocument())
	assert.Equal(t, "widgets/links/settings.html", links.SettingsDocument().Path())

	date, _ := r.Lookup("date")
	cfg, err = date.Config()
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(cfg))

	_, ok = r.Lookup("nope")
	assert.False(t, ok)
}

func TestRegister_Validation(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	require.ErrorIs(t, r.Register(Kind{Name: "", DisplayName: "x"}), ErrInvalidKind)
	require.ErrorIs(t, r.Register(Kind{Name: "../etc", DisplayName: "x"}), ErrInvalidKind)
	require.ErrorIs(t, r.Register(Kind{Name: "Upper", DisplayName: "x"}), ErrInvalidKind)
	require.ErrorIs(t, r.Register(Kind{Name: "ok"}), ErrInvalidKind)
	require.NoError(t, r.Register(Kind{Name: "ok", DisplayName: "OK"}))

	_, err = New(Kind{Name: "bad name"})
	require.ErrorIs(t, err, ErrInvalidKind)
}

func TestLoad_MergesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "widgets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
kinds:
  - name: clock
    displayName: World Clock
    defaultConfig:
      timezone: Europe/London
      format:
        hour12: false
  - name: stocks
    displayName: Stocks
    hasSettingsView: true
`), 0o644))

	r := Builtin()
	require.NoError(t, r.Load(path))

	kinds := r.Kinds()
	require.Len(t, kinds, 15)
	assert.Equal(t, "clock", kinds[0].Name, "replaced kinds keep their position")
	assert.Equal(t, "stocks", kinds[14].Name)

	clock, _ := r.Lookup("clock")
	assert.Equal(t, "World Clock", clock.DisplayName)
	cfg, err := clock.Config()
	require.NoError(t, err)
	assert.JSONEq(t, `{"timezone":"Europe/London","format":{"hour12":false}}`, string(cfg))

	stocks, _ := r.Lookup("stocks")
	assert.True(t, stocks.HasSettingsView)
}

func TestLoad_RejectsInvalidFileAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "widgets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
kinds:
  - name: fine
    displayName: Fine
  - name: "Not Fine"
    displayName: Broken
`), 0o644))

	r := Builtin()
	require.ErrorIs(t, r.Load(path), ErrInvalidKind)
	_, ok := r.Lookup("fine")
	assert.False(t, ok)

	require.Error(t, r.Load(filepath.Join(t.TempDir(), "missing.yaml")))

	require.NoError(t, os.WriteFile(path, []byte("kinds: [ : "), 0o644))
	require.Error(t, r.Load(path))
}
