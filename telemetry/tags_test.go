package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTaggedRequest() *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/test", nil)
	return InjectTags(r)
}

func TestInjectTags_DefaultsSurfaceToUnknown(t *testing.T) {
	r := newTaggedRequest()
	tags := GetTags(r)
	require.NotNil(t, tags)
	require.Equal(t, SurfaceUnknown, tags.Surface)
	require.Empty(t, tags.Endpoint)
	require.Empty(t, tags.WidgetID)
}

func TestGetTags_NilWithoutInject(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/test", nil)
	require.Nil(t, GetTags(r))
}

func TestSetters(t *testing.T) {
	r := newTaggedRequest()
	SetSurface(r, SurfaceFrame)
	SetEndpoint(r, "attach")
	SetWidget(r, "clock-1")

	tags := GetTags(r)
	require.Equal(t, SurfaceFrame, tags.Surface)
	require.Equal(t, "attach", tags.Endpoint)
	require.Equal(t, "clock-1", tags.WidgetID)
}

func TestSetters_NoopWithoutInject(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/test", nil)
	// should not panic
	SetSurface(r, SurfaceAPI)
	SetEndpoint(r, "x")
	SetWidget(r, "y")
}

func TestWidgetFromContext(t *testing.T) {
	t.Run("background context", func(t *testing.T) {
		ctx := WithWidgetContext(context.Background(), "links-1")
		require.Equal(t, "links-1", WidgetFromContext(ctx))
	})

	t.Run("request context", func(t *testing.T) {
		r := newTaggedRequest()
		SetWidget(r, "clock-1")
		require.Equal(t, "clock-1", WidgetFromContext(r.Context()))
	})

	t.Run("empty", func(t *testing.T) {
		require.Empty(t, WidgetFromContext(context.Background()))
	})
}
