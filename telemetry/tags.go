// Package telemetry provides request tagging for structured logging and metrics.
package telemetry

import (
	"context"
	"net/http"
)

type contextKey string

const (
	// requestTagsKey is the context key for request tags holder.
	requestTagsKey contextKey = "request_tags"
	// widgetKey is the context key for propagating a widget id to background goroutines.
	widgetKey contextKey = "widget"
)

// Surface identifies which part of the host a request was served by.
type Surface string

const (
	SurfaceAPI      Surface = "api"
	SurfaceFrame    Surface = "frame"
	SurfaceDocument Surface = "document"
	SurfaceEvents   Surface = "events"
	SurfaceInternal Surface = "internal"
	SurfaceUnknown  Surface = "unknown"
)

// RequestTags holds mutable request metadata that handlers can set for logging.
type RequestTags struct {
	Surface  Surface
	Endpoint string
	WidgetID string
}

// InjectTags creates a new request with an empty RequestTags in context.
// Call this in middleware before handlers run.
func InjectTags(r *http.Request) *http.Request {
	tags := &RequestTags{Surface: SurfaceUnknown}
	return r.WithContext(context.WithValue(r.Context(), requestTagsKey, tags))
}

// GetTags retrieves the request tags from context.
// Returns nil if not in a request context with logging middleware.
func GetTags(r *http.Request) *RequestTags {
	if tags, ok := r.Context().Value(requestTagsKey).(*RequestTags); ok {
		return tags
	}
	return nil
}

// SetSurface sets the surface tag for metrics and logging.
func SetSurface(r *http.Request, surface Surface) {
	if tags := GetTags(r); tags != nil {
		tags.Surface = surface
	}
}

// SetEndpoint sets the endpoint name for logging.
func SetEndpoint(r *http.Request, endpoint string) {
	if tags := GetTags(r); tags != nil {
		tags.Endpoint = endpoint
	}
}

// SetWidget records which widget a request acted on.
func SetWidget(r *http.Request, widgetID string) {
	if tags := GetTags(r); tags != nil {
		tags.WidgetID = widgetID
	}
}

// WidgetFromContext retrieves the widget id from a context.
// It checks both background contexts (set by WithWidgetContext) and
// request contexts (set by SetWidget via InjectTags).
func WidgetFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(widgetKey).(string); ok && id != "" {
		return id
	}
	if tags, ok := ctx.Value(requestTagsKey).(*RequestTags); ok && tags != nil {
		return tags.WidgetID
	}
	return ""
}

// WithWidgetContext returns a context carrying the widget id.
// Use this to propagate the widget into goroutines that outlive the request context.
func WithWidgetContext(ctx context.Context, widgetID string) context.Context {
	return context.WithValue(ctx, widgetKey, widgetID)
}
