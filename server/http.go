// Package server provides the HTTP surface of the widget host: the dashboard
// API, widget documents, and the websockets frames and host pages connect to.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfeidau/widgethost/dashboard"
	"github.com/wolfeidau/widgethost/telemetry"
)

// Config holds server configuration.
type Config struct {
	// Address to listen on (e.g., ":8080")
	Address string

	// Runtime is the dashboard runtime served. Required.
	Runtime *dashboard.Runtime

	// DocumentRoot is the directory holding widgets/<kind>/index.html and
	// settings.html. Empty disables document serving.
	DocumentRoot string

	// Stylesheets are injected into every widget document.
	// Default: /static/dashboard.css
	Stylesheets []string

	// ShimScript is the bridge script injected into every widget document.
	// Default: /static/bridge.js
	ShimScript string

	// OriginPatterns lists hosts allowed to open websockets cross-origin.
	OriginPatterns []string

	// AuthToken enables bearer token authentication when set.
	AuthToken string

	// Logger for the server
	Logger *slog.Logger
}

// Server is the HTTP server for the widget host.
type Server struct {
	config     Config
	httpServer *http.Server
	logger     *slog.Logger
	runtime    *dashboard.Runtime
	documents  *documents
}

// New creates a new server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Runtime == nil {
		return nil, errors.New("server: runtime is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Address == "" {
		cfg.Address = ":8080"
	}
	if len(cfg.Stylesheets) == 0 {
		cfg.Stylesheets = []string{"/static/dashboard.css"}
	}
	if cfg.ShimScript == "" {
		cfg.ShimScript = "/static/bridge.js"
	}

	s := &Server{
		config:  cfg,
		logger:  cfg.Logger,
		runtime: cfg.Runtime,
	}
	if cfg.DocumentRoot != "" {
		s.documents = newDocuments(cfg.DocumentRoot, cfg.Stylesheets, cfg.ShimScript)
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpServer = &http.Server{
		Addr:        cfg.Address,
		Handler:     s.loggingMiddleware(s.authMiddleware(mux)),
		ReadTimeout: 30 * time.Second,
		// websockets hold the connection open, so no WriteTimeout
		IdleTimeout: 60 * time.Second,
	}

	return s, nil
}

// Handler returns the root handler, including middleware.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// registerRoutes sets up the HTTP routes.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)

	// Prometheus metrics endpoint (returns 404 if not enabled)
	mux.Handle("GET /metrics", telemetry.PrometheusHandler())

	mux.HandleFunc("GET /api/registry", s.handleRegistry)
	mux.HandleFunc("GET /api/widgets", s.handleListWidgets)
	mux.HandleFunc("POST /api/widgets", s.handleAddWidget)
	mux.HandleFunc("GET /api/widgets/{id}", s.handleGetWidget)
	mux.HandleFunc("DELETE /api/widgets/{id}", s.handleRemoveWidget)
	mux.HandleFunc("POST /api/widgets/{id}/settings", s.handleOpenSettings)
	mux.HandleFunc("DELETE /api/widgets/{id}/settings", s.handleCloseSettings)
	mux.HandleFunc("PUT /api/widgets/{id}/placement", s.handlePlacement)
	mux.HandleFunc("PUT /api/widgets/{id}/alignment", s.handleAlignment)
	mux.HandleFunc("PUT /api/editing", s.handleEditing)

	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("GET /frames/{id}/ws", s.handleFrame)

	if s.documents != nil {
		mux.HandleFunc("GET /widgets/{kind}/{doc}", s.handleDocument)
	}
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	telemetry.SetSurface(r, telemetry.SurfaceInternal)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"widgets": len(s.runtime.Instances()),
	})
}

// loggingMiddleware logs HTTP requests with structured fields for analysis.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		// Inject request tags so handlers can set surface, endpoint and widget.
		r = telemetry.InjectTags(r)
		tags := telemetry.GetTags(r)

		// Wrap response writer to capture status and bytes
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		if tags.Surface == telemetry.SurfaceUnknown {
			tags.Surface = deriveSurface(r.URL.Path)
		}

		attrs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"surface", string(tags.Surface),
			"status", wrapped.status,
			"status_class", telemetry.StatusClass(wrapped.status),
			"bytes_sent", wrapped.bytesWritten,
			"duration_ms", duration.Milliseconds(),
			"duration", duration.String(),
			"remote_addr", r.RemoteAddr,
			"user_agent", r.UserAgent(),
			"http_version", fmt.Sprintf("%d.%d", r.ProtoMajor, r.ProtoMinor),
		}

		if tags.Endpoint != "" {
			attrs = append(attrs, "endpoint", tags.Endpoint)
		}
		if tags.WidgetID != "" {
			attrs = append(attrs, "widget", tags.WidgetID)
		}
		if ct := wrapped.Header().Get("Content-Type"); ct != "" {
			attrs = append(attrs, "content_type", ct)
		}

		s.logger.Info("http request", attrs...)

		telemetry.RecordHTTP(r.Context(), r, wrapped.status, wrapped.bytesWritten, duration)
	})
}

// Start starts the server.
func (s *Server) Start() error {
	s.logger.Info("starting server", "address", s.config.Address, "documents", s.config.DocumentRoot)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	return s.httpServer.Shutdown(ctx)
}

// Address returns the server's listen address.
func (s *Server) Address() string {
	return s.config.Address
}

// responseWriter wraps http.ResponseWriter to capture the status code and bytes written.
// It preserves http.Flusher and http.Hijacker interfaces for websocket upgrades.
type responseWriter struct {
	http.ResponseWriter
	status       int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

// Flush implements http.Flusher for streaming responses.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack implements http.Hijacker for connection upgrades.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, fmt.Errorf("hijacking not supported")
}

// Unwrap returns the underlying ResponseWriter.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// deriveSurface classifies a request path for requests no handler tagged.
func deriveSurface(path string) telemetry.Surface {
	switch {
	case path == "/health" || path == "/metrics":
		return telemetry.SurfaceInternal
	case path == "/api/events":
		return telemetry.SurfaceEvents
	case strings.HasPrefix(path, "/api/"):
		return telemetry.SurfaceAPI
	case strings.HasPrefix(path, "/frames/"):
		return telemetry.SurfaceFrame
	case strings.HasPrefix(path, "/widgets/"):
		return telemetry.SurfaceDocument
	default:
		return telemetry.SurfaceUnknown
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
