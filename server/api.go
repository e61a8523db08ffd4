package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/wolfeidau/widgethost/dashboard"
	"github.com/wolfeidau/widgethost/layout"
	"github.com/wolfeidau/widgethost/storage"
	"github.com/wolfeidau/widgethost/telemetry"
)

const maxBodyBytes = 1 << 20

type addWidgetRequest struct {
	Kind   string          `json:"kind"`
	Config json.RawMessage `json:"config,omitempty"`
}

type editingState struct {
	Enabled bool `json:"enabled"`
}

// apiRequest tags r for the API surface and returns the widget id in the
// path, if any.
func apiRequest(r *http.Request, endpoint string) string {
	telemetry.SetSurface(r, telemetry.SurfaceAPI)
	telemetry.SetEndpoint(r, endpoint)
	id := r.PathValue("id")
	if id != "" {
		telemetry.SetWidget(r, id)
	}
	return id
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decoding request body: %w", err)
	}
	return nil
}

// statusFor maps runtime errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, dashboard.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, dashboard.ErrUnknownKind), errors.Is(err, dashboard.ErrInvalidAlignment),
		errors.Is(err, storage.ErrInvalidWidgetID):
		return http.StatusBadRequest
	case errors.Is(err, dashboard.ErrExists), errors.Is(err, layout.ErrLocked):
		return http.StatusConflict
	case errors.Is(err, dashboard.ErrUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, dashboard.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) runtimeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("runtime request failed", "path", r.URL.Path, "error", err)
	}
	writeError(w, status, err)
}

func (s *Server) handleRegistry(w http.ResponseWriter, r *http.Request) {
	apiRequest(r, "registry")
	writeJSON(w, http.StatusOK, s.runtime.Registry().Kinds())
}

func (s *Server) handleListWidgets(w http.ResponseWriter, r *http.Request) {
	apiRequest(r, "list_widgets")
	writeJSON(w, http.StatusOK, s.runtime.Instances())
}

func (s *Server) handleGetWidget(w http.ResponseWriter, r *http.Request) {
	id := apiRequest(r, "get_widget")
	inst, ok := s.runtime.Instance(id)
	if !ok {
		s.runtimeError(w, r, fmt.Errorf("%w: %s", dashboard.ErrNotFound, id))
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (s *Server) handleAddWidget(w http.ResponseWriter, r *http.Request) {
	apiRequest(r, "add_widget")

	var req addWidgetRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	inst, err := s.runtime.AddWidget(r.Context(), req.Kind, req.Config)
	if err != nil {
		s.runtimeError(w, r, err)
		return
	}
	telemetry.SetWidget(r, inst.ID)
	writeJSON(w, http.StatusCreated, inst)
}

func (s *Server) handleRemoveWidget(w http.ResponseWriter, r *http.Request) {
	id := apiRequest(r, "remove_widget")
	if err := s.runtime.RemoveWidget(r.Context(), id); err != nil {
		s.runtimeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleOpenSettings(w http.ResponseWriter, r *http.Request) {
	id := apiRequest(r, "open_settings")
	s.respondInstance(w, r, id, s.runtime.OpenSettings(id))
}

func (s *Server) handleCloseSettings(w http.ResponseWriter, r *http.Request) {
	id := apiRequest(r, "close_settings")
	s.respondInstance(w, r, id, s.runtime.CloseSettings(id))
}

func (s *Server) handlePlacement(w http.ResponseWriter, r *http.Request) {
	id := apiRequest(r, "placement")

	var p layout.Placement
	if err := decodeBody(w, r, &p); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if _, err := s.runtime.UpdatePlacement(id, p); err != nil {
		s.runtimeError(w, r, err)
		return
	}
	s.respondInstance(w, r, id, nil)
}

func (s *Server) handleAlignment(w http.ResponseWriter, r *http.Request) {
	id := apiRequest(r, "alignment")

	var a dashboard.Alignment
	if err := decodeBody(w, r, &a); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.respondInstance(w, r, id, s.runtime.SetAlignment(r.Context(), id, a))
}

func (s *Server) handleEditing(w http.ResponseWriter, r *http.Request) {
	apiRequest(r, "editing")

	var req editingState
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.runtime.SetEditing(req.Enabled)
	writeJSON(w, http.StatusOK, editingState{Enabled: s.runtime.Editing()})
}

// respondInstance writes err, or the current snapshot of widget id.
func (s *Server) respondInstance(w http.ResponseWriter, r *http.Request, id string, err error) {
	if err != nil {
		s.runtimeError(w, r, err)
		return
	}
	inst, ok := s.runtime.Instance(id)
	if !ok {
		s.runtimeError(w, r, fmt.Errorf("%w: %s", dashboard.ErrNotFound, id))
		return
	}
	writeJSON(w, http.StatusOK, inst)
}
