// Package api provides HTTP handlers for the lobby API.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/containerd/errdefs"

	"github.com/ashureev/evo-lobby/internal/domain"
	"github.com/ashureev/evo-lobby/internal/game"
	"github.com/ashureev/evo-lobby/internal/replay"
)

// Handler provides common handler utilities.
type Handler struct {
	svc      *game.Service
	streamer *replay.Streamer
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(svc *game.Service, streamer *replay.Streamer) *Handler {
	return &Handler{
		svc:      svc,
		streamer: streamer,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// writeError maps a service error onto an HTTP status.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var rej *domain.Rejection
	switch {
	case errors.As(err, &rej):
		Error(w, http.StatusBadRequest, rej.Reason)
	case errdefs.IsNotFound(err):
		Error(w, http.StatusNotFound, err.Error())
	case errdefs.IsInvalidArgument(err), errdefs.IsFailedPrecondition(err):
		Error(w, http.StatusBadRequest, err.Error())
	case errdefs.IsConflict(err):
		Error(w, http.StatusConflict, "lobby is busy, try again")
	default:
		slog.Error("Request failed", "error", err, "path", r.URL.Path)
		Error(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		return domain.RejectInput("invalid JSON body")
	}
	return nil
}
