// Package handlers implements HTTP request handlers for the reactor admin API.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dwsmith1983/riskreactor/internal/reactor"
	"github.com/dwsmith1983/riskreactor/pkg/types"
)

// Handlers contains all HTTP handler dependencies.
type Handlers struct {
	reactor *reactor.Reactor
	logger  *slog.Logger
}

// New creates a new Handlers instance.
func New(r *reactor.Reactor) *Handlers {
	return &Handlers{
		reactor: r,
		logger:  slog.Default(),
	}
}

// SetLogger overrides the default logger.
func (h *Handlers) SetLogger(l *slog.Logger) {
	if l != nil {
		h.logger = l
	}
}

// writeError logs the internal error and returns a sanitized JSON error to the client.
func (h *Handlers) writeError(w http.ResponseWriter, status int, msg string, err error) {
	if err != nil {
		h.logger.Error(msg, "error", err, "status", status)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// statusFor maps reactor errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrEncoding):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrMissingDependency), errors.Is(err, types.ErrMissingMetric):
		return http.StatusNotFound
	case errors.Is(err, types.ErrMissingConfiguration):
		return http.StatusUnprocessableEntity
	case errors.Is(err, types.ErrTransientStore):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// jobParams parses the kind and key query parameters.
func jobParams(r *http.Request) (types.CalculationJob, error) {
	q := r.URL.Query()
	return types.ParseJob(q.Get("kind"), q.Get("key"))
}

// asOfParam parses an optional RFC 3339 asOf query parameter.
func asOfParam(r *http.Request) (*time.Time, error) {
	raw := r.URL.Query().Get("asOf")
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// tenantParam returns the tenant query parameter or uuid.Nil.
func tenantParam(r *http.Request) (uuid.UUID, error) {
	raw := r.URL.Query().Get("tenant")
	if raw == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(raw)
}
