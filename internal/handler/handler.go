package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"commuterbliss/internal/board"
	"commuterbliss/internal/clock"
	"commuterbliss/internal/config"
	"commuterbliss/internal/device"
	"commuterbliss/internal/pipeline"
	"commuterbliss/internal/stations"
	"commuterbliss/internal/storage"
)

// FeasibilityChecker answers whether direct services link two stations.
type FeasibilityChecker interface {
	Feasible(ctx context.Context, home, work string, https bool) (board.Feasibility, error)
}

// Handler holds shared dependencies for all HTTP handlers.
type Handler struct {
	db        *storage.DB
	pipeline  *pipeline.Pipeline
	hub       *device.Hub
	feasible  FeasibilityChecker // nil when the schedule source has no board
	index     *stations.Index
	clock     *clock.Corrector
	defaults  config.Preferences
	logger    *slog.Logger
	keepalive time.Duration

	mu    sync.RWMutex
	prefs map[string]config.Preferences // device id -> settings
}

// Deps are the collaborators a Handler serves from.
type Deps struct {
	DB          *storage.DB
	Pipeline    *pipeline.Pipeline
	Hub         *device.Hub
	Feasibility FeasibilityChecker
	Index       *stations.Index
	Clock       *clock.Corrector
	Defaults    config.Preferences
}

// New creates a Handler.
func New(d Deps, logger *slog.Logger) *Handler {
	return &Handler{
		db:        d.DB,
		pipeline:  d.Pipeline,
		hub:       d.Hub,
		feasible:  d.Feasibility,
		index:     d.Index,
		clock:     d.Clock,
		defaults:  d.Defaults,
		logger:    logger,
		keepalive: 30 * time.Second,
		prefs:     make(map[string]config.Preferences),
	}
}

// preferencesFor returns the settings for a device: the last handed-over
// value, then the stored one, then the process defaults.
func (h *Handler) preferencesFor(ctx context.Context, deviceID string) config.Preferences {
	h.mu.RLock()
	p, ok := h.prefs[deviceID]
	h.mu.RUnlock()
	if ok {
		return p
	}

	p = h.defaults
	if h.db != nil {
		stored, found, err := h.db.LoadPreferences(ctx, deviceID)
		if err != nil {
			h.logger.Warn("loading device preferences", "device", deviceID, "error", err)
		} else if found {
			p = stored
		}
	}

	h.mu.Lock()
	if existing, ok := h.prefs[deviceID]; ok {
		p = existing
	} else {
		h.prefs[deviceID] = p
	}
	h.mu.Unlock()
	return p
}

func (h *Handler) setPreferences(deviceID string, p config.Preferences) {
	h.mu.Lock()
	h.prefs[deviceID] = p
	h.mu.Unlock()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
