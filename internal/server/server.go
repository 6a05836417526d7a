package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"commuterbliss/internal/config"
	"commuterbliss/internal/handler"
)

// Server is the HTTP server for the companion.
type Server struct {
	mux    *http.ServeMux
	cfg    *config.Config
	logger *slog.Logger
}

// New creates a Server with all routes registered. metrics may be nil.
func New(cfg *config.Config, h *handler.Handler, metrics http.Handler, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	s := &Server{mux: mux, cfg: cfg, logger: logger}

	// Device
	mux.HandleFunc("GET /sse/device/{id}", h.SSEDevice)
	mux.HandleFunc("POST /device/{id}/update", h.Update)
	mux.HandleFunc("PUT /device/{id}/preferences", h.Preferences)

	// Settings page helpers
	mux.HandleFunc("GET /feasibility", h.Feasibility)

	// Pages
	mux.HandleFunc("GET /", h.Status)

	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
	return s
}

// Handler returns the routes wrapped in middleware.
func (s *Server) Handler() http.Handler {
	return withMiddleware(s.mux, s.logger, s.cfg.DeviceKey)
}

// ListenAndServe serves until ctx is cancelled, then drains open requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.logger.Info("server stopping")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
