// Package api exposes the reservation engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/63Paulo/lan-party/internal/engine"
	"github.com/63Paulo/lan-party/internal/model"
	"github.com/63Paulo/lan-party/internal/storage"
)

// Engine is the subset of the reservation engine the API needs.
type Engine interface {
	Create(ctx context.Context, in engine.CreateInput) (*model.Reservation, error)
	Update(ctx context.Context, id int64, in engine.UpdateInput) (*model.Reservation, error)
	Remove(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*engine.DetailedReservation, error)
	List(ctx context.Context, filter storage.Filter) (*engine.ListResult, error)
	ListAll(ctx context.Context) ([]model.Reservation, error)
	ListStationAvailability(ctx context.Context, window model.Interval) ([]engine.StationAvailability, error)
}

// HTTPServer serves the reservation API.
type HTTPServer struct {
	engine Engine
	apiKey string
	log    *zerolog.Logger
	server *http.Server
}

// NewHTTPServer creates the API server. An empty apiKey disables auth.
func NewHTTPServer(port int, apiKey string, eng Engine, logger *zerolog.Logger) *HTTPServer {
	s := &HTTPServer{
		engine: eng,
		apiKey: apiKey,
		log:    logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/reservations", s.requireAPIKey(s.handleReservations))
	mux.HandleFunc("/api/reservations/", s.requireAPIKey(s.handleReservationByID))
	mux.HandleFunc("/api/reservations/all", s.requireAPIKey(s.handleListAll))
	mux.HandleFunc("/api/reservations/export", s.requireAPIKey(s.handleExport))
	mux.HandleFunc("/api/stations", s.requireAPIKey(s.handleStations))
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleHealth)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start runs the server and blocks until it stops.
func (s *HTTPServer) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("API server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// requireAPIKey rejects requests without a valid x-api-key header.
func (s *HTTPServer) requireAPIKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get("x-api-key") != s.apiKey {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

// writeEngineError maps engine and storage errors to HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, storage.ErrInvalidReference):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, engine.ErrValidation), errors.Is(err, engine.ErrInvalidTransition):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
