package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/63Paulo/lan-party/internal/engine"
	"github.com/63Paulo/lan-party/internal/metrics"
	"github.com/63Paulo/lan-party/internal/model"
	"github.com/63Paulo/lan-party/internal/report"
	"github.com/63Paulo/lan-party/internal/storage"
)

// CreateReservationRequest is the request body for POST /api/reservations.
type CreateReservationRequest struct {
	StationID int64     `json:"station_id"`
	UserID    int64     `json:"user_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Status    string    `json:"status,omitempty"`
}

// UpdateReservationRequest is the request body for PATCH /api/reservations/{id}.
// Omitted fields keep their current values.
type UpdateReservationRequest struct {
	StationID *int64     `json:"station_id,omitempty"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Status    *string    `json:"status,omitempty"`
}

// handleReservations dispatches POST (create) and GET (filtered list).
func (s *HTTPServer) handleReservations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateReservation(w, r)
	case http.MethodGet:
		s.handleListReservations(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) handleCreateReservation(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("create_reservation")

	var req CreateReservationRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	created, err := s.engine.Create(r.Context(), engine.CreateInput{
		StationID: req.StationID,
		UserID:    req.UserID,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Status:    model.Status(req.Status),
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// handleListReservations returns a filtered, paginated page of
// reservations, most recent start time first.
// GET /api/reservations?status=confirmed&limit=10&offset=0
func (s *HTTPServer) handleListReservations(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("list_reservations")

	q := r.URL.Query()
	filter := storage.Filter{Status: q.Get("status")}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		filter.Offset = n
	}

	result, err := s.engine.List(r.Context(), filter)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleReservationByID dispatches GET, PATCH and DELETE for a single
// reservation addressed by numeric id.
func (s *HTTPServer) handleReservationByID(w http.ResponseWriter, r *http.Request) {
	const prefix = "/api/reservations/"
	idStr := strings.TrimPrefix(r.URL.Path, prefix)
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid reservation id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetReservation(w, r, id)
	case http.MethodPatch:
		s.handleUpdateReservation(w, r, id)
	case http.MethodDelete:
		s.handleDeleteReservation(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) handleGetReservation(w http.ResponseWriter, r *http.Request, id int64) {
	metrics.IncHTTP("get_reservation")

	detailed, err := s.engine.Get(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detailed)
}

func (s *HTTPServer) handleUpdateReservation(w http.ResponseWriter, r *http.Request, id int64) {
	metrics.IncHTTP("update_reservation")

	var req UpdateReservationRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	in := engine.UpdateInput{
		StationID: req.StationID,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
	}
	if req.Status != nil {
		status := model.Status(*req.Status)
		in.Status = &status
	}

	updated, err := s.engine.Update(r.Context(), id, in)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *HTTPServer) handleDeleteReservation(w http.ResponseWriter, r *http.Request, id int64) {
	metrics.IncHTTP("delete_reservation")

	if err := s.engine.Remove(r.Context(), id); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleListAll returns every reservation in chronological order.
// GET /api/reservations/all
func (s *HTTPServer) handleListAll(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("list_all_reservations")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	reservations, err := s.engine.ListAll(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(reservations),
		"items": reservations,
	})
}

// handleExport streams every reservation as an xlsx workbook.
// GET /api/reservations/export
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("export_reservations")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	reservations, err := s.engine.ListAll(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="reservations.xlsx"`)
	if err := report.Write(w, reservations); err != nil {
		s.log.Error().Err(err).Msg("Failed to export reservations")
	}
}
