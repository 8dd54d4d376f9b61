package api

import (
	"net/http"
	"time"

	"github.com/63Paulo/lan-party/internal/metrics"
	"github.com/63Paulo/lan-party/internal/model"
)

// handleStations returns per-station availability for a time window.
// GET /api/stations?from=RFC3339&to=RFC3339
func (s *HTTPServer) handleStations(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("station_availability")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	from, err := time.Parse(time.RFC3339, q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from; expected RFC3339 timestamp")
		return
	}
	to, err := time.Parse(time.RFC3339, q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to; expected RFC3339 timestamp")
		return
	}

	window := model.Interval{Start: from, End: to}
	if err := window.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	stations, err := s.engine.ListStationAvailability(r.Context(), window)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	response := map[string]any{"stations": stations}
	writeJSON(w, http.StatusOK, response)
}
