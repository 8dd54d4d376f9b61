package engine

import (
	"context"
	"fmt"

	"github.com/63Paulo/lan-party/internal/model"
	"github.com/63Paulo/lan-party/internal/storage"
)

// ListResult is one page of reservations plus the total match count.
type ListResult struct {
	Total int64               `json:"total"`
	Count int                 `json:"count"`
	Items []model.Reservation `json:"items"`
}

// List returns reservations filtered by status and paginated, most
// recent start time first.
func (e *Engine) List(ctx context.Context, f storage.Filter) (*ListResult, error) {
	total, page, err := e.store.FindByFilter(ctx, f)
	if err != nil {
		return nil, err
	}
	return &ListResult{Total: total, Count: len(page), Items: page}, nil
}

// ListAll returns every reservation in ascending start-time order,
// unpaginated, for collaborators needing a full in-order view.
func (e *Engine) ListAll(ctx context.Context) ([]model.Reservation, error) {
	return e.store.ListAll(ctx)
}

// StationAvailability pairs a station with whether a window is free.
type StationAvailability struct {
	Station   model.Station `json:"station"`
	Available bool          `json:"available"`
}

// ListStationAvailability reports, for each active station, whether the
// given window is free of conflicting reservations.
func (e *Engine) ListStationAvailability(ctx context.Context, window model.Interval) ([]StationAvailability, error) {
	if err := window.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	stations, err := e.catalog.ListStations(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]StationAvailability, 0, len(stations))
	for _, station := range stations {
		existing, err := e.store.ListByStation(ctx, station.ID)
		if err != nil {
			return nil, err
		}
		result = append(result, StationAvailability{
			Station:   station,
			Available: !model.HasConflict(window, model.ConflictCandidates(existing, 0)),
		})
	}
	return result, nil
}
