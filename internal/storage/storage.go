// Package storage defines the persistence contract for reservations and
// the catalog lookups the engine depends on. Implementations live in the
// sqlite and postgres subpackages; both close the check-then-act race by
// re-running the overlap check inside a single write transaction.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/63Paulo/lan-party/internal/model"
)

var (
	// ErrNotFound is returned when a referenced reservation does not exist.
	ErrNotFound = errors.New("reservation not found")

	// ErrConflict is returned when a reservation window overlaps an
	// existing reservation on the same station.
	ErrConflict = errors.New("station already reserved for this window")

	// ErrInvalidReference is returned when station_id or user_id does not
	// reference an existing catalog row.
	ErrInvalidReference = errors.New("unknown station or user")
)

// DefaultLimit is the page size used when a filter supplies none.
const DefaultLimit = 10

// Filter narrows and paginates reservation listings.
// An unrecognized Status means "no status filter".
type Filter struct {
	Status string
	Limit  int
	Offset int
}

// Normalize applies the documented defaults.
func (f Filter) Normalize() Filter {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if !model.Status(f.Status).Valid() {
		f.Status = ""
	}
	return f
}

// ReservationStore is the durable reservation record store.
//
// Insert and UpdateByID are conditional writes: they re-check the
// no-overlap invariant against committed rows inside their own
// transaction and fail with ErrConflict without mutating anything.
type ReservationStore interface {
	Count(ctx context.Context) (int64, error)
	ListByStation(ctx context.Context, stationID int64) ([]model.Reservation, error)
	FindByFilter(ctx context.Context, f Filter) (total int64, page []model.Reservation, err error)
	FindByID(ctx context.Context, id int64) (*model.Reservation, error)
	Insert(ctx context.Context, r *model.Reservation) (*model.Reservation, error)
	UpdateByID(ctx context.Context, id int64, r *model.Reservation) (*model.Reservation, error)
	DeleteByID(ctx context.Context, id int64) error
	ListAll(ctx context.Context) ([]model.Reservation, error)
	ListUpcoming(ctx context.Context, within time.Duration) ([]model.Reservation, error)
	MarkReminderSent(ctx context.Context, id int64) error
}

// CatalogStore provides lookups into the station and user catalogs.
// The engine uses it for referential validity and read-through joins only.
type CatalogStore interface {
	GetStation(ctx context.Context, id int64) (*model.Station, error)
	ListStations(ctx context.Context) ([]model.Station, error)
	GetUser(ctx context.Context, id int64) (*model.User, error)
	UpsertUser(ctx context.Context, u *model.User) (*model.User, error)
	CountActiveByUser(ctx context.Context, userID int64) (int, error)
}
