// Package engine implements the reservation conflict engine: a
// single-pass validate-then-write pipeline over the reservation store.
// Every create/update is checked against the station's candidate set with
// the half-open interval evaluator before the store commits the write.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/63Paulo/lan-party/internal/events"
	"github.com/63Paulo/lan-party/internal/metrics"
	"github.com/63Paulo/lan-party/internal/model"
	"github.com/63Paulo/lan-party/internal/storage"
)

var (
	// ErrValidation is returned for malformed input reaching the engine.
	ErrValidation = errors.New("invalid reservation input")

	// ErrInvalidTransition is returned when a status update does not
	// follow pending -> confirmed -> cancelled.
	ErrInvalidTransition = errors.New("status transition not allowed")
)

// Publisher emits reservation lifecycle events.
type Publisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Rules holds the booking policy limits. Zero values disable a rule.
type Rules struct {
	MinAdvance       time.Duration
	MaxAdvance       time.Duration
	MaxActivePerUser int
}

// Engine orchestrates reservation operations.
type Engine struct {
	store   storage.ReservationStore
	catalog storage.CatalogStore
	bus     Publisher
	rules   Rules
	logger  *zerolog.Logger
}

// New constructs an Engine.
func New(store storage.ReservationStore, catalog storage.CatalogStore, bus Publisher, rules Rules, logger *zerolog.Logger) *Engine {
	return &Engine{
		store:   store,
		catalog: catalog,
		bus:     bus,
		rules:   rules,
		logger:  logger,
	}
}

// CreateInput carries the caller-supplied fields for a new reservation.
type CreateInput struct {
	StationID int64
	UserID    int64
	StartTime time.Time
	EndTime   time.Time
	Status    model.Status
}

// UpdateInput carries a partial update; nil fields retain prior values.
type UpdateInput struct {
	StationID *int64
	StartTime *time.Time
	EndTime   *time.Time
	Status    *model.Status
}

// DetailedReservation is a reservation with its related station and user
// attached.
type DetailedReservation struct {
	model.Reservation
	Station *model.Station `json:"station"`
	User    *model.User    `json:"user"`
}

// Create validates the candidate window, checks it for conflicts against
// the station's existing reservations and inserts the record. A conflict
// fails with storage.ErrConflict and guarantees zero mutation.
func (e *Engine) Create(ctx context.Context, in CreateInput) (*model.Reservation, error) {
	status := in.Status
	if status == "" {
		status = model.StatusPending
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, in.Status)
	}

	window := model.Interval{Start: in.StartTime, End: in.EndTime}
	if err := window.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := e.checkRules(ctx, in.UserID, window); err != nil {
		return nil, err
	}

	// Referential validity first, so a bad station id surfaces as a
	// reference error rather than an empty conflict set.
	if _, err := e.catalog.GetStation(ctx, in.StationID); err != nil {
		return nil, err
	}
	if _, err := e.catalog.GetUser(ctx, in.UserID); err != nil {
		return nil, err
	}

	existing, err := e.store.ListByStation(ctx, in.StationID)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	if model.HasConflict(window, model.ConflictCandidates(existing, 0)) {
		metrics.IncReservationConflict()
		return nil, storage.ErrConflict
	}

	created, err := e.store.Insert(ctx, &model.Reservation{
		StationID: in.StationID,
		UserID:    in.UserID,
		StartTime: in.StartTime,
		EndTime:   in.EndTime,
		Status:    status,
	})
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			metrics.IncReservationConflict()
		}
		return nil, err
	}

	metrics.IncReservationCreated(string(created.Status))
	if err := e.bus.PublishJSON(events.ReservationCreated, created); err != nil {
		e.logger.Error().Err(err).Int64("reservation_id", created.ID).Msg("failed to publish created event")
	}
	e.logger.Info().
		Int64("reservation_id", created.ID).
		Int64("station_id", created.StationID).
		Time("start", created.StartTime).
		Time("end", created.EndTime).
		Msg("reservation created")
	return created, nil
}

// Update merges the patch over the stored reservation, re-validates and
// re-runs the conflict check with the reservation's own id excluded.
func (e *Engine) Update(ctx context.Context, id int64, in UpdateInput) (*model.Reservation, error) {
	current, err := e.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == model.StatusCancelled {
		return nil, fmt.Errorf("%w: cancelled reservations cannot be edited", ErrInvalidTransition)
	}

	merged := *current
	if in.StationID != nil {
		merged.StationID = *in.StationID
	}
	if in.StartTime != nil {
		merged.StartTime = *in.StartTime
	}
	if in.EndTime != nil {
		merged.EndTime = *in.EndTime
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, *in.Status)
		}
		if !current.Status.CanTransitionTo(*in.Status) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, *in.Status)
		}
		merged.Status = *in.Status
	}

	window := merged.Interval()
	if err := window.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if merged.StationID != current.StationID {
		if _, err := e.catalog.GetStation(ctx, merged.StationID); err != nil {
			return nil, err
		}
	}

	existing, err := e.store.ListByStation(ctx, merged.StationID)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	if model.HasConflict(window, model.ConflictCandidates(existing, id)) {
		metrics.IncReservationConflict()
		return nil, storage.ErrConflict
	}

	updated, err := e.store.UpdateByID(ctx, id, &merged)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			metrics.IncReservationConflict()
		}
		return nil, err
	}

	eventType := events.ReservationUpdated
	if updated.Status == model.StatusCancelled && current.Status != model.StatusCancelled {
		eventType = events.ReservationCancelled
		metrics.IncReservationCancelled()
	}
	if err := e.bus.PublishJSON(eventType, updated); err != nil {
		e.logger.Error().Err(err).Int64("reservation_id", updated.ID).Msg("failed to publish update event")
	}
	e.logger.Info().
		Int64("reservation_id", updated.ID).
		Str("status", string(updated.Status)).
		Msg("reservation updated")
	return updated, nil
}

// Remove verifies the reservation exists and deletes it. Removal frees
// the slot, so no conflict check is involved.
func (e *Engine) Remove(ctx context.Context, id int64) error {
	reservation, err := e.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := e.store.DeleteByID(ctx, id); err != nil {
		return err
	}

	metrics.IncReservationCancelled()
	if err := e.bus.PublishJSON(events.ReservationRemoved, reservation); err != nil {
		e.logger.Error().Err(err).Int64("reservation_id", id).Msg("failed to publish removed event")
	}
	e.logger.Info().Int64("reservation_id", id).Msg("reservation removed")
	return nil
}

// Get returns a reservation with its station and user attached.
func (e *Engine) Get(ctx context.Context, id int64) (*DetailedReservation, error) {
	reservation, err := e.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	detailed := &DetailedReservation{Reservation: *reservation}
	if station, err := e.catalog.GetStation(ctx, reservation.StationID); err == nil {
		detailed.Station = station
	}
	if user, err := e.catalog.GetUser(ctx, reservation.UserID); err == nil {
		detailed.User = user
	}
	return detailed, nil
}

// MarkReminderSent flags a reservation as reminded.
func (e *Engine) MarkReminderSent(ctx context.Context, id int64) error {
	return e.store.MarkReminderSent(ctx, id)
}

func (e *Engine) checkRules(ctx context.Context, userID int64, window model.Interval) error {
	now := time.Now()
	if e.rules.MinAdvance > 0 && window.Start.Before(now.Add(e.rules.MinAdvance)) {
		return fmt.Errorf("%w: reservations require at least %s advance notice", ErrValidation, e.rules.MinAdvance)
	}
	if e.rules.MaxAdvance > 0 && window.Start.After(now.Add(e.rules.MaxAdvance)) {
		return fmt.Errorf("%w: reservations may be at most %s in advance", ErrValidation, e.rules.MaxAdvance)
	}
	if e.rules.MaxActivePerUser > 0 {
		active, err := e.catalog.CountActiveByUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("count active reservations: %w", err)
		}
		if active >= e.rules.MaxActivePerUser {
			return fmt.Errorf("%w: user already holds %d active reservations", ErrValidation, active)
		}
	}
	return nil
}
