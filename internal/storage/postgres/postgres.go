// Package postgres is the ReservationStore backend for deployments
// sharing a Postgres instance. The conflict-check critical section is
// scoped per station with pg_advisory_xact_lock, so concurrent writes to
// different stations do not serialize against each other.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/63Paulo/lan-party/internal/model"
	"github.com/63Paulo/lan-party/internal/storage"
)

const fkViolationCode = "23503"

// DB wraps the Postgres connection used by the reservation store.
type DB struct {
	*sqlx.DB
	logger *zerolog.Logger
}

// NewDB connects to Postgres and ensures the schema exists.
func NewDB(dsn string, logger *zerolog.Logger) (*DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	instance := &DB{DB: db, logger: logger}
	if err := instance.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Msg("Database initialized")
	return instance, nil
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS stations (
			id BIGSERIAL PRIMARY KEY,
			name TEXT UNIQUE NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			nickname TEXT UNIQUE NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS reservations (
			id BIGSERIAL PRIMARY KEY,
			code TEXT UNIQUE NOT NULL,
			station_id BIGINT NOT NULL REFERENCES stations(id),
			user_id BIGINT NOT NULL REFERENCES users(id),
			start_time TIMESTAMPTZ NOT NULL,
			end_time TIMESTAMPTZ NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			reminder_sent BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_station ON reservations(station_id, start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_status ON reservations(status)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_start ON reservations(start_time)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}

type reservationRow struct {
	ID           int64     `db:"id"`
	Code         string    `db:"code"`
	StationID    int64     `db:"station_id"`
	UserID       int64     `db:"user_id"`
	StartTime    time.Time `db:"start_time"`
	EndTime      time.Time `db:"end_time"`
	Status       string    `db:"status"`
	ReminderSent bool      `db:"reminder_sent"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (row reservationRow) toModel() model.Reservation {
	return model.Reservation{
		ID:           row.ID,
		Code:         row.Code,
		StationID:    row.StationID,
		UserID:       row.UserID,
		StartTime:    row.StartTime,
		EndTime:      row.EndTime,
		Status:       model.Status(row.Status),
		ReminderSent: row.ReminderSent,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}

func toModels(rows []reservationRow) []model.Reservation {
	if len(rows) == 0 {
		return nil
	}
	reservations := make([]model.Reservation, 0, len(rows))
	for _, row := range rows {
		reservations = append(reservations, row.toModel())
	}
	return reservations
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == fkViolationCode
}

// Count returns the total number of reservation records.
func (db *DB) Count(ctx context.Context) (int64, error) {
	var count int64
	err := db.GetContext(ctx, &count, "SELECT COUNT(*) FROM reservations")
	return count, err
}

// ListByStation returns all reservations for a station, any status.
func (db *DB) ListByStation(ctx context.Context, stationID int64) ([]model.Reservation, error) {
	var rows []reservationRow
	err := db.SelectContext(ctx, &rows,
		"SELECT * FROM reservations WHERE station_id = $1 ORDER BY start_time",
		stationID,
	)
	if err != nil {
		return nil, err
	}
	return toModels(rows), nil
}

// FindByFilter returns the total matching count plus one page ordered by
// start_time descending.
func (db *DB) FindByFilter(ctx context.Context, f storage.Filter) (int64, []model.Reservation, error) {
	f = f.Normalize()

	where := ""
	args := []any{}
	if f.Status != "" {
		where = " WHERE status = $1"
		args = append(args, f.Status)
	}

	var total int64
	if err := db.GetContext(ctx, &total, "SELECT COUNT(*) FROM reservations"+where, args...); err != nil {
		return 0, nil, err
	}

	query := fmt.Sprintf(
		"SELECT * FROM reservations%s ORDER BY start_time DESC LIMIT $%d OFFSET $%d",
		where, len(args)+1, len(args)+2,
	)
	args = append(args, f.Limit, f.Offset)

	var rows []reservationRow
	if err := db.SelectContext(ctx, &rows, query, args...); err != nil {
		return 0, nil, err
	}
	return total, toModels(rows), nil
}

// FindByID returns a reservation by id.
func (db *DB) FindByID(ctx context.Context, id int64) (*model.Reservation, error) {
	var row reservationRow
	err := db.GetContext(ctx, &row, "SELECT * FROM reservations WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r := row.toModel()
	return &r, nil
}

func lockStation(ctx context.Context, tx *sqlx.Tx, stationID int64) error {
	_, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", stationID)
	return err
}

func listByStationTx(ctx context.Context, tx *sqlx.Tx, stationID int64) ([]model.Reservation, error) {
	var rows []reservationRow
	err := tx.SelectContext(ctx, &rows,
		"SELECT * FROM reservations WHERE station_id = $1 ORDER BY start_time",
		stationID,
	)
	if err != nil {
		return nil, err
	}
	return toModels(rows), nil
}

// Insert creates a reservation. The per-station advisory lock holds for
// the duration of the transaction, serializing the candidate read and the
// insert against concurrent writers for the same station.
func (db *DB) Insert(ctx context.Context, r *model.Reservation) (*model.Reservation, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockStation(ctx, tx, r.StationID); err != nil {
		return nil, fmt.Errorf("lock station: %w", err)
	}

	existing, err := listByStationTx(ctx, tx, r.StationID)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	if model.HasConflict(r.Interval(), model.ConflictCandidates(existing, 0)) {
		return nil, storage.ErrConflict
	}

	now := time.Now().UTC()
	var row reservationRow
	err = tx.GetContext(ctx, &row, `
		INSERT INTO reservations (
			code, station_id, user_id, start_time, end_time,
			status, reminder_sent, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7, $7)
		RETURNING *`,
		uuid.NewString(), r.StationID, r.UserID, r.StartTime, r.EndTime,
		string(r.Status), now,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: station %d / user %d",
				storage.ErrInvalidReference, r.StationID, r.UserID)
		}
		return nil, fmt.Errorf("insert reservation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	created := row.toModel()
	return &created, nil
}

// UpdateByID rewrites a reservation's window, station and status with the
// reservation's own id excluded from the conflict re-check.
func (db *DB) UpdateByID(ctx context.Context, id int64, r *model.Reservation) (*model.Reservation, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockStation(ctx, tx, r.StationID); err != nil {
		return nil, fmt.Errorf("lock station: %w", err)
	}

	var current reservationRow
	err = tx.GetContext(ctx, &current, "SELECT * FROM reservations WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load reservation: %w", err)
	}

	existing, err := listByStationTx(ctx, tx, r.StationID)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	if model.HasConflict(r.Interval(), model.ConflictCandidates(existing, id)) {
		return nil, storage.ErrConflict
	}

	var row reservationRow
	err = tx.GetContext(ctx, &row, `
		UPDATE reservations
		SET station_id = $1, start_time = $2, end_time = $3, status = $4, updated_at = $5
		WHERE id = $6
		RETURNING *`,
		r.StationID, r.StartTime, r.EndTime, string(r.Status), time.Now().UTC(), id,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: station %d", storage.ErrInvalidReference, r.StationID)
		}
		return nil, fmt.Errorf("update reservation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	updated := row.toModel()
	return &updated, nil
}

// DeleteByID removes a reservation record.
func (db *DB) DeleteByID(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx, "DELETE FROM reservations WHERE id = $1", id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListAll returns every reservation in ascending start-time order.
func (db *DB) ListAll(ctx context.Context) ([]model.Reservation, error) {
	var rows []reservationRow
	if err := db.SelectContext(ctx, &rows, "SELECT * FROM reservations ORDER BY start_time"); err != nil {
		return nil, err
	}
	return toModels(rows), nil
}

// ListUpcoming returns confirmed, un-reminded reservations starting
// within the given window.
func (db *DB) ListUpcoming(ctx context.Context, within time.Duration) ([]model.Reservation, error) {
	now := time.Now().UTC()
	var rows []reservationRow
	err := db.SelectContext(ctx, &rows, `
		SELECT * FROM reservations
		WHERE status = $1 AND reminder_sent = FALSE AND start_time >= $2 AND start_time < $3
		ORDER BY start_time`,
		string(model.StatusConfirmed), now, now.Add(within),
	)
	if err != nil {
		return nil, err
	}
	return toModels(rows), nil
}

// MarkReminderSent flags a reservation as reminded.
func (db *DB) MarkReminderSent(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx,
		"UPDATE reservations SET reminder_sent = TRUE, updated_at = $1 WHERE id = $2",
		time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}
