package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/63Paulo/lan-party/internal/model"
	"github.com/63Paulo/lan-party/internal/storage"
)

const reservationColumns = `id, code, station_id, user_id, start_time, end_time,
	status, reminder_sent, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (*model.Reservation, error) {
	var r model.Reservation
	var status string
	err := row.Scan(
		&r.ID, &r.Code, &r.StationID, &r.UserID, &r.StartTime, &r.EndTime,
		&status, &r.ReminderSent, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Status = model.Status(status)
	return &r, nil
}

func collectReservations(rows *sql.Rows) ([]model.Reservation, error) {
	defer rows.Close()

	var reservations []model.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, *r)
	}
	return reservations, rows.Err()
}

// Count returns the total number of reservation records.
func (db *DB) Count(ctx context.Context) (int64, error) {
	var count int64
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reservations").Scan(&count)
	return count, err
}

// ListByStation returns all reservations for a station, any status,
// ordered by start time. This is the conflict-candidate set.
func (db *DB) ListByStation(ctx context.Context, stationID int64) ([]model.Reservation, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations WHERE station_id = ?
		ORDER BY start_time`,
		stationID,
	)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

func listByStationTx(ctx context.Context, tx *sql.Tx, stationID int64) ([]model.Reservation, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations WHERE station_id = ?
		ORDER BY start_time`,
		stationID,
	)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

// FindByFilter returns the total matching count plus one page ordered by
// start_time descending.
func (db *DB) FindByFilter(ctx context.Context, f storage.Filter) (int64, []model.Reservation, error) {
	f = f.Normalize()

	where := ""
	args := []any{}
	if f.Status != "" {
		where = " WHERE status = ?"
		args = append(args, f.Status)
	}

	var total int64
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reservations"+where, args...).Scan(&total); err != nil {
		return 0, nil, err
	}

	args = append(args, f.Limit, f.Offset)
	rows, err := db.QueryContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations`+where+`
		ORDER BY start_time DESC
		LIMIT ? OFFSET ?`,
		args...,
	)
	if err != nil {
		return 0, nil, err
	}

	page, err := collectReservations(rows)
	if err != nil {
		return 0, nil, err
	}
	return total, page, nil
}

// FindByID returns a reservation by id.
func (db *DB) FindByID(ctx context.Context, id int64) (*model.Reservation, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations WHERE id = ?`,
		id,
	)
	r, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Insert creates a reservation after re-checking the no-overlap invariant
// against committed rows inside the same immediate transaction. A failed
// check leaves the table untouched.
func (db *DB) Insert(ctx context.Context, r *model.Reservation) (*model.Reservation, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := listByStationTx(ctx, tx, r.StationID)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	if model.HasConflict(r.Interval(), model.ConflictCandidates(existing, 0)) {
		return nil, storage.ErrConflict
	}

	now := time.Now().UTC()
	created := *r
	created.Code = uuid.NewString()
	created.CreatedAt = now
	created.UpdatedAt = now

	result, err := tx.ExecContext(ctx, `
		INSERT INTO reservations (
			code, station_id, user_id, start_time, end_time,
			status, reminder_sent, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		created.Code, created.StationID, created.UserID, created.StartTime,
		created.EndTime, string(created.Status), created.ReminderSent,
		created.CreatedAt, created.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: station %d / user %d",
				storage.ErrInvalidReference, created.StationID, created.UserID)
		}
		return nil, fmt.Errorf("insert reservation: %w", err)
	}

	created.ID, err = result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &created, nil
}

// UpdateByID rewrites a reservation's window, station and status. The
// conflict re-check excludes the reservation's own id so moving or
// resizing within its current slot never conflicts with itself.
func (db *DB) UpdateByID(ctx context.Context, id int64, r *model.Reservation) (*model.Reservation, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations WHERE id = ?`,
		id,
	)
	current, err := scanReservation(row)
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

	updated := *current
	updated.StationID = r.StationID
	updated.StartTime = r.StartTime
	updated.EndTime = r.EndTime
	updated.Status = r.Status
	updated.UpdatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		UPDATE reservations
		SET station_id = ?, start_time = ?, end_time = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		updated.StationID, updated.StartTime, updated.EndTime,
		string(updated.Status), updated.UpdatedAt, id,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: station %d", storage.ErrInvalidReference, updated.StationID)
		}
		return nil, fmt.Errorf("update reservation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &updated, nil
}

// DeleteByID removes a reservation record.
func (db *DB) DeleteByID(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx, "DELETE FROM reservations WHERE id = ?", id)
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
	rows, err := db.QueryContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations ORDER BY start_time`)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

// ListUpcoming returns confirmed reservations starting within the given
// window that have not been reminded yet.
func (db *DB) ListUpcoming(ctx context.Context, within time.Duration) ([]model.Reservation, error) {
	now := time.Now().UTC()
	rows, err := db.QueryContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE status = ? AND reminder_sent = 0 AND start_time >= ? AND start_time < ?
		ORDER BY start_time`,
		string(model.StatusConfirmed), now, now.Add(within),
	)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

// MarkReminderSent flags a reservation as reminded.
func (db *DB) MarkReminderSent(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx,
		"UPDATE reservations SET reminder_sent = 1, updated_at = ? WHERE id = ?",
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
