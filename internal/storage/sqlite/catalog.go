package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/63Paulo/lan-party/internal/model"
	"github.com/63Paulo/lan-party/internal/storage"
)

// GetStation returns a station by id.
func (db *DB) GetStation(ctx context.Context, id int64) (*model.Station, error) {
	var s model.Station
	err := db.QueryRowContext(ctx, `
		SELECT id, name, description, is_active, created_at, updated_at
		FROM stations WHERE id = ?`,
		id,
	).Scan(&s.ID, &s.Name, &s.Description, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrInvalidReference
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListStations returns all active stations ordered by name.
func (db *DB) ListStations(ctx context.Context) ([]model.Station, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, description, is_active, created_at, updated_at
		FROM stations WHERE is_active = 1 ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stations []model.Station
	for rows.Next() {
		var s model.Station
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.IsActive, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		stations = append(stations, s)
	}
	return stations, rows.Err()
}

// GetUser returns a user by id.
func (db *DB) GetUser(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	err := db.QueryRowContext(ctx, `
		SELECT id, nickname, email, created_at, updated_at
		FROM users WHERE id = ?`,
		id,
	).Scan(&u.ID, &u.Nickname, &u.Email, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrInvalidReference
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UpsertUser creates or refreshes a user keyed by nickname.
func (db *DB) UpsertUser(ctx context.Context, u *model.User) (*model.User, error) {
	now := time.Now().UTC()
	_, err := db.ExecContext(ctx, `
		INSERT INTO users (nickname, email, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(nickname) DO UPDATE SET
			email = excluded.email,
			updated_at = excluded.updated_at`,
		u.Nickname, u.Email, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}

	var saved model.User
	err = db.QueryRowContext(ctx, `
		SELECT id, nickname, email, created_at, updated_at
		FROM users WHERE nickname = ?`,
		u.Nickname,
	).Scan(&saved.ID, &saved.Nickname, &saved.Email, &saved.CreatedAt, &saved.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// CountActiveByUser returns the number of non-cancelled reservations a
// user currently holds that have not ended yet.
func (db *DB) CountActiveByUser(ctx context.Context, userID int64) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM reservations
		WHERE user_id = ? AND status != ? AND end_time > ?`,
		userID, string(model.StatusCancelled), time.Now().UTC(),
	).Scan(&count)
	return count, err
}

// SyncStations reconciles the station catalog with the configured list:
// configured stations are upserted by name, stations no longer configured
// are deactivated. Reservation history stays intact.
func (db *DB) SyncStations(ctx context.Context, stations []model.Station) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	names := make([]string, 0, len(stations))
	for _, s := range stations {
		if s.Name == "" {
			continue
		}
		names = append(names, s.Name)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO stations (name, description, is_active, created_at, updated_at)
			VALUES (?, ?, 1, ?, ?)
			ON CONFLICT(name) DO UPDATE SET
				description = excluded.description,
				is_active = 1,
				updated_at = excluded.updated_at`,
			s.Name, s.Description, now, now,
		)
		if err != nil {
			return fmt.Errorf("sync station %s: %w", s.Name, err)
		}
	}

	rows, err := tx.QueryContext(ctx, "SELECT id, name FROM stations WHERE is_active = 1")
	if err != nil {
		return err
	}
	type stationRow struct {
		id   int64
		name string
	}
	var active []stationRow
	for rows.Next() {
		var sr stationRow
		if err := rows.Scan(&sr.id, &sr.name); err != nil {
			rows.Close()
			return err
		}
		active = append(active, sr)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	configured := make(map[string]bool, len(names))
	for _, n := range names {
		configured[n] = true
	}
	for _, sr := range active {
		if configured[sr.name] {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE stations SET is_active = 0, updated_at = ? WHERE id = ?",
			now, sr.id,
		); err != nil {
			return fmt.Errorf("deactivate station %s: %w", sr.name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	db.logger.Info().Int("stations", len(names)).Msg("Station catalog synced")
	return nil
}
