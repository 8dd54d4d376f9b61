package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/63Paulo/lan-party/internal/model"
	"github.com/63Paulo/lan-party/internal/storage"
)

type stationRow struct {
	ID          int64     `db:"id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	IsActive    bool      `db:"is_active"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (row stationRow) toModel() model.Station {
	return model.Station{
		ID:          row.ID,
		Name:        row.Name,
		Description: row.Description,
		IsActive:    row.IsActive,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}

type userRow struct {
	ID        int64     `db:"id"`
	Nickname  string    `db:"nickname"`
	Email     string    `db:"email"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// GetStation returns a station by id.
func (db *DB) GetStation(ctx context.Context, id int64) (*model.Station, error) {
	var row stationRow
	err := db.GetContext(ctx, &row, "SELECT * FROM stations WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrInvalidReference
	}
	if err != nil {
		return nil, err
	}
	s := row.toModel()
	return &s, nil
}

// ListStations returns all active stations ordered by name.
func (db *DB) ListStations(ctx context.Context) ([]model.Station, error) {
	var rows []stationRow
	err := db.SelectContext(ctx, &rows,
		"SELECT * FROM stations WHERE is_active = TRUE ORDER BY name")
	if err != nil {
		return nil, err
	}
	stations := make([]model.Station, 0, len(rows))
	for _, row := range rows {
		stations = append(stations, row.toModel())
	}
	return stations, nil
}

// GetUser returns a user by id.
func (db *DB) GetUser(ctx context.Context, id int64) (*model.User, error) {
	var row userRow
	err := db.GetContext(ctx, &row, "SELECT * FROM users WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrInvalidReference
	}
	if err != nil {
		return nil, err
	}
	return &model.User{
		ID:        row.ID,
		Nickname:  row.Nickname,
		Email:     row.Email,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}, nil
}

// UpsertUser creates or refreshes a user keyed by nickname.
func (db *DB) UpsertUser(ctx context.Context, u *model.User) (*model.User, error) {
	var row userRow
	err := db.GetContext(ctx, &row, `
		INSERT INTO users (nickname, email, created_at, updated_at)
		VALUES ($1, $2, now(), now())
		ON CONFLICT (nickname) DO UPDATE SET
			email = EXCLUDED.email,
			updated_at = now()
		RETURNING *`,
		u.Nickname, u.Email,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return &model.User{
		ID:        row.ID,
		Nickname:  row.Nickname,
		Email:     row.Email,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}, nil
}

// CountActiveByUser returns the number of non-cancelled reservations a
// user currently holds that have not ended yet.
func (db *DB) CountActiveByUser(ctx context.Context, userID int64) (int, error) {
	var count int
	err := db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM reservations
		WHERE user_id = $1 AND status != $2 AND end_time > $3`,
		userID, string(model.StatusCancelled), time.Now().UTC(),
	)
	return count, err
}

// SyncStations reconciles the station catalog with the configured list.
func (db *DB) SyncStations(ctx context.Context, stations []model.Station) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	names := make([]string, 0, len(stations))
	for _, s := range stations {
		if s.Name == "" {
			continue
		}
		names = append(names, s.Name)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO stations (name, description, is_active, created_at, updated_at)
			VALUES ($1, $2, TRUE, now(), now())
			ON CONFLICT (name) DO UPDATE SET
				description = EXCLUDED.description,
				is_active = TRUE,
				updated_at = now()`,
			s.Name, s.Description,
		)
		if err != nil {
			return fmt.Errorf("sync station %s: %w", s.Name, err)
		}
	}

	if len(names) > 0 {
		query, args, err := sqlx.In(
			"UPDATE stations SET is_active = FALSE, updated_at = now() WHERE is_active = TRUE AND name NOT IN (?)",
			names,
		)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
			return fmt.Errorf("deactivate stations: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	db.logger.Info().Int("stations", len(names)).Msg("Station catalog synced")
	return nil
}
