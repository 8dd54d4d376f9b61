// Package catalog wraps the station/user catalog store with an optional
// Redis read-through cache. Lookups here serve referential validity and
// display joins only; conflict logic never depends on cached data.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/63Paulo/lan-party/internal/model"
	"github.com/63Paulo/lan-party/internal/storage"
)

// Service is a caching front for a CatalogStore.
type Service struct {
	store  storage.CatalogStore
	logger *zerolog.Logger

	redis    *redis.Client
	cacheTTL time.Duration
}

// NewService constructs a catalog service over the backing store.
func NewService(store storage.CatalogStore, logger *zerolog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// UseRedisCache configures optional Redis caching for lookups.
func (s *Service) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	s.redis = redisClient
	s.cacheTTL = ttl
}

// GetStation returns a station by id, from cache when possible.
func (s *Service) GetStation(ctx context.Context, id int64) (*model.Station, error) {
	cacheKey := fmt.Sprintf("station:%d", id)
	var station model.Station
	if s.readCache(ctx, cacheKey, &station) {
		return &station, nil
	}

	found, err := s.store.GetStation(ctx, id)
	if err != nil {
		return nil, err
	}
	s.writeCache(ctx, cacheKey, found)
	return found, nil
}

// ListStations returns all active stations, from cache when possible.
func (s *Service) ListStations(ctx context.Context) ([]model.Station, error) {
	const cacheKey = "stations"
	var wrap struct {
		Stations []model.Station `json:"stations"`
	}
	if s.readCache(ctx, cacheKey, &wrap) {
		return wrap.Stations, nil
	}

	stations, err := s.store.ListStations(ctx)
	if err != nil {
		return nil, err
	}
	wrap.Stations = stations
	s.writeCache(ctx, cacheKey, wrap)
	return stations, nil
}

// GetUser returns a user by id, from cache when possible.
func (s *Service) GetUser(ctx context.Context, id int64) (*model.User, error) {
	cacheKey := fmt.Sprintf("user:%d", id)
	var user model.User
	if s.readCache(ctx, cacheKey, &user) {
		return &user, nil
	}

	found, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	s.writeCache(ctx, cacheKey, found)
	return found, nil
}

// UpsertUser writes through to the store and invalidates the user's
// cache entry.
func (s *Service) UpsertUser(ctx context.Context, u *model.User) (*model.User, error) {
	saved, err := s.store.UpsertUser(ctx, u)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, fmt.Sprintf("user:%d", saved.ID))
	return saved, nil
}

// CountActiveByUser is never cached; the count feeds a booking rule.
func (s *Service) CountActiveByUser(ctx context.Context, userID int64) (int, error) {
	return s.store.CountActiveByUser(ctx, userID)
}

// InvalidateStations drops cached station entries after a catalog sync.
func (s *Service) InvalidateStations(ctx context.Context) {
	s.invalidate(ctx, "stations")
}

func (s *Service) readCache(ctx context.Context, key string, out any) bool {
	if s.redis == nil || s.cacheTTL <= 0 {
		return false
	}
	val, err := s.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

func (s *Service) writeCache(ctx context.Context, key string, val any) {
	if s.redis == nil || s.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, key, data, s.cacheTTL).Err(); err != nil {
		s.logger.Debug().Err(err).Str("key", key).Msg("cache write failed")
	}
}

func (s *Service) invalidate(ctx context.Context, key string) {
	if s.redis == nil {
		return
	}
	_ = s.redis.Del(ctx, key).Err()
}
