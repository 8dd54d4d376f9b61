package engine

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/63Paulo/lan-party/internal/model"
	"github.com/63Paulo/lan-party/internal/storage"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) ListByStation(ctx context.Context, stationID int64) ([]model.Reservation, error) {
	args := m.Called(ctx, stationID)
	return args.Get(0).([]model.Reservation), args.Error(1)
}

func (m *mockStore) FindByFilter(ctx context.Context, f storage.Filter) (int64, []model.Reservation, error) {
	args := m.Called(ctx, f)
	return args.Get(0).(int64), args.Get(1).([]model.Reservation), args.Error(2)
}

func (m *mockStore) FindByID(ctx context.Context, id int64) (*model.Reservation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Reservation), args.Error(1)
}

func (m *mockStore) Insert(ctx context.Context, r *model.Reservation) (*model.Reservation, error) {
	args := m.Called(ctx, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Reservation), args.Error(1)
}

func (m *mockStore) UpdateByID(ctx context.Context, id int64, r *model.Reservation) (*model.Reservation, error) {
	args := m.Called(ctx, id, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Reservation), args.Error(1)
}

func (m *mockStore) DeleteByID(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockStore) ListAll(ctx context.Context) ([]model.Reservation, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.Reservation), args.Error(1)
}

func (m *mockStore) ListUpcoming(ctx context.Context, within time.Duration) ([]model.Reservation, error) {
	args := m.Called(ctx, within)
	return args.Get(0).([]model.Reservation), args.Error(1)
}

func (m *mockStore) MarkReminderSent(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

type mockCatalog struct {
	mock.Mock
}

func (m *mockCatalog) GetStation(ctx context.Context, id int64) (*model.Station, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Station), args.Error(1)
}

func (m *mockCatalog) ListStations(ctx context.Context) ([]model.Station, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.Station), args.Error(1)
}

func (m *mockCatalog) GetUser(ctx context.Context, id int64) (*model.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *mockCatalog) UpsertUser(ctx context.Context, u *model.User) (*model.User, error) {
	args := m.Called(ctx, u)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *mockCatalog) CountActiveByUser(ctx context.Context, userID int64) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

type mockBus struct {
	mock.Mock
}

func (m *mockBus) PublishJSON(eventType string, payload interface{}) error {
	return m.Called(eventType, payload).Error(0)
}

func newTestEngine(store *mockStore, catalog *mockCatalog, bus *mockBus, rules Rules) *Engine {
	logger := zerolog.New(io.Discard)
	return New(store, catalog, bus, rules, &logger)
}

func window(dayOffset, startHour, endHour int) (time.Time, time.Time) {
	base := time.Now().AddDate(0, 0, dayOffset).Truncate(time.Hour)
	start := base.Add(time.Duration(startHour) * time.Hour)
	return start, start.Add(time.Duration(endHour-startHour) * time.Hour)
}

func TestEngine_Create(t *testing.T) {
	ctx := context.Background()
	station := &model.Station{ID: 1, Name: "Station 1", IsActive: true}
	user := &model.User{ID: 7, Nickname: "frag"}

	t.Run("success on free station", func(t *testing.T) {
		store := new(mockStore)
		catalog := new(mockCatalog)
		bus := new(mockBus)
		eng := newTestEngine(store, catalog, bus, Rules{})

		start, end := window(1, 16, 18)
		catalog.On("GetStation", ctx, int64(1)).Return(station, nil).Once()
		catalog.On("GetUser", ctx, int64(7)).Return(user, nil).Once()
		store.On("ListByStation", ctx, int64(1)).Return([]model.Reservation{}, nil).Once()
		store.On("Insert", ctx, mock.Anything).Return(&model.Reservation{
			ID: 1, StationID: 1, UserID: 7, StartTime: start, EndTime: end, Status: model.StatusPending,
		}, nil).Once()
		bus.On("PublishJSON", "reservation.created", mock.Anything).Return(nil).Once()

		created, err := eng.Create(ctx, CreateInput{StationID: 1, UserID: 7, StartTime: start, EndTime: end})
		assert.NoError(t, err)
		assert.Equal(t, model.StatusPending, created.Status)
		store.AssertExpectations(t)
	})

	t.Run("conflict on overlapping window", func(t *testing.T) {
		store := new(mockStore)
		catalog := new(mockCatalog)
		bus := new(mockBus)
		eng := newTestEngine(store, catalog, bus, Rules{})

		existingStart, existingEnd := window(1, 14, 16)
		start, end := window(1, 15, 17)
		catalog.On("GetStation", ctx, int64(1)).Return(station, nil).Once()
		catalog.On("GetUser", ctx, int64(7)).Return(user, nil).Once()
		store.On("ListByStation", ctx, int64(1)).Return([]model.Reservation{
			{ID: 9, StationID: 1, StartTime: existingStart, EndTime: existingEnd, Status: model.StatusConfirmed},
		}, nil).Once()

		_, err := eng.Create(ctx, CreateInput{StationID: 1, UserID: 7, StartTime: start, EndTime: end})
		assert.ErrorIs(t, err, storage.ErrConflict)
		store.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	})

	t.Run("back to back window is allowed", func(t *testing.T) {
		store := new(mockStore)
		catalog := new(mockCatalog)
		bus := new(mockBus)
		eng := newTestEngine(store, catalog, bus, Rules{})

		existingStart, existingEnd := window(1, 14, 16)
		start, end := window(1, 16, 18)
		catalog.On("GetStation", ctx, int64(1)).Return(station, nil).Once()
		catalog.On("GetUser", ctx, int64(7)).Return(user, nil).Once()
		store.On("ListByStation", ctx, int64(1)).Return([]model.Reservation{
			{ID: 9, StationID: 1, StartTime: existingStart, EndTime: existingEnd, Status: model.StatusConfirmed},
		}, nil).Once()
		store.On("Insert", ctx, mock.Anything).Return(&model.Reservation{
			ID: 2, StationID: 1, UserID: 7, StartTime: start, EndTime: end, Status: model.StatusPending,
		}, nil).Once()
		bus.On("PublishJSON", mock.Anything, mock.Anything).Return(nil).Once()

		_, err := eng.Create(ctx, CreateInput{StationID: 1, UserID: 7, StartTime: start, EndTime: end})
		assert.NoError(t, err)
	})

	t.Run("cancelled reservation does not block the slot", func(t *testing.T) {
		store := new(mockStore)
		catalog := new(mockCatalog)
		bus := new(mockBus)
		eng := newTestEngine(store, catalog, bus, Rules{})

		start, end := window(1, 14, 16)
		catalog.On("GetStation", ctx, int64(1)).Return(station, nil).Once()
		catalog.On("GetUser", ctx, int64(7)).Return(user, nil).Once()
		store.On("ListByStation", ctx, int64(1)).Return([]model.Reservation{
			{ID: 9, StationID: 1, StartTime: start, EndTime: end, Status: model.StatusCancelled},
		}, nil).Once()
		store.On("Insert", ctx, mock.Anything).Return(&model.Reservation{
			ID: 3, StationID: 1, UserID: 7, StartTime: start, EndTime: end, Status: model.StatusPending,
		}, nil).Once()
		bus.On("PublishJSON", mock.Anything, mock.Anything).Return(nil).Once()

		_, err := eng.Create(ctx, CreateInput{StationID: 1, UserID: 7, StartTime: start, EndTime: end})
		assert.NoError(t, err)
	})

	t.Run("inverted window is rejected before any store call", func(t *testing.T) {
		store := new(mockStore)
		catalog := new(mockCatalog)
		bus := new(mockBus)
		eng := newTestEngine(store, catalog, bus, Rules{})

		end, start := window(1, 14, 16)
		_, err := eng.Create(ctx, CreateInput{StationID: 1, UserID: 7, StartTime: start, EndTime: end})
		assert.ErrorIs(t, err, ErrValidation)
		store.AssertNotCalled(t, "ListByStation", mock.Anything, mock.Anything)
	})

	t.Run("unknown status is rejected", func(t *testing.T) {
		store := new(mockStore)
		catalog := new(mockCatalog)
		bus := new(mockBus)
		eng := newTestEngine(store, catalog, bus, Rules{})

		start, end := window(1, 14, 16)
		_, err := eng.Create(ctx, CreateInput{StationID: 1, UserID: 7, StartTime: start, EndTime: end, Status: "archived"})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("unknown station surfaces reference error", func(t *testing.T) {
		store := new(mockStore)
		catalog := new(mockCatalog)
		bus := new(mockBus)
		eng := newTestEngine(store, catalog, bus, Rules{})

		start, end := window(1, 14, 16)
		catalog.On("GetStation", ctx, int64(99)).Return(nil, storage.ErrInvalidReference).Once()

		_, err := eng.Create(ctx, CreateInput{StationID: 99, UserID: 7, StartTime: start, EndTime: end})
		assert.ErrorIs(t, err, storage.ErrInvalidReference)
	})

	t.Run("per user active limit", func(t *testing.T) {
		store := new(mockStore)
		catalog := new(mockCatalog)
		bus := new(mockBus)
		eng := newTestEngine(store, catalog, bus, Rules{MaxActivePerUser: 2})

		start, end := window(1, 14, 16)
		catalog.On("CountActiveByUser", ctx, int64(7)).Return(2, nil).Once()

		_, err := eng.Create(ctx, CreateInput{StationID: 1, UserID: 7, StartTime: start, EndTime: end})
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestEngine_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("window change excludes own reservation from conflict set", func(t *testing.T) {
		store := new(mockStore)
		catalog := new(mockCatalog)
		bus := new(mockBus)
		eng := newTestEngine(store, catalog, bus, Rules{})

		start, end := window(1, 14, 16)
		current := &model.Reservation{ID: 5, StationID: 1, UserID: 7, StartTime: start, EndTime: end, Status: model.StatusPending}
		newStart := start.Add(time.Hour)
		newEnd := end.Add(time.Hour)

		store.On("FindByID", ctx, int64(5)).Return(current, nil).Once()
		store.On("ListByStation", ctx, int64(1)).Return([]model.Reservation{*current}, nil).Once()
		store.On("UpdateByID", ctx, int64(5), mock.Anything).Return(&model.Reservation{
			ID: 5, StationID: 1, UserID: 7, StartTime: newStart, EndTime: newEnd, Status: model.StatusPending,
		}, nil).Once()
		bus.On("PublishJSON", "reservation.updated", mock.Anything).Return(nil).Once()

		updated, err := eng.Update(ctx, 5, UpdateInput{StartTime: &newStart, EndTime: &newEnd})
		assert.NoError(t, err)
		assert.Equal(t, newStart, updated.StartTime)
		store.AssertExpectations(t)
	})

	t.Run("conflict with another reservation", func(t *testing.T) {
		store := new(mockStore)
		catalog := new(mockCatalog)
		bus := new(mockBus)
		eng := newTestEngine(store, catalog, bus, Rules{})

		start, end := window(1, 10, 12)
		otherStart, otherEnd := window(1, 14, 16)
		current := &model.Reservation{ID: 5, StationID: 1, StartTime: start, EndTime: end, Status: model.StatusPending}
		newStart := otherStart.Add(time.Hour)
		newEnd := otherEnd.Add(time.Hour)

		store.On("FindByID", ctx, int64(5)).Return(current, nil).Once()
		store.On("ListByStation", ctx, int64(1)).Return([]model.Reservation{
			*current,
			{ID: 6, StationID: 1, StartTime: otherStart, EndTime: otherEnd, Status: model.StatusConfirmed},
		}, nil).Once()

		_, err := eng.Update(ctx, 5, UpdateInput{StartTime: &newStart, EndTime: &newEnd})
		assert.ErrorIs(t, err, storage.ErrConflict)
		store.AssertNotCalled(t, "UpdateByID", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("missing reservation", func(t *testing.T) {
		store := new(mockStore)
		catalog := new(mockCatalog)
		bus := new(mockBus)
		eng := newTestEngine(store, catalog, bus, Rules{})

		store.On("FindByID", ctx, int64(42)).Return(nil, storage.ErrNotFound).Once()

		status := model.StatusConfirmed
		_, err := eng.Update(ctx, 42, UpdateInput{Status: &status})
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("cancelled reservation is immutable", func(t *testing.T) {
		store := new(mockStore)
		catalog := new(mockCatalog)
		bus := new(mockBus)
		eng := newTestEngine(store, catalog, bus, Rules{})

		start, end := window(1, 10, 12)
		store.On("FindByID", ctx, int64(5)).Return(&model.Reservation{
			ID: 5, StationID: 1, StartTime: start, EndTime: end, Status: model.StatusCancelled,
		}, nil).Once()

		status := model.StatusConfirmed
		_, err := eng.Update(ctx, 5, UpdateInput{Status: &status})
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("cancellation emits cancelled event", func(t *testing.T) {
		store := new(mockStore)
		catalog := new(mockCatalog)
		bus := new(mockBus)
		eng := newTestEngine(store, catalog, bus, Rules{})

		start, end := window(1, 10, 12)
		current := &model.Reservation{ID: 5, StationID: 1, StartTime: start, EndTime: end, Status: model.StatusConfirmed}
		cancelled := model.StatusCancelled

		store.On("FindByID", ctx, int64(5)).Return(current, nil).Once()
		store.On("ListByStation", ctx, int64(1)).Return([]model.Reservation{*current}, nil).Once()
		store.On("UpdateByID", ctx, int64(5), mock.Anything).Return(&model.Reservation{
			ID: 5, StationID: 1, StartTime: start, EndTime: end, Status: model.StatusCancelled,
		}, nil).Once()
		bus.On("PublishJSON", "reservation.cancelled", mock.Anything).Return(nil).Once()

		_, err := eng.Update(ctx, 5, UpdateInput{Status: &cancelled})
		assert.NoError(t, err)
		bus.AssertExpectations(t)
	})
}

func TestEngine_Remove(t *testing.T) {
	ctx := context.Background()

	t.Run("removes existing reservation", func(t *testing.T) {
		store := new(mockStore)
		catalog := new(mockCatalog)
		bus := new(mockBus)
		eng := newTestEngine(store, catalog, bus, Rules{})

		start, end := window(1, 10, 12)
		store.On("FindByID", ctx, int64(5)).Return(&model.Reservation{
			ID: 5, StationID: 1, StartTime: start, EndTime: end, Status: model.StatusConfirmed,
		}, nil).Once()
		store.On("DeleteByID", ctx, int64(5)).Return(nil).Once()
		bus.On("PublishJSON", "reservation.removed", mock.Anything).Return(nil).Once()

		assert.NoError(t, eng.Remove(ctx, 5))
		store.AssertExpectations(t)
	})

	t.Run("missing reservation", func(t *testing.T) {
		store := new(mockStore)
		catalog := new(mockCatalog)
		bus := new(mockBus)
		eng := newTestEngine(store, catalog, bus, Rules{})

		store.On("FindByID", ctx, int64(42)).Return(nil, storage.ErrNotFound).Once()

		assert.ErrorIs(t, eng.Remove(ctx, 42), storage.ErrNotFound)
		store.AssertNotCalled(t, "DeleteByID", mock.Anything, mock.Anything)
	})
}

func TestEngine_List(t *testing.T) {
	ctx := context.Background()
	store := new(mockStore)
	catalog := new(mockCatalog)
	bus := new(mockBus)
	eng := newTestEngine(store, catalog, bus, Rules{})

	start, end := window(1, 10, 12)
	page := []model.Reservation{{ID: 3, StationID: 1, StartTime: start, EndTime: end, Status: model.StatusConfirmed}}
	store.On("FindByFilter", ctx, storage.Filter{Status: "confirmed", Limit: 1, Offset: 1}).
		Return(int64(3), page, nil).Once()

	result, err := eng.List(ctx, storage.Filter{Status: "confirmed", Limit: 1, Offset: 1})
	assert.NoError(t, err)
	assert.Equal(t, int64(3), result.Total)
	assert.Equal(t, 1, result.Count)
	assert.Len(t, result.Items, 1)
}

func TestEngine_ListStationAvailability(t *testing.T) {
	ctx := context.Background()
	store := new(mockStore)
	catalog := new(mockCatalog)
	bus := new(mockBus)
	eng := newTestEngine(store, catalog, bus, Rules{})

	start, end := window(1, 14, 16)
	stations := []model.Station{
		{ID: 1, Name: "Station 1", IsActive: true},
		{ID: 2, Name: "Station 2", IsActive: true},
	}
	catalog.On("ListStations", ctx).Return(stations, nil).Once()
	store.On("ListByStation", ctx, int64(1)).Return([]model.Reservation{
		{ID: 9, StationID: 1, StartTime: start, EndTime: end, Status: model.StatusConfirmed},
	}, nil).Once()
	store.On("ListByStation", ctx, int64(2)).Return([]model.Reservation{}, nil).Once()

	result, err := eng.ListStationAvailability(ctx, model.Interval{Start: start, End: end})
	assert.NoError(t, err)
	assert.Len(t, result, 2)
	assert.False(t, result[0].Available)
	assert.True(t, result[1].Available)
}
