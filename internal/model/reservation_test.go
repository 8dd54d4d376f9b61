package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func at(hour int) time.Time {
	return time.Date(2026, 9, 12, hour, 0, 0, 0, time.UTC)
}

func TestInterval_Overlaps(t *testing.T) {
	tests := []struct {
		name     string
		a        Interval
		b        Interval
		overlaps bool
	}{
		{
			name:     "partial overlap",
			a:        Interval{Start: at(14), End: at(16)},
			b:        Interval{Start: at(15), End: at(17)},
			overlaps: true,
		},
		{
			name:     "back to back windows do not overlap",
			a:        Interval{Start: at(14), End: at(16)},
			b:        Interval{Start: at(16), End: at(18)},
			overlaps: false,
		},
		{
			name:     "disjoint windows",
			a:        Interval{Start: at(10), End: at(11)},
			b:        Interval{Start: at(14), End: at(16)},
			overlaps: false,
		},
		{
			name:     "contained window",
			a:        Interval{Start: at(14), End: at(18)},
			b:        Interval{Start: at(15), End: at(16)},
			overlaps: true,
		},
		{
			name:     "identical windows",
			a:        Interval{Start: at(14), End: at(16)},
			b:        Interval{Start: at(14), End: at(16)},
			overlaps: true,
		},
		{
			name:     "touching at start",
			a:        Interval{Start: at(12), End: at(14)},
			b:        Interval{Start: at(14), End: at(16)},
			overlaps: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.overlaps, tt.a.Overlaps(tt.b))
			// Overlap is symmetric
			assert.Equal(t, tt.overlaps, tt.b.Overlaps(tt.a))
		})
	}
}

func TestInterval_Validate(t *testing.T) {
	assert.NoError(t, Interval{Start: at(14), End: at(16)}.Validate())
	assert.Error(t, Interval{Start: at(16), End: at(14)}.Validate())
	// Zero-length windows are rejected
	assert.Error(t, Interval{Start: at(14), End: at(14)}.Validate())
}

func TestHasConflict(t *testing.T) {
	existing := []Interval{
		{Start: at(10), End: at(12)},
		{Start: at(14), End: at(16)},
	}

	assert.True(t, HasConflict(Interval{Start: at(15), End: at(17)}, existing))
	assert.False(t, HasConflict(Interval{Start: at(16), End: at(18)}, existing))
	assert.False(t, HasConflict(Interval{Start: at(12), End: at(14)}, existing))
	assert.False(t, HasConflict(Interval{Start: at(9), End: at(10)}, nil))
}

func TestConflictCandidates(t *testing.T) {
	reservations := []Reservation{
		{ID: 1, Status: StatusConfirmed, StartTime: at(10), EndTime: at(12)},
		{ID: 2, Status: StatusCancelled, StartTime: at(12), EndTime: at(14)},
		{ID: 3, Status: StatusPending, StartTime: at(14), EndTime: at(16)},
	}

	t.Run("cancelled reservations release their slot", func(t *testing.T) {
		intervals := ConflictCandidates(reservations, 0)
		assert.Len(t, intervals, 2)
		assert.False(t, HasConflict(Interval{Start: at(12), End: at(14)}, intervals))
	})

	t.Run("exclude removes own window on update", func(t *testing.T) {
		intervals := ConflictCandidates(reservations, 3)
		assert.Len(t, intervals, 1)
		assert.False(t, HasConflict(Interval{Start: at(14), End: at(16)}, intervals))
	})
}

func TestStatus_Valid(t *testing.T) {
	assert.True(t, StatusPending.Valid())
	assert.True(t, StatusConfirmed.Valid())
	assert.True(t, StatusCancelled.Valid())
	assert.False(t, Status("archived").Valid())
	assert.False(t, Status("").Valid())
}

func TestStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCancelled, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusPending, false},
		{StatusCancelled, StatusPending, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusPending, StatusPending, true},
		{StatusCancelled, StatusCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}
