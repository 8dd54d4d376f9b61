package model

import (
	"fmt"
	"time"
)

// Status represents the lifecycle state of a reservation.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// statusTransitions defines the allowed lifecycle transitions.
var statusTransitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCancelled},
	StatusCancelled: {},
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether the transition from s to next is allowed.
// Keeping the same status is always a no-op and therefore allowed.
func (s Status) CanTransitionTo(next Status) bool {
	if s == next {
		return true
	}
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Reservation represents a station reservation record.
type Reservation struct {
	ID           int64     `json:"id"`
	Code         string    `json:"code"`
	StationID    int64     `json:"station_id"`
	UserID       int64     `json:"user_id"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	Status       Status    `json:"status"`
	ReminderSent bool      `json:"reminder_sent"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Interval is a half-open time window [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Validate checks that the interval is well-formed.
func (i Interval) Validate() error {
	if !i.Start.Before(i.End) {
		return fmt.Errorf("start time %s must be strictly before end time %s",
			i.Start.Format(time.RFC3339), i.End.Format(time.RFC3339))
	}
	return nil
}

// Overlaps reports whether two half-open intervals intersect.
// Back-to-back windows (i.End == other.Start) do not overlap.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start.Before(other.End) && other.Start.Before(i.End)
}

// HasConflict reports whether candidate overlaps any member of existing.
func HasConflict(candidate Interval, existing []Interval) bool {
	for _, e := range existing {
		if candidate.Overlaps(e) {
			return true
		}
	}
	return false
}

// Interval returns the reservation's time window.
func (r *Reservation) Interval() Interval {
	return Interval{Start: r.StartTime, End: r.EndTime}
}

// Overlaps reports whether this reservation's window intersects another's.
func (r *Reservation) Overlaps(other *Reservation) bool {
	return r.Interval().Overlaps(other.Interval())
}

// ConflictCandidates extracts the intervals that count for conflict
// detection: cancelled reservations release their slot, and excludeID
// removes the reservation being updated from its own candidate set.
func ConflictCandidates(reservations []Reservation, excludeID int64) []Interval {
	intervals := make([]Interval, 0, len(reservations))
	for _, r := range reservations {
		if r.Status == StatusCancelled {
			continue
		}
		if excludeID != 0 && r.ID == excludeID {
			continue
		}
		intervals = append(intervals, r.Interval())
	}
	return intervals
}
