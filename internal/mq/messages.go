package mq

import "time"

// ReservationMessage is the wire shape for reservation lifecycle events
// published to the queue.
type ReservationMessage struct {
	Event     string    `json:"event"`
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	StationID int64     `json:"station_id"`
	UserID    int64     `json:"user_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Status    string    `json:"status"`
	EmittedAt time.Time `json:"emitted_at"`
}
