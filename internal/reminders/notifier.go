package reminders

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/63Paulo/lan-party/internal/model"
)

// LogNotifier writes reminders to the log. Used when no external
// delivery channel is configured.
type LogNotifier struct {
	logger *zerolog.Logger
}

// NewLogNotifier creates a notifier that logs reminders.
func NewLogNotifier(logger *zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyUpcoming(_ context.Context, r model.Reservation) error {
	n.logger.Info().
		Str("code", r.Code).
		Int64("user_id", r.UserID).
		Int64("station_id", r.StationID).
		Time("start_time", r.StartTime).
		Msg("Upcoming reservation reminder")
	return nil
}

// BusNotifier publishes reminders to the event bus so downstream
// consumers (e.g. the AMQP bridge) can deliver them.
type BusNotifier struct {
	publish func(eventType string, payload interface{}) error
}

// EventReminderDue is published for each reservation due a reminder.
const EventReminderDue = "reservation.reminder"

// NewBusNotifier creates a notifier backed by a publish function.
func NewBusNotifier(publish func(eventType string, payload interface{}) error) *BusNotifier {
	return &BusNotifier{publish: publish}
}

func (n *BusNotifier) NotifyUpcoming(_ context.Context, r model.Reservation) error {
	return n.publish(EventReminderDue, r)
}
