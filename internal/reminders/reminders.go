// Package reminders notifies users about upcoming confirmed
// reservations. Sends are throttled with a token-bucket limiter so a
// burst of due reminders cannot flood the notifier.
package reminders

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/63Paulo/lan-party/internal/model"
)

// ReservationSource provides the reservations due for a reminder.
type ReservationSource interface {
	ListUpcoming(ctx context.Context, within time.Duration) ([]model.Reservation, error)
	MarkReminderSent(ctx context.Context, id int64) error
}

// Notifier delivers a reminder to the reservation holder.
type Notifier interface {
	NotifyUpcoming(ctx context.Context, r model.Reservation) error
}

// Config holds configuration for the reminder service.
type Config struct {
	// CheckInterval is how often to look for due reminders.
	CheckInterval time.Duration
	// LookAhead is how far before the start time a reminder fires.
	LookAhead time.Duration
	// NotifyRate limits notification sends per second.
	NotifyRate float64
	// NotifyBurst is the limiter burst size.
	NotifyBurst int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		CheckInterval: 15 * time.Minute,
		LookAhead:     24 * time.Hour,
		NotifyRate:    10,
		NotifyBurst:   20,
	}
}

// Service runs the reminder check loop.
type Service struct {
	config   Config
	source   ReservationSource
	notifier Notifier
	limiter  *rate.Limiter
	logger   *zerolog.Logger

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewService creates a reminder service.
func NewService(config Config, source ReservationSource, notifier Notifier, logger *zerolog.Logger) *Service {
	if config.CheckInterval <= 0 {
		config.CheckInterval = 15 * time.Minute
	}
	if config.LookAhead <= 0 {
		config.LookAhead = 24 * time.Hour
	}
	if config.NotifyRate <= 0 {
		config.NotifyRate = 10
	}
	if config.NotifyBurst <= 0 {
		config.NotifyBurst = 20
	}

	return &Service{
		config:   config,
		source:   source,
		notifier: notifier,
		limiter:  rate.NewLimiter(rate.Limit(config.NotifyRate), config.NotifyBurst),
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the reminder check loop.
func (s *Service) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop()

	s.logger.Info().
		Dur("check_interval", s.config.CheckInterval).
		Dur("look_ahead", s.config.LookAhead).
		Msg("Reminder service started")
}

// Stop gracefully stops the reminder service.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info().Msg("Reminder service stopped")
}

func (s *Service) loop() {
	defer s.wg.Done()

	s.checkAndSend()

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.checkAndSend()
		}
	}
}

func (s *Service) checkAndSend() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	due, err := s.source.ListUpcoming(ctx, s.config.LookAhead)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to load upcoming reservations")
		return
	}
	if len(due) == 0 {
		return
	}

	s.logger.Debug().Int("count", len(due)).Msg("Found reservations due for a reminder")

	for _, reservation := range due {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		if err := s.sendReminder(ctx, reservation); err != nil {
			s.logger.Error().Err(err).
				Int64("reservation_id", reservation.ID).
				Int64("user_id", reservation.UserID).
				Msg("Failed to send reminder")
		}
	}
}

func (s *Service) sendReminder(ctx context.Context, reservation model.Reservation) error {
	if err := s.notifier.NotifyUpcoming(ctx, reservation); err != nil {
		return err
	}

	if err := s.source.MarkReminderSent(ctx, reservation.ID); err != nil {
		// Notification went out; log the bookkeeping failure and move on.
		s.logger.Error().Err(err).
			Int64("reservation_id", reservation.ID).
			Msg("Failed to mark reminder as sent")
	}

	s.logger.Info().
		Int64("reservation_id", reservation.ID).
		Int64("user_id", reservation.UserID).
		Msg("Reminder sent")
	return nil
}

// CheckNow triggers an immediate check (useful for testing).
func (s *Service) CheckNow() {
	s.checkAndSend()
}
