// Package reminders notifies booking owners the day before their booking.
package reminders

import (
	"context"
	"fmt"
	"sync"
	"time"

	"campusroomz/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Store is what the reminder loop reads and writes.
type Store interface {
	GetBookingsForReminder(ctx context.Context, date string) ([]model.Booking, error)
	MarkReminderSent(ctx context.Context, id string) error
	CreateNotification(ctx context.Context, n *model.Notification) error
}

// Config holds configuration for the reminder scheduler.
type Config struct {
	// Interval is how often to look for bookings due a reminder.
	Interval time.Duration
	// PerSecond caps notification writes. Zero disables throttling.
	PerSecond float64
	// RetryDelays are the waits between attempts; its length is the retry count.
	RetryDelays []time.Duration
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		Interval:    15 * time.Minute,
		PerSecond:   5,
		RetryDelays: []time.Duration{time.Second, 5 * time.Second},
	}
}

// Result summarises one run.
type Result struct {
	Total  int
	Sent   int
	Failed int
}

// Scheduler periodically creates reminder notifications for tomorrow's
// bookings. Each booking is reminded at most once.
type Scheduler struct {
	config  Config
	store   Store
	limiter *rate.Limiter
	metrics *Metrics
	now     func() time.Time
	logger  zerolog.Logger

	mu      sync.Mutex
	running bool
}

// NewScheduler creates a new reminder scheduler. metrics may be nil.
func NewScheduler(store Store, config Config, metrics *Metrics, now func() time.Time, logger *zerolog.Logger) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	if now == nil {
		now = time.Now
	}
	var limiter *rate.Limiter
	if config.PerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.PerSecond), 1)
	}
	return &Scheduler{
		config:  config,
		store:   store,
		limiter: limiter,
		metrics: metrics,
		now:     now,
		logger:  logger.With().Str("component", "reminders").Logger(),
	}
}

// Start runs once immediately and then on every tick until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.logger.Info().Dur("interval", s.config.Interval).Msg("reminder scheduler started")

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.runLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("reminder scheduler stopped")
			return
		case <-ticker.C:
			s.runLogged(ctx)
		}
	}
}

func (s *Scheduler) runLogged(ctx context.Context) {
	res, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("reminder run failed")
		return
	}
	if res.Total > 0 {
		s.logger.Info().
			Int("total", res.Total).
			Int("sent", res.Sent).
			Int("failed", res.Failed).
			Msg("reminders processed")
	}
}

// RunOnce reminds the owners of every upcoming booking dated tomorrow.
func (s *Scheduler) RunOnce(ctx context.Context) (Result, error) {
	tomorrow := s.now().AddDate(0, 0, 1).Format(model.DateLayout)
	bookings, err := s.store.GetBookingsForReminder(ctx, tomorrow)
	if err != nil {
		return Result{}, fmt.Errorf("load bookings for %s: %w", tomorrow, err)
	}

	res := Result{Total: len(bookings)}
	s.metrics.setPending(len(bookings))

	for i := range bookings {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return res, err
			}
		}
		b := &bookings[i]
		if err := s.send(ctx, b); err != nil {
			res.Failed++
			s.metrics.incSent("failed")
			s.logger.Error().Err(err).Str("booking_id", b.ID).Str("user_id", b.OwnerID).Msg("reminder failed")
			continue
		}
		res.Sent++
		s.metrics.incSent("sent")
	}
	return res, nil
}

func (s *Scheduler) send(ctx context.Context, b *model.Booking) error {
	start := time.Now()
	defer func() { s.metrics.observeSend(time.Since(start).Seconds()) }()

	n := &model.Notification{
		ID:               uuid.NewString(),
		UserID:           b.OwnerID,
		Title:            "Booking reminder",
		Message:          fmt.Sprintf("Tomorrow %s, %s-%s: %s", b.RoomName, b.StartTime, b.EndTime, b.Purpose),
		Type:             model.NotificationReminder,
		RelatedBookingID: b.ID,
	}

	var err error
	for attempt := 0; ; attempt++ {
		if err = s.store.CreateNotification(ctx, n); err == nil {
			break
		}
		if attempt >= len(s.config.RetryDelays) {
			return fmt.Errorf("create reminder notification: %w", err)
		}
		s.metrics.incRetries()
		s.logger.Warn().Err(err).Int("attempt", attempt+1).Str("booking_id", b.ID).Msg("retrying reminder")
		select {
		case <-time.After(s.config.RetryDelays[attempt]):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := s.store.MarkReminderSent(ctx, b.ID); err != nil {
		return err
	}
	s.logger.Debug().Str("booking_id", b.ID).Str("user_id", b.OwnerID).Msg("reminder sent")
	return nil
}

// IsRunning returns whether Start is currently looping.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
