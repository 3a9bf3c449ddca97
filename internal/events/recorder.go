package events

import (
	"context"
	"fmt"
	"time"

	"campusroomz/internal/metrics"
	"campusroomz/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ActivityStore persists activity and notification rows.
type ActivityStore interface {
	RecordActivity(ctx context.Context, a *model.Activity) error
	CreateNotification(ctx context.Context, n *model.Notification) error
}

// Recorder turns booking events into activity log entries and notifications.
// Failures are logged and counted but never reported back to the publisher's
// caller as a booking failure.
type Recorder struct {
	store   ActivityStore
	logger  zerolog.Logger
	timeout time.Duration
}

func NewRecorder(store ActivityStore, logger *zerolog.Logger) *Recorder {
	return &Recorder{
		store:   store,
		logger:  logger.With().Str("component", "activity").Logger(),
		timeout: 5 * time.Second,
	}
}

// Register subscribes the recorder to every event it handles.
func (r *Recorder) Register(bus *EventBus) {
	bus.Subscribe(BookingConfirmed, r.onBookingConfirmed)
	bus.Subscribe(BookingRescheduled, r.onBookingRescheduled)
	bus.Subscribe(BookingCancelled, r.onBookingCancelled)
	bus.Subscribe(ProfileUpdated, r.onProfileUpdated)
}

func (r *Recorder) onBookingConfirmed(ev Event) error {
	var p BookingEvent
	if err := ev.Decode(&p); err != nil {
		return err
	}
	return r.record(p.OwnerID, p.BookingID,
		&model.Activity{
			ActionType:  model.ActivityBookingCreated,
			Description: fmt.Sprintf("Booked %s for %s", p.RoomName, p.Purpose),
			Metadata:    bookingMetadata(p),
		},
		&model.Notification{
			Title:   "Booking confirmed",
			Message: fmt.Sprintf("%s on %s, %s - %s", p.RoomName, p.Date, p.StartTime, p.EndTime),
			Type:    model.NotificationSuccess,
		},
	)
}

func (r *Recorder) onBookingRescheduled(ev Event) error {
	var p BookingEvent
	if err := ev.Decode(&p); err != nil {
		return err
	}
	return r.record(p.OwnerID, p.BookingID,
		&model.Activity{
			ActionType:  model.ActivityBookingRescheduled,
			Description: fmt.Sprintf("Moved booking of %s to %s %s - %s", p.RoomName, p.Date, p.StartTime, p.EndTime),
			Metadata:    bookingMetadata(p),
		},
		&model.Notification{
			Title:   "Booking updated",
			Message: fmt.Sprintf("%s on %s, %s - %s", p.RoomName, p.Date, p.StartTime, p.EndTime),
			Type:    model.NotificationInfo,
		},
	)
}

func (r *Recorder) onBookingCancelled(ev Event) error {
	var p BookingEvent
	if err := ev.Decode(&p); err != nil {
		return err
	}
	msg := fmt.Sprintf("%s on %s, %s - %s was cancelled", p.RoomName, p.Date, p.StartTime, p.EndTime)
	if p.ActorID != "" && p.ActorID != p.OwnerID {
		msg += " by an administrator"
	}
	return r.record(p.OwnerID, p.BookingID,
		&model.Activity{
			ActionType:  model.ActivityBookingCancelled,
			Description: fmt.Sprintf("Cancelled booking of %s", p.RoomName),
			Metadata:    bookingMetadata(p),
		},
		&model.Notification{
			Title:   "Booking cancelled",
			Message: msg,
			Type:    model.NotificationWarning,
		},
	)
}

func (r *Recorder) onProfileUpdated(ev Event) error {
	var p ProfileEvent
	if err := ev.Decode(&p); err != nil {
		return err
	}
	return r.record(p.UserID, "", &model.Activity{
		ActionType:  model.ActivityProfileUpdated,
		Description: "Updated profile",
		Metadata:    map[string]any{"name": p.Name, "department": p.Department},
	}, nil)
}

func (r *Recorder) record(userID, bookingID string, a *model.Activity, n *model.Notification) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	var firstErr error
	if a != nil {
		a.ID = uuid.NewString()
		a.UserID = userID
		if err := r.store.RecordActivity(ctx, a); err != nil {
			metrics.IncActivityFailure("activity")
			r.logger.Warn().Err(err).Str("user_id", userID).Str("action", a.ActionType).Msg("failed to record activity")
			firstErr = err
		}
	}
	if n != nil {
		n.ID = uuid.NewString()
		n.UserID = userID
		n.RelatedBookingID = bookingID
		if err := r.store.CreateNotification(ctx, n); err != nil {
			metrics.IncActivityFailure("notification")
			r.logger.Warn().Err(err).Str("user_id", userID).Str("title", n.Title).Msg("failed to create notification")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func bookingMetadata(p BookingEvent) map[string]any {
	m := map[string]any{
		"booking_id": p.BookingID,
		"room_name":  p.RoomName,
		"date":       p.Date,
		"start_time": p.StartTime,
		"end_time":   p.EndTime,
	}
	if p.Reason != "" {
		m["reason"] = p.Reason
	}
	return m
}
