package model

import (
	"errors"
	"time"
)

// Date and clock layouts used for every stored booking.
const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrBookingConflict = errors.New("booking overlaps an existing booking")
)

type Status string

// Only upcoming and cancelled are ever written to the store. Past is derived.
const (
	StatusUpcoming  Status = "upcoming"
	StatusPast      Status = "past"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a status clients may filter on.
func (s Status) Valid() bool {
	switch s {
	case StatusUpcoming, StatusPast, StatusCancelled:
		return true
	}
	return false
}

// Booking is a reservation of one room for a time range within a single day.
type Booking struct {
	ID           string    `json:"id"`
	RoomName     string    `json:"room_name"`
	Date         string    `json:"date"`       // "2006-01-02"
	StartTime    string    `json:"start_time"` // "15:04"
	EndTime      string    `json:"end_time"`   // "15:04", exclusive
	Purpose      string    `json:"purpose"`
	Attendees    *int      `json:"attendees,omitempty"`
	Department   string    `json:"department,omitempty"`
	Status       Status    `json:"status"`
	OwnerID      string    `json:"owner_id"`
	ReminderSent bool      `json:"reminder_sent"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// EffectiveStatus derives the status shown to users. A cancelled booking stays
// cancelled; an upcoming booking whose date is strictly before today is past.
func (b *Booking) EffectiveStatus(now time.Time) Status {
	if b.Status == StatusCancelled {
		return StatusCancelled
	}
	if b.Date < now.Format(DateLayout) {
		return StatusPast
	}
	return StatusUpcoming
}

// WithEffectiveStatus returns a copy with Status replaced by the derived value.
func (b Booking) WithEffectiveStatus(now time.Time) Booking {
	b.Status = b.EffectiveStatus(now)
	return b
}

// Overlaps reports whether b and other share a room, a day and some time.
// Intervals are half-open so back-to-back bookings do not overlap.
func (b *Booking) Overlaps(other *Booking) bool {
	if b.RoomName != other.RoomName || b.Date != other.Date {
		return false
	}
	return b.StartTime < other.EndTime && other.StartTime < b.EndTime
}

// Duration returns the booked length. Zero for malformed times.
func (b *Booking) Duration() time.Duration {
	start, err1 := time.Parse(ClockLayout, b.StartTime)
	end, err2 := time.Parse(ClockLayout, b.EndTime)
	if err1 != nil || err2 != nil || !end.After(start) {
		return 0
	}
	return end.Sub(start)
}

// ConflictQuery is the input of the room availability predicate.
type ConflictQuery struct {
	RoomName  string `json:"room_name"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	ExcludeID string `json:"booking_id,omitempty"`
}

// StatusChange is one row of a booking's status history.
type StatusChange struct {
	ID        int64     `json:"id"`
	BookingID string    `json:"booking_id"`
	OldStatus Status    `json:"old_status"`
	NewStatus Status    `json:"new_status"`
	ChangedBy string    `json:"changed_by"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Stats are the per-user dashboard numbers.
type Stats struct {
	Total    int `json:"total"`
	Upcoming int `json:"upcoming"`
	ThisWeek int `json:"this_week"`
}
