// Package slots lays out a room's working day as fixed-length slots and marks
// which of them are still free.
package slots

import (
	"context"
	"fmt"
	"time"

	"campusroomz/internal/booking"
	"campusroomz/internal/model"
)

// Slot is one fixed-length window of a room's day.
type Slot struct {
	Start     string `json:"start"` // "10:00"
	End       string `json:"end"`   // "10:30"
	Available bool   `json:"available"`
}

// Schedule describes the bookable part of a day.
type Schedule struct {
	StartHour    int
	EndHour      int
	SlotDuration time.Duration
}

// BookingSource lists the bookings that occupy a room on a date.
type BookingSource interface {
	ListRoomBookings(ctx context.Context, roomName, date string) ([]model.Booking, error)
}

// Generator generates slots for a room and date.
type Generator struct {
	source   BookingSource
	schedule Schedule
	now      func() time.Time
}

// NewGenerator creates a new slot generator. A zero SlotDuration means 30 minutes.
func NewGenerator(source BookingSource, schedule Schedule, now func() time.Time) *Generator {
	if schedule.SlotDuration <= 0 {
		schedule.SlotDuration = 30 * time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &Generator{source: source, schedule: schedule, now: now}
}

// GenerateSlots returns every slot of the working day. A slot is unavailable
// when a non-cancelled booking overlaps it or when it has already started.
func (g *Generator) GenerateSlots(ctx context.Context, roomName, date string) ([]Slot, error) {
	day, err := time.Parse(model.DateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("%w: date: %w", booking.ErrInvalidFormat, err)
	}

	var existing []model.Booking
	if g.source != nil {
		existing, err = g.source.ListRoomBookings(ctx, roomName, date)
		if err != nil {
			return nil, fmt.Errorf("list room bookings: %w", err)
		}
	}

	now := g.now()
	today := now.Format(model.DateLayout)
	nowClock := now.Format(model.ClockLayout)

	start := day.Add(time.Duration(g.schedule.StartHour) * time.Hour)
	end := day.Add(time.Duration(g.schedule.EndHour) * time.Hour)

	var slots []Slot
	for cursor := start; !cursor.Add(g.schedule.SlotDuration).After(end); cursor = cursor.Add(g.schedule.SlotDuration) {
		s := Slot{
			Start: cursor.Format(model.ClockLayout),
			End:   cursor.Add(g.schedule.SlotDuration).Format(model.ClockLayout),
		}
		// The last slot of the day may end at midnight.
		if s.End == "00:00" {
			s.End = "24:00"
		}

		past := date < today || (date == today && s.Start < nowClock)
		q := model.ConflictQuery{RoomName: roomName, Date: date, StartTime: s.Start, EndTime: s.End}
		s.Available = !past && !booking.HasConflict(existing, q)
		slots = append(slots, s)
	}

	return slots, nil
}

// AvailableSlots returns only available slots.
func AvailableSlots(slots []Slot) []Slot {
	var available []Slot
	for _, s := range slots {
		if s.Available {
			available = append(available, s)
		}
	}
	return available
}

// FindConsecutiveSlots groups adjacent available slots into free ranges.
func FindConsecutiveSlots(slots []Slot) [][]Slot {
	available := AvailableSlots(slots)
	if len(available) == 0 {
		return nil
	}

	var groups [][]Slot
	current := []Slot{available[0]}
	for _, s := range available[1:] {
		if s.Start == current[len(current)-1].End {
			current = append(current, s)
			continue
		}
		groups = append(groups, current)
		current = []Slot{s}
	}
	return append(groups, current)
}

// DurationOptions returns the booking lengths that fit when starting at start,
// one option per consecutive available slot.
func DurationOptions(slots []Slot, start string, slotDuration time.Duration) []time.Duration {
	idx := -1
	for i, s := range slots {
		if s.Start == start && s.Available {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}

	var options []time.Duration
	for i := idx; i < len(slots); i++ {
		if !slots[i].Available {
			break
		}
		if i > idx && slots[i].Start != slots[i-1].End {
			break
		}
		options = append(options, time.Duration(i-idx+1)*slotDuration)
	}
	return options
}
