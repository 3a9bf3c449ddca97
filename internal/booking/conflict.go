package booking

import (
	"context"
	"fmt"

	"campusroomz/internal/model"
)

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
// Times are "HH:MM" strings, which order the same as the clock.
func Overlaps(aStart, aEnd, bStart, bEnd string) bool {
	return aStart < bEnd && bStart < aEnd
}

// HasConflict evaluates the availability predicate against an in-memory list.
// Cancelled bookings and the excluded booking never conflict.
func HasConflict(existing []model.Booking, q model.ConflictQuery) bool {
	for i := range existing {
		b := &existing[i]
		if b.Status == model.StatusCancelled {
			continue
		}
		if q.ExcludeID != "" && b.ID == q.ExcludeID {
			continue
		}
		if b.RoomName != q.RoomName || b.Date != q.Date {
			continue
		}
		if Overlaps(q.StartTime, q.EndTime, b.StartTime, b.EndTime) {
			return true
		}
	}
	return false
}

// ConflictStore evaluates the availability predicate in persistent storage.
type ConflictStore interface {
	CheckConflict(ctx context.Context, q model.ConflictQuery) (bool, error)
}

// ConflictChecker wraps a store so that a failed lookup is never read as
// "no conflict".
type ConflictChecker struct {
	store ConflictStore
}

func NewConflictChecker(store ConflictStore) *ConflictChecker {
	return &ConflictChecker{store: store}
}

func (c *ConflictChecker) HasConflict(ctx context.Context, q model.ConflictQuery) (bool, error) {
	conflict, err := c.store.CheckConflict(ctx, q)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return conflict, nil
}
