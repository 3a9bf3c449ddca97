package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"campusroomz/internal/model"
)

const bookingColumns = `id, room_name, date, start_time, end_time, purpose, attendees, department,
	status, user_id, reminder_sent, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func scanBooking(row rowScanner) (*model.Booking, error) {
	var (
		b          model.Booking
		attendees  sql.NullInt64
		department sql.NullString
		status     string
	)
	if err := row.Scan(
		&b.ID, &b.RoomName, &b.Date, &b.StartTime, &b.EndTime, &b.Purpose, &attendees, &department,
		&status, &b.OwnerID, &b.ReminderSent, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if attendees.Valid {
		n := int(attendees.Int64)
		b.Attendees = &n
	}
	b.Department = department.String
	b.Status = model.Status(status)
	return &b, nil
}

func nullableInt(p *int) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

// hasConflict is the availability predicate. An empty excludeID matches no row.
func hasConflict(ctx context.Context, q queryRower, c model.ConflictQuery) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE room_name = ?
			  AND date = ?
			  AND status != 'cancelled'
			  AND id != ?
			  AND start_time < ?
			  AND end_time > ?
		)`,
		c.RoomName, c.Date, c.ExcludeID, c.EndTime, c.StartTime,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check booking conflict: %w", err)
	}
	return exists, nil
}

// CheckConflict reports whether another non-cancelled booking overlaps the
// requested room, day and time range.
func (db *DB) CheckConflict(ctx context.Context, c model.ConflictQuery) (bool, error) {
	return hasConflict(ctx, db, c)
}

// CreateBooking inserts b if the availability predicate is false. The check
// and the insert share one write transaction.
func (db *DB) CreateBooking(ctx context.Context, b *model.Booking) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	conflict, err := hasConflict(ctx, tx, model.ConflictQuery{
		RoomName:  b.RoomName,
		Date:      b.Date,
		StartTime: b.StartTime,
		EndTime:   b.EndTime,
	})
	if err != nil {
		return err
	}
	if conflict {
		return model.ErrBookingConflict
	}

	if b.Status == "" {
		b.Status = model.StatusUpcoming
	}
	now := time.Now()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = now
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO bookings (`+bookingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.RoomName, b.Date, b.StartTime, b.EndTime, b.Purpose, nullableInt(b.Attendees), b.Department,
		string(b.Status), b.OwnerID, b.ReminderSent, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}

	if err := insertHistory(ctx, tx, b.ID, "", b.Status, b.OwnerID, "created", b.CreatedAt); err != nil {
		return err
	}

	if db.beforeCommit != nil {
		db.beforeCommit()
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit booking: %w", err)
	}
	return nil
}

// RescheduleBooking moves an upcoming booking to the slot described by b.
// It returns model.ErrNotFound when the booking is missing or no longer
// upcoming and model.ErrBookingConflict when the new slot is taken.
func (db *DB) RescheduleBooking(ctx context.Context, b *model.Booking) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM bookings WHERE id = ?`, b.ID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) || status == string(model.StatusCancelled) {
		return model.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load booking %s: %w", b.ID, err)
	}

	conflict, err := hasConflict(ctx, tx, model.ConflictQuery{
		RoomName:  b.RoomName,
		Date:      b.Date,
		StartTime: b.StartTime,
		EndTime:   b.EndTime,
		ExcludeID: b.ID,
	})
	if err != nil {
		return err
	}
	if conflict {
		return model.ErrBookingConflict
	}

	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = time.Now()
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE bookings
		SET room_name = ?, date = ?, start_time = ?, end_time = ?, purpose = ?, attendees = ?,
		    reminder_sent = 0, updated_at = ?
		WHERE id = ?`,
		b.RoomName, b.Date, b.StartTime, b.EndTime, b.Purpose, nullableInt(b.Attendees), b.UpdatedAt, b.ID,
	)
	if err != nil {
		return fmt.Errorf("update booking %s: %w", b.ID, err)
	}
	b.ReminderSent = false

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reschedule: %w", err)
	}
	return nil
}

// UpdateStatus moves an upcoming booking to status and records the change in
// the same transaction. Past is derived at read time, so cancelled is the only
// stored target. It returns model.ErrNotFound if nothing upcoming matched id.
func (db *DB) UpdateStatus(ctx context.Context, id string, status model.Status, changedBy, reason string) error {
	if status != model.StatusCancelled {
		return fmt.Errorf("update booking %s: invalid target status %q", id, status)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	res, err := tx.ExecContext(ctx, `
		UPDATE bookings SET status = ?, updated_at = ?
		WHERE id = ? AND status = 'upcoming'`,
		string(status), now, id,
	)
	if err != nil {
		return fmt.Errorf("update booking %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrNotFound
	}

	if err := insertHistory(ctx, tx, id, model.StatusUpcoming, status, changedBy, reason, now); err != nil {
		return err
	}
	return tx.Commit()
}

// CancelBooking is UpdateStatus to cancelled.
func (db *DB) CancelBooking(ctx context.Context, id, changedBy, reason string) error {
	return db.UpdateStatus(ctx, id, model.StatusCancelled, changedBy, reason)
}

func insertHistory(ctx context.Context, tx *sql.Tx, bookingID string, oldStatus, newStatus model.Status, changedBy, reason string, at time.Time) error {
	var old interface{}
	if oldStatus != "" {
		old = string(oldStatus)
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO booking_status_history (booking_id, old_status, new_status, changed_by, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		bookingID, old, string(newStatus), changedBy, reason, at,
	)
	if err != nil {
		return fmt.Errorf("insert status history: %w", err)
	}
	return nil
}

// GetBooking returns model.ErrNotFound for unknown ids.
func (db *DB) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	row := db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get booking %s: %w", id, err)
	}
	return b, nil
}

// ListBookingsByOwner returns every booking of a user, newest date first.
func (db *DB) ListBookingsByOwner(ctx context.Context, ownerID string) ([]model.Booking, error) {
	return db.queryBookings(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE user_id = ?
		ORDER BY date DESC, start_time DESC`, ownerID)
}

// ListRoomBookings returns the non-cancelled bookings of a room on one day.
func (db *DB) ListRoomBookings(ctx context.Context, roomName, date string) ([]model.Booking, error) {
	return db.queryBookings(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE room_name = ? AND date = ? AND status != 'cancelled'
		ORDER BY start_time`, roomName, date)
}

// ListBookingsOnDate returns all bookings of a day across rooms.
func (db *DB) ListBookingsOnDate(ctx context.Context, date string) ([]model.Booking, error) {
	return db.queryBookings(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE date = ?
		ORDER BY room_name, start_time`, date)
}

// GetBookingsForReminder returns upcoming bookings on date that have not had
// a reminder yet.
func (db *DB) GetBookingsForReminder(ctx context.Context, date string) ([]model.Booking, error) {
	return db.queryBookings(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE date = ? AND status = 'upcoming' AND reminder_sent = 0
		ORDER BY start_time`, date)
}

func (db *DB) MarkReminderSent(ctx context.Context, id string) error {
	_, err := db.ExecContext(ctx, `UPDATE bookings SET reminder_sent = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark reminder sent %s: %w", id, err)
	}
	return nil
}

func (db *DB) queryBookings(ctx context.Context, query string, args ...interface{}) ([]model.Booking, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bookings: %w", err)
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// GetStatusHistory returns the status changes of a booking, oldest first.
func (db *DB) GetStatusHistory(ctx context.Context, bookingID string) ([]model.StatusChange, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, booking_id, old_status, new_status, changed_by, reason, created_at
		FROM booking_status_history
		WHERE booking_id = ?
		ORDER BY id`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("query status history: %w", err)
	}
	defer rows.Close()

	var out []model.StatusChange
	for rows.Next() {
		var (
			c         model.StatusChange
			oldStatus sql.NullString
			newStatus string
			reason    sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.BookingID, &oldStatus, &newStatus, &c.ChangedBy, &reason, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan status history: %w", err)
		}
		c.OldStatus = model.Status(oldStatus.String)
		c.NewStatus = model.Status(newStatus)
		c.Reason = reason.String
		out = append(out, c)
	}
	return out, rows.Err()
}
