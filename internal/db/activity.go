package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"campusroomz/internal/model"

	"github.com/google/uuid"
)

func (db *DB) RecordActivity(ctx context.Context, a *model.Activity) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	var meta interface{}
	if len(a.Metadata) > 0 {
		data, err := json.Marshal(a.Metadata)
		if err != nil {
			return fmt.Errorf("marshal activity metadata: %w", err)
		}
		meta = string(data)
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO activities (id, user_id, action_type, description, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.ActionType, a.Description, meta, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// ListActivities returns the latest activities of a user.
func (db *DB) ListActivities(ctx context.Context, userID string, limit int) ([]model.Activity, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, user_id, action_type, description, metadata, created_at
		FROM activities WHERE user_id = ?
		ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	var out []model.Activity
	for rows.Next() {
		var (
			a    model.Activity
			meta sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.ActionType, &a.Description, &meta, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &a.Metadata); err != nil {
				return nil, fmt.Errorf("decode activity metadata %s: %w", a.ID, err)
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (db *DB) CreateNotification(ctx context.Context, n *model.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	if n.Type == "" {
		n.Type = model.NotificationInfo
	}
	var related interface{}
	if n.RelatedBookingID != "" {
		related = n.RelatedBookingID
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, title, message, type, related_booking_id, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.Title, n.Message, n.Type, related, boolToInt(n.IsRead), n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListNotifications returns the latest notifications of a user, optionally
// only unread ones.
func (db *DB) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, user_id, title, message, type, related_booking_id, is_read, created_at
		FROM notifications WHERE user_id = ?`
	if unreadOnly {
		query += ` AND is_read = 0`
	}
	query += ` ORDER BY created_at DESC LIMIT ?`

	rows, err := db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		var (
			n       model.Notification
			related sql.NullString
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type, &related, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.RelatedBookingID = related.String
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkNotificationRead flags one of the user's notifications as read.
func (db *DB) MarkNotificationRead(ctx context.Context, userID, id string) error {
	res, err := db.ExecContext(ctx, `UPDATE notifications SET is_read = 1 WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// CleanupOldRecords deletes read notifications and activities created before
// the cutoff. Bookings and their history are never removed.
func (db *DB) CleanupOldRecords(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	for _, q := range []string{
		`DELETE FROM notifications WHERE is_read = 1 AND created_at < ?`,
		`DELETE FROM activities WHERE created_at < ?`,
	} {
		res, err := db.ExecContext(ctx, q, before)
		if err != nil {
			return total, fmt.Errorf("cleanup %s: %w", trimSQL(q), err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}
