// Package db is the SQLite store for profiles, rooms, bookings and the
// activity log.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB wraps sql.DB with the campus booking schema.
type DB struct {
	*sql.DB
	path   string
	logger zerolog.Logger

	// beforeCommit, when set, runs inside CreateBooking's transaction after
	// the insert. Tests use it to abandon a submission mid-flight.
	beforeCommit func()
}

// NewDB opens the database at path and runs migrations.
//
// Transactions are opened with BEGIN IMMEDIATE so a booking transaction holds
// the write lock from its conflict check through its insert.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if err := createTables(sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}

	l := logger.With().Str("component", "db").Logger()
	l.Info().Str("path", path).Msg("database initialized")
	return &DB{DB: sqlDB, path: path, logger: l}, nil
}

// Path returns the database file path.
func (db *DB) Path() string { return db.path }

// Ping checks the connection, used by readiness probes.
func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS profiles (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			department TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT 'teacher',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS departments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT UNIQUE NOT NULL,
			description TEXT,
			head_of_department TEXT,
			contact_email TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS rooms (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT UNIQUE NOT NULL,
			room_type TEXT NOT NULL,
			capacity INTEGER NOT NULL,
			building TEXT,
			floor INTEGER,
			room_number TEXT,
			description TEXT,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS equipment (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT UNIQUE NOT NULL,
			category TEXT NOT NULL,
			description TEXT,
			is_portable BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS room_equipment (
			room_id INTEGER NOT NULL,
			equipment_id INTEGER NOT NULL,
			quantity INTEGER NOT NULL DEFAULT 1,
			condition TEXT NOT NULL DEFAULT 'good',
			notes TEXT,
			PRIMARY KEY (room_id, equipment_id),
			FOREIGN KEY (room_id) REFERENCES rooms(id),
			FOREIGN KEY (equipment_id) REFERENCES equipment(id)
		)`,

		`CREATE TABLE IF NOT EXISTS bookings (
			id TEXT PRIMARY KEY,
			room_name TEXT NOT NULL,
			date TEXT NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			purpose TEXT NOT NULL,
			attendees INTEGER,
			department TEXT,
			status TEXT NOT NULL DEFAULT 'upcoming' CHECK (status IN ('upcoming', 'cancelled')),
			user_id TEXT NOT NULL,
			reminder_sent BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			CHECK (start_time < end_time),
			FOREIGN KEY (room_name) REFERENCES rooms(name),
			FOREIGN KEY (user_id) REFERENCES profiles(id)
		)`,

		`CREATE TABLE IF NOT EXISTS booking_status_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			booking_id TEXT NOT NULL,
			old_status TEXT,
			new_status TEXT NOT NULL,
			changed_by TEXT NOT NULL,
			reason TEXT,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (booking_id) REFERENCES bookings(id)
		)`,

		`CREATE TABLE IF NOT EXISTS activities (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			action_type TEXT NOT NULL,
			description TEXT NOT NULL,
			metadata TEXT,
			created_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS notifications (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			message TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT 'info',
			related_booking_id TEXT,
			is_read BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		)`,

		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_bookings_room_date ON bookings(room_name, date, start_time, end_time)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_user ON bookings(user_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_reminder ON bookings(date, status, reminder_sent)`,
		`CREATE INDEX IF NOT EXISTS idx_history_booking ON booking_status_history(booking_id)`,
		`CREATE INDEX IF NOT EXISTS idx_activities_user ON activities(user_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, is_read, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_rooms_active ON rooms(is_active)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
