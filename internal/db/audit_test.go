package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTableData(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	names, err := db.GetTableNames(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, "bookings")

	require.NoError(t, db.CreateBooking(ctx, newBooking("Lab B-202", "2025-03-10", "09:00", "10:00", "user-1")))

	rows, columns, err := db.GetTableData(ctx, "bookings")
	require.NoError(t, err)
	assert.Contains(t, columns, "room_name")
	require.Len(t, rows, 1)
	assert.Equal(t, "Lab B-202", rows[0]["room_name"])

	_, _, err = db.GetTableData(ctx, "sqlite_master; DROP TABLE bookings")
	assert.Error(t, err)
}

func TestBackupService(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "backups")
	logger := zerolog.Nop()

	svc := NewBackupService(db, dir, time.Hour, 24*time.Hour, &logger)
	path, err := svc.PerformBackup(ctx)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	// Age the snapshot past retention.
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep"), 0o600))
	require.NoError(t, os.Chtimes(filepath.Join(dir, "notes.txt"), old, old))

	removed, err := svc.CleanupOldBackups(time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = os.Stat(filepath.Join(dir, "notes.txt"))
	assert.NoError(t, err, "only backup files are removed")
}
