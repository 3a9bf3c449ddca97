package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// BackupService writes periodic snapshots of the database with VACUUM INTO,
// which is safe while the database is in WAL mode and in use.
type BackupService struct {
	db        *DB
	dir       string
	interval  time.Duration
	retention time.Duration
	logger    zerolog.Logger
}

func NewBackupService(db *DB, dir string, interval, retention time.Duration, logger *zerolog.Logger) *BackupService {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &BackupService{
		db:        db,
		dir:       dir,
		interval:  interval,
		retention: retention,
		logger:    logger.With().Str("component", "backup").Logger(),
	}
}

// Start runs a backup immediately and then every interval until ctx is done.
func (s *BackupService) Start(ctx context.Context) {
	s.logger.Info().Dur("interval", s.interval).Str("dir", s.dir).Msg("backup service started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *BackupService) runOnce(ctx context.Context) {
	if _, err := s.PerformBackup(ctx); err != nil {
		s.logger.Error().Err(err).Msg("backup failed")
		return
	}
	if _, err := s.CleanupOldBackups(time.Now()); err != nil {
		s.logger.Error().Err(err).Msg("backup cleanup failed")
	}
}

// PerformBackup writes a snapshot and returns its path.
func (s *BackupService) PerformBackup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup directory: %w", err)
	}

	name := fmt.Sprintf("backup_%s.db", time.Now().Format("20060102_150405.000"))
	path := filepath.Join(s.dir, name)

	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		return "", fmt.Errorf("vacuum into %s: %w", path, err)
	}

	s.logger.Info().Str("path", path).Msg("backup completed")
	return path, nil
}

// CleanupOldBackups removes snapshots older than the retention window and
// returns how many were deleted.
func (s *BackupService) CleanupOldBackups(now time.Time) (int, error) {
	if s.retention <= 0 {
		return 0, nil
	}

	files, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read backup directory: %w", err)
	}

	cutoff := now.Add(-s.retention)
	removed := 0
	for _, file := range files {
		if file.IsDir() || !strings.HasPrefix(file.Name(), "backup_") {
			continue
		}
		info, err := file.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.dir, file.Name())); err != nil {
				s.logger.Warn().Err(err).Str("file", file.Name()).Msg("failed to delete old backup")
				continue
			}
			s.logger.Info().Str("file", file.Name()).Msg("deleted old backup")
			removed++
		}
	}
	return removed, nil
}
