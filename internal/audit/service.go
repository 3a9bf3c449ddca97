// Package audit writes monthly XLSX snapshots of every domain table and
// prunes old activity and notification rows afterwards.
package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TableExporter provides access to database tables for export.
type TableExporter interface {
	GetTableNames(ctx context.Context) ([]string, error)
	GetTableData(ctx context.Context, tableName string) ([]map[string]interface{}, []string, error)
}

// Cleaner deletes rows that are past retention. Bookings are never deleted.
type Cleaner interface {
	CleanupOldRecords(ctx context.Context, before time.Time) (int64, error)
}

// Config holds configuration for the audit service.
type Config struct {
	ExportDir string
	Retention time.Duration
}

// Report describes one export and cleanup run.
type Report struct {
	Path    string
	Tables  int
	Rows    int
	Deleted int64
}

// Service runs the export on the first day of every month.
type Service struct {
	config    Config
	exporter  TableExporter
	cleaner   Cleaner
	newWriter func() Writer
	now       func() time.Time
	logger    zerolog.Logger

	mu      sync.Mutex
	running bool
}

// NewService creates a new audit service. newWriter may be nil, in which case
// excelize is used.
func NewService(config Config, exporter TableExporter, cleaner Cleaner, newWriter func() Writer, now func() time.Time, logger *zerolog.Logger) *Service {
	if config.Retention <= 0 {
		config.Retention = 90 * 24 * time.Hour
	}
	if newWriter == nil {
		newWriter = NewExcelizeWriter
	}
	if now == nil {
		now = time.Now
	}
	return &Service{
		config:    config,
		exporter:  exporter,
		cleaner:   cleaner,
		newWriter: newWriter,
		now:       now,
		logger:    logger.With().Str("component", "audit").Logger(),
	}
}

// Start waits for the next first of the month, runs, and repeats until ctx
// is done.
func (s *Service) Start(ctx context.Context) {
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

	for {
		next := NextRun(s.now())
		s.logger.Info().Time("next_run", next).Msg("next audit scheduled")

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if _, err := s.RunExportAndCleanup(ctx); err != nil {
			s.logger.Error().Err(err).Msg("audit run failed")
		}
	}
}

// NextRun returns 00:01 on the first day of the month after now.
func NextRun(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month()+1, 1, 0, 1, 0, 0, now.Location())
}

// Filename names the workbook for the month before now.
func Filename(now time.Time) string {
	prev := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, -1, 0)
	return fmt.Sprintf("campusroomz_audit_%s.xlsx", prev.Format("2006-01"))
}

// RunExportAndCleanup exports first and prunes only when the export worked,
// so no row is deleted without having been archived.
func (s *Service) RunExportAndCleanup(ctx context.Context) (Report, error) {
	report, err := s.Export(ctx)
	if err != nil {
		return report, err
	}

	if s.cleaner == nil {
		return report, nil
	}
	cutoff := s.now().Add(-s.config.Retention)
	deleted, err := s.cleaner.CleanupOldRecords(ctx, cutoff)
	if err != nil {
		return report, fmt.Errorf("cleanup old records: %w", err)
	}
	report.Deleted = deleted
	s.logger.Info().
		Int64("deleted", deleted).
		Time("cutoff", cutoff).
		Msg("cleaned up old records")
	return report, nil
}

// Export writes every table to one workbook in the export directory.
func (s *Service) Export(ctx context.Context) (Report, error) {
	tables, err := s.exporter.GetTableNames(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("get table names: %w", err)
	}
	if err := os.MkdirAll(s.config.ExportDir, 0o755); err != nil {
		return Report{}, fmt.Errorf("create export dir: %w", err)
	}

	book := s.newWriter()
	defer book.Close()

	report := Report{Path: filepath.Join(s.config.ExportDir, Filename(s.now()))}
	for _, table := range tables {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		data, columns, err := s.exporter.GetTableData(ctx, table)
		if err != nil {
			return report, fmt.Errorf("read %s: %w", table, err)
		}
		if err := book.AddSheet(table); err != nil {
			return report, err
		}
		if err := book.WriteHeader(columns); err != nil {
			return report, err
		}
		for _, row := range data {
			values := make([]interface{}, len(columns))
			for i, col := range columns {
				values[i] = row[col]
			}
			if err := book.WriteRow(values); err != nil {
				return report, err
			}
		}
		report.Tables++
		report.Rows += len(data)
		s.logger.Debug().Str("table", table).Int("rows", len(data)).Msg("exported table")
	}

	if err := book.SaveToFile(report.Path); err != nil {
		return report, fmt.Errorf("save workbook: %w", err)
	}
	s.logger.Info().
		Str("path", report.Path).
		Int("tables", report.Tables).
		Int("rows", report.Rows).
		Msg("audit exported")
	return report, nil
}
