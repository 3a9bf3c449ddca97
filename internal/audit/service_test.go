package audit

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type fakeExporter struct {
	tables map[string][]map[string]interface{}
	cols   map[string][]string
	order  []string
}

func (f *fakeExporter) GetTableNames(context.Context) ([]string, error) {
	return f.order, nil
}

func (f *fakeExporter) GetTableData(_ context.Context, table string) ([]map[string]interface{}, []string, error) {
	if _, ok := f.cols[table]; !ok {
		return nil, nil, errors.New("invalid table name: " + table)
	}
	return f.tables[table], f.cols[table], nil
}

type mockCleaner struct {
	mock.Mock
}

func (m *mockCleaner) CleanupOldRecords(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

var auditNow = time.Date(2025, 4, 1, 0, 1, 0, 0, time.UTC)

func sampleExporter() *fakeExporter {
	return &fakeExporter{
		order: []string{"rooms", "bookings"},
		cols: map[string][]string{
			"rooms":    {"id", "name", "capacity"},
			"bookings": {"id", "room_name", "date", "created_at"},
		},
		tables: map[string][]map[string]interface{}{
			"rooms": {
				{"id": int64(1), "name": "Lab B-202", "capacity": int64(40)},
				{"id": int64(2), "name": "Room 101", "capacity": int64(30)},
			},
			"bookings": {
				{"id": "b1", "room_name": "Lab B-202", "date": "2025-03-10", "created_at": auditNow},
			},
		},
	}
}

func TestRunExportAndCleanup(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.New(io.Discard)
	dir := t.TempDir()

	cleaner := new(mockCleaner)
	cleaner.On("CleanupOldRecords", ctx, auditNow.Add(-30*24*time.Hour)).Return(int64(7), nil).Once()

	svc := NewService(Config{ExportDir: dir, Retention: 30 * 24 * time.Hour}, sampleExporter(), cleaner, nil,
		func() time.Time { return auditNow }, &logger)

	report, err := svc.RunExportAndCleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "campusroomz_audit_2025-03.xlsx"), report.Path)
	assert.Equal(t, 2, report.Tables)
	assert.Equal(t, 3, report.Rows)
	assert.Equal(t, int64(7), report.Deleted)
	cleaner.AssertExpectations(t)

	f, err := excelize.OpenFile(report.Path)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"rooms", "bookings"}, f.GetSheetList())

	rows, err := f.GetRows("rooms")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"id", "name", "capacity"}, rows[0])
	assert.Equal(t, []string{"1", "Lab B-202", "40"}, rows[1])

	rows, err = f.GetRows("bookings")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2025-04-01T00:01:00Z", rows[1][3])
}

func TestExportFailureSkipsCleanup(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.New(io.Discard)

	exp := sampleExporter()
	exp.order = append(exp.order, "secrets")
	cleaner := new(mockCleaner)

	svc := NewService(Config{ExportDir: t.TempDir()}, exp, cleaner, nil, func() time.Time { return auditNow }, &logger)
	_, err := svc.RunExportAndCleanup(ctx)
	assert.ErrorContains(t, err, "invalid table name")
	cleaner.AssertNotCalled(t, "CleanupOldRecords", mock.Anything, mock.Anything)
}

func TestNextRunAndFilename(t *testing.T) {
	assert.Equal(t, time.Date(2025, 4, 1, 0, 1, 0, 0, time.UTC), NextRun(time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC), NextRun(time.Date(2025, 12, 31, 23, 59, 0, 0, time.UTC)))

	assert.Equal(t, "campusroomz_audit_2024-12.xlsx", Filename(time.Date(2025, 1, 1, 0, 1, 0, 0, time.UTC)))
	assert.Equal(t, "campusroomz_audit_2025-02.xlsx", Filename(time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)))
}

func TestExcelizeWriter_SheetNames(t *testing.T) {
	w := NewExcelizeWriter()
	defer w.Close()

	require.NoError(t, w.AddSheet("a/b:c"))
	require.NoError(t, w.AddSheet("a_table_name_that_is_much_longer_than_allowed"))
	assert.Error(t, (&ExcelizeWriter{file: excelize.NewFile()}).WriteRow([]interface{}{1}))

	path := filepath.Join(t.TempDir(), "names.xlsx")
	require.NoError(t, w.SaveToFile(path))
	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"a_b_c", "a_table_name_that_is_much_longe"}, f.GetSheetList())
}
