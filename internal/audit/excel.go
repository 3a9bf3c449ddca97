package audit

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Writer builds a workbook one sheet at a time.
type Writer interface {
	AddSheet(name string) error
	WriteHeader(columns []string) error
	WriteRow(row []interface{}) error
	Save(w io.Writer) error
	SaveToFile(path string) error
	Close() error
}

const maxSheetName = 31

var sheetNameReplacer = strings.NewReplacer(
	":", "_", `\`, "_", "/", "_", "?", "_", "*", "_", "[", "(", "]", ")",
)

// ExcelizeWriter writes XLSX workbooks with excelize.
type ExcelizeWriter struct {
	file        *excelize.File
	sheet       string
	row         int
	headerStyle int
}

func NewExcelizeWriter() Writer {
	return &ExcelizeWriter{file: excelize.NewFile(), headerStyle: -1}
}

// AddSheet starts a new sheet. The first call reuses the default sheet.
func (w *ExcelizeWriter) AddSheet(name string) error {
	name = sheetNameReplacer.Replace(name)
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}

	if w.sheet == "" {
		if err := w.file.SetSheetName(w.file.GetSheetName(0), name); err != nil {
			return fmt.Errorf("rename sheet %s: %w", name, err)
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}

	w.sheet = name
	w.row = 1
	return nil
}

// WriteHeader writes bold column names and freezes them.
func (w *ExcelizeWriter) WriteHeader(columns []string) error {
	if w.sheet == "" {
		return fmt.Errorf("no active sheet")
	}
	if len(columns) == 0 {
		return nil
	}

	row := make([]interface{}, len(columns))
	for i, c := range columns {
		row[i] = c
	}
	if err := w.writeRow(row); err != nil {
		return err
	}

	if w.headerStyle < 0 {
		style, err := w.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
		if err != nil {
			return fmt.Errorf("header style: %w", err)
		}
		w.headerStyle = style
	}
	last, err := excelize.CoordinatesToCellName(len(columns), 1)
	if err != nil {
		return err
	}
	if err := w.file.SetCellStyle(w.sheet, "A1", last, w.headerStyle); err != nil {
		return fmt.Errorf("apply header style: %w", err)
	}
	return w.file.SetPanes(w.sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func (w *ExcelizeWriter) WriteRow(row []interface{}) error {
	if w.sheet == "" {
		return fmt.Errorf("no active sheet")
	}
	return w.writeRow(row)
}

func (w *ExcelizeWriter) writeRow(row []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, w.row)
	if err != nil {
		return err
	}
	for i, v := range row {
		if t, ok := v.(time.Time); ok {
			row[i] = t.UTC().Format(time.RFC3339)
		}
	}
	if err := w.file.SetSheetRow(w.sheet, cell, &row); err != nil {
		return fmt.Errorf("write row %d of %s: %w", w.row, w.sheet, err)
	}
	w.row++
	return nil
}

func (w *ExcelizeWriter) Save(wr io.Writer) error {
	return w.file.Write(wr)
}

func (w *ExcelizeWriter) SaveToFile(path string) error {
	return w.file.SaveAs(path)
}

func (w *ExcelizeWriter) Close() error {
	return w.file.Close()
}
