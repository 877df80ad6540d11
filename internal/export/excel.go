// ABOUTME: Spreadsheet exporter that streams rows into an .xlsx file with excelize.
// ABOUTME: Files land in a configurable directory; callers own removal of the returned path.

package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

// ErrNoColumns indicates a sheet was submitted without a header row.
var ErrNoColumns = errors.New("sheet has no columns")

// ctxCheckEvery is how many rows are written between cancellation checks.
const ctxCheckEvery = 500

// Sheet is one worksheet worth of tabular data. Each row holds values in Columns order.
type Sheet struct {
	Name    string
	Columns []string
	Rows    [][]any
}

// Exporter writes tabular data to a file and returns its path.
type Exporter interface {
	WriteSpreadsheet(ctx context.Context, sheet Sheet) (string, error)
}

// ExcelExporter writes .xlsx workbooks.
type ExcelExporter struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

// NewExcelExporter creates an exporter writing into dir, or the OS temp dir when empty.
func NewExcelExporter(dir string, logger *slog.Logger) *ExcelExporter {
	if dir == "" {
		dir = os.TempDir()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExcelExporter{
		dir:    dir,
		logger: logger.With("component", "export"),
		now:    time.Now,
	}
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Filename builds the export file name for a sheet, e.g. orders_export_2024-05-01_10-30-00.xlsx.
func Filename(name string, at time.Time) string {
	base := strings.Trim(unsafeName.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if base == "" {
		base = "data"
	}
	return fmt.Sprintf("%s_export_%s.xlsx", base, at.Format("2006-01-02_15-04-05"))
}

// WriteSpreadsheet streams sheet into a new workbook. A partially written
// file is removed when writing fails.
func (e *ExcelExporter) WriteSpreadsheet(ctx context.Context, sheet Sheet) (path string, err error) {
	if len(sheet.Columns) == 0 {
		return "", ErrNoColumns
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating export directory: %w", err)
	}

	// Keep the human-readable name but avoid collisions between concurrent exports
	name := Filename(sheet.Name, e.now())
	path = filepath.Join(e.dir, strings.TrimSuffix(name, ".xlsx")+"_"+uuid.New().String()[:8]+".xlsx")

	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing workbook: %w", cerr)
		}
		if err != nil {
			_ = os.Remove(path)
			path = ""
		}
	}()

	sheetName := sheetTitle(sheet.Name)
	if err = f.SetSheetName("Sheet1", sheetName); err != nil {
		return path, fmt.Errorf("naming sheet: %w", err)
	}

	if err = e.writeRows(ctx, f, sheetName, sheet); err != nil {
		return path, err
	}

	if err = f.SaveAs(path); err != nil {
		return path, fmt.Errorf("saving workbook: %w", err)
	}

	e.logger.Info("spreadsheet written", "path", path, "rows", len(sheet.Rows))
	return path, nil
}

func (e *ExcelExporter) writeRows(ctx context.Context, f *excelize.File, sheetName string, sheet Sheet) error {
	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return fmt.Errorf("opening stream writer: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#DDEBF7"}},
	})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}

	if err := sw.SetColWidth(1, len(sheet.Columns), 18); err != nil {
		return fmt.Errorf("setting column width: %w", err)
	}

	header := make([]any, len(sheet.Columns))
	for i, c := range sheet.Columns {
		header[i] = excelize.Cell{StyleID: headerStyle, Value: c}
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for i, row := range sheet.Rows {
		if i%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("writing row %d: %w", i+1, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flushing rows: %w", err)
	}
	return nil
}

// sheetTitle makes name acceptable as a worksheet title (max 31 chars, no []:*?/\).
func sheetTitle(name string) string {
	title := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	if title == "" {
		title = "Data"
	}
	if len([]rune(title)) > 31 {
		title = string([]rune(title)[:31])
	}
	return title
}
