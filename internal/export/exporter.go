// Package export snapshots a store's data table to a spreadsheet artifact.
// It reads directly from the store and never touches pipeline state.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/windlab/sensor-etl/internal/logging"
	"github.com/windlab/sensor-etl/internal/metrics"
	"github.com/windlab/sensor-etl/internal/sensor"
)

// Snapshotter is the store-side contract the exporter needs.
type Snapshotter interface {
	Name() string
	Snapshot(ctx context.Context) ([]sensor.Reading, error)
}

// Exporter writes xlsx snapshots under a designated output directory.
type Exporter struct {
	dir       string
	bucketURL string
	log       *slog.Logger
}

// New creates an exporter. bucketURL is optional; when set, every artifact
// is also copied to that object-storage bucket.
func New(dir, bucketURL string) *Exporter {
	return &Exporter{
		dir:       dir,
		bucketURL: bucketURL,
		log:       logging.Component("exporter"),
	}
}

var sheetColumns = []string{"id", "timestamp", "wind_speed", "power", "ambient_temperature"}

// Export snapshots the store to `<store>_data_<timestamp>.xlsx` and returns
// the file path. The file is written to a temp path and renamed on success,
// so a failure never leaves a partial artifact. An empty store produces a
// valid header-only sheet.
func (e *Exporter) Export(ctx context.Context, st Snapshotter) (string, error) {
	rows, err := st.Snapshot(ctx)
	if err != nil {
		if m := metrics.Get(); m != nil {
			m.IncExportsFailed(st.Name())
		}
		return "", err
	}

	if err := os.MkdirAll(e.dir, 0755); err != nil {
		return "", fmt.Errorf("create export directory %s: %w", e.dir, err)
	}

	filename := fmt.Sprintf("%s_data_%s.xlsx", st.Name(), time.Now().Format("20060102_150405"))
	path := filepath.Join(e.dir, filename)
	tempPath := path + ".tmp"

	if err := writeSheet(tempPath, rows); err != nil {
		os.Remove(tempPath)
		if m := metrics.Get(); m != nil {
			m.IncExportsFailed(st.Name())
		}
		return "", err
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		if m := metrics.Get(); m != nil {
			m.IncExportsFailed(st.Name())
		}
		return "", fmt.Errorf("rename %s to %s: %w", tempPath, path, err)
	}

	e.log.Info("export written", "store", st.Name(), "path", path, "rows", len(rows))
	if m := metrics.Get(); m != nil {
		m.IncExportsCompleted(st.Name())
	}

	if e.bucketURL != "" {
		// The local artifact is already complete; the bucket copy is a
		// backup and must not undo a finished export.
		if err := upload(ctx, e.bucketURL, filename, path); err != nil {
			e.log.Warn("bucket copy failed", "store", st.Name(), "bucket", e.bucketURL, "error", err)
		} else {
			e.log.Info("bucket copy written", "store", st.Name(), "bucket", e.bucketURL, "key", filename)
		}
	}

	return path, nil
}

// writeSheet builds the workbook: one sheet, header row, one row per reading.
func writeSheet(path string, rows []sensor.Reading) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "data"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	for col, name := range sheetColumns {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("header cell: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, name); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	for i, r := range rows {
		rowNum := i + 2
		values := []any{
			r.ID,
			r.Timestamp.Format("2006-01-02 15:04:05"),
			floatOrNil(r.WindSpeed),
			floatOrNil(r.Power),
			floatOrNil(r.AmbientTemperature),
		}
		for col, v := range values {
			if v == nil {
				continue // NULL stays an empty cell, not a zero
			}
			cell, err := excelize.CoordinatesToCellName(col+1, rowNum)
			if err != nil {
				return fmt.Errorf("data cell: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("write row %d: %w", rowNum, err)
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func floatOrNil(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
