package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/windlab/sensor-etl/internal/store"
)

// StoreRecorder persists terminal runs into the target store's
// pipeline_runs table.
type StoreRecorder struct {
	store *store.Store
}

// NewStoreRecorder creates a recorder over the target store.
func NewStoreRecorder(st *store.Store) *StoreRecorder {
	return &StoreRecorder{store: st}
}

const recordRunSQL = `
	INSERT INTO pipeline_runs (
		run_id, window_start, window_end, status,
		records_processed, records_failed, failure_detail,
		started_at, finished_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (run_id)
	DO UPDATE SET
		status = EXCLUDED.status,
		records_processed = EXCLUDED.records_processed,
		records_failed = EXCLUDED.records_failed,
		failure_detail = EXCLUDED.failure_detail,
		finished_at = EXCLUDED.finished_at
`

// RecordRun upserts the run's terminal state for audit.
func (r *StoreRecorder) RecordRun(ctx context.Context, run *Run) error {
	var detail *string
	if len(run.Failures) > 0 {
		parts := make([]string, 0, len(run.Failures))
		for _, f := range run.Failures {
			parts = append(parts, fmt.Sprintf("batch %d: %s", f.Batch, f.Cause))
		}
		joined := strings.Join(parts, "; ")
		detail = &joined
	}

	_, err := r.store.Pool().Exec(ctx, recordRunSQL,
		run.RunID,
		run.Window.Start,
		run.Window.End,
		string(run.Status),
		run.RecordsProcessed,
		run.RecordsFailed,
		detail,
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", run.RunID, err)
	}
	return nil
}
