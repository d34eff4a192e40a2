package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/windlab/sensor-etl/internal/load"
	"github.com/windlab/sensor-etl/internal/logging"
	"github.com/windlab/sensor-etl/internal/metrics"
	"github.com/windlab/sensor-etl/internal/sensor"
)

// BatchCursor yields batches in timestamp order. Next returns nil when the
// window is exhausted. A failed Next may be retried in place.
type BatchCursor interface {
	Next(ctx context.Context) (*sensor.Batch, error)
	Corrupt() int64
}

// Source opens a cursor over a window of the source store.
type Source interface {
	Extract(ctx context.Context, w sensor.Window) (BatchCursor, error)
}

// Sink commits one transformed batch to the target store.
type Sink interface {
	Load(ctx context.Context, rows []sensor.Transformed) (load.Result, error)
}

// Recorder persists terminal runs for audit.
type Recorder interface {
	RecordRun(ctx context.Context, run *Run) error
}

// Config holds the orchestrator's retry and failure policy.
type Config struct {
	MaxAttempts            int
	InitialBackoff         time.Duration
	ContinueOnBatchFailure bool
}

// Orchestrator drives one run at a time per window: extract, transform and
// load batches sequentially, retrying connectivity faults with exponential
// backoff and recording every failure cause against the run.
type Orchestrator struct {
	src  Source
	sink Sink
	rec  Recorder // optional
	reg  *Registry
	cfg  Config
	log  *slog.Logger
}

// New creates an orchestrator with its own run registry.
func New(src Source, sink Sink, rec Recorder, cfg Config) *Orchestrator {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	return &Orchestrator{
		src:  src,
		sink: sink,
		rec:  rec,
		reg:  NewRegistry(),
		cfg:  cfg,
		log:  logging.Component("orchestrator"),
	}
}

// Registry exposes the run registry for status queries.
func (o *Orchestrator) Registry() *Registry { return o.reg }

// Run executes the pipeline over [start, end). It returns an error only when
// the run is rejected before starting (invalid window, busy window); a run
// that started always returns a terminal Run, whatever its status.
func (o *Orchestrator) Run(ctx context.Context, start, end time.Time) (*Run, error) {
	w, err := sensor.NewWindow(start, end)
	if err != nil {
		return nil, err
	}

	run := &Run{
		RunID:     uuid.New().String(),
		Window:    w,
		Status:    StatusPending,
		StartedAt: time.Now().UTC(),
	}
	if err := o.reg.acquire(run); err != nil {
		return nil, err
	}
	defer o.reg.release(run)

	log := logging.RunLogger(run.RunID, w.Start, w.End)
	log.Info("run started")
	if m := metrics.Get(); m != nil {
		m.RunsStarted.Inc()
	}

	run.Status = StatusRunning
	o.reg.publish(run)
	o.execute(ctx, run, log)
	run.FinishedAt = time.Now().UTC()

	if m := metrics.Get(); m != nil {
		m.IncRunsCompleted(string(run.Status))
		m.RunDuration.Observe(run.FinishedAt.Sub(run.StartedAt).Seconds())
		if run.Status == StatusSucceeded {
			m.LastWindowEnd.Set(float64(w.End.Unix()))
		}
	}
	log.Info("run finished",
		"status", run.Status,
		"records_processed", run.RecordsProcessed,
		"records_failed", run.RecordsFailed,
		"records_corrupt", run.RecordsCorrupt,
		"batches_succeeded", run.BatchesSucceeded,
		"batches_failed", run.BatchesFailed,
	)

	if o.rec != nil {
		// Audit is best effort: a catalog outage must not change the outcome.
		if err := o.rec.RecordRun(context.WithoutCancel(ctx), run); err != nil {
			log.Warn("failed to record run audit", "error", err)
		}
	}

	return run.clone(), nil
}

// execute processes all batches and sets the terminal status on the run.
func (o *Orchestrator) execute(ctx context.Context, run *Run, log *slog.Logger) {
	var cursor BatchCursor
	err := o.withRetry(ctx, log, "extract_open", func(ctx context.Context) error {
		var err error
		cursor, err = o.src.Extract(ctx, run.Window)
		return err
	})
	if err != nil {
		cancelled := errors.Is(err, context.Canceled)
		if !cancelled {
			run.BatchesFailed++
			run.Failures = append(run.Failures, BatchFailure{Batch: 0, Cause: err.Error()})
		}
		o.finalize(run, cursor, cancelled)
		return
	}

	cancelled := false
	for {
		// Cancellation is cooperative and checked at batch boundaries only.
		if ctx.Err() != nil {
			cancelled = true
			break
		}

		var batch *sensor.Batch
		err := o.withRetry(ctx, log, "extract", func(ctx context.Context) error {
			var err error
			batch, err = cursor.Next(ctx)
			return err
		})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				cancelled = true
				break
			}
			// The cursor position is only trustworthy after a successful
			// fetch, so an exhausted extract always aborts the run.
			run.BatchesFailed++
			run.Failures = append(run.Failures, BatchFailure{Batch: run.BatchesSucceeded + run.BatchesFailed - 1, Cause: err.Error()})
			if m := metrics.Get(); m != nil {
				m.BatchesFailed.Inc()
			}
			break
		}
		if batch == nil {
			break
		}

		blog := logging.BatchLogger(run.RunID, batch.Index)
		valid := o.transformBatch(run, batch, blog)

		var res load.Result
		loadStart := time.Now()
		err = o.withRetry(ctx, blog, "load", func(ctx context.Context) error {
			var err error
			res, err = o.sink.Load(ctx, valid)
			return err
		})
		if m := metrics.Get(); m != nil {
			m.BatchLoadDuration.Observe(time.Since(loadStart).Seconds())
		}
		if err != nil {
			if errors.Is(err, context.Canceled) {
				cancelled = true
				break
			}
			run.BatchesFailed++
			run.RecordsFailed += int64(len(valid))
			run.Failures = append(run.Failures, BatchFailure{Batch: batch.Index, Cause: err.Error()})
			if m := metrics.Get(); m != nil {
				m.BatchesFailed.Inc()
			}
			blog.Error("batch failed", "error", err)
			o.reg.publish(run)
			if !o.cfg.ContinueOnBatchFailure {
				break
			}
			continue
		}

		run.BatchesSucceeded++
		run.RecordsProcessed += int64(res.Inserted + res.Updated)
		o.reg.publish(run)
		if m := metrics.Get(); m != nil {
			m.BatchesProcessed.Inc()
			m.RecordsProcessed.Add(float64(res.Inserted + res.Updated))
			m.RecordsInserted.Add(float64(res.Inserted))
			m.RecordsUpdated.Add(float64(res.Updated))
		}
		blog.Info("batch committed", "inserted", res.Inserted, "updated", res.Updated, "rejected", len(batch.Readings)-len(valid))
	}

	o.finalize(run, cursor, cancelled)
}

// transformBatch validates every reading, keeping the valid ones and
// recording the rest against the run. Each input reaches exactly one outcome.
func (o *Orchestrator) transformBatch(run *Run, batch *sensor.Batch, log *slog.Logger) []sensor.Transformed {
	valid := make([]sensor.Transformed, 0, len(batch.Readings))
	for _, r := range batch.Readings {
		t, err := sensor.Transform(r)
		if err != nil {
			run.RecordsFailed++
			if m := metrics.Get(); m != nil {
				m.RecordsFailed.Inc()
			}
			log.Warn("reading rejected", "id", r.ID, "timestamp", r.Timestamp, "error", err)
			continue
		}
		valid = append(valid, t)
	}
	return valid
}

// finalize moves the run to its terminal state.
func (o *Orchestrator) finalize(run *Run, cursor BatchCursor, cancelled bool) {
	if cursor != nil {
		run.RecordsCorrupt = cursor.Corrupt()
	}
	switch {
	case cancelled && run.BatchesSucceeded == 0:
		// Cancelled before anything was committed: no progress to keep.
		run.Status = StatusFailed
	case cancelled:
		// Committed batches stay; the remainder of the window was not
		// processed, which is a partial outcome by definition.
		run.Status = StatusPartiallyFailed
	case run.BatchesFailed == 0:
		run.Status = StatusSucceeded
	case run.BatchesSucceeded == 0:
		run.Status = StatusFailed
	default:
		run.Status = StatusPartiallyFailed
	}
}

// withRetry runs fn, retrying connectivity faults with exponential backoff
// up to the configured attempt limit. Data faults return immediately.
func (o *Orchestrator) withRetry(ctx context.Context, log *slog.Logger, op string, fn func(context.Context) error) error {
	backoff := o.cfg.InitialBackoff
	var err error
	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if m := metrics.Get(); m != nil {
				m.IncRetryAttempts(op)
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !sensor.Retryable(err) {
			return err
		}
		log.Warn("retryable failure", "operation", op, "attempt", attempt, "max_attempts", o.cfg.MaxAttempts, "error", err)
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, o.cfg.MaxAttempts, err)
}
