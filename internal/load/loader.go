// Package load writes transformed readings into the target store with
// idempotent upsert semantics.
package load

import (
	"context"
	"log/slog"
	"time"

	"github.com/windlab/sensor-etl/internal/logging"
	"github.com/windlab/sensor-etl/internal/sensor"
	"github.com/windlab/sensor-etl/internal/store"
)

// Result reports the outcome of one batch load.
type Result struct {
	Inserted int
	Updated  int
	Failed   int
}

// Loader commits batches to the target store, one transaction per batch.
type Loader struct {
	store   *store.Store
	timeout time.Duration
	log     *slog.Logger
}

// New creates a loader over the target store.
func New(st *store.Store, timeout time.Duration) *Loader {
	return &Loader{
		store:   st,
		timeout: timeout,
		log:     logging.Component("loader"),
	}
}

const upsertSQL = `
	INSERT INTO data (timestamp, wind_speed, power, ambient_temperature)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (timestamp)
	DO UPDATE SET
		wind_speed = EXCLUDED.wind_speed,
		power = EXCLUDED.power,
		ambient_temperature = EXCLUDED.ambient_temperature
	RETURNING (xmax = 0) AS inserted
`

// Load writes the batch as a single transaction keyed on timestamp.
// Re-loading an identical batch is a no-op row-wise: every row reports
// updated and the table contents do not change. A failure anywhere rolls
// back the whole batch.
func (l *Loader) Load(ctx context.Context, rows []sensor.Transformed) (Result, error) {
	if len(rows) == 0 {
		return Result{}, nil
	}
	rows = dedupe(rows)

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	tx, err := l.store.Pool().Begin(ctx)
	if err != nil {
		return Result{Failed: len(rows)}, store.Classify(err, sensor.KindTargetUnavailable, "begin batch")
	}
	defer tx.Rollback(ctx)

	var res Result
	for _, r := range rows {
		var inserted bool
		err := tx.QueryRow(ctx, upsertSQL, r.Timestamp, r.WindSpeed, r.Power, r.AmbientTemperature).Scan(&inserted)
		if err != nil {
			return Result{Failed: len(rows)}, store.Classify(err, sensor.KindTargetUnavailable, "upsert reading")
		}
		if inserted {
			res.Inserted++
		} else {
			res.Updated++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Result{Failed: len(rows)}, store.Classify(err, sensor.KindTargetUnavailable, "commit batch")
	}

	l.log.Debug("batch committed", "inserted", res.Inserted, "updated", res.Updated)
	return res, nil
}

// dedupe keeps the last reading per timestamp, preserving first-seen order.
// The source table has no unique constraint, and two rows with the same key
// inside one transaction would make the upsert fail with "cannot affect row
// a second time" (SQLSTATE 21000); collapsing to the last occurrence matches
// the upsert's own last-write-wins.
func dedupe(rows []sensor.Transformed) []sensor.Transformed {
	seen := make(map[time.Time]int, len(rows))
	out := make([]sensor.Transformed, 0, len(rows))
	for _, r := range rows {
		if i, ok := seen[r.Timestamp]; ok {
			out[i] = r
			continue
		}
		seen[r.Timestamp] = len(out)
		out = append(out, r)
	}
	return out
}
