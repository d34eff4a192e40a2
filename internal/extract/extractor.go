// Package extract pulls readings from the source store as an ordered,
// lazily fetched sequence of bounded batches.
package extract

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/windlab/sensor-etl/internal/logging"
	"github.com/windlab/sensor-etl/internal/metrics"
	"github.com/windlab/sensor-etl/internal/sensor"
	"github.com/windlab/sensor-etl/internal/store"
)

// querier is the slice of the connection pool the extractor needs.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Extractor reads windows of the source data table in batches.
type Extractor struct {
	db        querier
	batchSize int
	timeout   time.Duration
	log       *slog.Logger
}

// New creates an extractor over the source store.
func New(st *store.Store, batchSize int, timeout time.Duration) *Extractor {
	return newExtractor(st.Pool(), batchSize, timeout)
}

func newExtractor(db querier, batchSize int, timeout time.Duration) *Extractor {
	if batchSize < 1 {
		batchSize = 1000
	}
	return &Extractor{
		db:        db,
		batchSize: batchSize,
		timeout:   timeout,
		log:       logging.Component("extractor"),
	}
}

// Extract opens a cursor over the window [w.Start, w.End). The cursor fetches
// one batch per Next call using keyset pagination on (timestamp, id), so the
// same reading is never skipped or returned twice against a stable source.
func (e *Extractor) Extract(ctx context.Context, w sensor.Window) (*Cursor, error) {
	if _, err := sensor.NewWindow(w.Start, w.End); err != nil {
		return nil, err
	}
	return &Cursor{ex: e, window: w}, nil
}

// Cursor is a restartable position in one extraction. A failed Next leaves
// the position unchanged, so the orchestrator can retry the same batch.
type Cursor struct {
	ex     *Extractor
	window sensor.Window

	started        bool
	corruptScanned bool
	lastTS         time.Time
	lastID         int64
	nextIndex      int
	done           bool
	corrupt        int64
}

const firstPageSQL = `
	SELECT id, timestamp, wind_speed, power, ambient_temperature
	FROM data
	WHERE timestamp >= $1 AND timestamp < $2
	ORDER BY timestamp, id
	LIMIT $3
`

const nextPageSQL = `
	SELECT id, timestamp, wind_speed, power, ambient_temperature
	FROM data
	WHERE timestamp >= $1 AND timestamp < $2
	  AND (timestamp, id) > ($3, $4)
	ORDER BY timestamp, id
	LIMIT $5
`

const corruptSQL = `SELECT id FROM data WHERE timestamp IS NULL`

// Next returns the next batch in timestamp order, or nil when the window is
// exhausted. Connectivity faults surface as SourceUnavailable and are
// retryable in place.
func (c *Cursor) Next(ctx context.Context) (*sensor.Batch, error) {
	if c.done {
		return nil, nil
	}

	fetchCtx := ctx
	if c.ex.timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, c.ex.timeout)
		defer cancel()
	}

	if !c.corruptScanned {
		if err := c.scanCorrupt(fetchCtx); err != nil {
			return nil, err
		}
		c.corruptScanned = true
	}

	var (
		rows pgx.Rows
		err  error
	)
	if !c.started {
		rows, err = c.ex.db.Query(fetchCtx, firstPageSQL, c.window.Start, c.window.End, c.ex.batchSize)
	} else {
		rows, err = c.ex.db.Query(fetchCtx, nextPageSQL, c.window.Start, c.window.End, c.lastTS, c.lastID, c.ex.batchSize)
	}
	if err != nil {
		return nil, store.Classify(err, sensor.KindSourceUnavailable, "fetch batch")
	}
	defer rows.Close()

	batch := &sensor.Batch{Index: c.nextIndex}
	for rows.Next() {
		var r sensor.Reading
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.WindSpeed, &r.Power, &r.AmbientTemperature); err != nil {
			return nil, store.Classify(err, sensor.KindSourceUnavailable, "scan reading")
		}
		batch.Readings = append(batch.Readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Classify(err, sensor.KindSourceUnavailable, "fetch batch")
	}

	// Position advances only after a fully successful fetch.
	c.started = true
	n := len(batch.Readings)
	if n == 0 {
		c.done = true
		return nil, nil
	}
	last := batch.Readings[n-1]
	c.lastTS = last.Timestamp
	c.lastID = last.ID
	if n < c.ex.batchSize {
		c.done = true
	}

	c.nextIndex++
	return batch, nil
}

// scanCorrupt surfaces rows whose timestamp is NULL. Such rows can never
// satisfy the window predicate, so without this pass they would silently
// vanish from every extraction. Runs once per cursor; counters move only
// after the whole scan succeeds, keeping a failed scan retryable.
func (c *Cursor) scanCorrupt(ctx context.Context) error {
	rows, err := c.ex.db.Query(ctx, corruptSQL)
	if err != nil {
		return store.Classify(err, sensor.KindSourceUnavailable, "scan corrupt rows")
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return store.Classify(err, sensor.KindSourceUnavailable, "scan corrupt rows")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return store.Classify(err, sensor.KindSourceUnavailable, "scan corrupt rows")
	}

	for _, id := range ids {
		c.ex.log.Warn("corrupt record excluded", "id", id, "reason", "null timestamp")
	}
	c.corrupt += int64(len(ids))
	if len(ids) > 0 {
		if m := metrics.Get(); m != nil {
			m.RecordsCorrupt.Add(float64(len(ids)))
		}
	}
	return nil
}

// Corrupt reports how many malformed rows the cursor has excluded so far.
func (c *Cursor) Corrupt() int64 { return c.corrupt }
