package extract

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/windlab/sensor-etl/internal/sensor"
)

// fakeRows implements pgx.Rows over in-memory tuples.
type fakeRows struct {
	tuples [][]any
	pos    int
}

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.tuples) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.tuples[r.pos-1]
	for i, d := range dest {
		switch p := d.(type) {
		case *int64:
			*p = row[i].(int64)
		case *time.Time:
			*p = row[i].(time.Time)
		case **float64:
			if row[i] == nil {
				*p = nil
			} else {
				v := row[i].(float64)
				*p = &v
			}
		default:
			return errors.New("unsupported scan destination")
		}
	}
	return nil
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

// fakeDB answers the extractor's queries from an in-memory table of
// (id, timestamp, wind_speed, power, ambient_temperature) tuples, applying
// the same window, keyset and LIMIT semantics the real statements carry.
// A nil timestamp marks a corrupt row. Tuples must be sorted by
// (timestamp, id), like rows coming back under the ORDER BY.
type fakeDB struct {
	table        [][]any
	pageQueries  int
	pageFailures int // fail this many page queries before succeeding
}

func (db *fakeDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	if strings.Contains(sql, "timestamp IS NULL") {
		var tuples [][]any
		for _, row := range db.table {
			if row[1] == nil {
				tuples = append(tuples, []any{row[0]})
			}
		}
		return &fakeRows{tuples: tuples}, nil
	}

	db.pageQueries++
	if db.pageFailures > 0 {
		db.pageFailures--
		return nil, errors.New("connection refused")
	}

	start := args[0].(time.Time)
	end := args[1].(time.Time)
	var afterTS time.Time
	var afterID int64
	limit := args[len(args)-1].(int)
	keyset := len(args) == 5
	if keyset {
		afterTS = args[2].(time.Time)
		afterID = args[3].(int64)
	}

	var tuples [][]any
	for _, row := range db.table {
		if row[1] == nil {
			continue
		}
		ts := row[1].(time.Time)
		if ts.Before(start) || !ts.Before(end) {
			continue
		}
		if keyset {
			id := row[0].(int64)
			if ts.Before(afterTS) || (ts.Equal(afterTS) && id <= afterID) {
				continue
			}
		}
		tuples = append(tuples, row)
		if len(tuples) == limit {
			break
		}
	}
	return &fakeRows{tuples: tuples}, nil
}

var extractStart = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func row(id int64, minutes int, ws float64) []any {
	return []any{id, extractStart.Add(time.Duration(minutes) * time.Minute), ws, 1200.0, 14.5}
}

func window(t *testing.T, hours int) sensor.Window {
	t.Helper()
	w, err := sensor.NewWindow(extractStart, extractStart.Add(time.Duration(hours)*time.Hour))
	if err != nil {
		t.Fatalf("NewWindow: %v", err)
	}
	return w
}

func TestExtract_InvalidWindowRejected(t *testing.T) {
	e := newExtractor(&fakeDB{}, 100, time.Second)

	_, err := e.Extract(context.Background(), sensor.Window{Start: extractStart.Add(time.Hour), End: extractStart})
	if err == nil {
		t.Fatal("expected inverted window to be rejected")
	}
	if kind := sensor.KindOf(err); kind != sensor.KindInvalidWindow {
		t.Errorf("kind = %s, want %s", kind, sensor.KindInvalidWindow)
	}
}

func TestCursor_PaginatesInOrder(t *testing.T) {
	db := &fakeDB{table: [][]any{
		row(1, 0, 7.0), row(2, 10, 7.5), row(3, 20, 8.0), row(4, 30, 8.5), row(5, 40, 9.0),
	}}
	e := newExtractor(db, 2, time.Second)

	cur, err := e.Extract(context.Background(), window(t, 24))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	var got []int64
	var sizes []int
	for i := 0; ; i++ {
		batch, err := cur.Next(context.Background())
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if batch == nil {
			break
		}
		if batch.Index != i {
			t.Errorf("batch index = %d, want %d", batch.Index, i)
		}
		sizes = append(sizes, len(batch.Readings))
		for _, r := range batch.Readings {
			got = append(got, r.ID)
		}
	}

	want := []int64{1, 2, 3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("ids = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ids = %v, want %v", got, want)
		}
	}
	if len(sizes) != 3 || sizes[0] != 2 || sizes[1] != 2 || sizes[2] != 1 {
		t.Errorf("batch sizes = %v, want [2 2 1]", sizes)
	}

	// Short final page ends the cursor without an extra query.
	queries := db.pageQueries
	if batch, err := cur.Next(context.Background()); batch != nil || err != nil {
		t.Errorf("exhausted cursor returned %v, %v", batch, err)
	}
	if db.pageQueries != queries {
		t.Error("exhausted cursor hit the store again")
	}
}

func TestCursor_WindowIsHalfOpen(t *testing.T) {
	db := &fakeDB{table: [][]any{
		row(1, 0, 7.0),
		row(2, 59, 7.5),
		row(3, 60, 8.0), // exactly the window end, excluded
	}}
	e := newExtractor(db, 100, time.Second)

	cur, err := e.Extract(context.Background(), window(t, 1))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	batch, err := cur.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if batch == nil || len(batch.Readings) != 2 {
		t.Fatalf("batch = %+v, want ids 1 and 2", batch)
	}
}

func TestCursor_NullTimestampCountedAsCorrupt(t *testing.T) {
	db := &fakeDB{table: [][]any{
		{int64(1), nil, 7.0, 1200.0, 14.5},
		row(2, 0, 7.5),
		row(3, 10, 8.0),
		{int64(4), nil, 9.0, 1300.0, 15.0},
	}}
	e := newExtractor(db, 100, time.Second)

	cur, err := e.Extract(context.Background(), window(t, 24))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	batch, err := cur.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if batch == nil || len(batch.Readings) != 2 {
		t.Fatalf("batch = %+v, want the 2 intact rows", batch)
	}
	if cur.Corrupt() != 2 {
		t.Errorf("corrupt = %d, want 2", cur.Corrupt())
	}

	// Draining the cursor must not recount them.
	for {
		b, err := cur.Next(context.Background())
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if b == nil {
			break
		}
	}
	if cur.Corrupt() != 2 {
		t.Errorf("corrupt after drain = %d, want 2", cur.Corrupt())
	}
}

func TestCursor_FailedFetchIsRetryableInPlace(t *testing.T) {
	db := &fakeDB{
		table:        [][]any{row(1, 0, 7.0), row(2, 10, 7.5)},
		pageFailures: 1,
	}
	e := newExtractor(db, 100, time.Second)

	cur, err := e.Extract(context.Background(), window(t, 24))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	_, err = cur.Next(context.Background())
	if err == nil {
		t.Fatal("expected the first fetch to fail")
	}
	if kind := sensor.KindOf(err); kind != sensor.KindSourceUnavailable {
		t.Errorf("kind = %s, want %s", kind, sensor.KindSourceUnavailable)
	}

	batch, err := cur.Next(context.Background())
	if err != nil {
		t.Fatalf("retry Next: %v", err)
	}
	if batch == nil || len(batch.Readings) != 2 || batch.Readings[0].ID != 1 {
		t.Fatalf("retry batch = %+v, want the same first page", batch)
	}
	if batch.Index != 0 {
		t.Errorf("retry batch index = %d, want 0", batch.Index)
	}
	if cur.Corrupt() != 0 {
		t.Errorf("corrupt = %d, want 0", cur.Corrupt())
	}
}

func TestCursor_EmptyWindow(t *testing.T) {
	db := &fakeDB{table: [][]any{row(1, 0, 7.0)}}
	e := newExtractor(db, 100, time.Second)

	cur, err := e.Extract(context.Background(), sensor.Window{Start: extractStart, End: extractStart})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	batch, err := cur.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if batch != nil {
		t.Fatalf("batch = %+v, want nil for an empty window", batch)
	}
}

func TestNew_BatchSizeFloor(t *testing.T) {
	e := newExtractor(&fakeDB{}, 0, time.Second)
	if e.batchSize != 1000 {
		t.Errorf("batchSize = %d, want fallback 1000", e.batchSize)
	}
}

func TestCursor_NullFieldsSurvive(t *testing.T) {
	db := &fakeDB{table: [][]any{
		{int64(1), extractStart, nil, 1200.0, nil},
	}}
	e := newExtractor(db, 100, time.Second)

	cur, err := e.Extract(context.Background(), window(t, 1))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	batch, err := cur.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if batch == nil || len(batch.Readings) != 1 {
		t.Fatalf("batch = %+v, want one row", batch)
	}
	r := batch.Readings[0]
	if r.WindSpeed != nil || r.AmbientTemperature != nil {
		t.Error("null columns must come back as nil")
	}
	if r.Power == nil || *r.Power != 1200 {
		t.Errorf("power = %v, want 1200", r.Power)
	}
}
