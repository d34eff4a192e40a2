package load

import (
	"context"
	"testing"
	"time"

	"github.com/windlab/sensor-etl/internal/sensor"
)

func fl(v float64) *float64 { return &v }

var loadStart = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func TestDedupe_LastOccurrenceWins(t *testing.T) {
	dup := loadStart.Add(10 * time.Minute)
	rows := []sensor.Transformed{
		{Timestamp: loadStart, WindSpeed: fl(7.0)},
		{Timestamp: dup, WindSpeed: fl(8.0)},
		{Timestamp: loadStart.Add(20 * time.Minute), WindSpeed: fl(9.0)},
		{Timestamp: dup, WindSpeed: fl(8.5)}, // same key, later reading
	}

	out := dedupe(rows)

	if len(out) != 3 {
		t.Fatalf("len = %d, want 3", len(out))
	}
	// First-seen order is preserved, the value is the last occurrence's.
	if !out[1].Timestamp.Equal(dup) {
		t.Errorf("position 1 timestamp = %v, want %v", out[1].Timestamp, dup)
	}
	if out[1].WindSpeed == nil || *out[1].WindSpeed != 8.5 {
		t.Errorf("duplicate resolved to %v, want the later 8.5", out[1].WindSpeed)
	}
	if !out[2].Timestamp.Equal(loadStart.Add(20 * time.Minute)) {
		t.Errorf("position 2 timestamp = %v", out[2].Timestamp)
	}
}

func TestDedupe_NoDuplicatesUnchanged(t *testing.T) {
	rows := []sensor.Transformed{
		{Timestamp: loadStart},
		{Timestamp: loadStart.Add(10 * time.Minute)},
	}
	out := dedupe(rows)
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	for i := range rows {
		if !out[i].Timestamp.Equal(rows[i].Timestamp) {
			t.Errorf("order changed at %d", i)
		}
	}
	// The input slice itself is left alone.
	if !rows[0].Timestamp.Equal(loadStart) {
		t.Error("input slice mutated")
	}
}

func TestLoad_EmptyBatchSkipsStore(t *testing.T) {
	l := New(nil, time.Second) // a touched store would panic here

	res, err := l.Load(context.Background(), nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res != (Result{}) {
		t.Errorf("result = %+v, want zero", res)
	}
}
