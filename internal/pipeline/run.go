// Package pipeline sequences Extract → Transform → Load over one window and
// owns the run registry.
package pipeline

import (
	"errors"
	"sync"
	"time"

	"github.com/windlab/sensor-etl/internal/sensor"
)

// Status is the lifecycle state of one pipeline run.
type Status string

const (
	StatusPending         Status = "pending"
	StatusRunning         Status = "running"
	StatusSucceeded       Status = "succeeded"
	StatusFailed          Status = "failed"
	StatusPartiallyFailed Status = "partially_failed"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusPartiallyFailed:
		return true
	default:
		return false
	}
}

// BatchFailure records why one batch did not reach the target store.
type BatchFailure struct {
	Batch int
	Cause string
}

// Run is one end-to-end execution over a window. It is mutated only by the
// orchestrator goroutine, which publishes snapshots to the registry; once the
// status is terminal the run never changes again.
type Run struct {
	RunID            string
	Window           sensor.Window
	Status           Status
	RecordsProcessed int64
	RecordsFailed    int64
	RecordsCorrupt   int64
	BatchesSucceeded int
	BatchesFailed    int
	Failures         []BatchFailure
	StartedAt        time.Time
	FinishedAt       time.Time
}

// clone returns a snapshot safe to hand to callers.
func (r *Run) clone() *Run {
	cp := *r
	cp.Failures = append([]BatchFailure(nil), r.Failures...)
	return &cp
}

// ErrWindowBusy is returned when a run over an overlapping window is
// already in flight.
var ErrWindowBusy = errors.New("a run over an overlapping window is already in progress")

// Registry maps run IDs to runs and enforces at-most-one concurrent run per
// overlapping window. It holds snapshots only: the orchestrator keeps the
// live Run to itself and publishes copies, so status queries served from
// other goroutines never read a Run that is still being mutated. Its
// lifecycle is tied to the owning orchestrator, not to ambient global state.
type Registry struct {
	mu     sync.Mutex
	runs   map[string]*Run
	active map[string]sensor.Window // windows claimed by in-flight runs
}

// NewRegistry creates an empty run registry.
func NewRegistry() *Registry {
	return &Registry{
		runs:   make(map[string]*Run),
		active: make(map[string]sensor.Window),
	}
}

// acquire registers a snapshot of the run and claims its window. It fails
// with ErrWindowBusy if any in-flight run's window overlaps.
func (g *Registry) acquire(run *Run) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, w := range g.active {
		if run.Window.Overlaps(w) {
			return ErrWindowBusy
		}
	}

	g.runs[run.RunID] = run.clone()
	g.active[run.RunID] = run.Window
	return nil
}

// publish replaces the stored snapshot with the run's current state. Only
// the orchestrator goroutine that owns the run may call it.
func (g *Registry) publish(run *Run) {
	snap := run.clone()
	g.mu.Lock()
	defer g.mu.Unlock()
	g.runs[run.RunID] = snap
}

// release stores the terminal snapshot and frees the run's window claim.
func (g *Registry) release(run *Run) {
	snap := run.clone()
	g.mu.Lock()
	defer g.mu.Unlock()
	g.runs[run.RunID] = snap
	delete(g.active, run.RunID)
}

// Get returns a snapshot of the run, or nil if unknown.
func (g *Registry) Get(runID string) *Run {
	g.mu.Lock()
	defer g.mu.Unlock()
	run, ok := g.runs[runID]
	if !ok {
		return nil
	}
	return run.clone()
}

// List returns snapshots of every known run.
func (g *Registry) List() []*Run {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*Run, 0, len(g.runs))
	for _, run := range g.runs {
		out = append(out, run.clone())
	}
	return out
}
