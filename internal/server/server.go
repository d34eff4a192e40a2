// Package server exposes the trigger, run-status and liveness surface over
// HTTP. It is a thin shell: the orchestrator stays the only entry point and
// no UI is assumed.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/windlab/sensor-etl/internal/logging"
	"github.com/windlab/sensor-etl/internal/pipeline"
	"github.com/windlab/sensor-etl/internal/sensor"
)

// Pinger is the reachability contract of one store.
type Pinger interface {
	Name() string
	Ping(ctx context.Context) error
}

// Runner is the pipeline entry point the server triggers.
type Runner interface {
	Run(ctx context.Context, start, end time.Time) (*pipeline.Run, error)
	Registry() *pipeline.Registry
}

// Server routes HTTP requests to the pipeline core.
type Server struct {
	runner  Runner
	pingers []Pinger
	timeout time.Duration
	log     *slog.Logger
}

// New creates a server over the given runner and store probes.
func New(runner Runner, timeout time.Duration, pingers ...Pinger) *Server {
	return &Server{
		runner:  runner,
		pingers: pingers,
		timeout: timeout,
		log:     logging.Component("server"),
	}
}

// Router builds the HTTP route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.correlationMiddleware)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/runs", s.handleTriggerRun).Methods(http.MethodPost)
	r.HandleFunc("/runs", s.handleListRuns).Methods(http.MethodGet)
	r.HandleFunc("/runs/{id}", s.handleGetRun).Methods(http.MethodGet)
	return r
}

// Serve blocks until the context is cancelled or the listener fails.
func (s *Server) Serve(ctx context.Context, address string) error {
	srv := &http.Server{
		Addr:              address,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.log.Info("listening", "address", address)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// correlationMiddleware tags every request with a correlation ID, honoring
// one supplied by the caller, and echoes it in the response.
func (s *Server) correlationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Correlation-ID")
		if id == "" {
			id = logging.GenerateCorrelationID()
		}
		w.Header().Set("X-Correlation-ID", id)
		next.ServeHTTP(w, r.WithContext(logging.WithCorrelationID(r.Context(), id)))
	})
}

type healthResponse struct {
	Status string            `json:"status"`
	Stores map[string]string `json:"stores"`
}

// handleHealth reports whether the core can reach both stores.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	resp := healthResponse{Status: "ok", Stores: make(map[string]string, len(s.pingers))}
	for _, p := range s.pingers {
		if err := p.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.Stores[p.Name()] = err.Error()
		} else {
			resp.Stores[p.Name()] = "ok"
		}
	}

	code := http.StatusOK
	if resp.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

type triggerRequest struct {
	WindowStart string `json:"window_start"`
	WindowEnd   string `json:"window_end"`
}

type runResponse struct {
	RunID            string                  `json:"run_id"`
	WindowStart      time.Time               `json:"window_start"`
	WindowEnd        time.Time               `json:"window_end"`
	Status           string                  `json:"status"`
	RecordsProcessed int64                   `json:"records_processed"`
	RecordsFailed    int64                   `json:"records_failed"`
	RecordsCorrupt   int64                   `json:"records_corrupt"`
	Failures         []pipeline.BatchFailure `json:"failures,omitempty"`
	StartedAt        time.Time               `json:"started_at"`
	FinishedAt       *time.Time              `json:"finished_at,omitempty"`
}

func toRunResponse(run *pipeline.Run) runResponse {
	resp := runResponse{
		RunID:            run.RunID,
		WindowStart:      run.Window.Start,
		WindowEnd:        run.Window.End,
		Status:           string(run.Status),
		RecordsProcessed: run.RecordsProcessed,
		RecordsFailed:    run.RecordsFailed,
		RecordsCorrupt:   run.RecordsCorrupt,
		Failures:         run.Failures,
		StartedAt:        run.StartedAt,
	}
	if !run.FinishedAt.IsZero() {
		finished := run.FinishedAt
		resp.FinishedAt = &finished
	}
	return resp
}

// handleTriggerRun runs the pipeline synchronously over the requested window.
func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	start, err := parseTime(req.WindowStart)
	if err != nil {
		writeError(w, http.StatusBadRequest, "window_start: "+err.Error())
		return
	}
	end, err := parseTime(req.WindowEnd)
	if err != nil {
		writeError(w, http.StatusBadRequest, "window_end: "+err.Error())
		return
	}

	run, err := s.runner.Run(r.Context(), start, end)
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrWindowBusy):
			writeError(w, http.StatusConflict, err.Error())
		case sensor.KindOf(err) == sensor.KindInvalidWindow:
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.log.Error("run trigger failed", "correlation_id", logging.CorrelationID(r.Context()), "error", err)
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, toRunResponse(run))
}

// handleGetRun returns the audited state of one run.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	run := s.runner.Registry().Get(id)
	if run == nil {
		writeError(w, http.StatusNotFound, "unknown run id")
		return
	}
	writeJSON(w, http.StatusOK, toRunResponse(run))
}

// handleListRuns returns every run known to the registry.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs := s.runner.Registry().List()
	out := make([]runResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, toRunResponse(run))
	}
	writeJSON(w, http.StatusOK, out)
}

// parseTime accepts RFC3339 or a bare date.
func parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
