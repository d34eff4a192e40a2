package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/windlab/sensor-etl/internal/config"
	"github.com/windlab/sensor-etl/internal/export"
	"github.com/windlab/sensor-etl/internal/extract"
	"github.com/windlab/sensor-etl/internal/load"
	"github.com/windlab/sensor-etl/internal/logging"
	"github.com/windlab/sensor-etl/internal/metrics"
	"github.com/windlab/sensor-etl/internal/pipeline"
	"github.com/windlab/sensor-etl/internal/seed"
	"github.com/windlab/sensor-etl/internal/server"
	"github.com/windlab/sensor-etl/internal/store"
)

// Version information (set via ldflags)
var (
	Version = "v0.1.0"
	GitSHA  = "unknown"
)

const usage = `sensor-etl %s (%s)

Usage:
  sensor-etl run    -start <time> -end <time> | -date <yyyy-mm-dd>
  sensor-etl export -store source|target
  sensor-etl seed   [-start <yyyy-mm-dd>]
  sensor-etl serve

Common flags:
  -config <path>   optional YAML config file (env vars override it)
`

func main() {
	// Env-file bootstrapping, same contract as the surrounding tooling.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, usage, Version, GitSHA)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = cmdRun(os.Args[2:])
	case "export":
		err = cmdExport(os.Args[2:])
	case "seed":
		err = cmdSeed(os.Args[2:])
	case "serve":
		err = cmdServe(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, usage, Version, GitSHA)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "sensor-etl: %v\n", err)
		os.Exit(1)
	}
}

// setup loads config, initializes logging and metrics and returns a context
// cancelled on SIGINT/SIGTERM.
func setup(configPath string) (config.Config, context.Context, context.CancelFunc) {
	cfg := config.MustLoad(configPath)
	logging.Setup(logging.Config(cfg.Logging))
	metrics.Init("sensor_etl")
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	return cfg, ctx, cancel
}

func cmdRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	startArg := fs.String("start", "", "window start (RFC3339 or yyyy-mm-dd)")
	endArg := fs.String("end", "", "window end (RFC3339 or yyyy-mm-dd, exclusive)")
	dateArg := fs.String("date", "", "shorthand: process one whole day (yyyy-mm-dd)")
	fs.Parse(args)

	var start, end time.Time
	var err error
	if *dateArg != "" {
		start, err = time.Parse("2006-01-02", *dateArg)
		if err != nil {
			return fmt.Errorf("parse -date: %w", err)
		}
		end = start.AddDate(0, 0, 1)
	} else {
		if start, err = parseTimeArg(*startArg); err != nil {
			return fmt.Errorf("parse -start: %w", err)
		}
		if end, err = parseTimeArg(*endArg); err != nil {
			return fmt.Errorf("parse -end: %w", err)
		}
	}

	cfg, ctx, cancel := setup(*configPath)
	defer cancel()

	source, target, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer source.Close()
	defer target.Close()

	orch := buildOrchestrator(cfg, source, target)
	run, err := orch.Run(ctx, start, end)
	if err != nil {
		return err
	}

	fmt.Printf("run %s over %s\n", run.RunID, run.Window)
	fmt.Printf("status: %s\n", run.Status)
	fmt.Printf("records processed: %d\n", run.RecordsProcessed)
	fmt.Printf("records failed: %d\n", run.RecordsFailed)
	if run.RecordsCorrupt > 0 {
		fmt.Printf("records corrupt: %d\n", run.RecordsCorrupt)
	}
	for _, f := range run.Failures {
		fmt.Printf("batch %d failed: %s\n", f.Batch, f.Cause)
	}

	if run.Status != pipeline.StatusSucceeded {
		os.Exit(1)
	}
	return nil
}

func cmdExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	storeArg := fs.String("store", "source", "which store to export: source or target")
	fs.Parse(args)

	cfg, ctx, cancel := setup(*configPath)
	defer cancel()

	var storeCfg config.StoreConfig
	switch *storeArg {
	case "source":
		storeCfg = cfg.Source
	case "target":
		storeCfg = cfg.Target
	default:
		return fmt.Errorf("unknown store %q (want source or target)", *storeArg)
	}

	st, err := store.Open(ctx, storeCfg.Name, storeCfg.DSN)
	if err != nil {
		return err
	}
	defer st.Close()

	exporter := export.New(cfg.Export.Dir, cfg.Export.BucketURL)
	path, err := exporter.Export(ctx, st)
	if err != nil {
		return err
	}
	fmt.Printf("exported to %s\n", path)
	return nil
}

func cmdSeed(args []string) error {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	startArg := fs.String("start", "", "first reading timestamp (yyyy-mm-dd)")
	fs.Parse(args)

	cfg, ctx, cancel := setup(*configPath)
	defer cancel()

	start := time.Date(time.Now().Year()-1, time.January, 1, 0, 0, 0, 0, time.UTC)
	if *startArg != "" {
		var err error
		if start, err = time.Parse("2006-01-02", *startArg); err != nil {
			return fmt.Errorf("parse -start: %w", err)
		}
	}

	source, err := store.Open(ctx, cfg.Source.Name, cfg.Source.DSN)
	if err != nil {
		return err
	}
	defer source.Close()

	if err := source.EnsureSourceSchema(ctx); err != nil {
		return err
	}
	return seed.Run(ctx, source, start)
}

func cmdServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	fs.Parse(args)

	cfg, ctx, cancel := setup(*configPath)
	defer cancel()

	source, target, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer source.Close()
	defer target.Close()

	orch := buildOrchestrator(cfg, source, target)
	srv := server.New(orch, cfg.Pipeline.StoreTimeout, source, target)
	return srv.Serve(ctx, cfg.Server.Address)
}

// openStores connects to both stores and ensures their schemas.
func openStores(ctx context.Context, cfg config.Config) (*store.Store, *store.Store, error) {
	source, err := store.Open(ctx, cfg.Source.Name, cfg.Source.DSN)
	if err != nil {
		return nil, nil, err
	}
	if err := source.EnsureSourceSchema(ctx); err != nil {
		source.Close()
		return nil, nil, err
	}

	target, err := store.Open(ctx, cfg.Target.Name, cfg.Target.DSN)
	if err != nil {
		source.Close()
		return nil, nil, err
	}
	if err := target.EnsureTargetSchema(ctx); err != nil {
		source.Close()
		target.Close()
		return nil, nil, err
	}

	return source, target, nil
}

func buildOrchestrator(cfg config.Config, source, target *store.Store) *pipeline.Orchestrator {
	extractor := extract.New(source, cfg.Pipeline.BatchSize, cfg.Pipeline.StoreTimeout)
	loader := load.New(target, cfg.Pipeline.StoreTimeout)
	recorder := pipeline.NewStoreRecorder(target)

	return pipeline.New(
		pipeline.ExtractorSource{Extractor: extractor},
		loader,
		recorder,
		pipeline.Config{
			MaxAttempts:            cfg.Pipeline.MaxAttempts,
			InitialBackoff:         cfg.Pipeline.InitialBackoff,
			ContinueOnBatchFailure: cfg.Pipeline.ContinueOnBatchFailure,
		},
	)
}

func parseTimeArg(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, fmt.Errorf("missing required time argument")
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}
