// Command sweep evaluates every combination of the strategy parameter space
// for each instrument, resuming from results already on record.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"strategy-sweep-lab/internal/config"
	"strategy-sweep-lab/internal/evaluator"
	"strategy-sweep-lab/internal/evaluator/stub"
	"strategy-sweep-lab/internal/evaluator/wsbridge"
	"strategy-sweep-lab/internal/logging"
	"strategy-sweep-lab/internal/observability"
	"strategy-sweep-lab/internal/paramspace"
	"strategy-sweep-lab/internal/progress"
	"strategy-sweep-lab/internal/results"
	"strategy-sweep-lab/internal/storage"
	"strategy-sweep-lab/internal/storage/backend"
	"strategy-sweep-lab/internal/sweep"
)

// Exit codes.
const (
	exitOK          = 0
	exitStartup     = 1
	exitRuntime     = 2
	exitInterrupted = 130
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("sweep", pflag.ContinueOnError)
	config.RegisterCommonFlags(fs)
	fs.Bool("skip-complete", false, "Skip instruments whose every combination is on record")
	fs.Bool("force", false, "Re-evaluate combinations already on record")
	fs.Bool("retry-failed", false, "Re-evaluate combinations recorded as failed")
	fs.BoolP("yes", "y", false, "Do not ask for confirmation before a FULL run")
	fs.Int("checkpoint-every", 0, "Combinations between checkpoints")
	fs.Int("max-attempts", 0, "Evaluation attempts per combination")
	fs.Duration("retry-pause", 0, "Pause between attempts")
	fs.Int("workers", 0, "Parallel workers, one evaluator endpoint each")
	fs.String("metrics-addr", "", "Prometheus metrics HTTP address (empty disables)")
	fs.String("timings-csv", "", "Per-combination timing CSV (empty keeps the configured file)")
	fs.Int("progress-window", 0, "Rolling window of the ETA estimate")
	fs.Bool("no-progress", false, "Disable the progress line")
	fs.String("evaluator", "", "Evaluator: ws or stub")
	fs.StringSlice("evaluator-url", nil, "Evaluator websocket endpoints")
	fs.Duration("read-timeout", 0, "How long the evaluator waits for metrics")
	return fs
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := newFlagSet()
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitStartup
	}

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitStartup
	}
	if off, _ := fs.GetBool("no-progress"); off {
		cfg.Progress.Enabled = false
	}

	log := logging.New(logging.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, Out: stderr})

	space, err := paramspace.Preset(cfg.Level)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitStartup
	}
	total := space.Len() * len(cfg.Symbols)
	estimate := time.Duration(total) * cfg.Progress.Fallback / time.Duration(cfg.Workers)

	fmt.Fprintf(stdout, "Level %s: %d combinations x %d symbols = %d tests (rough estimate %s)\n",
		space.Level, space.Len(), len(cfg.Symbols), total, progress.FormatETA(estimate))

	if space.Level == paramspace.Full && !cfg.Yes {
		if !confirm(stdin, stdout, total) {
			fmt.Fprintln(stdout, "Cancelled.")
			return exitOK
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics("sweep")
	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, metrics, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	evaluators, err := openEvaluators(ctx, cfg, log)
	if err != nil {
		fmt.Fprintf(stderr, "Error connecting to evaluator: %v\n", err)
		return exitStartup
	}
	defer func() {
		for _, ev := range evaluators {
			_ = ev.Close()
		}
	}()

	bcfg := backend.Config{
		Kind:          cfg.Storage.Backend,
		Dir:           cfg.Storage.Dir,
		PostgresDSN:   cfg.Storage.PostgresDSN,
		ClickhouseDSN: cfg.Storage.ClickhouseDSN,
		Logger:        log,
	}
	namespace := space.Level.Lower()

	tables, err := backend.Open(ctx, bcfg, namespace)
	if err != nil {
		fmt.Fprintf(stderr, "Error opening result store: %v\n", err)
		return exitStartup
	}
	store := results.New(tables, results.Options{Logger: log.With().Str("component", "results").Logger(), Metrics: metrics})
	defer store.Close()

	loaded, err := store.Load(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading results: %v\n", err)
		return exitStartup
	}
	if loaded.Reset {
		fmt.Fprintln(stdout, "Existing results were unreadable; starting with an empty store.")
	}

	timings := progress.NewTimings()
	var reporter *progress.Reporter
	if cfg.Progress.Enabled {
		reporter = progress.NewReporter(stderr, cfg.Progress.Window, cfg.Progress.Fallback, total)
	}

	opts := sweep.Options{
		Space:           space,
		Instruments:     cfg.Symbols,
		Store:           store,
		Evaluator:       evaluators[0],
		Progress:        reporter,
		Timings:         timings,
		Metrics:         metrics,
		Logger:          log,
		CheckpointEvery: cfg.CheckpointEvery,
		MaxAttempts:     cfg.MaxAttempts,
		RetryPause:      cfg.RetryPause,
		SkipComplete:    cfg.SkipComplete,
		Force:           cfg.Force,
		RetryFailed:     cfg.RetryFailed,
	}

	var summary sweep.Summary
	var runErr error
	if cfg.Workers > 1 {
		workers, closeShards, err := openWorkers(ctx, bcfg, namespace, evaluators)
		if err != nil {
			fmt.Fprintf(stderr, "Error opening worker stores: %v\n", err)
			return exitStartup
		}
		defer closeShards()
		summary, runErr = sweep.RunParallel(ctx, store, opts, workers)
	} else {
		ex, err := sweep.New(opts)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitStartup
		}
		summary, runErr = ex.Run(ctx)
	}

	timings.WriteSummary(stdout)
	if cfg.TimingsCSV != "" {
		if n, err := timings.AppendCSV(cfg.TimingsCSV); err != nil {
			log.Warn().Err(err).Str("path", cfg.TimingsCSV).Msg("could not write timings csv")
		} else if n > 0 {
			fmt.Fprintf(stdout, "Timings: %d rows appended to %s\n", n, cfg.TimingsCSV)
		}
	}
	printSummary(stdout, summary, backend.Describe(bcfg, namespace))

	switch {
	case errors.Is(runErr, sweep.ErrInterrupted), errors.Is(runErr, context.Canceled):
		fmt.Fprintln(stderr, "Interrupted; progress saved.")
		return exitInterrupted
	case runErr != nil:
		fmt.Fprintf(stderr, "Error: %v\n", runErr)
		return exitRuntime
	}
	return exitOK
}

// openEvaluators returns one evaluator per worker.
func openEvaluators(ctx context.Context, cfg *config.Config, log zerolog.Logger) ([]evaluator.Evaluator, error) {
	out := make([]evaluator.Evaluator, 0, cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		if cfg.Evaluator.Kind == "stub" {
			out = append(out, stub.New())
			continue
		}
		client, err := wsbridge.Dial(ctx, wsbridge.Config{
			URL:         cfg.Evaluator.URLs[i],
			ReadTimeout: cfg.Evaluator.ReadTimeout,
			CallTimeout: cfg.Evaluator.CallTimeout,
			Baseline:    cfg.Evaluator.Baseline.Combination(),
			Logger:      log,
		})
		if err != nil {
			for _, ev := range out {
				_ = ev.Close()
			}
			return nil, fmt.Errorf("dial %s: %w", cfg.Evaluator.URLs[i], err)
		}
		out = append(out, client)
	}
	return out, nil
}

// openWorkers opens a shard store per evaluator.
func openWorkers(ctx context.Context, bcfg backend.Config, namespace string, evaluators []evaluator.Evaluator) ([]sweep.Worker, func(), error) {
	var shards []storage.ResultTableStore
	closeAll := func() {
		for _, s := range shards {
			_ = s.Close()
		}
	}

	workers := make([]sweep.Worker, 0, len(evaluators))
	for i, ev := range evaluators {
		tables, err := backend.Open(ctx, bcfg, sweep.ShardNamespace(namespace, i))
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("worker %d: %w", i, err)
		}
		shards = append(shards, tables)
		workers = append(workers, sweep.Worker{Evaluator: ev, Tables: tables})
	}
	return workers, closeAll, nil
}

func serveMetrics(addr string, m *observability.Metrics, log zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Str("addr", addr).Msg("metrics server failed")
		}
	}()
	log.Info().Str("addr", addr).Msg("serving metrics")
	return srv
}

func printSummary(w io.Writer, s sweep.Summary, location string) {
	fmt.Fprintln(w, "==== RUN SUMMARY ====")
	fmt.Fprintf(w, "Instruments:        %d (skipped %d, failed %d)\n", s.Instruments, s.SkippedInstruments, s.FailedInstruments)
	fmt.Fprintf(w, "Evaluated:          %d\n", s.Evaluated)
	fmt.Fprintf(w, "Cached:             %d\n", s.Cached)
	fmt.Fprintf(w, "Recorded failures:  %d\n", s.Failed)
	fmt.Fprintf(w, "Attempts:           %d\n", s.Attempts)
	fmt.Fprintf(w, "Checkpoint errors:  %d\n", s.CheckpointErrors)
	fmt.Fprintf(w, "Elapsed:            %s\n", progress.FormatETA(s.Elapsed))
	fmt.Fprintf(w, "Results:            %s\n", location)
}
