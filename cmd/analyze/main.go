// Command analyze scores sweep results, picks the best parameters per symbol
// and globally, and writes the analysis as workbook sheets, Markdown and CSV.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"strategy-sweep-lab/internal/analysis"
	"strategy-sweep-lab/internal/config"
	"strategy-sweep-lab/internal/logging"
	"strategy-sweep-lab/internal/paramspace"
	"strategy-sweep-lab/internal/reporting"
	"strategy-sweep-lab/internal/storage"
	"strategy-sweep-lab/internal/storage/backend"
)

const (
	exitOK      = 0
	exitStartup = 1
	exitRuntime = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("analyze", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	config.RegisterCommonFlags(fs)
	fs.String("output-dir", "", "Output directory for the Markdown and CSV files")
	noSheets := fs.Bool("no-sheets", false, "Do not write analysis sheets back into the workbook")
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
	log := logging.New(logging.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, Out: stderr})
	ctx := context.Background()

	level := cfg.ParsedLevel()
	bcfg := backend.Config{
		Kind:          cfg.Storage.Backend,
		Dir:           cfg.Storage.Dir,
		PostgresDSN:   cfg.Storage.PostgresDSN,
		ClickhouseDSN: cfg.Storage.ClickhouseDSN,
		Logger:        log,
	}
	tables, err := backend.Open(ctx, bcfg, level.Lower())
	if err != nil {
		fmt.Fprintf(stderr, "Error opening result store: %v\n", err)
		return exitStartup
	}
	defer tables.Close()

	return analyze(ctx, tables, cfg, level, !*noSheets, backend.Describe(bcfg, level.Lower()), stdout, stderr)
}

func analyze(ctx context.Context, tables storage.ResultTableStore, cfg *config.Config, level paramspace.Level,
	sheets bool, location string, stdout, stderr io.Writer) int {
	gen := reporting.NewGenerator(tables, analysis.Options{
		Filters: cfg.Analysis.Filters,
		Weights: cfg.Analysis.Weights,
	})
	report, res, err := gen.Generate(ctx, string(level))
	if errors.Is(err, analysis.ErrNoResults) {
		fmt.Fprintf(stderr, "No results in %s; run the sweep for level %s first.\n", location, level)
		return exitStartup
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error analyzing results: %v\n", err)
		return exitRuntime
	}

	fmt.Fprintf(stdout, "Analyzed %d rows over %d symbols (%d failed, %d passed filters)\n",
		report.DataSummary.TotalRows, report.DataSummary.Symbols,
		report.DataSummary.FailedRows, report.DataSummary.PassedRows)

	if sw, ok := tables.(storage.SheetWriter); ok && sheets {
		if err := analysis.WriteSheets(ctx, sw, res); err != nil {
			fmt.Fprintf(stderr, "Error writing analysis sheets: %v\n", err)
			return exitRuntime
		}
		fmt.Fprintf(stdout, "Analysis sheets written to %s\n", location)
	}

	paths, err := reporting.WriteFiles(cfg.Analysis.OutputDir, report)
	if err != nil {
		fmt.Fprintf(stderr, "Error writing report files: %v\n", err)
		return exitRuntime
	}
	for _, p := range paths {
		fmt.Fprintf(stdout, "  - %s\n", p)
	}

	if s := report.Summary; s != nil {
		fmt.Fprintf(stdout, "Average regret of global parameters: %.2f (%.1f%%)\n", s.AvgRegret, s.AvgRegretPct)
		fmt.Fprintf(stdout, "Recommendation: %s\n", reporting.RecommendationText(report.Recommendation))
	}
	return exitOK
}
