// Command estimate prints the number of tests and the expected duration of a
// sweep for a level and a set of symbols.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"strategy-sweep-lab/internal/config"
	"strategy-sweep-lab/internal/paramspace"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("estimate", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	config.RegisterCommonFlags(fs)
	fs.Float64("seconds-per-test", 0, "Average seconds per test")
	allLevels := fs.Bool("all-levels", false, "Compare every level")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 1
	}

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	perTest := cfg.Estimate.SecondsPerTest
	symbols := len(cfg.Symbols)

	fmt.Fprintln(stdout, "==== SWEEP TIME ESTIMATE ====")
	if *allLevels {
		fmt.Fprintf(stdout, "Comparison for %d symbol(s) at %.1fs per test:\n", symbols, perTest)
		if symbols < len(config.DefaultSymbols) {
			fmt.Fprintf(stdout, "  Symbols: %s\n", strings.Join(cfg.Symbols, ", "))
		}
		for _, level := range paramspace.Levels() {
			space, err := paramspace.Preset(string(level))
			if err != nil {
				fmt.Fprintf(stderr, "Error: %v\n", err)
				return 1
			}
			e := estimate(space, symbols, perTest)
			fmt.Fprintf(stdout, "%6s: %7d tests -> %10s\n", level, e.TotalTests, formatSeconds(e.Seconds))
		}
		return 0
	}

	space, err := paramspace.Preset(cfg.Level)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	e := estimate(space, symbols, perTest)
	fmt.Fprintf(stdout, "Level:                %s\n", e.Level)
	fmt.Fprintf(stdout, "Symbols:              %d\n", e.Symbols)
	fmt.Fprintf(stdout, "Combinations/symbol:  %d\n", e.CombosPerSymbol)
	fmt.Fprintf(stdout, "Total tests:          %d\n", e.TotalTests)
	fmt.Fprintf(stdout, "Estimated time:       %s\n", formatSeconds(e.Seconds))

	if tips := suggestions(e); len(tips) > 0 {
		fmt.Fprintln(stdout)
		for _, tip := range tips {
			fmt.Fprintln(stdout, tip)
		}
	}
	return 0
}
