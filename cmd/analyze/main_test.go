package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"strategy-sweep-lab/internal/analysis"
	"strategy-sweep-lab/internal/config"
	"strategy-sweep-lab/internal/domain"
	"strategy-sweep-lab/internal/paramspace"
	"strategy-sweep-lab/internal/storage"
	"strategy-sweep-lab/internal/storage/memory"
)

func fptr(v float64) *float64 { return &v }
func iptr(v int64) *int64     { return &v }

func populated(t *testing.T) *memory.ResultTableStore {
	t.Helper()
	store := memory.NewResultTableStore()
	combos := []domain.Combination{
		{ATRMultiplier: 1.0, RiskReward: 2.0, VolMultiplier: 0.8},
		{ATRMultiplier: 2.0, RiskReward: 3.0, VolMultiplier: 1.0},
	}
	var global []domain.Observation
	for i, inst := range []string{"EURUSD", "USDJPY"} {
		var rows []domain.Observation
		for j, c := range combos {
			rows = append(rows, domain.Observation{
				Instrument:   inst,
				Combination:  c,
				NetProfitRaw: "120 USD",
				NetProfit:    fptr(float64(100 + 5*i + 20*j)),
				WinRate:      fptr(50),
				Drawdown:     fptr(5),
				TotalTrades:  iptr(60),
				ProfitFactor: fptr(1.5),
			})
		}
		global = append(global, rows...)
		if err := store.WriteCheckpoint(context.Background(), &storage.Checkpoint{Instrument: inst, Rows: rows, Global: global}); err != nil {
			t.Fatalf("WriteCheckpoint: %v", err)
		}
	}
	return store
}

func TestAnalyze_WritesSheetsAndFiles(t *testing.T) {
	store := populated(t)
	dir := t.TempDir()
	cfg := &config.Config{Analysis: config.AnalysisConfig{OutputDir: dir}}

	var stdout, stderr bytes.Buffer
	code := analyze(context.Background(), store, cfg, paramspace.Coarse, true, "memory", &stdout, &stderr)
	if code != exitOK {
		t.Fatalf("exit code = %d (stderr: %s)", code, stderr.String())
	}

	if _, ok := store.Sheet(analysis.SheetBestPerSymbol); !ok {
		t.Errorf("sheet %s not written; have %v", analysis.SheetBestPerSymbol, store.SheetNames())
	}
	if _, err := os.Stat(filepath.Join(dir, "analysis_coarse.md")); err != nil {
		t.Errorf("markdown report missing: %v", err)
	}
	out := stdout.String()
	if !strings.Contains(out, "Analyzed 4 rows over 2 symbols") {
		t.Errorf("stdout = %q", out)
	}
	if !strings.Contains(out, "Recommendation: use the global parameters") {
		t.Errorf("stdout missing recommendation: %q", out)
	}
}

func TestAnalyze_SkipSheets(t *testing.T) {
	store := populated(t)
	cfg := &config.Config{Analysis: config.AnalysisConfig{OutputDir: t.TempDir()}}

	var stdout, stderr bytes.Buffer
	if code := analyze(context.Background(), store, cfg, paramspace.Coarse, false, "memory", &stdout, &stderr); code != exitOK {
		t.Fatalf("exit code = %d (stderr: %s)", code, stderr.String())
	}
	if names := store.SheetNames(); len(names) != 0 {
		t.Errorf("sheets written despite opt-out: %v", names)
	}
}

func TestAnalyze_NoResults(t *testing.T) {
	cfg := &config.Config{Analysis: config.AnalysisConfig{OutputDir: t.TempDir()}}
	var stdout, stderr bytes.Buffer
	code := analyze(context.Background(), memory.NewResultTableStore(), cfg, paramspace.Fine, true, "memory", &stdout, &stderr)
	if code != exitStartup {
		t.Fatalf("exit code = %d, want %d", code, exitStartup)
	}
	if !strings.Contains(stderr.String(), "run the sweep for level FINE first") {
		t.Errorf("stderr = %q", stderr.String())
	}
}
