package backend

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"strategy-sweep-lab/internal/storage"
	"strategy-sweep-lab/internal/storage/memory"
	"strategy-sweep-lab/internal/storage/xlsx"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(ctx, Config{Kind: XLSX, Dir: dir}, "coarse")
	if err != nil {
		t.Fatalf("Open(xlsx) error = %v", err)
	}
	wb, ok := s.(*xlsx.ResultTableStore)
	if !ok {
		t.Fatalf("Open(xlsx) = %T", s)
	}
	if want := filepath.Join(dir, "tradingview_backtest_results_coarse.xlsx"); wb.Path() != want {
		t.Errorf("Path() = %q, want %q", wb.Path(), want)
	}

	s, err = Open(ctx, Config{Kind: Memory}, "coarse")
	if err != nil {
		t.Fatalf("Open(memory) error = %v", err)
	}
	if _, ok := s.(*memory.ResultTableStore); !ok {
		t.Errorf("Open(memory) = %T", s)
	}

	_, err = Open(ctx, Config{Kind: "parquet"}, "coarse")
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Open(parquet) error = %v, want ErrInvalidInput", err)
	}
}

func TestDescribe(t *testing.T) {
	if got := Describe(Config{Kind: Postgres}, "fine_w1"); got != "postgres namespace fine_w1" {
		t.Errorf("Describe() = %q", got)
	}
}
