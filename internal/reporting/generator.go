package reporting

import (
	"context"
	"time"

	"strategy-sweep-lab/internal/analysis"
	"strategy-sweep-lab/internal/storage"
)

// Generator produces reports from stored results.
type Generator struct {
	tables   storage.ResultTableStore
	analyzer *analysis.Analyzer
	filters  analysis.Filters
	weights  analysis.Weights
	now      func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(tables storage.ResultTableStore, opts analysis.Options) *Generator {
	if opts.Filters == (analysis.Filters{}) {
		opts.Filters = analysis.DefaultFilters()
	}
	if opts.Weights == (analysis.Weights{}) {
		opts.Weights = analysis.DefaultWeights()
	}
	return &Generator{
		tables:   tables,
		analyzer: analysis.New(opts),
		filters:  opts.Filters,
		weights:  opts.Weights,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate loads the stored results and analyzes them.
func (g *Generator) Generate(ctx context.Context, level string) (*Report, *analysis.Result, error) {
	rows, err := analysis.Load(ctx, g.tables)
	if err != nil {
		return nil, nil, err
	}
	res := g.analyzer.Analyze(rows)
	return g.Build(level, res), res, nil
}

// Build assembles a report from an analysis result.
func (g *Generator) Build(level string, res *analysis.Result) *Report {
	r := &Report{
		GeneratedAt: g.now(),
		Level:       level,
		Filters:     g.filters,
		Weights:     g.weights,
		DataSummary: DataSummary{
			TotalRows:  res.TotalRows,
			FailedRows: res.FailedRows,
			PassedRows: res.FilteredRows,
			Symbols:    res.Symbols,
		},
		BestPerSymbol: res.BestPerSymbol,
		BestGlobal:    res.BestGlobal,
		ComboCounts:   res.ComboCounts,
		Comparisons:   res.Comparisons,
		Summary:       res.Summary,
		Tables:        analysis.Tables(res),
	}
	if res.TotalRows > 0 {
		r.DataSummary.PassRate = float64(res.FilteredRows) / float64(res.TotalRows) * 100
	}
	if rec, ok := res.Recommendation(); ok {
		r.Recommendation = rec
	}
	return r
}
