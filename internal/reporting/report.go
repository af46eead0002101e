package reporting

import (
	"time"

	"strategy-sweep-lab/internal/analysis"
)

// Report is the analysis report of one test level.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	Level       string

	Filters analysis.Filters
	Weights analysis.Weights

	DataSummary DataSummary

	// Sections, in analysis order
	BestPerSymbol []analysis.Scored
	BestGlobal    []analysis.GlobalParams // sorted by mean score, descending
	ComboCounts   []analysis.ComboCount
	Comparisons   []analysis.Comparison // sorted by regret, descending
	Summary       *analysis.ComparisonSummary

	// Recommendation is empty when no comparison was possible.
	Recommendation analysis.Recommendation

	// Tables holds every analysis table for CSV and sheet output.
	Tables []analysis.Table
}

// DataSummary describes the analyzed rows.
type DataSummary struct {
	TotalRows  int
	FailedRows int
	PassedRows int
	Symbols    int
	PassRate   float64 // percent of rows passing the filters, 0 when empty
}
