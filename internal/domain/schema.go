package domain

// Persisted column headers. The order is part of the on-disk contract.
const (
	ColSymbol         = "Symbol"
	ColATRMultiplier  = "ATR Multiplier"
	ColRR             = "RR"
	ColVolMultiplier  = "Vol Multiplier"
	ColNetProfit      = "Net Profit"
	ColNetProfitClean = "Net Profit Clean"
	ColWinRate        = "Win Rate"
	ColDrawdown       = "drawdown"
	ColTotalTrades    = "Total Trades"
	ColProfitFactor   = "Profit Factor"
)

// ResultColumns is the schema of instrument tables and the global table.
var ResultColumns = []string{
	ColSymbol, ColATRMultiplier, ColRR, ColVolMultiplier,
	ColNetProfit, ColNetProfitClean, ColWinRate, ColDrawdown,
	ColTotalTrades, ColProfitFactor,
}

// BestColumns is the schema of the best-per-instrument table.
var BestColumns = []string{
	ColSymbol,
	"Best ATR Multiplier", "Best RR", "Best Vol Multiplier",
	"Best Net Profit", "Best Win Rate", "Best Drawdown",
	"Best Total Trades", "Best Profit Factor", "Best Net Profit Clean",
}

// Sheet names used by table stores that lay tables out by name.
const (
	InstrumentTableSuffix = "_Results"
	GlobalTable           = "All_Results"
	BestTable             = "Best_Per_Symbol"
)

// InstrumentTable returns the table name for an instrument.
func InstrumentTable(instrument string) string {
	return instrument + InstrumentTableSuffix
}

// Cells renders o in ResultColumns order. Missing metrics render as nil.
func (o Observation) Cells() []any {
	cells := []any{
		o.Instrument,
		o.Combination.ATRMultiplier,
		o.Combination.RiskReward,
		o.Combination.VolMultiplier,
	}
	if o.Failed {
		for i := 0; i < 6; i++ {
			cells = append(cells, ErrorMarker)
		}
		return cells
	}
	var trades any
	if o.TotalTrades != nil {
		trades = *o.TotalTrades
	}
	return append(cells,
		o.NetProfitRaw,
		floatCell(o.NetProfit),
		floatCell(o.WinRate),
		floatCell(o.Drawdown),
		trades,
		floatCell(o.ProfitFactor),
	)
}

// BestCells renders o as a row of the best-per-instrument table.
func (o Observation) BestCells() []any {
	var trades any
	if o.TotalTrades != nil {
		trades = *o.TotalTrades
	}
	return []any{
		o.Instrument,
		o.Combination.ATRMultiplier,
		o.Combination.RiskReward,
		o.Combination.VolMultiplier,
		o.NetProfitRaw,
		floatCell(o.WinRate),
		floatCell(o.Drawdown),
		trades,
		floatCell(o.ProfitFactor),
		floatCell(o.NetProfit),
	}
}

func floatCell(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
