package analysis

import (
	"context"
	"fmt"
	"math"

	"strategy-sweep-lab/internal/domain"
	"strategy-sweep-lab/internal/storage"
)

// Sheet names of the analysis tables.
const (
	SheetAllScored      = "Analysis_All_Scored"
	SheetBestPerSymbol  = "Analysis_Best_Per_Symbol"
	SheetBestGlobal     = "Analysis_Best_Global"
	SheetComboCounts    = "Analysis_Combo_Counts"
	SheetGlobalVsCustom = "Analysis_Global_vs_Custom"
)

// ColScore is appended to the result columns of scored tables.
const ColScore = "Score"

// Table is one rendered analysis table.
type Table struct {
	Name   string
	Header []string
	Rows   [][]any
}

// Tables renders every analysis table of res in sheet order.
func Tables(res *Result) []Table {
	scoredHeader := append(append([]string(nil), domain.ResultColumns...), ColScore)
	return []Table{
		{Name: SheetAllScored, Header: scoredHeader, Rows: scoredRows(res.Scored)},
		{Name: SheetBestPerSymbol, Header: scoredHeader, Rows: scoredRows(res.BestPerSymbol)},
		{Name: SheetBestGlobal, Header: []string{
			domain.ColATRMultiplier, domain.ColRR, domain.ColVolMultiplier, ColScore, domain.ColNetProfitClean,
			domain.ColDrawdown, domain.ColWinRate, domain.ColProfitFactor, domain.ColTotalTrades, "Symbols",
		}, Rows: globalRows(res.BestGlobal)},
		{Name: SheetComboCounts, Header: []string{
			domain.ColATRMultiplier, domain.ColRR, domain.ColVolMultiplier, "Count", "NumSymbols",
		}, Rows: comboRows(res.ComboCounts)},
		{Name: SheetGlobalVsCustom, Header: []string{
			"Symbol", "Custom_Score", "Global_Score", "Regret", "Regret_Pct",
			"Custom_ATR", "Custom_RR", "Custom_Vol", "Global_ATR", "Global_RR", "Global_Vol",
		}, Rows: comparisonRows(res.Comparisons, res.Summary)},
	}
}

// WriteSheets stores every analysis table through w.
func WriteSheets(ctx context.Context, w storage.SheetWriter, res *Result) error {
	for _, t := range Tables(res) {
		if err := w.WriteSheet(ctx, t.Name, t.Header, t.Rows); err != nil {
			return fmt.Errorf("write sheet %s: %w", t.Name, err)
		}
	}
	return nil
}

func scoredRows(scored []Scored) [][]any {
	rows := make([][]any, 0, len(scored))
	for _, s := range scored {
		rows = append(rows, append(s.Cells(), s.Score))
	}
	return rows
}

func globalRows(global []GlobalParams) [][]any {
	rows := make([][]any, 0, len(global))
	for _, g := range global {
		c := g.Combination
		rows = append(rows, []any{
			c.ATRMultiplier, c.RiskReward, c.VolMultiplier,
			g.Score, finite(g.NetProfit), g.Drawdown, g.WinRate, g.ProfitFactor, g.TotalTrades, g.Symbols,
		})
	}
	return rows
}

func comboRows(counts []ComboCount) [][]any {
	rows := make([][]any, 0, len(counts))
	for _, cc := range counts {
		c := cc.Combination
		rows = append(rows, []any{c.ATRMultiplier, c.RiskReward, c.VolMultiplier, cc.Count, cc.NumSymbols})
	}
	return rows
}

func comparisonRows(cmps []Comparison, sum *ComparisonSummary) [][]any {
	rows := make([][]any, 0, len(cmps)+1)
	for _, c := range cmps {
		symbol := c.Symbol
		var gATR, gRR, gVol any = c.Global.ATRMultiplier, c.Global.RiskReward, c.Global.VolMultiplier
		if c.Fallback {
			symbol += " (fallback)"
			gATR = fmt.Sprintf("%.1f (closest)", c.Global.ATRMultiplier)
			gRR = fmt.Sprintf("%.1f (closest)", c.Global.RiskReward)
			gVol = fmt.Sprintf("%.1f (closest)", c.Global.VolMultiplier)
		}
		rows = append(rows, []any{
			symbol, c.CustomScore, c.GlobalScore, c.Regret, c.RegretPct,
			c.Custom.ATRMultiplier, c.Custom.RiskReward, c.Custom.VolMultiplier,
			gATR, gRR, gVol,
		})
	}
	if sum != nil {
		rows = append(rows, []any{
			fmt.Sprintf("SUMMARY (%d symbols)", sum.Symbols),
			sum.CustomScore, sum.GlobalScore, sum.AvgRegret, sum.AvgRegretPct,
			fmt.Sprintf("AVG_REGRET: %.2f", sum.AvgRegret),
			fmt.Sprintf("MAX_REGRET: %.2f", sum.MaxRegret),
			fmt.Sprintf("MIN_REGRET: %.2f", sum.MinRegret),
			sum.Global.ATRMultiplier, sum.Global.RiskReward, sum.Global.VolMultiplier,
		})
	}
	return rows
}

func finite(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}
