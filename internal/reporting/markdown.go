package reporting

import (
	"fmt"
	"strings"
	"time"

	"strategy-sweep-lab/internal/analysis"
)

// topGlobal limits the global ranking in Markdown; the CSV holds all rows.
const topGlobal = 10

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("# Parameter Sweep Analysis (%s)\n\n", r.Level))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	// Data Summary
	sb.WriteString("## Data Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Total Rows | %d |\n", r.DataSummary.TotalRows))
	sb.WriteString(fmt.Sprintf("| Recorded Failures | %d |\n", r.DataSummary.FailedRows))
	sb.WriteString(fmt.Sprintf("| Rows Passing Filters | %d |\n", r.DataSummary.PassedRows))
	sb.WriteString(fmt.Sprintf("| Pass Rate | %.1f%% |\n", r.DataSummary.PassRate))
	sb.WriteString(fmt.Sprintf("| Symbols | %d |\n", r.DataSummary.Symbols))
	sb.WriteString("\n")

	// Filters
	sb.WriteString("## Filters\n\n")
	sb.WriteString(fmt.Sprintf("- Total Trades >= %d\n", r.Filters.MinTrades))
	sb.WriteString(fmt.Sprintf("- Drawdown <= %.1f\n", r.Filters.MaxDrawdown))
	sb.WriteString(fmt.Sprintf("- Profit Factor >= %.2f\n", r.Filters.MinProfitFactor))
	sb.WriteString(fmt.Sprintf("- Win Rate >= %.1f\n", r.Filters.MinWinRate))
	sb.WriteString(fmt.Sprintf("\nScore = profit*%.1f + win_rate*%.1f + profit_factor*%.1f - drawdown*%.1f\n\n",
		r.Weights.Profit, r.Weights.WinRate, r.Weights.ProfitFactor, r.Weights.Drawdown))

	// Best per symbol
	sb.WriteString("## Best Parameters per Symbol\n\n")
	if len(r.BestPerSymbol) > 0 {
		sb.WriteString("| Symbol | ATR | RR | Vol | Score | Net Profit | Win Rate | Drawdown | Trades | PF |\n")
		sb.WriteString("|--------|-----|----|-----|-------|------------|----------|----------|--------|----|\n")
		for _, s := range r.BestPerSymbol {
			sb.WriteString(fmt.Sprintf("| %s | %.1f | %.1f | %.1f | %.2f | %s | %s | %s | %s | %s |\n",
				s.Instrument, s.Combination.ATRMultiplier, s.Combination.RiskReward, s.Combination.VolMultiplier,
				s.Score, num(s.NetProfit), num(s.WinRate), num(s.Drawdown), count(s.TotalTrades), num(s.ProfitFactor)))
		}
	} else {
		sb.WriteString("No rows passed the filters.\n")
	}
	sb.WriteString("\n")

	// Global ranking
	sb.WriteString("## Global Parameter Ranking\n\n")
	if len(r.BestGlobal) > 0 {
		sb.WriteString("| ATR | RR | Vol | Mean Score | Mean Net Profit | Symbols |\n")
		sb.WriteString("|-----|----|-----|------------|-----------------|---------|\n")
		for i, g := range r.BestGlobal {
			if i == topGlobal {
				break
			}
			sb.WriteString(fmt.Sprintf("| %.1f | %.1f | %.1f | %.2f | %.2f | %d |\n",
				g.Combination.ATRMultiplier, g.Combination.RiskReward, g.Combination.VolMultiplier,
				g.Score, g.NetProfit, g.Symbols))
		}
	} else {
		sb.WriteString("No global ranking available.\n")
	}
	sb.WriteString("\n")

	// Combo counts
	sb.WriteString("## Winning Combinations\n\n")
	if len(r.ComboCounts) > 0 {
		sb.WriteString("| ATR | RR | Vol | Count | Symbols |\n")
		sb.WriteString("|-----|----|-----|-------|---------|\n")
		for _, c := range r.ComboCounts {
			sb.WriteString(fmt.Sprintf("| %.1f | %.1f | %.1f | %d | %d |\n",
				c.Combination.ATRMultiplier, c.Combination.RiskReward, c.Combination.VolMultiplier,
				c.Count, c.NumSymbols))
		}
	} else {
		sb.WriteString("No winners.\n")
	}
	sb.WriteString("\n")

	// Global vs custom
	sb.WriteString("## Global vs Custom Parameters\n\n")
	if r.Summary != nil {
		g := r.Summary.Global
		sb.WriteString(fmt.Sprintf("Global pick: ATR=%.1f RR=%.1f Vol=%.1f\n\n", g.ATRMultiplier, g.RiskReward, g.VolMultiplier))
		sb.WriteString("| Symbol | Custom Score | Global Score | Regret | Regret % |\n")
		sb.WriteString("|--------|--------------|--------------|--------|----------|\n")
		for _, c := range r.Comparisons {
			symbol := c.Symbol
			if c.Fallback {
				symbol += " (closest)"
			}
			sb.WriteString(fmt.Sprintf("| %s | %.2f | %.2f | %.2f | %.1f |\n",
				symbol, c.CustomScore, c.GlobalScore, c.Regret, c.RegretPct))
		}
		sb.WriteString(fmt.Sprintf("\nAverage regret %.2f (%.1f%%), max %.2f, min %.2f over %d symbols.\n\n",
			r.Summary.AvgRegret, r.Summary.AvgRegretPct, r.Summary.MaxRegret, r.Summary.MinRegret, r.Summary.Symbols))
		sb.WriteString(fmt.Sprintf("**Recommendation:** %s\n", RecommendationText(r.Recommendation)))
	} else {
		sb.WriteString("No comparison available.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}

// RecommendationText describes a recommendation in one line.
func RecommendationText(rec analysis.Recommendation) string {
	switch rec {
	case analysis.RecommendGlobal:
		return "use the global parameters (more robust)"
	case analysis.RecommendCustom:
		return "use per-symbol parameters (significant gain)"
	case analysis.RecommendTradeOff:
		return "trade-off, weigh per-symbol gain against robustness"
	}
	return "none"
}

func num(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *p)
}

func count(p *int64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *p)
}
