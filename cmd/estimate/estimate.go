package main

import (
	"fmt"
	"time"

	"strategy-sweep-lab/internal/config"
	"strategy-sweep-lab/internal/paramspace"
)

// Estimate is the projected size and duration of one sweep.
type Estimate struct {
	Level           paramspace.Level
	Symbols         int
	CombosPerSymbol int
	TotalTests      int
	Seconds         float64
}

func estimate(space paramspace.Space, symbols int, secondsPerTest float64) Estimate {
	total := space.Len() * symbols
	return Estimate{
		Level:           space.Level,
		Symbols:         symbols,
		CombosPerSymbol: space.Len(),
		TotalTests:      total,
		Seconds:         float64(total) * secondsPerTest,
	}
}

// formatSeconds renders a duration as Ns, Nmin, N.Nh or N.N days.
func formatSeconds(secs float64) string {
	switch {
	case secs < 60:
		return fmt.Sprintf("%.0fs", secs)
	case secs < 3600:
		return fmt.Sprintf("%.0fmin", secs/60)
	case secs < 86400:
		return fmt.Sprintf("%.1fh", secs/3600)
	}
	return fmt.Sprintf("%.1f days", secs/86400)
}

func suggestions(e Estimate) []string {
	var out []string
	if e.Seconds > (24 * time.Hour).Seconds() {
		out = append(out,
			"Very long run (>24h). Consider:",
			"  - a sparser level (FULL -> FINE -> COARSE)",
			"  - testing a few major pairs first",
			"  - --skip-complete to resume interrupted runs",
		)
	}
	if e.Level == paramspace.Full && e.Symbols > 10 {
		out = append(out,
			"FULL with many symbols:",
			"  - run FINE first to find the promising ranges",
			"  - then FULL only on those",
		)
	}
	if e.Level == paramspace.Coarse {
		out = append(out,
			"COARSE level:",
			"  - fast exploration of the space",
			"  - follow up with FINE on the promising symbols",
		)
	}
	if e.Symbols == len(config.DefaultSymbols) {
		out = append(out,
			"Suggested symbol order:",
			fmt.Sprintf("  1. majors (%d)", len(config.SymbolGroups["majors"])),
			fmt.Sprintf("  2. minors (%d)", len(config.SymbolGroups["minors"])),
			"  3. exotics (the rest)",
		)
	}
	return out
}
