package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownSymbol is returned for an instrument or group name outside the universe.
var ErrUnknownSymbol = errors.New("unknown symbol")

// DefaultSymbols is the instrument universe in sweep order.
var DefaultSymbols = []string{
	"EURUSD", "EURAUD", "USDCAD", "NZDJPY", "GBPUSD", "USDJPY", "EURJPY",
	"GBPJPY", "AUDUSD", "AUDJPY", "AUDCAD", "USDCHF", "EURNZD", "EURGBP",
	"NZDUSD", "EURCAD", "EURCHF", "GBPCAD", "AUDNZD", "CADCHF", "GBPCHF",
	"CADJPY", "GBPAUD", "GBPNZD", "NZDCAD",
}

// SymbolGroups are shorthand selections accepted wherever symbols are.
var SymbolGroups = map[string][]string{
	"majors":  {"EURUSD", "GBPUSD", "USDJPY", "AUDUSD", "USDCAD", "USDCHF"},
	"minors":  {"EURJPY", "GBPJPY", "EURGBP", "AUDCAD", "EURCAD", "EURCHF"},
	"exotics": {"NZDJPY", "CADCHF", "GBPNZD", "AUDNZD", "GBPCAD", "NZDUSD"},
}

// ResolveSymbols expands group names and validates instruments against the
// universe. An empty selection (or "all") yields every instrument. Order of
// first appearance is kept and duplicates are dropped.
func ResolveSymbols(names []string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	add := func(sym string) {
		if !seen[sym] {
			seen[sym] = true
			out = append(out, sym)
		}
	}

	for _, raw := range names {
		for _, part := range strings.Split(raw, ",") {
			name := strings.TrimSpace(part)
			if name == "" {
				continue
			}
			lower := strings.ToLower(name)
			if lower == "all" {
				for _, sym := range DefaultSymbols {
					add(sym)
				}
				continue
			}
			if group, ok := SymbolGroups[lower]; ok {
				for _, sym := range group {
					add(sym)
				}
				continue
			}
			sym := strings.ToUpper(name)
			if !isKnownSymbol(sym) {
				return nil, fmt.Errorf("%w: %q (valid: %s, or a group: all, majors, minors, exotics)",
					ErrUnknownSymbol, name, strings.Join(DefaultSymbols, ", "))
			}
			add(sym)
		}
	}

	if len(out) == 0 {
		return append([]string(nil), DefaultSymbols...), nil
	}
	return out, nil
}

func isKnownSymbol(sym string) bool {
	for _, s := range DefaultSymbols {
		if s == sym {
			return true
		}
	}
	return false
}
