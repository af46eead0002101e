// Package cleaning converts raw metric text and persisted cells into typed
// observations. It is the only constructor of domain.Observation values.
package cleaning

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"strategy-sweep-lab/internal/domain"
	"strategy-sweep-lab/internal/idhash"
)

var signReplacer = strings.NewReplacer(
	"\u2212", "-", // minus sign
	"\u2013", "-", // en dash
	"\u2014", "-",
	"\u202f", "", // narrow no-break space
	"\u00a0", "",
	"\u2009", "", // thin space
	" ", "",
	"\t", "",
)

// Number parses locale-formatted metric text such as "1 234,56%", "−3,2" or
// "2.5x". It returns nil when no number can be recovered.
func Number(raw string) *float64 {
	s := signReplacer.Replace(strings.TrimSpace(raw))
	s = normalizeSeparators(s)
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-', r == '+':
			return r
		}
		return -1
	}, s)
	s = strings.TrimPrefix(s, "+")
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	v := d.InexactFloat64()
	return &v
}

// normalizeSeparators leaves at most one '.' acting as the decimal point.
func normalizeSeparators(s string) string {
	commas := strings.Count(s, ",")
	dots := strings.Count(s, ".")
	switch {
	case commas > 0 && dots > 0:
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case commas == 1:
		return strings.Replace(s, ",", ".", 1)
	case commas > 1:
		return strings.ReplaceAll(s, ",", "")
	case dots > 1:
		return strings.ReplaceAll(s, ".", "")
	}
	return s
}

// Count keeps only the digits of raw and parses them as a trade count.
func Count(raw string) *int64 {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)
	if digits == "" {
		return nil
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

// Observe builds a successful observation from one metrics read.
func Observe(instrument string, c domain.Combination, raw domain.RawMetrics) domain.Observation {
	return domain.Observation{
		Instrument:   idhash.NormalizeInstrument(instrument),
		Combination:  roundCombination(c),
		NetProfitRaw: strings.TrimSpace(raw.NetProfit),
		NetProfit:    Number(raw.NetProfit),
		WinRate:      Number(raw.WinRate),
		Drawdown:     Number(raw.Drawdown),
		TotalTrades:  Count(raw.TotalTrades),
		ProfitFactor: Number(raw.ProfitFactor),
	}
}

// Failed builds a recorded failure for a combination that exhausted its attempts.
func Failed(instrument string, c domain.Combination) domain.Observation {
	return domain.Observation{
		Instrument:   idhash.NormalizeInstrument(instrument),
		Combination:  roundCombination(c),
		NetProfitRaw: domain.ErrorMarker,
		Failed:       true,
	}
}

// Normalize re-applies capture-time normalization to an observation read back
// from storage, so keys and rendering match freshly captured rows.
func Normalize(o domain.Observation) domain.Observation {
	o = o.Clone()
	o.Instrument = idhash.NormalizeInstrument(o.Instrument)
	o.Combination = roundCombination(o.Combination)
	if o.Failed {
		return Failed(o.Instrument, o.Combination)
	}
	if o.NetProfit == nil && o.NetProfitRaw != "" {
		o.NetProfit = Number(o.NetProfitRaw)
	}
	return o
}

func roundCombination(c domain.Combination) domain.Combination {
	return domain.Combination{
		ATRMultiplier: idhash.Round(c.ATRMultiplier),
		RiskReward:    idhash.Round(c.RiskReward),
		VolMultiplier: idhash.Round(c.VolMultiplier),
	}
}
