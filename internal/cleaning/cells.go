package cleaning

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"strategy-sweep-lab/internal/domain"
)

// ErrMalformedRow is returned when a persisted row has no usable key.
var ErrMalformedRow = errors.New("malformed row")

// Header maps column names to positions.
type Header map[string]int

// NewHeader indexes a header row. Names are trimmed.
func NewHeader(names []string) Header {
	h := make(Header, len(names))
	for i, n := range names {
		n = strings.TrimSpace(n)
		if _, dup := h[n]; !dup {
			h[n] = i
		}
	}
	return h
}

func (h Header) cell(cells []string, name string) string {
	i, ok := h[name]
	if !ok || i >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[i])
}

// FromCells decodes one row of an instrument or global table.
// instrument is used when the row has no Symbol cell.
func FromCells(h Header, cells []string, instrument string) (domain.Observation, error) {
	symbol := h.cell(cells, domain.ColSymbol)
	if symbol == "" {
		symbol = instrument
	}
	if symbol == "" {
		return domain.Observation{}, fmt.Errorf("%w: missing symbol", ErrMalformedRow)
	}

	c, err := combinationFromCells(h, cells,
		domain.ColATRMultiplier, domain.ColRR, domain.ColVolMultiplier)
	if err != nil {
		return domain.Observation{}, err
	}

	metricCols := []string{
		domain.ColNetProfit, domain.ColNetProfitClean, domain.ColWinRate,
		domain.ColDrawdown, domain.ColTotalTrades, domain.ColProfitFactor,
	}
	for _, col := range metricCols {
		if h.cell(cells, col) == domain.ErrorMarker {
			return Failed(symbol, c), nil
		}
	}

	raw := h.cell(cells, domain.ColNetProfit)
	o := Observe(symbol, c, domain.RawMetrics{
		NetProfit:    raw,
		WinRate:      h.cell(cells, domain.ColWinRate),
		Drawdown:     h.cell(cells, domain.ColDrawdown),
		TotalTrades:  h.cell(cells, domain.ColTotalTrades),
		ProfitFactor: h.cell(cells, domain.ColProfitFactor),
	})
	if v := parseCell(h.cell(cells, domain.ColNetProfitClean)); v != nil {
		o.NetProfit = v
	}
	o.WinRate = firstNonNil(parseCell(h.cell(cells, domain.ColWinRate)), o.WinRate)
	o.Drawdown = firstNonNil(parseCell(h.cell(cells, domain.ColDrawdown)), o.Drawdown)
	o.ProfitFactor = firstNonNil(parseCell(h.cell(cells, domain.ColProfitFactor)), o.ProfitFactor)
	return o, nil
}

// BestFromCells decodes one row of the best-per-instrument table.
func BestFromCells(h Header, cells []string) (domain.Observation, error) {
	symbol := h.cell(cells, domain.ColSymbol)
	if symbol == "" {
		return domain.Observation{}, fmt.Errorf("%w: missing symbol", ErrMalformedRow)
	}
	c, err := combinationFromCells(h, cells, domain.BestColumns[1], domain.BestColumns[2], domain.BestColumns[3])
	if err != nil {
		return domain.Observation{}, err
	}
	o := Observe(symbol, c, domain.RawMetrics{
		NetProfit:    h.cell(cells, domain.BestColumns[4]),
		WinRate:      h.cell(cells, domain.BestColumns[5]),
		Drawdown:     h.cell(cells, domain.BestColumns[6]),
		TotalTrades:  h.cell(cells, domain.BestColumns[7]),
		ProfitFactor: h.cell(cells, domain.BestColumns[8]),
	})
	if v := parseCell(h.cell(cells, domain.BestColumns[9])); v != nil {
		o.NetProfit = v
	}
	return o, nil
}

func combinationFromCells(h Header, cells []string, atrCol, rrCol, volCol string) (domain.Combination, error) {
	atr := parseCell(h.cell(cells, atrCol))
	rr := parseCell(h.cell(cells, rrCol))
	vol := parseCell(h.cell(cells, volCol))
	if atr == nil || rr == nil || vol == nil {
		return domain.Combination{}, fmt.Errorf("%w: unparseable parameters %v", ErrMalformedRow, cells)
	}
	c := domain.Combination{ATRMultiplier: *atr, RiskReward: *rr, VolMultiplier: *vol}
	if !c.Finite() {
		return domain.Combination{}, fmt.Errorf("%w: non-finite parameters %v", ErrMalformedRow, cells)
	}
	return c, nil
}

// parseCell reads a stored numeric cell, falling back to the metric cleaner
// for text written by other tools.
func parseCell(s string) *float64 {
	if s == "" {
		return nil
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
		return &v
	}
	return Number(s)
}

func firstNonNil(a, b *float64) *float64 {
	if a != nil {
		return a
	}
	return b
}
