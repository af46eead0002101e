// Package analysis filters and scores sweep observations and derives
// per-instrument and global parameter recommendations.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"strategy-sweep-lab/internal/domain"
	"strategy-sweep-lab/internal/idhash"
	"strategy-sweep-lab/internal/storage"
)

// ErrNoResults is returned when the store holds no rows to analyze.
var ErrNoResults = errors.New("no results to analyze")

// Filters are the hard quality gates a row must pass before scoring.
// A missing metric fails its gate.
type Filters struct {
	MinTrades       int64   `mapstructure:"min_trades" validate:"gte=0"`
	MaxDrawdown     float64 `mapstructure:"max_drawdown" validate:"gte=0"`
	MinProfitFactor float64 `mapstructure:"min_profit_factor" validate:"gte=0"`
	MinWinRate      float64 `mapstructure:"min_win_rate" validate:"gte=0,lte=100"`
}

// DefaultFilters returns the standard gates.
func DefaultFilters() Filters {
	return Filters{MinTrades: 30, MaxDrawdown: 15, MinProfitFactor: 1.2, MinWinRate: 25}
}

// Pass reports whether o clears every gate.
func (f Filters) Pass(o domain.Observation) bool {
	if o.Failed || o.TotalTrades == nil || o.Drawdown == nil || o.ProfitFactor == nil || o.WinRate == nil {
		return false
	}
	return *o.TotalTrades >= f.MinTrades &&
		*o.Drawdown <= f.MaxDrawdown &&
		*o.ProfitFactor >= f.MinProfitFactor &&
		*o.WinRate >= f.MinWinRate
}

// Weights combine metrics into a score; drawdown is a penalty.
type Weights struct {
	Profit       float64 `mapstructure:"profit"`
	WinRate      float64 `mapstructure:"win_rate"`
	ProfitFactor float64 `mapstructure:"profit_factor"`
	Drawdown     float64 `mapstructure:"drawdown"`
}

// DefaultWeights returns the standard score weights.
func DefaultWeights() Weights {
	return Weights{Profit: 1.0, WinRate: 0.5, ProfitFactor: 3.0, Drawdown: 1.0}
}

// Score rates o. Missing metrics count as zero.
func (w Weights) Score(o domain.Observation) float64 {
	return value(o.NetProfit)*w.Profit +
		value(o.WinRate)*w.WinRate +
		value(o.ProfitFactor)*w.ProfitFactor -
		value(o.Drawdown)*w.Drawdown
}

func value(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

// Scored is an observation that passed the filters, with its score.
type Scored struct {
	domain.Observation
	Score float64
}

// GlobalParams aggregates one combination across instruments.
type GlobalParams struct {
	Combination  domain.Combination
	Score        float64
	NetProfit    float64
	Drawdown     float64
	WinRate      float64
	ProfitFactor float64
	TotalTrades  float64
	Symbols      int
}

// ComboCount counts how often a combination is an instrument's winner.
type ComboCount struct {
	Combination domain.Combination
	Count       int
	NumSymbols  int
}

// Comparison contrasts an instrument's own best combination with the global pick.
type Comparison struct {
	Symbol      string
	Fallback    bool // global pick absent for the symbol, closest combination used
	CustomScore float64
	GlobalScore float64
	Regret      float64
	RegretPct   float64
	Custom      domain.Combination
	Global      domain.Combination
}

// ComparisonSummary aggregates the comparisons.
type ComparisonSummary struct {
	Symbols      int
	CustomScore  float64
	GlobalScore  float64
	AvgRegret    float64
	AvgRegretPct float64
	MaxRegret    float64
	MinRegret    float64
	Global       domain.Combination
}

// Recommendation is the verdict of the global-vs-custom comparison.
type Recommendation string

const (
	RecommendGlobal   Recommendation = "global"
	RecommendCustom   Recommendation = "custom"
	RecommendTradeOff Recommendation = "trade-off"
)

// Recommend maps an average regret percentage to a verdict.
func Recommend(avgRegretPct float64) Recommendation {
	switch {
	case math.Abs(avgRegretPct) < 5:
		return RecommendGlobal
	case avgRegretPct > 10:
		return RecommendCustom
	}
	return RecommendTradeOff
}

// Result is the outcome of one analysis.
type Result struct {
	TotalRows     int
	FailedRows    int
	FilteredRows  int
	Symbols       int
	Scored        []Scored
	BestPerSymbol []Scored
	BestGlobal    []GlobalParams
	ComboCounts   []ComboCount
	Comparisons   []Comparison
	Summary       *ComparisonSummary
}

// Recommendation returns the verdict, if a comparison was possible.
func (r *Result) Recommendation() (Recommendation, bool) {
	if r.Summary == nil {
		return "", false
	}
	return Recommend(r.Summary.AvgRegretPct), true
}

// Options configures an Analyzer.
type Options struct {
	Filters Filters
	Weights Weights
	Logger  zerolog.Logger
}

// Analyzer scores observations.
type Analyzer struct {
	filters Filters
	weights Weights
	log     zerolog.Logger
}

// New creates an Analyzer. Zero filters and weights select the defaults.
func New(opts Options) *Analyzer {
	if opts.Filters == (Filters{}) {
		opts.Filters = DefaultFilters()
	}
	if opts.Weights == (Weights{}) {
		opts.Weights = DefaultWeights()
	}
	return &Analyzer{filters: opts.Filters, weights: opts.Weights, log: opts.Logger}
}

// Load reads the global table, falling back to the union of the instrument
// tables when the global table is empty.
func Load(ctx context.Context, tables storage.ResultTableStore) ([]domain.Observation, error) {
	rows, err := tables.ReadGlobal(ctx)
	if err != nil {
		return nil, fmt.Errorf("read global table: %w", err)
	}
	if len(rows) > 0 {
		return rows, nil
	}

	instruments, err := tables.Instruments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list instruments: %w", err)
	}
	for _, inst := range instruments {
		part, err := tables.ReadInstrument(ctx, inst)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("read %s: %w", inst, err)
		}
		rows = append(rows, part...)
	}
	if len(rows) == 0 {
		return nil, ErrNoResults
	}
	return rows, nil
}

// Analyze filters, scores and aggregates rows.
func (a *Analyzer) Analyze(rows []domain.Observation) *Result {
	res := &Result{TotalRows: len(rows)}

	symbols := make(map[string]struct{})
	for _, o := range rows {
		symbols[idhash.NormalizeInstrument(o.Instrument)] = struct{}{}
		if o.Failed {
			res.FailedRows++
			continue
		}
		if !a.filters.Pass(o) {
			continue
		}
		res.Scored = append(res.Scored, Scored{Observation: o, Score: a.weights.Score(o)})
	}
	res.Symbols = len(symbols)
	res.FilteredRows = len(res.Scored)

	res.BestPerSymbol = bestPerSymbol(res.Scored)
	res.BestGlobal = bestGlobal(res.Scored)
	res.ComboCounts = comboCounts(res.BestPerSymbol)
	res.Comparisons, res.Summary = compare(res.Scored, res.BestPerSymbol, res.BestGlobal)

	a.log.Info().
		Int("rows", res.TotalRows).
		Int("failed", res.FailedRows).
		Int("passed", res.FilteredRows).
		Int("symbols", res.Symbols).
		Msg("analysis complete")
	return res
}

func comboKey(c domain.Combination) domain.ObservationKey {
	return idhash.MakeKey("", c)
}

// bestPerSymbol keeps the first max-score row per instrument, ordered by
// score descending.
func bestPerSymbol(scored []Scored) []Scored {
	best := make(map[string]int)
	var order []string
	for i, s := range scored {
		inst := idhash.NormalizeInstrument(s.Instrument)
		j, ok := best[inst]
		if !ok {
			order = append(order, inst)
			best[inst] = i
			continue
		}
		if s.Score > scored[j].Score {
			best[inst] = i
		}
	}

	out := make([]Scored, 0, len(order))
	for _, inst := range order {
		out = append(out, scored[best[inst]])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// bestGlobal ranks combinations by their mean score across instruments.
func bestGlobal(scored []Scored) []GlobalParams {
	groups := make(map[domain.ObservationKey][]Scored)
	var keys []domain.ObservationKey
	for _, s := range scored {
		k := comboKey(s.Combination)
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], s)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	out := make([]GlobalParams, 0, len(keys))
	for _, k := range keys {
		g := groups[k]
		var score, profit, dd, wr, pf, trades []float64
		symbols := make(map[string]struct{})
		for _, s := range g {
			score = append(score, s.Score)
			if s.NetProfit != nil {
				profit = append(profit, *s.NetProfit)
			}
			dd = append(dd, value(s.Drawdown))
			wr = append(wr, value(s.WinRate))
			pf = append(pf, value(s.ProfitFactor))
			trades = append(trades, float64(*s.TotalTrades))
			symbols[idhash.NormalizeInstrument(s.Instrument)] = struct{}{}
		}
		out = append(out, GlobalParams{
			Combination:  k.Combination(),
			Score:        stat.Mean(score, nil),
			NetProfit:    mean(profit),
			Drawdown:     stat.Mean(dd, nil),
			WinRate:      stat.Mean(wr, nil),
			ProfitFactor: stat.Mean(pf, nil),
			TotalTrades:  stat.Mean(trades, nil),
			Symbols:      len(symbols),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	return stat.Mean(xs, nil)
}

// comboCounts counts winner combinations, most widely shared first.
func comboCounts(best []Scored) []ComboCount {
	counts := make(map[domain.ObservationKey]*ComboCount)
	symbols := make(map[domain.ObservationKey]map[string]struct{})
	var keys []domain.ObservationKey
	for _, s := range best {
		k := comboKey(s.Combination)
		cc, ok := counts[k]
		if !ok {
			cc = &ComboCount{Combination: k.Combination()}
			counts[k] = cc
			symbols[k] = make(map[string]struct{})
			keys = append(keys, k)
		}
		cc.Count++
		symbols[k][idhash.NormalizeInstrument(s.Instrument)] = struct{}{}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	out := make([]ComboCount, 0, len(keys))
	for _, k := range keys {
		cc := *counts[k]
		cc.NumSymbols = len(symbols[k])
		out = append(out, cc)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].NumSymbols != out[j].NumSymbols {
			return out[i].NumSymbols > out[j].NumSymbols
		}
		return out[i].Count > out[j].Count
	})
	return out
}

// globalPick chooses, among the combinations scored on the most instruments,
// the one with the best mean score.
func globalPick(global []GlobalParams) (GlobalParams, bool) {
	if len(global) == 0 {
		return GlobalParams{}, false
	}
	pick := global[0]
	for _, g := range global[1:] {
		if g.Symbols > pick.Symbols || (g.Symbols == pick.Symbols && g.Score > pick.Score) {
			pick = g
		}
	}
	return pick, true
}

// compare measures, per instrument, the score lost by using the global pick
// instead of the instrument's own best combination. Rows are ordered by
// regret descending.
func compare(scored, best []Scored, global []GlobalParams) ([]Comparison, *ComparisonSummary) {
	pick, ok := globalPick(global)
	if !ok || len(best) == 0 {
		return nil, nil
	}

	bySymbol := make(map[string][]Scored)
	for _, s := range scored {
		inst := idhash.NormalizeInstrument(s.Instrument)
		bySymbol[inst] = append(bySymbol[inst], s)
	}
	pickKey := comboKey(pick.Combination)

	var out []Comparison
	for _, b := range best {
		inst := idhash.NormalizeInstrument(b.Instrument)
		rows := bySymbol[inst]
		cmp := Comparison{Symbol: inst, CustomScore: b.Score, Custom: b.Combination, Global: pick.Combination}

		found := false
		for _, s := range rows {
			if comboKey(s.Combination) == pickKey {
				cmp.GlobalScore = s.Score
				found = true
				break
			}
		}
		if !found {
			closest := rows[0]
			bestDist := distance(closest.Combination, pick.Combination)
			for _, s := range rows[1:] {
				if d := distance(s.Combination, pick.Combination); d < bestDist {
					closest, bestDist = s, d
				}
			}
			cmp.Fallback = true
			cmp.GlobalScore = closest.Score
			cmp.Global = closest.Combination
		}

		cmp.Regret = cmp.CustomScore - cmp.GlobalScore
		if cmp.CustomScore != 0 {
			cmp.RegretPct = cmp.Regret / cmp.CustomScore * 100
		}
		out = append(out, cmp)
	}

	sum := &ComparisonSummary{Symbols: len(out), Global: pick.Combination}
	custom := make([]float64, len(out))
	globalScores := make([]float64, len(out))
	regret := make([]float64, len(out))
	regretPct := make([]float64, len(out))
	for i, c := range out {
		custom[i], globalScores[i], regret[i], regretPct[i] = c.CustomScore, c.GlobalScore, c.Regret, c.RegretPct
	}
	sum.CustomScore = stat.Mean(custom, nil)
	sum.GlobalScore = stat.Mean(globalScores, nil)
	sum.AvgRegret = stat.Mean(regret, nil)
	sum.AvgRegretPct = stat.Mean(regretPct, nil)
	sum.MaxRegret, sum.MinRegret = regret[0], regret[0]
	for _, r := range regret[1:] {
		sum.MaxRegret = math.Max(sum.MaxRegret, r)
		sum.MinRegret = math.Min(sum.MinRegret, r)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Regret > out[j].Regret })
	return out, sum
}

func distance(a, b domain.Combination) float64 {
	return math.Sqrt(
		math.Pow(a.ATRMultiplier-b.ATRMultiplier, 2) +
			math.Pow(a.RiskReward-b.RiskReward, 2) +
			math.Pow(a.VolMultiplier-b.VolMultiplier, 2))
}
