// Package paramspace enumerates the Cartesian product of the three strategy
// parameter axes for a test level.
package paramspace

import (
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/shopspring/decimal"

	"strategy-sweep-lab/internal/domain"
)

// ErrUnknownLevel is returned for a level name that has no preset.
var ErrUnknownLevel = errors.New("unknown test level")

// Level names a preset density of the parameter space.
type Level string

const (
	Coarse Level = "COARSE"
	Fine   Level = "FINE"
	Full   Level = "FULL"
)

// Levels returns every preset level from sparsest to densest.
func Levels() []Level {
	return []Level{Coarse, Fine, Full}
}

// Lower returns the level name in lower case, used in file names and namespaces.
func (l Level) Lower() string {
	return strings.ToLower(string(l))
}

// ParseLevel resolves a level name case-insensitively.
func ParseLevel(name string) (Level, error) {
	l := Level(strings.ToUpper(strings.TrimSpace(name)))
	for _, known := range Levels() {
		if l == known {
			return l, nil
		}
	}
	return "", fmt.Errorf("%w: %q (valid: %s)", ErrUnknownLevel, name, levelList())
}

func levelList() string {
	names := make([]string, 0, 3)
	for _, l := range Levels() {
		names = append(names, string(l))
	}
	return strings.Join(names, ", ")
}

// Space is an ordered Cartesian product A x R x V.
// Iteration order is outer ATR, middle RR, inner Vol.
type Space struct {
	Level       Level
	Description string
	ATR         []float64
	RR          []float64
	Vol         []float64
}

// New builds a space from explicit axes. The slices are copied.
func New(level Level, atr, rr, vol []float64) Space {
	return Space{
		Level: level,
		ATR:   append([]float64(nil), atr...),
		RR:    append([]float64(nil), rr...),
		Vol:   append([]float64(nil), vol...),
	}
}

// Len returns the number of combinations.
func (s Space) Len() int {
	return len(s.ATR) * len(s.RR) * len(s.Vol)
}

// At returns the i-th combination in iteration order.
func (s Space) At(i int) domain.Combination {
	nv := len(s.Vol)
	nr := len(s.RR)
	return domain.Combination{
		ATRMultiplier: s.ATR[i/(nr*nv)],
		RiskReward:    s.RR[(i/nv)%nr],
		VolMultiplier: s.Vol[i%nv],
	}
}

// All yields (index, combination) pairs lazily. Each call restarts from the
// first combination.
func (s Space) All() iter.Seq2[int, domain.Combination] {
	return func(yield func(int, domain.Combination) bool) {
		i := 0
		for _, a := range s.ATR {
			for _, r := range s.RR {
				for _, v := range s.Vol {
					c := domain.Combination{ATRMultiplier: a, RiskReward: r, VolMultiplier: v}
					if !yield(i, c) {
						return
					}
					i++
				}
			}
		}
	}
}

// Preset returns the space for a named level.
func Preset(name string) (Space, error) {
	level, err := ParseLevel(name)
	if err != nil {
		return Space{}, err
	}
	var s Space
	switch level {
	case Coarse:
		s = New(level,
			[]float64{1.0, 1.5, 2.0, 2.5, 3.0},
			[]float64{2.0, 2.5, 3.0, 3.5, 4.0},
			[]float64{0.8, 1.0, 1.2})
		s.Description = "quick exploration"
	case Fine:
		s = New(level, Steps("1.0", "3.0", "0.2"), Steps("2.0", "4.0", "0.2"), Steps("0.8", "1.3", "0.1"))
		s.Description = "balanced precision"
	case Full:
		s = New(level, Steps("1.0", "3.0", "0.1"), Steps("2.0", "5.0", "0.1"), Steps("0.8", "1.3", "0.1"))
		s.Description = "exhaustive grid"
	}
	return s, nil
}

// Steps returns the inclusive range start..stop in increments of step.
// Bounds are decimal strings so the grid carries no binary drift.
// It panics on malformed input; callers pass literals.
func Steps(start, stop, step string) []float64 {
	from := decimal.RequireFromString(start)
	to := decimal.RequireFromString(stop)
	inc := decimal.RequireFromString(step)
	if !inc.IsPositive() {
		panic("paramspace: step must be positive")
	}
	var out []float64
	for v := from; v.LessThanOrEqual(to); v = v.Add(inc) {
		out = append(out, v.InexactFloat64())
	}
	return out
}
