// Package stub provides a deterministic in-process evaluator for tests and
// dry runs.
package stub

import (
	"context"
	"fmt"
	"sync"

	"strategy-sweep-lab/internal/domain"
	"strategy-sweep-lab/internal/evaluator"
	"strategy-sweep-lab/internal/idhash"
)

var _ evaluator.Evaluator = (*Evaluator)(nil)

// Evaluator implements evaluator.Evaluator without any external environment.
// Each instrument numbers its combinations in first-apply order starting at 1;
// the default metrics grow with that index, so the last new combination of a
// sweep has the highest net profit.
type Evaluator struct {
	// ReadErr, when set, decides whether a read fails. attempt counts applies
	// of the same combination, starting at 1.
	ReadErr func(instrument string, c domain.Combination, attempt int) error
	// Reject, when set, makes ApplyParameters return false.
	Reject func(instrument string, c domain.Combination) bool
	// Metrics overrides the default metric text for an index.
	Metrics func(instrument string, index int, c domain.Combination) domain.RawMetrics

	mu         sync.Mutex
	instrument string
	current    domain.Combination
	applied    bool
	index      map[domain.ObservationKey]int
	attempts   map[domain.ObservationKey]int
	calls      Calls
	closed     bool
}

// Calls counts invocations per operation.
type Calls struct {
	Select int
	Apply  int
	Read   int
	Reset  int
}

// New creates a stub evaluator with default metrics and no failures.
func New() *Evaluator {
	return &Evaluator{
		index:    make(map[domain.ObservationKey]int),
		attempts: make(map[domain.ObservationKey]int),
	}
}

// AlwaysFail returns a ReadErr hook that fails every read.
func AlwaysFail(instrument string, c domain.Combination, attempt int) error {
	return fmt.Errorf("%w: metrics did not render", evaluator.ErrEvaluation)
}

// FailFirst returns a ReadErr hook that fails the first n attempts of every combination.
func FailFirst(n int) func(string, domain.Combination, int) error {
	return func(_ string, _ domain.Combination, attempt int) error {
		if attempt <= n {
			return fmt.Errorf("%w: attempt %d timed out", evaluator.ErrEvaluation, attempt)
		}
		return nil
	}
}

// DefaultMetrics renders index-dependent metric text in the formats the
// charting application uses.
func DefaultMetrics(_ string, index int, _ domain.Combination) domain.RawMetrics {
	return domain.RawMetrics{
		NetProfit:    fmt.Sprintf("%d,50 USD", index*10),
		WinRate:      fmt.Sprintf("%d.5%%", 30+index%40),
		Drawdown:     fmt.Sprintf("%d,25%%", 2+index%12),
		TotalTrades:  fmt.Sprintf("%d", 20+index),
		ProfitFactor: fmt.Sprintf("%.3f", 1+float64(index%50)/25),
	}
}

func (e *Evaluator) SelectInstrument(_ context.Context, instrument string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("%w: evaluator closed", evaluator.ErrEvaluation)
	}
	e.calls.Select++
	e.instrument = idhash.NormalizeInstrument(instrument)
	e.applied = false
	return nil
}

func (e *Evaluator) ApplyParameters(ctx context.Context, c domain.Combination) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false, fmt.Errorf("%w: evaluator closed", evaluator.ErrEvaluation)
	}
	e.calls.Apply++
	if e.Reject != nil && e.Reject(e.instrument, c) {
		e.applied = false
		return false, nil
	}

	k := idhash.MakeKey(e.instrument, c)
	if _, ok := e.index[k]; !ok {
		e.index[k] = len(e.index) + 1
	}
	e.attempts[k]++
	e.current = c
	e.applied = true
	return true, nil
}

func (e *Evaluator) ReadMetrics(ctx context.Context) (domain.RawMetrics, error) {
	if err := ctx.Err(); err != nil {
		return domain.RawMetrics{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls.Read++
	if !e.applied {
		return domain.RawMetrics{}, fmt.Errorf("%w: no parameters applied", evaluator.ErrEvaluation)
	}

	k := idhash.MakeKey(e.instrument, e.current)
	if e.ReadErr != nil {
		if err := e.ReadErr(e.instrument, e.current, e.attempts[k]); err != nil {
			return domain.RawMetrics{}, err
		}
	}
	metrics := DefaultMetrics
	if e.Metrics != nil {
		metrics = e.Metrics
	}
	return metrics(e.instrument, e.index[k], e.current), nil
}

func (e *Evaluator) ResetToBaseline(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls.Reset++
	e.current = domain.DefaultBaseline
	e.applied = false
	return nil
}

// Close marks the evaluator closed. Later calls fail.
func (e *Evaluator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// Calls returns the invocation counters.
func (e *Evaluator) Calls() Calls {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Attempts returns how many times c was applied for instrument.
func (e *Evaluator) Attempts(instrument string, c domain.Combination) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attempts[idhash.MakeKey(instrument, c)]
}
