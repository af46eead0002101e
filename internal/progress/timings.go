package progress

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"strategy-sweep-lab/internal/domain"
)

// Timing labels.
const (
	LabelApply      = "apply"
	LabelRead       = "read"
	LabelCombo      = "combo_total"
	LabelCheckpoint = "checkpoint"
	LabelReset      = "reset"
)

// Stat summarizes one label.
type Stat struct {
	Label string
	N     int
	Avg   float64 // seconds
	P90   float64
	Max   float64
}

// ComboTiming is one per-combination row of the timing CSV.
type ComboTiming struct {
	Instrument  string
	Combination domain.Combination
	Outcome     string
	Attempts    int
	Apply       time.Duration
	Read        time.Duration
	Total       time.Duration
}

// Timings collects durations per label. Safe for concurrent use.
type Timings struct {
	mu     sync.Mutex
	labels []string
	values map[string][]float64
	rows   []ComboTiming
}

// NewTimings creates an empty collector.
func NewTimings() *Timings {
	return &Timings{values: make(map[string][]float64)}
}

// Add records one duration under label.
func (t *Timings) Add(label string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.values[label]; !ok {
		t.labels = append(t.labels, label)
	}
	t.values[label] = append(t.values[label], d.Seconds())
}

// Time returns a func that records the time elapsed since the call.
func (t *Timings) Time(label string) func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		d := time.Since(start)
		t.Add(label, d)
		return d
	}
}

// AddCombo keeps a per-combination row for the CSV.
func (t *Timings) AddCombo(row ComboTiming) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows = append(t.rows, row)
}

// Summary returns statistics per label in first-seen order.
func (t *Timings) Summary() []Stat {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Stat, 0, len(t.labels))
	for _, label := range t.labels {
		vals := append([]float64(nil), t.values[label]...)
		if len(vals) == 0 {
			continue
		}
		sort.Float64s(vals)
		out = append(out, Stat{
			Label: label,
			N:     len(vals),
			Avg:   stat.Mean(vals, nil),
			P90:   stat.Quantile(0.9, stat.Empirical, vals, nil),
			Max:   vals[len(vals)-1],
		})
	}
	return out
}

// WriteSummary prints the timing table.
func (t *Timings) WriteSummary(w io.Writer) {
	fmt.Fprintln(w, "==== TIMING SUMMARY (seconds) ====")
	for _, s := range t.Summary() {
		fmt.Fprintf(w, "%-22s  n=%4d  avg=%6.3f  p90=%6.3f  max=%6.3f\n", s.Label, s.N, s.Avg, s.P90, s.Max)
	}
}

const timingHeader = "symbol,atr,rr,vol_mult,outcome,attempts,apply,read,combo_total\n"

// RenderCSV renders the per-combination rows, with header when requested.
func (t *Timings) RenderCSV(header bool) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var sb strings.Builder
	if header {
		sb.WriteString(timingHeader)
	}
	for _, r := range t.rows {
		sb.WriteString(fmt.Sprintf("%s,%.1f,%.1f,%.1f,%s,%d,%.3f,%.3f,%.3f\n",
			r.Instrument,
			r.Combination.ATRMultiplier,
			r.Combination.RiskReward,
			r.Combination.VolMultiplier,
			r.Outcome,
			r.Attempts,
			r.Apply.Seconds(),
			r.Read.Seconds(),
			r.Total.Seconds(),
		))
	}
	return sb.String()
}

// AppendCSV appends the per-combination rows to path, writing the header only
// when the file does not exist yet. It returns the number of rows written.
func (t *Timings) AppendCSV(path string) (int, error) {
	t.mu.Lock()
	n := len(t.rows)
	t.mu.Unlock()
	if n == 0 {
		return 0, nil
	}

	_, err := os.Stat(path)
	newFile := errors.Is(err, fs.ErrNotExist)
	if err != nil && !newFile {
		return 0, fmt.Errorf("stat timings csv: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open timings csv: %w", err)
	}
	defer f.Close()

	if _, err := io.WriteString(f, t.RenderCSV(newFile)); err != nil {
		return 0, fmt.Errorf("write timings csv: %w", err)
	}
	return n, nil
}
