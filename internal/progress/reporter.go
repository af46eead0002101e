// Package progress renders live throughput and ETA for a sweep and collects
// per-label timing statistics.
package progress

import (
	"fmt"
	"io"
	"math"
	"sync"
	"time"
)

// Defaults for the rolling ETA estimate.
const (
	DefaultWindow   = 100
	DefaultFallback = 5 * time.Second
)

// Reporter keeps a rolling window of per-combination durations and renders a
// single progress line. Rendering never affects the sweep; a nil writer
// disables it.
type Reporter struct {
	out      io.Writer
	fallback time.Duration
	label    string
	mu       *sync.Mutex

	window []time.Duration
	next   int
	filled int
	sum    time.Duration

	instrument string
	instTotal  int
	instDone   int
	total      int
	done       int
}

// NewReporter creates a Reporter for a run of total combinations.
// Non-positive window or fallback select the defaults.
func NewReporter(out io.Writer, window int, fallback time.Duration, total int) *Reporter {
	if window <= 0 {
		window = DefaultWindow
	}
	if fallback <= 0 {
		fallback = DefaultFallback
	}
	return &Reporter{
		out:      out,
		fallback: fallback,
		window:   make([]time.Duration, window),
		total:    total,
	}
}

// Fork returns a reporter for a sub-run of total combinations that shares
// r's output, window size and fallback. Its line is prefixed with label.
// Writes of r and all its forks are serialized, so forks may be driven from
// separate goroutines. Fork itself must not race with rendering.
func (r *Reporter) Fork(label string, total int) *Reporter {
	if r.mu == nil {
		r.mu = &sync.Mutex{}
	}
	f := NewReporter(r.out, len(r.window), r.fallback, total)
	f.label = label
	f.mu = r.mu
	return f
}

// StartInstrument resets the per-instrument counters.
func (r *Reporter) StartInstrument(instrument string, total int) {
	r.instrument = instrument
	r.instTotal = total
	r.instDone = 0
}

// Skip counts n combinations of a skipped instrument as done.
func (r *Reporter) Skip(n int) {
	r.done += n
}

// Measured records a genuinely evaluated combination.
func (r *Reporter) Measured(d time.Duration) {
	r.push(d)
	r.advance()
}

// Substituted records a combination whose duration says nothing about
// evaluation speed (a cache hit or a recorded failure). The current average
// stands in for it.
func (r *Reporter) Substituted() {
	r.push(r.Average())
	r.advance()
}

func (r *Reporter) push(d time.Duration) {
	if r.filled == len(r.window) {
		r.sum -= r.window[r.next]
	} else {
		r.filled++
	}
	r.window[r.next] = d
	r.sum += d
	r.next = (r.next + 1) % len(r.window)
}

func (r *Reporter) advance() {
	r.instDone++
	r.done++
	r.Render()
}

// Average returns the rolling mean, or the fallback before any sample.
func (r *Reporter) Average() time.Duration {
	if r.filled == 0 {
		return r.fallback
	}
	return r.sum / time.Duration(r.filled)
}

// InstrumentETA estimates the time left for the current instrument.
func (r *Reporter) InstrumentETA() time.Duration {
	return remaining(r.instTotal, r.instDone) * r.Average()
}

// RunETA estimates the time left for the whole run.
func (r *Reporter) RunETA() time.Duration {
	return remaining(r.total, r.done) * r.Average()
}

func remaining(total, done int) time.Duration {
	if done >= total {
		return 0
	}
	return time.Duration(total - done)
}

// Line returns the current progress line without the leading carriage return.
func (r *Reporter) Line() string {
	line := fmt.Sprintf("[%s] %d/%d  |  ETA sym %s  |  ETA all %s  | avg/combo ~ %.2fs",
		r.instrument, r.instDone, r.instTotal,
		FormatETA(r.InstrumentETA()), FormatETA(r.RunETA()), r.Average().Seconds())
	if r.label != "" {
		return r.label + " " + line
	}
	return line
}

// Render overwrites the progress line on the output.
func (r *Reporter) Render() {
	if r.out == nil {
		return
	}
	line := r.Line()
	r.lock()
	defer r.unlock()
	fmt.Fprint(r.out, "\r"+line)
}

// Finish terminates the progress line.
func (r *Reporter) Finish() {
	if r.out == nil {
		return
	}
	r.lock()
	defer r.unlock()
	fmt.Fprintln(r.out)
}

func (r *Reporter) lock() {
	if r.mu != nil {
		r.mu.Lock()
	}
}

func (r *Reporter) unlock() {
	if r.mu != nil {
		r.mu.Unlock()
	}
}

// FormatETA renders d as mm:ss, or hh:mm:ss from one hour up.
// Negative durations render as "--:--".
func FormatETA(d time.Duration) string {
	if d < 0 {
		return "--:--"
	}
	secs := int64(math.Round(d.Seconds()))
	m, s := secs/60, secs%60
	if m >= 60 {
		return fmt.Sprintf("%02d:%02d:%02d", m/60, m%60, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
