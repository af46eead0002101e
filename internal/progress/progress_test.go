package progress

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"strategy-sweep-lab/internal/domain"
)

func TestFormatETA(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{-time.Second, "--:--"},
		{0, "00:00"},
		{59 * time.Second, "00:59"},
		{61*time.Second + 600*time.Millisecond, "01:02"},
		{59*time.Minute + 59*time.Second, "59:59"},
		{time.Hour, "01:00:00"},
		{26*time.Hour + 3*time.Minute + 4*time.Second, "26:03:04"},
	}
	for _, tt := range tests {
		if got := FormatETA(tt.in); got != tt.want {
			t.Errorf("FormatETA(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestReporter_FallbackBeforeSamples(t *testing.T) {
	r := NewReporter(nil, 0, 0, 10)
	r.StartInstrument("EURUSD", 10)
	if got := r.Average(); got != DefaultFallback {
		t.Errorf("Average = %v, want %v", got, DefaultFallback)
	}
	if got := r.RunETA(); got != 50*time.Second {
		t.Errorf("RunETA = %v, want 50s", got)
	}
}

func TestReporter_RollingWindow(t *testing.T) {
	r := NewReporter(nil, 2, time.Second, 6)
	r.StartInstrument("EURUSD", 3)
	r.Measured(2 * time.Second)
	r.Measured(4 * time.Second)
	if got := r.Average(); got != 3*time.Second {
		t.Fatalf("Average = %v, want 3s", got)
	}
	r.Measured(6 * time.Second) // evicts 2s
	if got := r.Average(); got != 5*time.Second {
		t.Fatalf("Average = %v, want 5s", got)
	}
	if got := r.InstrumentETA(); got != 0 {
		t.Errorf("InstrumentETA = %v, want 0", got)
	}
	if got := r.RunETA(); got != 15*time.Second {
		t.Errorf("RunETA = %v, want 15s", got)
	}
}

func TestReporter_SubstitutedKeepsAverage(t *testing.T) {
	r := NewReporter(nil, 100, time.Second, 100)
	r.StartInstrument("EURUSD", 100)
	r.Measured(4 * time.Second)
	for i := 0; i < 50; i++ {
		r.Substituted()
	}
	if got := r.Average(); got != 4*time.Second {
		t.Errorf("Average after cache hits = %v, want 4s", got)
	}
}

func TestReporter_Render(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf, 10, 2*time.Second, 4)
	r.StartInstrument("EURUSD", 4)
	r.Measured(2 * time.Second)

	want := "\r[EURUSD] 1/4  |  ETA sym 00:06  |  ETA all 00:06  | avg/combo ~ 2.00s"
	if got := buf.String(); got != want {
		t.Errorf("render = %q, want %q", got, want)
	}
}

func TestReporter_ForkSharesOutput(t *testing.T) {
	var buf bytes.Buffer
	parent := NewReporter(&buf, 10, 2*time.Second, 8)
	w0 := parent.Fork("w0", 4)
	w1 := parent.Fork("w1", 4)

	w0.StartInstrument("EURUSD", 4)
	w0.Measured(2 * time.Second)
	w1.StartInstrument("GBPUSD", 4)
	w1.Substituted()

	want := "\rw0 [EURUSD] 1/4  |  ETA sym 00:06  |  ETA all 00:06  | avg/combo ~ 2.00s" +
		"\rw1 [GBPUSD] 1/4  |  ETA sym 00:06  |  ETA all 00:06  | avg/combo ~ 2.00s"
	if got := buf.String(); got != want {
		t.Errorf("render = %q, want %q", got, want)
	}
	if parent.RunETA() != 16*time.Second {
		t.Errorf("parent counters should be untouched, RunETA = %v", parent.RunETA())
	}
}

func TestTimings_Summary(t *testing.T) {
	tm := NewTimings()
	for i := 1; i <= 10; i++ {
		tm.Add(LabelRead, time.Duration(i)*time.Second)
	}
	tm.Add(LabelReset, 500*time.Millisecond)

	stats := tm.Summary()
	if len(stats) != 2 || stats[0].Label != LabelRead || stats[1].Label != LabelReset {
		t.Fatalf("unexpected labels %+v", stats)
	}
	s := stats[0]
	if s.N != 10 || s.Avg != 5.5 || s.Max != 10 {
		t.Errorf("read stats = %+v", s)
	}
	if s.P90 != 9 {
		t.Errorf("p90 = %v, want 9", s.P90)
	}

	var buf bytes.Buffer
	tm.WriteSummary(&buf)
	if !strings.Contains(buf.String(), "read ") || !strings.Contains(buf.String(), "reset ") {
		t.Errorf("summary missing labels:\n%s", buf.String())
	}
}

func TestTimings_AppendCSVHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timings.csv")
	tm := NewTimings()
	tm.AddCombo(ComboTiming{
		Instrument:  "EURUSD",
		Combination: domain.Combination{ATRMultiplier: 1.5, RiskReward: 2, VolMultiplier: 0.8},
		Outcome:     "success",
		Attempts:    1,
		Apply:       250 * time.Millisecond,
		Read:        time.Second,
		Total:       1500 * time.Millisecond,
	})

	for i := 0; i < 2; i++ {
		n, err := tm.AppendCSV(path)
		if err != nil || n != 1 {
			t.Fatalf("AppendCSV = %d, %v", n, err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines:\n%s", len(lines), data)
	}
	if lines[0]+"\n" != timingHeader {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "EURUSD,1.5,2.0,0.8,success,1,0.250,1.000,1.500" {
		t.Errorf("row = %q", lines[1])
	}
}
