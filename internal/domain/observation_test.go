package domain

import "testing"

func fptr(v float64) *float64 { return &v }
func iptr(v int64) *int64     { return &v }

func full(profit float64) Observation {
	return Observation{
		Instrument:   "EURUSD",
		NetProfit:    fptr(profit),
		WinRate:      fptr(40),
		Drawdown:     fptr(5),
		TotalTrades:  iptr(50),
		ProfitFactor: fptr(1.5),
	}
}

func TestObservation_Completeness(t *testing.T) {
	partial := Observation{NetProfit: fptr(1), WinRate: fptr(2)}
	failed := full(10)
	failed.Failed = true

	tests := []struct {
		name string
		obs  Observation
		want int
	}{
		{"full", full(1), 5},
		{"partial", partial, 2},
		{"empty", Observation{}, 0},
		{"failed", failed, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.obs.Completeness(); got != tt.want {
				t.Errorf("Completeness() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestObservation_BetterThan(t *testing.T) {
	twoMetrics := Observation{NetProfit: fptr(1000), WinRate: fptr(50)}
	fourMetrics := Observation{NetProfit: fptr(1), WinRate: fptr(50), Drawdown: fptr(3), ProfitFactor: fptr(1.1)}
	failed := Observation{Failed: true, NetProfitRaw: ErrorMarker}
	emptyRead := Observation{NetProfitRaw: "n/a"}
	noProfit := Observation{WinRate: fptr(1)}
	someProfit := Observation{NetProfit: fptr(-5)}

	tests := []struct {
		name     string
		incoming Observation
		existing Observation
		want     bool
	}{
		{"more complete wins", fourMetrics, twoMetrics, true},
		{"less complete loses", twoMetrics, fourMetrics, false},
		{"higher profit wins tie", full(20), full(10), true},
		{"lower profit loses tie", full(10), full(20), false},
		{"exact tie keeps existing", full(10), full(10), false},
		{"success replaces failure", full(1), failed, true},
		{"empty read replaces failure", emptyRead, failed, true},
		{"failure never replaces read", failed, emptyRead, false},
		{"failure tie keeps existing", failed, failed, false},
		{"nil profit loses to value", noProfit, someProfit, false},
		{"value beats nil profit", someProfit, noProfit, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.incoming.BetterThan(tt.existing); got != tt.want {
				t.Errorf("BetterThan() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestObservation_Cells(t *testing.T) {
	failed := Observation{Instrument: "EURUSD", Combination: Combination{1, 2, 0.8}, Failed: true}
	cells := failed.Cells()
	if len(cells) != len(ResultColumns) {
		t.Fatalf("len(Cells()) = %d, want %d", len(cells), len(ResultColumns))
	}
	for i := 4; i < len(cells); i++ {
		if cells[i] != ErrorMarker {
			t.Errorf("cell %s = %v, want %q", ResultColumns[i], cells[i], ErrorMarker)
		}
	}

	ok := full(12.5)
	ok.NetProfitRaw = "12.5"
	ok.Drawdown = nil
	cells = ok.Cells()
	if cells[5] != 12.5 {
		t.Errorf("Net Profit Clean = %v, want 12.5", cells[5])
	}
	if cells[7] != nil {
		t.Errorf("drawdown = %v, want nil", cells[7])
	}
	if got := len(ok.BestCells()); got != len(BestColumns) {
		t.Errorf("len(BestCells()) = %d, want %d", got, len(BestColumns))
	}
}

func TestObservation_Clone(t *testing.T) {
	o := full(1)
	c := o.Clone()
	*c.NetProfit = 99
	*c.TotalTrades = 1
	if *o.NetProfit != 1 || *o.TotalTrades != 50 {
		t.Error("Clone() shares metric pointers with the original")
	}
}

func TestObservationKey_Less(t *testing.T) {
	a := ObservationKey{Instrument: "AUDUSD", ATRTenths: 30}
	b := ObservationKey{Instrument: "EURUSD", ATRTenths: 10}
	c := ObservationKey{Instrument: "EURUSD", ATRTenths: 10, RRTenths: 20, VolTenths: 9}
	d := ObservationKey{Instrument: "EURUSD", ATRTenths: 10, RRTenths: 20, VolTenths: 10}

	if !a.Less(b) || b.Less(a) {
		t.Error("instrument must order first")
	}
	if !c.Less(d) || d.Less(c) {
		t.Error("vol must order last")
	}
	if c.Less(c) {
		t.Error("key must not be less than itself")
	}
	if got := d.Combination(); got != (Combination{1.0, 2.0, 1.0}) {
		t.Errorf("Combination() = %v", got)
	}
}
