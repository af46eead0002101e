package idhash

import (
	"math"
	"testing"

	"strategy-sweep-lab/internal/domain"
)

func TestMakeKey_Rounding(t *testing.T) {
	tests := []struct {
		name string
		a, b domain.Combination
		same bool
	}{
		{
			name: "binary drift collapses",
			a:    domain.Combination{ATRMultiplier: 1.2, RiskReward: 2.7, VolMultiplier: 0.8},
			b:    domain.Combination{ATRMultiplier: 1.0 + 0.2, RiskReward: 2.7000000001, VolMultiplier: 0.1 * 8},
			same: true,
		},
		{
			name: "cell value read back",
			a:    domain.Combination{ATRMultiplier: 1.4, RiskReward: 3.6, VolMultiplier: 1.1},
			b:    domain.Combination{ATRMultiplier: 1.4000000000000001, RiskReward: 3.5999999999999996, VolMultiplier: 1.1000000000000001},
			same: true,
		},
		{
			name: "distinct tenths differ",
			a:    domain.Combination{ATRMultiplier: 1.2, RiskReward: 2.7, VolMultiplier: 0.8},
			b:    domain.Combination{ATRMultiplier: 1.3, RiskReward: 2.7, VolMultiplier: 0.8},
			same: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ka := MakeKey("EURUSD", tt.a)
			kb := MakeKey("EURUSD", tt.b)
			if (ka == kb) != tt.same {
				t.Errorf("MakeKey equality = %v, want %v (%v vs %v)", ka == kb, tt.same, ka, kb)
			}
		})
	}
}

func TestMakeKey_Instrument(t *testing.T) {
	c := domain.Combination{ATRMultiplier: 1, RiskReward: 2, VolMultiplier: 1}
	if MakeKey(" eurusd ", c) != MakeKey("EURUSD", c) {
		t.Error("instrument must be trimmed and upper-cased")
	}
	if MakeKey("EURUSD", c) == MakeKey("GBPUSD", c) {
		t.Error("different instruments must produce different keys")
	}
}

func TestTenths(t *testing.T) {
	tests := []struct {
		in   float64
		want int64
	}{
		{1.2, 12},
		{0.8, 8},
		{2.25, 23},
		{-1.25, -13},
		{3, 30},
		{math.NaN(), math.MinInt64},
		{math.Inf(1), math.MinInt64},
	}
	for _, tt := range tests {
		if got := Tenths(tt.in); got != tt.want {
			t.Errorf("Tenths(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestComputeKeyID(t *testing.T) {
	c := domain.Combination{ATRMultiplier: 1.2, RiskReward: 2.7, VolMultiplier: 0.8}
	k := MakeKey("EURUSD", c)

	got := ComputeKeyID(k)
	if len(got) != 64 {
		t.Errorf("ComputeKeyID() length = %d, want 64", len(got))
	}
	if got != ComputeKeyID(MakeKey("EURUSD", c)) {
		t.Error("ComputeKeyID() not deterministic")
	}
	other := MakeKey("EURUSD", domain.Combination{ATRMultiplier: 1.2, RiskReward: 2.8, VolMultiplier: 0.8})
	if got == ComputeKeyID(other) {
		t.Error("different keys should produce different hashes")
	}
}
