package paramspace

import (
	"errors"
	"testing"

	"strategy-sweep-lab/internal/domain"
)

func TestPreset_Sizes(t *testing.T) {
	tests := []struct {
		name                string
		wantA, wantR, wantV int
	}{
		{"COARSE", 5, 5, 3},
		{"fine", 11, 11, 6},
		{"Full", 21, 31, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Preset(tt.name)
			if err != nil {
				t.Fatalf("Preset(%q) error = %v", tt.name, err)
			}
			if len(s.ATR) != tt.wantA || len(s.RR) != tt.wantR || len(s.Vol) != tt.wantV {
				t.Errorf("axes = %d/%d/%d, want %d/%d/%d",
					len(s.ATR), len(s.RR), len(s.Vol), tt.wantA, tt.wantR, tt.wantV)
			}
			if got, want := s.Len(), tt.wantA*tt.wantR*tt.wantV; got != want {
				t.Errorf("Len() = %d, want %d", got, want)
			}
		})
	}
}

func TestPreset_Unknown(t *testing.T) {
	_, err := Preset("ULTRA")
	if !errors.Is(err, ErrUnknownLevel) {
		t.Fatalf("Preset(ULTRA) error = %v, want ErrUnknownLevel", err)
	}
}

func TestPreset_ExactValues(t *testing.T) {
	s, _ := Preset("FINE")
	if s.ATR[0] != 1.0 || s.ATR[10] != 3.0 {
		t.Errorf("ATR bounds = %v..%v, want 1.0..3.0", s.ATR[0], s.ATR[10])
	}
	if s.ATR[1] != 1.2 {
		t.Errorf("ATR[1] = %v, want exactly 1.2", s.ATR[1])
	}
	if s.Vol[5] != 1.3 {
		t.Errorf("Vol[5] = %v, want exactly 1.3", s.Vol[5])
	}
}

func TestSpace_AllDeterministic(t *testing.T) {
	s := New(Coarse, []float64{1, 2}, []float64{3, 4, 5}, []float64{6, 7})

	var first, second []domain.Combination
	for _, c := range s.All() {
		first = append(first, c)
	}
	for _, c := range s.All() {
		second = append(second, c)
	}

	if len(first) != 12 {
		t.Fatalf("len = %d, want 12", len(first))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("iteration %d differs: %v != %v", i, first[i], second[i])
		}
		if at := s.At(i); at != first[i] {
			t.Errorf("At(%d) = %v, want %v", i, at, first[i])
		}
	}

	// outer A, middle R, inner V
	if first[0] != (domain.Combination{ATRMultiplier: 1, RiskReward: 3, VolMultiplier: 6}) {
		t.Errorf("first = %v", first[0])
	}
	if first[1] != (domain.Combination{ATRMultiplier: 1, RiskReward: 3, VolMultiplier: 7}) {
		t.Errorf("second = %v", first[1])
	}
	if first[2] != (domain.Combination{ATRMultiplier: 1, RiskReward: 4, VolMultiplier: 6}) {
		t.Errorf("third = %v", first[2])
	}
	if first[6] != (domain.Combination{ATRMultiplier: 2, RiskReward: 3, VolMultiplier: 6}) {
		t.Errorf("seventh = %v", first[6])
	}
}

func TestSpace_AllStopsEarly(t *testing.T) {
	s, _ := Preset("COARSE")
	n := 0
	for i := range s.All() {
		if i == 4 {
			break
		}
		n++
	}
	if n != 4 {
		t.Errorf("visited %d, want 4", n)
	}
}

func TestSteps(t *testing.T) {
	got := Steps("0.8", "1.3", "0.1")
	want := []float64{0.8, 0.9, 1.0, 1.1, 1.2, 1.3}
	if len(got) != len(want) {
		t.Fatalf("Steps() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Steps()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
