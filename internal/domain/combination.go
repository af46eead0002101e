package domain

import (
	"fmt"
	"math"
)

// Combination is one concrete point of the parameter space.
type Combination struct {
	ATRMultiplier float64 // stop distance in ATR units
	RiskReward    float64 // take-profit to stop-loss ratio
	VolMultiplier float64 // volatility filter multiplier
}

// DefaultBaseline is the parameter set restored after each instrument.
var DefaultBaseline = Combination{ATRMultiplier: 1.2, RiskReward: 2.7, VolMultiplier: 0.8}

// Finite reports whether every axis holds a finite value.
func (c Combination) Finite() bool {
	for _, v := range []float64{c.ATRMultiplier, c.RiskReward, c.VolMultiplier} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (c Combination) String() string {
	return fmt.Sprintf("ATR=%.1f RR=%.1f Vol=%.1f", c.ATRMultiplier, c.RiskReward, c.VolMultiplier)
}

// ObservationKey identifies one (instrument, combination) pair.
// Axes are stored in tenths so equality is exact.
// Build keys with idhash.MakeKey, never by hand.
type ObservationKey struct {
	Instrument string
	ATRTenths  int64
	RRTenths   int64
	VolTenths  int64
}

// Combination returns the rounded combination the key was built from.
func (k ObservationKey) Combination() Combination {
	return Combination{
		ATRMultiplier: float64(k.ATRTenths) / 10,
		RiskReward:    float64(k.RRTenths) / 10,
		VolMultiplier: float64(k.VolTenths) / 10,
	}
}

// Less orders keys by instrument, then ATR, RR and Vol.
func (k ObservationKey) Less(other ObservationKey) bool {
	if k.Instrument != other.Instrument {
		return k.Instrument < other.Instrument
	}
	if k.ATRTenths != other.ATRTenths {
		return k.ATRTenths < other.ATRTenths
	}
	if k.RRTenths != other.RRTenths {
		return k.RRTenths < other.RRTenths
	}
	return k.VolTenths < other.VolTenths
}

func (k ObservationKey) String() string {
	return fmt.Sprintf("%s|%d|%d|%d", k.Instrument, k.ATRTenths, k.RRTenths, k.VolTenths)
}
