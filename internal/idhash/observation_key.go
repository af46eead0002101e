package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"strategy-sweep-lab/internal/domain"
)

// MakeKey builds the identity of one (instrument, combination) pair.
// Axes are rounded half away from zero to one decimal place; the instrument is
// trimmed and upper-cased. Every key in the system must come from here.
func MakeKey(instrument string, c domain.Combination) domain.ObservationKey {
	return domain.ObservationKey{
		Instrument: NormalizeInstrument(instrument),
		ATRTenths:  Tenths(c.ATRMultiplier),
		RRTenths:   Tenths(c.RiskReward),
		VolTenths:  Tenths(c.VolMultiplier),
	}
}

// KeyOf returns the key of an observation.
func KeyOf(o domain.Observation) domain.ObservationKey {
	return MakeKey(o.Instrument, o.Combination)
}

// NormalizeInstrument canonicalizes a symbol.
func NormalizeInstrument(instrument string) string {
	return strings.ToUpper(strings.TrimSpace(instrument))
}

// Tenths rounds v to one decimal place and returns it scaled by ten.
// Non-finite values map to math.MinInt64 so they never collide with a real axis.
func Tenths(v float64) int64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return math.MinInt64
	}
	return decimal.NewFromFloat(v).Round(1).Shift(1).IntPart()
}

// Round returns v rounded to one decimal place.
func Round(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).Round(1).InexactFloat64()
}

// ComputeKeyID computes a deterministic key_id using SHA256.
// Formula: SHA256(instrument|atr_tenths|rr_tenths|vol_tenths)
// Returns hex-encoded hash (64 characters).
func ComputeKeyID(k domain.ObservationKey) string {
	data := fmt.Sprintf("%s|%d|%d|%d",
		k.Instrument,
		k.ATRTenths,
		k.RRTenths,
		k.VolTenths,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
