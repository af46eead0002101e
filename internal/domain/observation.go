package domain

// ErrorMarker fills every metric cell of a recorded failure.
const ErrorMarker = "Error"

// MetricCount is the number of measured metrics per observation.
const MetricCount = 5

// RawMetrics is the unparsed text read from the evaluation environment.
type RawMetrics struct {
	NetProfit    string
	WinRate      string
	Drawdown     string
	TotalTrades  string
	ProfitFactor string
}

// Observation is one evaluated row.
// Nil metric fields are values that could not be parsed from a successful read.
// Failed rows carry no metrics; they render ErrorMarker in every metric cell.
type Observation struct {
	Instrument   string
	Combination  Combination
	NetProfitRaw string   // text as read, kept verbatim in the "Net Profit" column
	NetProfit    *float64 // "Net Profit Clean"
	WinRate      *float64 // percent, 0-100
	Drawdown     *float64 // percent, 0-100
	TotalTrades  *int64
	ProfitFactor *float64
	Failed       bool
}

// Completeness counts non-missing metrics. Failed rows score 0.
func (o Observation) Completeness() int {
	if o.Failed {
		return 0
	}
	n := 0
	if o.NetProfit != nil {
		n++
	}
	if o.WinRate != nil {
		n++
	}
	if o.Drawdown != nil {
		n++
	}
	if o.TotalTrades != nil {
		n++
	}
	if o.ProfitFactor != nil {
		n++
	}
	return n
}

// Clone returns a deep copy.
func (o Observation) Clone() Observation {
	c := o
	c.NetProfit = cloneFloat(o.NetProfit)
	c.WinRate = cloneFloat(o.WinRate)
	c.Drawdown = cloneFloat(o.Drawdown)
	c.ProfitFactor = cloneFloat(o.ProfitFactor)
	if o.TotalTrades != nil {
		v := *o.TotalTrades
		c.TotalTrades = &v
	}
	return c
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// BetterThan reports whether o should replace existing for the same key:
// higher completeness first, then a completed read over a failure, then
// higher net profit. Ties keep existing.
func (o Observation) BetterThan(existing Observation) bool {
	oc, ec := o.Completeness(), existing.Completeness()
	if oc != ec {
		return oc > ec
	}
	if o.Failed != existing.Failed {
		return existing.Failed
	}
	if o.Failed {
		return false
	}
	switch {
	case o.NetProfit == nil:
		return false
	case existing.NetProfit == nil:
		return true
	default:
		return *o.NetProfit > *existing.NetProfit
	}
}

// BestCandidate reports whether o may be selected as an instrument's best row.
func (o Observation) BestCandidate() bool {
	return !o.Failed && o.NetProfit != nil
}
