// Package sizing converts a risk budget and stop distance into an order
// quantity, subject to layered caps.
package sizing

import "math"

// Policy carries the global and per-instrument sizing limits. Immutable
// after startup.
type Policy struct {
	// MaxRiskPct is the hard cap on risk per trade, in percent (0.50 = 0.5%).
	MaxRiskPct float64
	// MaxUnits is the absolute unit ceiling for any single order.
	MaxUnits int64
	// UnitCaps holds per-instrument unit ceilings, keyed by canonical id.
	UnitCaps map[string]int64
	// RiskCaps holds per-instrument risk percentage caps, keyed by canonical id.
	RiskCaps map[string]float64
}

// Result is the sized order quantity and the risk percentage actually applied.
type Result struct {
	Units          int64
	AppliedRiskPct float64
}

// Size computes order units from the account balance, the applied risk
// percentage, and the price distance to the stop.
//
// risk_dollars = balance * pct/100, units = floor(risk_dollars / |entry-stop|).
// Rounding is always floor so the risk budget is never exceeded; the result
// is clamped to [1, MaxUnits] and then to the per-instrument cap. With no
// usable stop (absent or equal to entry) sizing by risk is impossible, so
// the result degrades to a nominal single unit after caps.
func Size(p Policy, instrument string, balance, requestedPct, entry, stopPrice float64) Result {
	pct := requestedPct
	if pct < 0 {
		pct = 0
	}
	if pct > p.MaxRiskPct {
		pct = p.MaxRiskPct
	}
	if cap, ok := p.RiskCaps[instrument]; ok && pct > cap {
		pct = cap
	}

	delta := math.Abs(entry - stopPrice)
	if stopPrice == 0 || delta == 0 {
		return Result{Units: p.applyCaps(instrument, 1), AppliedRiskPct: pct}
	}

	riskDollars := balance * (pct / 100.0)
	units := int64(math.Floor(riskDollars / delta))
	return Result{Units: p.applyCaps(instrument, units), AppliedRiskPct: pct}
}

func (p Policy) applyCaps(instrument string, units int64) int64 {
	units = clamp(units, p.MaxUnits)
	if cap, ok := p.UnitCaps[instrument]; ok {
		units = clamp(units, cap)
	}
	return units
}

// clamp bounds units to [1, max]. The floor of 1 keeps an order placeable
// when the computed size underflows to zero.
func clamp(units, max int64) int64 {
	if max > 0 && units > max {
		units = max
	}
	if units < 1 {
		units = 1
	}
	return units
}
