// Package guard implements the ordered admission checks that can veto a
// signal before it is sized or routed. Every check is a pure function over
// (Context, Policy) so the chain can be composed, reordered, and tested
// without touching the orchestrator.
package guard

import (
	"fmt"
	"time"
)

// Context is the per-request snapshot the checks evaluate against. It is
// derived fresh for every signal (subject to adapter caching) and never
// persisted.
type Context struct {
	// LocalNow is the wall-clock time in the gateway's trading timezone.
	LocalNow time.Time

	// KillSwitchEngaged is true when the global trading enable flag is off.
	KillSwitchEngaged bool

	// Balance is the latest account balance reading.
	Balance float64
	// StartOfDayBalance is the first balance recorded for the current local
	// calendar day.
	StartOfDayBalance float64

	// OpenTotal and OpenForInstrument are the open-position counts.
	OpenTotal         int
	OpenForInstrument int

	// Instrument is the resolved canonical id of the signal's symbol.
	Instrument string

	// HasStop and StopDelta describe the signal's stop distance converted to
	// price units; StopDelta is meaningless when HasStop is false.
	HasStop   bool
	StopDelta float64
}

// Policy is the immutable configuration the checks enforce.
type Policy struct {
	TradingEnabled bool

	// Window is the raw trading-window specification, e.g. "09:30-16:00" or
	// "Mon-Fri 09:30-16:00". Empty disables the check; malformed fails open.
	Window string

	// DailyLossStopPct halts trading when intraday drawdown reaches this
	// percentage. Zero disables the check.
	DailyLossStopPct float64

	// MaxOpenTrades and MaxOpenPerInstrument cap concurrency. Zero disables.
	MaxOpenTrades        int
	MaxOpenPerInstrument int

	// MinStopDistance holds per-instrument minimum stop distances in price
	// units, keyed by canonical id.
	MinStopDistance map[string]float64

	// Allowed is the set of canonical instrument ids the gateway will trade.
	Allowed map[string]bool
}

// Decision is the outcome of one check or of the whole chain.
type Decision struct {
	Allowed bool
	Guard   string
	Code    string
	Reason  string
}

func allow() Decision {
	return Decision{Allowed: true}
}

func veto(guard, code, reason string) Decision {
	return Decision{Guard: guard, Code: code, Reason: reason}
}

// Check is one veto-capable admission check.
type Check func(Context, Policy) Decision

// DefaultChain returns the checks in their enforced order. The first veto
// determines the rejection reason.
func DefaultChain() []Check {
	return []Check{
		KillSwitch,
		TradingWindow,
		DailyLoss,
		Concurrency,
		MinStopDistance,
		AllowList,
	}
}

// Evaluate runs the chain in order and short-circuits on the first veto.
func Evaluate(chain []Check, ctx Context, p Policy) Decision {
	for _, check := range chain {
		if d := check(ctx, p); !d.Allowed {
			return d
		}
	}
	return allow()
}

// KillSwitch vetoes every signal while the global trading flag is off.
func KillSwitch(ctx Context, p Policy) Decision {
	if ctx.KillSwitchEngaged || !p.TradingEnabled {
		return veto("kill_switch", "TRADING_DISABLED", "trading is disabled")
	}
	return allow()
}

// TradingWindow vetoes signals outside the configured local-time window.
func TradingWindow(ctx Context, p Policy) Decision {
	w, err := parseWindow(p.Window)
	if err != nil || w == nil {
		// A malformed window must not block all trading.
		return allow()
	}
	if !w.contains(ctx.LocalNow) {
		return veto("trading_window", "OUTSIDE_WINDOW",
			fmt.Sprintf("outside trading window %s", p.Window))
	}
	return allow()
}

// DailyLoss vetoes once intraday drawdown from the start-of-day balance
// reaches the configured threshold.
func DailyLoss(ctx Context, p Policy) Decision {
	if p.DailyLossStopPct <= 0 {
		return allow()
	}
	dd := DrawdownPct(ctx.StartOfDayBalance, ctx.Balance)
	if dd >= p.DailyLossStopPct {
		return veto("daily_loss", "DAILY_LOSS_STOP",
			fmt.Sprintf("drawdown %.4f%% >= limit %.4f%%", dd, p.DailyLossStopPct))
	}
	return allow()
}

// DrawdownPct computes the intraday drawdown percentage. A non-positive
// baseline yields zero.
func DrawdownPct(startOfDay, current float64) float64 {
	if startOfDay <= 0 {
		return 0
	}
	dd := (startOfDay - current) / startOfDay * 100.0
	if dd < 0 {
		return 0
	}
	return dd
}

// Concurrency vetoes when open-position counts have reached the configured
// global or per-instrument caps.
func Concurrency(ctx Context, p Policy) Decision {
	if p.MaxOpenTrades > 0 && ctx.OpenTotal >= p.MaxOpenTrades {
		return veto("concurrency", "MAX_OPEN_TRADES",
			fmt.Sprintf("open trades %d >= max %d", ctx.OpenTotal, p.MaxOpenTrades))
	}
	if p.MaxOpenPerInstrument > 0 && ctx.OpenForInstrument >= p.MaxOpenPerInstrument {
		return veto("concurrency", "MAX_OPEN_PER_INSTRUMENT",
			fmt.Sprintf("open %s trades %d >= max %d", ctx.Instrument, ctx.OpenForInstrument, p.MaxOpenPerInstrument))
	}
	return allow()
}

// MinStopDistance vetoes signals whose stop is tighter than the configured
// per-instrument minimum. Signals without a stop pass.
func MinStopDistance(ctx Context, p Policy) Decision {
	min, ok := p.MinStopDistance[ctx.Instrument]
	if !ok || !ctx.HasStop {
		return allow()
	}
	if ctx.StopDelta < min {
		return veto("min_stop", "STOP_TOO_TIGHT",
			fmt.Sprintf("stop distance %.5f below minimum %.5f", ctx.StopDelta, min))
	}
	return allow()
}

// AllowList vetoes instruments outside the configured allow-list.
func AllowList(ctx Context, p Policy) Decision {
	if !p.Allowed[ctx.Instrument] {
		return veto("allow_list", "SYMBOL_NOT_ALLOWED",
			fmt.Sprintf("symbol %s not allowed", ctx.Instrument))
	}
	return allow()
}
