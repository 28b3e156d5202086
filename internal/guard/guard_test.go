package guard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func basePolicy() Policy {
	return Policy{
		TradingEnabled:       true,
		DailyLossStopPct:     1.5,
		MaxOpenTrades:        10,
		MaxOpenPerInstrument: 2,
		MinStopDistance:      map[string]float64{"US30_USD": 50},
		Allowed:              map[string]bool{"US30_USD": true, "EUR_USD": true},
	}
}

func baseContext() Context {
	return Context{
		LocalNow:          time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC), // a Wednesday
		Balance:           10000,
		StartOfDayBalance: 10000,
		Instrument:        "US30_USD",
	}
}

func TestEvaluate_AllowsCleanSignal(t *testing.T) {
	d := Evaluate(DefaultChain(), baseContext(), basePolicy())
	assert.True(t, d.Allowed)
}

func TestKillSwitch(t *testing.T) {
	p := basePolicy()
	p.TradingEnabled = false

	d := Evaluate(DefaultChain(), baseContext(), p)
	require.False(t, d.Allowed)
	assert.Equal(t, "kill_switch", d.Guard)
	assert.Equal(t, "TRADING_DISABLED", d.Code)
}

func TestTradingWindow(t *testing.T) {
	p := basePolicy()
	p.Window = "09:30-16:00"
	ctx := baseContext()

	ctx.LocalNow = time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC)
	assert.True(t, TradingWindow(ctx, p).Allowed)

	ctx.LocalNow = time.Date(2024, 3, 6, 9, 29, 0, 0, time.UTC)
	d := TradingWindow(ctx, p)
	require.False(t, d.Allowed)
	assert.Equal(t, "trading_window", d.Guard)

	ctx.LocalNow = time.Date(2024, 3, 6, 16, 0, 0, 0, time.UTC)
	assert.True(t, TradingWindow(ctx, p).Allowed, "end of window is inclusive")

	ctx.LocalNow = time.Date(2024, 3, 6, 16, 1, 0, 0, time.UTC)
	assert.False(t, TradingWindow(ctx, p).Allowed)
}

func TestTradingWindow_DayRange(t *testing.T) {
	p := basePolicy()
	p.Window = "Mon-Fri 09:30-16:00"
	ctx := baseContext()

	ctx.LocalNow = time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC) // Wednesday
	assert.True(t, TradingWindow(ctx, p).Allowed)

	ctx.LocalNow = time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC) // Saturday
	assert.False(t, TradingWindow(ctx, p).Allowed)
}

func TestTradingWindow_MalformedFailsOpen(t *testing.T) {
	p := basePolicy()
	ctx := baseContext()

	for _, spec := range []string{"banana", "25:00-26:00", "09:30", "Mon-Frk 09:30-16:00"} {
		p.Window = spec
		assert.True(t, TradingWindow(ctx, p).Allowed, "spec %q must fail open", spec)
	}
}

func TestDailyLoss(t *testing.T) {
	p := basePolicy()
	ctx := baseContext()

	// 2% drawdown against a 1.5% stop.
	ctx.Balance = 9800
	d := Evaluate(DefaultChain(), ctx, p)
	require.False(t, d.Allowed)
	assert.Equal(t, "daily_loss", d.Guard)

	// Exactly at the limit still vetoes.
	ctx.Balance = 9850
	assert.False(t, DailyLoss(ctx, p).Allowed)

	// Below the limit passes.
	ctx.Balance = 9851
	assert.True(t, DailyLoss(ctx, p).Allowed)

	// Disabled threshold never vetoes.
	p.DailyLossStopPct = 0
	ctx.Balance = 5000
	assert.True(t, DailyLoss(ctx, p).Allowed)

	// A non-positive baseline cannot produce a drawdown.
	p.DailyLossStopPct = 1.5
	ctx.StartOfDayBalance = 0
	assert.True(t, DailyLoss(ctx, p).Allowed)
}

func TestDrawdownPct(t *testing.T) {
	assert.InDelta(t, 2.0, DrawdownPct(10000, 9800), 1e-9)
	assert.Equal(t, 0.0, DrawdownPct(10000, 10500), "gains are not drawdown")
	assert.Equal(t, 0.0, DrawdownPct(0, 9800))
}

func TestConcurrency(t *testing.T) {
	p := basePolicy()
	ctx := baseContext()

	ctx.OpenForInstrument = 2
	d := Evaluate(DefaultChain(), ctx, p)
	require.False(t, d.Allowed)
	assert.Equal(t, "concurrency", d.Guard)
	assert.Equal(t, "MAX_OPEN_PER_INSTRUMENT", d.Code)

	ctx.OpenForInstrument = 1
	ctx.OpenTotal = 10
	d = Evaluate(DefaultChain(), ctx, p)
	require.False(t, d.Allowed)
	assert.Equal(t, "MAX_OPEN_TRADES", d.Code)

	// Zero caps disable the check.
	p.MaxOpenTrades = 0
	p.MaxOpenPerInstrument = 0
	ctx.OpenTotal = 100
	ctx.OpenForInstrument = 100
	assert.True(t, Concurrency(ctx, p).Allowed)
}

func TestMinStopDistance(t *testing.T) {
	p := basePolicy()
	ctx := baseContext()

	ctx.HasStop = true
	ctx.StopDelta = 49
	d := MinStopDistance(ctx, p)
	require.False(t, d.Allowed)
	assert.Equal(t, "STOP_TOO_TIGHT", d.Code)

	ctx.StopDelta = 50
	assert.True(t, MinStopDistance(ctx, p).Allowed)

	// No stop supplied: the check does not apply.
	ctx.HasStop = false
	ctx.StopDelta = 0
	assert.True(t, MinStopDistance(ctx, p).Allowed)

	// No rule for the instrument: the check does not apply.
	ctx.HasStop = true
	ctx.Instrument = "EUR_USD"
	ctx.StopDelta = 0.00001
	assert.True(t, MinStopDistance(ctx, p).Allowed)
}

func TestAllowList(t *testing.T) {
	p := basePolicy()
	ctx := baseContext()

	ctx.Instrument = "BTCUSD"
	d := Evaluate(DefaultChain(), ctx, p)
	require.False(t, d.Allowed)
	assert.Equal(t, "allow_list", d.Guard)
}

func TestEvaluate_FirstVetoWins(t *testing.T) {
	p := basePolicy()
	p.TradingEnabled = false
	ctx := baseContext()
	ctx.Balance = 9000          // would also trip daily loss
	ctx.Instrument = "BTCUSD"   // would also trip allow-list

	d := Evaluate(DefaultChain(), ctx, p)
	require.False(t, d.Allowed)
	assert.Equal(t, "kill_switch", d.Guard)
}

func TestEvaluate_ShortCircuits(t *testing.T) {
	calls := 0
	counting := func(Context, Policy) Decision {
		calls++
		return allow()
	}
	vetoing := func(Context, Policy) Decision {
		return veto("test", "TEST", "veto")
	}

	chain := []Check{counting, vetoing, counting}
	d := Evaluate(chain, baseContext(), basePolicy())
	require.False(t, d.Allowed)
	assert.Equal(t, 1, calls, "checks after the first veto never run")
}
