package route

import (
	"context"
	"testing"

	"github.com/ldonohue/signal-gateway/internal/chaos"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeTarget struct {
	name   string
	ok     bool
	calls  int
	gotCtx context.Context
}

func (f *fakeTarget) Name() string { return f.name }

func (f *fakeTarget) Execute(ctx context.Context, o Order) TargetResult {
	f.calls++
	f.gotCtx = ctx
	return TargetResult{Target: f.name, OK: f.ok, StatusCode: 200, Message: "done"}
}

func TestReduce(t *testing.T) {
	ok := TargetResult{OK: true}
	fail := TargetResult{OK: false}

	assert.Equal(t, OutcomeOK, Reduce(nil))
	assert.Equal(t, OutcomeOK, Reduce([]TargetResult{ok, ok}))
	assert.Equal(t, OutcomePartial, Reduce([]TargetResult{ok, fail}))
	assert.Equal(t, OutcomePartial, Reduce([]TargetResult{fail, ok}))
	assert.Equal(t, OutcomeError, Reduce([]TargetResult{fail, fail}))
}

func TestExecute_AllTargetsAttemptedIndependently(t *testing.T) {
	broker := &fakeTarget{name: "broker", ok: false}
	relay := &fakeTarget{name: "relay", ok: true}
	r := NewRouter([]Target{broker, relay}, nil, zap.NewNop())

	outcome, results := r.Execute(context.Background(), Order{Instrument: "US30_USD", Side: SideBuy, Units: 3})

	assert.Equal(t, OutcomePartial, outcome)
	require.Len(t, results, 2)
	assert.Equal(t, 1, broker.calls)
	assert.Equal(t, 1, relay.calls, "relay still attempted after broker failure")
}

func TestExecute_ChaosDropFailsTarget(t *testing.T) {
	broker := &fakeTarget{name: "broker", ok: true}
	relay := &fakeTarget{name: "relay", ok: true}

	cz := chaos.New(&chaos.Config{Enabled: true, Target: "broker", DropPct: 100, Seed: 1}, zap.NewNop())
	r := NewRouter([]Target{broker, relay}, cz, zap.NewNop())

	outcome, results := r.Execute(context.Background(), Order{Instrument: "EUR_USD", Side: SideSell, Units: 1})

	assert.Equal(t, OutcomePartial, outcome)
	assert.Equal(t, 0, broker.calls, "dropped call never reaches the target")
	assert.Equal(t, 1, relay.calls)
	require.Len(t, results, 2)
	assert.False(t, results[0].OK)
	assert.Contains(t, results[0].Message, "chaos")
}
