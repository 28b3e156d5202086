// Package route fans a sized order out to the downstream execution targets
// and reduces their independent results into one aggregate outcome.
package route

import (
	"context"

	"github.com/ldonohue/signal-gateway/internal/chaos"
	"go.uber.org/zap"
)

// Side is the order direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Outcome is the aggregate status across all targets.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomePartial Outcome = "partial"
	OutcomeError   Outcome = "error"
)

// Order is the sized order handed to each target. Stop and target prices are
// zero when the signal did not supply them.
type Order struct {
	Instrument  string
	Side        Side
	Units       int64
	Entry       float64
	StopPrice   float64
	TargetPrice float64
}

// TargetResult is the independent result of one downstream call.
type TargetResult struct {
	Target     string
	OK         bool
	StatusCode int
	Message    string
}

// Target is one downstream execution destination. Implementations own their
// timeout and must short-circuit to a no-op success when forwarding is
// disabled or dry-run is active.
type Target interface {
	Name() string
	Execute(ctx context.Context, o Order) TargetResult
}

// Router sends an order to every target, failures in one never suppressing
// the others, and reduces the results. Downstream calls are not retried:
// blind retries on an order-placement endpoint risk duplicate fills.
type Router struct {
	targets []Target
	chaos   *chaos.Chaos
	logger  *zap.Logger
}

// NewRouter creates a router over the given targets. chaos may be nil.
func NewRouter(targets []Target, cz *chaos.Chaos, logger *zap.Logger) *Router {
	return &Router{targets: targets, chaos: cz, logger: logger}
}

// Execute runs every target in order and returns the aggregate outcome with
// the per-target results.
func (r *Router) Execute(ctx context.Context, o Order) (Outcome, []TargetResult) {
	results := make([]TargetResult, 0, len(r.targets))

	for _, t := range r.targets {
		if r.chaos.MaybeDrop(t.Name(), "execute") {
			results = append(results, TargetResult{
				Target:  t.Name(),
				OK:      false,
				Message: "chaos: call dropped",
			})
			continue
		}
		if err := r.chaos.MaybeDelay(ctx, t.Name(), "execute"); err != nil {
			results = append(results, TargetResult{
				Target:  t.Name(),
				OK:      false,
				Message: "chaos: " + err.Error(),
			})
			continue
		}

		res := t.Execute(ctx, o)
		if !res.OK {
			r.logger.Warn("downstream execution failed",
				zap.String("target", res.Target),
				zap.Int("status", res.StatusCode),
				zap.String("message", res.Message),
			)
		}
		results = append(results, res)
	}

	return Reduce(results), results
}

// Reduce collapses per-target results: ok iff all succeeded, error iff all
// failed, partial otherwise. No targets reduces to ok (nothing to do).
func Reduce(results []TargetResult) Outcome {
	if len(results) == 0 {
		return OutcomeOK
	}

	succeeded := 0
	for _, r := range results {
		if r.OK {
			succeeded++
		}
	}

	switch succeeded {
	case len(results):
		return OutcomeOK
	case 0:
		return OutcomeError
	default:
		return OutcomePartial
	}
}
