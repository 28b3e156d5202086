// Package oracle exposes cached views of account equity and open positions,
// insulated from upstream failures. Both adapters fail open: a broken or slow
// upstream yields a configured fallback value plus a degraded flag, never an
// error on the hot path.
package oracle

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// BalanceSource is the remote account-equity query.
type BalanceSource interface {
	Balance(ctx context.Context) (float64, error)
}

// DefaultBalanceTTL bounds call volume on the balance upstream.
const DefaultBalanceTTL = 15 * time.Second

// BalanceOracle caches the upstream balance for a short TTL and substitutes
// a fallback constant when the upstream fails, so sizing never blocks on a
// transient outage.
type BalanceOracle struct {
	src      BalanceSource
	fallback float64
	ttl      time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	val     float64
	fetched time.Time
	now     func() time.Time
}

// NewBalanceOracle creates a balance adapter. ttl <= 0 selects the default.
func NewBalanceOracle(src BalanceSource, fallback float64, ttl time.Duration, logger *zap.Logger) *BalanceOracle {
	if ttl <= 0 {
		ttl = DefaultBalanceTTL
	}
	return &BalanceOracle{
		src:      src,
		fallback: fallback,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
	}
}

// Balance returns the current account balance and whether the value is a
// degraded fallback. Successful reads are cached; failures are not, so the
// upstream is retried on the next call.
func (o *BalanceOracle) Balance(ctx context.Context) (float64, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.now()
	if !o.fetched.IsZero() && now.Sub(o.fetched) < o.ttl {
		return o.val, false
	}

	val, err := o.src.Balance(ctx)
	if err != nil || val <= 0 {
		if err != nil {
			o.logger.Warn("balance query failed, using fallback",
				zap.Float64("fallback", o.fallback),
				zap.Error(err),
			)
		} else {
			o.logger.Warn("balance query returned non-positive value, using fallback",
				zap.Float64("value", val),
				zap.Float64("fallback", o.fallback),
			)
		}
		return o.fallback, true
	}

	o.val = val
	o.fetched = now
	return val, false
}
