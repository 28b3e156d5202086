package oracle

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PositionCounts is the open-position census, globally and per instrument.
type PositionCounts struct {
	Total        int
	ByInstrument map[string]int
}

// For returns the open count for one canonical instrument id.
func (p PositionCounts) For(instrument string) int {
	return p.ByInstrument[instrument]
}

// PositionSource is the remote open-positions query.
type PositionSource interface {
	OpenPositions(ctx context.Context) (PositionCounts, error)
}

// DefaultPositionTTL bounds call volume on the position upstream.
const DefaultPositionTTL = 5 * time.Second

// PositionCensus caches the open-position counts for a short TTL and falls
// back to zero counts on failure. The concurrency guard fails open rather
// than freezing the gateway during an upstream outage; availability is
// favored over strict concurrency enforcement there.
type PositionCensus struct {
	src    PositionSource
	ttl    time.Duration
	logger *zap.Logger

	mu      sync.Mutex
	counts  PositionCounts
	fetched time.Time
	now     func() time.Time
}

// NewPositionCensus creates a position adapter. ttl <= 0 selects the default.
func NewPositionCensus(src PositionSource, ttl time.Duration, logger *zap.Logger) *PositionCensus {
	if ttl <= 0 {
		ttl = DefaultPositionTTL
	}
	return &PositionCensus{
		src:    src,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// OpenPositions returns the census and whether it is a degraded (zeroed)
// fallback.
func (c *PositionCensus) OpenPositions(ctx context.Context) (PositionCounts, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if !c.fetched.IsZero() && now.Sub(c.fetched) < c.ttl {
		return c.counts, false
	}

	counts, err := c.src.OpenPositions(ctx)
	if err != nil {
		c.logger.Warn("position query failed, using zero counts", zap.Error(err))
		return PositionCounts{ByInstrument: map[string]int{}}, true
	}
	if counts.ByInstrument == nil {
		counts.ByInstrument = map[string]int{}
	}

	c.counts = counts
	c.fetched = now
	return counts, false
}
