package oracle

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubBalance struct {
	val   float64
	err   error
	calls int
}

func (s *stubBalance) Balance(ctx context.Context) (float64, error) {
	s.calls++
	return s.val, s.err
}

func TestBalanceOracle_CachesWithinTTL(t *testing.T) {
	src := &stubBalance{val: 250000}
	o := NewBalanceOracle(src, 1000000, 15*time.Second, zap.NewNop())

	current := time.Now()
	o.now = func() time.Time { return current }

	val, degraded := o.Balance(context.Background())
	assert.Equal(t, 250000.0, val)
	assert.False(t, degraded)

	current = current.Add(10 * time.Second)
	val, _ = o.Balance(context.Background())
	assert.Equal(t, 250000.0, val)
	assert.Equal(t, 1, src.calls, "second read within TTL served from cache")

	current = current.Add(10 * time.Second)
	o.Balance(context.Background())
	assert.Equal(t, 2, src.calls, "cache expired after TTL")
}

func TestBalanceOracle_FallsBackOnFailure(t *testing.T) {
	src := &stubBalance{err: fmt.Errorf("timeout")}
	o := NewBalanceOracle(src, 1000000, 15*time.Second, zap.NewNop())

	val, degraded := o.Balance(context.Background())
	assert.Equal(t, 1000000.0, val)
	assert.True(t, degraded)

	// Failures are not cached: the upstream is retried immediately.
	o.Balance(context.Background())
	assert.Equal(t, 2, src.calls)
}

func TestBalanceOracle_NonPositiveBalanceIsDegraded(t *testing.T) {
	src := &stubBalance{val: 0}
	o := NewBalanceOracle(src, 1000000, 15*time.Second, zap.NewNop())

	val, degraded := o.Balance(context.Background())
	assert.Equal(t, 1000000.0, val)
	assert.True(t, degraded)
}

type stubPositions struct {
	counts PositionCounts
	err    error
	calls  int
}

func (s *stubPositions) OpenPositions(ctx context.Context) (PositionCounts, error) {
	s.calls++
	return s.counts, s.err
}

func TestPositionCensus_CachesAndFallsBack(t *testing.T) {
	src := &stubPositions{counts: PositionCounts{Total: 3, ByInstrument: map[string]int{"US30_USD": 2, "EUR_USD": 1}}}
	c := NewPositionCensus(src, 5*time.Second, zap.NewNop())

	current := time.Now()
	c.now = func() time.Time { return current }

	counts, degraded := c.OpenPositions(context.Background())
	assert.False(t, degraded)
	assert.Equal(t, 3, counts.Total)
	assert.Equal(t, 2, counts.For("US30_USD"))
	assert.Equal(t, 0, counts.For("XAU_USD"))

	current = current.Add(time.Second)
	c.OpenPositions(context.Background())
	assert.Equal(t, 1, src.calls)

	src.err = fmt.Errorf("connection refused")
	current = current.Add(10 * time.Second)
	counts, degraded = c.OpenPositions(context.Background())
	assert.True(t, degraded)
	assert.Equal(t, 0, counts.Total, "failure falls back to zero counts")
}

func TestOandaAccount_Balance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/accounts/acct-1/summary", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"account":{"NAV":"98765.43","balance":"98000.00"}}`)
	}))
	defer srv.Close()

	c := NewOandaAccount(srv.URL, "acct-1", "tok")
	bal, err := c.Balance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 98765.43, bal)
}

func TestOandaAccount_BalanceFallsBackToBalanceField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"account":{"balance":"12345.00"}}`)
	}))
	defer srv.Close()

	c := NewOandaAccount(srv.URL, "acct-1", "tok")
	bal, err := c.Balance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12345.0, bal)
}

func TestOandaAccount_BalanceErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewOandaAccount(srv.URL, "acct-1", "tok")
	_, err := c.Balance(context.Background())
	assert.Error(t, err)

	c = NewOandaAccount(srv.URL, "", "")
	_, err = c.Balance(context.Background())
	assert.Error(t, err, "missing credentials is an error, not a panic")
}

func TestOandaAccount_OpenPositions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/accounts/acct-1/openPositions", r.URL.Path)
		fmt.Fprint(w, `{"positions":[
			{"instrument":"US30_USD","long":{"units":"3"},"short":{"units":"0"}},
			{"instrument":"EUR_USD","long":{"units":"100"},"short":{"units":"-50"}}
		]}`)
	}))
	defer srv.Close()

	c := NewOandaAccount(srv.URL, "acct-1", "tok")
	counts, err := c.OpenPositions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Total)
	assert.Equal(t, 1, counts.ByInstrument["US30_USD"])
	assert.Equal(t, 2, counts.ByInstrument["EUR_USD"])
}
