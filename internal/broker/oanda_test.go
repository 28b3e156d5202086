package broker

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ldonohue/signal-gateway/internal/route"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestExecute_PlacesMarketOrder(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/accounts/acct-1/orders", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	b := New(Config{BaseURL: srv.URL, AccountID: "acct-1", Token: "tok", Enabled: true}, zap.NewNop())
	res := b.Execute(context.Background(), route.Order{
		Instrument: "US30_USD", Side: route.SideBuy, Units: 3,
		StopPrice: 39100, TargetPrice: 39550,
	})

	assert.True(t, res.OK)
	assert.Equal(t, http.StatusCreated, res.StatusCode)

	order := got["order"].(map[string]any)
	assert.Equal(t, "MARKET", order["type"])
	assert.Equal(t, "US30_USD", order["instrument"])
	assert.Equal(t, "3", order["units"])
	assert.Equal(t, "DEFAULT", order["positionFill"])
	assert.Equal(t, "39100.00000", order["stopLossOnFill"].(map[string]any)["price"])
	assert.Equal(t, "39550.00000", order["takeProfitOnFill"].(map[string]any)["price"])
}

func TestExecute_SellUnitsAreNegative(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	b := New(Config{BaseURL: srv.URL, AccountID: "acct-1", Token: "tok", Enabled: true}, zap.NewNop())
	res := b.Execute(context.Background(), route.Order{
		Instrument: "EUR_USD", Side: route.SideSell, Units: 250,
	})

	assert.True(t, res.OK)
	order := got["order"].(map[string]any)
	assert.Equal(t, "-250", order["units"])
	_, hasSL := order["stopLossOnFill"]
	assert.False(t, hasSL, "no stop on fill when the signal has no stop")
}

func TestExecute_ShortCircuits(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	disabled := New(Config{BaseURL: srv.URL, AccountID: "acct-1", Token: "tok"}, zap.NewNop())
	res := disabled.Execute(context.Background(), route.Order{Instrument: "EUR_USD", Side: route.SideBuy, Units: 1})
	assert.True(t, res.OK)
	assert.Equal(t, "forwarding disabled", res.Message)

	dry := New(Config{BaseURL: srv.URL, AccountID: "acct-1", Token: "tok", Enabled: true, DryRun: true}, zap.NewNop())
	res = dry.Execute(context.Background(), route.Order{Instrument: "EUR_USD", Side: route.SideBuy, Units: 1})
	assert.True(t, res.OK)
	assert.Equal(t, "dry run", res.Message)

	assert.Equal(t, 0, calls, "short-circuit paths never touch the network")
}

func TestExecute_BrokerRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"errorMessage":"Insufficient margin"}`)
	}))
	defer srv.Close()

	b := New(Config{BaseURL: srv.URL, AccountID: "acct-1", Token: "tok", Enabled: true}, zap.NewNop())
	res := b.Execute(context.Background(), route.Order{Instrument: "US30_USD", Side: route.SideBuy, Units: 9999999})

	assert.False(t, res.OK)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Contains(t, res.Message, "Insufficient margin")
}

func TestExecute_MissingCredentials(t *testing.T) {
	b := New(Config{Enabled: true}, zap.NewNop())
	res := b.Execute(context.Background(), route.Order{Instrument: "EUR_USD", Side: route.SideBuy, Units: 1})
	assert.False(t, res.OK)
	assert.Contains(t, res.Message, "credentials")
}
