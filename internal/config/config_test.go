package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("gateway")
	require.NoError(t, err)

	assert.Equal(t, "gateway", cfg.ServiceName)
	assert.Equal(t, ":8080", cfg.HTTPAddr())
	assert.True(t, cfg.TradingEnabled)
	assert.False(t, cfg.KillSwitch)
	assert.Equal(t, "America/New_York", cfg.TradingTZ)
	assert.Equal(t, 1.0, cfg.MaxRiskPct)
	assert.Equal(t, int64(100000), cfg.MaxUnits)
	assert.Equal(t, 90, cfg.DedupeTTLSeconds)
	assert.Equal(t, "https://api-fxpractice.oanda.com", cfg.OandaBaseURL)
	assert.NotEmpty(t, cfg.Instruments, "built-in instrument set is the default")
	assert.Nil(t, cfg.KafkaBrokerList())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("TRADING_ENABLED", "false")
	t.Setenv("KILL_SWITCH", "yes")
	t.Setenv("MAX_RISK_PCT", "0.5")
	t.Setenv("OANDA_ENV", "live")
	t.Setenv("SYMBOL_ALLOWLIST", "US30_USD, EUR_USD")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := LoadConfig("gateway")
	require.NoError(t, err)

	assert.False(t, cfg.TradingEnabled)
	assert.True(t, cfg.KillSwitch)
	assert.Equal(t, 0.5, cfg.MaxRiskPct)
	assert.Equal(t, "https://api-fxtrade.oanda.com", cfg.OandaBaseURL)
	assert.Equal(t, []string{"US30_USD", "EUR_USD"}, cfg.SymbolAllowlist)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokerList())
}

func TestLoadConfig_RiskCapsBothShapes(t *testing.T) {
	t.Setenv("SYMBOL_RISK_CAPS", `{"US30_USD": 0.5, "EUR_USD": 0.25}`)
	cfg, err := LoadConfig("gateway")
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.SymbolRiskCaps["US30_USD"])
	assert.Equal(t, 0.25, cfg.SymbolRiskCaps["EUR_USD"])

	t.Setenv("SYMBOL_RISK_CAPS", "US30_USD:0.5, EUR_USD:0.25")
	cfg, err = LoadConfig("gateway")
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.SymbolRiskCaps["US30_USD"])
	assert.Equal(t, 0.25, cfg.SymbolRiskCaps["EUR_USD"])

	t.Setenv("SYMBOL_RISK_CAPS", "not a map")
	cfg, err = LoadConfig("gateway")
	require.NoError(t, err)
	assert.Nil(t, cfg.SymbolRiskCaps, "malformed caps degrade to none")
}

func TestLoadConfig_YAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
instruments:
  - id: SPX500_USD
    kind: index
    point: 1.0
    aliases: [SPX500, US500]
policy:
  trading_window: "Mon-Fri 09:30-16:00"
  max_risk_pct: 0.25
  max_open_trades: 4
  symbol_risk_caps:
    SPX500_USD: 0.1
`), 0644))
	t.Setenv("GATEWAY_CONFIG_FILE", path)
	t.Setenv("MAX_UNITS", "500")

	cfg, err := LoadConfig("gateway")
	require.NoError(t, err)

	require.Len(t, cfg.Instruments, 1)
	assert.Equal(t, "SPX500_USD", cfg.Instruments[0].ID)
	assert.Equal(t, "Mon-Fri 09:30-16:00", cfg.TradingWindow)
	assert.Equal(t, 0.25, cfg.MaxRiskPct)
	assert.Equal(t, 4, cfg.MaxOpenTrades)
	assert.Equal(t, 0.1, cfg.SymbolRiskCaps["SPX500_USD"])
	assert.Equal(t, int64(500), cfg.MaxUnits, "env values not named in the overlay survive")
}

func TestLoadConfig_BadOverlayFile(t *testing.T) {
	t.Setenv("GATEWAY_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := LoadConfig("gateway")
	assert.Error(t, err)
}
