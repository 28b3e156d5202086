// Package config loads the gateway configuration from environment variables,
// optionally overlaid with a YAML file for instrument reference data and
// risk-policy overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ldonohue/signal-gateway/internal/instrument"
	"github.com/ldonohue/signal-gateway/internal/oracle"
	"gopkg.in/yaml.v3"
)

// Config holds the full gateway configuration.
type Config struct {
	ServiceName string
	HTTPPort    int
	LogLevel    string

	// Admission policy
	TradingEnabled   bool
	KillSwitch       bool
	TradingTZ        string
	TradingWindow    string
	DailyLossStopPct float64
	MaxOpenTrades    int
	MaxOpenPerSymbol int
	MinStopDistance  map[string]float64
	SymbolAllowlist  []string

	// Sizing policy
	MaxRiskPct     float64
	MaxUnits       int64
	SymbolRiskCaps map[string]float64
	SymbolUnitCaps map[string]int64
	MasterStartBal float64

	// Cache TTLs, seconds
	DedupeTTLSeconds   int
	BalanceTTLSeconds  int
	PositionTTLSeconds int

	// Downstream targets
	LocalTest          bool
	ForwardToOanda     bool
	ForwardToDuplikium bool
	OandaBaseURL       string
	OandaAccountID     string
	OandaToken         string
	DuplikiumBaseURL   string
	DuplikiumPath      string
	DuplikiumUser      string
	DuplikiumToken     string
	DuplikiumAuthStyle string
	DuplikiumSource    string

	// Notifications
	DiscordWebhookURL string
	KafkaBrokers      string

	// Storage
	JournalPath string

	// Instrument reference data, replaceable via the YAML overlay.
	Instruments []instrument.Meta
}

// fileConfig is the YAML overlay shape.
type fileConfig struct {
	Instruments []instrument.Meta `yaml:"instruments"`
	Policy      struct {
		TradingWindow    *string            `yaml:"trading_window"`
		DailyLossStopPct *float64           `yaml:"daily_loss_stop_pct"`
		MaxRiskPct       *float64           `yaml:"max_risk_pct"`
		MaxUnits         *int64             `yaml:"max_units"`
		MaxOpenTrades    *int               `yaml:"max_open_trades"`
		MaxOpenPerSymbol *int               `yaml:"max_open_per_symbol"`
		SymbolAllowlist  []string           `yaml:"symbol_allowlist"`
		SymbolRiskCaps   map[string]float64 `yaml:"symbol_risk_caps"`
		SymbolUnitCaps   map[string]int64   `yaml:"symbol_unit_caps"`
		MinStopDistance  map[string]float64 `yaml:"min_stop_distance"`
	} `yaml:"policy"`
}

// LoadConfig loads configuration from environment variables with defaults,
// then applies the YAML overlay named by GATEWAY_CONFIG_FILE when set.
func LoadConfig(serviceName string) (*Config, error) {
	cfg := &Config{
		ServiceName: serviceName,
		HTTPPort:    getEnvAsInt("PORT_HTTP", 8080),
		LogLevel:    getEnvAsString("LOG_LEVEL", "info"),

		TradingEnabled:   getEnvAsBool("TRADING_ENABLED", true),
		KillSwitch:       getEnvAsBool("KILL_SWITCH", false),
		TradingTZ:        getEnvAsString("TRADING_TZ", "America/New_York"),
		TradingWindow:    getEnvAsString("TRADING_WINDOW", ""),
		DailyLossStopPct: getEnvAsFloat("DAILY_LOSS_STOP_PCT", 0),
		MaxOpenTrades:    getEnvAsInt("MAX_OPEN_TRADES", 0),
		MaxOpenPerSymbol: getEnvAsInt("MAX_OPEN_PER_SYMBOL", 0),
		MinStopDistance:  getEnvAsFloatMap("MIN_STOP_DISTANCE"),
		SymbolAllowlist:  getEnvAsList("SYMBOL_ALLOWLIST"),

		MaxRiskPct:     getEnvAsFloat("MAX_RISK_PCT", 1.0),
		MaxUnits:       int64(getEnvAsInt("MAX_UNITS", 100000)),
		SymbolRiskCaps: getEnvAsFloatMap("SYMBOL_RISK_CAPS"),
		SymbolUnitCaps: getEnvAsIntMap("SYMBOL_UNIT_CAPS"),
		MasterStartBal: getEnvAsFloat("MASTER_START_BAL", 10000),

		DedupeTTLSeconds:   getEnvAsInt("DEDUPE_TTL_SECONDS", 90),
		BalanceTTLSeconds:  getEnvAsInt("BALANCE_CACHE_TTL_SECONDS", 15),
		PositionTTLSeconds: getEnvAsInt("POSITION_CACHE_TTL_SECONDS", 5),

		LocalTest:          getEnvAsBool("LOCAL_TEST", false),
		ForwardToOanda:     getEnvAsBool("FORWARD_TO_OANDA", false),
		ForwardToDuplikium: getEnvAsBool("FORWARD_TO_DUPLIKIUM", false),
		OandaBaseURL:       getEnvAsString("OANDA_BASE_URL", oandaBaseURL(os.Getenv("OANDA_ENV"))),
		OandaAccountID:     getEnvAsString("OANDA_ACCOUNT_ID", ""),
		OandaToken:         getEnvAsString("OANDA_TOKEN", ""),
		DuplikiumBaseURL:   getEnvAsString("DUPLIKIUM_BASE_URL", ""),
		DuplikiumPath:      getEnvAsString("DUPLIKIUM_PATH", "/api/orders"),
		DuplikiumUser:      getEnvAsString("DUPLIKIUM_USER", ""),
		DuplikiumToken:     getEnvAsString("DUPLIKIUM_TOKEN", ""),
		DuplikiumAuthStyle: getEnvAsString("DUPLIKIUM_AUTH_STYLE", "headers"),
		DuplikiumSource:    getEnvAsString("DUPLIKIUM_SOURCE", "tv_v1"),

		DiscordWebhookURL: getEnvAsString("DISCORD_WEBHOOK_URL", ""),
		KafkaBrokers:      getEnvAsString("KAFKA_BROKERS", ""),

		JournalPath: getEnvAsString("JOURNAL_PATH", "data/journal.db"),

		Instruments: instrument.DefaultMetas(),
	}

	if path := os.Getenv("GATEWAY_CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	if len(fc.Instruments) > 0 {
		c.Instruments = fc.Instruments
	}
	p := fc.Policy
	if p.TradingWindow != nil {
		c.TradingWindow = *p.TradingWindow
	}
	if p.DailyLossStopPct != nil {
		c.DailyLossStopPct = *p.DailyLossStopPct
	}
	if p.MaxRiskPct != nil {
		c.MaxRiskPct = *p.MaxRiskPct
	}
	if p.MaxUnits != nil {
		c.MaxUnits = *p.MaxUnits
	}
	if p.MaxOpenTrades != nil {
		c.MaxOpenTrades = *p.MaxOpenTrades
	}
	if p.MaxOpenPerSymbol != nil {
		c.MaxOpenPerSymbol = *p.MaxOpenPerSymbol
	}
	if len(p.SymbolAllowlist) > 0 {
		c.SymbolAllowlist = p.SymbolAllowlist
	}
	if len(p.SymbolRiskCaps) > 0 {
		c.SymbolRiskCaps = p.SymbolRiskCaps
	}
	if len(p.SymbolUnitCaps) > 0 {
		c.SymbolUnitCaps = p.SymbolUnitCaps
	}
	if len(p.MinStopDistance) > 0 {
		c.MinStopDistance = p.MinStopDistance
	}
	return nil
}

// HTTPAddr returns the HTTP server address.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// KafkaBrokerList splits the comma-separated broker string.
func (c *Config) KafkaBrokerList() []string {
	if c.KafkaBrokers == "" {
		return nil
	}
	return splitList(c.KafkaBrokers)
}

func oandaBaseURL(env string) string {
	if strings.EqualFold(env, "live") {
		return oracle.LiveURL
	}
	return oracle.PracticeURL
}

func getEnvAsString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	return splitList(value)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnvAsFloatMap parses either JSON ({"US30_USD": 0.5}) or comma pairs
// (US30_USD:0.5,EUR_USD:0.25). Alert-platform operators use both shapes.
func getEnvAsFloatMap(key string) map[string]float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil
	}

	if strings.HasPrefix(value, "{") {
		var m map[string]float64
		if err := json.Unmarshal([]byte(value), &m); err == nil {
			return m
		}
		return nil
	}

	m := make(map[string]float64)
	for _, pair := range strings.Split(value, ",") {
		k, v, ok := strings.Cut(pair, ":")
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			continue
		}
		m[strings.TrimSpace(k)] = f
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

func getEnvAsIntMap(key string) map[string]int64 {
	fm := getEnvAsFloatMap(key)
	if fm == nil {
		return nil
	}
	m := make(map[string]int64, len(fm))
	for k, v := range fm {
		m[k] = int64(v)
	}
	return m
}
