// Package broker places market orders with the OANDA v3 REST API.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ldonohue/signal-gateway/internal/route"
	"go.uber.org/zap"
)

// Config selects the OANDA account and controls forwarding behavior.
type Config struct {
	BaseURL   string
	AccountID string
	Token     string
	Enabled   bool
	DryRun    bool
}

// Oanda is the broker execution target.
type Oanda struct {
	cfg        Config
	logger     *zap.Logger
	httpClient *http.Client
}

// New creates the OANDA target.
func New(cfg Config, logger *zap.Logger) *Oanda {
	return &Oanda{
		cfg:    cfg,
		logger: logger,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Name implements route.Target.
func (b *Oanda) Name() string { return "oanda" }

type marketOrderRequest struct {
	Order marketOrder `json:"order"`
}

type marketOrder struct {
	Type             string     `json:"type"`
	Instrument       string     `json:"instrument"`
	Units            string     `json:"units"`
	TimeInForce      string     `json:"timeInForce"`
	PositionFill     string     `json:"positionFill"`
	StopLossOnFill   *onFill    `json:"stopLossOnFill,omitempty"`
	TakeProfitOnFill *onFill    `json:"takeProfitOnFill,omitempty"`
}

type onFill struct {
	Price string `json:"price"`
}

// Execute places a market order. SELL orders carry negative units per the
// OANDA convention. Disabled or dry-run configurations return a no-op
// success without touching the network.
func (b *Oanda) Execute(ctx context.Context, o route.Order) route.TargetResult {
	if !b.cfg.Enabled {
		return route.TargetResult{Target: b.Name(), OK: true, Message: "forwarding disabled"}
	}
	if b.cfg.DryRun {
		b.logger.Info("dry run, skipping broker order",
			zap.String("instrument", o.Instrument),
			zap.Int64("units", o.Units),
		)
		return route.TargetResult{Target: b.Name(), OK: true, Message: "dry run"}
	}
	if b.cfg.Token == "" || b.cfg.AccountID == "" {
		return route.TargetResult{Target: b.Name(), OK: false, Message: "missing OANDA credentials"}
	}

	units := o.Units
	if o.Side == route.SideSell {
		units = -units
	}

	order := marketOrder{
		Type:         "MARKET",
		Instrument:   o.Instrument,
		Units:        strconv.FormatInt(units, 10),
		TimeInForce:  "FOK",
		PositionFill: "DEFAULT",
	}
	if o.StopPrice > 0 {
		order.StopLossOnFill = &onFill{Price: formatPrice(o.StopPrice)}
	}
	if o.TargetPrice > 0 {
		order.TakeProfitOnFill = &onFill{Price: formatPrice(o.TargetPrice)}
	}

	body, err := json.Marshal(marketOrderRequest{Order: order})
	if err != nil {
		return route.TargetResult{Target: b.Name(), OK: false, Message: fmt.Sprintf("marshal order: %v", err)}
	}

	url := fmt.Sprintf("%s/v3/accounts/%s/orders", b.cfg.BaseURL, b.cfg.AccountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return route.TargetResult{Target: b.Name(), OK: false, Message: fmt.Sprintf("create request: %v", err)}
	}
	req.Header.Set("Authorization", "Bearer "+b.cfg.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return route.TargetResult{Target: b.Name(), OK: false, Message: fmt.Sprintf("execute request: %v", err)}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if !ok {
		return route.TargetResult{
			Target:     b.Name(),
			OK:         false,
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}

	b.logger.Info("broker order placed",
		zap.String("instrument", o.Instrument),
		zap.Int64("units", units),
		zap.Int("status", resp.StatusCode),
	)
	return route.TargetResult{
		Target:     b.Name(),
		OK:         true,
		StatusCode: resp.StatusCode,
		Message:    "order placed",
	}
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', 5, 64)
}
