// Package relay forwards sized orders to a Duplikium-style copy-trade
// endpoint so follower accounts mirror the master.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ldonohue/signal-gateway/internal/route"
	"go.uber.org/zap"
)

// Auth styles accepted by Config.AuthStyle.
const (
	AuthHeaders = "headers"
	AuthBearer  = "bearer"
	AuthBasic   = "basic"
	AuthToken   = "token"
)

// Config selects the relay endpoint and credential style.
type Config struct {
	BaseURL   string
	Path      string
	Username  string
	Token     string
	AuthStyle string
	Source    string
	Enabled   bool
	DryRun    bool
}

// Duplikium is the copy-trade execution target.
type Duplikium struct {
	cfg        Config
	logger     *zap.Logger
	httpClient *http.Client
	newID      func() string
}

// New creates the relay target.
func New(cfg Config, logger *zap.Logger) *Duplikium {
	if cfg.Path == "" {
		cfg.Path = "/api/orders"
	}
	if cfg.Source == "" {
		cfg.Source = "tv_v1"
	}
	return &Duplikium{
		cfg:    cfg,
		logger: logger,
		httpClient: &http.Client{
			Timeout: 12 * time.Second,
		},
		newID: func() string {
			return uuid.NewString()[:8]
		},
	}
}

// Name implements route.Target.
func (d *Duplikium) Name() string { return "duplikium" }

type relayOrder struct {
	Source        string  `json:"source"`
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"`
	OrderType     string  `json:"orderType"`
	Units         int64   `json:"units"`
	EntryPrice    float64 `json:"entryPrice,omitempty"`
	SLPrice       float64 `json:"slPrice,omitempty"`
	TPPrice       float64 `json:"tpPrice,omitempty"`
	ClientOrderID string  `json:"clientOrderId"`
	Comment       string  `json:"comment,omitempty"`
}

// Execute forwards one order to the relay. Disabled or dry-run
// configurations return a no-op success without touching the network.
func (d *Duplikium) Execute(ctx context.Context, o route.Order) route.TargetResult {
	if !d.cfg.Enabled {
		return route.TargetResult{Target: d.Name(), OK: true, Message: "forwarding disabled"}
	}
	if d.cfg.DryRun {
		d.logger.Info("dry run, skipping relay order",
			zap.String("instrument", o.Instrument),
			zap.Int64("units", o.Units),
		)
		return route.TargetResult{Target: d.Name(), OK: true, Message: "dry run"}
	}
	if d.cfg.BaseURL == "" {
		return route.TargetResult{Target: d.Name(), OK: false, Message: "missing relay base URL"}
	}

	payload := relayOrder{
		Source:        d.cfg.Source,
		Symbol:        o.Instrument,
		Side:          string(o.Side),
		OrderType:     "MARKET",
		Units:         o.Units,
		EntryPrice:    o.Entry,
		SLPrice:       o.StopPrice,
		TPPrice:       o.TargetPrice,
		ClientOrderID: d.cfg.Source + "-" + d.newID(),
		Comment:       "signal-gateway",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return route.TargetResult{Target: d.Name(), OK: false, Message: fmt.Sprintf("marshal order: %v", err)}
	}

	url := d.cfg.BaseURL + d.cfg.Path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return route.TargetResult{Target: d.Name(), OK: false, Message: fmt.Sprintf("create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	d.authorize(req)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return route.TargetResult{Target: d.Name(), OK: false, Message: fmt.Sprintf("execute request: %v", err)}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if !ok {
		return route.TargetResult{
			Target:     d.Name(),
			OK:         false,
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}

	d.logger.Info("relay order forwarded",
		zap.String("instrument", o.Instrument),
		zap.Int64("units", o.Units),
		zap.Int("status", resp.StatusCode),
	)
	return route.TargetResult{
		Target:     d.Name(),
		OK:         true,
		StatusCode: resp.StatusCode,
		Message:    "forwarded",
	}
}

func (d *Duplikium) authorize(req *http.Request) {
	switch strings.ToLower(d.cfg.AuthStyle) {
	case AuthBearer:
		req.Header.Set("Authorization", "Bearer "+d.cfg.Token)
	case AuthBasic:
		req.SetBasicAuth(d.cfg.Username, d.cfg.Token)
	case AuthToken:
		q := req.URL.Query()
		q.Set("token", d.cfg.Token)
		req.URL.RawQuery = q.Encode()
	default:
		// Duplikium's documented scheme.
		req.Header.Set("Auth-Username", d.cfg.Username)
		req.Header.Set("Auth-Token", d.cfg.Token)
	}
}
