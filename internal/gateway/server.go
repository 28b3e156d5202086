// Package gateway is the HTTP front door: it sequences dedupe, admission
// guards, sizing, and routing for each incoming signal and owns the audit
// record and notification for every outcome.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ldonohue/signal-gateway/internal/config"
	"github.com/ldonohue/signal-gateway/internal/dedupe"
	"github.com/ldonohue/signal-gateway/internal/guard"
	"github.com/ldonohue/signal-gateway/internal/instrument"
	"github.com/ldonohue/signal-gateway/internal/journal"
	"github.com/ldonohue/signal-gateway/internal/metrics"
	"github.com/ldonohue/signal-gateway/internal/notify"
	"github.com/ldonohue/signal-gateway/internal/observability"
	"github.com/ldonohue/signal-gateway/internal/oracle"
	"github.com/ldonohue/signal-gateway/internal/route"
	"github.com/ldonohue/signal-gateway/internal/sizing"
	"go.uber.org/zap"
)

// BalanceProvider is the cached account-equity view. The bool reports a
// degraded (fallback) read.
type BalanceProvider interface {
	Balance(ctx context.Context) (float64, bool)
}

// PositionProvider is the cached open-position view. The bool reports a
// degraded (zeroed) read.
type PositionProvider interface {
	OpenPositions(ctx context.Context) (oracle.PositionCounts, bool)
}

// Deps are the collaborators the server sequences.
type Deps struct {
	Logger    *zap.Logger
	Table     *instrument.Table
	Filter    *dedupe.Filter
	Balance   BalanceProvider
	Positions PositionProvider
	Journal   *journal.Store
	Router    *route.Router
	Notifier  notify.Notifier
	Health    *observability.HealthChecker
}

// Server handles the webhook and operational endpoints.
type Server struct {
	cfg         *config.Config
	logger      *zap.Logger
	table       *instrument.Table
	filter      *dedupe.Filter
	balance     BalanceProvider
	positions   PositionProvider
	journal     *journal.Store
	router      *route.Router
	notifier    notify.Notifier
	health      *observability.HealthChecker
	guardChain  []guard.Check
	guardPolicy guard.Policy
	sizePolicy  sizing.Policy
	loc         *time.Location

	httpServer *http.Server
}

// NewServer wires the pipeline from configuration and collaborators.
func NewServer(cfg *config.Config, d Deps) *Server {
	loc, err := time.LoadLocation(cfg.TradingTZ)
	if err != nil {
		d.Logger.Warn("invalid trading timezone, using UTC",
			zap.String("tz", cfg.TradingTZ),
			zap.Error(err),
		)
		loc = time.UTC
	}

	allowed := make(map[string]bool, len(cfg.SymbolAllowlist))
	for _, sym := range cfg.SymbolAllowlist {
		allowed[d.Table.Resolve(sym)] = true
	}

	s := &Server{
		cfg:        cfg,
		logger:     d.Logger,
		table:      d.Table,
		filter:     d.Filter,
		balance:    d.Balance,
		positions:  d.Positions,
		journal:    d.Journal,
		router:     d.Router,
		notifier:   d.Notifier,
		health:     d.Health,
		guardChain: guard.DefaultChain(),
		guardPolicy: guard.Policy{
			TradingEnabled:       cfg.TradingEnabled,
			Window:               cfg.TradingWindow,
			DailyLossStopPct:     cfg.DailyLossStopPct,
			MaxOpenTrades:        cfg.MaxOpenTrades,
			MaxOpenPerInstrument: cfg.MaxOpenPerSymbol,
			MinStopDistance:      cfg.MinStopDistance,
			Allowed:              allowed,
		},
		sizePolicy: sizing.Policy{
			MaxRiskPct: cfg.MaxRiskPct,
			MaxUnits:   cfg.MaxUnits,
			UnitCaps:   cfg.SymbolUnitCaps,
			RiskCaps:   cfg.SymbolRiskCaps,
		},
		loc: loc,
	}
	return s
}

// Handler builds the route mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook", s.handleSignal)
	mux.HandleFunc("POST /dryrun", s.handleDryRun)
	mux.HandleFunc("GET /risk-status", s.handleRiskStatus)
	mux.HandleFunc("GET /env-check", s.handleEnvCheck)
	mux.HandleFunc("GET /download/trades", s.handleDownloadTrades)
	mux.HandleFunc("GET /download/equity", s.handleDownloadEquity)
	mux.HandleFunc("GET /healthz", s.health.Handler())
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /{$}", s.handleRoot)
	return s.recoverMiddleware(mux)
}

// Run serves HTTP until ctx is canceled, then drains in-flight signals.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    s.cfg.HTTPAddr(),
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", zap.String("addr", s.cfg.HTTPAddr()))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.health.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// recoverMiddleware converts a pipeline panic into a generic error response
// so one bad signal never takes down the process or other in-flight signals.
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("pipeline panic",
					zap.Any("panic", rec),
					zap.String("path", r.URL.Path),
				)
				metrics.SignalsTotal.WithLabelValues("error").Inc()
				writeJSON(w, http.StatusInternalServerError, map[string]any{
					"status": "error",
					"reason": fmt.Sprintf("internal fault: %v", rec),
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": s.cfg.ServiceName,
		"status":  "up",
	})
}

func (s *Server) handleRiskStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	balance, balanceDegraded := s.balance.Balance(ctx)
	counts, positionsDegraded := s.positions.OpenPositions(ctx)

	localNow := time.Now().In(s.loc)
	baseline, err := s.journal.DailyBaseline(ctx, localNow.Format("2006-01-02"), balance)
	if err != nil {
		s.logger.Warn("daily baseline read failed", zap.Error(err))
		baseline = balance
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"trading_enabled":     s.cfg.TradingEnabled,
		"kill_switch":         s.cfg.KillSwitch,
		"local_time":          localNow.Format(time.RFC3339),
		"trading_window":      s.cfg.TradingWindow,
		"balance":             balance,
		"balance_degraded":    balanceDegraded,
		"start_of_day":        baseline,
		"drawdown_pct":        guard.DrawdownPct(baseline, balance),
		"daily_loss_stop_pct": s.cfg.DailyLossStopPct,
		"open_trades":         counts.Total,
		"open_by_instrument":  counts.ByInstrument,
		"positions_degraded":  positionsDegraded,
		"max_risk_pct":        s.cfg.MaxRiskPct,
		"max_units":           s.cfg.MaxUnits,
		"symbol_allowlist":    s.cfg.SymbolAllowlist,
		"dedupe_tracked":      s.filter.Size(),
	})
}

// handleEnvCheck reports which credentials are configured without ever
// echoing their values.
func (s *Server) handleEnvCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"trading_enabled":      s.cfg.TradingEnabled,
		"local_test":           s.cfg.LocalTest,
		"forward_to_oanda":     s.cfg.ForwardToOanda,
		"forward_to_duplikium": s.cfg.ForwardToDuplikium,
		"oanda_account_id":     mask(s.cfg.OandaAccountID),
		"oanda_token":          mask(s.cfg.OandaToken),
		"duplikium_base_url":   s.cfg.DuplikiumBaseURL != "",
		"duplikium_token":      mask(s.cfg.DuplikiumToken),
		"discord_webhook":      s.cfg.DiscordWebhookURL != "",
		"kafka_brokers":        s.cfg.KafkaBrokers != "",
	})
}

func (s *Server) handleDownloadTrades(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="trades.csv"`)
	if err := s.journal.ExportTradesCSV(r.Context(), w); err != nil {
		s.logger.Error("trade export failed", zap.Error(err))
	}
}

func (s *Server) handleDownloadEquity(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="equity.csv"`)
	if err := s.journal.ExportEquityCSV(r.Context(), w); err != nil {
		s.logger.Error("equity export failed", zap.Error(err))
	}
}

// mask reports presence and a short suffix, never the full secret.
func mask(secret string) string {
	if secret == "" {
		return "unset"
	}
	if len(secret) <= 4 {
		return "set"
	}
	return "set (..." + secret[len(secret)-4:] + ")"
}
