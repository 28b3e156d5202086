package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ldonohue/signal-gateway/internal/guard"
	"github.com/ldonohue/signal-gateway/internal/instrument"
	"github.com/ldonohue/signal-gateway/internal/journal"
	"github.com/ldonohue/signal-gateway/internal/metrics"
	"github.com/ldonohue/signal-gateway/internal/notify"
	"github.com/ldonohue/signal-gateway/internal/route"
	"github.com/ldonohue/signal-gateway/internal/sizing"
	"go.uber.org/zap"
)

// defaultRiskPct is applied when a signal does not request a risk budget.
const defaultRiskPct = 0.05

// flexFloat accepts both JSON numbers and numeric strings. Alert platforms
// template prices as strings more often than not.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q", s)
	}
	*f = flexFloat(v)
	return nil
}

// signalRequest is the inbound webhook body.
type signalRequest struct {
	Symbol  string    `json:"symbol"`
	Ticker  string    `json:"ticker"`
	Action  string    `json:"action"`
	Signal  string    `json:"signal"`
	Side    string    `json:"side"`
	Price   flexFloat `json:"price"`
	OrderID string    `json:"order_id"`
	SL      flexFloat `json:"sl"`
	SLType  string    `json:"sl_type"`
	TP      flexFloat `json:"tp"`
	TPType  string    `json:"tp_type"`
	RiskPct flexFloat `json:"risk_pct"`
}

func (sr signalRequest) symbol() string {
	if sr.Symbol != "" {
		return sr.Symbol
	}
	return sr.Ticker
}

// parseSide matches by substring so decorated values like "STRATEGY BUY
// LONG" still resolve.
func parseSide(raw string) (route.Side, bool) {
	u := strings.ToUpper(raw)
	switch {
	case strings.Contains(u, "BUY") || strings.Contains(u, "LONG"):
		return route.SideBuy, true
	case strings.Contains(u, "SELL") || strings.Contains(u, "SHORT"):
		return route.SideSell, true
	}
	return "", false
}

func (sr signalRequest) side() (route.Side, bool) {
	for _, raw := range []string{sr.Action, sr.Signal, sr.Side} {
		if raw == "" {
			continue
		}
		if side, ok := parseSide(raw); ok {
			return side, true
		}
	}
	return "", false
}

func unitKind(raw string) instrument.UnitKind {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pips":
		return instrument.UnitPips
	case "price":
		return instrument.UnitPrice
	default:
		return instrument.UnitPoints
	}
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	var sig signalRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&sig); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"status": "malformed",
			"reason": fmt.Sprintf("invalid JSON body: %v", err),
		})
		return
	}
	s.process(w, r, sig, false)
}

// handleDryRun exercises the full pipeline with downstream calls simulated,
// filling in a reference signal for any field the caller omits.
func (s *Server) handleDryRun(w http.ResponseWriter, r *http.Request) {
	sig := signalRequest{}
	// Body is optional here.
	json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&sig)

	if sig.symbol() == "" {
		sig.Symbol = "US30"
	}
	if _, ok := sig.side(); !ok {
		sig.Action = "BUY"
	}
	if sig.Price == 0 {
		sig.Price = 39250
	}
	if sig.SL == 0 {
		sig.SL = 150
	}
	if sig.TP == 0 {
		sig.TP = 300
	}
	if sig.OrderID == "" {
		sig.OrderID = "dryrun-" + uuid.NewString()[:8]
	}
	s.process(w, r, sig, true)
}

// process runs one signal through the pipeline: dedupe, guards, sizing,
// routing. Exactly one audit record and one best-effort notification are
// produced no matter where it exits, except for malformed input which never
// enters the pipeline.
func (s *Server) process(w http.ResponseWriter, r *http.Request, sig signalRequest, forceDry bool) {
	ctx := r.Context()

	side, ok := sig.side()
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"status": "malformed",
			"reason": "missing or unrecognized side",
		})
		return
	}
	if sig.symbol() == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"status": "malformed",
			"reason": "missing symbol",
		})
		return
	}
	if sig.Price <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"status": "malformed",
			"reason": "missing or non-positive price",
		})
		return
	}

	orderID := sig.OrderID
	if orderID == "" {
		orderID = "tv-" + uuid.NewString()[:8]
	}

	tvSymbol := sig.symbol()
	inst := s.table.Resolve(tvSymbol)
	entry := float64(sig.Price)

	if s.filter.Seen(orderID) {
		s.audit(ctx, journal.TradeRecord{
			OrderID: orderID, TVSymbol: tvSymbol, Instrument: inst,
			Side: string(side), Entry: entry, Status: "ignored",
		})
		s.finish(ctx, w, http.StatusOK, map[string]any{
			"status":   "ignored",
			"reason":   "duplicate order_id within dedupe window",
			"order_id": orderID,
		}, notify.Event{
			Title: "Duplicate signal ignored", Status: "ignored", OrderID: orderID,
			Fields: []notify.Field{{Name: "instrument", Value: inst}},
		})
		return
	}

	// Stop/target distances become price deltas, then absolute prices by side.
	var slPrice, tpPrice, slDelta float64
	hasStop := sig.SL > 0
	if hasStop {
		slDelta = s.table.PriceDelta(inst, float64(sig.SL), unitKind(sig.SLType))
	}
	tpDelta := 0.0
	if sig.TP > 0 {
		tpDelta = s.table.PriceDelta(inst, float64(sig.TP), unitKind(sig.TPType))
	}
	if side == route.SideBuy {
		if hasStop {
			slPrice = entry - slDelta
		}
		if tpDelta > 0 {
			tpPrice = entry + tpDelta
		}
	} else {
		if hasStop {
			slPrice = entry + slDelta
		}
		if tpDelta > 0 {
			tpPrice = entry - tpDelta
		}
	}

	localNow := time.Now().In(s.loc)
	balance, balanceDegraded := s.balance.Balance(ctx)
	metrics.Balance.Set(balance)
	if balanceDegraded {
		metrics.OracleDegraded.WithLabelValues("balance").Inc()
	}

	baseline, err := s.journal.DailyBaseline(ctx, localNow.Format("2006-01-02"), balance)
	if err != nil {
		s.logger.Warn("daily baseline unavailable", zap.Error(err))
		baseline = balance
	}

	counts, positionsDegraded := s.positions.OpenPositions(ctx)
	if positionsDegraded {
		metrics.OracleDegraded.WithLabelValues("positions").Inc()
	}

	gctx := guard.Context{
		LocalNow:          localNow,
		KillSwitchEngaged: s.cfg.KillSwitch,
		Balance:           balance,
		StartOfDayBalance: baseline,
		OpenTotal:         counts.Total,
		OpenForInstrument: counts.For(inst),
		Instrument:        inst,
		HasStop:           hasStop,
		StopDelta:         slDelta,
	}

	if d := guard.Evaluate(s.guardChain, gctx, s.guardPolicy); !d.Allowed {
		metrics.GuardVetoes.WithLabelValues(d.Guard).Inc()

		status := "rejected"
		httpStatus := http.StatusConflict
		if d.Guard == "kill_switch" {
			status = "skipped"
			httpStatus = http.StatusOK
		}

		s.audit(ctx, journal.TradeRecord{
			OrderID: orderID, TVSymbol: tvSymbol, Instrument: inst,
			Side: string(side), Entry: entry, StopPrice: slPrice, TargetPrice: tpPrice,
			Status: status,
		})
		s.finish(ctx, w, httpStatus, map[string]any{
			"status":     status,
			"guard":      d.Guard,
			"code":       d.Code,
			"reason":     d.Reason,
			"order_id":   orderID,
			"tv_symbol":  tvSymbol,
			"instrument": inst,
		}, notify.Event{
			Title: "Signal " + status, Status: status, OrderID: orderID,
			Fields: []notify.Field{
				{Name: "instrument", Value: inst},
				{Name: "guard", Value: d.Guard},
				{Name: "reason", Value: d.Reason},
			},
		})
		return
	}

	riskPct := float64(sig.RiskPct)
	if riskPct == 0 {
		riskPct = defaultRiskPct
	}
	sized := sizing.Size(s.sizePolicy, inst, balance, riskPct, entry, slPrice)

	// Extend the simulated equity curve before the new trade is recorded so
	// the previous trade is still the open one being closed at this price.
	equity, err := s.journal.SimulateFill(ctx, inst, entry)
	if err != nil {
		s.logger.Warn("equity simulation failed", zap.Error(err))
	}

	order := route.Order{
		Instrument:  inst,
		Side:        side,
		Units:       sized.Units,
		Entry:       entry,
		StopPrice:   slPrice,
		TargetPrice: tpPrice,
	}

	var outcome route.Outcome
	var results []route.TargetResult
	if forceDry {
		// Synthesized no-op results: nothing was routed, so the routing
		// counters stay untouched.
		results = []route.TargetResult{
			{Target: "oanda", OK: true, Message: "dry run"},
			{Target: "duplikium", OK: true, Message: "dry run"},
		}
		outcome = route.Reduce(results)
	} else {
		outcome, results = s.router.Execute(ctx, order)
		for _, res := range results {
			metrics.RecordRouting(res.Target, res.OK)
		}
	}

	broker := findResult(results, "oanda")
	relay := findResult(results, "duplikium")

	s.audit(ctx, journal.TradeRecord{
		OrderID: orderID, TVSymbol: tvSymbol, Instrument: inst,
		Side: string(side), Units: sized.Units,
		Entry: entry, StopPrice: slPrice, TargetPrice: tpPrice,
		RiskPct: sized.AppliedRiskPct, Status: string(outcome),
		BrokerStatus: resultLabel(broker), RelayStatus: resultLabel(relay),
	})

	httpStatus := http.StatusOK
	if outcome == route.OutcomeError {
		httpStatus = http.StatusInternalServerError
	}

	s.finish(ctx, w, httpStatus, map[string]any{
		"status":           string(outcome),
		"order_id":         orderID,
		"tv_symbol":        tvSymbol,
		"instrument":       inst,
		"side":             string(side),
		"sent_units":       sized.Units,
		"risk_pct_applied": sized.AppliedRiskPct,
		"slPrice":          slPrice,
		"tpPrice":          tpPrice,
		"oanda":            resultLabel(broker),
		"duplikium_status": resultLabel(relay),
		"duplikium_msg":    relay.Message,
		"equity_sim":       equity,
		"LOCAL_TEST":       s.cfg.LocalTest || forceDry,
		"TRADING_ENABLED":  s.cfg.TradingEnabled,
	}, notify.Event{
		Title: "Signal routed", Status: string(outcome), OrderID: orderID,
		Fields: []notify.Field{
			{Name: "instrument", Value: inst},
			{Name: "side", Value: string(side)},
			{Name: "units", Value: strconv.FormatInt(sized.Units, 10)},
			{Name: "risk_pct", Value: strconv.FormatFloat(sized.AppliedRiskPct, 'f', -1, 64)},
		},
	})
}

// audit writes the trade record, logging rather than failing the request on
// a journal error.
func (s *Server) audit(ctx context.Context, tr journal.TradeRecord) {
	metrics.SignalsTotal.WithLabelValues(tr.Status).Inc()
	if err := s.journal.RecordTrade(ctx, tr); err != nil {
		s.logger.Error("audit record failed",
			zap.String("order_id", tr.OrderID),
			zap.Error(err),
		)
	}
}

// finish writes the response and dispatches the notification off the request
// path. The notification context is detached so a client disconnect cannot
// cancel it.
func (s *Server) finish(ctx context.Context, w http.ResponseWriter, status int, body map[string]any, ev notify.Event) {
	writeJSON(w, status, body)
	go s.notifier.Notify(context.WithoutCancel(ctx), ev)
}

func findResult(results []route.TargetResult, name string) route.TargetResult {
	for _, r := range results {
		if r.Target == name {
			return r
		}
	}
	return route.TargetResult{Target: name, Message: "not attempted"}
}

func resultLabel(r route.TargetResult) string {
	if r.StatusCode != 0 {
		return strconv.Itoa(r.StatusCode)
	}
	if r.OK {
		return "ok"
	}
	if r.Message == "not attempted" {
		return "skipped"
	}
	return "error"
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
