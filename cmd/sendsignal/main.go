package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/ldonohue/signal-gateway/internal/logging"
	"go.uber.org/zap"
)

// sendsignal posts synthetic webhook signals at a running gateway, with a
// configurable duplicate ratio to exercise the dedupe window.
func main() {
	var (
		url     = flag.String("url", "http://127.0.0.1:8080/webhook", "Gateway webhook URL")
		count   = flag.Int("count", 20, "Number of signals to send")
		dupPct  = flag.Int("dup-pct", 30, "Percentage of duplicate order ids (0-100)")
		seed    = flag.Int64("seed", 42, "Random seed for deterministic generation")
		symbol  = flag.String("symbol", "US30", "Symbol token to send")
		side    = flag.String("side", "BUY", "Order side (BUY or SELL)")
		price   = flag.Float64("price", 39250, "Entry price")
		sl      = flag.Float64("sl", 150, "Stop distance in points")
		tp      = flag.Float64("tp", 300, "Target distance in points")
		riskPct = flag.Float64("risk", 0.05, "Requested risk percentage")
	)
	flag.Parse()

	logger, err := logging.NewLogger("sendsignal", "info")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting signal sender",
		zap.String("url", *url),
		zap.Int("count", *count),
		zap.Int("dup_pct", *dupPct),
		zap.Int64("seed", *seed),
	)

	rng := rand.New(rand.NewSource(*seed))
	client := &http.Client{Timeout: 15 * time.Second}

	orderIDs := make([]string, 0, *count)
	statuses := make(map[string]int)
	sent := 0
	failed := 0

	for i := 0; i < *count; i++ {
		var orderID string
		if len(orderIDs) > 0 && rng.Intn(100) < *dupPct {
			orderID = orderIDs[rng.Intn(len(orderIDs))]
		} else {
			orderID = fmt.Sprintf("sig-%d-%d", *seed, i)
			orderIDs = append(orderIDs, orderID)
		}

		payload := map[string]any{
			"symbol":   *symbol,
			"action":   *side,
			"price":    *price + rng.Float64()*10.0,
			"sl":       *sl,
			"sl_type":  "points",
			"tp":       *tp,
			"tp_type":  "points",
			"risk_pct": *riskPct,
			"order_id": orderID,
		}

		body, err := json.Marshal(payload)
		if err != nil {
			logger.Error("failed to marshal signal", zap.Error(err))
			failed++
			continue
		}

		resp, err := client.Post(*url, "application/json", bytes.NewReader(body))
		if err != nil {
			logger.Error("failed to send signal",
				zap.String("order_id", orderID),
				zap.Error(err),
			)
			failed++
			continue
		}

		var out struct {
			Status string `json:"status"`
		}
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		json.Unmarshal(respBody, &out)
		if out.Status == "" {
			out.Status = fmt.Sprintf("http_%d", resp.StatusCode)
		}
		statuses[out.Status]++
		sent++

		logger.Debug("signal sent",
			zap.String("order_id", orderID),
			zap.String("status", out.Status),
			zap.Int("http_status", resp.StatusCode),
		)
	}

	logger.Info("sender completed",
		zap.Int("total", *count),
		zap.Int("sent", sent),
		zap.Int("failed", failed),
		zap.Int("unique_orders", len(orderIDs)),
	)

	fmt.Printf("\n=== Sender Summary ===\n")
	fmt.Printf("Total signals: %d\n", *count)
	fmt.Printf("Sent: %d\n", sent)
	fmt.Printf("Failed: %d\n", failed)
	fmt.Printf("Unique order IDs: %d\n", len(orderIDs))
	for status, n := range statuses {
		fmt.Printf("Status %s: %d\n", status, n)
	}
	fmt.Printf("\n")

	if failed > 0 {
		os.Exit(1)
	}
}
