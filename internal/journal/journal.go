// Package journal persists the audit trail: every routed signal, the
// simulated equity curve, and the start-of-day balance baselines used by the
// daily-loss guard.
package journal

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

// SeedEquity is the starting point of the simulated equity curve.
const SeedEquity = 10000.0

// Store is the sqlite-backed journal.
type Store struct {
	db *sql.DB
}

// TradeRecord is one admitted-and-routed signal.
type TradeRecord struct {
	OrderID      string
	TVSymbol     string
	Instrument   string
	Side         string
	Units        int64
	Entry        float64
	StopPrice    float64
	TargetPrice  float64
	RiskPct      float64
	Status       string
	BrokerStatus string
	RelayStatus  string
	TsUnixMillis int64
}

// EquityPoint is one step of the simulated equity curve.
type EquityPoint struct {
	Instrument   string
	Price        float64
	PnL          float64
	Equity       float64
	TsUnixMillis int64
}

// Open creates or opens the journal at path.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			order_id TEXT NOT NULL,
			tv_symbol TEXT NOT NULL,
			instrument TEXT NOT NULL,
			side TEXT NOT NULL,
			units INTEGER NOT NULL,
			entry REAL NOT NULL,
			stop_price REAL NOT NULL,
			target_price REAL NOT NULL,
			risk_pct REAL NOT NULL,
			status TEXT NOT NULL,
			broker_status TEXT NOT NULL,
			relay_status TEXT NOT NULL,
			ts_unix_millis INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_instrument
			ON trades(instrument, ts_unix_millis)`,
		`CREATE TABLE IF NOT EXISTS equity (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			instrument TEXT NOT NULL,
			price REAL NOT NULL,
			pnl REAL NOT NULL,
			equity REAL NOT NULL,
			ts_unix_millis INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS daily_baseline (
			date TEXT PRIMARY KEY,
			balance REAL NOT NULL,
			created_unix_millis INTEGER NOT NULL
		)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}
	return nil
}

// RecordTrade appends one trade to the audit trail. A zero TsUnixMillis is
// filled with the current time.
func (s *Store) RecordTrade(ctx context.Context, tr TradeRecord) error {
	if tr.TsUnixMillis == 0 {
		tr.TsUnixMillis = time.Now().UnixMilli()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trades (order_id, tv_symbol, instrument, side, units, entry, stop_price, target_price, risk_pct, status, broker_status, relay_status, ts_unix_millis)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tr.OrderID, tr.TVSymbol, tr.Instrument, tr.Side, tr.Units,
		tr.Entry, tr.StopPrice, tr.TargetPrice, tr.RiskPct,
		tr.Status, tr.BrokerStatus, tr.RelayStatus, tr.TsUnixMillis,
	)
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

// LastTrade returns the most recent trade for instrument, or sql.ErrNoRows
// when none exists.
func (s *Store) LastTrade(ctx context.Context, instrument string) (TradeRecord, error) {
	var tr TradeRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT order_id, tv_symbol, instrument, side, units, entry, stop_price, target_price, risk_pct, status, broker_status, relay_status, ts_unix_millis
		 FROM trades WHERE instrument = ?
		 ORDER BY ts_unix_millis DESC, id DESC LIMIT 1`,
		instrument,
	).Scan(
		&tr.OrderID, &tr.TVSymbol, &tr.Instrument, &tr.Side, &tr.Units,
		&tr.Entry, &tr.StopPrice, &tr.TargetPrice, &tr.RiskPct,
		&tr.Status, &tr.BrokerStatus, &tr.RelayStatus, &tr.TsUnixMillis,
	)
	if err != nil {
		return TradeRecord{}, err
	}
	return tr, nil
}

// SimulateFill extends the equity curve as if the previous trade on this
// instrument were closed at price. It must be called before RecordTrade so
// the previous trade is still the open one. With no prior trade the curve is
// seeded unchanged.
func (s *Store) SimulateFill(ctx context.Context, instrument string, price float64) (float64, error) {
	equity, err := s.lastEquity(ctx)
	if err != nil {
		return 0, err
	}

	pnl := 0.0
	prev, err := s.LastTrade(ctx, instrument)
	switch {
	case err == sql.ErrNoRows:
		// First fill on this instrument: nothing to close.
	case err != nil:
		return 0, fmt.Errorf("failed to load previous trade: %w", err)
	default:
		direction := 1.0
		if prev.Side == "SELL" {
			direction = -1.0
		}
		pnl = direction * (price - prev.Entry) * float64(prev.Units)
	}

	equity += pnl
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO equity (instrument, price, pnl, equity, ts_unix_millis)
		 VALUES (?, ?, ?, ?, ?)`,
		instrument, price, pnl, equity, time.Now().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert equity point: %w", err)
	}
	return equity, nil
}

func (s *Store) lastEquity(ctx context.Context) (float64, error) {
	var equity float64
	err := s.db.QueryRowContext(ctx,
		"SELECT equity FROM equity ORDER BY id DESC LIMIT 1",
	).Scan(&equity)
	if err == sql.ErrNoRows {
		return SeedEquity, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load last equity: %w", err)
	}
	return equity, nil
}

// DailyBaseline returns the start-of-day balance for localDate, recording
// current as the baseline if the date has not been seen yet. The first call
// of each trading day pins the baseline; later calls return the pinned value.
func (s *Store) DailyBaseline(ctx context.Context, localDate string, current float64) (float64, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO daily_baseline (date, balance, created_unix_millis)
		 VALUES (?, ?, ?)`,
		localDate, current, time.Now().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to record daily baseline: %w", err)
	}

	var balance float64
	err = s.db.QueryRowContext(ctx,
		"SELECT balance FROM daily_baseline WHERE date = ?",
		localDate,
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("failed to read daily baseline: %w", err)
	}
	return balance, nil
}

// ExportTradesCSV writes the full trade log as CSV.
func (s *Store) ExportTradesCSV(ctx context.Context, w io.Writer) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT order_id, tv_symbol, instrument, side, units, entry, stop_price, target_price, risk_pct, status, broker_status, relay_status, ts_unix_millis
		 FROM trades ORDER BY id ASC`,
	)
	if err != nil {
		return fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	cw := csv.NewWriter(w)
	header := []string{"timestamp", "order_id", "tv_symbol", "instrument", "side", "units", "entry", "sl_price", "tp_price", "risk_pct", "status", "broker_status", "relay_status"}
	if err := cw.Write(header); err != nil {
		return err
	}

	for rows.Next() {
		var tr TradeRecord
		if err := rows.Scan(
			&tr.OrderID, &tr.TVSymbol, &tr.Instrument, &tr.Side, &tr.Units,
			&tr.Entry, &tr.StopPrice, &tr.TargetPrice, &tr.RiskPct,
			&tr.Status, &tr.BrokerStatus, &tr.RelayStatus, &tr.TsUnixMillis,
		); err != nil {
			return fmt.Errorf("failed to scan trade: %w", err)
		}
		rec := []string{
			time.UnixMilli(tr.TsUnixMillis).UTC().Format(time.RFC3339),
			tr.OrderID, tr.TVSymbol, tr.Instrument, tr.Side,
			strconv.FormatInt(tr.Units, 10),
			formatFloat(tr.Entry), formatFloat(tr.StopPrice), formatFloat(tr.TargetPrice),
			formatFloat(tr.RiskPct),
			tr.Status, tr.BrokerStatus, tr.RelayStatus,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// ExportEquityCSV writes the simulated equity curve as CSV.
func (s *Store) ExportEquityCSV(ctx context.Context, w io.Writer) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT instrument, price, pnl, equity, ts_unix_millis FROM equity ORDER BY id ASC",
	)
	if err != nil {
		return fmt.Errorf("failed to query equity: %w", err)
	}
	defer rows.Close()

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "instrument", "price", "pnl", "equity"}); err != nil {
		return err
	}

	for rows.Next() {
		var p EquityPoint
		if err := rows.Scan(&p.Instrument, &p.Price, &p.PnL, &p.Equity, &p.TsUnixMillis); err != nil {
			return fmt.Errorf("failed to scan equity point: %w", err)
		}
		rec := []string{
			time.UnixMilli(p.TsUnixMillis).UTC().Format(time.RFC3339),
			p.Instrument,
			formatFloat(p.Price), formatFloat(p.PnL), formatFloat(p.Equity),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// TradeCount returns the number of recorded trades.
func (s *Store) TradeCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM trades").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count trades: %w", err)
	}
	return n, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
