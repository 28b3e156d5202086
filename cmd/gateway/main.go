package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ldonohue/signal-gateway/internal/broker"
	"github.com/ldonohue/signal-gateway/internal/chaos"
	"github.com/ldonohue/signal-gateway/internal/config"
	"github.com/ldonohue/signal-gateway/internal/dedupe"
	"github.com/ldonohue/signal-gateway/internal/gateway"
	"github.com/ldonohue/signal-gateway/internal/instrument"
	"github.com/ldonohue/signal-gateway/internal/journal"
	"github.com/ldonohue/signal-gateway/internal/logging"
	"github.com/ldonohue/signal-gateway/internal/notify"
	"github.com/ldonohue/signal-gateway/internal/observability"
	"github.com/ldonohue/signal-gateway/internal/oracle"
	"github.com/ldonohue/signal-gateway/internal/relay"
	"github.com/ldonohue/signal-gateway/internal/route"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("signal-gateway")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := logging.NewLogger(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting signal-gateway service",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Bool("trading_enabled", cfg.TradingEnabled),
		zap.Bool("local_test", cfg.LocalTest),
		zap.Bool("forward_to_oanda", cfg.ForwardToOanda),
		zap.Bool("forward_to_duplikium", cfg.ForwardToDuplikium),
		zap.String("journal_path", cfg.JournalPath),
	)

	// Open the trade journal
	store, err := journal.Open(cfg.JournalPath)
	if err != nil {
		logger.Fatal("failed to open journal", zap.Error(err))
	}
	defer store.Close()

	// Account oracles
	oanda := oracle.NewOandaAccount(cfg.OandaBaseURL, cfg.OandaAccountID, cfg.OandaToken)
	balance := oracle.NewBalanceOracle(oanda, cfg.MasterStartBal,
		time.Duration(cfg.BalanceTTLSeconds)*time.Second, logger)
	positions := oracle.NewPositionCensus(oanda,
		time.Duration(cfg.PositionTTLSeconds)*time.Second, logger)

	// Downstream execution targets
	targets := []route.Target{
		broker.New(broker.Config{
			BaseURL:   cfg.OandaBaseURL,
			AccountID: cfg.OandaAccountID,
			Token:     cfg.OandaToken,
			Enabled:   cfg.ForwardToOanda,
			DryRun:    cfg.LocalTest,
		}, logger),
		relay.New(relay.Config{
			BaseURL:   cfg.DuplikiumBaseURL,
			Path:      cfg.DuplikiumPath,
			Username:  cfg.DuplikiumUser,
			Token:     cfg.DuplikiumToken,
			AuthStyle: cfg.DuplikiumAuthStyle,
			Source:    cfg.DuplikiumSource,
			Enabled:   cfg.ForwardToDuplikium,
			DryRun:    cfg.LocalTest,
		}, logger),
	}

	cz := chaos.New(chaos.LoadConfig(), logger)
	router := route.NewRouter(targets, cz, logger)

	// Health and notifications
	healthChecker := observability.NewHealthChecker(logger)

	notifiers := notify.Multi{}
	if cfg.DiscordWebhookURL != "" {
		notifiers = append(notifiers, notify.NewDiscord(cfg.DiscordWebhookURL, logger))
	}
	if brokers := cfg.KafkaBrokerList(); len(brokers) > 0 {
		kafka, err := notify.NewKafka(brokers, logger)
		if err != nil {
			logger.Fatal("failed to create kafka notifier", zap.Error(err))
		}
		defer kafka.Close()
		notifiers = append(notifiers, kafka)
		healthChecker.SetKafkaReady(true)
	}
	var notifier notify.Notifier = notifiers
	if len(notifiers) == 0 {
		notifier = notify.Noop{}
	}

	server := gateway.NewServer(cfg, gateway.Deps{
		Logger:    logger,
		Table:     instrument.NewTable(cfg.Instruments),
		Filter:    dedupe.New(time.Duration(cfg.DedupeTTLSeconds) * time.Second),
		Balance:   balance,
		Positions: positions,
		Journal:   store,
		Router:    router,
		Notifier:  notifier,
		Health:    healthChecker,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- server.Run(ctx)
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))

		// Graceful shutdown: in-flight signals finish before the listener
		// closes.
		logger.Info("shutting down gracefully...")
		cancel()

		select {
		case err := <-serverErrCh:
			if err != nil {
				logger.Error("error during shutdown", zap.Error(err))
			}
		case <-time.After(20 * time.Second):
			logger.Warn("shutdown timed out")
		}
	case err := <-serverErrCh:
		logger.Error("HTTP server error", zap.Error(err))
	}

	logger.Info("signal-gateway service stopped")
}
