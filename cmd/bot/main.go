// Polymarket complete-set arbitrage bot.
//
// Architecture:
//
//	main.go               — entry point: loads config, wires components, waits for SIGINT/SIGTERM
//	engine/engine.go      — orchestrator: five periodic loops (scan, fill, one-leg, redemption, status)
//	strategy/evaluator.go — book-quality gates, two-leg bid pricing, edge-scaled sizing
//	market/finder.go      — discovers 15-minute/hourly up-or-down windows by probing generated slugs
//	market/book.go        — top-of-book snapshots from the CLOB REST book endpoint
//	exchange/client.go    — REST order broker for the Polymarket CLOB (place/cancel/status)
//	exchange/auth.go      — L1 (EIP-712) and L2 (HMAC) authentication plus order signing
//	chain/chain.go        — on-chain resolution checks and redeemPositions against the CTF contract
//	tracker/tracker.go    — lifecycle authority over complete sets, JSON persistence, PnL aggregation
//	risk/manager.go       — kill switch, daily loss limit, exposure and streak-based sizing
//	notify/telegram.go    — optional Telegram alerts for lifecycle events
//
// How it makes money:
//
//	A binary market's UP and DOWN tokens redeem for exactly $1.00 combined
//	at resolution. The bot posts passive maker bids on both outcomes; when
//	the pair fills below $1.00 combined, it holds to on-chain resolution
//	and redeems the guaranteed dollar, keeping the difference.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"polymarket-mm/internal/chain"
	"polymarket-mm/internal/config"
	"polymarket-mm/internal/engine"
	"polymarket-mm/internal/exchange"
	"polymarket-mm/internal/market"
	"polymarket-mm/internal/notify"
	"polymarket-mm/internal/risk"
	"polymarket-mm/internal/strategy"
	"polymarket-mm/internal/tracker"
)

const polygonChainID = 137

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	// L1/L2 auth only exists in live mode; paper mode never signs anything.
	var auth *exchange.Auth
	if cfg.Live {
		auth, err = exchange.NewAuth(cfg.Credentials, polygonChainID)
		if err != nil {
			logger.Error("failed to initialise auth", "error", err)
			os.Exit(1)
		}
	}

	client := exchange.NewClient(cfg, auth, logger)
	if cfg.Live && !auth.HasL2Credentials() {
		logger.Info("no L2 credentials, deriving API key via L1...")
		if _, err := client.DeriveAPIKey(context.Background()); err != nil {
			logger.Error("failed to derive API key", "error", err)
			os.Exit(1)
		}
	}

	chainClient, err := chain.NewClient(cfg, logger)
	if err != nil {
		logger.Error("failed to initialise chain client", "error", err)
		os.Exit(1)
	}

	tr, err := tracker.Open(cfg.TradeLogPath)
	if err != nil {
		logger.Error("failed to open position tracker", "error", err, "path", cfg.TradeLogPath)
		os.Exit(1)
	}

	finder := market.NewFinder(cfg.Endpoints.GammaBaseURL, cfg.Market.ScanAssets, logger)
	books := market.NewBookFetcher(cfg.Endpoints.ClobBaseURL, logger)
	eval := strategy.NewEvaluator(cfg.Strategy)
	riskMgr := risk.NewManager(cfg.Risk, logger)
	notifier := notify.NewNotifier(cfg.Notification.TelegramBotToken, cfg.Notification.TelegramChatID)

	eng := engine.New(cfg, finder, books, eval, client, chainClient, tr, riskMgr, notifier, logger)
	eng.Start()

	if !cfg.Live {
		logger.Warn("PAPER MODE — no real orders or transactions")
	}
	logger.Info("complete-set bot started",
		"live", cfg.Live,
		"assets", cfg.Market.ScanAssets,
		"max_open_sets", cfg.Risk.MaxOpenSets,
		"max_exposure", cfg.Risk.MaxTotalExposure,
		"trade_log", cfg.TradeLogPath,
		"notifications", notifier.Enabled(),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	eng.Stop()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
