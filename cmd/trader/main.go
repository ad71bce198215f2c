package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/JWax21/kalshi-strat-1-sub001/config"
	"github.com/JWax21/kalshi-strat-1-sub001/internal/adapters/kalshi"
	"github.com/JWax21/kalshi-strat-1-sub001/internal/adapters/notify"
	"github.com/JWax21/kalshi-strat-1-sub001/internal/adapters/storage"
	"github.com/JWax21/kalshi-strat-1-sub001/internal/application/allocator"
	"github.com/JWax21/kalshi-strat-1-sub001/internal/application/lifecycle"
	"github.com/JWax21/kalshi-strat-1-sub001/internal/application/reconcile"
	"github.com/JWax21/kalshi-strat-1-sub001/internal/application/stoploss"
)

// The trader is one-shot: an external scheduler invokes the pass it wants
// and the process exits. Every pass is idempotent, so overlapping or
// repeated invocations are safe.
func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	pass := flag.String("pass", "cycle", "pass to run: allocate|submit|stale|reconcile|monitor|cycle")
	key := flag.String("key", time.Now().UTC().Format("2006-01-02"), "allocation key (default: today)")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("trader starting", "pass", *pass, "key", *key, "config", *configPath)

	exchange := kalshi.NewClient(cfg.API.BaseURL, cfg.APIKey())

	ledger, err := storage.NewSQLiteLedger(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open ledger", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer ledger.Close()

	console := notify.NewConsole()

	alloc := allocator.New(ledger, exchange, allocator.Config{
		MaxPositionPct:    cfg.Trading.MaxPositionPct,
		MinPriceCents:     cfg.Trading.MinPriceCents,
		MinLiquidityScore: cfg.Trading.MinLiquidityScore,
		BlacklistWindow:   cfg.BlacklistWindow(),
	})
	machine := lifecycle.New(ledger, exchange, lifecycle.Config{
		MaxPositionPct: cfg.Trading.MaxPositionPct,
		MinPriceCents:  cfg.Trading.MinPriceCents,
		StaleOrderAge:  cfg.StaleOrderAge(),
	})
	reconciler := reconcile.New(ledger, exchange)
	monitor := stoploss.New(ledger, exchange, stoploss.Config{
		Threshold:        cfg.StopLoss.ThresholdCents,
		SpreadCeiling:    cfg.StopLoss.SpreadCeilingCents,
		MidTolerance:     cfg.StopLoss.MidTolerance,
		MinVolume24h:     cfg.StopLoss.MinVolume24h,
		RecheckDelay:     time.Duration(cfg.StopLoss.RecheckDelayMs) * time.Millisecond,
		RecheckTolerance: cfg.StopLoss.RecheckTolerance,
		BadDataPrices:    cfg.StopLoss.BadDataPrices,
		SamePriceAnomaly: cfg.StopLoss.SamePriceAnomaly,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runAllocate := func() string {
		candidates, err := exchange.GetCandidates(ctx, cfg.Trading.MinPriceCents)
		if err != nil {
			slog.Error("candidate listing failed", "err", err)
			os.Exit(1)
		}
		result, err := alloc.Allocate(ctx, *key, candidates)
		if err != nil {
			slog.Error("allocation failed", "err", err)
			os.Exit(1)
		}
		skipped := 0
		for _, n := range result.Skipped {
			skipped += n
		}
		console.PrintAllocation(*result.Batch, result.Orders, skipped, result.Remainder)
		return result.Batch.ID
	}

	runSubmit := func(batchID string) {
		if batchID == "" {
			batch, err := ledger.GetBatchByKey(ctx, *key)
			if err != nil || batch == nil {
				slog.Error("no batch for key", "key", *key, "err", err)
				os.Exit(1)
			}
			batchID = batch.ID
		}
		summary, err := machine.SubmitPending(ctx, batchID)
		if err != nil {
			slog.Error("submission failed", "err", err)
			os.Exit(1)
		}
		console.PrintPassSummary("submit", map[string]int{
			"examined": summary.Examined, "placed": summary.Placed,
			"confirmed": summary.Confirmed, "cancelled": summary.Cancelled,
			"queued": summary.Queued,
		}, summary.Alerts, summary.Errors)
	}

	runStale := func() {
		summary, err := machine.CancelStale(ctx)
		if err != nil {
			slog.Error("stale-order pass failed", "err", err)
			os.Exit(1)
		}
		console.PrintPassSummary("stale", map[string]int{
			"examined": summary.Examined, "cancelled": summary.Cancelled,
			"blacklisted": summary.Blacklisted,
		}, summary.Alerts, summary.Errors)
	}

	runReconcile := func() {
		summary, err := reconciler.Run(ctx)
		if err != nil {
			slog.Error("reconciliation failed", "err", err)
			os.Exit(1)
		}
		console.PrintPassSummary("reconcile", map[string]int{
			"examined": summary.Examined, "confirmed": summary.Confirmed,
			"downgraded": summary.Downgraded, "closed": summary.Closed,
			"settled": summary.Settled, "not_found": summary.NotFound,
			"writes": summary.Writes,
		}, summary.Alerts, summary.Errors)
	}

	runMonitor := func() {
		summary, err := monitor.Run(ctx)
		if err != nil {
			slog.Error("stop-loss pass failed", "err", err)
			os.Exit(1)
		}
		console.PrintPassSummary("stop-loss", map[string]int{
			"examined": summary.Examined, "exited": summary.Exited,
			"held": summary.Held, "blocked": summary.Blocked,
		}, append(summary.DataAlerts, summary.Alerts...), summary.Errors)
	}

	switch *pass {
	case "allocate":
		runAllocate()
	case "submit":
		runSubmit("")
	case "stale":
		runStale()
	case "reconcile":
		runReconcile()
	case "monitor":
		runMonitor()
	case "cycle":
		batchID := runAllocate()
		runSubmit(batchID)
		runStale()
		runReconcile()
		runMonitor()
	default:
		slog.Error("unknown pass", "pass", *pass)
		os.Exit(1)
	}

	slog.Info("trader done", "pass", *pass)
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
