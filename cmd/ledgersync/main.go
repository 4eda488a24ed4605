package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"txstatus/internal/application"
	"txstatus/internal/bootstrap"
	"txstatus/internal/config"
	"txstatus/internal/interfaces/httpapi"

	"golang.org/x/sync/errgroup"
)

var version = "dev"

func main() {
	os.Exit(start())
}

// start returns the process exit code once every deferred shutdown has run.
func start() int {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("config error", "err", err)
		return 1
	}
	logCloser := bootstrap.Logging(cfg, "logs/ledgersync.log")
	defer logCloser.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracing := bootstrap.Tracing(ctx, cfg, "txstatus-ledgersync", version)
	defer shutdownTracing()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("ledgersync stopped", "err", err)
		return 1
	}
	slog.Info("ledgersync stopped")
	return 0
}

func run(ctx context.Context, cfg config.Config) error {
	ledger, err := bootstrap.OpenLedger(cfg)
	if err != nil {
		return err
	}
	defer ledger.Close()

	gatewayClient, err := bootstrap.Gateway(cfg)
	if err != nil {
		return err
	}

	metrics := httpapi.NewMetrics()
	if head, ok, err := ledger.LatestBlock(ctx); err == nil && ok {
		metrics.OnLedgerHead(head.Number)
	}
	if l1, ok, err := ledger.L1Head(ctx); err == nil && ok {
		metrics.OnL1Head(l1)
	}

	syncer, err := application.NewSyncer(gatewayClient, ledger, metrics, application.SyncerConfig{
		StartBlock:   cfg.SyncStartBlock,
		PollInterval: cfg.SyncPollInterval,
	})
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := syncer.Run(ctx)
		if errors.Is(err, application.ErrParentMismatch) {
			slog.Error("ledger diverged from gateway, manual intervention required", "err", err)
		}
		return err
	})
	g.Go(func() error { return httpapi.ServeMetrics(ctx, cfg.HTTPAddr, metrics) })

	slog.Info("ledgersync started",
		"ledger", cfg.LedgerDriver,
		"start_block", cfg.SyncStartBlock,
		"interval", cfg.SyncPollInterval,
	)
	return g.Wait()
}
