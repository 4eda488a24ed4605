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
	"txstatus/internal/infrastructure/gateway"
	"txstatus/internal/infrastructure/kafka"
	"txstatus/internal/infrastructure/redis"
	"txstatus/internal/interfaces/httpapi"
	"txstatus/internal/pending"

	"golang.org/x/sync/errgroup"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

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
	logCloser := bootstrap.Logging(cfg, "")
	defer logCloser.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracing := bootstrap.Tracing(ctx, cfg, "txstatus-statusd", version)
	defer shutdownTracing()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("statusd stopped", "err", err)
		return 1
	}
	slog.Info("statusd stopped")
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
	g, ctx := errgroup.WithContext(ctx)

	source, closeSource, err := pendingSource(ctx, g, cfg, gatewayClient, metrics)
	if err != nil {
		return err
	}
	defer closeSource()

	resolver, err := application.NewResolver(source, ledger, gatewayClient, metrics)
	if err != nil {
		return err
	}
	server, err := httpapi.NewServer(resolver, ledger, gatewayClient, metrics, httpapi.ServerConfig{
		BatchLimit:       cfg.RPCBatchLimit,
		BatchConcurrency: cfg.RPCBatchConcurrency,
	}, httpapi.BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	})
	if err != nil {
		return err
	}

	g.Go(func() error {
		return server.ListenAndServe(ctx, cfg.HTTPAddr)
	})
	slog.Info("statusd started",
		"addr", cfg.HTTPAddr,
		"ledger", cfg.LedgerDriver,
		"pending_source", cfg.PendingSource,
		"version", version,
	)
	return g.Wait()
}

// pendingSource builds the configured pending view and schedules whatever
// keeps it fresh on g. A nil source disables the pending stage.
func pendingSource(ctx context.Context, g *errgroup.Group, cfg config.Config, gatewayClient *gateway.Client, metrics *httpapi.Metrics) (application.PendingSource, func(), error) {
	noop := func() {}
	dataCfg := pending.DataConfig{MaxWait: cfg.PendingMaxWait, MaxAge: cfg.PendingMaxAge}

	switch cfg.PendingSource {
	case config.PendingNone:
		return nil, noop, nil

	case config.PendingMemory:
		data := pending.NewData(dataCfg)
		poller, err := pending.NewPoller(gatewayClient, []pending.Sink{data}, metrics, pending.PollerConfig{
			Interval: cfg.PendingPollInterval,
		})
		if err != nil {
			return nil, noop, err
		}
		g.Go(func() error { return poller.Run(ctx) })
		return data, noop, nil

	case config.PendingKafka:
		data := pending.NewData(dataCfg)
		consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaPendingTopic,
			GroupID: cfg.KafkaGroupID,
		}, data)
		if err != nil {
			return nil, noop, err
		}
		g.Go(func() error { return consumer.Run(ctx) })
		return data, func() { _ = consumer.Close() }, nil

	case config.PendingRedis:
		store, err := redis.NewPendingStore(ctx, redis.PendingConfig{
			Addr:        cfg.RedisAddr,
			Key:         cfg.RedisPendingKey,
			TTL:         cfg.RedisPendingTTL,
			ReadTimeout: cfg.PendingMaxWait,
		})
		if err != nil {
			return nil, noop, err
		}
		return store, func() { _ = store.Close() }, nil

	default:
		return nil, noop, errors.New("unsupported pending source " + cfg.PendingSource)
	}
}
