package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"txstatus/internal/bootstrap"
	"txstatus/internal/config"
	"txstatus/internal/infrastructure/kafka"
	"txstatus/internal/infrastructure/redis"
	"txstatus/internal/interfaces/httpapi"
	"txstatus/internal/pending"

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
	logCloser := bootstrap.Logging(cfg, "logs/pendingsync.log")
	defer logCloser.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracing := bootstrap.Tracing(ctx, cfg, "txstatus-pendingsync", version)
	defer shutdownTracing()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("pendingsync stopped", "err", err)
		return 1
	}
	slog.Info("pendingsync stopped")
	return 0
}

func run(ctx context.Context, cfg config.Config) error {
	gatewayClient, err := bootstrap.Gateway(cfg)
	if err != nil {
		return err
	}

	var sinks []pending.Sink
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(kafka.ProducerConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaPendingTopic,
		})
		if err != nil {
			return err
		}
		defer producer.Close()
		sinks = append(sinks, producer)
	}
	if cfg.RedisAddr != "" {
		store, err := redis.NewPendingStore(ctx, redis.PendingConfig{
			Addr: cfg.RedisAddr,
			Key:  cfg.RedisPendingKey,
			TTL:  cfg.RedisPendingTTL,
		})
		if err != nil {
			return err
		}
		defer store.Close()
		sinks = append(sinks, store)
	}
	if len(sinks) == 0 {
		return errors.New("pendingsync needs KAFKA_BROKERS or REDIS_ADDR")
	}

	metrics := httpapi.NewMetrics()
	poller, err := pending.NewPoller(gatewayClient, sinks, metrics, pending.PollerConfig{
		Interval: cfg.PendingPollInterval,
	})
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return poller.Run(ctx) })
	g.Go(func() error { return httpapi.ServeMetrics(ctx, cfg.HTTPAddr, metrics) })

	slog.Info("pendingsync started",
		"sinks", len(sinks),
		"interval", cfg.PendingPollInterval,
		"topic", cfg.KafkaPendingTopic,
		"redis_key", cfg.RedisPendingKey,
	)
	return g.Wait()
}
