// Package bootstrap holds the process setup shared by the binaries.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"txstatus/internal/config"
	"txstatus/internal/infrastructure/gateway"
	"txstatus/internal/infrastructure/logging"
	"txstatus/internal/infrastructure/mysql"
	"txstatus/internal/infrastructure/sqlite"
	"txstatus/internal/infrastructure/storage"
	"txstatus/internal/infrastructure/telemetry"
)

// Logging configures slog. defaultFile is used when LOG_FILE is unset; an
// empty value logs to stdout only.
func Logging(cfg config.Config, defaultFile string) io.Closer {
	file := cfg.LogFile
	if file == "" {
		file = defaultFile
	}
	closer, err := logging.Init(logging.Config{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		File:       file,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})
	if err != nil {
		slog.Error("logger init error", "err", err)
		return io.NopCloser(nil)
	}
	return closer
}

// Tracing installs the tracer provider and returns its shutdown hook.
// Failures degrade to a no-op provider.
func Tracing(ctx context.Context, cfg config.Config, service, version string) func() {
	shutdown, err := telemetry.InitTracer(ctx, service, version, cfg.OtelEndpoint)
	if err != nil {
		slog.Warn("tracing init error", "err", err)
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			slog.Warn("tracing shutdown error", "err", err)
		}
	}
}

// OpenLedger opens the ledger for the configured driver.
func OpenLedger(cfg config.Config) (*storage.Ledger, error) {
	switch cfg.LedgerDriver {
	case config.LedgerSQLite:
		return sqlite.NewLedger(cfg.LedgerDSN)
	case config.LedgerMySQL:
		return mysql.NewLedger(cfg.LedgerDSN)
	default:
		return nil, fmt.Errorf("unsupported ledger driver %q", cfg.LedgerDriver)
	}
}

func Gateway(cfg config.Config) (*gateway.Client, error) {
	return gateway.NewClient(gateway.Config{
		URL:        cfg.GatewayURL,
		Timeout:    cfg.GatewayTimeout,
		MaxRetries: cfg.GatewayMaxRetries,
	})
}
