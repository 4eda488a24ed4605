package pending

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"txstatus/internal/domain"
)

// Sink receives pending block snapshots.
type Sink interface {
	PublishPending(ctx context.Context, block domain.PendingBlock) error
	ClearPending(ctx context.Context) error
}

type BlockSource interface {
	PendingBlock(ctx context.Context) (domain.PendingBlock, error)
}

type PollerObserver interface {
	OnPendingSnapshot(transactions int)
}

type PollerConfig struct {
	Interval time.Duration
	// MaxFailures is the number of consecutive fetch failures after which the
	// sinks are cleared.
	MaxFailures int
}

// Poller copies the gateway's pending block into every sink on an interval.
type Poller struct {
	source   BlockSource
	sinks    []Sink
	observer PollerObserver
	cfg      PollerConfig
	failures int
}

func NewPoller(source BlockSource, sinks []Sink, observer PollerObserver, cfg PollerConfig) (*Poller, error) {
	if source == nil {
		return nil, errors.New("pending block source is required")
	}
	if len(sinks) == 0 {
		return nil, errors.New("at least one pending sink is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	return &Poller{source: source, sinks: sinks, observer: observer, cfg: cfg}, nil
}

func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		p.Poll(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Poll performs a single fetch and fan-out.
func (p *Poller) Poll(ctx context.Context) {
	block, err := p.source.PendingBlock(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.failures++
		slog.Warn("pending block fetch failed", "failures", p.failures, "err", err)
		if p.failures == p.cfg.MaxFailures {
			slog.Warn("clearing stale pending block")
			for _, sink := range p.sinks {
				if err := sink.ClearPending(ctx); err != nil {
					slog.Warn("pending sink clear failed", "err", err)
				}
			}
		}
		return
	}

	p.failures = 0
	for _, sink := range p.sinks {
		if err := sink.PublishPending(ctx, block); err != nil {
			slog.Warn("pending sink publish failed", "err", err)
		}
	}
	if p.observer != nil {
		p.observer.OnPendingSnapshot(len(block.Transactions))
	}
	slog.Debug("pending block published", "transactions", len(block.Transactions))
}
