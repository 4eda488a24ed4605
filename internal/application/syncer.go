package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"txstatus/internal/domain"
)

type BlockSource interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	Block(ctx context.Context, number uint64) (domain.Block, bool, error)
}

type LedgerWriter interface {
	LatestBlock(ctx context.Context) (domain.BlockReference, bool, error)
	StoreBlock(ctx context.Context, block domain.Block) error
	L1Head(ctx context.Context) (uint64, bool, error)
	SetL1Head(ctx context.Context, number uint64) error
}

type SyncObserver interface {
	OnLedgerHead(number uint64)
	OnL1Head(number uint64)
}

type SyncerConfig struct {
	StartBlock   uint64
	PollInterval time.Duration
	// BatchSize caps the blocks fetched per pass, for both the ledger head
	// and the L1 head.
	BatchSize uint64
}

// ErrParentMismatch means the gateway chain no longer extends the stored
// ledger. The syncer stops rather than rewrite history.
var ErrParentMismatch = errors.New("block parent does not match ledger head")

// Syncer copies accepted blocks and their transaction hashes from the gateway
// into the ledger and keeps the L1 head current.
type Syncer struct {
	source   BlockSource
	ledger   LedgerWriter
	observer SyncObserver
	cfg      SyncerConfig
}

func NewSyncer(source BlockSource, ledger LedgerWriter, observer SyncObserver, cfg SyncerConfig) (*Syncer, error) {
	if source == nil || ledger == nil {
		return nil, errors.New("syncer dependencies must not be nil")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	return &Syncer{source: source, ledger: ledger, observer: observer, cfg: cfg}, nil
}

func (s *Syncer) Run(ctx context.Context) error {
	for {
		progressed, err := s.SyncOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if progressed {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.PollInterval):
		}
	}
}

// SyncOnce runs one pass and reports whether either head moved.
func (s *Syncer) SyncOnce(ctx context.Context) (bool, error) {
	stored, err := s.syncBlocks(ctx)
	if err != nil {
		return false, err
	}
	advanced, err := s.advanceL1(ctx)
	if err != nil {
		return false, err
	}
	return stored || advanced, nil
}

func (s *Syncer) syncBlocks(ctx context.Context) (bool, error) {
	head, hasHead, err := s.ledger.LatestBlock(ctx)
	if err != nil {
		return false, fmt.Errorf("reading ledger head: %w", err)
	}
	next := s.cfg.StartBlock
	if hasHead {
		next = head.Number + 1
	}

	latest, err := s.source.LatestBlockNumber(ctx)
	if err != nil {
		return false, fmt.Errorf("reading gateway head: %w", err)
	}
	if next > latest {
		return false, nil
	}
	last := min(latest, next+s.cfg.BatchSize-1)

	stored := false
	for number := next; number <= last; number++ {
		block, ok, err := s.source.Block(ctx, number)
		if err != nil {
			return stored, fmt.Errorf("fetching block %d: %w", number, err)
		}
		if !ok || !acceptedBlock(block.Status) {
			break
		}
		if hasHead && block.ParentHash != head.Hash {
			return stored, fmt.Errorf("%w: block %d parent %s, ledger head %s",
				ErrParentMismatch, number, block.ParentHash, head.Hash)
		}
		if err := s.ledger.StoreBlock(ctx, block); err != nil {
			return stored, fmt.Errorf("storing block %d: %w", number, err)
		}
		head, hasHead, stored = domain.BlockReference{Number: block.Number, Hash: block.Hash}, true, true
		if s.observer != nil {
			s.observer.OnLedgerHead(block.Number)
		}
		if block.Status == domain.GatewayAcceptedOnL1 {
			if err := s.setL1Head(ctx, block.Number); err != nil {
				return stored, err
			}
		}
	}
	if stored {
		slog.Info("ledger advanced", "from", next, "to", head.Number)
	}
	return stored, nil
}

// advanceL1 walks stored blocks above the L1 head and moves the head while
// the gateway reports them as accepted on L1. L1 acceptance is a prefix of
// the chain, so the walk stops at the first block that is not.
func (s *Syncer) advanceL1(ctx context.Context) (bool, error) {
	head, hasHead, err := s.ledger.LatestBlock(ctx)
	if err != nil {
		return false, fmt.Errorf("reading ledger head: %w", err)
	}
	if !hasHead {
		return false, nil
	}
	l1, hasL1, err := s.ledger.L1Head(ctx)
	if err != nil {
		return false, fmt.Errorf("reading l1 head: %w", err)
	}
	next := s.cfg.StartBlock
	if hasL1 {
		next = l1 + 1
	}

	advanced := false
	for n := uint64(0); n < s.cfg.BatchSize && next <= head.Number; n++ {
		block, ok, err := s.source.Block(ctx, next)
		if err != nil {
			return advanced, fmt.Errorf("fetching block %d: %w", next, err)
		}
		if !ok || block.Status != domain.GatewayAcceptedOnL1 {
			break
		}
		if err := s.setL1Head(ctx, next); err != nil {
			return advanced, err
		}
		advanced = true
		next++
	}
	return advanced, nil
}

func (s *Syncer) setL1Head(ctx context.Context, number uint64) error {
	if err := s.ledger.SetL1Head(ctx, number); err != nil {
		return fmt.Errorf("storing l1 head %d: %w", number, err)
	}
	if s.observer != nil {
		s.observer.OnL1Head(number)
	}
	return nil
}

func acceptedBlock(status domain.GatewayStatus) bool {
	return status == domain.GatewayAcceptedOnL2 || status == domain.GatewayAcceptedOnL1
}
