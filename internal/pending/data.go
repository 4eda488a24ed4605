package pending

import (
	"context"
	"sync"
	"time"

	"txstatus/internal/domain"
)

type DataConfig struct {
	// MaxWait bounds how long PendingBlock waits for the first snapshot.
	MaxWait time.Duration
	// MaxAge makes snapshots older than this unavailable. Zero disables it.
	MaxAge time.Duration
}

// Data holds the latest pending block snapshot in memory.
type Data struct {
	cfg DataConfig
	now func() time.Time

	mu        sync.RWMutex
	block     domain.PendingBlock
	updatedAt time.Time
	available bool
	ready     chan struct{}
	readyOnce sync.Once
}

func NewData(cfg DataConfig) *Data {
	return &Data{cfg: cfg, now: time.Now, ready: make(chan struct{})}
}

// PendingBlock returns the latest snapshot. Until the first snapshot arrives
// it waits up to MaxWait or until ctx is done.
func (d *Data) PendingBlock(ctx context.Context) (domain.PendingBlock, bool) {
	select {
	case <-d.ready:
	default:
		if d.cfg.MaxWait <= 0 {
			return domain.PendingBlock{}, false
		}
		timer := time.NewTimer(d.cfg.MaxWait)
		defer timer.Stop()
		select {
		case <-d.ready:
		case <-timer.C:
			return domain.PendingBlock{}, false
		case <-ctx.Done():
			return domain.PendingBlock{}, false
		}
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.available {
		return domain.PendingBlock{}, false
	}
	if d.cfg.MaxAge > 0 && d.now().Sub(d.updatedAt) > d.cfg.MaxAge {
		return domain.PendingBlock{}, false
	}
	return d.block, true
}

func (d *Data) PublishPending(ctx context.Context, block domain.PendingBlock) error {
	d.mu.Lock()
	d.block = block
	d.updatedAt = d.now()
	d.available = true
	d.mu.Unlock()
	d.readyOnce.Do(func() { close(d.ready) })
	return nil
}

// ClearPending drops the snapshot. Readers no longer wait once a first
// snapshot has been seen; they get "not available" until the next publish.
func (d *Data) ClearPending(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.block = domain.PendingBlock{}
	d.available = false
	return nil
}
