package redis

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"txstatus/internal/domain"
	"txstatus/internal/streaming"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultPendingKey = "txstatus:pending"
	defaultTTL        = 30 * time.Second
	defaultReadWait   = 250 * time.Millisecond
)

type PendingConfig struct {
	Addr string
	Key  string
	// TTL expires a snapshot that is not refreshed, so a dead poller does not
	// leave a stale pending block behind.
	TTL time.Duration
	// ReadTimeout bounds a single snapshot read on the request path.
	ReadTimeout time.Duration
}

// PendingStore shares the pending block snapshot between processes. The
// poller writes it and every resolver replica reads it.
type PendingStore struct {
	client      *redis.Client
	key         string
	ttl         time.Duration
	readTimeout time.Duration
	now         func() time.Time
}

func NewPendingStore(ctx context.Context, cfg PendingConfig) (*PendingStore, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return newPendingStore(client, cfg), nil
}

func newPendingStore(client *redis.Client, cfg PendingConfig) *PendingStore {
	if strings.TrimSpace(cfg.Key) == "" {
		cfg.Key = DefaultPendingKey
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadWait
	}
	return &PendingStore{
		client:      client,
		key:         cfg.Key,
		ttl:         cfg.TTL,
		readTimeout: cfg.ReadTimeout,
		now:         time.Now,
	}
}

func (s *PendingStore) Close() error {
	return s.client.Close()
}

func (s *PendingStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *PendingStore) PublishPending(ctx context.Context, block domain.PendingBlock) error {
	ctx, span := s.startSpan(ctx, "redis.pending.publish", attribute.Int("pending.transactions", len(block.Transactions)))
	defer span.End()

	payload, err := streaming.Encode(streaming.PendingBlockMessage(block, s.now().UTC()))
	if err != nil {
		return recordError(span, err)
	}
	return recordError(span, s.client.Set(ctx, s.key, payload, s.ttl).Err())
}

func (s *PendingStore) ClearPending(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "redis.pending.clear")
	defer span.End()
	return recordError(span, s.client.Del(ctx, s.key).Err())
}

// PendingBlock reads the shared snapshot. A missing key and any redis or
// decoding failure both read as "no snapshot".
func (s *PendingStore) PendingBlock(ctx context.Context) (domain.PendingBlock, bool) {
	ctx, span := s.startSpan(ctx, "redis.pending.get")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, s.readTimeout)
	defer cancel()

	payload, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			recordError(span, err)
			slog.Debug("pending snapshot read failed", "key", s.key, "err", err)
		}
		return domain.PendingBlock{}, false
	}
	msg, err := streaming.Decode(payload)
	if err != nil || msg.Type != streaming.MessageTypePendingBlock {
		if err != nil {
			recordError(span, err)
		}
		slog.Debug("pending snapshot undecodable", "key", s.key, "err", err)
		return domain.PendingBlock{}, false
	}
	block := msg.PendingBlock()
	span.SetAttributes(attribute.Int("pending.transactions", len(block.Transactions)))
	return block, true
}

func (s *PendingStore) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("db.system", "redis"), attribute.String("db.redis.key", s.key))
	return otel.Tracer("txstatus/redis").Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

func recordError(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
