package kafka

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"txstatus/internal/domain"
	"txstatus/internal/infrastructure/telemetry"
	"txstatus/internal/streaming"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// PendingSink is the local view a consumer keeps up to date.
type PendingSink interface {
	PublishPending(ctx context.Context, block domain.PendingBlock) error
	ClearPending(ctx context.Context) error
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type ConsumerConfig struct {
	Brokers []string
	Topic   string
	// GroupID enables committed offsets. Without it the consumer starts at
	// the end of partition 0 and only sees new snapshots.
	GroupID string
}

// Consumer replays the pending feed into a local sink.
type Consumer struct {
	reader messageReader
	sink   PendingSink
}

func NewConsumer(cfg ConsumerConfig, sink PendingSink) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if sink == nil {
		return nil, errors.New("pending sink is required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		cfg.Topic = DefaultTopic
	}
	readerCfg := kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  250 * time.Millisecond,
	}
	if strings.TrimSpace(cfg.GroupID) != "" {
		readerCfg.GroupID = cfg.GroupID
		readerCfg.StartOffset = kafka.LastOffset
	} else {
		readerCfg.Partition = 0
	}
	reader := kafka.NewReader(readerCfg)
	if readerCfg.GroupID == "" {
		if err := reader.SetOffset(kafka.LastOffset); err != nil {
			_ = reader.Close()
			return nil, err
		}
	}
	return &Consumer{reader: reader, sink: sink}, nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// Run reads until ctx is cancelled. Undecodable messages are logged and
// skipped.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := c.Handle(ctx, msg); err != nil {
			slog.Warn("pending feed message skipped", "offset", msg.Offset, "partition", msg.Partition, "err", err)
		}
	}
}

func (c *Consumer) Handle(ctx context.Context, msg kafka.Message) error {
	decoded, err := streaming.Decode(msg.Value)
	if err != nil {
		return err
	}

	msgCtx := telemetry.ExtractKafkaHeaders(ctx, msg.Headers)
	if !trace.SpanContextFromContext(msgCtx).IsValid() && decoded.TraceID != "" {
		msgCtx, _ = telemetry.ContextWithTraceID(msgCtx, decoded.TraceID)
	}
	msgCtx, span := otel.Tracer("txstatus/kafka").Start(msgCtx, "pending.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("message.type", string(decoded.Type)),
			attribute.Int64("kafka.offset", msg.Offset),
		),
	)
	defer span.End()

	switch decoded.Type {
	case streaming.MessageTypePendingCleared:
		err = c.sink.ClearPending(msgCtx)
	default:
		block := decoded.PendingBlock()
		span.SetAttributes(attribute.Int("pending.transactions", len(block.Transactions)))
		err = c.sink.PublishPending(msgCtx, block)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
