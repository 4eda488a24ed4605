package kafka

import (
	"context"
	"errors"
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

const (
	DefaultTopic = "txstatus-pending"
	pendingKey   = "pending"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes pending block snapshots to a kafka topic. All messages
// share one key so replicas observe snapshots in publish order.
type Producer struct {
	writer messageWriter
	now    func() time.Time
}

type ProducerConfig struct {
	Brokers []string
	Topic   string
}

func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		cfg.Topic = DefaultTopic
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return &Producer{writer: writer, now: time.Now}, nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func (p *Producer) PublishPending(ctx context.Context, block domain.PendingBlock) error {
	return p.publish(ctx, "pending.publish", streaming.PendingBlockMessage(block, p.now().UTC()),
		attribute.Int("pending.transactions", len(block.Transactions)),
	)
}

func (p *Producer) ClearPending(ctx context.Context) error {
	return p.publish(ctx, "pending.clear", streaming.Message{
		Type:        streaming.MessageTypePendingCleared,
		PublishedAt: p.now().UTC(),
	})
}

func (p *Producer) publish(ctx context.Context, spanName string, msg streaming.Message, attrs ...attribute.KeyValue) error {
	ctx, span := otel.Tracer("txstatus/kafka").Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(attrs...),
	)
	defer span.End()

	if spanCtx := span.SpanContext(); spanCtx.HasTraceID() {
		msg.TraceID = spanCtx.TraceID().String()
	}
	payload, err := streaming.Encode(msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(pendingKey),
		Value:   payload,
		Headers: telemetry.InjectKafkaHeaders(ctx, nil),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
