package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/bissquit/clerk-queue/internal/domain"
	"github.com/bissquit/clerk-queue/internal/pkg/ctxlog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/bissquit/clerk-queue/internal/ingress/kafka"

// TransitionPublisher publishes queue item transitions, keyed by item id so
// every transition of one item lands on the same partition in order.
type TransitionPublisher struct {
	producer sarama.SyncProducer
	topic    string
	tracer   trace.Tracer
}

// NewTransitionPublisher creates a publisher writing to topic.
func NewTransitionPublisher(producer sarama.SyncProducer, topic string) *TransitionPublisher {
	return &TransitionPublisher{
		producer: producer,
		topic:    topic,
		tracer:   otel.Tracer(tracerName),
	}
}

// PublishTransition sends t and waits for the broker acknowledgement.
func (p *TransitionPublisher) PublishTransition(ctx context.Context, t domain.Transition) error {
	ctx, span := p.tracer.Start(ctx, "kafka.produce",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", p.topic),
			attribute.String("clerk_queue.action", string(t.Action)),
		),
	)
	defer span.End()

	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal transition: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(t.ItemID),
		Value: sarama.ByteEncoder(payload),
	}
	injectTraceContext(ctx, msg)

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		return fmt.Errorf("failed to send message to kafka topic %s: %w", p.topic, err)
	}

	ctxlog.FromContext(ctx).Debug("published queue transition",
		"topic", p.topic,
		"partition", partition,
		"offset", offset,
		"item_id", t.ItemID,
		"action", t.Action,
	)
	return nil
}

// Close closes the underlying producer.
func (p *TransitionPublisher) Close() error {
	return p.producer.Close()
}
