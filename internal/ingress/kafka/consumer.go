package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/bissquit/clerk-queue/internal/ingress"
	"github.com/bissquit/clerk-queue/internal/pkg/ctxlog"
	"github.com/bissquit/clerk-queue/internal/queue"
	"github.com/cenkalti/backoff"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// maxHandleRetries bounds redelivery of a submission that failed for a transient reason.
const maxHandleRetries = 5

// permanentErrors are rejected by the queue regardless of how often the message is retried.
var permanentErrors = []error{
	ingress.ErrMissingCourt,
	ingress.ErrMissingSourceID,
	ingress.ErrUnknownSubmission,
	queue.ErrTenantRequired,
	queue.ErrTitleRequired,
	queue.ErrInvalidQueueType,
	queue.ErrInvalidSourceType,
	queue.ErrInvalidSourceID,
	queue.ErrInvalidCaseID,
	queue.ErrInvalidCaseType,
	queue.ErrInvalidPriority,
}

func isPermanent(err error) bool {
	for _, target := range permanentErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// SubmissionConsumer turns submission events into queue items.
// It implements sarama.ConsumerGroupHandler.
type SubmissionConsumer struct {
	group    sarama.ConsumerGroup
	topic    string
	enqueuer *ingress.Enqueuer
	tracer   trace.Tracer

	retryInterval time.Duration
}

// NewSubmissionConsumer creates a consumer reading topic through group.
func NewSubmissionConsumer(group sarama.ConsumerGroup, topic string, enqueuer *ingress.Enqueuer) *SubmissionConsumer {
	return &SubmissionConsumer{
		group:         group,
		topic:         topic,
		enqueuer:      enqueuer,
		tracer:        otel.Tracer(tracerName),
		retryInterval: 500 * time.Millisecond,
	}
}

// Run consumes until ctx is cancelled. Rebalances restart the session.
func (c *SubmissionConsumer) Run(ctx context.Context) error {
	go func() {
		for err := range c.group.Errors() {
			slog.Error("kafka consumer error", "topic", c.topic, "error", err)
		}
	}()

	slog.Info("starting submission consumer", "topic", c.topic)
	for {
		if err := c.group.Consume(ctx, []string{c.topic}, c); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			slog.Error("submission consume session ended", "topic", c.topic, "error", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Close closes the consumer group.
func (c *SubmissionConsumer) Close() error {
	return c.group.Close()
}

// Setup is run at the beginning of a new session, before ConsumeClaim.
func (c *SubmissionConsumer) Setup(sess sarama.ConsumerGroupSession) error {
	slog.Debug("submission consumer session started",
		"member_id", sess.MemberID(),
		"generation_id", sess.GenerationID(),
	)
	return nil
}

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines have exited.
func (c *SubmissionConsumer) Cleanup(sess sarama.ConsumerGroupSession) error {
	slog.Debug("submission consumer session ended", "member_id", sess.MemberID())
	return nil
}

// ConsumeClaim handles messages of one partition in order.
func (c *SubmissionConsumer) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := c.handleMessage(sess.Context(), msg); err != nil {
				// Unmarked offsets are redelivered to the next session.
				if sess.Context().Err() != nil {
					return nil
				}
				slog.Error("giving up on submission",
					"topic", msg.Topic,
					"partition", msg.Partition,
					"offset", msg.Offset,
					"error", err,
				)
			}
			sess.MarkMessage(msg, "")
		case <-sess.Context().Done():
			return nil
		}
	}
}

func (c *SubmissionConsumer) handleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	ctx = extractTraceContext(ctx, msg)
	ctx, span := c.tracer.Start(ctx, "kafka.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.source.name", msg.Topic),
			attribute.Int64("messaging.kafka.partition", int64(msg.Partition)),
			attribute.Int64("messaging.kafka.offset", msg.Offset),
		),
	)
	defer span.End()

	ctx = ctxlog.With(ctx, "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
	logger := ctxlog.FromContext(ctx)

	var submission ingress.Submission
	if err := json.Unmarshal(msg.Value, &submission); err != nil {
		ingress.RecordInvalid(ingress.SourceSubmissions)
		logger.Warn("dropping malformed submission", "error", err)
		return nil
	}

	courtID, input, err := submission.CreateInput()
	if err != nil {
		ingress.RecordInvalid(ingress.SourceSubmissions)
		logger.Warn("dropping invalid submission", "source_id", submission.SourceID, "error", err)
		return nil
	}

	operation := func() error {
		_, _, err := c.enqueuer.Ensure(ctx, ingress.SourceSubmissions, courtID, input)
		if err != nil && isPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval
	err = backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, maxHandleRetries), ctx))
	if err != nil {
		if isPermanent(err) {
			ingress.RecordInvalid(ingress.SourceSubmissions)
			logger.Warn("dropping rejected submission", "source_id", submission.SourceID, "error", err)
			return nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "enqueue failed")
		return fmt.Errorf("enqueue submission %s: %w", submission.SourceID, err)
	}
	return nil
}
