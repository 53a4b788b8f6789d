package kafka

import (
	"context"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
)

// headerCarrier implements propagation.TextMapCarrier for Kafka record headers.
type headerCarrier struct {
	headers []sarama.RecordHeader
}

func (c *headerCarrier) Get(key string) string {
	for _, h := range c.headers {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Set(key, value string) {
	c.headers = append(c.headers, sarama.RecordHeader{
		Key:   []byte(key),
		Value: []byte(value),
	})
}

func (c *headerCarrier) Keys() []string {
	out := make([]string, len(c.headers))
	for i, h := range c.headers {
		out[i] = string(h.Key)
	}
	return out
}

func injectTraceContext(ctx context.Context, msg *sarama.ProducerMessage) {
	carrier := &headerCarrier{headers: msg.Headers}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	msg.Headers = carrier.headers
}

func extractTraceContext(ctx context.Context, msg *sarama.ConsumerMessage) context.Context {
	carrier := &headerCarrier{}
	for _, h := range msg.Headers {
		if h != nil {
			carrier.headers = append(carrier.headers, *h)
		}
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
