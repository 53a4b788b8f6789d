// Package kafka connects the clerk queue to the court event bus.
package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff"
)

// ClientConfig contains all configuration needed for Kafka client setup.
type ClientConfig struct {
	Brokers        []string
	ClientID       string
	GroupID        string
	ConnectTimeout time.Duration
}

// NewSaramaConfig returns the shared producer and consumer settings.
func NewSaramaConfig(clientID string) *sarama.Config {
	config := sarama.NewConfig()
	config.ClientID = clientID

	// Consumer settings
	config.Consumer.Return.Errors = true
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Group.Session.Timeout = 20 * time.Second
	config.Consumer.Group.Heartbeat.Interval = 6 * time.Second

	// Producer settings
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Return.Successes = true
	config.Producer.Partitioner = sarama.NewHashPartitioner

	config.Version = sarama.V3_6_0_0
	return config
}

// Connect creates a client, retrying with exponential backoff until ConnectTimeout elapses.
func Connect(ctx context.Context, cfg ClientConfig) (sarama.Client, error) {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = time.Second
	expBackoff.MaxElapsedTime = cfg.ConnectTimeout

	var client sarama.Client
	operation := func() error {
		c, err := sarama.NewClient(cfg.Brokers, NewSaramaConfig(cfg.ClientID))
		if err != nil {
			return fmt.Errorf("creating kafka client: %w", err)
		}
		client = c
		return nil
	}

	notify := func(err error, wait time.Duration) {
		slog.Warn("kafka unavailable, retrying", "brokers", cfg.Brokers, "backoff", wait, "error", err)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(expBackoff, ctx), notify); err != nil {
		return nil, fmt.Errorf("failed to connect to kafka after retries: %w", err)
	}
	return client, nil
}
