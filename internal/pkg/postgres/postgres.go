// Package postgres provides PostgreSQL database connection utilities.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config contains PostgreSQL connection configuration.
type Config struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectAttempts int
	// Tracing attaches an OpenTelemetry tracer to every connection.
	Tracing bool
}

// maxBackoff caps the wait between connection attempts.
const maxBackoff = 16 * time.Second

// Connect establishes a connection pool to PostgreSQL with retry logic.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	if cfg.Tracing {
		poolConfig.ConnConfig.Tracer = otelpgx.NewTracer()
	}

	attempts := cfg.ConnectAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var pool *pgxpool.Pool
	attempt := 0
	operation := func() error {
		attempt++
		p, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return fmt.Errorf("create pool: %w", err)
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return fmt.Errorf("ping: %w", err)
		}
		pool = p
		return nil
	}

	notify := func(err error, wait time.Duration) {
		slog.Warn("failed to connect to database, retrying",
			"attempt", attempt,
			"max_attempts", attempts,
			"backoff", wait,
			"error", err,
		)
	}

	err = backoff.RetryNotify(operation, newBackOff(ctx, attempts), notify)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("connection cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("connect to database after %d attempts: %w", attempt, err)
	}

	slog.Info("connected to database", "attempts", attempt)
	return pool, nil
}

// newBackOff doubles the wait from one second up to maxBackoff, for at most attempts tries.
func newBackOff(ctx context.Context, attempts int) backoff.BackOff {
	if attempts <= 1 {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = time.Second
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxInterval = maxBackoff
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(attempts-1)), ctx)
}
