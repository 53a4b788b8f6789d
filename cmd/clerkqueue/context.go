package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bissquit/clerk-queue/internal/config"
	"github.com/bissquit/clerk-queue/internal/pkg/postgres"
	"github.com/bissquit/clerk-queue/internal/queue"
	queuepostgres "github.com/bissquit/clerk-queue/internal/queue/postgres"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		if path == "" {
			c.config, c.configErr = config.LoadFromEnv()
			return
		}
		c.config, c.configErr = config.Load(path)
	})
	return c.config, c.configErr
}

// withService opens a database pool and hands fn a queue service without a publisher.
func (c *commandContext) withService(ctx context.Context, fn func(*queue.Service) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.Database.ConnectTimeout)
	defer cancel()

	pool, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    2,
		MaxIdleConns:    0,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectAttempts: 1,
	})
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	service := queue.NewService(queuepostgres.NewRepository(pool), nil, queue.Config{
		EnforceAssignee: cfg.Queue.EnforceAssignee,
		Location:        cfg.Queue.Location(),
	})
	return fn(service)
}
