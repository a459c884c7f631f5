package processor

import (
	"time"

	"github.com/smallbiznis/journeys/internal/config"
)

type Config struct {
	BatchSize      int
	MaxAttempts    int
	HandlerTimeout time.Duration
	MaxErrorLength int
}

func DefaultConfig() Config {
	return Config{
		BatchSize:      100,
		MaxAttempts:    3,
		HandlerTimeout: 30 * time.Second,
		MaxErrorLength: 2000,
	}
}

// NewConfig maps the application outbox settings onto the processor.
func NewConfig(cfg config.Config) Config {
	return Config{
		BatchSize:      cfg.Outbox.BatchSize,
		MaxAttempts:    cfg.Outbox.MaxAttempts,
		HandlerTimeout: cfg.Outbox.HandlerTimeout,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaults.MaxAttempts
	}
	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = defaults.HandlerTimeout
	}
	if c.MaxErrorLength <= 0 {
		c.MaxErrorLength = defaults.MaxErrorLength
	}
	return c
}
