package scheduler

import (
	"time"

	"github.com/smallbiznis/journeys/internal/config"
)

// Config controls the outbox poll loop.
type Config struct {
	PollInterval    time.Duration
	MaxPollInterval time.Duration
	BatchSize       int
	CycleTimeout    time.Duration
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

func DefaultConfig() Config {
	return Config{
		PollInterval:    5 * time.Second,
		MaxPollInterval: 2 * time.Minute,
		BatchSize:       100,
		CycleTimeout:    2 * time.Minute,
		BreakerFailures: 5,
		BreakerCooldown: 30 * time.Second,
	}
}

// ProvideConfig maps the OUTBOX_* environment onto the scheduler config.
func ProvideConfig(cfg config.Config) Config {
	out := Config{
		PollInterval:    cfg.Outbox.PollInterval,
		MaxPollInterval: cfg.Outbox.MaxPollInterval,
		BatchSize:       cfg.Outbox.BatchSize,
		BreakerCooldown: cfg.Outbox.BreakerCooldown,
	}
	if cfg.Outbox.BreakerFailures > 0 {
		out.BreakerFailures = uint32(cfg.Outbox.BreakerFailures)
	}
	return out.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = defaults.PollInterval
	}
	if c.MaxPollInterval <= 0 {
		c.MaxPollInterval = defaults.MaxPollInterval
	}
	if c.MaxPollInterval < c.PollInterval {
		c.MaxPollInterval = c.PollInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.CycleTimeout <= 0 {
		c.CycleTimeout = defaults.CycleTimeout
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = defaults.BreakerFailures
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = defaults.BreakerCooldown
	}
	return c
}
