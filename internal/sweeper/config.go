package sweeper

import (
	"time"

	appconfig "github.com/Millersg1/faith-harbor-nexus-platform-sub003/internal/config"
)

// Config controls the sweep interval and how old a pending attempt
// must be before it is failed.
type Config struct {
	RunInterval time.Duration
	PendingTTL  time.Duration
	BatchSize   int
	RunTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval: time.Minute,
		PendingTTL:  24 * time.Hour,
		BatchSize:   100,
		RunTimeout:  30 * time.Second,
	}
}

func ProvideConfig(cfg appconfig.Config) Config {
	return Config{
		RunInterval: time.Duration(cfg.SweepIntervalSeconds) * time.Second,
		PendingTTL:  time.Duration(cfg.SweepPendingTTLMinutes) * time.Minute,
		BatchSize:   cfg.SweepBatchSize,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.PendingTTL <= 0 {
		c.PendingTTL = defaults.PendingTTL
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = defaults.RunTimeout
	}
	return c
}
