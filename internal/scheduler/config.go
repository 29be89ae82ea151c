package scheduler

import (
	"time"

	appconfig "github.com/saurav5380/apicompass/internal/config"
)

// Config controls scheduler intervals, poll coordination and batch
// sizes.
type Config struct {
	RunInterval     time.Duration
	PollInterval    time.Duration
	LockTTL         time.Duration
	JitterRatio     float64
	BatchSize       int
	MaxRetries      int
	BackfillDays    int
	BackfillTimeout time.Duration
	RetentionDays   int
	EnabledJobs     []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:     time.Minute,
		PollInterval:    time.Hour,
		LockTTL:         240 * time.Second,
		JitterRatio:     0.1,
		BatchSize:       10,
		MaxRetries:      3,
		BackfillDays:    30,
		BackfillTimeout: 300 * time.Second,
		RetentionDays:   90,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.PollInterval < time.Minute {
		c.PollInterval = defaults.PollInterval
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	if c.JitterRatio <= 0 {
		c.JitterRatio = defaults.JitterRatio
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaults.MaxRetries
	}
	if c.BackfillDays <= 0 {
		c.BackfillDays = defaults.BackfillDays
	}
	if c.BackfillTimeout <= 0 {
		c.BackfillTimeout = defaults.BackfillTimeout
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = defaults.RetentionDays
	}
	return c
}

func ProvideConfig(cfg appconfig.Config) Config {
	out := Config{
		LockTTL:         cfg.Poll.LockTTL,
		JitterRatio:     cfg.Poll.JitterRatio,
		BatchSize:       cfg.Poll.BatchSize,
		MaxRetries:      cfg.Poll.MaxRetries,
		BackfillDays:    cfg.Retention.BackfillDays,
		BackfillTimeout: cfg.Retention.BackfillTimeout,
		RetentionDays:   cfg.Retention.RawEventDays,
	}
	if cfg.Poll.IntervalOverride > 0 {
		out.PollInterval = cfg.Poll.IntervalOverride
	}
	return out.withDefaults()
}
