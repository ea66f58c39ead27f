package syncer

import (
	"time"

	"github.com/fieldops/regsync/internal/env"
)

const (
	DefaultPacing             = 500 * time.Millisecond
	DefaultItemTimeout        = 2 * time.Minute
	DefaultStaleAfter         = 10 * time.Minute
	DefaultNotifyAfterRetries = 2
)

// Config tunes the sync pipeline.
type Config struct {
	// Pacing is the pause between two items of one batch.
	Pacing time.Duration
	// ItemTimeout bounds one item once started; it is not tied to the
	// caller's cancellation.
	ItemTimeout time.Duration
	// StaleAfter resets queue entries stuck in syncing. Zero disables it.
	StaleAfter time.Duration
	// NotifyAfterRetries is the retry count at which a queue failure raises
	// a notification.
	NotifyAfterRetries int
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Pacing:             DefaultPacing,
		ItemTimeout:        DefaultItemTimeout,
		StaleAfter:         DefaultStaleAfter,
		NotifyAfterRetries: DefaultNotifyAfterRetries,
	}
}

// ConfigFromEnv reads SYNC_* variables over the defaults.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	cfg.Pacing = env.Duration(env.SyncItemPacing, cfg.Pacing)
	cfg.ItemTimeout = env.Duration(env.SyncItemTimeout, cfg.ItemTimeout)
	cfg.StaleAfter = env.Duration(env.SyncStaleAfter, cfg.StaleAfter)
	return cfg
}

func (c Config) withDefaults() Config {
	if c.Pacing < 0 {
		c.Pacing = 0
	}
	if c.ItemTimeout <= 0 {
		c.ItemTimeout = DefaultItemTimeout
	}
	if c.NotifyAfterRetries <= 0 {
		c.NotifyAfterRetries = DefaultNotifyAfterRetries
	}
	return c
}
