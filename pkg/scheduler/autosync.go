// Package scheduler runs background sync batches on a fixed interval.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fieldops/regsync/internal/env"
	"github.com/fieldops/regsync/pkg/connectivity"
	"github.com/fieldops/regsync/pkg/registration"
	"github.com/fieldops/regsync/pkg/syncer"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DefaultInterval is the pause between two automatic runs.
const DefaultInterval = 30 * time.Second

// Runner performs one full sync batch.
type Runner interface {
	SyncEverything(ctx context.Context, agentID string, onProgress syncer.ProgressFunc) registration.SyncResult
}

// Config configures AutoSync.
type Config struct {
	// AgentID scopes runs to one agent; empty syncs every agent.
	AgentID  string
	Interval time.Duration
	// RegainInterval polls connectivity between runs and triggers a run as
	// soon as the device comes back online. Zero disables polling.
	RegainInterval time.Duration
}

// ConfigFromEnv reads AUTOSYNC_* variables.
func ConfigFromEnv(agentID string) Config {
	return Config{
		AgentID:        agentID,
		Interval:       env.Duration(env.AutoSyncInterval, DefaultInterval),
		RegainInterval: env.Duration(env.AutoSyncRegain, 0),
	}
}

// AutoSync triggers a sync immediately on Start and then on every interval.
// At most one run is in flight at a time.
type AutoSync struct {
	runner     Runner
	online     connectivity.Checker
	cfg        Config
	onComplete func(registration.SyncResult)

	inFlight   atomic.Bool
	lastOnline atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a scheduler. onComplete may be nil; it is called once per
// finished batch, never for skipped or offline ticks.
func New(runner Runner, online connectivity.Checker, cfg Config, onComplete func(registration.SyncResult)) *AutoSync {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if online == nil {
		online = connectivity.Static(true)
	}
	return &AutoSync{runner: runner, online: online, cfg: cfg, onComplete: onComplete}
}

// Start launches the background loop. It returns an error when already
// running.
func (a *AutoSync) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return errors.New("auto sync already started")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})
	go a.loop(loopCtx, a.done)
	log.Info().
		Str("agent_id", a.cfg.AgentID).
		Dur("interval", a.cfg.Interval).
		Dur("regain_interval", a.cfg.RegainInterval).
		Msg("auto sync started")
	return nil
}

// Stop cancels the timers and waits for an in-flight run to finish. The run
// itself is not aborted.
func (a *AutoSync) Stop() {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel, a.done = nil, nil
	a.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	log.Info().Str("agent_id", a.cfg.AgentID).Msg("auto sync stopped")
}

// Trigger runs a batch now on the caller's goroutine. It reports false when
// a run was already in flight or the device is offline.
func (a *AutoSync) Trigger(ctx context.Context) bool {
	return a.tick(ctx, "manual")
}

// Running reports whether a batch is in flight.
func (a *AutoSync) Running() bool {
	return a.inFlight.Load()
}

func (a *AutoSync) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	a.tick(ctx, "start")

	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()
	var regain <-chan time.Time
	if a.cfg.RegainInterval > 0 {
		regainTicker := time.NewTicker(a.cfg.RegainInterval)
		defer regainTicker.Stop()
		regain = regainTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.tick(ctx, "interval")
		case <-regain:
			if a.lastOnline.Load() || a.inFlight.Load() {
				continue
			}
			if a.online.IsOnline(ctx) {
				log.Info().Str("agent_id", a.cfg.AgentID).Msg("connectivity regained")
				a.tick(ctx, "regain")
			}
		}
	}
}

func (a *AutoSync) tick(ctx context.Context, reason string) bool {
	if !a.inFlight.CompareAndSwap(false, true) {
		log.Debug().Str("reason", reason).Msg("sync already in flight, skipping tick")
		return false
	}
	defer a.inFlight.Store(false)

	if !a.online.IsOnline(ctx) {
		a.lastOnline.Store(false)
		log.Debug().Str("reason", reason).Msg("device offline, skipping tick")
		return false
	}
	a.lastOnline.Store(true)

	result := a.runner.SyncEverything(context.WithoutCancel(ctx), a.cfg.AgentID, nil)
	if result.Changed() {
		log.Info().
			Str("reason", reason).
			Str("summary", result.Summary()).
			Strs("errors", result.Errors).
			Msg("auto sync finished")
	}
	if a.onComplete != nil {
		a.onComplete(result)
	}
	return true
}
