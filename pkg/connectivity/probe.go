// Package connectivity answers whether the remote datastore is reachable
// right now, within a bounded time.
package connectivity

import (
	"context"
	"fmt"
	"time"

	"github.com/fieldops/regsync/internal/env"
	"github.com/fieldops/regsync/pkg/datastore"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// DefaultTimeout bounds a single probe.
const DefaultTimeout = 2 * time.Second

// Checker is what sync consumers depend on.
type Checker interface {
	IsOnline(ctx context.Context) bool
}

// Probe pings the datastore and reports false on error, timeout or panic.
type Probe struct {
	pinger  datastore.Pinger
	timeout time.Duration
	group   singleflight.Group
}

// NewProbe wraps pinger. A non-positive timeout selects DefaultTimeout.
func NewProbe(pinger datastore.Pinger, timeout time.Duration) *Probe {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Probe{pinger: pinger, timeout: timeout}
}

// NewProbeFromEnv reads CONNECTIVITY_TIMEOUT.
func NewProbeFromEnv(pinger datastore.Pinger) *Probe {
	return NewProbe(pinger, env.Duration(env.ConnectivityTimeout, DefaultTimeout))
}

// IsOnline never blocks longer than the probe timeout. Concurrent callers
// share one in-flight ping.
func (p *Probe) IsOnline(ctx context.Context) bool {
	if p == nil || p.pinger == nil {
		return false
	}
	ch := p.group.DoChan("ping", func() (any, error) {
		return nil, p.ping(ctx)
	})
	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		if res.Err != nil {
			log.Debug().Err(res.Err).Msg("connectivity probe failed")
			return false
		}
		return true
	case <-timer.C:
		log.Debug().Dur("timeout", p.timeout).Msg("connectivity probe timed out")
		return false
	case <-ctx.Done():
		return false
	}
}

func (p *Probe) ping(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("connectivity probe panicked: %v", r)
		}
	}()
	pingCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	return p.pinger.Ping(pingCtx)
}

// Static answers a fixed value. Used for --offline runs and tests.
type Static bool

// IsOnline returns the fixed answer.
func (s Static) IsOnline(context.Context) bool { return bool(s) }
