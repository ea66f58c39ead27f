// Package supervise runs long-lived daemon loops inside an errgroup and
// restarts them after a panic.
package supervise

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 30 * time.Second
)

// Loop is one supervised component.
type Loop func(ctx context.Context) error

// panicOutput receives panic reports. Panics go to stderr rather than the
// structured logger, which may itself be what panicked.
var panicOutput io.Writer = os.Stderr

// Go runs loop on g. A returned error or nil ends supervision with errgroup
// semantics; a panic is reported and the loop restarts after an exponential
// backoff until ctx is done.
func Go(ctx context.Context, g *errgroup.Group, name string, loop Loop) {
	if g == nil || loop == nil {
		return
	}
	g.Go(func() error {
		backoff := initialBackoff
		for {
			if ctx.Err() != nil {
				return nil
			}
			recovered, panicked, err := runOnce(ctx, loop)
			if !panicked {
				return err
			}
			_, _ = fmt.Fprintf(panicOutput, "WARN: %s panicked, restarting in %s: %v\n%s\n",
				name, backoff, recovered, debug.Stack())

			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-timer.C:
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	})
}

func runOnce(ctx context.Context, loop Loop) (recovered any, panicked bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			recovered, panicked = r, true
		}
	}()
	return nil, false, loop(ctx)
}
