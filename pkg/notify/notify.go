// Package notify delivers failure notifications for registrations that could
// not be synced. Delivery is best effort: callers use Fire, which never
// propagates sink errors or panics.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Kind classifies a notification.
type Kind string

// KindSyncFailure is raised when a registration repeatedly fails to sync.
const KindSyncFailure Kind = "SYNC_FAILURE"

// FireTimeout bounds a single fire-and-forget delivery.
const FireTimeout = 5 * time.Second

// Event describes one failure.
type Event struct {
	Kind           Kind
	AgentID        string
	CustomerName   string
	RegistrationID string
	QueueID        string
	Message        string
	RetryCount     int
	OccurredAt     time.Time
}

// Title renders a short headline for the agent notifications surface.
func (e Event) Title() string {
	if e.Kind == KindSyncFailure {
		return "Registration sync failed"
	}
	return strings.ReplaceAll(strings.ToLower(string(e.Kind)), "_", " ")
}

// Body renders the human readable message.
func (e Event) Body() string {
	name := strings.TrimSpace(e.CustomerName)
	if name == "" {
		name = "a customer"
	}
	return fmt.Sprintf("Failed to sync registration for %s: %s", name, e.Message)
}

// Sink receives notifications.
type Sink interface {
	Notify(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

// Notify calls f.
func (f SinkFunc) Notify(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, Event) error { return nil })

// Multi fans an event out to several sinks and joins their errors.
type Multi []Sink

// Notify delivers to every sink even when earlier ones fail.
func (m Multi) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Fire delivers ev synchronously under its own timeout, detached from the
// caller's cancellation. Errors and panics are logged and swallowed.
func Fire(ctx context.Context, sink Sink, ev Event) {
	if sink == nil {
		return
	}
	if ev.Kind == "" {
		ev.Kind = KindSyncFailure
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("agent_id", ev.AgentID).
				Msg("notification sink panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), FireTimeout)
	defer cancel()
	if err := sink.Notify(ctx, ev); err != nil {
		log.Warn().
			Err(err).
			Str("agent_id", ev.AgentID).
			Str("kind", string(ev.Kind)).
			Str("registration_id", ev.RegistrationID).
			Msg("failed to deliver notification")
	}
}
