// Package syncer drives queued and remote-only registrations through the
// remote datastore and the forms endpoint, one item at a time.
package syncer

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/fieldops/regsync/pkg/connectivity"
	"github.com/fieldops/regsync/pkg/forms"
	"github.com/fieldops/regsync/pkg/notify"
	"github.com/fieldops/regsync/pkg/registration"
	"github.com/pkg/errors"
)

var (
	// ErrOffline is returned by single-item actions when the probe fails.
	ErrOffline = errors.New(registration.OfflineMessage)
	// ErrNotQueued means the queue holds no entry with the requested id.
	ErrNotQueued = errors.New("registration is not in the local queue")
)

// runMu serializes every sync run in the process: batch runs, manual
// retries and capture submissions never overlap.
var runMu sync.Mutex

// Queue is the local durable queue.
type Queue interface {
	Enqueue(ctx context.Context, agentID string, customer registration.CustomerData, agent registration.AgentData) (string, error)
	ListPending(ctx context.Context, agentID string) ([]registration.PendingRegistration, error)
	Get(ctx context.Context, id string) (*registration.PendingRegistration, error)
	UpdateStatus(ctx context.Context, id string, status registration.Status, errMsg string) error
	SetRemoteID(ctx context.Context, id, remoteID string) error
	Remove(ctx context.Context, id string) error
	ResetStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// Registrations is the remote registrations collection.
type Registrations interface {
	Create(ctx context.Context, agentID, localID string, customer registration.CustomerData) (*registration.RemoteRegistration, error)
	Get(ctx context.Context, id string) (*registration.RemoteRegistration, error)
	FindByLocalID(ctx context.Context, localID string) (*registration.RemoteRegistration, error)
	StampFormsResponse(ctx context.Context, id, responseID string, at time.Time) error
	ListUnsubmitted(ctx context.Context, agentID string) ([]registration.RemoteRegistration, error)
}

// Agents resolves the agent identity used for remote-only submissions.
type Agents interface {
	Identity(ctx context.Context, agentID string) (registration.AgentData, error)
}

// ProgressFunc observes batch progress; done counts processed items.
type ProgressFunc func(done, total int)

// Deps are the collaborators of a Syncer. Notifier may be nil.
type Deps struct {
	Queue         Queue
	Registrations Registrations
	Agents        Agents
	Forms         forms.Submitter
	Notifier      notify.Sink
	Connectivity  connectivity.Checker
}

// Syncer runs the single-item routines and the batch orchestrator.
type Syncer struct {
	queue    Queue
	regs     Registrations
	agents   Agents
	forms    forms.Submitter
	notifier notify.Sink
	online   connectivity.Checker
	cfg      Config

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a Syncer. Zero config values fall back to defaults.
func New(deps Deps, cfg Config) *Syncer {
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notify.Discard
	}
	online := deps.Connectivity
	if online == nil {
		online = connectivity.Static(true)
	}
	return &Syncer{
		queue:    deps.Queue,
		regs:     deps.Registrations,
		agents:   deps.Agents,
		forms:    deps.Forms,
		notifier: notifier,
		online:   online,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// IsOnline exposes the connectivity check used before every run.
func (s *Syncer) IsOnline(ctx context.Context) bool {
	return s.online.IsOnline(ctx)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// itemContext detaches an item from the caller's cancellation so a started
// item runs to completion, bounded by ItemTimeout.
func (s *Syncer) itemContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ItemTimeout)
}

func customerLabel(customer registration.CustomerData, fallback string) string {
	if name := customer.FullName(); name != "" {
		return name
	}
	return strings.TrimSpace(fallback)
}

func databaseError(err error) error {
	return errors.Wrap(err, "Database error")
}
