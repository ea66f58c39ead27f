package syncer

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fieldops/regsync/pkg/connectivity"
	"github.com/fieldops/regsync/pkg/datastore"
	"github.com/fieldops/regsync/pkg/forms"
	"github.com/fieldops/regsync/pkg/notify"
	"github.com/fieldops/regsync/pkg/queue"
	"github.com/fieldops/regsync/pkg/registration"
	"github.com/stretchr/testify/require"
)

const testAgentID = "agent-1"

func customer(first string) registration.CustomerData {
	return registration.CustomerData{
		FirstName:        first,
		LastName:         "Doe",
		PrimaryPhone:     "0712345678",
		PackageCode:      "home-10",
		InstallationTown: "Nairobi",
		VisitDate:        "2025-03-07",
		VisitTime:        "2:30 PM",
	}
}

func agentData() registration.AgentData {
	return registration.AgentData{Name: "Agent A", Mobile: "0700000001"}
}

// fakeForms records submissions and replays scripted outcomes; once the
// script is exhausted every call succeeds.
type fakeForms struct {
	mu       sync.Mutex
	script   []forms.Result
	calls    []registration.CustomerData
	delay    time.Duration
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (f *fakeForms) Submit(_ context.Context, c registration.CustomerData, _ registration.AgentData) forms.Result {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if n <= seen || f.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	if len(f.script) > 0 {
		res := f.script[0]
		f.script = f.script[1:]
		return res
	}
	return forms.Result{Success: true, ResponseID: fmt.Sprintf("resp-%d", len(f.calls))}
}

func (f *fakeForms) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type recordingSink struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingSink) Notify(_ context.Context, ev notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// countingStore wraps a datastore and counts every call reaching it.
type countingStore struct {
	datastore.Store
	calls       atomic.Int32
	zeroUpdates bool
	failInserts bool
}

func (c *countingStore) Insert(ctx context.Context, col datastore.Collection, fields map[string]any) (datastore.Record, error) {
	c.calls.Add(1)
	if c.failInserts {
		return datastore.Record{}, fmt.Errorf("insert into %s denied", col)
	}
	return c.Store.Insert(ctx, col, fields)
}

func (c *countingStore) Update(ctx context.Context, col datastore.Collection, id string, patch map[string]any) (int64, error) {
	c.calls.Add(1)
	if c.zeroUpdates {
		return 0, nil
	}
	return c.Store.Update(ctx, col, id, patch)
}

func (c *countingStore) Select(ctx context.Context, col datastore.Collection, f datastore.Filter) ([]datastore.Record, error) {
	c.calls.Add(1)
	return c.Store.Select(ctx, col, f)
}

func (c *countingStore) Count(ctx context.Context, col datastore.Collection, f datastore.Filter) (int, error) {
	c.calls.Add(1)
	return c.Store.Count(ctx, col, f)
}

type harness struct {
	t      *testing.T
	syncer *Syncer
	queue  *queue.Store
	mem    *datastore.MemoryStore
	store  *countingStore
	regs   *datastore.RegistrationRepo
	forms  *fakeForms
	sink   *recordingSink
	sleeps []time.Duration
}

func newHarness(t *testing.T, online bool) *harness {
	t.Helper()
	q := queue.New(filepath.Join(t.TempDir(), "queue.sqlite"))
	require.NoError(t, q.Open(context.Background()))
	t.Cleanup(func() { _ = q.Close() })

	mem := datastore.NewMemoryStore()
	mem.Put(datastore.Agents, testAgentID, map[string]any{
		"full_name":     "Agent A",
		"mobile_number": "0700000001",
	})
	store := &countingStore{Store: mem}
	regs := datastore.NewRegistrationRepo(store, datastore.RegistrationFields{})

	h := &harness{
		t:     t,
		queue: q,
		mem:   mem,
		store: store,
		regs:  regs,
		forms: &fakeForms{},
		sink:  &recordingSink{},
	}
	h.syncer = New(Deps{
		Queue:         q,
		Registrations: regs,
		Agents:        datastore.NewAgentRepo(store, datastore.AgentFields{}),
		Forms:         h.forms,
		Notifier:      h.sink,
		Connectivity:  connectivity.Static(online),
	}, Config{Pacing: 500 * time.Millisecond})
	h.syncer.sleep = func(ctx context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return ctx.Err()
	}
	return h
}

func (h *harness) enqueue(first string) string {
	h.t.Helper()
	id, err := h.queue.Enqueue(context.Background(), testAgentID, customer(first), agentData())
	require.NoError(h.t, err)
	return id
}

func (h *harness) pending() []registration.PendingRegistration {
	h.t.Helper()
	entries, err := h.queue.ListPending(context.Background(), "")
	require.NoError(h.t, err)
	return entries
}

func (h *harness) remotes() []registration.RemoteRegistration {
	h.t.Helper()
	recs, err := h.mem.Select(context.Background(), datastore.Registrations, datastore.Filter{})
	require.NoError(h.t, err)
	out := make([]registration.RemoteRegistration, 0, len(recs))
	for _, rec := range recs {
		got, err := h.regs.Get(context.Background(), rec.ID)
		require.NoError(h.t, err)
		out = append(out, *got)
	}
	return out
}
