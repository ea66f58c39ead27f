package syncer

import (
	"context"
	"fmt"

	"github.com/fieldops/regsync/pkg/registration"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// CaptureResult reports where a newly captured registration ended up.
type CaptureResult struct {
	RemoteID  string `json:"remote_id,omitempty"`
	QueueID   string `json:"queue_id,omitempty"`
	Submitted bool   `json:"submitted"`
	Queued    bool   `json:"queued"`
	Message   string `json:"message"`
}

// Capture stores a new registration. Online, it is written remotely and
// submitted right away; offline, or when the remote write fails, it is
// queued locally for the next sync.
func (s *Syncer) Capture(ctx context.Context, agentID string, customer registration.CustomerData, agent registration.AgentData) (CaptureResult, error) {
	if err := customer.Validate(); err != nil {
		return CaptureResult{}, err
	}
	if err := agent.Validate(); err != nil {
		return CaptureResult{}, err
	}

	runMu.Lock()
	defer runMu.Unlock()

	if s.online.IsOnline(ctx) {
		ctx, cancel := s.itemContext(ctx)
		defer cancel()
		remote, err := s.regs.Create(ctx, agentID, "", customer)
		if err == nil {
			out := CaptureResult{RemoteID: remote.ID}
			if err := s.submitRemote(ctx, remote, agent); err != nil {
				out.Message = "Registration saved. Form submission will be retried: " + err.Error()
				return out, nil
			}
			out.Submitted = true
			out.Message = "Registration submitted successfully"
			return out, nil
		}
		log.Warn().Err(err).Str("agent_id", agentID).Msg("remote write failed, queueing registration locally")
	}

	id, err := s.queue.Enqueue(ctx, agentID, customer, agent)
	if err != nil {
		return CaptureResult{}, errors.Wrap(err, "queue registration")
	}
	return CaptureResult{
		QueueID: id,
		Queued:  true,
		Message: "Registration saved offline and will sync when online",
	}, nil
}

// RetryPending runs one queue entry now and returns a status message for
// the caller to display.
func (s *Syncer) RetryPending(ctx context.Context, id string) (string, error) {
	runMu.Lock()
	defer runMu.Unlock()

	entry, err := s.queue.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if entry == nil {
		return "", ErrNotQueued
	}
	if !s.online.IsOnline(ctx) {
		return registration.OfflineMessage, ErrOffline
	}
	if err := s.syncFromQueue(ctx, *entry); err != nil {
		return fmt.Sprintf("Sync failed: %s", err), err
	}
	return fmt.Sprintf("%s synced successfully", customerLabel(entry.Customer, entry.ID)), nil
}
