package syncer

import (
	"context"
	"strings"

	"github.com/fieldops/regsync/pkg/forms"
	"github.com/fieldops/regsync/pkg/notify"
	"github.com/fieldops/regsync/pkg/registration"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// SyncFromQueue pushes one queue entry to the datastore and the forms
// endpoint. A nil error means the entry is gone from the queue.
func (s *Syncer) SyncFromQueue(ctx context.Context, entry registration.PendingRegistration) error {
	runMu.Lock()
	defer runMu.Unlock()
	return s.syncFromQueue(ctx, entry)
}

// SyncFromRemote submits an existing remote record that has no forms
// response yet. Missing or already submitted records succeed immediately.
func (s *Syncer) SyncFromRemote(ctx context.Context, remoteID string) error {
	runMu.Lock()
	defer runMu.Unlock()
	return s.syncFromRemote(ctx, remoteID)
}

func (s *Syncer) syncFromQueue(parent context.Context, entry registration.PendingRegistration) error {
	ctx, cancel := s.itemContext(parent)
	defer cancel()

	logger := log.With().Str("queue_id", entry.ID).Str("agent_id", entry.AgentID).Logger()
	if err := s.queue.UpdateStatus(ctx, entry.ID, registration.StatusSyncing, ""); err != nil {
		logger.Warn().Err(err).Str("status", "syncing").Msg("update queue status failed")
	}

	remote, err := s.resolveRemote(ctx, entry)
	if err != nil {
		return s.failQueued(ctx, entry, "", databaseError(err))
	}

	if remote.Submitted() {
		logger.Info().Str("registration_id", remote.ID).
			Str("response_id", remote.FormsResponseID).
			Msg("registration already submitted, dropping queue entry")
		s.removeEntry(ctx, entry.ID)
		return nil
	}

	res := s.forms.Submit(ctx, entry.Customer, entry.Agent)
	if err := submitError(res); err != nil {
		return s.failQueued(ctx, entry, remote.ID, err)
	}
	if err := s.regs.StampFormsResponse(ctx, remote.ID, res.ResponseID, s.now()); err != nil {
		logger.Error().Err(err).Str("registration_id", remote.ID).
			Str("response_id", res.ResponseID).
			Msg("form submitted but response id could not be stored")
		return s.failQueued(ctx, entry, remote.ID, err)
	}

	s.removeEntry(ctx, entry.ID)
	logger.Info().Str("registration_id", remote.ID).
		Str("response_id", res.ResponseID).
		Msg("queued registration synced")
	return nil
}

// resolveRemote finds the record this entry already produced, or creates it.
func (s *Syncer) resolveRemote(ctx context.Context, entry registration.PendingRegistration) (*registration.RemoteRegistration, error) {
	if entry.RemoteID != "" {
		remote, err := s.regs.Get(ctx, entry.RemoteID)
		if err != nil {
			return nil, err
		}
		if remote != nil {
			return remote, nil
		}
	}
	remote, err := s.regs.FindByLocalID(ctx, entry.ID)
	if err != nil {
		return nil, err
	}
	if remote == nil {
		remote, err = s.regs.Create(ctx, entry.AgentID, entry.ID, entry.Customer)
		if err != nil {
			return nil, err
		}
	}
	if remote.ID != entry.RemoteID {
		if err := s.queue.SetRemoteID(ctx, entry.ID, remote.ID); err != nil {
			log.Warn().Err(err).Str("queue_id", entry.ID).Msg("remember remote id failed")
		}
	}
	return remote, nil
}

func (s *Syncer) failQueued(ctx context.Context, entry registration.PendingRegistration, remoteID string, cause error) error {
	if entry.RetryCount >= s.cfg.NotifyAfterRetries {
		notify.Fire(ctx, s.notifier, notify.Event{
			Kind:           notify.KindSyncFailure,
			AgentID:        entry.AgentID,
			CustomerName:   entry.Customer.FullName(),
			RegistrationID: remoteID,
			QueueID:        entry.ID,
			Message:        cause.Error(),
			RetryCount:     entry.RetryCount + 1,
			OccurredAt:     s.now(),
		})
	}
	if err := s.queue.UpdateStatus(ctx, entry.ID, registration.StatusFailed, cause.Error()); err != nil {
		log.Warn().Err(err).Str("queue_id", entry.ID).Str("status", "failed").Msg("update queue status failed")
	}
	log.Warn().Err(cause).
		Str("queue_id", entry.ID).
		Int("retry_count", entry.RetryCount+1).
		Msg("queued registration sync failed")
	return cause
}

func (s *Syncer) removeEntry(ctx context.Context, id string) {
	if err := s.queue.Remove(ctx, id); err != nil {
		log.Warn().Err(err).Str("queue_id", id).Msg("remove queue entry failed")
	}
}

func (s *Syncer) syncFromRemote(parent context.Context, remoteID string) error {
	ctx, cancel := s.itemContext(parent)
	defer cancel()

	remote, err := s.regs.Get(ctx, remoteID)
	if err != nil {
		return databaseError(err)
	}
	if remote == nil || remote.Submitted() {
		return nil
	}
	agent, err := s.agents.Identity(ctx, remote.AgentID)
	if err != nil {
		return err
	}
	return s.submitRemote(ctx, remote, agent)
}

// submitRemote posts a remote record and stamps the response. Submission
// failures always notify since this path keeps no retry counter.
func (s *Syncer) submitRemote(ctx context.Context, remote *registration.RemoteRegistration, agent registration.AgentData) error {
	res := s.forms.Submit(ctx, remote.Customer, agent)
	if err := submitError(res); err != nil {
		notify.Fire(ctx, s.notifier, notify.Event{
			Kind:           notify.KindSyncFailure,
			AgentID:        remote.AgentID,
			CustomerName:   remote.Customer.FullName(),
			RegistrationID: remote.ID,
			Message:        err.Error(),
			OccurredAt:     s.now(),
		})
		log.Warn().Err(err).Str("registration_id", remote.ID).Msg("remote registration submission failed")
		return err
	}
	if err := s.regs.StampFormsResponse(ctx, remote.ID, res.ResponseID, s.now()); err != nil {
		log.Error().Err(err).Str("registration_id", remote.ID).
			Str("response_id", res.ResponseID).
			Msg("form submitted but response id could not be stored")
		return err
	}
	log.Info().Str("registration_id", remote.ID).
		Str("response_id", res.ResponseID).
		Msg("remote registration synced")
	return nil
}

func submitError(res forms.Result) error {
	if !res.Success {
		msg := strings.TrimSpace(res.Error)
		if msg == "" {
			msg = "form submission failed"
		}
		return errors.New(msg)
	}
	if strings.TrimSpace(res.ResponseID) == "" {
		return errors.New("form submission returned no response id")
	}
	return nil
}
