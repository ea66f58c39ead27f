package syncer

import (
	"context"

	"github.com/fieldops/regsync/pkg/registration"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SyncPendingRegistrations drains the local queue for agentID (empty means
// every agent). Offline runs touch neither the datastore nor the forms
// endpoint.
func (s *Syncer) SyncPendingRegistrations(ctx context.Context, agentID string, onProgress ProgressFunc) registration.SyncResult {
	runMu.Lock()
	defer runMu.Unlock()
	if !s.online.IsOnline(ctx) {
		return registration.OfflineResult()
	}
	return s.syncPending(ctx, s.runLogger("queue", agentID), agentID, onProgress)
}

// SyncAllUnsyncedRegistrations submits every remote record of agentID that
// has no forms response yet.
func (s *Syncer) SyncAllUnsyncedRegistrations(ctx context.Context, agentID string, onProgress ProgressFunc) registration.SyncResult {
	runMu.Lock()
	defer runMu.Unlock()
	if !s.online.IsOnline(ctx) {
		return registration.OfflineResult()
	}
	return s.syncUnsynced(ctx, s.runLogger("remote", agentID), agentID, onProgress)
}

// SyncEverything drains the queue first so registrations captured offline
// reach the datastore before the remote sweep runs. The sweep skips records
// whose queue entry is still alive; those stay with the queue's retry and
// notification accounting.
func (s *Syncer) SyncEverything(ctx context.Context, agentID string, onProgress ProgressFunc) registration.SyncResult {
	runMu.Lock()
	defer runMu.Unlock()
	if !s.online.IsOnline(ctx) {
		return registration.OfflineResult()
	}
	logger := s.runLogger("all", agentID)
	result := s.syncPending(ctx, logger, agentID, onProgress)
	if ctx.Err() == nil {
		result.Merge(s.syncUnsynced(ctx, logger, agentID, onProgress))
	}
	logger.Info().Int("synced", result.Synced).Int("failed", result.Failed).Msg("sync run finished")
	return result
}

func (s *Syncer) runLogger(mode, agentID string) zerolog.Logger {
	return log.With().
		Str("run_id", uuid.NewString()).
		Str("mode", mode).
		Str("agent_id", agentID).
		Logger()
}

func (s *Syncer) syncPending(ctx context.Context, logger zerolog.Logger, agentID string, onProgress ProgressFunc) registration.SyncResult {
	result := registration.NewSyncResult()
	if s.cfg.StaleAfter > 0 {
		if n, err := s.queue.ResetStale(ctx, s.cfg.StaleAfter); err != nil {
			logger.Warn().Err(err).Msg("reset stale queue entries failed")
		} else if n > 0 {
			logger.Info().Int("count", n).Msg("reset stale queue entries")
		}
	}
	entries, err := s.queue.ListPending(ctx, agentID)
	if err != nil {
		logger.Warn().Err(err).Msg("list pending registrations failed")
		return result
	}
	if len(entries) == 0 {
		return result
	}

	logger.Info().Int("total", len(entries)).Msg("syncing queued registrations")
	for i, entry := range entries {
		if i > 0 {
			if err := s.sleep(ctx, s.cfg.Pacing); err != nil {
				logger.Warn().Err(err).Int("remaining", len(entries)-i).Msg("queue sync interrupted")
				break
			}
		}
		if err := s.syncFromQueue(ctx, entry); err != nil {
			result.AddFailure(customerLabel(entry.Customer, entry.ID), err)
		} else {
			result.AddSuccess()
		}
		if onProgress != nil {
			onProgress(i+1, len(entries))
		}
	}
	return result
}

func (s *Syncer) syncUnsynced(ctx context.Context, logger zerolog.Logger, agentID string, onProgress ProgressFunc) registration.SyncResult {
	result := registration.NewSyncResult()
	records, err := s.regs.ListUnsubmitted(ctx, agentID)
	if err != nil {
		logger.Warn().Err(err).Msg("list unsynced registrations failed")
		result.Success = false
		result.Errors = append(result.Errors, databaseError(err).Error())
		return result
	}
	records = s.withoutQueued(ctx, logger, records)
	if len(records) == 0 {
		return result
	}

	logger.Info().Int("total", len(records)).Msg("syncing remote registrations")
	for i, record := range records {
		if i > 0 {
			if err := s.sleep(ctx, s.cfg.Pacing); err != nil {
				logger.Warn().Err(err).Int("remaining", len(records)-i).Msg("remote sync interrupted")
				break
			}
		}
		if err := s.syncFromRemote(ctx, record.ID); err != nil {
			result.AddFailure(customerLabel(record.Customer, record.ID), err)
		} else {
			result.AddSuccess()
		}
		if onProgress != nil {
			onProgress(i+1, len(records))
		}
	}
	return result
}

// withoutQueued drops records produced by a queue entry that is still
// pending or failed. An unreadable queue keeps the record.
func (s *Syncer) withoutQueued(ctx context.Context, logger zerolog.Logger, records []registration.RemoteRegistration) []registration.RemoteRegistration {
	out := make([]registration.RemoteRegistration, 0, len(records))
	for _, record := range records {
		if record.LocalID != "" {
			entry, err := s.queue.Get(ctx, record.LocalID)
			if err != nil {
				logger.Warn().Err(err).Str("queue_id", record.LocalID).Msg("queue lookup failed")
			} else if entry != nil {
				logger.Debug().Str("registration_id", record.ID).Str("queue_id", record.LocalID).
					Msg("remote record still owned by the queue, skipping")
				continue
			}
		}
		out = append(out, record)
	}
	return out
}
