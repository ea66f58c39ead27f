package notify

import (
	"context"

	"github.com/fieldops/regsync/pkg/datastore"
)

// StoreSink writes events into the remote notifications collection, where
// the agent's notifications surface reads them.
type StoreSink struct {
	repo *datastore.NotificationRepo
}

// NewStoreSink wraps a notification repository.
func NewStoreSink(repo *datastore.NotificationRepo) *StoreSink {
	return &StoreSink{repo: repo}
}

// Notify implements Sink.
func (s *StoreSink) Notify(ctx context.Context, ev Event) error {
	data := map[string]any{
		"customer_name": ev.CustomerName,
		"error":         ev.Message,
	}
	if ev.RegistrationID != "" {
		data["registration_id"] = ev.RegistrationID
	}
	if ev.QueueID != "" {
		data["queue_id"] = ev.QueueID
		data["retry_count"] = ev.RetryCount
	}
	_, err := s.repo.Create(ctx, datastore.Notification{
		AgentID: ev.AgentID,
		Kind:    string(ev.Kind),
		Title:   ev.Title(),
		Message: ev.Body(),
		Data:    data,
	})
	return err
}
