package datastore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// Notification is an agent-facing message shown in the notifications surface.
type Notification struct {
	AgentID string
	Kind    string
	Title   string
	Message string
	Data    map[string]any
}

// NotificationRepo writes the remote notifications collection.
type NotificationRepo struct {
	store  Store
	fields NotificationFields
	now    func() time.Time
}

// NewNotificationRepo binds the repository to a store.
func NewNotificationRepo(store Store, fields NotificationFields) *NotificationRepo {
	if fields == (NotificationFields{}) {
		fields = DefaultNotificationFields()
	}
	return &NotificationRepo{store: store, fields: fields, now: time.Now}
}

// Create stores an unread notification and returns its id.
func (n *NotificationRepo) Create(ctx context.Context, note Notification) (string, error) {
	f := n.fields
	row := map[string]any{
		f.AgentID:   note.AgentID,
		f.Kind:      note.Kind,
		f.Title:     note.Title,
		f.Message:   note.Message,
		f.Read:      false,
		f.CreatedAt: n.now().UTC(),
	}
	if len(note.Data) > 0 && f.Data != "" {
		raw, err := json.Marshal(note.Data)
		if err != nil {
			return "", errors.Wrap(err, "encode notification data")
		}
		row[f.Data] = string(raw)
	}
	rec, err := n.store.Insert(ctx, Notifications, row)
	if err != nil {
		return "", errors.Wrap(err, "create notification")
	}
	return rec.ID, nil
}
