// Package datastore defines the remote datastore contract used by the sync
// pipeline and the typed repositories built on top of it. Backends live in
// the bitable and postgres subpackages; MemoryStore serves dry runs and tests.
package datastore

import (
	"context"

	"github.com/pkg/errors"
)

// Collection names a remote table.
type Collection string

const (
	Registrations Collection = "registrations"
	Agents        Collection = "agents"
	Notifications Collection = "notifications"
)

var (
	// ErrNoRowsAffected means an update matched nothing; typically the row
	// is gone or write access is denied.
	ErrNoRowsAffected = errors.New("no rows affected, check permissions")
	// ErrAgentPhoneNotFound means the agent record carries no contact number.
	ErrAgentPhoneNotFound = errors.New("Agent phone number not found")
	// ErrUnknownCollection is returned by backends that are not configured
	// for a collection.
	ErrUnknownCollection = errors.New("datastore: unknown collection")
)

// Record is one row keyed by its backend id.
type Record struct {
	ID     string
	Fields map[string]any
}

// Filter selects records. All set criteria must hold.
type Filter struct {
	IDs    []string
	Equals map[string]string
	// Empty lists fields that must be null or blank.
	Empty []string
	Limit int
}

// Pinger performs the cheapest round trip to the backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Store is the create/read/update/count contract of the remote datastore.
type Store interface {
	Pinger
	Insert(ctx context.Context, collection Collection, fields map[string]any) (Record, error)
	// Update patches one record and reports how many rows changed. Zero with a
	// nil error means the write silently did nothing.
	Update(ctx context.Context, collection Collection, id string, patch map[string]any) (int64, error)
	Select(ctx context.Context, collection Collection, filter Filter) ([]Record, error)
	Count(ctx context.Context, collection Collection, filter Filter) (int, error)
}
