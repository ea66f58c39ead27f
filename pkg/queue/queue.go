// Package queue implements the local durable queue of registrations that
// still need to reach the remote datastore and the forms endpoint. An entry
// lives here until both are confirmed; success deletes it.
package queue

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fieldops/regsync/pkg/registration"
	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Store is the sqlite backed queue. The zero value is not usable; build it
// with New. Operations lazily open the database on first use.
type Store struct {
	path string

	mu      sync.Mutex
	db      *sql.DB
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

// New prepares a queue for path without touching the filesystem. An empty
// path resolves through ResolvePath on open.
func New(path string) *Store {
	return &Store{
		path:    strings.TrimSpace(path),
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

// Path returns the configured database path; empty until resolved.
func (s *Store) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// Open opens and migrates the database. Calling it again is a no-op.
func (s *Store) Open(ctx context.Context) error {
	_, err := s.handle(ctx)
	return err
}

// EnsureOpen is Open under the name used by callers that only want a lazy
// self-initializing guarantee.
func (s *Store) EnsureOpen(ctx context.Context) error {
	return s.Open(ctx)
}

func (s *Store) handle(ctx context.Context) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db, nil
	}
	if s.path == "" {
		path, err := ResolvePath()
		if err != nil {
			return nil, storageErr("open", err)
		}
		s.path = path
	}
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return nil, storageErr("open", err)
	}
	if err := configureSQLite(db); err != nil {
		db.Close()
		return nil, storageErr("open", err)
	}
	if err := prepareSchema(ctx, db); err != nil {
		db.Close()
		return nil, storageErr("open", err)
	}
	log.Debug().Str("path", s.path).Msg("local queue opened")
	s.db = db
	return db, nil
}

// Close releases the database handle. The store may be reopened afterwards.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return storageErr("close", err)
}

func (s *Store) newID(now time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), s.entropy).String()
}

// Enqueue validates and stores a new pending entry, returning its id.
func (s *Store) Enqueue(ctx context.Context, agentID string, customer registration.CustomerData, agent registration.AgentData) (string, error) {
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return "", storageErr("enqueue", errors.New("agent id is required"))
	}
	if err := customer.Validate(); err != nil {
		return "", storageErr("enqueue", err)
	}
	if err := agent.Validate(); err != nil {
		return "", storageErr("enqueue", err)
	}
	db, err := s.handle(ctx)
	if err != nil {
		return "", err
	}
	customerJSON, err := json.Marshal(customer)
	if err != nil {
		return "", storageErr("enqueue", err)
	}
	agentJSON, err := json.Marshal(agent)
	if err != nil {
		return "", storageErr("enqueue", err)
	}
	now := s.now()
	id := s.newID(now)
	stmt := fmt.Sprintf(`INSERT INTO %s (id, agent_id, customer_data, agent_data, status, error, retry_count, remote_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, NULL, 0, NULL, ?, ?)`, quoteIdent(tableName))
	if _, err := execWithRetry(ctx, db, stmt, id, agentID, string(customerJSON), string(agentJSON),
		string(registration.StatusPending), now.UnixMilli(), now.UnixMilli()); err != nil {
		return "", storageErr("enqueue", err)
	}
	log.Info().Str("id", id).Str("agent_id", agentID).
		Str("customer", customer.FullName()).Msg("registration queued locally")
	return id, nil
}

const selectColumns = `id, agent_id, customer_data, agent_data, status, error, retry_count, remote_id, created_at, updated_at`

// ListPending returns entries awaiting work (pending or failed), oldest
// first. An empty agentID lists every agent.
func (s *Store) ListPending(ctx context.Context, agentID string) ([]registration.PendingRegistration, error) {
	db, err := s.handle(ctx)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE status IN (?, ?)`, selectColumns, quoteIdent(tableName))
	args := []any{string(registration.StatusPending), string(registration.StatusFailed)}
	if id := strings.TrimSpace(agentID); id != "" {
		query += ` AND agent_id = ?`
		args = append(args, id)
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list pending", err)
	}
	defer rows.Close()

	entries := make([]registration.PendingRegistration, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, storageErr("list pending", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list pending", err)
	}
	return entries, nil
}

// Get returns the entry or nil when it does not exist.
func (s *Store) Get(ctx context.Context, id string) (*registration.PendingRegistration, error) {
	db, err := s.handle(ctx)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, selectColumns, quoteIdent(tableName))
	entry, err := scanEntry(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get", err)
	}
	return &entry, nil
}

// UpdateStatus moves an entry to status and records errMsg (cleared when
// empty). A transition to failed increments the retry counter by one.
func (s *Store) UpdateStatus(ctx context.Context, id string, status registration.Status, errMsg string) error {
	if !status.Valid() {
		return storageErr("update status", errors.Errorf("unknown status %q", status))
	}
	db, err := s.handle(ctx)
	if err != nil {
		return err
	}
	var errVal any
	if trimmed := strings.TrimSpace(errMsg); trimmed != "" {
		errVal = truncateError(trimmed)
	}
	bump := 0
	if status == registration.StatusFailed {
		bump = 1
	}
	stmt := fmt.Sprintf(`UPDATE %s SET status = ?, error = ?, retry_count = retry_count + ?, updated_at = ? WHERE id = ?`,
		quoteIdent(tableName))
	_, err = execWithRetry(ctx, db, stmt, string(status), errVal, bump, s.now().UnixMilli(), id)
	return storageErr("update status", err)
}

// SetRemoteID remembers the remote record created for the entry so retries
// reuse it instead of inserting again.
func (s *Store) SetRemoteID(ctx context.Context, id, remoteID string) error {
	db, err := s.handle(ctx)
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf(`UPDATE %s SET remote_id = ?, updated_at = ? WHERE id = ?`, quoteIdent(tableName))
	_, err = execWithRetry(ctx, db, stmt, strings.TrimSpace(remoteID), s.now().UnixMilli(), id)
	return storageErr("set remote id", err)
}

// Remove deletes the entry. Removing a missing id is not an error.
func (s *Store) Remove(ctx context.Context, id string) error {
	db, err := s.handle(ctx)
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, quoteIdent(tableName))
	_, err = execWithRetry(ctx, db, stmt, id)
	return storageErr("remove", err)
}

// Count returns how many entries still await work for agentID (all agents
// when empty).
func (s *Store) Count(ctx context.Context, agentID string) (int, error) {
	db, err := s.handle(ctx)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE status IN (?, ?)`, quoteIdent(tableName))
	args := []any{string(registration.StatusPending), string(registration.StatusFailed)}
	if id := strings.TrimSpace(agentID); id != "" {
		query += ` AND agent_id = ?`
		args = append(args, id)
	}
	var n int
	if err := db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, storageErr("count", err)
	}
	return n, nil
}

// ResetStale returns entries stuck in syncing for longer than olderThan to
// pending. A crashed run leaves such rows behind.
func (s *Store) ResetStale(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, nil
	}
	db, err := s.handle(ctx)
	if err != nil {
		return 0, err
	}
	now := s.now()
	cutoff := now.Add(-olderThan).UnixMilli()
	stmt := fmt.Sprintf(`UPDATE %s SET status = ?, updated_at = ? WHERE status = ? AND updated_at < ?`, quoteIdent(tableName))
	res, err := execWithRetry(ctx, db, stmt, string(registration.StatusPending), now.UnixMilli(),
		string(registration.StatusSyncing), cutoff)
	if err != nil {
		return 0, storageErr("reset stale", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("reset stale", err)
	}
	if n > 0 {
		log.Warn().Int64("count", n).Dur("older_than", olderThan).Msg("reset stale syncing entries")
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (registration.PendingRegistration, error) {
	var (
		entry        registration.PendingRegistration
		customerJSON string
		agentJSON    string
		status       string
		errMsg       sql.NullString
		remoteID     sql.NullString
		createdAt    int64
		updatedAt    int64
	)
	if err := row.Scan(&entry.ID, &entry.AgentID, &customerJSON, &agentJSON, &status, &errMsg,
		&entry.RetryCount, &remoteID, &createdAt, &updatedAt); err != nil {
		return entry, err
	}
	if err := json.Unmarshal([]byte(customerJSON), &entry.Customer); err != nil {
		return entry, errors.Wrapf(err, "decode customer data of %s", entry.ID)
	}
	if err := json.Unmarshal([]byte(agentJSON), &entry.Agent); err != nil {
		return entry, errors.Wrapf(err, "decode agent data of %s", entry.ID)
	}
	entry.Status = registration.Status(status)
	entry.Error = errMsg.String
	entry.RemoteID = remoteID.String
	entry.CreatedAt = time.UnixMilli(createdAt)
	entry.UpdatedAt = time.UnixMilli(updatedAt)
	return entry, nil
}
