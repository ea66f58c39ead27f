// Package postgres stores the registration collections in PostgreSQL via a
// pgx connection pool.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/fieldops/regsync/pkg/datastore"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// Store implements datastore.Store on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// Open parses connString, builds the pool and pings it.
func Open(ctx context.Context, connString string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: parse connection string")
	}
	config.MaxConns = 8
	config.MinConns = 1
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: create pool")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "postgres: ping")
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping checks one pooled connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		full_name TEXT NOT NULL,
		mobile_number TEXT,
		phone TEXT,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS registrations (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		agent_id TEXT NOT NULL,
		local_id TEXT UNIQUE,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		id_number TEXT,
		primary_phone TEXT NOT NULL,
		alternate_phone TEXT,
		email TEXT,
		package_code TEXT NOT NULL,
		installation_town TEXT NOT NULL,
		installation_location TEXT,
		visit_date TEXT NOT NULL,
		visit_time TEXT NOT NULL,
		status VARCHAR(50) NOT NULL DEFAULT 'pending',
		forms_response_id TEXT,
		forms_submitted_at TIMESTAMP WITH TIME ZONE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		CONSTRAINT forms_response_pair CHECK ((forms_response_id IS NULL) = (forms_submitted_at IS NULL))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_registrations_agent_id ON registrations(agent_id)`,
	`CREATE INDEX IF NOT EXISTS idx_registrations_unsubmitted ON registrations(created_at) WHERE forms_response_id IS NULL`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		agent_id TEXT NOT NULL,
		kind VARCHAR(50) NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		data TEXT,
		is_read BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_agent_id ON notifications(agent_id, created_at)`,
}

// Migrate creates the tables with the default column names.
func (s *Store) Migrate(ctx context.Context) error {
	for _, migration := range migrations {
		if _, err := s.pool.Exec(ctx, migration); err != nil {
			return errors.Wrap(err, "postgres: run migration")
		}
	}
	return nil
}

// Insert adds one row and returns it as stored, defaults included.
func (s *Store) Insert(ctx context.Context, collection datastore.Collection, fields map[string]any) (datastore.Record, error) {
	query, args := buildInsert(collection, fields)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return datastore.Record{}, errors.Wrapf(err, "postgres: insert into %s", collection)
	}
	recs, err := collectRecords(rows)
	if err != nil {
		return datastore.Record{}, errors.Wrapf(err, "postgres: insert into %s", collection)
	}
	if len(recs) == 0 {
		return datastore.Record{}, errors.Errorf("postgres: insert into %s returned no row", collection)
	}
	return recs[0], nil
}

// Update patches one row and reports RowsAffected.
func (s *Store) Update(ctx context.Context, collection datastore.Collection, id string, patch map[string]any) (int64, error) {
	if len(patch) == 0 {
		return 0, errors.New("postgres: empty update")
	}
	query, args := buildUpdate(collection, id, patch)
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, errors.Wrapf(err, "postgres: update %s", collection)
	}
	return tag.RowsAffected(), nil
}

// Select runs a filtered query ordered by creation time.
func (s *Store) Select(ctx context.Context, collection datastore.Collection, filter datastore.Filter) ([]datastore.Record, error) {
	query, args := buildSelect(collection, filter)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "postgres: select from %s", collection)
	}
	recs, err := collectRecords(rows)
	return recs, errors.Wrapf(err, "postgres: select from %s", collection)
}

// Count runs SELECT COUNT(*) with the filter.
func (s *Store) Count(ctx context.Context, collection datastore.Collection, filter datastore.Filter) (int, error) {
	query, args := buildCount(collection, filter)
	var n int
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, errors.Wrapf(err, "postgres: count %s", collection)
	}
	return n, nil
}

func collectRecords(rows pgx.Rows) ([]datastore.Record, error) {
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}
	out := make([]datastore.Record, 0, len(maps))
	for _, m := range maps {
		fields := make(map[string]any, len(m))
		for k, v := range m {
			fields[k] = normalizeValue(v)
		}
		out = append(out, datastore.Record{ID: fmt.Sprint(fields["id"]), Fields: fields})
	}
	return out, nil
}

// normalizeValue turns uuid columns (decoded as [16]byte) into strings.
func normalizeValue(v any) any {
	if raw, ok := v.([16]byte); ok {
		return uuid.UUID(raw).String()
	}
	return v
}
