package queue

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/adrg/xdg"
	"github.com/fieldops/regsync/internal/env"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

const (
	defaultDirName  = "regsync"
	defaultFileName = "queue.sqlite"
	tableName       = "pending_registrations"
	maxErrorLength  = 512
)

// ResolvePath returns QUEUE_DB_PATH or the XDG data location, creating the
// parent directory.
func ResolvePath() (string, error) {
	path := env.String(env.QueueDBPath, "")
	if path == "" {
		path = filepath.Join(xdg.DataHome, defaultDirName, defaultFileName)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", errors.Wrapf(err, "queue: create dir for %s failed", path)
	}
	return path, nil
}

func configureSQLite(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA temp_store=MEMORY;",
		"PRAGMA busy_timeout=60000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return errors.Wrapf(err, "execute %s", pragma)
		}
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return nil
}

func prepareSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			customer_data TEXT NOT NULL,
			agent_data TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			error TEXT,
			retry_count INTEGER NOT NULL DEFAULT 0,
			remote_id TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`, quoteIdent(tableName)),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (status, created_at);`,
			quoteIdent("idx_pending_status_created"), quoteIdent(tableName)),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (agent_id);`,
			quoteIdent("idx_pending_agent"), quoteIdent(tableName)),
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "prepare schema")
		}
	}
	return nil
}

// execWithRetry retries writes that hit a busy database with linear backoff.
func execWithRetry(ctx context.Context, db *sql.DB, stmt string, args ...any) (sql.Result, error) {
	const maxAttempts = 3
	for attempt := 0; attempt < maxAttempts; attempt++ {
		res, err := db.ExecContext(ctx, stmt, args...)
		if err == nil {
			return res, nil
		}
		if !isSQLiteBusy(err) || attempt == maxAttempts-1 {
			log.Debug().Err(err).Str("sql", renderSQL(stmt, args...)).Msg("queue statement failed")
			return nil, err
		}
		backoff := time.Duration(attempt+1) * 200 * time.Millisecond
		log.Debug().Int("attempt", attempt+1).Dur("backoff", backoff).
			Str("sql", renderSQL(stmt, args...)).Msg("queue database busy, retrying")
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "sqlite_busy")
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(strings.TrimSpace(name), `"`, `""`) + `"`
}

func truncateError(msg string) string {
	if len(msg) <= maxErrorLength {
		return msg
	}
	cut := maxErrorLength
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}
