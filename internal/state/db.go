package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/digital-iq/llm-report/pkg/models"
)

// dialect captures the differences between the supported SQL backends.
type dialect struct {
	// driver is the database/sql driver name.
	driver string
	// numbered means placeholders are $1, $2 rather than ?.
	numbered bool
	// advisoryLock takes a transaction-scoped per-identity lock.
	advisoryLock bool
	// file means the DSN is a path whose directory must exist.
	file bool
}

var dialects = map[string]dialect{
	"":         {driver: "sqlite", file: true},
	"sqlite":   {driver: "sqlite", file: true},
	"sqlite3":  {driver: "sqlite3", file: true},
	"postgres": {driver: "pgx", numbered: true, advisoryLock: true},
	"pgx":      {driver: "pgx", numbered: true, advisoryLock: true},
}

// DB stores run histories in an SQL database, one row per identity holding
// the encoded record list.
type DB struct {
	conn    *sql.DB
	dsn     string
	dialect dialect
	locks   *keyedMutex
}

// OpenSQL opens the database and applies pending migrations.
// SQLite databases get WAL mode and a single connection; parent directories
// are created as needed.
func OpenSQL(ctx context.Context, driver, dsn string) (*DB, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported history driver %q", driver)
	}
	if dsn == "" {
		return nil, errors.New("history dsn is required")
	}

	if d.file && !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	conn, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if d.file {
		conn.SetMaxOpenConns(1)
		conn.SetMaxIdleConns(1)
		for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
			if _, err := conn.ExecContext(ctx, pragma); err != nil {
				conn.Close()
				return nil, fmt.Errorf("%s: %w", pragma, err)
			}
		}
	}

	db := &DB{
		conn:    conn,
		dsn:     dsn,
		dialect: d,
		locks:   newKeyedMutex(),
	}
	if err := db.Migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the connection.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Migrate applies all pending schema migrations.
func (db *DB) Migrate(ctx context.Context) error {
	_, err := db.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var currentVersion int
	row := db.conn.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1RunHistory},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := db.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}

		if _, err := tx.ExecContext(ctx, db.rebind("INSERT INTO schema_version (version, applied_at) VALUES (?, ?)"), m.version, formatTime(time.Now())); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}

	return nil
}

const migrationV1RunHistory = `
CREATE TABLE IF NOT EXISTS run_history (
	identity TEXT PRIMARY KEY,
	records TEXT NOT NULL,
	updated_at TEXT NOT NULL
)
`

const upsertHistory = `
INSERT INTO run_history (identity, records, updated_at) VALUES (?, ?, ?)
ON CONFLICT (identity) DO UPDATE SET records = excluded.records, updated_at = excluded.updated_at
`

// Append adds rec to identity's history inside one transaction.
func (db *DB) Append(ctx context.Context, identity string, rec models.RunRecord) error {
	if err := checkIdentity(identity); err != nil {
		return err
	}
	return db.mutate(ctx, identity, func(records []models.RunRecord) []models.RunRecord {
		return append(records, rec)
	})
}

// Clear replaces identity's history with an empty list.
func (db *DB) Clear(ctx context.Context, identity string) error {
	if err := checkIdentity(identity); err != nil {
		return err
	}
	return db.mutate(ctx, identity, func([]models.RunRecord) []models.RunRecord {
		return []models.RunRecord{}
	})
}

// List returns identity's history.
func (db *DB) List(ctx context.Context, identity string) ([]models.RunRecord, error) {
	if err := checkIdentity(identity); err != nil {
		return nil, err
	}
	blob, err := db.load(ctx, db.conn, identity)
	if err != nil {
		return nil, err
	}
	return decodeRecords(blob)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (db *DB) load(ctx context.Context, q querier, identity string) ([]byte, error) {
	var blob string
	err := q.QueryRowContext(ctx, db.rebind("SELECT records FROM run_history WHERE identity = ?"), identity).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return []byte(blob), nil
}

// mutate runs a load-modify-store cycle for identity. The in-process lock
// serializes callers sharing this DB; on Postgres an advisory lock extends
// that across processes.
func (db *DB) mutate(ctx context.Context, identity string, fn func([]models.RunRecord) []models.RunRecord) error {
	unlock := db.locks.Lock(identity)
	defer unlock()

	return db.transaction(ctx, func(tx *sql.Tx) error {
		if db.dialect.advisoryLock {
			if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", identity); err != nil {
				return fmt.Errorf("lock history: %w", err)
			}
		}

		blob, err := db.load(ctx, tx, identity)
		if err != nil {
			return err
		}
		records, err := decodeRecords(blob)
		if err != nil {
			return err
		}
		updated, err := encodeRecords(fn(records))
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, db.rebind(upsertHistory), identity, string(updated), formatTime(time.Now())); err != nil {
			return fmt.Errorf("save history: %w", err)
		}
		return nil
	})
}

// transaction runs fn within a transaction.
func (db *DB) transaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// rebind converts ? placeholders to $n for drivers that need it.
func (db *DB) rebind(query string) string {
	if !db.dialect.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// PurgeStale deletes histories not updated within olderThan.
// Returns the number of identities removed.
func (db *DB) PurgeStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().Add(-olderThan))

	result, err := db.conn.ExecContext(ctx, db.rebind("DELETE FROM run_history WHERE updated_at < ?"), cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge stale histories: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}

	return count, nil
}

// formatTime formats a time.Time for storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

var _ HistoryStore = (*DB)(nil)
