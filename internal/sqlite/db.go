package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/theo-nash/claude-slack/migrations"
	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection pool. All writes go through
// WriterTxn, which serializes transactions behind a process-wide mutex.
// Readers share the pool; WAL mode lets them run concurrently with the
// writer.
type DB struct {
	*sql.DB
	writerMu sync.Mutex
}

// New opens a SQLite database with WAL mode, a 5 second busy timeout and
// foreign key enforcement applied to every connection.
func New(dataSourceName string) (*DB, error) {
	dsn := dataSourceName
	if strings.Contains(dsn, "?") {
		dsn += "&"
	} else {
		dsn += "?"
	}
	dsn += "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// An in-memory database exists per connection, so the pool must not
	// grow past one.
	if strings.Contains(dataSourceName, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	return &DB{DB: db}, nil
}

// WriterTxn runs fn inside a write transaction. Transactions are totally
// ordered within the process: the writer mutex is held from begin to
// commit.
func (db *DB) WriterTxn(ctx context.Context, fn func(tx *sql.Tx) error) error {
	db.writerMu.Lock()
	defer db.writerMu.Unlock()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return classifyErr(fmt.Errorf("failed to begin transaction: %w", err))
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return classifyErr(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// Migrate applies embedded schema migrations in order. It is idempotent:
// applied versions are recorded in schema_version. Opening a database at a
// newer version than this build knows about is refused.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)`); err != nil {
		return fmt.Errorf("failed to create schema_version: %w", err)
	}

	names, err := migrationNames()
	if err != nil {
		return err
	}

	var current int
	err = db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if current > len(names) {
		return fmt.Errorf("database schema version %d is newer than known version %d", current, len(names))
	}

	for i, name := range names {
		version := i + 1
		if version <= current {
			continue
		}
		data, err := migrations.FS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		err = db.WriterTxn(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, string(data)); err != nil {
				return fmt.Errorf("failed to apply migration %s: %w", name, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO schema_version (version) VALUES (?)`, version); err != nil {
				return fmt.Errorf("failed to record migration %s: %w", name, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func migrationNames() ([]string, error) {
	entries, err := migrations.FS.ReadDir(".")
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}
	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
