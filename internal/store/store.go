package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added index on publication_queue(attempts, created_at)
const currentSchemaVersion = 1

// Store provides durable storage for raw events, feed membership, the
// outbound publication queue, and app status. Uses SQLite with WAL mode.
//
// SQLite supports a single writer at a time; the connection pool is capped
// at one connection, and all callers are expected to route mutations through
// the transaction serializer so independent components never race on the
// shared connection.
type Store struct {
	db *sql.DB
}

// Statement is one pending SQL mutation with its bind parameters.
// The write-coalescing buffer accumulates these and the store applies them
// in batched transactions via ExecBatch.
type Statement struct {
	SQL  string
	Args []any
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// Single writer to avoid SQLITE_BUSY errors.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// ExecBatch applies the statements inside one transaction, in order.
//
// A failure of an individual statement is skipped (counted in skipped) so one
// malformed row cannot block unrelated writes in the same flush. A failure of
// the transaction itself (begin/commit) returns an error and applies nothing.
func (s *Store) ExecBatch(ctx context.Context, stmts []Statement) (skipped int, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("exec batch: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	for _, st := range stmts {
		if _, execErr := tx.ExecContext(ctx, st.SQL, st.Args...); execErr != nil {
			skipped++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("exec batch: commit: %w", err)
	}
	return skipped, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
		version = 1
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 adds the pending-order index for existing databases.
// New databases get this from schema.sql; CREATE INDEX IF NOT EXISTS is a
// no-op when it already exists.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_publication_queue_pending
		ON publication_queue(attempts, created_at)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}
