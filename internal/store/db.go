// Package store implements the durable persistence layer (C9): the
// PositionState snapshot (atomic-rename file, not SQL), and the Convert
// history ledger and quote-counter audit trail (SQLite, pure-Go driver).
// db.go is adapted from the teacher's internal/database/db.go: same
// profile/PRAGMA-by-connection-string pattern, same WithTransaction
// helper, trimmed down to the one profile this domain actually needs
// (ledger: maximum durability for a real-money audit trail) and with
// migrations applied from an embedded schema instead of a sibling
// schemas/ directory located via runtime.Caller, since this module
// ships a single schema rather than one per named database.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure-Go driver, no cgo
)

// Profile mirrors the teacher's DatabaseProfile: a named PRAGMA bundle
// chosen for the durability/speed tradeoff the data demands.
type Profile string

const (
	// ProfileLedger is maximum safety: fsync after every write, no
	// auto-vacuum shrink. Used for the Convert history audit trail.
	ProfileLedger Profile = "ledger"
)

// DB wraps a SQLite connection configured per Profile.
type DB struct {
	conn *sql.DB
	path string
}

// Config holds the connection parameters for Open.
type Config struct {
	Path    string
	Profile Profile
}

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS convert_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	quote_id TEXT NOT NULL,
	order_id TEXT,
	from_token TEXT NOT NULL,
	to_token TEXT NOT NULL,
	ratio TEXT NOT NULL,
	inverse_ratio TEXT NOT NULL,
	from_amount TEXT NOT NULL,
	to_amount TEXT NOT NULL,
	score REAL,
	expected_profit REAL,
	prob_up REAL,
	accepted INTEGER NOT NULL,
	error_code TEXT,
	error_msg TEXT,
	timestamp INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_convert_history_timestamp ON convert_history(timestamp DESC);

CREATE TABLE IF NOT EXISTS quote_counter_audit (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	cycle_ts INTEGER NOT NULL,
	endpoint TEXT NOT NULL,
	weight INTEGER NOT NULL,
	request_count INTEGER NOT NULL,
	total_weight INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_quote_counter_audit_cycle ON quote_counter_audit(cycle_ts DESC);
`

// Open creates (if needed) and connects to the SQLite-backed ledger,
// applying profile PRAGMAs via the connection string as the teacher does,
// then runs the embedded schema inside a transaction.
func Open(cfg Config) (*DB, error) {
	path := cfg.Path
	if !strings.HasPrefix(path, "file:") {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve database path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		path = absPath
	}

	conn, err := sql.Open("sqlite", buildConnectionString(path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	configureConnectionPool(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db := &DB{conn: conn, path: path}
	if err := db.migrate(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

// buildConnectionString applies the ledger profile's PRAGMAs, mirroring
// the teacher's ProfileLedger branch: maximum safety for an audit trail
// of real money movement.
func buildConnectionString(path string) string {
	connStr := path + "?_pragma=journal_mode(WAL)"
	connStr += "&_pragma=synchronous(FULL)"
	connStr += "&_pragma=auto_vacuum(NONE)"
	connStr += "&_pragma=foreign_keys(1)"
	connStr += "&_pragma=wal_autocheckpoint(1000)"
	connStr += "&_pragma=cache_size(-64000)"
	return connStr
}

func configureConnectionPool(conn *sql.DB) {
	conn.SetMaxOpenConns(5)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(24 * time.Hour)
	conn.SetConnMaxIdleTime(30 * time.Minute)
}

func (db *DB) migrate() error {
	return WithTransaction(db.conn, func(tx *sql.Tx) error {
		_, err := tx.Exec(ledgerSchema)
		return err
	})
}

// Close closes the underlying connection.
func (db *DB) Close() error { return db.conn.Close() }

// Conn returns the underlying *sql.DB for repositories to query.
func (db *DB) Conn() *sql.DB { return db.conn }

// Path returns the resolved database file path.
func (db *DB) Path() string { return db.path }

// WithTransaction runs fn inside a transaction, committing on success and
// rolling back on error or panic, matching the teacher's helper of the
// same name.
func WithTransaction(conn *sql.DB, fn func(*sql.Tx) error) (err error) {
	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("panic in transaction: %v", p)
			return
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = fmt.Errorf("transaction failed: %w (rollback also failed: %v)", err, rbErr)
			}
			return
		}
		err = tx.Commit()
	}()
	return fn(tx)
}
