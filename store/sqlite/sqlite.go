/*
Package sqlite is the concrete SQLite-backed storage engine, implementing
every repository interface this module defines (catalog.Repository,
txn.Repository, fiscal.Store, storno.Repository, layout.Repository,
search.Index, importer.VectorStore) plus recovery.SchemaValidator.

Grounded on the teacher's store/sqlite/sqlite.go: the same sql.Open DSN
options (_foreign_keys=on, _journal_mode=WAL), the same migrate-on-New
pattern, and the same WithTx shape (BeginTx, defer Rollback, commit on a
nil fn error), generalized from one ledger table to this system's full
schema. One *Store instance backs every repository adapter file in this
package (catalog.go, txn.go, fiscal.go, storno.go, layout.go, search.go);
they share the connection pool and the WithTx/migrate machinery defined
here.
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	_ "github.com/mattn/go-sqlite3"

	"github.com/fiskpoint/posengine/store/dbtx"
)

// Store owns the connection pool. Every repository adapter in this package
// embeds a *Store.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// New opens (creating if necessary) the SQLite database at dbPath, enables
// WAL mode and foreign keys, and runs the schema migration.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // WAL with a single writer; matches the teacher's concurrency note
	s := &Store{db: db, log: zerolog.Nop()}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// SetLogger attaches the server's structured logger, used for warnings on
// recoverable storage-layer faults (e.g. a corrupt JSON column, spec §7).
// Defaults to a no-op logger so New's callers aren't forced to provide one.
func (s *Store) SetLogger(log zerolog.Logger) {
	s.log = log
}

func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx runs fn inside one BeginTx/Commit envelope (spec §4.1/§5's
// serializable write-envelope contract), retrying exactly once on a
// SQLITE_BUSY/locked error before returning the underlying driver error
// to the caller unwrapped.
func (s *Store) WithTx(ctx context.Context, fn func(h *dbtx.Handle) error) error {
	run := func() error {
		sqlTx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		h := &dbtx.Handle{Q: sqlTx}
		if err := fn(h); err != nil {
			sqlTx.Rollback()
			return err
		}
		return sqlTx.Commit()
	}

	err := run()
	if err != nil && isBusyErr(err) {
		err = run()
	}
	return err
}

func isBusyErr(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// pool returns the connection-pool querier used when a repository method
// receives a nil *dbtx.Handle.
func (s *Store) pool() dbtx.Querier { return s.db }

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS companies (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS branches (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			company_id INTEGER NOT NULL REFERENCES companies(id),
			name TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS pos_devices (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			branch_id INTEGER NOT NULL REFERENCES branches(id),
			name TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS categories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			pos_device_id INTEGER NOT NULL REFERENCES pos_devices(id),
			display_name TEXT NOT NULL,
			category_type TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			pos_device_id INTEGER NOT NULL REFERENCES pos_devices(id),
			category_id INTEGER NOT NULL REFERENCES categories(id),
			display_name TEXT NOT NULL,
			price TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			embedding_hash TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS items_fts USING fts5(
			item_id UNINDEXED, name, content=''
		)`,
		`CREATE TABLE IF NOT EXISTS item_embeddings (
			item_id INTEGER PRIMARY KEY REFERENCES items(id),
			vector TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS roles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			permissions TEXT NOT NULL DEFAULT '{}',
			can_approve_changes INTEGER NOT NULL DEFAULT 0,
			can_manage_users INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			role_id INTEGER NOT NULL REFERENCES roles(id),
			storno_daily_limit TEXT NOT NULL DEFAULT '0',
			storno_emergency_limit TEXT NOT NULL DEFAULT '0',
			storno_used_today TEXT NOT NULL DEFAULT '0',
			trust_score REAL NOT NULL DEFAULT 50,
			is_active INTEGER NOT NULL DEFAULT 1,
			force_password_change INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS active_transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uuid TEXT NOT NULL UNIQUE,
			status TEXT NOT NULL,
			resolution_status TEXT NOT NULL DEFAULT 'none',
			user_id TEXT NOT NULL,
			business_date TEXT NOT NULL,
			total_amount TEXT NOT NULL DEFAULT '0',
			tax_amount TEXT NOT NULL DEFAULT '0',
			payment_type TEXT,
			payment_amount TEXT,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS active_transaction_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			active_transaction_id INTEGER NOT NULL REFERENCES active_transactions(id),
			item_id TEXT NOT NULL,
			quantity TEXT NOT NULL,
			unit_price TEXT NOT NULL,
			total_price TEXT NOT NULL,
			tax_rate TEXT NOT NULL,
			tax_amount TEXT NOT NULL,
			parent_transaction_item_id INTEGER,
			notes TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_items_by_tx ON active_transaction_items(active_transaction_id)`,
		`CREATE TABLE IF NOT EXISTS fiscal_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			transaction_uuid TEXT NOT NULL,
			event_type TEXT NOT NULL,
			user_id TEXT,
			payload TEXT NOT NULL,
			signature TEXT,
			signature_counter INTEGER,
			timestamp_utc TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fiscal_log_tx ON fiscal_log(transaction_uuid)`,
		`CREATE TABLE IF NOT EXISTS operational_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			transaction_uuid TEXT NOT NULL,
			event_type TEXT NOT NULL,
			user_id TEXT,
			payload TEXT NOT NULL,
			timestamp_utc TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_operational_log_tx ON operational_log(transaction_uuid)`,
		`CREATE TABLE IF NOT EXISTS pending_fiscal_operations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			operation_id TEXT NOT NULL UNIQUE,
			status TEXT NOT NULL,
			transaction_uuid TEXT NOT NULL,
			request_payload TEXT NOT NULL,
			signed_payload TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pending_fiscal_status ON pending_fiscal_operations(status)`,
		`CREATE TABLE IF NOT EXISTS storno_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			transaction_id INTEGER NOT NULL,
			user_id TEXT NOT NULL,
			amount TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			is_emergency INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			credit_used TEXT NOT NULL DEFAULT '0',
			approver_id TEXT,
			notes TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS pending_changes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			ref_id INTEGER NOT NULL,
			priority TEXT NOT NULL,
			status TEXT NOT NULL,
			requested_by TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS layouts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			categories_snapshot BLOB NOT NULL,
			source_type TEXT NOT NULL DEFAULT '',
			is_active INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return nil
}

// ValidateSchema implements recovery.SchemaValidator (spec §4.5 step 1):
// every table this system depends on must exist before the recovery
// sequence proceeds.
func (s *Store) ValidateSchema(ctx context.Context) error {
	required := []string{
		"companies", "branches", "pos_devices", "categories", "items",
		"roles", "users", "active_transactions", "active_transaction_items",
		"fiscal_log", "operational_log", "pending_fiscal_operations",
		"storno_log", "pending_changes", "layouts",
	}
	for _, table := range required {
		var name string
		err := s.db.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err == sql.ErrNoRows {
			return fmt.Errorf("required table %q is missing", table)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
