package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema versions (PRAGMA user_version):
// 1 - accounts, transactions, events
// 2 - events(account, seq) index for per-account event reads
// 3 - unique transactions(signer, nonce)
const currentSchemaVersion = 3

var (
	// ErrAccountNotFound is returned when no account has the address.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountExists is returned when creating an account whose address
	// is already taken.
	ErrAccountExists = errors.New("account already exists")

	// ErrSizeMismatch is returned when a buffer's length differs from the
	// size allocated for its account.
	ErrSizeMismatch = errors.New("account data size mismatch")

	// ErrDuplicateTx is returned when the log already holds a transaction
	// with the same signer and nonce.
	ErrDuplicateTx = errors.New("duplicate transaction")
)

// Store is the durable home of accounts and logs.
// Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at path and applies pragmas and
// migrations. Use ":memory:" for a private in-memory database.
//
// Open is idempotent: reopening an existing database is safe.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// One connection: SQLite has a single writer, and an in-memory
	// database exists only on the connection that created it.
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

// DB returns the underlying sql.DB.
// Prefer Store methods; this exists for diagnostics and tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

func applyPragmas(db *sql.DB) error {
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("%q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return runMigrations(db)
}

// runMigrations applies incremental migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 2 {
		if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_events_account ON events(account, seq)`); err != nil {
			return fmt.Errorf("migrate to v2: %w", err)
		}
	}

	if version < 3 {
		if _, err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_signer_nonce ON transactions(signer, nonce)`); err != nil {
			return fmt.Errorf("migrate to v3: %w", err)
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// HasNonce reports whether the log holds a transaction from signer with
// nonce, committed or failed.
func (s *Store) HasNonce(ctx context.Context, signer string, nonce int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE signer = ? AND nonce = ?`,
		signer, nonce,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("has nonce: %w", err)
	}
	return n > 0, nil
}

// MaxSeq returns the highest logical-clock value recorded in the
// transaction log, or 0 for an empty log.
func (s *Store) MaxSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM transactions`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("max seq: %w", err)
	}
	return seq.Int64, nil
}
