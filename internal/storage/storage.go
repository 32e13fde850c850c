// Package storage provides persistent storage using SQLite.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Storage provides persistent storage for the crosslock relayer.
type Storage struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Config holds storage configuration.
type Config struct {
	DataDir string
}

// DatabaseFile is the name of the SQLite file inside the data directory.
const DatabaseFile = "crosslock.db"

// New creates a new Storage instance.
func New(cfg *Config) (*Storage, error) {
	dataDir := expandPath(cfg.DataDir)

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DatabaseFile)

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Storage{
		db:     db,
		dbPath: dbPath,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *Storage) DB() *sql.DB {
	return s.db
}

// Path returns the database file path.
func (s *Storage) Path() string {
	return s.dbPath
}

// initSchema creates all database tables.
func (s *Storage) initSchema() error {
	schema := `
	-- Swap checkpoints, one row per relayer-driven swap
	CREATE TABLE IF NOT EXISTS swaps (
		id TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		maker TEXT NOT NULL,
		secret_hash TEXT NOT NULL,
		maker_chain TEXT NOT NULL,
		maker_escrow_id INTEGER NOT NULL,
		counter_chain TEXT NOT NULL,
		auction_id INTEGER NOT NULL,
		winner TEXT,
		sold_price INTEGER DEFAULT 0,
		failure_reason TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		completed_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_swaps_state ON swaps(state);
	CREATE INDEX IF NOT EXISTS idx_swaps_secret_hash ON swaps(secret_hash);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_swaps_maker_escrow ON swaps(maker_chain, maker_escrow_id);

	-- Escrow legs of a swap (maker leg on chain A, resolver leg on chain B)
	CREATE TABLE IF NOT EXISTS swap_legs (
		id TEXT PRIMARY KEY,
		swap_id TEXT NOT NULL,
		role TEXT NOT NULL,                  -- 'maker' or 'resolver'
		chain TEXT NOT NULL,
		escrow_id INTEGER NOT NULL,
		amount INTEGER NOT NULL,
		creator TEXT NOT NULL,
		taker TEXT,
		rescue_time INTEGER NOT NULL,
		state TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		UNIQUE(swap_id, role),
		FOREIGN KEY (swap_id) REFERENCES swaps(id)
	);

	CREATE INDEX IF NOT EXISTS idx_swap_legs_swap ON swap_legs(swap_id);
	CREATE INDEX IF NOT EXISTS idx_swap_legs_state ON swap_legs(state);
	CREATE INDEX IF NOT EXISTS idx_swap_legs_escrow ON swap_legs(chain, escrow_id);

	-- Hash-lock secrets, preimage stored once revealed
	CREATE TABLE IF NOT EXISTS secrets (
		swap_id TEXT PRIMARY KEY,
		secret_hash TEXT NOT NULL,
		secret TEXT,
		source TEXT,                         -- 'maker' or 'chain'
		created_at INTEGER NOT NULL,
		revealed_at INTEGER,
		FOREIGN KEY (swap_id) REFERENCES swaps(id)
	);

	CREATE INDEX IF NOT EXISTS idx_secrets_hash ON secrets(secret_hash);

	-- Outbox of relayer submissions (assign_taker, withdraw, cancel)
	CREATE TABLE IF NOT EXISTS submissions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		submission_id TEXT NOT NULL UNIQUE,
		swap_id TEXT NOT NULL,
		chain TEXT NOT NULL,
		action TEXT NOT NULL,
		leg_role TEXT NOT NULL,
		escrow_id INTEGER NOT NULL,
		payload BLOB,
		deadline INTEGER DEFAULT 0,          -- chain time, 0 means none
		created_at INTEGER NOT NULL,
		retry_count INTEGER DEFAULT 0,
		last_attempt_at INTEGER,
		next_retry_at INTEGER NOT NULL,
		completed_at INTEGER,
		status TEXT NOT NULL DEFAULT 'pending',
		error_message TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_submissions_pending ON submissions(chain, status, next_retry_at);
	CREATE INDEX IF NOT EXISTS idx_submissions_swap ON submissions(swap_id);

	-- Audit log of swap transitions
	CREATE TABLE IF NOT EXISTS swap_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		swap_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		data TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_swap_events_swap ON swap_events(swap_id, id);

	-- Auction journal, replayed into the auction registry on startup
	CREATE TABLE IF NOT EXISTS auctions (
		id INTEGER PRIMARY KEY,
		escrow_id INTEGER NOT NULL,
		escrow_app_id TEXT,
		start_price INTEGER NOT NULL,
		min_price INTEGER NOT NULL,
		duration INTEGER NOT NULL,
		curve TEXT NOT NULL,
		creator TEXT NOT NULL,
		start_time INTEGER NOT NULL,
		taker TEXT NOT NULL,
		sold INTEGER DEFAULT 0,
		sold_price INTEGER DEFAULT 0,
		sold_at INTEGER DEFAULT 0,
		updated_at INTEGER NOT NULL
	);

	-- Counter escrows funded by the built-in resolver, tracked until
	-- registered as a swap leg or cancelled
	CREATE TABLE IF NOT EXISTS counter_escrows (
		swap_id TEXT PRIMARY KEY,
		chain TEXT NOT NULL,
		resolver TEXT NOT NULL,
		escrow_id INTEGER,
		state TEXT NOT NULL,
		reason TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_counter_escrows_state ON counter_escrows(state);

	-- Key/value settings
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return err
	}

	return s.runMigrations()
}

// runMigrations runs schema migrations for existing databases.
// Errors are ignored since columns may already exist.
func (s *Storage) runMigrations() error {
	migrations := []string{
		"ALTER TABLE secrets ADD COLUMN source TEXT",
		"ALTER TABLE auctions ADD COLUMN escrow_app_id TEXT",
	}

	for _, migration := range migrations {
		_, _ = s.db.Exec(migration)
	}

	return nil
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func timeToUnixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func unixOrZero(ts int64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0)
}
