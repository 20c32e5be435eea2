// Package storage provides persistent storage using SQLite.
// Only public data is stored: issued watch addresses and broadcast attempts.
// Mnemonics, seeds and private keys never reach the database.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNetworkMismatch is returned when a database created for one network is
// opened for another.
var ErrNetworkMismatch = errors.New("database belongs to another network")

// Storage provides persistent storage for the wallet service.
type Storage struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Config holds storage configuration.
type Config struct {
	DataDir string
}

// DBFileName is the database file created inside the data directory.
const DBFileName = "dashwallet.db"

// New creates a new Storage instance.
func New(cfg *Config) (*Storage, error) {
	dataDir := expandPath(cfg.DataDir)

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DBFileName)

	// Open database
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

// Path returns the database file path.
func (s *Storage) Path() string {
	return s.dbPath
}

func (s *Storage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT,
		updated_at INTEGER
	);

	-- Addresses handed out and imported into the node as watch-only
	CREATE TABLE IF NOT EXISTS watch_addresses (
		address TEXT PRIMARY KEY,
		network TEXT NOT NULL,
		xpub_fingerprint TEXT NOT NULL,
		path TEXT NOT NULL,
		label TEXT,
		imported INTEGER NOT NULL DEFAULT 0,
		rescan INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		imported_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_watch_addresses_network ON watch_addresses(network);

	-- One row per sendrawtransaction attempt
	CREATE TABLE IF NOT EXISTS broadcasts (
		id TEXT PRIMARY KEY,
		network TEXT NOT NULL,
		txid TEXT NOT NULL,
		raw_tx TEXT NOT NULL,
		source TEXT NOT NULL,
		destination TEXT NOT NULL,
		amount INTEGER NOT NULL,
		fee INTEGER NOT NULL,
		inputs INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		error TEXT,
		node_txid TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_broadcasts_status ON broadcasts(status);
	CREATE INDEX IF NOT EXISTS idx_broadcasts_txid ON broadcasts(txid);
	`

	_, err := s.db.Exec(schema)
	return err
}

// GetSetting returns a setting value, or "" if unset.
func (s *Storage) GetSetting(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value sql.NullString
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value.String, nil
}

// SetSetting stores a setting value.
func (s *Storage) SetSetting(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().Unix())
	return err
}

// BindNetwork records network on first use and fails with ErrNetworkMismatch
// if the database was created for a different one.
func (s *Storage) BindNetwork(network string) error {
	current, err := s.GetSetting("network")
	if err != nil {
		return fmt.Errorf("failed to read network setting: %w", err)
	}

	switch current {
	case "":
		return s.SetSetting("network", network)
	case network:
		return nil
	default:
		return fmt.Errorf("%w: %s, opened for %s", ErrNetworkMismatch, current, network)
	}
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
