// Package localstore is the workstation-local durable cache for a gate
// console. It survives process restarts so a console on a slow network can
// show the last known role while the authoritative lookup is in flight.
package localstore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"parkgate/session"
	"parkgate/types"
)

const roleKey = "user_role"

// Store is a SQLite-backed key/value cache.
type Store struct {
	db *sql.DB
}

var _ session.RoleCache = (*Store)(nil)

// Open creates or opens the cache database at the given path and runs the
// idempotent schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("error creating cache directory: %v", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("error opening cache: %v", err)
	}
	db.SetMaxOpenConns(1) // SQLite handles one writer at a time

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS cache (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating cache schema: %v", err)
	}

	return &Store{db: db}, nil
}

// ReadRole returns the cached role, if one is stored and valid.
func (s *Store) ReadRole() (types.Role, bool) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM cache WHERE key = ?`, roleKey).Scan(&value)
	if err != nil {
		return types.RoleUnknown, false
	}
	role := types.Role(value)
	if !role.Known() {
		return types.RoleUnknown, false
	}
	return role, true
}

func (s *Store) WriteRole(role types.Role) error {
	_, err := s.db.Exec(`INSERT INTO cache (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		roleKey, string(role), time.Now().Unix())
	return err
}

// Clear removes the cached role. Called on sign-out.
func (s *Store) Clear() error {
	_, err := s.db.Exec(`DELETE FROM cache WHERE key = ?`, roleKey)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}
