// Package store persists captured session tokens in SQLite so a client can
// reconnect without re-pairing.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"wabridge/internal/client"
)

// ErrNotFound is returned when no session exists for a client ID.
var ErrNotFound = errors.New("session not found")

// SessionStore is a SQLite-backed store of session tokens keyed by client ID.
type SessionStore struct {
	db  *sql.DB
	mu  sync.Mutex
	log *zap.Logger
}

// Open initializes the SQLite database at the given path.
func Open(path string, log *zap.Logger) (*SessionStore, error) {
	if log == nil {
		log = zap.NewNop()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		log.Debug("failed to set sqlite busy_timeout", zap.Error(err))
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		log.Debug("failed to set sqlite journal_mode=WAL", zap.Error(err))
	}

	s := &SessionStore{db: db, log: log}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SessionStore) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			client_id     TEXT PRIMARY KEY,
			browser_id    TEXT NOT NULL,
			secret_bundle TEXT NOT NULL,
			token1        TEXT NOT NULL,
			token2        TEXT NOT NULL,
			updated_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`)
	return err
}

// Save upserts the session for a client.
func (s *SessionStore) Save(clientID string, session *client.Session) error {
	if session == nil {
		return fmt.Errorf("nil session")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO sessions (client_id, browser_id, secret_bundle, token1, token2, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(client_id) DO UPDATE SET
			browser_id = excluded.browser_id,
			secret_bundle = excluded.secret_bundle,
			token1 = excluded.token1,
			token2 = excluded.token2,
			updated_at = CURRENT_TIMESTAMP`,
		clientID, session.BrowserID, session.SecretBundle, session.Token1, session.Token2,
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", clientID, err)
	}
	s.log.Debug("session saved", zap.String("client", clientID))
	return nil
}

// Load returns the stored session for a client, or ErrNotFound.
func (s *SessionStore) Load(clientID string) (*client.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var session client.Session
	err := s.db.QueryRow(`
		SELECT browser_id, secret_bundle, token1, token2
		FROM sessions WHERE client_id = ?`, clientID,
	).Scan(&session.BrowserID, &session.SecretBundle, &session.Token1, &session.Token2)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", clientID, err)
	}
	return &session, nil
}

// Delete removes the stored session for a client. Deleting a missing
// session is not an error.
func (s *SessionStore) Delete(clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM sessions WHERE client_id = ?`, clientID); err != nil {
		return fmt.Errorf("delete session %s: %w", clientID, err)
	}
	return nil
}

// Close closes the database.
func (s *SessionStore) Close() error {
	return s.db.Close()
}
