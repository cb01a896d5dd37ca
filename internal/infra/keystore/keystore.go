// Package keystore persists session tokens across restarts in a local SQLite
// database. Token material is sealed with AES-256-GCM under a key derived from
// a per-device secret, so the database file alone is not enough to hijack a
// session.
package keystore

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	_ "modernc.org/sqlite"

	"github.com/EmerBV/figrclub-sub001/internal/core/domain"
	"github.com/EmerBV/figrclub-sub001/internal/core/port"
)

const tokenKey = "session_tokens"

const schema = `
CREATE TABLE IF NOT EXISTS vault (
  key   TEXT PRIMARY KEY,
  value BLOB NOT NULL
);
`

// Store implements port.TokenStore on SQLite.
type Store struct {
	db     *sql.DB
	secret []byte
}

type storedTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ObtainedAt   int64  `json:"obtained_at"`
}

// Open opens (creating if necessary) the store at path, keyed by the device
// secret at secretPath. A missing secret file is created with fresh random
// material and mode 0600.
func Open(ctx context.Context, path, secretPath string) (*Store, error) {
	secret, err := loadOrCreateSecret(secretPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open keystore: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init keystore schema: %w", err)
	}

	return &Store{db: db, secret: secret}, nil
}

// NewWithDB wraps an existing database handle; used by tests.
func NewWithDB(ctx context.Context, db *sql.DB, secret []byte) (*Store, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("init keystore schema: %w", err)
	}
	return &Store{db: db, secret: secret}, nil
}

// Load returns the stored token pair, or port.ErrNoStoredSession when the
// vault is empty.
func (s *Store) Load(ctx context.Context) (domain.TokenPair, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM vault WHERE key = ?`, tokenKey).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.TokenPair{}, port.ErrNoStoredSession
	}
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("load tokens: %w", err)
	}

	var stored storedTokens
	if err := open(blob, s.secret, &stored); err != nil {
		// An undecryptable vault (rotated secret, corrupted file) is treated
		// as no session rather than a hard failure.
		return domain.TokenPair{}, port.ErrNoStoredSession
	}

	pair := domain.TokenPair{
		AccessToken:  stored.AccessToken,
		RefreshToken: stored.RefreshToken,
	}
	if stored.ObtainedAt > 0 {
		pair.ObtainedAt = time.Unix(stored.ObtainedAt, 0).UTC()
	}
	if pair.Empty() {
		return domain.TokenPair{}, port.ErrNoStoredSession
	}

	return pair, nil
}

// Save seals and upserts the token pair.
func (s *Store) Save(ctx context.Context, tokens domain.TokenPair) error {
	if tokens.Empty() {
		return fmt.Errorf("refusing to store empty token pair")
	}

	blob, err := seal(storedTokens{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ObtainedAt:   tokens.ObtainedAt.Unix(),
	}, s.secret)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO vault (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, tokenKey, blob)
	if err != nil {
		return fmt.Errorf("save tokens: %w", err)
	}
	return nil
}

// Clear removes any stored tokens. Clearing an empty vault is a no-op.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM vault WHERE key = ?`, tokenKey); err != nil {
		return fmt.Errorf("clear tokens: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func loadOrCreateSecret(path string) ([]byte, error) {
	secret, err := os.ReadFile(path)
	if err == nil && len(secret) >= 16 {
		return secret, nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read device secret: %w", err)
	}

	secret = make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate device secret: %w", err)
	}
	if err := os.WriteFile(path, secret, 0o600); err != nil {
		return nil, fmt.Errorf("write device secret: %w", err)
	}
	return secret, nil
}
