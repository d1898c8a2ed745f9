// Package creds is the sole owner of the stored auth credentials. Tokens
// are encrypted at rest; plaintext copies live only for the duration of a
// single call and are never logged.
package creds

import (
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/adrg/xdg"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"

	keyFileName = "creds.key"
)

// ErrNotFound is returned when a requested credential is not stored.
var ErrNotFound = errors.New("credential not found")

// Gateway stores and retrieves the access/refresh token pair.
type Gateway struct {
	mu   sync.Mutex
	db   *sql.DB
	aead cipher.AEAD
}

// Open initializes the gateway on a shared database handle, creating its
// table and the machine-local key file if needed.
func Open(db *sql.DB) (*Gateway, error) {
	keyPath, err := xdg.StateFile(filepath.Join("vibra", keyFileName))
	if err != nil {
		return nil, err
	}
	return OpenWithKeyFile(db, keyPath)
}

// OpenWithKeyFile initializes the gateway with an explicit key file path.
func OpenWithKeyFile(db *sql.DB, keyPath string) (*Gateway, error) {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS credentials (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`); err != nil {
		return nil, err
	}

	key, err := loadOrCreateKey(keyPath)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}

	return &Gateway{db: db, aead: aead}, nil
}

// SetTokens stores both tokens, replacing any previous pair.
func (g *Gateway) SetTokens(accessToken, refreshToken string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.setLocked(keyAccessToken, accessToken); err != nil {
		return err
	}
	return g.setLocked(keyRefreshToken, refreshToken)
}

// AccessToken returns the stored access token, or ErrNotFound.
func (g *Gateway) AccessToken() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.getLocked(keyAccessToken)
}

// RefreshToken returns the stored refresh token, or ErrNotFound.
func (g *Gateway) RefreshToken() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.getLocked(keyRefreshToken)
}

// HasAccessToken reports whether an access token is stored.
func (g *Gateway) HasAccessToken() bool {
	_, err := g.AccessToken()
	return err == nil
}

// Clear removes both tokens. Safe to call when nothing is stored.
func (g *Gateway) Clear() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, err := g.db.Exec(`DELETE FROM credentials WHERE key IN (?, ?)`, keyAccessToken, keyRefreshToken)
	return err
}

func (g *Gateway) setLocked(key, value string) error {
	enc, err := g.encrypt(value)
	if err != nil {
		return err
	}
	_, err = g.db.Exec(`
		INSERT INTO credentials (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, enc)
	return err
}

func (g *Gateway) getLocked(key string) (string, error) {
	var enc string
	err := g.db.QueryRow(`SELECT value FROM credentials WHERE key = ?`, key).Scan(&enc)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return g.decrypt(enc)
}

func (g *Gateway) encrypt(plaintext string) (string, error) {
	nonce := make([]byte, g.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := g.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (g *Gateway) decrypt(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	if len(sealed) < g.aead.NonceSize() {
		return "", fmt.Errorf("stored credential too short")
	}
	nonce, ciphertext := sealed[:g.aead.NonceSize()], sealed[g.aead.NonceSize():]
	plaintext, err := g.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt credential: %w", err)
	}
	return string(plaintext), nil
}

// loadOrCreateKey reads the encryption key, generating one on first run.
// The key file is private to the current user.
func loadOrCreateKey(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err == nil && len(key) == chacha20poly1305.KeySize {
		return key, nil
	}

	key = make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, err
	}
	return key, nil
}
