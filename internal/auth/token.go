// Package auth manages the per-install API token the extension presents as a
// Bearer credential.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const tokenFileName = "token"

// TokenStore holds the current token and its file location.
type TokenStore struct {
	dir string

	mu    sync.RWMutex
	token string
}

// NewTokenStore returns a store rooted at configDir. Call Load before use.
func NewTokenStore(configDir string) *TokenStore {
	return &TokenStore{dir: configDir}
}

// Path is the token file location.
func (s *TokenStore) Path() string {
	return filepath.Join(s.dir, tokenFileName)
}

// Token returns the current token.
func (s *TokenStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Load reads the token file, or generates and persists a new 256-bit
// hex-encoded token if the file is missing or empty.
func (s *TokenStore) Load() (string, error) {
	data, err := os.ReadFile(s.Path())
	if err == nil {
		if token := strings.TrimSpace(string(data)); token != "" {
			s.set(token)
			return token, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("read token: %w", err)
	}
	return s.Rotate()
}

// Rotate generates a new token, replacing the existing one. Clients holding
// the old token are rejected from then on.
func (s *TokenStore) Rotate() (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	if err := writeToken(s.dir, s.Path(), token); err != nil {
		return "", err
	}
	s.set(token)
	return token, nil
}

func (s *TokenStore) set(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func writeToken(configDir, path, token string) error {
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(token), 0600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}
