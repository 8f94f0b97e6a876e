package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Tokens is the locally persisted credential pair.
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Empty reports whether there is nothing to resume a session from.
func (t Tokens) Empty() bool {
	return t.AccessToken == "" && t.RefreshToken == ""
}

// TokenStore persists tokens across process restarts. Implementations must
// be safe for concurrent use; Clear on an empty store is a no-op.
type TokenStore interface {
	Load() (Tokens, error)
	Save(tokens Tokens) error
	Clear() error
}

// MemoryTokenStore keeps tokens in process memory only. Sessions do not
// survive a restart; suitable for tests and short-lived tools.
type MemoryTokenStore struct {
	mu     sync.Mutex
	tokens Tokens
}

// NewMemoryTokenStore returns an empty in-memory store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (s *MemoryTokenStore) Load() (Tokens, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens, nil
}

func (s *MemoryTokenStore) Save(tokens Tokens) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = tokens
	return nil
}

func (s *MemoryTokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = Tokens{}
	return nil
}

// FileTokenStore persists tokens as a 0600 JSON file, written atomically
// via rename so a crash never leaves a truncated file.
type FileTokenStore struct {
	mu   sync.Mutex
	path string
}

// NewFileTokenStore stores tokens at path. The parent directory is created
// on the first Save.
func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

func (s *FileTokenStore) Load() (Tokens, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Tokens{}, nil
		}
		return Tokens{}, fmt.Errorf("client: read token file: %w", err)
	}

	var tokens Tokens
	if err := json.Unmarshal(raw, &tokens); err != nil {
		// A corrupt file is treated as logged out, not fatal.
		return Tokens{}, nil
	}
	return tokens, nil
}

func (s *FileTokenStore) Save(tokens Tokens) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("client: create token dir: %w", err)
	}

	raw, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("client: encode tokens: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("client: write token file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("client: replace token file: %w", err)
	}
	return nil
}

func (s *FileTokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("client: remove token file: %w", err)
	}
	return nil
}
