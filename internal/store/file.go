package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BTreeMap/SalesCoach/internal/models"
)

// File store permissions
const (
	// DefaultDirPermissions defines the default permissions for the state directory
	DefaultDirPermissions = 0700
	// TokenFilePermissions keeps the token readable by its owner only
	TokenFilePermissions = 0600
	// TokenFileName is the name of the token file inside the state directory
	TokenFileName = "token.json"
)

// FileTokenStore keeps credentials in a JSON file, one entry per profile.
type FileTokenStore struct {
	path    string
	profile string
	mu      sync.Mutex
}

// NewFileTokenStore creates a file store in the configured directory.
func NewFileTokenStore(opts ...Option) (*FileTokenStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("state directory not set")
	}
	if err := os.MkdirAll(cfg.Dir, DefaultDirPermissions); err != nil {
		slog.Error("FileTokenStore: failed to create state directory", "dir", cfg.Dir, "error", err)
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &FileTokenStore{path: filepath.Join(cfg.Dir, TokenFileName), profile: profileOrDefault(cfg.Profile)}, nil
}

// Path returns the token file path.
func (s *FileTokenStore) Path() string {
	return s.path
}

func (s *FileTokenStore) readAll() (map[string]models.Credentials, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]models.Credentials{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}
	all := map[string]models.Credentials{}
	if len(data) == 0 {
		return all, nil
	}
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("failed to parse token file %s: %w", s.path, err)
	}
	return all, nil
}

func (s *FileTokenStore) writeAll(all map[string]models.Credentials) error {
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, TokenFilePermissions); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace token file: %w", err)
	}
	return nil
}

// Load implements TokenStore.
func (s *FileTokenStore) Load() (*models.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.readAll()
	if err != nil {
		slog.Error("FileTokenStore.Load: failed", "path", s.path, "error", err)
		return nil, err
	}
	creds, ok := all[s.profile]
	if !ok || creds.AccessToken == "" {
		return nil, ErrNoCredentials
	}
	return &creds, nil
}

// Save implements TokenStore.
func (s *FileTokenStore) Save(creds models.Credentials) error {
	if creds.AccessToken == "" {
		return fmt.Errorf("refusing to save empty access token")
	}
	if creds.SavedAt.IsZero() {
		creds.SavedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.readAll()
	if err != nil {
		return err
	}
	all[s.profile] = creds
	if err := s.writeAll(all); err != nil {
		slog.Error("FileTokenStore.Save: failed", "path", s.path, "error", err)
		return err
	}
	slog.Debug("FileTokenStore.Save: credentials saved", "profile", s.profile, "user_id", creds.User.ID)
	return nil
}

// Clear implements TokenStore.
func (s *FileTokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.readAll()
	if err != nil {
		return err
	}
	if _, ok := all[s.profile]; !ok {
		return nil
	}
	delete(all, s.profile)
	if len(all) == 0 {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove token file: %w", err)
		}
		return nil
	}
	return s.writeAll(all)
}

// Close implements TokenStore.
func (s *FileTokenStore) Close() error { return nil }
