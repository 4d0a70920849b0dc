package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/SalesCoach/internal/models"
)

// credentialQueries holds the dialect-specific statements for the credentials table.
type credentialQueries struct {
	load   string
	upsert string
	clear  string
}

var sqliteQueries = credentialQueries{
	load: `SELECT access_token, user_json, saved_at FROM credentials WHERE profile = ?`,
	upsert: `INSERT INTO credentials (profile, access_token, user_json, saved_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(profile) DO UPDATE SET access_token = excluded.access_token, user_json = excluded.user_json, saved_at = excluded.saved_at`,
	clear: `DELETE FROM credentials WHERE profile = ?`,
}

var postgresQueries = credentialQueries{
	load: `SELECT access_token, user_json, saved_at FROM credentials WHERE profile = $1`,
	upsert: `INSERT INTO credentials (profile, access_token, user_json, saved_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (profile) DO UPDATE SET access_token = EXCLUDED.access_token, user_json = EXCLUDED.user_json, saved_at = EXCLUDED.saved_at`,
	clear: `DELETE FROM credentials WHERE profile = $1`,
}

// sqlTokenStore implements TokenStore on top of database/sql.
type sqlTokenStore struct {
	name    string
	db      *sql.DB
	profile string
	q       credentialQueries
}

// Load implements TokenStore.
func (s *sqlTokenStore) Load() (*models.Credentials, error) {
	var (
		token    string
		userJSON []byte
		savedAt  time.Time
	)
	err := s.db.QueryRow(s.q.load, s.profile).Scan(&token, &userJSON, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoCredentials
	}
	if err != nil {
		slog.Error(s.name+".Load: query failed", "profile", s.profile, "error", err)
		return nil, err
	}
	creds := &models.Credentials{AccessToken: token, SavedAt: savedAt.UTC()}
	if err := json.Unmarshal(userJSON, &creds.User); err != nil {
		return nil, fmt.Errorf("failed to decode stored user: %w", err)
	}
	return creds, nil
}

// Save implements TokenStore.
func (s *sqlTokenStore) Save(creds models.Credentials) error {
	if creds.AccessToken == "" {
		return fmt.Errorf("refusing to save empty access token")
	}
	if creds.SavedAt.IsZero() {
		creds.SavedAt = time.Now().UTC()
	}
	userJSON, err := json.Marshal(creds.User)
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}
	if _, err := s.db.Exec(s.q.upsert, s.profile, creds.AccessToken, string(userJSON), creds.SavedAt); err != nil {
		slog.Error(s.name+".Save: upsert failed", "profile", s.profile, "error", err)
		return err
	}
	slog.Debug(s.name+".Save: credentials saved", "profile", s.profile, "user_id", creds.User.ID)
	return nil
}

// Clear implements TokenStore.
func (s *sqlTokenStore) Clear() error {
	if _, err := s.db.Exec(s.q.clear, s.profile); err != nil {
		slog.Error(s.name+".Clear: delete failed", "profile", s.profile, "error", err)
		return err
	}
	return nil
}

// Close closes the database connection.
func (s *sqlTokenStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying database handle.
func (s *sqlTokenStore) DB() *sql.DB {
	return s.db
}
