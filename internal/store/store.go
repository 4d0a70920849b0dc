// Package store provides storage backends for SalesCoach.
//
// The only client state that is persisted is the authentication token together with
// the user it was issued for. It lives in a JSON file in the state directory by default,
// or in a SQLite or PostgreSQL database when a DSN is configured.
package store

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/BTreeMap/SalesCoach/internal/models"
)

// DefaultProfile is the profile name used when none is configured.
const DefaultProfile = "default"

// ErrNoCredentials is returned by Load when nothing has been saved.
var ErrNoCredentials = errors.New("no saved credentials")

// TokenStore persists the authentication token.
type TokenStore interface {
	Load() (*models.Credentials, error)
	Save(creds models.Credentials) error
	Clear() error
	Close() error
}

// Opts holds configuration options for store implementations.
type Opts struct {
	DSN     string
	Dir     string
	Profile string
}

// Option defines a function that configures Opts.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithDir sets the state directory used by the file store.
func WithDir(dir string) Option {
	return func(o *Opts) { o.Dir = dir }
}

// WithProfile selects the credentials profile.
func WithProfile(profile string) Option {
	return func(o *Opts) { o.Profile = profile }
}

// DetectDSNType returns "postgres" for PostgreSQL connection strings and "sqlite3"
// for everything else.
func DetectDSNType(dsn string) string {
	d := strings.TrimSpace(dsn)
	if strings.HasPrefix(d, "postgres://") || strings.HasPrefix(d, "postgresql://") {
		return "postgres"
	}
	// key=value connection strings
	if strings.Contains(d, "host=") || strings.Contains(d, "dbname=") || strings.Contains(d, "user=") {
		return "postgres"
	}
	return "sqlite3"
}

// Open returns the TokenStore selected by the options: a database store when a DSN is
// set, the file store otherwise.
func Open(opts ...Option) (TokenStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Debug("store.Open: using file token store", "dir", cfg.Dir)
		return NewFileTokenStore(opts...)
	}
	switch DetectDSNType(cfg.DSN) {
	case "postgres":
		slog.Debug("store.Open: using Postgres token store")
		return NewPostgresStore(opts...)
	default:
		slog.Debug("store.Open: using SQLite token store")
		return NewSQLiteStore(opts...)
	}
}

func profileOrDefault(p string) string {
	if p == "" {
		return DefaultProfile
	}
	return p
}
