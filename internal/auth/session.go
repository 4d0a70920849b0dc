// Package auth holds the authenticated session of the SalesCoach client.
//
// A Session is created once at startup from the token store and passed down to the
// commands that need it. Holding a token is treated as being authenticated; the token
// is not verified with the server until a remote call rejects it.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/SalesCoach/internal/models"
	"github.com/BTreeMap/SalesCoach/internal/store"
	"github.com/BTreeMap/SalesCoach/internal/util"
)

// DefaultProviderURL is the identity provider used for redirect login.
const DefaultProviderURL = "https://auth.emergentagent.com"

// CallbackPath is the path on the loopback origin that receives provider logins.
const CallbackPath = "/auth/callback"

// ErrNotAuthenticated is returned when a command needs a session and none is stored.
var ErrNotAuthenticated = errors.New("not logged in")

// ErrStateMismatch is returned when a provider callback carries an unexpected state nonce.
var ErrStateMismatch = errors.New("login state mismatch")

// Authenticator is the remote side of email/password authentication.
type Authenticator interface {
	Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error)
	Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error)
}

// Session is the token and user of the signed-in account.
type Session struct {
	store store.TokenStore
	mu    sync.RWMutex
	creds *models.Credentials
}

// NewSession loads the stored credentials. A missing token yields an unauthenticated
// session, not an error.
func NewSession(ts store.TokenStore) (*Session, error) {
	s := &Session{store: ts}
	creds, err := ts.Load()
	switch {
	case errors.Is(err, store.ErrNoCredentials):
		slog.Debug("Session.NewSession: no stored credentials")
	case err != nil:
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	default:
		s.creds = creds
		slog.Debug("Session.NewSession: restored session", "user_id", creds.User.ID)
	}
	return s, nil
}

// Authenticated reports whether a token is present.
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds != nil && s.creds.AccessToken != ""
}

// Require returns ErrNotAuthenticated when there is no token.
func (s *Session) Require() error {
	if !s.Authenticated() {
		return ErrNotAuthenticated
	}
	return nil
}

// Token returns the access token, or "" when signed out.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.creds == nil {
		return ""
	}
	return s.creds.AccessToken
}

// User returns the signed-in user.
func (s *Session) User() (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.creds == nil {
		return models.User{}, false
	}
	return s.creds.User, true
}

// Establish persists a token and makes it the current session.
func (s *Session) Establish(token string, user models.User) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("empty access token")
	}
	creds := models.Credentials{AccessToken: token, User: user, SavedAt: time.Now().UTC()}
	if err := s.store.Save(creds); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	s.mu.Lock()
	s.creds = &creds
	s.mu.Unlock()
	slog.Info("Session.Establish: signed in", "user_id", user.ID, "email", user.Email)
	return nil
}

// Logout clears the stored token. Logging out of a signed-out session is a no-op.
func (s *Session) Logout() error {
	if err := s.store.Clear(); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	s.mu.Lock()
	s.creds = nil
	s.mu.Unlock()
	slog.Info("Session.Logout: signed out")
	return nil
}

// LoginWithPassword signs in with email and password and stores the session.
func (s *Session) LoginWithPassword(ctx context.Context, api Authenticator, email, password string) (models.User, error) {
	if email == "" || password == "" {
		return models.User{}, fmt.Errorf("email and password are required")
	}
	resp, err := api.Login(ctx, models.LoginRequest{Email: email, Password: password})
	if err != nil {
		return models.User{}, fmt.Errorf("login failed: %w", err)
	}
	if err := s.Establish(resp.AccessToken, resp.User); err != nil {
		return models.User{}, err
	}
	return resp.User, nil
}

// Register creates an account and stores the resulting session.
func (s *Session) Register(ctx context.Context, api Authenticator, req models.RegisterRequest) (models.User, error) {
	if req.Name == "" || req.Email == "" || req.Password == "" {
		return models.User{}, fmt.Errorf("name, email and password are required")
	}
	resp, err := api.Register(ctx, req)
	if err != nil {
		return models.User{}, fmt.Errorf("registration failed: %w", err)
	}
	if err := s.Establish(resp.AccessToken, resp.User); err != nil {
		return models.User{}, err
	}
	return resp.User, nil
}

// NewState returns a nonce that ties a provider login to this run.
func NewState() string {
	return util.GenerateRandomID("st_", 32)
}

// LoginURL builds the identity provider URL that redirects back to callbackURL.
// The state nonce is carried on the callback URL so that the provider returns it.
func LoginURL(providerBase, callbackURL, state string) (string, error) {
	if providerBase == "" {
		providerBase = DefaultProviderURL
	}
	provider, err := url.Parse(providerBase)
	if err != nil || provider.Scheme == "" || provider.Host == "" {
		return "", fmt.Errorf("invalid provider URL %q", providerBase)
	}
	cb, err := url.Parse(callbackURL)
	if err != nil || cb.Scheme == "" || cb.Host == "" {
		return "", fmt.Errorf("invalid callback URL %q", callbackURL)
	}
	if state != "" {
		q := cb.Query()
		q.Set("state", state)
		cb.RawQuery = q.Encode()
	}
	provider.Path = strings.TrimSuffix(provider.Path, "/") + "/"
	provider.RawQuery = "redirect=" + url.QueryEscape(cb.String())
	return provider.String(), nil
}

// CompleteProviderLogin validates the callback parameters and stores the token.
func (s *Session) CompleteProviderLogin(wantState, gotState, token string, user models.User) error {
	if wantState == "" || gotState != wantState {
		slog.Warn("Session.CompleteProviderLogin: state mismatch")
		return ErrStateMismatch
	}
	return s.Establish(token, user)
}
