package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/BTreeMap/SalesCoach/internal/auth"
	"github.com/BTreeMap/SalesCoach/internal/flow"
)

// DefaultAddr is the loopback address the callback server binds to.
const DefaultAddr = "127.0.0.1:8765"

// Callback paths served on the loopback origin.
const (
	PathAuthCallback  = auth.CallbackPath
	PathPaymentReturn = "/payments/return"
	PathPaymentCancel = "/payments/cancel"
	PathMediaError    = "/media/error"
	PathHealth        = "/healthz"
)

const shutdownTimeout = 5 * time.Second

// EventKind identifies what a callback delivered.
type EventKind string

const (
	EventLoggedIn         EventKind = "logged-in"
	EventLoginFailed      EventKind = "login-failed"
	EventPaymentResult    EventKind = "payment-result"
	EventPaymentCancelled EventKind = "payment-cancelled"
	EventMediaError       EventKind = "media-error"
)

// Event is published to the waiting command for every completed callback.
type Event struct {
	Kind    EventKind
	Payment flow.PaymentOutcome
	Media   flow.MediaError
	Message string
	Err     error
}

// Opts holds configuration for the callback server.
type Opts struct {
	Addr     string
	Session  *auth.Session
	Payments *flow.PaymentChecker
}

// Option configures the callback server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithSession enables provider login callbacks.
func WithSession(s *auth.Session) Option {
	return func(o *Opts) { o.Session = s }
}

// WithPaymentChecker enables checkout return callbacks.
func WithPaymentChecker(p *flow.PaymentChecker) Option {
	return func(o *Opts) { o.Payments = p }
}

// Server is the loopback HTTP server.
type Server struct {
	addr     string
	session  *auth.Session
	payments *flow.PaymentChecker
	events   chan Event
	mux      *http.ServeMux

	mu       sync.Mutex
	state    string
	listener net.Listener
	ctx      context.Context
}

// NewServer creates a server. Nothing is bound until Listen is called.
func NewServer(opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Server{
		addr:     cfg.Addr,
		session:  cfg.Session,
		payments: cfg.Payments,
		events:   make(chan Event, 8),
		mux:      http.NewServeMux(),
		ctx:      context.Background(),
	}
	s.mux.HandleFunc(PathAuthCallback, s.authCallbackHandler)
	s.mux.HandleFunc(PathPaymentReturn, s.paymentReturnHandler)
	s.mux.HandleFunc(PathPaymentCancel, s.paymentCancelHandler)
	s.mux.HandleFunc(PathMediaError, s.mediaErrorHandler)
	s.mux.HandleFunc(PathHealth, s.healthHandler)
	return s
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Events delivers callback results.
func (s *Server) Events() <-chan Event {
	return s.events
}

// ExpectState sets the nonce that the next login callback must carry.
func (s *Server) ExpectState(state string) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Listen binds the listen address. It is separate from Serve so that callers know the
// origin before redirecting the user anywhere.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to bind callback server on %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	slog.Debug("Server.Listen: bound", "addr", ln.Addr().String())
	return nil
}

// Origin returns the base URL of the loopback origin.
func (s *Server) Origin() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return "http://" + s.listener.Addr().String()
	}
	return "http://" + s.addr
}

// URL returns the absolute URL of a path on the loopback origin.
func (s *Server) URL(path string) string {
	return s.Origin() + path
}

// Serve handles requests until ctx is cancelled. Listen is called if needed.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.ctx = ctx
	s.mu.Unlock()
	if ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
		s.mu.Lock()
		ln = s.listener
		s.mu.Unlock()
	}

	srv := &http.Server{Handler: s.mux, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	slog.Info("Server.Serve: callback server running", "origin", s.Origin())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Server.Serve: shutdown failed", "error", err)
		}
		return nil
	}
}

func (s *Server) publish(e Event) {
	select {
	case s.events <- e:
	default:
		slog.Warn("Server.publish: event dropped, no reader", "kind", e.Kind)
	}
}

func (s *Server) baseContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}
