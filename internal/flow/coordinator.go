package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/SalesCoach/internal/models"
)

// API is everything the Coordinator needs from the backend.
type API interface {
	SessionAPI
	StatusAPI
	FeedbackAPI
}

// Observer receives snapshots and notifications from a Coordinator.
type Observer interface {
	OnSnapshot(s Snapshot)
	OnNotify(level NotifyLevel, message string)
}

// ErrCoordinatorClosed is returned by operations on a closed Coordinator.
var ErrCoordinatorClosed = errors.New("coordinator closed")

// Opts holds configuration for a Coordinator.
type Opts struct {
	Timer            Timer
	Opener           Opener
	Observer         Observer
	PollInterval     time.Duration
	FeedbackAttempts int
	DemoDomains      []string
}

// Option defines a functional option for configuring a Coordinator.
type Option func(*Opts)

// WithTimer sets the timer driving both polling loops.
func WithTimer(t Timer) Option {
	return func(o *Opts) { o.Timer = t }
}

// WithOpener sets how the conversation surface is presented.
func WithOpener(op Opener) Option {
	return func(o *Opts) { o.Opener = op }
}

// WithObserver sets the receiver of snapshots and notifications.
func WithObserver(obs Observer) Option {
	return func(o *Opts) { o.Observer = obs }
}

// WithPollInterval overrides DefaultPollInterval for both loops.
func WithPollInterval(d time.Duration) Option {
	return func(o *Opts) { o.PollInterval = d }
}

// WithFeedbackAttempts overrides DefaultFeedbackAttempts.
func WithFeedbackAttempts(n int) Option {
	return func(o *Opts) { o.FeedbackAttempts = n }
}

// WithDemoDomains overrides DefaultDemoDomains.
func WithDemoDomains(domains []string) Option {
	return func(o *Opts) { o.DemoDomains = domains }
}

// Coordinator runs one practice session through the state machine. It feeds events from
// the Launcher, Watcher and Awaiter into Transition and carries out the resulting effects.
type Coordinator struct {
	api       API
	opts      Opts
	ownTimer  bool
	launcher  *Launcher
	dispatchM sync.Mutex

	mu      sync.Mutex
	snap    Snapshot
	changed chan struct{}
	closed  bool
	ctx     context.Context
	watcher *Watcher
	awaiter *Awaiter
}

// NewCoordinator creates a Coordinator. Without WithTimer it uses its own SimpleTimer.
func NewCoordinator(api API, opts ...Option) *Coordinator {
	cfg := Opts{PollInterval: DefaultPollInterval, FeedbackAttempts: DefaultFeedbackAttempts}
	for _, opt := range opts {
		opt(&cfg)
	}
	c := &Coordinator{api: api, opts: cfg, changed: make(chan struct{})}
	if c.opts.Timer == nil {
		c.opts.Timer = NewSimpleTimer()
		c.ownTimer = true
	}
	c.launcher = NewLauncher(api, cfg.DemoDomains)
	c.snap = NewSnapshot(cfg.FeedbackAttempts)
	return c
}

// Snapshot returns the current snapshot.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Launch validates cfg, creates the session and hands the user off to it. It returns once
// the session is awaiting its end (or failed to start); use Wait to block until the outcome.
func (c *Coordinator) Launch(ctx context.Context, cfg models.SimulationConfig) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrCoordinatorClosed
	}
	c.ctx = ctx
	c.mu.Unlock()

	if err := c.dispatch(Event{Type: EventLaunchRequested}); err != nil {
		return err
	}
	res, err := c.launcher.Launch(ctx, cfg)
	if err != nil {
		c.dispatch(Event{Type: EventLaunchFailed, Err: err})
		return err
	}
	return c.dispatch(Event{Type: EventLaunched, Conversation: res.Conversation, Handoff: res.Handoff})
}

// Resume attaches to an existing conversation, e.g. one launched by an earlier run.
func (c *Coordinator) Resume(ctx context.Context, conv *models.Conversation) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrCoordinatorClosed
	}
	c.ctx = ctx
	c.mu.Unlock()

	if err := c.dispatch(Event{Type: EventLaunchRequested}); err != nil {
		return err
	}
	if err := c.dispatch(Event{Type: EventLaunched, Conversation: conv, Handoff: HandoffFor(conv.ConversationURL, c.launcher.demoDomains)}); err != nil {
		return err
	}
	if conv.Status.IsEnded() {
		return c.dispatch(Event{Type: EventStatusObserved, Status: conv.Status})
	}
	return nil
}

// Run launches a session and waits for its outcome.
func (c *Coordinator) Run(ctx context.Context, cfg models.SimulationConfig) (Snapshot, error) {
	if err := c.Launch(ctx, cfg); err != nil {
		return c.Snapshot(), err
	}
	return c.Wait(ctx)
}

// Wait blocks until the session is ready, failed or out of feedback attempts.
func (c *Coordinator) Wait(ctx context.Context) (Snapshot, error) {
	for {
		c.mu.Lock()
		snap, ch, closed := c.snap, c.changed, c.closed
		c.mu.Unlock()

		if snap.State.IsTerminal() || snap.Exhausted {
			if snap.State == StateFailed {
				return snap, fmt.Errorf("simulation failed: %s", snap.Failure)
			}
			return snap, nil
		}
		if closed {
			return snap, ErrCoordinatorClosed
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}
}

// End ends the conversation on user request.
func (c *Coordinator) End() error {
	return c.dispatch(Event{Type: EventEndRequested})
}

// Reload restarts feedback polling with a fresh budget after exhaustion.
func (c *Coordinator) Reload() error {
	return c.dispatch(Event{Type: EventReloadRequested})
}

// Close stops every pending timer. The snapshot no longer changes afterwards.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	w, a := c.watcher, c.awaiter
	close(c.changed)
	c.mu.Unlock()

	if w != nil {
		w.Stop()
	}
	if a != nil {
		a.Stop()
	}
	if c.ownTimer {
		c.opts.Timer.Stop()
	}
	slog.Debug("Coordinator.Close: closed")
}

func (c *Coordinator) dispatch(e Event) error {
	c.dispatchM.Lock()
	defer c.dispatchM.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrCoordinatorClosed
	}
	prev := c.snap.State
	next, effects, err := Transition(c.snap, e)
	if err != nil {
		c.mu.Unlock()
		slog.Warn("Coordinator.dispatch: event rejected", "event", e.Type, "state", prev, "error", err)
		return err
	}
	c.snap = next
	close(c.changed)
	c.changed = make(chan struct{})
	c.mu.Unlock()

	if prev != next.State {
		slog.Debug("Coordinator.dispatch: state changed", "event", e.Type, "from", prev, "to", next.State)
	}
	if c.opts.Observer != nil {
		c.opts.Observer.OnSnapshot(next)
	}
	for _, eff := range effects {
		c.execute(eff, next)
	}
	return nil
}

// execute runs with dispatchM held; callbacks that dispatch must do so from timer
// goroutines, never synchronously. Close does not wait for dispatchM, so every effect
// re-checks it and pollers started here are stopped again if Close won the race.
func (c *Coordinator) execute(eff Effect, snap Snapshot) {
	if c.isClosed() {
		slog.Debug("Coordinator.execute: closed, skipping effect", "effect", eff.Type)
		return
	}
	ctx := c.context()
	switch eff.Type {
	case EffectNotify:
		c.notify(eff.Level, eff.Message)

	case EffectOpenExternal:
		if c.opts.Opener == nil {
			return
		}
		if err := c.opts.Opener.OpenExternal(eff.URL); err != nil {
			c.notify(NotifyWarning, fmt.Sprintf("Open this link to join the conversation: %s", eff.URL))
		}

	case EffectShowDemo:
		if c.opts.Opener != nil {
			c.opts.Opener.ShowDemo(snap.Conversation)
		}

	case EffectStartStatusPoll:
		w := c.newWatcher(snap)
		if w == nil {
			return
		}
		if err := w.Start(ctx); err != nil {
			slog.Error("Coordinator.execute: failed to start watcher", "error", err)
		}
		if c.isClosed() {
			w.Stop()
		}

	case EffectStopStatusPoll:
		if w := c.currentWatcher(); w != nil {
			w.Stop()
		}

	case EffectEndConversation:
		w := c.currentWatcher()
		if w == nil {
			return
		}
		if err := w.EndNow(ctx); err != nil {
			c.notify(NotifyWarning, "Could not end the conversation on the server; it will end on its own. Generating feedback anyway.")
		}

	case EffectTriggerFeedback:
		if a := c.ensureAwaiter(snap); a != nil {
			a.Trigger(ctx)
		}

	case EffectScheduleFeedbackPoll:
		a := c.ensureAwaiter(snap)
		if a == nil {
			return
		}
		if err := a.Poll(ctx); err != nil {
			slog.Error("Coordinator.execute: failed to start feedback polling", "error", err)
		}
		if c.isClosed() {
			a.Stop()
		}
	}
}

// onEnd runs on the watcher's timer goroutine for detected ends. Manual ends already went
// through the state machine before the remote call.
func (c *Coordinator) onEnd(source EndSource) {
	if source != EndDetected {
		return
	}
	c.dispatch(Event{Type: EventStatusObserved, Status: models.ConversationEnded})
}

func (c *Coordinator) newWatcher(snap Snapshot) *Watcher {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.watcher = NewWatcher(c.api, c.opts.Timer, snap.Conversation.ID, c.onEnd,
		WithWatchInterval(c.opts.PollInterval),
		WithWatchFailure(func(err error) { c.dispatch(Event{Type: EventRemoteFailed, Err: err}) }),
	)
	return c.watcher
}

// ensureAwaiter returns nil once the Coordinator is closed.
func (c *Coordinator) ensureAwaiter(snap Snapshot) *Awaiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	if c.awaiter != nil {
		return c.awaiter
	}
	c.awaiter = NewAwaiter(c.api, c.opts.Timer, snap.Conversation.ID,
		WithAwaiterInterval(c.opts.PollInterval),
		WithAwaiterAttempts(snap.MaxAttempts),
		WithAwaiterCallbacks(AwaiterCallbacks{
			OnMissing: func(attempt, _ int) {
				c.dispatch(Event{Type: EventFeedbackMissing, Attempt: attempt})
			},
			OnTriggerFailed: func(err error) {
				c.notify(NotifyWarning, "Could not request feedback generation; waiting for it anyway.")
			},
			OnReady: func(fb *models.Feedback) {
				c.dispatch(Event{Type: EventFeedbackObserved, Feedback: fb})
			},
			OnExhausted: func() {
				c.dispatch(Event{Type: EventFeedbackExhausted})
			},
			OnFailed: func(err error) {
				c.dispatch(Event{Type: EventRemoteFailed, Err: err})
			},
		}),
	)
	return c.awaiter
}

func (c *Coordinator) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Coordinator) currentWatcher() *Watcher {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.watcher
}

func (c *Coordinator) context() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

func (c *Coordinator) notify(level NotifyLevel, message string) {
	if c.isClosed() {
		return
	}
	switch level {
	case NotifyError:
		slog.Error("Coordinator: " + message)
	case NotifyWarning:
		slog.Warn("Coordinator: " + message)
	default:
		slog.Info("Coordinator: " + message)
	}
	if c.opts.Observer != nil {
		c.opts.Observer.OnNotify(level, message)
	}
}
