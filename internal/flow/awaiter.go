package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/SalesCoach/internal/models"
	"github.com/BTreeMap/SalesCoach/internal/rpc"
)

// ErrFeedbackExhausted is returned by Await when the attempt budget ran out.
var ErrFeedbackExhausted = errors.New("feedback not available after all attempts")

// FeedbackAPI triggers and fetches feedback.
type FeedbackAPI interface {
	GenerateFeedback(ctx context.Context, conversationID int64) (*models.GenerateFeedbackResult, error)
	GetFeedback(ctx context.Context, conversationID int64) (*models.Feedback, error)
}

// AwaiterCallbacks receive the progress of an Awaiter. All fields are optional.
type AwaiterCallbacks struct {
	// OnMissing is called after each unsuccessful attempt, before exhaustion.
	OnMissing func(attempt, maxAttempts int)
	// OnTriggerFailed is called when the generation trigger fails; polling continues.
	OnTriggerFailed func(err error)
	OnReady         func(fb *models.Feedback)
	OnExhausted     func()
	// OnFailed is called when polling cannot continue, e.g. the timer refused the next attempt.
	OnFailed func(err error)
}

// AwaiterOption configures an Awaiter.
type AwaiterOption func(*Awaiter)

// WithAwaiterInterval overrides DefaultPollInterval.
func WithAwaiterInterval(d time.Duration) AwaiterOption {
	return func(a *Awaiter) { a.interval = d }
}

// WithAwaiterAttempts overrides DefaultFeedbackAttempts.
func WithAwaiterAttempts(n int) AwaiterOption {
	return func(a *Awaiter) { a.maxAttempts = n }
}

// WithAwaiterCallbacks sets the progress callbacks.
func WithAwaiterCallbacks(cb AwaiterCallbacks) AwaiterOption {
	return func(a *Awaiter) { a.callbacks = cb }
}

// WithReload sets the question asked by Await when a polling run is exhausted. A true
// answer starts a run with a fresh budget; generation is not requested again.
func WithReload(fn func() bool) AwaiterOption {
	return func(a *Awaiter) { a.reload = fn }
}

// Awaiter obtains the feedback of an ended conversation. It triggers generation and
// then polls with a bounded budget; an empty or failed attempt is not an error.
type Awaiter struct {
	api            FeedbackAPI
	conversationID int64
	interval       time.Duration
	maxAttempts    int
	callbacks      AwaiterCallbacks
	reload         func() bool
	poller         *BoundedPoller

	mu       sync.Mutex
	feedback *models.Feedback
}

// NewAwaiter creates an Awaiter for one conversation.
func NewAwaiter(api FeedbackAPI, timer Timer, conversationID int64, opts ...AwaiterOption) *Awaiter {
	a := &Awaiter{
		api:            api,
		conversationID: conversationID,
		interval:       DefaultPollInterval,
		maxAttempts:    DefaultFeedbackAttempts,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.poller = NewBoundedPoller(fmt.Sprintf("feedback-%d", conversationID), timer, a.interval, a.maxAttempts,
		WithProgress(a.missing))
	return a
}

// MaxAttempts returns the attempt budget of one polling run.
func (a *Awaiter) MaxAttempts() int {
	return a.poller.MaxAttempts()
}

// Trigger asks the backend to generate feedback. A failure is reported through
// OnTriggerFailed and returned, but callers should keep polling since the server may
// already be generating.
func (a *Awaiter) Trigger(ctx context.Context) error {
	res, err := a.api.GenerateFeedback(ctx, a.conversationID)
	if err != nil {
		slog.Warn("Awaiter.Trigger: feedback generation request failed", "conversation_id", a.conversationID, "error", err)
		if a.callbacks.OnTriggerFailed != nil {
			a.callbacks.OnTriggerFailed(err)
		}
		return err
	}
	slog.Debug("Awaiter.Trigger: feedback generation requested", "conversation_id", a.conversationID, "status", res.Status)
	return nil
}

// Poll starts a polling run with a full budget. Reloading after exhaustion is a new Poll.
func (a *Awaiter) Poll(ctx context.Context) error {
	return a.poller.Start(ctx, a.attempt, a.finish)
}

// Start triggers generation and starts polling.
func (a *Awaiter) Start(ctx context.Context) error {
	a.Trigger(ctx)
	return a.Poll(ctx)
}

// Stop cancels any pending attempt. An answer that arrives after Stop is not reported.
func (a *Awaiter) Stop() {
	a.poller.Stop()
}

// attempt only records what it found; callbacks run from the poller once it has
// confirmed the run was not stopped while the request was in flight.
func (a *Awaiter) attempt(ctx context.Context, n int) (bool, error) {
	fb, err := a.api.GetFeedback(ctx, a.conversationID)
	switch {
	case err == nil && !fb.IsEmpty():
		a.mu.Lock()
		a.feedback = fb
		a.mu.Unlock()
		return true, nil
	case err == nil, errors.Is(err, rpc.ErrFeedbackNotReady):
		slog.Debug("Awaiter: feedback not ready", "conversation_id", a.conversationID, "attempt", n, "max_attempts", a.maxAttempts)
	default:
		slog.Warn("Awaiter: feedback request failed", "conversation_id", a.conversationID, "attempt", n, "error", err)
	}
	return false, nil
}

func (a *Awaiter) missing(attempt, maxAttempts int) {
	if a.callbacks.OnMissing != nil {
		a.callbacks.OnMissing(attempt, maxAttempts)
	}
}

func (a *Awaiter) finish(res PollResult) {
	switch res.Outcome {
	case PollSucceeded:
		a.mu.Lock()
		fb := a.feedback
		a.mu.Unlock()
		slog.Info("Awaiter: feedback available", "conversation_id", a.conversationID, "attempt", res.Attempts)
		if a.callbacks.OnReady != nil {
			a.callbacks.OnReady(fb)
		}
	case PollExhausted:
		slog.Warn("Awaiter: feedback not available after all attempts", "conversation_id", a.conversationID, "attempts", res.Attempts)
		if a.callbacks.OnExhausted != nil {
			a.callbacks.OnExhausted()
		}
	case PollFailed:
		slog.Error("Awaiter: feedback polling failed", "conversation_id", a.conversationID, "attempts", res.Attempts, "error", res.Err)
		if a.callbacks.OnFailed != nil {
			a.callbacks.OnFailed(res.Err)
		}
	}
}

// Await triggers generation and blocks until the feedback is available, the budget is
// exhausted (ErrFeedbackExhausted), polling fails or ctx is done.
func Await(ctx context.Context, api FeedbackAPI, timer Timer, conversationID int64, opts ...AwaiterOption) (*models.Feedback, error) {
	type outcome struct {
		fb  *models.Feedback
		err error
	}
	ch := make(chan outcome, 1)

	base := &Awaiter{}
	for _, opt := range opts {
		opt(base)
	}
	user := base.callbacks

	cb := user
	cb.OnReady = func(fb *models.Feedback) {
		if user.OnReady != nil {
			user.OnReady(fb)
		}
		ch <- outcome{fb: fb}
	}
	cb.OnExhausted = func() {
		if user.OnExhausted != nil {
			user.OnExhausted()
		}
		ch <- outcome{err: ErrFeedbackExhausted}
	}
	cb.OnFailed = func(err error) {
		if user.OnFailed != nil {
			user.OnFailed(err)
		}
		ch <- outcome{err: fmt.Errorf("failed to poll feedback: %w", err)}
	}

	a := NewAwaiter(api, timer, conversationID, append(opts, WithAwaiterCallbacks(cb))...)
	defer a.Stop()
	if err := a.Start(ctx); err != nil {
		return nil, err
	}
	for {
		select {
		case o := <-ch:
			if errors.Is(o.err, ErrFeedbackExhausted) && a.reload != nil && a.reload() {
				slog.Debug("Await: polling again", "conversation_id", conversationID)
				if err := a.Poll(ctx); err != nil {
					return nil, err
				}
				continue
			}
			return o.fb, o.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
