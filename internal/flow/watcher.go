package flow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BTreeMap/SalesCoach/internal/models"
	"github.com/BTreeMap/SalesCoach/internal/rpc"
)

// StatusAPI reads and ends remote conversations.
type StatusAPI interface {
	GetConversation(ctx context.Context, conversationID int64) (*models.Conversation, error)
	EndConversation(ctx context.Context, conversationID int64) (*models.Conversation, error)
}

// EndSource tells how the end of a conversation was noticed.
type EndSource string

const (
	EndDetected EndSource = "detected"
	EndManual   EndSource = "manual"
)

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatchInterval overrides DefaultPollInterval.
func WithWatchInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.interval = d }
}

// WithWatchFailure sets the handler for failures that make further polling pointless,
// such as an expired session.
func WithWatchFailure(fn func(error)) WatcherOption {
	return func(w *Watcher) { w.onFailure = fn }
}

// Watcher polls a conversation until it ends and runs the end handler exactly once,
// whether the end is detected by polling or requested by the user.
type Watcher struct {
	api            StatusAPI
	timer          Timer
	conversationID int64
	interval       time.Duration
	onEnd          func(EndSource)
	onFailure      func(error)

	// ended is the end latch; the first CompareAndSwap wins.
	ended atomic.Bool

	mu      sync.Mutex
	stopped bool
	timerID string
}

// NewWatcher creates a Watcher for one conversation.
func NewWatcher(api StatusAPI, timer Timer, conversationID int64, onEnd func(EndSource), opts ...WatcherOption) *Watcher {
	w := &Watcher{
		api:            api,
		timer:          timer,
		conversationID: conversationID,
		interval:       DefaultPollInterval,
		onEnd:          onEnd,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Ended reports whether the end latch is set.
func (w *Watcher) Ended() bool {
	return w.ended.Load()
}

// Start schedules the first status poll one interval from now.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return fmt.Errorf("watcher for conversation %d is stopped", w.conversationID)
	}
	slog.Debug("Watcher.Start: watching conversation", "conversation_id", w.conversationID, "interval", w.interval)
	return w.scheduleLocked(ctx)
}

// Stop cancels the pending poll. An end that a poll has not committed to before Stop
// returns is never reported.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	w.cancelLocked()
}

// EndNow ends the conversation on user request. The latch is set before the remote call,
// so a poll that reports the end afterwards is ignored. The end handler runs even if the
// remote call fails, and the failure is returned.
func (w *Watcher) EndNow(ctx context.Context) error {
	if !w.ended.CompareAndSwap(false, true) {
		slog.Debug("Watcher.EndNow: end already handled", "conversation_id", w.conversationID)
		return nil
	}
	w.mu.Lock()
	w.cancelLocked()
	w.mu.Unlock()

	_, err := w.api.EndConversation(ctx, w.conversationID)
	if err != nil {
		slog.Error("Watcher.EndNow: failed to end conversation", "conversation_id", w.conversationID, "error", err)
		err = fmt.Errorf("failed to end conversation %d: %w", w.conversationID, err)
	} else {
		slog.Info("Watcher.EndNow: conversation ended", "conversation_id", w.conversationID)
	}
	w.runEnd(EndManual)
	return err
}

func (w *Watcher) poll(ctx context.Context) {
	w.mu.Lock()
	w.timerID = ""
	if w.stopped || w.ended.Load() {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	if ctx.Err() != nil {
		return
	}
	conv, err := w.api.GetConversation(ctx, w.conversationID)

	w.mu.Lock()
	if w.stopped || w.ended.Load() {
		w.mu.Unlock()
		return
	}
	switch {
	case err != nil && rpc.IsUnauthorized(err):
		w.stopped = true
		w.mu.Unlock()
		slog.Error("Watcher.poll: session rejected, stop watching", "conversation_id", w.conversationID, "error", err)
		if w.onFailure != nil {
			w.onFailure(err)
		}
		return
	case err != nil:
		slog.Warn("Watcher.poll: status request failed, retrying", "conversation_id", w.conversationID, "error", err)
	case conv.Status.IsEnded():
		// the latch is taken under mu so a Stop that returns first always wins
		won := w.ended.CompareAndSwap(false, true)
		w.mu.Unlock()
		if won {
			slog.Info("Watcher.poll: conversation ended", "conversation_id", w.conversationID)
			w.runEnd(EndDetected)
		}
		return
	default:
		slog.Debug("Watcher.poll: conversation still running", "conversation_id", w.conversationID, "status", conv.Status)
	}
	if err := w.scheduleLocked(ctx); err != nil {
		slog.Error("Watcher.poll: failed to schedule next poll", "conversation_id", w.conversationID, "error", err)
	}
	w.mu.Unlock()
}

func (w *Watcher) runEnd(source EndSource) {
	if w.onEnd != nil {
		w.onEnd(source)
	}
}

func (w *Watcher) scheduleLocked(ctx context.Context) error {
	id, err := w.timer.ScheduleAfter(w.interval, func() { w.poll(ctx) })
	if err != nil {
		return err
	}
	w.timerID = id
	return nil
}

func (w *Watcher) cancelLocked() {
	if w.timerID != "" {
		w.timer.Cancel(w.timerID)
		w.timerID = ""
	}
}
