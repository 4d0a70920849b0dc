package flow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Polling defaults.
const (
	DefaultPollInterval     = 2 * time.Second
	DefaultFeedbackAttempts = 10
	DefaultPaymentAttempts  = 5
)

// ErrPollerRunning is returned when Start is called on a running poller.
var ErrPollerRunning = errors.New("poller already running")

// PollOutcome is how a bounded polling run finished.
type PollOutcome string

const (
	PollSucceeded PollOutcome = "succeeded"
	PollExhausted PollOutcome = "exhausted"
	PollFailed    PollOutcome = "failed"
	PollCancelled PollOutcome = "cancelled"
)

// PollResult is reported once per run, unless the run was stopped.
type PollResult struct {
	Outcome  PollOutcome
	Attempts int
	Err      error
}

// AttemptFunc performs one attempt. done ends the run successfully; a non-nil error
// ends it as failed. Callers that want to retry on errors return (false, nil).
type AttemptFunc func(ctx context.Context, attempt int) (done bool, err error)

// ProgressFunc is told about every attempt that did not end its run.
type ProgressFunc func(attempt, maxAttempts int)

// PollerOption configures a BoundedPoller.
type PollerOption func(*BoundedPoller)

// WithProgress sets the handler for attempts that leave the run going.
func WithProgress(fn ProgressFunc) PollerOption {
	return func(p *BoundedPoller) { p.progress = fn }
}

// BoundedPoller runs an attempt immediately and then at a fixed interval, at most
// maxAttempts times. The cap is count-based: a slow attempt delays the next one.
// Progress and results are only delivered while the run that produced them is current,
// so an attempt in flight when Stop is called reports nothing.
type BoundedPoller struct {
	name        string
	timer       Timer
	interval    time.Duration
	maxAttempts int
	progress    ProgressFunc

	mu      sync.Mutex
	running bool
	run     uint64
	attempt int
	timerID string
}

// NewBoundedPoller creates a poller driven by timer.
func NewBoundedPoller(name string, timer Timer, interval time.Duration, maxAttempts int, opts ...PollerOption) *BoundedPoller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	p := &BoundedPoller{name: name, timer: timer, interval: interval, maxAttempts: maxAttempts}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MaxAttempts returns the attempt budget of a run.
func (p *BoundedPoller) MaxAttempts() int {
	return p.maxAttempts
}

// Attempts returns how many attempts the current or last run has made.
func (p *BoundedPoller) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempt
}

// Running reports whether a run is in progress.
func (p *BoundedPoller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Start begins a fresh run with a full attempt budget. onDone is called once when the
// run finishes on its own; it is not called after Stop.
func (p *BoundedPoller) Start(ctx context.Context, fn AttemptFunc, onDone func(PollResult)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return ErrPollerRunning
	}
	p.running = true
	p.run++
	p.attempt = 0
	slog.Debug("BoundedPoller.Start: starting", "poller", p.name, "max_attempts", p.maxAttempts, "interval", p.interval)
	return p.scheduleLocked(ctx, 0, p.run, fn, onDone)
}

// Stop cancels the pending attempt. Nothing runs or is reported afterwards.
func (p *BoundedPoller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.running = false
	p.run++
	if p.timerID != "" {
		p.timer.Cancel(p.timerID)
		p.timerID = ""
	}
	slog.Debug("BoundedPoller.Stop: stopped", "poller", p.name, "attempts", p.attempt)
}

func (p *BoundedPoller) scheduleLocked(ctx context.Context, delay time.Duration, run uint64, fn AttemptFunc, onDone func(PollResult)) error {
	id, err := p.timer.ScheduleAfter(delay, func() { p.tick(ctx, run, fn, onDone) })
	if err != nil {
		p.running = false
		return err
	}
	p.timerID = id
	return nil
}

func (p *BoundedPoller) tick(ctx context.Context, run uint64, fn AttemptFunc, onDone func(PollResult)) {
	p.mu.Lock()
	if !p.running || run != p.run {
		p.mu.Unlock()
		return
	}
	p.timerID = ""
	if ctx.Err() != nil {
		p.running = false
		attempts := p.attempt
		p.mu.Unlock()
		p.report(onDone, PollResult{Outcome: PollCancelled, Attempts: attempts, Err: ctx.Err()})
		return
	}
	p.attempt++
	n := p.attempt
	p.mu.Unlock()

	done, err := fn(ctx, n)

	p.mu.Lock()
	if !p.running || run != p.run {
		p.mu.Unlock()
		return
	}
	var result PollResult
	switch {
	case err != nil:
		result = PollResult{Outcome: PollFailed, Attempts: n, Err: err}
	case done:
		result = PollResult{Outcome: PollSucceeded, Attempts: n}
	case n >= p.maxAttempts:
		result = PollResult{Outcome: PollExhausted, Attempts: n}
	default:
		failed, scheduled := p.continueLocked(ctx, n, run, fn, onDone)
		if scheduled || failed == nil {
			p.mu.Unlock()
			return
		}
		result = *failed
	}
	p.running = false
	p.mu.Unlock()
	p.report(onDone, result)
}

// continueLocked reports progress for attempt n and schedules the next one. It is
// entered and left with p.mu held, releasing it around the progress handler. When the
// next attempt is not scheduled, a nil result means the run was stopped meanwhile.
func (p *BoundedPoller) continueLocked(ctx context.Context, n int, run uint64, fn AttemptFunc, onDone func(PollResult)) (*PollResult, bool) {
	if p.progress != nil {
		p.mu.Unlock()
		p.progress(n, p.maxAttempts)
		p.mu.Lock()
		if !p.running || run != p.run {
			return nil, false
		}
	}
	if err := p.scheduleLocked(ctx, p.interval, run, fn, onDone); err != nil {
		return &PollResult{Outcome: PollFailed, Attempts: n, Err: err}, false
	}
	return nil, true
}

func (p *BoundedPoller) report(onDone func(PollResult), result PollResult) {
	slog.Debug("BoundedPoller: run finished", "poller", p.name, "outcome", result.Outcome, "attempts", result.Attempts)
	if onDone != nil {
		onDone(result)
	}
}
