// Package flow coordinates a practice session: launching the remote conversation,
// watching it until it ends and awaiting the asynchronously generated feedback.
//
// The lifecycle is modelled as a finite-state machine. Transition is a pure function
// from a Snapshot and an Event to the next Snapshot and a list of Effects; the
// Coordinator executes those effects and feeds the results back as new events.
// Timers are the only thing that drives the loops, so tests run on a FakeTimer.
package flow

import (
	"errors"
	"fmt"

	"github.com/BTreeMap/SalesCoach/internal/models"
)

// State is a lifecycle state of a practice session.
type State string

const (
	StateIdle             State = "idle"
	StateLaunching        State = "launching"
	StateAwaitingEnd      State = "awaiting-end"
	StateAwaitingFeedback State = "awaiting-feedback"
	StateReady            State = "ready"
	StateFailed           State = "failed"
)

// IsTerminal reports whether no further events are expected in s.
func (s State) IsTerminal() bool {
	return s == StateReady || s == StateFailed
}

// EventType identifies what happened.
type EventType string

const (
	EventLaunchRequested   EventType = "launch-requested"
	EventLaunched          EventType = "launched"
	EventLaunchFailed      EventType = "launch-failed"
	EventStatusObserved    EventType = "status-observed"
	EventEndRequested      EventType = "end-requested"
	EventFeedbackObserved  EventType = "feedback-observed"
	EventFeedbackMissing   EventType = "feedback-missing"
	EventFeedbackExhausted EventType = "feedback-exhausted"
	EventReloadRequested   EventType = "reload-requested"
	EventRemoteFailed      EventType = "remote-failed"
)

// Event is an input of the state machine.
type Event struct {
	Type         EventType
	Conversation *models.Conversation
	Handoff      Handoff
	Status       models.ConversationStatus
	Feedback     *models.Feedback
	Attempt      int
	Err          error
}

// EffectType identifies a side effect requested by a transition.
type EffectType string

const (
	EffectStartStatusPoll      EffectType = "start-status-poll"
	EffectStopStatusPoll       EffectType = "stop-status-poll"
	EffectEndConversation      EffectType = "end-conversation"
	EffectTriggerFeedback      EffectType = "trigger-feedback"
	EffectScheduleFeedbackPoll EffectType = "schedule-feedback-poll"
	EffectOpenExternal         EffectType = "open-external"
	EffectShowDemo             EffectType = "show-demo"
	EffectNotify               EffectType = "notify"
)

// NotifyLevel is the severity of a user notification.
type NotifyLevel string

const (
	NotifyInfo    NotifyLevel = "info"
	NotifySuccess NotifyLevel = "success"
	NotifyWarning NotifyLevel = "warning"
	NotifyError   NotifyLevel = "error"
)

// Effect is a side effect to be carried out by the Coordinator.
type Effect struct {
	Type    EffectType
	URL     string
	Level   NotifyLevel
	Message string
}

// Snapshot is the complete observable state of one practice session.
type Snapshot struct {
	State        State
	Conversation *models.Conversation
	// EndHandled is the end latch: once set, end handling never runs again.
	EndHandled  bool
	Attempt     int
	MaxAttempts int
	// Exhausted is set when the feedback budget ran out; Reload starts a fresh budget.
	Exhausted bool
	Feedback  *models.Feedback
	Failure   string
}

// ErrInvalidTransition is returned when an event is not accepted in the current state.
var ErrInvalidTransition = errors.New("invalid transition")

// NewSnapshot returns an idle snapshot with the given feedback attempt budget.
func NewSnapshot(maxAttempts int) Snapshot {
	if maxAttempts <= 0 {
		maxAttempts = DefaultFeedbackAttempts
	}
	return Snapshot{State: StateIdle, MaxAttempts: maxAttempts}
}

func invalid(s Snapshot, e Event) (Snapshot, []Effect, error) {
	return s, nil, fmt.Errorf("%w: %s in state %s", ErrInvalidTransition, e.Type, s.State)
}

func notify(level NotifyLevel, format string, args ...interface{}) Effect {
	return Effect{Type: EffectNotify, Level: level, Message: fmt.Sprintf(format, args...)}
}

// Transition computes the next snapshot and the effects to run. It performs no I/O.
func Transition(s Snapshot, e Event) (Snapshot, []Effect, error) {
	next := s

	switch e.Type {
	case EventLaunchRequested:
		if s.State != StateIdle && s.State != StateFailed {
			return invalid(s, e)
		}
		next = NewSnapshot(s.MaxAttempts)
		next.State = StateLaunching
		return next, nil, nil

	case EventLaunched:
		if s.State != StateLaunching {
			return invalid(s, e)
		}
		if e.Conversation == nil {
			return s, nil, fmt.Errorf("%w: launched without conversation", ErrInvalidTransition)
		}
		next.State = StateAwaitingEnd
		next.Conversation = e.Conversation
		effects := make([]Effect, 0, 2)
		if e.Handoff == HandoffDemo {
			effects = append(effects, Effect{Type: EffectShowDemo, URL: e.Conversation.ConversationURL})
		} else {
			effects = append(effects, Effect{Type: EffectOpenExternal, URL: e.Conversation.ConversationURL})
		}
		return next, append(effects, Effect{Type: EffectStartStatusPoll}), nil

	case EventLaunchFailed:
		if s.State != StateLaunching {
			return invalid(s, e)
		}
		next.State = StateFailed
		next.Failure = errMessage(e.Err, "could not start the simulation")
		return next, []Effect{notify(NotifyError, "Could not start the simulation: %s", next.Failure)}, nil

	case EventStatusObserved:
		switch s.State {
		case StateAwaitingEnd:
		case StateAwaitingFeedback, StateReady, StateFailed:
			// A late poll answer after the end was handled.
			return s, nil, nil
		default:
			return invalid(s, e)
		}
		if s.EndHandled || !e.Status.IsEnded() {
			return s, nil, nil
		}
		next = enterAwaitingFeedback(next)
		return next, []Effect{
			{Type: EffectStopStatusPoll},
			notify(NotifyInfo, "Conversation ended, generating feedback"),
			{Type: EffectTriggerFeedback},
			{Type: EffectScheduleFeedbackPoll},
		}, nil

	case EventEndRequested:
		switch s.State {
		case StateAwaitingEnd:
		case StateAwaitingFeedback, StateReady:
			return s, nil, nil
		default:
			return invalid(s, e)
		}
		if s.EndHandled {
			return s, nil, nil
		}
		next = enterAwaitingFeedback(next)
		return next, []Effect{
			{Type: EffectStopStatusPoll},
			{Type: EffectEndConversation},
			{Type: EffectTriggerFeedback},
			{Type: EffectScheduleFeedbackPoll},
		}, nil

	case EventFeedbackMissing:
		if s.State != StateAwaitingFeedback || s.Exhausted {
			return invalid(s, e)
		}
		next.Attempt = e.Attempt
		return next, []Effect{notify(NotifyInfo, "Generating feedback... attempt %d/%d", e.Attempt, s.MaxAttempts)}, nil

	case EventFeedbackExhausted:
		if s.State != StateAwaitingFeedback {
			return invalid(s, e)
		}
		next.Exhausted = true
		next.Attempt = s.MaxAttempts
		return next, []Effect{notify(NotifyWarning, "Feedback is taking longer than expected. Reload to keep waiting or go back to the dashboard.")}, nil

	case EventReloadRequested:
		if s.State != StateAwaitingFeedback || !s.Exhausted {
			return invalid(s, e)
		}
		next.Exhausted = false
		next.Attempt = 0
		return next, []Effect{{Type: EffectScheduleFeedbackPoll}}, nil

	case EventFeedbackObserved:
		if s.State != StateAwaitingFeedback {
			return invalid(s, e)
		}
		if e.Feedback.IsEmpty() {
			return s, nil, fmt.Errorf("%w: empty feedback observed", ErrInvalidTransition)
		}
		next.State = StateReady
		next.Feedback = e.Feedback
		next.Exhausted = false
		return next, []Effect{notify(NotifySuccess, "Feedback ready")}, nil

	case EventRemoteFailed:
		if s.State != StateAwaitingEnd && s.State != StateAwaitingFeedback {
			return invalid(s, e)
		}
		next.State = StateFailed
		next.Failure = errMessage(e.Err, "remote service failure")
		effects := []Effect{}
		if s.State == StateAwaitingEnd {
			effects = append(effects, Effect{Type: EffectStopStatusPoll})
		}
		return next, append(effects, notify(NotifyError, "%s", next.Failure)), nil
	}

	return invalid(s, e)
}

func enterAwaitingFeedback(s Snapshot) Snapshot {
	s.State = StateAwaitingFeedback
	s.EndHandled = true
	s.Attempt = 0
	s.Exhausted = false
	if s.Conversation != nil {
		conv := *s.Conversation
		conv.Status = models.ConversationEnded
		s.Conversation = &conv
	}
	return s
}

func errMessage(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	return err.Error()
}
