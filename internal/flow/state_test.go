package flow

import (
	"errors"
	"testing"

	"github.com/BTreeMap/SalesCoach/internal/models"
)

func effectTypes(effects []Effect) []EffectType {
	out := make([]EffectType, 0, len(effects))
	for _, e := range effects {
		out = append(out, e.Type)
	}
	return out
}

func hasEffect(effects []Effect, t EffectType) bool {
	for _, e := range effects {
		if e.Type == t {
			return true
		}
	}
	return false
}

func mustTransition(t *testing.T, s Snapshot, e Event) (Snapshot, []Effect) {
	t.Helper()
	next, effects, err := Transition(s, e)
	if err != nil {
		t.Fatalf("Transition(%s, %s) failed: %v", s.State, e.Type, err)
	}
	return next, effects
}

func awaitingEnd(t *testing.T) Snapshot {
	t.Helper()
	s, _ := mustTransition(t, NewSnapshot(10), Event{Type: EventLaunchRequested})
	s, _ = mustTransition(t, s, Event{
		Type:         EventLaunched,
		Conversation: &models.Conversation{ID: 42, ConversationURL: "https://provider.example/session/42", Status: models.ConversationCreated},
		Handoff:      HandoffExternal,
	})
	return s
}

func TestTransition_LaunchOpensExternalAndStartsPolling(t *testing.T) {
	s, effects := mustTransition(t, NewSnapshot(10), Event{Type: EventLaunchRequested})
	if s.State != StateLaunching || len(effects) != 0 {
		t.Fatalf("unexpected launching transition: %s %v", s.State, effectTypes(effects))
	}

	conv := &models.Conversation{ID: 42, ConversationURL: "https://provider.example/session/42"}
	s, effects = mustTransition(t, s, Event{Type: EventLaunched, Conversation: conv, Handoff: HandoffExternal})
	if s.State != StateAwaitingEnd {
		t.Errorf("expected awaiting-end, got %s", s.State)
	}
	got := effectTypes(effects)
	if len(got) != 2 || got[0] != EffectOpenExternal || got[1] != EffectStartStatusPoll {
		t.Errorf("unexpected effects %v", got)
	}
	if effects[0].URL != conv.ConversationURL {
		t.Errorf("expected URL %q, got %q", conv.ConversationURL, effects[0].URL)
	}
	if hasEffect(effects, EffectShowDemo) {
		t.Error("genuine session must not be shown as demo")
	}
}

func TestTransition_LaunchDemo(t *testing.T) {
	s, _ := mustTransition(t, NewSnapshot(10), Event{Type: EventLaunchRequested})
	_, effects := mustTransition(t, s, Event{Type: EventLaunched, Conversation: &models.Conversation{ID: 1}, Handoff: HandoffDemo})
	if !hasEffect(effects, EffectShowDemo) || hasEffect(effects, EffectOpenExternal) {
		t.Errorf("expected demo hand-off, got %v", effectTypes(effects))
	}
}

func TestTransition_LaunchFailed(t *testing.T) {
	s, _ := mustTransition(t, NewSnapshot(10), Event{Type: EventLaunchRequested})
	s, effects := mustTransition(t, s, Event{Type: EventLaunchFailed, Err: errBoom})
	if s.State != StateFailed || s.Failure != "boom" {
		t.Errorf("unexpected snapshot %+v", s)
	}
	if len(effects) != 1 || effects[0].Level != NotifyError {
		t.Errorf("expected one error notification, got %+v", effects)
	}

	// The user can start over from the failed state.
	s, _ = mustTransition(t, s, Event{Type: EventLaunchRequested})
	if s.State != StateLaunching || s.Failure != "" {
		t.Errorf("expected clean launching snapshot, got %+v", s)
	}
}

func TestTransition_StatusObserved(t *testing.T) {
	s := awaitingEnd(t)

	next, effects := mustTransition(t, s, Event{Type: EventStatusObserved, Status: models.ConversationActive})
	if next.State != StateAwaitingEnd || len(effects) != 0 {
		t.Fatalf("non-ended status should be a no-op, got %s %v", next.State, effectTypes(effects))
	}

	next, effects = mustTransition(t, s, Event{Type: EventStatusObserved, Status: models.ConversationEnded})
	if next.State != StateAwaitingFeedback || !next.EndHandled {
		t.Fatalf("expected awaiting-feedback with latch set, got %+v", next)
	}
	got := effectTypes(effects)
	want := []EffectType{EffectStopStatusPoll, EffectNotify, EffectTriggerFeedback, EffectScheduleFeedbackPoll}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if next.Conversation.Status != models.ConversationEnded {
		t.Errorf("expected cached conversation to be ended, got %s", next.Conversation.Status)
	}
	if s.Conversation.Status != models.ConversationCreated {
		t.Error("Transition must not mutate the input snapshot")
	}
}

func TestTransition_EndHandledOnce(t *testing.T) {
	tests := []struct {
		name   string
		first  Event
		second Event
	}{
		{"manual then detected", Event{Type: EventEndRequested}, Event{Type: EventStatusObserved, Status: models.ConversationEnded}},
		{"detected then manual", Event{Type: EventStatusObserved, Status: models.ConversationEnded}, Event{Type: EventEndRequested}},
		{"detected twice", Event{Type: EventStatusObserved, Status: models.ConversationEnded}, Event{Type: EventStatusObserved, Status: models.ConversationEnded}},
		{"manual twice", Event{Type: EventEndRequested}, Event{Type: EventEndRequested}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, effects := mustTransition(t, awaitingEnd(t), tt.first)
			if !hasEffect(effects, EffectTriggerFeedback) {
				t.Fatalf("first end must trigger feedback, got %v", effectTypes(effects))
			}
			after, effects := mustTransition(t, s, tt.second)
			if len(effects) != 0 {
				t.Errorf("second end must be a no-op, got %v", effectTypes(effects))
			}
			if after != s {
				t.Errorf("second end must not change the snapshot")
			}
		})
	}
}

func TestTransition_ManualEndEndsConversation(t *testing.T) {
	_, effects := mustTransition(t, awaitingEnd(t), Event{Type: EventEndRequested})
	got := effectTypes(effects)
	if len(got) < 2 || got[0] != EffectStopStatusPoll || got[1] != EffectEndConversation {
		t.Errorf("expected stop-status-poll then end-conversation first, got %v", got)
	}
}

func TestTransition_FeedbackAttemptsAndExhaustion(t *testing.T) {
	s, _ := mustTransition(t, awaitingEnd(t), Event{Type: EventStatusObserved, Status: models.ConversationEnded})

	for i := 1; i < 10; i++ {
		var effects []Effect
		s, effects = mustTransition(t, s, Event{Type: EventFeedbackMissing, Attempt: i})
		if s.Attempt != i {
			t.Fatalf("expected attempt %d, got %d", i, s.Attempt)
		}
		if len(effects) != 1 || effects[0].Type != EffectNotify {
			t.Fatalf("expected progress notification, got %v", effectTypes(effects))
		}
	}
	s, _ = mustTransition(t, s, Event{Type: EventFeedbackExhausted})
	if !s.Exhausted || s.State != StateAwaitingFeedback || s.Attempt != 10 {
		t.Fatalf("unexpected exhausted snapshot %+v", s)
	}

	if _, _, err := Transition(s, Event{Type: EventFeedbackMissing, Attempt: 11}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected no attempts after exhaustion, got %v", err)
	}

	s, effects := mustTransition(t, s, Event{Type: EventReloadRequested})
	if s.Exhausted || s.Attempt != 0 {
		t.Errorf("reload should restore the budget, got %+v", s)
	}
	if len(effects) != 1 || effects[0].Type != EffectScheduleFeedbackPoll {
		t.Errorf("reload should restart polling, got %v", effectTypes(effects))
	}
}

func TestTransition_FeedbackObserved(t *testing.T) {
	s, _ := mustTransition(t, awaitingEnd(t), Event{Type: EventEndRequested})

	if _, _, err := Transition(s, Event{Type: EventFeedbackObserved, Feedback: &models.Feedback{}}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("empty feedback must be rejected, got %v", err)
	}

	fb := populatedFeedback()
	s, _ = mustTransition(t, s, Event{Type: EventFeedbackObserved, Feedback: fb})
	if s.State != StateReady || s.Feedback != fb {
		t.Errorf("expected ready with feedback, got %+v", s)
	}
	if !s.State.IsTerminal() {
		t.Error("ready should be terminal")
	}
}

func TestTransition_RemoteFailed(t *testing.T) {
	s, effects := mustTransition(t, awaitingEnd(t), Event{Type: EventRemoteFailed, Err: errBoom})
	if s.State != StateFailed {
		t.Errorf("expected failed, got %s", s.State)
	}
	if !hasEffect(effects, EffectStopStatusPoll) {
		t.Errorf("expected status polling to stop, got %v", effectTypes(effects))
	}
}

func TestTransition_InvalidLeavesSnapshotUnchanged(t *testing.T) {
	tests := []struct {
		name  string
		snap  Snapshot
		event Event
	}{
		{"launched while idle", NewSnapshot(10), Event{Type: EventLaunched, Conversation: &models.Conversation{ID: 1}}},
		{"end while idle", NewSnapshot(10), Event{Type: EventEndRequested}},
		{"status while idle", NewSnapshot(10), Event{Type: EventStatusObserved, Status: models.ConversationEnded}},
		{"reload before exhaustion", NewSnapshot(10), Event{Type: EventReloadRequested}},
		{"launch twice", Snapshot{State: StateLaunching, MaxAttempts: 10}, Event{Type: EventLaunchRequested}},
		{"unknown event", NewSnapshot(10), Event{Type: "bogus"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, effects, err := Transition(tt.snap, tt.event)
			if !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("expected ErrInvalidTransition, got %v", err)
			}
			if next != tt.snap || effects != nil {
				t.Errorf("invalid transition must not change anything")
			}
		})
	}
}
