package flow

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BTreeMap/SalesCoach/internal/models"
	"github.com/BTreeMap/SalesCoach/internal/rpc"
	"github.com/BTreeMap/SalesCoach/internal/testutil"
)

func TestWatcher_CreatedCreatedEnded(t *testing.T) {
	b := testutil.NewFakeBackend(t)
	b.Script(rpc.ProcGetConversation,
		testutil.OK(map[string]interface{}{"id": 42, "status": "created"}),
		testutil.OK(map[string]interface{}{"id": 42, "status": "created"}),
		testutil.OK(map[string]interface{}{"id": 42, "status": "ended"}),
	)
	client, err := rpc.NewClient(rpc.WithBaseURL(b.URL()))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	timer := NewFakeTimer()
	var ends []EndSource
	w := NewWatcher(client, timer, 42, func(s EndSource) { ends = append(ends, s) })
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	timer.Advance(2 * time.Second)
	timer.Advance(2 * time.Second)
	if len(ends) != 0 {
		t.Fatalf("end handled too early after %d polls", b.Count(rpc.ProcGetConversation))
	}
	timer.Advance(2 * time.Second)
	if len(ends) != 1 || ends[0] != EndDetected {
		t.Fatalf("expected end handled once after the third poll, got %v", ends)
	}

	timer.Advance(time.Minute)
	if got := b.Count(rpc.ProcGetConversation); got != 3 {
		t.Errorf("expected polling to stop after 3 polls, got %d", got)
	}
	if timer.Pending() != 0 {
		t.Errorf("expected no pending timers, got %d", timer.Pending())
	}
	if len(ends) != 1 {
		t.Errorf("end handler ran %d times", len(ends))
	}
}

func TestWatcher_PollsAtInterval(t *testing.T) {
	api := &fakeAPI{}
	timer := NewFakeTimer()
	w := NewWatcher(api, timer, 42, nil, WithWatchInterval(5*time.Second))
	w.Start(context.Background())

	timer.Advance(4 * time.Second)
	if n := api.count(rpc.ProcGetConversation); n != 0 {
		t.Fatalf("expected no poll before the interval, got %d", n)
	}
	timer.Advance(26 * time.Second)
	if n := api.count(rpc.ProcGetConversation); n != 6 {
		t.Errorf("expected 6 polls in 30s, got %d", n)
	}
}

func TestWatcher_ManualEndThenPolledEnd(t *testing.T) {
	api := &fakeAPI{statuses: []models.ConversationStatus{models.ConversationEnded}}
	timer := NewFakeTimer()
	var ends []EndSource
	w := NewWatcher(api, timer, 42, func(s EndSource) { ends = append(ends, s) })
	w.Start(context.Background())

	if err := w.EndNow(context.Background()); err != nil {
		t.Fatalf("EndNow failed: %v", err)
	}
	timer.Advance(time.Minute)
	w.poll(context.Background())

	if len(ends) != 1 || ends[0] != EndManual {
		t.Errorf("expected exactly one manual end, got %v", ends)
	}
	if n := api.count(rpc.ProcGetConversation); n != 0 {
		t.Errorf("expected no status polls after manual end, got %d", n)
	}
	if n := api.count(rpc.ProcEndConversation); n != 1 {
		t.Errorf("expected one end call, got %d", n)
	}
}

func TestWatcher_PolledEndThenManualEnd(t *testing.T) {
	api := &fakeAPI{statuses: []models.ConversationStatus{models.ConversationEnded}}
	timer := NewFakeTimer()
	var ends []EndSource
	w := NewWatcher(api, timer, 42, func(s EndSource) { ends = append(ends, s) })
	w.Start(context.Background())

	timer.Advance(2 * time.Second)
	if err := w.EndNow(context.Background()); err != nil {
		t.Fatalf("EndNow failed: %v", err)
	}
	if len(ends) != 1 || ends[0] != EndDetected {
		t.Errorf("expected exactly one detected end, got %v", ends)
	}
	if n := api.count(rpc.ProcEndConversation); n != 0 {
		t.Errorf("end call should be skipped once the end is handled, got %d", n)
	}
}

func TestWatcher_ConcurrentEndsRunHandlerOnce(t *testing.T) {
	for i := 0; i < 50; i++ {
		api := &fakeAPI{statuses: []models.ConversationStatus{models.ConversationEnded}}
		var ends atomic.Int32
		w := NewWatcher(api, NewFakeTimer(), 42, func(EndSource) { ends.Add(1) })

		var wg sync.WaitGroup
		wg.Add(3)
		go func() { defer wg.Done(); w.EndNow(context.Background()) }()
		go func() { defer wg.Done(); w.poll(context.Background()) }()
		go func() { defer wg.Done(); w.poll(context.Background()) }()
		wg.Wait()

		if n := ends.Load(); n != 1 {
			t.Fatalf("iteration %d: end handler ran %d times", i, n)
		}
	}
}

func TestWatcher_EndNowFailureStillHandlesEnd(t *testing.T) {
	api := &fakeAPI{endErr: errBoom}
	var ends int
	w := NewWatcher(api, NewFakeTimer(), 42, func(EndSource) { ends++ })

	err := w.EndNow(context.Background())
	if !errors.Is(err, errBoom) {
		t.Errorf("expected end failure to be returned, got %v", err)
	}
	if ends != 1 || !w.Ended() {
		t.Errorf("expected end handled despite the failure, got %d", ends)
	}
}

func TestWatcher_StopCancelsPendingPoll(t *testing.T) {
	api := &fakeAPI{}
	timer := NewFakeTimer()
	w := NewWatcher(api, timer, 42, func(EndSource) { t.Error("end handler must not run after Stop") })
	w.Start(context.Background())
	timer.Advance(2 * time.Second)

	w.Stop()
	api.mu.Lock()
	api.statuses = []models.ConversationStatus{models.ConversationEnded}
	api.mu.Unlock()
	timer.Advance(time.Minute)

	if n := api.count(rpc.ProcGetConversation); n != 1 {
		t.Errorf("expected no polls after Stop, got %d", n)
	}
	if timer.Pending() != 0 {
		t.Errorf("expected pending timer to be cancelled, got %d", timer.Pending())
	}
	if err := w.Start(context.Background()); err == nil {
		t.Error("expected a stopped watcher to refuse restarting")
	}
}

func TestWatcher_StopDuringInFlightPoll(t *testing.T) {
	timer := NewFakeTimer()
	var w *Watcher
	api := &hookedAPI{fakeAPI: fakeAPI{statuses: []models.ConversationStatus{models.ConversationEnded}}}
	w = NewWatcher(api, timer, 42, func(EndSource) { t.Error("end handler must not run after Stop") })
	api.onGet = func() { w.Stop() }
	w.Start(context.Background())

	timer.Advance(2 * time.Second)
	if w.Ended() {
		t.Error("latch must not be set by a poll answer that arrived after Stop")
	}
	if timer.Pending() != 0 {
		t.Errorf("no poll may be rescheduled after Stop, got %d pending", timer.Pending())
	}
}


func TestWatcher_TransientErrorsKeepPolling(t *testing.T) {
	api := &fakeAPI{statusErr: errBoom}
	timer := NewFakeTimer()
	w := NewWatcher(api, timer, 42, nil)
	w.Start(context.Background())

	timer.Advance(6 * time.Second)
	if n := api.count(rpc.ProcGetConversation); n != 3 {
		t.Errorf("expected polling to continue through errors, got %d polls", n)
	}
}

func TestWatcher_UnauthorizedStopsPolling(t *testing.T) {
	api := &fakeAPI{statusErr: &rpc.Error{Procedure: rpc.ProcGetConversation, Code: rpc.CodeUnauthorized, HTTPStatus: http.StatusUnauthorized, Message: "expired"}}
	timer := NewFakeTimer()
	var failures []error
	w := NewWatcher(api, timer, 42, nil, WithWatchFailure(func(err error) { failures = append(failures, err) }))
	w.Start(context.Background())

	timer.Advance(time.Minute)
	if n := api.count(rpc.ProcGetConversation); n != 1 {
		t.Errorf("expected polling to stop after an auth failure, got %d polls", n)
	}
	if len(failures) != 1 || !rpc.IsUnauthorized(failures[0]) {
		t.Errorf("expected one unauthorized failure, got %v", failures)
	}
}
