package flow

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestBoundedPoller_Outcomes(t *testing.T) {
	tests := []struct {
		name         string
		attempt      func(n int) (bool, error)
		wantOutcome  PollOutcome
		wantAttempts int
	}{
		{"succeeds on third", func(n int) (bool, error) { return n == 3, nil }, PollSucceeded, 3},
		{"never succeeds", func(int) (bool, error) { return false, nil }, PollExhausted, 5},
		{"fails on second", func(n int) (bool, error) {
			if n == 2 {
				return false, errBoom
			}
			return false, nil
		}, PollFailed, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			timer := NewFakeTimer()
			p := NewBoundedPoller("test", timer, time.Second, 5)
			var results []PollResult
			calls := 0
			err := p.Start(context.Background(), func(ctx context.Context, n int) (bool, error) {
				calls++
				return tt.attempt(n)
			}, func(r PollResult) { results = append(results, r) })
			if err != nil {
				t.Fatalf("Start failed: %v", err)
			}
			timer.Advance(time.Minute)

			if len(results) != 1 {
				t.Fatalf("expected one result, got %v", results)
			}
			if results[0].Outcome != tt.wantOutcome || results[0].Attempts != tt.wantAttempts {
				t.Errorf("expected %s after %d, got %+v", tt.wantOutcome, tt.wantAttempts, results[0])
			}
			if calls != tt.wantAttempts {
				t.Errorf("expected %d attempts, got %d", tt.wantAttempts, calls)
			}
			if tt.wantOutcome == PollFailed && !errors.Is(results[0].Err, errBoom) {
				t.Errorf("expected error to be reported, got %v", results[0].Err)
			}
			if p.Running() {
				t.Error("poller should not be running")
			}
		})
	}
}

func TestBoundedPoller_RejectsConcurrentStart(t *testing.T) {
	p := NewBoundedPoller("test", NewFakeTimer(), time.Second, 5)
	noop := func(context.Context, int) (bool, error) { return false, nil }
	if err := p.Start(context.Background(), noop, nil); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := p.Start(context.Background(), noop, nil); !errors.Is(err, ErrPollerRunning) {
		t.Errorf("expected ErrPollerRunning, got %v", err)
	}
}

func TestBoundedPoller_StopSuppressesResult(t *testing.T) {
	timer := NewFakeTimer()
	p := NewBoundedPoller("test", timer, time.Second, 5)
	reported := false
	p.Start(context.Background(), func(context.Context, int) (bool, error) { return false, nil }, func(PollResult) { reported = true })
	timer.Advance(time.Second)
	p.Stop()
	timer.Advance(time.Minute)

	if reported {
		t.Error("no result may be reported after Stop")
	}
	if p.Attempts() != 2 {
		t.Errorf("expected 2 attempts before Stop, got %d", p.Attempts())
	}
}

func TestBoundedPoller_StopDuringAttempt(t *testing.T) {
	timer := NewFakeTimer()
	var progress []int
	p := NewBoundedPoller("test", timer, time.Second, 5, WithProgress(func(n, _ int) { progress = append(progress, n) }))
	reported := false
	p.Start(context.Background(), func(_ context.Context, n int) (bool, error) {
		if n == 2 {
			p.Stop()
		}
		return false, nil
	}, func(PollResult) { reported = true })
	timer.Advance(time.Minute)

	if len(progress) != 1 || progress[0] != 1 {
		t.Errorf("expected progress for the first attempt only, got %v", progress)
	}
	if reported {
		t.Error("no result may be reported for an attempt stopped in flight")
	}
	if timer.Pending() != 0 {
		t.Errorf("expected nothing scheduled, got %d", timer.Pending())
	}
}

func TestBoundedPoller_ContextCancelled(t *testing.T) {
	timer := NewFakeTimer()
	p := NewBoundedPoller("test", timer, time.Second, 5)
	ctx, cancel := context.WithCancel(context.Background())
	var result PollResult
	p.Start(ctx, func(context.Context, int) (bool, error) { return false, nil }, func(r PollResult) { result = r })
	timer.Advance(0)
	cancel()
	timer.Advance(time.Minute)

	if result.Outcome != PollCancelled || result.Attempts != 1 {
		t.Errorf("expected cancellation after 1 attempt, got %+v", result)
	}
}

func TestSimpleTimer(t *testing.T) {
	timer := NewSimpleTimer()
	defer timer.Stop()

	var fired atomic.Int32
	done := make(chan struct{})
	if _, err := timer.ScheduleAfter(time.Millisecond, func() { fired.Add(1); close(done) }); err != nil {
		t.Fatalf("ScheduleAfter failed: %v", err)
	}
	cancelled, _ := timer.ScheduleAfter(time.Millisecond, func() { fired.Add(100) })
	timer.Cancel(cancelled)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
	time.Sleep(10 * time.Millisecond)
	if fired.Load() != 1 {
		t.Errorf("cancelled callback ran, got %d", fired.Load())
	}

	timer.ScheduleAfter(time.Hour, func() {})
	if n := len(timer.ListActive()); n != 1 {
		t.Errorf("expected 1 active timer, got %d", n)
	}
	timer.Stop()
	if n := len(timer.ListActive()); n != 0 {
		t.Errorf("expected no active timers after Stop, got %d", n)
	}
	if _, err := timer.ScheduleAfter(time.Second, nil); err == nil {
		t.Error("expected error for nil callback")
	}
}

func TestFakeTimer_OrderAndCancel(t *testing.T) {
	timer := NewFakeTimer()
	var order []string
	timer.ScheduleAfter(2*time.Second, func() { order = append(order, "b") })
	timer.ScheduleAfter(time.Second, func() {
		order = append(order, "a")
		timer.ScheduleAfter(500*time.Millisecond, func() { order = append(order, "a2") })
	})
	id, _ := timer.ScheduleAfter(time.Second, func() { order = append(order, "cancelled") })
	timer.ScheduleAfter(time.Hour, func() { order = append(order, "late") })
	timer.Cancel(id)

	timer.Advance(3 * time.Second)
	want := []string{"a", "a2", "b"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
	if timer.Pending() != 1 || timer.Now() != 3*time.Second {
		t.Errorf("unexpected pending=%d now=%s", timer.Pending(), timer.Now())
	}
	if ran := timer.RunAll(10); ran != 1 {
		t.Errorf("expected RunAll to run the late callback, ran %d", ran)
	}
}
