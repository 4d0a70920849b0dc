package flow

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// FakeTimer is a manually driven Timer for tests. Callbacks only run inside Advance,
// synchronously and in due-time order.
type FakeTimer struct {
	mu      sync.Mutex
	now     time.Duration
	nextID  int64
	pending map[string]*fakeEntry
}

type fakeEntry struct {
	seq int64
	due time.Duration
	fn  func()
}

// NewFakeTimer creates a FakeTimer at virtual time zero.
func NewFakeTimer() *FakeTimer {
	return &FakeTimer{pending: make(map[string]*fakeEntry)}
}

// ScheduleAfter implements Timer.
func (f *FakeTimer) ScheduleAfter(delay time.Duration, fn func()) (string, error) {
	if fn == nil {
		return "", fmt.Errorf("FakeTimer: nil callback")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("fake_%d", f.nextID)
	f.pending[id] = &fakeEntry{seq: f.nextID, due: f.now + delay, fn: fn}
	return id, nil
}

// Cancel implements Timer.
func (f *FakeTimer) Cancel(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pending, id)
	return nil
}

// Stop implements Timer.
func (f *FakeTimer) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = make(map[string]*fakeEntry)
}

// Pending returns the number of scheduled callbacks that have not run.
func (f *FakeTimer) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Now returns the virtual time elapsed since creation.
func (f *FakeTimer) Now() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves virtual time forward by d and runs every callback that becomes due,
// including callbacks scheduled by callbacks, as long as they fall within the window.
func (f *FakeTimer) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now + d
	f.mu.Unlock()

	for {
		f.mu.Lock()
		id, entry := f.nextDue(target)
		if entry == nil {
			f.now = target
			f.mu.Unlock()
			return
		}
		delete(f.pending, id)
		f.now = entry.due
		f.mu.Unlock()

		entry.fn()
	}
}

// RunAll advances until no callbacks remain or limit callbacks have run.
// It returns the number of callbacks executed.
func (f *FakeTimer) RunAll(limit int) int {
	ran := 0
	for ran < limit {
		f.mu.Lock()
		id, entry := f.nextDue(time.Duration(1<<62 - 1))
		if entry == nil {
			f.mu.Unlock()
			return ran
		}
		delete(f.pending, id)
		f.now = entry.due
		f.mu.Unlock()

		entry.fn()
		ran++
	}
	return ran
}

// nextDue must be called with f.mu held.
func (f *FakeTimer) nextDue(limit time.Duration) (string, *fakeEntry) {
	ids := make([]string, 0, len(f.pending))
	for id, e := range f.pending {
		if e.due <= limit {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return "", nil
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := f.pending[ids[i]], f.pending[ids[j]]
		if a.due != b.due {
			return a.due < b.due
		}
		return a.seq < b.seq
	})
	return ids[0], f.pending[ids[0]]
}
