package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
)

func TestAcquire(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	lock, err := Acquire(dir, "simulate")
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	defer lock.Release()

	content, err := os.ReadFile(filepath.Join(dir, LockFileName))
	if err != nil {
		t.Fatalf("Failed to read lock file: %v", err)
	}
	want := fmt.Sprintf("pid=%d\ncommand=simulate\n", os.Getpid())
	if string(content) != want {
		t.Errorf("Lock file content mismatch. Expected: %q, Got: %q", want, string(content))
	}
}

func TestAcquire_Conflict(t *testing.T) {
	dir := t.TempDir()
	first, err := Acquire(dir, "pay monthly")
	if err != nil {
		t.Fatalf("Failed to acquire first lock: %v", err)
	}
	defer first.Release()

	second, err := Acquire(dir, "simulate")
	if err == nil {
		second.Release()
		t.Fatal("Expected the second acquisition to fail")
	}
	var lockErr *LockError
	if !errors.As(err, &lockErr) {
		t.Fatalf("Expected *LockError, got %T", err)
	}
	if lockErr.Holder.PID != os.Getpid() || lockErr.Holder.Command != "pay monthly" || !lockErr.Holder.Running {
		t.Errorf("Unexpected holder %+v", lockErr.Holder)
	}
	if !errors.Is(err, syscall.EWOULDBLOCK) {
		t.Errorf("Expected the flock error to be wrapped, got %v", lockErr.Cause)
	}
	if !strings.Contains(err.Error(), "`pay monthly`") || strings.Contains(err.Error(), "stale") {
		t.Errorf("Unexpected message: %s", err)
	}
}

func TestRelease(t *testing.T) {
	dir := t.TempDir()
	lock, err := Acquire(dir, "login")
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("Second release should be a no-op, got %v", err)
	}
	if _, err := os.Stat(lock.Path()); !os.IsNotExist(err) {
		t.Errorf("Lock file should be removed, got %v", err)
	}

	again, err := Acquire(dir, "login")
	if err != nil {
		t.Fatalf("Expected to re-acquire after release: %v", err)
	}
	again.Release()
}

func TestReadHolder(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		want    Holder
	}{
		{"full record", "pid=999999999\ncommand=simulate\n", Holder{PID: 999999999, Command: "simulate"}},
		{"pid only", "pid=999999998\n", Holder{PID: 999999998}},
		{"garbage", "hello", Holder{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name)
			os.WriteFile(path, []byte(tt.content), 0600)
			if got := readHolder(path); got != tt.want {
				t.Errorf("readHolder() = %+v, want %+v", got, tt.want)
			}
		})
	}
	if got := readHolder(filepath.Join(dir, "missing")); got != (Holder{}) {
		t.Errorf("missing file should give an empty holder, got %+v", got)
	}
}

func TestLockError_Stale(t *testing.T) {
	err := &LockError{LockPath: "/tmp/x/salescoach.lock", Holder: Holder{PID: 42, Command: "pay annual"}}
	msg := err.Error()
	if !strings.Contains(msg, "stale") || !strings.Contains(msg, "/tmp/x/salescoach.lock") {
		t.Errorf("Expected a stale-lock hint, got %q", msg)
	}
}
