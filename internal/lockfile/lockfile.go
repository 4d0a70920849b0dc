// Package lockfile keeps two SalesCoach runs from waiting on the same callback port.
//
// The lock is an flock on a file in the state directory, so the kernel releases it
// when the process exits, however it exits.
package lockfile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// LockFileName is the name of the lock file created in the state directory
const LockFileName = "salescoach.lock"

// Holder describes the process that owns the lock.
type Holder struct {
	PID     int
	Command string
	Running bool
}

func (h Holder) String() string {
	if h.PID == 0 {
		return "unknown process"
	}
	state := "running"
	if !h.Running {
		state = "not running, stale lock"
	}
	if h.Command != "" {
		return fmt.Sprintf("`%s` (PID %d, %s)", h.Command, h.PID, state)
	}
	return fmt.Sprintf("PID %d (%s)", h.PID, state)
}

// Lock represents an acquired lock.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes the exclusive lock for command. It fails immediately with a *LockError
// when another run holds it.
func Acquire(stateDir, command string) (*Lock, error) {
	lockPath := filepath.Join(stateDir, LockFileName)
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", lockPath, err)
	}
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		holder := readHolder(lockPath)
		slog.Warn("lockfile.Acquire: lock held by another run", "lock_path", lockPath, "holder", holder.String())
		return nil, &LockError{LockPath: lockPath, Holder: holder, Cause: err}
	}

	// the previous holder's record is only replaced once the lock is ours
	if err := file.Truncate(0); err == nil {
		_, err = fmt.Fprintf(file, "pid=%d\ncommand=%s\n", os.Getpid(), strings.ReplaceAll(command, "\n", " "))
		if err != nil {
			slog.Warn("lockfile.Acquire: failed to record holder", "error", err)
		}
	}

	slog.Debug("lockfile.Acquire: lock acquired", "lock_path", lockPath, "command", command)
	return &Lock{file: file, path: lockPath}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release releases the lock. It is safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	os.Remove(l.path)
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		slog.Warn("lockfile.Release: unlock failed", "error", err)
	}
	err := l.file.Close()
	l.file = nil
	slog.Debug("lockfile.Release: lock released", "lock_path", l.path)
	return err
}

// LockError is returned when another run holds the lock.
type LockError struct {
	LockPath string
	Holder   Holder
	Cause    error
}

func (e *LockError) Error() string {
	msg := fmt.Sprintf("another SalesCoach command is already waiting for callbacks: %s", e.Holder)
	if !e.Holder.Running && e.Holder.PID != 0 {
		msg += fmt.Sprintf("\nthe lock looks stale; remove %s if no other SalesCoach command is running", e.LockPath)
	}
	return msg
}

func (e *LockError) Unwrap() error {
	return e.Cause
}

// readHolder parses the lock file written by Acquire.
func readHolder(lockPath string) Holder {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return Holder{}
	}
	var h Holder
	for _, line := range strings.Split(string(data), "\n") {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			h.PID, _ = strconv.Atoi(strings.TrimSpace(value))
		case "command":
			h.Command = strings.TrimSpace(value)
		}
	}
	if h.PID > 0 {
		h.Running = isProcessRunning(h.PID)
	}
	return h
}

// isProcessRunning sends signal 0, which only checks that the process exists.
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
