// Package lockfile guards a state directory against a second LeadPipe process.
//
// The lock is an flock on a file inside the directory, so the kernel releases
// it when the process exits, however it exits.
package lockfile

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// LockFileName is the name of the lock file created in the state directory
const LockFileName = "leadpipe.lock"

// Lock represents an active directory lock
type Lock struct {
	file *os.File
	path string
}

// LockError is returned when another process already holds the lock.
type LockError struct {
	LockPath string
	// HolderPID is the PID recorded by the holder, or 0 if unreadable.
	HolderPID int
	Cause     error
}

func (e *LockError) Error() string {
	msg := fmt.Sprintf("another LeadPipe instance is using this state directory (lock file %s", e.LockPath)
	if e.HolderPID > 0 {
		msg += fmt.Sprintf(", pid %d", e.HolderPID)
	}
	return msg + ")"
}

func (e *LockError) Unwrap() error {
	return e.Cause
}

// AcquireLock takes an exclusive, non-blocking lock on stateDir, creating the
// directory if needed.
func AcquireLock(stateDir string) (*Lock, error) {
	lockPath := filepath.Join(stateDir, LockFileName)
	slog.Debug("Attempting to acquire lock", "lock_path", lockPath)

	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}

	// Not truncated on open: the current holder's PID must survive a failed attempt.
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", lockPath, err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		lockErr := &LockError{LockPath: lockPath, HolderPID: readPID(lockPath), Cause: err}
		slog.Error("Failed to acquire lock", "lock_path", lockPath, "holder_pid", lockErr.HolderPID, "error", err)
		return nil, lockErr
	}

	if err := writePID(file); err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		return nil, fmt.Errorf("failed to write lock information to %s: %w", lockPath, err)
	}

	slog.Info("Acquired state directory lock", "lock_path", lockPath, "pid", os.Getpid())
	return &Lock{file: file, path: lockPath}, nil
}

// Release unlocks and removes the lock file. Safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}

	var errs []error
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		errs = append(errs, fmt.Errorf("unlock: %w", err))
	}
	if err := l.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close: %w", err))
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to remove lock file", "error", err, "lock_path", l.path)
	}
	l.file = nil

	slog.Info("Released state directory lock", "lock_path", l.path)
	return errors.Join(errs...)
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

func writePID(file *os.File) error {
	if err := file.Truncate(0); err != nil {
		return err
	}
	if _, err := file.WriteAt([]byte(fmt.Sprintf("pid=%d\n", os.Getpid())), 0); err != nil {
		return err
	}
	if err := file.Sync(); err != nil {
		slog.Warn("Failed to sync lock file", "error", err, "lock_path", file.Name())
	}
	return nil
}

func readPID(lockPath string) int {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return 0
	}
	line := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(strings.TrimPrefix(line, "pid="))
	if err != nil {
		return 0
	}
	return pid
}
