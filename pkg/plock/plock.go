// SPDX-License-Identifier: Apache-2.0

// Package plock provides cross-process locks backed by advisory file locks.
//
// A lock named "install" in work directory /games/ServerKit is the file /games/ServerKit/install.plock.
// While the lock is held the owner's PID and activation time are written next to it in install.pid
// so that a second process can report who holds the lock.
package plock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/joomcode/errorx"
	"github.com/serverkit/kitinstaller/pkg/sanity"
)

const (
	LockFileExtension = ".plock"
	PidFileExtension  = ".pid"
	// DefaultRetryDelay is the interval between lock attempts in Acquire.
	DefaultRetryDelay = 100 * time.Millisecond
)

var (
	ErrorsNamespace = errorx.NewNamespace("plock")
	LockedError     = ErrorsNamespace.NewType("locked", errorx.Duplicate())
	NotHeldError    = ErrorsNamespace.NewType("not_held")

	lockPathProperty = errorx.RegisterPrintableProperty("lock_path")
	holderProperty   = errorx.RegisterPrintableProperty("holder")
)

// Lock is a named process lock within a work directory.
type Lock struct {
	mu          sync.Mutex
	name        string
	workDir     string
	fl          *flock.Flock
	activatedAt *time.Time
}

// NewLock returns an unlocked Lock. workDir must exist.
func NewLock(workDir, lockName string) (*Lock, error) {
	name, err := sanity.Filename(lockName)
	if err != nil || name != lockName {
		return nil, errorx.IllegalArgument.New("invalid lock name: %q", lockName)
	}

	info, err := os.Stat(workDir)
	if err != nil {
		return nil, errorx.IllegalArgument.New("workDir must be a valid directory path: %s", workDir).WithUnderlyingErrors(err)
	}
	if !info.IsDir() {
		return nil, errorx.IllegalArgument.New("workDir must be a valid directory path: %s", workDir)
	}

	workDir = filepath.Clean(workDir)
	return &Lock{
		name:    name,
		workDir: workDir,
		fl:      flock.New(filepath.Join(workDir, name+LockFileExtension)),
	}, nil
}

// TryAcquire attempts to take the lock once. It returns a LockedError if another holder has it.
func (l *Lock) TryAcquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fl.Locked() {
		return nil
	}

	locked, err := l.fl.TryLock()
	if err != nil {
		return errorx.IllegalState.Wrap(err, "failed to acquire file lock %q", l.fl.Path())
	}
	if !locked {
		return l.lockedError()
	}

	l.activate()
	return nil
}

// Acquire retries the lock until it is taken or ctx is done.
func (l *Lock) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fl.Locked() {
		return nil
	}

	locked, err := l.fl.TryLockContext(ctx, DefaultRetryDelay)
	if err != nil && ctx.Err() == nil {
		return errorx.IllegalState.Wrap(err, "failed to acquire file lock %q", l.fl.Path())
	}
	if !locked {
		return l.lockedError()
	}

	l.activate()
	return nil
}

// Release releases the lock and removes its PID file. It returns NotHeldError if the lock is not held.
func (l *Lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.fl.Locked() {
		return NotHeldError.New("lock %q is not held", l.name).WithProperty(lockPathProperty, l.fl.Path())
	}

	_ = os.Remove(l.pidFilePath())
	if err := l.fl.Unlock(); err != nil {
		return errorx.IllegalState.Wrap(err, "failed to release file lock %q", l.fl.Path())
	}

	l.activatedAt = nil
	return nil
}

// IsAcquired returns if the lock is held by this Lock
func (l *Lock) IsAcquired() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fl.Locked()
}

// Info describes the lock. For a lock held elsewhere the holder's PID and activation time are read
// from its PID file, when present.
func (l *Lock) Info() *Info {
	l.mu.Lock()
	defer l.mu.Unlock()

	info := &Info{
		Name:         l.name,
		WorkDir:      l.workDir,
		LockFilePath: l.fl.Path(),
		PidFilePath:  l.pidFilePath(),
		PID:          InvalidPID,
	}

	if l.fl.Locked() {
		info.PID = os.Getpid()
		info.ActivatedAt = l.activatedAt
		return info
	}

	if pid, at, ok := readPidFile(info.PidFilePath); ok {
		info.PID = pid
		info.ActivatedAt = at
	}

	return info
}

func (l *Lock) activate() {
	now := time.Now()
	l.activatedAt = &now

	// best effort: the advisory lock is what provides exclusion
	content := fmt.Sprintf("%d %s\n", os.Getpid(), now.Format(time.RFC3339))
	_ = os.WriteFile(l.pidFilePath(), []byte(content), 0o644)
}

func (l *Lock) lockedError() *errorx.Error {
	holder := "unknown"
	if pid, _, ok := readPidFile(l.pidFilePath()); ok {
		holder = strconv.Itoa(pid)
	}

	return LockedError.New("lock %q is held by another process", l.name).
		WithProperty(lockPathProperty, l.fl.Path()).
		WithProperty(holderProperty, holder)
}

func (l *Lock) pidFilePath() string {
	return filepath.Join(l.workDir, l.name+PidFileExtension)
}

func readPidFile(path string) (int, *time.Time, bool) {
	b, err := os.ReadFile(path)
	if err != nil {
		return InvalidPID, nil, false
	}

	fields := strings.Fields(string(b))
	if len(fields) == 0 {
		return InvalidPID, nil, false
	}

	pid, err := strconv.Atoi(fields[0])
	if err != nil || pid <= 0 {
		return InvalidPID, nil, false
	}

	if len(fields) > 1 {
		if at, err := time.Parse(time.RFC3339, fields[1]); err == nil {
			return pid, &at, true
		}
	}

	return pid, nil, true
}
