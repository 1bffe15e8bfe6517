//go:build !unix

package daemon

import (
	"errors"
	"fmt"
)

// ErrLockUnsupported is returned by Acquire on platforms without flock.
var ErrLockUnsupported = errors.New("pid file locking requires a unix system")

// PIDLock is never held on this platform.
type PIDLock struct {
	path string
}

// Acquire always fails: the daemon relies on flock for single-instance
// protection and refuses to start without it.
func Acquire(path string) (*PIDLock, error) {
	return nil, fmt.Errorf("acquire %s: %w", path, ErrLockUnsupported)
}

// Release is a no-op.
func (l *PIDLock) Release() error { return nil }
