package daemon

import "errors"

// ErrAlreadyRunning is returned by Acquire when another daemon holds the lock.
var ErrAlreadyRunning = errors.New("another jobd is running")
