package airkv

import (
	"errors"
	"fmt"

	"github.com/airkv-project/airkv/storage"
)

var (
	// ErrLockFailed names the outcome of a critical section that could not
	// acquire its lock because another client currently holds it. No Store
	// method returns it at present: tail rotation retries in a loop until
	// some client has installed the new tail.
	ErrLockFailed = errors.New("airkv: lock acquisition failed")
	// ErrClosed is returned by any Store method called after Close.
	ErrClosed = errors.New("airkv: store is closed")
)

// AppendRejectedError wraps a non-success tail append outcome that the
// store does not recover from by rotating or refreshing the tail.
type AppendRejectedError struct {
	Outcome storage.AppendOutcome
}

func (e *AppendRejectedError) Error() string {
	return fmt.Sprintf("airkv: append rejected: %v", e.Outcome)
}

// ConfigurationError wraps a problem detected while opening a Store —
// a bad home directory, an unknown backend, or missing backend
// credentials. Always fatal at Open time.
type ConfigurationError struct {
	msg string
}

func (e *ConfigurationError) Error() string { return "airkv: configuration: " + e.msg }

func configErrorf(format string, args ...any) error {
	return &ConfigurationError{msg: fmt.Sprintf(format, args...)}
}
