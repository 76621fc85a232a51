package dialogue

import (
	"errors"

	"github.com/m3rciful/formbot/core/state"
)

var (
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("dialogue: supervisor closed")
	// ErrMailboxFull is returned when a user already has too many pending events.
	ErrMailboxFull = errors.New("dialogue: mailbox full")
	// ErrNoRoute means the state has neither a matching rule nor a fallback.
	ErrNoRoute = errors.New("dialogue: no route")
	// ErrLockBusy means the distributed per-user lock could not be acquired.
	ErrLockBusy = errors.New("dialogue: user lock busy")
	// ErrHandlerPanic wraps a recovered handler panic.
	ErrHandlerPanic = errors.New("dialogue: handler panic")
)

type retryableError struct{ err error }

func (e retryableError) Error() string { return e.err.Error() }
func (e retryableError) Unwrap() error { return e.err }

// Retryable marks err as transient: the event was not committed and is safe to process again.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return retryableError{err: err}
}

// IsRetryable reports whether err leaves the event safe to redeliver.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var re retryableError
	return errors.As(err, &re) ||
		errors.Is(err, state.ErrUnavailable) ||
		errors.Is(err, ErrLockBusy)
}
