package state

import (
	"context"
	"errors"
)

// State identifies a finite-state-machine step used in conversations.
type State string

const (
	// StateIdle indicates there is no active conversation with the user.
	StateIdle State = "idle"
)

// IsIdle reports whether s is the default state. The empty tag counts as idle.
func (s State) IsIdle() bool {
	return s == "" || s == StateIdle
}

// String implements fmt.Stringer.
func (s State) String() string {
	if s == "" {
		return string(StateIdle)
	}
	return string(s)
}

// ErrUnavailable wraps every backend failure so callers can treat it as retryable.
var ErrUnavailable = errors.New("state store unavailable")

// Session stores conversation state and collected data for a user.
type Session[D any] struct {
	UserID int64
	State  State
	Data   D
}

// Idle returns the default session for userID.
func Idle[D any](userID int64) Session[D] {
	return Session[D]{UserID: userID, State: StateIdle}
}

// Store persists sessions keyed by user id. Get never reports absence: a missing entry is an
// idle session with zero data.
type Store[D any] interface {
	Get(ctx context.Context, userID int64) (Session[D], error)
	// Set replaces both state and data atomically.
	Set(ctx context.Context, sess Session[D]) error
	// Clear resets the user to the idle state and drops collected data.
	Clear(ctx context.Context, userID int64) error
}
