package dialogue

import (
	"time"

	"github.com/m3rciful/formbot/core/state"
)

// Outcome describes one processed event.
type Outcome struct {
	UserID   int64
	Kind     EventKind
	From     state.State
	To       state.State
	Rule     string
	Fallback bool
	Commit   Commit
	Replies  int
	Attempts int
	Duration time.Duration
	Err      error
}

// Observer receives an Outcome after every event, successful or not.
type Observer interface {
	ObserveDispatch(Outcome)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Outcome)

// ObserveDispatch calls f.
func (f ObserverFunc) ObserveDispatch(o Outcome) { f(o) }

type nopObserver struct{}

func (nopObserver) ObserveDispatch(Outcome) {}
