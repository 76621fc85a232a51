package dialogue

import (
	"slices"
	"strings"

	"github.com/m3rciful/formbot/core/state"
)

// StateFilter decides whether a rule applies to the current state.
type StateFilter func(state.State) bool

// Predicate decides whether a rule accepts the event.
type Predicate func(Event) bool

// InState matches any of the listed states.
func InState(states ...state.State) StateFilter {
	set := make(map[state.State]struct{}, len(states))
	for _, st := range states {
		set[st] = struct{}{}
	}
	return func(st state.State) bool {
		_, ok := set[st]
		return ok
	}
}

// Idle matches when no dialogue is active.
func Idle() StateFilter {
	return func(st state.State) bool { return st.IsIdle() }
}

// Active matches any state except idle.
func Active() StateFilter {
	return func(st state.State) bool { return !st.IsIdle() }
}

// AnyState matches every state.
func AnyState() StateFilter {
	return func(state.State) bool { return true }
}

// Always accepts every event.
func Always() Predicate {
	return func(Event) bool { return true }
}

// IsCommand accepts a command with one of the given names. Names are compared case-insensitively.
func IsCommand(names ...string) Predicate {
	lowered := make([]string, len(names))
	for i, n := range names {
		lowered[i] = strings.ToLower(strings.TrimPrefix(n, "/"))
	}
	return func(ev Event) bool {
		return ev.Kind == KindCommand && slices.Contains(lowered, ev.Command)
	}
}

// IsText accepts plain text messages.
func IsText() Predicate {
	return func(ev Event) bool { return ev.Kind == KindText }
}

// TextMatches accepts plain text for which fn returns true.
func TextMatches(fn func(string) bool) Predicate {
	return func(ev Event) bool { return ev.Kind == KindText && fn(ev.Text) }
}

// ButtonIn accepts a button press whose value is one of values.
func ButtonIn(values ...string) Predicate {
	return func(ev Event) bool {
		return ev.Kind == KindButton && slices.Contains(values, ev.Data)
	}
}

// HasPhoto accepts uploads carrying at least one image variant.
func HasPhoto() Predicate {
	return func(ev Event) bool { return ev.Kind == KindPhoto && len(ev.Photos) > 0 }
}

// All accepts when every predicate does.
func All(preds ...Predicate) Predicate {
	return func(ev Event) bool {
		for _, p := range preds {
			if !p(ev) {
				return false
			}
		}
		return true
	}
}
