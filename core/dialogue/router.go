package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/m3rciful/formbot/core/state"
)

// HandlerFunc computes the next session and replies for an event. Invalid input is not an
// error: route it to a fallback that re-prompts. A returned error aborts the event without
// committing anything.
type HandlerFunc[D any] func(ctx context.Context, sess state.Session[D], ev Event) (Result[D], error)

// Route is the handler selected for an event.
type Route[D any] struct {
	Name     string
	Fallback bool
	Handler  HandlerFunc[D]
}

type rule[D any] struct {
	name    string
	filter  StateFilter
	match   Predicate
	handler HandlerFunc[D]
}

// Router selects exactly one handler per (state, event). Rules are evaluated in registration
// order and the first one whose filter and predicate both accept wins. When nothing matches,
// the fallback registered for the current state is used. Fallbacks live in a separate table,
// so a catch-all can never shadow a specific rule registered after it.
type Router[D any] struct {
	mu        sync.RWMutex
	rules     []rule[D]
	fallbacks map[state.State]Route[D]
	dups      []string
}

// NewRouter returns an empty router.
func NewRouter[D any]() *Router[D] {
	return &Router[D]{fallbacks: make(map[state.State]Route[D])}
}

// Handle registers a specific rule. A nil filter matches every state and a nil predicate
// matches every event.
func (r *Router[D]) Handle(name string, filter StateFilter, match Predicate, h HandlerFunc[D]) {
	if h == nil {
		panic("dialogue: nil handler for rule " + name)
	}
	if filter == nil {
		filter = AnyState()
	}
	if match == nil {
		match = Always()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, rule[D]{name: name, filter: filter, match: match, handler: h})
}

// Fallback registers the catch-all handler for st. Register the idle fallback with
// state.StateIdle; it answers anything unmatched outside a dialogue.
func (r *Router[D]) Fallback(st state.State, name string, h HandlerFunc[D]) {
	if h == nil {
		panic("dialogue: nil fallback for state " + st.String())
	}
	if st == "" {
		st = state.StateIdle
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.fallbacks[st]; exists {
		r.dups = append(r.dups, st.String())
	}
	r.fallbacks[st] = Route[D]{Name: name, Fallback: true, Handler: h}
}

// Route returns the handler for ev in st. ok is false only when no rule matched and st has
// no fallback.
func (r *Router[D]) Route(st state.State, ev Event) (Route[D], bool) {
	if st == "" {
		st = state.StateIdle
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rl := range r.rules {
		if rl.filter(st) && rl.match(ev) {
			return Route[D]{Name: rl.name, Handler: rl.handler}, true
		}
	}
	fb, ok := r.fallbacks[st]
	return fb, ok
}

// Validate reports states without a fallback and states with more than one.
func (r *Router[D]) Validate(states ...state.State) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var errs []error
	if len(r.dups) > 0 {
		errs = append(errs, fmt.Errorf("duplicate fallback for %s", strings.Join(r.dups, ", ")))
	}
	var missing []string
	for _, st := range states {
		if _, ok := r.fallbacks[st]; !ok {
			missing = append(missing, st.String())
		}
	}
	if len(missing) > 0 {
		errs = append(errs, fmt.Errorf("no fallback for %s", strings.Join(missing, ", ")))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("dialogue router: %w", errors.Join(errs...))
}
