// Package dialogue routes chat events through a per-user finite-state machine.
//
// A Router holds an ordered rule table: each rule pairs a state filter with an event
// predicate, and every active state owns an explicit fallback that answers input no rule
// accepted. A Supervisor serializes events per user, loads the session from a state.Store,
// runs the selected handler, commits the returned session and hands the replies to a
// Transport. Events of different users run in parallel.
package dialogue
