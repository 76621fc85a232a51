// Package state stores per-user dialogue sessions: the current state tag together with the
// data collected so far. It is domain-agnostic; bots pick the data type via the type parameter.
package state
