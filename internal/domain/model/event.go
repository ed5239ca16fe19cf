// Package model contains domain models passed between layers.
package model

import "time"

// EventKind tells a worker what to do with the guess carried by an event.
type EventKind string

// Event kinds flowing through the guess queue.
const (
	EventSubmit  EventKind = "submit"
	EventRetract EventKind = "retract"
)

// GuessEvent is a unit of asynchronous work: persist or retract a guess and
// then recompute the property's estimate.
type GuessEvent struct {
	EventID string    // idempotency key
	Kind    EventKind // submit or retract
	Guess   Guess     // for retract only PropertyID and UserID are used
	TS      time.Time // time the event was accepted
}
