// Package timing provides the cycle-based discrete event engine that drives
// every component of the simulator.
package timing

import "github.com/sarchlab/rubysim/sim/hooking"

// VTimeInCycle is the simulated time counted in cycles of the system clock.
type VTimeInCycle uint64

// Handler processes events of various types. Events are plain data; handlers
// use a type switch to tell them apart.
type Handler interface {
	Handle(event any) error
}

// TimeTeller exposes the current simulation cycle.
type TimeTeller interface {
	CurrentTime() VTimeInCycle
}

// EventScheduler schedules events in the simulation timeline.
type EventScheduler interface {
	TimeTeller
	Schedule(event ScheduledEvent)
}

// Engine is a unit that keeps the discrete event simulation running.
type Engine interface {
	hooking.Hookable
	EventScheduler

	// Run processes all the events until the queue drains or a handler
	// returns an error.
	Run() error

	// Pause stops dispatching events until Continue is called.
	Pause()

	// Continue resumes a paused engine.
	Continue()
}

// ScheduledEvent is the engine-facing wrapper for user-defined events.
type ScheduledEvent struct {
	// Event is the payload delivered to the handler.
	Event any

	// Time is the cycle when the event should be processed.
	Time VTimeInCycle

	// Handler is the component that will process this event.
	Handler Handler

	// IsSecondary events run after all primary events of the same cycle.
	IsSecondary bool

	seq uint64
}

// HookPosBeforeEvent marks the moment right before an event is handled.
var HookPosBeforeEvent = &hooking.HookPos{Name: "BeforeEvent"}

// HookPosAfterEvent marks the moment right after an event is handled.
var HookPosAfterEvent = &hooking.HookPos{Name: "AfterEvent"}
