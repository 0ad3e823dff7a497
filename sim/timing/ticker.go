package timing

import (
	"sync"

	"github.com/sarchlab/rubysim/sim/hooking"
)

// TickEvent is a generic event that almost all the components use to update
// their status.
type TickEvent struct{}

// A Ticker is an object that updates states with ticks.
type Ticker interface {
	Tick() bool
}

// TickScheduler can help schedule tick events.
type TickScheduler struct {
	lock      sync.Mutex
	handler   Handler
	Engine    EventScheduler
	secondary bool

	scheduled    bool
	nextTickTime VTimeInCycle
}

// NewTickScheduler creates a scheduler for tick events.
func NewTickScheduler(handler Handler, engine EventScheduler) *TickScheduler {
	return &TickScheduler{
		handler: handler,
		Engine:  engine,
	}
}

// NewSecondaryTickScheduler creates a scheduler that always schedules
// secondary tick events.
func NewSecondaryTickScheduler(
	handler Handler,
	engine EventScheduler,
) *TickScheduler {
	t := NewTickScheduler(handler, engine)
	t.secondary = true

	return t
}

// TickNow schedules a Tick event at the current cycle.
func (t *TickScheduler) TickNow() {
	t.schedule(t.CurrentTime())
}

// TickLater schedules a tick event at the cycle after the current one.
func (t *TickScheduler) TickLater() {
	t.schedule(t.CurrentTime() + 1)
}

// TickAt schedules a tick event at the given cycle.
func (t *TickScheduler) TickAt(time VTimeInCycle) {
	t.schedule(time)
}

func (t *TickScheduler) schedule(time VTimeInCycle) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.scheduled && t.nextTickTime >= t.CurrentTime() &&
		t.nextTickTime <= time {
		return
	}

	t.scheduled = true
	t.nextTickTime = time

	t.Engine.Schedule(ScheduledEvent{
		Event:       TickEvent{},
		Time:        time,
		Handler:     t.handler,
		IsSecondary: t.secondary,
	})
}

// CurrentTime returns the current cycle of the engine.
func (t *TickScheduler) CurrentTime() VTimeInCycle {
	return t.Engine.CurrentTime()
}

// TickingComponent is a type of component that updates states from cycle to
// cycle. A programmer only needs to program a tick function for a ticking
// component.
type TickingComponent struct {
	*hooking.HookableBase
	*TickScheduler

	name   string
	ticker Ticker
}

// NewTickingComponent creates a new ticking component.
func NewTickingComponent(
	name string,
	engine EventScheduler,
	ticker Ticker,
) *TickingComponent {
	return NewTickingComponentWithHandler(name, engine, ticker, nil)
}

// NewTickingComponentWithHandler creates a ticking component whose tick
// events are dispatched to handler. Components that also handle other
// events pass themselves, and forward tick events to HandleTick. A nil
// handler means the ticking component itself.
func NewTickingComponentWithHandler(
	name string,
	engine EventScheduler,
	ticker Ticker,
	handler Handler,
) *TickingComponent {
	tc := new(TickingComponent)
	if handler == nil {
		handler = tc
	}

	tc.HookableBase = hooking.NewHookableBase()
	tc.TickScheduler = NewTickScheduler(handler, engine)
	tc.name = name
	tc.ticker = ticker

	return tc
}

// Name returns the name of the component.
func (c *TickingComponent) Name() string {
	return c.name
}

// Handle triggers the tick function of the TickingComponent.
func (c *TickingComponent) Handle(e any) error {
	if _, ok := e.(TickEvent); !ok {
		panic("timing: ticking component received a non-tick event")
	}

	return c.HandleTick()
}

// HandleTick runs one tick and schedules the next one if progress was made.
// Components that override Handle call this for their tick events.
func (c *TickingComponent) HandleTick() error {
	c.lock.Lock()
	if c.nextTickTime == c.CurrentTime() {
		c.scheduled = false
	}
	c.lock.Unlock()

	madeProgress := c.ticker.Tick()
	if madeProgress {
		c.TickLater()
	}

	return nil
}
