package timing

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/sarchlab/rubysim/sim/hooking"
)

// SerialEngine processes scheduled events sequentially in time order.
type SerialEngine struct {
	*hooking.HookableBase

	timeLock sync.RWMutex
	now      VTimeInCycle

	queueLock      sync.Mutex
	queue          *eventQueue
	secondaryQueue *eventQueue
	nextSeq        uint64

	isPaused     bool
	isPausedLock sync.Mutex
	pauseLock    sync.Mutex

	singleRunLock sync.Mutex
}

// NewSerialEngine creates a SerialEngine.
func NewSerialEngine() *SerialEngine {
	return &SerialEngine{
		HookableBase:   hooking.NewHookableBase(),
		queue:          newEventQueue(),
		secondaryQueue: newEventQueue(),
	}
}

// Schedule registers an event to be handled in the future.
func (e *SerialEngine) Schedule(evt ScheduledEvent) {
	now := e.readNow()
	if evt.Time < now {
		panic(fmt.Sprintf(
			"timing: cannot schedule event in the past, evt %s @ %d, now %d",
			reflect.TypeOf(evt.Event), evt.Time, now,
		))
	}

	e.queueLock.Lock()
	defer e.queueLock.Unlock()

	eventCopy := evt
	eventCopy.seq = e.nextSeq
	e.nextSeq++

	if evt.IsSecondary {
		e.secondaryQueue.Push(&eventCopy)
		return
	}

	e.queue.Push(&eventCopy)
}

func (e *SerialEngine) readNow() VTimeInCycle {
	e.timeLock.RLock()
	t := e.now
	e.timeLock.RUnlock()

	return t
}

func (e *SerialEngine) writeNow(t VTimeInCycle) {
	e.timeLock.Lock()
	e.now = t
	e.timeLock.Unlock()
}

// Run processes all scheduled events until completion. If a handler returns
// an error, the run stops and the error is returned. Events that have not
// been processed stay in the queue.
func (e *SerialEngine) Run() error {
	e.singleRunLock.Lock()
	defer e.singleRunLock.Unlock()

	for {
		e.pauseLock.Lock()

		evt := e.nextEvent()
		if evt == nil {
			e.pauseLock.Unlock()
			return nil
		}

		err := e.dispatch(evt)

		e.pauseLock.Unlock()

		if err != nil {
			return err
		}
	}
}

func (e *SerialEngine) dispatch(evt *ScheduledEvent) error {
	now := e.readNow()
	if evt.Time < now {
		panic(fmt.Sprintf(
			"timing: cannot run event in the past, evt %s @ %d, now %d",
			reflect.TypeOf(evt.Event), evt.Time, now,
		))
	}

	e.writeNow(evt.Time)

	hookCtx := hooking.HookCtx{
		Domain: e,
		Pos:    HookPosBeforeEvent,
		Item:   evt,
	}
	e.InvokeHook(hookCtx)

	var err error
	if evt.Handler != nil {
		err = evt.Handler.Handle(evt.Event)
	}

	hookCtx.Pos = HookPosAfterEvent
	e.InvokeHook(hookCtx)

	return err
}

func (e *SerialEngine) nextEvent() *ScheduledEvent {
	e.queueLock.Lock()
	defer e.queueLock.Unlock()

	if e.queue.Len() == 0 {
		return e.secondaryQueue.Pop()
	}

	if e.secondaryQueue.Len() == 0 {
		return e.queue.Pop()
	}

	primary := e.queue.Peek()
	secondary := e.secondaryQueue.Peek()

	if primary.Time <= secondary.Time {
		return e.queue.Pop()
	}

	return e.secondaryQueue.Pop()
}

// Pending returns the number of events that are waiting to be processed.
func (e *SerialEngine) Pending() int {
	e.queueLock.Lock()
	defer e.queueLock.Unlock()

	return e.queue.Len() + e.secondaryQueue.Len()
}

// Pause prevents the engine from dispatching more events until Continue is
// called.
func (e *SerialEngine) Pause() {
	e.isPausedLock.Lock()
	defer e.isPausedLock.Unlock()

	if e.isPaused {
		return
	}

	e.pauseLock.Lock()
	e.isPaused = true
}

// Continue resumes event processing after a Pause.
func (e *SerialEngine) Continue() {
	e.isPausedLock.Lock()
	defer e.isPausedLock.Unlock()

	if !e.isPaused {
		return
	}

	e.pauseLock.Unlock()
	e.isPaused = false
}

// CurrentTime returns the cycle of the most recently executed event.
func (e *SerialEngine) CurrentTime() VTimeInCycle {
	return e.readNow()
}

var _ Engine = (*SerialEngine)(nil)
