package directory

import (
	"errors"
	"fmt"
	"log"
	"reflect"

	"github.com/sarchlab/rubysim/coherence"
	"github.com/sarchlab/rubysim/sim/hooking"
	"github.com/sarchlab/rubysim/sim/queueing"
	"github.com/sarchlab/rubysim/sim/timing"
)

// Stats counts the work done by a directory.
type Stats struct {
	Transitions uint64
	Nacks       uint64
	MemReads    uint64
	MemWrites   uint64
	SendStalls  uint64
}

type memRspEvent struct {
	rsp *coherence.Msg
}

// Comp is a blocking directory controller. Requests to a line that is
// serving another request are NACKed, so the request that arrives first
// wins.
type Comp struct {
	*timing.TickingComponent

	id        coherence.ControllerID
	store     *Store
	network   Network
	backing   Backing
	converter AddressConverter
	lineSize  int
	ports     int

	inbound  queueing.Buffer
	outbound queueing.Buffer

	budgetCycle timing.VTimeInCycle
	budgetUsed  int

	pendingMem int
	err        error
	stats      Stats
}

// ID returns the controller ID of the directory.
func (c *Comp) ID() coherence.ControllerID {
	return c.id
}

// Store returns the state store of the directory.
func (c *Comp) Store() *Store {
	return c.store
}

// Lookup returns a snapshot of the directory state of a line.
func (c *Comp) Lookup(addr uint64) coherence.CacheLine {
	return c.store.Lookup(addr)
}

// Stats returns the counters of the directory.
func (c *Comp) Stats() Stats {
	return c.stats
}

// Busy tells if the directory still has messages to process or send, or
// memory accesses in progress.
func (c *Comp) Busy() bool {
	return c.inbound.Size() > 0 || c.outbound.Size() > 0 || c.pendingMem > 0
}

// Deliver receives a message from the network.
func (c *Comp) Deliver(msg *coherence.Msg) {
	c.inbound.Push(msg)
	c.TickNow()
}

// NotifyAvailable is called by the network when the directory can send
// again.
func (c *Comp) NotifyAvailable() {
	c.TickNow()
}

// Handle defines how the directory handles events.
func (c *Comp) Handle(e any) error {
	switch e := e.(type) {
	case timing.TickEvent:
		if err := c.HandleTick(); err != nil {
			return err
		}
	case memRspEvent:
		c.pendingMem--
		c.inbound.Push(e.rsp)
		c.TickNow()
	default:
		log.Panicf("cannot handle event of %s", reflect.TypeOf(e))
	}

	return c.err
}

// Tick processes up to one inbound message per port per cycle and sends
// what the transitions produced.
func (c *Comp) Tick() bool {
	if c.err != nil {
		return false
	}

	now := c.CurrentTime()
	if now != c.budgetCycle {
		c.budgetCycle = now
		c.budgetUsed = 0
	}

	madeProgress := c.send()

	for c.budgetUsed < c.ports && c.outbound.Size() == 0 {
		if !c.process() {
			break
		}

		c.budgetUsed++
		madeProgress = true
		madeProgress = c.send() || madeProgress
	}

	if c.budgetUsed >= c.ports && c.inbound.Size() > 0 &&
		c.outbound.Size() == 0 {
		madeProgress = true
	}

	return madeProgress
}

func (c *Comp) process() bool {
	item := c.inbound.Peek()
	if item == nil || c.err != nil {
		return false
	}

	msg := item.(*coherence.Msg)

	event, err := c.store.Classify(msg)
	if err != nil {
		c.err = err
		return false
	}

	from := c.store.Lookup(msg.Addr).State

	to, out, err := c.store.Apply(msg.Addr, event, msg)
	if err != nil {
		c.err = err
		return false
	}

	c.inbound.Pop()
	c.stats.Transitions++

	if c.NumHooks() > 0 {
		c.InvokeHook(hooking.HookCtx{
			Domain: c,
			Pos:    coherence.HookPosTransition,
			Item:   msg,
			Detail: coherence.TransitionInfo{
				Machine:    coherence.MachineDirectory,
				Controller: c.id,
				Addr:       msg.Addr,
				From:       from,
				To:         to,
				Event:      string(event),
			},
		})
	}

	for _, m := range out {
		c.dispatch(m)
	}

	return true
}

func (c *Comp) dispatch(msg *coherence.Msg) {
	switch msg.Type {
	case coherence.MsgMemRead:
		c.readMemory(msg)
	case coherence.MsgMemWrite:
		c.writeMemory(msg)
	default:
		if msg.Type == coherence.MsgNack {
			c.stats.Nacks++
		}

		c.outbound.Push(msg)
	}
}

func (c *Comp) localAddr(addr uint64) uint64 {
	if c.converter == nil {
		return addr
	}

	return c.converter.ConvertExternalToInternal(addr)
}

func (c *Comp) readMemory(msg *coherence.Msg) {
	now := c.CurrentTime()

	data, latency, err := c.backing.Read(now, c.localAddr(msg.Addr), c.lineSize)
	if err != nil {
		c.err = fmt.Errorf("%s: reading 0x%x: %w", c.Name(), msg.Addr, err)
		return
	}

	c.stats.MemReads++
	c.pendingMem++

	rsp := msg.Clone()
	rsp.Type = coherence.MsgMemData
	rsp.Data = data

	c.Engine.Schedule(timing.ScheduledEvent{
		Event:   memRspEvent{rsp: rsp},
		Time:    now + latency,
		Handler: c,
	})
}

// writeMemory posts a write. The data is visible to the next read right
// away, so the directory does not wait for the write to complete.
func (c *Comp) writeMemory(msg *coherence.Msg) {
	_, err := c.backing.Write(c.CurrentTime(), c.localAddr(msg.Addr), msg.Data)
	if err != nil {
		c.err = fmt.Errorf("%s: writing 0x%x: %w", c.Name(), msg.Addr, err)
		return
	}

	c.stats.MemWrites++
}

func (c *Comp) send() bool {
	madeProgress := false

	for c.outbound.Size() > 0 {
		msg := c.outbound.Peek().(*coherence.Msg)

		err := c.network.Send(msg)
		if errors.Is(err, coherence.ErrLinkSaturated) {
			c.stats.SendStalls++
			return madeProgress
		}

		if err != nil {
			c.err = fmt.Errorf("%s: sending %s: %w", c.Name(), msg, err)
			return madeProgress
		}

		c.outbound.Pop()
		madeProgress = true
	}

	return madeProgress
}
