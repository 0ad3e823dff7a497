package tracing

import (
	"fmt"
	"sort"

	"github.com/sarchlab/rubysim/coherence"
	"github.com/sarchlab/rubysim/coherence/protocol"
	"github.com/sarchlab/rubysim/sim/hooking"
	"github.com/sarchlab/rubysim/sim/timing"
)

// InvariantError reports a cycle in which an address had a writer together
// with another writer or a reader.
type InvariantError struct {
	Cycle   timing.VTimeInCycle
	Addr    uint64
	Writers []coherence.ControllerID
	Readers []coherence.ControllerID
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf(
		"coherence invariant broken at cycle %d, address 0x%x: "+
			"writers %v, readers %v",
		e.Cycle, e.Addr, e.Writers, e.Readers)
}

// CoherenceChecker verifies the single-writer, multiple-reader invariant.
// It follows the transitions of the L1 caches and checks the addresses they
// touched after every engine event. Only the first broken invariant is kept.
type CoherenceChecker struct {
	timeTeller timing.TimeTeller
	states     map[uint64]map[coherence.ControllerID]coherence.State
	dirty      map[uint64]bool
	err        *InvariantError
	checks     uint64
}

// NewCoherenceChecker creates a checker. It must be attached to the caches
// and to the engine.
func NewCoherenceChecker(timeTeller timing.TimeTeller) *CoherenceChecker {
	return &CoherenceChecker{
		timeTeller: timeTeller,
		states:     make(map[uint64]map[coherence.ControllerID]coherence.State),
		dirty:      make(map[uint64]bool),
	}
}

// Func handles cache transitions and engine events.
func (c *CoherenceChecker) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case coherence.HookPosTransition:
		c.record(ctx)
	case timing.HookPosAfterEvent:
		c.check()
	}
}

func (c *CoherenceChecker) record(ctx hooking.HookCtx) {
	info, ok := ctx.Detail.(coherence.TransitionInfo)
	if !ok || info.Machine != coherence.MachineL1Cache {
		return
	}

	lines, ok := c.states[info.Addr]
	if !ok {
		lines = make(map[coherence.ControllerID]coherence.State)
		c.states[info.Addr] = lines
	}

	if info.To == protocol.CacheI {
		delete(lines, info.Controller)
	} else {
		lines[info.Controller] = info.To
	}

	if len(lines) == 0 {
		delete(c.states, info.Addr)
	}

	c.dirty[info.Addr] = true
}

func (c *CoherenceChecker) check() {
	if len(c.dirty) == 0 {
		return
	}

	addrs := make([]uint64, 0, len(c.dirty))
	for addr := range c.dirty {
		addrs = append(addrs, addr)
	}

	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })

	for _, addr := range addrs {
		delete(c.dirty, addr)
		c.checks++

		if c.err != nil {
			continue
		}

		c.checkAddr(addr)
	}
}

func (c *CoherenceChecker) checkAddr(addr uint64) {
	var writers, readers []coherence.ControllerID

	for id, s := range c.states[addr] {
		switch s {
		case protocol.CacheM, protocol.CacheE:
			writers = append(writers, id)
		case protocol.CacheS, protocol.CacheSMD:
			readers = append(readers, id)
		}
	}

	if len(writers) == 0 || (len(writers) == 1 && len(readers) == 0) {
		return
	}

	sortIDs(writers)
	sortIDs(readers)

	c.err = &InvariantError{
		Cycle:   c.timeTeller.CurrentTime(),
		Addr:    addr,
		Writers: writers,
		Readers: readers,
	}
}

func sortIDs(ids []coherence.ControllerID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

// Err returns the first broken invariant, or nil.
func (c *CoherenceChecker) Err() error {
	if c.err == nil {
		return nil
	}

	return c.err
}

// Checks returns how many address checks were performed.
func (c *CoherenceChecker) Checks() uint64 {
	return c.checks
}
