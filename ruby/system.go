package ruby

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/sarchlab/rubysim/coherence"
	"github.com/sarchlab/rubysim/coherence/directory"
	"github.com/sarchlab/rubysim/coherence/l1"
	"github.com/sarchlab/rubysim/coherence/sequencer"
	"github.com/sarchlab/rubysim/mem"
	"github.com/sarchlab/rubysim/noc"
	"github.com/sarchlab/rubysim/sim/timing"
	"github.com/sarchlab/rubysim/tracing"
)

// System is a built coherent memory system: one sequencer and L1 cache per
// core, a set of directories with their memories, and the network between
// them.
type System struct {
	opts     Options
	freq     timing.FreqInHz
	protocol string
	memType  string

	engine   *timing.SerialEngine
	network  *noc.Network
	mapper   *NUMAMapper
	backings []mem.Backing
	parts    *Parts

	history     *tracing.MsgHistory
	checker     *tracing.CoherenceChecker
	latency     *tracing.LatencyTracer
	transitions *tracing.TransitionCounter
}

// Options returns the options the system was built from.
func (s *System) Options() Options {
	return s.opts
}

// Protocol returns the name of the coherence protocol.
func (s *System) Protocol() string {
	return s.protocol
}

// MemType returns the canonical name of the memory model.
func (s *System) MemType() string {
	return s.memType
}

// Engine returns the engine that drives the system.
func (s *System) Engine() timing.Engine {
	return s.engine
}

// Network returns the network between the controllers.
func (s *System) Network() *noc.Network {
	return s.network
}

// Mapper returns how addresses map to directories.
func (s *System) Mapper() *NUMAMapper {
	return s.mapper
}

// Sequencer returns the sequencer of a core.
func (s *System) Sequencer(core int) *sequencer.Sequencer {
	return s.parts.Sequencers[core]
}

// Caches returns the L1 caches in core order.
func (s *System) Caches() []*l1.Comp {
	return s.parts.Caches
}

// Directories returns the directories in index order.
func (s *System) Directories() []*directory.Comp {
	return s.parts.Directories
}

// Backings returns the memories behind the directories.
func (s *System) Backings() []mem.Backing {
	return s.backings
}

// Transitions returns the counter of protocol transitions.
func (s *System) Transitions() *tracing.TransitionCounter {
	return s.transitions
}

// Issue starts a memory access on behalf of a core. The returned
// transaction completes while the engine runs.
func (s *System) Issue(
	core int,
	addr uint64,
	kind coherence.AccessKind,
	value uint64,
) (*coherence.Transaction, error) {
	if core < 0 || core >= len(s.parts.Sequencers) {
		return nil, fmt.Errorf("core %d does not exist, the system has %d",
			core, len(s.parts.Sequencers))
	}

	if !s.opts.InPhysMem(addr) {
		return nil, fmt.Errorf("address 0x%x is outside the physical memory",
			addr)
	}

	return s.parts.Sequencers[core].Issue(core, addr, kind, value)
}

// Run simulates until no event is left. A protocol violation aborts the run
// and is returned with the states of every controller for the address and
// the recent messages of the address.
func (s *System) Run() error {
	err := s.engine.Run()

	var violation *coherence.ProtocolViolation
	if errors.As(err, &violation) {
		s.explain(violation)
	}

	if err != nil {
		return err
	}

	return s.checker.Err()
}

func (s *System) explain(v *coherence.ProtocolViolation) {
	v.Involved = s.LineStates(v.Addr)
	v.History = s.history.For(v.Addr)
}

// LineStates returns the state of the line holding addr at every cache and
// directory.
func (s *System) LineStates(addr uint64) map[coherence.ControllerID]coherence.State {
	lineAddr := addr &^ (uint64(s.opts.CacheLineSize) - 1)
	states := make(map[coherence.ControllerID]coherence.State)

	for _, c := range s.parts.Caches {
		states[c.ID()] = c.LineState(lineAddr)
	}

	for _, d := range s.parts.Directories {
		states[d.ID()] = d.Lookup(lineAddr).State
	}

	return states
}

// LineHistory returns the recent messages about the line holding addr.
func (s *System) LineHistory(addr uint64) []coherence.MsgRecord {
	lineAddr := addr &^ (uint64(s.opts.CacheLineSize) - 1)
	return s.history.For(lineAddr)
}

// Quiescent tells if no controller and no link holds any work.
func (s *System) Quiescent() bool {
	if s.network.InFlight() > 0 {
		return false
	}

	for _, c := range s.parts.Caches {
		if c.Busy() {
			return false
		}
	}

	for _, d := range s.parts.Directories {
		if d.Busy() {
			return false
		}
	}

	return true
}

// ReadWord returns the coherent value of a word: the owner's copy if a cache
// holds the line with write permission, or the memory otherwise. It should
// only be called on a quiescent system.
func (s *System) ReadWord(addr uint64) (uint64, error) {
	if addr%coherence.WordSize != 0 || !s.opts.InPhysMem(addr) {
		return 0, fmt.Errorf("cannot read word at 0x%x", addr)
	}

	lineSize := uint64(s.opts.CacheLineSize)
	lineAddr := addr &^ (lineSize - 1)
	offset := addr - lineAddr

	idx := s.mapper.Index(lineAddr)
	entry := s.parts.Directories[idx].Lookup(lineAddr)

	if entry.Pending {
		return 0, fmt.Errorf("line 0x%x is in transition (%s)",
			lineAddr, entry.State)
	}

	if entry.HasOwner() {
		data, ok := s.parts.Caches[int(entry.Owner)].PeekLine(lineAddr)
		if !ok {
			return 0, fmt.Errorf("owner %d of line 0x%x holds no data",
				entry.Owner, lineAddr)
		}

		return binary.LittleEndian.Uint64(data[offset:]), nil
	}

	local := s.mapper.Converter(idx).ConvertExternalToInternal(addr)

	data, err := s.backings[idx].Storage().Read(local, coherence.WordSize)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint64(data), nil
}

// Stats summarizes a run.
type Stats struct {
	Cycles    timing.VTimeInCycle
	Seconds   timing.VTimeInSec
	Protocol  string
	MemType   string
	Completed uint64

	AvgLatency float64
	MaxLatency timing.VTimeInCycle
	Retries    uint64

	Caches      []l1.Stats
	Directories []directory.Stats
	Memories    []mem.Stats
	Network     noc.Stats

	DistinctTransitions int
	InvariantChecks     uint64
}

type statsReporter interface {
	Stats() mem.Stats
}

// Stats collects the counters of every part of the system.
func (s *System) Stats() Stats {
	now := s.engine.CurrentTime()

	st := Stats{
		Cycles:              now,
		Seconds:             s.freq.Seconds(now),
		Protocol:            s.protocol,
		MemType:             s.memType,
		Completed:           s.latency.TotalCount(),
		AvgLatency:          s.latency.AverageLatency(),
		MaxLatency:          s.latency.MaxLatency(),
		Retries:             s.latency.Retries(),
		Network:             s.network.Stats(),
		DistinctTransitions: s.transitions.Distinct(),
		InvariantChecks:     s.checker.Checks(),
	}

	for _, c := range s.parts.Caches {
		st.Caches = append(st.Caches, c.Stats())
	}

	for _, d := range s.parts.Directories {
		st.Directories = append(st.Directories, d.Stats())
	}

	for _, b := range s.backings {
		if r, ok := b.(statsReporter); ok {
			st.Memories = append(st.Memories, r.Stats())
		}
	}

	return st
}
