package ruby

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/sarchlab/rubysim/coherence"
	"github.com/sarchlab/rubysim/mem"
	"github.com/sarchlab/rubysim/noc"
	"github.com/sarchlab/rubysim/sim/idgen"
	"github.com/sarchlab/rubysim/sim/timing"
	"github.com/sarchlab/rubysim/tracing"
)

// CreateSystem builds a system from options. It is the only place where
// construction can fail; every failure is returned as a
// *coherence.ConfigurationError before any simulation happens.
func CreateSystem(
	o Options,
	protocols *ProtocolRegistry,
	memories *mem.Registry,
) (*System, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}

	module, err := protocols.Resolve(o.Protocol)
	if err != nil {
		return nil, err
	}

	memType, memCtor, err := memories.Resolve(o.MemType)
	if err != nil {
		return nil, err
	}

	freq, err := timing.ParseFreq(o.ClockRate)
	if err != nil {
		return nil, coherence.NewConfigurationError("clock-rate", "", err)
	}

	s := &System{
		opts:     o,
		freq:     freq,
		protocol: module.Name(),
		memType:  memType,
		engine:   timing.NewSerialEngine(),
	}

	hint, err := s.buildTopology()
	if err != nil {
		return nil, err
	}

	if err := s.buildNetwork(hint.Topology); err != nil {
		return nil, err
	}

	s.mapper = NewNUMAMapper(o, hint.Dirs)

	if err := s.buildMemories(memCtor); err != nil {
		return nil, err
	}

	parts, err := module.CreateSystem(o, hint, Deps{
		Engine:   s.engine,
		Network:  s.network,
		Mapper:   s.mapper,
		Backings: s.backings,
		MsgIDs:   idgen.New(),
		TxnIDs:   idgen.New(),
	})
	if err != nil {
		return nil, asConfigurationError("protocol", err)
	}

	s.parts = parts
	s.attachTracers()

	return s, nil
}

func asConfigurationError(option string, err error) error {
	var cfgErr *coherence.ConfigurationError
	if errors.As(err, &cfgErr) {
		return err
	}

	return coherence.NewConfigurationError(option, "", err)
}

func (s *System) buildTopology() (TopologyHint, error) {
	o := s.opts

	var hint TopologyHint

	for i := 0; i < o.NumCPUs; i++ {
		hint.Caches = append(hint.Caches, coherence.ControllerID(i))
	}

	for i := 0; i < o.NumDirs; i++ {
		hint.Dirs = append(hint.Dirs, coherence.ControllerID(o.NumCPUs+i))
	}

	link := noc.DefaultLinkParams()
	link.Latency = timing.VTimeInCycle(o.LinkLatency)
	link.Capacity = o.LinkCapacity
	link.Bandwidth = o.LinkBandwidth

	topo, err := noc.BuildTopology(noc.TopologyDesc{
		Kind:     o.Topology,
		MeshRows: o.MeshRows,
		Link:     link,
		External: link,
	}, hint.Caches, hint.Dirs)
	if err != nil {
		return hint, coherence.NewConfigurationError("topology", "", err)
	}

	hint.Topology = topo

	return hint, nil
}

func (s *System) buildNetwork(topo *noc.Topology) error {
	o := s.opts

	b := noc.MakeBuilder().
		WithEngine(s.engine).
		WithTopology(topo).
		WithClass(o.NetworkClass).
		WithRouterLatency(timing.VTimeInCycle(o.RouterLatency))

	if o.FaultModel {
		b = b.WithFaultModel(noc.NewFaultModel(o.RandomSeed,
			o.FaultProbability, timing.VTimeInCycle(o.FaultPenalty)))
	}

	network, err := b.Build("Network")
	if err != nil {
		return coherence.NewConfigurationError("network", "", err)
	}

	s.network = network

	return nil
}

func (s *System) buildMemories(ctor mem.Constructor) error {
	o := s.opts

	var total uint64

	for i := 0; i < o.NumDirs; i++ {
		backing, err := ctor(mem.Config{
			Name:           fmt.Sprintf("Memory[%d]", i),
			Capacity:       s.mapper.LocalCapacity(i),
			Latency:        timing.VTimeInCycle(o.MemLatency),
			NumBanks:       o.MemBanks,
			InterleaveSize: uint64(o.CacheLineSize),
		})
		if err != nil {
			return asConfigurationError("mem-type", err)
		}

		s.backings = append(s.backings, backing)
		total += backing.Storage().Capacity()
	}

	if total != o.PhysMemSize() {
		return coherence.NewConfigurationError("mem-type", fmt.Sprintf(
			"memories hold %d bytes but the physical memory is %d bytes",
			total, o.PhysMemSize()), nil)
	}

	return nil
}

func (s *System) attachTracers() {
	s.history = tracing.NewMsgHistory(s.engine, s.opts.HistoryDepth)
	s.checker = tracing.NewCoherenceChecker(s.engine)
	s.latency = tracing.NewLatencyTracer()
	s.transitions = tracing.NewTransitionCounter()

	s.network.AcceptHook(s.history)
	s.engine.AcceptHook(s.checker)

	for _, c := range s.parts.Caches {
		c.AcceptHook(s.checker)
		c.AcceptHook(s.transitions)
	}

	for _, d := range s.parts.Directories {
		d.AcceptHook(s.transitions)
	}

	for _, seq := range s.parts.Sequencers {
		seq.AcceptHook(s.latency)
	}

	if s.opts.Debug {
		logger := log.New(os.Stderr, "", 0)
		s.network.AcceptHook(tracing.NewMsgLogger(logger, s.engine))
	}
}
