package noc

import (
	"fmt"

	"github.com/sarchlab/rubysim/coherence"
	"github.com/sarchlab/rubysim/sim/hooking"
	"github.com/sarchlab/rubysim/sim/timing"
)

// Builder can build networks.
type Builder struct {
	engine        timing.EventScheduler
	topology      *Topology
	class         string
	routerLatency timing.VTimeInCycle
	fault         *FaultModel
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		class:         NetworkSimple,
		routerLatency: 1,
	}
}

// WithEngine sets the engine that the network schedules its events on.
func (b Builder) WithEngine(engine timing.EventScheduler) Builder {
	b.engine = engine
	return b
}

// WithTopology sets the topology the network runs on.
func (b Builder) WithTopology(t *Topology) Builder {
	b.topology = t
	return b
}

// WithClass sets the network class.
func (b Builder) WithClass(class string) Builder {
	b.class = class
	return b
}

// WithRouterLatency sets the cycles a garnet router adds per hop.
func (b Builder) WithRouterLatency(latency timing.VTimeInCycle) Builder {
	b.routerLatency = latency
	return b
}

// WithFaultModel enables the fault model.
func (b Builder) WithFaultModel(f *FaultModel) Builder {
	b.fault = f
	return b
}

// Build creates the network.
func (b Builder) Build(name string) (*Network, error) {
	if b.engine == nil || b.topology == nil {
		return nil, fmt.Errorf("%s: engine and topology are required", name)
	}

	known := false
	for _, c := range NetworkClasses() {
		known = known || c == b.class
	}

	if !known {
		return nil, fmt.Errorf("%s: unknown network class %q", name, b.class)
	}

	if b.fault != nil && !SupportsFaultModel(b.class) {
		return nil, fmt.Errorf("%s: the fault model requires the %s network",
			name, NetworkGarnetFixed)
	}

	n := &Network{
		HookableBase:  hooking.NewHookableBase(),
		name:          name,
		engine:        b.engine,
		topo:          b.topology,
		class:         b.class,
		routerLatency: b.routerLatency,
		fault:         b.fault,
		endpoints:     make(map[coherence.ControllerID]Endpoint),
		wakeups:       make(map[timing.VTimeInCycle]bool),
		congested:     make(map[LinkID]bool),
		stats: Stats{
			Sent:      make(map[coherence.MsgType]uint64),
			Delivered: make(map[coherence.MsgType]uint64),
		},
	}

	for _, l := range b.topology.Links() {
		n.links = append(n.links, &linkState{Link: l})
	}

	return n, nil
}
