package l1

import (
	"github.com/sarchlab/rubysim/coherence"
	"github.com/sarchlab/rubysim/coherence/protocol"
	"github.com/sarchlab/rubysim/sim/idgen"
	"github.com/sarchlab/rubysim/sim/queueing"
	"github.com/sarchlab/rubysim/sim/timing"
)

// Builder can build L1 cache controllers.
type Builder struct {
	engine         timing.EventScheduler
	table          *protocol.Table
	id             coherence.ControllerID
	network        Network
	mapper         DirectoryMapper
	ids            idgen.Generator
	lineSize       int
	numLines       int
	ports          int
	recycleLatency timing.VTimeInCycle
}

// MakeBuilder returns a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		lineSize:       64,
		numLines:       512,
		ports:          1,
		recycleLatency: 10,
	}
}

// WithEngine sets the engine.
func (b Builder) WithEngine(engine timing.EventScheduler) Builder {
	b.engine = engine
	return b
}

// WithTable sets the cache transition table.
func (b Builder) WithTable(table *protocol.Table) Builder {
	b.table = table
	return b
}

// WithID sets the controller ID.
func (b Builder) WithID(id coherence.ControllerID) Builder {
	b.id = id
	return b
}

// WithNetwork sets the network that carries the outgoing messages.
func (b Builder) WithNetwork(n Network) Builder {
	b.network = n
	return b
}

// WithDirectoryMapper sets how home directories are found.
func (b Builder) WithDirectoryMapper(m DirectoryMapper) Builder {
	b.mapper = m
	return b
}

// WithIDGenerator sets the generator of message IDs.
func (b Builder) WithIDGenerator(g idgen.Generator) Builder {
	b.ids = g
	return b
}

// WithLineSize sets the cache line size in bytes.
func (b Builder) WithLineSize(n int) Builder {
	b.lineSize = n
	return b
}

// WithNumLines sets how many lines the cache can hold.
func (b Builder) WithNumLines(n int) Builder {
	b.numLines = n
	return b
}

// WithPorts sets the number of transitions processed per cycle.
func (b Builder) WithPorts(n int) Builder {
	b.ports = n
	return b
}

// WithRecycleLatency sets how long a NACKed request waits before it is
// sent again.
func (b Builder) WithRecycleLatency(cycles timing.VTimeInCycle) Builder {
	b.recycleLatency = cycles
	return b
}

// Build creates an L1 cache controller.
func (b Builder) Build(name string) *Comp {
	if b.engine == nil || b.table == nil || b.network == nil ||
		b.mapper == nil {
		panic("L1 builder requires an engine, a table, a network, " +
			"and a directory mapper")
	}

	ids := b.ids
	if ids == nil {
		ids = idgen.New()
	}

	c := &Comp{
		id:             b.id,
		table:          b.table,
		network:        b.network,
		mapper:         b.mapper,
		ids:            ids,
		lineSize:       b.lineSize,
		capacity:       b.numLines,
		ports:          b.ports,
		recycleLatency: b.recycleLatency,
		lines:          make(map[uint64]*line),
		readySet:       make(map[uint64]bool),
	}

	c.TickingComponent = timing.NewTickingComponentWithHandler(
		name, b.engine, c, c)
	c.mandatory = queueing.NewBuffer(name+".Mandatory", queueing.Unbounded)
	c.inbound = queueing.NewBuffer(name+".Inbound", queueing.Unbounded)
	c.outbound = queueing.NewBuffer(name+".Outbound", queueing.Unbounded)

	return c
}
