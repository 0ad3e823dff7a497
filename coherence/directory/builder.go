package directory

import (
	"github.com/sarchlab/rubysim/coherence"
	"github.com/sarchlab/rubysim/coherence/protocol"
	"github.com/sarchlab/rubysim/sim/idgen"
	"github.com/sarchlab/rubysim/sim/queueing"
	"github.com/sarchlab/rubysim/sim/timing"
)

// Builder can build directory controllers.
type Builder struct {
	engine    timing.EventScheduler
	table     *protocol.Table
	id        coherence.ControllerID
	network   Network
	backing   Backing
	converter AddressConverter
	ids       idgen.Generator
	lineSize  int
	ports     int
}

// MakeBuilder returns a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		lineSize: 64,
		ports:    1,
	}
}

// WithEngine sets the engine.
func (b Builder) WithEngine(engine timing.EventScheduler) Builder {
	b.engine = engine
	return b
}

// WithTable sets the directory transition table.
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

// WithBacking sets the memory behind the directory.
func (b Builder) WithBacking(m Backing) Builder {
	b.backing = m
	return b
}

// WithAddressConverter sets how system addresses map into the backing
// memory. Without a converter, addresses are used as they are.
func (b Builder) WithAddressConverter(c AddressConverter) Builder {
	b.converter = c
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

// WithPorts sets the number of transitions processed per cycle.
func (b Builder) WithPorts(n int) Builder {
	b.ports = n
	return b
}

// Build creates a directory controller.
func (b Builder) Build(name string) *Comp {
	if b.engine == nil || b.table == nil || b.network == nil ||
		b.backing == nil {
		panic("directory builder requires an engine, a table, a network, " +
			"and a backing memory")
	}

	ids := b.ids
	if ids == nil {
		ids = idgen.New()
	}

	c := &Comp{
		id:        b.id,
		store:     NewStore(b.table, b.id, ids),
		network:   b.network,
		backing:   b.backing,
		converter: b.converter,
		lineSize:  b.lineSize,
		ports:     b.ports,
	}

	c.TickingComponent = timing.NewTickingComponentWithHandler(
		name, b.engine, c, c)
	c.inbound = queueing.NewBuffer(name+".Inbound", queueing.Unbounded)
	c.outbound = queueing.NewBuffer(name+".Outbound", queueing.Unbounded)

	return c
}
