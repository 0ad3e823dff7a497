package ruby

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/sarchlab/rubysim/coherence"
	"github.com/sarchlab/rubysim/coherence/directory"
	"github.com/sarchlab/rubysim/coherence/l1"
	"github.com/sarchlab/rubysim/coherence/protocol"
	"github.com/sarchlab/rubysim/coherence/sequencer"
	"github.com/sarchlab/rubysim/mem"
	"github.com/sarchlab/rubysim/noc"
	"github.com/sarchlab/rubysim/sim/idgen"
	"github.com/sarchlab/rubysim/sim/timing"
)

// TopologyHint tells a protocol module which controller IDs to use and the
// topology that connects them.
type TopologyHint struct {
	Caches   []coherence.ControllerID
	Dirs     []coherence.ControllerID
	Topology *noc.Topology
}

// Deps are the shared pieces a protocol module wires its controllers to.
type Deps struct {
	Engine   timing.EventScheduler
	Network  *noc.Network
	Mapper   *NUMAMapper
	Backings []mem.Backing
	MsgIDs   idgen.Generator
	TxnIDs   idgen.Generator
}

// Parts are the controllers a protocol module created.
type Parts struct {
	Sequencers  []*sequencer.Sequencer
	Caches      []*l1.Comp
	Directories []*directory.Comp
	Topology    *noc.Topology
}

// A ProtocolModule creates the controllers of one coherence protocol.
type ProtocolModule interface {
	Name() string
	Description() string
	CreateSystem(o Options, hint TopologyHint, deps Deps) (*Parts, error)
}

// TableProtocol is a protocol module driven by transition tables.
type TableProtocol struct {
	proto *protocol.Protocol
}

// NewTableProtocol wraps a protocol definition into a module.
func NewTableProtocol(p *protocol.Protocol) *TableProtocol {
	return &TableProtocol{proto: p}
}

// Name returns the protocol name.
func (p *TableProtocol) Name() string {
	return p.proto.Name
}

// Description returns a one-line summary of the protocol.
func (p *TableProtocol) Description() string {
	return p.proto.Description
}

// Protocol returns the tables of the protocol.
func (p *TableProtocol) Protocol() *protocol.Protocol {
	return p.proto
}

// CreateSystem builds one sequencer and L1 cache per core and one
// directory per memory, and attaches them to the network.
func (p *TableProtocol) CreateSystem(
	o Options,
	hint TopologyHint,
	deps Deps,
) (*Parts, error) {
	if len(hint.Caches) != o.NumCPUs || len(hint.Dirs) != o.NumDirs {
		return nil, fmt.Errorf("%s: %d caches and %d directories requested, "+
			"topology has %d and %d", p.Name(), o.NumCPUs, o.NumDirs,
			len(hint.Caches), len(hint.Dirs))
	}

	if len(deps.Backings) != o.NumDirs {
		return nil, fmt.Errorf("%s: need one memory per directory", p.Name())
	}

	parts := &Parts{Topology: hint.Topology}

	cacheBuilder := l1.MakeBuilder().
		WithEngine(deps.Engine).
		WithTable(p.proto.Cache).
		WithNetwork(deps.Network).
		WithDirectoryMapper(deps.Mapper).
		WithIDGenerator(deps.MsgIDs).
		WithLineSize(o.CacheLineSize).
		WithNumLines(o.L1Lines).
		WithPorts(o.Ports).
		WithRecycleLatency(timing.VTimeInCycle(o.RecycleLatency))

	for i, id := range hint.Caches {
		cache := cacheBuilder.WithID(id).Build(fmt.Sprintf("L1Cache[%d]", i))
		deps.Network.Attach(id, cache)

		seq := sequencer.New(fmt.Sprintf("Sequencer[%d]", i), i, cache,
			deps.Engine, deps.TxnIDs, o.MaxOutstanding)

		parts.Caches = append(parts.Caches, cache)
		parts.Sequencers = append(parts.Sequencers, seq)
	}

	dirBuilder := directory.MakeBuilder().
		WithEngine(deps.Engine).
		WithTable(p.proto.Directory).
		WithNetwork(deps.Network).
		WithIDGenerator(deps.MsgIDs).
		WithLineSize(o.CacheLineSize).
		WithPorts(o.Ports)

	for i, id := range hint.Dirs {
		dir := dirBuilder.
			WithID(id).
			WithBacking(deps.Backings[i]).
			WithAddressConverter(deps.Mapper.Converter(i)).
			Build(fmt.Sprintf("Directory[%d]", i))
		deps.Network.Attach(id, dir)

		parts.Directories = append(parts.Directories, dir)
	}

	return parts, nil
}

// ProtocolRegistry maps protocol names to modules. Names are matched
// without regard to case.
type ProtocolRegistry struct {
	modules     map[string]ProtocolModule
	defaultName string
}

// NewProtocolRegistry creates an empty registry.
func NewProtocolRegistry() *ProtocolRegistry {
	return &ProtocolRegistry{
		modules: make(map[string]ProtocolModule),
	}
}

// DefaultProtocolRegistry creates a registry with MSI as the default and
// MESI as a variant.
func DefaultProtocolRegistry() *ProtocolRegistry {
	r := NewProtocolRegistry()

	for _, p := range []*protocol.Protocol{protocol.MSI(), protocol.MESI()} {
		if err := r.Register(NewTableProtocol(p)); err != nil {
			panic(err)
		}
	}

	if err := r.SetDefault("MSI"); err != nil {
		panic(err)
	}

	return r
}

// Register adds a module.
func (r *ProtocolRegistry) Register(m ProtocolModule) error {
	key := strings.ToUpper(m.Name())
	if key == "" {
		return fmt.Errorf("protocol name cannot be empty")
	}

	if _, dup := r.modules[key]; dup {
		return fmt.Errorf("protocol %q already registered", m.Name())
	}

	r.modules[key] = m

	return nil
}

// SetDefault selects the module used when no name is given.
func (r *ProtocolRegistry) SetDefault(name string) error {
	if _, ok := r.modules[strings.ToUpper(name)]; !ok {
		return fmt.Errorf("protocol %q is not registered", name)
	}

	r.defaultName = strings.ToUpper(name)

	return nil
}

// Resolve finds a module by name. An empty name gives the default. Unknown
// names yield a *coherence.ConfigurationError.
func (r *ProtocolRegistry) Resolve(name string) (ProtocolModule, error) {
	key := strings.ToUpper(name)
	if key == "" {
		key = r.defaultName
	}

	m, ok := r.modules[key]
	if !ok {
		return nil, coherence.NewConfigurationError("protocol",
			fmt.Sprintf("unknown protocol %q, known protocols: %v",
				name, r.Names()), nil)
	}

	return m, nil
}

// Names returns the registered protocol names in sorted order.
func (r *ProtocolRegistry) Names() []string {
	names := make([]string, 0, len(r.modules))
	for _, m := range r.modules {
		names = append(names, m.Name())
	}

	sort.Strings(names)

	return names
}

// Describe writes one line per protocol.
func (r *ProtocolRegistry) Describe(w io.Writer) error {
	for _, name := range r.Names() {
		m := r.modules[strings.ToUpper(name)]

		marker := " "
		if strings.ToUpper(name) == r.defaultName {
			marker = "*"
		}

		if _, err := fmt.Fprintf(w, "%s %-8s %s\n",
			marker, name, m.Description()); err != nil {
			return err
		}
	}

	return nil
}
