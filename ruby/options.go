// Package ruby assembles a coherent memory system from options: it picks the
// protocol and the memory model by name, builds the topology and the
// network, and hands back a System that can be driven and inspected.
package ruby

import (
	"errors"
	"fmt"
	"math/bits"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/sarchlab/rubysim/coherence"
	"github.com/sarchlab/rubysim/noc"
	"github.com/sarchlab/rubysim/sim/timing"
)

// Options holds every knob of a system.
type Options struct {
	Protocol  string `yaml:"protocol"`
	ClockRate string `yaml:"clock-rate"`

	NumCPUs        int   `yaml:"num-cpus"`
	NumDirs        int   `yaml:"num-dirs"`
	CacheLineSize  int   `yaml:"cache-line-size"`
	NUMAHighBit    int   `yaml:"numa-high-bit"`
	Ports          int   `yaml:"ports"`
	RandomSeed     int64 `yaml:"random-seed"`
	RecycleLatency int   `yaml:"recycle-latency"`
	L1Lines        int   `yaml:"l1-lines"`
	MaxOutstanding int   `yaml:"max-outstanding"`

	NetworkClass     string  `yaml:"network"`
	Topology         string  `yaml:"topology"`
	MeshRows         int     `yaml:"mesh-rows"`
	LinkLatency      int     `yaml:"link-latency"`
	LinkCapacity     int     `yaml:"link-capacity"`
	LinkBandwidth    int     `yaml:"link-bandwidth"`
	RouterLatency    int     `yaml:"router-latency"`
	FaultModel       bool    `yaml:"fault-model"`
	FaultProbability float64 `yaml:"fault-probability"`
	FaultPenalty     int     `yaml:"fault-penalty"`

	MemType    string      `yaml:"mem-type"`
	MemLatency int         `yaml:"mem-latency"`
	MemBanks   int         `yaml:"mem-banks"`
	PhysMem    []AddrRange `yaml:"phys-mem"`

	// DirSizes is the memory each directory serves. Left empty, each
	// directory gets the blocks the NUMA bits deal it. When given, the
	// sizes must match that split.
	DirSizes []Size `yaml:"dir-sizes,omitempty"`

	// HistoryDepth is the number of messages per address kept for
	// protocol violation reports.
	HistoryDepth int  `yaml:"history-depth"`
	Debug        bool `yaml:"debug"`
}

// DefaultOptions returns the options of a small MSI system.
func DefaultOptions() Options {
	return Options{
		Protocol:  "MSI",
		ClockRate: "1GHz",

		NumCPUs:        2,
		NumDirs:        1,
		CacheLineSize:  64,
		Ports:          1,
		RandomSeed:     1234,
		RecycleLatency: 10,
		L1Lines:        512,
		MaxOutstanding: 16,

		NetworkClass:     noc.NetworkSimple,
		Topology:         noc.TopologyCrossbar,
		LinkLatency:      1,
		LinkCapacity:     16,
		RouterLatency:    1,
		FaultProbability: 0.01,
		FaultPenalty:     4,

		MemType:    "",
		MemLatency: 30,
		MemBanks:   8,
		PhysMem:    []AddrRange{{Start: 0, Size: Size(512 << 20)}},

		HistoryDepth: 32,
	}
}

// LoadOptions reads a YAML file over the default options.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()

	data, err := os.ReadFile(path)
	if err != nil {
		return opts, coherence.NewConfigurationError(
			"config", "cannot read "+path, err)
	}

	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, coherence.NewConfigurationError(
			"config", "cannot parse "+path, err)
	}

	return opts, nil
}

// WriteYAML encodes the options in the format LoadOptions reads.
func (o Options) WriteYAML() ([]byte, error) {
	return yaml.Marshal(o)
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

func log2(n int) int {
	return bits.TrailingZeros(uint(n))
}

func invalid(option, format string, args ...any) error {
	return coherence.NewConfigurationError(option,
		fmt.Sprintf(format, args...), nil)
}

// BlockBits returns the number of address bits inside a cache line.
func (o Options) BlockBits() int {
	return log2(o.CacheLineSize)
}

// DirBits returns the number of address bits that select a directory.
func (o Options) DirBits() int {
	return log2(o.NumDirs)
}

// EffectiveNUMAHighBit returns the highest directory selection bit. A zero
// NUMAHighBit places the directory bits right above the block offset.
func (o Options) EffectiveNUMAHighBit() int {
	if o.NUMAHighBit != 0 {
		return o.NUMAHighBit
	}

	return o.BlockBits() + o.DirBits() - 1
}

// Validate checks the options. The first problem found is returned as a
// *coherence.ConfigurationError.
func (o Options) Validate() error {
	checks := []func() error{
		o.validateCore,
		o.validateNUMA,
		o.validateNetwork,
		o.validateMemory,
		o.checkMemorySize,
	}

	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}

	return nil
}

func (o Options) validateCore() error {
	if _, err := timing.ParseFreq(o.ClockRate); err != nil {
		return coherence.NewConfigurationError("clock-rate", "", err)
	}

	positive := []struct {
		option string
		value  int
	}{
		{"num-cpus", o.NumCPUs},
		{"num-dirs", o.NumDirs},
		{"ports", o.Ports},
		{"recycle-latency", o.RecycleLatency},
		{"l1-lines", o.L1Lines},
		{"max-outstanding", o.MaxOutstanding},
		{"history-depth", o.HistoryDepth},
	}

	for _, p := range positive {
		if p.value <= 0 {
			return invalid(p.option, "must be positive, got %d", p.value)
		}
	}

	if !isPowerOfTwo(o.CacheLineSize) ||
		o.CacheLineSize < coherence.WordSize {
		return invalid("cache-line-size",
			"must be a power of two of at least %d bytes, got %d",
			coherence.WordSize, o.CacheLineSize)
	}

	return nil
}

func (o Options) validateNUMA() error {
	if !isPowerOfTwo(o.NumDirs) {
		return invalid("num-dirs",
			"must be a power of two, got %d", o.NumDirs)
	}

	lowest := o.BlockBits() + o.DirBits() - 1
	high := o.EffectiveNUMAHighBit()

	if o.NUMAHighBit != 0 && (high < lowest || high >= 64) {
		return invalid("numa-high-bit",
			"must be in [%d, 63] for %d directories and %d-byte lines, got %d",
			lowest, o.NumDirs, o.CacheLineSize, high)
	}

	return nil
}

func (o Options) validateNetwork() error {
	if !contains(noc.NetworkClasses(), o.NetworkClass) {
		return invalid("network", "unknown network class %q, known: %v",
			o.NetworkClass, noc.NetworkClasses())
	}

	if o.FaultModel && !noc.SupportsFaultModel(o.NetworkClass) {
		return invalid("fault-model",
			"the fault model requires the %s network, got %s",
			noc.NetworkGarnetFixed, o.NetworkClass)
	}

	if o.FaultProbability < 0 || o.FaultProbability > 1 {
		return invalid("fault-probability",
			"must be in [0, 1], got %g", o.FaultProbability)
	}

	if o.LinkLatency <= 0 {
		return invalid("link-latency",
			"must be positive, got %d", o.LinkLatency)
	}

	if o.LinkCapacity <= 0 {
		return invalid("link-capacity",
			"must be positive, got %d", o.LinkCapacity)
	}

	if o.LinkBandwidth < 0 || o.RouterLatency < 0 || o.FaultPenalty < 0 {
		return invalid("network",
			"link bandwidth, router latency and fault penalty "+
				"cannot be negative")
	}

	return nil
}

func (o Options) validateMemory() error {
	if o.MemLatency < 0 {
		return invalid("mem-latency",
			"cannot be negative, got %d", o.MemLatency)
	}

	if len(o.PhysMem) == 0 {
		return invalid("phys-mem", "no physical memory range")
	}

	ranges := append([]AddrRange(nil), o.PhysMem...)
	sort.Slice(ranges, func(i, j int) bool {
		return ranges[i].Start < ranges[j].Start
	})

	line := uint64(o.CacheLineSize)

	for i, r := range ranges {
		if r.Size == 0 || uint64(r.Size)%line != 0 ||
			uint64(r.Start)%line != 0 {
			return invalid("phys-mem",
				"range %d (start %s, size %s) must be non-empty and "+
					"aligned to the line size", i, r.Start, r.Size)
		}

		if r.End() < uint64(r.Start) {
			return invalid("phys-mem", "range %d wraps around", i)
		}

		if i > 0 && uint64(r.Start) < ranges[i-1].End() {
			return invalid("phys-mem", "ranges overlap at %s", r.Start)
		}
	}

	return nil
}

// PhysMemSize returns the total size of the physical memory ranges.
func (o Options) PhysMemSize() uint64 {
	var total uint64
	for _, r := range o.PhysMem {
		total += uint64(r.Size)
	}

	return total
}

// DirCapacities returns the number of bytes each directory serves: the
// blocks the NUMA bits deal to it from the packed physical memory.
func (o Options) DirCapacities() []uint64 {
	numBits := uint(o.DirBits())
	lowBit := uint(o.EffectiveNUMAHighBit()) + 1 - numBits
	total := o.PhysMemSize()

	caps := make([]uint64, o.NumDirs)
	for i := range caps {
		caps[i] = interleavedShare(total, lowBit, numBits, i)
	}

	return caps
}

// checkMemorySize makes sure the directories serve exactly the physical
// memory.
func (o Options) checkMemorySize() error {
	caps := o.DirCapacities()

	var total uint64
	for _, c := range caps {
		total += c
	}

	if total != o.PhysMemSize() {
		return invalid("phys-mem",
			"directories serve %s but the physical memory is %s",
			Size(total), Size(o.PhysMemSize()))
	}

	if len(o.DirSizes) == 0 {
		return nil
	}

	if len(o.DirSizes) != o.NumDirs {
		return invalid("dir-sizes", "%d sizes given for %d directories",
			len(o.DirSizes), o.NumDirs)
	}

	total = 0
	for _, s := range o.DirSizes {
		total += uint64(s)
	}

	if total != o.PhysMemSize() {
		return invalid("dir-sizes",
			"directories serve %s but the physical memory is %s",
			Size(total), Size(o.PhysMemSize()))
	}

	for i, s := range o.DirSizes {
		if uint64(s) != caps[i] {
			return invalid("dir-sizes",
				"directory %d is given %s but the interleaving assigns it %s",
				i, s, Size(caps[i]))
		}
	}

	return nil
}

// InPhysMem tells if an address is in a physical memory range.
func (o Options) InPhysMem(addr uint64) bool {
	for _, r := range o.PhysMem {
		if r.Contains(addr) {
			return true
		}
	}

	return false
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}

	return false
}

// IsConfigurationError tells if err is, or wraps, a configuration error.
func IsConfigurationError(err error) bool {
	var cfgErr *coherence.ConfigurationError
	return errors.As(err, &cfgErr)
}
