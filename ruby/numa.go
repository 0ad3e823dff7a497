package ruby

import (
	"sort"

	"github.com/sarchlab/rubysim/coherence"
	"github.com/sarchlab/rubysim/mem"
)

// NUMAMapper finds the home directory of an address. Physical ranges are
// first packed back to back into a dense space starting at zero; the
// directory selection bits, which sit right below and including the NUMA
// high bit, are then taken from the packed address.
type NUMAMapper struct {
	dirs    []coherence.ControllerID
	ranges  []AddrRange
	packed  []uint64
	total   uint64
	lowBit  uint
	numBits uint
}

// NewNUMAMapper creates a mapper for directories listed in index order.
func NewNUMAMapper(o Options, dirs []coherence.ControllerID) *NUMAMapper {
	if len(dirs) != o.NumDirs {
		panic("directory count mismatch")
	}

	numBits := o.DirBits()

	m := &NUMAMapper{
		dirs:    dirs,
		lowBit:  uint(o.EffectiveNUMAHighBit() - numBits + 1),
		numBits: uint(numBits),
	}

	m.ranges = append([]AddrRange(nil), o.PhysMem...)
	sort.Slice(m.ranges, func(i, j int) bool {
		return m.ranges[i].Start < m.ranges[j].Start
	})

	for _, r := range m.ranges {
		m.packed = append(m.packed, m.total)
		m.total += uint64(r.Size)
	}

	return m
}

// pack turns a physical address into its offset in the dense space.
// Addresses outside every range are returned unchanged.
func (m *NUMAMapper) pack(addr uint64) uint64 {
	i := sort.Search(len(m.ranges), func(i int) bool {
		return m.ranges[i].End() > addr
	})

	if i < len(m.ranges) && m.ranges[i].Contains(addr) {
		return addr - uint64(m.ranges[i].Start) + m.packed[i]
	}

	return addr
}

func (m *NUMAMapper) unpack(offset uint64) uint64 {
	i := sort.Search(len(m.packed), func(i int) bool {
		return m.packed[i] > offset
	}) - 1

	if i < 0 || offset >= m.total {
		return offset
	}

	return uint64(m.ranges[i].Start) + offset - m.packed[i]
}

func (m *NUMAMapper) interleave(index int) mem.InterleavingConverter {
	return mem.InterleavingConverter{
		LowBit:  m.lowBit,
		NumBits: m.numBits,
		Index:   uint64(index),
	}
}

// Index returns the index of the home directory of an address.
func (m *NUMAMapper) Index(addr uint64) int {
	return int((m.pack(addr) >> m.lowBit) & (1<<m.numBits - 1))
}

// HomeOf returns the home directory of an address.
func (m *NUMAMapper) HomeOf(addr uint64) coherence.ControllerID {
	return m.dirs[m.Index(addr)]
}

// Converter returns the address converter of a directory's memory.
func (m *NUMAMapper) Converter(index int) LocalConverter {
	return LocalConverter{mapper: m, interleave: m.interleave(index)}
}

// LocalCapacity returns how many bytes of the physical memory a directory
// serves.
func (m *NUMAMapper) LocalCapacity(index int) uint64 {
	return interleavedShare(m.total, m.lowBit, m.numBits, index)
}

// LocalConverter translates between physical addresses and offsets in the
// memory of one directory.
type LocalConverter struct {
	mapper     *NUMAMapper
	interleave mem.InterleavingConverter
}

// ConvertExternalToInternal returns the offset of a physical address in the
// directory's memory.
func (c LocalConverter) ConvertExternalToInternal(addr uint64) uint64 {
	return c.interleave.ConvertExternalToInternal(c.mapper.pack(addr))
}

// ConvertInternalToExternal returns the physical address of an offset in the
// directory's memory.
func (c LocalConverter) ConvertInternalToExternal(addr uint64) uint64 {
	return c.mapper.unpack(c.interleave.ConvertInternalToExternal(addr))
}

// interleavedShare counts the bytes of a dense space of the given total size
// that land on one directory when blocks of 2^lowBit bytes are dealt round
// robin over 2^numBits directories.
func interleavedShare(total uint64, lowBit, numBits uint, index int) uint64 {
	block := uint64(1) << lowBit
	stride := block << numBits

	share := total / stride * block

	rest := total % stride
	skip := uint64(index) * block

	if rest > skip {
		share += min(rest-skip, block)
	}

	return share
}
