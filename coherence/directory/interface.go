package directory

import (
	"github.com/sarchlab/rubysim/coherence"
	"github.com/sarchlab/rubysim/sim/timing"
)

// Local abstraction layer for external dependencies. The directory depends
// on these interfaces only, so tests can mock them without building a
// network or a memory.
//
//go:generate mockgen -destination "mock_local_test.go" -package $GOPACKAGE -write_package_comment=false -source interface.go

// Network carries messages to other controllers. It is implemented by
// noc.Network.
type Network interface {
	Send(msg *coherence.Msg) error
}

// Backing is the memory behind the directory. It is implemented by the
// memories of the mem package.
type Backing interface {
	Read(now timing.VTimeInCycle, addr uint64, size int) (
		[]byte, timing.VTimeInCycle, error)
	Write(now timing.VTimeInCycle, addr uint64, data []byte) (
		timing.VTimeInCycle, error)
}

// AddressConverter translates system addresses into addresses of the
// directory's own memory. It is implemented by mem.InterleavingConverter.
type AddressConverter interface {
	ConvertExternalToInternal(external uint64) uint64
	ConvertInternalToExternal(internal uint64) uint64
}
