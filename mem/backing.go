// Package mem provides the backing memory that directories consult on a
// miss, behind a small interface so that timing models can be swapped by
// name.
package mem

import (
	"github.com/sarchlab/rubysim/sim/timing"
)

// Backing is the memory behind a directory. Reads and writes take effect
// immediately; the returned latency tells when the access completes.
type Backing interface {
	Name() string
	Read(now timing.VTimeInCycle, addr uint64, size int) (
		data []byte, latency timing.VTimeInCycle, err error)
	Write(now timing.VTimeInCycle, addr uint64, data []byte) (
		latency timing.VTimeInCycle, err error)

	// Storage exposes the functional state for inspection.
	Storage() *Storage
}

// Config carries the parameters every backing constructor receives.
type Config struct {
	Name     string
	Capacity uint64
	Latency  timing.VTimeInCycle

	// NumBanks and InterleaveSize only apply to banked memories.
	NumBanks       int
	InterleaveSize uint64
}

// Stats counts the accesses a backing served.
type Stats struct {
	Reads        uint64
	Writes       uint64
	TotalLatency uint64
}
