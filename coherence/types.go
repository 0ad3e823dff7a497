// Package coherence defines the data model shared by the controllers of the
// coherent memory system: messages, cache lines, sharer sets, transactions,
// and the error taxonomy.
package coherence

import "fmt"

// ControllerID identifies an L1 cache controller or a directory controller.
// IDs are assigned once at system-build time.
type ControllerID int

// NoController is used where an optional controller ID is absent.
const NoController ControllerID = -1

// MachineType tells what kind of controller a state machine belongs to.
type MachineType int

// The kinds of controllers in the system.
const (
	MachineL1Cache MachineType = iota
	MachineDirectory
)

func (m MachineType) String() string {
	switch m {
	case MachineL1Cache:
		return "L1Cache"
	case MachineDirectory:
		return "Directory"
	default:
		return fmt.Sprintf("Machine(%d)", int(m))
	}
}

// State is a stable or transient coherence state, such as "M" or "IS_D".
type State string

// AccessKind is the kind of a core memory access.
type AccessKind int

// The kinds of accesses a core can issue.
const (
	AccessLoad AccessKind = iota
	AccessStore
	AccessAtomic
)

func (k AccessKind) String() string {
	switch k {
	case AccessLoad:
		return "Load"
	case AccessStore:
		return "Store"
	case AccessAtomic:
		return "Atomic"
	default:
		return fmt.Sprintf("Access(%d)", int(k))
	}
}

// WordSize is the number of bytes a core access touches.
const WordSize = 8

// LineAddr returns the address of the cache line that contains addr.
func LineAddr(addr uint64, lineSize int) uint64 {
	return addr &^ uint64(lineSize-1)
}
