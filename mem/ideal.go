package mem

import (
	"fmt"

	"github.com/sarchlab/rubysim/sim/timing"
)

// IdealMemory serves every access after a fixed latency, regardless of load.
type IdealMemory struct {
	name    string
	latency timing.VTimeInCycle
	storage *Storage
	stats   Stats
}

// NewIdealMemory creates an ideal memory.
func NewIdealMemory(cfg Config) (Backing, error) {
	if cfg.Capacity == 0 {
		return nil, fmt.Errorf("%s: capacity must be positive", cfg.Name)
	}

	return &IdealMemory{
		name:    cfg.Name,
		latency: cfg.Latency,
		storage: NewStorage(cfg.Capacity),
	}, nil
}

// Name returns the name of the memory.
func (m *IdealMemory) Name() string {
	return m.name
}

// Read returns the data and the fixed latency.
func (m *IdealMemory) Read(
	_ timing.VTimeInCycle,
	addr uint64,
	size int,
) ([]byte, timing.VTimeInCycle, error) {
	data, err := m.storage.Read(addr, uint64(size))
	if err != nil {
		return nil, 0, fmt.Errorf("%s: read 0x%x: %w", m.name, addr, err)
	}

	m.stats.Reads++
	m.stats.TotalLatency += uint64(m.latency)

	return data, m.latency, nil
}

// Write stores the data and returns the fixed latency.
func (m *IdealMemory) Write(
	_ timing.VTimeInCycle,
	addr uint64,
	data []byte,
) (timing.VTimeInCycle, error) {
	if err := m.storage.Write(addr, data); err != nil {
		return 0, fmt.Errorf("%s: write 0x%x: %w", m.name, addr, err)
	}

	m.stats.Writes++
	m.stats.TotalLatency += uint64(m.latency)

	return m.latency, nil
}

// Storage returns the functional storage.
func (m *IdealMemory) Storage() *Storage {
	return m.storage
}

// Stats returns the access counters.
func (m *IdealMemory) Stats() Stats {
	return m.stats
}
