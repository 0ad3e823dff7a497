package mem

import (
	"fmt"

	"github.com/sarchlab/rubysim/sim/timing"
)

// BankedMemory interleaves addresses over banks. A bank serves one access at
// a time; an access to a busy bank waits until the bank frees up.
type BankedMemory struct {
	name           string
	latency        timing.VTimeInCycle
	interleaveSize uint64
	storage        *Storage
	busyUntil      []timing.VTimeInCycle
	stats          Stats
}

// NewBankedMemory creates a banked memory.
func NewBankedMemory(cfg Config) (Backing, error) {
	if cfg.Capacity == 0 {
		return nil, fmt.Errorf("%s: capacity must be positive", cfg.Name)
	}

	if cfg.NumBanks <= 0 {
		return nil, fmt.Errorf("%s: number of banks must be positive", cfg.Name)
	}

	interleave := cfg.InterleaveSize
	if interleave == 0 {
		interleave = 64
	}

	return &BankedMemory{
		name:           cfg.Name,
		latency:        cfg.Latency,
		interleaveSize: interleave,
		storage:        NewStorage(cfg.Capacity),
		busyUntil:      make([]timing.VTimeInCycle, cfg.NumBanks),
	}, nil
}

// Name returns the name of the memory.
func (m *BankedMemory) Name() string {
	return m.name
}

// Bank returns the bank that serves the address.
func (m *BankedMemory) Bank(addr uint64) int {
	return int((addr / m.interleaveSize) % uint64(len(m.busyUntil)))
}

func (m *BankedMemory) occupy(
	now timing.VTimeInCycle,
	addr uint64,
) timing.VTimeInCycle {
	bank := m.Bank(addr)

	start := max(now, m.busyUntil[bank])
	done := start + m.latency
	m.busyUntil[bank] = done

	latency := done - now
	m.stats.TotalLatency += uint64(latency)

	return latency
}

// Read returns the data and the latency including the bank wait.
func (m *BankedMemory) Read(
	now timing.VTimeInCycle,
	addr uint64,
	size int,
) ([]byte, timing.VTimeInCycle, error) {
	data, err := m.storage.Read(addr, uint64(size))
	if err != nil {
		return nil, 0, fmt.Errorf("%s: read 0x%x: %w", m.name, addr, err)
	}

	m.stats.Reads++

	return data, m.occupy(now, addr), nil
}

// Write stores the data and returns the latency including the bank wait.
func (m *BankedMemory) Write(
	now timing.VTimeInCycle,
	addr uint64,
	data []byte,
) (timing.VTimeInCycle, error) {
	if err := m.storage.Write(addr, data); err != nil {
		return 0, fmt.Errorf("%s: write 0x%x: %w", m.name, addr, err)
	}

	m.stats.Writes++

	return m.occupy(now, addr), nil
}

// Storage returns the functional storage.
func (m *BankedMemory) Storage() *Storage {
	return m.storage
}

// Stats returns the access counters.
func (m *BankedMemory) Stats() Stats {
	return m.stats
}
