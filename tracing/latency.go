package tracing

import (
	"sync"

	"github.com/sarchlab/rubysim/coherence"
	"github.com/sarchlab/rubysim/coherence/sequencer"
	"github.com/sarchlab/rubysim/sim/hooking"
	"github.com/sarchlab/rubysim/sim/timing"
)

// LatencyTracer collects the latency of completed transactions. It is
// attached to sequencers.
type LatencyTracer struct {
	lock    sync.Mutex
	count   map[coherence.AccessKind]uint64
	total   map[coherence.AccessKind]timing.VTimeInCycle
	max     timing.VTimeInCycle
	retries uint64
}

// NewLatencyTracer creates a LatencyTracer.
func NewLatencyTracer() *LatencyTracer {
	return &LatencyTracer{
		count: make(map[coherence.AccessKind]uint64),
		total: make(map[coherence.AccessKind]timing.VTimeInCycle),
	}
}

// Func records completed transactions.
func (t *LatencyTracer) Func(ctx hooking.HookCtx) {
	if ctx.Pos != sequencer.HookPosTxnComplete {
		return
	}

	txn, ok := ctx.Item.(*coherence.Transaction)
	if !ok {
		return
	}

	latency := txn.CompleteCycle - txn.IssueCycle

	t.lock.Lock()
	defer t.lock.Unlock()

	t.count[txn.Kind]++
	t.total[txn.Kind] += latency
	t.retries += uint64(txn.Retries)

	if latency > t.max {
		t.max = latency
	}
}

// Count returns the number of completed transactions of a kind.
func (t *LatencyTracer) Count(kind coherence.AccessKind) uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.count[kind]
}

// TotalCount returns the number of completed transactions.
func (t *LatencyTracer) TotalCount() uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	var n uint64
	for _, c := range t.count {
		n += c
	}

	return n
}

// AverageLatency returns the mean latency in cycles over all kinds.
func (t *LatencyTracer) AverageLatency() float64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	var n uint64

	var sum timing.VTimeInCycle

	for k, c := range t.count {
		n += c
		sum += t.total[k]
	}

	if n == 0 {
		return 0
	}

	return float64(sum) / float64(n)
}

// AverageLatencyOf returns the mean latency of a kind in cycles.
func (t *LatencyTracer) AverageLatencyOf(kind coherence.AccessKind) float64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.count[kind] == 0 {
		return 0
	}

	return float64(t.total[kind]) / float64(t.count[kind])
}

// MaxLatency returns the longest latency seen.
func (t *LatencyTracer) MaxLatency() timing.VTimeInCycle {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.max
}

// Retries returns the number of NACKs the completed transactions received.
func (t *LatencyTracer) Retries() uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.retries
}
