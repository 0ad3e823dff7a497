package tracing

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rubysim/coherence"
	"github.com/sarchlab/rubysim/coherence/protocol"
	"github.com/sarchlab/rubysim/coherence/sequencer"
	"github.com/sarchlab/rubysim/sim/hooking"
	"github.com/sarchlab/rubysim/sim/timing"
)

var _ = Describe("LatencyTracer", func() {
	complete := func(
		t *LatencyTracer,
		kind coherence.AccessKind,
		issue, done uint64,
		retries int,
	) {
		txn := coherence.NewTransaction(1, 0, 0x40, kind, 0, 0)
		txn.Retries = retries
		txn.Complete(0, 0)
		txn.IssueCycle = timing.VTimeInCycle(issue)
		txn.CompleteCycle = timing.VTimeInCycle(done)

		t.Func(hooking.HookCtx{Pos: sequencer.HookPosTxnComplete, Item: txn})
	}

	It("should average latencies", func() {
		t := NewLatencyTracer()

		complete(t, coherence.AccessLoad, 0, 10, 0)
		complete(t, coherence.AccessLoad, 5, 25, 0)
		complete(t, coherence.AccessStore, 0, 60, 2)

		Expect(t.TotalCount()).To(Equal(uint64(3)))
		Expect(t.Count(coherence.AccessLoad)).To(Equal(uint64(2)))
		Expect(t.AverageLatencyOf(coherence.AccessLoad)).To(Equal(15.0))
		Expect(t.AverageLatency()).To(Equal(30.0))
		Expect(t.MaxLatency()).To(BeEquivalentTo(60))
		Expect(t.Retries()).To(Equal(uint64(2)))
	})

	It("should ignore issued transactions", func() {
		t := NewLatencyTracer()
		txn := coherence.NewTransaction(1, 0, 0x40, coherence.AccessLoad, 0, 0)

		t.Func(hooking.HookCtx{Pos: sequencer.HookPosTxnIssue, Item: txn})

		Expect(t.TotalCount()).To(BeZero())
		Expect(t.AverageLatency()).To(BeZero())
	})
})

var _ = Describe("TransitionCounter", func() {
	It("should count transitions", func() {
		c := NewTransitionCounter()
		fire := func(to coherence.State) {
			c.Func(hooking.HookCtx{
				Pos: coherence.HookPosTransition,
				Detail: coherence.TransitionInfo{
					Machine: coherence.MachineL1Cache,
					From:    protocol.CacheI,
					Event:   string(protocol.EvLoad),
					To:      to,
				},
			})
		}

		fire(protocol.CacheISD)
		fire(protocol.CacheISD)
		fire(protocol.CacheIMD)

		Expect(c.Distinct()).To(Equal(2))
		list := c.List()
		Expect(list[0].To).To(Equal(protocol.CacheISD))
		Expect(list[0].Count).To(Equal(uint64(2)))
	})
})
