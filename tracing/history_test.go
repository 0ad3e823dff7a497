package tracing

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rubysim/coherence"
	"github.com/sarchlab/rubysim/noc"
	"github.com/sarchlab/rubysim/sim/hooking"
)

var _ = Describe("MsgHistory", func() {
	var (
		clock   *fakeClock
		history *MsgHistory
	)

	BeforeEach(func() {
		clock = &fakeClock{}
		history = NewMsgHistory(clock, 2)
	})

	send := func(pos *hooking.HookPos, id uint64, addr uint64) {
		history.Func(hooking.HookCtx{
			Pos: pos,
			Item: &coherence.Msg{
				ID: id, Type: coherence.MsgGetS, Src: 0, Dst: 2, Addr: addr,
			},
		})
	}

	It("should keep records per address", func() {
		clock.now = 3
		send(noc.HookPosMsgSend, 1, 0x40)
		clock.now = 7
		send(noc.HookPosMsgDeliver, 1, 0x40)
		send(noc.HookPosMsgSend, 2, 0x80)

		records := history.For(0x40)

		Expect(records).To(HaveLen(2))
		Expect(records[0].Cycle).To(BeEquivalentTo(3))
		Expect(records[0].Action).To(Equal("send"))
		Expect(records[1].Action).To(Equal("deliver"))
		Expect(history.For(0x80)).To(HaveLen(1))
	})

	It("should only keep the most recent records", func() {
		send(noc.HookPosMsgSend, 1, 0x40)
		send(noc.HookPosMsgSend, 2, 0x40)
		send(noc.HookPosMsgSend, 3, 0x40)

		records := history.For(0x40)

		Expect(records).To(HaveLen(2))
		Expect(records[0].ID).To(Equal(uint64(2)))
		Expect(records[1].ID).To(Equal(uint64(3)))
	})

	It("should ignore other hook positions", func() {
		send(coherence.HookPosTransition, 1, 0x40)

		Expect(history.For(0x40)).To(BeEmpty())
	})
})
