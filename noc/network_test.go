package noc

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/rubysim/coherence"
	"github.com/sarchlab/rubysim/sim/timing"
)

type delivery struct {
	msg   *coherence.Msg
	cycle timing.VTimeInCycle
}

var _ = Describe("Network", func() {
	var (
		mockCtrl  *gomock.Controller
		engine    *timing.SerialEngine
		endpoints []*MockEndpoint
		delivered []delivery
	)

	controllers := []coherence.ControllerID{0, 1, 2}

	build := func(class string, p LinkParams) *Network {
		topo, err := BuildTopology(TopologyDesc{
			Kind:     TopologyCrossbar,
			External: p,
		}, controllers[:2], controllers[2:])
		Expect(err).NotTo(HaveOccurred())

		n, err := MakeBuilder().
			WithEngine(engine).
			WithTopology(topo).
			WithClass(class).
			WithRouterLatency(2).
			Build("Network")
		Expect(err).NotTo(HaveOccurred())

		for i, c := range controllers {
			n.Attach(c, endpoints[i])
		}

		return n
	}

	msg := func(id uint64, src, dst coherence.ControllerID) *coherence.Msg {
		return &coherence.Msg{
			ID:   id,
			Type: coherence.MsgGetS,
			Src:  src,
			Dst:  dst,
			Addr: 0x40,
		}
	}

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		engine = timing.NewSerialEngine()
		delivered = nil
		endpoints = nil

		for range controllers {
			ep := NewMockEndpoint(mockCtrl)
			ep.EXPECT().
				Deliver(gomock.Any()).
				Do(func(m *coherence.Msg) {
					delivered = append(delivered,
						delivery{msg: m, cycle: engine.CurrentTime()})
				}).
				AnyTimes()
			endpoints = append(endpoints, ep)
		}
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should deliver after the path latency", func() {
		n := build(NetworkSimple,
			LinkParams{Latency: 3, Capacity: 4, Bandwidth: 0})

		Expect(n.Send(msg(1, 0, 2))).To(Succeed())
		Expect(engine.Run()).To(Succeed())

		Expect(delivered).To(HaveLen(1))
		Expect(delivered[0].cycle).To(Equal(timing.VTimeInCycle(6)))
		Expect(delivered[0].msg.IssueCycle).To(Equal(timing.VTimeInCycle(0)))
		Expect(n.InFlight()).To(Equal(0))
		Expect(n.Stats().Sent[coherence.MsgGetS]).To(Equal(uint64(1)))
		Expect(n.Stats().Delivered[coherence.MsgGetS]).To(Equal(uint64(1)))
	})

	It("should add router latency in a garnet network", func() {
		n := build(NetworkGarnetFixed,
			LinkParams{Latency: 3, Capacity: 4, Bandwidth: 0})

		Expect(n.Send(msg(1, 0, 2))).To(Succeed())
		Expect(engine.Run()).To(Succeed())

		Expect(delivered[0].cycle).To(Equal(timing.VTimeInCycle(8)))
	})

	It("should keep messages between a pair in order", func() {
		n := build(NetworkSimple, LinkParams{Latency: 1, Capacity: 8})

		for i := uint64(1); i <= 5; i++ {
			Expect(n.Send(msg(i, 0, 2))).To(Succeed())
		}

		Expect(engine.Run()).To(Succeed())

		Expect(delivered).To(HaveLen(5))
		for i, d := range delivered {
			Expect(d.msg.ID).To(Equal(uint64(i + 1)))
		}
	})

	It("should break ties by issue order", func() {
		n := build(NetworkSimple, LinkParams{Latency: 1, Capacity: 8})

		Expect(n.Send(msg(1, 1, 2))).To(Succeed())
		Expect(n.Send(msg(2, 0, 2))).To(Succeed())
		Expect(engine.Run()).To(Succeed())

		Expect(delivered).To(HaveLen(2))
		Expect(delivered[0].msg.ID).To(Equal(uint64(1)))
		Expect(delivered[1].msg.ID).To(Equal(uint64(2)))
		Expect(delivered[0].cycle).To(Equal(delivered[1].cycle))
	})

	It("should hold messages at a router when the next link is full", func() {
		n := build(NetworkSimple, LinkParams{Latency: 1, Capacity: 1})

		Expect(n.Send(msg(1, 0, 2))).To(Succeed())
		Expect(n.Send(msg(2, 1, 2))).To(Succeed())
		Expect(engine.Run()).To(Succeed())

		Expect(delivered).To(HaveLen(2))
		Expect(delivered[0].msg.ID).To(Equal(uint64(1)))
		Expect(delivered[0].cycle).To(Equal(timing.VTimeInCycle(2)))
		Expect(delivered[1].msg.ID).To(Equal(uint64(2)))
		Expect(delivered[1].cycle).To(Equal(timing.VTimeInCycle(3)))
	})

	It("should push back on the sender when the first link is full", func() {
		n := build(NetworkSimple, LinkParams{Latency: 2, Capacity: 1})
		m1 := msg(1, 0, 2)
		m2 := msg(2, 0, 2)

		Expect(n.Send(m1)).To(Succeed())
		Expect(n.Send(m2)).To(MatchError(coherence.ErrLinkSaturated))
		Expect(n.Stats().Stalls).To(Equal(uint64(1)))

		endpoints[0].EXPECT().
			NotifyAvailable().
			Do(func() {
				Expect(engine.CurrentTime()).To(Equal(timing.VTimeInCycle(2)))
				Expect(n.Send(m2)).To(Succeed())
			})

		Expect(engine.Run()).To(Succeed())

		Expect(delivered).To(HaveLen(2))
		Expect(delivered[0].msg).To(BeIdenticalTo(m1))
		Expect(delivered[0].cycle).To(Equal(timing.VTimeInCycle(4)))
		Expect(delivered[1].msg).To(BeIdenticalTo(m2))
		Expect(delivered[1].cycle).To(Equal(timing.VTimeInCycle(6)))
	})

	It("should limit how many messages enter a link per cycle", func() {
		n := build(NetworkSimple,
			LinkParams{Latency: 1, Capacity: 8, Bandwidth: 1})

		Expect(n.Send(msg(1, 0, 2))).To(Succeed())
		Expect(n.Send(msg(2, 0, 2))).To(MatchError(coherence.ErrLinkSaturated))

		endpoints[0].EXPECT().
			NotifyAvailable().
			Do(func() {
				Expect(n.Send(msg(2, 0, 2))).To(Succeed())
			})

		Expect(engine.Run()).To(Succeed())
		Expect(delivered).To(HaveLen(2))
	})

	It("should delay messages when the fault model fires", func() {
		topo, _ := BuildTopology(TopologyDesc{
			Kind:     TopologyCrossbar,
			External: LinkParams{Latency: 1, Capacity: 4},
		}, controllers[:2], controllers[2:])

		n, err := MakeBuilder().
			WithEngine(engine).
			WithTopology(topo).
			WithClass(NetworkGarnetFixed).
			WithRouterLatency(0).
			WithFaultModel(NewFaultModel(1, 1.0, 5)).
			Build("Network")
		Expect(err).NotTo(HaveOccurred())

		for i, c := range controllers {
			n.Attach(c, endpoints[i])
		}

		Expect(n.Send(msg(1, 0, 2))).To(Succeed())
		Expect(engine.Run()).To(Succeed())

		Expect(delivered[0].cycle).To(Equal(timing.VTimeInCycle(12)))
		Expect(n.Stats().Faults).To(Equal(uint64(2)))
	})

	It("should reject the fault model outside garnet-fixed", func() {
		topo, _ := BuildTopology(TopologyDesc{
			Kind:     TopologyCrossbar,
			External: DefaultLinkParams(),
		}, controllers[:2], controllers[2:])

		_, err := MakeBuilder().
			WithEngine(engine).
			WithTopology(topo).
			WithFaultModel(NewFaultModel(1, 0.1, 5)).
			Build("Network")

		Expect(err).To(MatchError(ContainSubstring(NetworkGarnetFixed)))
	})

	It("should reject unknown network classes", func() {
		topo, _ := BuildTopology(TopologyDesc{
			Kind:     TopologyCrossbar,
			External: DefaultLinkParams(),
		}, controllers[:2], controllers[2:])

		_, err := MakeBuilder().
			WithEngine(engine).
			WithTopology(topo).
			WithClass("ethernet").
			Build("Network")

		Expect(err).To(MatchError(ContainSubstring("unknown network class")))
	})
})
