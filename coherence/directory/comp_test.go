package directory

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/rubysim/coherence"
	"github.com/sarchlab/rubysim/coherence/protocol"
	"github.com/sarchlab/rubysim/sim/timing"
)

var _ = Describe("Comp", func() {
	var (
		mockCtrl  *gomock.Controller
		engine    *timing.SerialEngine
		network   *MockNetwork
		backing   *MockBacking
		converter *MockAddressConverter
		dir       *Comp
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		engine = timing.NewSerialEngine()
		network = NewMockNetwork(mockCtrl)
		backing = NewMockBacking(mockCtrl)
		converter = NewMockAddressConverter(mockCtrl)

		dir = MakeBuilder().
			WithEngine(engine).
			WithTable(protocol.MSI().Directory).
			WithID(dirID).
			WithNetwork(network).
			WithBacking(backing).
			WithAddressConverter(converter).
			WithLineSize(64).
			WithPorts(1).
			Build("Dir")
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should answer a read miss after the memory latency", func() {
		converter.EXPECT().
			ConvertExternalToInternal(lineAddr).
			Return(uint64(0x40))
		backing.EXPECT().
			Read(timing.VTimeInCycle(0), uint64(0x40), 64).
			Return(lineData(0x7), timing.VTimeInCycle(10), nil)
		network.EXPECT().
			Send(gomock.Any()).
			DoAndReturn(func(msg *coherence.Msg) error {
				Expect(engine.CurrentTime()).To(Equal(timing.VTimeInCycle(10)))
				Expect(msg.Type).To(Equal(coherence.MsgData))
				Expect(msg.Src).To(Equal(dirID))
				Expect(msg.Dst).To(Equal(coherence.ControllerID(1)))
				Expect(msg.Data).To(Equal(lineData(0x7)))

				return nil
			})

		dir.Deliver(request(coherence.MsgGetS, 1, 1))

		Expect(engine.Run()).To(Succeed())
		Expect(dir.Lookup(lineAddr).State).To(Equal(protocol.DirS))
		Expect(dir.Busy()).To(BeFalse())
		Expect(dir.Stats().MemReads).To(Equal(uint64(1)))
	})

	It("should process one message per port per cycle", func() {
		converter.EXPECT().
			ConvertExternalToInternal(gomock.Any()).
			Return(uint64(0)).
			AnyTimes()
		backing.EXPECT().
			Read(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(lineData(0), timing.VTimeInCycle(100), nil).
			AnyTimes()

		var nackCycles []timing.VTimeInCycle
		network.EXPECT().
			Send(gomock.Any()).
			DoAndReturn(func(msg *coherence.Msg) error {
				if msg.Type == coherence.MsgNack {
					nackCycles = append(nackCycles, engine.CurrentTime())
				}

				return nil
			}).
			AnyTimes()

		dir.Deliver(request(coherence.MsgGetS, 1, 1))
		dir.Deliver(request(coherence.MsgGetM, 2, 2))
		dir.Deliver(request(coherence.MsgGetM, 3, 3))

		Expect(engine.Run()).To(Succeed())
		Expect(nackCycles).To(Equal([]timing.VTimeInCycle{1, 2}))
		Expect(dir.Stats().Nacks).To(Equal(uint64(2)))
	})

	It("should hold messages while the network pushes back", func() {
		converter.EXPECT().
			ConvertExternalToInternal(gomock.Any()).
			Return(uint64(0)).
			AnyTimes()
		backing.EXPECT().
			Read(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(lineData(0), timing.VTimeInCycle(2), nil)

		var sent []*coherence.Msg
		gomock.InOrder(
			network.EXPECT().
				Send(gomock.Any()).
				Return(coherence.ErrLinkSaturated).
				Times(2),
			network.EXPECT().
				Send(gomock.Any()).
				DoAndReturn(func(msg *coherence.Msg) error {
					sent = append(sent, msg)
					return nil
				}),
		)

		dir.Deliver(request(coherence.MsgGetS, 1, 1))
		Expect(engine.Run()).To(Succeed())
		Expect(sent).To(BeEmpty())
		Expect(dir.Busy()).To(BeTrue())
		Expect(dir.Stats().SendStalls).To(Equal(uint64(2)))

		dir.NotifyAvailable()
		Expect(engine.Run()).To(Succeed())
		Expect(sent).To(HaveLen(1))
		Expect(sent[0].Type).To(Equal(coherence.MsgData))
		Expect(dir.Busy()).To(BeFalse())
	})

	It("should post writebacks to memory", func() {
		converter.EXPECT().
			ConvertExternalToInternal(gomock.Any()).
			Return(uint64(0x80)).
			AnyTimes()
		backing.EXPECT().
			Read(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(lineData(0), timing.VTimeInCycle(1), nil)
		backing.EXPECT().
			Write(gomock.Any(), uint64(0x80), lineData(0x9)).
			Return(timing.VTimeInCycle(50), nil)
		network.EXPECT().Send(gomock.Any()).Return(nil).Times(2)

		dir.Deliver(request(coherence.MsgGetM, 1, 1))
		Expect(engine.Run()).To(Succeed())

		putM := request(coherence.MsgPutM, 1, 2)
		putM.Data = lineData(0x9)
		dir.Deliver(putM)
		Expect(engine.Run()).To(Succeed())

		Expect(dir.Lookup(lineAddr).State).To(Equal(protocol.DirI))
		Expect(dir.Stats().MemWrites).To(Equal(uint64(1)))
	})

	It("should stop the run on a protocol violation", func() {
		dir.Deliver(request(coherence.MsgInvAck, 1, 0))

		err := engine.Run()

		var violation *coherence.ProtocolViolation
		Expect(errors.As(err, &violation)).To(BeTrue())
		Expect(violation.Addr).To(Equal(lineAddr))
	})

	It("should stop the run when the memory fails", func() {
		converter.EXPECT().
			ConvertExternalToInternal(gomock.Any()).
			Return(uint64(0))
		backing.EXPECT().
			Read(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, timing.VTimeInCycle(0), errors.New("beyond capacity"))

		dir.Deliver(request(coherence.MsgGetS, 1, 1))

		Expect(engine.Run()).To(MatchError(ContainSubstring("beyond capacity")))
	})
})
