package l1

import (
	"encoding/binary"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/rubysim/coherence"
	"github.com/sarchlab/rubysim/coherence/protocol"
	"github.com/sarchlab/rubysim/sim/timing"
)

const (
	cacheID coherence.ControllerID = 1
	dirID   coherence.ControllerID = 10
	addrA   uint64                 = 0x1000
	addrB   uint64                 = 0x1040
)

func dataWith(off int, v uint64) []byte {
	d := make([]byte, 64)
	binary.LittleEndian.PutUint64(d[off:], v)

	return d
}

func word(d []byte, off int) uint64 {
	return binary.LittleEndian.Uint64(d[off:])
}

var _ = Describe("Comp", func() {
	var (
		mockCtrl   *gomock.Controller
		engine     *timing.SerialEngine
		network    *MockNetwork
		mapper     *MockDirectoryMapper
		cache      *Comp
		sent       []*coherence.Msg
		sendCycles []timing.VTimeInCycle
		saturated  bool
		nextTxn    uint64
	)

	build := func(p *protocol.Protocol, numLines int) {
		cache = MakeBuilder().
			WithEngine(engine).
			WithTable(p.Cache).
			WithID(cacheID).
			WithNetwork(network).
			WithDirectoryMapper(mapper).
			WithNumLines(numLines).
			WithRecycleLatency(10).
			Build("L1")
	}

	issue := func(
		kind coherence.AccessKind,
		addr, value uint64,
	) *coherence.Transaction {
		nextTxn++
		txn := coherence.NewTransaction(nextTxn, 0, addr, kind, value,
			engine.CurrentTime())
		cache.Request(txn)

		return txn
	}

	deliver := func(t coherence.MsgType, addr uint64, data []byte) {
		cache.Deliver(&coherence.Msg{
			Type:      t,
			Src:       dirID,
			Dst:       cacheID,
			Addr:      addr,
			Data:      data,
			Requestor: 2,
		})
	}

	run := func() {
		Expect(engine.Run()).To(Succeed())
	}

	sentTypes := func() []coherence.MsgType {
		list := make([]coherence.MsgType, 0, len(sent))
		for _, m := range sent {
			list = append(list, m.Type)
		}

		return list
	}

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		engine = timing.NewSerialEngine()
		network = NewMockNetwork(mockCtrl)
		mapper = NewMockDirectoryMapper(mockCtrl)
		sent = nil
		sendCycles = nil
		saturated = false
		nextTxn = 0

		mapper.EXPECT().HomeOf(gomock.Any()).Return(dirID).AnyTimes()
		network.EXPECT().
			Send(gomock.Any()).
			DoAndReturn(func(msg *coherence.Msg) error {
				if saturated {
					return coherence.ErrLinkSaturated
				}

				sent = append(sent, msg)
				sendCycles = append(sendCycles, engine.CurrentTime())

				return nil
			}).
			AnyTimes()

		build(protocol.MSI(), 4)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should fetch a line on a load miss", func() {
		txn := issue(coherence.AccessLoad, addrA+8, 0)
		run()

		Expect(sentTypes()).To(Equal([]coherence.MsgType{coherence.MsgGetS}))
		Expect(sent[0].Dst).To(Equal(dirID))
		Expect(sent[0].TxnID).To(Equal(txn.ID))
		Expect(cache.LineState(addrA)).To(Equal(protocol.CacheISD))
		Expect(txn.State()).To(Equal(coherence.TxnInFlight))

		deliver(coherence.MsgData, addrA, dataWith(8, 42))
		run()

		Expect(txn.Done()).To(BeTrue())
		Expect(txn.Result).To(Equal(uint64(42)))
		Expect(cache.LineState(addrA)).To(Equal(protocol.CacheS))
		Expect(cache.Busy()).To(BeFalse())
	})

	It("should hit on a shared line", func() {
		issue(coherence.AccessLoad, addrA, 0)
		run()
		deliver(coherence.MsgData, addrA, dataWith(16, 7))
		run()

		txn := issue(coherence.AccessLoad, addrA+16, 0)
		run()

		Expect(txn.Done()).To(BeTrue())
		Expect(txn.Result).To(Equal(uint64(7)))
		Expect(sent).To(HaveLen(1))
		Expect(cache.Stats().Hits).To(Equal(uint64(1)))
	})

	It("should upgrade a shared line on a store", func() {
		issue(coherence.AccessLoad, addrA, 0)
		run()
		deliver(coherence.MsgData, addrA, dataWith(0, 1))
		run()

		txn := issue(coherence.AccessStore, addrA, 99)
		run()

		Expect(sentTypes()).To(Equal([]coherence.MsgType{
			coherence.MsgGetS, coherence.MsgGetM,
		}))
		Expect(cache.LineState(addrA)).To(Equal(protocol.CacheSMD))

		deliver(coherence.MsgData, addrA, dataWith(0, 1))
		run()

		Expect(txn.Done()).To(BeTrue())
		Expect(cache.LineState(addrA)).To(Equal(protocol.CacheM))

		data, ok := cache.PeekLine(addrA)
		Expect(ok).To(BeTrue())
		Expect(word(data, 0)).To(Equal(uint64(99)))
	})

	It("should perform atomics as fetch-and-add", func() {
		txn := issue(coherence.AccessAtomic, addrA+24, 5)
		run()
		deliver(coherence.MsgData, addrA, dataWith(24, 10))
		run()

		Expect(txn.Result).To(Equal(uint64(10)))

		data, _ := cache.PeekLine(addrA)
		Expect(word(data, 24)).To(Equal(uint64(15)))
	})

	It("should queue requests to a line behind the head", func() {
		t1 := issue(coherence.AccessLoad, addrA, 0)
		t2 := issue(coherence.AccessLoad, addrA+8, 0)
		run()

		Expect(sent).To(HaveLen(1))
		Expect(t2.State()).To(Equal(coherence.TxnQueued))

		d := dataWith(0, 3)
		binary.LittleEndian.PutUint64(d[8:], 4)
		deliver(coherence.MsgData, addrA, d)
		run()

		Expect(t1.Result).To(Equal(uint64(3)))
		Expect(t2.Result).To(Equal(uint64(4)))
		Expect(t2.CompleteCycle).To(BeNumerically(">", t1.CompleteCycle))
	})

	It("should retry after a NACK", func() {
		txn := issue(coherence.AccessLoad, addrA, 0)
		run()

		now := engine.CurrentTime()
		deliver(coherence.MsgNack, addrA, nil)
		run()

		Expect(sentTypes()).To(Equal([]coherence.MsgType{
			coherence.MsgGetS, coherence.MsgGetS,
		}))
		Expect(sendCycles[1]).To(Equal(now + 10))
		Expect(txn.Retries).To(Equal(1))
		Expect(txn.Outstanding()).To(Equal(1))
		Expect(cache.Stats().Nacks).To(Equal(uint64(1)))
	})

	It("should acknowledge invalidations", func() {
		issue(coherence.AccessLoad, addrA, 0)
		run()
		deliver(coherence.MsgData, addrA, dataWith(0, 0))
		run()

		deliver(coherence.MsgInv, addrA, nil)
		run()

		Expect(sent[1].Type).To(Equal(coherence.MsgInvAck))
		Expect(sent[1].Dst).To(Equal(dirID))
		Expect(sent[1].Requestor).To(Equal(coherence.ControllerID(2)))
		Expect(cache.LineState(addrA)).To(Equal(protocol.CacheI))
	})

	It("should hand owned data to the directory on a forward", func() {
		issue(coherence.AccessStore, addrA, 77)
		run()
		deliver(coherence.MsgData, addrA, dataWith(0, 0))
		run()

		deliver(coherence.MsgFwdGetS, addrA, nil)
		run()

		Expect(sent[1].Type).To(Equal(coherence.MsgOwnerData))
		Expect(sent[1].Dst).To(Equal(dirID))
		Expect(word(sent[1].Data, 0)).To(Equal(uint64(77)))
		Expect(cache.LineState(addrA)).To(Equal(protocol.CacheS))
	})

	Context("when the cache is full", func() {
		BeforeEach(func() {
			build(protocol.MSI(), 1)

			issue(coherence.AccessStore, addrA, 5)
			run()
			deliver(coherence.MsgData, addrA, dataWith(0, 0))
			run()

			issue(coherence.AccessLoad, addrB, 0)
			run()
		})

		It("should write back the victim", func() {
			Expect(sentTypes()).To(Equal([]coherence.MsgType{
				coherence.MsgGetM, coherence.MsgPutM, coherence.MsgGetS,
			}))
			Expect(word(sent[1].Data, 0)).To(Equal(uint64(5)))
			Expect(cache.LineState(addrA)).To(Equal(protocol.CacheMIA))
			Expect(cache.Stats().Evictions).To(Equal(uint64(1)))

			deliver(coherence.MsgPutAck, addrA, nil)
			run()

			Expect(cache.LineState(addrA)).To(Equal(protocol.CacheI))
		})

		It("should answer a forward that races with the writeback", func() {
			deliver(coherence.MsgFwdGetM, addrA, nil)
			run()

			Expect(sent[3].Type).To(Equal(coherence.MsgOwnerData))
			Expect(cache.LineState(addrA)).To(Equal(protocol.CacheIIA))

			deliver(coherence.MsgNack, addrA, nil)
			run()

			Expect(cache.LineState(addrA)).To(Equal(protocol.CacheI))
		})

		It("should hold a request to a line being written back", func() {
			txn := issue(coherence.AccessLoad, addrA, 0)
			run()

			Expect(txn.State()).To(Equal(coherence.TxnQueued))

			deliver(coherence.MsgPutAck, addrA, nil)
			run()

			Expect(txn.State()).To(Equal(coherence.TxnQueued))
			Expect(sent).To(HaveLen(3))

			deliver(coherence.MsgData, addrB, dataWith(0, 0))
			run()

			Expect(sent).To(HaveLen(4))
			Expect(sent[3].Type).To(Equal(coherence.MsgGetS))
			Expect(sent[3].Addr).To(Equal(addrA))
		})
	})

	It("should drop aborted requests", func() {
		txn := issue(coherence.AccessLoad, addrA, 0)
		Expect(txn.Abort()).To(Succeed())

		run()

		Expect(sent).To(BeEmpty())
		Expect(cache.Busy()).To(BeFalse())
	})

	It("should hold messages while the network pushes back", func() {
		saturated = true
		issue(coherence.AccessLoad, addrA, 0)
		run()

		Expect(sent).To(BeEmpty())
		Expect(cache.Busy()).To(BeTrue())

		saturated = false
		cache.NotifyAvailable()
		run()

		Expect(sentTypes()).To(Equal([]coherence.MsgType{coherence.MsgGetS}))
	})

	It("should keep a request abortable until the network takes it", func() {
		saturated = true
		txn := issue(coherence.AccessLoad, addrA, 0)
		run()

		Expect(cache.LineState(addrA)).To(Equal(protocol.CacheISD))
		Expect(txn.State()).To(Equal(coherence.TxnQueued))
		Expect(txn.Abort()).To(Succeed())

		next := issue(coherence.AccessLoad, addrA+8, 0)
		run()

		saturated = false
		cache.NotifyAvailable()
		run()

		Expect(sentTypes()).To(Equal([]coherence.MsgType{coherence.MsgGetS}))

		deliver(coherence.MsgData, addrA, dataWith(8, 5))
		run()

		Expect(txn.Aborted()).To(BeTrue())
		Expect(txn.Outstanding()).To(Equal(0))
		Expect(next.Done()).To(BeTrue())
		Expect(next.Result).To(Equal(uint64(5)))
		Expect(cache.LineState(addrA)).To(Equal(protocol.CacheS))
		Expect(sent).To(HaveLen(1))
		Expect(cache.Busy()).To(BeFalse())
	})

	It("should put a request in flight once the network takes it", func() {
		saturated = true
		txn := issue(coherence.AccessStore, addrA, 1)
		run()

		Expect(txn.Outstanding()).To(Equal(0))

		saturated = false
		cache.NotifyAvailable()
		run()

		Expect(txn.State()).To(Equal(coherence.TxnInFlight))
		Expect(txn.Outstanding()).To(Equal(1))
		Expect(txn.Abort()).To(MatchError(coherence.ErrTransactionInFlight))
	})

	It("should stop the run on an unexpected message", func() {
		deliver(coherence.MsgPutAck, addrA, nil)

		err := engine.Run()

		var violation *coherence.ProtocolViolation
		Expect(errors.As(err, &violation)).To(BeTrue())
		Expect(violation.Machine).To(Equal(coherence.MachineL1Cache))
		Expect(violation.State).To(Equal(protocol.CacheI))
		Expect(violation.Event).To(Equal(string(protocol.EvPutAck)))
	})

	It("should upgrade E to M without a message with MESI", func() {
		build(protocol.MESI(), 4)

		issue(coherence.AccessLoad, addrA, 0)
		run()
		deliver(coherence.MsgDataE, addrA, dataWith(0, 0))
		run()

		Expect(cache.LineState(addrA)).To(Equal(protocol.CacheE))

		txn := issue(coherence.AccessStore, addrA, 8)
		run()

		Expect(txn.Done()).To(BeTrue())
		Expect(cache.LineState(addrA)).To(Equal(protocol.CacheM))
		Expect(sent).To(HaveLen(1))
	})
})
