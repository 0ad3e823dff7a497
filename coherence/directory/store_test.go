package directory

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rubysim/coherence"
	"github.com/sarchlab/rubysim/coherence/protocol"
	"github.com/sarchlab/rubysim/sim/idgen"
)

const (
	dirID    coherence.ControllerID = 10
	lineAddr uint64                 = 0x1000
)

func request(
	t coherence.MsgType,
	src coherence.ControllerID,
	txn uint64,
) *coherence.Msg {
	return &coherence.Msg{
		Type:  t,
		Src:   src,
		Dst:   dirID,
		Addr:  lineAddr,
		TxnID: txn,
	}
}

func lineData(b byte) []byte {
	d := make([]byte, 64)
	for i := range d {
		d[i] = b
	}

	return d
}

func types(msgs []*coherence.Msg) []coherence.MsgType {
	list := make([]coherence.MsgType, 0, len(msgs))
	for _, m := range msgs {
		list = append(list, m.Type)
	}

	return list
}

var _ = Describe("Store", func() {
	var s *Store

	apply := func(msg *coherence.Msg) (coherence.State, []*coherence.Msg) {
		ev, err := s.Classify(msg)
		Expect(err).NotTo(HaveOccurred())

		st, out, err := s.Apply(msg.Addr, ev, msg)
		Expect(err).NotTo(HaveOccurred())

		return st, out
	}

	memData := func(b byte) *coherence.Msg {
		return &coherence.Msg{
			Type: coherence.MsgMemData,
			Src:  dirID,
			Dst:  dirID,
			Addr: lineAddr,
			Data: lineData(b),
		}
	}

	share := func(ids ...coherence.ControllerID) {
		for _, id := range ids {
			apply(request(coherence.MsgGetS, id, 0))
			apply(memData(0))
		}
	}

	own := func(id coherence.ControllerID) {
		apply(request(coherence.MsgGetM, id, 0))
		apply(memData(0))
	}

	BeforeEach(func() {
		s = NewStore(protocol.MSI().Directory, dirID, idgen.New())
	})

	It("should report untracked lines as invalid", func() {
		line := s.Lookup(lineAddr)

		Expect(line.State).To(Equal(protocol.DirI))
		Expect(line.HasOwner()).To(BeFalse())
		Expect(line.Sharers.Empty()).To(BeTrue())
		Expect(s.Len()).To(Equal(0))
	})

	It("should serve a read miss from memory", func() {
		st, out := apply(request(coherence.MsgGetS, 1, 7))

		Expect(st).To(Equal(protocol.DirISM))
		Expect(types(out)).To(Equal([]coherence.MsgType{coherence.MsgMemRead}))
		Expect(out[0].Dst).To(Equal(dirID))
		Expect(s.Lookup(lineAddr).Pending).To(BeTrue())

		st, out = apply(memData(0xab))

		Expect(st).To(Equal(protocol.DirS))
		Expect(types(out)).To(Equal([]coherence.MsgType{coherence.MsgData}))
		Expect(out[0].Dst).To(Equal(coherence.ControllerID(1)))
		Expect(out[0].TxnID).To(Equal(uint64(7)))
		Expect(out[0].Data).To(Equal(lineData(0xab)))

		line := s.Lookup(lineAddr)
		Expect(line.Sharers.IDs()).To(Equal([]coherence.ControllerID{1}))
		Expect(line.Pending).To(BeFalse())
	})

	It("should NACK requests while a line is transient", func() {
		apply(request(coherence.MsgGetS, 1, 1))

		st, out := apply(request(coherence.MsgGetM, 2, 2))

		Expect(st).To(Equal(protocol.DirISM))
		Expect(types(out)).To(Equal([]coherence.MsgType{coherence.MsgNack}))
		Expect(out[0].Dst).To(Equal(coherence.ControllerID(2)))
		Expect(out[0].TxnID).To(Equal(uint64(2)))
	})

	It("should upgrade a sole sharer without invalidations", func() {
		share(1)

		msg := request(coherence.MsgGetM, 1, 3)
		ev, err := s.Classify(msg)
		Expect(err).NotTo(HaveOccurred())
		Expect(ev).To(Equal(protocol.EvGetMSoleSharer))

		st, out := apply(msg)
		Expect(st).To(Equal(protocol.DirSMM))
		Expect(types(out)).To(Equal([]coherence.MsgType{coherence.MsgMemRead}))

		st, _ = apply(memData(0))
		Expect(st).To(Equal(protocol.DirM))
		Expect(s.Lookup(lineAddr).Owner).To(Equal(coherence.ControllerID(1)))
	})

	It("should collect every invalidation ack before granting M", func() {
		share(1, 2)

		st, out := apply(request(coherence.MsgGetM, 3, 9))

		Expect(st).To(Equal(protocol.DirSMAM))
		Expect(types(out)).To(Equal([]coherence.MsgType{
			coherence.MsgInv, coherence.MsgInv, coherence.MsgMemRead,
		}))
		Expect(out[0].Dst).To(Equal(coherence.ControllerID(1)))
		Expect(out[1].Dst).To(Equal(coherence.ControllerID(2)))
		Expect(out[0].Requestor).To(Equal(coherence.ControllerID(3)))

		st, _ = apply(memData(0x11))
		Expect(st).To(Equal(protocol.DirSMA))

		ack := request(coherence.MsgInvAck, 1, 9)
		ev, _ := s.Classify(ack)
		Expect(ev).To(Equal(protocol.EvInvAck))

		st, out = apply(ack)
		Expect(st).To(Equal(protocol.DirSMA))
		Expect(out).To(BeEmpty())

		ack = request(coherence.MsgInvAck, 2, 9)
		ev, _ = s.Classify(ack)
		Expect(ev).To(Equal(protocol.EvLastInvAck))

		st, out = apply(ack)
		Expect(st).To(Equal(protocol.DirM))
		Expect(types(out)).To(Equal([]coherence.MsgType{coherence.MsgData}))
		Expect(out[0].Dst).To(Equal(coherence.ControllerID(3)))
		Expect(out[0].Data).To(Equal(lineData(0x11)))

		line := s.Lookup(lineAddr)
		Expect(line.Owner).To(Equal(coherence.ControllerID(3)))
		Expect(line.Sharers.Empty()).To(BeTrue())
	})

	It("should finish on memory data when the acks come first", func() {
		share(1)

		apply(request(coherence.MsgGetM, 2, 4))

		st, _ := apply(request(coherence.MsgInvAck, 1, 4))
		Expect(st).To(Equal(protocol.DirSMM))

		st, out := apply(memData(0x22))
		Expect(st).To(Equal(protocol.DirM))
		Expect(types(out)).To(Equal([]coherence.MsgType{coherence.MsgData}))
	})

	It("should reject an ack that no transition expects", func() {
		msg := request(coherence.MsgInvAck, 1, 0)
		ev, err := s.Classify(msg)
		Expect(err).NotTo(HaveOccurred())

		_, _, err = s.Apply(lineAddr, ev, msg)

		var violation *coherence.ProtocolViolation
		Expect(errors.As(err, &violation)).To(BeTrue())
		Expect(violation.Machine).To(Equal(coherence.MachineDirectory))
		Expect(violation.Controller).To(Equal(dirID))
		Expect(violation.State).To(Equal(protocol.DirI))
		Expect(violation.Event).To(Equal(string(protocol.EvInvAck)))
	})

	It("should reject message types meant for caches", func() {
		_, err := s.Classify(request(coherence.MsgData, 1, 0))

		var violation *coherence.ProtocolViolation
		Expect(errors.As(err, &violation)).To(BeTrue())
	})

	It("should take a writeback from the owner", func() {
		own(1)

		msg := request(coherence.MsgPutM, 1, 5)
		msg.Data = lineData(0x33)
		st, out := apply(msg)

		Expect(st).To(Equal(protocol.DirI))
		Expect(types(out)).To(Equal([]coherence.MsgType{
			coherence.MsgMemWrite, coherence.MsgPutAck,
		}))
		Expect(out[0].Data).To(Equal(lineData(0x33)))
		Expect(out[1].Dst).To(Equal(coherence.ControllerID(1)))
		Expect(s.Len()).To(Equal(0))
	})

	It("should acknowledge a stale writeback without a state change", func() {
		own(1)

		msg := request(coherence.MsgPutM, 2, 5)
		ev, _ := s.Classify(msg)
		Expect(ev).To(Equal(protocol.EvPutMStale))

		st, out := apply(msg)
		Expect(st).To(Equal(protocol.DirM))
		Expect(types(out)).To(Equal([]coherence.MsgType{coherence.MsgPutAck}))
		Expect(s.Lookup(lineAddr).Owner).To(Equal(coherence.ControllerID(1)))
	})

	It("should forward a read to the owner and share the line", func() {
		own(1)

		st, out := apply(request(coherence.MsgGetS, 2, 6))
		Expect(st).To(Equal(protocol.DirMSD))
		Expect(types(out)).To(Equal([]coherence.MsgType{coherence.MsgFwdGetS}))
		Expect(out[0].Dst).To(Equal(coherence.ControllerID(1)))
		Expect(out[0].Requestor).To(Equal(coherence.ControllerID(2)))

		data := request(coherence.MsgOwnerData, 1, 6)
		data.Data = lineData(0x44)
		st, out = apply(data)

		Expect(st).To(Equal(protocol.DirS))
		Expect(types(out)).To(Equal([]coherence.MsgType{
			coherence.MsgMemWrite, coherence.MsgData,
		}))
		Expect(out[1].Dst).To(Equal(coherence.ControllerID(2)))
		Expect(out[1].Data).To(Equal(lineData(0x44)))

		line := s.Lookup(lineAddr)
		Expect(line.HasOwner()).To(BeFalse())
		Expect(line.Sharers.IDs()).To(Equal([]coherence.ControllerID{1, 2}))
	})

	It("should move ownership on a forwarded write", func() {
		own(1)

		apply(request(coherence.MsgGetM, 2, 6))

		data := request(coherence.MsgOwnerData, 1, 6)
		data.Data = lineData(0x55)
		st, _ := apply(data)

		Expect(st).To(Equal(protocol.DirM))
		Expect(s.Lookup(lineAddr).Owner).To(Equal(coherence.ControllerID(2)))
	})

	It("should grant exclusive data on an uncached read with MESI", func() {
		s = NewStore(protocol.MESI().Directory, dirID, idgen.New())

		apply(request(coherence.MsgGetS, 1, 1))
		st, out := apply(memData(0))

		Expect(st).To(Equal(protocol.DirM))
		Expect(types(out)).To(Equal([]coherence.MsgType{coherence.MsgDataE}))
		Expect(s.Lookup(lineAddr).Owner).To(Equal(coherence.ControllerID(1)))
	})

	It("should hand out snapshots", func() {
		share(1)

		line := s.Lookup(lineAddr)
		line.Sharers.Add(5)

		Expect(s.Lookup(lineAddr).Sharers.Contains(5)).To(BeFalse())
	})

	It("should visit lines in address order", func() {
		for _, addr := range []uint64{0x3000, 0x1000, 0x2000} {
			msg := request(coherence.MsgGetS, 1, 0)
			msg.Addr = addr
			apply(msg)
		}

		var addrs []uint64
		s.Ascend(func(line coherence.CacheLine) bool {
			addrs = append(addrs, line.Addr)
			return true
		})

		Expect(addrs).To(Equal([]uint64{0x1000, 0x2000, 0x3000}))
	})
})
