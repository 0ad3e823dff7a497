package coherence

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Transaction", func() {
	var txn *Transaction

	BeforeEach(func() {
		txn = NewTransaction(1, 0, 0x40, AccessStore, 7, 3)
	})

	It("should complete once all messages are answered", func() {
		completed := false
		txn.OnComplete(func(t *Transaction) { completed = true })

		txn.MessageSent()
		Expect(txn.State()).To(Equal(TxnInFlight))
		Expect(func() { txn.Complete(10, 0) }).To(Panic())

		txn.MessageDone()
		txn.Complete(10, 5)

		Expect(completed).To(BeTrue())
		Expect(txn.Done()).To(BeTrue())
		Expect(txn.Result).To(Equal(uint64(5)))
		Expect(txn.CompleteCycle).To(BeNumerically("==", 10))
	})

	It("should abort before any message is sent", func() {
		Expect(txn.Abort()).To(Succeed())
		Expect(txn.Aborted()).To(BeTrue())
	})

	It("should refuse to abort in flight", func() {
		txn.MessageSent()

		err := txn.Abort()

		Expect(errors.Is(err, ErrTransactionInFlight)).To(BeTrue())
		Expect(txn.Aborted()).To(BeFalse())
	})
})

var _ = Describe("Errors", func() {
	It("should match SequencerBusy", func() {
		var err error = &SequencerBusyError{Core: 1, Limit: 4}

		Expect(errors.Is(err, ErrSequencerBusy)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("core 1"))
	})

	It("should unwrap the cause of a configuration error", func() {
		cause := errors.New("root")
		err := NewConfigurationError("mem-type", "unknown", cause)

		Expect(errors.Is(err, cause)).To(BeTrue())
		Expect(err.Error()).To(Equal(
			"configuration error (mem-type): unknown: root"))
	})

	It("should report diagnostics of a protocol violation", func() {
		err := &ProtocolViolation{
			Machine:    MachineDirectory,
			Controller: 4,
			Addr:       0x80,
			State:      "I",
			Event:      "InvAck",
			Involved:   map[ControllerID]State{1: "S", 0: "I"},
			History: []MsgRecord{
				{Cycle: 3, Action: "deliver", ID: 9, Type: MsgInvAck, Src: 1, Dst: 4},
			},
		}

		msg := err.Error()

		Expect(msg).To(ContainSubstring("Directory 4"))
		Expect(msg).To(ContainSubstring("0x80"))
		Expect(msg).To(ContainSubstring("states: 0=I 1=S"))
		Expect(msg).To(ContainSubstring("[3] deliver InvAck#9 1->4"))
	})
})
