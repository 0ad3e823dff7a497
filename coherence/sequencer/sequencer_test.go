package sequencer

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/rubysim/coherence"
	"github.com/sarchlab/rubysim/sim/hooking"
	"github.com/sarchlab/rubysim/sim/idgen"
	"github.com/sarchlab/rubysim/sim/timing"
)

var _ = Describe("Sequencer", func() {
	var (
		mockCtrl *gomock.Controller
		cache    *MockCache
		engine   *timing.SerialEngine
		seq      *Sequencer
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		cache = NewMockCache(mockCtrl)
		engine = timing.NewSerialEngine()
		seq = New("Seq", 3, cache, engine, idgen.New(), 2)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should hand transactions to the cache", func() {
		cache.EXPECT().Request(gomock.Any()).Do(func(txn *coherence.Transaction) {
			Expect(txn.Core).To(Equal(3))
			Expect(txn.Addr).To(Equal(uint64(0x48)))
			Expect(txn.Kind).To(Equal(coherence.AccessStore))
			Expect(txn.Value).To(Equal(uint64(9)))
		})

		txn, err := seq.Issue(3, 0x48, coherence.AccessStore, 9)

		Expect(err).NotTo(HaveOccurred())
		Expect(txn.State()).To(Equal(coherence.TxnQueued))
		Expect(seq.Outstanding()).To(Equal(1))
	})

	It("should accept one below the limit and refuse at the limit", func() {
		cache.EXPECT().Request(gomock.Any()).Times(2)

		_, err := seq.Issue(3, 0x0, coherence.AccessLoad, 0)
		Expect(err).NotTo(HaveOccurred())

		_, err = seq.Issue(3, 0x8, coherence.AccessLoad, 0)
		Expect(err).NotTo(HaveOccurred())

		_, err = seq.Issue(3, 0x10, coherence.AccessLoad, 0)
		Expect(errors.Is(err, coherence.ErrSequencerBusy)).To(BeTrue())

		var busy *coherence.SequencerBusyError
		Expect(errors.As(err, &busy)).To(BeTrue())
		Expect(busy.Core).To(Equal(3))
		Expect(busy.Limit).To(Equal(2))
	})

	It("should free a slot when a transaction completes", func() {
		cache.EXPECT().Request(gomock.Any()).Times(3)

		t1, _ := seq.Issue(3, 0x0, coherence.AccessLoad, 0)
		_, _ = seq.Issue(3, 0x8, coherence.AccessLoad, 0)

		t1.Complete(5, 0)

		Expect(seq.Outstanding()).To(Equal(1))
		Expect(seq.Completed()).To(Equal(uint64(1)))

		_, err := seq.Issue(3, 0x10, coherence.AccessLoad, 0)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should reject accesses of another core", func() {
		_, err := seq.Issue(1, 0x0, coherence.AccessLoad, 0)

		Expect(err).To(HaveOccurred())
	})

	It("should reject unaligned accesses", func() {
		_, err := seq.Issue(3, 0x3, coherence.AccessLoad, 0)

		Expect(err).To(MatchError(ContainSubstring("aligned")))
	})

	It("should abort a transaction that is still queued", func() {
		cache.EXPECT().Request(gomock.Any())

		txn, _ := seq.Issue(3, 0x0, coherence.AccessLoad, 0)

		Expect(seq.Abort(txn)).To(Succeed())
		Expect(txn.Aborted()).To(BeTrue())
		Expect(seq.Outstanding()).To(Equal(0))
		Expect(seq.Abort(txn)).To(Succeed())
	})

	It("should not abort a transaction in flight", func() {
		cache.EXPECT().Request(gomock.Any())

		txn, _ := seq.Issue(3, 0x0, coherence.AccessLoad, 0)
		txn.MessageSent()

		err := seq.Abort(txn)

		Expect(errors.Is(err, coherence.ErrTransactionInFlight)).To(BeTrue())
		Expect(seq.Outstanding()).To(Equal(1))
	})

	It("should invoke hooks on issue and completion", func() {
		cache.EXPECT().Request(gomock.Any())

		var positions []*hooking.HookPos
		seq.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
			positions = append(positions, ctx.Pos)
		}))

		txn, _ := seq.Issue(3, 0x0, coherence.AccessLoad, 0)
		txn.Complete(1, 0)

		Expect(positions).To(Equal([]*hooking.HookPos{
			HookPosTxnIssue, HookPosTxnComplete,
		}))
	})
})
