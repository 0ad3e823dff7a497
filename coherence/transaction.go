package coherence

import (
	"fmt"

	"github.com/sarchlab/rubysim/sim/timing"
)

// TxnState is the lifecycle state of a transaction.
type TxnState int

// Transaction lifecycle states.
const (
	TxnQueued TxnState = iota
	TxnInFlight
	TxnCompleted
	TxnAborted
)

func (s TxnState) String() string {
	switch s {
	case TxnQueued:
		return "Queued"
	case TxnInFlight:
		return "InFlight"
	case TxnCompleted:
		return "Completed"
	case TxnAborted:
		return "Aborted"
	default:
		return fmt.Sprintf("TxnState(%d)", int(s))
	}
}

// A Transaction is a core memory access being served by the memory system.
type Transaction struct {
	ID   uint64
	Core int
	Addr uint64
	Kind AccessKind

	// Value is the data to store, or the operand of an atomic add.
	Value uint64

	// Result is the loaded value, or the old value of an atomic add.
	Result uint64

	IssueCycle    timing.VTimeInCycle
	CompleteCycle timing.VTimeInCycle

	// Retries counts the NACKs this transaction received.
	Retries int

	state       TxnState
	outstanding int
	callbacks   []func(*Transaction)
}

// NewTransaction creates a queued transaction.
func NewTransaction(
	id uint64,
	core int,
	addr uint64,
	kind AccessKind,
	value uint64,
	now timing.VTimeInCycle,
) *Transaction {
	return &Transaction{
		ID:         id,
		Core:       core,
		Addr:       addr,
		Kind:       kind,
		Value:      value,
		IssueCycle: now,
	}
}

// State returns the lifecycle state of the transaction.
func (t *Transaction) State() TxnState {
	return t.state
}

// Done tells if the transaction has completed.
func (t *Transaction) Done() bool {
	return t.state == TxnCompleted
}

// Outstanding returns the number of messages the transaction waits for.
func (t *Transaction) Outstanding() int {
	return t.outstanding
}

// OnComplete registers a function to run when the transaction completes.
func (t *Transaction) OnComplete(f func(*Transaction)) {
	t.callbacks = append(t.callbacks, f)
}

// MessageSent records that a message on behalf of the transaction has left
// the issuing controller. From then on the transaction cannot be aborted.
func (t *Transaction) MessageSent() {
	if t.state == TxnAborted || t.state == TxnCompleted {
		panic(fmt.Sprintf("txn %d: sending message in state %s", t.ID, t.state))
	}

	t.state = TxnInFlight
	t.outstanding++
}

// MessageDone records that a response for the transaction has arrived.
func (t *Transaction) MessageDone() {
	if t.outstanding == 0 {
		panic(fmt.Sprintf("txn %d: no outstanding message", t.ID))
	}

	t.outstanding--
}

// Complete marks the transaction as completed with the given result and runs
// the completion callbacks. All messages must have been answered.
func (t *Transaction) Complete(now timing.VTimeInCycle, result uint64) {
	if t.outstanding != 0 {
		panic(fmt.Sprintf("txn %d: completing with %d outstanding messages",
			t.ID, t.outstanding))
	}

	if t.state == TxnCompleted || t.state == TxnAborted {
		panic(fmt.Sprintf("txn %d: completing in state %s", t.ID, t.state))
	}

	t.state = TxnCompleted
	t.Result = result
	t.CompleteCycle = now

	for _, f := range t.callbacks {
		f(t)
	}
}

// Abort cancels the transaction. Only transactions that have not sent any
// message can be aborted.
func (t *Transaction) Abort() error {
	switch t.state {
	case TxnQueued:
		t.state = TxnAborted
		return nil
	case TxnAborted:
		return nil
	case TxnCompleted:
		return fmt.Errorf("txn %d: already completed", t.ID)
	default:
		return fmt.Errorf("txn %d: %w", t.ID, ErrTransactionInFlight)
	}
}

// Aborted tells if the transaction was aborted.
func (t *Transaction) Aborted() bool {
	return t.state == TxnAborted
}
