// Package sequencer provides the entry point through which a core issues
// memory accesses into the coherent memory system.
package sequencer

import (
	"fmt"

	"github.com/sarchlab/rubysim/coherence"
	"github.com/sarchlab/rubysim/sim/hooking"
	"github.com/sarchlab/rubysim/sim/idgen"
	"github.com/sarchlab/rubysim/sim/timing"
)

//go:generate mockgen -destination "mock_local_test.go" -package $GOPACKAGE -write_package_comment=false -source sequencer.go

// HookPosTxnIssue marks a transaction accepted by a sequencer.
var HookPosTxnIssue = &hooking.HookPos{Name: "TxnIssue"}

// HookPosTxnComplete marks a transaction that completed.
var HookPosTxnComplete = &hooking.HookPos{Name: "TxnComplete"}

// Cache is the L1 cache that serves a sequencer. It is implemented by
// l1.Comp.
type Cache interface {
	Request(txn *coherence.Transaction)
}

// Sequencer turns the accesses of one core into transactions and limits how
// many of them can be outstanding.
type Sequencer struct {
	*hooking.HookableBase

	name           string
	core           int
	cache          Cache
	clock          timing.TimeTeller
	ids            idgen.Generator
	maxOutstanding int

	outstanding map[uint64]*coherence.Transaction
	issued      uint64
	completed   uint64
}

// New creates a sequencer for a core.
func New(
	name string,
	core int,
	cache Cache,
	clock timing.TimeTeller,
	ids idgen.Generator,
	maxOutstanding int,
) *Sequencer {
	if maxOutstanding <= 0 {
		panic("max outstanding must be positive")
	}

	return &Sequencer{
		HookableBase:   hooking.NewHookableBase(),
		name:           name,
		core:           core,
		cache:          cache,
		clock:          clock,
		ids:            ids,
		maxOutstanding: maxOutstanding,
		outstanding:    make(map[uint64]*coherence.Transaction),
	}
}

// Name returns the name of the sequencer.
func (s *Sequencer) Name() string {
	return s.name
}

// Core returns the core the sequencer serves.
func (s *Sequencer) Core() int {
	return s.core
}

// Outstanding returns the number of transactions that have not completed.
func (s *Sequencer) Outstanding() int {
	return len(s.outstanding)
}

// MaxOutstanding returns the outstanding transaction limit.
func (s *Sequencer) MaxOutstanding() int {
	return s.maxOutstanding
}

// Issued returns the number of accepted transactions.
func (s *Sequencer) Issued() uint64 {
	return s.issued
}

// Completed returns the number of completed transactions.
func (s *Sequencer) Completed() uint64 {
	return s.completed
}

// Issue creates a transaction for an access and hands it to the L1 cache.
// The transaction completes asynchronously. At the outstanding limit, Issue
// returns a *coherence.SequencerBusyError.
func (s *Sequencer) Issue(
	core int,
	addr uint64,
	kind coherence.AccessKind,
	value uint64,
) (*coherence.Transaction, error) {
	if core != s.core {
		return nil, fmt.Errorf("%s serves core %d, not core %d",
			s.name, s.core, core)
	}

	if addr%coherence.WordSize != 0 {
		return nil, fmt.Errorf("%s: address 0x%x is not %d-byte aligned",
			s.name, addr, coherence.WordSize)
	}

	if len(s.outstanding) >= s.maxOutstanding {
		return nil, &coherence.SequencerBusyError{
			Core:  s.core,
			Limit: s.maxOutstanding,
		}
	}

	txn := coherence.NewTransaction(
		s.ids.Generate(), core, addr, kind, value, s.clock.CurrentTime())
	txn.OnComplete(s.complete)

	s.outstanding[txn.ID] = txn
	s.issued++

	s.invoke(HookPosTxnIssue, txn)
	s.cache.Request(txn)

	return txn, nil
}

func (s *Sequencer) complete(txn *coherence.Transaction) {
	delete(s.outstanding, txn.ID)
	s.completed++

	s.invoke(HookPosTxnComplete, txn)
}

// Abort cancels a transaction that has not sent any message yet. Otherwise
// it returns an error that matches coherence.ErrTransactionInFlight.
func (s *Sequencer) Abort(txn *coherence.Transaction) error {
	if _, ok := s.outstanding[txn.ID]; !ok {
		if txn.Aborted() {
			return nil
		}

		return fmt.Errorf("%s: txn %d is not outstanding", s.name, txn.ID)
	}

	if err := txn.Abort(); err != nil {
		return err
	}

	delete(s.outstanding, txn.ID)

	return nil
}

func (s *Sequencer) invoke(pos *hooking.HookPos, txn *coherence.Transaction) {
	if s.NumHooks() == 0 {
		return
	}

	s.InvokeHook(hooking.HookCtx{
		Domain: s,
		Pos:    pos,
		Item:   txn,
	})
}
