// Package directory implements the home node of the coherence protocol: a
// store that tracks the state of every line and a controller that serves
// requests from the L1 caches.
package directory

import (
	"fmt"

	"github.com/google/btree"

	"github.com/sarchlab/rubysim/coherence"
	"github.com/sarchlab/rubysim/coherence/protocol"
	"github.com/sarchlab/rubysim/sim/idgen"
)

// entry is what the directory knows about one line. The bookkeeping fields
// are only meaningful while the line is in a transient state.
type entry struct {
	line coherence.CacheLine

	requestor    coherence.ControllerID
	txnID        uint64
	acksExpected int
	acksReceived int
	data         []byte
}

func (e *entry) idle() bool {
	return !e.line.Pending && e.line.Sharers.Empty() && !e.line.HasOwner()
}

func lessEntry(a, b *entry) bool {
	return a.line.Addr < b.line.Addr
}

// Store keeps the directory state of the lines a directory is home to.
// Lines that are not tracked are in the default state of the protocol.
type Store struct {
	table *protocol.Table
	self  coherence.ControllerID
	ids   idgen.Generator
	lines *btree.BTreeG[*entry]
}

// NewStore creates an empty store driven by the given directory table.
func NewStore(
	table *protocol.Table,
	self coherence.ControllerID,
	ids idgen.Generator,
) *Store {
	if table.Machine() != coherence.MachineDirectory {
		panic(fmt.Sprintf("table %s does not drive a directory", table.Name()))
	}

	return &Store{
		table: table,
		self:  self,
		ids:   ids,
		lines: btree.NewG(32, lessEntry),
	}
}

func (s *Store) get(addr uint64) (*entry, bool) {
	return s.lines.Get(&entry{line: coherence.CacheLine{Addr: addr}})
}

func (s *Store) newEntry(addr uint64) *entry {
	return &entry{
		line: coherence.CacheLine{
			Addr:  addr,
			State: s.table.DefaultState(),
			Owner: coherence.NoController,
		},
		requestor: coherence.NoController,
	}
}

// Lookup returns a snapshot of a line.
func (s *Store) Lookup(addr uint64) coherence.CacheLine {
	e, ok := s.get(addr)
	if !ok {
		return s.newEntry(addr).line
	}

	return e.line.Clone()
}

// Len returns the number of lines that are tracked.
func (s *Store) Len() int {
	return s.lines.Len()
}

// Ascend visits the tracked lines in address order until f returns false.
func (s *Store) Ascend(f func(line coherence.CacheLine) bool) {
	s.lines.Ascend(func(e *entry) bool {
		return f(e.line.Clone())
	})
}

// Classify turns an inbound message into the event it raises on its line.
func (s *Store) Classify(msg *coherence.Msg) (protocol.Event, error) {
	e, ok := s.get(msg.Addr)
	if !ok {
		e = s.newEntry(msg.Addr)
	}

	switch msg.Type {
	case coherence.MsgGetS:
		return protocol.EvGetS, nil
	case coherence.MsgGetM:
		if e.line.State == protocol.DirS &&
			e.line.Sharers.Len() == 1 &&
			e.line.Sharers.Contains(msg.Src) {
			return protocol.EvGetMSoleSharer, nil
		}

		return protocol.EvGetM, nil
	case coherence.MsgPutM:
		if e.line.Owner == msg.Src {
			return protocol.EvPutMOwner, nil
		}

		return protocol.EvPutMStale, nil
	case coherence.MsgInvAck:
		if e.acksExpected > 0 && e.acksReceived+1 == e.acksExpected {
			return protocol.EvLastInvAck, nil
		}

		return protocol.EvInvAck, nil
	case coherence.MsgOwnerData:
		return protocol.EvOwnerData, nil
	case coherence.MsgMemData:
		return protocol.EvMemData, nil
	default:
		return "", &coherence.ProtocolViolation{
			Machine:    coherence.MachineDirectory,
			Controller: s.self,
			Addr:       msg.Addr,
			State:      e.line.State,
			Event:      msg.Type.String(),
			Detail:     "message type not accepted by directories",
		}
	}
}

// Apply runs the transition that the event triggers on a line and returns
// the new state together with the messages the transition produces. The
// messages are not sent.
func (s *Store) Apply(
	addr uint64,
	event protocol.Event,
	msg *coherence.Msg,
) (coherence.State, []*coherence.Msg, error) {
	e, ok := s.get(addr)
	if !ok {
		e = s.newEntry(addr)
	}

	tr, found := s.table.Lookup(e.line.State, event)
	if !found {
		return e.line.State, nil, &coherence.ProtocolViolation{
			Machine:    coherence.MachineDirectory,
			Controller: s.self,
			Addr:       addr,
			State:      e.line.State,
			Event:      string(event),
		}
	}

	var out []*coherence.Msg
	for _, a := range tr.Actions {
		out = s.execute(a, e, msg, out)
	}

	e.line.State = tr.To

	if e.line.State == s.table.DefaultState() && e.idle() {
		if ok {
			s.lines.Delete(e)
		}
	} else {
		s.lines.ReplaceOrInsert(e)
	}

	return e.line.State, out, nil
}

func (s *Store) newMsg(
	t coherence.MsgType,
	e *entry,
	dst coherence.ControllerID,
) *coherence.Msg {
	return &coherence.Msg{
		ID:        s.ids.Generate(),
		Type:      t,
		Src:       s.self,
		Dst:       dst,
		Addr:      e.line.Addr,
		Requestor: e.requestor,
		TxnID:     e.txnID,
	}
}

func (s *Store) reply(
	t coherence.MsgType,
	e *entry,
	msg *coherence.Msg,
) *coherence.Msg {
	r := s.newMsg(t, e, msg.Src)
	r.Requestor = msg.Src
	r.TxnID = msg.TxnID

	return r
}

//nolint:gocyclo,funlen
func (s *Store) execute(
	a protocol.Action,
	e *entry,
	msg *coherence.Msg,
	out []*coherence.Msg,
) []*coherence.Msg {
	switch a {
	case protocol.ActRecordRequestor:
		e.requestor = msg.Src
		e.txnID = msg.TxnID
		e.line.Pending = true
	case protocol.ActReadMemory:
		out = append(out, s.newMsg(coherence.MsgMemRead, e, s.self))
	case protocol.ActWriteMemory:
		w := s.newMsg(coherence.MsgMemWrite, e, s.self)
		w.Data = cloneData(msg.Data)
		if w.Data == nil {
			w.Data = cloneData(e.data)
		}

		out = append(out, w)
	case protocol.ActSaveData:
		e.data = cloneData(msg.Data)
	case protocol.ActSendData:
		d := s.newMsg(coherence.MsgData, e, e.requestor)
		d.Data = cloneData(e.data)
		out = append(out, d)
	case protocol.ActSendExclusiveData:
		d := s.newMsg(coherence.MsgDataE, e, e.requestor)
		d.Data = cloneData(e.data)
		out = append(out, d)
	case protocol.ActAddRequestorSharer:
		e.line.Sharers.Add(e.requestor)
	case protocol.ActAddOwnerSharer:
		if e.line.HasOwner() {
			e.line.Sharers.Add(e.line.Owner)
		}
	case protocol.ActSetOwnerRequestor:
		e.line.Owner = e.requestor
		e.line.Sharers.Clear()
	case protocol.ActClearOwner:
		e.line.Owner = coherence.NoController
	case protocol.ActInvalidateSharers:
		e.acksExpected = 0
		e.acksReceived = 0

		for _, id := range e.line.Sharers.IDs() {
			if id == e.requestor {
				continue
			}

			out = append(out, s.newMsg(coherence.MsgInv, e, id))
			e.acksExpected++
		}
	case protocol.ActFwdGetSToOwner:
		out = append(out, s.newMsg(coherence.MsgFwdGetS, e, e.line.Owner))
	case protocol.ActFwdGetMToOwner:
		out = append(out, s.newMsg(coherence.MsgFwdGetM, e, e.line.Owner))
	case protocol.ActRecordAck:
		e.acksReceived++
	case protocol.ActSendPutAck:
		out = append(out, s.reply(coherence.MsgPutAck, e, msg))
	case protocol.ActSendNack:
		out = append(out, s.reply(coherence.MsgNack, e, msg))
	case protocol.ActFinish:
		e.line.Pending = false
		e.requestor = coherence.NoController
		e.txnID = 0
		e.acksExpected = 0
		e.acksReceived = 0
		e.data = nil
	default:
		panic(fmt.Sprintf("directory cannot perform action %s", a))
	}

	return out
}

func cloneData(d []byte) []byte {
	if d == nil {
		return nil
	}

	return append([]byte(nil), d...)
}
