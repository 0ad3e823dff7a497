package coherence

import (
	"fmt"

	"github.com/sarchlab/rubysim/sim/timing"
)

// MsgType is the kind of a coherence message.
type MsgType int

// Coherence message types. MemRead, MemWrite, and MemData travel between a
// directory and its backing store and never enter the network.
const (
	MsgGetS MsgType = iota
	MsgGetM
	MsgPutM
	MsgFwdGetS
	MsgFwdGetM
	MsgInv
	MsgInvAck
	MsgData
	MsgDataE
	MsgOwnerData
	MsgPutAck
	MsgNack
	MsgMemRead
	MsgMemWrite
	MsgMemData
	numMsgTypes
)

var msgTypeNames = [...]string{
	"GetS", "GetM", "PutM", "FwdGetS", "FwdGetM", "Inv", "InvAck", "Data",
	"DataE", "OwnerData", "PutAck", "Nack", "MemRead", "MemWrite", "MemData",
}

func (t MsgType) String() string {
	if t < 0 || t >= numMsgTypes {
		return fmt.Sprintf("Msg(%d)", int(t))
	}

	return msgTypeNames[t]
}

// AllMsgTypes lists every message type in declaration order.
func AllMsgTypes() []MsgType {
	types := make([]MsgType, 0, numMsgTypes)
	for t := MsgGetS; t < numMsgTypes; t++ {
		types = append(types, t)
	}

	return types
}

// IsRequest tells if the message asks the directory for a permission.
func (t MsgType) IsRequest() bool {
	return t == MsgGetS || t == MsgGetM || t == MsgPutM
}

// IsMemory tells if the message is exchanged with the backing store.
func (t MsgType) IsMemory() bool {
	return t == MsgMemRead || t == MsgMemWrite || t == MsgMemData
}

// Msg is a coherence message. A message is created by a controller, owned by
// the network while in flight, and owned by the destination afterward.
type Msg struct {
	ID   uint64
	Type MsgType
	Src  ControllerID
	Dst  ControllerID
	Addr uint64

	// Data carries a whole cache line for data-bearing messages.
	Data []byte

	// Requestor is the controller that started the transaction a forward or
	// an invalidation belongs to.
	Requestor ControllerID

	IssueCycle timing.VTimeInCycle

	// TxnID links a request to the core transaction that triggered it. Zero
	// if the message is not tied to a transaction.
	TxnID uint64
}

// Clone returns a deep copy of the message.
func (m *Msg) Clone() *Msg {
	c := *m
	if m.Data != nil {
		c.Data = append([]byte(nil), m.Data...)
	}

	return &c
}

func (m *Msg) String() string {
	return fmt.Sprintf("%s#%d %d->%d @0x%x", m.Type, m.ID, m.Src, m.Dst, m.Addr)
}

// MsgRecord is one entry of a per-address message history.
type MsgRecord struct {
	Cycle  timing.VTimeInCycle
	Action string
	ID     uint64
	Type   MsgType
	Src    ControllerID
	Dst    ControllerID
}

func (r MsgRecord) String() string {
	return fmt.Sprintf("[%d] %s %s#%d %d->%d",
		r.Cycle, r.Action, r.Type, r.ID, r.Src, r.Dst)
}
