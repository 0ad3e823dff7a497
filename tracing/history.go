// Package tracing provides hooks that observe a running coherence system:
// message histories, invariant checks, and counters.
package tracing

import (
	"github.com/sarchlab/rubysim/coherence"
	"github.com/sarchlab/rubysim/noc"
	"github.com/sarchlab/rubysim/sim/hooking"
	"github.com/sarchlab/rubysim/sim/timing"
)

// MsgHistory keeps the most recent network events of every address. It is
// attached to a network.
type MsgHistory struct {
	timeTeller timing.TimeTeller
	depth      int
	records    map[uint64][]coherence.MsgRecord
}

// NewMsgHistory creates a MsgHistory that remembers depth records per
// address.
func NewMsgHistory(timeTeller timing.TimeTeller, depth int) *MsgHistory {
	if depth <= 0 {
		panic("history depth must be positive")
	}

	return &MsgHistory{
		timeTeller: timeTeller,
		depth:      depth,
		records:    make(map[uint64][]coherence.MsgRecord),
	}
}

// Func records sends and deliveries.
func (h *MsgHistory) Func(ctx hooking.HookCtx) {
	var action string

	switch ctx.Pos {
	case noc.HookPosMsgSend:
		action = "send"
	case noc.HookPosMsgDeliver:
		action = "deliver"
	case noc.HookPosLinkStall:
		action = "stall"
	default:
		return
	}

	msg, ok := ctx.Item.(*coherence.Msg)
	if !ok {
		return
	}

	list := append(h.records[msg.Addr], coherence.MsgRecord{
		Cycle:  h.timeTeller.CurrentTime(),
		Action: action,
		ID:     msg.ID,
		Type:   msg.Type,
		Src:    msg.Src,
		Dst:    msg.Dst,
	})

	if len(list) > h.depth {
		list = list[len(list)-h.depth:]
	}

	h.records[msg.Addr] = list
}

// For returns the records of an address, oldest first.
func (h *MsgHistory) For(addr uint64) []coherence.MsgRecord {
	return append([]coherence.MsgRecord(nil), h.records[addr]...)
}
