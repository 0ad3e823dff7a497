package datarecording

import (
	"github.com/sarchlab/rubysim/coherence"
	"github.com/sarchlab/rubysim/coherence/sequencer"
	"github.com/sarchlab/rubysim/noc"
	"github.com/sarchlab/rubysim/ruby"
	"github.com/sarchlab/rubysim/sim/hooking"
	"github.com/sarchlab/rubysim/sim/timing"
)

// Table names used by Attach.
const (
	MsgTable        = "msgs"
	TxnTable        = "txns"
	TransitionTable = "transitions"
	SummaryTable    = "summary"
)

// MsgEntry is a message delivered by the network.
type MsgEntry struct {
	ID           uint64
	Type         string
	Src          int
	Dst          int
	Addr         uint64
	TxnID        uint64
	IssueCycle   uint64
	DeliverCycle uint64
}

// TxnEntry is a completed core transaction.
type TxnEntry struct {
	ID            uint64
	Core          int
	Kind          string
	Addr          uint64
	Value         uint64
	Result        uint64
	Retries       int
	IssueCycle    uint64
	CompleteCycle uint64
}

// TransitionEntry is one protocol transition taken by a controller.
type TransitionEntry struct {
	Cycle      uint64
	Machine    string
	Controller int
	Addr       uint64
	FromState  string
	Event      string
	ToState    string
}

// SummaryEntry is a named metric of a finished run.
type SummaryEntry struct {
	Name  string
	Value float64
}

// Recorder turns hook invocations into table rows.
type Recorder struct {
	rec        DataRecorder
	timeTeller timing.TimeTeller

	// Transitions enables recording of every protocol transition. It can be
	// very verbose.
	Transitions bool
}

// NewRecorder creates the tables on rec and returns a hook that fills them.
func NewRecorder(
	rec DataRecorder,
	timeTeller timing.TimeTeller,
	transitions bool,
) *Recorder {
	rec.CreateTable(MsgTable, MsgEntry{})
	rec.CreateTable(TxnTable, TxnEntry{})
	rec.CreateTable(SummaryTable, SummaryEntry{})

	if transitions {
		rec.CreateTable(TransitionTable, TransitionEntry{})
	}

	return &Recorder{
		rec:         rec,
		timeTeller:  timeTeller,
		Transitions: transitions,
	}
}

// Func records the hook context if it is of interest.
func (r *Recorder) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case noc.HookPosMsgDeliver:
		r.recordMsg(ctx)
	case sequencer.HookPosTxnComplete:
		r.recordTxn(ctx)
	case coherence.HookPosTransition:
		if r.Transitions {
			r.recordTransition(ctx)
		}
	}
}

func (r *Recorder) recordMsg(ctx hooking.HookCtx) {
	msg, ok := ctx.Item.(*coherence.Msg)
	if !ok {
		return
	}

	r.rec.InsertData(MsgTable, MsgEntry{
		ID:           msg.ID,
		Type:         msg.Type.String(),
		Src:          int(msg.Src),
		Dst:          int(msg.Dst),
		Addr:         msg.Addr,
		TxnID:        msg.TxnID,
		IssueCycle:   uint64(msg.IssueCycle),
		DeliverCycle: uint64(r.timeTeller.CurrentTime()),
	})
}

func (r *Recorder) recordTxn(ctx hooking.HookCtx) {
	txn, ok := ctx.Item.(*coherence.Transaction)
	if !ok {
		return
	}

	r.rec.InsertData(TxnTable, TxnEntry{
		ID:            txn.ID,
		Core:          txn.Core,
		Kind:          txn.Kind.String(),
		Addr:          txn.Addr,
		Value:         txn.Value,
		Result:        txn.Result,
		Retries:       txn.Retries,
		IssueCycle:    uint64(txn.IssueCycle),
		CompleteCycle: uint64(txn.CompleteCycle),
	})
}

func (r *Recorder) recordTransition(ctx hooking.HookCtx) {
	info, ok := ctx.Detail.(coherence.TransitionInfo)
	if !ok {
		return
	}

	r.rec.InsertData(TransitionTable, TransitionEntry{
		Cycle:      uint64(r.timeTeller.CurrentTime()),
		Machine:    info.Machine.String(),
		Controller: int(info.Controller),
		Addr:       info.Addr,
		FromState:  string(info.From),
		Event:      info.Event,
		ToState:    string(info.To),
	})
}

// Attach connects a Recorder to every part of the system.
func Attach(rec DataRecorder, sys *ruby.System, transitions bool) *Recorder {
	r := NewRecorder(rec, sys.Engine(), transitions)

	sys.Network().AcceptHook(r)

	for i := 0; i < sys.Options().NumCPUs; i++ {
		sys.Sequencer(i).AcceptHook(r)
	}

	if transitions {
		for _, c := range sys.Caches() {
			c.AcceptHook(r)
		}

		for _, d := range sys.Directories() {
			d.AcceptHook(r)
		}
	}

	return r
}

// RecordSummary writes the headline numbers of a run and flushes.
func (r *Recorder) RecordSummary(st ruby.Stats) {
	put := func(name string, v float64) {
		r.rec.InsertData(SummaryTable, SummaryEntry{Name: name, Value: v})
	}

	put("cycles", float64(st.Cycles))
	put("seconds", float64(st.Seconds))
	put("completed", float64(st.Completed))
	put("avg_latency", st.AvgLatency)
	put("max_latency", float64(st.MaxLatency))
	put("retries", float64(st.Retries))
	put("msgs_sent", float64(st.Network.TotalSent()))
	put("link_stalls", float64(st.Network.Stalls))
	put("faults", float64(st.Network.Faults))
	put("distinct_transitions", float64(st.DistinctTransitions))

	r.rec.Flush()
}
