// Package l1 implements the private L1 cache controller that serves the
// accesses of one core and keeps its copies coherent.
package l1

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"reflect"

	"github.com/sarchlab/rubysim/coherence"
	"github.com/sarchlab/rubysim/coherence/protocol"
	"github.com/sarchlab/rubysim/sim/hooking"
	"github.com/sarchlab/rubysim/sim/idgen"
	"github.com/sarchlab/rubysim/sim/queueing"
	"github.com/sarchlab/rubysim/sim/timing"
)

// Stats counts the work done by an L1 cache.
type Stats struct {
	Hits       uint64
	Misses     uint64
	Evictions  uint64
	Writebacks uint64
	Nacks      uint64
	Retries    uint64
	SendStalls uint64
}

// line is a cache line together with the core requests waiting on it. Only
// the head of the waiting queue is ever evaluated.
type line struct {
	addr    uint64
	state   coherence.State
	data    []byte
	waiting []*coherence.Transaction
	stalled []*coherence.Msg
}

func (l *line) head() *coherence.Transaction {
	if len(l.waiting) == 0 {
		return nil
	}

	return l.waiting[0]
}

type trigger struct {
	msg *coherence.Msg
	txn *coherence.Transaction
}

// outgoing is a message waiting for the network. Requests carry the
// transaction they are sent for, which counts as in flight only once the
// network accepts the message.
type outgoing struct {
	msg *coherence.Msg
	txn *coherence.Transaction
}

type retryEvent struct {
	addr uint64
}

// Comp is an L1 cache controller. It is fully associative and replaces the
// least recently used stable line.
type Comp struct {
	*timing.TickingComponent

	id             coherence.ControllerID
	table          *protocol.Table
	network        Network
	mapper         DirectoryMapper
	ids            idgen.Generator
	lineSize       int
	capacity       int
	ports          int
	recycleLatency timing.VTimeInCycle

	lines    map[uint64]*line
	lruQueue []uint64
	occupied int

	mandatory queueing.Buffer
	inbound   queueing.Buffer
	outbound  queueing.Buffer
	replay    []*coherence.Msg
	ready     []uint64
	readySet  map[uint64]bool
	roomWait  []uint64

	budgetCycle timing.VTimeInCycle
	budgetUsed  int

	err   error
	stats Stats
}

// ID returns the controller ID of the cache.
func (c *Comp) ID() coherence.ControllerID {
	return c.id
}

// Stats returns the counters of the cache.
func (c *Comp) Stats() Stats {
	return c.stats
}

// LineState returns the state of a line in the cache.
func (c *Comp) LineState(addr uint64) coherence.State {
	if l, ok := c.lines[addr]; ok {
		return l.state
	}

	return c.table.DefaultState()
}

// PeekLine returns a copy of the data the cache holds for a line.
func (c *Comp) PeekLine(addr uint64) ([]byte, bool) {
	l, ok := c.lines[addr]
	if !ok || l.data == nil {
		return nil, false
	}

	return append([]byte(nil), l.data...), true
}

// Busy tells if the cache still has work to do.
func (c *Comp) Busy() bool {
	if c.inbound.Size() > 0 || c.outbound.Size() > 0 ||
		c.mandatory.Size() > 0 || len(c.replay) > 0 {
		return true
	}

	for _, l := range c.lines {
		if len(l.waiting) > 0 || !c.table.IsStable(l.state) {
			return true
		}
	}

	return false
}

// Request accepts an access from the core.
func (c *Comp) Request(txn *coherence.Transaction) {
	c.mandatory.Push(txn)
	c.TickNow()
}

// Deliver receives a message from the network.
func (c *Comp) Deliver(msg *coherence.Msg) {
	c.inbound.Push(msg)
	c.TickNow()
}

// NotifyAvailable is called by the network when the cache can send again.
func (c *Comp) NotifyAvailable() {
	c.TickNow()
}

// Handle defines how the cache handles events.
func (c *Comp) Handle(e any) error {
	switch e := e.(type) {
	case timing.TickEvent:
		if err := c.HandleTick(); err != nil {
			return err
		}
	case retryEvent:
		c.retry(e.addr)
	default:
		log.Panicf("cannot handle event of %s", reflect.TypeOf(e))
	}

	return c.err
}

// Tick handles inbound messages first and core requests after, one per port
// per cycle.
func (c *Comp) Tick() bool {
	if c.err != nil {
		return false
	}

	now := c.CurrentTime()
	if now != c.budgetCycle {
		c.budgetCycle = now
		c.budgetUsed = 0
	}

	madeProgress := c.send()

	for c.budgetUsed < c.ports && c.outbound.Size() == 0 && c.err == nil {
		if !c.processOne() {
			break
		}

		c.budgetUsed++
		madeProgress = true
		madeProgress = c.send() || madeProgress
	}

	if c.budgetUsed >= c.ports && c.hasWork() && c.outbound.Size() == 0 {
		madeProgress = true
	}

	return madeProgress
}

func (c *Comp) hasWork() bool {
	return len(c.replay) > 0 || c.inbound.Size() > 0 || len(c.ready) > 0 ||
		c.mandatory.Size() > 0
}

func (c *Comp) processOne() bool {
	if msg := c.nextMsg(); msg != nil {
		c.handleMsg(msg)
		return true
	}

	if c.processReady() {
		return true
	}

	return c.processRequest()
}

func (c *Comp) nextMsg() *coherence.Msg {
	if len(c.replay) > 0 {
		msg := c.replay[0]
		c.replay = c.replay[1:]

		return msg
	}

	if item := c.inbound.Pop(); item != nil {
		return item.(*coherence.Msg)
	}

	return nil
}

func msgEvent(t coherence.MsgType) (protocol.Event, bool) {
	switch t {
	case coherence.MsgInv:
		return protocol.EvInv, true
	case coherence.MsgFwdGetS:
		return protocol.EvFwdGetS, true
	case coherence.MsgFwdGetM:
		return protocol.EvFwdGetM, true
	case coherence.MsgData:
		return protocol.EvData, true
	case coherence.MsgDataE:
		return protocol.EvDataE, true
	case coherence.MsgPutAck:
		return protocol.EvPutAck, true
	case coherence.MsgNack:
		return protocol.EvNack, true
	default:
		return "", false
	}
}

func accessEvent(k coherence.AccessKind) protocol.Event {
	if k == coherence.AccessLoad {
		return protocol.EvLoad
	}

	return protocol.EvStore
}

func (c *Comp) handleMsg(msg *coherence.Msg) {
	l := c.lineFor(msg.Addr)

	ev, ok := msgEvent(msg.Type)
	if !ok {
		c.violation(l, msg.Type.String(),
			"message type not accepted by L1 caches")
		return
	}

	tr, found := c.table.Lookup(l.state, ev)
	if !found {
		c.violation(l, string(ev), "")
		return
	}

	if tr.Has(protocol.ActStall) {
		l.stalled = append(l.stalled, msg)
		return
	}

	if msg.Type == coherence.MsgNack {
		c.stats.Nacks++
	}

	c.apply(l, tr, trigger{msg: msg, txn: l.head()})
}

func (c *Comp) processReady() bool {
	for len(c.ready) > 0 {
		addr := c.ready[0]
		c.ready = c.ready[1:]
		delete(c.readySet, addr)

		l, ok := c.lines[addr]
		if !ok {
			continue
		}

		if c.evaluateHead(l) {
			return true
		}
	}

	return false
}

func (c *Comp) processRequest() bool {
	item := c.mandatory.Pop()
	if item == nil {
		return false
	}

	txn := item.(*coherence.Transaction)
	if txn.Aborted() {
		return true
	}

	l := c.lineFor(coherence.LineAddr(txn.Addr, c.lineSize))
	l.waiting = append(l.waiting, txn)

	if len(l.waiting) == 1 {
		c.evaluateHead(l)
	}

	return true
}

// evaluateHead runs the core request at the head of a line's queue. It
// returns false if the request has to keep waiting.
func (c *Comp) evaluateHead(l *line) bool {
	dropped := false
	for len(l.waiting) > 0 && l.waiting[0].Aborted() &&
		c.table.IsStable(l.state) {
		l.waiting = l.waiting[1:]
		dropped = true
	}

	txn := l.head()
	if txn == nil {
		c.settle(l, l.state)
		return dropped
	}

	if txn.State() != coherence.TxnQueued {
		return dropped
	}

	ev := accessEvent(txn.Kind)

	tr, found := c.table.Lookup(l.state, ev)
	if !found {
		c.violation(l, string(ev), "")
		return false
	}

	if tr.Has(protocol.ActStall) {
		return dropped
	}

	if tr.Has(protocol.ActAllocate) && c.occupied >= c.capacity &&
		!c.makeRoom(l.addr) {
		c.roomWait = append(c.roomWait, l.addr)
		return dropped
	}

	c.apply(l, tr, trigger{txn: txn})

	return true
}

// makeRoom replaces the least recently used line that is stable and has no
// request waiting on it.
func (c *Comp) makeRoom(except uint64) bool {
	for _, addr := range c.lruQueue {
		if addr == except {
			continue
		}

		v := c.lines[addr]
		if len(v.waiting) > 0 || len(v.stalled) > 0 ||
			!c.table.IsStable(v.state) {
			continue
		}

		tr, found := c.table.Lookup(v.state, protocol.EvReplacement)
		if !found {
			continue
		}

		c.stats.Evictions++
		c.apply(v, tr, trigger{})

		return true
	}

	return false
}

func (c *Comp) lineFor(addr uint64) *line {
	l, ok := c.lines[addr]
	if !ok {
		l = &line{addr: addr, state: c.table.DefaultState()}
		c.lines[addr] = l
	}

	return l
}

func (c *Comp) apply(l *line, tr protocol.Transition, trg trigger) {
	from := l.state

	for _, a := range tr.Actions {
		c.execute(a, l, trg)
	}

	l.state = tr.To

	c.account(l, from)
	c.invokeTransitionHook(l, from, tr.Event, trg)
	c.settle(l, from)
}

func (c *Comp) invokeTransitionHook(
	l *line,
	from coherence.State,
	ev protocol.Event,
	trg trigger,
) {
	if c.NumHooks() == 0 {
		return
	}

	var item any = trg.txn
	if trg.msg != nil {
		item = trg.msg
	}

	c.InvokeHook(hooking.HookCtx{
		Domain: c,
		Pos:    coherence.HookPosTransition,
		Item:   item,
		Detail: coherence.TransitionInfo{
			Machine:    coherence.MachineL1Cache,
			Controller: c.id,
			Addr:       l.addr,
			From:       from,
			To:         l.state,
			Event:      string(ev),
		},
	})
}

func (c *Comp) counted(s coherence.State) bool {
	return s != c.table.DefaultState() &&
		s != protocol.CacheMIA && s != protocol.CacheIIA
}

// account keeps the occupancy and the LRU queue in sync with the states.
// Lines waiting for a writeback ack do not take room.
func (c *Comp) account(l *line, from coherence.State) {
	was, is := c.counted(from), c.counted(l.state)

	switch {
	case !was && is:
		c.occupied++
		c.lruQueue = append(c.lruQueue, l.addr)
	case was && !is:
		c.occupied--
		c.removeFromLRU(l.addr)
		c.roomFreed()
	}
}

func (c *Comp) removeFromLRU(addr uint64) {
	for i, a := range c.lruQueue {
		if a == addr {
			c.lruQueue = append(c.lruQueue[:i], c.lruQueue[i+1:]...)
			return
		}
	}
}

func (c *Comp) touch(addr uint64) {
	c.removeFromLRU(addr)
	c.lruQueue = append(c.lruQueue, addr)
}

func (c *Comp) roomFreed() {
	for _, addr := range c.roomWait {
		c.markReady(addr)
	}

	c.roomWait = nil
}

func (c *Comp) markReady(addr uint64) {
	if c.readySet[addr] {
		return
	}

	c.readySet[addr] = true
	c.ready = append(c.ready, addr)
}

// settle wakes up what a state change may unblock and forgets invalid
// lines that nothing waits on.
func (c *Comp) settle(l *line, from coherence.State) {
	if l.state != from {
		if len(l.stalled) > 0 {
			c.replay = append(c.replay, l.stalled...)
			l.stalled = nil
		}

		if h := l.head(); h != nil && h.State() != coherence.TxnInFlight {
			c.markReady(l.addr)
		}
	}

	if len(c.roomWait) > 0 && len(l.waiting) == 0 && c.counted(l.state) &&
		c.table.IsStable(l.state) {
		c.roomFreed()
	}

	if l.state == c.table.DefaultState() &&
		len(l.waiting) == 0 && len(l.stalled) == 0 {
		delete(c.lines, l.addr)
	}
}

func (c *Comp) violation(l *line, event, detail string) {
	if c.err != nil {
		return
	}

	c.err = &coherence.ProtocolViolation{
		Machine:    coherence.MachineL1Cache,
		Controller: c.id,
		Addr:       l.addr,
		State:      l.state,
		Event:      event,
		Detail:     detail,
	}
}

//nolint:gocyclo
func (c *Comp) execute(a protocol.Action, l *line, trg trigger) {
	switch a {
	case protocol.ActAllocate:
		l.data = make([]byte, c.lineSize)
	case protocol.ActDeallocate:
		l.data = nil
	case protocol.ActIssueGetS:
		c.stats.Misses++
		c.issue(coherence.MsgGetS, l, trg.txn)
	case protocol.ActIssueGetM:
		c.stats.Misses++
		c.issue(coherence.MsgGetM, l, trg.txn)
	case protocol.ActIssuePutM:
		c.stats.Writebacks++
		c.issuePutM(l)
	case protocol.ActSendInvAck:
		c.reply(coherence.MsgInvAck, l, trg.msg, nil)
	case protocol.ActSendOwnerData:
		c.reply(coherence.MsgOwnerData, l, trg.msg, l.data)
	case protocol.ActWriteData:
		l.data = append([]byte(nil), trg.msg.Data...)
	case protocol.ActAckTxn:
		c.ackTxn(l, trg)
	case protocol.ActPerformAccess:
		c.perform(l, trg)
	case protocol.ActScheduleRetry:
		c.stats.Retries++
		c.Engine.Schedule(timing.ScheduledEvent{
			Event:   retryEvent{addr: l.addr},
			Time:    c.CurrentTime() + c.recycleLatency,
			Handler: c,
		})
	default:
		panic(fmt.Sprintf("L1 cache cannot perform action %s", a))
	}
}

func (c *Comp) newMsg(
	t coherence.MsgType,
	addr uint64,
	dst coherence.ControllerID,
) *coherence.Msg {
	return &coherence.Msg{
		ID:        c.ids.Generate(),
		Type:      t,
		Src:       c.id,
		Dst:       dst,
		Addr:      addr,
		Requestor: c.id,
	}
}

func (c *Comp) issue(
	t coherence.MsgType,
	l *line,
	txn *coherence.Transaction,
) {
	if txn == nil {
		c.violation(l, t.String(), "no core request to issue for")
		return
	}

	msg := c.newMsg(t, l.addr, c.mapper.HomeOf(l.addr))
	msg.TxnID = txn.ID
	c.outbound.Push(outgoing{msg: msg, txn: txn})
}

func (c *Comp) issuePutM(l *line) {
	msg := c.newMsg(coherence.MsgPutM, l.addr, c.mapper.HomeOf(l.addr))
	msg.Data = append([]byte(nil), l.data...)
	c.outbound.Push(outgoing{msg: msg})
}

func (c *Comp) reply(
	t coherence.MsgType,
	l *line,
	req *coherence.Msg,
	data []byte,
) {
	msg := c.newMsg(t, l.addr, req.Src)
	msg.Requestor = req.Requestor
	msg.TxnID = req.TxnID

	if data != nil {
		msg.Data = append([]byte(nil), data...)
	}

	c.outbound.Push(outgoing{msg: msg})
}

func (c *Comp) ackTxn(l *line, trg trigger) {
	if trg.txn == nil {
		c.violation(l, trg.msg.Type.String(), "no transaction to acknowledge")
		return
	}

	if trg.txn.Aborted() {
		return
	}

	trg.txn.MessageDone()

	if trg.msg != nil && trg.msg.Type == coherence.MsgNack {
		trg.txn.Retries++
	}
}

// perform executes the access at the head of the line's queue and
// completes its transaction.
func (c *Comp) perform(l *line, trg trigger) {
	txn := trg.txn
	if txn == nil || l.head() != txn {
		c.violation(l, string(protocol.ActPerformAccess),
			"no core request to perform")
		return
	}

	if txn.Aborted() {
		c.popHead(l)
		return
	}

	if trg.msg == nil {
		c.stats.Hits++
	}

	off := txn.Addr - l.addr
	word := l.data[off : off+coherence.WordSize]
	old := binary.LittleEndian.Uint64(word)

	var result uint64

	switch txn.Kind {
	case coherence.AccessLoad:
		result = old
	case coherence.AccessStore:
		binary.LittleEndian.PutUint64(word, txn.Value)
	case coherence.AccessAtomic:
		binary.LittleEndian.PutUint64(word, old+txn.Value)
		result = old
	}

	c.popHead(l)
	txn.Complete(c.CurrentTime(), result)
}

func (c *Comp) popHead(l *line) {
	l.waiting = l.waiting[1:]
	c.touch(l.addr)

	if len(l.waiting) > 0 {
		c.markReady(l.addr)
	}
}

// retry re-sends the request of a line after it was NACKed, unless the line
// no longer needs it.
func (c *Comp) retry(addr uint64) {
	l, ok := c.lines[addr]
	if !ok || c.err != nil {
		return
	}

	switch l.state {
	case protocol.CacheISD:
		c.issue(coherence.MsgGetS, l, l.head())
	case protocol.CacheIMD, protocol.CacheSMD:
		c.issue(coherence.MsgGetM, l, l.head())
	case protocol.CacheMIA:
		c.issuePutM(l)
	default:
		return
	}

	c.TickNow()
}

func (c *Comp) send() bool {
	madeProgress := false

	for c.outbound.Size() > 0 {
		out := c.outbound.Peek().(outgoing)
		msg := out.msg

		err := c.network.Send(msg)
		if errors.Is(err, coherence.ErrLinkSaturated) {
			c.stats.SendStalls++
			return madeProgress
		}

		if err != nil {
			c.err = fmt.Errorf("%s: sending %s: %w", c.Name(), msg, err)
			return madeProgress
		}

		c.outbound.Pop()
		madeProgress = true

		if out.txn != nil && !out.txn.Aborted() {
			out.txn.MessageSent()
		}
	}

	return madeProgress
}
