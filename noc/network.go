package noc

import (
	"container/heap"
	"fmt"
	"math/rand"
	"sort"

	"github.com/sarchlab/rubysim/coherence"
	"github.com/sarchlab/rubysim/sim/hooking"
	"github.com/sarchlab/rubysim/sim/timing"
)

// Network class names.
const (
	NetworkSimple         = "simple"
	NetworkGarnetFixed    = "garnet-fixed"
	NetworkGarnetFlexible = "garnet-flexible"
)

// NetworkClasses lists the supported network classes.
func NetworkClasses() []string {
	return []string{NetworkSimple, NetworkGarnetFixed, NetworkGarnetFlexible}
}

// SupportsFaultModel tells if a network class can run with a fault model.
func SupportsFaultModel(class string) bool {
	return class == NetworkGarnetFixed
}

func isGarnet(class string) bool {
	return class == NetworkGarnetFixed || class == NetworkGarnetFlexible
}

// HookPosMsgSend marks a message entering the network.
var HookPosMsgSend = &hooking.HookPos{Name: "MsgSend"}

// HookPosMsgDeliver marks a message leaving the network at its destination.
var HookPosMsgDeliver = &hooking.HookPos{Name: "MsgDeliver"}

// HookPosLinkStall marks a send refused because the first link is full.
var HookPosLinkStall = &hooking.HookPos{Name: "LinkStall"}

// Endpoint is a controller attached to the network.
type Endpoint interface {
	// Deliver hands over a message that reached the endpoint.
	Deliver(msg *coherence.Msg)

	// NotifyAvailable tells an endpoint that a link it was blocked on can
	// accept messages again.
	NotifyAvailable()
}

// FaultModel makes link traversals fail at random. A failed traversal is
// retransmitted, which costs extra cycles.
type FaultModel struct {
	rng         *rand.Rand
	probability float64
	penalty     timing.VTimeInCycle
	faults      uint64
}

// NewFaultModel creates a fault model with its own seeded random source.
func NewFaultModel(
	seed int64,
	probability float64,
	penalty timing.VTimeInCycle,
) *FaultModel {
	return &FaultModel{
		rng:         rand.New(rand.NewSource(seed)),
		probability: probability,
		penalty:     penalty,
	}
}

func (f *FaultModel) delay() timing.VTimeInCycle {
	if f.rng.Float64() >= f.probability {
		return 0
	}

	f.faults++

	return f.penalty
}

// Stats summarizes the traffic of a network.
type Stats struct {
	Sent      map[coherence.MsgType]uint64
	Delivered map[coherence.MsgType]uint64
	Stalls    uint64
	Faults    uint64
}

// TotalSent returns the number of messages injected.
func (s Stats) TotalSent() uint64 {
	var n uint64
	for _, c := range s.Sent {
		n += c
	}

	return n
}

type transit struct {
	msg   *coherence.Msg
	route []LinkID
	hop   int
	exit  timing.VTimeInCycle
	seq   uint64
}

type transitHeap []*transit

func (h transitHeap) Len() int { return len(h) }

func (h transitHeap) Less(i, j int) bool {
	if h[i].exit != h[j].exit {
		return h[i].exit < h[j].exit
	}

	return h[i].seq < h[j].seq
}

func (h transitHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *transitHeap) Push(x any) { *h = append(*h, x.(*transit)) }

func (h *transitHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]

	return x
}

type linkState struct {
	Link

	inFlight  int
	lastEntry timing.VTimeInCycle
	entered   int
	lastExit  timing.VTimeInCycle
	waiting   []*transit
	blocked   []Endpoint
}

func (l *linkState) canAccept(now timing.VTimeInCycle) bool {
	if l.inFlight >= l.Capacity {
		return false
	}

	if l.Bandwidth > 0 && l.lastEntry == now && l.entered >= l.Bandwidth {
		return false
	}

	return true
}

func (l *linkState) addBlocked(ep Endpoint) {
	for _, b := range l.blocked {
		if b == ep {
			return
		}
	}

	l.blocked = append(l.blocked, ep)
}

type deliverEvent struct{}

// Network moves coherence messages between controllers over a static
// topology. Messages on a link leave in the order they entered, and a full
// link pushes back on its sender instead of dropping messages.
type Network struct {
	*hooking.HookableBase

	name          string
	engine        timing.EventScheduler
	topo          *Topology
	class         string
	routerLatency timing.VTimeInCycle
	fault         *FaultModel

	endpoints map[coherence.ControllerID]Endpoint
	links     []*linkState
	transits  transitHeap
	nextSeq   uint64
	wakeups   map[timing.VTimeInCycle]bool
	congested map[LinkID]bool

	stats Stats
}

// Name returns the name of the network.
func (n *Network) Name() string {
	return n.name
}

// Topology returns the topology the network runs on.
func (n *Network) Topology() *Topology {
	return n.topo
}

// Class returns the network class.
func (n *Network) Class() string {
	return n.class
}

// Attach registers the endpoint of a controller.
func (n *Network) Attach(c coherence.ControllerID, ep Endpoint) {
	if _, ok := n.topo.EndpointNode(c); !ok {
		panic(fmt.Sprintf("controller %d is not part of the topology", c))
	}

	n.endpoints[c] = ep
}

// Send injects a message. If the first link of the route cannot take the
// message this cycle, it returns coherence.ErrLinkSaturated and the sender
// is notified through NotifyAvailable once the link frees up.
func (n *Network) Send(msg *coherence.Msg) error {
	route, err := n.topo.Route(msg.Src, msg.Dst)
	if err != nil {
		return err
	}

	now := n.engine.CurrentTime()
	first := n.links[route[0]]

	if len(first.waiting) > 0 || !first.canAccept(now) {
		first.addBlocked(n.endpoints[msg.Src])
		n.congested[first.ID] = true
		n.stats.Stalls++

		if first.inFlight < first.Capacity {
			n.wake(now + 1)
		}

		n.invoke(HookPosLinkStall, msg)

		return coherence.ErrLinkSaturated
	}

	msg.IssueCycle = now
	n.stats.Sent[msg.Type]++
	n.invoke(HookPosMsgSend, msg)
	n.enter(first, &transit{msg: msg, route: route}, now)

	return nil
}

func (n *Network) invoke(pos *hooking.HookPos, msg *coherence.Msg) {
	if n.NumHooks() == 0 {
		return
	}

	n.InvokeHook(hooking.HookCtx{
		Domain: n,
		Pos:    pos,
		Item:   msg,
	})
}

func (n *Network) hopOverhead(l *linkState) timing.VTimeInCycle {
	var extra timing.VTimeInCycle

	if isGarnet(n.class) && n.topo.nodes[l.Dst].Kind == RouterNode {
		extra += n.routerLatency
	}

	if n.fault != nil {
		extra += n.fault.delay()
	}

	return extra
}

func (n *Network) enter(l *linkState, t *transit, now timing.VTimeInCycle) {
	if l.lastEntry != now {
		l.lastEntry = now
		l.entered = 0
	}

	l.entered++
	l.inFlight++

	exit := max(now+l.Latency+n.hopOverhead(l), l.lastExit)
	l.lastExit = exit

	t.exit = exit
	t.seq = n.nextSeq
	n.nextSeq++

	heap.Push(&n.transits, t)
	n.wake(exit)
}

func (n *Network) wake(at timing.VTimeInCycle) {
	if n.wakeups[at] {
		return
	}

	n.wakeups[at] = true
	n.engine.Schedule(timing.ScheduledEvent{
		Event:   deliverEvent{},
		Time:    at,
		Handler: n,
	})
}

// Handle processes the network's own events.
func (n *Network) Handle(e any) error {
	switch e.(type) {
	case deliverEvent:
		delete(n.wakeups, n.engine.CurrentTime())
		n.Deliver()
	default:
		panic(fmt.Sprintf("network cannot handle event %T", e))
	}

	return nil
}

// Deliver drains the messages whose scheduled cycle has arrived, in
// increasing cycle order with ties broken by issue order. Messages that
// reach an intermediate router move on to the next link, or wait for it in
// FIFO order if it is full.
func (n *Network) Deliver() {
	now := n.engine.CurrentTime()

	for n.transits.Len() > 0 && n.transits[0].exit <= now {
		t := heap.Pop(&n.transits).(*transit)
		l := n.links[t.route[t.hop]]
		l.inFlight--

		if len(l.waiting) > 0 || len(l.blocked) > 0 {
			n.congested[l.ID] = true
		}

		if t.hop+1 < len(t.route) {
			n.forward(t, now)
			continue
		}

		n.stats.Delivered[t.msg.Type]++
		n.invoke(HookPosMsgDeliver, t.msg)
		n.endpoints[t.msg.Dst].Deliver(t.msg)
	}

	n.pump(now)
}

func (n *Network) forward(t *transit, now timing.VTimeInCycle) {
	t.hop++
	next := n.links[t.route[t.hop]]

	if len(next.waiting) == 0 && next.canAccept(now) {
		n.enter(next, t, now)
		return
	}

	next.waiting = append(next.waiting, t)
	n.congested[next.ID] = true
}

// pump moves waiting messages into links that have room and wakes up
// senders that were blocked on them.
func (n *Network) pump(now timing.VTimeInCycle) {
	ids := make([]LinkID, 0, len(n.congested))
	for id := range n.congested {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		l := n.links[id]

		for len(l.waiting) > 0 && l.canAccept(now) {
			t := l.waiting[0]
			l.waiting[0] = nil
			l.waiting = l.waiting[1:]
			n.enter(l, t, now)
		}

		if len(l.waiting) > 0 {
			if l.inFlight < l.Capacity {
				n.wake(now + 1)
			}

			continue
		}

		if len(l.blocked) > 0 {
			if !l.canAccept(now) {
				if l.inFlight < l.Capacity {
					n.wake(now + 1)
				}

				continue
			}

			blocked := l.blocked
			l.blocked = nil

			for _, ep := range blocked {
				ep.NotifyAvailable()
			}
		}

		delete(n.congested, l.ID)
	}
}

// InFlight returns the number of messages inside the network.
func (n *Network) InFlight() int {
	inFlight := n.transits.Len()

	for _, l := range n.links {
		inFlight += len(l.waiting)
	}

	return inFlight
}

// LinkOccupancy returns the number of messages on a link.
func (n *Network) LinkOccupancy(id LinkID) int {
	return n.links[id].inFlight
}

// Stats returns a copy of the traffic counters.
func (n *Network) Stats() Stats {
	s := Stats{
		Sent:      make(map[coherence.MsgType]uint64, len(n.stats.Sent)),
		Delivered: make(map[coherence.MsgType]uint64, len(n.stats.Delivered)),
		Stalls:    n.stats.Stalls,
	}

	for k, v := range n.stats.Sent {
		s.Sent[k] = v
	}

	for k, v := range n.stats.Delivered {
		s.Delivered[k] = v
	}

	if n.fault != nil {
		s.Faults = n.fault.faults
	}

	return s
}
