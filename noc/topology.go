// Package noc models the interconnect between coherence controllers: an
// immutable topology graph with static routes, and a network that moves
// messages over it cycle by cycle.
package noc

import (
	"container/heap"
	"fmt"

	"github.com/sarchlab/rubysim/coherence"
	"github.com/sarchlab/rubysim/sim/timing"
)

// NodeID identifies a node of a topology.
type NodeID int

// LinkID identifies a link of a topology.
type LinkID int

// NodeKind tells whether a node is a controller or a router.
type NodeKind int

// Node kinds.
const (
	EndpointNode NodeKind = iota
	RouterNode
)

// Node is a vertex of the topology.
type Node struct {
	ID         NodeID
	Kind       NodeKind
	Name       string
	Controller coherence.ControllerID
}

// LinkParams are the physical properties of a link.
type LinkParams struct {
	// Latency is the number of cycles a message spends on the link.
	Latency timing.VTimeInCycle

	// Capacity is the maximum number of messages in flight on the link.
	Capacity int

	// Bandwidth is the number of messages that can enter the link per
	// cycle. Zero means unlimited.
	Bandwidth int

	// Weight is the routing cost. Zero means the latency is used.
	Weight int
}

// Link is a directed edge of the topology.
type Link struct {
	LinkParams

	ID  LinkID
	Src NodeID
	Dst NodeID
}

func (l Link) cost() int {
	if l.Weight > 0 {
		return l.Weight
	}

	return int(l.Latency)
}

type routeKey struct {
	src, dst coherence.ControllerID
}

// Topology is the static graph of controllers, routers, and links. It is
// built once by a TopologyBuilder and never changes afterward.
type Topology struct {
	name      string
	nodes     []Node
	links     []Link
	outLinks  [][]LinkID
	endpoints map[coherence.ControllerID]NodeID
	routes    map[routeKey][]LinkID
}

// Name returns the name of the topology family.
func (t *Topology) Name() string {
	return t.name
}

// Nodes returns all the nodes.
func (t *Topology) Nodes() []Node {
	return t.nodes
}

// Links returns all the links.
func (t *Topology) Links() []Link {
	return t.links
}

// Link returns the link with the given ID.
func (t *Topology) Link(id LinkID) Link {
	return t.links[id]
}

// NumRouters returns the number of router nodes.
func (t *Topology) NumRouters() int {
	n := 0

	for _, node := range t.nodes {
		if node.Kind == RouterNode {
			n++
		}
	}

	return n
}

// EndpointNode returns the node of a controller.
func (t *Topology) EndpointNode(c coherence.ControllerID) (NodeID, bool) {
	n, ok := t.endpoints[c]
	return n, ok
}

// Route returns the links a message from src to dst traverses.
func (t *Topology) Route(src, dst coherence.ControllerID) ([]LinkID, error) {
	r, ok := t.routes[routeKey{src: src, dst: dst}]
	if !ok {
		return nil, fmt.Errorf("no route from controller %d to %d", src, dst)
	}

	return r, nil
}

// PathLatency returns the sum of link latencies on the route.
func (t *Topology) PathLatency(src, dst coherence.ControllerID) (
	timing.VTimeInCycle, error,
) {
	route, err := t.Route(src, dst)
	if err != nil {
		return 0, err
	}

	var lat timing.VTimeInCycle
	for _, id := range route {
		lat += t.links[id].Latency
	}

	return lat, nil
}

// TopologyBuilder assembles a topology.
type TopologyBuilder struct {
	name      string
	nodes     []Node
	links     []Link
	endpoints map[coherence.ControllerID]NodeID
}

// NewTopologyBuilder creates a builder.
func NewTopologyBuilder(name string) *TopologyBuilder {
	return &TopologyBuilder{
		name:      name,
		endpoints: make(map[coherence.ControllerID]NodeID),
	}
}

// AddEndpoint adds the node of a controller.
func (b *TopologyBuilder) AddEndpoint(
	c coherence.ControllerID,
	name string,
) NodeID {
	if _, dup := b.endpoints[c]; dup {
		panic(fmt.Sprintf("controller %d added twice", c))
	}

	id := NodeID(len(b.nodes))
	b.nodes = append(b.nodes, Node{
		ID:         id,
		Kind:       EndpointNode,
		Name:       name,
		Controller: c,
	})
	b.endpoints[c] = id

	return id
}

// AddRouter adds a router node.
func (b *TopologyBuilder) AddRouter(name string) NodeID {
	id := NodeID(len(b.nodes))
	b.nodes = append(b.nodes, Node{
		ID:         id,
		Kind:       RouterNode,
		Name:       name,
		Controller: coherence.NoController,
	})

	return id
}

// AddLink adds a directed link.
func (b *TopologyBuilder) AddLink(src, dst NodeID, p LinkParams) LinkID {
	if int(src) >= len(b.nodes) || int(dst) >= len(b.nodes) {
		panic("link references an unknown node")
	}

	id := LinkID(len(b.links))
	b.links = append(b.links, Link{LinkParams: p, ID: id, Src: src, Dst: dst})

	return id
}

// AddBidirectionalLink adds a pair of links, one in each direction.
func (b *TopologyBuilder) AddBidirectionalLink(a, c NodeID, p LinkParams) {
	b.AddLink(a, c, p)
	b.AddLink(c, a, p)
}

// Build freezes the graph and computes the routes between every pair of
// controllers.
func (b *TopologyBuilder) Build() (*Topology, error) {
	t := &Topology{
		name:      b.name,
		nodes:     append([]Node(nil), b.nodes...),
		links:     append([]Link(nil), b.links...),
		outLinks:  make([][]LinkID, len(b.nodes)),
		endpoints: make(map[coherence.ControllerID]NodeID, len(b.endpoints)),
		routes:    make(map[routeKey][]LinkID),
	}

	for c, n := range b.endpoints {
		t.endpoints[c] = n
	}

	for _, l := range t.links {
		if l.Capacity <= 0 {
			return nil, fmt.Errorf("link %d: capacity must be positive", l.ID)
		}

		t.outLinks[l.Src] = append(t.outLinks[l.Src], l.ID)
	}

	for _, src := range t.nodes {
		if src.Kind != EndpointNode {
			continue
		}

		if err := t.computeRoutesFrom(src); err != nil {
			return nil, err
		}
	}

	return t, nil
}

type pathState struct {
	node NodeID
	cost int
	hops int
	via  LinkID
}

func (p pathState) better(o pathState) bool {
	if p.cost != o.cost {
		return p.cost < o.cost
	}

	if p.hops != o.hops {
		return p.hops < o.hops
	}

	return p.via < o.via
}

type pathHeap []pathState

func (h pathHeap) Len() int { return len(h) }

func (h pathHeap) Less(i, j int) bool {
	if h[i].cost != h[j].cost {
		return h[i].cost < h[j].cost
	}

	if h[i].hops != h[j].hops {
		return h[i].hops < h[j].hops
	}

	return h[i].node < h[j].node
}

func (h pathHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *pathHeap) Push(x any) { *h = append(*h, x.(pathState)) }

func (h *pathHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]

	return x
}

// computeRoutesFrom runs Dijkstra from one controller. Paths may only pass
// through routers; other controllers are terminals. Ties are broken by hop
// count and then by the lower incoming link ID.
func (t *Topology) computeRoutesFrom(src Node) error {
	best := make([]pathState, len(t.nodes))
	done := make([]bool, len(t.nodes))

	for i := range best {
		best[i] = pathState{node: NodeID(i), cost: -1, via: -1}
	}

	best[src.ID] = pathState{node: src.ID, via: -1}
	h := &pathHeap{best[src.ID]}

	for h.Len() > 0 {
		cur := heap.Pop(h).(pathState)
		if done[cur.node] {
			continue
		}

		done[cur.node] = true

		if cur.node != src.ID && t.nodes[cur.node].Kind == EndpointNode {
			continue
		}

		for _, lid := range t.outLinks[cur.node] {
			l := t.links[lid]
			cand := pathState{
				node: l.Dst,
				cost: cur.cost + l.cost(),
				hops: cur.hops + 1,
				via:  lid,
			}

			if done[l.Dst] {
				continue
			}

			if best[l.Dst].cost < 0 || cand.better(best[l.Dst]) {
				best[l.Dst] = cand
				heap.Push(h, cand)
			}
		}
	}

	for _, dst := range t.nodes {
		if dst.Kind != EndpointNode || dst.ID == src.ID {
			continue
		}

		if best[dst.ID].cost < 0 {
			return fmt.Errorf("topology %s: %s cannot reach %s",
				t.name, src.Name, dst.Name)
		}

		t.routes[routeKey{src: src.Controller, dst: dst.Controller}] =
			t.tracePath(best, dst.ID)
	}

	return nil
}

func (t *Topology) tracePath(best []pathState, dst NodeID) []LinkID {
	var rev []LinkID

	for n := dst; best[n].via >= 0; n = t.links[best[n].via].Src {
		rev = append(rev, best[n].via)
	}

	path := make([]LinkID, len(rev))
	for i, lid := range rev {
		path[len(rev)-1-i] = lid
	}

	return path
}
