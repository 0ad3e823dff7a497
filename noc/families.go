package noc

import (
	"fmt"
	"strings"

	"github.com/sarchlab/rubysim/coherence"
	"github.com/sarchlab/rubysim/sim/timing"
)

// Topology family names.
const (
	TopologyCrossbar = "Crossbar"
	TopologyMesh     = "Mesh"
	TopologyPt2Pt    = "Pt2Pt"
)

// TopologyFamilies lists the supported topology families.
func TopologyFamilies() []string {
	return []string{TopologyCrossbar, TopologyMesh, TopologyPt2Pt}
}

// TopologyDesc describes the topology to build. Only the resulting static
// graph is used by the network.
type TopologyDesc struct {
	Kind     string
	MeshRows int

	// Link is used for the links between routers, or between controllers in
	// a point-to-point topology.
	Link LinkParams

	// External is used for links between a controller and its router.
	External LinkParams
}

// BuildTopology builds the topology that connects the L1 caches and the
// directories.
func BuildTopology(
	desc TopologyDesc,
	caches, dirs []coherence.ControllerID,
) (*Topology, error) {
	switch strings.ToLower(desc.Kind) {
	case strings.ToLower(TopologyCrossbar):
		return buildCrossbar(desc, caches, dirs)
	case strings.ToLower(TopologyMesh):
		return buildMesh(desc, caches, dirs)
	case strings.ToLower(TopologyPt2Pt):
		return buildPt2Pt(desc, caches, dirs)
	default:
		return nil, fmt.Errorf("unknown topology %q, known topologies: %v",
			desc.Kind, TopologyFamilies())
	}
}

func addEndpoints(
	b *TopologyBuilder,
	caches, dirs []coherence.ControllerID,
) []NodeID {
	nodes := make([]NodeID, 0, len(caches)+len(dirs))

	for i, c := range caches {
		nodes = append(nodes, b.AddEndpoint(c, fmt.Sprintf("L1Cache[%d]", i)))
	}

	for i, d := range dirs {
		nodes = append(nodes, b.AddEndpoint(d, fmt.Sprintf("Directory[%d]", i)))
	}

	return nodes
}

// buildCrossbar connects every controller to a single central router.
func buildCrossbar(
	desc TopologyDesc,
	caches, dirs []coherence.ControllerID,
) (*Topology, error) {
	b := NewTopologyBuilder(TopologyCrossbar)
	nodes := addEndpoints(b, caches, dirs)

	xbar := b.AddRouter("Crossbar")
	for _, n := range nodes {
		b.AddBidirectionalLink(n, xbar, desc.External)
	}

	return b.Build()
}

// buildMesh creates one router per L1 cache laid out in MeshRows rows.
// Caches attach to their own router; directories are spread over routers
// round-robin. East-west links carry a lower routing weight than
// north-south links.
func buildMesh(
	desc TopologyDesc,
	caches, dirs []coherence.ControllerID,
) (*Topology, error) {
	numRouters := len(caches)
	if desc.MeshRows <= 0 || numRouters%desc.MeshRows != 0 {
		return nil, fmt.Errorf(
			"mesh rows %d must be positive and divide the %d routers",
			desc.MeshRows, numRouters)
	}

	cols := numRouters / desc.MeshRows
	b := NewTopologyBuilder(TopologyMesh)
	nodes := addEndpoints(b, caches, dirs)

	routers := make([]NodeID, numRouters)
	for i := range routers {
		routers[i] = b.AddRouter(fmt.Sprintf("Router[%d][%d]", i/cols, i%cols))
	}

	for i, n := range nodes {
		b.AddBidirectionalLink(n, routers[i%numRouters], desc.External)
	}

	east := desc.Link
	east.Weight = 1

	south := desc.Link
	south.Weight = 2

	for row := 0; row < desc.MeshRows; row++ {
		for col := 0; col < cols; col++ {
			r := routers[row*cols+col]

			if col+1 < cols {
				b.AddBidirectionalLink(r, routers[row*cols+col+1], east)
			}

			if row+1 < desc.MeshRows {
				b.AddBidirectionalLink(r, routers[(row+1)*cols+col], south)
			}
		}
	}

	return b.Build()
}

// buildPt2Pt links every pair of controllers directly.
func buildPt2Pt(
	desc TopologyDesc,
	caches, dirs []coherence.ControllerID,
) (*Topology, error) {
	b := NewTopologyBuilder(TopologyPt2Pt)
	nodes := addEndpoints(b, caches, dirs)

	for i := range nodes {
		for j := range nodes {
			if i != j {
				b.AddLink(nodes[i], nodes[j], desc.Link)
			}
		}
	}

	return b.Build()
}

// DefaultLinkParams are the link parameters used when none are given.
func DefaultLinkParams() LinkParams {
	return LinkParams{
		Latency:   timing.VTimeInCycle(1),
		Capacity:  16,
		Bandwidth: 1,
	}
}
