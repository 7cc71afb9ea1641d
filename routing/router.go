package routing

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"sync"

	"kuanb/gosm-matcher/geom"
	"kuanb/gosm-matcher/hmm"
	"kuanb/gosm-matcher/osm"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// ErrUnknownEdge is returned when a location references an edge missing from the network
var ErrUnknownEdge = errors.New("routing: unknown edge")

// DefaultCacheSize is the number of shortest path trees kept per router
const DefaultCacheSize = 256

// Router computes shortest network paths between locations lying on edges
type Router struct {
	network *osm.OsmGraph
	graph   *simple.WeightedUndirectedGraph
	edges   map[[2]int64]osm.OsmWayId // cheapest edge per node pair

	mu        sync.Mutex
	cache     map[int64]path.Shortest
	cacheSize int
}

// NewRouter builds the weighted node graph of the network. Edge weights are
// lengths in meters.
func NewRouter(network *osm.OsmGraph, cacheSize int) *Router {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	r := &Router{
		network:   network,
		graph:     simple.NewWeightedUndirectedGraph(0, math.Inf(1)),
		edges:     make(map[[2]int64]osm.OsmWayId),
		cache:     make(map[int64]path.Shortest),
		cacheSize: cacheSize,
	}

	for _, id := range slices.Sorted(maps.Keys(network.Ways)) {
		way := network.Way(id)
		if len(way.Nodes) < 2 {
			continue
		}
		from, to := int64(way.From()), int64(way.To())
		if from == to {
			// loops never shorten a path
			continue
		}
		key := pairKey(from, to)
		if existing, ok := r.edges[key]; ok && network.Way(int64(existing)).LengthMeters <= way.LengthMeters {
			continue
		}
		r.edges[key] = way.ID
		r.graph.SetWeightedEdge(r.graph.NewWeightedEdge(simple.Node(from), simple.Node(to), way.LengthMeters))
	}
	return r
}

// end is a way to leave or enter an edge through one of its nodes
type end struct {
	node   int64
	cost   float64
	offset float64 // offset of the node on the edge geometry
}

// Route returns the shortest geometry from one location to another. The
// returned error wraps hmm.ErrNoRoute when the locations are not connected.
func (r *Router) Route(ctx context.Context, from, to hmm.Location) (orb.LineString, error) {
	fromWay := r.network.Way(from.EdgeID)
	if fromWay == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownEdge, from.EdgeID)
	}
	toWay := r.network.Way(to.EdgeID)
	if toWay == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownEdge, to.EdgeID)
	}

	best := math.Inf(1)
	var line orb.LineString
	if from.EdgeID == to.EdgeID {
		best = math.Abs(to.Offset - from.Offset)
		line = geom.SubLineString(fromWay.Geometry, from.Offset, to.Offset)
	}

	exits := []end{
		{node: int64(fromWay.From()), cost: from.Offset, offset: 0},
		{node: int64(fromWay.To()), cost: fromWay.LengthMeters - from.Offset, offset: fromWay.LengthMeters},
	}
	entries := []end{
		{node: int64(toWay.From()), cost: to.Offset, offset: 0},
		{node: int64(toWay.To()), cost: toWay.LengthMeters - to.Offset, offset: toWay.LengthMeters},
	}

	var (
		viaFound  bool
		bestExit  end
		bestEntry end
		bestTree  path.Shortest
	)
	for _, exit := range exits {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tree, ok := r.shortestFrom(exit.node)
		if !ok {
			continue
		}
		for _, entry := range entries {
			w := tree.WeightTo(entry.node)
			if math.IsInf(w, 1) {
				continue
			}
			if total := exit.cost + w + entry.cost; total < best {
				best = total
				viaFound = true
				bestExit, bestEntry, bestTree = exit, entry, tree
			}
		}
	}

	if math.IsInf(best, 1) {
		return nil, fmt.Errorf("%w: edge %d to edge %d", hmm.ErrNoRoute, from.EdgeID, to.EdgeID)
	}
	if !viaFound {
		return line, nil
	}

	nodes, _ := bestTree.To(bestEntry.node)
	return geom.Concat(
		geom.SubLineString(fromWay.Geometry, from.Offset, bestExit.offset),
		r.nodePath(nodes),
		geom.SubLineString(toWay.Geometry, bestEntry.offset, to.Offset),
	), nil
}

// shortestFrom returns the cached shortest path tree rooted at node.
func (r *Router) shortestFrom(node int64) (path.Shortest, bool) {
	if r.graph.Node(node) == nil {
		return path.Shortest{}, false
	}

	r.mu.Lock()
	tree, ok := r.cache[node]
	r.mu.Unlock()
	if ok {
		return tree, true
	}

	tree = path.DijkstraFrom(simple.Node(node), r.graph)

	r.mu.Lock()
	if len(r.cache) >= r.cacheSize {
		r.cache = make(map[int64]path.Shortest)
	}
	r.cache[node] = tree
	r.mu.Unlock()
	return tree, true
}

// nodePath joins the edge geometries along a node sequence, oriented in travel direction.
func (r *Router) nodePath(nodes []graph.Node) orb.LineString {
	parts := make([]orb.LineString, 0, len(nodes))
	for i := 1; i < len(nodes); i++ {
		a, b := nodes[i-1].ID(), nodes[i].ID()
		way := r.network.Way(int64(r.edges[pairKey(a, b)]))
		line := way.Geometry.Clone()
		if int64(way.From()) != a {
			line.Reverse()
		}
		parts = append(parts, line)
	}
	return geom.Concat(parts...)
}

func pairKey(a, b int64) [2]int64 {
	if a > b {
		a, b = b, a
	}
	return [2]int64{a, b}
}
