package osm

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"slices"

	"kuanb/gosm-matcher/geom"

	"github.com/paulmach/orb"
	"github.com/qedus/osmpbf"
	"go.uber.org/zap"
)

// DefaultHighways are the highway tags kept in the routable network
var DefaultHighways = []string{
	"motorway",
	"motorway_link",
	"trunk",
	"trunk_link",
	"primary",
	"primary_link",
	"secondary",
	"secondary_link",
	"tertiary",
	"tertiary_link",
	"residential",
	"service",
	"living_street",
}

// LoadOsmFile decodes an OSM PBF extract and builds the routable network
func LoadOsmFile(filePath string, highways []string, log *zap.Logger) (*OsmGraph, error) {
	if log == nil {
		log = zap.NewNop()
	}

	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open osm file: %w", err)
	}
	defer f.Close()

	d := osmpbf.NewDecoder(f)

	// use more memory from the start, it is faster
	d.SetBufferSize(osmpbf.MaxBlobSize)

	// start decoding with several goroutines, it is faster
	if err := d.Start(runtime.GOMAXPROCS(-1)); err != nil {
		return nil, fmt.Errorf("start pbf decoder: %w", err)
	}

	var nc, wc, rc uint64
	nodes := make(map[int64]*OsmNode)
	ways := make(map[int64]*OsmWay)

	for {
		v, err := d.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode pbf: %w", err)
		}
		switch v := v.(type) {
		case *osmpbf.Node:
			nodes[v.ID] = &OsmNode{
				ID:  OsmNodeId(v.ID),
				Lat: v.Lat,
				Lon: v.Lon,
			}
			nc++
		case *osmpbf.Way:
			nodeIDs := make([]OsmNodeId, len(v.NodeIDs))
			for i, id := range v.NodeIDs {
				nodeIDs[i] = OsmNodeId(id)
			}
			ways[v.ID] = &OsmWay{
				ID:      OsmWayId(v.ID),
				Highway: v.Tags["highway"],
				Nodes:   nodeIDs,
			}
			wc++
		case *osmpbf.Relation:
			// we ignore relations for now
			rc++
		default:
			return nil, fmt.Errorf("unknown pbf entity %T", v)
		}
	}
	log.Info("decoded osm file",
		zap.String("path", filePath),
		zap.Uint64("nodes", nc),
		zap.Uint64("ways", wc),
		zap.Uint64("relations", rc),
	)

	return BuildGraph(nodes, ways, highways, log), nil
}

// BuildGraph keeps the whitelisted ways, splits them into edges at
// intersections and way ends, and indexes the edges in an RTree
func BuildGraph(nodes map[int64]*OsmNode, ways map[int64]*OsmWay, highways []string, log *zap.Logger) *OsmGraph {
	if log == nil {
		log = zap.NewNop()
	}
	if len(highways) == 0 {
		highways = DefaultHighways
	}

	// Build set for highways for fast lookup
	whitelistedHighways := make(map[string]struct{}, len(highways))
	for _, hw := range highways {
		whitelistedHighways[hw] = struct{}{}
	}

	// Remove ways not whitelisted, in id order so edge ids are stable
	wayIDs := make([]int64, 0, len(ways))
	for id, way := range ways {
		if _, ok := whitelistedHighways[way.Highway]; ok && len(way.Nodes) >= 2 {
			wayIDs = append(wayIDs, id)
		}
	}
	slices.Sort(wayIDs)
	log.Debug("filtered ways", zap.Int("dropped", len(ways)-len(wayIDs)), zap.Int("kept", len(wayIDs)))

	// 1. Identify split nodes: shared by several ways or ending a way
	nodeWayCount := make(map[OsmNodeId]int)
	for _, id := range wayIDs {
		for _, nid := range ways[id].Nodes {
			nodeWayCount[nid]++
		}
	}
	splitNodes := make(map[OsmNodeId]struct{})
	for nid, count := range nodeWayCount {
		if count > 1 {
			splitNodes[nid] = struct{}{}
		}
	}
	for _, id := range wayIDs {
		way := ways[id]
		splitNodes[way.Nodes[0]] = struct{}{}
		splitNodes[way.Nodes[len(way.Nodes)-1]] = struct{}{}
	}

	// 2. Keep the split nodes that have coordinates
	resultNodes := make(map[int64]*OsmNode)
	for nid := range splitNodes {
		if n, ok := nodes[int64(nid)]; ok {
			resultNodes[int64(nid)] = n
		}
	}

	// 3. Break every way into edges between consecutive split nodes
	resultWays := make(map[int64]*OsmWay)
	var newWayID int64 = 1
	for _, id := range wayIDs {
		way := ways[id]
		segStart := -1
		for i, nid := range way.Nodes {
			if _, isSplit := splitNodes[nid]; !isSplit {
				continue
			}
			if segStart >= 0 {
				line := buildLineString(way.Nodes[segStart:i+1], nodes)
				if len(line) >= 2 {
					resultWays[newWayID] = &OsmWay{
						ID:           OsmWayId(newWayID),
						Nodes:        []OsmNodeId{way.Nodes[segStart], nid},
						Highway:      way.Highway,
						Geometry:     line,
						LengthMeters: geom.Length(line),
					}
					newWayID++
				}
			}
			segStart = i
		}
	}

	// Build RTree spatial index for ways
	rtree := geom.NewRTree()
	for id := int64(1); id < newWayID; id++ {
		way, ok := resultWays[id]
		if !ok {
			continue
		}
		bound := way.Geometry.Bound()
		rtree.Insert(id, bound.Min[0], bound.Min[1], bound.Max[0], bound.Max[1])
	}
	log.Info("built network", zap.Int("nodes", len(resultNodes)), zap.Int("edges", len(resultWays)), zap.Int("rtree", rtree.Size()))

	return &OsmGraph{
		Nodes: resultNodes,
		Ways:  resultWays,
		RTree: rtree,
	}
}

// buildLineString creates a LineString geometry from a slice of node IDs
func buildLineString(nodeIDs []OsmNodeId, nodes map[int64]*OsmNode) orb.LineString {
	line := make(orb.LineString, 0, len(nodeIDs))
	for _, nid := range nodeIDs {
		if node, ok := nodes[int64(nid)]; ok {
			line = append(line, node.Point())
		}
	}
	return line
}
