// Package osmtest builds small in-memory networks for tests.
package osmtest

import (
	"kuanb/gosm-matcher/osm"
)

// Spacing is the distance in degrees between neighbouring grid nodes.
const Spacing = 0.001

// OSM way ids of the Grid network before splitting.
const (
	Row0Way    = 101
	Row1Way    = 102
	Row2Way    = 103
	Col0Way    = 201
	Col1Way    = 202
	Col2Way    = 203
	SpurWay    = 301
	IslandWay  = 401
	FootwayWay = 501
)

// Grid returns the raw nodes and ways of a 3x3 street grid on the equator,
// a dead-end spur leaving the north-east corner, a disconnected island street
// and a footway that is not routable.
//
// Grid node n sits at column (n-1)%3 and row (n-1)/3. Built edges are numbered:
//
//	1-2 row 0, 3-4 row 1, 5-6 row 2 (west to east)
//	7-8 col 0, 9-10 col 1, 11-12 col 2 (south to north)
//	13 spur from node 9 through 10 to 11
//	14 island from node 20 to 21
func Grid() (map[int64]*osm.OsmNode, map[int64]*osm.OsmWay) {
	nodes := make(map[int64]*osm.OsmNode)
	add := func(id int64, lon, lat float64) {
		nodes[id] = &osm.OsmNode{ID: osm.OsmNodeId(id), Lon: lon, Lat: lat}
	}
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			add(int64(row*3+col+1), float64(col)*Spacing, float64(row)*Spacing)
		}
	}
	add(10, 3*Spacing, 2*Spacing)
	add(11, 4*Spacing, 2*Spacing)
	add(20, 10*Spacing, 0)
	add(21, 11*Spacing, 0)

	way := func(id int64, highway string, nodeIDs ...int64) *osm.OsmWay {
		w := &osm.OsmWay{ID: osm.OsmWayId(id), Highway: highway}
		for _, nid := range nodeIDs {
			w.Nodes = append(w.Nodes, osm.OsmNodeId(nid))
		}
		return w
	}
	ways := map[int64]*osm.OsmWay{
		Row0Way:    way(Row0Way, "residential", 1, 2, 3),
		Row1Way:    way(Row1Way, "residential", 4, 5, 6),
		Row2Way:    way(Row2Way, "residential", 7, 8, 9),
		Col0Way:    way(Col0Way, "tertiary", 1, 4, 7),
		Col1Way:    way(Col1Way, "tertiary", 2, 5, 8),
		Col2Way:    way(Col2Way, "tertiary", 3, 6, 9),
		SpurWay:    way(SpurWay, "service", 9, 10, 11),
		IslandWay:  way(IslandWay, "residential", 20, 21),
		FootwayWay: way(FootwayWay, "footway", 1, 5),
	}
	return nodes, ways
}

// GridGraph builds the Grid network with the default highway whitelist.
func GridGraph() *osm.OsmGraph {
	nodes, ways := Grid()
	return osm.BuildGraph(nodes, ways, nil, nil)
}
