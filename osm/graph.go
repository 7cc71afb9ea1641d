package osm

import (
	"kuanb/gosm-matcher/geom"

	"github.com/paulmach/orb"
)

type OsmWayId int64

type OsmNodeId int64

type OsmNode struct {
	ID  OsmNodeId
	Lat float64
	Lon float64
}

// Point returns the node position as lon/lat
func (n *OsmNode) Point() orb.Point {
	return orb.Point{n.Lon, n.Lat}
}

// OsmWay is a network edge running between two split nodes. Nodes holds the
// end nodes once the graph is built.
type OsmWay struct {
	ID           OsmWayId
	Nodes        []OsmNodeId
	Highway      string
	Geometry     orb.LineString
	LengthMeters float64 // Total length of the way in meters
}

// From returns the node at the start of the geometry
func (w *OsmWay) From() OsmNodeId { return w.Nodes[0] }

// To returns the node at the end of the geometry
func (w *OsmWay) To() OsmNodeId { return w.Nodes[len(w.Nodes)-1] }

// Project returns the closest point of the way to p
func (w *OsmWay) Project(p orb.Point) (geom.LineProjection, bool) {
	return geom.ProjectOntoLineString(p, w.Geometry)
}

type OsmGraph struct {
	Nodes map[int64]*OsmNode
	Ways  map[int64]*OsmWay
	RTree *geom.RTree
}

// Way returns the edge with the given id or nil
func (g *OsmGraph) Way(id int64) *OsmWay {
	return g.Ways[id]
}
