package geom

import (
	"math"

	"github.com/tidwall/geoindex"
	"github.com/tidwall/rtree"
)

// RTree wraps tidwall/rtree for spatial indexing of network edges
type RTree struct {
	tree  rtree.RTree
	index *geoindex.Index
}

// NewRTree creates a new RTree
func NewRTree() *RTree {
	r := &RTree{}
	r.index = geoindex.Wrap(&r.tree)
	return r
}

// Insert adds an item to the RTree with the given bounding box
func (r *RTree) Insert(id int64, minLon, minLat, maxLon, maxLat float64) {
	r.tree.Insert([2]float64{minLon, minLat}, [2]float64{maxLon, maxLat}, id)
}

// Search returns all item IDs whose bounding boxes intersect with the query bbox
func (r *RTree) Search(minLon, minLat, maxLon, maxLat float64) []int64 {
	result := make([]int64, 0)
	r.tree.Search(
		[2]float64{minLon, minLat},
		[2]float64{maxLon, maxLat},
		func(min, max [2]float64, data interface{}) bool {
			result = append(result, data.(int64))
			return true // continue searching
		},
	)
	return result
}

// SearchNearPoint returns all item IDs within a distance (in meters) of a point
func (r *RTree) SearchNearPoint(lon, lat, distanceMeters float64) []int64 {
	metersPerDegreeLon, metersPerDegreeLat := metersPerDegree(lat)
	deltaLon := distanceMeters / metersPerDegreeLon
	deltaLat := distanceMeters / metersPerDegreeLat

	return r.Search(lon-deltaLon, lat-deltaLat, lon+deltaLon, lat+deltaLat)
}

// Nearby visits items in increasing distance (in meters) between the point and
// their bounding box until iter returns false. The box distance never exceeds
// the distance to the geometry inside it.
func (r *RTree) Nearby(lon, lat float64, iter func(id int64, boxDistance float64) bool) {
	r.index.Nearby(
		func(min, max [2]float64, data interface{}, item bool) float64 {
			return boxDistance(lon, lat, min, max)
		},
		func(min, max [2]float64, data interface{}, dist float64) bool {
			return iter(data.(int64), dist)
		},
	)
}

// Size returns the number of items in the RTree
func (r *RTree) Size() int {
	return r.tree.Len()
}

func metersPerDegree(lat float64) (lon, latitude float64) {
	latRad := lat * math.Pi / 180.0
	latitude = EarthRadiusMeters * math.Pi / 180.0
	return latitude * math.Cos(latRad), latitude
}

// boxDistance returns the equirectangular distance in meters from a point to a
// bounding box, zero inside it.
func boxDistance(lon, lat float64, min, max [2]float64) float64 {
	perLon, perLat := metersPerDegree(lat)
	dx := math.Max(0, math.Max(min[0]-lon, lon-max[0])) * perLon
	dy := math.Max(0, math.Max(min[1]-lat, lat-max[1])) * perLat
	return math.Hypot(dx, dy)
}
