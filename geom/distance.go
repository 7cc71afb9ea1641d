package geom

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

const EarthRadiusMeters = orb.EarthRadius

// GreatCircleDistance returns the haversine distance between two lon/lat points in meters
func GreatCircleDistance(a, b orb.Point) float64 {
	return geo.DistanceHaversine(a, b)
}

// Bearing returns the initial bearing from a to b in degrees, (-180, 180]
func Bearing(a, b orb.Point) float64 {
	return geo.Bearing(a, b)
}

// Projection is the closest point of a segment to a query point
type Projection struct {
	Point    orb.Point
	Distance float64 // meters from the query point
	T        float64 // position along the segment, 0 at a and 1 at b
}

// ProjectOntoSegment returns the point of segment ab closest to p.
// Uses equirectangular projection (accurate for short distances)
func ProjectOntoSegment(p, a, b orb.Point) Projection {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180.0 }
	toDeg := func(rad float64) float64 { return rad * 180.0 / math.Pi }

	// Equirectangular projection locally around point a
	cosLat := math.Cos(toRad(a[1]))
	ax := toRad(a[0]) * cosLat * EarthRadiusMeters
	ay := toRad(a[1]) * EarthRadiusMeters
	bx := toRad(b[0]) * cosLat * EarthRadiusMeters
	by := toRad(b[1]) * EarthRadiusMeters
	px := toRad(p[0]) * cosLat * EarthRadiusMeters
	py := toRad(p[1]) * EarthRadiusMeters

	dx := bx - ax
	dy := by - ay
	if dx == 0 && dy == 0 {
		// a and b are the same point
		return Projection{Point: a, Distance: math.Hypot(px-ax, py-ay)}
	}

	t := ((px-ax)*dx + (py-ay)*dy) / (dx*dx + dy*dy)
	switch {
	case t <= 0:
		return Projection{Point: a, Distance: math.Hypot(px-ax, py-ay)}
	case t >= 1:
		return Projection{Point: b, Distance: math.Hypot(px-bx, py-by), T: 1}
	}

	projx := ax + t*dx
	projy := ay + t*dy
	return Projection{
		Point:    orb.Point{toDeg(projx / (cosLat * EarthRadiusMeters)), toDeg(projy / EarthRadiusMeters)},
		Distance: math.Hypot(px-projx, py-projy),
		T:        t,
	}
}

// LineProjection is the closest point of a linestring to a query point
type LineProjection struct {
	Point    orb.Point
	Distance float64 // meters from the query point
	Offset   float64 // meters along the linestring from its first vertex
	Index    int     // index of the segment holding Point
}

// ProjectOntoLineString returns the closest point of ls to p. The boolean is
// false when ls has fewer than two vertices.
func ProjectOntoLineString(p orb.Point, ls orb.LineString) (LineProjection, bool) {
	if len(ls) < 2 {
		return LineProjection{}, false
	}

	best := LineProjection{Distance: -1}
	walked := 0.0
	for i := 0; i < len(ls)-1; i++ {
		a, b := ls[i], ls[i+1]
		proj := ProjectOntoSegment(p, a, b)
		if best.Distance < 0 || proj.Distance < best.Distance {
			best = LineProjection{
				Point:    proj.Point,
				Distance: proj.Distance,
				Offset:   walked + GreatCircleDistance(a, proj.Point),
				Index:    i,
			}
		}
		walked += GreatCircleDistance(a, b)
	}
	return best, true
}
