package geom

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// Length returns the haversine length of ls in meters
func Length(ls orb.LineString) float64 {
	return geo.LengthHaversine(ls)
}

// SubLineString cuts ls between two offsets measured in meters from its first
// vertex. When from is greater than to the result runs backwards.
func SubLineString(ls orb.LineString, from, to float64) orb.LineString {
	if len(ls) == 0 {
		return nil
	}
	if from > to {
		sub := SubLineString(ls, to, from)
		sub.Reverse()
		return sub
	}

	total := Length(ls)
	from = clamp(from, 0, total)
	to = clamp(to, 0, total)

	start, end := ls[0], ls[len(ls)-1]
	if from > 0 {
		start = PointAt(ls, from)
	}
	if to < total {
		end = PointAt(ls, to)
	}

	out := orb.LineString{start}
	walked := 0.0
	for i := 0; i < len(ls)-1; i++ {
		walked += GreatCircleDistance(ls[i], ls[i+1])
		if walked > from && walked < to {
			out = appendPoint(out, ls[i+1])
		}
	}
	out = appendPoint(out, end)
	if len(out) == 1 {
		out = append(out, out[0])
	}
	return out
}

// Concat joins linestrings dropping repeated joint vertices.
func Concat(parts ...orb.LineString) orb.LineString {
	var out orb.LineString
	for _, part := range parts {
		for _, p := range part {
			out = appendPoint(out, p)
		}
	}
	if len(out) == 1 {
		out = append(out, out[0])
	}
	return out
}

// PointAt interpolates the point offset meters along ls
func PointAt(ls orb.LineString, offset float64) orb.Point {
	walked := 0.0
	for i := 0; i < len(ls)-1; i++ {
		a, b := ls[i], ls[i+1]
		d := GreatCircleDistance(a, b)
		if d > 0 && walked+d >= offset {
			f := (offset - walked) / d
			if f >= 1 {
				return b
			}
			return orb.Point{a[0] + (b[0]-a[0])*f, a[1] + (b[1]-a[1])*f}
		}
		walked += d
	}
	return ls[len(ls)-1]
}

func appendPoint(ls orb.LineString, p orb.Point) orb.LineString {
	if n := len(ls); n > 0 && ls[n-1].Equal(p) {
		return ls
	}
	return append(ls, p)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
