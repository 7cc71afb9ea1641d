package geom

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ErrNoCoordinates is returned when a GeoJSON document holds no usable point.
var ErrNoCoordinates = errors.New("geom: no coordinates found in GeoJSON")

// ReadTrajectory extracts the ordered GPS points of a GeoJSON FeatureCollection.
// Point, MultiPoint, LineString and MultiLineString features are accepted, in
// feature order.
func ReadTrajectory(data []byte) ([]orb.Point, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("invalid GeoJSON: %w", err)
	}

	var points []orb.Point
	for _, feature := range fc.Features {
		switch g := feature.Geometry.(type) {
		case orb.Point:
			points = append(points, g)
		case orb.MultiPoint:
			points = append(points, g...)
		case orb.LineString:
			points = append(points, g...)
		case orb.MultiLineString:
			for _, ls := range g {
				points = append(points, ls...)
			}
		}
	}

	if len(points) == 0 {
		return nil, ErrNoCoordinates
	}
	return points, nil
}
