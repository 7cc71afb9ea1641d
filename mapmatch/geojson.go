package mapmatch

import (
	"github.com/paulmach/orb/geojson"
)

// strokes cycles through distinguishable colors for consecutive segments
var strokes = []string{"#E6194B", "#3CB44B", "#4363D8", "#F58231", "#911EB4", "#42D4F4", "#F032E6", "#9A6324"}

// FeatureCollection renders a result. A materialized result yields one
// LineString per segment, otherwise one Point per path vertex.
func FeatureCollection(res *Result) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if res == nil {
		return fc
	}

	if res.Materialized {
		for _, seg := range res.Segments {
			f := geojson.NewFeature(seg.Geometry)
			f.Properties["id"] = seg.Index
			f.Properties["total_probability_start"] = seg.StartTotal
			f.Properties["total_probability_end"] = seg.EndTotal
			f.Properties["emission_probability_start"] = seg.StartEmission
			f.Properties["emission_probability_end"] = seg.EndEmission
			f.Properties["transition_probability_start"] = seg.StartTransition
			f.Properties["transition_probability_end"] = seg.EndTransition
			f.Properties["observation_id_start"] = seg.StartObservation
			f.Properties["observation_id_end"] = seg.EndObservation
			f.Properties["stroke"] = strokes[seg.Index%len(strokes)]
			f.Properties["stroke-width"] = 4
			fc.Append(f)
		}
		return fc
	}

	for _, v := range res.Path {
		f := geojson.NewFeature(v.Candidate.Point)
		f.Properties["observation_id"] = v.Observation
		f.Properties["edge_id"] = v.Candidate.EdgeID
		f.Properties["total_probability"] = v.Total
		f.Properties["log_total_probability"] = v.LogTotal
		f.Properties["emission_probability"] = v.Emission
		f.Properties["transition_probability"] = v.Transition
		f.Properties["materialized"] = false
		fc.Append(f)
	}
	return fc
}
