// Package mapmatch binds the Viterbi core to an OSM road network.
package mapmatch

import (
	"context"
	"slices"

	"kuanb/gosm-matcher/hmm"
	"kuanb/gosm-matcher/osm"
)

// NetworkCandidates proposes the projections of an observation onto nearby
// network edges as candidates.
type NetworkCandidates struct {
	Graph         *osm.OsmGraph
	MaxCandidates int // 0 keeps every edge within the search radius
}

// FindCandidates returns candidates ordered by distance then edge id.
func (n *NetworkCandidates) FindCandidates(ctx context.Context, o hmm.Observation, maxDistance float64) ([]hmm.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var candidates []hmm.Candidate
	visit := func(id int64) {
		way := n.Graph.Way(id)
		if way == nil {
			return
		}
		proj, ok := way.Project(o.Point)
		if !ok || proj.Distance > maxDistance {
			return
		}
		candidates = append(candidates, hmm.Candidate{
			Location: hmm.Location{
				Point:  proj.Point,
				EdgeID: id,
				Offset: proj.Offset,
			},
			Observation: o.Index,
			Distance:    proj.Distance,
		})
	}

	switch {
	case n.Graph.RTree != nil && n.MaxCandidates == 0:
		// every edge whose box lies within the radius
		for _, id := range n.Graph.RTree.SearchNearPoint(o.Point.Lon(), o.Point.Lat(), maxDistance) {
			visit(id)
		}
	case n.Graph.RTree != nil:
		n.Graph.RTree.Nearby(o.Point.Lon(), o.Point.Lat(), func(id int64, boxDistance float64) bool {
			if boxDistance > maxDistance {
				return false
			}
			// no remaining edge can beat the k nearest found so far
			if k := n.MaxCandidates; k > 0 && len(candidates) >= k {
				sortCandidates(candidates)
				if boxDistance > candidates[k-1].Distance {
					return false
				}
			}
			visit(id)
			return true
		})
	default:
		// Fallback: linear scan
		for _, id := range sortedWayIDs(n.Graph) {
			visit(id)
		}
	}

	sortCandidates(candidates)
	if n.MaxCandidates > 0 && len(candidates) > n.MaxCandidates {
		candidates = candidates[:n.MaxCandidates]
	}
	return candidates, nil
}

func sortCandidates(candidates []hmm.Candidate) {
	slices.SortStableFunc(candidates, func(a, b hmm.Candidate) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		case a.EdgeID < b.EdgeID:
			return -1
		case a.EdgeID > b.EdgeID:
			return 1
		}
		return 0
	})
}

func sortedWayIDs(g *osm.OsmGraph) []int64 {
	ids := make([]int64, 0, len(g.Ways))
	for id := range g.Ways {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
