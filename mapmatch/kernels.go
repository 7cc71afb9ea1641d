package mapmatch

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"kuanb/gosm-matcher/geom"
	"kuanb/gosm-matcher/hmm"
)

// Kernels scores candidates with a Gaussian emission on the projection
// distance, a bearing agreement term and an exponential detour penalty.
type Kernels struct {
	Beta float64 // detour scale in meters
}

// Emission is the Gaussian of the candidate distance scaled to peak at 1 when
// the distance equals my, exp(-0.5*((d-my)/sigma)^2).
func (k Kernels) Emission(c hmm.Candidate, _ hmm.Observation, sigma, my float64) float64 {
	n := distuv.Normal{Mu: my, Sigma: sigma}
	return math.Exp(n.LogProb(c.Distance) - n.LogProb(my))
}

// Direction maps the angle between the observed and the candidate
// displacement to [0, 1]: 1 when aligned, 0 when opposite.
func (k Kernels) Direction(prevObs, currObs hmm.Observation, prev, curr hmm.Candidate) float64 {
	if prevObs.Point.Equal(currObs.Point) || prev.Point.Equal(curr.Point) {
		return 1
	}
	observed := geom.Bearing(prevObs.Point, currObs.Point)
	moved := geom.Bearing(prev.Point, curr.Point)
	delta := (observed - moved) * math.Pi / 180.0
	return (1 + math.Cos(delta)) / 2
}

// Routing decays with the difference between route length and the great
// circle distance of the observations.
func (k Kernels) Routing(observationDistance, routeDistance float64) float64 {
	return math.Exp(-math.Abs(routeDistance-observationDistance) / k.Beta)
}

// Combine multiplies both terms.
func (k Kernels) Combine(direction, routing float64) float64 {
	return direction * routing
}
