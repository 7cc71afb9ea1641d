package mapmatch

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"

	"kuanb/gosm-matcher/hmm"
)

func at(x, y float64) hmm.Candidate {
	return hmm.Candidate{Location: hmm.Location{Point: orb.Point{x, y}}}
}

func obs(x, y float64) hmm.Observation {
	return hmm.Observation{Point: orb.Point{x, y}}
}

func TestEmission(t *testing.T) {
	k := Kernels{Beta: 3}

	peak := k.Emission(hmm.Candidate{Distance: 0}, hmm.Observation{}, 4.07, 0)
	assert.InDelta(t, 1.0, peak, 1e-12)

	oneSigma := k.Emission(hmm.Candidate{Distance: 4.07}, hmm.Observation{}, 4.07, 0)
	assert.InDelta(t, math.Exp(-0.5), oneSigma, 1e-12)

	near := k.Emission(hmm.Candidate{Distance: 3}, hmm.Observation{}, 4.07, 0)
	far := k.Emission(hmm.Candidate{Distance: 30}, hmm.Observation{}, 4.07, 0)
	assert.Greater(t, peak, near)
	assert.Greater(t, near, far)

	// the bias moves the peak
	shifted := k.Emission(hmm.Candidate{Distance: 3}, hmm.Observation{}, 4.07, 3)
	assert.InDelta(t, peak, shifted, 1e-12)
}

func TestDirection(t *testing.T) {
	k := Kernels{Beta: 3}
	east := [2]hmm.Observation{obs(0, 0), obs(0.001, 0)}

	tests := []struct {
		name       string
		prev, curr hmm.Candidate
		want       float64
	}{
		{"aligned", at(0, 0.0001), at(0.001, 0.0001), 1},
		{"opposite", at(0.001, 0), at(0, 0), 0},
		{"perpendicular", at(0, 0), at(0, 0.001), 0.5},
		{"stationary candidate", at(0, 0), at(0, 0), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, k.Direction(east[0], east[1], tt.prev, tt.curr), 1e-6)
		})
	}

	assert.Equal(t, 1.0, k.Direction(obs(1, 1), obs(1, 1), at(0, 0), at(0.001, 0)))
}

func TestRoutingAndCombine(t *testing.T) {
	k := Kernels{Beta: 3}
	assert.Equal(t, 1.0, k.Routing(100, 100))
	assert.InDelta(t, math.Exp(-1), k.Routing(100, 103), 1e-12)
	assert.InDelta(t, math.Exp(-1), k.Routing(103, 100), 1e-12)
	assert.Greater(t, k.Routing(100, 110), k.Routing(100, 150))

	assert.Equal(t, 0.25, k.Combine(0.5, 0.5))
	assert.Equal(t, 0.0, k.Combine(0, 1))
}
