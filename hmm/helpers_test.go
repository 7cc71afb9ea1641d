package hmm

import (
	"context"
	"fmt"
	"sync"

	"github.com/paulmach/orb"
)

// cand builds a candidate whose emission is carried in Distance so the stub
// kernels can return it verbatim.
func cand(edge int64, x, y, emission float64) Candidate {
	return Candidate{
		Location: Location{Point: orb.Point{x, y}, EdgeID: edge},
		Distance: emission,
	}
}

func observations(n int) []Observation {
	obs := make([]Observation, n)
	for i := range obs {
		obs[i] = Observation{Index: i, Point: orb.Point{float64(i) * 0.001, 0}}
	}
	return obs
}

type stubProvider struct {
	mu         sync.Mutex
	candidates map[int][]Candidate
	calls      []int
}

func (p *stubProvider) FindCandidates(_ context.Context, o Observation, _ float64) ([]Candidate, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, o.Index)
	out := make([]Candidate, len(p.candidates[o.Index]))
	copy(out, p.candidates[o.Index])
	return out, nil
}

// stubKernels uses Distance as emission and looks transitions up by edge pair.
type stubKernels struct {
	transitions map[[2]int64]float64
}

func (stubKernels) Emission(c Candidate, _ Observation, _, _ float64) float64 { return c.Distance }

func (k stubKernels) Direction(_, _ Observation, prev, curr Candidate) float64 {
	if p, ok := k.transitions[[2]int64{prev.EdgeID, curr.EdgeID}]; ok {
		return p
	}
	return 0.5
}

func (stubKernels) Routing(_, _ float64) float64 { return 1 }

func (stubKernels) Combine(direction, routing float64) float64 { return direction * routing }

type stubRouter struct {
	mu    sync.Mutex
	fail  map[[2]int64]bool
	err   error // returned for every call when set
	calls int
}

func (r *stubRouter) Route(_ context.Context, from, to Location) (orb.LineString, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	if r.fail[[2]int64{from.EdgeID, to.EdgeID}] {
		return nil, fmt.Errorf("edge %d to %d: %w", from.EdgeID, to.EdgeID, ErrNoRoute)
	}
	return orb.LineString{from.Point, to.Point}, nil
}

type recordingProgress struct {
	inits    []int
	advances int
}

func (p *recordingProgress) Init(total int) { p.inits = append(p.inits, total) }
func (p *recordingProgress) Advance()       { p.advances++ }

var testParams = Params{Sigma: 4.07, My: 0, MaxDistance: 35}

func newTestMatcher(p *stubProvider, k stubKernels, r *stubRouter, opts ...Option) *Matcher {
	if r == nil {
		r = &stubRouter{}
	}
	return NewMatcher(p, k, r, testParams, opts...)
}
