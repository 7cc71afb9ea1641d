package hmm

import (
	"context"

	"github.com/paulmach/orb"
)

// Observation represents one recorded GPS fix of a trajectory
type Observation struct {
	Index int
	Point orb.Point
}

// Location is a point on a network edge. Offset is measured in meters from the
// first vertex of the edge geometry.
type Location struct {
	Point  orb.Point
	EdgeID int64
	Offset float64
}

// Candidate represents a network location proposed for one observation
type Candidate struct {
	Location
	Observation int     // index of the observation it was generated for
	Distance    float64 // distance from the observation in meters
}

// SamePosition reports whether both candidates sit on exactly the same point.
func (c Candidate) SamePosition(o Candidate) bool {
	return c.Point[0] == o.Point[0] && c.Point[1] == o.Point[1]
}

// EntryID is a dense handle into the trellis arena
type EntryID int

// NoPredecessor marks entries of the first level in the backtracking table.
const NoPredecessor EntryID = -1

// unvisited marks backtracking slots the decoder never assigned.
const unvisited EntryID = -2

// Transition is one scored edge from an entry of the previous level
type Transition struct {
	From        EntryID
	Probability float64
}

// Entry is the decoding record of a single candidate
type Entry struct {
	ID          EntryID
	Level       int
	Candidate   Candidate
	Emission    float64
	Transitions []Transition // in previous level scan order
	Transition  float64      // transition probability used by the best partial path
	Total       float64      // accumulated Viterbi probability, may underflow to 0
	LogTotal    float64      // natural log of Total, -Inf when no path reaches the entry
}

// PathRecord is one vertex of the decoded Viterbi path
type PathRecord struct {
	Entry       EntryID
	Candidate   Candidate
	Total       float64
	LogTotal    float64
	Emission    float64
	Transition  float64
	Observation int
}

// Path is the decoded Viterbi path, lowest observation index first
type Path []PathRecord

// Segment is the routed network geometry between two consecutive path vertices
type Segment struct {
	Index            int
	StartTotal       float64
	EndTotal         float64
	StartEmission    float64
	EndEmission      float64
	StartTransition  float64
	EndTransition    float64
	StartObservation int
	EndObservation   int
	Geometry         orb.LineString
}

// Params are the run-wide parameters supplied by the caller.
type Params struct {
	Sigma       float64 // emission spread
	My          float64 // emission bias
	MaxDistance float64 // candidate search radius in meters
}

// CandidateProvider extracts candidate network locations near an observation
type CandidateProvider interface {
	FindCandidates(ctx context.Context, o Observation, maxDistance float64) ([]Candidate, error)
}

// Kernels computes the scalar emission and transition sub-probabilities
type Kernels interface {
	Emission(c Candidate, o Observation, sigma, my float64) float64
	Direction(prevObs, currObs Observation, prev, curr Candidate) float64
	Routing(observationDistance, routeDistance float64) float64
	Combine(direction, routing float64) float64
}

// Router returns the shortest network geometry between two locations. A pair
// that cannot be connected yields an error wrapping ErrNoRoute.
type Router interface {
	Route(ctx context.Context, from, to Location) (orb.LineString, error)
}

// Progress receives visual feedback only. It is never consulted for control flow.
type Progress interface {
	Init(total int)
	Advance()
}

// NoProgress discards all progress updates.
type NoProgress struct{}

func (NoProgress) Init(int) {}
func (NoProgress) Advance() {}
