package hmm

import "errors"

// Sentinel errors returned by the matcher. They are wrapped with context, test
// with errors.Is.
var (
	// ErrEmptyTrajectory indicates a match was requested for zero observations.
	ErrEmptyTrajectory = errors.New("hmm: trajectory has no observations")

	// ErrInvalidParams indicates sigma or the search radius is not positive.
	ErrInvalidParams = errors.New("hmm: invalid run parameters")

	// ErrNoCandidates indicates an observation has no network candidate within
	// the search radius. The whole run fails.
	ErrNoCandidates = errors.New("hmm: observation has no candidates")

	// ErrNoRoute is returned by routers when two locations are not connected.
	ErrNoRoute = errors.New("hmm: no route between locations")

	// ErrRoutingFailed indicates a consecutive pair of the Viterbi path could
	// not be routed. The Viterbi path itself is still valid.
	ErrRoutingFailed = errors.New("hmm: routing failed")

	// ErrEmptyPath indicates decoding produced no viable final entry.
	ErrEmptyPath = errors.New("hmm: no viable viterbi path")
)
