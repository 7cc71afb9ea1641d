package hmm

import (
	"context"
	"errors"
	"fmt"

	"github.com/paulmach/orb/geo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("kuanb/gosm-matcher/hmm")

// Matcher matches a trajectory to the network using a Hidden Markov Model
// solved by the Viterbi algorithm.
type Matcher struct {
	provider CandidateProvider
	kernels  Kernels
	router   Router
	params   Params

	workers   int
	normalize bool
	progress  Progress
	log       *zap.Logger
}

// Result is the outcome of one decoding run
type Result struct {
	Trellis    *Trellis
	Path       Path
	Confidence float64
}

// NewMatcher creates a matcher from its collaborators and run parameters.
func NewMatcher(provider CandidateProvider, kernels Kernels, router Router, params Params, opts ...Option) *Matcher {
	m := &Matcher{
		provider: provider,
		kernels:  kernels,
		router:   router,
		params:   params,
		workers:  1,
		progress: NoProgress{},
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Params returns the run parameters of the matcher.
func (m *Matcher) Params() Params { return m.params }

func (p Params) validate() error {
	if !(p.Sigma > 0) {
		return fmt.Errorf("%w: sigma must be positive, got %v", ErrInvalidParams, p.Sigma)
	}
	if !(p.MaxDistance > 0) {
		return fmt.Errorf("%w: max distance must be positive, got %v", ErrInvalidParams, p.MaxDistance)
	}
	return nil
}

// Match runs build, seed, score, decode and extract over a complete trajectory.
// The context is checked between passes and between levels.
func (m *Matcher) Match(ctx context.Context, observations []Observation) (res *Result, err error) {
	ctx, span := tracer.Start(ctx, "hmm.Match", trace.WithAttributes(
		attribute.Int("observations", len(observations)),
	))
	defer func() { endSpan(span, err) }()

	if len(observations) == 0 {
		return nil, ErrEmptyTrajectory
	}
	if err := m.params.validate(); err != nil {
		return nil, err
	}

	// Step 1: one trellis level per observation
	t, err := m.Build(ctx, observations)
	if err != nil {
		return nil, err
	}
	m.log.Debug("trellis built", zap.Int("levels", t.Levels()), zap.Int("entries", t.Len()))

	// Step 2: starting probabilities
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.Seed(m.progress)

	// Step 3: transition probabilities between adjacent levels
	if err := m.Score(ctx, t); err != nil {
		return nil, err
	}

	// Step 4: forward recurrence with backtracking
	if err := t.Decode(ctx, m.progress); err != nil {
		return nil, err
	}

	// Step 5: optimal path
	path, err := t.ViterbiPath()
	if err != nil {
		return nil, err
	}
	confidence := t.Confidence(path)
	m.log.Debug("viterbi path extracted",
		zap.Int("length", len(path)),
		zap.Float64("total_probability", path[len(path)-1].Total),
		zap.Float64("confidence", confidence),
	)

	return &Result{Trellis: t, Path: path, Confidence: confidence}, nil
}

// Build creates one trellis level per observation. It aborts at the first
// observation without candidates; no partial trellis is returned.
func (m *Matcher) Build(ctx context.Context, observations []Observation) (t *Trellis, err error) {
	ctx, span := tracer.Start(ctx, "hmm.Build")
	defer func() { endSpan(span, err) }()

	m.progress.Init(len(observations))
	t = newTrellis(observations)
	for i, o := range observations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		candidates, err := m.provider.FindCandidates(ctx, o, m.params.MaxDistance)
		if err != nil {
			return nil, fmt.Errorf("find candidates for observation %d: %w", i, err)
		}
		if len(candidates) == 0 {
			return nil, fmt.Errorf("%w: observation %d", ErrNoCandidates, i)
		}

		for j := range candidates {
			candidates[j].Observation = i
		}
		emissions := make([]float64, len(candidates))
		err = m.forEach(ctx, len(candidates), func(_ context.Context, j int) error {
			emissions[j] = m.kernels.Emission(candidates[j], o, m.params.Sigma, m.params.My)
			return nil
		})
		if err != nil {
			return nil, err
		}

		for j, c := range candidates {
			t.add(i, c, emissions[j])
		}
		m.progress.Advance()
	}
	return t, nil
}

// Score records the transition probability of every pair of candidates from
// adjacent levels. Pairs at the same position are skipped. The per row sums
// are always accumulated but only applied with WithRowNormalization.
func (m *Matcher) Score(ctx context.Context, t *Trellis) (err error) {
	ctx, span := tracer.Start(ctx, "hmm.Score")
	defer func() { endSpan(span, err) }()

	m.progress.Init(len(t.observations))
	for i := range t.levels {
		if i != 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			prevObs, currObs := t.observations[i-1], t.observations[i]
			obsDistance := geo.DistanceHaversine(prevObs.Point, currObs.Point)
			previous, current := t.levels[i-1], t.levels[i]

			// each goroutine appends to its own entry only
			err := m.forEach(ctx, len(current), func(ctx context.Context, j int) error {
				e := &t.entries[current[j]]
				for _, pid := range previous {
					prev := t.entries[pid].Candidate
					if prev.SamePosition(e.Candidate) {
						continue
					}
					prob, err := m.transition(ctx, prevObs, currObs, prev, e.Candidate, obsDistance)
					if err != nil {
						return err
					}
					e.Transitions = append(e.Transitions, Transition{From: pid, Probability: prob})
				}
				return nil
			})
			if err != nil {
				return err
			}

			t.sumRows(i)
			if m.normalize {
				t.normalizeRows(i)
			}
		}
		m.progress.Advance()
	}
	return nil
}

// transition combines direction agreement and routing plausibility. An
// unroutable pair has probability zero.
func (m *Matcher) transition(ctx context.Context, prevObs, currObs Observation, prev, curr Candidate, obsDistance float64) (float64, error) {
	route, err := m.router.Route(ctx, prev.Location, curr.Location)
	if errors.Is(err, ErrNoRoute) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("route observation %d to %d: %w", prev.Observation, curr.Observation, err)
	}
	direction := m.kernels.Direction(prevObs, currObs, prev, curr)
	routing := m.kernels.Routing(obsDistance, geo.LengthHaversine(route))
	return m.kernels.Combine(direction, routing), nil
}

// Materialize routes every consecutive pair of the path. Any unroutable pair
// fails the whole materialization with ErrRoutingFailed and no segment is
// returned. Other router errors and cancellation are returned as they are.
func (m *Matcher) Materialize(ctx context.Context, path Path) (segments []Segment, err error) {
	ctx, span := tracer.Start(ctx, "hmm.Materialize", trace.WithAttributes(
		attribute.Int("vertices", len(path)),
	))
	defer func() { endSpan(span, err) }()

	m.progress.Init(len(path))
	segments = make([]Segment, 0, max(len(path)-1, 0))
	for i, vertex := range path {
		if i != 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			prev := path[i-1]
			line, err := m.router.Route(ctx, prev.Candidate.Location, vertex.Candidate.Location)
			if errors.Is(err, ErrNoRoute) {
				return nil, fmt.Errorf("%w: segment %d (observation %d to %d): %w",
					ErrRoutingFailed, i, prev.Observation, vertex.Observation, err)
			}
			if err != nil {
				return nil, fmt.Errorf("route segment %d: %w", i, err)
			}
			segments = append(segments, Segment{
				Index:            i,
				StartTotal:       prev.Total,
				EndTotal:         vertex.Total,
				StartEmission:    prev.Emission,
				EndEmission:      vertex.Emission,
				StartTransition:  prev.Transition,
				EndTransition:    vertex.Transition,
				StartObservation: prev.Observation,
				EndObservation:   vertex.Observation,
				Geometry:         line,
			})
		}
		m.progress.Advance()
	}
	return segments, nil
}

// forEach calls fn for 0..n-1, concurrently when more than one worker is set.
func (m *Matcher) forEach(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	if m.workers < 2 || n < 2 {
		for i := 0; i < n; i++ {
			if err := fn(ctx, i); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, i)
		})
	}
	return g.Wait()
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
