package mapmatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"kuanb/gosm-matcher/config"
	"kuanb/gosm-matcher/hmm"
	"kuanb/gosm-matcher/observability"
	"kuanb/gosm-matcher/osm"
	"kuanb/gosm-matcher/routing"
	"kuanb/gosm-matcher/store"
)

var tracer = otel.Tracer("kuanb/gosm-matcher/mapmatch")

// RunStore persists finished runs
type RunStore interface {
	SaveRun(ctx context.Context, run *store.Run) error
}

// Result is a matched trajectory
type Result struct {
	RunID        string
	Path         hmm.Path
	Segments     []hmm.Segment
	Confidence   float64
	Materialized bool
	RoutingError error // set when the path could not be routed into segments
}

// Service matches trajectories against one network
type Service struct {
	graph    *osm.OsmGraph
	cfg      *config.Config
	router   *routing.Router
	provider *NetworkCandidates
	kernels  Kernels

	store   RunStore
	metrics *observability.MatchCollector
	log     *zap.Logger
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithStore persists every successful run.
func WithStore(s RunStore) ServiceOption {
	return func(svc *Service) { svc.store = s }
}

// WithMetrics records run outcomes.
func WithMetrics(c *observability.MatchCollector) ServiceOption {
	return func(svc *Service) { svc.metrics = c }
}

// WithServiceLogger sets the service logger.
func WithServiceLogger(log *zap.Logger) ServiceOption {
	return func(svc *Service) {
		if log != nil {
			svc.log = log
		}
	}
}

// NewService creates a matching service. The configuration must be valid.
func NewService(graph *osm.OsmGraph, cfg *config.Config, opts ...ServiceOption) *Service {
	s := &Service{
		graph:    graph,
		cfg:      cfg,
		router:   routing.NewRouter(graph, cfg.RouteCacheSize),
		provider: &NetworkCandidates{Graph: graph, MaxCandidates: cfg.MaxCandidates},
		kernels:  Kernels{Beta: cfg.Beta},
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Match decodes the most likely network path of a trajectory and routes it
// into segments. A path that cannot be routed is still returned with
// Materialized false.
func (s *Service) Match(ctx context.Context, points []orb.Point, progress hmm.Progress) (res *Result, err error) {
	runID := uuid.NewString()
	started := time.Now()
	log := s.log.With(zap.String("run_id", runID))

	ctx, span := tracer.Start(ctx, "mapmatch.Match")
	span.SetAttributes(attribute.String("run_id", runID), attribute.Int("observations", len(points)))
	entries := 0
	defer func() {
		outcome := outcomeOf(res, err)
		s.metrics.ObserveRun(outcome, time.Since(started), len(points), entries)
		span.SetAttributes(attribute.String("outcome", outcome))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	observations := make([]hmm.Observation, len(points))
	for i, p := range points {
		observations[i] = hmm.Observation{Index: i, Point: p}
	}

	opts := []hmm.Option{
		hmm.WithWorkers(s.cfg.Workers),
		hmm.WithLogger(log),
		hmm.WithProgress(progress),
	}
	if s.cfg.NormalizeTransitions {
		opts = append(opts, hmm.WithRowNormalization())
	}
	matcher := hmm.NewMatcher(s.provider, s.kernels, s.router, s.cfg.Params(), opts...)

	decoded, err := matcher.Match(ctx, observations)
	if err != nil {
		log.Warn("match failed", zap.Int("observations", len(points)), zap.Error(err))
		return nil, err
	}
	entries = decoded.Trellis.Len()

	res = &Result{
		RunID:        runID,
		Path:         decoded.Path,
		Confidence:   decoded.Confidence,
		Materialized: true,
	}
	res.Segments, err = matcher.Materialize(ctx, decoded.Path)
	switch {
	case errors.Is(err, hmm.ErrRoutingFailed):
		log.Warn("viterbi path could not be routed", zap.Error(err))
		res.Materialized = false
		res.RoutingError = err
		res.Segments = nil
	case err != nil:
		return nil, err
	}

	if s.store != nil {
		run := &store.Run{
			ID:           runID,
			CreatedAt:    started,
			Observations: len(points),
			Confidence:   res.Confidence,
			Materialized: res.Materialized,
			Params:       matcher.Params(),
			Path:         res.Path,
			Segments:     res.Segments,
		}
		if err := s.store.SaveRun(ctx, run); err != nil {
			return nil, fmt.Errorf("persist run %s: %w", runID, err)
		}
	}

	log.Info("trajectory matched",
		zap.Int("observations", len(points)),
		zap.Int("entries", entries),
		zap.Int("segments", len(res.Segments)),
		zap.Bool("materialized", res.Materialized),
		zap.Float64("confidence", res.Confidence),
		zap.Duration("elapsed", time.Since(started)),
	)
	return res, nil
}

func outcomeOf(res *Result, err error) string {
	switch {
	case err == nil && res != nil && !res.Materialized:
		return observability.OutcomeRoutingFailed
	case err == nil:
		return observability.OutcomeOK
	case errors.Is(err, hmm.ErrNoCandidates):
		return observability.OutcomeNoCandidates
	case errors.Is(err, hmm.ErrEmptyPath):
		return observability.OutcomeEmptyPath
	case errors.Is(err, hmm.ErrEmptyTrajectory), errors.Is(err, hmm.ErrInvalidParams):
		return observability.OutcomeInvalidRequest
	}
	return observability.OutcomeError
}
