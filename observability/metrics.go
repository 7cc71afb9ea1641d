package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Match outcomes used as the outcome label.
const (
	OutcomeOK             = "ok"
	OutcomeNoCandidates   = "no_candidates"
	OutcomeEmptyPath      = "empty_path"
	OutcomeRoutingFailed  = "routing_failed"
	OutcomeInvalidRequest = "invalid_request"
	OutcomeError          = "error"
)

// MatchCollector bundles Prometheus metrics for map matching runs.
type MatchCollector struct {
	gatherer prometheus.Gatherer

	Runs         *prometheus.CounterVec
	Durations    prometheus.Histogram
	Observations prometheus.Histogram
	Candidates   prometheus.Histogram
}

// NewMatchCollector registers the match metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewMatchCollector(reg prometheus.Registerer) (*MatchCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	runs, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mapmatch_runs_total",
		Help: "Total number of map matching runs, labeled by outcome.",
	}, []string{"outcome"}), "mapmatch_runs_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "mapmatch_run_duration_seconds",
		Help:    "Duration of a complete map matching run in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}), "mapmatch_run_duration_seconds")
	if err != nil {
		return nil, err
	}

	observations, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "mapmatch_trajectory_observations",
		Help:    "Number of observations per matched trajectory.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}), "mapmatch_trajectory_observations")
	if err != nil {
		return nil, err
	}

	candidates, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "mapmatch_trellis_entries",
		Help:    "Number of candidate entries in the trellis of a run.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 16),
	}), "mapmatch_trellis_entries")
	if err != nil {
		return nil, err
	}

	return &MatchCollector{
		gatherer:     gatherer,
		Runs:         runs,
		Durations:    durations,
		Observations: observations,
		Candidates:   candidates,
	}, nil
}

// ObserveRun records one finished run. Safe on a nil collector.
func (c *MatchCollector) ObserveRun(outcome string, elapsed time.Duration, observations, entries int) {
	if c == nil {
		return
	}
	c.Runs.WithLabelValues(outcome).Inc()
	c.Durations.Observe(elapsed.Seconds())
	if observations > 0 {
		c.Observations.Observe(float64(observations))
	}
	if entries > 0 {
		c.Candidates.Observe(float64(entries))
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *MatchCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}
