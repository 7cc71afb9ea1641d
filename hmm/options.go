package hmm

import "go.uber.org/zap"

// Option customizes a Matcher.
type Option func(*Matcher)

// WithWorkers bounds the goroutines used inside one level. Values below 2 keep
// every pass sequential.
func WithWorkers(n int) Option {
	return func(m *Matcher) {
		if n < 1 {
			n = 1
		}
		m.workers = n
	}
}

// WithProgress installs a progress observer.
func WithProgress(p Progress) Option {
	return func(m *Matcher) {
		if p == nil {
			p = NoProgress{}
		}
		m.progress = p
	}
}

// WithLogger installs a logger for pass boundaries.
func WithLogger(log *zap.Logger) Option {
	return func(m *Matcher) {
		if log == nil {
			log = zap.NewNop()
		}
		m.log = log
	}
}

// WithRowNormalization divides every transition probability by the sum of the
// transitions leaving the same previous entry. Off by default.
func WithRowNormalization() Option {
	return func(m *Matcher) { m.normalize = true }
}
