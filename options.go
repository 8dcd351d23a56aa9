package census

import (
	"log/slog"
	"time"

	"github.com/ozanturksever/go-census/advertise"
)

const (
	// DefaultMaxResults is large enough to observe the whole population of a
	// state while still bounding memory.
	DefaultMaxResults = advertise.DefaultMaxResults

	DefaultLookupTimeout = 10 * time.Second
)

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	maxResults    int
	lookupTimeout time.Duration
	parallel      bool
	logger        *slog.Logger
	metrics       *Metrics
}

func defaultEngineOptions() *engineOptions {
	return &engineOptions{
		maxResults:    DefaultMaxResults,
		lookupTimeout: DefaultLookupTimeout,
		logger:        slog.Default(),
	}
}

// WithMaxResults caps the number of members fetched per state.
func WithMaxResults(n int) EngineOption {
	return func(o *engineOptions) {
		if n > 0 {
			o.maxResults = n
		}
	}
}

// WithLookupTimeout bounds each individual lookup.
func WithLookupTimeout(d time.Duration) EngineOption {
	return func(o *engineOptions) {
		if d > 0 {
			o.lookupTimeout = d
		}
	}
}

// WithParallel issues the lookups for all states concurrently.
func WithParallel(parallel bool) EngineOption {
	return func(o *engineOptions) {
		o.parallel = parallel
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(o *engineOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records per-lookup latency and failures.
func WithMetrics(m *Metrics) EngineOption {
	return func(o *engineOptions) {
		o.metrics = m
	}
}
