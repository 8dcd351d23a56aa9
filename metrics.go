package census

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics manages Prometheus metrics for census cycles.
type Metrics struct {
	registry *prometheus.Registry

	// Population metrics
	StateMembers   *prometheus.GaugeVec
	StateTruncated *prometheus.GaugeVec
	TotalMembers   prometheus.Gauge
	Violations     *prometheus.GaugeVec

	// Lookup metrics
	LookupDuration *prometheus.HistogramVec
	LookupFailures *prometheus.CounterVec

	// Cycle metrics
	Cycles      *prometheus.CounterVec
	LastSuccess prometheus.Gauge
}

// NewMetrics creates a metrics set on its own registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		StateMembers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "census_state_members",
			Help: "Nodes advertised under the state in the last census",
		}, []string{"state"}),

		StateTruncated: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "census_state_truncated",
			Help: "1 if the last lookup for the state hit the result cap",
		}, []string{"state"}),

		TotalMembers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "census_members_total",
			Help: "Nodes advertised across all tracked states in the last census",
		}),

		Violations: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "census_violation",
			Help: "1 if the state violated its population bound in the last census",
		}, []string{"state", "kind"}),

		LookupDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "census_lookup_duration_seconds",
			Help:    "Advertisement lookup duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{"state"}),

		LookupFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "census_lookup_failures_total",
			Help: "Advertisement lookups that failed",
		}, []string{"state"}),

		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "census_cycles_total",
			Help: "Census cycles by outcome",
		}, []string{"outcome"}),

		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "census_last_success_timestamp_seconds",
			Help: "Unix time of the last census that produced a report",
		}),
	}

	registry.MustRegister(
		m.StateMembers,
		m.StateTruncated,
		m.TotalMembers,
		m.Violations,
		m.LookupDuration,
		m.LookupFailures,
		m.Cycles,
		m.LastSuccess,
	)

	return m
}

// Registry returns the registry holding the census metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler serving the metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Push sends the current metrics to a Prometheus Pushgateway, replacing any
// metrics previously pushed for job. Cron-style runs use this instead of
// being scraped.
func (m *Metrics) Push(ctx context.Context, gatewayURL, job string) error {
	if err := push.New(gatewayURL, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}

// ObserveLookup records a lookup duration and whether it failed.
func (m *Metrics) ObserveLookup(state string, duration time.Duration, err error) {
	m.LookupDuration.WithLabelValues(state).Observe(duration.Seconds())
	if err != nil {
		m.LookupFailures.WithLabelValues(state).Inc()
	}
}

// ObserveOutcome records the result of a census cycle. Population gauges are
// only updated when the cycle produced a report.
func (m *Metrics) ObserveOutcome(o Outcome) {
	m.Cycles.WithLabelValues(o.Kind.String()).Inc()
	if o.Kind == OutcomeFailure {
		return
	}

	m.StateMembers.Reset()
	m.StateTruncated.Reset()
	for _, c := range o.Report.Counts() {
		m.StateMembers.WithLabelValues(c.Name).Set(float64(c.Count))
		truncated := 0.0
		if c.Truncated {
			truncated = 1.0
		}
		m.StateTruncated.WithLabelValues(c.Name).Set(truncated)
	}
	m.TotalMembers.Set(float64(o.Report.Total()))

	m.Violations.Reset()
	if o.Alert != nil {
		for _, v := range o.Alert.Violations {
			m.Violations.WithLabelValues(v.State, v.Kind.String()).Set(1)
		}
	}

	m.LastSuccess.Set(float64(o.FinishedAt.Unix()))
}
