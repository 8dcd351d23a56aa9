package census

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// OutcomeKind is one of the three mutually exclusive results of a cycle.
type OutcomeKind int

const (
	// OutcomeHealthy means the census completed and every state is within policy.
	OutcomeHealthy OutcomeKind = iota
	// OutcomeAlert means the census completed and at least one state is out of bounds.
	OutcomeAlert
	// OutcomeFailure means the census could not be completed.
	OutcomeFailure
)

// String returns the string representation of the outcome kind.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeHealthy:
		return "healthy"
	case OutcomeAlert:
		return "alert"
	case OutcomeFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Outcome is the result of one census cycle. Report is set for healthy and
// alert outcomes, Alert only for alert outcomes, Err only for failures.
type Outcome struct {
	Kind       OutcomeKind
	Report     Report
	Alert      *Alert
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Healthy reports whether the cycle found every state within policy.
func (o Outcome) Healthy() bool {
	return o.Kind == OutcomeHealthy
}

// Subject is a one-line summary suitable for a notification subject.
func (o Outcome) Subject() string {
	switch o.Kind {
	case OutcomeHealthy:
		return fmt.Sprintf("Node census healthy: %d nodes", o.Report.Total())
	case OutcomeAlert:
		return "Node census alert: " + o.Alert.Violation.String()
	default:
		return "Node census failed: advertise lookup error"
	}
}

// Body is the full notification text.
func (o Outcome) Body() string {
	switch o.Kind {
	case OutcomeHealthy:
		return "All tracked states are within policy.\n\nLookup results:\n" + o.Report.String()
	case OutcomeAlert:
		return o.Alert.Message()
	default:
		return fmt.Sprintf("The census could not be completed, so no population check was made.\n\nError: %v", o.Err)
	}
}

type outcomeJSON struct {
	Kind       string    `json:"kind"`
	Subject    string    `json:"subject"`
	Report     *Report   `json:"report,omitempty"`
	Alert      *Alert    `json:"alert,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// MarshalJSON implements json.Marshaler.
func (o Outcome) MarshalJSON() ([]byte, error) {
	out := outcomeJSON{
		Kind:       o.Kind.String(),
		Subject:    o.Subject(),
		Alert:      o.Alert,
		StartedAt:  o.StartedAt,
		FinishedAt: o.FinishedAt,
	}
	if o.Kind != OutcomeFailure {
		r := o.Report
		out.Report = &r
	}
	if o.Err != nil {
		out.Error = o.Err.Error()
	}
	return json.Marshal(out)
}

// Cycle runs one census and evaluates it against the policy. A Cycle keeps no
// state between runs.
type Cycle struct {
	cfg       Config
	engine    *Engine
	evaluator *Evaluator
	logger    *slog.Logger
}

// NewCycle validates cfg and creates a cycle over client.
func NewCycle(cfg Config, client Advertiser) (*Cycle, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid census config: %w", err)
	}

	engine := NewEngine(client,
		WithMaxResults(cfg.MaxResults),
		WithLookupTimeout(cfg.LookupTimeout),
		WithParallel(cfg.Parallel),
		WithLogger(cfg.Logger),
		WithMetrics(cfg.Metrics),
	)

	return &Cycle{
		cfg:       cfg,
		engine:    engine,
		evaluator: NewEvaluator(cfg.Policy, cfg.Mode),
		logger:    cfg.Logger.With("component", "cycle"),
	}, nil
}

// Run performs the census and returns its outcome.
func (c *Cycle) Run(ctx context.Context) Outcome {
	out := Outcome{StartedAt: time.Now()}

	report, err := c.engine.Census(ctx, c.cfg.States)
	out.FinishedAt = time.Now()

	switch {
	case err != nil:
		out.Kind = OutcomeFailure
		out.Err = err
		c.logger.Error("census failed", "error", err)
	default:
		out.Report = report
		if alert := c.evaluator.Evaluate(report); alert != nil {
			out.Kind = OutcomeAlert
			out.Alert = alert
			c.logger.Warn("population out of bounds",
				"state", alert.State,
				"kind", alert.Kind.String(),
				"observed", alert.Observed,
				"bound", alert.Bound,
				"violations", len(alert.Violations),
				"total", report.Total())
		} else {
			out.Kind = OutcomeHealthy
			c.logger.Info("population healthy", "total", report.Total())
		}
	}

	if c.cfg.Metrics != nil {
		c.cfg.Metrics.ObserveOutcome(out)
	}
	return out
}
