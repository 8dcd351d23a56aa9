package census

import (
	"context"
	"log/slog"
	"time"

	"github.com/ozanturksever/go-census/advertise"
	"golang.org/x/sync/errgroup"
)

// Advertiser is the read side of an advertisement substrate.
// advertise.Client satisfies it.
type Advertiser interface {
	Lookup(ctx context.Context, key string, maxResults int) ([]string, error)
}

// Engine turns a list of tracked states into a Report by looking up each
// state on the advertisement substrate.
type Engine struct {
	client Advertiser
	opts   *engineOptions
	logger *slog.Logger
}

// NewEngine creates a census engine over client.
func NewEngine(client Advertiser, opts ...EngineOption) *Engine {
	o := defaultEngineOptions()
	for _, opt := range opts {
		opt(o)
	}
	return &Engine{
		client: client,
		opts:   o,
		logger: o.logger.With("component", "census"),
	}
}

// Lookup fetches the members of one state, bounded by the lookup timeout.
// Any failure is returned as an *advertise.LookupFailure.
func (e *Engine) Lookup(ctx context.Context, state TrackedState) (LookupResult, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, e.opts.lookupTimeout)
	defer cancel()

	start := time.Now()
	members, err := e.client.Lookup(lookupCtx, state.Key, e.opts.maxResults)
	if err == nil && lookupCtx.Err() != nil {
		// A client that ignores its context must not turn a timeout into a result.
		err = lookupCtx.Err()
	}
	elapsed := time.Since(start)

	if e.opts.metrics != nil {
		e.opts.metrics.ObserveLookup(state.Name, elapsed, err)
	}
	if err != nil {
		e.logger.Warn("lookup failed", "state", state.Name, "duration", elapsed, "error", err)
		return LookupResult{}, advertise.AsLookupFailure(state.Key, err)
	}

	res := LookupResult{
		State:     state,
		Members:   members,
		Truncated: len(members) >= e.opts.maxResults,
	}

	e.logger.Info("lookup complete", "state", state.Name, "members", len(members), "duration", elapsed)
	if res.Truncated {
		e.logger.Warn("lookup hit result cap, count may be incomplete",
			"state", state.Name, "maxResults", e.opts.maxResults)
	}
	if e.logger.Enabled(ctx, slog.LevelDebug) {
		for _, m := range members {
			e.logger.Debug("member", "state", state.Name, "node", m)
		}
	}
	return res, nil
}

// Census looks up every state and builds a report. If any lookup fails the
// census fails with a *CensusFailure and no report is returned. An empty state
// list yields an empty report.
func (e *Engine) Census(ctx context.Context, states []TrackedState) (Report, error) {
	if err := validateStates(states); err != nil {
		return Report{}, &CensusFailure{State: failingStateName(states), Cause: err}
	}

	e.logger.Info("starting census", "states", len(states), "parallel", e.opts.parallel)

	var (
		results []LookupResult
		err     error
	)
	if e.opts.parallel {
		results, err = e.censusParallel(ctx, states)
	} else {
		results, err = e.censusSequential(ctx, states)
	}
	if err != nil {
		return Report{}, err
	}

	report := newReportFromResults(results)
	e.logger.Info("census complete", "total", report.Total())
	return report, nil
}

func (e *Engine) censusSequential(ctx context.Context, states []TrackedState) ([]LookupResult, error) {
	results := make([]LookupResult, 0, len(states))
	for _, s := range states {
		res, err := e.Lookup(ctx, s)
		if err != nil {
			return nil, &CensusFailure{State: s.Name, Cause: err}
		}
		results = append(results, res)
	}
	return results, nil
}

// censusParallel fans out one lookup per state and fans in once all complete.
// The first failure cancels the lookups still in flight.
func (e *Engine) censusParallel(ctx context.Context, states []TrackedState) ([]LookupResult, error) {
	results := make([]LookupResult, len(states))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range states {
		g.Go(func() error {
			res, err := e.Lookup(gctx, s)
			if err != nil {
				return &CensusFailure{State: s.Name, Cause: err}
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// failingStateName picks the state to blame for a validation error.
func failingStateName(states []TrackedState) string {
	seen := make(map[string]struct{}, len(states))
	for _, s := range states {
		if s.Validate() != nil {
			return s.Name
		}
		if _, ok := seen[s.Name]; ok {
			return s.Name
		}
		seen[s.Name] = struct{}{}
	}
	return ""
}
