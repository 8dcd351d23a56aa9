package census

import (
	"fmt"
	"sort"
	"strings"
)

// Bound is the acceptable member count range for one state. A nil side means
// no limit on that side. Both ends are inclusive.
type Bound struct {
	Min *int `json:"min,omitempty" mapstructure:"min"`
	Max *int `json:"max,omitempty" mapstructure:"max"`
}

// AtLeast returns a bound with only a minimum.
func AtLeast(min int) Bound {
	return Bound{Min: &min}
}

// AtMost returns a bound with only a maximum.
func AtMost(max int) Bound {
	return Bound{Max: &max}
}

// Between returns a bound with both a minimum and a maximum.
func Between(min, max int) Bound {
	return Bound{Min: &min, Max: &max}
}

// Validate checks that the bound's ends are non-negative and ordered.
func (b Bound) Validate() error {
	if b.Min != nil && *b.Min < 0 {
		return fmt.Errorf("%w: min %d is negative", ErrInvalidBound, *b.Min)
	}
	if b.Max != nil && *b.Max < 0 {
		return fmt.Errorf("%w: max %d is negative", ErrInvalidBound, *b.Max)
	}
	if b.Min != nil && b.Max != nil && *b.Min > *b.Max {
		return fmt.Errorf("%w: min %d above max %d", ErrInvalidBound, *b.Min, *b.Max)
	}
	return nil
}

// Contains reports whether n is within the bound.
func (b Bound) Contains(n int) bool {
	if b.Min != nil && n < *b.Min {
		return false
	}
	if b.Max != nil && n > *b.Max {
		return false
	}
	return true
}

// Policy is the acceptable population range per state.
//
// Order is the priority in which states are checked. Bounded states missing
// from Order are checked after it, sorted by name.
type Policy struct {
	Order  []string         `json:"order,omitempty" mapstructure:"order"`
	Bounds map[string]Bound `json:"bounds" mapstructure:"bounds"`
}

// HistoricalPolicy returns the policy the node-state cron job alerted on:
// too many nodes in a transient state means the clearinghouse has not set
// them up yet; too few nodes in twopercent means the network is shrinking.
func HistoricalPolicy() Policy {
	return Policy{
		Order: []string{"acceptdonation", "canonical", "twopercent"},
		Bounds: map[string]Bound{
			"acceptdonation": AtMost(50),
			"canonical":      AtMost(50),
			"twopercent":     AtLeast(300),
		},
	}
}

// Validate checks every bound and that Order names no state twice.
func (p Policy) Validate() error {
	for name, b := range p.Bounds {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("state %s: %w", name, err)
		}
	}
	seen := make(map[string]struct{}, len(p.Order))
	for _, name := range p.Order {
		if _, ok := seen[name]; ok {
			return fmt.Errorf("policy order lists %s twice", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// checkOrder returns the bounded states in the order they are checked.
func (p Policy) checkOrder() []string {
	order := make([]string, 0, len(p.Bounds))
	seen := make(map[string]struct{}, len(p.Bounds))
	for _, name := range p.Order {
		if _, ok := p.Bounds[name]; !ok {
			continue
		}
		order = append(order, name)
		seen[name] = struct{}{}
	}

	rest := make([]string, 0)
	for name := range p.Bounds {
		if _, ok := seen[name]; !ok {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(order, rest...)
}

// Mode selects how many violations an Alert carries.
type Mode int

const (
	// ModeAll reports every violated state, primary first.
	ModeAll Mode = iota
	// ModeLegacy reports only the violation selected by precedence, matching
	// the historical single-line alert.
	ModeLegacy
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	switch m {
	case ModeAll:
		return "all"
	case ModeLegacy:
		return "legacy"
	default:
		return "unknown"
	}
}

// ParseMode parses "all" or "legacy". The empty string means ModeAll.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return ModeAll, nil
	case "legacy":
		return ModeLegacy, nil
	default:
		return ModeAll, fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Evaluator decides whether a Report represents a healthy population.
type Evaluator struct {
	policy Policy
	order  []string
	mode   Mode
}

// NewEvaluator creates an evaluator for policy.
func NewEvaluator(policy Policy, mode Mode) *Evaluator {
	return &Evaluator{
		policy: policy,
		order:  policy.checkOrder(),
		mode:   mode,
	}
}

// Evaluate returns nil when every counted state is within its bound, and an
// Alert otherwise.
//
// "Too many" is checked for each state in priority order, then "too few".
// The primary violation is the last "too few" found, or when there is none,
// the last "too many". Equality with a bound is always acceptable. States
// absent from the report are not checked.
func (e *Evaluator) Evaluate(report Report) *Alert {
	var tooMany, tooFew []Violation

	for _, name := range e.order {
		b := e.policy.Bounds[name]
		observed, ok := report.Count(name)
		if !ok || b.Max == nil {
			continue
		}
		if observed > *b.Max {
			tooMany = append(tooMany, Violation{State: name, Observed: observed, Bound: *b.Max, Kind: TooMany})
		}
	}
	for _, name := range e.order {
		b := e.policy.Bounds[name]
		observed, ok := report.Count(name)
		if !ok || b.Min == nil {
			continue
		}
		if observed < *b.Min {
			tooFew = append(tooFew, Violation{State: name, Observed: observed, Bound: *b.Min, Kind: TooFew})
		}
	}

	if len(tooMany) == 0 && len(tooFew) == 0 {
		return nil
	}

	var primary Violation
	if len(tooFew) > 0 {
		primary = tooFew[len(tooFew)-1]
	} else {
		primary = tooMany[len(tooMany)-1]
	}

	violations := []Violation{primary}
	if e.mode == ModeAll {
		for _, v := range append(tooMany, tooFew...) {
			if v != primary {
				violations = append(violations, v)
			}
		}
	}

	return &Alert{
		Violation:  primary,
		Violations: violations,
		Report:     report,
	}
}

// Evaluate checks report against policy, reporting every violation.
func Evaluate(report Report, policy Policy) *Alert {
	return NewEvaluator(policy, ModeAll).Evaluate(report)
}
