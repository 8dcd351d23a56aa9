package census

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// StateCount is the member count observed for one state.
type StateCount struct {
	Name      string `json:"name"`
	Count     int    `json:"count"`
	Truncated bool   `json:"truncated,omitempty"`
}

// Report is the result of one census: a member count per state and their
// total. A Report is immutable; Total always equals the sum of the counts.
type Report struct {
	order     []string
	counts    map[string]int
	truncated map[string]bool
	total     int
}

// NewReport builds a report from counts, keeping their order. A later count
// for the same state replaces an earlier one.
func NewReport(counts ...StateCount) Report {
	r := Report{
		order:     make([]string, 0, len(counts)),
		counts:    make(map[string]int, len(counts)),
		truncated: make(map[string]bool),
	}
	for _, c := range counts {
		if _, ok := r.counts[c.Name]; !ok {
			r.order = append(r.order, c.Name)
		}
		r.counts[c.Name] = c.Count
		if c.Truncated {
			r.truncated[c.Name] = true
		} else {
			delete(r.truncated, c.Name)
		}
	}
	for _, n := range r.counts {
		r.total += n
	}
	return r
}

func newReportFromResults(results []LookupResult) Report {
	counts := make([]StateCount, len(results))
	for i, res := range results {
		counts[i] = StateCount{
			Name:      res.State.Name,
			Count:     len(res.Members),
			Truncated: res.Truncated,
		}
	}
	return NewReport(counts...)
}

// Count returns the member count for a state and whether the state was counted.
func (r Report) Count(state string) (int, bool) {
	n, ok := r.counts[state]
	return n, ok
}

// Total returns the sum of all state counts.
func (r Report) Total() int {
	return r.total
}

// Len returns the number of states in the report.
func (r Report) Len() int {
	return len(r.order)
}

// States returns the counted state names in census order.
func (r Report) States() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Counts returns the per-state counts in census order.
func (r Report) Counts() []StateCount {
	out := make([]StateCount, len(r.order))
	for i, name := range r.order {
		out[i] = StateCount{Name: name, Count: r.counts[name], Truncated: r.truncated[name]}
	}
	return out
}

// PerState returns a copy of the state → count mapping.
func (r Report) PerState() map[string]int {
	out := make(map[string]int, len(r.counts))
	for k, v := range r.counts {
		out[k] = v
	}
	return out
}

// Truncated reports whether the lookup for state hit its result cap.
func (r Report) Truncated(state string) bool {
	return r.truncated[state]
}

// TruncatedStates returns the states whose counts may be incomplete, sorted.
func (r Report) TruncatedStates() []string {
	out := make([]string, 0, len(r.truncated))
	for name := range r.truncated {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// String renders the report one state per line, followed by the total.
func (r Report) String() string {
	var b strings.Builder
	for _, c := range r.Counts() {
		fmt.Fprintf(&b, "%s: %d", c.Name, c.Count)
		if c.Truncated {
			b.WriteString(" (truncated)")
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "Total nodes: %d", r.total)
	return b.String()
}

type reportJSON struct {
	States    map[string]int `json:"states"`
	Order     []string       `json:"order"`
	Total     int            `json:"total"`
	Truncated []string       `json:"truncated,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (r Report) MarshalJSON() ([]byte, error) {
	return json.Marshal(reportJSON{
		States:    r.PerState(),
		Order:     r.States(),
		Total:     r.total,
		Truncated: r.TruncatedStates(),
	})
}

// UnmarshalJSON implements json.Unmarshaler. The total is recomputed from the
// counts rather than trusted.
func (r *Report) UnmarshalJSON(data []byte) error {
	var raw reportJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	order := raw.Order
	if len(order) == 0 {
		for name := range raw.States {
			order = append(order, name)
		}
		sort.Strings(order)
	}

	truncated := make(map[string]bool, len(raw.Truncated))
	for _, name := range raw.Truncated {
		truncated[name] = true
	}

	counts := make([]StateCount, 0, len(order))
	for _, name := range order {
		n, ok := raw.States[name]
		if !ok {
			return fmt.Errorf("report order names unknown state %q", name)
		}
		counts = append(counts, StateCount{Name: name, Count: n, Truncated: truncated[name]})
	}
	*r = NewReport(counts...)
	return nil
}
