package census

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind is the direction in which a population bound was violated.
type Kind int

const (
	// TooMany means the observed count is above the state's maximum.
	TooMany Kind = iota + 1
	// TooFew means the observed count is below the state's minimum.
	TooFew
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case TooMany:
		return "too_many"
	case TooFew:
		return "too_few"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "too_many":
		*k = TooMany
	case "too_few":
		*k = TooFew
	default:
		return fmt.Errorf("unknown violation kind %q", text)
	}
	return nil
}

// Violation is one state whose count fell outside its bound.
type Violation struct {
	State    string `json:"state"`
	Observed int    `json:"observed"`
	Bound    int    `json:"bound"`
	Kind     Kind   `json:"kind"`
}

// String renders the violation the way operators are used to reading it,
// e.g. "Too few nodes in state twopercent: 280".
func (v Violation) String() string {
	switch v.Kind {
	case TooFew:
		return fmt.Sprintf("Too few nodes in state %s: %d", v.State, v.Observed)
	case TooMany:
		return fmt.Sprintf("Too many nodes in state %s: %d", v.State, v.Observed)
	default:
		return fmt.Sprintf("Unexpected node count in state %s: %d", v.State, v.Observed)
	}
}

// Detail renders the violation together with the bound it broke.
func (v Violation) Detail() string {
	switch v.Kind {
	case TooFew:
		return fmt.Sprintf("%s (min %d)", v.String(), v.Bound)
	case TooMany:
		return fmt.Sprintf("%s (max %d)", v.String(), v.Bound)
	default:
		return v.String()
	}
}

// Alert describes an unhealthy census. The embedded Violation is the one
// selected by precedence; Violations lists it first, followed by any other
// violations found in the same census.
type Alert struct {
	Violation
	Violations []Violation
	Report     Report
}

// Message renders the alert text: the primary violation, any further
// violations, then the lookup results.
func (a *Alert) Message() string {
	var b strings.Builder
	b.WriteString(a.Violation.Detail())
	for _, v := range a.Violations {
		if v == a.Violation {
			continue
		}
		b.WriteString("\n")
		b.WriteString(v.Detail())
	}
	b.WriteString("\n\nLookup results:\n")
	b.WriteString(a.Report.String())
	return b.String()
}

type alertJSON struct {
	Primary    Violation   `json:"primary"`
	Violations []Violation `json:"violations"`
	Report     Report      `json:"report"`
}

// MarshalJSON implements json.Marshaler.
func (a *Alert) MarshalJSON() ([]byte, error) {
	return json.Marshal(alertJSON{
		Primary:    a.Violation,
		Violations: a.Violations,
		Report:     a.Report,
	})
}
