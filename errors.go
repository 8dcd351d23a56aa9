// Package census counts the nodes advertised under each tracked state and
// checks the counts against a population policy.
package census

import (
	"errors"
	"fmt"
)

// Configuration and input errors.
var (
	// ErrEmptyStateName indicates a tracked state without a name.
	ErrEmptyStateName = errors.New("tracked state name is empty")

	// ErrEmptyStateKey indicates a tracked state without a lookup key.
	ErrEmptyStateKey = errors.New("tracked state key is empty")

	// ErrInvalidStateKey indicates a key that is neither an nkeys public key nor a seed.
	ErrInvalidStateKey = errors.New("invalid tracked state key")

	// ErrDuplicateState indicates two tracked states share a name.
	ErrDuplicateState = errors.New("duplicate tracked state")

	// ErrInvalidBound indicates a policy bound that is negative or has min above max.
	ErrInvalidBound = errors.New("invalid policy bound")

	// ErrUnknownPolicyState indicates a policy bound for a state that is not tracked.
	ErrUnknownPolicyState = errors.New("policy names an untracked state")

	// ErrUnknownMode indicates an evaluation mode name that is not recognised.
	ErrUnknownMode = errors.New("unknown evaluation mode")
)

// CensusFailure reports that a census could not be completed. It carries the
// state whose lookup failed; no partial report is ever produced alongside it.
type CensusFailure struct {
	State string
	Cause error
}

func (e *CensusFailure) Error() string {
	return fmt.Sprintf("census failed at state %q: %v", e.State, e.Cause)
}

func (e *CensusFailure) Unwrap() error {
	return e.Cause
}
