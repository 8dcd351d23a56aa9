package census

import (
	"fmt"
	"os"
	"strings"

	"github.com/nats-io/nkeys"
)

// TrackedState is one population segment of the network, identified by the
// public key its nodes advertise under.
type TrackedState struct {
	Name string `json:"name"`
	Key  string `json:"key"`
}

// Validate checks that the state has a name and a key.
func (s TrackedState) Validate() error {
	if s.Name == "" {
		return ErrEmptyStateName
	}
	if s.Key == "" {
		return fmt.Errorf("%w: %s", ErrEmptyStateKey, s.Name)
	}
	return nil
}

// LookupResult holds the members advertised under one state in one census.
type LookupResult struct {
	State   TrackedState
	Members []string
	// Truncated is set when the lookup hit its result cap, so Members may
	// not be the whole population.
	Truncated bool
}

// ParseStateKey accepts an nkeys public key, or a seed / decorated creds blob
// from which the public key is derived, and returns the public key.
func ParseStateKey(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmptyStateKey
	}
	if nkeys.IsValidPublicKey(raw) {
		return raw, nil
	}

	kp, err := nkeys.ParseDecoratedNKey([]byte(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidStateKey, err)
	}
	defer kp.Wipe()

	pub, err := kp.PublicKey()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidStateKey, err)
	}
	return pub, nil
}

// LoadStateKey reads a state key from a file holding a public key or a seed.
func LoadStateKey(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read state key file: %w", err)
	}
	key, err := ParseStateKey(string(data))
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return key, nil
}

func validateStates(states []TrackedState) error {
	seen := make(map[string]struct{}, len(states))
	for _, s := range states {
		if err := s.Validate(); err != nil {
			return err
		}
		if _, ok := seen[s.Name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateState, s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	return nil
}
