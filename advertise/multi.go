package advertise

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// Multi queries several advertisement substrates as replicas of one directory.
//
// Lookup asks every replica concurrently and returns the union of their
// answers, deduplicated in replica order and capped at maxResults. A failure
// from any replica fails the whole lookup.
type Multi struct {
	clients []Client
}

// NewMulti creates a client over the given replicas.
func NewMulti(clients ...Client) *Multi {
	return &Multi{clients: clients}
}

// Lookup returns the union of the values every replica holds for key.
func (m *Multi) Lookup(ctx context.Context, key string, maxResults int) ([]string, error) {
	if err := validateLookup(key, maxResults); err != nil {
		return nil, &LookupFailure{Key: key, Cause: err}
	}
	if len(m.clients) == 0 {
		return nil, &LookupFailure{Key: key, Cause: fmt.Errorf("no advertise replicas configured")}
	}

	answers := make([][]string, len(m.clients))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range m.clients {
		g.Go(func() error {
			values, err := c.Lookup(gctx, key, maxResults)
			if err != nil {
				return fmt.Errorf("replica %d: %w", i, err)
			}
			answers[i] = values
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, &LookupFailure{Key: key, Cause: err}
	}

	seen := make(map[string]struct{})
	values := make([]string, 0)
	for _, answer := range answers {
		for _, v := range answer {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			values = append(values, v)
			if len(values) >= maxResults {
				return values, nil
			}
		}
	}
	return values, nil
}

// Announce publishes value to every replica.
func (m *Multi) Announce(ctx context.Context, key, value string, ttl time.Duration) error {
	if len(m.clients) == 0 {
		return &AnnounceFailure{Key: key, Cause: fmt.Errorf("no advertise replicas configured")}
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range m.clients {
		g.Go(func() error {
			if err := c.Announce(gctx, key, value, ttl); err != nil {
				return fmt.Errorf("replica %d: %w", i, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return &AnnounceFailure{Key: key, Cause: err}
	}
	return nil
}
