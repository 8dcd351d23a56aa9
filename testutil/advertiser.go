package testutil

import (
	"context"
	"strconv"
	"sync"
	"time"
)

type fakeEntry struct {
	value     string
	expiresAt time.Time
}

// LookupCall records one Lookup made against a FakeAdvertiser.
type LookupCall struct {
	Key        string
	MaxResults int
}

// FakeAdvertiser is an in-memory advertisement substrate. It honours TTLs and
// the lookup cap, and lets tests inject per-key failures and delays.
type FakeAdvertiser struct {
	mu       sync.Mutex
	entries  map[string][]fakeEntry
	failures map[string]error
	delays   map[string]time.Duration
	calls    []LookupCall

	announceErr error

	// Now is the clock used for expiry. Defaults to time.Now.
	Now func() time.Time
}

// NewFakeAdvertiser creates an empty fake substrate.
func NewFakeAdvertiser() *FakeAdvertiser {
	return &FakeAdvertiser{
		entries:  make(map[string][]fakeEntry),
		failures: make(map[string]error),
		delays:   make(map[string]time.Duration),
		Now:      time.Now,
	}
}

// Populate announces n distinct values under key with a long TTL.
func (f *FakeAdvertiser) Populate(key string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	expires := f.Now().Add(24 * time.Hour)
	for i := 0; i < n; i++ {
		f.entries[key] = append(f.entries[key], fakeEntry{
			value:     key + "/node-" + strconv.Itoa(len(f.entries[key])),
			expiresAt: expires,
		})
	}
}

// FailLookup makes every lookup of key fail with err. A nil err clears it.
func (f *FakeAdvertiser) FailLookup(key string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, key)
		return
	}
	f.failures[key] = err
}

// DelayLookup makes lookups of key block for d or until the context ends.
func (f *FakeAdvertiser) DelayLookup(key string, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delays[key] = d
}

// FailAnnounce makes every announce fail with err. A nil err clears it.
func (f *FakeAdvertiser) FailAnnounce(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.announceErr = err
}

// Calls returns the lookups made so far, in the order they were made.
func (f *FakeAdvertiser) Calls() []LookupCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	calls := make([]LookupCall, len(f.calls))
	copy(calls, f.calls)
	return calls
}

// Lookup returns unexpired values for key, capped at maxResults.
func (f *FakeAdvertiser) Lookup(ctx context.Context, key string, maxResults int) ([]string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, LookupCall{Key: key, MaxResults: maxResults})
	delay := f.delays[key]
	failure := f.failures[key]
	f.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if failure != nil {
		return nil, failure
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.Now()
	values := make([]string, 0)
	for _, e := range f.entries[key] {
		if !e.expiresAt.After(now) {
			continue
		}
		values = append(values, e.value)
		if len(values) >= maxResults {
			break
		}
	}
	return values, nil
}

// Announce stores value under key until ttl elapses, replacing an existing
// entry for the same value.
func (f *FakeAdvertiser) Announce(ctx context.Context, key, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.announceErr != nil {
		return f.announceErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	expires := f.Now().Add(ttl)
	for i, e := range f.entries[key] {
		if e.value == value {
			f.entries[key][i].expiresAt = expires
			return nil
		}
	}
	f.entries[key] = append(f.entries[key], fakeEntry{value: value, expiresAt: expires})
	return nil
}
