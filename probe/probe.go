// Package probe checks that an advertisement substrate accepts writes and
// that an announced value becomes visible to lookups within a bounded window.
//
// The probe announces a random value under a freshly generated nkeys public
// key, so it never disturbs a real state, and polls until the value shows up.
//
//	p := probe.New(client, probe.WithWindow(10*time.Second))
//	res := p.Run(ctx)
//	if !res.OK() {
//	    log.Printf("advertise substrate unhealthy: %s", res)
//	}
package probe

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nkeys"
	"github.com/ozanturksever/go-census/advertise"
)

const (
	DefaultTTL          = 60 * time.Second
	DefaultWindow       = 10 * time.Second
	DefaultPollInterval = 500 * time.Millisecond
)

// Kind classifies a probe result.
type Kind int

const (
	// ResultOK means the announced value was visible within the window.
	ResultOK Kind = iota
	// ResultAnnounceFailure means the substrate rejected the announcement.
	ResultAnnounceFailure
	// ResultLookupFailure means a lookup failed outright.
	ResultLookupFailure
	// ResultMismatch means lookups answered, but not with what was announced.
	ResultMismatch
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case ResultOK:
		return "ok"
	case ResultAnnounceFailure:
		return "announce_failure"
	case ResultLookupFailure:
		return "lookup_failure"
	case ResultMismatch:
		return "mismatch"
	default:
		return "unknown"
	}
}

// Mismatch describes an answer that differed from what was announced.
type Mismatch struct {
	Field    string
	Expected string
	Actual   string
}

// Result is the outcome of one probe. Err is set for announce and lookup
// failures, Mismatch for mismatches.
type Result struct {
	Kind     Kind
	Key      string
	Value    string
	Err      error
	Mismatch *Mismatch
	Latency  time.Duration
	Attempts int
}

// OK reports whether the probe succeeded.
func (r Result) OK() bool {
	return r.Kind == ResultOK
}

func (r Result) String() string {
	switch r.Kind {
	case ResultOK:
		return fmt.Sprintf("ok: value visible after %v (%d lookups)", r.Latency, r.Attempts)
	case ResultAnnounceFailure:
		return fmt.Sprintf("announce failed: %v", r.Err)
	case ResultLookupFailure:
		return fmt.Sprintf("lookup failed after %d lookups: %v", r.Attempts, r.Err)
	case ResultMismatch:
		return fmt.Sprintf("mismatch on %s: expected %q, got %q", r.Mismatch.Field, r.Mismatch.Expected, r.Mismatch.Actual)
	default:
		return "unknown probe result"
	}
}

// Option configures a Probe.
type Option func(*Probe)

// WithTTL sets the TTL of the probe announcement.
func WithTTL(d time.Duration) Option {
	return func(p *Probe) {
		p.ttl = d
	}
}

// WithWindow sets how long the announced value may take to become visible.
func WithWindow(d time.Duration) Option {
	return func(p *Probe) {
		p.window = d
	}
}

// WithPollInterval sets the delay between lookups.
func WithPollInterval(d time.Duration) Option {
	return func(p *Probe) {
		p.poll = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Probe) {
		p.logger = logger
	}
}

// Probe checks announce-to-lookup propagation on an advertisement substrate.
type Probe struct {
	client advertise.Client
	ttl    time.Duration
	window time.Duration
	poll   time.Duration
	logger *slog.Logger

	newKey   func() (string, error)
	newValue func() (string, error)
}

// New creates a probe over client.
func New(client advertise.Client, opts ...Option) *Probe {
	p := &Probe{
		client:   client,
		ttl:      DefaultTTL,
		window:   DefaultWindow,
		poll:     DefaultPollInterval,
		logger:   slog.Default(),
		newKey:   randomKey,
		newValue: randomValue,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "probe")
	return p
}

// Run announces a random value and waits for it to become visible.
func (p *Probe) Run(ctx context.Context) Result {
	key, err := p.newKey()
	if err != nil {
		return Result{Kind: ResultAnnounceFailure, Err: fmt.Errorf("generate probe key: %w", err)}
	}
	value, err := p.newValue()
	if err != nil {
		return Result{Kind: ResultAnnounceFailure, Key: key, Err: fmt.Errorf("generate probe value: %w", err)}
	}

	res := Result{Key: key, Value: value}
	p.logger.Info("announcing probe value", "value", value, "ttl", p.ttl)

	start := time.Now()
	if err := p.client.Announce(ctx, key, value, p.ttl); err != nil {
		res.Kind = ResultAnnounceFailure
		res.Err = err
		p.logger.Error("probe announce failed", "error", err)
		return res
	}

	windowCtx, cancel := context.WithTimeout(ctx, p.window)
	defer cancel()

	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()

	var last []string
	for {
		res.Attempts++
		values, err := p.client.Lookup(windowCtx, key, 16)
		switch {
		case err != nil && ctx.Err() == nil && windowCtx.Err() != nil && res.Attempts > 1:
			// The window closed mid-lookup; report what was last seen.
			return p.notVisible(res, last)
		case err != nil && ctx.Err() != nil:
			return p.cancelled(res, ctx.Err())
		case err != nil:
			res.Kind = ResultLookupFailure
			res.Err = err
			p.logger.Error("probe lookup failed", "error", err, "attempts", res.Attempts)
			return res
		}

		last = values
		for _, v := range values {
			if v == value {
				res.Kind = ResultOK
				res.Latency = time.Since(start)
				p.logger.Info("probe value visible", "latency", res.Latency, "attempts", res.Attempts)
				return res
			}
		}
		if len(values) > 0 {
			// A fresh key must only ever hold the probe's own value.
			res.Kind = ResultMismatch
			res.Mismatch = &Mismatch{Field: "value", Expected: value, Actual: values[0]}
			p.logger.Error("probe key holds unexpected value", "actual", values[0])
			return res
		}

		select {
		case <-windowCtx.Done():
			if err := ctx.Err(); err != nil {
				return p.cancelled(res, err)
			}
			return p.notVisible(res, last)
		case <-ticker.C:
		}
	}
}

// cancelled reports a run cut short by its caller. It says nothing about
// whether the value would have become visible.
func (p *Probe) cancelled(res Result, err error) Result {
	res.Kind = ResultLookupFailure
	res.Err = err
	p.logger.Warn("probe cancelled before window closed", "error", err, "attempts", res.Attempts)
	return res
}

func (p *Probe) notVisible(res Result, last []string) Result {
	res.Kind = ResultMismatch
	res.Mismatch = &Mismatch{
		Field:    "members",
		Expected: "1 member",
		Actual:   fmt.Sprintf("%d members after %v", len(last), p.window),
	}
	p.logger.Error("probe value not visible within window", "window", p.window, "attempts", res.Attempts)
	return res
}

func randomKey() (string, error) {
	kp, err := nkeys.CreateUser()
	if err != nil {
		return "", err
	}
	defer kp.Wipe()
	return kp.PublicKey()
}

func randomValue() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "probe-" + hex.EncodeToString(buf), nil
}
