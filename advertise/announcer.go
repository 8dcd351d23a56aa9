package advertise

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// AnnouncerOption configures an Announcer.
type AnnouncerOption func(*Announcer)

// WithInterval sets how often the value is re-announced. Default: ttl/3.
func WithInterval(d time.Duration) AnnouncerOption {
	return func(a *Announcer) {
		a.interval = d
	}
}

// WithAnnounceTimeout bounds each announce call. Default: the interval.
func WithAnnounceTimeout(d time.Duration) AnnouncerOption {
	return func(a *Announcer) {
		a.timeout = d
	}
}

// WithAnnouncerLogger sets the logger.
func WithAnnouncerLogger(logger *slog.Logger) AnnouncerOption {
	return func(a *Announcer) {
		a.logger = logger
	}
}

// Announcer keeps a value advertised by re-announcing it before its TTL
// runs out. A failed announce is logged and retried on the next tick.
type Announcer struct {
	client   Client
	key      string
	value    string
	ttl      time.Duration
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	successes atomic.Int64
	failures  atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewAnnouncer creates an announcer for (key, value).
func NewAnnouncer(client Client, key, value string, ttl time.Duration, opts ...AnnouncerOption) *Announcer {
	a := &Announcer{
		client: client,
		key:    key,
		value:  value,
		ttl:    ttl,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.interval <= 0 {
		a.interval = ttl / 3
	}
	if a.interval <= 0 {
		a.interval = time.Second
	}
	if a.timeout <= 0 {
		a.timeout = a.interval
	}
	a.logger = a.logger.With("component", "announcer", "key", shortKey(key), "value", value)
	return a
}

// Run announces immediately and then on every interval until ctx is cancelled.
func (a *Announcer) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.announce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.announce(ctx)
		}
	}
}

// Start runs the announcer in the background.
func (a *Announcer) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	a.cancel = cancel
	a.done = done

	go func() {
		defer close(done)
		a.Run(runCtx)
	}()
}

// Stop stops a background announcer and waits for it to exit. The last
// announcement stays visible until its TTL expires.
func (a *Announcer) Stop() {
	a.mu.Lock()
	cancel := a.cancel
	done := a.done
	a.cancel = nil
	a.done = nil
	a.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Successes returns the number of accepted announcements.
func (a *Announcer) Successes() int64 {
	return a.successes.Load()
}

// Failures returns the number of rejected announcements.
func (a *Announcer) Failures() int64 {
	return a.failures.Load()
}

func (a *Announcer) announce(ctx context.Context) {
	annCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if err := a.client.Announce(annCtx, a.key, a.value, a.ttl); err != nil {
		a.failures.Add(1)
		if ctx.Err() == nil {
			a.logger.Warn("announce failed", "error", err)
		}
		return
	}
	a.successes.Add(1)
	a.logger.Debug("announce refreshed", "ttl", a.ttl)
}
