package advertise

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	DefaultBucket        = "advertise"
	DefaultMaxTTL        = time.Hour
	DefaultReconnectWait = 2 * time.Second
	DefaultMaxReconnects = -1 // Unlimited
)

// NATSConfig configures the JetStream KV advertisement backend.
type NATSConfig struct {
	NATSURLs        []string
	NATSCredentials string

	// Bucket is the KV bucket holding announcements.
	Bucket string
	// MaxTTL is the longest TTL an announcement may carry. It is also the
	// bucket TTL, so abandoned entries are purged by the server.
	MaxTTL time.Duration
	// Replicas is the bucket replication factor (default 1).
	Replicas int

	ReconnectWait time.Duration
	MaxReconnects int

	Logger *slog.Logger
}

func (c *NATSConfig) Validate() error {
	if len(c.NATSURLs) == 0 {
		return fmt.Errorf("at least one NATS URL is required")
	}
	if c.MaxTTL < 0 {
		return fmt.Errorf("MaxTTL must not be negative")
	}
	if c.Replicas < 0 {
		return fmt.Errorf("Replicas must not be negative")
	}
	return nil
}

func (c *NATSConfig) applyDefaults() {
	if c.Bucket == "" {
		c.Bucket = DefaultBucket
	}
	if c.MaxTTL == 0 {
		c.MaxTTL = DefaultMaxTTL
	}
	if c.Replicas == 0 {
		c.Replicas = 1
	}
	if c.ReconnectWait == 0 {
		c.ReconnectWait = DefaultReconnectWait
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = DefaultMaxReconnects
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// record is the JSON document stored for each announcement.
type record struct {
	Value       string    `json:"value"`
	AnnouncedAt time.Time `json:"announcedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// NATS is an advertisement client backed by a NATS JetStream KV bucket.
//
// An announcement for (key, value) lives at "<keyToken>.<valueToken>", so a
// lookup is a watch over "<keyToken>.*" that reads the initial snapshot and
// stops at the end-of-snapshot marker.
type NATS struct {
	cfg    NATSConfig
	logger *slog.Logger

	mu sync.RWMutex
	nc *nats.Conn
	kv jetstream.KeyValue

	now func() time.Time
}

// NewNATS creates a NATS advertisement client. Call Connect before use.
func NewNATS(cfg NATSConfig) *NATS {
	cfg.applyDefaults()
	return &NATS{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "advertise", "backend", "nats", "bucket", cfg.Bucket),
		now:    time.Now,
	}
}

// Connect dials NATS and opens (or creates) the announcement bucket.
func (n *NATS) Connect(ctx context.Context) error {
	if err := n.cfg.Validate(); err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.nc != nil {
		return nil
	}

	opts := []nats.Option{
		nats.Name("go-census-advertise"),
		nats.MaxReconnects(n.cfg.MaxReconnects),
		nats.ReconnectWait(n.cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				n.logger.Warn("disconnected from NATS", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			n.logger.Info("reconnected to NATS", "url", nc.ConnectedUrl())
		}),
	}
	if n.cfg.NATSCredentials != "" {
		opts = append(opts, nats.UserCredentials(n.cfg.NATSCredentials))
	}

	nc, err := nats.Connect(strings.Join(n.cfg.NATSURLs, ","), opts...)
	if err != nil {
		return fmt.Errorf("connect NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      n.cfg.Bucket,
		Description: "Advertised values keyed by state public key",
		TTL:         n.cfg.MaxTTL,
		History:     1,
		Replicas:    n.cfg.Replicas,
	})
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to create advertise KV bucket: %w", err)
	}

	n.nc = nc
	n.kv = kv
	n.logger.Info("advertise client connected", "url", nc.ConnectedUrl())
	return nil
}

// Conn returns the underlying connection, or nil before Connect.
func (n *NATS) Conn() *nats.Conn {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.nc
}

// Close closes the NATS connection.
func (n *NATS) Close() {
	n.mu.Lock()
	nc := n.nc
	n.nc = nil
	n.kv = nil
	n.mu.Unlock()

	if nc != nil {
		nc.Close()
	}
}

func (n *NATS) bucket() (jetstream.KeyValue, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.kv == nil {
		return nil, ErrNotConnected
	}
	return n.kv, nil
}

// Announce stores value under key until ttl elapses.
func (n *NATS) Announce(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := validateAnnounce(key, value, ttl, n.cfg.MaxTTL); err != nil {
		return &AnnounceFailure{Key: key, Cause: err}
	}
	kv, err := n.bucket()
	if err != nil {
		return &AnnounceFailure{Key: key, Cause: err}
	}

	now := n.now()
	data, err := json.Marshal(record{
		Value:       value,
		AnnouncedAt: now,
		ExpiresAt:   now.Add(ttl),
	})
	if err != nil {
		return &AnnounceFailure{Key: key, Cause: err}
	}

	if _, err := kv.Put(ctx, keyToken(key)+"."+valueToken(value), data); err != nil {
		return &AnnounceFailure{Key: key, Cause: err}
	}

	n.logger.Debug("announced", "key", shortKey(key), "value", value, "ttl", ttl)
	return nil
}

// Lookup returns up to maxResults unexpired values announced under key.
func (n *NATS) Lookup(ctx context.Context, key string, maxResults int) ([]string, error) {
	if err := validateLookup(key, maxResults); err != nil {
		return nil, &LookupFailure{Key: key, Cause: err}
	}
	kv, err := n.bucket()
	if err != nil {
		return nil, &LookupFailure{Key: key, Cause: err}
	}

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	watcher, err := kv.Watch(watchCtx, keyToken(key)+".*", jetstream.IgnoreDeletes())
	if err != nil {
		return nil, &LookupFailure{Key: key, Cause: err}
	}
	defer watcher.Stop()

	now := n.now()
	values := make([]string, 0)
	for {
		select {
		case <-ctx.Done():
			return nil, &LookupFailure{Key: key, Cause: ctx.Err()}
		case entry, ok := <-watcher.Updates():
			if !ok {
				return nil, &LookupFailure{Key: key, Cause: fmt.Errorf("watcher closed before snapshot completed")}
			}
			// A nil entry marks the end of the initial snapshot.
			if entry == nil {
				n.logger.Debug("lookup complete", "key", shortKey(key), "values", len(values))
				return values, nil
			}
			if entry.Operation() != jetstream.KeyValuePut {
				continue
			}

			var rec record
			if err := json.Unmarshal(entry.Value(), &rec); err != nil || rec.Value == "" {
				return nil, &LookupFailure{Key: key, Cause: fmt.Errorf("%w at %s", ErrMalformedRecord, entry.Key())}
			}
			if !rec.ExpiresAt.After(now) {
				continue
			}

			values = append(values, rec.Value)
			if len(values) >= maxResults {
				n.logger.Debug("lookup capped", "key", shortKey(key), "maxResults", maxResults)
				return values, nil
			}
		}
	}
}
