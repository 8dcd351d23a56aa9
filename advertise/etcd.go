package advertise

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const (
	DefaultEtcdPrefix      = "/advertise"
	DefaultEtcdDialTimeout = 5 * time.Second
)

// EtcdConfig configures the etcd advertisement backend.
type EtcdConfig struct {
	Endpoints   []string
	Username    string
	Password    string
	DialTimeout time.Duration

	// Prefix is the root path for announcements, e.g. "/advertise".
	Prefix string

	Logger *slog.Logger
}

func (c *EtcdConfig) Validate() error {
	if len(c.Endpoints) == 0 {
		return fmt.Errorf("at least one etcd endpoint is required")
	}
	if c.Prefix != "" && !strings.HasPrefix(c.Prefix, "/") {
		return fmt.Errorf("etcd prefix must start with /")
	}
	return nil
}

func (c *EtcdConfig) applyDefaults() {
	if c.Prefix == "" {
		c.Prefix = DefaultEtcdPrefix
	}
	c.Prefix = strings.TrimSuffix(c.Prefix, "/")
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultEtcdDialTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Etcd is an advertisement client backed by etcd. Each announcement is a key
// attached to its own lease, so etcd removes it when the TTL runs out.
type Etcd struct {
	cfg    EtcdConfig
	logger *slog.Logger

	mu     sync.RWMutex
	client *clientv3.Client
}

// NewEtcd creates an etcd advertisement client. Call Connect before use.
func NewEtcd(cfg EtcdConfig) *Etcd {
	cfg.applyDefaults()
	return &Etcd{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "advertise", "backend", "etcd", "prefix", cfg.Prefix),
	}
}

// Connect creates the etcd client and checks that the cluster answers.
func (e *Etcd) Connect(ctx context.Context) error {
	if err := e.cfg.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.client != nil {
		return nil
	}

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   e.cfg.Endpoints,
		DialTimeout: e.cfg.DialTimeout,
		Username:    e.cfg.Username,
		Password:    e.cfg.Password,
		Context:     ctx,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to etcd: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, e.cfg.DialTimeout)
	defer cancel()
	if _, err := cli.Get(pingCtx, e.cfg.Prefix, clientv3.WithCountOnly()); err != nil {
		cli.Close()
		return fmt.Errorf("etcd not reachable at %v: %w", e.cfg.Endpoints, err)
	}

	e.client = cli
	e.logger.Info("advertise client connected", "endpoints", e.cfg.Endpoints)
	return nil
}

// Close closes the etcd client.
func (e *Etcd) Close() error {
	e.mu.Lock()
	cli := e.client
	e.client = nil
	e.mu.Unlock()

	if cli == nil {
		return nil
	}
	return cli.Close()
}

func (e *Etcd) conn() (*clientv3.Client, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.client == nil {
		return nil, ErrNotConnected
	}
	return e.client, nil
}

func (e *Etcd) keyPrefix(key string) string {
	return e.cfg.Prefix + "/" + keyToken(key) + "/"
}

// Announce puts value under key with a lease of ttl, rounded up to whole seconds.
func (e *Etcd) Announce(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := validateAnnounce(key, value, ttl, 0); err != nil {
		return &AnnounceFailure{Key: key, Cause: err}
	}
	cli, err := e.conn()
	if err != nil {
		return &AnnounceFailure{Key: key, Cause: err}
	}

	lease, err := cli.Grant(ctx, leaseSeconds(ttl))
	if err != nil {
		return &AnnounceFailure{Key: key, Cause: fmt.Errorf("failed to grant lease: %w", err)}
	}

	path := e.keyPrefix(key) + valueToken(value)
	if _, err := cli.Put(ctx, path, value, clientv3.WithLease(lease.ID)); err != nil {
		e.revoke(ctx, cli, lease.ID)
		return &AnnounceFailure{Key: key, Cause: err}
	}

	e.logger.Debug("announced", "key", shortKey(key), "value", value, "lease", lease.ID, "ttl", ttl)
	return nil
}

// Lookup returns up to maxResults values announced under key.
func (e *Etcd) Lookup(ctx context.Context, key string, maxResults int) ([]string, error) {
	if err := validateLookup(key, maxResults); err != nil {
		return nil, &LookupFailure{Key: key, Cause: err}
	}
	cli, err := e.conn()
	if err != nil {
		return nil, &LookupFailure{Key: key, Cause: err}
	}

	resp, err := cli.Get(ctx, e.keyPrefix(key), clientv3.WithPrefix(), clientv3.WithLimit(int64(maxResults)))
	if err != nil {
		return nil, &LookupFailure{Key: key, Cause: err}
	}

	values := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		if len(kv.Value) == 0 {
			return nil, &LookupFailure{Key: key, Cause: fmt.Errorf("%w at %s", ErrMalformedRecord, kv.Key)}
		}
		values = append(values, string(kv.Value))
	}

	// More is only set when WithLimit cut the result at maxResults, so the
	// engine's len(values) >= maxResults check already covers it.
	e.logger.Debug("lookup complete", "key", shortKey(key), "values", len(values), "more", resp.More)
	return values, nil
}

// revoke drops a lease whose key was never written. It runs even when ctx is
// already cancelled, since that is often why the write failed.
func (e *Etcd) revoke(ctx context.Context, cli *clientv3.Client, id clientv3.LeaseID) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.DialTimeout)
	defer cancel()
	if _, err := cli.Revoke(rctx, id); err != nil {
		e.logger.Warn("failed to revoke lease", "lease", id, "error", err)
	}
}

func leaseSeconds(ttl time.Duration) int64 {
	secs := int64(math.Ceil(ttl.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}
