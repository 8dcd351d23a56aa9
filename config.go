package census

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ozanturksever/go-census/advertise"
)

// Config configures a census cycle.
type Config struct {
	// States are looked up in this order.
	States []TrackedState
	Policy Policy
	Mode   Mode

	// Lookup configuration
	LookupTimeout time.Duration
	MaxResults    int
	Parallel      bool

	// Metrics, when set, records lookups and outcomes.
	Metrics *Metrics

	Logger *slog.Logger
}

func (c *Config) Validate() error {
	if err := validateStates(c.States); err != nil {
		return err
	}
	if err := c.Policy.Validate(); err != nil {
		return err
	}

	tracked := make(map[string]struct{}, len(c.States))
	for _, s := range c.States {
		tracked[s.Name] = struct{}{}
	}
	for name := range c.Policy.Bounds {
		if _, ok := tracked[name]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownPolicyState, name)
		}
	}

	if c.LookupTimeout < 0 {
		return fmt.Errorf("LookupTimeout must not be negative")
	}
	if c.MaxResults < 0 {
		return fmt.Errorf("MaxResults must not be negative")
	}
	if c.Mode != ModeAll && c.Mode != ModeLegacy {
		return fmt.Errorf("%w: %d", ErrUnknownMode, c.Mode)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.LookupTimeout == 0 {
		c.LookupTimeout = DefaultLookupTimeout
	}
	if c.MaxResults == 0 {
		c.MaxResults = DefaultMaxResults
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// FileConfig represents the census configuration loaded from a file.
// This is the user-facing configuration format that gets converted to Config
// and to the advertisement backend configs.
type FileConfig struct {
	NATS    NATSFileConfig    `json:"nats,omitempty" mapstructure:"nats"`
	Etcd    EtcdFileConfig    `json:"etcd,omitempty" mapstructure:"etcd"`
	States  []StateFileConfig `json:"states" mapstructure:"states"`
	Policy  Policy            `json:"policy" mapstructure:"policy"`
	Census  CensusFileConfig  `json:"census,omitempty" mapstructure:"census"`
	Metrics MetricsFileConfig `json:"metrics,omitempty" mapstructure:"metrics"`
	Notify  NotifyFileConfig  `json:"notify,omitempty" mapstructure:"notify"`
}

// NATSFileConfig contains NATS advertisement substrate settings.
type NATSFileConfig struct {
	Servers       []string `json:"servers,omitempty" mapstructure:"servers"`
	Credentials   string   `json:"credentials,omitempty" mapstructure:"credentials"`
	Bucket        string   `json:"bucket,omitempty" mapstructure:"bucket"`
	MaxTTLMs      int64    `json:"maxTtlMs,omitempty" mapstructure:"maxTtlMs"`
	ReconnectWait int64    `json:"reconnectWaitMs,omitempty" mapstructure:"reconnectWaitMs"`
	MaxReconnects int      `json:"maxReconnects,omitempty" mapstructure:"maxReconnects"`
}

// IsConfigured returns true if NATS servers are configured.
func (n NATSFileConfig) IsConfigured() bool {
	return len(n.Servers) > 0
}

// EtcdFileConfig contains etcd advertisement substrate settings.
type EtcdFileConfig struct {
	Endpoints     []string `json:"endpoints,omitempty" mapstructure:"endpoints"`
	Username      string   `json:"username,omitempty" mapstructure:"username"`
	Password      string   `json:"password,omitempty" mapstructure:"password"`
	Prefix        string   `json:"prefix,omitempty" mapstructure:"prefix"`
	DialTimeoutMs int64    `json:"dialTimeoutMs,omitempty" mapstructure:"dialTimeoutMs"`
}

// IsConfigured returns true if etcd endpoints are configured.
func (e EtcdFileConfig) IsConfigured() bool {
	return len(e.Endpoints) > 0
}

// StateFileConfig names a tracked state and where its key comes from: inline,
// or a file holding the public key or a seed.
type StateFileConfig struct {
	Name    string `json:"name" mapstructure:"name"`
	Key     string `json:"key,omitempty" mapstructure:"key"`
	KeyFile string `json:"keyFile,omitempty" mapstructure:"keyFile"`
}

// CensusFileConfig contains lookup and evaluation settings.
type CensusFileConfig struct {
	LookupTimeoutMs int64  `json:"lookupTimeoutMs,omitempty" mapstructure:"lookupTimeoutMs"`
	MaxResults      int    `json:"maxResults,omitempty" mapstructure:"maxResults"`
	Parallel        bool   `json:"parallel,omitempty" mapstructure:"parallel"`
	Mode            string `json:"mode,omitempty" mapstructure:"mode"`
}

// MetricsFileConfig contains Prometheus Pushgateway settings.
type MetricsFileConfig struct {
	PushGateway string `json:"pushGateway,omitempty" mapstructure:"pushGateway"`
	Job         string `json:"job,omitempty" mapstructure:"job"`
}

// NotifyFileConfig contains outcome notification settings.
type NotifyFileConfig struct {
	Subject string `json:"subject,omitempty" mapstructure:"subject"`
}

// LoadConfigFromFile loads configuration from a JSON file. Relative key file
// paths are resolved against the directory of the config file.
func LoadConfigFromFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ResolveKeyFiles(filepath.Dir(path))
	return &cfg, nil
}

// WriteConfigToFile writes the configuration to a JSON file.
func WriteConfigToFile(cfg *FileConfig, path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ResolveKeyFiles makes relative key file paths relative to dir.
func (c *FileConfig) ResolveKeyFiles(dir string) {
	for i, s := range c.States {
		if s.KeyFile != "" && !filepath.IsAbs(s.KeyFile) {
			c.States[i].KeyFile = filepath.Join(dir, s.KeyFile)
		}
	}
}

// Validate validates the configuration.
func (c *FileConfig) Validate() error {
	if !c.NATS.IsConfigured() && !c.Etcd.IsConfigured() {
		return fmt.Errorf("nats.servers or etcd.endpoints is required")
	}
	for i, s := range c.States {
		if s.Name == "" {
			return fmt.Errorf("states[%d].name is required", i)
		}
		if s.Key == "" && s.KeyFile == "" {
			return fmt.Errorf("states[%d] (%s): key or keyFile is required", i, s.Name)
		}
		if s.Key != "" && s.KeyFile != "" {
			return fmt.Errorf("states[%d] (%s): key and keyFile are mutually exclusive", i, s.Name)
		}
	}
	if c.Census.LookupTimeoutMs < 0 {
		return fmt.Errorf("census.lookupTimeoutMs must not be negative")
	}
	if c.Census.MaxResults < 0 {
		return fmt.Errorf("census.maxResults must not be negative")
	}
	if _, err := ParseMode(c.Census.Mode); err != nil {
		return fmt.Errorf("census.mode: %w", err)
	}
	if err := c.Policy.Validate(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	return nil
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *FileConfig) ApplyDefaults() {
	if c.Census.LookupTimeoutMs == 0 {
		c.Census.LookupTimeoutMs = int64(DefaultLookupTimeout / time.Millisecond)
	}
	if c.Census.MaxResults == 0 {
		c.Census.MaxResults = DefaultMaxResults
	}
	if c.Census.Mode == "" {
		c.Census.Mode = ModeAll.String()
	}
	if c.NATS.IsConfigured() {
		if c.NATS.Bucket == "" {
			c.NATS.Bucket = advertise.DefaultBucket
		}
		if c.NATS.ReconnectWait == 0 {
			c.NATS.ReconnectWait = int64(advertise.DefaultReconnectWait / time.Millisecond)
		}
		if c.NATS.MaxReconnects == 0 {
			c.NATS.MaxReconnects = advertise.DefaultMaxReconnects
		}
	}
	if c.Etcd.IsConfigured() && c.Etcd.Prefix == "" {
		c.Etcd.Prefix = advertise.DefaultEtcdPrefix
	}
	if c.Metrics.Job == "" {
		c.Metrics.Job = "census"
	}
	if c.Notify.Subject == "" {
		c.Notify.Subject = DefaultNotifySubject
	}
}

// ToConfig converts FileConfig to the Config used by Cycle, loading key files.
func (c *FileConfig) ToConfig(logger *slog.Logger) (Config, error) {
	mode, err := ParseMode(c.Census.Mode)
	if err != nil {
		return Config{}, err
	}

	states := make([]TrackedState, 0, len(c.States))
	for _, s := range c.States {
		var key string
		if s.KeyFile != "" {
			key, err = LoadStateKey(s.KeyFile)
		} else {
			key, err = ParseStateKey(s.Key)
		}
		if err != nil {
			return Config{}, fmt.Errorf("state %s: %w", s.Name, err)
		}
		states = append(states, TrackedState{Name: s.Name, Key: key})
	}

	return Config{
		States:        states,
		Policy:        c.Policy,
		Mode:          mode,
		LookupTimeout: time.Duration(c.Census.LookupTimeoutMs) * time.Millisecond,
		MaxResults:    c.Census.MaxResults,
		Parallel:      c.Census.Parallel,
		Logger:        logger,
	}, nil
}

// NATSConfig converts the NATS section to an advertise.NATSConfig.
func (c *FileConfig) NATSConfig(logger *slog.Logger) advertise.NATSConfig {
	return advertise.NATSConfig{
		NATSURLs:        c.NATS.Servers,
		NATSCredentials: c.NATS.Credentials,
		Bucket:          c.NATS.Bucket,
		MaxTTL:          time.Duration(c.NATS.MaxTTLMs) * time.Millisecond,
		ReconnectWait:   time.Duration(c.NATS.ReconnectWait) * time.Millisecond,
		MaxReconnects:   c.NATS.MaxReconnects,
		Logger:          logger,
	}
}

// EtcdConfig converts the etcd section to an advertise.EtcdConfig.
func (c *FileConfig) EtcdConfig(logger *slog.Logger) advertise.EtcdConfig {
	return advertise.EtcdConfig{
		Endpoints:   c.Etcd.Endpoints,
		Username:    c.Etcd.Username,
		Password:    c.Etcd.Password,
		Prefix:      c.Etcd.Prefix,
		DialTimeout: time.Duration(c.Etcd.DialTimeoutMs) * time.Millisecond,
		Logger:      logger,
	}
}

// NewDefaultFileConfig creates a FileConfig for the historical node states,
// reading their keys from <keysDir>/<state>.publickey.
func NewDefaultFileConfig(natsServers []string, keysDir string) *FileConfig {
	cfg := &FileConfig{
		NATS:   NATSFileConfig{Servers: natsServers},
		Policy: HistoricalPolicy(),
	}
	for _, name := range []string{"twopercent", "canonical", "acceptdonation", "movingto_twopercent"} {
		cfg.States = append(cfg.States, StateFileConfig{
			Name:    name,
			KeyFile: filepath.Join(keysDir, name+".publickey"),
		})
	}
	cfg.ApplyDefaults()
	return cfg
}
