// Package cmd provides the CLI commands for go-census.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	census "github.com/ozanturksever/go-census"
	"github.com/ozanturksever/go-census/advertise"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	natsURL string
	verbose bool
	jsonOut bool
)

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string {
	return e.msg
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "go-census",
	Short: "Periodic node census over an advertisement substrate",
	Long: `go-census counts the nodes advertised under each tracked state and
checks the counts against a population policy:
  - Lookups over NATS JetStream KV or etcd (or both)
  - Fail-fast census: one failed lookup fails the whole run
  - Too many / too few alerts with a fixed precedence
  - Prometheus metrics via Pushgateway, outcomes published on NATS

Run it from cron; the exit code tells healthy (0), alert (1) and failure (2) apart.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			if ee.msg != "" {
				fmt.Fprintln(os.Stderr, ee.msg)
			}
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(2)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./census.yaml or /etc/go-census/census.yaml)")
	rootCmd.PersistentFlags().StringVarP(&natsURL, "nats", "n", "", "NATS server URL (overrides nats.servers)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Print results as JSON")

	// Bind flags to viper
	viper.BindPFlag("nats_url", rootCmd.PersistentFlags().Lookup("nats"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	// Environment variable bindings
	viper.BindEnv("nats_url", "NATS_URL")
	viper.BindEnv("config", "CENSUS_CONFIG")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile == "" {
		cfgFile = viper.GetString("config")
	}
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/go-census")
		viper.SetConfigName("census")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// newLogger builds the CLI logger: text on stderr, debug level with --verbose.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose || viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// getNATSURLs returns the NATS URLs from flag or env, split on commas.
func getNATSURLs() []string {
	raw := natsURL
	if raw == "" {
		raw = viper.GetString("nats_url")
	}
	if raw == "" {
		return nil
	}
	var urls []string
	for _, u := range strings.Split(raw, ",") {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

// loadFileConfig decodes the config file read by viper. A NATS URL given on
// the command line or in NATS_URL replaces the configured servers.
func loadFileConfig() (*census.FileConfig, error) {
	var fc census.FileConfig
	if viper.ConfigFileUsed() != "" {
		if err := viper.Unmarshal(&fc); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		fc.ResolveKeyFiles(filepath.Dir(viper.ConfigFileUsed()))
	}
	if urls := getNATSURLs(); len(urls) > 0 {
		fc.NATS.Servers = urls
	}

	fc.ApplyDefaults()
	if err := fc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &fc, nil
}

// substrate is a connected advertisement client plus the NATS backend, when
// one is configured, so outcomes can be published on the same connection.
type substrate struct {
	advertise.Client
	nats    *advertise.NATS
	closers []func()
}

func (s *substrate) Close() {
	for _, c := range s.closers {
		c()
	}
}

// connect builds the configured backends. With both NATS and etcd configured,
// lookups and announcements go to both through advertise.Multi.
func connect(ctx context.Context, fc *census.FileConfig, logger *slog.Logger) (*substrate, error) {
	s := &substrate{}
	var clients []advertise.Client

	if fc.NATS.IsConfigured() {
		n := advertise.NewNATS(fc.NATSConfig(logger))
		if err := n.Connect(ctx); err != nil {
			s.Close()
			return nil, err
		}
		s.nats = n
		s.closers = append(s.closers, n.Close)
		clients = append(clients, n)
	}

	if fc.Etcd.IsConfigured() {
		e := advertise.NewEtcd(fc.EtcdConfig(logger))
		if err := e.Connect(ctx); err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, func() { e.Close() })
		clients = append(clients, e)
	}

	switch len(clients) {
	case 0:
		return nil, fmt.Errorf("no advertisement substrate configured")
	case 1:
		s.Client = clients[0]
	default:
		s.Client = advertise.NewMulti(clients...)
	}
	return s, nil
}

// resolveKey maps a configured state name to its key. Anything else is
// parsed as a public key or seed.
func resolveKey(fc *census.FileConfig, arg string) (string, error) {
	for _, s := range fc.States {
		if s.Name != arg {
			continue
		}
		if s.KeyFile != "" {
			return census.LoadStateKey(s.KeyFile)
		}
		return census.ParseStateKey(s.Key)
	}
	return census.ParseStateKey(arg)
}
