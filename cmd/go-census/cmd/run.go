package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	census "github.com/ozanturksever/go-census"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one census and evaluate it",
	Long: `Look up every tracked state, count its advertised nodes and check the
counts against the population policy.

The outcome is printed, optionally published on NATS and pushed to a
Prometheus Pushgateway. Exit code: 0 healthy, 1 alert, 2 failure.

Example:
  go-census run --config /etc/go-census/census.yaml
  go-census run --config census.json --notify --json`,
	RunE: runCensus,
}

func init() {
	rootCmd.AddCommand(runCmd)

	// Run-specific flags
	runCmd.Flags().Bool("notify", false, "Publish the outcome on NATS")
	runCmd.Flags().String("push-gateway", "", "Prometheus Pushgateway URL (overrides metrics.pushGateway)")
	runCmd.Flags().Duration("timeout", 5*time.Minute, "Overall deadline for the run")

	// Bind to viper
	viper.BindPFlag("notify", runCmd.Flags().Lookup("notify"))
	viper.BindPFlag("push_gateway", runCmd.Flags().Lookup("push-gateway"))
}

func runCensus(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	fc, err := loadFileConfig()
	if err != nil {
		return err
	}
	cfg, err := fc.ToConfig(logger)
	if err != nil {
		return err
	}
	cfg.Metrics = census.NewMetrics()

	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, timeout)
	defer cancelTimeout()

	sub, err := connect(ctx, fc, logger)
	if err != nil {
		return &exitError{code: 2, msg: fmt.Sprintf("Error: %v", err)}
	}
	defer sub.Close()

	cycle, err := census.NewCycle(cfg, sub)
	if err != nil {
		return err
	}

	out := cycle.Run(ctx)
	if err := printOutcome(out); err != nil {
		return err
	}

	if viper.GetBool("notify") {
		if sub.nats == nil {
			logger.Warn("notify requested but NATS is not configured, skipping")
		} else if err := census.NewNATSNotifier(sub.nats.Conn(), fc.Notify.Subject).Notify(ctx, out); err != nil {
			logger.Error("failed to publish outcome", "error", err)
		}
	}

	gateway := viper.GetString("push_gateway")
	if gateway == "" {
		gateway = fc.Metrics.PushGateway
	}
	if gateway != "" {
		if err := cfg.Metrics.Push(ctx, gateway, fc.Metrics.Job); err != nil {
			logger.Error("failed to push metrics", "gateway", gateway, "error", err)
		}
	}

	switch out.Kind {
	case census.OutcomeHealthy:
		return nil
	case census.OutcomeAlert:
		return &exitError{code: 1}
	default:
		return &exitError{code: 2}
	}
}

func printOutcome(out census.Outcome) error {
	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	fmt.Println(out.Subject())
	fmt.Println()
	fmt.Println(out.Body())
	return nil
}
