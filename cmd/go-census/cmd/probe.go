package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ozanturksever/go-census/probe"
	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check that announcements become visible to lookups",
	Long: `Announce a random value under a throwaway key and wait for it to show up
in lookups. Exits non-zero when the substrate rejects the announcement, a lookup
fails, or the value does not become visible within the window.`,
	Args: cobra.NoArgs,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)

	probeCmd.Flags().Duration("ttl", probe.DefaultTTL, "TTL of the probe announcement")
	probeCmd.Flags().Duration("window", probe.DefaultWindow, "How long the value may take to become visible")
	probeCmd.Flags().Duration("poll", probe.DefaultPollInterval, "Delay between lookups")
}

func runProbe(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	fc, err := loadFileConfig()
	if err != nil {
		return err
	}

	ttl, _ := cmd.Flags().GetDuration("ttl")
	window, _ := cmd.Flags().GetDuration("window")
	poll, _ := cmd.Flags().GetDuration("poll")

	ctx, cancel := context.WithTimeout(context.Background(), window+30*time.Second)
	defer cancel()

	sub, err := connect(ctx, fc, logger)
	if err != nil {
		return &exitError{code: 2, msg: fmt.Sprintf("Error: %v", err)}
	}
	defer sub.Close()

	res := probe.New(sub,
		probe.WithTTL(ttl),
		probe.WithWindow(window),
		probe.WithPollInterval(poll),
		probe.WithLogger(logger),
	).Run(ctx)

	if jsonOut {
		out := struct {
			Result   string `json:"result"`
			Key      string `json:"key,omitempty"`
			Value    string `json:"value,omitempty"`
			Detail   string `json:"detail"`
			Attempts int    `json:"attempts"`
			Latency  string `json:"latency,omitempty"`
		}{
			Result:   res.Kind.String(),
			Key:      res.Key,
			Value:    res.Value,
			Detail:   res.String(),
			Attempts: res.Attempts,
		}
		if res.OK() {
			out.Latency = res.Latency.String()
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return err
		}
	} else {
		fmt.Println(res.String())
	}

	if !res.OK() {
		return &exitError{code: 1}
	}
	return nil
}
