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
	"github.com/ozanturksever/go-census/advertise"
	"github.com/spf13/cobra"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup <state|key>",
	Short: "List the nodes advertised under a state",
	Long: `Look up the values advertised under a configured state name or a raw
public key and print them, one per line.

Example:
  go-census lookup twopercent --config census.yaml
  go-census lookup UDXU4RCSJNZOIQHZNWXHXORDPRTGNJAHAHFRGZNEEJCPQTT2M7NLCNF4 --nats nats://localhost:4222`,
	Args: cobra.ExactArgs(1),
	RunE: runLookup,
}

var announceCmd = &cobra.Command{
	Use:   "announce <state|key> <value>",
	Short: "Advertise a value under a state",
	Long: `Announce a value under a configured state name or a raw public key.

With --every the value is re-announced on that interval until interrupted,
which is how a node keeps itself counted.

Example:
  go-census announce twopercent 203.0.113.7:1224 --ttl 1h
  go-census announce twopercent 203.0.113.7:1224 --ttl 3m --every 1m`,
	Args: cobra.ExactArgs(2),
	RunE: runAnnounce,
}

func init() {
	rootCmd.AddCommand(lookupCmd)
	rootCmd.AddCommand(announceCmd)

	lookupCmd.Flags().Int("max", census.DefaultMaxResults, "Maximum number of values to fetch")
	lookupCmd.Flags().Duration("timeout", census.DefaultLookupTimeout, "Lookup timeout")

	announceCmd.Flags().Duration("ttl", time.Hour, "How long the announcement stays visible")
	announceCmd.Flags().Duration("every", 0, "Re-announce on this interval until interrupted")
}

func runLookup(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	fc, err := loadFileConfig()
	if err != nil {
		return err
	}
	key, err := resolveKey(fc, args[0])
	if err != nil {
		return err
	}

	maxResults, _ := cmd.Flags().GetInt("max")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	sub, err := connect(ctx, fc, logger)
	if err != nil {
		return err
	}
	defer sub.Close()

	engine := census.NewEngine(sub,
		census.WithMaxResults(maxResults),
		census.WithLookupTimeout(timeout),
		census.WithLogger(logger),
	)
	res, err := engine.Lookup(ctx, census.TrackedState{Name: args[0], Key: key})
	if err != nil {
		return err
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			State     string   `json:"state"`
			Key       string   `json:"key"`
			Count     int      `json:"count"`
			Truncated bool     `json:"truncated,omitempty"`
			Members   []string `json:"members"`
		}{args[0], key, len(res.Members), res.Truncated, res.Members})
	}

	for _, m := range res.Members {
		fmt.Println(m)
	}
	fmt.Fprintf(os.Stderr, "%s: %d nodes", args[0], len(res.Members))
	if res.Truncated {
		fmt.Fprint(os.Stderr, " (truncated)")
	}
	fmt.Fprintln(os.Stderr)
	return nil
}

func runAnnounce(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	fc, err := loadFileConfig()
	if err != nil {
		return err
	}
	key, err := resolveKey(fc, args[0])
	if err != nil {
		return err
	}
	value := args[1]

	ttl, _ := cmd.Flags().GetDuration("ttl")
	every, _ := cmd.Flags().GetDuration("every")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sub, err := connect(ctx, fc, logger)
	if err != nil {
		return err
	}
	defer sub.Close()

	if every <= 0 {
		actx, acancel := context.WithTimeout(ctx, census.DefaultLookupTimeout)
		defer acancel()
		if err := sub.Announce(actx, key, value, ttl); err != nil {
			return err
		}
		fmt.Printf("Announced %s under %s for %v\n", value, args[0], ttl)
		return nil
	}

	fmt.Printf("Announcing %s under %s every %v (ttl %v). Press Ctrl+C to stop.\n", value, args[0], every, ttl)
	announcer := advertise.NewAnnouncer(sub, key, value, ttl,
		advertise.WithInterval(every),
		advertise.WithAnnouncerLogger(logger),
	)
	announcer.Run(ctx)
	fmt.Printf("Stopped after %d announcements (%d failed).\n", announcer.Successes(), announcer.Failures())
	return nil
}
