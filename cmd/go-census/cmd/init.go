package cmd

import (
	"fmt"
	"os"

	census "github.com/ozanturksever/go-census"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config for the historical node states",
	Long: `Write a JSON config tracking twopercent, canonical, acceptdonation and
movingto_twopercent with the historical population policy. Each state reads
its key from <keys-dir>/<state>.publickey.

Example:
  go-census init --output /etc/go-census/census.json --keys-dir /etc/go-census/keys`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().StringP("output", "o", "census.json", "Where to write the config")
	initCmd.Flags().String("keys-dir", "keys", "Directory holding <state>.publickey files")
	initCmd.Flags().Bool("force", false, "Overwrite an existing config")
}

func runInit(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")
	keysDir, _ := cmd.Flags().GetString("keys-dir")
	force, _ := cmd.Flags().GetBool("force")

	if _, err := os.Stat(output); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", output)
	}

	servers := getNATSURLs()
	if len(servers) == 0 {
		servers = []string{"nats://localhost:4222"}
	}

	cfg := census.NewDefaultFileConfig(servers, keysDir)
	if err := census.WriteConfigToFile(cfg, output); err != nil {
		return err
	}

	fmt.Printf("Wrote %s\n", output)
	return nil
}
