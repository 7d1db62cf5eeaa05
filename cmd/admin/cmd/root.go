package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"TradeReview/internal/di"
	"TradeReview/pkg/config"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "tradereview-admin",
	Short: "Operator tooling for the trade review service",
	Long: `tradereview-admin runs one-shot operator actions against the same stores the
service uses: provisioning credits, forcing a recovery sweep and issuing account tokens.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "config file path")
	rootCmd.AddCommand(newCreditsCmd(), newSweepCmd(), newTokenCmd())
}

// withOps loads config and builds the operator graph for the duration of fn.
func withOps(fn func(*di.Ops) error) error {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return err
	}
	if err := sharedStore(cfg); err != nil {
		return err
	}
	ops, cleanup, err := di.InitializeOps(cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(ops)
}

// sharedStore rejects configs whose state would live only inside this process.
// A memory backend would let a grant or sweep report success and then vanish on exit.
func sharedStore(cfg *config.Config) error {
	if cfg.Storage.Backend != "postgres" {
		return fmt.Errorf("admin commands need storage.backend postgres, got %q", cfg.Storage.Backend)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
