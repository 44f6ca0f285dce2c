package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/laborlens/archetype-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "archetype",
	Short: "Evidence-weighted employment archetype inference",
	Long:  "Allocates metro-level OEWS employment totals across named employers via Dirichlet Monte Carlo, estimates salary posteriors with Bayesian shrinkage, and reconciles the synthetic tier against known employment.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
