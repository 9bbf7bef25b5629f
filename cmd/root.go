package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/acs-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "acs-cli",
	Short: "ACS survey tabulation pipeline",
	Long:  "Fetches ACS estimates per geography, pivots them into wide tables, computes ratio metrics, and summarizes ratio categories across years or counties.",
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
