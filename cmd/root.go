package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gravi-labs/retail-verify/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "retail-verify",
	Short: "Retail store verification pipeline",
	Long:  "Resolves shared map listings to a single place, analyzes storefront photos and reviews with vision models, and scores listing authenticity.",
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
