package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/nfe-extract/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "nfe-extract",
	Short: "Extract structured data from Brazilian invoices",
	Long:  "Reads NF-e XML, DANFE PDFs, scanned images and plain text, runs a cascade of extraction strategies and reports the most complete invoice record.",
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
