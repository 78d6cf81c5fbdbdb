package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/retell-relay/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "retell-relay",
	Short: "Relay Retell call analyses into Salesforce leads",
	Long:  "Receives Retell AI call-analysis webhooks, validates and maps the collected fields onto the Salesforce Lead picklists, and creates the Lead.",
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
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
