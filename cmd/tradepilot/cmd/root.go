package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tradepilot/tradepilot/logger"
)

var rootCmd = &cobra.Command{
	Use:   "tradepilot",
	Short: "Order and position lifecycle manager for FX accounts",
	Long: `TradePilot manages the full lifecycle of orders and positions against
a broker gateway, with pre-submission risk checks and transient-failure
recovery.

It provides tools for:
  - Risk calculations: margin, profit, price targets, lot sizing
  - Submitting, modifying, cancelling and closing orders
  - Bulk close/cancel with symbol and profitability filters
  - Journaling deals and equity to CSV or SQLite
  - A simulated gateway for scripted end-to-end runs`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.SetLevel(logLevel)
	},
}

var logLevel string

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	defer logger.Sync()
	return rootCmd.Execute()
}

func init() {
	// .env is optional; flags and config files win over it.
	_ = godotenv.Load()

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}
