package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "exchange",
	Short: "A multi-client simulated stock exchange",
	Long: `Exchange runs a simulated stock market over a line-oriented TCP protocol.

It provides:
  - A server with a random-walk price simulator and per-client portfolios
  - Threshold price alerts pushed to subscribed clients
  - An interactive terminal client
  - Trade journals in SQLite, CSV or Kafka, with query commands
  - Optional Redis and WebSocket market feeds`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}
