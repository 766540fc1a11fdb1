package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "perptrader",
	Short: "Live position and risk management for perpetual futures",
	Long: `Perptrader is the live trading core for a perpetual-futures account.

It provides tools for:
  - Running the live position and risk manager against an exchange
  - Continuous reconciliation of local state against exchange truth
  - Liquidation-proximity monitoring with protective close/reduce
  - Scaling into winners during confirmed trends
  - Querying the audit journal of transitions, actions and drift

Complete documentation is available at https://github.com/rustyeddy/perptrader`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}
