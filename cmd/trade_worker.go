/*
Copyright © 2026 halido
*/
package cmd

import (
	"github.com/halido/binance-trade-bot/internal/bootstrap"
	"github.com/spf13/cobra"
)

// tradeWorkerCmd represents the trade worker command
var tradeWorkerCmd = &cobra.Command{
	Use:   "trade-worker",
	Short: "Run the trade execution worker",
	Long:  `The trade worker consumes trade requests from jetstream, executes them against the exchange and records the results.`,
	Run:   bootstrap.StartTradeWorker,
}

func init() {
	rootCmd.AddCommand(tradeWorkerCmd)
}
