/*
Copyright © 2026 halido
*/
package cmd

import (
	"github.com/halido/binance-trade-bot/internal/bootstrap"
	"github.com/spf13/cobra"
)

// tradeCmd represents the trade command
var tradeCmd = &cobra.Command{
	Use:   "trade",
	Short: "Execute a single trade and exit",
	Long:  `Execute a single buy or sell for a trading pair directly from the command line, waiting for the order to fill.`,
	Run:   bootstrap.StartTrade,
}

func init() {
	rootCmd.AddCommand(tradeCmd)
	tradeCmd.Flags().String("base", "", "base asset symbol, e.g. XLM")
	tradeCmd.Flags().String("quote", "", "quote asset symbol, e.g. BTC")
	tradeCmd.Flags().String("side", "", "BUY or SELL")
}
