/*
Copyright © 2026 halido
*/
package cmd

import (
	"github.com/halido/binance-trade-bot/internal/bootstrap"
	"github.com/spf13/cobra"
)

// tradeGatewayCmd represents the trade gateway command
var tradeGatewayCmd = &cobra.Command{
	Use:   "trade-gateway",
	Short: "Run the trade HTTP gateway",
	Long:  `The trade gateway exposes the HTTP API for enqueueing trade requests and reading trade records.`,
	Run:   bootstrap.StartTradeGateway,
}

func init() {
	rootCmd.AddCommand(tradeGatewayCmd)
}
