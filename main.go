/*
Copyright © 2026 halido
*/
package main

import "github.com/halido/binance-trade-bot/cmd"

func main() {
	cmd.Execute()
}
